// Package postgres provides a PostgreSQL implementation of the session store.
package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/bissquit/incident-console/internal/domain"
	"github.com/bissquit/incident-console/internal/session"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Store implements session.Store using the console_sessions table.
type Store struct {
	db *pgxpool.Pool
}

// NewStore creates a new PostgreSQL session store.
func NewStore(db *pgxpool.Pool) *Store {
	return &Store{db: db}
}

// Load implements session.Store.
func (s *Store) Load(ctx context.Context, key string) (*domain.Session, error) {
	query := `
		SELECT token, username, email, role
		FROM console_sessions
		WHERE key = $1
	`
	var sess domain.Session
	var role string
	err := s.db.QueryRow(ctx, query, key).Scan(
		&sess.Token,
		&sess.Identity.Username,
		&sess.Identity.Email,
		&role,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, session.ErrNoSession
		}
		return nil, fmt.Errorf("load session: %w", err)
	}
	sess.Identity.Role = domain.Role(role)

	return &sess, nil
}

// Save implements session.Store.
func (s *Store) Save(ctx context.Context, key string, sess *domain.Session) error {
	query := `
		INSERT INTO console_sessions (key, token, username, email, role, saved_at)
		VALUES ($1, $2, $3, $4, $5, NOW())
		ON CONFLICT (key) DO UPDATE SET
			token = EXCLUDED.token,
			username = EXCLUDED.username,
			email = EXCLUDED.email,
			role = EXCLUDED.role,
			saved_at = EXCLUDED.saved_at
	`
	_, err := s.db.Exec(ctx, query,
		key,
		sess.Token,
		sess.Identity.Username,
		sess.Identity.Email,
		string(sess.Identity.Role),
	)
	if err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	return nil
}

// Delete implements session.Store.
func (s *Store) Delete(ctx context.Context, key string) error {
	if _, err := s.db.Exec(ctx, `DELETE FROM console_sessions WHERE key = $1`, key); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}

// Ping checks database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.Ping(ctx)
}
