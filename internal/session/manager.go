package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/bissquit/incident-console/internal/domain"
)

// Authenticator exchanges credentials for a session.
type Authenticator interface {
	Login(ctx context.Context, username, password string) (*domain.Session, error)
}

// Manager owns the lifecycle of the console session: created at login,
// destroyed at logout. It is the explicit session context handed to the
// incident service client.
type Manager struct {
	store Store
	key   string
	now   func() time.Time
}

// NewManager creates a manager storing the session under key.
// An empty key selects DefaultKey.
func NewManager(store Store, key string) *Manager {
	if key == "" {
		key = DefaultKey
	}
	return &Manager{
		store: store,
		key:   key,
		now:   time.Now,
	}
}

// Login authenticates and persists the resulting session.
// On failure the stored session is left untouched.
func (m *Manager) Login(ctx context.Context, auth Authenticator, username, password string) (*domain.Session, error) {
	sess, err := auth.Login(ctx, username, password)
	if err != nil {
		return nil, err
	}

	if err := m.store.Save(ctx, m.key, sess); err != nil {
		return nil, fmt.Errorf("save session: %w", err)
	}

	slog.Info("session started",
		"username", sess.Identity.Username,
		"role", sess.Identity.Role,
	)

	return sess, nil
}

// Logout clears token and identity.
func (m *Manager) Logout(ctx context.Context) error {
	if err := m.store.Delete(ctx, m.key); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	slog.Info("session ended")
	return nil
}

// Current returns the stored session or ErrNoSession.
func (m *Manager) Current(ctx context.Context) (*domain.Session, error) {
	sess, err := m.store.Load(ctx, m.key)
	if err != nil {
		return nil, err
	}
	return sess, nil
}

// Token returns the bearer token of the stored session, read on every call.
// It returns "" without a session and ErrSessionExpired for a JWT past its
// exp claim, so a stale token is never sent.
func (m *Manager) Token(ctx context.Context) (string, error) {
	sess, err := m.store.Load(ctx, m.key)
	if errors.Is(err, ErrNoSession) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("load session: %w", err)
	}

	if sess.Expired(m.now()) {
		return "", ErrSessionExpired
	}
	return sess.Token, nil
}
