// Package session keeps the authenticated session of the console and supplies
// its bearer token to the incident service client.
package session

import (
	"context"
	"errors"
	"fmt"

	"github.com/bissquit/incident-console/internal/client"
	"github.com/bissquit/incident-console/internal/domain"
)

// DefaultKey is the fixed name the session is stored under.
const DefaultKey = "token"

// Session errors.
var (
	ErrNoSession = errors.New("no active session")
	// ErrSessionExpired matches client.ErrAuth so callers treat it as an auth failure.
	ErrSessionExpired = fmt.Errorf("session expired: %w", client.ErrAuth)
)

// Store is a key-value persistence collaborator for sessions.
type Store interface {
	// Load returns ErrNoSession when nothing is stored under key.
	Load(ctx context.Context, key string) (*domain.Session, error)
	Save(ctx context.Context, key string, session *domain.Session) error
	// Delete is a no-op when nothing is stored under key.
	Delete(ctx context.Context, key string) error
}
