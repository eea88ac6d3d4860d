package httputil

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/bissquit/incident-console/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sessionSourceFunc func(ctx context.Context) (*domain.Session, error)

func (f sessionSourceFunc) Current(ctx context.Context) (*domain.Session, error) {
	return f(ctx)
}

func TestRequireSession(t *testing.T) {
	identity := domain.Identity{Username: "operator", Role: "RESPONDER"}

	tests := []struct {
		name       string
		source     SessionSource
		wantStatus int
	}{
		{
			name: "with session",
			source: sessionSourceFunc(func(context.Context) (*domain.Session, error) {
				return &domain.Session{Token: "t", Identity: identity}, nil
			}),
			wantStatus: http.StatusOK,
		},
		{
			name: "without session",
			source: sessionSourceFunc(func(context.Context) (*domain.Session, error) {
				return nil, errors.New("no active session")
			}),
			wantStatus: http.StatusUnauthorized,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				got, ok := GetIdentity(r.Context())
				require.True(t, ok)
				assert.Equal(t, identity, got)
				w.WriteHeader(http.StatusOK)
			})

			rec := httptest.NewRecorder()
			RequireSession(tt.source)(next).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

			assert.Equal(t, tt.wantStatus, rec.Code)
		})
	}
}

func TestCORSMiddleware(t *testing.T) {
	handler := CORSMiddleware([]string{"http://console.local"})(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodOptions, "/api/v1/incidents", nil)
	req.Header.Set("Origin", "http://console.local")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "http://console.local", rec.Header().Get("Access-Control-Allow-Origin"))

	req = httptest.NewRequest(http.MethodGet, "/api/v1/incidents", nil)
	req.Header.Set("Origin", "http://evil.local")
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestHandleError(t *testing.T) {
	errKnown := errors.New("known")
	mappings := []ErrorMapping{{Error: errKnown, Status: http.StatusConflict, Message: "conflict"}}

	rec := httptest.NewRecorder()
	HandleError(context.Background(), rec, errors.Join(errors.New("wrapped"), errKnown), mappings)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.JSONEq(t, `{"error":{"message":"conflict"}}`, rec.Body.String())

	rec = httptest.NewRecorder()
	HandleError(context.Background(), rec, errors.New("boom"), mappings)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}
