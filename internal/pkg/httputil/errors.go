package httputil

import (
	"context"
	"errors"
	"net/http"

	"github.com/bissquit/incident-console/internal/pkg/ctxlog"
)

// ErrorMapping maps an error (matched with errors.Is) to a response.
type ErrorMapping struct {
	Error   error
	Status  int
	Message string // err.Error() when empty
}

// HandleError writes the first matching mapping. Mapped 5xx responses are
// upstream failures and are logged as warnings; anything unmapped is a 500.
func HandleError(ctx context.Context, w http.ResponseWriter, err error, mappings []ErrorMapping) {
	for _, m := range mappings {
		if !errors.Is(err, m.Error) {
			continue
		}
		msg := m.Message
		if msg == "" {
			msg = err.Error()
		}
		if m.Status >= http.StatusInternalServerError {
			ctxlog.FromContext(ctx).Warn("upstream request failed", "status", m.Status, "error", err)
		}
		Error(w, m.Status, msg)
		return
	}

	ctxlog.FromContext(ctx).Error("internal error", "error", err)
	Error(w, http.StatusInternalServerError, "internal error")
}
