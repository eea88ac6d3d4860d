package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/bissquit/incident-console/internal/domain"
)

// ListIncidents returns every incident known to the service, following pages
// until the service reports the last one. Zero incidents yield an empty slice.
// An incident repeated on a later page, pushed there by one created between
// fetches, is kept once at its first position.
func (c *Client) ListIncidents(ctx context.Context) ([]domain.Incident, error) {
	const op = "list_incidents"

	incidents := make([]domain.Incident, 0, c.config.PageSize)
	seen := make(map[domain.IncidentID]struct{}, c.config.PageSize)

	for page := 0; page < maxPages; page++ {
		var raw json.RawMessage
		err := c.do(ctx, request{
			op:     op,
			method: http.MethodGet,
			path:   "/incidents",
			query: url.Values{
				"page": {strconv.Itoa(page)},
				"size": {strconv.Itoa(c.config.PageSize)},
			},
			authenticated: true,
		}, &raw)
		if err != nil {
			return nil, err
		}

		raw = bytes.TrimSpace(raw)
		if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
			break
		}

		// Unpaged list
		if raw[0] == '[' {
			var all []domain.Incident
			if err := json.Unmarshal(raw, &all); err != nil {
				return nil, fmt.Errorf("%s: decode incidents: %w: %w", op, ErrServer, err)
			}
			return appendUnique(incidents, seen, all), nil
		}

		var p incidentPage
		if err := json.Unmarshal(raw, &p); err != nil {
			return nil, fmt.Errorf("%s: decode page: %w: %w", op, ErrServer, err)
		}
		incidents = appendUnique(incidents, seen, p.Content)

		if p.Last || len(p.Content) == 0 || (p.TotalPages > 0 && page+1 >= p.TotalPages) {
			break
		}
	}

	return incidents, nil
}

func appendUnique(dst []domain.Incident, seen map[domain.IncidentID]struct{}, src []domain.Incident) []domain.Incident {
	for _, inc := range src {
		if _, dup := seen[inc.ID]; dup {
			continue
		}
		seen[inc.ID] = struct{}{}
		dst = append(dst, inc)
	}
	return dst
}

// GetIncident returns a single incident.
func (c *Client) GetIncident(ctx context.Context, id domain.IncidentID) (*domain.Incident, error) {
	const op = "get_incident"

	if id == "" {
		return nil, validationError(op, "incident id is required")
	}

	var inc domain.Incident
	err := c.do(ctx, request{
		op:            op,
		method:        http.MethodGet,
		path:          "/incidents/" + url.PathEscape(id.String()),
		authenticated: true,
	}, &inc)
	if err != nil {
		return nil, err
	}
	return &inc, nil
}

// CreateIncident creates an incident. Title and severity are checked before
// anything is sent; a payload the service rejects yields ErrServer.
func (c *Client) CreateIncident(ctx context.Context, draft domain.IncidentDraft) (*domain.Incident, error) {
	const op = "create_incident"

	if err := c.validate.Struct(draft); err != nil {
		return nil, fmt.Errorf("%s: %w: %w", op, ErrValidation, err)
	}

	var inc domain.Incident
	err := c.do(ctx, request{
		op:            op,
		method:        http.MethodPost,
		path:          "/incidents",
		body:          draft,
		authenticated: true,
	}, &inc)
	if err != nil {
		return nil, err
	}
	return &inc, nil
}

// Transition applies a lifecycle action to an incident. resolution is required
// for resolve and ignored otherwise. The service's status check is authoritative:
// a transition it refuses yields ErrConflict, whether it answers 409 or 400.
// The only other 400 cause, a missing resolution, never leaves the client.
func (c *Client) Transition(ctx context.Context, id domain.IncidentID, kind domain.TransitionKind, resolution string) (*domain.Incident, error) {
	op := "transition_" + string(kind)

	if !kind.IsValid() {
		return nil, validationError("transition", "unknown transition %q", kind)
	}
	if id == "" {
		return nil, validationError(op, "incident id is required")
	}

	var query url.Values
	if kind.RequiresResolution() {
		resolution = strings.TrimSpace(resolution)
		if resolution == "" {
			return nil, validationError(op, "resolution is required")
		}
		query = url.Values{"resolution": {resolution}}
	}

	var inc domain.Incident
	err := c.do(ctx, request{
		op:            op,
		method:        http.MethodPatch,
		path:          "/incidents/" + url.PathEscape(id.String()) + "/" + string(kind),
		query:         query,
		authenticated: true,
		badRequest:    ErrConflict,
	}, &inc)
	if err != nil {
		return nil, err
	}
	return &inc, nil
}

// Acknowledge moves a TRIGGERED incident to ACKNOWLEDGED.
func (c *Client) Acknowledge(ctx context.Context, id domain.IncidentID) (*domain.Incident, error) {
	return c.Transition(ctx, id, domain.TransitionAcknowledge, "")
}

// Resolve moves an ACKNOWLEDGED incident to RESOLVED.
func (c *Client) Resolve(ctx context.Context, id domain.IncidentID, resolution string) (*domain.Incident, error) {
	return c.Transition(ctx, id, domain.TransitionResolve, resolution)
}

// Close moves a RESOLVED incident to CLOSED.
func (c *Client) Close(ctx context.Context, id domain.IncidentID) (*domain.Incident, error) {
	return c.Transition(ctx, id, domain.TransitionClose, "")
}

// Escalate moves a non-terminal incident to ESCALATED.
func (c *Client) Escalate(ctx context.Context, id domain.IncidentID) (*domain.Incident, error) {
	return c.Transition(ctx, id, domain.TransitionEscalate, "")
}
