// Package console implements the incident lifecycle controller and the HTTP
// surface of the incident console.
package console

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/bissquit/incident-console/internal/client"
	"github.com/bissquit/incident-console/internal/domain"
	"github.com/bissquit/incident-console/internal/notify"
	"github.com/bissquit/incident-console/internal/pkg/ctxlog"
	"github.com/bissquit/incident-console/internal/pkg/metrics"
	"github.com/go-playground/validator/v10"
)

// IncidentAPI is the part of the incident service client the controller uses.
type IncidentAPI interface {
	ListIncidents(ctx context.Context) ([]domain.Incident, error)
	GetIncident(ctx context.Context, id domain.IncidentID) (*domain.Incident, error)
	CreateIncident(ctx context.Context, draft domain.IncidentDraft) (*domain.Incident, error)
	Transition(ctx context.Context, id domain.IncidentID, kind domain.TransitionKind, resolution string) (*domain.Incident, error)
}

// Option customizes a Controller.
type Option func(*Controller)

// WithNotifier announces accepted transitions. Delivery failures are logged only.
func WithNotifier(n notify.Notifier) Option {
	return func(c *Controller) {
		c.notifier = n
	}
}

// Controller holds the displayed incident collection and mediates every
// lifecycle action. The collection only changes by a full refresh from the
// incident service; nothing is ever updated locally.
//
// Operations are serialized: one runs at a time, network round-trips included.
type Controller struct {
	api      IncidentAPI
	notifier notify.Notifier
	validate *validator.Validate

	mu        sync.Mutex
	incidents []domain.Incident
	lastErr   *RefreshError
	// refreshed is set by the first refresh attempt, successful or not,
	// and cleared by Reset.
	refreshed bool
}

// NewController creates a controller with an empty collection.
func NewController(api IncidentAPI, opts ...Option) *Controller {
	c := &Controller{
		api:       api,
		validate:  validator.New(),
		incidents: make([]domain.Incident, 0),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Refresh replaces the collection with a fresh read from the incident service.
// On failure the previous collection is kept and a *RefreshError is returned
// and recorded.
func (c *Controller) Refresh(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.refresh(ctx)
}

// EnsureLoaded refreshes once if no refresh has been attempted since the
// controller was created or reset, as happens when a persisted session
// outlives a restart. A failure is recorded like any refresh failure.
func (c *Controller) EnsureLoaded(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.refreshed {
		return nil
	}
	return c.refresh(ctx)
}

func (c *Controller) refresh(ctx context.Context) error {
	c.refreshed = true
	incidents, err := c.api.ListIncidents(ctx)
	if err != nil {
		metrics.RefreshFailuresTotal.Inc()
		rerr := &RefreshError{Err: err}
		c.lastErr = rerr
		ctxlog.FromContext(ctx).Warn("incident refresh failed, keeping previous collection",
			"held", len(c.incidents),
			"error", err,
		)
		return rerr
	}

	if incidents == nil {
		incidents = make([]domain.Incident, 0)
	}
	c.incidents = incidents
	c.lastErr = nil
	metrics.RecordHeldIncidents(domain.ComputeStats(c.incidents))

	return nil
}

// RequestTransition applies kind to the incident with the given id.
//
// The incident must be in the displayed collection and kind must be offered
// from its displayed status; otherwise nothing is sent. A resolve needs a
// non-blank resolution. After every dispatched attempt, failed or not, the
// collection is refreshed, so the displayed status is always the server's.
func (c *Controller) RequestTransition(ctx context.Context, id domain.IncidentID, kind domain.TransitionKind, resolution string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	ctx, logger := ctxlog.With(ctx, "incident_id", id, "kind", kind)

	inc, ok := c.find(id)
	if !ok {
		c.countTransition(kind, "not_in_view")
		return fmt.Errorf("incident %s: %w", id, ErrIncidentNotInView)
	}

	if !domain.CanTransition(inc.Status, kind) {
		c.countTransition(kind, "rejected_locally")
		return &InvalidTransitionError{ID: id, From: inc.Status, Kind: kind}
	}

	resolution = strings.TrimSpace(resolution)
	if kind.RequiresResolution() && resolution == "" {
		c.countTransition(kind, "rejected_locally")
		return fmt.Errorf("incident %s: %w: resolution is required", id, client.ErrValidation)
	}

	updated, err := c.api.Transition(ctx, id, kind, resolution)
	if err != nil {
		c.countTransition(kind, outcome(err))
		logger.Info("incident transition failed", "from", inc.Status, "error", err)
		c.refreshAfter(ctx, logger)
		return err
	}

	c.countTransition(kind, "accepted")
	logger.Info("incident transitioned", "from", inc.Status, "to", updated.Status)

	c.refreshAfter(ctx, logger)

	if c.notifier != nil {
		event := notify.TransitionEvent{Kind: kind, From: inc.Status, Incident: *updated}
		if err := c.notifier.Notify(ctx, event); err != nil {
			logger.Warn("transition notification failed", "error", err)
		}
	}

	return nil
}

// Create validates draft locally, submits it and refreshes on success.
func (c *Controller) Create(ctx context.Context, draft domain.IncidentDraft) (*domain.Incident, error) {
	draft = draft.Normalize()
	if err := c.validate.Struct(draft); err != nil {
		return nil, fmt.Errorf("create incident: %w: %w", client.ErrValidation, err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	created, err := c.api.CreateIncident(ctx, draft)
	if err != nil {
		return nil, err
	}

	logger := ctxlog.FromContext(ctx)
	logger.Info("incident created", "incident_id", created.ID, "severity", created.Severity)
	c.refreshAfter(ctx, logger)

	return created, nil
}

// Stats derives counts from the current collection on every call.
func (c *Controller) Stats() domain.Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	return domain.ComputeStats(c.incidents)
}

// Incidents returns a copy of the collection, in the order the service returned it.
func (c *Controller) Incidents() []domain.Incident {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]domain.Incident, len(c.incidents))
	copy(out, c.incidents)
	return out
}

// Actions returns the transitions offered for status.
func (c *Controller) Actions(status domain.IncidentStatus) []domain.TransitionKind {
	return domain.AllowedTransitions(status)
}

// Reset discards the collection, as leaving the view does.
func (c *Controller) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.incidents = make([]domain.Incident, 0)
	c.lastErr = nil
	c.refreshed = false
	metrics.RecordHeldIncidents(domain.ComputeStats(c.incidents))
}

// Incident fetches the current state of one incident from the service. The
// held collection is left as it is; only a refresh replaces it.
func (c *Controller) Incident(ctx context.Context, id domain.IncidentID) (*domain.Incident, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.api.GetIncident(ctx, id)
}

// LastRefreshError returns the error of the most recent refresh, nil if it succeeded.
func (c *Controller) LastRefreshError() *RefreshError {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.lastErr
}

func (c *Controller) find(id domain.IncidentID) (domain.Incident, bool) {
	for _, inc := range c.incidents {
		if inc.ID == id {
			return inc, true
		}
	}
	return domain.Incident{}, false
}

// refreshAfter refreshes following a mutation. A failure is recorded and logged
// but does not replace the mutation's own outcome.
func (c *Controller) refreshAfter(ctx context.Context, logger *slog.Logger) {
	if err := c.refresh(ctx); err != nil {
		logger.Warn("refresh after mutation failed", "error", err)
	}
}

func (c *Controller) countTransition(kind domain.TransitionKind, outcome string) {
	metrics.TransitionsTotal.WithLabelValues(string(kind), outcome).Inc()
}

func outcome(err error) string {
	switch {
	case errors.Is(err, client.ErrConflict):
		return "conflict"
	case errors.Is(err, client.ErrNotFound):
		return "not_found"
	case errors.Is(err, client.ErrAuth):
		return "unauthorized"
	case errors.Is(err, client.ErrNetwork):
		return "network_error"
	case errors.Is(err, client.ErrValidation):
		return "rejected_locally"
	default:
		return "server_error"
	}
}
