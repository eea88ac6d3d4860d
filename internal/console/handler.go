package console

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/bissquit/incident-console/internal/client"
	"github.com/bissquit/incident-console/internal/domain"
	"github.com/bissquit/incident-console/internal/pkg/ctxlog"
	"github.com/bissquit/incident-console/internal/pkg/httputil"
	"github.com/bissquit/incident-console/internal/session"
	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
)

// SessionService manages the console session.
type SessionService interface {
	Login(ctx context.Context, auth session.Authenticator, username, password string) (*domain.Session, error)
	Logout(ctx context.Context) error
	Current(ctx context.Context) (*domain.Session, error)
}

// Handler serves the console API.
type Handler struct {
	controller *Controller
	sessions   SessionService
	auth       session.Authenticator
	validator  *validator.Validate
}

// NewHandler creates a new console handler.
func NewHandler(controller *Controller, sessions SessionService, auth session.Authenticator) *Handler {
	return &Handler{
		controller: controller,
		sessions:   sessions,
		auth:       auth,
		validator:  validator.New(),
	}
}

// RegisterRoutes registers the console API routes.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/auth/login", h.Login)
	r.Post("/auth/logout", h.Logout)

	r.Group(func(r chi.Router) {
		r.Use(httputil.RequireSession(h.sessions))

		r.Get("/auth/session", h.GetSession)
		r.Get("/incidents", h.ListIncidents)
		r.Post("/incidents", h.CreateIncident)
		r.Post("/incidents/refresh", h.RefreshIncidents)
		r.Get("/incidents/{id}", h.GetIncident)
		r.Post("/incidents/{id}/{action}", h.TransitionIncident)
		r.Get("/stats", h.GetStats)
	})
}

// LoginRequest represents the request body for logging in.
type LoginRequest struct {
	Username string `json:"username" validate:"required,max=255"`
	Password string `json:"password" validate:"required,max=255"`
}

// CreateIncidentRequest represents the request body for creating an incident.
type CreateIncidentRequest struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Severity    string `json:"severity"`
}

// TransitionRequest represents the optional request body of a transition.
type TransitionRequest struct {
	Resolution string `json:"resolution"`
}

// SessionResponse describes the logged in user.
type SessionResponse struct {
	Username  string      `json:"username"`
	Email     string      `json:"email"`
	Role      domain.Role `json:"role"`
	ExpiresAt *time.Time  `json:"expires_at,omitempty"`
}

// IncidentView is an incident together with the actions the console offers for it.
type IncidentView struct {
	domain.Incident
	Actions []domain.TransitionKind `json:"actions"`
	SLA     SLAView                 `json:"sla"`
}

// SLAView holds the response targets of an incident's severity.
type SLAView struct {
	AcknowledgeWithinMinutes int `json:"acknowledge_within_minutes"`
	ResolveWithinMinutes     int `json:"resolve_within_minutes"`
}

// IncidentsResponse is the displayed collection.
type IncidentsResponse struct {
	Incidents    []IncidentView `json:"incidents"`
	Stats        domain.Stats   `json:"stats"`
	RefreshError string         `json:"refresh_error,omitempty"`
}

var errorMappings = []httputil.ErrorMapping{
	{Error: session.ErrNoSession, Status: http.StatusUnauthorized, Message: "not logged in"},
	{Error: client.ErrValidation, Status: http.StatusBadRequest},
	{Error: ErrInvalidTransition, Status: http.StatusConflict},
	{Error: client.ErrConflict, Status: http.StatusConflict},
	{Error: ErrIncidentNotInView, Status: http.StatusNotFound},
	{Error: client.ErrNotFound, Status: http.StatusNotFound},
	{Error: client.ErrAuth, Status: http.StatusUnauthorized},
	{Error: client.ErrNetwork, Status: http.StatusBadGateway},
	{Error: client.ErrServer, Status: http.StatusBadGateway},
}

// Login handles POST /auth/login. A successful login mounts the view with a refresh.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.Error(w, http.StatusBadRequest, "invalid json")
		return
	}

	if err := h.validator.Struct(req); err != nil {
		httputil.ValidationError(w, err)
		return
	}

	sess, err := h.sessions.Login(r.Context(), h.auth, req.Username, req.Password)
	if err != nil {
		h.handleError(w, r, err)
		return
	}

	if err := h.controller.Refresh(r.Context()); err != nil {
		ctxlog.FromContext(r.Context()).Warn("initial refresh failed", "error", err)
	}

	httputil.Success(w, http.StatusOK, sessionResponse(sess))
}

// Logout handles POST /auth/logout.
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	if err := h.sessions.Logout(r.Context()); err != nil {
		h.handleError(w, r, err)
		return
	}
	h.controller.Reset()

	w.WriteHeader(http.StatusNoContent)
}

// GetSession handles GET /auth/session.
func (h *Handler) GetSession(w http.ResponseWriter, r *http.Request) {
	sess, err := h.sessions.Current(r.Context())
	if err != nil {
		h.handleError(w, r, err)
		return
	}

	httputil.Success(w, http.StatusOK, sessionResponse(sess))
}

// ListIncidents handles GET /incidents. It serves the held collection; the
// incident service is only contacted when nothing was ever loaded, as after a
// restart that kept the session.
func (h *Handler) ListIncidents(w http.ResponseWriter, r *http.Request) {
	h.ensureLoaded(r)
	httputil.Success(w, http.StatusOK, h.view())
}

// GetIncident handles GET /incidents/{id} with the service's current state.
func (h *Handler) GetIncident(w http.ResponseWriter, r *http.Request) {
	inc, err := h.controller.Incident(r.Context(), domain.IncidentID(chi.URLParam(r, "id")))
	if err != nil {
		h.handleError(w, r, err)
		return
	}

	httputil.Success(w, http.StatusOK, h.incidentView(*inc))
}

// RefreshIncidents handles POST /incidents/refresh.
func (h *Handler) RefreshIncidents(w http.ResponseWriter, r *http.Request) {
	if err := h.controller.Refresh(r.Context()); err != nil {
		h.handleError(w, r, err)
		return
	}

	httputil.Success(w, http.StatusOK, h.view())
}

// CreateIncident handles POST /incidents.
func (h *Handler) CreateIncident(w http.ResponseWriter, r *http.Request) {
	var req CreateIncidentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.Error(w, http.StatusBadRequest, "invalid json")
		return
	}

	created, err := h.controller.Create(r.Context(), domain.IncidentDraft{
		Title:       req.Title,
		Description: req.Description,
		Severity:    domain.Severity(req.Severity),
	})
	if err != nil {
		var validationErrors validator.ValidationErrors
		if errors.As(err, &validationErrors) {
			httputil.ValidationError(w, err)
			return
		}
		h.handleError(w, r, err)
		return
	}

	httputil.Success(w, http.StatusCreated, created)
}

// TransitionIncident handles POST /incidents/{id}/{action}.
func (h *Handler) TransitionIncident(w http.ResponseWriter, r *http.Request) {
	id := domain.IncidentID(chi.URLParam(r, "id"))
	kind := domain.TransitionKind(chi.URLParam(r, "action"))
	if !kind.IsValid() {
		httputil.Error(w, http.StatusNotFound, "unknown action")
		return
	}

	var req TransitionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		httputil.Error(w, http.StatusBadRequest, "invalid json")
		return
	}

	if err := h.controller.RequestTransition(r.Context(), id, kind, req.Resolution); err != nil {
		h.handleError(w, r, err)
		return
	}

	httputil.Success(w, http.StatusOK, h.view())
}

// GetStats handles GET /stats.
func (h *Handler) GetStats(w http.ResponseWriter, r *http.Request) {
	h.ensureLoaded(r)
	httputil.Success(w, http.StatusOK, h.controller.Stats())
}

// ensureLoaded leaves a failed first load to the refresh_error of the view.
func (h *Handler) ensureLoaded(r *http.Request) {
	if err := h.controller.EnsureLoaded(r.Context()); err != nil {
		ctxlog.FromContext(r.Context()).Warn("initial refresh failed", "error", err)
	}
}

func (h *Handler) incidentView(inc domain.Incident) IncidentView {
	return IncidentView{
		Incident: inc,
		Actions:  h.controller.Actions(inc.Status),
		SLA: SLAView{
			AcknowledgeWithinMinutes: int(inc.Severity.AckSLA().Minutes()),
			ResolveWithinMinutes:     int(inc.Severity.ResolveSLA().Minutes()),
		},
	}
}

func (h *Handler) view() IncidentsResponse {
	incidents := h.controller.Incidents()

	views := make([]IncidentView, 0, len(incidents))
	for _, inc := range incidents {
		views = append(views, h.incidentView(inc))
	}

	resp := IncidentsResponse{
		Incidents: views,
		Stats:     domain.ComputeStats(incidents),
	}
	if rerr := h.controller.LastRefreshError(); rerr != nil {
		resp.RefreshError = rerr.Error()
	}
	return resp
}

func sessionResponse(sess *domain.Session) SessionResponse {
	resp := SessionResponse{
		Username: sess.Identity.Username,
		Email:    sess.Identity.Email,
		Role:     sess.Identity.Role,
	}
	if exp, ok := sess.ExpiresAt(); ok {
		resp.ExpiresAt = &exp
	}
	return resp
}

func (h *Handler) handleError(w http.ResponseWriter, r *http.Request, err error) {
	httputil.HandleError(r.Context(), w, err, errorMappings)
}
