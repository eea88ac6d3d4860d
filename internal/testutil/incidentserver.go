package testutil

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/bissquit/incident-console/internal/domain"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

// Fake user accounts known to every IncidentServer.
const (
	OperatorUsername = "operator"
	OperatorPassword = "operator123"
)

// RecordedRequest is a request received by the fake incident service.
type RecordedRequest struct {
	Method        string
	Path          string
	Query         string
	Authorization string
}

// IncidentServer is an in-memory stand-in for the incident service.
// It enforces the server-side transition guard and answers 409 for transitions
// the current status does not accept.
type IncidentServer struct {
	*httptest.Server

	mu        sync.Mutex
	incidents []*domain.Incident // newest first
	tokens    map[string]domain.Identity
	users     map[string]string
	requests  []RecordedRequest
	failures  []int
	nextID    int
	pageSize  int
}

// IncidentServerOption customizes an IncidentServer.
type IncidentServerOption func(*IncidentServer)

// WithContractValidation validates every incoming request against the incident service contract.
func WithContractValidation(t testing.TB) IncidentServerOption {
	validator := NewOpenAPIValidator(t, IncidentServiceSpecPath())
	return func(s *IncidentServer) {
		s.Config.Handler = validator.Middleware(t)(s.Config.Handler)
	}
}

// WithPageSize caps the page size regardless of the size requested.
func WithPageSize(size int) IncidentServerOption {
	return func(s *IncidentServer) {
		s.pageSize = size
	}
}

// NewIncidentServer starts a fake incident service serving under /api.
// The server is closed when the test finishes.
func NewIncidentServer(t testing.TB, opts ...IncidentServerOption) *IncidentServer {
	t.Helper()

	s := &IncidentServer{
		tokens: make(map[string]domain.Identity),
		users:  map[string]string{OperatorUsername: OperatorPassword},
	}

	r := chi.NewRouter()
	r.Use(s.record)
	r.Route("/api", func(r chi.Router) {
		r.Post("/auth/login", s.login)
		r.Group(func(r chi.Router) {
			r.Use(s.requireToken)
			r.Get("/incidents", s.list)
			r.Post("/incidents", s.create)
			r.Get("/incidents/{id}", s.get)
			r.Patch("/incidents/{id}/{action}", s.transition)
		})
	})

	s.Server = httptest.NewUnstartedServer(r)
	for _, opt := range opts {
		opt(s)
	}
	s.Start()
	t.Cleanup(s.Close)

	return s
}

// BaseURL returns the URL clients should use as their base.
func (s *IncidentServer) BaseURL() string {
	return s.URL + "/api"
}

// Seed adds an incident and returns it. Missing id and number are generated.
func (s *IncidentServer) Seed(inc domain.Incident) domain.Incident {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextID++
	if inc.ID == "" {
		inc.ID = domain.IncidentID(strconv.Itoa(s.nextID))
	}
	if inc.IncidentNumber == "" {
		inc.IncidentNumber = fmt.Sprintf("INC-%s-%04d", time.Now().Format("20060102"), s.nextID)
	}
	if inc.Status == "" {
		inc.Status = domain.IncidentStatusTriggered
	}
	if inc.CreatedAt == nil {
		inc.CreatedAt = &domain.Timestamp{Time: time.Now().UTC()}
	}

	stored := inc
	s.incidents = append([]*domain.Incident{&stored}, s.incidents...)
	return stored
}

// SetStatus changes an incident's status behind the console's back,
// as another client would.
func (s *IncidentServer) SetStatus(id domain.IncidentID, status domain.IncidentStatus) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if inc := s.find(id); inc != nil {
		inc.Status = status
	}
}

// Incident returns the stored state of an incident.
func (s *IncidentServer) Incident(id domain.IncidentID) (domain.Incident, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if inc := s.find(id); inc != nil {
		return *inc, true
	}
	return domain.Incident{}, false
}

// FailNext makes the next n requests answer with status.
func (s *IncidentServer) FailNext(status, n int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := 0; i < n; i++ {
		s.failures = append(s.failures, status)
	}
}

// Requests returns every request received so far.
func (s *IncidentServer) Requests() []RecordedRequest {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]RecordedRequest, len(s.requests))
	copy(out, s.requests)
	return out
}

// RequestCount returns the number of requests received so far.
func (s *IncidentServer) RequestCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.requests)
}

// ResetRequests forgets recorded requests.
func (s *IncidentServer) ResetRequests() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requests = nil
}

// IssueToken registers a token for the operator account, bypassing login.
func (s *IncidentServer) IssueToken(token string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tokens[token] = operatorIdentity()
}

func operatorIdentity() domain.Identity {
	return domain.Identity{
		Username: OperatorUsername,
		Email:    OperatorUsername + "@example.com",
		Role:     "RESPONDER",
	}
}

func (s *IncidentServer) find(id domain.IncidentID) *domain.Incident {
	for _, inc := range s.incidents {
		if inc.ID == id {
			return inc
		}
	}
	return nil
}

func (s *IncidentServer) record(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		s.requests = append(s.requests, RecordedRequest{
			Method:        r.Method,
			Path:          r.URL.Path,
			Query:         r.URL.RawQuery,
			Authorization: r.Header.Get("Authorization"),
		})
		var status int
		if len(s.failures) > 0 {
			status = s.failures[0]
			s.failures = s.failures[1:]
		}
		s.mu.Unlock()

		if status != 0 {
			respondError(w, status, "injected failure")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *IncidentServer) requireToken(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
		if !ok || token == "" {
			respondError(w, http.StatusUnauthorized, "missing authorization header")
			return
		}

		s.mu.Lock()
		_, known := s.tokens[token]
		s.mu.Unlock()

		if !known {
			respondError(w, http.StatusUnauthorized, "invalid or expired token")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *IncidentServer) login(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid json")
		return
	}

	s.mu.Lock()
	password, ok := s.users[req.Username]
	if !ok || password != req.Password {
		s.mu.Unlock()
		respondError(w, http.StatusUnauthorized, "Invalid username or password")
		return
	}
	token := uuid.NewString()
	identity := operatorIdentity()
	s.tokens[token] = identity
	s.mu.Unlock()

	respondData(w, http.StatusOK, map[string]string{
		"token":    token,
		"username": identity.Username,
		"email":    identity.Email,
		"role":     string(identity.Role),
	})
}

func (s *IncidentServer) list(w http.ResponseWriter, r *http.Request) {
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	size, _ := strconv.Atoi(r.URL.Query().Get("size"))
	if size <= 0 {
		size = 20
	}
	if s.pageSize > 0 && size > s.pageSize {
		size = s.pageSize
	}

	s.mu.Lock()
	total := len(s.incidents)
	content := make([]domain.Incident, 0, size)
	for i := page * size; i < total && i < (page+1)*size; i++ {
		content = append(content, *s.incidents[i])
	}
	s.mu.Unlock()

	totalPages := (total + size - 1) / size
	respondData(w, http.StatusOK, map[string]any{
		"content":       content,
		"page":          page,
		"size":          size,
		"totalElements": total,
		"totalPages":    totalPages,
		"last":          page+1 >= totalPages,
	})
}

func (s *IncidentServer) get(w http.ResponseWriter, r *http.Request) {
	inc, ok := s.Incident(domain.IncidentID(chi.URLParam(r, "id")))
	if !ok {
		respondError(w, http.StatusNotFound, "Incident not found")
		return
	}
	respondData(w, http.StatusOK, inc)
}

func (s *IncidentServer) create(w http.ResponseWriter, r *http.Request) {
	var draft domain.IncidentDraft
	if err := json.NewDecoder(r.Body).Decode(&draft); err != nil {
		respondError(w, http.StatusBadRequest, "invalid json")
		return
	}
	if strings.TrimSpace(draft.Title) == "" || !draft.Severity.IsValid() {
		respondError(w, http.StatusBadRequest, "title: must not be blank")
		return
	}

	inc := s.Seed(domain.Incident{
		Title:       draft.Title,
		Description: draft.Description,
		Severity:    draft.Severity,
		Status:      domain.IncidentStatusTriggered,
	})
	respondData(w, http.StatusCreated, inc)
}

// serverTransitions is the authoritative guard of the fake service.
var serverTransitions = map[string]func(domain.IncidentStatus) (domain.IncidentStatus, bool){
	"acknowledge": func(from domain.IncidentStatus) (domain.IncidentStatus, bool) {
		return domain.IncidentStatusAcknowledged, from == domain.IncidentStatusTriggered || from == domain.IncidentStatusEscalated
	},
	"resolve": func(from domain.IncidentStatus) (domain.IncidentStatus, bool) {
		ok := from == domain.IncidentStatusAcknowledged || from == domain.IncidentStatusInvestigating || from == domain.IncidentStatusEscalated
		return domain.IncidentStatusResolved, ok
	},
	"close": func(from domain.IncidentStatus) (domain.IncidentStatus, bool) {
		return domain.IncidentStatusClosed, from == domain.IncidentStatusResolved
	},
	"escalate": func(from domain.IncidentStatus) (domain.IncidentStatus, bool) {
		return domain.IncidentStatusEscalated, !from.IsTerminal()
	},
}

func (s *IncidentServer) transition(w http.ResponseWriter, r *http.Request) {
	action := chi.URLParam(r, "action")
	guard, ok := serverTransitions[action]
	if !ok {
		respondError(w, http.StatusNotFound, "unknown action")
		return
	}

	resolution := r.URL.Query().Get("resolution")
	if action == "resolve" && strings.TrimSpace(resolution) == "" {
		respondError(w, http.StatusBadRequest, "resolution is required")
		return
	}

	s.mu.Lock()
	inc := s.find(domain.IncidentID(chi.URLParam(r, "id")))
	if inc == nil {
		s.mu.Unlock()
		respondError(w, http.StatusNotFound, "Incident not found")
		return
	}

	next, allowed := guard(inc.Status)
	if !allowed {
		from := inc.Status
		s.mu.Unlock()
		respondError(w, http.StatusConflict, fmt.Sprintf("Invalid status transition from %s to %s", from, next))
		return
	}

	now := &domain.Timestamp{Time: time.Now().UTC()}
	inc.Status = next
	switch next {
	case domain.IncidentStatusAcknowledged:
		inc.AcknowledgedAt = now
	case domain.IncidentStatusResolved:
		inc.ResolvedAt = now
		inc.Resolution = resolution
	case domain.IncidentStatusClosed:
		inc.ClosedAt = now
	case domain.IncidentStatusEscalated:
		inc.EscalationLevel++
		inc.SLABreach = true
	}
	updated := *inc
	s.mu.Unlock()

	respondData(w, http.StatusOK, updated)
}

func respondData(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"success": true,
		"data":    data,
	})
}

func respondError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"success": false,
		"message": message,
	})
}
