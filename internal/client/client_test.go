package client

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/bissquit/incident-console/internal/domain"
	"github.com/bissquit/incident-console/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type staticToken string

func (s staticToken) Token(_ context.Context) (string, error) {
	return string(s), nil
}

type failingToken struct{ err error }

func (f failingToken) Token(_ context.Context) (string, error) {
	return "", f.err
}

const testToken = "test-token"

func newTestClient(t *testing.T, opts ...testutil.IncidentServerOption) (*Client, *testutil.IncidentServer) {
	t.Helper()
	opts = append([]testutil.IncidentServerOption{testutil.WithContractValidation(t)}, opts...)
	srv := testutil.NewIncidentServer(t, opts...)
	srv.IssueToken(testToken)
	return New(Config{BaseURL: srv.BaseURL()}, staticToken(testToken)), srv
}

func TestNew_Defaults(t *testing.T) {
	c := New(Config{BaseURL: "http://localhost:8081/api/"}, nil)

	assert.Equal(t, "http://localhost:8081/api", c.config.BaseURL)
	assert.Equal(t, defaultTimeout, c.config.Timeout)
	assert.Equal(t, defaultPageSize, c.config.PageSize)
	assert.Nil(t, c.limiter)
}

func TestNew_RateLimit(t *testing.T) {
	c := New(Config{RateLimit: 5}, nil)

	require.NotNil(t, c.limiter)
	assert.Equal(t, 1, c.limiter.Burst())
}

func TestLogin_Success(t *testing.T) {
	srv := testutil.NewIncidentServer(t, testutil.WithContractValidation(t))
	c := New(Config{BaseURL: srv.BaseURL()}, staticToken("stale"))

	session, err := c.Login(context.Background(), testutil.OperatorUsername, testutil.OperatorPassword)

	require.NoError(t, err)
	assert.NotEmpty(t, session.Token)
	assert.Equal(t, testutil.OperatorUsername, session.Identity.Username)
	assert.Equal(t, "operator@example.com", session.Identity.Email)
	assert.Equal(t, domain.Role("RESPONDER"), session.Identity.Role)

	requests := srv.Requests()
	require.Len(t, requests, 1)
	assert.Empty(t, requests[0].Authorization, "login must not carry a bearer token")
}

func TestLogin_InvalidCredentials(t *testing.T) {
	c, _ := newTestClient(t)

	session, err := c.Login(context.Background(), testutil.OperatorUsername, "wrong")

	assert.Nil(t, session)
	require.ErrorIs(t, err, ErrAuth)

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusUnauthorized, apiErr.StatusCode)
	assert.Equal(t, "Invalid username or password", apiErr.Message)
}

func TestLogin_MissingCredentials(t *testing.T) {
	c, srv := newTestClient(t)

	_, err := c.Login(context.Background(), "", "secret")

	require.ErrorIs(t, err, ErrValidation)
	assert.Zero(t, srv.RequestCount())
}

func TestLogin_NetworkError(t *testing.T) {
	srv := testutil.NewIncidentServer(t)
	baseURL := srv.BaseURL()
	srv.Close()

	c := New(Config{BaseURL: baseURL}, nil)
	_, err := c.Login(context.Background(), testutil.OperatorUsername, testutil.OperatorPassword)

	require.ErrorIs(t, err, ErrNetwork)
}

func TestListIncidents_Empty(t *testing.T) {
	c, _ := newTestClient(t)

	incidents, err := c.ListIncidents(context.Background())

	require.NoError(t, err)
	assert.NotNil(t, incidents)
	assert.Empty(t, incidents)
}

func TestListIncidents_AttachesBearerToken(t *testing.T) {
	c, srv := newTestClient(t)
	srv.Seed(domain.Incident{Title: "API down", Severity: domain.SeverityP1})

	incidents, err := c.ListIncidents(context.Background())

	require.NoError(t, err)
	require.Len(t, incidents, 1)
	assert.Equal(t, "API down", incidents[0].Title)

	for _, req := range srv.Requests() {
		assert.Equal(t, "Bearer "+testToken, req.Authorization)
	}
}

func TestListIncidents_FollowsPages(t *testing.T) {
	srv := testutil.NewIncidentServer(t, testutil.WithContractValidation(t), testutil.WithPageSize(2))
	srv.IssueToken(testToken)
	for i := 0; i < 5; i++ {
		srv.Seed(domain.Incident{Title: "incident", Severity: domain.SeverityP3})
	}
	c := New(Config{BaseURL: srv.BaseURL(), PageSize: 2}, staticToken(testToken))

	incidents, err := c.ListIncidents(context.Background())

	require.NoError(t, err)
	assert.Len(t, incidents, 5)
	assert.Equal(t, 3, srv.RequestCount())

	seen := make(map[domain.IncidentID]bool)
	for _, inc := range incidents {
		assert.False(t, seen[inc.ID], "duplicate incident %s", inc.ID)
		seen[inc.ID] = true
	}
}

func TestListIncidents_SkipsRepeatedAcrossPages(t *testing.T) {
	pages := []string{
		`{"success": true, "data": {"content": [
			{"id": 1, "title": "one", "severity": "P1", "status": "TRIGGERED"},
			{"id": 2, "title": "two", "severity": "P2", "status": "TRIGGERED"}
		], "page": 0, "size": 2, "totalElements": 4, "totalPages": 2, "last": false}}`,
		`{"success": true, "data": {"content": [
			{"id": 2, "title": "two", "severity": "P2", "status": "TRIGGERED"},
			{"id": 3, "title": "three", "severity": "P3", "status": "RESOLVED"}
		], "page": 1, "size": 2, "totalElements": 4, "totalPages": 2, "last": true}}`,
	}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		page := 0
		if r.URL.Query().Get("page") == "1" {
			page = 1
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(pages[page]))
	}))
	defer server.Close()

	c := New(Config{BaseURL: server.URL, PageSize: 2}, staticToken(testToken))
	incidents, err := c.ListIncidents(context.Background())

	require.NoError(t, err)
	ids := make([]domain.IncidentID, 0, len(incidents))
	for _, inc := range incidents {
		ids = append(ids, inc.ID)
	}
	assert.Equal(t, []domain.IncidentID{"1", "2", "3"}, ids)

	stats := domain.ComputeStats(incidents)
	assert.Equal(t, 3, stats.Total)
	assert.Equal(t, 2, stats.Active)
}

func TestListIncidents_WithoutSession(t *testing.T) {
	srv := testutil.NewIncidentServer(t, testutil.WithContractValidation(t))
	c := New(Config{BaseURL: srv.BaseURL()}, staticToken(""))

	_, err := c.ListIncidents(context.Background())

	require.ErrorIs(t, err, ErrAuth)
	requests := srv.Requests()
	require.Len(t, requests, 1)
	assert.Empty(t, requests[0].Authorization)
}

func TestListIncidents_TokenSourceErrorAbortsRequest(t *testing.T) {
	srv := testutil.NewIncidentServer(t)
	sentinel := errors.New("session expired")
	c := New(Config{BaseURL: srv.BaseURL()}, failingToken{err: sentinel})

	_, err := c.ListIncidents(context.Background())

	require.ErrorIs(t, err, sentinel)
	assert.Zero(t, srv.RequestCount())
}

func TestListIncidents_ServerError(t *testing.T) {
	c, srv := newTestClient(t)
	srv.FailNext(http.StatusInternalServerError, 1)

	_, err := c.ListIncidents(context.Background())

	require.ErrorIs(t, err, ErrServer)
}

func TestGetIncident(t *testing.T) {
	c, srv := newTestClient(t)
	seeded := srv.Seed(domain.Incident{Title: "Queue backlog", Severity: domain.SeverityP2})

	inc, err := c.GetIncident(context.Background(), seeded.ID)
	require.NoError(t, err)
	assert.Equal(t, seeded.IncidentNumber, inc.IncidentNumber)

	_, err = c.GetIncident(context.Background(), "999")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestCreateIncident(t *testing.T) {
	c, srv := newTestClient(t)

	inc, err := c.CreateIncident(context.Background(), domain.IncidentDraft{
		Title:       "Payments failing",
		Description: "5xx from PSP",
		Severity:    domain.SeverityP1,
	})

	require.NoError(t, err)
	assert.NotEmpty(t, inc.ID)
	assert.Equal(t, domain.IncidentStatusTriggered, inc.Status)

	stored, ok := srv.Incident(inc.ID)
	require.True(t, ok)
	assert.Equal(t, "Payments failing", stored.Title)
}

func TestCreateIncident_Preconditions(t *testing.T) {
	tests := []struct {
		name  string
		draft domain.IncidentDraft
	}{
		{"missing title", domain.IncidentDraft{Severity: domain.SeverityP2}},
		{"missing severity", domain.IncidentDraft{Title: "Disk full"}},
		{"unknown severity", domain.IncidentDraft{Title: "Disk full", Severity: "P9"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, srv := newTestClient(t)

			_, err := c.CreateIncident(context.Background(), tt.draft)

			require.ErrorIs(t, err, ErrValidation)
			assert.Zero(t, srv.RequestCount())
		})
	}
}

func TestCreateIncident_ServerRejects(t *testing.T) {
	c, srv := newTestClient(t)
	srv.FailNext(http.StatusBadRequest, 1)

	_, err := c.CreateIncident(context.Background(), domain.IncidentDraft{Title: "x", Severity: domain.SeverityP4})

	require.ErrorIs(t, err, ErrServer)
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusBadRequest, apiErr.StatusCode)
}

func TestTransition_Acknowledge(t *testing.T) {
	c, srv := newTestClient(t)
	seeded := srv.Seed(domain.Incident{Title: "CPU", Severity: domain.SeverityP2})

	inc, err := c.Acknowledge(context.Background(), seeded.ID)

	require.NoError(t, err)
	assert.Equal(t, domain.IncidentStatusAcknowledged, inc.Status)
	assert.NotNil(t, inc.AcknowledgedAt)
}

func TestTransition_ResolveEncodesResolution(t *testing.T) {
	c, srv := newTestClient(t)
	seeded := srv.Seed(domain.Incident{Title: "CPU", Severity: domain.SeverityP2, Status: domain.IncidentStatusAcknowledged})

	inc, err := c.Resolve(context.Background(), seeded.ID, "Rolled back deploy #42 & restarted")

	require.NoError(t, err)
	assert.Equal(t, domain.IncidentStatusResolved, inc.Status)
	assert.Equal(t, "Rolled back deploy #42 & restarted", inc.Resolution)

	requests := srv.Requests()
	require.Len(t, requests, 1)
	assert.Equal(t, http.MethodPatch, requests[0].Method)
	assert.Equal(t, "/api/incidents/"+seeded.ID.String()+"/resolve", requests[0].Path)
	assert.Equal(t, "resolution=Rolled+back+deploy+%2342+%26+restarted", requests[0].Query)
}

func TestTransition_ResolveRequiresResolution(t *testing.T) {
	c, srv := newTestClient(t)
	seeded := srv.Seed(domain.Incident{Title: "CPU", Severity: domain.SeverityP2, Status: domain.IncidentStatusAcknowledged})

	_, err := c.Resolve(context.Background(), seeded.ID, "   ")

	require.ErrorIs(t, err, ErrValidation)
	assert.Zero(t, srv.RequestCount())
}

func TestTransition_UnknownKind(t *testing.T) {
	c, srv := newTestClient(t)

	_, err := c.Transition(context.Background(), "1", "reopen", "")

	require.ErrorIs(t, err, ErrValidation)
	assert.Zero(t, srv.RequestCount())
}

func TestTransition_NotFound(t *testing.T) {
	c, _ := newTestClient(t)

	_, err := c.Close(context.Background(), "404")

	require.ErrorIs(t, err, ErrNotFound)
}

func TestTransition_Conflict(t *testing.T) {
	c, srv := newTestClient(t)
	seeded := srv.Seed(domain.Incident{Title: "CPU", Severity: domain.SeverityP2})

	_, err := c.Close(context.Background(), seeded.ID)

	require.ErrorIs(t, err, ErrConflict)
	stored, _ := srv.Incident(seeded.ID)
	assert.Equal(t, domain.IncidentStatusTriggered, stored.Status)
}

func TestTransition_BadRequestIsConflict(t *testing.T) {
	c, srv := newTestClient(t)
	seeded := srv.Seed(domain.Incident{Title: "CPU", Severity: domain.SeverityP2})
	srv.FailNext(http.StatusBadRequest, 1)

	_, err := c.Acknowledge(context.Background(), seeded.ID)

	require.ErrorIs(t, err, ErrConflict)
	assert.NotErrorIs(t, err, ErrServer)
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusBadRequest, apiErr.StatusCode)
}

func TestTransition_Escalate(t *testing.T) {
	c, srv := newTestClient(t)
	seeded := srv.Seed(domain.Incident{Title: "CPU", Severity: domain.SeverityP2})

	inc, err := c.Escalate(context.Background(), seeded.ID)

	require.NoError(t, err)
	assert.Equal(t, domain.IncidentStatusEscalated, inc.Status)
	assert.Equal(t, 1, inc.EscalationLevel)
}

func TestDo_HeadersAndBareBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "application/json", r.Header.Get("Accept"))
		assert.NotEmpty(t, r.Header.Get(RequestIDHeader))
		assert.Equal(t, "incident-console", r.Header.Get("User-Agent"))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[{"id": 7, "incidentNumber": "INC-7", "title": "bare", "severity": "P3", "status": "CLOSED"}]`))
	}))
	defer server.Close()

	c := New(Config{BaseURL: server.URL}, nil)
	incidents, err := c.ListIncidents(context.Background())

	require.NoError(t, err)
	require.Len(t, incidents, 1)
	assert.Equal(t, domain.IncidentID("7"), incidents[0].ID)
}

func TestDo_UnsuccessfulEnvelope(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"success": false, "message": "backend busy"}`))
	}))
	defer server.Close()

	c := New(Config{BaseURL: server.URL}, nil)
	_, err := c.GetIncident(context.Background(), "1")

	require.ErrorIs(t, err, ErrServer)
	assert.Contains(t, err.Error(), "backend busy")
}

func TestKindForStatus(t *testing.T) {
	tests := []struct {
		status int
		want   error
	}{
		{http.StatusUnauthorized, ErrAuth},
		{http.StatusForbidden, ErrAuth},
		{http.StatusNotFound, ErrNotFound},
		{http.StatusConflict, ErrConflict},
		{http.StatusBadRequest, ErrServer},
		{http.StatusBadGateway, ErrServer},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, kindForStatus(tt.status), "status %d", tt.status)
	}
}
