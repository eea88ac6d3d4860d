//go:build integration

package integration

import (
	"net/http"
	"testing"

	"github.com/bissquit/incident-console/internal/console"
	"github.com/bissquit/incident-console/internal/domain"
	"github.com/bissquit/incident-console/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConsole_IncidentLifecycle(t *testing.T) {
	stack := newConsoleStack(t)
	inc := stack.upstream.Seed(domain.Incident{Title: "Primary DB unreachable", Severity: domain.SeverityP1})
	stack.client.LoginAsOperator(t)
	id := inc.ID.String()

	resp, err := stack.client.GET("/api/v1/incidents")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var view console.IncidentsResponse
	testutil.DecodeData(t, resp, &view)
	require.Len(t, view.Incidents, 1)
	assert.Equal(t, domain.IncidentStatusTriggered, view.Incidents[0].Status)

	steps := []struct {
		action     string
		resolution string
		want       domain.IncidentStatus
	}{
		{"acknowledge", "", domain.IncidentStatusAcknowledged},
		{"resolve", "failed over to replica", domain.IncidentStatusResolved},
		{"close", "", domain.IncidentStatusClosed},
	}
	for _, step := range steps {
		resp, err := stack.client.Transition(id, step.action, step.resolution)
		require.NoError(t, err)
		require.Equal(t, http.StatusOK, resp.StatusCode, step.action)
		testutil.DecodeData(t, resp, &view)
		assert.Equal(t, step.want, view.Incidents[0].Status)
	}

	stored, _ := stack.upstream.Incident(inc.ID)
	assert.Equal(t, domain.IncidentStatusClosed, stored.Status)
	assert.Equal(t, "failed over to replica", stored.Resolution)

	// CLOSED offers nothing; the console refuses without calling the service.
	before := stack.upstream.RequestCount()
	resp, err = stack.client.Transition(id, "escalate", "")
	require.NoError(t, err)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	_ = resp.Body.Close()
	assert.Equal(t, before, stack.upstream.RequestCount())
}

func TestConsole_SessionLifecycle(t *testing.T) {
	stack := newConsoleStack(t)
	stack.client.LoginAsOperator(t)

	resp, err := stack.client.GET("/api/v1/auth/session")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var sess console.SessionResponse
	testutil.DecodeData(t, resp, &sess)
	assert.Equal(t, testutil.OperatorUsername, sess.Username)

	stack.client.Logout(t)

	resp, err = stack.client.GET("/api/v1/auth/session")
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	_ = resp.Body.Close()
}

func TestConsole_InvalidLoginSendsNoCredentials(t *testing.T) {
	stack := newConsoleStack(t)

	resp, err := stack.client.POST("/api/v1/auth/login", map[string]string{
		"username": testutil.OperatorUsername,
		"password": "nope",
	})
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	_ = resp.Body.Close()

	stack.upstream.ResetRequests()
	require.Error(t, stack.app.Controller().Refresh(t.Context()))

	requests := stack.upstream.Requests()
	require.Len(t, requests, 1)
	assert.Empty(t, requests[0].Authorization)
}

func TestConsole_CreateAndStats(t *testing.T) {
	stack := newConsoleStack(t)
	stack.client.LoginAsOperator(t)

	resp, err := stack.client.POST("/api/v1/incidents", map[string]string{
		"title":    "Search latency",
		"severity": "P2",
	})
	require.NoError(t, err)
	require.Equal(t, http.StatusCreated, resp.StatusCode, testutil.ReadBody(t, resp))
	_ = resp.Body.Close()

	resp, err = stack.client.GET("/api/v1/stats")
	require.NoError(t, err)
	var stats domain.Stats
	testutil.DecodeData(t, resp, &stats)
	assert.Equal(t, 1, stats.Total)
	assert.Equal(t, 1, stats.Active)
	assert.Equal(t, 1, stats.P2)
}

func TestConsole_Readiness(t *testing.T) {
	stack := newConsoleStack(t)

	resp, err := stack.client.GET("/readyz")
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	_ = resp.Body.Close()
}
