// Package testutil provides testing utilities: a fake incident service,
// contract validation, a console API client and containers.
package testutil

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"testing"
)

// ConsoleClient is an HTTP client for testing the console API.
type ConsoleClient struct {
	BaseURL    string
	HTTPClient *http.Client
}

// NewConsoleClient creates a client for the console served at baseURL.
func NewConsoleClient(baseURL string) *ConsoleClient {
	return &ConsoleClient{
		BaseURL:    baseURL,
		HTTPClient: &http.Client{},
	}
}

// LoginAs logs the console in with the given credentials and fails the test
// unless the console accepts them.
func (c *ConsoleClient) LoginAs(t *testing.T, username, password string) {
	t.Helper()

	resp, err := c.POST("/api/v1/auth/login", map[string]string{
		"username": username,
		"password": password,
	})
	if err != nil {
		t.Fatalf("login request failed: %v", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		t.Fatalf("login failed: status=%d body=%s", resp.StatusCode, body)
	}
}

// LoginAsOperator logs in with the fake incident service's operator account.
func (c *ConsoleClient) LoginAsOperator(t *testing.T) {
	t.Helper()
	c.LoginAs(t, OperatorUsername, OperatorPassword)
}

// Logout ends the console session.
func (c *ConsoleClient) Logout(t *testing.T) {
	t.Helper()

	resp, err := c.POST("/api/v1/auth/logout", nil)
	if err != nil {
		t.Fatalf("logout request failed: %v", err)
	}
	_ = resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("logout failed: status=%d", resp.StatusCode)
	}
}

// Transition requests a lifecycle action on an incident.
func (c *ConsoleClient) Transition(id, action, resolution string) (*http.Response, error) {
	var body any
	if resolution != "" {
		body = map[string]string{"resolution": resolution}
	}
	return c.POST(fmt.Sprintf("/api/v1/incidents/%s/%s", id, action), body)
}

// GET performs a GET request.
func (c *ConsoleClient) GET(path string) (*http.Response, error) {
	return c.do(http.MethodGet, path, nil)
}

// POST performs a POST request with JSON body.
func (c *ConsoleClient) POST(path string, body any) (*http.Response, error) {
	return c.do(http.MethodPost, path, body)
}

func (c *ConsoleClient) do(method, path string, body any) (*http.Response, error) {
	var bodyReader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshal body: %w", err)
		}
		bodyReader = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, c.BaseURL+path, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	return c.HTTPClient.Do(req)
}

// DecodeData decodes the {"data": ...} envelope of resp into v.
func DecodeData(t *testing.T, resp *http.Response, v any) {
	t.Helper()
	defer func() { _ = resp.Body.Close() }()

	envelope := struct {
		Data any `json:"data"`
	}{Data: v}
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		t.Fatalf("decode response: %v", err)
	}
}

// ReadBody reads and returns response body as string.
func ReadBody(t *testing.T, resp *http.Response) string {
	t.Helper()
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return string(body)
}
