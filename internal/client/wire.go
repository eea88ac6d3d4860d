package client

import (
	"bytes"
	"encoding/json"
	"strings"

	"github.com/bissquit/incident-console/internal/domain"
)

// envelope is the response wrapper used by the incident service.
type envelope struct {
	Success *bool           `json:"success"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type loginResponse struct {
	Token    string `json:"token"`
	Username string `json:"username"`
	Email    string `json:"email"`
	Role     string `json:"role"`
}

type incidentPage struct {
	Content       []domain.Incident `json:"content"`
	Page          int               `json:"page"`
	Size          int               `json:"size"`
	TotalElements int64             `json:"totalElements"`
	TotalPages    int               `json:"totalPages"`
	Last          bool              `json:"last"`
}

// unwrapEnvelope returns the data member of an enveloped body.
// Bodies without an envelope are returned unchanged.
func unwrapEnvelope(body []byte) (json.RawMessage, *envelope) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return trimmed, nil
	}

	var env envelope
	if err := json.Unmarshal(trimmed, &env); err != nil {
		return trimmed, nil
	}
	if env.Success == nil && len(env.Data) == 0 {
		return trimmed, nil
	}
	return env.Data, &env
}

// errorMessage extracts a human readable message from an error body.
func errorMessage(body []byte) string {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return ""
	}

	var generic map[string]any
	if err := json.Unmarshal(trimmed, &generic); err == nil {
		if msg, ok := generic["message"].(string); ok && msg != "" {
			return msg
		}
		switch e := generic["error"].(type) {
		case string:
			return e
		case map[string]any:
			if msg, ok := e["message"].(string); ok {
				return msg
			}
		}
	}

	msg := strings.TrimSpace(string(trimmed))
	if len(msg) > 200 {
		msg = msg[:200] + "..."
	}
	return msg
}
