package client

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/bissquit/incident-console/internal/domain"
)

// Login exchanges credentials for a session. It never sends a bearer token.
// Persisting the returned session is the caller's responsibility.
func (c *Client) Login(ctx context.Context, username, password string) (*domain.Session, error) {
	const op = "login"

	if strings.TrimSpace(username) == "" || password == "" {
		return nil, validationError(op, "username and password are required")
	}

	var resp loginResponse
	err := c.do(ctx, request{
		op:     op,
		method: http.MethodPost,
		path:   "/auth/login",
		body:   loginRequest{Username: username, Password: password},
	}, &resp)
	if err != nil {
		return nil, err
	}

	if resp.Token == "" {
		return nil, fmt.Errorf("%s: %w: response carries no token", op, ErrAuth)
	}

	identityName := resp.Username
	if identityName == "" {
		identityName = username
	}

	return &domain.Session{
		Token: resp.Token,
		Identity: domain.Identity{
			Username: identityName,
			Email:    resp.Email,
			Role:     domain.Role(resp.Role),
		},
	}, nil
}
