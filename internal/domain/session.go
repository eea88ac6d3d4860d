package domain

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Role represents the role the incident service assigned to a user.
type Role string

// Identity describes the logged-in user.
type Identity struct {
	Username string `json:"username" yaml:"username"`
	Email    string `json:"email" yaml:"email"`
	Role     Role   `json:"role" yaml:"role"`
}

// Session is an authenticated context attached to outbound requests.
type Session struct {
	Token    string   `json:"-" yaml:"token"`
	Identity Identity `json:"identity" yaml:"identity"`
}

// ExpiresAt returns the expiry of a JWT token.
// The token is parsed without verification: the console never holds the signing key.
// The second result is false for opaque tokens and tokens without an exp claim.
func (s Session) ExpiresAt() (time.Time, bool) {
	if s.Token == "" {
		return time.Time{}, false
	}

	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(s.Token, claims); err != nil {
		return time.Time{}, false
	}

	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return time.Time{}, false
	}
	return exp.Time, true
}

// Expired reports whether the token is a JWT whose exp claim lies before now.
func (s Session) Expired(now time.Time) bool {
	exp, ok := s.ExpiresAt()
	return ok && !now.Before(exp)
}
