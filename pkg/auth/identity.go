// Package auth verifies identity provider tokens. Roles never come from the
// token; they are read from the role store on every request.
package auth

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Identity is who a verified token speaks for.
type Identity struct {
	UID           string
	EmailVerified bool
	TokenID       string
	ExpiresAt     time.Time
}

type idTokenClaims struct {
	UID           string `json:"uid,omitempty"`
	EmailVerified bool   `json:"email_verified"`
	jwt.RegisteredClaims
}

// uid prefers the explicit claim; providers that only set sub still work.
func (c *idTokenClaims) uid() string {
	if c.UID != "" {
		return c.UID
	}
	return c.Subject
}
