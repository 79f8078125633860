// Package auth issues and validates the service tokens that guard the
// submission API.
package auth

import (
	"context"
	"slices"
	"time"
)

// Scopes carried by service tokens.
const (
	ScopeJobsWrite = "jobs:write"
	ScopeJobsRead  = "jobs:read"
	ScopeOpsRead   = "ops:read"
)

// JWTService defines operations for managing service tokens.
type JWTService interface {
	// GenerateToken creates a signed token for subject with the given scopes.
	GenerateToken(ctx context.Context, subject string, scopes ...string) (string, error)

	// ValidateToken verifies the signature and time claims of a token and
	// returns its claims.
	ValidateToken(ctx context.Context, tokenString string) (*Claims, error)
}

// Claims are the validated contents of a service token.
type Claims struct {
	// Subject names the calling producer, e.g. "campaign-builder".
	Subject   string    `json:"sub"`
	Scopes    []string  `json:"scopes"`
	IssuedAt  time.Time `json:"iat"`
	ExpiresAt time.Time `json:"exp"`
	ID        string    `json:"jti"`
}

// HasScope reports whether the token grants scope.
func (c *Claims) HasScope(scope string) bool {
	return c != nil && slices.Contains(c.Scopes, scope)
}
