package main

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/phrazzld/adforge/internal/config"
	"github.com/phrazzld/adforge/internal/service/auth"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-secret-that-is-long-enough-for-testing"

func env(key string) string {
	if key == "ADFORGE_AUTH_JWT_SECRET" {
		return testSecret
	}
	return ""
}

func TestRun_IssuesScopedToken(t *testing.T) {
	t.Parallel()
	var out bytes.Buffer
	require.NoError(t, run([]string{"-subject", "ops-dashboard", "-scopes", "ops:read, jobs:read"}, env, &out))

	svc, err := auth.NewJWTService(config.AuthConfig{JWTSecret: testSecret, TokenLifetimeMinutes: 1})
	require.NoError(t, err)
	claims, err := svc.ValidateToken(context.Background(), strings.TrimSpace(out.String()))
	require.NoError(t, err)

	assert.Equal(t, "ops-dashboard", claims.Subject)
	assert.True(t, claims.HasScope(auth.ScopeOpsRead))
	assert.True(t, claims.HasScope(auth.ScopeJobsRead))
	assert.False(t, claims.HasScope(auth.ScopeJobsWrite))
}

func TestRun_Errors(t *testing.T) {
	t.Parallel()
	var out bytes.Buffer

	assert.ErrorContains(t, run(nil, env, &out), "-subject is required")
	assert.Error(t, run([]string{"-subject", "x"}, func(string) string { return "short" }, &out))
	assert.Empty(t, out.String())
}
