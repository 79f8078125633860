package auth

import (
	"context"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/phrazzld/adforge/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-secret-that-is-long-enough-for-testing"

var fixedTime = time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func TestGenerateAndValidateToken(t *testing.T) {
	t.Parallel()
	svc := newHMACJWTService(testSecret, time.Hour, fixedClock(fixedTime))
	ctx := context.Background()

	token, err := svc.GenerateToken(ctx, "campaign-builder", ScopeJobsWrite, ScopeJobsRead)
	require.NoError(t, err)
	require.NotEmpty(t, token)

	claims, err := svc.ValidateToken(ctx, token)
	require.NoError(t, err)
	assert.Equal(t, "campaign-builder", claims.Subject)
	assert.Equal(t, []string{ScopeJobsWrite, ScopeJobsRead}, claims.Scopes)
	assert.True(t, claims.HasScope(ScopeJobsRead))
	assert.False(t, claims.HasScope(ScopeOpsRead))
	assert.Equal(t, fixedTime.Unix(), claims.IssuedAt.Unix())
	assert.Equal(t, fixedTime.Add(time.Hour).Unix(), claims.ExpiresAt.Unix())
	assert.NotEmpty(t, claims.ID)
}

func TestGenerateToken_RequiresSubject(t *testing.T) {
	t.Parallel()
	svc := newHMACJWTService(testSecret, time.Hour, fixedClock(fixedTime))

	_, err := svc.GenerateToken(context.Background(), "  ")
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestValidateToken_Failures(t *testing.T) {
	t.Parallel()
	issuing := newHMACJWTService(testSecret, time.Hour, fixedClock(fixedTime))
	token, err := issuing.GenerateToken(context.Background(), "producer", ScopeJobsWrite)
	require.NoError(t, err)

	noneToken, err := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.RegisteredClaims{
		Issuer:  issuer,
		Subject: "producer",
	}).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	foreignIssuer, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Issuer:    "someone-else",
		Subject:   "producer",
		ExpiresAt: jwt.NewNumericDate(fixedTime.Add(time.Hour)),
	}).SignedString([]byte(testSecret))
	require.NoError(t, err)

	tests := []struct {
		name    string
		svc     *hmacJWTService
		token   string
		wantErr error
	}{
		{
			name:    "expired",
			svc:     newHMACJWTService(testSecret, time.Hour, fixedClock(fixedTime.Add(2*time.Hour))),
			token:   token,
			wantErr: ErrExpiredToken,
		},
		{
			name:    "not yet valid",
			svc:     newHMACJWTService(testSecret, time.Hour, fixedClock(fixedTime.Add(-10*time.Minute))),
			token:   token,
			wantErr: ErrTokenNotYetValid,
		},
		{
			name:    "wrong secret",
			svc:     newHMACJWTService("another-secret-that-is-long-enough-too", time.Hour, fixedClock(fixedTime)),
			token:   token,
			wantErr: ErrInvalidToken,
		},
		{
			name:    "malformed",
			svc:     issuing,
			token:   "not.a.token",
			wantErr: ErrInvalidToken,
		},
		{
			name:    "unsigned",
			svc:     issuing,
			token:   noneToken,
			wantErr: ErrInvalidToken,
		},
		{
			name:    "foreign issuer",
			svc:     issuing,
			token:   foreignIssuer,
			wantErr: ErrInvalidToken,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := tt.svc.ValidateToken(context.Background(), tt.token)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestNewJWTService_Validation(t *testing.T) {
	t.Parallel()

	_, err := NewJWTService(config.AuthConfig{JWTSecret: "short", TokenLifetimeMinutes: 10})
	assert.Error(t, err)

	_, err = NewJWTService(config.AuthConfig{JWTSecret: testSecret})
	assert.Error(t, err)

	svc, err := NewJWTService(config.AuthConfig{JWTSecret: testSecret, TokenLifetimeMinutes: 10})
	require.NoError(t, err)
	assert.NotNil(t, svc)
}

func TestClaims_HasScopeOnNil(t *testing.T) {
	t.Parallel()
	var c *Claims
	assert.False(t, c.HasScope(ScopeJobsRead))
}
