package auth

import "errors"

// Token validation failures. Callers map all of them to 401 except
// ErrInsufficientScope, which is a 403.
var (
	ErrInvalidToken      = errors.New("submission token is malformed or has a bad signature")
	ErrExpiredToken      = errors.New("submission token has expired")
	ErrTokenNotYetValid  = errors.New("submission token is not valid yet")
	ErrInsufficientScope = errors.New("submission token lacks the scope for this route")
)
