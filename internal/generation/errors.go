package generation

import (
	"errors"
	"fmt"
	"time"
)

// Common errors returned by generators.
var (
	// ErrGenerationFailed is returned when generation fails for any general reason.
	ErrGenerationFailed = errors.New("image generation failed")

	// ErrInvalidResponse is returned when the provider response carries no usable image.
	ErrInvalidResponse = errors.New("invalid response from image model")

	// ErrContentBlocked is returned when the provider rejects the request on safety grounds.
	ErrContentBlocked = errors.New("content blocked by image model safety filters")

	// ErrTransientFailure is returned for temporary errors that might resolve on retry.
	ErrTransientFailure = errors.New("transient error during image generation")

	// ErrInvalidConfig is returned when the generator configuration is invalid.
	ErrInvalidConfig = errors.New("invalid generator configuration")

	// ErrInvalidRequest is returned when the task payload cannot form a request.
	ErrInvalidRequest = errors.New("invalid generation request")
)

// RateLimitError reports that the provider refused the call because its
// quota was exhausted. RetryAfter is zero when the provider gave no hint.
type RateLimitError struct {
	RetryAfter time.Duration
	Err        error
}

// Error implements the error interface.
func (e *RateLimitError) Error() string {
	msg := "image provider rate limit exceeded"
	if e.RetryAfter > 0 {
		msg = fmt.Sprintf("%s (retry after %s)", msg, e.RetryAfter)
	}
	if e.Err != nil {
		return msg + ": " + e.Err.Error()
	}
	return msg
}

// Unwrap returns the provider error.
func (e *RateLimitError) Unwrap() error {
	return e.Err
}

// AsRateLimit returns the rate-limit error in err's chain, if any.
func AsRateLimit(err error) (*RateLimitError, bool) {
	var rl *RateLimitError
	if errors.As(err, &rl) {
		return rl, true
	}
	return nil, false
}

// IsRateLimit reports whether err is a provider rate-limit rejection.
func IsRateLimit(err error) bool {
	_, ok := AsRateLimit(err)
	return ok
}
