package gemini

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/phrazzld/adforge/internal/generation"
	"google.golang.org/genai"
)

const retryInfoType = "type.googleapis.com/google.rpc.RetryInfo"

// classifyError maps an SDK error onto the generation error vocabulary and
// reports whether retrying the same call may help.
func classifyError(err error) (error, bool) {
	var apiErr genai.APIError
	if !errors.As(err, &apiErr) {
		// Transport level failure; the request may never have arrived.
		return fmt.Errorf("%w: %v", generation.ErrTransientFailure, err), true
	}

	switch {
	case apiErr.Code == 429:
		return &generation.RateLimitError{RetryAfter: retryDelay(apiErr), Err: apiErr}, false
	case apiErr.Code >= 500:
		return fmt.Errorf("%w: %v", generation.ErrTransientFailure, apiErr), true
	case apiErr.Code == 400 && strings.Contains(strings.ToLower(apiErr.Message), "safety"):
		return fmt.Errorf("%w: %s", generation.ErrContentBlocked, apiErr.Message), false
	default:
		return fmt.Errorf("%w: %v", generation.ErrGenerationFailed, apiErr), false
	}
}

// retryDelay extracts google.rpc.RetryInfo.retryDelay from the error
// details. It returns zero when the provider sent no hint.
func retryDelay(apiErr genai.APIError) time.Duration {
	for _, detail := range apiErr.Details {
		if t, _ := detail["@type"].(string); t != retryInfoType {
			continue
		}
		raw, _ := detail["retryDelay"].(string)
		if d, err := time.ParseDuration(raw); err == nil && d > 0 {
			return d
		}
	}
	return 0
}
