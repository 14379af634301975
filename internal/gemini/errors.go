package gemini

import (
	"context"
	"errors"
	"strings"
)

// Sentinel errors for remote classification outcomes.
// Use errors.Is() to check for these in calling code.
var (
	// ErrContentFiltered indicates the model returned an empty or blocked
	// response. This is a property of the media, not a transient fault, and
	// must not be retried.
	ErrContentFiltered = errors.New("response blocked or empty")

	// ErrFileFailed indicates the Files API reported a terminal processing
	// failure for an uploaded artifact. Not retryable.
	ErrFileFailed = errors.New("remote file processing failed")

	// ErrPollTimeout indicates an uploaded file never left the processing
	// state within the poll budget.
	ErrPollTimeout = errors.New("remote file still processing after poll limit")
)

// transientPatterns identify errors worth retrying. The API surfaces these
// as message text rather than typed errors, so matching is by substring,
// case-insensitive.
var transientPatterns = []string{
	"rate limit",
	"quota",
	"resource exhausted",
	"429",
	"500",
	"503",
	"unavailable",
	"internal error",
	"timeout",
	"deadline exceeded",
	"connection reset",
	"broken pipe",
}

var rateLimitPatterns = []string{
	"rate limit",
	"quota",
	"resource exhausted",
	"429",
}

// IsTransient reports whether err is worth another attempt.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrContentFiltered) || errors.Is(err, ErrFileFailed) {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	return matchesAny(err, transientPatterns)
}

// IsRateLimited reports whether err looks like credential throttling, which
// additionally rotates the key ring before the next attempt.
func IsRateLimited(err error) bool {
	if err == nil {
		return false
	}
	return matchesAny(err, rateLimitPatterns)
}

func matchesAny(err error, patterns []string) bool {
	msg := strings.ToLower(err.Error())
	for _, p := range patterns {
		if strings.Contains(msg, p) {
			return true
		}
	}
	return false
}
