package llm

import (
	"errors"
	"fmt"
	"strings"
)

// ErrServiceUnavailable is returned when no provider credential is
// configured; no network I/O is attempted in that state.
var ErrServiceUnavailable = errors.New("model service is not available: no API key configured")

// ErrAuthentication marks provider failures that look credential-related.
var ErrAuthentication = errors.New("invalid or missing API key")

// ErrRateLimited marks provider failures that look rate-limit-related.
var ErrRateLimited = errors.New("rate limit exceeded")

// UpstreamError wraps any other provider failure, preserving the original
// message.
type UpstreamError struct {
	Err error
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("upstream model error: %v", e.Err)
}

func (e *UpstreamError) Unwrap() error { return e.Err }

// classifyError translates a raw provider error into the gateway taxonomy
// by inspecting its text, the same way the upstream API surfaces these
// conditions in error bodies.
func classifyError(err error) error {
	if err == nil {
		return nil
	}
	text := strings.ToLower(err.Error())
	switch {
	case strings.Contains(text, "api_key") || strings.Contains(text, "api key") || strings.Contains(text, "authentication"):
		return fmt.Errorf("%w: %v", ErrAuthentication, err)
	case strings.Contains(text, "rate"):
		return fmt.Errorf("%w: %v", ErrRateLimited, err)
	default:
		return &UpstreamError{Err: err}
	}
}
