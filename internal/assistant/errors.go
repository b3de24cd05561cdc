package assistant

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	ErrAuthRequired      = errors.New("assistant: authentication required")
	ErrUsageLimit        = errors.New("assistant: usage limit reached")
	ErrTimeout           = errors.New("assistant: request timed out")
	ErrCLINotFound       = errors.New("assistant: q CLI not found")
	ErrEmptyResponse     = errors.New("assistant: empty response")
	ErrFormatting        = errors.New("assistant: response has formatting issues")
	ErrUnavailable       = errors.New("assistant: provider unavailable")
	ErrUnknownProvider   = errors.New("assistant: unknown provider")
	ErrInvalidTransition = errors.New("assistant: invalid session transition")
	ErrSessionNotFound   = errors.New("assistant: session not found")
	ErrNoCLIAccount      = errors.New("assistant: provider has no CLI login")
	ErrLogoutUnsupported = errors.New("assistant: q CLI has no logout command")
)

// CLIError carries the cleaned stderr of a failed q invocation.
type CLIError struct {
	Stderr string
	Err    error
}

func (e *CLIError) Error() string {
	if e.Stderr == "" {
		return fmt.Sprintf("assistant: q CLI failed: %v", e.Err)
	}
	return "assistant: q CLI failed: " + e.Stderr
}

func (e *CLIError) Unwrap() error { return e.Err }

// ProviderError is an HTTP-level failure from a hosted model API.
type ProviderError struct {
	Provider   string
	StatusCode int
	Err        error
}

func (e *ProviderError) Error() string {
	if e.StatusCode == 0 {
		return fmt.Sprintf("assistant: %s: %v", e.Provider, e.Err)
	}
	return fmt.Sprintf("assistant: %s: status %d: %v", e.Provider, e.StatusCode, e.Err)
}

// Unwrap exposes both the SDK error and the matching sentinel.
func (e *ProviderError) Unwrap() []error {
	switch {
	case e.StatusCode == http.StatusUnauthorized || e.StatusCode == http.StatusForbidden:
		return []error{e.Err, ErrAuthRequired}
	case e.StatusCode == http.StatusTooManyRequests:
		return []error{e.Err, ErrUsageLimit}
	}
	return []error{e.Err, ErrUnavailable}
}

// Retryable reports whether another attempt may succeed.
func (e *ProviderError) Retryable() bool {
	return e.StatusCode == 0 || e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500
}

// UserMessage renders an assistant error the way it is shown to TAM users.
func UserMessage(err error) string {
	var cliErr *CLIError
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrAuthRequired):
		return "Authentication required. Please login to Amazon Q CLI."
	case errors.Is(err, ErrUsageLimit):
		return "Amazon Q usage limit reached. Please try again later."
	case errors.Is(err, ErrTimeout):
		return "Request timed out. Please try again."
	case errors.Is(err, ErrCLINotFound):
		return "Amazon Q CLI not found. Please ensure it's installed and configured."
	case errors.Is(err, ErrEmptyResponse):
		return "Amazon Q returned an empty response"
	case errors.Is(err, ErrFormatting):
		return "Output formatting issue detected. Please check the log file for details."
	case errors.Is(err, ErrNoCLIAccount):
		return "Login and logout apply to the Amazon Q CLI provider only."
	case errors.Is(err, ErrLogoutUnsupported):
		return "Logout command not supported by this Q CLI version. You may need to logout manually."
	case errors.As(err, &cliErr):
		return "Amazon Q error: " + cliErr.Stderr
	}
	return err.Error()
}
