package llm

import (
	"errors"
	"fmt"
	"net/http"
)

// ConfigurationError reports an unsupported provider or missing credential.
// It is fatal and never retried.
type ConfigurationError struct {
	Provider string
	Reason   string
}

func (e *ConfigurationError) Error() string {
	if e.Provider == "" {
		return "llm configuration: " + e.Reason
	}
	return fmt.Sprintf("llm configuration (%s): %s", e.Provider, e.Reason)
}

// TransientError wraps a network or model-service failure that may succeed on retry
type TransientError struct {
	StatusCode int
	Err        error
}

func (e *TransientError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("transient LLM failure (HTTP %d): %v", e.StatusCode, e.Err)
	}
	return fmt.Sprintf("transient LLM failure: %v", e.Err)
}

func (e *TransientError) Unwrap() error { return e.Err }

// IsTransient reports whether err is worth retrying
func IsTransient(err error) bool {
	var t *TransientError
	return errors.As(err, &t)
}

// IsConfigurationError reports whether err is a configuration failure
func IsConfigurationError(err error) bool {
	var c *ConfigurationError
	return errors.As(err, &c)
}

// classifyStatus wraps err as transient for throttling and server-side statuses
func classifyStatus(status int, err error) error {
	if status == http.StatusTooManyRequests || status == http.StatusRequestTimeout || status >= 500 {
		return &TransientError{StatusCode: status, Err: err}
	}
	if status == http.StatusUnauthorized || status == http.StatusForbidden {
		return fmt.Errorf("authentication rejected (HTTP %d): %w", status, err)
	}
	return err
}
