package llm

import (
	"errors"
	"fmt"
)

// ErrEmptyResponse is returned by backends when the remote API answered without text.
var ErrEmptyResponse = errors.New("model returned empty response")

// ConfigurationError is returned when a client cannot be built from its configuration.
type ConfigurationError struct {
	Reason string
}

func (e *ConfigurationError) Error() string {
	return "llm configuration: " + e.Reason
}

// AttemptError describes a single failed call to one candidate model.
type AttemptError struct {
	Model ModelID
	Index int
	Err   error
}

func (e *AttemptError) Error() string {
	return fmt.Sprintf("model %s (candidate %d): %v", e.Model, e.Index+1, e.Err)
}

func (e *AttemptError) Unwrap() error { return e.Err }

// ExhaustedError is returned when every candidate model failed.
// Last is the failure of the last attempted candidate.
type ExhaustedError struct {
	Capability Capability
	Attempts   int
	Last       *AttemptError
}

func (e *ExhaustedError) Error() string {
	if e.Last == nil {
		return fmt.Sprintf("all %s models failed", e.Capability)
	}
	return fmt.Sprintf("all %d %s models failed, last error: %v", e.Attempts, e.Capability, e.Last)
}

func (e *ExhaustedError) Unwrap() error {
	if e.Last == nil {
		return nil
	}
	return e.Last
}

// IsExhausted reports whether err is a fallback exhaustion error.
func IsExhausted(err error) bool {
	var exhausted *ExhaustedError
	return errors.As(err, &exhausted)
}
