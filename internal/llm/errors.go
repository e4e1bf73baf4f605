package llm

import (
	"errors"
	"fmt"
)

var (
	// ErrMissingCredentials is returned when no API key is configured.
	ErrMissingCredentials = errors.New("missing LLM credentials: set DEEPSEEK_API_KEY")

	// ErrEmptyResponse is returned when the backend answers without any choices
	// or with empty content.
	ErrEmptyResponse = errors.New("empty response from LLM backend")

	// ErrRequestFailed is returned when the chat completion call itself fails.
	ErrRequestFailed = errors.New("LLM request failed")
)

// LLMError wraps errors with the failing operation.
type LLMError struct {
	Op      string
	Err     error
	Details string
}

func (e *LLMError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("llm: %s failed: %s: %v", e.Op, e.Details, e.Err)
	}
	return fmt.Sprintf("llm: %s failed: %v", e.Op, e.Err)
}

func (e *LLMError) Unwrap() error {
	return e.Err
}

func (e *LLMError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// WrapLLMError wraps err as an LLMError unless it already is one.
func WrapLLMError(op string, err error, details string) error {
	if err == nil {
		return nil
	}
	var llmErr *LLMError
	if errors.As(err, &llmErr) {
		return err
	}
	return &LLMError{Op: op, Err: err, Details: details}
}
