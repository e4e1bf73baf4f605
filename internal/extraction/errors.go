package extraction

import (
	"errors"
	"fmt"
)

// Causes recorded on a degraded Outcome. None of them is ever returned by Extract.
var (
	// ErrEmptyText means the document text was empty or whitespace.
	ErrEmptyText = errors.New("document text is empty")

	// ErrNotConfigured means no LLM backend is configured.
	ErrNotConfigured = errors.New("LLM backend is not configured")

	// ErrTransport means the LLM call failed or timed out.
	ErrTransport = errors.New("LLM call failed")

	// ErrUnparseable means no JSON object could be recovered from the model output.
	ErrUnparseable = errors.New("LLM response contained no JSON object")
)

// ExtractionError wraps a degradation cause with the stage it happened in.
type ExtractionError struct {
	Op      string
	Err     error
	Details string
}

func (e *ExtractionError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("extraction: %s: %s: %v", e.Op, e.Details, e.Err)
	}
	return fmt.Sprintf("extraction: %s: %v", e.Op, e.Err)
}

func (e *ExtractionError) Unwrap() error {
	return e.Err
}

func (e *ExtractionError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

func wrapError(op string, err error, details string) error {
	return &ExtractionError{Op: op, Err: err, Details: details}
}
