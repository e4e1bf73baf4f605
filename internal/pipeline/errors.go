package pipeline

import (
	"errors"
	"fmt"

	"leasecheck/internal/access"
)

var (
	// ErrNoPages is returned when an analysis is requested without files.
	ErrNoPages = errors.New("no pages provided")

	// ErrTooManyPages is returned when more than the page limit is supplied.
	ErrTooManyPages = errors.New("too many pages")

	// ErrUnsupportedFormat is returned for files other than PDF, JPEG or PNG.
	ErrUnsupportedFormat = errors.New("unsupported file format")

	// ErrNoText is returned when OCR found no text on any page.
	ErrNoText = errors.New("no text could be extracted from the document")

	// ErrRecordNotFound is returned for an unknown analysis id.
	ErrRecordNotFound = errors.New("analysis not found")
)

// Denial is returned when the access gate rejects a request. It is a normal
// outcome, not a failure.
type Denial struct {
	Reason  access.Reason
	Message string
}

func (d *Denial) Error() string {
	return fmt.Sprintf("access denied (%s): %s", d.Reason, d.Message)
}

// PipelineError wraps errors with the failing operation.
type PipelineError struct {
	Op      string
	Err     error
	Details string
}

func (e *PipelineError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("pipeline: %s failed: %s: %v", e.Op, e.Details, e.Err)
	}
	return fmt.Sprintf("pipeline: %s failed: %v", e.Op, e.Err)
}

func (e *PipelineError) Unwrap() error {
	return e.Err
}

func (e *PipelineError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// WrapPipelineError wraps err unless it is already a PipelineError.
func WrapPipelineError(op string, err error, details string) error {
	if err == nil {
		return nil
	}
	var pipeErr *PipelineError
	if errors.As(err, &pipeErr) {
		return err
	}
	return &PipelineError{Op: op, Err: err, Details: details}
}
