package access

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidUser is returned when a user id is empty.
	ErrInvalidUser = errors.New("user id is required")

	// ErrInvalidPlan is returned when a grant names no usable plan.
	ErrInvalidPlan = errors.New("invalid plan")

	// ErrStore is returned when a backing store fails.
	ErrStore = errors.New("access store failure")

	// ErrInvalidMode is returned for an unknown admission mode.
	ErrInvalidMode = errors.New("invalid admission mode")
)

// AccessError wraps errors with the failing operation.
type AccessError struct {
	Op      string
	Err     error
	Details string
}

func (e *AccessError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("access: %s failed: %s: %v", e.Op, e.Details, e.Err)
	}
	return fmt.Sprintf("access: %s failed: %v", e.Op, e.Err)
}

func (e *AccessError) Unwrap() error {
	return e.Err
}

func (e *AccessError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// WrapAccessError wraps err as an AccessError unless it already is one.
func WrapAccessError(op string, err error, details string) error {
	if err == nil {
		return nil
	}
	var accessErr *AccessError
	if errors.As(err, &accessErr) {
		return err
	}
	return &AccessError{Op: op, Err: err, Details: details}
}

// storeError marks a backend failure so callers can match ErrStore while the
// driver error stays in the chain.
func storeError(op string, err error) error {
	if err == nil {
		return nil
	}
	return &AccessError{Op: op, Err: fmt.Errorf("%w: %w", ErrStore, err)}
}
