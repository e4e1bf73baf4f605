package billing

import (
	"errors"
	"fmt"
)

var (
	// ErrNotConfigured is returned when the payment provider settings are incomplete.
	ErrNotConfigured = errors.New("payment system is not configured")

	// ErrMissingSignature is returned for webhooks without a signature header.
	ErrMissingSignature = errors.New("missing signature")

	// ErrInvalidSignature is returned when the webhook signature does not verify.
	ErrInvalidSignature = errors.New("invalid signature")

	// ErrInvalidEvent is returned when the webhook body is not a valid event envelope.
	ErrInvalidEvent = errors.New("invalid webhook event")

	// ErrCheckoutFailed is returned when the provider rejects a checkout request.
	ErrCheckoutFailed = errors.New("failed to create checkout")
)

// BillingError wraps errors with the failing operation.
type BillingError struct {
	Op      string
	Err     error
	Details string
}

func (e *BillingError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("billing: %s failed: %s: %v", e.Op, e.Details, e.Err)
	}
	return fmt.Sprintf("billing: %s failed: %v", e.Op, e.Err)
}

func (e *BillingError) Unwrap() error {
	return e.Err
}

func (e *BillingError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// WrapBillingError wraps err unless it is already a BillingError.
func WrapBillingError(op string, err error, details string) error {
	if err == nil {
		return nil
	}
	var billingErr *BillingError
	if errors.As(err, &billingErr) {
		return err
	}
	return &BillingError{Op: op, Err: err, Details: details}
}
