package checkout

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidIdentifier signals an id that is not a well-formed UUID.
	ErrInvalidIdentifier = errors.New("invalid identifier")

	// ErrProductNotFound signals a cart line referencing an unknown product.
	ErrProductNotFound = errors.New("product not found")

	// ErrUserNotFound signals an unknown customer id.
	ErrUserNotFound = errors.New("user not found")

	// ErrOrderNotFound signals an unknown durable order id.
	ErrOrderNotFound = errors.New("order not found")

	// ErrEmptyCart signals a checkout request with no cart lines.
	ErrEmptyCart = errors.New("cart must contain at least one line")

	// ErrDuplicateCorrelation signals a pending order already staged for a correlation id.
	ErrDuplicateCorrelation = errors.New("pending order already staged for correlation id")
)

// ValidationError reports a rejected input field. Requests failing validation
// are rejected before any gateway or store side effect.
type ValidationError struct {
	Field string
	Err   error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %v", e.Field, e.Err)
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

func newValidationError(field string, err error) *ValidationError {
	return &ValidationError{Field: field, Err: err}
}
