package service

import (
	"errors"
	"fmt"

	"acro-shop/store"
)

// Store errors pass through unchanged so callers can match either name.
var (
	ErrNotFound           = store.ErrNotFound
	ErrConflict           = store.ErrConflict
	ErrInsufficientStock  = store.ErrInsufficientStock
	ErrEmptyCart          = store.ErrEmptyCart
	ErrProductUnavailable = store.ErrProductUnavailable
)

var (
	ErrInvalidInput      = errors.New("invalid input")
	ErrUnauthorized      = errors.New("unauthorized")
	ErrForbidden         = errors.New("forbidden")
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrAlreadyInvoiced   = errors.New("order already invoiced")
	ErrAlreadyPaid       = errors.New("order already paid")
	ErrPaymentStarted    = errors.New("payment already started for this order")
	ErrNotConfigured     = errors.New("integration not configured")
)

// GatewayError wraps a failed call to PayU, Fakturownia or Cloudinary.
type GatewayError struct {
	Gateway string
	Err     error
}

func (e *GatewayError) Error() string {
	return fmt.Sprintf("%s: %v", e.Gateway, e.Err)
}

func (e *GatewayError) Unwrap() error { return e.Err }

func invalid(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrInvalidInput, fmt.Sprintf(format, args...))
}
