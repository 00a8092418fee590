package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrForecastUnavailable indicates the forecast provider could not answer.
	ErrForecastUnavailable = errors.New("forecast unavailable")
	// ErrDispatchFailed indicates a push notification was not delivered.
	ErrDispatchFailed = errors.New("dispatch failed")
	// ErrEntitlementLapsed marks a user without an active premium subscription.
	ErrEntitlementLapsed = errors.New("entitlement lapsed")
	// ErrTripNotFound is returned for unknown trip identifiers.
	ErrTripNotFound = errors.New("trip not found")
)

// ValidationError rejects bad registration input.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "validation: " + e.Reason
	}
	return fmt.Sprintf("validation: %s %s", e.Field, e.Reason)
}

// NewValidationError builds a ValidationError for field.
func NewValidationError(field, reason string) *ValidationError {
	return &ValidationError{Field: field, Reason: reason}
}

// IsValidation reports whether err carries a ValidationError.
func IsValidation(err error) bool {
	var v *ValidationError
	return errors.As(err, &v)
}
