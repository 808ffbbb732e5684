package apperrors

import (
	"errors"
	"fmt"
)

// TransientError indicates a dependency failure that might be resolved by
// retrying (network, 5xx, 429).
type TransientError struct {
	Err error
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("transient: %v", e.Err)
}

func (e *TransientError) Unwrap() error {
	return e.Err
}

// NewTransient wraps the given error as a TransientError, adding a message.
func NewTransient(err error, message string, args ...interface{}) error {
	format := message + ": %w"
	allArgs := append(args, err)
	return &TransientError{Err: fmt.Errorf(format, allArgs...)}
}

// PermanentError indicates a dependency failure that retrying will not fix
// (4xx other than 429, signature mismatch, exhausted retry budget).
type PermanentError struct {
	Err error
}

func (e *PermanentError) Error() string {
	return fmt.Sprintf("permanent: %v", e.Err)
}

func (e *PermanentError) Unwrap() error {
	return e.Err
}

// NewPermanent wraps the given error as a PermanentError, adding a message.
func NewPermanent(err error, message string, args ...interface{}) error {
	format := message + ": %w"
	allArgs := append(args, err)
	return &PermanentError{Err: fmt.Errorf(format, allArgs...)}
}

// --- Standard Error Definitions ---

// Sentinel errors for common application-level conditions. Check with
// errors.Is; they may additionally be wrapped by TransientError or
// PermanentError depending on where they are handled.
var (
	// ErrNotFound indicates a requested entity was not found.
	ErrNotFound = errors.New("resource not found")
	// ErrValidation indicates malformed input from an external caller.
	ErrValidation = errors.New("validation failed")
	// ErrConstraintViolation indicates an invariant breach at the store boundary.
	ErrConstraintViolation = errors.New("constraint violation")
	// ErrUnauthorized indicates an authentication or authorization failure.
	ErrUnauthorized = errors.New("unauthorized access")
	// ErrDeliveryFailure indicates an outbound message could not be delivered
	// after the retry budget was exhausted.
	ErrDeliveryFailure = errors.New("message delivery failed")
	// ErrTimeout indicates an operation timed out.
	ErrTimeout = errors.New("operation timeout")
	// ErrInternal indicates an unexpected failure.
	ErrInternal = errors.New("internal error")
)

// --- Helper functions for checking ---

// IsTransient checks if the error is a TransientError or wraps one.
func IsTransient(err error) bool {
	var target *TransientError
	return errors.As(err, &target)
}

// IsPermanent checks if the error is a PermanentError or wraps one.
func IsPermanent(err error) bool {
	var target *PermanentError
	return errors.As(err, &target)
}

func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

func IsValidation(err error) bool {
	return errors.Is(err, ErrValidation)
}

func IsConstraintViolation(err error) bool {
	return errors.Is(err, ErrConstraintViolation)
}

func IsDeliveryFailure(err error) bool {
	return errors.Is(err, ErrDeliveryFailure)
}

// HTTPStatus maps an application error to the status code the REST facade
// should answer with.
func HTTPStatus(err error) int {
	switch {
	case errors.Is(err, ErrValidation):
		return 400
	case errors.Is(err, ErrUnauthorized):
		return 401
	case errors.Is(err, ErrNotFound):
		return 404
	case errors.Is(err, ErrConstraintViolation):
		return 409
	case IsTransient(err):
		return 502
	default:
		return 500
	}
}
