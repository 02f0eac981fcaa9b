package services

import (
	"errors"
	"fmt"
)

// Kinds of request-level failures. Each maps to one HTTP status in the
// controllers.
var (
	ErrMalformedRequest        = errors.New("malformed request")
	ErrMissingRequiredField    = errors.New("missing required field")
	ErrAmbiguousField          = errors.New("ambiguous field")
	ErrValidation              = errors.New("validation error")
	ErrForbidden               = errors.New("forbidden")
	ErrForbiddenCrossReference = errors.New("deposit does not belong to journal")
	ErrDuplicateDeposit        = errors.New("duplicate deposit")
	ErrNotFound                = errors.New("not found")
	ErrInvalidTransition       = errors.New("invalid state transition")
)

// SwordError carries a taxonomy kind plus the human readable message returned
// to the client.
type SwordError struct {
	Kind    error
	Message string
}

func (e *SwordError) Error() string {
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *SwordError) Unwrap() error {
	return e.Kind
}

func newError(kind error, format string, args ...interface{}) *SwordError {
	return &SwordError{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// ErrorMessage returns the client-facing message for err.
func ErrorMessage(err error) string {
	var se *SwordError
	if errors.As(err, &se) {
		return se.Message
	}
	return err.Error()
}
