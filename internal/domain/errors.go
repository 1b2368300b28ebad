package domain

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound            = errors.New("not found")
	ErrPoolExhausted       = errors.New("seat pool exhausted")
	ErrPoolArchived        = errors.New("seat pool archived")
	ErrConcurrencyTimeout  = errors.New("seat pool busy, retry later")
	ErrInvalidAge          = errors.New("invalid age")
	ErrInvalidCoach        = errors.New("invalid coach")
	ErrInvalidQuota        = errors.New("invalid quota")
	ErrInvalidDistance     = errors.New("invalid distance")
	ErrEmptyPassengerList  = errors.New("empty passenger list")
	ErrTooManyPassengers   = errors.New("too many passengers")
	ErrIdentityNotVerified = errors.New("identity not verified")
	ErrInvalidTransition   = errors.New("invalid booking state transition")
	ErrDuplicateSubmission = errors.New("duplicate booking submission")
	ErrDuplicatePNR        = errors.New("duplicate pnr")
)

type ValidationError struct {
	Field string
	Msg   string
	Err   error
}

func (e ValidationError) Error() string {
	switch {
	case e.Field != "" && e.Msg != "":
		return fmt.Sprintf("%s: %s", e.Field, e.Msg)
	case e.Msg != "":
		return e.Msg
	case e.Err != nil && e.Field != "":
		return fmt.Sprintf("%s: %v", e.Field, e.Err)
	case e.Err != nil:
		return e.Err.Error()
	case e.Field != "":
		return fmt.Sprintf("invalid %s", e.Field)
	default:
		return "validation error"
	}
}

func (e ValidationError) Unwrap() error { return e.Err }

// Invalid builds a ValidationError that still matches the given sentinel with errors.Is.
func Invalid(field string, sentinel error, format string, args ...any) error {
	return ValidationError{Field: field, Msg: fmt.Sprintf(format, args...), Err: sentinel}
}

func IsValidation(err error) bool {
	var v ValidationError
	return errors.As(err, &v)
}

func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
