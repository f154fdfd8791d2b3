// Package apperr holds the error taxonomy shared by the scheduling, payment
// and session components. Every business-rule rejection is an *Error whose
// Kind can be matched with errors.Is against the exported sentinels.
package apperr

import (
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// Kind identifies a class of failure.
type Kind string

const (
	KindValidation     Kind = "validation_error"
	KindNotFound       Kind = "not_found"
	KindInvalidState   Kind = "invalid_state"
	KindInvalidSlot    Kind = "invalid_slot"
	KindConflict       Kind = "conflict"
	KindAmountMismatch Kind = "amount_mismatch"
	KindAlreadyPaid    Kind = "already_paid"
	KindNotConfirmed   Kind = "not_confirmed"
	KindTooEarly       Kind = "too_early"
	KindTooLate        Kind = "too_late"
	KindForbidden      Kind = "forbidden"
	KindUnauthorized   Kind = "unauthorized"
	KindBusy           Kind = "busy"
	KindDependency     Kind = "dependency_error"
)

// Error carries a Kind plus enough context to render a user-facing message.
type Error struct {
	Kind          Kind
	Message       string
	AppointmentID uuid.UUID
	Status        string
	Err           error
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(string(e.Kind))
	if e.Message != "" {
		b.WriteString(": ")
		b.WriteString(e.Message)
	}
	if e.AppointmentID != uuid.Nil {
		fmt.Fprintf(&b, " (appointment=%s", e.AppointmentID)
		if e.Status != "" {
			fmt.Fprintf(&b, " status=%s", e.Status)
		}
		b.WriteString(")")
	}
	if e.Err != nil {
		fmt.Fprintf(&b, ": %v", e.Err)
	}
	return b.String()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches any *Error of the same Kind, so errors.Is(err, ErrConflict)
// works regardless of message or context.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// WithAppointment returns a copy of e annotated with the appointment context.
func (e *Error) WithAppointment(id uuid.UUID, status string) *Error {
	cp := *e
	cp.AppointmentID = id
	cp.Status = status
	return &cp
}

var (
	ErrValidation     = &Error{Kind: KindValidation}
	ErrNotFound       = &Error{Kind: KindNotFound}
	ErrInvalidState   = &Error{Kind: KindInvalidState}
	ErrInvalidSlot    = &Error{Kind: KindInvalidSlot}
	ErrConflict       = &Error{Kind: KindConflict}
	ErrAmountMismatch = &Error{Kind: KindAmountMismatch}
	ErrAlreadyPaid    = &Error{Kind: KindAlreadyPaid}
	ErrNotConfirmed   = &Error{Kind: KindNotConfirmed}
	ErrTooEarly       = &Error{Kind: KindTooEarly}
	ErrTooLate        = &Error{Kind: KindTooLate}
	ErrForbidden      = &Error{Kind: KindForbidden}
	ErrUnauthorized   = &Error{Kind: KindUnauthorized}
	ErrBusy           = &Error{Kind: KindBusy}
	ErrDependency     = &Error{Kind: KindDependency}
)

func New(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

func Validation(format string, args ...any) *Error {
	return New(KindValidation, format, args...)
}

func NotFound(format string, args ...any) *Error {
	return New(KindNotFound, format, args...)
}

func Forbidden(format string, args ...any) *Error {
	return New(KindForbidden, format, args...)
}

// Dependency wraps a transient fault from a store or external provider.
// Errors that already belong to the taxonomy pass through untouched.
func Dependency(op string, err error) error {
	if err == nil {
		return nil
	}
	var ae *Error
	if errors.As(err, &ae) {
		return err
	}
	return &Error{Kind: KindDependency, Message: op, Err: err}
}

// KindOf reports the Kind of err, or "" when err is outside the taxonomy.
func KindOf(err error) Kind {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Kind
	}
	return ""
}
