package apperrors

import (
	"errors"
	"fmt"
)

// Kind classifies a failure so the calling layer can render a precise message.
type Kind string

const (
	KindValidation        Kind = "validation"
	KindInvalidTransition Kind = "invalid_transition"
	KindConflict          Kind = "conflict"
	KindPaymentRequired   Kind = "payment_required"
	KindNotFound          Kind = "not_found"
)

// Sentinels for errors.Is. An *Error matches the sentinel of its Kind.
var (
	ErrValidation        = &Error{Kind: KindValidation, Code: "validationError"}
	ErrInvalidTransition = &Error{Kind: KindInvalidTransition, Code: "invalidTransition"}
	ErrConflict          = &Error{Kind: KindConflict, Code: "conflict"}
	ErrPaymentRequired   = &Error{Kind: KindPaymentRequired, Code: "paymentRequired"}
	ErrNotFound          = &Error{Kind: KindNotFound, Code: "notFound"}
)

type Error struct {
	Kind    Kind
	Code    string
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches any *Error of the same Kind, so sentinels work with errors.Is.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

func newError(sentinel *Error, format string, args ...any) *Error {
	return &Error{
		Kind:    sentinel.Kind,
		Code:    sentinel.Code,
		Message: fmt.Sprintf(format, args...),
	}
}

func Validation(format string, args ...any) error {
	return newError(ErrValidation, format, args...)
}

func InvalidTransition(format string, args ...any) error {
	return newError(ErrInvalidTransition, format, args...)
}

func Conflict(format string, args ...any) error {
	return newError(ErrConflict, format, args...)
}

func PaymentRequired(format string, args ...any) error {
	return newError(ErrPaymentRequired, format, args...)
}

func NotFound(format string, args ...any) error {
	return newError(ErrNotFound, format, args...)
}

// Wrap attaches a cause to a classified error.
func Wrap(err error, kind error) error {
	var sentinel *Error
	if !errors.As(kind, &sentinel) {
		return err
	}
	return &Error{
		Kind:    sentinel.Kind,
		Code:    sentinel.Code,
		Message: sentinel.Message,
		Err:     err,
	}
}

// KindOf returns the Kind of err, or "" if err is not classified.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}
