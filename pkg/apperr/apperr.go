// Package apperr defines the closed set of error kinds surfaced by the storage
// layer and the archive codec.
//
// Every error returned by a store or by the archive codec either wraps one of
// ErrNotFound, ErrValidation or ErrFormat, or is an internal failure (I/O,
// permissions, a broken backend). Callers classify with errors.Is or KindOf.
package apperr

import (
	"errors"
	"fmt"
)

// Kind classifies an error for the request-handling layer.
type Kind int

const (
	// KindInternal is anything that is not one of the domain kinds below.
	KindInternal Kind = iota
	// KindNotFound means a container, object or archive member does not exist.
	KindNotFound
	// KindValidation means a caller-supplied value violates a precondition.
	KindValidation
	// KindFormat means archive bytes are neither a zip nor a tar.
	KindFormat
)

// String returns the string representation of Kind.
func (k Kind) String() string {
	switch k {
	case KindNotFound:
		return "not_found"
	case KindValidation:
		return "validation"
	case KindFormat:
		return "format"
	default:
		return "internal"
	}
}

var (
	// ErrNotFound is wrapped by all NotFound errors.
	ErrNotFound = errors.New("not found")
	// ErrValidation is wrapped by all validation errors.
	ErrValidation = errors.New("validation failed")
	// ErrFormat is wrapped by all archive format errors.
	ErrFormat = errors.New("unsupported format")
)

// NotFound returns an error of KindNotFound with the given message.
func NotFound(msg string) error {
	return Wrap(ErrNotFound, errors.New(msg))
}

// NotFoundf is NotFound with fmt.Sprintf formatting.
func NotFoundf(format string, args ...any) error {
	return NotFound(fmt.Sprintf(format, args...))
}

// Validation returns an error of KindValidation with the given message.
func Validation(msg string) error {
	return Wrap(ErrValidation, errors.New(msg))
}

// Validationf is Validation with fmt.Sprintf formatting.
func Validationf(format string, args ...any) error {
	return Validation(fmt.Sprintf(format, args...))
}

// Format returns an error of KindFormat with the given message.
func Format(msg string) error {
	return Wrap(ErrFormat, errors.New(msg))
}

// Formatf is Format with fmt.Sprintf formatting.
func Formatf(format string, args ...any) error {
	return Format(fmt.Sprintf(format, args...))
}

// Wrap marks err with the kind sentinel. Both remain reachable via errors.Is.
func Wrap(kind error, err error) error {
	return fmt.Errorf("%w: %w", kind, err)
}

// KindOf reports the kind of err. nil is KindInternal as well; callers check
// for nil first.
func KindOf(err error) Kind {
	switch {
	case errors.Is(err, ErrNotFound):
		return KindNotFound
	case errors.Is(err, ErrValidation):
		return KindValidation
	case errors.Is(err, ErrFormat):
		return KindFormat
	default:
		return KindInternal
	}
}

// Message returns the caller-facing part of a domain error, without the kind
// prefix. Internal errors are returned verbatim.
func Message(err error) string {
	var joined interface{ Unwrap() []error }
	if errors.As(err, &joined) {
		parts := joined.Unwrap()
		if len(parts) == 2 {
			switch parts[0] {
			case ErrNotFound, ErrValidation, ErrFormat:
				return parts[1].Error()
			}
		}
	}
	return err.Error()
}
