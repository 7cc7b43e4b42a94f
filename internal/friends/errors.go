package friends

import (
	"context"
	"errors"
	"fmt"
	"net"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/playmates/backend/internal/repositories"
)

// Kind is the stable machine-readable category of a friends error.
type Kind string

const (
	KindInvalidIdentifier Kind = "invalid_identifier"
	KindPermissionDenied  Kind = "permission_denied"
	KindDuplicateRequest  Kind = "duplicate_request"
	KindAlreadyExists     Kind = "already_exists"
	KindNotFound          Kind = "not_found"
	KindNetwork           Kind = "network_error"
	KindUnknownStore      Kind = "unknown_store_error"
	KindInvalidEnumValue  Kind = "invalid_enum_value"
	KindUnknownField      Kind = "unknown_field"
	KindInvalidInput      Kind = "invalid_input"
)

// Error is returned by every exported operation of this package. Callers switch on Kind and
// show Message; Err holds the underlying cause when there is one.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches any *Error with the same kind, so errors.Is(err, friends.ErrNotFound) works
// regardless of message.
func (e *Error) Is(target error) bool {
	var other *Error
	if !errors.As(target, &other) {
		return false
	}
	return other.Kind == e.Kind
}

// Sentinels for errors.Is comparisons.
var (
	ErrInvalidIdentifier = &Error{Kind: KindInvalidIdentifier, Message: "invalid user identifier"}
	ErrPermissionDenied  = &Error{Kind: KindPermissionDenied, Message: "permission denied"}
	ErrDuplicateRequest  = &Error{Kind: KindDuplicateRequest, Message: "a request or friendship already exists"}
	ErrAlreadyExists     = &Error{Kind: KindAlreadyExists, Message: "relationship already exists"}
	ErrNotFound          = &Error{Kind: KindNotFound, Message: "not found"}
	ErrNetwork           = &Error{Kind: KindNetwork, Message: "store unavailable"}
	ErrUnknownStore      = &Error{Kind: KindUnknownStore, Message: "unexpected store error"}
	ErrInvalidEnumValue  = &Error{Kind: KindInvalidEnumValue, Message: "invalid enum value"}
	ErrUnknownField      = &Error{Kind: KindUnknownField, Message: "unknown field"}
	ErrInvalidInput      = &Error{Kind: KindInvalidInput, Message: "invalid input"}
)

func newError(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// KindOf returns the kind of err, or KindUnknownStore when err is not a friends error.
func KindOf(err error) Kind {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind
	}
	return KindUnknownStore
}

// Retryable reports whether an operation failing with err may succeed when repeated.
func Retryable(err error) bool {
	return KindOf(err) == KindNetwork
}

// TransformAPIError normalizes a store failure into the error taxonomy. Errors that are already
// *Error pass through untouched.
func TransformAPIError(err error, message string) error {
	if err == nil {
		return nil
	}

	var fe *Error
	if errors.As(err, &fe) {
		return fe
	}

	switch {
	case errors.Is(err, repositories.ErrNotFound):
		return &Error{Kind: KindNotFound, Message: message, Err: err}
	case errors.Is(err, repositories.ErrConflict):
		return TransformConstraintError(err, message)
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return &Error{Kind: KindNetwork, Message: message, Err: err}
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23505":
			return TransformConstraintError(err, message)
		case "23503":
			return &Error{Kind: KindNotFound, Message: message, Err: err}
		case "40001", "40P01", "57P01":
			return &Error{Kind: KindNetwork, Message: message, Err: err}
		}
		return &Error{Kind: KindUnknownStore, Message: message, Err: err}
	}

	var netErr net.Error
	if errors.As(err, &netErr) || pgconn.Timeout(err) || pgconn.SafeToRetry(err) {
		return &Error{Kind: KindNetwork, Message: message, Err: err}
	}

	return &Error{Kind: KindUnknownStore, Message: message, Err: err}
}

// TransformConstraintError shapes a uniqueness violation lost to a concurrent writer.
func TransformConstraintError(err error, message string) error {
	if message == "" {
		message = ErrAlreadyExists.Message
	}
	return &Error{Kind: KindAlreadyExists, Message: message, Err: err}
}
