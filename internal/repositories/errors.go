package repositories

import "fmt"

// ErrorKind classifies repository failures for implementations outside Firestore.
type ErrorKind string

const (
	ErrorKindNotFound    ErrorKind = "not_found"
	ErrorKindConflict    ErrorKind = "conflict"
	ErrorKindUnavailable ErrorKind = "unavailable"
	ErrorKindUnknown     ErrorKind = "unknown"
)

// Error implements RepositoryError for the memory and Redis stores.
type Error struct {
	Op   string
	Kind ErrorKind
	Err  error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	msg := string(e.Kind)
	if e.Err != nil {
		msg = e.Err.Error()
	}
	if e.Op != "" {
		return fmt.Sprintf("%s: %s", e.Op, msg)
	}
	return msg
}

// Unwrap exposes the underlying error, if any.
func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// IsNotFound reports whether the record is missing.
func (e *Error) IsNotFound() bool { return e != nil && e.Kind == ErrorKindNotFound }

// IsConflict reports whether the write lost a race.
func (e *Error) IsConflict() bool { return e != nil && e.Kind == ErrorKindConflict }

// IsUnavailable reports whether the store is temporarily unreachable.
func (e *Error) IsUnavailable() bool { return e != nil && e.Kind == ErrorKindUnavailable }

// NewNotFoundError builds a not-found error for the given operation.
func NewNotFoundError(op string) *Error {
	return &Error{Op: op, Kind: ErrorKindNotFound}
}

// NewError wraps err with the given classification.
func NewError(op string, kind ErrorKind, err error) *Error {
	if kind == "" {
		kind = ErrorKindUnknown
	}
	return &Error{Op: op, Kind: kind, Err: err}
}

var _ RepositoryError = (*Error)(nil)
