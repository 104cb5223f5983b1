package backend

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrUnavailable is returned while the circuit breaker is open or the backend cannot be reached.
var ErrUnavailable = errors.New("backend: unavailable")

// Error is a non-2xx response from the commerce backend.
type Error struct {
	Status  int    `json:"-"`
	Code    string `json:"code,omitempty"`
	Message string `json:"message,omitempty"`
	Op      string `json:"-"`
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	msg := e.Message
	if msg == "" {
		msg = http.StatusText(e.Status)
	}
	if e.Code != "" {
		return fmt.Sprintf("backend %s: %d %s: %s", e.Op, e.Status, e.Code, msg)
	}
	return fmt.Sprintf("backend %s: %d: %s", e.Op, e.Status, msg)
}

// IsNotFound reports a 404.
func (e *Error) IsNotFound() bool { return e != nil && e.Status == http.StatusNotFound }

// IsConflict reports a 409.
func (e *Error) IsConflict() bool { return e != nil && e.Status == http.StatusConflict }

// IsUnavailable reports a 5xx or 429.
func (e *Error) IsUnavailable() bool {
	return e != nil && (e.Status >= http.StatusInternalServerError || e.Status == http.StatusTooManyRequests)
}

// IsNotFound reports whether err carries a backend 404.
func IsNotFound(err error) bool {
	var be *Error
	return errors.As(err, &be) && be.IsNotFound()
}

// IsConflict reports whether err carries a backend 409.
func IsConflict(err error) bool {
	var be *Error
	return errors.As(err, &be) && be.IsConflict()
}

// IsUnavailable reports whether err is a transport failure, an open breaker or a 5xx.
func IsUnavailable(err error) bool {
	if errors.Is(err, ErrUnavailable) {
		return true
	}
	var be *Error
	return errors.As(err, &be) && be.IsUnavailable()
}
