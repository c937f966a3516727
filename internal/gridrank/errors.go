package gridrank

import (
	"errors"
	"fmt"
)

// Error classes. Concrete errors wrap one of these so handlers can map them to
// status codes with errors.Is.
var (
	ErrValidation    = errors.New("invalid input")
	ErrConfiguration = errors.New("configuration error")
	ErrUnavailable   = errors.New("dependency unavailable")
	ErrUpstream      = errors.New("upstream request failed")
	ErrGeocodeFailed = errors.New("location could not be geocoded")
	ErrNotFound      = errors.New("not found")
	ErrPersistence   = errors.New("persistence failed")
)

// Invalid returns a validation error carrying a client-facing message.
func Invalid(format string, args ...any) error {
	return &classifiedError{class: ErrValidation, msg: fmt.Sprintf(format, args...)}
}

// Misconfigured returns a configuration error carrying an operator-facing message.
func Misconfigured(format string, args ...any) error {
	return &classifiedError{class: ErrConfiguration, msg: fmt.Sprintf(format, args...)}
}

// classifiedError keeps the message free of the class prefix, since it is
// returned verbatim in {"error": ...} bodies.
type classifiedError struct {
	class error
	msg   string
}

func (e *classifiedError) Error() string { return e.msg }

func (e *classifiedError) Unwrap() error { return e.class }
