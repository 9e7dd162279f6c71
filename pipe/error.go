package pipe

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrInvalidArg is returned when a required argument is missing or malformed.
	ErrInvalidArg = errors.New("invalid argument")
	// ErrInvalidState is returned if method cannot be executed at this moment.
	ErrInvalidState = errors.New("invalid state")
	// ErrInvalidURI is returned when URI cannot be parsed.
	ErrInvalidURI = errors.New("invalid uri")
	// ErrNotSupported is returned for unknown schemes, formats or encodings.
	ErrNotSupported = errors.New("not supported")
	// ErrOutOfRange is returned when seek position exceeds the known size.
	ErrOutOfRange = errors.New("out of range")
	// ErrMemoryLack is returned when a buffer cannot be provided.
	ErrMemoryLack = errors.New("memory lack")
	// ErrFail is a generic I/O or processing failure.
	ErrFail = errors.New("fail")
)

// ErrorRun is returned if task was successfully started, but execution
// and/or close failed.
type ErrorRun struct {
	ErrExec  error
	ErrClose error
}

func (e *ErrorRun) Error() string {
	switch {
	case e.ErrExec != nil && e.ErrClose != nil:
		return fmt.Sprintf("close error: %v after execute error: %v", e.ErrClose, e.ErrExec)
	case e.ErrExec != nil:
		return fmt.Sprintf("execute error: %v", e.ErrExec)
	case e.ErrClose != nil:
		return fmt.Sprintf("close error: %v", e.ErrClose)
	}
	return ""
}

// Is checks if any of errors match provided sentinel error.
func (e *ErrorRun) Is(err error) bool {
	if e.ErrExec != nil && errors.Is(e.ErrExec, err) {
		return true
	}
	if e.ErrClose != nil && errors.Is(e.ErrClose, err) {
		return true
	}
	return false
}

// closeErrors wraps errors that might occur when multiple components
// fail to close.
type closeErrors []error

func (e closeErrors) Error() string {
	s := []string{}
	for _, se := range e {
		s = append(s, se.Error())
	}
	return strings.Join(s, ",")
}

func (e closeErrors) Unwrap() []error {
	return e
}

// ret returns untyped nil if error list is empty.
func (e closeErrors) ret() error {
	if len(e) > 0 {
		return e
	}
	return nil
}
