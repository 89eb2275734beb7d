// Package simerr classifies errors raised by the simulation kernel.
//
// Fatal errors (bad configuration) abort startup. Recoverable errors
// (collisions, malformed queries, sensors without a pose) are logged by the
// component that raised them and the simulation carries on.
package simerr

import (
	"errors"
	"fmt"
)

// Class separates errors that stop the process from errors that are logged
// and absorbed.
type Class int

const (
	// Recoverable errors are contained by the component that produced them.
	Recoverable Class = iota
	// Fatal errors propagate to process startup.
	Fatal
)

func (c Class) String() string {
	switch c {
	case Recoverable:
		return "recoverable"
	case Fatal:
		return "fatal"
	default:
		return "unknown"
	}
}

var (
	ErrConfiguration     = errors.New("configuration error")
	ErrUnknownDeviceType = errors.New("unknown device type")
	ErrOutOfBounds       = errors.New("pose out of bounds")
	ErrCollision         = errors.New("collision")
	ErrMalformedQuery    = errors.New("malformed query")
	ErrSensorNotReady    = errors.New("sensor not ready")
	ErrNotActuator       = errors.New("device does not accept commands")
	ErrInvalidCommand    = errors.New("invalid command")
	ErrInvalidArgument   = errors.New("invalid argument")
)

// Error wraps an underlying error with its class and the component and
// operation that raised it.
type Error struct {
	Class     Class
	Component string
	Operation string
	Err       error
}

func (e *Error) Error() string {
	if e.Operation == "" {
		return fmt.Sprintf("%s: %v", e.Component, e.Err)
	}
	return fmt.Sprintf("%s.%s: %v", e.Component, e.Operation, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Wrap classifies err. A nil err returns nil.
func Wrap(class Class, err error, component, operation string) error {
	if err == nil {
		return nil
	}
	return &Error{Class: class, Component: component, Operation: operation, Err: err}
}

// Configf builds a fatal configuration error. The result matches
// ErrConfiguration with errors.Is.
func Configf(component, operation, format string, args ...any) error {
	return &Error{
		Class:     Fatal,
		Component: component,
		Operation: operation,
		Err:       fmt.Errorf("%w: %s", ErrConfiguration, fmt.Sprintf(format, args...)),
	}
}

// Recoverablef builds a recoverable error wrapping sentinel.
func Recoverablef(sentinel error, component, operation, format string, args ...any) error {
	return &Error{
		Class:     Recoverable,
		Component: component,
		Operation: operation,
		Err:       fmt.Errorf("%w: %s", sentinel, fmt.Sprintf(format, args...)),
	}
}

// IsFatal reports whether err, or anything it wraps, is classified Fatal.
// Unclassified configuration errors are fatal too.
func IsFatal(err error) bool {
	if err == nil {
		return false
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Class == Fatal
	}
	return errors.Is(err, ErrConfiguration)
}
