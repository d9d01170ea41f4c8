package errcode

import "errors"

// Code is a stable, log-facing error identifier.
// It is a string newtype, comparable, allocation-free, and implements error.
type Code string

func (c Code) Error() string { return string(c) }

// Canonical codes (short, stable).
const (
	OK          Code = "ok"
	Unsupported Code = "unsupported"
	Timeout     Code = "timeout"

	// Sensors
	SensorTimeout  Code = "sensor_timeout"
	InvalidReading Code = "invalid_reading"
	OutOfRange     Code = "out_of_range"
	NotReady       Code = "not_ready"

	// Connectivity
	LinkDown      Code = "link_down"
	SessionDown   Code = "session_down"
	ConnectFailed Code = "connect_failed"
	PublishFailed Code = "publish_failed"

	// Startup
	InvalidConfig Code = "invalid_config"
	UnknownPin    Code = "unknown_pin"
	UnknownBus    Code = "unknown_bus"

	Error Code = "error" // generic fallback
)

// E keeps an operation name and a cause next to the code.
type E struct {
	C   Code
	Op  string
	Msg string
	Err error
}

func (e *E) Error() string {
	s := string(e.C)
	if e.Op != "" {
		s = e.Op + ": " + s
	}
	if e.Msg != "" {
		s += ": " + e.Msg
	}
	if e.Err != nil {
		s += ": " + e.Err.Error()
	}
	return s
}
func (e *E) Unwrap() error { return e.Err }
func (e *E) Code() Code    { return e.C }

// Is lets errors.Is(err, SomeCode) match a wrapped *E.
func (e *E) Is(target error) bool {
	c, ok := target.(Code)
	return ok && c == e.C
}

// Wrap is shorthand for &E{C: c, Op: op, Err: err}.
func Wrap(c Code, op string, err error) error {
	return &E{C: c, Op: op, Err: err}
}

// Of extracts a Code from an error chain, defaulting to Error.
func Of(err error) Code {
	if err == nil {
		return OK
	}
	var c Code
	if errors.As(err, &c) {
		return c
	}
	type coder interface{ Code() Code }
	var x coder
	if errors.As(err, &x) {
		return x.Code()
	}
	return Error
}
