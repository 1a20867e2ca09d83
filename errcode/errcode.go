package errcode

import "errors"

// Code is a stable, wire-facing error identifier.
// It is a string newtype, comparable, and implements error.
type Code string

func (c Code) Error() string { return string(c) }

// Canonical codes (short, stable).
const (
	OK             Code = "ok"
	InvalidParams  Code = "invalid_params"
	InvalidPayload Code = "invalid_payload"
	NotFound       Code = "not_found"
	Unavailable    Code = "unavailable"
	Timeout        Code = "timeout"
	Busy           Code = "busy"
	NoAck          Code = "no_ack"

	UnknownMCU        Code = "unknown_mcu"
	UnknownPeripheral Code = "unknown_peripheral"
	UnknownInstance   Code = "unknown_instance"
	UnknownPin        Code = "unknown_pin"
	PinInUse          Code = "pin_in_use"
	PinConflict       Code = "pin_conflict"
	MissingField      Code = "missing_field"
	OutOfRange        Code = "out_of_range"
	NonDefaultPin     Code = "non_default_pin"

	Error Code = "error" // generic fallback
)

// E is the optional wrapper when we want to keep context and a cause.
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
	return s
}
func (e *E) Unwrap() error { return e.Err }
func (e *E) Code() Code    { return e.C }

// Wrap builds an *E. A nil err with an empty msg still carries the code.
func Wrap(c Code, op string, msg string, err error) *E {
	return &E{C: c, Op: op, Msg: msg, Err: err}
}

// Of extracts a Code from an error chain, defaulting to Error.
func Of(err error) Code {
	if err == nil {
		return OK
	}
	type coder interface{ Code() Code }
	var x coder
	if errors.As(err, &x) {
		return x.Code()
	}
	var c Code
	if errors.As(err, &c) {
		return c
	}
	return Error
}
