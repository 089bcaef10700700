// Package status defines the error taxonomy shared by every layer of the
// RPC stack: transport, codec, call registry, client, and server. A
// status.Error is the only error type that is expected to cross a public
// API boundary of this module.
package status

import "fmt"

// Code identifies the broad category of a failure. It is intentionally
// small and closed: new failure modes should map onto one of these, not
// grow the set.
type Code int

const (
	Success Code = iota
	InvalidArgument
	PreconditionNotMet
	Timeout
	ConnectionFailure
	HostUnresolved
	ParseError
	TypeError
	ServerError
	MethodNotFound
	Aborted
	UnexpectedError
)

func (c Code) String() string {
	switch c {
	case Success:
		return "SUCCESS"
	case InvalidArgument:
		return "INVALID_ARGUMENT"
	case PreconditionNotMet:
		return "PRECONDITION_NOT_MET"
	case Timeout:
		return "TIMEOUT"
	case ConnectionFailure:
		return "CONNECTION_FAILURE"
	case HostUnresolved:
		return "HOST_UNRESOLVED"
	case ParseError:
		return "PARSE_ERROR"
	case TypeError:
		return "TYPE_ERROR"
	case ServerError:
		return "SERVER_ERROR"
	case MethodNotFound:
		return "METHOD_NOT_FOUND"
	case Aborted:
		return "ABORTED"
	default:
		return "UNEXPECTED_ERROR"
	}
}

// Error carries a Code plus a human-readable message and an optional
// wrapped cause. It is comparable by Code via Is, so callers can write
// `errors.Is(err, status.New(status.Timeout, ""))` against a sentinel
// built with New.
type Error struct {
	code    Code
	message string
	cause   error
	// Object carries a caller-supplied payload for ServerError: the
	// opaque msgpack-decodable error object a handler returned, kept
	// verbatim instead of flattened to a string.
	Object any
}

// New creates a status error with the given code and message.
func New(code Code, message string) *Error {
	return &Error{code: code, message: message}
}

// Newf creates a status error with a formatted message.
func Newf(code Code, format string, args ...any) *Error {
	return &Error{code: code, message: fmt.Sprintf(format, args...)}
}

// Wrap attaches a code to an existing error, preserving it as the cause.
// An err that is already a *Error is returned unchanged, keeping its own
// code.
func Wrap(code Code, err error) *Error {
	if err == nil {
		return nil
	}
	if se, ok := err.(*Error); ok {
		return se
	}
	return &Error{code: code, message: err.Error(), cause: err}
}

// Wrapf attaches a code and formatted context to an existing error,
// preserving it as the cause. Unlike Wrap it always builds a fresh
// Error, even if err is already one, since the caller is adding context
// (e.g. which URI a dial attempt failed against) rather than merely
// tagging a bare error with a code.
func Wrapf(code Code, err error, format string, args ...any) *Error {
	if err == nil {
		return nil
	}
	return &Error{code: code, message: fmt.Sprintf(format, args...) + ": " + err.Error(), cause: err}
}

// WithObject returns a copy of e carrying the given opaque object, used
// to propagate a handler's serializable error payload verbatim.
func (e *Error) WithObject(obj any) *Error {
	cp := *e
	cp.Object = obj
	return &cp
}

func (e *Error) Code() Code { return e.code }

func (e *Error) Message() string { return e.message }

func (e *Error) Error() string {
	if e.message == "" {
		return e.code.String()
	}
	return fmt.Sprintf("%s: %s", e.code, e.message)
}

func (e *Error) Unwrap() error { return e.cause }

// Is reports whether target is a *Error with the same Code, so that
// errors.Is(err, status.New(status.Timeout, "")) style sentinels work.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.code == t.code
}

// CodeOf extracts the Code from err, defaulting to UnexpectedError for
// any error that isn't a *Error.
func CodeOf(err error) Code {
	if err == nil {
		return Success
	}
	var se *Error
	if As(err, &se) {
		return se.code
	}
	return UnexpectedError
}

// As is a small local helper mirroring errors.As for the single level of
// wrapping this package produces, avoiding an import of the standard
// errors package purely for that one call at use sites that otherwise
// have no need for it.
func As(err error, target **Error) bool {
	for err != nil {
		if se, ok := err.(*Error); ok {
			*target = se
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}
