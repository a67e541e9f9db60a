// Package protoerr defines the result-code taxonomy shared by every
// response confd sends to a client, and the Error type components use to
// carry a code plus an optional path/message end-to-end.
package protoerr

// Code is the wire result_code enumeration.
type Code uint16

const (
	OK Code = iota
	InvalidArg
	NotFound
	Unauthorized
	Unsupported
	Locked
	DataExists
	DataMissing
	BadElement
	UnknownModel
	ValidationFailed
	CommitFailed
	Internal
	NoMemory
	MalformedMessage
	IO
	InitFailed
	UnexpectedResponse
)

func (c Code) String() string {
	switch c {
	case OK:
		return "OK"
	case InvalidArg:
		return "InvalidArg"
	case NotFound:
		return "NotFound"
	case Unauthorized:
		return "Unauthorized"
	case Unsupported:
		return "Unsupported"
	case Locked:
		return "Locked"
	case DataExists:
		return "DataExists"
	case DataMissing:
		return "DataMissing"
	case BadElement:
		return "BadElement"
	case UnknownModel:
		return "UnknownModel"
	case ValidationFailed:
		return "ValidationFailed"
	case CommitFailed:
		return "CommitFailed"
	case Internal:
		return "Internal"
	case NoMemory:
		return "NoMemory"
	case MalformedMessage:
		return "MalformedMessage"
	case IO:
		return "IO"
	case InitFailed:
		return "InitFailed"
	case UnexpectedResponse:
		return "UnexpectedResponse"
	default:
		return "Unknown"
	}
}

// Error is the error type carried through every layer of the engine. It
// implements error and is compatible with errors.Is against a bare Code
// (via Is) and errors.As.
type Error struct {
	Code    Code
	Message string
	Path    string
}

func (e *Error) Error() string {
	if e.Path != "" {
		return e.Code.String() + ": " + e.Message + " (" + e.Path + ")"
	}
	if e.Message != "" {
		return e.Code.String() + ": " + e.Message
	}
	return e.Code.String()
}

// Is lets errors.Is(err, protoerr.New(SomeCode)) match on code alone,
// ignoring message/path. A bare Code is not an error value; compare it
// with CodeOf(err) == SomeCode instead.
func (e *Error) Is(target error) bool {
	other, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Code == other.Code
}

// New builds a bare Error carrying only a code.
func New(code Code) *Error {
	return &Error{Code: code}
}

// Newf builds an Error with a code and message.
func Newf(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// WithPath returns a copy of e with Path set.
func (e *Error) WithPath(path string) *Error {
	cp := *e
	cp.Path = path
	return &cp
}

// WithMessage returns a copy of e with Message set.
func (e *Error) WithMessage(message string) *Error {
	cp := *e
	cp.Message = message
	return &cp
}

// CodeOf extracts the Code from err, or Internal if err is not a *Error.
func CodeOf(err error) Code {
	if err == nil {
		return OK
	}
	if e, ok := err.(*Error); ok {
		return e.Code
	}
	return Internal
}
