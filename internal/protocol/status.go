package protocol

import (
	"errors"
	"fmt"
)

// Status is a protocol status code sent in status messages.
type Status int

const (
	StatusOK                 Status = 200
	StatusInvalidJSON        Status = 410
	StatusInvalidJSONFormat  Status = 411
	StatusInvalidImageFormat Status = 420
	StatusInvalidImage       Status = 421
	StatusInternalError      Status = 500
)

func (s Status) String() string {
	switch s {
	case StatusOK:
		return "OK"
	case StatusInvalidJSON:
		return "INVALID_JSON"
	case StatusInvalidJSONFormat:
		return "INVALID_JSON_FORMAT"
	case StatusInvalidImageFormat:
		return "INVALID_IMAGE_FORMAT"
	case StatusInvalidImage:
		return "INVALID_IMAGE"
	case StatusInternalError:
		return "INTERNAL_ERROR"
	default:
		return fmt.Sprintf("Status(%d)", int(s))
	}
}

// Message is the JSON body of a status message. Acknowledgements carry only
// Status.
type Message struct {
	Status Status `json:"status"`
	Error  string `json:"error,omitempty"`
}

// OK returns the acknowledgement message.
func OK() Message { return Message{Status: StatusOK} }

// Error is a failure that maps to a protocol status.
type Error struct {
	Status Status
	Err    error
}

// Errorf returns an *Error with a formatted cause.
func Errorf(status Status, format string, args ...any) *Error {
	return &Error{Status: status, Err: fmt.Errorf(format, args...)}
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %v", e.Status, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Message returns the status message reporting e to the client.
func (e *Error) Message() Message {
	return Message{Status: e.Status, Error: e.Err.Error()}
}

// StatusOf returns the status carried by err, StatusOK for nil and
// StatusInternalError for any error without one.
func StatusOf(err error) Status {
	if err == nil {
		return StatusOK
	}
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Status
	}
	return StatusInternalError
}

// MessageOf returns the status message for err. Errors without a protocol
// status become INTERNAL_ERROR messages.
func MessageOf(err error) Message {
	if err == nil {
		return OK()
	}
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Message()
	}
	return Message{Status: StatusInternalError, Error: err.Error()}
}
