package wire

import (
	"errors"
	"fmt"
)

// Outcome is the state of a connection as seen by its worker.
type Outcome int

const (
	// Open means no receive or send has failed yet.
	Open Outcome = iota
	// ClosedNormally means the peer ended the stream at a value boundary.
	ClosedNormally
	// ClosedAbnormally means any other transport failure.
	ClosedAbnormally
)

func (o Outcome) String() string {
	switch o {
	case Open:
		return "open"
	case ClosedNormally:
		return "closed normally"
	case ClosedAbnormally:
		return "closed abnormally"
	default:
		return fmt.Sprintf("Outcome(%d)", int(o))
	}
}

var (
	// ErrCommunication is matched by every fault in the conversation with a
	// client: close outcomes, protocol violations and unreadable messages.
	ErrCommunication = errors.New("communication fault")

	// ErrClosedNormally is matched by a CloseError with outcome ClosedNormally.
	ErrClosedNormally = errors.New("connection closed normally")

	// ErrClosedAbnormally is matched by a CloseError with outcome ClosedAbnormally.
	ErrClosedAbnormally = errors.New("connection closed abnormally")

	// ErrStringTooLong is returned when a string does not fit the 2 byte
	// length prefix. Nothing is written and the connection stays open.
	ErrStringTooLong = errors.New("string exceeds 65535 encoded bytes")

	// ErrMalformedString is the cause of an abnormal close when a received
	// string is not valid UTF-8.
	ErrMalformedString = errors.New("received string is not valid utf-8")

	// ErrNilConn is returned when a Connection is built without a socket.
	ErrNilConn = errors.New("nil net.Conn")
)

// CloseError reports that the connection reached a terminal outcome.
type CloseError struct {
	Outcome Outcome
	Cause   error
}

func (e *CloseError) Error() string {
	if e.Cause == nil {
		return e.Outcome.String()
	}

	return fmt.Sprintf("%s: %v", e.Outcome, e.Cause)
}

func (e *CloseError) Unwrap() []error {
	errs := []error{ErrCommunication}
	switch e.Outcome {
	case ClosedNormally:
		errs = append(errs, ErrClosedNormally)
	case ClosedAbnormally:
		errs = append(errs, ErrClosedAbnormally)
	}

	if e.Cause != nil {
		errs = append(errs, e.Cause)
	}

	return errs
}

// OutcomeOf extracts the close outcome carried by err. Errors that are not a
// CloseError, including nil, yield Open.
func OutcomeOf(err error) Outcome {
	var ce *CloseError
	if errors.As(err, &ce) {
		return ce.Outcome
	}

	return Open
}

// ProtocolError means the client deviated from the expected conversation,
// e.g. sent an unknown message type or a message out of sequence.
type ProtocolError struct {
	Msg   string
	Cause error
}

// NewProtocolError formats a ProtocolError.
func NewProtocolError(format string, args ...any) *ProtocolError {
	return &ProtocolError{Msg: fmt.Sprintf(format, args...)}
}

func (e *ProtocolError) Error() string {
	if e.Cause == nil {
		return "protocol violation: " + e.Msg
	}

	return fmt.Sprintf("protocol violation: %s: %v", e.Msg, e.Cause)
}

func (e *ProtocolError) Unwrap() []error {
	if e.Cause == nil {
		return []error{ErrCommunication}
	}

	return []error{ErrCommunication, e.Cause}
}

// MessageReadError means the bytes of a message could be read but not
// interpreted, e.g. an invalid symbol name.
type MessageReadError struct {
	Message string
	Cause   error
}

func (e *MessageReadError) Error() string {
	if e.Cause == nil {
		return "failed to read " + e.Message
	}

	return fmt.Sprintf("failed to read %s: %v", e.Message, e.Cause)
}

func (e *MessageReadError) Unwrap() []error {
	if e.Cause == nil {
		return []error{ErrCommunication}
	}

	return []error{ErrCommunication, e.Cause}
}
