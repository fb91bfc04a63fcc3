package protocol

import (
	"errors"
	"fmt"
	"io"
	"net"
	"syscall"
)

var (
	// ErrConnectionClosed is returned when the stream ends, including mid-header or mid-payload
	ErrConnectionClosed = errors.New("protocol: connection closed")

	// ErrNegativeLength is wrapped by ProtocolError when a header declares a negative length
	ErrNegativeLength = errors.New("negative payload length")

	// ErrPayloadTooLarge is wrapped by ProtocolError when a header exceeds the payload limit
	ErrPayloadTooLarge = errors.New("payload length exceeds limit")
)

// ProtocolError reports a malformed header. It is fatal to the connection.
type ProtocolError struct {
	Header Header
	Err    error
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("protocol error: %v (kind=%s, length=%d)", e.Err, e.Header.Kind, e.Header.Length)
}

func (e *ProtocolError) Unwrap() error {
	return e.Err
}

// IsFatal reports whether err must tear the connection down.
// Anything not classified here is treated as a transient read hiccup.
func IsFatal(err error) bool {
	if err == nil {
		return false
	}

	var perr *ProtocolError
	switch {
	case errors.As(err, &perr):
		return true
	case errors.Is(err, ErrConnectionClosed),
		errors.Is(err, io.EOF),
		errors.Is(err, io.ErrUnexpectedEOF),
		errors.Is(err, io.ErrClosedPipe),
		errors.Is(err, net.ErrClosed),
		errors.Is(err, syscall.ECONNRESET),
		errors.Is(err, syscall.ECONNABORTED),
		errors.Is(err, syscall.EPIPE):
		return true
	}

	return false
}
