package transport

import "errors"

var (
	// ErrSocketClosed is returned by Send after the connection tore down.
	ErrSocketClosed = errors.New("transport: socket closed")

	// ErrSendBufferFull is returned when a peer cannot keep up with the
	// broadcast volume. The message is dropped, the connection survives.
	ErrSendBufferFull = errors.New("transport: send buffer full")
)
