package gateway

import "errors"

var (
	// ErrLivenessTimeout closes a session whose client stopped answering pings.
	ErrLivenessTimeout = errors.New("client liveness timeout")

	// ErrClientClosed is returned when the client sent a close frame.
	ErrClientClosed = errors.New("client closed connection")
)
