package stream

import "errors"

var (
	// ErrMissingToken is recorded when Connect is attempted without an upstream
	// API token. Streaming stays disabled; consumers should fall back to
	// snapshot quotes.
	ErrMissingToken = errors.New("no streaming API token configured")
	// ErrReconnectLimit is recorded when reconnectLimit consecutive connection
	// attempts have failed. A later Subscribe or Connect re-arms the client.
	ErrReconnectLimit = errors.New("max reconnect limit has been reached")
	// ErrOutboundQueueFull is returned when subscription changes pile up faster
	// than they can be written to the connection
	ErrOutboundQueueFull = errors.New("outbound message queue is full")
	// ErrMalformedMessage is returned for frames that can not be parsed
	ErrMalformedMessage = errors.New("malformed message")

	// errNormalClosure marks a read error caused by the server closing the
	// connection with a normal closure status
	errNormalClosure = errors.New("connection closed normally")
)
