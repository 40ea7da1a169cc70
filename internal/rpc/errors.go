package rpc

import "errors"

// Domain-specific errors for request/response operations.
// Use errors.Is() to check for these errors in calling code.
var (
	// ErrRequestTimeout is returned when no response arrives within the
	// request deadline.
	ErrRequestTimeout = errors.New("rpc: request timed out")

	// ErrHandlerRegistered is returned when OnRequest is called for a
	// request name that already has a handler.
	ErrHandlerRegistered = errors.New("rpc: handler already registered for request")

	// ErrInvalidEnvelope is returned for payloads that are not valid
	// envelopes or lack a correlation id.
	ErrInvalidEnvelope = errors.New("rpc: invalid message envelope")

	// ErrNoResponseTopic is returned when an incoming request names no
	// topic to answer on.
	ErrNoResponseTopic = errors.New("rpc: request has no response topic")

	// ErrRemote wraps an error string carried back in a response envelope.
	ErrRemote = errors.New("rpc: remote handler error")
)
