package queue

import "errors"

// Domain-specific errors for queue operations.
// Use errors.Is() to check for these errors in calling code.
var (
	// ErrQueueFull is returned when Enqueue is called on a queue at capacity.
	ErrQueueFull = errors.New("queue: at capacity, message rejected")

	// ErrClosed is returned when Enqueue is called after Close.
	ErrClosed = errors.New("queue: closed")

	// ErrInvalidRate is returned when SetRate is called with a limit below 1.
	ErrInvalidRate = errors.New("queue: rate limit must be at least 1")
)
