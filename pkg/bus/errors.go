package bus

import "errors"

var (
	// ErrBusFull is returned when a recipient's queue is at capacity
	ErrBusFull = errors.New("recipient queue is full")

	// ErrResponseTimeout is returned when a request sees no response in time
	ErrResponseTimeout = errors.New("timed out waiting for response")

	// ErrNoSubscriber is returned when a message targets an unknown recipient
	ErrNoSubscriber = errors.New("no subscriber for recipient")

	// ErrAlreadySubscribed is returned when an agent subscribes twice
	ErrAlreadySubscribed = errors.New("agent already has an active handler")

	// ErrCorrelationInUse is returned when a correlation ID already has a waiter
	ErrCorrelationInUse = errors.New("correlation id already in flight")

	// ErrRequestCancelled is returned from Request when Cancel is called on
	// its correlation ID before a response arrives
	ErrRequestCancelled = errors.New("request cancelled")

	// ErrClosed is returned after the bus has been shut down
	ErrClosed = errors.New("message bus is closed")
)
