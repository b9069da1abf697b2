package jobs

import "errors"

var (
	// ErrProcessorClosed is returned by Enqueue after Shutdown has started.
	ErrProcessorClosed = errors.New("job processor closed")

	// ErrNoHandler is returned by Enqueue when no handler is registered.
	ErrNoHandler = errors.New("no job handler registered")

	// ErrInvalidConcurrency is returned when concurrency is less than 1.
	ErrInvalidConcurrency = errors.New("concurrency must be greater than 0")

	// ErrInvalidMaxAttempts is returned when max attempts is less than 1.
	ErrInvalidMaxAttempts = errors.New("max attempts must be greater than 0")

	// ErrHandlerPanic wraps a panic recovered from a handler.
	ErrHandlerPanic = errors.New("job handler panicked")
)
