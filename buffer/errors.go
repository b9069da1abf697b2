package buffer

import "errors"

var (
	// ErrSinkRequired is returned when a manager is created without a sink.
	ErrSinkRequired = errors.New("buffer sink required")

	// ErrTooManyMeetings is returned when a fragment would open a buffer
	// beyond the configured meeting cap. The fragment is dropped.
	ErrTooManyMeetings = errors.New("too many active meeting buffers")

	// ErrMeetingEnded is returned for a fragment that arrives after its
	// meeting's final flush. The fragment is dropped.
	ErrMeetingEnded = errors.New("meeting has ended")

	// ErrManagerClosed is returned after Close has been called.
	ErrManagerClosed = errors.New("buffer manager closed")
)
