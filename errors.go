package minutes

import "errors"

var (
	// ErrMeetingExists is returned by CreateMeeting for an id already in use.
	ErrMeetingExists = errors.New("meeting already exists")

	// ErrUnknownJobKind is returned for jobs the service never enqueues.
	ErrUnknownJobKind = errors.New("unknown job kind")

	// ErrInvalidPayload is returned when a job carries the wrong payload type.
	ErrInvalidPayload = errors.New("invalid job payload")
)
