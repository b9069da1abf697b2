package lifecycle

import "errors"

var (
	// ErrNilMeeting is returned when a transition is requested for a nil meeting.
	ErrNilMeeting = errors.New("meeting is nil")

	// ErrInvalidTransition is returned for an edge the lifecycle does not allow.
	ErrInvalidTransition = errors.New("invalid meeting transition")

	// ErrUnknownBotState is returned for a bot status label with no mapping.
	ErrUnknownBotState = errors.New("unknown bot state")

	// ErrRepositoryRequired is returned when a transition by id is requested
	// from a machine without a meeting repository.
	ErrRepositoryRequired = errors.New("meeting repository required")

	// ErrHookFailed wraps an enter or exit hook error.
	ErrHookFailed = errors.New("transition hook failed")
)
