package storage

import (
	"context"

	"github.com/poiesic/minutes/core"
)

// MeetingRepository stores meeting records.
type MeetingRepository interface {
	// SaveMeeting inserts or replaces a meeting.
	// Sets CreatedAt on first save and UpdatedAt on every save.
	SaveMeeting(ctx context.Context, meeting *core.Meeting) error

	// GetMeeting retrieves a meeting by id.
	// Returns ErrNotFound if the meeting doesn't exist.
	GetMeeting(ctx context.Context, id string) (*core.Meeting, error)

	// ListMeetings returns every meeting, ordered by id.
	ListMeetings(ctx context.Context) ([]*core.Meeting, error)
}

// TranscriptRepository stores flushed transcript entries.
type TranscriptRepository interface {
	// SaveTranscriptEntry persists an entry. Saving an entry whose id already
	// exists overwrites it, which makes retried flushes idempotent.
	SaveTranscriptEntry(ctx context.Context, entry *core.TranscriptEntry) error

	// GetTranscriptEntries returns all entries for a meeting in chronological order.
	GetTranscriptEntries(ctx context.Context, meetingID string) ([]*core.TranscriptEntry, error)

	// GetTranscriptEntriesByRange returns entries whose start offset falls in [start, end),
	// in chronological order.
	GetTranscriptEntriesByRange(ctx context.Context, meetingID string, start, end int64) ([]*core.TranscriptEntry, error)

	// GetRecentTranscriptEntries returns up to limit entries, newest first.
	GetRecentTranscriptEntries(ctx context.Context, meetingID string, limit int) ([]*core.TranscriptEntry, error)

	// CountTranscriptEntries returns the number of entries stored for a meeting.
	CountTranscriptEntries(ctx context.Context, meetingID string) (int, error)

	// DeleteTranscriptEntries removes every entry for a meeting.
	DeleteTranscriptEntries(ctx context.Context, meetingID string) error
}

// QARepository stores question/answer records.
type QARepository interface {
	// SaveQAEntry persists an entry. Assigns CreatedAt if unset.
	SaveQAEntry(ctx context.Context, entry *core.QAEntry) error

	// GetQAEntry retrieves an entry by id.
	// Returns ErrNotFound if the entry doesn't exist.
	GetQAEntry(ctx context.Context, id string) (*core.QAEntry, error)

	// GetQAHistory returns up to limit entries for a meeting, newest first.
	// A limit <= 0 returns every entry.
	GetQAHistory(ctx context.Context, meetingID string, limit int) ([]*core.QAEntry, error)
}

// SummaryRepository stores the rolling summary of each meeting.
type SummaryRepository interface {
	// SaveSummary replaces the meeting's summary.
	SaveSummary(ctx context.Context, summary *core.Summary) error

	// GetSummary returns the meeting's summary.
	// Returns ErrNotFound if no summary has been generated yet.
	GetSummary(ctx context.Context, meetingID string) (*core.Summary, error)
}
