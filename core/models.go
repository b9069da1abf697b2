package core

import (
	"encoding/binary"
	"strconv"
	"strings"
	"time"

	"github.com/go-crypt/x/blake2b"
)

// ID is a content-derived identifier for durable entities.
type ID uint64

// IDFromContent generates a deterministic ID from text content using BLAKE2b hashing.
// This ensures that identical content produces identical IDs.
func IDFromContent(text string) ID {
	h, _ := blake2b.New(8, nil) // 8 bytes = 64 bits
	h.Write([]byte(text))
	sum := h.Sum(nil)
	return ID(binary.LittleEndian.Uint64(sum))
}

// Fragment is one speech-to-text result for a short time span.
// Offsets are milliseconds from the start of the meeting recording.
type Fragment struct {
	SpeakerID   string `json:"speakerId"`
	SpeakerName string `json:"speakerName"`
	IsHost      bool   `json:"isHost,omitempty"`
	StartOffset int64  `json:"startOffset"`
	Duration    int64  `json:"duration"`
	Text        string `json:"text"`
	WordCount   int    `json:"wordCount"`
}

// Timestamp returns the fragment position used for chunk windowing.
func (f Fragment) Timestamp() int64 {
	return f.StartOffset
}

// End returns the offset at which the fragment stops.
func (f Fragment) End() int64 {
	return f.StartOffset + f.Duration
}

// Chunk is a merged run of same-speaker fragments within a time window.
type Chunk struct {
	Text         string
	SpeakerID    string
	SpeakerName  string
	Timestamp    int64 // latest fragment timestamp merged into the chunk
	SegmentCount int
}

// Content returns the text that gets embedded for the chunk.
func (c Chunk) Content() string {
	return c.SpeakerName + ": " + c.Text
}

// TranscriptEntry is one flush worth of fragments for a meeting.
type TranscriptEntry struct {
	Id          ID
	MeetingID   string
	Fragments   []Fragment
	StartOffset int64
	EndOffset   int64
	CreatedAt   time.Time
}

// NewTranscriptEntry builds an entry spanning the given fragments. The id is
// derived from the meeting and fragment contents so a retried flush of the same
// snapshot overwrites instead of appending a duplicate.
func NewTranscriptEntry(meetingID string, fragments []Fragment) *TranscriptEntry {
	entry := &TranscriptEntry{
		MeetingID: meetingID,
		Fragments: fragments,
		CreatedAt: time.Now(),
	}
	var b strings.Builder
	b.WriteString(meetingID)
	for i, f := range fragments {
		if i == 0 || f.StartOffset < entry.StartOffset {
			entry.StartOffset = f.StartOffset
		}
		if end := f.End(); i == 0 || end > entry.EndOffset {
			entry.EndOffset = end
		}
		b.WriteByte('|')
		b.WriteString(f.SpeakerID)
		b.WriteByte('@')
		b.WriteString(strconv.FormatInt(f.StartOffset, 10))
		b.WriteByte(':')
		b.WriteString(f.Text)
	}
	entry.Id = IDFromContent(b.String())
	return entry
}

// QAStatus tracks the outcome of a question.
type QAStatus string

const (
	QAStatusAsking   QAStatus = "asking"
	QAStatusAnswered QAStatus = "answered"
	QAStatusError    QAStatus = "error"
)

// QAEntry records one question asked about a meeting and its outcome.
type QAEntry struct {
	Id        string
	UserID    string
	MeetingID string
	Question  string
	Answer    string
	Status    QAStatus
	Sources   []string
	CreatedAt time.Time
}

// MeetingStatus is a meeting's lifecycle state.
type MeetingStatus string

const (
	MeetingScheduled MeetingStatus = "SCHEDULED"
	MeetingLive      MeetingStatus = "LIVE"
	MeetingPast      MeetingStatus = "PAST"
	MeetingCancelled MeetingStatus = "CANCELLED"
	MeetingNoShow    MeetingStatus = "NO_SHOW"
)

// Meeting is the minimal meeting record the pipeline needs.
type Meeting struct {
	Id        string
	Title     string
	Status    MeetingStatus
	CreatedAt time.Time
	UpdatedAt time.Time
	StartedAt time.Time
	EndedAt   time.Time
}

// Summary is the rolling summary of a meeting, replaced on each refresh.
type Summary struct {
	MeetingID     string
	Content       string
	FragmentCount int
	UpdatedAt     time.Time
}
