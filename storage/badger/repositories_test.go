package badger

import (
	"context"
	"testing"
	"time"

	"github.com/poiesic/minutes/core"
	"github.com/poiesic/minutes/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRepos(t *testing.T) *Repositories {
	t.Helper()
	repos, err := NewMemoryRepositories()
	require.NoError(t, err)
	t.Cleanup(func() { repos.Backend.Close() })
	return repos
}

func TestMeetingRepository(t *testing.T) {
	repos := newTestRepos(t)
	ctx := context.Background()

	_, err := repos.Meetings.GetMeeting(ctx, "m1")
	assert.ErrorIs(t, err, storage.ErrNotFound)

	m := &core.Meeting{Id: "m1", Title: "Standup", Status: core.MeetingScheduled}
	require.NoError(t, repos.Meetings.SaveMeeting(ctx, m))
	assert.False(t, m.CreatedAt.IsZero())
	created := m.CreatedAt

	m.Status = core.MeetingLive
	require.NoError(t, repos.Meetings.SaveMeeting(ctx, m))

	got, err := repos.Meetings.GetMeeting(ctx, "m1")
	require.NoError(t, err)
	assert.Equal(t, core.MeetingLive, got.Status)
	assert.True(t, created.Equal(got.CreatedAt))

	require.NoError(t, repos.Meetings.SaveMeeting(ctx, &core.Meeting{Id: "m0", Status: core.MeetingPast}))
	all, err := repos.Meetings.ListMeetings(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "m0", all[0].Id)
}

func TestMeetingRepository_RejectsInvalid(t *testing.T) {
	repos := newTestRepos(t)
	err := repos.Meetings.SaveMeeting(context.Background(), &core.Meeting{Id: "m1", Status: "bogus"})
	assert.ErrorIs(t, err, core.ErrInvalidStatus)
}

func transcriptEntry(meetingID string, offsets ...int64) *core.TranscriptEntry {
	var fragments []core.Fragment
	for _, off := range offsets {
		fragments = append(fragments, core.Fragment{SpeakerID: "s", SpeakerName: "S", Text: "t", StartOffset: off, Duration: 100})
	}
	return core.NewTranscriptEntry(meetingID, fragments)
}

func TestTranscriptRepository_SaveAndQuery(t *testing.T) {
	repos := newTestRepos(t)
	ctx := context.Background()

	e1 := transcriptEntry("m1", 1000, 2000)
	e2 := transcriptEntry("m1", 60000)
	e3 := transcriptEntry("m1", 120000, 130000)
	other := transcriptEntry("m10", 500)

	for _, e := range []*core.TranscriptEntry{e3, e1, other, e2} {
		require.NoError(t, repos.Transcripts.SaveTranscriptEntry(ctx, e))
	}

	all, err := repos.Transcripts.GetTranscriptEntries(ctx, "m1")
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, e1.Id, all[0].Id)
	assert.Equal(t, e2.Id, all[1].Id)
	assert.Equal(t, e3.Id, all[2].Id)

	ranged, err := repos.Transcripts.GetTranscriptEntriesByRange(ctx, "m1", 1000, 120000)
	require.NoError(t, err)
	require.Len(t, ranged, 2)
	assert.Equal(t, e2.Id, ranged[1].Id)

	recent, err := repos.Transcripts.GetRecentTranscriptEntries(ctx, "m1", 2)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.Equal(t, e3.Id, recent[0].Id)
	assert.Equal(t, e2.Id, recent[1].Id)

	count, err := repos.Transcripts.CountTranscriptEntries(ctx, "m1")
	require.NoError(t, err)
	assert.Equal(t, 3, count)
}

func TestTranscriptRepository_SaveIsIdempotent(t *testing.T) {
	repos := newTestRepos(t)
	ctx := context.Background()

	e := transcriptEntry("m1", 1000)
	require.NoError(t, repos.Transcripts.SaveTranscriptEntry(ctx, e))
	require.NoError(t, repos.Transcripts.SaveTranscriptEntry(ctx, transcriptEntry("m1", 1000)))

	count, err := repos.Transcripts.CountTranscriptEntries(ctx, "m1")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestTranscriptRepository_Delete(t *testing.T) {
	repos := newTestRepos(t)
	ctx := context.Background()

	require.NoError(t, repos.Transcripts.SaveTranscriptEntry(ctx, transcriptEntry("m1", 1000)))
	require.NoError(t, repos.Transcripts.SaveTranscriptEntry(ctx, transcriptEntry("m2", 1000)))

	require.NoError(t, repos.Transcripts.DeleteTranscriptEntries(ctx, "m1"))

	count, err := repos.Transcripts.CountTranscriptEntries(ctx, "m1")
	require.NoError(t, err)
	assert.Zero(t, count)
	count, err = repos.Transcripts.CountTranscriptEntries(ctx, "m2")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestTranscriptRepository_InvalidQueries(t *testing.T) {
	repos := newTestRepos(t)
	ctx := context.Background()

	_, err := repos.Transcripts.GetTranscriptEntriesByRange(ctx, "m1", 10, 5)
	assert.ErrorIs(t, err, storage.ErrInvalidQuery)
	_, err = repos.Transcripts.GetRecentTranscriptEntries(ctx, "m1", 0)
	assert.ErrorIs(t, err, storage.ErrInvalidQuery)
	assert.ErrorIs(t, repos.Transcripts.SaveTranscriptEntry(ctx, &core.TranscriptEntry{}), core.ErrEmptyMeetingID)
}

func TestQARepository_History(t *testing.T) {
	repos := newTestRepos(t)
	ctx := context.Background()

	base := time.Now().UTC().Add(-time.Hour)
	for i, q := range []string{"first?", "second?", "third?"} {
		require.NoError(t, repos.QA.SaveQAEntry(ctx, &core.QAEntry{
			Id:        q,
			MeetingID: "m1",
			UserID:    "u1",
			Question:  q,
			Status:    core.QAStatusAnswered,
			CreatedAt: base.Add(time.Duration(i) * time.Minute),
		}))
	}
	require.NoError(t, repos.QA.SaveQAEntry(ctx, &core.QAEntry{Id: "x", MeetingID: "m2", Question: "x?", Status: core.QAStatusError}))

	history, err := repos.QA.GetQAHistory(ctx, "m1", 0)
	require.NoError(t, err)
	require.Len(t, history, 3)
	assert.Equal(t, "third?", history[0].Question)
	assert.Equal(t, "first?", history[2].Question)

	limited, err := repos.QA.GetQAHistory(ctx, "m1", 1)
	require.NoError(t, err)
	require.Len(t, limited, 1)
	assert.Equal(t, "third?", limited[0].Question)

	got, err := repos.QA.GetQAEntry(ctx, "x")
	require.NoError(t, err)
	assert.Equal(t, core.QAStatusError, got.Status)

	_, err = repos.QA.GetQAEntry(ctx, "missing")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestQARepository_ResaveMovesIndex(t *testing.T) {
	repos := newTestRepos(t)
	ctx := context.Background()

	e := &core.QAEntry{Id: "q", MeetingID: "m1", Question: "q?", Status: core.QAStatusAsking, CreatedAt: time.Now().UTC().Add(-time.Minute)}
	require.NoError(t, repos.QA.SaveQAEntry(ctx, e))

	e.Status = core.QAStatusAnswered
	e.CreatedAt = time.Now().UTC()
	require.NoError(t, repos.QA.SaveQAEntry(ctx, e))

	history, err := repos.QA.GetQAHistory(ctx, "m1", 0)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, core.QAStatusAnswered, history[0].Status)
}

func TestSummaryRepository(t *testing.T) {
	repos := newTestRepos(t)
	ctx := context.Background()

	_, err := repos.Summaries.GetSummary(ctx, "m1")
	assert.ErrorIs(t, err, storage.ErrNotFound)

	require.NoError(t, repos.Summaries.SaveSummary(ctx, &core.Summary{MeetingID: "m1", Content: "v1", FragmentCount: 3}))
	require.NoError(t, repos.Summaries.SaveSummary(ctx, &core.Summary{MeetingID: "m1", Content: "v2", FragmentCount: 5}))

	got, err := repos.Summaries.GetSummary(ctx, "m1")
	require.NoError(t, err)
	assert.Equal(t, "v2", got.Content)
	assert.Equal(t, 5, got.FragmentCount)
	assert.False(t, got.UpdatedAt.IsZero())
}
