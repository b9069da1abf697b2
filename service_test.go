package minutes

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/poiesic/minutes/ai/mock"
	"github.com/poiesic/minutes/buffer"
	"github.com/poiesic/minutes/config"
	"github.com/poiesic/minutes/core"
	"github.com/poiesic/minutes/jobs"
	"github.com/poiesic/minutes/lifecycle"
	"github.com/poiesic/minutes/metrics"
	"github.com/poiesic/minutes/storage"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	svc      *Service
	embedder *mock.MockEmbedder
	answer   *mock.MockAnswerModel
}

func newTestService(t *testing.T, dbPath string, opts ...Option) *fixture {
	t.Helper()
	f := &fixture{embedder: mock.NewMockEmbedder(), answer: mock.NewMockAnswerModel()}
	base := []Option{
		WithProvider(mock.NewMockProviderWithServices(f.embedder, f.answer)),
		WithJobsConfig(&jobs.Config{Concurrency: 2, MaxAttempts: 2, BaseDelay: 10 * time.Millisecond}),
		WithShutdownTimeout(5 * time.Second),
	}
	if dbPath == "" {
		base = append(base, WithInMemory())
	}
	svc, err := NewService(dbPath, append(base, opts...)...)
	require.NoError(t, err)
	f.svc = svc
	return f
}

func fragment(speaker, name string, offset int64, text string) core.Fragment {
	return core.Fragment{SpeakerID: speaker, SpeakerName: name, StartOffset: offset, Duration: 2000, Text: text}
}

func waitForJobs(t *testing.T, svc *Service, completed uint64) {
	t.Helper()
	require.Eventually(t, func() bool {
		st := svc.Stats().Jobs
		return st.Completed+st.Failed >= completed && st.Running == 0 && st.Pending == 0 && st.Delayed == 0
	}, 5*time.Second, 10*time.Millisecond)
}

func TestNewService(t *testing.T) {
	t.Run("in memory", func(t *testing.T) {
		f := newTestService(t, "")
		defer f.svc.Close()

		assert.NotNil(t, f.svc.engine)
		assert.NotNil(t, f.svc.machine)
		assert.Nil(t, f.svc.metrics)
	})

	t.Run("error with invalid path", func(t *testing.T) {
		tmpFile := filepath.Join(t.TempDir(), "not_a_dir")
		require.NoError(t, os.WriteFile(tmpFile, []byte("test"), 0o644))

		svc, err := NewService(tmpFile, WithProvider(mock.NewMockProvider()))
		assert.Error(t, err)
		assert.Nil(t, svc)
	})

	t.Run("missing prompt dir fails startup", func(t *testing.T) {
		provider := mock.NewMockProviderWithServices(mock.NewMockEmbedder(), mock.NewMockAnswerModel())
		svc, err := NewService("", WithInMemory(), WithProvider(provider),
			WithPromptsDir(filepath.Join(t.TempDir(), "missing")))
		assert.Error(t, err)
		assert.Nil(t, svc)
		assert.True(t, provider.Closed(), "provider is released on failed start")
	})

	t.Run("options from config", func(t *testing.T) {
		cfg := config.Default()
		cfg.Buffer.MaxBufferSize = 3
		f := newTestService(t, "", OptionsFromConfig(cfg)...)
		defer f.svc.Close()

		assert.Equal(t, cfg.Vector.Collection, f.svc.engine.Config().Collection)
		assert.Equal(t, cfg.AI.AnswerModel, f.svc.engine.Config().Generate.Model)
	})
}

func TestService_CreateMeeting(t *testing.T) {
	f := newTestService(t, "")
	defer f.svc.Close()
	ctx := context.Background()

	m, err := f.svc.CreateMeeting(ctx, "standup", "Daily standup")
	require.NoError(t, err)
	assert.Equal(t, core.MeetingScheduled, m.Status)

	_, err = f.svc.CreateMeeting(ctx, "standup", "again")
	assert.ErrorIs(t, err, ErrMeetingExists)

	_, err = f.svc.CreateMeeting(ctx, "", "untitled")
	assert.Error(t, err)

	stored, err := f.svc.Meeting(ctx, "standup")
	require.NoError(t, err)
	assert.Equal(t, "Daily standup", stored.Title)

	all, err := f.svc.Meetings(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestService_EndToEnd(t *testing.T) {
	reg := prometheus.NewRegistry()
	f := newTestService(t, "", WithMetrics(reg))
	defer f.svc.Close()
	ctx := context.Background()

	_, err := f.svc.CreateMeeting(ctx, "m1", "Planning")
	require.NoError(t, err)

	res := f.svc.TransitionFromBotState(ctx, "m1", "in_call_recording")
	require.True(t, res.OK(), "%v", res.Err)
	assert.Equal(t, core.MeetingLive, res.To)

	require.NoError(t, f.svc.AddFragment(ctx, "m1", fragment("alice", "Alice", 0, "We ship the release on Friday")))
	require.NoError(t, f.svc.AddFragment(ctx, "m1", fragment("bob", "Bob", 5000, "I will update the changelog")))
	assert.Equal(t, 2, f.svc.buffers.Pending("m1"))

	res = f.svc.TransitionFromBotState(ctx, "m1", "call_ended")
	require.True(t, res.OK(), "%v", res.Err)
	assert.Equal(t, 0, f.svc.buffers.Pending("m1"))
	waitForJobs(t, f.svc, 1)

	stored, err := f.svc.Meeting(ctx, "m1")
	require.NoError(t, err)
	assert.Equal(t, core.MeetingPast, stored.Status)
	assert.False(t, stored.StartedAt.IsZero())
	assert.False(t, stored.EndedAt.IsZero())

	entries, err := f.svc.repos.Transcripts.GetTranscriptEntries(ctx, "m1")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Len(t, entries[0].Fragments, 2)

	summary, err := f.svc.Summary(ctx, "m1")
	require.NoError(t, err)
	assert.Equal(t, mock.DefaultAnswer, summary.Content)

	qa, err := f.svc.AskQuestion(ctx, "m1", "u1", "When do we ship?")
	require.NoError(t, err)
	assert.Equal(t, core.QAStatusAnswered, qa.Status)
	assert.Equal(t, mock.DefaultAnswer, qa.Answer)
	assert.NotEmpty(t, qa.Sources)

	history, err := f.svc.History(ctx, "m1", 10)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, qa.Id, history[0].Id)

	assert.Equal(t, 1.0, testutil.ToFloat64(f.svc.metrics.Questions.WithLabelValues(metrics.OutcomeAnswered)))
	assert.Equal(t, 1.0, testutil.ToFloat64(f.svc.metrics.Transitions.WithLabelValues(string(core.MeetingPast), "ok")))
}

func TestService_Transition(t *testing.T) {
	f := newTestService(t, "")
	defer f.svc.Close()
	ctx := context.Background()

	_, err := f.svc.CreateMeeting(ctx, "m1", "Retro")
	require.NoError(t, err)

	res := f.svc.Transition(ctx, "m1", core.MeetingPast)
	assert.ErrorIs(t, res.Err, lifecycle.ErrInvalidTransition)

	res = f.svc.TransitionFromBotState(ctx, "m1", "teleported")
	assert.ErrorIs(t, res.Err, lifecycle.ErrUnknownBotState)

	res = f.svc.Transition(ctx, "missing", core.MeetingLive)
	assert.ErrorIs(t, res.Err, storage.ErrNotFound)

	res = f.svc.Transition(ctx, "m1", core.MeetingCancelled)
	require.True(t, res.OK())
	stored, err := f.svc.Meeting(ctx, "m1")
	require.NoError(t, err)
	assert.Equal(t, core.MeetingCancelled, stored.Status)
}

func TestService_AskQuestionError(t *testing.T) {
	reg := prometheus.NewRegistry()
	f := newTestService(t, "", WithMetrics(reg))
	defer f.svc.Close()
	ctx := context.Background()

	f.embedder.EmbedTextsFunc = func(ctx context.Context, texts []string) ([][]float32, error) {
		return nil, errors.New("embedding backend down")
	}
	f.embedder.EmbedTextFunc = func(ctx context.Context, text string) ([]float32, error) {
		return nil, errors.New("embedding backend down")
	}

	qa, err := f.svc.AskQuestion(ctx, "m1", "u1", "anything?")
	require.Error(t, err)
	require.NotNil(t, qa)
	assert.Equal(t, core.QAStatusError, qa.Status)
	assert.Equal(t, 0, f.answer.CallCount())
	assert.Equal(t, 1.0, testutil.ToFloat64(f.svc.metrics.Questions.WithLabelValues(metrics.OutcomeError)))
}

func TestService_SizeFlush(t *testing.T) {
	f := newTestService(t, "", WithBufferConfig(&buffer.Config{
		MaxBufferSize: 2,
		MaxBufferAge:  time.Hour,
		FlushInterval: time.Hour,
		MaxMeetings:   10,
	}))
	defer f.svc.Close()
	ctx := context.Background()

	require.NoError(t, f.svc.AddFragment(ctx, "m1", fragment("alice", "Alice", 0, "first")))
	require.NoError(t, f.svc.AddFragment(ctx, "m1", fragment("alice", "Alice", 1000, "second")))
	waitForJobs(t, f.svc, 1)

	n, err := f.svc.repos.Transcripts.CountTranscriptEntries(ctx, "m1")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestService_CloseFlushesBuffers(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "db")
	ctx := context.Background()

	f := newTestService(t, dbPath)
	require.NoError(t, f.svc.AddFragment(ctx, "m1", fragment("alice", "Alice", 0, "pending at shutdown")))
	require.NoError(t, f.svc.Close())

	f = newTestService(t, dbPath)
	defer f.svc.Close()

	entries, err := f.svc.repos.Transcripts.GetTranscriptEntries(ctx, "m1")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "pending at shutdown", entries[0].Fragments[0].Text)

	n, err := f.svc.Reindex(ctx, "m1")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestService_HandleJobRejectsUnknownWork(t *testing.T) {
	f := newTestService(t, "")
	defer f.svc.Close()

	err := f.svc.handleJob(context.Background(), &jobs.Job{Kind: "other"})
	assert.ErrorIs(t, err, ErrUnknownJobKind)

	err = f.svc.handleJob(context.Background(), &jobs.Job{Kind: JobStoreTranscript, Payload: "nope"})
	assert.ErrorIs(t, err, ErrInvalidPayload)
}

func TestService_AddFragmentAfterMeetingEnded(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "db")
	ctx := context.Background()

	f := newTestService(t, dbPath)
	_, err := f.svc.CreateMeeting(ctx, "m1", "Sync")
	require.NoError(t, err)
	require.True(t, f.svc.Transition(ctx, "m1", core.MeetingLive).OK())
	require.NoError(t, f.svc.AddFragment(ctx, "m1", fragment("alice", "Alice", 0, "before the end")))
	require.True(t, f.svc.Transition(ctx, "m1", core.MeetingPast).OK())

	err = f.svc.AddFragment(ctx, "m1", fragment("alice", "Alice", 5000, "after the end"))
	assert.ErrorIs(t, err, buffer.ErrMeetingEnded)
	assert.Zero(t, f.svc.Stats().Buffer.ActiveMeetings)
	waitForJobs(t, f.svc, 1)
	require.NoError(t, f.svc.Close())

	// A fresh process knows the meeting ended from its stored status
	f = newTestService(t, dbPath)
	defer f.svc.Close()
	err = f.svc.AddFragment(ctx, "m1", fragment("alice", "Alice", 6000, "much later"))
	assert.ErrorIs(t, err, buffer.ErrMeetingEnded)
	assert.Zero(t, f.svc.Stats().Buffer.ActiveMeetings)

	entries, err := f.svc.repos.Transcripts.GetTranscriptEntries(ctx, "m1")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "before the end", entries[0].Fragments[0].Text)
}
