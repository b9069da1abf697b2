package lifecycle

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/poiesic/minutes/core"
	"github.com/poiesic/minutes/storage/badger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingFlusher struct {
	mu    sync.Mutex
	calls []string
	err   error
}

func (f *countingFlusher) FinalFlush(ctx context.Context, meetingID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, meetingID)
	return f.err
}

func (f *countingFlusher) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func newMeeting(status core.MeetingStatus) *core.Meeting {
	return &core.Meeting{Id: "m1", Title: "Standup", Status: status}
}

func TestCanTransition(t *testing.T) {
	all := []core.MeetingStatus{
		core.MeetingScheduled, core.MeetingLive, core.MeetingPast, core.MeetingCancelled, core.MeetingNoShow,
	}
	allowed := map[[2]core.MeetingStatus]bool{
		{core.MeetingScheduled, core.MeetingLive}:      true,
		{core.MeetingScheduled, core.MeetingCancelled}: true,
		{core.MeetingScheduled, core.MeetingNoShow}:    true,
		{core.MeetingLive, core.MeetingPast}:           true,
	}
	for _, from := range all {
		for _, to := range all {
			assert.Equal(t, allowed[[2]core.MeetingStatus{from, to}], CanTransition(from, to), "%s -> %s", from, to)
		}
	}

	assert.True(t, IsTerminal(core.MeetingPast))
	assert.True(t, IsTerminal(core.MeetingCancelled))
	assert.False(t, IsTerminal(core.MeetingLive))
}

func TestTransition_HappyPath(t *testing.T) {
	flusher := &countingFlusher{}
	now := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	m, err := NewMachine(WithFlusher(flusher), WithClock(func() time.Time { return now }))
	require.NoError(t, err)
	ctx := context.Background()
	meeting := newMeeting(core.MeetingScheduled)

	result := m.Transition(ctx, meeting, core.MeetingLive)
	require.True(t, result.OK(), result.Err)
	assert.True(t, result.Changed)
	assert.Equal(t, core.MeetingScheduled, result.From)
	assert.Equal(t, core.MeetingLive, result.To)
	assert.Equal(t, now, meeting.StartedAt)
	assert.Empty(t, flusher.Calls())

	now = now.Add(30 * time.Minute)
	result = m.Transition(ctx, meeting, core.MeetingPast)
	require.True(t, result.OK(), result.Err)
	assert.Equal(t, core.MeetingPast, meeting.Status)
	assert.Equal(t, now, meeting.EndedAt)
	assert.Equal(t, []string{"m1"}, flusher.Calls())
}

func TestTransition_InvalidEdges(t *testing.T) {
	flusher := &countingFlusher{}
	m, err := NewMachine(WithFlusher(flusher))
	require.NoError(t, err)
	ctx := context.Background()

	t.Run("scheduled to past", func(t *testing.T) {
		meeting := newMeeting(core.MeetingScheduled)
		result := m.Transition(ctx, meeting, core.MeetingPast)
		assert.ErrorIs(t, result.Err, ErrInvalidTransition)
		assert.False(t, result.Changed)
		assert.Equal(t, core.MeetingScheduled, meeting.Status)
	})

	t.Run("past is terminal", func(t *testing.T) {
		for _, target := range []core.MeetingStatus{core.MeetingScheduled, core.MeetingLive, core.MeetingCancelled, core.MeetingNoShow} {
			meeting := newMeeting(core.MeetingPast)
			result := m.Transition(ctx, meeting, target)
			assert.ErrorIs(t, result.Err, ErrInvalidTransition, target)
			assert.Equal(t, core.MeetingPast, meeting.Status)
		}
	})

	t.Run("unknown status", func(t *testing.T) {
		meeting := newMeeting(core.MeetingScheduled)
		result := m.Transition(ctx, meeting, core.MeetingStatus("ARCHIVED"))
		assert.ErrorIs(t, result.Err, core.ErrInvalidStatus)
	})

	t.Run("nil meeting", func(t *testing.T) {
		result := m.Transition(ctx, nil, core.MeetingLive)
		assert.ErrorIs(t, result.Err, ErrNilMeeting)
	})

	assert.Empty(t, flusher.Calls())
}

func TestTransition_SameStateIsNoop(t *testing.T) {
	flusher := &countingFlusher{}
	m, err := NewMachine(WithFlusher(flusher))
	require.NoError(t, err)

	meeting := newMeeting(core.MeetingPast)
	result := m.Transition(context.Background(), meeting, core.MeetingPast)
	assert.True(t, result.OK())
	assert.False(t, result.Changed)
	assert.Empty(t, flusher.Calls())
}

func TestTransition_FlushErrorDoesNotFailTransition(t *testing.T) {
	flusher := &countingFlusher{err: errors.New("sink down")}
	m, err := NewMachine(WithFlusher(flusher))
	require.NoError(t, err)

	meeting := newMeeting(core.MeetingLive)
	result := m.Transition(context.Background(), meeting, core.MeetingPast)
	assert.True(t, result.OK())
	assert.Equal(t, core.MeetingPast, meeting.Status)
	assert.Len(t, flusher.Calls(), 1)
}

func TestTransition_HookFailureRollsBack(t *testing.T) {
	boom := errors.New("hook failed")
	ctx := context.Background()

	t.Run("enter hook", func(t *testing.T) {
		m, err := NewMachine()
		require.NoError(t, err)
		m.RegisterEnterHook(core.MeetingLive, func(ctx context.Context, meeting *core.Meeting) error {
			assert.Equal(t, core.MeetingLive, meeting.Status)
			return boom
		})

		meeting := newMeeting(core.MeetingScheduled)
		result := m.Transition(ctx, meeting, core.MeetingLive)
		assert.ErrorIs(t, result.Err, ErrHookFailed)
		assert.ErrorIs(t, result.Err, boom)
		assert.Equal(t, core.MeetingScheduled, meeting.Status)
		assert.True(t, meeting.StartedAt.IsZero())
	})

	t.Run("exit hook", func(t *testing.T) {
		m, err := NewMachine()
		require.NoError(t, err)
		entered := false
		m.RegisterExitHook(core.MeetingScheduled, func(ctx context.Context, meeting *core.Meeting) error {
			return boom
		})
		m.RegisterEnterHook(core.MeetingCancelled, func(ctx context.Context, meeting *core.Meeting) error {
			entered = true
			return nil
		})

		meeting := newMeeting(core.MeetingScheduled)
		result := m.Transition(ctx, meeting, core.MeetingCancelled)
		assert.ErrorIs(t, result.Err, boom)
		assert.False(t, entered)
		assert.Equal(t, core.MeetingScheduled, meeting.Status)
	})

	t.Run("panicking hook", func(t *testing.T) {
		m, err := NewMachine()
		require.NoError(t, err)
		m.RegisterEnterHook(core.MeetingLive, func(ctx context.Context, meeting *core.Meeting) error {
			panic("boom")
		})

		meeting := newMeeting(core.MeetingScheduled)
		var result Result
		require.NotPanics(t, func() {
			result = m.Transition(ctx, meeting, core.MeetingLive)
		})
		assert.ErrorIs(t, result.Err, ErrHookFailed)
		assert.ErrorContains(t, result.Err, "boom")
		assert.False(t, result.Changed)
		assert.Equal(t, core.MeetingScheduled, meeting.Status)
		assert.True(t, meeting.StartedAt.IsZero())
	})
}

func TestTransition_HookOrder(t *testing.T) {
	m, err := NewMachine()
	require.NoError(t, err)

	var order []string
	m.RegisterExitHook(core.MeetingScheduled, func(ctx context.Context, meeting *core.Meeting) error {
		order = append(order, "exit:"+string(meeting.Status))
		return nil
	})
	m.RegisterEnterHook(core.MeetingLive, func(ctx context.Context, meeting *core.Meeting) error {
		order = append(order, "enter:"+string(meeting.Status))
		return nil
	})

	result := m.Transition(context.Background(), newMeeting(core.MeetingScheduled), core.MeetingLive)
	require.True(t, result.OK())
	assert.Equal(t, []string{"exit:SCHEDULED", "enter:LIVE"}, order)
}

func TestTransitionFromBotState(t *testing.T) {
	tests := []struct {
		label string
		from  core.MeetingStatus
		want  core.MeetingStatus
	}{
		{"in_call_not_recording", core.MeetingScheduled, core.MeetingLive},
		{"in_call_recording", core.MeetingScheduled, core.MeetingLive},
		{"recording_permission_allowed", core.MeetingScheduled, core.MeetingLive},
		{"IN_CALL_RECORDING", core.MeetingScheduled, core.MeetingLive},
		{"call_ended", core.MeetingLive, core.MeetingPast},
		{"done", core.MeetingLive, core.MeetingPast},
		{"fatal", core.MeetingScheduled, core.MeetingNoShow},
		{"canceled", core.MeetingScheduled, core.MeetingCancelled},
	}
	for _, tt := range tests {
		t.Run(tt.label, func(t *testing.T) {
			m, err := NewMachine()
			require.NoError(t, err)
			meeting := newMeeting(tt.from)
			result := m.TransitionFromBotState(context.Background(), meeting, tt.label)
			require.True(t, result.OK(), result.Err)
			assert.Equal(t, tt.want, meeting.Status)
		})
	}

	t.Run("unknown label", func(t *testing.T) {
		m, err := NewMachine()
		require.NoError(t, err)
		meeting := newMeeting(core.MeetingLive)
		result := m.TransitionFromBotState(context.Background(), meeting, "joining_call")
		assert.ErrorIs(t, result.Err, ErrUnknownBotState)
		assert.False(t, result.Changed)
		assert.Equal(t, core.MeetingLive, meeting.Status)
	})

	t.Run("call ended while scheduled is rejected", func(t *testing.T) {
		m, err := NewMachine()
		require.NoError(t, err)
		meeting := newMeeting(core.MeetingScheduled)
		result := m.TransitionFromBotState(context.Background(), meeting, "call_ended")
		assert.ErrorIs(t, result.Err, ErrInvalidTransition)
	})
}

func TestTransition_PersistsMeeting(t *testing.T) {
	repos, err := badger.NewMemoryRepositories()
	require.NoError(t, err)
	defer repos.Backend.Close()
	ctx := context.Background()

	meeting := newMeeting(core.MeetingScheduled)
	require.NoError(t, repos.Meetings.SaveMeeting(ctx, meeting))

	m, err := NewMachine(WithMeetingRepository(repos.Meetings))
	require.NoError(t, err)
	result := m.Transition(ctx, meeting, core.MeetingLive)
	require.True(t, result.OK(), result.Err)

	stored, err := repos.Meetings.GetMeeting(ctx, "m1")
	require.NoError(t, err)
	assert.Equal(t, core.MeetingLive, stored.Status)
	assert.False(t, stored.StartedAt.IsZero())
}

func TestTransition_ConcurrentPastFlushesOnce(t *testing.T) {
	flusher := &countingFlusher{}
	m, err := NewMachine(WithFlusher(flusher))
	require.NoError(t, err)

	meeting := newMeeting(core.MeetingLive)
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			m.TransitionFromBotState(context.Background(), meeting, "call_ended")
		}()
	}
	wg.Wait()

	assert.Equal(t, core.MeetingPast, meeting.Status)
	assert.Len(t, flusher.Calls(), 1)
}

func TestTransitionByID(t *testing.T) {
	ctx := context.Background()
	repos, err := badger.NewMemoryRepositories()
	require.NoError(t, err)
	defer repos.Backend.Close()
	require.NoError(t, repos.Meetings.SaveMeeting(ctx, newMeeting(core.MeetingLive)))

	flusher := &countingFlusher{}
	m, err := NewMachine(WithFlusher(flusher), WithMeetingRepository(repos.Meetings))
	require.NoError(t, err)

	labels := []string{"call_ended", "done", "call_ended", "done"}
	results := make([]Result, len(labels))
	var wg sync.WaitGroup
	for i, label := range labels {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i] = m.TransitionFromBotStateByID(ctx, "m1", label)
		}()
	}
	wg.Wait()

	changed := 0
	for _, r := range results {
		require.True(t, r.OK(), r.Err)
		if r.Changed {
			changed++
		}
	}
	assert.Equal(t, 1, changed)
	assert.Len(t, flusher.Calls(), 1)

	stored, err := repos.Meetings.GetMeeting(ctx, "m1")
	require.NoError(t, err)
	assert.Equal(t, core.MeetingPast, stored.Status)

	result := m.TransitionByID(ctx, "missing", core.MeetingLive)
	assert.Error(t, result.Err)
	result = m.TransitionFromBotStateByID(ctx, "m1", "teleported")
	assert.ErrorIs(t, result.Err, ErrUnknownBotState)

	bare, err := NewMachine()
	require.NoError(t, err)
	assert.ErrorIs(t, bare.TransitionByID(ctx, "m1", core.MeetingLive).Err, ErrRepositoryRequired)
}

func TestTransition_ReleasesMeetingLocks(t *testing.T) {
	m, err := NewMachine()
	require.NoError(t, err)
	ctx := context.Background()

	for _, id := range []string{"a", "b", "c"} {
		meeting := &core.Meeting{Id: id, Status: core.MeetingScheduled}
		require.True(t, m.Transition(ctx, meeting, core.MeetingLive).OK())
		require.True(t, m.Transition(ctx, meeting, core.MeetingPast).OK())
	}

	m.locksMu.Lock()
	defer m.locksMu.Unlock()
	assert.Empty(t, m.locks)
}
