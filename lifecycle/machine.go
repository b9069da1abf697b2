// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package lifecycle implements the meeting state machine.
//
//	SCHEDULED -> LIVE | CANCELLED | NO_SHOW
//	LIVE      -> PAST
//
// PAST, CANCELLED and NO_SHOW are terminal. Transitions run the exit hooks of
// the current state, then the enter hooks of the target; a failing hook rolls
// the meeting back. Entering PAST final-flushes the meeting's transcript
// buffer.
package lifecycle

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/poiesic/minutes/core"
	"github.com/poiesic/minutes/storage"
)

var transitions = map[core.MeetingStatus][]core.MeetingStatus{
	core.MeetingScheduled: {core.MeetingLive, core.MeetingCancelled, core.MeetingNoShow},
	core.MeetingLive:      {core.MeetingPast},
}

// botStates maps recording bot status labels to meeting states.
var botStates = map[string]core.MeetingStatus{
	"in_call_not_recording":        core.MeetingLive,
	"in_call_recording":            core.MeetingLive,
	"recording_permission_allowed": core.MeetingLive,
	"call_ended":                   core.MeetingPast,
	"done":                         core.MeetingPast,
	"fatal":                        core.MeetingNoShow,
	"canceled":                     core.MeetingCancelled,
}

// CanTransition reports whether from -> to is an edge of the lifecycle.
func CanTransition(from, to core.MeetingStatus) bool {
	return slices.Contains(transitions[from], to)
}

// IsTerminal reports whether no transition leaves status.
func IsTerminal(status core.MeetingStatus) bool {
	return len(transitions[status]) == 0
}

// StatusForBotState maps a bot status label to a meeting state.
// Labels are matched case-insensitively.
func StatusForBotState(label string) (core.MeetingStatus, bool) {
	status, ok := botStates[strings.ToLower(strings.TrimSpace(label))]
	return status, ok
}

// Result describes the outcome of a transition.
type Result struct {
	From    core.MeetingStatus
	To      core.MeetingStatus
	Changed bool
	Err     error
}

// OK reports whether the transition succeeded.
func (r Result) OK() bool {
	return r.Err == nil
}

// Hook runs while a meeting enters or leaves a state.
type Hook func(ctx context.Context, meeting *core.Meeting) error

// Flusher final-flushes a meeting's transcript buffer.
type Flusher interface {
	FinalFlush(ctx context.Context, meetingID string) error
}

// Option configures a Machine.
type Option func(*Machine) error

// WithLogger sets a custom logger.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Machine) error {
		if logger == nil {
			logger = slog.Default()
		}
		m.logger = logger.With("component", "lifecycle")
		return nil
	}
}

// WithFlusher final-flushes the meeting's buffer when it enters PAST.
// Flush errors are logged and do not fail the transition.
func WithFlusher(flusher Flusher) Option {
	return func(m *Machine) error {
		if flusher == nil {
			return nil
		}
		m.RegisterEnterHook(core.MeetingPast, func(ctx context.Context, meeting *core.Meeting) error {
			if err := flusher.FinalFlush(ctx, meeting.Id); err != nil {
				m.logger.Error("final flush failed", "meeting", meeting.Id, "err", err)
			}
			return nil
		})
		return nil
	}
}

// WithMeetingRepository persists every successful transition.
// A save failure rolls the meeting back.
func WithMeetingRepository(repo storage.MeetingRepository) Option {
	return func(m *Machine) error {
		m.repo = repo
		return nil
	}
}

// WithClock overrides time.Now for lifecycle timestamps.
func WithClock(now func() time.Time) Option {
	return func(m *Machine) error {
		if now != nil {
			m.now = now
		}
		return nil
	}
}

// Machine runs meeting transitions. Transitions of the same meeting are
// serialized; different meetings transition independently.
type Machine struct {
	repo   storage.MeetingRepository
	now    func() time.Time
	logger *slog.Logger

	hooksMu sync.RWMutex
	enter   map[core.MeetingStatus][]Hook
	exit    map[core.MeetingStatus][]Hook

	locksMu sync.Mutex
	locks   map[string]*meetingLock
}

// meetingLock serializes transitions of one meeting. refs counts holders and
// waiters so the entry can be dropped once nobody uses it.
type meetingLock struct {
	mu   sync.Mutex
	refs int
}

// NewMachine creates a state machine.
func NewMachine(opts ...Option) (*Machine, error) {
	m := &Machine{
		now:    time.Now,
		logger: slog.Default().With("component", "lifecycle"),
		enter:  make(map[core.MeetingStatus][]Hook),
		exit:   make(map[core.MeetingStatus][]Hook),
		locks:  make(map[string]*meetingLock),
	}
	for _, opt := range opts {
		if err := opt(m); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// RegisterEnterHook adds a hook run after a meeting enters status.
func (m *Machine) RegisterEnterHook(status core.MeetingStatus, hook Hook) {
	m.hooksMu.Lock()
	defer m.hooksMu.Unlock()
	m.enter[status] = append(m.enter[status], hook)
}

// RegisterExitHook adds a hook run before a meeting leaves status.
func (m *Machine) RegisterExitHook(status core.MeetingStatus, hook Hook) {
	m.hooksMu.Lock()
	defer m.hooksMu.Unlock()
	m.exit[status] = append(m.exit[status], hook)
}

// Transition moves meeting to target. Moving to the current state succeeds
// without running hooks. On failure the meeting is left unchanged.
func (m *Machine) Transition(ctx context.Context, meeting *core.Meeting, target core.MeetingStatus) Result {
	if meeting == nil {
		return Result{To: target, Err: ErrNilMeeting}
	}
	unlock := m.lock(meeting.Id)
	defer unlock()
	return m.transition(ctx, meeting, target)
}

// TransitionByID loads the meeting from the repository and transitions it.
// Loading happens under the meeting's lock, so concurrent requests for the
// same meeting always see the outcome of the previous one.
func (m *Machine) TransitionByID(ctx context.Context, meetingID string, target core.MeetingStatus) Result {
	if m.repo == nil {
		return Result{To: target, Err: ErrRepositoryRequired}
	}
	unlock := m.lock(meetingID)
	defer unlock()

	meeting, err := m.repo.GetMeeting(ctx, meetingID)
	if err != nil {
		return Result{To: target, Err: err}
	}
	return m.transition(ctx, meeting, target)
}

func (m *Machine) transition(ctx context.Context, meeting *core.Meeting, target core.MeetingStatus) Result {
	result := Result{From: meeting.Status, To: target}
	if err := core.ValidateMeetingStatus(target); err != nil {
		result.Err = err
		return result
	}
	if meeting.Status == target {
		return result
	}
	if !CanTransition(meeting.Status, target) {
		result.Err = fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, meeting.Status, target)
		m.logger.Warn("rejected transition", "meeting", meeting.Id, "from", meeting.Status, "to", target)
		return result
	}

	before := *meeting
	if err := m.runHooks(ctx, m.hooks(m.exit, meeting.Status), meeting); err != nil {
		*meeting = before
		result.Err = fmt.Errorf("%w: exit %s: %w", ErrHookFailed, before.Status, err)
		return result
	}

	now := m.now().UTC()
	meeting.Status = target
	meeting.UpdatedAt = now
	switch target {
	case core.MeetingLive:
		if meeting.StartedAt.IsZero() {
			meeting.StartedAt = now
		}
	case core.MeetingPast:
		meeting.EndedAt = now
	}

	if err := m.runHooks(ctx, m.hooks(m.enter, target), meeting); err != nil {
		*meeting = before
		result.Err = fmt.Errorf("%w: enter %s: %w", ErrHookFailed, target, err)
		return result
	}

	if m.repo != nil {
		if err := m.repo.SaveMeeting(ctx, meeting); err != nil {
			*meeting = before
			result.Err = fmt.Errorf("save meeting %s: %w", meeting.Id, err)
			return result
		}
	}

	result.Changed = true
	m.logger.Info("meeting transitioned", "meeting", meeting.Id, "from", before.Status, "to", target)
	return result
}

// TransitionFromBotState maps a bot status label to a state and transitions
// to it. Unknown labels fail without changing the meeting.
func (m *Machine) TransitionFromBotState(ctx context.Context, meeting *core.Meeting, label string) Result {
	target, ok := StatusForBotState(label)
	if !ok {
		result := Result{Err: fmt.Errorf("%w: %q", ErrUnknownBotState, label)}
		if meeting != nil {
			result.From = meeting.Status
			result.To = meeting.Status
		}
		return result
	}
	return m.Transition(ctx, meeting, target)
}

// TransitionFromBotStateByID is TransitionFromBotState for a stored meeting.
func (m *Machine) TransitionFromBotStateByID(ctx context.Context, meetingID, label string) Result {
	target, ok := StatusForBotState(label)
	if !ok {
		return Result{Err: fmt.Errorf("%w: %q", ErrUnknownBotState, label)}
	}
	return m.TransitionByID(ctx, meetingID, target)
}

func (m *Machine) hooks(table map[core.MeetingStatus][]Hook, status core.MeetingStatus) []Hook {
	m.hooksMu.RLock()
	defer m.hooksMu.RUnlock()
	return slices.Clone(table[status])
}

func (m *Machine) runHooks(ctx context.Context, hooks []Hook, meeting *core.Meeting) error {
	for _, hook := range hooks {
		if err := m.callHook(ctx, hook, meeting); err != nil {
			return err
		}
	}
	return nil
}

// callHook turns a panicking hook into an error.
func (m *Machine) callHook(ctx context.Context, hook Hook, meeting *core.Meeting) (err error) {
	defer func() {
		if r := recover(); r != nil {
			m.logger.Error("transition hook panicked", "meeting", meeting.Id, "panic", r)
			err = fmt.Errorf("hook panicked: %v", r)
		}
	}()
	return hook(ctx, meeting)
}

func (m *Machine) lock(meetingID string) func() {
	m.locksMu.Lock()
	l, ok := m.locks[meetingID]
	if !ok {
		l = &meetingLock{}
		m.locks[meetingID] = l
	}
	l.refs++
	m.locksMu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		m.locksMu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(m.locks, meetingID)
		}
		m.locksMu.Unlock()
	}
}
