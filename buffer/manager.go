// Package buffer accumulates live transcript fragments per meeting and hands
// them off in batches.
//
// A meeting's buffer is flushed when it holds MaxBufferSize fragments, when
// its oldest pending fragment is older than MaxBufferAge, on every
// FlushInterval tick, and one final time when the meeting ends. Only one flush
// per meeting runs at a time; a flush requested while another is in flight is
// skipped, and the fragments stay buffered for the next one. Fragments that
// arrive after a meeting's final flush are dropped.
package buffer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/poiesic/minutes/core"
)

// endedMeetings is how many final-flushed meeting ids are remembered to
// reject late fragments.
const endedMeetings = 4096

// Sink receives flushed fragments, in arrival order.
type Sink interface {
	Flush(ctx context.Context, meetingID string, fragments []core.Fragment) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ctx context.Context, meetingID string, fragments []core.Fragment) error

// Flush calls f.
func (f SinkFunc) Flush(ctx context.Context, meetingID string, fragments []core.Fragment) error {
	return f(ctx, meetingID, fragments)
}

// Config holds buffer limits.
type Config struct {
	// MaxBufferSize flushes a meeting as soon as it holds this many fragments.
	MaxBufferSize int

	// MaxBufferAge flushes a meeting whose oldest pending fragment is this old.
	MaxBufferAge time.Duration

	// FlushInterval is the period of the per-meeting flush timer.
	FlushInterval time.Duration

	// MaxMeetings caps the number of meetings buffered at once.
	MaxMeetings int
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		MaxBufferSize: 200,
		MaxBufferAge:  120 * time.Second,
		FlushInterval: 60 * time.Second,
		MaxMeetings:   100,
	}
}

// Stats is a snapshot of manager counters.
type Stats struct {
	ActiveMeetings   int
	PendingFragments int
	Flushes          uint64
	FlushedFragments uint64
	FlushErrors      uint64
	Dropped          uint64
}

// Option configures a Manager.
type Option func(*Manager) error

// WithLogger sets a custom logger.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) error {
		if logger == nil {
			logger = slog.Default()
		}
		m.logger = logger.With("component", "buffer")
		return nil
	}
}

// WithClock overrides time.Now for buffer age checks.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) error {
		if now != nil {
			m.now = now
		}
		return nil
	}
}

type meetingBuffer struct {
	fragments []core.Fragment
	// since is when the oldest pending fragment arrived.
	since      time.Time
	processing bool
	idle       chan struct{}
	stop       chan struct{}
}

// Manager owns the buffers of every active meeting.
// It is safe for concurrent use.
type Manager struct {
	sink   Sink
	config Config
	now    func() time.Time
	logger *slog.Logger

	mu      sync.Mutex
	buffers map[string]*meetingBuffer
	ended   *lru.Cache[string, struct{}]
	closed  bool
	timers  sync.WaitGroup

	flushes          atomic.Uint64
	flushedFragments atomic.Uint64
	flushErrors      atomic.Uint64
	dropped          atomic.Uint64
}

// NewManager creates a manager that hands flushed fragments to sink.
// A nil config uses DefaultConfig; zero fields keep their defaults.
func NewManager(sink Sink, config *Config, opts ...Option) (*Manager, error) {
	if sink == nil {
		return nil, ErrSinkRequired
	}
	cfg := *DefaultConfig()
	if config != nil {
		if config.MaxBufferSize > 0 {
			cfg.MaxBufferSize = config.MaxBufferSize
		}
		if config.MaxBufferAge > 0 {
			cfg.MaxBufferAge = config.MaxBufferAge
		}
		if config.FlushInterval > 0 {
			cfg.FlushInterval = config.FlushInterval
		}
		if config.MaxMeetings > 0 {
			cfg.MaxMeetings = config.MaxMeetings
		}
	}

	ended, err := lru.New[string, struct{}](endedMeetings)
	if err != nil {
		return nil, err
	}
	m := &Manager{
		sink:    sink,
		ended:   ended,
		config:  cfg,
		now:     time.Now,
		logger:  slog.Default().With("component", "buffer"),
		buffers: make(map[string]*meetingBuffer),
	}
	for _, opt := range opts {
		if err := opt(m); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// AddFragment appends a fragment to the meeting's buffer, creating it if
// needed, and flushes when a size or age limit is reached. Flush failures are
// logged, not returned.
func (m *Manager) AddFragment(ctx context.Context, meetingID string, fragment core.Fragment) error {
	if meetingID == "" {
		return core.ErrEmptyMeetingID
	}
	if err := core.ValidateFragment(&fragment); err != nil {
		return err
	}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrManagerClosed
	}
	b, ok := m.buffers[meetingID]
	if !ok {
		if m.ended.Contains(meetingID) {
			m.mu.Unlock()
			m.dropped.Add(1)
			m.logger.Warn("dropping fragment, meeting has ended", "meeting", meetingID)
			return ErrMeetingEnded
		}
		if len(m.buffers) >= m.config.MaxMeetings {
			m.mu.Unlock()
			m.dropped.Add(1)
			m.logger.Warn("dropping fragment, meeting buffer limit reached",
				"meeting", meetingID, "limit", m.config.MaxMeetings)
			return ErrTooManyMeetings
		}
		b = &meetingBuffer{stop: make(chan struct{})}
		m.buffers[meetingID] = b
		m.timers.Add(1)
		go m.watch(meetingID, b)
		m.logger.Debug("opened meeting buffer", "meeting", meetingID)
	}
	now := m.now()
	if len(b.fragments) == 0 {
		b.since = now
	}
	b.fragments = append(b.fragments, fragment)
	full := len(b.fragments) >= m.config.MaxBufferSize
	stale := now.Sub(b.since) >= m.config.MaxBufferAge
	m.mu.Unlock()

	if full || stale {
		reason := "size"
		if !full {
			reason = "age"
		}
		if err := m.flush(ctx, meetingID, b, reason); err != nil {
			m.logger.Error("flush failed", "meeting", meetingID, "reason", reason, "err", err)
		}
	}
	return nil
}

// Flush hands the meeting's pending fragments to the sink. It returns nil
// without flushing when the buffer is empty, unknown or already flushing.
// On sink failure the fragments are put back at the head of the buffer.
func (m *Manager) Flush(ctx context.Context, meetingID string) error {
	m.mu.Lock()
	b, ok := m.buffers[meetingID]
	m.mu.Unlock()
	if !ok {
		return nil
	}
	return m.flush(ctx, meetingID, b, "manual")
}

func (m *Manager) flush(ctx context.Context, meetingID string, b *meetingBuffer, reason string) error {
	m.mu.Lock()
	if m.buffers[meetingID] != b || b.processing || len(b.fragments) == 0 {
		m.mu.Unlock()
		return nil
	}
	snapshot := b.fragments
	b.fragments = nil
	b.processing = true
	b.idle = make(chan struct{})
	m.mu.Unlock()

	err := m.deliver(ctx, meetingID, snapshot, reason)

	m.mu.Lock()
	if err != nil {
		b.fragments = append(snapshot, b.fragments...)
	}
	b.processing = false
	close(b.idle)
	m.mu.Unlock()
	return err
}

func (m *Manager) deliver(ctx context.Context, meetingID string, fragments []core.Fragment, reason string) error {
	if err := m.sink.Flush(ctx, meetingID, fragments); err != nil {
		m.flushErrors.Add(1)
		return fmt.Errorf("flush %d fragments of meeting %s: %w", len(fragments), meetingID, err)
	}
	m.flushes.Add(1)
	m.flushedFragments.Add(uint64(len(fragments)))
	m.logger.Debug("flushed meeting buffer", "meeting", meetingID, "fragments", len(fragments), "reason", reason)
	return nil
}

// FinalFlush waits for any in-flight flush of the meeting, flushes what is
// left and destroys the buffer. The buffer is destroyed even when the sink
// fails. Fragments added for the meeting afterwards are rejected with
// ErrMeetingEnded.
func (m *Manager) FinalFlush(ctx context.Context, meetingID string) error {
	m.mu.Lock()
	m.ended.Add(meetingID, struct{}{})
	b, ok := m.buffers[meetingID]
	if !ok {
		m.mu.Unlock()
		return nil
	}
	for b.processing {
		idle := b.idle
		m.mu.Unlock()
		select {
		case <-idle:
		case <-ctx.Done():
			return ctx.Err()
		}
		m.mu.Lock()
		if m.buffers[meetingID] != b {
			// Destroyed by a concurrent FinalFlush or Clear
			m.mu.Unlock()
			return nil
		}
	}
	snapshot := b.fragments
	b.fragments = nil
	m.destroy(meetingID, b)
	m.mu.Unlock()

	if len(snapshot) == 0 {
		return nil
	}
	return m.deliver(ctx, meetingID, snapshot, "final")
}

// Clear destroys the meeting's buffer without flushing it.
func (m *Manager) Clear(meetingID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if b, ok := m.buffers[meetingID]; ok {
		if n := len(b.fragments); n > 0 {
			m.logger.Warn("discarding buffered fragments", "meeting", meetingID, "fragments", n)
		}
		m.destroy(meetingID, b)
	}
}

// destroy must be called with m.mu held.
func (m *Manager) destroy(meetingID string, b *meetingBuffer) {
	delete(m.buffers, meetingID)
	close(b.stop)
}

// Active reports whether the meeting currently has a buffer.
func (m *Manager) Active(meetingID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.buffers[meetingID]
	return ok
}

// Pending returns the number of fragments buffered for a meeting.
func (m *Manager) Pending(meetingID string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	if b, ok := m.buffers[meetingID]; ok {
		return len(b.fragments)
	}
	return 0
}

// Stats returns a snapshot of the manager counters.
func (m *Manager) Stats() Stats {
	m.mu.Lock()
	active := len(m.buffers)
	pending := 0
	for _, b := range m.buffers {
		pending += len(b.fragments)
	}
	m.mu.Unlock()
	return Stats{
		ActiveMeetings:   active,
		PendingFragments: pending,
		Flushes:          m.flushes.Load(),
		FlushedFragments: m.flushedFragments.Load(),
		FlushErrors:      m.flushErrors.Load(),
		Dropped:          m.dropped.Load(),
	}
}

// Close final-flushes every open buffer and stops the timers.
// New fragments are rejected once Close starts.
func (m *Manager) Close(ctx context.Context) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	ids := make([]string, 0, len(m.buffers))
	for id := range m.buffers {
		ids = append(ids, id)
	}
	m.mu.Unlock()

	var errs []error
	for _, id := range ids {
		if err := m.FinalFlush(ctx, id); err != nil {
			errs = append(errs, err)
		}
	}
	// Anything left failed to flush before ctx ended
	m.mu.Lock()
	for id, b := range m.buffers {
		m.destroy(id, b)
	}
	m.mu.Unlock()
	m.timers.Wait()
	return errors.Join(errs...)
}

func (m *Manager) watch(meetingID string, b *meetingBuffer) {
	defer m.timers.Done()
	ticker := time.NewTicker(m.config.FlushInterval)
	defer ticker.Stop()
	for {
		select {
		case <-b.stop:
			return
		case <-ticker.C:
			if err := m.flush(context.Background(), meetingID, b, "interval"); err != nil {
				m.logger.Error("periodic flush failed", "meeting", meetingID, "err", err)
			}
		}
	}
}
