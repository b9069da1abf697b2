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

// Package jobs runs background work in process with bounded concurrency and
// retries.
//
// Jobs are queued in FIFO order and drained by a single scheduler goroutine
// onto an ants worker pool. A failed job is re-queued after an exponential
// delay of BaseDelay * 2^(attempt-1) until MaxAttempts is reached, after which
// it is logged and counted as failed. Nothing is persisted: jobs still queued
// when the process exits are lost.
package jobs

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/panjf2000/ants/v2"
)

// Job is one unit of background work.
type Job struct {
	ID        string
	Kind      string
	MeetingID string
	Payload   any
	// Attempt is the number of times the handler has been called for this job.
	Attempt     int
	MaxAttempts int
	EnqueuedAt  time.Time
}

// HandlerFunc processes a job. A non-nil error schedules a retry.
type HandlerFunc func(ctx context.Context, job *Job) error

// Config holds processor settings.
type Config struct {
	// Concurrency is the number of jobs run at the same time.
	Concurrency int

	// MaxAttempts is the default attempt budget for jobs that do not set one.
	MaxAttempts int

	// BaseDelay is the delay before the first retry. It doubles on each retry.
	BaseDelay time.Duration
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Concurrency: 2,
		MaxAttempts: 3,
		BaseDelay:   1 * time.Second,
	}
}

// Backoff returns the delay before retrying after the given attempt.
func Backoff(base time.Duration, attempt int) time.Duration {
	delay := base
	for i := 1; i < attempt; i++ {
		delay *= 2
	}
	return delay
}

// Stats is a snapshot of processor counters.
type Stats struct {
	Enqueued  uint64
	Completed uint64
	Retried   uint64
	Failed    uint64
	Pending   int
	Delayed   int
	Running   int
}

// Option configures a Processor.
type Option func(*Processor) error

// WithLogger sets a custom logger.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Processor) error {
		if logger == nil {
			logger = slog.Default()
		}
		p.logger = logger.With("component", "jobs")
		return nil
	}
}

// Processor is an in-process job queue.
type Processor struct {
	config  Config
	pool    *ants.Pool
	handler HandlerFunc
	logger  *slog.Logger

	mu      sync.Mutex
	queue   []*Job
	closed  bool
	delayed int

	notify   chan struct{}
	stop     chan struct{}
	stopOnce sync.Once
	done     chan struct{}
	inflight sync.WaitGroup

	ctx    context.Context
	cancel context.CancelFunc

	enqueued  atomic.Uint64
	completed atomic.Uint64
	retried   atomic.Uint64
	failed    atomic.Uint64
	running   atomic.Int64
}

// NewProcessor creates a processor and starts its scheduler.
// A nil config uses DefaultConfig.
func NewProcessor(config *Config, opts ...Option) (*Processor, error) {
	if config == nil {
		config = DefaultConfig()
	}
	if config.Concurrency < 1 {
		return nil, ErrInvalidConcurrency
	}
	if config.MaxAttempts < 1 {
		return nil, ErrInvalidMaxAttempts
	}

	ctx, cancel := context.WithCancel(context.Background())
	p := &Processor{
		config: *config,
		logger: slog.Default().With("component", "jobs"),
		notify: make(chan struct{}, 1),
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
		ctx:    ctx,
		cancel: cancel,
	}
	for _, opt := range opts {
		if err := opt(p); err != nil {
			cancel()
			return nil, err
		}
	}

	pool, err := ants.NewPool(config.Concurrency, ants.WithPanicHandler(func(v any) {
		p.logger.Error("job worker panicked", "panic", v)
	}))
	if err != nil {
		cancel()
		return nil, err
	}
	p.pool = pool

	go p.schedule()
	return p, nil
}

// RegisterHandler sets the function that processes every job.
// It replaces any previously registered handler.
func (p *Processor) RegisterHandler(handler HandlerFunc) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.handler = handler
}

// Enqueue appends a job to the queue and returns immediately.
// Missing ID, MaxAttempts and EnqueuedAt are filled in.
func (p *Processor) Enqueue(job Job) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return ErrProcessorClosed
	}
	if p.handler == nil {
		p.mu.Unlock()
		return ErrNoHandler
	}
	if job.ID == "" {
		job.ID = uuid.NewString()
	}
	if job.MaxAttempts <= 0 {
		job.MaxAttempts = p.config.MaxAttempts
	}
	if job.EnqueuedAt.IsZero() {
		job.EnqueuedAt = time.Now()
	}
	job.Attempt = 0
	p.inflight.Add(1)
	p.queue = append(p.queue, &job)
	p.mu.Unlock()

	p.enqueued.Add(1)
	p.wake()
	p.logger.Debug("job enqueued", "job", job.ID, "kind", job.Kind, "meeting", job.MeetingID)
	return nil
}

// Stats returns a snapshot of the processor counters.
func (p *Processor) Stats() Stats {
	p.mu.Lock()
	pending, delayed := len(p.queue), p.delayed
	p.mu.Unlock()
	return Stats{
		Enqueued:  p.enqueued.Load(),
		Completed: p.completed.Load(),
		Retried:   p.retried.Load(),
		Failed:    p.failed.Load(),
		Pending:   pending,
		Delayed:   delayed,
		Running:   int(p.running.Load()),
	}
}

// Shutdown stops accepting jobs and waits for queued, delayed and running
// jobs to finish. If ctx ends first, running handlers are cancelled, the
// remaining jobs are dropped and ctx's error is returned.
func (p *Processor) Shutdown(ctx context.Context) error {
	p.mu.Lock()
	alreadyClosed := p.closed
	p.closed = true
	p.mu.Unlock()
	if alreadyClosed {
		<-p.done
		return nil
	}

	drained := make(chan struct{})
	go func() {
		p.inflight.Wait()
		close(drained)
	}()

	var err error
	select {
	case <-drained:
	case <-ctx.Done():
		stats := p.Stats()
		p.logger.Warn("shutdown deadline reached, dropping jobs",
			"pending", stats.Pending, "delayed", stats.Delayed, "running", stats.Running)
		err = fmt.Errorf("drain jobs: %w", ctx.Err())
	}

	p.cancel()
	p.stopOnce.Do(func() { close(p.stop) })
	// Releasing the pool unblocks a scheduler stuck in Submit.
	if releaseErr := p.pool.ReleaseTimeout(5 * time.Second); releaseErr != nil && err == nil {
		err = releaseErr
	}
	<-p.done
	return err
}

func (p *Processor) wake() {
	select {
	case p.notify <- struct{}{}:
	default:
	}
}

func (p *Processor) schedule() {
	defer close(p.done)
	for {
		job := p.next()
		if job == nil {
			return
		}
		// Submit blocks while every worker is busy, which keeps FIFO order.
		if err := p.pool.Submit(func() { p.run(job) }); err != nil {
			p.logger.Error("failed to submit job", "job", job.ID, "err", err)
			p.failed.Add(1)
			p.inflight.Done()
		}
	}
}

// next blocks until a job is queued or the scheduler is stopped.
func (p *Processor) next() *Job {
	for {
		p.mu.Lock()
		if len(p.queue) > 0 {
			job := p.queue[0]
			p.queue[0] = nil
			p.queue = p.queue[1:]
			p.mu.Unlock()
			return job
		}
		p.mu.Unlock()

		select {
		case <-p.notify:
		case <-p.stop:
			return nil
		}
	}
}

func (p *Processor) run(job *Job) {
	p.running.Add(1)
	defer p.running.Add(-1)

	job.Attempt++
	err := p.call(job)
	if err == nil {
		if job.Attempt > 1 {
			p.logger.Debug("job succeeded after retry", "job", job.ID, "attempt", job.Attempt)
		}
		p.completed.Add(1)
		p.inflight.Done()
		return
	}

	if job.Attempt >= job.MaxAttempts || p.ctx.Err() != nil {
		p.logger.Error("job failed",
			"job", job.ID, "kind", job.Kind, "meeting", job.MeetingID,
			"attempts", job.Attempt, "err", err)
		p.failed.Add(1)
		p.inflight.Done()
		return
	}

	delay := Backoff(p.config.BaseDelay, job.Attempt)
	p.logger.Warn("job failed, will retry",
		"job", job.ID, "attempt", job.Attempt, "maxAttempts", job.MaxAttempts, "delay", delay, "err", err)
	p.retried.Add(1)
	p.mu.Lock()
	p.delayed++
	p.mu.Unlock()
	time.AfterFunc(delay, func() { p.requeue(job) })
}

func (p *Processor) requeue(job *Job) {
	p.mu.Lock()
	p.delayed--
	if p.ctx.Err() != nil {
		p.mu.Unlock()
		p.logger.Warn("dropping delayed job after shutdown", "job", job.ID)
		p.failed.Add(1)
		p.inflight.Done()
		return
	}
	p.queue = append(p.queue, job)
	p.mu.Unlock()
	p.wake()
}

func (p *Processor) call(job *Job) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrHandlerPanic, r)
		}
	}()
	p.mu.Lock()
	handler := p.handler
	p.mu.Unlock()
	return handler(p.ctx, job)
}
