// Package metrics exposes pipeline counters to Prometheus.
//
// Component counters are read on scrape through CounterFunc and GaugeFunc
// collectors, so components keep their own atomics and never import
// Prometheus themselves.
package metrics

import (
	"time"

	"github.com/poiesic/minutes/buffer"
	"github.com/poiesic/minutes/embedding"
	"github.com/poiesic/minutes/jobs"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "minutes"

// Question outcome labels.
const (
	OutcomeAnswered = "answered"
	OutcomeError    = "error"
)

// Sources are the stats readers polled on scrape. Nil readers are skipped.
type Sources struct {
	Buffer    func() buffer.Stats
	Jobs      func() jobs.Stats
	Embedding func() embedding.Stats
}

// Metrics holds the collectors updated directly by the service.
type Metrics struct {
	Questions        *prometheus.CounterVec
	QuestionDuration prometheus.Histogram
	Transitions      *prometheus.CounterVec
}

// New registers every collector with reg and returns the directly updated ones.
// It panics if a collector is already registered, like promauto.
func New(reg prometheus.Registerer, src Sources) *Metrics {
	factory := promauto.With(reg)

	m := &Metrics{
		Questions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "questions_total",
			Help:      "Questions asked, by outcome",
		}, []string{"outcome"}),
		QuestionDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "question_duration_seconds",
			Help:      "Time to answer a question, including retrieval",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30, 60},
		}),
		Transitions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "meeting_transitions_total",
			Help:      "Meeting lifecycle transitions, by target state and result",
		}, []string{"to", "result"}),
	}

	if src.Buffer != nil {
		registerBuffer(factory, src.Buffer)
	}
	if src.Jobs != nil {
		registerJobs(factory, src.Jobs)
	}
	if src.Embedding != nil {
		registerEmbedding(factory, src.Embedding)
	}
	return m
}

// ObserveQuestion records one question outcome and its duration.
func (m *Metrics) ObserveQuestion(started time.Time, err error) {
	if m == nil {
		return
	}
	outcome := OutcomeAnswered
	if err != nil {
		outcome = OutcomeError
	}
	m.Questions.WithLabelValues(outcome).Inc()
	m.QuestionDuration.Observe(time.Since(started).Seconds())
}

// ObserveTransition records one lifecycle transition attempt.
func (m *Metrics) ObserveTransition(to string, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "rejected"
	}
	m.Transitions.WithLabelValues(to, result).Inc()
}

func registerBuffer(f promauto.Factory, stats func() buffer.Stats) {
	f.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: namespace, Subsystem: "buffer", Name: "active_meetings",
		Help: "Meetings with an open transcript buffer",
	}, func() float64 { return float64(stats().ActiveMeetings) })
	f.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: namespace, Subsystem: "buffer", Name: "pending_fragments",
		Help: "Fragments waiting to be flushed",
	}, func() float64 { return float64(stats().PendingFragments) })
	f.NewCounterFunc(prometheus.CounterOpts{
		Namespace: namespace, Subsystem: "buffer", Name: "flushes_total",
		Help: "Successful buffer flushes",
	}, func() float64 { return float64(stats().Flushes) })
	f.NewCounterFunc(prometheus.CounterOpts{
		Namespace: namespace, Subsystem: "buffer", Name: "flushed_fragments_total",
		Help: "Fragments handed off by flushes",
	}, func() float64 { return float64(stats().FlushedFragments) })
	f.NewCounterFunc(prometheus.CounterOpts{
		Namespace: namespace, Subsystem: "buffer", Name: "flush_errors_total",
		Help: "Flushes rejected by the sink",
	}, func() float64 { return float64(stats().FlushErrors) })
	f.NewCounterFunc(prometheus.CounterOpts{
		Namespace: namespace, Subsystem: "buffer", Name: "dropped_fragments_total",
		Help: "Fragments dropped because the meeting cap was reached",
	}, func() float64 { return float64(stats().Dropped) })
}

func registerJobs(f promauto.Factory, stats func() jobs.Stats) {
	f.NewCounterFunc(prometheus.CounterOpts{
		Namespace: namespace, Subsystem: "jobs", Name: "enqueued_total",
		Help: "Jobs enqueued",
	}, func() float64 { return float64(stats().Enqueued) })
	f.NewCounterFunc(prometheus.CounterOpts{
		Namespace: namespace, Subsystem: "jobs", Name: "completed_total",
		Help: "Jobs completed",
	}, func() float64 { return float64(stats().Completed) })
	f.NewCounterFunc(prometheus.CounterOpts{
		Namespace: namespace, Subsystem: "jobs", Name: "retried_total",
		Help: "Job attempts that failed and were retried",
	}, func() float64 { return float64(stats().Retried) })
	f.NewCounterFunc(prometheus.CounterOpts{
		Namespace: namespace, Subsystem: "jobs", Name: "failed_total",
		Help: "Jobs dropped after exhausting their attempts",
	}, func() float64 { return float64(stats().Failed) })
	f.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: namespace, Subsystem: "jobs", Name: "pending",
		Help: "Jobs waiting in the queue",
	}, func() float64 {
		s := stats()
		return float64(s.Pending + s.Delayed)
	})
	f.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: namespace, Subsystem: "jobs", Name: "running",
		Help: "Jobs currently running",
	}, func() float64 { return float64(stats().Running) })
}

func registerEmbedding(f promauto.Factory, stats func() embedding.Stats) {
	f.NewCounterFunc(prometheus.CounterOpts{
		Namespace: namespace, Subsystem: "embedding", Name: "cache_hits_total",
		Help: "Embedding cache hits",
	}, func() float64 { return float64(stats().CacheHits) })
	f.NewCounterFunc(prometheus.CounterOpts{
		Namespace: namespace, Subsystem: "embedding", Name: "cache_misses_total",
		Help: "Embedding cache misses",
	}, func() float64 { return float64(stats().CacheMisses) })
	f.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: namespace, Subsystem: "embedding", Name: "cache_entries",
		Help: "Vectors held in the embedding cache",
	}, func() float64 { return float64(stats().CacheEntries) })
	f.NewCounterFunc(prometheus.CounterOpts{
		Namespace: namespace, Subsystem: "embedding", Name: "backend_calls_total",
		Help: "Batches sent to the embedding backend",
	}, func() float64 { return float64(stats().BackendCalls) })
	f.NewCounterFunc(prometheus.CounterOpts{
		Namespace: namespace, Subsystem: "embedding", Name: "errors_total",
		Help: "Failed embedding backend calls",
	}, func() float64 { return float64(stats().Errors) })
}
