package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/poiesic/minutes/buffer"
	"github.com/poiesic/minutes/embedding"
	"github.com/poiesic/minutes/jobs"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func gather(t *testing.T, reg *prometheus.Registry) map[string]float64 {
	t.Helper()
	families, err := reg.Gather()
	require.NoError(t, err)
	values := make(map[string]float64)
	for _, mf := range families {
		for _, m := range mf.GetMetric() {
			switch {
			case m.GetCounter() != nil:
				values[mf.GetName()] += m.GetCounter().GetValue()
			case m.GetGauge() != nil:
				values[mf.GetName()] += m.GetGauge().GetValue()
			}
		}
	}
	return values
}

func TestNew_ReadsComponentStats(t *testing.T) {
	reg := prometheus.NewRegistry()
	New(reg, Sources{
		Buffer: func() buffer.Stats {
			return buffer.Stats{ActiveMeetings: 2, PendingFragments: 7, Flushes: 3, Dropped: 1}
		},
		Jobs: func() jobs.Stats {
			return jobs.Stats{Enqueued: 5, Completed: 4, Failed: 1, Pending: 1, Delayed: 2}
		},
		Embedding: func() embedding.Stats {
			return embedding.Stats{CacheHits: 10, CacheMisses: 4, CacheEntries: 4}
		},
	})

	values := gather(t, reg)
	assert.Equal(t, 2.0, values["minutes_buffer_active_meetings"])
	assert.Equal(t, 7.0, values["minutes_buffer_pending_fragments"])
	assert.Equal(t, 3.0, values["minutes_buffer_flushes_total"])
	assert.Equal(t, 1.0, values["minutes_buffer_dropped_fragments_total"])
	assert.Equal(t, 4.0, values["minutes_jobs_completed_total"])
	assert.Equal(t, 3.0, values["minutes_jobs_pending"])
	assert.Equal(t, 10.0, values["minutes_embedding_cache_hits_total"])
	assert.Equal(t, 4.0, values["minutes_embedding_cache_entries"])
}

func TestNew_SkipsNilSources(t *testing.T) {
	reg := prometheus.NewRegistry()
	New(reg, Sources{})

	values := gather(t, reg)
	_, ok := values["minutes_buffer_active_meetings"]
	assert.False(t, ok)
}

func TestObserveQuestion(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg, Sources{})

	m.ObserveQuestion(time.Now().Add(-time.Second), nil)
	m.ObserveQuestion(time.Now(), errors.New("boom"))
	m.ObserveQuestion(time.Now(), nil)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.Questions.WithLabelValues(OutcomeAnswered)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Questions.WithLabelValues(OutcomeError)))
	assert.Equal(t, 1, testutil.CollectAndCount(m.QuestionDuration))
}

func TestObserveTransition(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg, Sources{})

	m.ObserveTransition("LIVE", nil)
	m.ObserveTransition("PAST", errors.New("invalid"))

	assert.Equal(t, 1.0, testutil.ToFloat64(m.Transitions.WithLabelValues("LIVE", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Transitions.WithLabelValues("PAST", "rejected")))
}

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.ObserveQuestion(time.Now(), nil)
		m.ObserveTransition("LIVE", nil)
	})
}
