// Package embedding turns text into vectors through a bounded worker pool
// with a content-addressed, expiring cache in front of it.
//
// The Service implements ai.Embedder, so callers use it exactly like the
// backend it wraps:
//
//	svc, err := embedding.NewService(provider.Embedder(), embedding.WithPoolSize(4))
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer svc.Close()
//	vectors, err := svc.EmbedTexts(ctx, texts)
//
// Failed backend calls are not retried here. They propagate to the caller,
// whose retry policy governs resilience.
package embedding

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"github.com/go-crypt/x/blake2b"
	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/panjf2000/ants/v2"
	"github.com/poiesic/minutes/ai"
)

const (
	DefaultPoolSize  = 4
	DefaultBatchSize = 10
	DefaultCacheSize = 10_000
	DefaultCacheTTL  = 72 * time.Hour
)

// Service is a caching, pool-backed ai.Embedder.
type Service struct {
	backend   ai.Embedder
	pool      *ants.Pool
	cache     *expirable.LRU[string, []float32]
	poolSize  int
	batchSize int
	cacheSize int
	cacheTTL  time.Duration
	logger    *slog.Logger

	hits     atomic.Int64
	misses   atomic.Int64
	calls    atomic.Int64
	failures atomic.Int64
}

var _ ai.Embedder = (*Service)(nil)

// Option configures a Service.
type Option func(*Service) error

// WithPoolSize sets the number of concurrent backend calls.
func WithPoolSize(size int) Option {
	return func(s *Service) error {
		if size < 1 {
			size = 1
		}
		s.poolSize = size
		return nil
	}
}

// WithBatchSize sets how many texts go to the backend per call.
func WithBatchSize(size int) Option {
	return func(s *Service) error {
		if size < 1 {
			return fmt.Errorf("batch size must be positive, got %d", size)
		}
		s.batchSize = size
		return nil
	}
}

// WithCacheSize bounds the number of cached vectors.
func WithCacheSize(size int) Option {
	return func(s *Service) error {
		if size < 1 {
			return fmt.Errorf("cache size must be positive, got %d", size)
		}
		s.cacheSize = size
		return nil
	}
}

// WithCacheTTL sets how long a cached vector stays valid.
func WithCacheTTL(ttl time.Duration) Option {
	return func(s *Service) error {
		if ttl <= 0 {
			return fmt.Errorf("cache ttl must be positive, got %s", ttl)
		}
		s.cacheTTL = ttl
		return nil
	}
}

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) error {
		if logger == nil {
			logger = slog.Default()
		}
		s.logger = logger
		return nil
	}
}

// NewService wraps backend with a worker pool and cache.
func NewService(backend ai.Embedder, opts ...Option) (*Service, error) {
	if backend == nil {
		return nil, ErrEmbedderRequired
	}

	s := &Service{
		backend:   backend,
		poolSize:  DefaultPoolSize,
		batchSize: DefaultBatchSize,
		cacheSize: DefaultCacheSize,
		cacheTTL:  DefaultCacheTTL,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, err
		}
	}
	s.logger = s.logger.With("component", "embedding")

	pool, err := ants.NewPool(s.poolSize, ants.WithPanicHandler(func(p any) {
		s.logger.Error("embedding worker panicked", "panic", p)
	}))
	if err != nil {
		return nil, err
	}
	s.pool = pool
	s.cache = expirable.NewLRU[string, []float32](s.cacheSize, nil, s.cacheTTL)

	return s, nil
}

// CacheKey returns the cache key for a text: a BLAKE2b digest of the trimmed text.
func CacheKey(text string) string {
	h, _ := blake2b.New(32, nil)
	h.Write([]byte(strings.TrimSpace(text)))
	return hex.EncodeToString(h.Sum(nil))
}

// EmbedText returns the cached vector or computes it on the pool.
// Returned vectors are shared with the cache and must not be modified.
func (s *Service) EmbedText(ctx context.Context, text string) ([]float32, error) {
	vectors, err := s.EmbedTexts(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

type batchResult struct {
	index   int
	vectors [][]float32
	err     error
}

// EmbedTexts resolves cached vectors and embeds the rest in sub-batches that
// run in parallel on the pool. Output order matches input order.
func (s *Service) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	if s.pool.IsClosed() {
		return nil, ErrServiceClosed
	}

	out := make([][]float32, len(texts))
	keys := make([]string, len(texts))

	// Unique misses, keyed so duplicates in one call are embedded once
	var missing []string
	missIdx := make(map[string]int)
	for i, text := range texts {
		key := CacheKey(text)
		keys[i] = key
		if v, ok := s.cache.Get(key); ok {
			out[i] = v
			s.hits.Add(1)
			continue
		}
		s.misses.Add(1)
		if _, seen := missIdx[key]; !seen {
			missIdx[key] = len(missing)
			missing = append(missing, strings.TrimSpace(text))
		}
	}

	if len(missing) == 0 {
		return out, nil
	}

	computed, err := s.compute(ctx, missing)
	if err != nil {
		s.failures.Add(1)
		return nil, err
	}

	for i, key := range keys {
		if out[i] != nil {
			continue
		}
		v := computed[missIdx[key]]
		s.cache.Add(key, v)
		out[i] = v
	}
	return out, nil
}

func (s *Service) compute(ctx context.Context, texts []string) ([][]float32, error) {
	batches := (len(texts) + s.batchSize - 1) / s.batchSize
	results := make(chan batchResult, batches)

	for b := 0; b < batches; b++ {
		start := b * s.batchSize
		end := min(start+s.batchSize, len(texts))
		batch := texts[start:end]
		index := b

		s.calls.Add(1)
		err := s.pool.Submit(func() {
			vectors, err := s.backend.EmbedTexts(ctx, batch)
			if err == nil && len(vectors) != len(batch) {
				err = fmt.Errorf("%w: expected %d, received %d", ErrResultMismatch, len(batch), len(vectors))
			}
			results <- batchResult{index: index, vectors: vectors, err: err}
		})
		if err != nil {
			if errors.Is(err, ants.ErrPoolClosed) {
				return nil, ErrServiceClosed
			}
			return nil, err
		}
	}

	computed := make([][]float32, len(texts))
	for done := 0; done < batches; done++ {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case r := <-results:
			if r.err != nil {
				s.logger.Error("embedding sub-batch failed", "batch", r.index+1, "batches", batches, "err", r.err)
				return nil, r.err
			}
			copy(computed[r.index*s.batchSize:], r.vectors)
			s.logger.Debug("embedded sub-batch", "batch", r.index+1, "batches", batches, "completed", done+1)
		}
	}
	return computed, nil
}

// Stats is a snapshot of Service counters.
type Stats struct {
	CacheHits    int64
	CacheMisses  int64
	CacheEntries int
	BackendCalls int64
	Errors       int64
	Running      int
	Waiting      int
}

// Stats returns current counters.
func (s *Service) Stats() Stats {
	return Stats{
		CacheHits:    s.hits.Load(),
		CacheMisses:  s.misses.Load(),
		CacheEntries: s.cache.Len(),
		BackendCalls: s.calls.Load(),
		Errors:       s.failures.Load(),
		Running:      s.pool.Running(),
		Waiting:      s.pool.Waiting(),
	}
}

// Purge empties the cache. Used after switching embedding models.
func (s *Service) Purge() {
	s.cache.Purge()
}

// Close waits for in-flight backend calls and releases the pool.
func (s *Service) Close() error {
	if s.pool.IsClosed() {
		return nil
	}
	return s.pool.ReleaseTimeout(10 * time.Second)
}
