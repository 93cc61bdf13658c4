// Package cache implements the cache & performance layer (C8): the
// embedding cache, the vector cache, the warmup cache, a FIFO-fair
// concurrency gate, adaptive batch sizing, and an advisory metrics
// snapshot.
package cache

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/fragmentsearch/fragmentsearch/internal/observability"
)

// VectorKey identifies a fragment's embedding for the vector cache:
// (language, package, version, file_path) -> Vector.
type VectorKey struct {
	Language string
	Package  string
	Version  string
	FilePath string
}

// Layer bundles the three caches and the concurrency controls described
// in spec.md §4.8, plus the metrics snapshot consumers read from it.
type Layer struct {
	Embedding *Bounded[Fingerprint, []float32]
	Vectors   *Bounded[VectorKey, []float32]
	Warmup    *WarmupCache

	gate    *rate.Limiter
	sem     chan struct{}
	metrics observability.Metrics

	mu             sync.Mutex
	hits           int
	misses         int
	filesProcessed int
	batchCount     int
	totalProcessMS float64
	batchSize      int
	window         []bool // recent hit/miss outcomes for adaptive batching
}

// Config mirrors the perf.* configuration keys in spec.md §6.4.
type Config struct {
	MaxConcurrent   int
	CacheSize       int
	CacheTTL        time.Duration
	WarmupCacheSize int
	InitialBatch    int
}

// New constructs a Layer. metrics may be observability.NoopMetrics{}.
func New(cfg Config, metrics observability.Metrics) *Layer {
	if metrics == nil {
		metrics = observability.NoopMetrics{}
	}
	maxConcurrent := cfg.MaxConcurrent
	if maxConcurrent <= 0 {
		maxConcurrent = 8
	}
	initialBatch := cfg.InitialBatch
	if initialBatch <= 0 {
		initialBatch = 32
	}

	return &Layer{
		Embedding: NewBounded[Fingerprint, []float32](cfg.CacheSize, cfg.CacheTTL),
		Vectors:   NewBounded[VectorKey, []float32](cfg.CacheSize, cfg.CacheTTL),
		Warmup:    NewWarmupCache(cfg.WarmupCacheSize),
		gate:      rate.NewLimiter(rate.Limit(maxConcurrent*4), maxConcurrent),
		sem:       make(chan struct{}, maxConcurrent),
		metrics:   metrics,
		batchSize: initialBatch,
	}
}

// Acquire blocks until a concurrency slot is free and the adaptive rate
// gate admits the call, or ctx is cancelled. Release must be called
// exactly once for every successful Acquire. The channel semaphore
// bounds in-flight operations FIFO (Go channels serve waiters in send
// order); the rate.Limiter separately paces admission so a burst of
// releases cannot immediately re-admit the same number of callers faster
// than the configured rate.
func (l *Layer) Acquire(ctx context.Context) (release func(), err error) {
	if err := l.gate.Wait(ctx); err != nil {
		return nil, err
	}
	select {
	case l.sem <- struct{}{}:
		return func() { <-l.sem }, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// SetRate adjusts the admission rate gate. adjustBatchSizeLocked sets the
// same gate's limit directly whenever RecordOutcome changes the adaptive
// batch size, so admission throughput tracks observed cache effectiveness;
// exported so callers with their own pacing signal can also drive it.
func (l *Layer) SetRate(permitsPerSecond float64) {
	l.gate.SetLimit(rate.Limit(permitsPerSecond))
}

// RecordOutcome updates the rolling hit-rate window and adjusts the
// adaptive batch size per spec.md §4.8: hit rate over the window > 80%
// multiplies batch size by 1.2 (cap 200); < 30% multiplies by 0.8 (floor
// 10).
func (l *Layer) RecordOutcome(hit bool, processingTime time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if hit {
		l.hits++
		l.metrics.IncCounter("cache_hits", nil)
	} else {
		l.misses++
		l.metrics.IncCounter("cache_misses", nil)
	}
	l.filesProcessed++
	l.totalProcessMS += float64(processingTime.Milliseconds())
	l.metrics.ObserveHistogram("cache_processing_ms", float64(processingTime.Milliseconds()), nil)

	const window = 100
	l.window = append(l.window, hit)
	if len(l.window) > window {
		l.window = l.window[len(l.window)-window:]
	}
	l.adjustBatchSizeLocked()
}

func (l *Layer) adjustBatchSizeLocked() {
	if len(l.window) < 10 {
		return
	}
	hitCount := 0
	for _, h := range l.window {
		if h {
			hitCount++
		}
	}
	hitRate := float64(hitCount) / float64(len(l.window))

	switch {
	case hitRate > 0.8:
		l.batchSize = clampInt(int(float64(l.batchSize)*1.2), 10, 200)
	case hitRate < 0.3:
		l.batchSize = clampInt(int(float64(l.batchSize)*0.8), 10, 200)
	}
	l.batchCount++

	// Admission throughput tracks the adaptive batch size directly: a
	// larger batch size means each admitted caller does more work per
	// call, so fewer admissions per second are needed to sustain the
	// same embedding throughput, and vice versa.
	l.gate.SetLimit(rate.Limit(l.batchSize))
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// BatchSize returns the current adaptive batch size.
func (l *Layer) BatchSize() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.batchSize
}

// Metrics is the read-only advisory snapshot from spec.md §4.8.
type Metrics struct {
	FilesProcessed   int
	CacheHits        int
	CacheMisses      int
	HitRate          float64
	AvgProcessingMS  float64
	BatchCount       int
	TotalProcessingMS float64
}

func (l *Layer) Snapshot() Metrics {
	l.mu.Lock()
	defer l.mu.Unlock()

	total := l.hits + l.misses
	var hitRate, avg float64
	if total > 0 {
		hitRate = float64(l.hits) / float64(total)
	}
	if l.filesProcessed > 0 {
		avg = l.totalProcessMS / float64(l.filesProcessed)
	}
	return Metrics{
		FilesProcessed:    l.filesProcessed,
		CacheHits:         l.hits,
		CacheMisses:       l.misses,
		HitRate:           hitRate,
		AvgProcessingMS:   avg,
		BatchCount:        l.batchCount,
		TotalProcessingMS: l.totalProcessMS,
	}
}
