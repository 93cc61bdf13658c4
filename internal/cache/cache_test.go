package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/fragmentsearch/fragmentsearch/internal/observability"
)

func TestBoundedGetSetAndEviction(t *testing.T) {
	c := NewBounded[string, int](2, 0)
	c.Set("a", 1)
	c.Set("b", 2)
	c.Set("c", 3) // evicts "a", the oldest

	_, ok := c.Get("a")
	require.False(t, ok)
	v, ok := c.Get("c")
	require.True(t, ok)
	require.Equal(t, 3, v)
	require.Equal(t, 2, c.Len())
}

func TestBoundedTTLExpiry(t *testing.T) {
	c := NewBounded[string, int](0, 10*time.Millisecond)
	c.Set("a", 1)
	_, ok := c.Get("a")
	require.True(t, ok)

	time.Sleep(20 * time.Millisecond)
	_, ok = c.Get("a")
	require.False(t, ok)
}

func TestBoundedNilReceiverIsNoop(t *testing.T) {
	var c *Bounded[string, int]
	c.Set("a", 1)
	_, ok := c.Get("a")
	require.False(t, ok)
	require.Equal(t, 0, c.Len())
}

func TestFingerprintIncludesModelIdentity(t *testing.T) {
	f1 := NewFingerprint("model-a", "hello", 0)
	f2 := NewFingerprint("model-b", "hello", 0)
	require.NotEqual(t, f1, f2)

	f3 := NewFingerprint("model-a", "hello", 0)
	require.Equal(t, f1, f3)
}

func TestLayerAcquireRelease(t *testing.T) {
	l := New(Config{MaxConcurrent: 1}, observability.NoopMetrics{})
	ctx := context.Background()

	release, err := l.Acquire(ctx)
	require.NoError(t, err)

	ctx2, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
	defer cancel()
	_, err = l.Acquire(ctx2)
	require.Error(t, err) // slot still held, second acquire times out

	release()
	release2, err := l.Acquire(context.Background())
	require.NoError(t, err)
	release2()
}

func TestAdaptiveBatchSizeGrowsOnHighHitRate(t *testing.T) {
	l := New(Config{InitialBatch: 32}, observability.NoopMetrics{})
	for i := 0; i < 20; i++ {
		l.RecordOutcome(true, time.Millisecond)
	}
	require.Greater(t, l.BatchSize(), 32)
}

func TestAdaptiveBatchSizeShrinksOnLowHitRate(t *testing.T) {
	l := New(Config{InitialBatch: 32}, observability.NoopMetrics{})
	for i := 0; i < 20; i++ {
		l.RecordOutcome(false, time.Millisecond)
	}
	require.Less(t, l.BatchSize(), 32)
}

func TestSnapshotComputesHitRate(t *testing.T) {
	l := New(Config{}, observability.NoopMetrics{})
	l.RecordOutcome(true, 10*time.Millisecond)
	l.RecordOutcome(true, 10*time.Millisecond)
	l.RecordOutcome(false, 10*time.Millisecond)

	snap := l.Snapshot()
	require.Equal(t, 3, snap.FilesProcessed)
	require.Equal(t, 2, snap.CacheHits)
	require.Equal(t, 1, snap.CacheMisses)
	require.InDelta(t, 2.0/3.0, snap.HitRate, 0.001)
}

func TestWarmupCachePromotesOnAccess(t *testing.T) {
	l := New(Config{WarmupCacheSize: 10}, observability.NoopMetrics{})
	key := VectorKey{Language: "go", Package: "fmt", Version: "v1", FilePath: "print.go"}
	l.Warmup.Seed(key, []float32{1, 2, 3})

	v, ok := l.Lookup(key)
	require.True(t, ok)
	require.Equal(t, []float32{1, 2, 3}, v)

	// Warmup entry was consumed; now it's served from the vector cache.
	_, stillInWarmup := l.Warmup.Take(key)
	require.False(t, stillInWarmup)
	v2, ok := l.Vectors.Get(key)
	require.True(t, ok)
	require.Equal(t, []float32{1, 2, 3}, v2)
}
