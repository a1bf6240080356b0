package limiter

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/manenim/gatekeep/pkg/store"
)

// mockRecorder captures metrics in memory for assertion.
type mockRecorder struct {
	mu       sync.Mutex
	counters map[string]float64
	timings  map[string][]float64
}

func newMockRecorder() *mockRecorder {
	return &mockRecorder{
		counters: make(map[string]float64),
		timings:  make(map[string][]float64),
	}
}

func (m *mockRecorder) Add(name string, value float64, tags map[string]string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.counters[name] += value
}

func (m *mockRecorder) Observe(name string, value float64, tags map[string]string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.timings[name] = append(m.timings[name], value)
}

func (m *mockRecorder) counter(name string) float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.counters[name]
}

func TestThrottle_Metrics(t *testing.T) {
	st := store.NewMemoryStore()
	rec := newMockRecorder()
	th, err := NewThrottle(st, ThrottleConfig{Count: 2, Per: time.Hour, Name: "m"},
		WithRecorder(rec))
	require.NoError(t, err)

	ctx := context.Background()
	key, _ := th.Key(nil, nil)

	for i := 0; i < 2; i++ {
		_, err := th.Allow(ctx, key)
		require.NoError(t, err)
	}
	_, err = th.Allow(ctx, key)
	require.NoError(t, err)

	assert.Equal(t, 2.0, rec.counter(metricAdmitted))
	assert.Equal(t, 1.0, rec.counter(metricDenied))
}

func TestTemper_Metrics(t *testing.T) {
	st := store.NewMemoryStore()
	rec := newMockRecorder()
	tm, err := NewTemper(st, TemperConfig{Count: 1, Name: "m"}, WithRecorder(rec))
	require.NoError(t, err)

	ctx := context.Background()
	err = tm.Do(ctx, nil, func(ctx context.Context, args Args) error { return nil })
	require.NoError(t, err)

	assert.Equal(t, 1.0, rec.counter(metricAdmitted))
	assert.Equal(t, 1.0, rec.counter(metricReleased))
}

func TestFallback_Metrics(t *testing.T) {
	st := store.NewMemoryStore()
	rec := newMockRecorder()
	tm, err := NewTemper(st, TemperConfig{
		Count:     1,
		Name:      "m",
		OnLimited: func(ctx context.Context, args Args) error { return nil },
	}, WithRecorder(rec))
	require.NoError(t, err)

	ctx := context.Background()
	key, _ := tm.Key(nil, nil)
	_, err = tm.Acquire(ctx, key)
	require.NoError(t, err)

	require.NoError(t, tm.Do(ctx, nil, func(ctx context.Context, args Args) error { return nil }))
	assert.Equal(t, 1.0, rec.counter(metricFallback))
}
