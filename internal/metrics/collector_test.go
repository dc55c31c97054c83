package metrics

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

type mockStatsProvider struct {
	mu       sync.Mutex
	stats    Stats
	err      error
	calls    int
	dbUpdate int
}

func (m *mockStatsProvider) GetStats(context.Context) (Stats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	return m.stats, m.err
}

func (m *mockStatsProvider) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// dbMetricsProvider also exports connection metrics.
type dbMetricsProvider struct {
	mockStatsProvider
}

func (m *dbMetricsProvider) UpdateDBMetrics() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.dbUpdate++
}

func (m *dbMetricsProvider) updateCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.dbUpdate
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met within 2s")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestCollectSetsLibraryGauges(t *testing.T) {
	provider := &mockStatsProvider{stats: Stats{TotalImages: 12, TotalVariants: 48}}
	c := NewCollector(provider, time.Minute)

	c.collect()

	if got := testutil.ToFloat64(ImagesTotal); got != 12 {
		t.Errorf("ImagesTotal = %v, want 12", got)
	}
	if got := testutil.ToFloat64(VariantsStoredTotal); got != 48 {
		t.Errorf("VariantsStoredTotal = %v, want 48", got)
	}
}

func TestCollectKeepsLastValuesOnError(t *testing.T) {
	provider := &mockStatsProvider{stats: Stats{TotalImages: 3, TotalVariants: 9}}
	c := NewCollector(provider, time.Minute)
	c.collect()

	provider.err = errors.New("database is locked")
	provider.stats = Stats{}
	c.collect()

	if got := testutil.ToFloat64(ImagesTotal); got != 3 {
		t.Errorf("ImagesTotal = %v, want previous value 3", got)
	}
}

func TestCollectWithNilProvider(t *testing.T) {
	c := NewCollector(nil, time.Minute)
	c.collect()
}

func TestCollectCallsDBMetricsUpdater(t *testing.T) {
	provider := &dbMetricsProvider{}
	c := NewCollector(provider, time.Minute)

	c.collect()
	c.collect()

	if got := provider.updateCount(); got != 2 {
		t.Errorf("UpdateDBMetrics called %d times, want 2", got)
	}
}

func TestCollectorStartCollectsImmediatelyAndOnTick(t *testing.T) {
	provider := &mockStatsProvider{}
	c := NewCollector(provider, 10*time.Millisecond)

	c.Start()
	defer c.Stop()

	waitFor(t, func() bool { return provider.callCount() >= 3 })
}

func TestCollectorStopIsIdempotent(t *testing.T) {
	provider := &mockStatsProvider{}
	c := NewCollector(provider, 10*time.Millisecond)
	c.Start()
	waitFor(t, func() bool { return provider.callCount() >= 1 })

	c.Stop()
	c.Stop()

	settled := provider.callCount()
	time.Sleep(50 * time.Millisecond)
	if got := provider.callCount(); got > settled+1 {
		t.Errorf("collector kept running after Stop: %d calls, was %d", got, settled)
	}
}
