package memory

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

type fakeSampler struct {
	mu      sync.Mutex
	samples []Sample
	err     error
	calls   int
}

func (f *fakeSampler) Sample() (Sample, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return Sample{}, f.err
	}
	if len(f.samples) == 0 {
		return Sample{HeapAlloc: 10, HeapSys: 100}, nil
	}
	s := f.samples[0]
	if len(f.samples) > 1 {
		f.samples = f.samples[1:]
	}
	return s, nil
}

func (f *fakeSampler) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type fakeCache struct {
	clears  int
	enabled bool
	toggles int
}

func (f *fakeCache) ClearCache() { f.clears++ }

func (f *fakeCache) SetCacheEnabled(enabled bool) {
	f.enabled = enabled
	f.toggles++
}

type fakeClock struct{ t time.Time }

func (c *fakeClock) Now() time.Time { return c.t }

func newTestGovernor(t *testing.T, sampler Sampler, cache CacheController) (*Governor, *int, *fakeClock) {
	t.Helper()
	t.Setenv("MEMORY_LIMIT", "")

	cfg := DefaultConfig()
	cfg.RSSLimitBytes = 1000
	cfg.CacheCooldown = time.Minute
	cfg.Sampler = sampler

	g := NewGovernor(cfg, cache)
	gcCalls := 0
	g.gc = func() { gcCalls++ }
	g.freeOS = func() {}
	clock := &fakeClock{t: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	g.now = clock.Now
	return g, &gcCalls, clock
}

func heapAt(pct uint64) Sample {
	return Sample{HeapAlloc: pct, HeapSys: 100}
}

func TestClassify(t *testing.T) {
	g, _, _ := newTestGovernor(t, &fakeSampler{}, nil)

	tests := []struct {
		name      string
		heapRatio float64
		rssRatio  float64
		want      Level
	}{
		{name: "Both low", heapRatio: 0.10, rssRatio: 0.20, want: LevelLow},
		{name: "Just below medium", heapRatio: 0.599, want: LevelLow},
		{name: "Medium boundary", heapRatio: 0.60, want: LevelMedium},
		{name: "High boundary", heapRatio: 0.75, want: LevelHigh},
		{name: "Critical boundary", heapRatio: 0.90, want: LevelCritical},
		{name: "RSS more severe", heapRatio: 0.10, rssRatio: 0.80, want: LevelHigh},
		{name: "Heap more severe", heapRatio: 0.95, rssRatio: 0.65, want: LevelCritical},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := g.Classify(tt.heapRatio, tt.rssRatio); got != tt.want {
				t.Errorf("Classify(%.3f, %.3f) = %v, want %v", tt.heapRatio, tt.rssRatio, got, tt.want)
			}
		})
	}
}

func TestPressureIsMonotonic(t *testing.T) {
	sampler := &fakeSampler{samples: []Sample{heapAt(50), heapAt(65), heapAt(80), heapAt(95)}}
	cache := &fakeCache{enabled: true}
	g, gcCalls, _ := newTestGovernor(t, sampler, cache)

	wantLevels := []Level{LevelLow, LevelMedium, LevelHigh, LevelCritical}
	lastAction := Action(-1)
	lastGC := -1

	for i, want := range wantLevels {
		state, err := g.SampleMemory()
		if err != nil {
			t.Fatalf("SampleMemory: %v", err)
		}
		if state.Level != want {
			t.Fatalf("step %d: level = %v, want %v", i, state.Level, want)
		}

		before := *gcCalls
		action := g.MaybeReclaim(state)
		if action <= lastAction {
			t.Errorf("step %d: action %v not more intensive than %v", i, action, lastAction)
		}
		gcRun := *gcCalls - before
		if i > 1 && gcRun < lastGC {
			t.Errorf("step %d: ran %d GC passes, fewer than previous %d", i, gcRun, lastGC)
		}
		lastAction = action
		lastGC = gcRun
	}

	if lastAction != ActionAggressive {
		t.Errorf("final action = %v, want aggressive", lastAction)
	}
	if cache.clears != 2 {
		t.Errorf("cache cleared %d times, want 2 (high + critical)", cache.clears)
	}
	if cache.enabled {
		t.Error("cache should be disabled after critical reclaim")
	}
	if !g.IsCritical() {
		t.Error("IsCritical() = false after critical sample")
	}
}

func TestRSSSignalIgnoredWithoutLimit(t *testing.T) {
	t.Setenv("MEMORY_LIMIT", "")
	cfg := DefaultConfig()
	cfg.Sampler = &fakeSampler{samples: []Sample{{HeapAlloc: 10, HeapSys: 100, RSS: 1 << 40}}}

	g := NewGovernor(cfg, nil)
	g.limit = 0

	state, err := g.SampleMemory()
	if err != nil {
		t.Fatalf("SampleMemory: %v", err)
	}
	if state.RSSRatio != 0 {
		t.Errorf("RSSRatio = %f, want 0 without a limit", state.RSSRatio)
	}
	if state.Level != LevelLow {
		t.Errorf("Level = %v, want low", state.Level)
	}
}

func TestRSSSignal(t *testing.T) {
	sampler := &fakeSampler{samples: []Sample{{HeapAlloc: 10, HeapSys: 100, RSS: 920}}}
	g, _, _ := newTestGovernor(t, sampler, nil)

	state, err := g.SampleMemory()
	if err != nil {
		t.Fatalf("SampleMemory: %v", err)
	}
	if state.Level != LevelCritical {
		t.Errorf("Level = %v, want critical from RSS 92%% of limit", state.Level)
	}
}

func TestCacheRestoredAfterCooldown(t *testing.T) {
	cache := &fakeCache{enabled: true}
	g, _, clock := newTestGovernor(t, &fakeSampler{}, cache)

	g.MaybeReclaim(State{Level: LevelCritical})
	if cache.enabled || !g.CacheDisabled() {
		t.Fatal("cache should be disabled after critical reclaim")
	}

	clock.t = clock.t.Add(30 * time.Second)
	g.MaybeReclaim(State{Level: LevelLow})
	if cache.enabled {
		t.Error("cache re-enabled before cooldown elapsed")
	}

	clock.t = clock.t.Add(31 * time.Second)
	g.MaybeReclaim(State{Level: LevelCritical})
	if cache.enabled {
		t.Error("cache re-enabled while still critical")
	}
	if cache.toggles != 1 {
		t.Errorf("repeated critical reclaim toggled cache %d times, want 1", cache.toggles)
	}

	// The second critical reclaim restarted the cooldown.
	clock.t = clock.t.Add(59 * time.Second)
	g.MaybeReclaim(State{Level: LevelMedium})
	if cache.enabled {
		t.Error("cache re-enabled before restarted cooldown elapsed")
	}

	clock.t = clock.t.Add(2 * time.Second)
	g.MaybeReclaim(State{Level: LevelMedium})
	if !cache.enabled || g.CacheDisabled() {
		t.Error("cache should be re-enabled after cooldown below critical")
	}
}

func TestMaybeReclaimIsIdempotent(t *testing.T) {
	cache := &fakeCache{enabled: true}
	g, gcCalls, _ := newTestGovernor(t, &fakeSampler{}, cache)

	state := State{Level: LevelHigh}
	first := g.MaybeReclaim(state)
	second := g.MaybeReclaim(state)
	if first != second {
		t.Errorf("repeated reclaim returned %v then %v", first, second)
	}
	if *gcCalls != 2 || cache.clears != 2 {
		t.Errorf("gc=%d clears=%d, want 2 each", *gcCalls, cache.clears)
	}
	if g.MaybeReclaim(State{Level: LevelLow}) != ActionNone {
		t.Error("low pressure should take no action")
	}
}

func TestConcurrentReclaimKeepsCacheInSync(t *testing.T) {
	cache := &fakeCache{enabled: true}
	g, _, _ := newTestGovernor(t, &fakeSampler{}, cache)
	// Every non-critical reclaim may restore the cache.
	g.config.CacheCooldown = 0

	var wg sync.WaitGroup
	for i := 0; i < 64; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			level := LevelLow
			if i%2 == 0 {
				level = LevelCritical
			}
			g.MaybeReclaim(State{Level: level})
		}(i)
	}
	wg.Wait()

	if cache.enabled == g.CacheDisabled() {
		t.Errorf("cache enabled=%v but governor reports disabled=%v", cache.enabled, g.CacheDisabled())
	}

	g.MaybeReclaim(State{Level: LevelCritical})
	if cache.enabled || !g.CacheDisabled() {
		t.Error("critical reclaim should leave the cache disabled")
	}
	g.MaybeReclaim(State{Level: LevelLow})
	if !cache.enabled || g.CacheDisabled() {
		t.Error("reclaim after cooldown should leave the cache enabled")
	}
}

func TestReclaimFailureIsNotFatal(t *testing.T) {
	g, _, _ := newTestGovernor(t, &fakeSampler{}, nil)
	g.gc = func() { panic("gc exploded") }

	if got := g.MaybeReclaim(State{Level: LevelCritical}); got != ActionAggressive {
		t.Errorf("MaybeReclaim = %v, want aggressive", got)
	}
}

func TestCheckLogsSampleErrors(t *testing.T) {
	sampler := &fakeSampler{err: errors.New("proc unavailable")}
	g, gcCalls, _ := newTestGovernor(t, sampler, nil)

	g.Check()

	if *gcCalls != 0 {
		t.Error("no reclaim expected when sampling fails")
	}
	if g.Level() != LevelLow {
		t.Errorf("Level() = %v, want low", g.Level())
	}
}

func TestStartStop(t *testing.T) {
	sampler := &fakeSampler{}
	t.Setenv("MEMORY_LIMIT", "")
	cfg := DefaultConfig()
	cfg.CheckInterval = 10 * time.Millisecond
	cfg.Sampler = sampler

	g := NewGovernor(cfg, nil)
	var gcCalls atomic.Int32
	g.gc = func() { gcCalls.Add(1) }

	g.Start()
	deadline := time.Now().Add(2 * time.Second)
	for sampler.Calls() < 2 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	g.Stop()
	g.Stop()

	if sampler.Calls() < 2 {
		t.Errorf("expected at least 2 samples, got %d", sampler.Calls())
	}
}

func TestLevelString(t *testing.T) {
	tests := []struct {
		level Level
		want  string
	}{
		{LevelLow, "low"},
		{LevelMedium, "medium"},
		{LevelHigh, "high"},
		{LevelCritical, "critical"},
	}
	for _, tt := range tests {
		if got := tt.level.String(); got != tt.want {
			t.Errorf("Level(%d).String() = %q, want %q", tt.level, got, tt.want)
		}
	}
}
