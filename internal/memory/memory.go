package memory

import (
	"fmt"
	"os"
	"runtime"
	"runtime/debug"
	"sync"
	"time"

	"github.com/prometheus/procfs"

	"challenge-media/internal/logging"
	"challenge-media/internal/metrics"
)

// Level is a qualitative memory pressure classification.
type Level int

const (
	LevelLow Level = iota
	LevelMedium
	LevelHigh
	LevelCritical
)

func (l Level) String() string {
	switch l {
	case LevelLow:
		return "low"
	case LevelMedium:
		return "medium"
	case LevelHigh:
		return "high"
	case LevelCritical:
		return "critical"
	default:
		return fmt.Sprintf("level(%d)", int(l))
	}
}

// Action is the reclaim intervention chosen for a level. Higher values are
// strictly more intensive.
type Action int

const (
	ActionNone Action = iota
	ActionPreventive
	ActionStandard
	ActionAggressive
)

func (a Action) String() string {
	switch a {
	case ActionNone:
		return "none"
	case ActionPreventive:
		return "preventive"
	case ActionStandard:
		return "standard"
	case ActionAggressive:
		return "aggressive"
	default:
		return fmt.Sprintf("action(%d)", int(a))
	}
}

// Sample is a raw reading of process memory.
type Sample struct {
	HeapAlloc uint64
	HeapSys   uint64
	RSS       uint64
}

// State is one classified memory sample. It is never persisted.
type State struct {
	HeapAlloc uint64
	HeapSys   uint64
	HeapRatio float64
	RSS       uint64
	RSSLimit  int64
	RSSRatio  float64
	Level     Level
	SampledAt time.Time
}

// Sampler reads current process memory.
type Sampler interface {
	Sample() (Sample, error)
}

// CacheController is the codec cache surface the governor is allowed to touch.
type CacheController interface {
	ClearCache()
	SetCacheEnabled(enabled bool)
}

// Config holds memory governor configuration
type Config struct {
	// RSSLimitBytes is the resident set limit used for the RSS signal
	// (0 = MEMORY_LIMIT, then GOMEMLIMIT, else the RSS signal is ignored)
	RSSLimitBytes int64

	// Thresholds are fractions (0.0-1.0) at which each level starts
	MediumThreshold   float64
	HighThreshold     float64
	CriticalThreshold float64

	// CheckInterval is how often to sample memory
	CheckInterval time.Duration

	// CacheCooldown is how long the codec cache stays disabled after a critical reclaim
	CacheCooldown time.Duration

	// AggressivePasses is the number of GC cycles run on critical pressure
	AggressivePasses int

	// Sampler overrides the runtime sampler (tests)
	Sampler Sampler
}

// DefaultConfig returns sensible defaults for memory management
func DefaultConfig() Config {
	return Config{
		MediumThreshold:   0.60,
		HighThreshold:     0.75,
		CriticalThreshold: 0.90,
		CheckInterval:     30 * time.Second,
		CacheCooldown:     2 * time.Minute,
		AggressivePasses:  3,
	}
}

// Governor samples memory on a fixed interval and reclaims in tiers.
type Governor struct {
	config  Config
	limit   int64
	sampler Sampler
	cache   CacheController

	gc     func()
	freeOS func()
	now    func() time.Time

	mu              sync.RWMutex
	last            State
	cacheDisabled   bool
	cacheDisabledAt time.Time

	// reclaimMu serializes MaybeReclaim so the cache flag and the cache
	// controller change together.
	reclaimMu sync.Mutex

	stopChan chan struct{}
	stopOnce sync.Once
}

// NewGovernor creates a governor. cache may be nil.
func NewGovernor(config Config, cache CacheController) *Governor {
	defaults := DefaultConfig()
	if config.MediumThreshold <= 0 {
		config.MediumThreshold = defaults.MediumThreshold
	}
	if config.HighThreshold <= 0 {
		config.HighThreshold = defaults.HighThreshold
	}
	if config.CriticalThreshold <= 0 {
		config.CriticalThreshold = defaults.CriticalThreshold
	}
	if config.AggressivePasses <= 0 {
		config.AggressivePasses = defaults.AggressivePasses
	}

	limit := ResolveLimit(config.RSSLimitBytes)
	if limit == 0 {
		logging.Warn("Memory governor: no memory limit configured, RSS signal disabled")
	} else {
		logging.Info("Memory governor using limit: %s", formatBytes(limit))
	}

	sampler := config.Sampler
	if sampler == nil {
		sampler = newRuntimeSampler()
	}

	return &Governor{
		config:   config,
		limit:    limit,
		sampler:  sampler,
		cache:    cache,
		gc:       runtime.GC,
		freeOS:   debug.FreeOSMemory,
		now:      time.Now,
		stopChan: make(chan struct{}),
	}
}

// Classify returns the more severe level of the two signals.
func (g *Governor) Classify(heapRatio, rssRatio float64) Level {
	return max(g.levelFor(heapRatio), g.levelFor(rssRatio))
}

func (g *Governor) levelFor(ratio float64) Level {
	switch {
	case ratio >= g.config.CriticalThreshold:
		return LevelCritical
	case ratio >= g.config.HighThreshold:
		return LevelHigh
	case ratio >= g.config.MediumThreshold:
		return LevelMedium
	default:
		return LevelLow
	}
}

// SampleMemory reads and classifies current memory usage.
func (g *Governor) SampleMemory() (State, error) {
	raw, err := g.sampler.Sample()
	if err != nil {
		metrics.MemorySampleErrors.Inc()
		return State{}, fmt.Errorf("sample memory: %w", err)
	}

	state := State{
		HeapAlloc: raw.HeapAlloc,
		HeapSys:   raw.HeapSys,
		RSS:       raw.RSS,
		RSSLimit:  g.limit,
		SampledAt: g.now(),
	}
	if raw.HeapSys > 0 {
		state.HeapRatio = float64(raw.HeapAlloc) / float64(raw.HeapSys)
	}
	if g.limit > 0 && raw.RSS > 0 {
		state.RSSRatio = float64(raw.RSS) / float64(g.limit)
	}
	state.Level = g.Classify(state.HeapRatio, state.RSSRatio)

	g.mu.Lock()
	previous := g.last.Level
	g.last = state
	g.mu.Unlock()

	metrics.MemoryHeapRatio.Set(state.HeapRatio)
	metrics.MemoryRSSRatio.Set(state.RSSRatio)
	metrics.MemoryPressureLevel.Set(float64(state.Level))

	if state.Level != previous {
		logging.Debug("Memory pressure %s -> %s (heap=%.1f%%, rss=%.1f%%)",
			previous, state.Level, state.HeapRatio*100, state.RSSRatio*100)
	}

	return state, nil
}

// MaybeReclaim applies the intervention for state.Level and returns it.
// Calling it repeatedly with the same state repeats the same intervention.
// Concurrent calls run one at a time.
func (g *Governor) MaybeReclaim(state State) Action {
	g.reclaimMu.Lock()
	defer g.reclaimMu.Unlock()

	g.maybeRestoreCache(state.Level)

	var action Action
	switch state.Level {
	case LevelMedium:
		action = ActionPreventive
		g.safely("gc", g.gc)
	case LevelHigh:
		action = ActionStandard
		g.safely("gc", g.gc)
		g.clearCache()
	case LevelCritical:
		action = ActionAggressive
		logging.Warn("Memory critical (heap=%.1f%%, rss=%.1f%%), running aggressive reclaim",
			state.HeapRatio*100, state.RSSRatio*100)
		for i := 0; i < g.config.AggressivePasses; i++ {
			g.safely("gc", g.gc)
		}
		g.safely("free os memory", g.freeOS)
		g.clearCache()
		g.disableCache()
	default:
		return ActionNone
	}

	metrics.MemoryReclaimTotal.WithLabelValues(action.String()).Inc()
	return action
}

// Check samples once and reclaims. Failures are logged only.
func (g *Governor) Check() {
	state, err := g.SampleMemory()
	if err != nil {
		logging.Warn("Memory governor: %v", err)
		return
	}
	g.MaybeReclaim(state)
}

// Start begins sampling on the configured interval
func (g *Governor) Start() {
	if g.config.CheckInterval <= 0 {
		logging.Warn("Memory governor: check interval is zero, periodic sampling disabled")
		return
	}
	go g.loop()
}

// Stop stops the sampling loop. Safe to call more than once.
func (g *Governor) Stop() {
	g.stopOnce.Do(func() { close(g.stopChan) })
}

func (g *Governor) loop() {
	ticker := time.NewTicker(g.config.CheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			g.Check()
		case <-g.stopChan:
			return
		}
	}
}

// Level returns the level of the last sample.
func (g *Governor) Level() Level {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.last.Level
}

// IsCritical reports whether the last sample was critical.
func (g *Governor) IsCritical() bool {
	return g.Level() == LevelCritical
}

// LastState returns the last classified sample.
func (g *Governor) LastState() State {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.last
}

// CacheDisabled reports whether a critical reclaim has the codec cache switched off.
func (g *Governor) CacheDisabled() bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.cacheDisabled
}

func (g *Governor) clearCache() {
	if g.cache == nil {
		return
	}
	g.safely("clear codec cache", g.cache.ClearCache)
}

func (g *Governor) disableCache() {
	g.mu.Lock()
	g.cacheDisabledAt = g.now()
	already := g.cacheDisabled
	g.cacheDisabled = true
	g.mu.Unlock()

	if already || g.cache == nil {
		return
	}
	logging.Warn("Codec cache disabled for %v", g.config.CacheCooldown)
	g.safely("disable codec cache", func() { g.cache.SetCacheEnabled(false) })
}

func (g *Governor) maybeRestoreCache(level Level) {
	if level >= LevelCritical {
		return
	}

	g.mu.Lock()
	if !g.cacheDisabled || g.now().Sub(g.cacheDisabledAt) < g.config.CacheCooldown {
		g.mu.Unlock()
		return
	}
	g.cacheDisabled = false
	g.mu.Unlock()

	logging.Info("Memory pressure %s, re-enabling codec cache", level)
	metrics.MemoryReclaimTotal.WithLabelValues("cache_restored").Inc()
	if g.cache != nil {
		g.safely("enable codec cache", func() { g.cache.SetCacheEnabled(true) })
	}
}

// safely runs a reclaim step; a panicking step is logged and skipped.
func (g *Governor) safely(step string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			logging.Error("Memory reclaim step %q failed: %v", step, r)
		}
	}()
	fn()
}

type runtimeSampler struct {
	proc    procfs.Proc
	hasProc bool
}

func newRuntimeSampler() *runtimeSampler {
	s := &runtimeSampler{}
	proc, err := procfs.Self()
	if err != nil {
		logging.Debug("procfs unavailable, RSS sampling disabled: %v", err)
		return s
	}
	s.proc = proc
	s.hasProc = true
	return s
}

func (s *runtimeSampler) Sample() (Sample, error) {
	var stats runtime.MemStats
	runtime.ReadMemStats(&stats)

	sample := Sample{HeapAlloc: stats.HeapAlloc, HeapSys: stats.HeapSys}
	if !s.hasProc {
		return sample, nil
	}

	stat, err := s.proc.Stat()
	if err != nil {
		if os.IsNotExist(err) {
			return sample, nil
		}
		return sample, fmt.Errorf("read proc stat: %w", err)
	}
	if rss := stat.ResidentMemory(); rss > 0 {
		sample.RSS = uint64(rss)
	}
	return sample, nil
}
