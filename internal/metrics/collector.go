package metrics

import (
	"context"
	"sync"
	"time"

	"challenge-media/internal/logging"
)

// StatsProvider interface for collecting stats
type StatsProvider interface {
	GetStats(ctx context.Context) (Stats, error)
}

// DBMetricsUpdater is implemented by providers that also export their own
// connection metrics. It is called on every collection cycle.
type DBMetricsUpdater interface {
	UpdateDBMetrics()
}

// Stats holds the current library statistics
type Stats struct {
	TotalImages   int
	TotalVariants int
}

// Collector periodically collects and updates library metrics
type Collector struct {
	statsProvider StatsProvider
	interval      time.Duration
	stopChan      chan struct{}
	stopOnce      sync.Once
}

// NewCollector creates a new metrics collector
func NewCollector(provider StatsProvider, interval time.Duration) *Collector {
	return &Collector{
		statsProvider: provider,
		interval:      interval,
		stopChan:      make(chan struct{}),
	}
}

// Start begins the metrics collection loop
func (c *Collector) Start() {
	go c.collectLoop()
}

// Stop stops the metrics collection. It is safe to call more than once.
func (c *Collector) Stop() {
	c.stopOnce.Do(func() { close(c.stopChan) })
}

func (c *Collector) collectLoop() {
	// Collect immediately on start
	c.collect()

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.collect()
		case <-c.stopChan:
			return
		}
	}
}

func (c *Collector) collect() {
	if c.statsProvider == nil {
		return
	}

	if updater, ok := c.statsProvider.(DBMetricsUpdater); ok {
		updater.UpdateDBMetrics()
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	stats, err := c.statsProvider.GetStats(ctx)
	if err != nil {
		logging.Warn("Metrics collection failed: %v", err)
		return
	}

	ImagesTotal.Set(float64(stats.TotalImages))
	VariantsStoredTotal.Set(float64(stats.TotalVariants))

	logging.Debug("Metrics collected: images=%d, variants=%d", stats.TotalImages, stats.TotalVariants)
}
