// Package collectors provides periodic metrics collectors for supervised processes.
package collectors

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/smazurov/svisor/internal/metrics"
	"github.com/smazurov/svisor/internal/process"
)

// StatusSource is satisfied by *process.Supervisor.
type StatusSource interface {
	Status() []process.Info
}

// StatusFunc adapts a function to StatusSource.
type StatusFunc func() []process.Info

// Status calls f.
func (f StatusFunc) Status() []process.Info { return f() }

// UptimeCollector samples process uptime, which changes without a state transition.
type UptimeCollector struct {
	logger   *slog.Logger
	source   StatusSource
	interval time.Duration
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	stopOnce sync.Once
}

// NewUptimeCollector creates a collector sampling source every interval.
func NewUptimeCollector(source StatusSource, interval time.Duration) *UptimeCollector {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	return &UptimeCollector{
		logger:   slog.With("component", "uptime_collector"),
		source:   source,
		interval: interval,
	}
}

// Start begins collecting.
func (c *UptimeCollector) Start(ctx context.Context) error {
	ctx, c.cancel = context.WithCancel(ctx)
	c.wg.Add(1)
	go c.run(ctx)
	return nil
}

// Stop stops the collector and waits for it to finish.
func (c *UptimeCollector) Stop() error {
	c.stopOnce.Do(func() {
		if c.cancel != nil {
			c.cancel()
		}
		c.wg.Wait()
	})
	return nil
}

func (c *UptimeCollector) run(ctx context.Context) {
	defer c.wg.Done()
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	c.collect()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.collect()
		}
	}
}

func (c *UptimeCollector) collect() {
	for _, info := range c.source.Status() {
		if info.State == process.StateRunning {
			metrics.SetUptime(info.Name, info.Uptime)
		}
	}
}
