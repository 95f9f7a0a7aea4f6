// Package prometheus exports pool statistics as Prometheus metrics.
//
// The Collector reads Stats() snapshots at scrape time, so no polling
// goroutine is needed:
//
//	c, _ := prometheus.NewCollector("covey", nil)
//	c.AddPool("ingest", pool)
package prometheus

import (
	"errors"
	"fmt"
	"sync"

	prom "github.com/prometheus/client_golang/prometheus"

	"github.com/haldre/covey"
)

// StatsProvider yields point-in-time pool statistics.
type StatsProvider interface {
	Stats() covey.Stats
}

// Collector exposes the Stats of registered pools at scrape time.
type Collector struct {
	mu    sync.RWMutex
	pools map[string]StatsProvider

	workers    *prom.Desc
	idle       *prom.Desc
	running    *prom.Desc
	queueDepth *prom.Desc
	submitted  *prom.Desc
	completed  *prom.Desc
	failed     *prom.Desc
	rejected   *prom.Desc
}

var _ prom.Collector = (*Collector)(nil)

// NewCollector creates and registers a pool stats collector. A nil
// registerer falls back to prometheus.DefaultRegisterer; an empty
// namespace falls back to "covey".
func NewCollector(namespace string, reg prom.Registerer) (*Collector, error) {
	if namespace == "" {
		namespace = "covey"
	}
	if reg == nil {
		reg = prom.DefaultRegisterer
	}

	labels := []string{"pool"}
	fqName := func(name string) string {
		return prom.BuildFQName(namespace, "", name)
	}

	c := &Collector{
		pools:      make(map[string]StatsProvider),
		workers:    prom.NewDesc(fqName("pool_workers"), "Live worker goroutines.", labels, nil),
		idle:       prom.NewDesc(fqName("pool_idle_workers"), "Workers waiting for a task.", labels, nil),
		running:    prom.NewDesc(fqName("pool_running_tasks"), "Tasks currently executing.", labels, nil),
		queueDepth: prom.NewDesc(fqName("pool_queue_depth"), "Tasks waiting in the queue.", labels, nil),
		submitted:  prom.NewDesc(fqName("pool_submitted_total"), "Tasks admitted by the pool.", labels, nil),
		completed:  prom.NewDesc(fqName("pool_completed_total"), "Tasks that finished, failed or cancelled included.", labels, nil),
		failed:     prom.NewDesc(fqName("pool_failed_total"), "Tasks that returned an error or panicked.", labels, nil),
		rejected:   prom.NewDesc(fqName("pool_rejected_total"), "Submissions refused by the rejection policy.", labels, nil),
	}
	if err := register(reg, c); err != nil {
		return nil, err
	}
	return c, nil
}

// AddPool adds or replaces a pool under the given label.
func (c *Collector) AddPool(name string, provider StatsProvider) {
	if provider == nil {
		return
	}
	if name == "" {
		name = "pool"
	}
	c.mu.Lock()
	c.pools[name] = provider
	c.mu.Unlock()
}

// RemovePool drops a pool from future scrapes.
func (c *Collector) RemovePool(name string) {
	c.mu.Lock()
	delete(c.pools, name)
	c.mu.Unlock()
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(ch chan<- *prom.Desc) {
	ch <- c.workers
	ch <- c.idle
	ch <- c.running
	ch <- c.queueDepth
	ch <- c.submitted
	ch <- c.completed
	ch <- c.failed
	ch <- c.rejected
}

// Collect implements prometheus.Collector.
func (c *Collector) Collect(ch chan<- prom.Metric) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for name, provider := range c.pools {
		s := provider.Stats()
		ch <- prom.MustNewConstMetric(c.workers, prom.GaugeValue, float64(s.Workers), name)
		ch <- prom.MustNewConstMetric(c.idle, prom.GaugeValue, float64(s.Idle), name)
		ch <- prom.MustNewConstMetric(c.running, prom.GaugeValue, float64(s.Running), name)
		ch <- prom.MustNewConstMetric(c.queueDepth, prom.GaugeValue, float64(s.QueueDepth), name)
		ch <- prom.MustNewConstMetric(c.submitted, prom.CounterValue, float64(s.Submitted), name)
		ch <- prom.MustNewConstMetric(c.completed, prom.CounterValue, float64(s.Completed), name)
		ch <- prom.MustNewConstMetric(c.failed, prom.CounterValue, float64(s.Failed), name)
		ch <- prom.MustNewConstMetric(c.rejected, prom.CounterValue, float64(s.Rejected), name)
	}
}

// register tolerates double registration by reusing the existing collector.
func register(reg prom.Registerer, c *Collector) error {
	err := reg.Register(c)
	if err == nil {
		return nil
	}
	var already prom.AlreadyRegisteredError
	if errors.As(err, &already) {
		return nil
	}
	return fmt.Errorf("register pool collector: %w", err)
}
