package prometheus

import (
	"context"
	"strings"
	"testing"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/haldre/covey"
)

type staticStats struct {
	stats covey.Stats
}

func (s staticStats) Stats() covey.Stats { return s.stats }

func TestCollector_ExportsSnapshot(t *testing.T) {
	reg := prom.NewRegistry()
	c, err := NewCollector("covey", reg)
	require.NoError(t, err)

	c.AddPool("ingest", staticStats{covey.Stats{
		Workers:    4,
		Idle:       1,
		Running:    3,
		QueueDepth: 7,
		Submitted:  100,
		Completed:  90,
		Failed:     5,
		Rejected:   2,
	}})

	expected := `
# HELP covey_pool_queue_depth Tasks waiting in the queue.
# TYPE covey_pool_queue_depth gauge
covey_pool_queue_depth{pool="ingest"} 7
# HELP covey_pool_rejected_total Submissions refused by the rejection policy.
# TYPE covey_pool_rejected_total counter
covey_pool_rejected_total{pool="ingest"} 2
# HELP covey_pool_workers Live worker goroutines.
# TYPE covey_pool_workers gauge
covey_pool_workers{pool="ingest"} 4
`
	err = testutil.CollectAndCompare(c, strings.NewReader(expected),
		"covey_pool_queue_depth", "covey_pool_rejected_total", "covey_pool_workers")
	assert.NoError(t, err)
}

func TestCollector_TracksLivePool(t *testing.T) {
	reg := prom.NewRegistry()
	c, err := NewCollector("", reg)
	require.NoError(t, err)

	pool, err := covey.NewPool(covey.WithCoreWorkers(1), covey.WithMaxWorkers(2))
	require.NoError(t, err)
	defer func() {
		pool.Shutdown()
		pool.AwaitTermination(time.Second)
	}()
	c.AddPool("live", pool)

	h, err := pool.Submit(func(ctx context.Context) (interface{}, error) {
		return nil, nil
	})
	require.NoError(t, err)
	_, err = h.Wait()
	require.NoError(t, err)

	// 8 series for one pool.
	assert.Equal(t, 8, testutil.CollectAndCount(c))
	var m dto.Metric
	require.NoError(t, collectOne(t, c, "covey_pool_submitted_total").Write(&m))
	got := m.GetCounter().GetValue()
	assert.Equal(t, 1.0, got)
}

func TestCollector_RemovePool(t *testing.T) {
	reg := prom.NewRegistry()
	c, err := NewCollector("covey", reg)
	require.NoError(t, err)

	c.AddPool("a", staticStats{})
	require.Equal(t, 8, testutil.CollectAndCount(c))
	c.RemovePool("a")
	assert.Equal(t, 0, testutil.CollectAndCount(c))
}

func TestCollector_DoubleRegistration(t *testing.T) {
	reg := prom.NewRegistry()
	_, err := NewCollector("covey", reg)
	require.NoError(t, err)
	_, err = NewCollector("covey", reg)
	assert.NoError(t, err)
}

// collectOne gathers a single metric by name from the collector.
func collectOne(t *testing.T, c prom.Collector, name string) prom.Metric {
	t.Helper()
	ch := make(chan prom.Metric, 64)
	c.Collect(ch)
	close(ch)
	for m := range ch {
		if strings.Contains(m.Desc().String(), name) {
			return m
		}
	}
	t.Fatalf("metric %s not collected", name)
	return nil
}
