package cache

import "github.com/prometheus/client_golang/prometheus"

// cacheMetrics mirrors Statistics into Prometheus collectors.
type cacheMetrics struct {
	hits      prometheus.Counter
	misses    prometheus.Counter
	sets      prometheus.Counter
	deletes   prometheus.Counter
	evictions prometheus.Counter
	size      prometheus.Gauge
}

func newCacheMetrics(reg prometheus.Registerer, prefix string) (*cacheMetrics, error) {
	m := &cacheMetrics{
		hits: prometheus.NewCounter(prometheus.CounterOpts{
			Name: prefix + "_hits_total",
			Help: "Total cache hits",
		}),
		misses: prometheus.NewCounter(prometheus.CounterOpts{
			Name: prefix + "_misses_total",
			Help: "Total cache misses",
		}),
		sets: prometheus.NewCounter(prometheus.CounterOpts{
			Name: prefix + "_sets_total",
			Help: "Total cache set operations",
		}),
		deletes: prometheus.NewCounter(prometheus.CounterOpts{
			Name: prefix + "_deletes_total",
			Help: "Total cache delete operations",
		}),
		evictions: prometheus.NewCounter(prometheus.CounterOpts{
			Name: prefix + "_evictions_total",
			Help: "Total cache evictions",
		}),
		size: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: prefix + "_size",
			Help: "Current number of cache entries",
		}),
	}

	for _, c := range []prometheus.Collector{m.hits, m.misses, m.sets, m.deletes, m.evictions, m.size} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func (m *cacheMetrics) recordHit()      { m.hits.Inc() }
func (m *cacheMetrics) recordMiss()     { m.misses.Inc() }
func (m *cacheMetrics) recordSet()      { m.sets.Inc() }
func (m *cacheMetrics) recordDelete()   { m.deletes.Inc() }
func (m *cacheMetrics) recordEviction() { m.evictions.Inc() }
func (m *cacheMetrics) updateSize(n int) {
	m.size.Set(float64(n))
}
