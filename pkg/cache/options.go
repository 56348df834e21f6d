package cache

import "github.com/prometheus/client_golang/prometheus"

// Option configures a cache at construction.
type Option[K comparable, V any] func(*cacheOptions[K, V])

type cacheOptions[K comparable, V any] struct {
	metricsReg    prometheus.Registerer
	metricsPrefix string
	evictCallback EvictCallback[K, V]
}

// WithMetrics exposes the cache's statistics as Prometheus metrics under
// the given name prefix.
func WithMetrics[K comparable, V any](reg prometheus.Registerer, prefix string) Option[K, V] {
	return func(o *cacheOptions[K, V]) {
		o.metricsReg = reg
		o.metricsPrefix = prefix
	}
}

// WithEvictCallback invokes fn for every entry removed by eviction, Delete,
// or Clear.
func WithEvictCallback[K comparable, V any](fn EvictCallback[K, V]) Option[K, V] {
	return func(o *cacheOptions[K, V]) {
		o.evictCallback = fn
	}
}

type builtOptions[K comparable, V any] struct {
	stats   *Statistics
	metrics *cacheMetrics
	evictFn EvictCallback[K, V]
}

func buildOptions[K comparable, V any](opts []Option[K, V]) (*builtOptions[K, V], error) {
	o := &cacheOptions[K, V]{}
	for _, opt := range opts {
		opt(o)
	}

	// Stats are always initialized; metrics only when requested.
	built := &builtOptions[K, V]{
		stats:   NewStatistics(),
		evictFn: o.evictCallback,
	}
	if o.metricsReg != nil && o.metricsPrefix != "" {
		m, err := newCacheMetrics(o.metricsReg, o.metricsPrefix)
		if err != nil {
			return nil, err
		}
		built.metrics = m
	}
	return built, nil
}
