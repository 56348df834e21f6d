package workqueue

import (
	"github.com/prometheus/client_golang/prometheus"
)

// queueMetrics holds Prometheus metrics for work queue monitoring.
type queueMetrics struct {
	runningWorkers prometheus.Gauge
	ringDepth      prometheus.Gauge
	freeSlots      prometheus.Gauge
	scheduled      prometheus.Counter
	completed      prometheus.Counter
	failed         prometheus.Counter
	panics         prometheus.Counter
	droppedOnStop  prometheus.Counter
	callbackTime   *prometheus.HistogramVec
}

// initializeMetrics creates and registers metrics with the daemon's registry.
func (q *WorkQueue) initializeMetrics() {
	prefix := q.metricsPrefix

	runningWorkers := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: prefix + "_running_workers",
		Help: "Current number of live worker goroutines",
	})
	ringDepth := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: prefix + "_ring_depth",
		Help: "Jobs waiting in the ready ring",
	})
	freeSlots := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: prefix + "_free_slots",
		Help: "Unused job slots in the free stack",
	})
	scheduled := prometheus.NewCounter(prometheus.CounterOpts{
		Name: prefix + "_scheduled_total",
		Help: "Total jobs accepted by Schedule and TrySchedule",
	})
	completed := prometheus.NewCounter(prometheus.CounterOpts{
		Name: prefix + "_completed_total",
		Help: "Total job callbacks that finished, including failed and panicked ones",
	})
	failed := prometheus.NewCounter(prometheus.CounterOpts{
		Name: prefix + "_failed_total",
		Help: "Total job callbacks that returned an error",
	})
	panics := prometheus.NewCounter(prometheus.CounterOpts{
		Name: prefix + "_panics_total",
		Help: "Total job callbacks that panicked",
	})
	droppedOnStop := prometheus.NewCounter(prometheus.CounterOpts{
		Name: prefix + "_dropped_on_stop_total",
		Help: "Jobs still in the ready ring when the queue stopped",
	})
	callbackTime := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    prefix + "_callback_duration_seconds",
		Help:    "Time spent in job callbacks",
		Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0},
	}, []string{"status"})

	serviceName := "workqueue"
	q.metricsRegistry.RegisterGauge(serviceName, prefix+"_running_workers", runningWorkers)
	q.metricsRegistry.RegisterGauge(serviceName, prefix+"_ring_depth", ringDepth)
	q.metricsRegistry.RegisterGauge(serviceName, prefix+"_free_slots", freeSlots)
	q.metricsRegistry.RegisterCounter(serviceName, prefix+"_scheduled_total", scheduled)
	q.metricsRegistry.RegisterCounter(serviceName, prefix+"_completed_total", completed)
	q.metricsRegistry.RegisterCounter(serviceName, prefix+"_failed_total", failed)
	q.metricsRegistry.RegisterCounter(serviceName, prefix+"_panics_total", panics)
	q.metricsRegistry.RegisterCounter(serviceName, prefix+"_dropped_on_stop_total", droppedOnStop)
	q.metricsRegistry.RegisterHistogramVec(serviceName, prefix+"_callback_duration_seconds", callbackTime)

	q.metrics = &queueMetrics{
		runningWorkers: runningWorkers,
		ringDepth:      ringDepth,
		freeSlots:      freeSlots,
		scheduled:      scheduled,
		completed:      completed,
		failed:         failed,
		panics:         panics,
		droppedOnStop:  droppedOnStop,
		callbackTime:   callbackTime,
	}
}

// updateDepthLocked refreshes the ring and free-stack gauges. Caller holds
// the jobs mutex.
func (q *WorkQueue) updateDepthLocked() {
	if q.metrics == nil {
		return
	}
	q.metrics.ringDepth.Set(float64(q.ring.size()))
	q.metrics.freeSlots.Set(float64(q.free.size()))
}
