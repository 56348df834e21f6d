// Package workqueue provides a bounded work queue with a dynamically sized
// worker pool.
//
// Jobs live in a fixed array of slots. A LIFO free stack hands out slot
// indices in O(1); accepted jobs are appended to a power-of-two ready ring
// and executed FIFO by worker goroutines. An idle baseline of workers is
// always live; a grower goroutine spawns elastic workers above the baseline
// when demand appears and reaps the ones that evict themselves after idling
// too long. Producers that find the slot pool empty block on a free-slot
// condition until a worker returns a slot, so memory use is strictly bounded
// by the job capacity.
package workqueue

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ammarfaizi2/green-tea-bot/errors"
	"github.com/ammarfaizi2/green-tea-bot/metric"
)

// Func is a job callback. The context is cancelled when the queue stops.
// Errors are counted and logged; they never affect the queue itself.
type Func func(ctx context.Context, payload any) error

// jobSlot is one entry in the fixed job array. A slot is mutated only by
// the producer that acquired its index, or by the worker that popped it.
type jobSlot struct {
	fn         Func
	payload    any
	destructor func(payload any)
	taskName   string
	id         int64
}

// WorkQueue dispatches jobs to a pool of worker goroutines.
type WorkQueue struct {
	maxWorkers   uint32
	maxJobs      uint32
	idleBaseline uint32
	baselineSet  bool

	// jobsMu serializes the free stack, the ready ring, the job array
	// hand-off, and the grower's spawn/reap decisions. jobCond (on
	// jobsMu) is shared by waiting workers and the grower.
	jobsMu  sync.Mutex
	jobCond *sync.Cond
	jobs    []jobSlot
	free    *freeStack
	ring    *readyRing

	// slotMu exists only to host slotCond, which blocked producers wait
	// on until a worker returns a slot.
	slotMu   sync.Mutex
	slotCond *sync.Cond

	workers []*worker

	runningWorkers atomic.Int32
	waitingForSlot atomic.Int32
	nextJobID      atomic.Int64

	stopping atomic.Bool

	lifecycleMu sync.Mutex
	started     bool
	stopped     bool

	baseCtx    context.Context
	cancelBase context.CancelFunc
	growerDone chan struct{}
	joinDone   chan struct{}

	waitTimeout    time.Duration
	growerInterval time.Duration
	idleEvictCount int

	logger          *slog.Logger
	metrics         *queueMetrics
	metricsRegistry *metric.MetricsRegistry
	metricsPrefix   string
}

// Stats is a point-in-time snapshot of queue counters.
type Stats struct {
	MaxWorkers     uint32 `json:"max_workers"`
	IdleBaseline   uint32 `json:"idle_baseline"`
	MaxJobs        uint32 `json:"max_jobs"`
	RunningWorkers int32  `json:"running_workers"`
	RingDepth      uint32 `json:"ring_depth"`
	FreeSlots      int    `json:"free_slots"`
	WaitingForSlot int32  `json:"waiting_for_slot"`
	Scheduled      int64  `json:"scheduled"`
}

// New creates a work queue with maxWorkers worker slots and maxJobs job
// slots. The free stack starts full and the ready ring's capacity is
// rounded up to the next power of two at or above maxJobs.
func New(maxWorkers, maxJobs uint32, opts ...Option) (*WorkQueue, error) {
	q := &WorkQueue{
		maxWorkers:     maxWorkers,
		maxJobs:        maxJobs,
		waitTimeout:    DefaultWaitTimeout,
		growerInterval: DefaultGrowerInterval,
		idleEvictCount: DefaultIdleEvictCount,
		logger:         slog.Default(),
	}

	for _, opt := range opts {
		opt(q)
	}

	if maxWorkers == 0 {
		return nil, errors.WrapInvalid(errors.ErrInvalidConfig, "WorkQueue", "New", "maxWorkers must be > 0")
	}
	if maxJobs == 0 {
		return nil, errors.WrapInvalid(errors.ErrInvalidConfig, "WorkQueue", "New", "maxJobs must be > 0")
	}
	if q.baselineSet {
		if q.idleBaseline == 0 || q.idleBaseline > maxWorkers {
			return nil, errors.WrapInvalid(errors.ErrInvalidConfig, "WorkQueue", "New",
				"idle baseline must be in [1, maxWorkers]")
		}
	} else {
		q.idleBaseline = maxWorkers / 2
		if q.idleBaseline == 0 {
			q.idleBaseline = 1
		}
	}

	q.jobs = make([]jobSlot, maxJobs)
	for i := range q.jobs {
		q.jobs[i].id = -1
	}
	q.free = newFreeStack(maxJobs)
	q.ring = newReadyRing(maxJobs)
	q.jobCond = sync.NewCond(&q.jobsMu)
	q.slotCond = sync.NewCond(&q.slotMu)

	q.workers = make([]*worker, maxWorkers)
	for i := uint32(0); i < maxWorkers; i++ {
		q.workers[i] = newWorker(i)
	}

	q.baseCtx, q.cancelBase = context.WithCancel(context.Background())

	if q.metricsRegistry != nil && q.metricsPrefix != "" {
		q.initializeMetrics()
	}

	return q, nil
}

// Run spawns the idle-baseline workers and, when the baseline is below the
// maximum, the grower.
func (q *WorkQueue) Run() error {
	q.lifecycleMu.Lock()
	defer q.lifecycleMu.Unlock()

	if q.started {
		return errors.WrapInvalid(errors.ErrAlreadyStarted, "WorkQueue", "Run", "start")
	}
	if q.stopped {
		return errors.WrapInvalid(errors.ErrStopped, "WorkQueue", "Run", "start")
	}

	q.jobsMu.Lock()
	for i := uint32(0); i < q.idleBaseline; i++ {
		q.spawnLocked(q.workers[i])
	}
	q.jobsMu.Unlock()

	if q.idleBaseline < q.maxWorkers {
		q.growerDone = make(chan struct{})
		go q.grower()
	}

	q.started = true
	q.logger.Info("work queue started",
		"max_workers", q.maxWorkers,
		"idle_baseline", q.idleBaseline,
		"max_jobs", q.maxJobs)
	return nil
}

// Schedule submits a job, blocking while the slot pool is empty. It returns
// the job id, or ErrStopped once the queue is stopping; in that case the
// payload destructor (if any) runs exactly once before returning.
func (q *WorkQueue) Schedule(fn Func, payload any, opts ...JobOption) (int64, error) {
	jc := &jobConfig{}
	for _, opt := range opts {
		opt(jc)
	}

	if fn == nil {
		q.destroyPayload(jc, payload)
		return -1, errors.WrapInvalid(errors.ErrNilCallback, "WorkQueue", "Schedule", "validate job")
	}

	q.jobsMu.Lock()
	for {
		if q.stopping.Load() {
			q.jobsMu.Unlock()
			q.destroyPayload(jc, payload)
			return -1, errors.WrapInvalid(errors.ErrStopped, "WorkQueue", "Schedule", "submit job")
		}

		if idx, ok := q.free.acquire(); ok {
			id := q.enqueueLocked(idx, fn, payload, jc)
			q.jobsMu.Unlock()
			q.jobCond.Signal()
			return id, nil
		}

		// Pool is full. Wait for a worker to return a slot, bounded so a
		// missed signal is only a 1 s stall, then retry.
		q.jobsMu.Unlock()
		q.waitingForSlot.Add(1)
		q.slotMu.Lock()
		condWaitTimeout(q.slotCond, q.waitTimeout)
		q.slotMu.Unlock()
		q.waitingForSlot.Add(-1)
		q.jobsMu.Lock()
	}
}

// TrySchedule is the non-blocking variant of Schedule. It returns
// ErrQueueFull when no job slot is free; the caller keeps ownership of the
// payload and may retry.
func (q *WorkQueue) TrySchedule(fn Func, payload any, opts ...JobOption) (int64, error) {
	jc := &jobConfig{}
	for _, opt := range opts {
		opt(jc)
	}

	if fn == nil {
		q.destroyPayload(jc, payload)
		return -1, errors.WrapInvalid(errors.ErrNilCallback, "WorkQueue", "TrySchedule", "validate job")
	}

	q.jobsMu.Lock()
	if q.stopping.Load() {
		q.jobsMu.Unlock()
		q.destroyPayload(jc, payload)
		return -1, errors.WrapInvalid(errors.ErrStopped, "WorkQueue", "TrySchedule", "submit job")
	}

	idx, ok := q.free.acquire()
	if !ok {
		q.jobsMu.Unlock()
		return -1, errors.WrapTransient(errors.ErrQueueFull, "WorkQueue", "TrySchedule", "submit job")
	}

	id := q.enqueueLocked(idx, fn, payload, jc)
	q.jobsMu.Unlock()
	q.jobCond.Signal()
	return id, nil
}

// enqueueLocked fills the slot and appends its index to the ready ring.
// Caller holds the jobs mutex and owns idx.
func (q *WorkQueue) enqueueLocked(idx uint32, fn Func, payload any, jc *jobConfig) int64 {
	id := q.nextJobID.Add(1) - 1
	q.jobs[idx] = jobSlot{
		fn:         fn,
		payload:    payload,
		destructor: jc.destructor,
		taskName:   jc.taskName,
		id:         id,
	}
	q.ring.push(idx)

	if q.metrics != nil {
		q.metrics.scheduled.Inc()
	}
	q.updateDepthLocked()
	return id
}

// destroyPayload runs the destructor for a job that was never enqueued.
func (q *WorkQueue) destroyPayload(jc *jobConfig, payload any) {
	if jc.destructor != nil {
		jc.destructor(payload)
	}
}

// Stop sets the stop token, wakes every waiter, joins the grower and then
// every live worker, and releases jobs still sitting in the ready ring by
// running their destructors. Idempotent. Returns ErrStopTimeout when the
// workers outlive the timeout.
func (q *WorkQueue) Stop(timeout time.Duration) error {
	q.lifecycleMu.Lock()
	defer q.lifecycleMu.Unlock()

	if q.stopped {
		return nil
	}

	q.stopping.Store(true)
	q.cancelBase()

	q.jobsMu.Lock()
	q.jobCond.Broadcast()
	q.jobsMu.Unlock()

	q.slotMu.Lock()
	q.slotCond.Broadcast()
	q.slotMu.Unlock()

	// The joiner is created once so a Stop retry after a timeout waits on
	// the same join instead of racing a second one.
	if q.joinDone == nil {
		q.joinDone = make(chan struct{})
		go func() {
			if q.growerDone != nil {
				<-q.growerDone
			}
			for _, w := range q.workers {
				if w.done != nil {
					<-w.done
					w.done = nil
					w.setState(WorkerDead)
				}
			}
			close(q.joinDone)
		}()
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-q.joinDone:
	case <-timer.C:
		return errors.WrapTransient(errors.ErrStopTimeout, "WorkQueue", "Stop", "join workers")
	}

	q.releaseRemaining()

	q.stopped = true
	q.logger.Info("work queue stopped", "jobs_scheduled", q.nextJobID.Load())
	return nil
}

// releaseRemaining drains the ready ring after all workers are joined,
// running each abandoned job's destructor exactly once.
func (q *WorkQueue) releaseRemaining() {
	q.jobsMu.Lock()
	defer q.jobsMu.Unlock()

	for !q.ring.empty() {
		idx := q.ring.pop()
		job := q.jobs[idx]
		q.jobs[idx] = jobSlot{id: -1}
		q.free.release(idx)
		if q.metrics != nil {
			q.metrics.droppedOnStop.Inc()
		}
		if job.destructor != nil {
			// The callback never ran, so the destructor is the sole owner
			// of the payload here.
			func() {
				defer func() {
					if r := recover(); r != nil {
						q.logger.Error("payload destructor panicked during stop",
							"job_id", job.id, "panic", r)
					}
				}()
				job.destructor(job.payload)
			}()
		}
	}
	q.updateDepthLocked()
}

// Stats returns a snapshot of queue counters.
func (q *WorkQueue) Stats() Stats {
	q.jobsMu.Lock()
	ringDepth := q.ring.size()
	freeSlots := q.free.size()
	q.jobsMu.Unlock()

	return Stats{
		MaxWorkers:     q.maxWorkers,
		IdleBaseline:   q.idleBaseline,
		MaxJobs:        q.maxJobs,
		RunningWorkers: q.runningWorkers.Load(),
		RingDepth:      ringDepth,
		FreeSlots:      freeSlots,
		WaitingForSlot: q.waitingForSlot.Load(),
		Scheduled:      q.nextJobID.Load(),
	}
}

// WorkerStates returns the current lifecycle state of every worker
// descriptor, indexed by worker.
func (q *WorkQueue) WorkerStates() []WorkerState {
	states := make([]WorkerState, len(q.workers))
	for i, w := range q.workers {
		states[i] = w.State()
	}
	return states
}

// spawnLocked binds a goroutine to a Dead descriptor. Caller holds the jobs
// mutex.
func (q *WorkQueue) spawnLocked(w *worker) {
	w.setState(WorkerRunning)
	w.done = make(chan struct{})
	q.runningWorkers.Add(1)
	if q.metrics != nil {
		q.metrics.runningWorkers.Set(float64(q.runningWorkers.Load()))
	}
	go q.workerLoop(w)
}

// workerLoop is one worker goroutine. It drains the ready ring, waits on
// the job condition when the ring is empty, and self-evicts after
// idleEvictCount consecutive full-length waits if its index is at or above
// the idle baseline. The Zombie store followed by the done-channel close is
// the goroutine's final act, so a reaper returning from the channel receive
// observes Zombie.
func (q *WorkQueue) workerLoop(w *worker) {
	// Eviction threshold: idleEvictCount consecutive full-length waits.
	// Tracked as elapsed idle time because a wakeup caused by another
	// waiter's timer would otherwise reset or skip the count.
	evictAfter := time.Duration(q.idleEvictCount) * q.waitTimeout
	var idleSince time.Time

	q.jobsMu.Lock()
	w.setState(WorkerInterruptible)

	for {
		for !q.stopping.Load() && !q.ring.empty() {
			idx := q.ring.pop()
			job := q.jobs[idx]
			q.jobs[idx] = jobSlot{id: -1}
			q.updateDepthLocked()
			q.jobsMu.Unlock()

			w.setState(WorkerUninterruptible)
			q.runJob(w, job)
			w.setState(WorkerInterruptible)

			q.jobsMu.Lock()
			q.free.release(idx)
			q.updateDepthLocked()
			if q.waitingForSlot.Load() > 0 {
				q.slotCond.Signal()
			}
			idleSince = time.Time{}
		}

		if q.stopping.Load() {
			break
		}

		if idleSince.IsZero() {
			idleSince = time.Now()
		}
		condWaitTimeout(q.jobCond, q.waitTimeout)

		if q.stopping.Load() {
			break
		}
		if !q.ring.empty() {
			continue
		}

		if w.index >= q.idleBaseline && time.Since(idleSince) > evictAfter {
			q.logger.Debug("idle worker evicting itself", "worker", w.index)
			break
		}
	}

	q.jobsMu.Unlock()

	q.runningWorkers.Add(-1)
	if q.metrics != nil {
		q.metrics.runningWorkers.Set(float64(q.runningWorkers.Load()))
	}
	w.setState(WorkerZombie)
	close(w.done)
}

// runJob invokes the callback with no lock held, recovers panics, and runs
// the payload destructor exactly once.
func (q *WorkQueue) runJob(w *worker, job jobSlot) {
	w.setTaskName(job.taskName)
	start := time.Now()
	status := "success"

	defer func() {
		if r := recover(); r != nil {
			status = "panic"
			q.logger.Error("job callback panicked",
				"worker", w.index, "job_id", job.id, "task", job.taskName, "panic", r)
			if q.metrics != nil {
				q.metrics.panics.Inc()
			}
		}
		if job.destructor != nil {
			job.destructor(job.payload)
		}
		if q.metrics != nil {
			q.metrics.completed.Inc()
			q.metrics.callbackTime.WithLabelValues(status).Observe(time.Since(start).Seconds())
		}
		w.setTaskName("")
	}()

	if err := job.fn(q.baseCtx, job.payload); err != nil {
		status = "error"
		q.logger.Warn("job callback failed",
			"worker", w.index, "job_id", job.id, "task", job.taskName, "error", err)
		if q.metrics != nil {
			q.metrics.failed.Inc()
		}
	}
}

// grower wakes on the shared job condition every growerInterval, reaps
// zombie workers, and spawns Dead descriptors above the idle baseline while
// the ring shows pending demand.
func (q *WorkQueue) grower() {
	defer close(q.growerDone)

	q.jobsMu.Lock()
	for !q.stopping.Load() {
		condWaitTimeout(q.jobCond, q.growerInterval)
		if q.stopping.Load() {
			break
		}

		demand := int(q.ring.size())
		for i := q.idleBaseline; i < q.maxWorkers; i++ {
			w := q.workers[i]
			switch w.State() {
			case WorkerZombie:
				// The close follows the Zombie store immediately, so this
				// receive is bounded.
				<-w.done
				w.done = nil
				w.setState(WorkerDead)
			case WorkerDead:
				if demand > 0 && w.done == nil && int(q.runningWorkers.Load()) < int(q.maxWorkers) {
					demand--
					q.spawnLocked(w)
				}
			default:
				// Live worker, nothing to do.
			}
		}
	}
	q.jobsMu.Unlock()
}

// condWaitTimeout waits on cond with an upper bound. The caller holds
// cond.L. The timer's broadcast can wake unrelated waiters of the same
// condition; every wait site re-checks its predicate after waking.
func condWaitTimeout(cond *sync.Cond, d time.Duration) {
	t := time.AfterFunc(d, cond.Broadcast)
	defer t.Stop()
	cond.Wait()
}
