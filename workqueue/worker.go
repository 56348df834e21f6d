package workqueue

import (
	"sync/atomic"
)

// WorkerState is the lifecycle state of a worker descriptor. Transitions are
// published with atomic stores and observed with atomic loads.
type WorkerState int32

const (
	// WorkerDead means no goroutine is bound to the descriptor. A Dead slot
	// may be re-spawned by the grower.
	WorkerDead WorkerState = iota
	// WorkerRunning is set immediately before the goroutine is spawned.
	WorkerRunning
	// WorkerInterruptible means the worker is in its wait loop.
	WorkerInterruptible
	// WorkerUninterruptible means the worker is executing a job callback.
	WorkerUninterruptible
	// WorkerZombie means the goroutine has exited its loop and is awaiting
	// reap by the grower or by Stop.
	WorkerZombie
)

// String returns the state name for logs and diagnostics.
func (s WorkerState) String() string {
	switch s {
	case WorkerDead:
		return "dead"
	case WorkerRunning:
		return "running"
	case WorkerInterruptible:
		return "interruptible"
	case WorkerUninterruptible:
		return "uninterruptible"
	case WorkerZombie:
		return "zombie"
	default:
		return "unknown"
	}
}

// worker is a fixed-index descriptor for one pool goroutine.
//
// The Interruptible/Uninterruptible distinction is observational only; it
// tags what the worker is doing for logs and the task-name diagnostic. It
// has no role in locking.
type worker struct {
	index uint32
	state atomic.Int32

	// done is non-nil while a goroutine is bound to the descriptor. The
	// goroutine closes it as its final act, after storing Zombie, so a
	// reaper that returns from <-done observes the Zombie store.
	// Written only under the queue's jobs mutex or after the grower has
	// been joined.
	done chan struct{}

	// taskName tags the job currently executing, for diagnostics.
	taskName atomic.Value // string
}

func newWorker(index uint32) *worker {
	w := &worker{index: index}
	w.state.Store(int32(WorkerDead))
	w.taskName.Store("")
	return w
}

// State returns the descriptor's current lifecycle state.
func (w *worker) State() WorkerState {
	return WorkerState(w.state.Load())
}

func (w *worker) setState(s WorkerState) {
	w.state.Store(int32(s))
}

// TaskName returns the name of the job the worker is currently executing,
// or the empty string when idle.
func (w *worker) TaskName() string {
	s, _ := w.taskName.Load().(string)
	return s
}

func (w *worker) setTaskName(name string) {
	w.taskName.Store(name)
}
