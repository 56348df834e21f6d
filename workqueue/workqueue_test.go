package workqueue

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ammarfaizi2/green-tea-bot/errors"
)

func noop(_ context.Context, _ any) error { return nil }

func TestNew_Validation(t *testing.T) {
	if _, err := New(0, 8); err == nil {
		t.Error("Expected error for zero maxWorkers")
	}
	if _, err := New(4, 0); err == nil {
		t.Error("Expected error for zero maxJobs")
	}
	if _, err := New(4, 8, WithIdleBaseline(0)); err == nil {
		t.Error("Expected error for zero idle baseline")
	}
	if _, err := New(4, 8, WithIdleBaseline(5)); err == nil {
		t.Error("Expected error for idle baseline above maxWorkers")
	}

	q, err := New(4, 8)
	if err != nil {
		t.Fatalf("Failed to create queue: %v", err)
	}
	if q.idleBaseline != 2 {
		t.Errorf("Expected default baseline 2, got %d", q.idleBaseline)
	}

	q, err = New(1, 8)
	if err != nil {
		t.Fatalf("Failed to create queue: %v", err)
	}
	if q.idleBaseline != 1 {
		t.Errorf("Expected minimum baseline 1, got %d", q.idleBaseline)
	}
}

func TestRun_Twice(t *testing.T) {
	q, err := New(2, 4, WithIdleBaseline(2))
	if err != nil {
		t.Fatalf("Failed to create queue: %v", err)
	}
	if err := q.Run(); err != nil {
		t.Fatalf("Failed to run queue: %v", err)
	}
	defer q.Stop(5 * time.Second)

	if err := q.Run(); err == nil {
		t.Error("Expected error when running the queue twice")
	}
}

func TestSchedule_NilCallback(t *testing.T) {
	q, err := New(2, 4)
	if err != nil {
		t.Fatalf("Failed to create queue: %v", err)
	}
	if err := q.Run(); err != nil {
		t.Fatalf("Failed to run queue: %v", err)
	}
	defer q.Stop(5 * time.Second)

	var destroyed int64
	_, err = q.Schedule(nil, "payload", WithDestructor(func(any) {
		atomic.AddInt64(&destroyed, 1)
	}))
	if err == nil {
		t.Fatal("Expected error for nil callback")
	}
	if !errors.IsInvalid(err) {
		t.Errorf("Expected invalid classification, got %v", err)
	}
	if atomic.LoadInt64(&destroyed) != 1 {
		t.Errorf("Expected destructor to run once, got %d", destroyed)
	}
}

func TestSingleWorker_RingOrder(t *testing.T) {
	// One worker and one producer: execution follows submission order.
	q, err := New(1, 8, WithIdleBaseline(1), WithWaitTimeout(10*time.Millisecond))
	if err != nil {
		t.Fatalf("Failed to create queue: %v", err)
	}

	gate := make(chan struct{})
	var mu sync.Mutex
	var order []int

	// Hold the worker on a gate job so the rest queue up behind it.
	if err := q.Run(); err != nil {
		t.Fatalf("Failed to run queue: %v", err)
	}
	defer q.Stop(5 * time.Second)

	_, err = q.Schedule(func(_ context.Context, _ any) error {
		<-gate
		return nil
	}, nil)
	if err != nil {
		t.Fatalf("Failed to schedule gate job: %v", err)
	}

	for i := 0; i < 7; i++ {
		n := i
		_, err := q.Schedule(func(_ context.Context, _ any) error {
			mu.Lock()
			order = append(order, n)
			mu.Unlock()
			return nil
		}, nil)
		if err != nil {
			t.Fatalf("Failed to schedule job %d: %v", n, err)
		}
	}

	close(gate)

	waitFor(t, time.Second, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(order) == 7
	})

	mu.Lock()
	defer mu.Unlock()
	for i, n := range order {
		if n != i {
			t.Fatalf("Expected ring order, got %v", order)
		}
	}
}

func TestTrySchedule_FullThenProgress(t *testing.T) {
	// A single job slot: one in-flight job keeps the pool at capacity
	// until its callback returns.
	q, err := New(1, 1, WithIdleBaseline(1), WithWaitTimeout(10*time.Millisecond))
	if err != nil {
		t.Fatalf("Failed to create queue: %v", err)
	}
	if err := q.Run(); err != nil {
		t.Fatalf("Failed to run queue: %v", err)
	}
	defer q.Stop(5 * time.Second)

	barrier := make(chan struct{})
	started := make(chan struct{})
	_, err = q.Schedule(func(_ context.Context, _ any) error {
		close(started)
		<-barrier
		return nil
	}, nil)
	if err != nil {
		t.Fatalf("Failed to schedule blocking job: %v", err)
	}
	<-started

	if _, err := q.TrySchedule(noop, nil); !errors.Is(err, errors.ErrQueueFull) {
		t.Errorf("Expected ErrQueueFull, got %v", err)
	}

	// A blocked Schedule must make progress once the barrier lifts.
	scheduled := make(chan error, 1)
	go func() {
		_, err := q.Schedule(noop, nil)
		scheduled <- err
	}()

	select {
	case err := <-scheduled:
		t.Fatalf("Schedule returned %v before a slot was free", err)
	case <-time.After(50 * time.Millisecond):
	}

	close(barrier)

	select {
	case err := <-scheduled:
		if err != nil {
			t.Errorf("Blocked Schedule failed: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Blocked Schedule did not make progress")
	}
}

func TestAllJobsRun_NoLossNoDuplication(t *testing.T) {
	q, err := New(8, 16, WithIdleBaseline(2),
		WithWaitTimeout(10*time.Millisecond),
		WithGrowerInterval(20*time.Millisecond))
	if err != nil {
		t.Fatalf("Failed to create queue: %v", err)
	}
	if err := q.Run(); err != nil {
		t.Fatalf("Failed to run queue: %v", err)
	}
	defer q.Stop(5 * time.Second)

	const total = 500
	var mu sync.Mutex
	seen := make(map[int]int)

	var wg sync.WaitGroup
	for p := 0; p < 5; p++ {
		wg.Add(1)
		go func(producer int) {
			defer wg.Done()
			for i := 0; i < total/5; i++ {
				n := producer*(total/5) + i
				_, err := q.Schedule(func(_ context.Context, payload any) error {
					mu.Lock()
					seen[payload.(int)]++
					mu.Unlock()
					return nil
				}, n)
				if err != nil {
					t.Errorf("Producer %d failed to schedule %d: %v", producer, n, err)
					return
				}
			}
		}(p)
	}
	wg.Wait()

	waitFor(t, 5*time.Second, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(seen) == total
	})

	mu.Lock()
	defer mu.Unlock()
	for n, count := range seen {
		if count != 1 {
			t.Errorf("Payload %d ran %d times", n, count)
		}
	}
}

func TestGrower_SpawnsAboveBaseline(t *testing.T) {
	q, err := New(4, 8, WithIdleBaseline(2),
		WithWaitTimeout(10*time.Millisecond),
		WithGrowerInterval(10*time.Millisecond))
	if err != nil {
		t.Fatalf("Failed to create queue: %v", err)
	}
	if err := q.Run(); err != nil {
		t.Fatalf("Failed to run queue: %v", err)
	}
	defer q.Stop(5 * time.Second)

	var processed int64
	var sawElastic atomic.Bool

	done := make(chan struct{})
	go func() {
		for {
			select {
			case <-done:
				return
			default:
			}
			states := q.WorkerStates()
			for i := q.idleBaseline; i < uint32(len(states)); i++ {
				s := states[i]
				if s == WorkerRunning || s == WorkerInterruptible || s == WorkerUninterruptible {
					sawElastic.Store(true)
				}
			}
			time.Sleep(time.Millisecond)
		}
	}()

	const total = 1000
	for i := 0; i < total; i++ {
		_, err := q.Schedule(func(_ context.Context, _ any) error {
			atomic.AddInt64(&processed, 1)
			time.Sleep(time.Millisecond)
			return nil
		}, nil)
		if err != nil {
			t.Fatalf("Failed to schedule job %d: %v", i, err)
		}
		if running := q.Stats().RunningWorkers; running > 4 {
			t.Fatalf("Running workers %d exceeds maximum", running)
		}
	}

	waitFor(t, 30*time.Second, func() bool {
		return atomic.LoadInt64(&processed) == total
	})
	close(done)

	if !sawElastic.Load() {
		t.Error("Expected the grower to spawn a worker above the baseline")
	}
}

func TestIdleEviction(t *testing.T) {
	q, err := New(2, 4, WithIdleBaseline(1),
		WithWaitTimeout(5*time.Millisecond),
		WithGrowerInterval(5*time.Millisecond),
		WithIdleEvictCount(3))
	if err != nil {
		t.Fatalf("Failed to create queue: %v", err)
	}
	if err := q.Run(); err != nil {
		t.Fatalf("Failed to run queue: %v", err)
	}
	defer q.Stop(5 * time.Second)

	// Saturate long enough for the grower to bring up the elastic worker.
	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 20; j++ {
				q.Schedule(func(_ context.Context, _ any) error {
					time.Sleep(2 * time.Millisecond)
					return nil
				}, nil)
			}
		}()
	}
	wg.Wait()

	waitFor(t, 10*time.Second, func() bool {
		return q.Stats().RunningWorkers == 1
	})

	// The pinned worker never self-evicts.
	states := q.WorkerStates()
	if s := states[0]; s != WorkerInterruptible && s != WorkerRunning && s != WorkerUninterruptible {
		t.Errorf("Baseline worker should stay live, state %s", s)
	}
	if s := states[1]; s != WorkerZombie && s != WorkerDead {
		t.Errorf("Elastic worker should have evicted itself, state %s", s)
	}
}

func TestCallbackPanic_PoolSurvives(t *testing.T) {
	q, err := New(2, 4, WithIdleBaseline(2), WithWaitTimeout(10*time.Millisecond))
	if err != nil {
		t.Fatalf("Failed to create queue: %v", err)
	}
	if err := q.Run(); err != nil {
		t.Fatalf("Failed to run queue: %v", err)
	}
	defer q.Stop(5 * time.Second)

	var destroyed int64
	_, err = q.Schedule(func(_ context.Context, _ any) error {
		panic("boom")
	}, "payload", WithDestructor(func(any) {
		atomic.AddInt64(&destroyed, 1)
	}))
	if err != nil {
		t.Fatalf("Failed to schedule panicking job: %v", err)
	}

	waitFor(t, 2*time.Second, func() bool {
		return atomic.LoadInt64(&destroyed) == 1
	})

	// The pool must still accept and run work.
	ran := make(chan struct{})
	_, err = q.Schedule(func(_ context.Context, _ any) error {
		close(ran)
		return nil
	}, nil)
	if err != nil {
		t.Fatalf("Failed to schedule after panic: %v", err)
	}

	select {
	case <-ran:
	case <-time.After(2 * time.Second):
		t.Fatal("Pool did not run a job after a callback panic")
	}
}

func TestCallbackError_Counted(t *testing.T) {
	q, err := New(1, 4, WithIdleBaseline(1), WithWaitTimeout(10*time.Millisecond))
	if err != nil {
		t.Fatalf("Failed to create queue: %v", err)
	}
	if err := q.Run(); err != nil {
		t.Fatalf("Failed to run queue: %v", err)
	}
	defer q.Stop(5 * time.Second)

	ran := make(chan struct{})
	_, err = q.Schedule(func(_ context.Context, _ any) error {
		defer close(ran)
		return errors.ErrStorageUnavailable
	}, nil)
	if err != nil {
		t.Fatalf("Failed to schedule failing job: %v", err)
	}

	select {
	case <-ran:
	case <-time.After(2 * time.Second):
		t.Fatal("Failing job never ran")
	}
}

func TestStop_DestructorExactlyOnce(t *testing.T) {
	q, err := New(2, 4, WithIdleBaseline(2), WithWaitTimeout(10*time.Millisecond))
	if err != nil {
		t.Fatalf("Failed to create queue: %v", err)
	}
	if err := q.Run(); err != nil {
		t.Fatalf("Failed to run queue: %v", err)
	}

	const total = 200
	var destroyed int64
	var attempts int64

	var wg sync.WaitGroup
	for p := 0; p < 4; p++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < total/4; i++ {
				atomic.AddInt64(&attempts, 1)
				q.Schedule(func(_ context.Context, _ any) error {
					time.Sleep(time.Millisecond)
					return nil
				}, i, WithDestructor(func(any) {
					atomic.AddInt64(&destroyed, 1)
				}))
			}
		}()
	}

	// Stop mid-stream: some jobs run, some are rejected with Stopped, some
	// are dropped from the ring. Every path runs the destructor once.
	time.Sleep(20 * time.Millisecond)
	if err := q.Stop(10 * time.Second); err != nil {
		t.Fatalf("Failed to stop queue: %v", err)
	}
	wg.Wait()

	if got, want := atomic.LoadInt64(&destroyed), atomic.LoadInt64(&attempts); got != want {
		t.Errorf("Expected %d destructor calls, got %d", want, got)
	}

	// No descriptor remains live after stop and join.
	for i, s := range q.WorkerStates() {
		if s != WorkerDead {
			t.Errorf("Worker %d still %s after stop", i, s)
		}
	}
}

func TestStop_Idempotent(t *testing.T) {
	q, err := New(2, 4, WithIdleBaseline(2))
	if err != nil {
		t.Fatalf("Failed to create queue: %v", err)
	}
	if err := q.Run(); err != nil {
		t.Fatalf("Failed to run queue: %v", err)
	}

	if err := q.Stop(5 * time.Second); err != nil {
		t.Fatalf("First stop failed: %v", err)
	}
	if err := q.Stop(5 * time.Second); err != nil {
		t.Errorf("Second stop should be a no-op, got %v", err)
	}

	if _, err := q.Schedule(noop, nil); !errors.Is(err, errors.ErrStopped) {
		t.Errorf("Expected ErrStopped after stop, got %v", err)
	}
	if _, err := q.TrySchedule(noop, nil); !errors.Is(err, errors.ErrStopped) {
		t.Errorf("Expected ErrStopped from TrySchedule after stop, got %v", err)
	}
}

func TestStop_Timeout(t *testing.T) {
	q, err := New(1, 2, WithIdleBaseline(1), WithWaitTimeout(10*time.Millisecond))
	if err != nil {
		t.Fatalf("Failed to create queue: %v", err)
	}
	if err := q.Run(); err != nil {
		t.Fatalf("Failed to run queue: %v", err)
	}

	started := make(chan struct{})
	_, err = q.Schedule(func(_ context.Context, _ any) error {
		close(started)
		time.Sleep(300 * time.Millisecond)
		return nil
	}, nil)
	if err != nil {
		t.Fatalf("Failed to schedule slow job: %v", err)
	}
	<-started

	if err := q.Stop(10 * time.Millisecond); !errors.Is(err, errors.ErrStopTimeout) {
		t.Errorf("Expected ErrStopTimeout, got %v", err)
	}

	// A retry with a generous timeout completes the join.
	if err := q.Stop(5 * time.Second); err != nil {
		t.Errorf("Stop retry failed: %v", err)
	}
}

func TestStats(t *testing.T) {
	q, err := New(3, 8, WithIdleBaseline(2))
	if err != nil {
		t.Fatalf("Failed to create queue: %v", err)
	}

	stats := q.Stats()
	if stats.MaxWorkers != 3 || stats.MaxJobs != 8 || stats.IdleBaseline != 2 {
		t.Errorf("Unexpected sizing in stats: %+v", stats)
	}
	if stats.FreeSlots != 8 {
		t.Errorf("Expected 8 free slots initially, got %d", stats.FreeSlots)
	}
	if stats.RunningWorkers != 0 {
		t.Errorf("Expected 0 running workers before Run, got %d", stats.RunningWorkers)
	}

	if err := q.Run(); err != nil {
		t.Fatalf("Failed to run queue: %v", err)
	}
	defer q.Stop(5 * time.Second)

	waitFor(t, 2*time.Second, func() bool {
		return q.Stats().RunningWorkers == 2
	})
}

// waitFor polls cond until it holds or the deadline passes.
func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}
