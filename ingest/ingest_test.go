package ingest

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ammarfaizi2/green-tea-bot/errors"
	"github.com/ammarfaizi2/green-tea-bot/pkg/lockmap"
	"github.com/ammarfaizi2/green-tea-bot/storage"
	"github.com/ammarfaizi2/green-tea-bot/tdclient"
	"github.com/ammarfaizi2/green-tea-bot/workqueue"
)

type fakePool struct {
	getErr error
	gets   atomic.Int64
	puts   atomic.Int64
}

func (f *fakePool) Get(_ context.Context) (*storage.Conn, error) {
	f.gets.Add(1)
	if f.getErr != nil {
		return nil, f.getErr
	}
	return &storage.Conn{}, nil
}

func (f *fakePool) Put(_ *storage.Conn) {
	f.puts.Add(1)
}

type fakeResolver struct {
	titles map[int64]string
	users  map[int64]*tdclient.User
}

func (f *fakeResolver) ChatTitle(chatID int64) (string, bool) {
	t, ok := f.titles[chatID]
	return t, ok
}

func (f *fakeResolver) UserByID(userID int64) (*tdclient.User, bool) {
	u, ok := f.users[userID]
	return u, ok
}

type harness struct {
	ing   *Ingester
	queue *workqueue.WorkQueue
	pool  *fakePool

	mu    sync.Mutex
	saved []*storage.Message

	destroys atomic.Int64
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	queue, err := workqueue.New(2, 8)
	require.NoError(t, err)
	require.NoError(t, queue.Run())
	t.Cleanup(func() {
		_ = queue.Stop(5 * time.Second)
	})

	h := &harness{
		queue: queue,
		pool:  &fakePool{},
	}
	resolver := &fakeResolver{
		titles: map[int64]string{100: "general"},
		users:  map[int64]*tdclient.User{42: {ID: 42, Username: "ammar", FirstName: "Ammar"}},
	}
	h.ing = New(queue, h.pool, resolver, lockmap.New[int64]())
	h.ing.save = func(_ context.Context, _ *storage.Conn, msg *storage.Message) error {
		h.mu.Lock()
		h.saved = append(h.saved, msg)
		h.mu.Unlock()
		return nil
	}
	h.ing.destroy = func(payload any) {
		h.destroys.Add(1)
		releasePayload(payload)
	}

	require.NoError(t, h.ing.Initialize())
	require.NoError(t, h.ing.Start(context.Background()))
	return h
}

func (h *harness) savedCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.saved)
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met in time")
}

func newMessageUpdate(chatID, msgID int64, text string) *tdclient.UpdateNewMessage {
	return &tdclient.UpdateNewMessage{
		Message: &tdclient.Message{
			ID:           msgID,
			ChatID:       chatID,
			SenderUserID: 42,
			Date:         1633089600,
			Text:         text,
		},
	}
}

func TestHandleNewMessage_SavesThroughQueue(t *testing.T) {
	h := newHarness(t)

	h.ing.HandleNewMessage(newMessageUpdate(100, 555, "hello"))
	waitFor(t, 5*time.Second, func() bool { return h.savedCount() == 1 })

	h.mu.Lock()
	row := h.saved[0]
	h.mu.Unlock()
	assert.Equal(t, int64(100), row.ChatID)
	assert.Equal(t, "general", row.ChatTitle)
	assert.Equal(t, int64(555), row.TgMsgID)
	assert.Equal(t, "ammar", row.SenderUsername)
	assert.Equal(t, "hello", row.Text)
	assert.Equal(t, time.Date(2021, 10, 1, 12, 0, 0, 0, time.UTC), row.TgDate)

	accepted, dropped, failures := h.ing.Stats()
	assert.Equal(t, int64(1), accepted)
	assert.Equal(t, int64(0), dropped)
	assert.Equal(t, int64(0), failures)

	// Connection returned to the pool
	waitFor(t, time.Second, func() bool { return h.pool.puts.Load() == 1 })
}

func TestHandleNewMessage_RejectsEmpty(t *testing.T) {
	h := newHarness(t)

	h.ing.HandleNewMessage(nil)
	h.ing.HandleNewMessage(&tdclient.UpdateNewMessage{})
	h.ing.HandleNewMessage(newMessageUpdate(100, 1, ""))

	accepted, dropped, _ := h.ing.Stats()
	assert.Equal(t, int64(0), accepted)
	assert.Equal(t, int64(3), dropped)
	assert.Equal(t, int64(0), h.destroys.Load())
}

func TestHandleNewMessage_DroppedWhenStopped(t *testing.T) {
	h := newHarness(t)
	h.ing.HandleNewMessage(newMessageUpdate(100, 1, "before stop"))
	require.NoError(t, h.ing.Stop(time.Second))

	h.ing.HandleNewMessage(newMessageUpdate(100, 2, "after stop"))
	accepted, _, _ := h.ing.Stats()
	assert.Equal(t, int64(1), accepted)
}

func TestDestructorExactlyOnce_NormalFlow(t *testing.T) {
	h := newHarness(t)

	const n = 50
	for m := 0; m < n; m++ {
		h.ing.HandleNewMessage(newMessageUpdate(100, int64(m), "msg"))
	}
	waitFor(t, 5*time.Second, func() bool { return h.savedCount() == n })
	waitFor(t, 5*time.Second, func() bool { return h.destroys.Load() == n })
}

func TestDestructorExactlyOnce_StopMidStream(t *testing.T) {
	h := newHarness(t)

	// Slow saves so the queue still holds entries when Stop begins
	h.ing.save = func(_ context.Context, _ *storage.Conn, _ *storage.Message) error {
		time.Sleep(20 * time.Millisecond)
		return nil
	}

	var attempts atomic.Int64
	done := make(chan struct{})
	go func() {
		defer close(done)
		for m := 0; m < 200; m++ {
			h.ing.HandleNewMessage(newMessageUpdate(100, int64(m), "msg"))
			attempts.Add(1)
		}
	}()

	time.Sleep(50 * time.Millisecond)
	require.NoError(t, h.queue.Stop(10*time.Second))
	<-done

	// Run, dropped or rejected, every scheduled payload is destroyed
	// exactly once.
	waitFor(t, 5*time.Second, func() bool {
		return h.destroys.Load() == attempts.Load()
	})
}

func TestProcess_PoolFailureCounted(t *testing.T) {
	h := newHarness(t)
	h.pool.getErr = errors.ErrNoFreeConn

	h.ing.HandleNewMessage(newMessageUpdate(100, 1, "msg"))
	waitFor(t, 5*time.Second, func() bool {
		_, _, failures := h.ing.Stats()
		return failures == 1
	})

	health := h.ing.Health()
	assert.Equal(t, 1, health.ErrorCount)
	assert.Contains(t, health.LastError, "no free database connection")
}

func TestLifecycle(t *testing.T) {
	ing := New(nil, nil, nil, nil)
	require.Error(t, ing.Initialize())

	h := newHarness(t)
	err := h.ing.Start(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrAlreadyStarted))

	meta := h.ing.Meta()
	assert.Equal(t, "ingest", meta.Name)
	assert.True(t, h.ing.Health().Healthy)

	require.NoError(t, h.ing.Stop(time.Second))
	require.NoError(t, h.ing.Stop(time.Second))
	assert.False(t, h.ing.Health().Healthy)
}
