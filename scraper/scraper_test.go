package scraper

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
	gets atomic.Int64
	puts atomic.Int64
}

func (f *fakePool) Get(_ context.Context) (*storage.Conn, error) {
	f.gets.Add(1)
	return &storage.Conn{}, nil
}

func (f *fakePool) Put(_ *storage.Conn) {
	f.puts.Add(1)
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

func newFakeTelegram(t *testing.T) (*tdclient.Client, *tdclient.TestTransport, context.CancelFunc) {
	t.Helper()

	tr := tdclient.NewTestTransport()
	tr.Handle("getChats", func(_ tdclient.SentQuery) tdclient.Object {
		return &tdclient.Chats{ChatIDs: []int64{100, 200, 300}}
	})
	tr.Handle("getChat", func(q tdclient.SentQuery) tdclient.Object {
		req := q.Request.(*tdclient.GetChat)
		chat := &tdclient.Chat{ID: req.ChatID, Type: tdclient.ChatTypeSupergroup}
		switch req.ChatID {
		case 100:
			chat.Title = "general"
		case 200:
			chat.Type = tdclient.ChatTypePrivate
		case 300:
			chat.Title = "random"
		}
		return chat
	})
	tr.Handle("getChatHistory", func(q tdclient.SentQuery) tdclient.Object {
		req := q.Request.(*tdclient.GetChatHistory)
		return &tdclient.Messages{
			TotalCount: 2,
			Messages: []*tdclient.Message{
				{ID: 1, ChatID: req.ChatID, SenderUserID: 42, Date: 1633089600, Text: "first"},
				{ID: 2, ChatID: req.ChatID, SenderUserID: 42, Date: 1633089660, Text: "second"},
			},
		}
	})

	client, err := tdclient.NewClient(tr)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		_ = client.Run(ctx, 10*time.Millisecond)
	}()
	return client, tr, cancel
}

func newTestScraper(t *testing.T, client QueryClient) (*Scraper, *fakePool, func() []*storage.Message) {
	t.Helper()

	queue, err := workqueue.New(2, 8)
	require.NoError(t, err)
	require.NoError(t, queue.Run())
	t.Cleanup(func() {
		_ = queue.Stop(5 * time.Second)
	})

	pool := &fakePool{}
	scr := New(client, queue, pool, lockmap.New[int64](),
		WithSweepInterval(time.Hour),
		WithChatListLimit(300),
		WithHistoryLimit(50))

	var mu sync.Mutex
	var saved []*storage.Message
	scr.save = func(_ context.Context, _ *storage.Conn, msg *storage.Message) error {
		mu.Lock()
		saved = append(saved, msg)
		mu.Unlock()
		return nil
	}
	snapshot := func() []*storage.Message {
		mu.Lock()
		defer mu.Unlock()
		out := make([]*storage.Message, len(saved))
		copy(out, saved)
		return out
	}

	require.NoError(t, scr.Initialize())
	return scr, pool, snapshot
}

func TestSweep_FanOutAndFilter(t *testing.T) {
	client, _, stopPump := newFakeTelegram(t)
	defer stopPump()

	scr, pool, snapshot := newTestScraper(t, client)
	require.NoError(t, scr.Start(context.Background()))
	defer func() {
		require.NoError(t, scr.Stop(10*time.Second))
	}()

	// Two supergroups, the private chat is skipped
	waitFor(t, 10*time.Second, func() bool {
		_, scraped, _ := scr.Stats()
		return scraped == 2
	})

	saved := snapshot()
	require.Len(t, saved, 4)
	byChat := map[int64]int{}
	for _, m := range saved {
		byChat[m.ChatID]++
		assert.Equal(t, int64(42), m.SenderUserID)
		assert.NotEmpty(t, m.Text)
	}
	assert.Equal(t, 2, byChat[100])
	assert.Equal(t, 2, byChat[300])
	assert.Zero(t, byChat[200])

	waitFor(t, time.Second, func() bool {
		return pool.puts.Load() == pool.gets.Load()
	})
}

func TestSweep_ChatListFailureCounted(t *testing.T) {
	tr := tdclient.NewTestTransport()
	tr.Handle("getChats", func(_ tdclient.SentQuery) tdclient.Object {
		return &tdclient.Error{Code: 420, Message: "FLOOD_WAIT"}
	})
	client, err := tdclient.NewClient(tr)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		_ = client.Run(ctx, 10*time.Millisecond)
	}()

	scr, _, _ := newTestScraper(t, client)
	require.NoError(t, scr.Start(context.Background()))
	defer func() {
		require.NoError(t, scr.Stop(10*time.Second))
	}()

	waitFor(t, 10*time.Second, func() bool {
		_, _, failures := scr.Stats()
		return failures >= 1
	})
	assert.Contains(t, scr.Health().LastError, "FLOOD_WAIT")
}

func TestLifecycle(t *testing.T) {
	scr := New(nil, nil, nil, nil)
	require.Error(t, scr.Initialize())

	client, _, stopPump := newFakeTelegram(t)
	defer stopPump()
	scr, _, _ = newTestScraper(t, client)

	require.NoError(t, scr.Start(context.Background()))
	err := scr.Start(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrAlreadyStarted))

	assert.Equal(t, "scraper", scr.Meta().Name)
	assert.True(t, scr.Health().Healthy)

	require.NoError(t, scr.Stop(10*time.Second))
	require.NoError(t, scr.Stop(10*time.Second))
	assert.False(t, scr.Health().Healthy)
}
