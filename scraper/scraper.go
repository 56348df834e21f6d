// Package scraper walks the chat list and backfills message history.
//
// A master loop periodically lists chats, filters supergroups and
// submits one scrape task per chat to the shared work queue, relying
// on the queue's backpressure to pace itself. Each task fetches a page
// of chat history and persists it under the chat's lock, so live
// ingestion and backfill never interleave writes for the same chat.
package scraper

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/ammarfaizi2/green-tea-bot/component"
	"github.com/ammarfaizi2/green-tea-bot/errors"
	"github.com/ammarfaizi2/green-tea-bot/pkg/lockmap"
	"github.com/ammarfaizi2/green-tea-bot/storage"
	"github.com/ammarfaizi2/green-tea-bot/tdclient"
	"github.com/ammarfaizi2/green-tea-bot/workqueue"
)

const (
	// DefaultChatListLimit caps one chat list query.
	DefaultChatListLimit = 300
	// DefaultHistoryLimit caps one history page per scrape task.
	DefaultHistoryLimit = 100
	// DefaultSweepInterval is the pause between full chat sweeps.
	DefaultSweepInterval = time.Minute

	queryTimeout = 30 * time.Second
)

// QueryClient is the slice of tdclient.Client the scraper uses.
type QueryClient interface {
	SendQuerySync(ctx context.Context, req tdclient.Request, timeout time.Duration) (tdclient.Object, error)
}

// ConnPool is the slice of storage.Pool the scraper uses.
type ConnPool interface {
	Get(ctx context.Context) (*storage.Conn, error)
	Put(conn *storage.Conn)
}

// Scraper owns the master sweep loop and the per-chat scrape tasks.
type Scraper struct {
	client QueryClient
	queue  *workqueue.WorkQueue
	pool   ConnPool
	locks  *lockmap.LockMap[int64]
	logger *slog.Logger

	chatListLimit int32
	historyLimit  int32
	sweepInterval time.Duration

	// save is swapped out by tests
	save func(ctx context.Context, conn *storage.Conn, msg *storage.Message) error

	cancel  context.CancelFunc
	done    chan struct{}
	started atomic.Bool

	startTime time.Time
	sweeps    atomic.Int64
	scraped   atomic.Int64
	failures  atomic.Int64
	lastError atomic.Value // string
}

// Option is a functional option for configuring the Scraper.
type Option func(*Scraper)

// WithLogger sets a custom structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Scraper) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithSweepInterval sets the pause between chat sweeps.
func WithSweepInterval(d time.Duration) Option {
	return func(s *Scraper) {
		if d > 0 {
			s.sweepInterval = d
		}
	}
}

// WithChatListLimit caps how many chats one sweep considers.
func WithChatListLimit(n int32) Option {
	return func(s *Scraper) {
		if n > 0 {
			s.chatListLimit = n
		}
	}
}

// WithHistoryLimit caps the history page size per scrape task.
func WithHistoryLimit(n int32) Option {
	return func(s *Scraper) {
		if n > 0 {
			s.historyLimit = n
		}
	}
}

// New creates a scraper wired to the shared queue, client, pool and
// per-chat locks.
func New(client QueryClient, queue *workqueue.WorkQueue, pool ConnPool,
	locks *lockmap.LockMap[int64], opts ...Option) *Scraper {
	s := &Scraper{
		client:        client,
		queue:         queue,
		pool:          pool,
		locks:         locks,
		logger:        slog.Default(),
		chatListLimit: DefaultChatListLimit,
		historyLimit:  DefaultHistoryLimit,
		sweepInterval: DefaultSweepInterval,
	}
	s.save = func(ctx context.Context, conn *storage.Conn, msg *storage.Message) error {
		return msg.Save(ctx, conn)
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Meta implements component.Discoverable.
func (s *Scraper) Meta() component.Metadata {
	return component.Metadata{
		Name:        "scraper",
		Type:        "scraper",
		Description: "backfills supergroup history through the work queue",
		Version:     "1.0.0",
	}
}

// Health implements component.Discoverable.
func (s *Scraper) Health() component.HealthStatus {
	h := component.HealthStatus{
		Healthy:    s.started.Load(),
		LastCheck:  time.Now(),
		ErrorCount: int(s.failures.Load()),
	}
	if msg, ok := s.lastError.Load().(string); ok {
		h.LastError = msg
	}
	if s.started.Load() {
		h.Uptime = time.Since(s.startTime)
	}
	return h
}

// Initialize implements component.LifecycleComponent.
func (s *Scraper) Initialize() error {
	if s.client == nil || s.queue == nil || s.pool == nil || s.locks == nil {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Scraper", "Initialize", "missing collaborator")
	}
	return nil
}

// Start launches the master sweep loop.
func (s *Scraper) Start(ctx context.Context) error {
	if !s.started.CompareAndSwap(false, true) {
		return errors.Wrap(errors.ErrAlreadyStarted, "Scraper", "Start", "start component")
	}
	ctx, s.cancel = context.WithCancel(ctx)
	s.done = make(chan struct{})
	s.startTime = time.Now()

	go s.masterLoop(ctx)
	s.logger.Info("scraper started",
		"chat_list_limit", s.chatListLimit,
		"history_limit", s.historyLimit)
	return nil
}

// Stop cancels the master loop and waits for it to exit.
func (s *Scraper) Stop(timeout time.Duration) error {
	if !s.started.CompareAndSwap(true, false) {
		return nil
	}
	s.cancel()
	select {
	case <-s.done:
	case <-time.After(timeout):
		return errors.Wrap(errors.ErrStopTimeout, "Scraper", "Stop", "join master loop")
	}
	s.logger.Info("scraper stopped",
		"sweeps", s.sweeps.Load(),
		"chats_scraped", s.scraped.Load())
	return nil
}

// Stats returns sweep counters.
func (s *Scraper) Stats() (sweeps, scraped, failures int64) {
	return s.sweeps.Load(), s.scraped.Load(), s.failures.Load()
}

func (s *Scraper) masterLoop(ctx context.Context) {
	defer close(s.done)
	for {
		if ctx.Err() != nil {
			return
		}
		sweepID := uuid.NewString()
		start := time.Now()
		submitted := s.sweep(ctx, sweepID)
		s.sweeps.Add(1)
		s.logger.Info("sweep finished",
			"sweep_id", sweepID,
			"chats_submitted", submitted,
			"elapsed", time.Since(start))

		select {
		case <-ctx.Done():
			return
		case <-time.After(s.sweepInterval):
		}
	}
}

// sweep lists chats and submits one scrape task per supergroup,
// blocking under queue backpressure. Returns how many chats were
// submitted.
func (s *Scraper) sweep(ctx context.Context, sweepID string) int {
	obj, err := s.client.SendQuerySync(ctx, &tdclient.GetChats{Limit: s.chatListLimit}, queryTimeout)
	if err != nil {
		s.recordFailure(err)
		return 0
	}
	chats, ok := obj.(*tdclient.Chats)
	if !ok {
		s.recordFailure(errors.New("unexpected response to chat list query: " + obj.TypeName()))
		return 0
	}

	submitted := 0
	for _, chatID := range chats.ChatIDs {
		if ctx.Err() != nil {
			return submitted
		}
		obj, err := s.client.SendQuerySync(ctx, &tdclient.GetChat{ChatID: chatID}, queryTimeout)
		if err != nil {
			s.recordFailure(err)
			continue
		}
		chat, ok := obj.(*tdclient.Chat)
		if !ok || chat.Type != tdclient.ChatTypeSupergroup {
			continue
		}

		s.logger.Debug("submitting chat for scraping",
			"sweep_id", sweepID, "chat_id", chat.ID, "title", chat.Title)
		_, err = s.queue.Schedule(s.scrapeChat, chat,
			workqueue.WithTaskName("scraper:chat"))
		if err != nil {
			if !errors.Is(err, errors.ErrStopped) {
				s.recordFailure(err)
			}
			return submitted
		}
		submitted++
	}
	return submitted
}

// scrapeChat fetches one history page for the chat and persists it.
func (s *Scraper) scrapeChat(ctx context.Context, payload any) error {
	chat := payload.(*tdclient.Chat)

	obj, err := s.client.SendQuerySync(ctx, &tdclient.GetChatHistory{
		ChatID: chat.ID,
		Limit:  s.historyLimit,
	}, queryTimeout)
	if err != nil {
		s.recordFailure(err)
		return err
	}
	history, ok := obj.(*tdclient.Messages)
	if !ok {
		err := errors.New("unexpected response to history query: " + obj.TypeName())
		s.recordFailure(err)
		return err
	}

	s.locks.Lock(chat.ID)
	defer s.locks.Unlock(chat.ID)

	conn, err := s.pool.Get(ctx)
	if err != nil {
		s.recordFailure(err)
		return errors.Wrap(err, "Scraper", "scrapeChat", "acquire connection")
	}
	defer s.pool.Put(conn)

	for _, msg := range history.Messages {
		if msg == nil || msg.Text == "" {
			continue
		}
		row := &storage.Message{
			ChatID:       chat.ID,
			ChatTitle:    chat.Title,
			TgMsgID:      msg.ID,
			SenderUserID: msg.SenderUserID,
			Text:         msg.Text,
			TgDate:       time.Unix(msg.Date, 0).UTC(),
			IsEdited:     msg.EditDate != 0,
		}
		if err := s.save(ctx, conn, row); err != nil {
			s.recordFailure(err)
			return err
		}
	}
	s.scraped.Add(1)
	return nil
}

func (s *Scraper) recordFailure(err error) {
	s.failures.Add(1)
	s.lastError.Store(err.Error())
	s.logger.Error("scrape failure", "error", err)
}
