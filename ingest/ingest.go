// Package ingest turns incoming message updates into persisted rows.
//
// The Ingester sits between the Telegram client's update callback and
// the shared work queue. Each update is bundled into a pooled payload
// and scheduled; the queue's worker saves the message under the chat's
// lock using a pooled database connection. Every scheduled payload is
// released exactly once, whether the job runs, is rejected, or is
// dropped during shutdown.
package ingest

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/ammarfaizi2/green-tea-bot/component"
	"github.com/ammarfaizi2/green-tea-bot/errors"
	"github.com/ammarfaizi2/green-tea-bot/pkg/lockmap"
	"github.com/ammarfaizi2/green-tea-bot/storage"
	"github.com/ammarfaizi2/green-tea-bot/tdclient"
	"github.com/ammarfaizi2/green-tea-bot/workqueue"
)

// ConnPool is the slice of storage.Pool the ingester uses.
type ConnPool interface {
	Get(ctx context.Context) (*storage.Conn, error)
	Put(conn *storage.Conn)
}

// EntityResolver supplies cached chat and sender details for an
// incoming message. *tdclient.Client implements it.
type EntityResolver interface {
	ChatTitle(chatID int64) (string, bool)
	UserByID(userID int64) (*tdclient.User, bool)
}

// Ingester schedules one persistence task per incoming message.
type Ingester struct {
	queue    *workqueue.WorkQueue
	pool     ConnPool
	resolver EntityResolver
	locks    *lockmap.LockMap[int64]
	logger   *slog.Logger

	// save and destroy are swapped out by tests
	save    func(ctx context.Context, conn *storage.Conn, msg *storage.Message) error
	destroy func(payload any)

	started   atomic.Bool
	startTime time.Time

	accepted  atomic.Int64
	dropped   atomic.Int64
	failures  atomic.Int64
	lastError atomic.Value // string
}

// Option is a functional option for configuring the Ingester.
type Option func(*Ingester)

// WithLogger sets a custom structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(i *Ingester) {
		if logger != nil {
			i.logger = logger
		}
	}
}

// New creates an ingester wired to the shared queue, connection pool
// and entity caches. Locks serializes saves per chat and may be shared
// with other producers.
func New(queue *workqueue.WorkQueue, pool ConnPool, resolver EntityResolver,
	locks *lockmap.LockMap[int64], opts ...Option) *Ingester {
	i := &Ingester{
		queue:    queue,
		pool:     pool,
		resolver: resolver,
		locks:    locks,
		logger:   slog.Default(),
	}
	i.save = func(ctx context.Context, conn *storage.Conn, msg *storage.Message) error {
		return msg.Save(ctx, conn)
	}
	i.destroy = releasePayload
	for _, opt := range opts {
		opt(i)
	}
	return i
}

// Meta implements component.Discoverable.
func (i *Ingester) Meta() component.Metadata {
	return component.Metadata{
		Name:        "ingest",
		Type:        "ingest",
		Description: "persists incoming chat messages through the work queue",
		Version:     "1.0.0",
	}
}

// Health implements component.Discoverable.
func (i *Ingester) Health() component.HealthStatus {
	h := component.HealthStatus{
		Healthy:    i.started.Load(),
		LastCheck:  time.Now(),
		ErrorCount: int(i.failures.Load()),
	}
	if msg, ok := i.lastError.Load().(string); ok {
		h.LastError = msg
	}
	if i.started.Load() {
		h.Uptime = time.Since(i.startTime)
	}
	return h
}

// Initialize implements component.LifecycleComponent.
func (i *Ingester) Initialize() error {
	if i.queue == nil || i.pool == nil || i.resolver == nil || i.locks == nil {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Ingester", "Initialize", "missing collaborator")
	}
	return nil
}

// Start begins accepting updates.
func (i *Ingester) Start(_ context.Context) error {
	if !i.started.CompareAndSwap(false, true) {
		return errors.Wrap(errors.ErrAlreadyStarted, "Ingester", "Start", "start component")
	}
	i.startTime = time.Now()
	i.logger.Info("ingester started")
	return nil
}

// Stop stops accepting updates. Tasks already queued keep their slots
// until the work queue itself stops.
func (i *Ingester) Stop(_ time.Duration) error {
	if !i.started.CompareAndSwap(true, false) {
		return nil
	}
	i.logger.Info("ingester stopped",
		"accepted", i.accepted.Load(),
		"dropped", i.dropped.Load(),
		"failures", i.failures.Load())
	return nil
}

// Stats returns ingestion counters.
func (i *Ingester) Stats() (accepted, dropped, failures int64) {
	return i.accepted.Load(), i.dropped.Load(), i.failures.Load()
}

// HandleNewMessage is the update hook. It bundles the message into a
// payload and schedules persistence, blocking under queue backpressure.
func (i *Ingester) HandleNewMessage(update *tdclient.UpdateNewMessage) {
	if !i.started.Load() {
		return
	}
	if update == nil || update.Message == nil || update.Message.Text == "" {
		i.dropped.Add(1)
		return
	}

	p := acquirePayload()
	p.msg = update.Message
	if title, ok := i.resolver.ChatTitle(update.Message.ChatID); ok {
		p.chatTitle = title
	}
	if u, ok := i.resolver.UserByID(update.Message.SenderUserID); ok {
		p.sender = u
	}

	_, err := i.queue.Schedule(i.process, p,
		workqueue.WithDestructor(i.destroy),
		workqueue.WithTaskName("ingest:save"))
	if err != nil {
		// Schedule already ran the destructor on rejection
		i.dropped.Add(1)
		if !errors.Is(err, errors.ErrStopped) {
			i.logger.Error("failed to schedule message save", "error", err)
		}
		return
	}
	i.accepted.Add(1)
}

func (i *Ingester) process(ctx context.Context, payload any) error {
	p := payload.(*messagePayload)
	msg := p.msg

	i.locks.Lock(msg.ChatID)
	defer i.locks.Unlock(msg.ChatID)

	conn, err := i.pool.Get(ctx)
	if err != nil {
		i.recordFailure(err)
		return errors.Wrap(err, "Ingester", "process", "acquire connection")
	}
	defer i.pool.Put(conn)

	row := &storage.Message{
		ChatID:       msg.ChatID,
		ChatTitle:    p.chatTitle,
		TgMsgID:      msg.ID,
		SenderUserID: msg.SenderUserID,
		Text:         msg.Text,
		TgDate:       time.Unix(msg.Date, 0).UTC(),
		IsEdited:     msg.EditDate != 0,
	}
	if p.sender != nil {
		row.SenderUsername = p.sender.Username
		row.SenderFirstName = p.sender.FirstName
		row.SenderLastName = p.sender.LastName
	}

	if err := i.save(ctx, conn, row); err != nil {
		i.recordFailure(err)
		return err
	}
	return nil
}

func (i *Ingester) recordFailure(err error) {
	i.failures.Add(1)
	i.lastError.Store(err.Error())
}
