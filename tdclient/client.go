// Package tdclient wraps a Telegram transport with query dispatch,
// update routing and entity caches.
package tdclient

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ammarfaizi2/green-tea-bot/errors"
	"github.com/ammarfaizi2/green-tea-bot/pkg/cache"
)

// ConnectionStatus represents the state of the Telegram session.
type ConnectionStatus int

// Possible connection statuses.
const (
	StatusDisconnected ConnectionStatus = iota
	StatusConnecting
	StatusAuthorizing
	StatusReady
	StatusClosing
	StatusClosed
)

// String returns the string representation of ConnectionStatus.
func (s ConnectionStatus) String() string {
	switch s {
	case StatusDisconnected:
		return "disconnected"
	case StatusConnecting:
		return "connecting"
	case StatusAuthorizing:
		return "authorizing"
	case StatusReady:
		return "ready"
	case StatusClosing:
		return "closing"
	case StatusClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// userCacheSize caps the sender cache kept by the client.
const userCacheSize = 8192

// ResponseHandler receives the response object for one query. The
// object is *Error when the server rejected the query.
type ResponseHandler func(obj Object)

// Client multiplexes queries and updates over a single Transport.
// Responses are matched back to their handler by query ID; updates
// refresh the chat and user caches and are then handed to the
// registered Callback.
type Client struct {
	transport Transport
	logger    *slog.Logger
	callback  *Callback
	metrics   *clientMetrics

	status atomic.Value // ConnectionStatus

	handlersMu  sync.Mutex
	handlers    map[int64]ResponseHandler
	nextQueryID atomic.Int64

	chatTitles cache.Cache[int64, string]
	users      cache.Cache[int64, *User]

	closed atomic.Bool
}

// NewClient creates a client on top of the given transport.
func NewClient(transport Transport, opts ...ClientOption) (*Client, error) {
	if transport == nil {
		return nil, errors.WrapInvalid(errors.ErrNotConnected, "Client", "NewClient", "nil transport")
	}

	chatTitles, err := cache.NewSimple[int64, string]()
	if err != nil {
		return nil, errors.Wrap(err, "Client", "NewClient", "create chat title cache")
	}
	// The user cache is bounded, large group sweeps touch far more
	// senders than chats.
	users, err := cache.NewLRU[int64, *User](userCacheSize)
	if err != nil {
		return nil, errors.Wrap(err, "Client", "NewClient", "create user cache")
	}

	c := &Client{
		transport:  transport,
		logger:     slog.Default(),
		handlers:   make(map[int64]ResponseHandler),
		chatTitles: chatTitles,
		users:      users,
	}
	for _, opt := range opts {
		if err := opt(c); err != nil {
			return nil, errors.WrapInvalid(err, "Client", "NewClient", "apply option")
		}
	}
	c.status.Store(StatusConnecting)
	return c, nil
}

// Status returns the current session status.
func (c *Client) Status() ConnectionStatus {
	val := c.status.Load()
	if val == nil {
		return StatusDisconnected
	}
	return val.(ConnectionStatus)
}

func (c *Client) setStatus(status ConnectionStatus) {
	c.status.Store(status)
}

// IsReady reports whether the session is authorized and usable.
func (c *Client) IsReady() bool {
	return c.Status() == StatusReady
}

// ChatTitle returns the cached title for a chat.
func (c *Client) ChatTitle(chatID int64) (string, bool) {
	return c.chatTitles.Get(chatID)
}

// UserByID returns the cached account details for a user.
func (c *Client) UserByID(userID int64) (*User, bool) {
	return c.users.Get(userID)
}

// SendQuery sends a request and registers handler for its response.
// Handler may be nil for fire-and-forget queries. Returns the query ID.
func (c *Client) SendQuery(req Request, handler ResponseHandler) (int64, error) {
	if c.closed.Load() {
		return 0, errors.Wrap(errors.ErrLoopClosed, "Client", "SendQuery", "send "+req.TypeName())
	}

	queryID := c.nextQueryID.Add(1)
	if handler != nil {
		c.handlersMu.Lock()
		c.handlers[queryID] = handler
		c.handlersMu.Unlock()
		if c.metrics != nil {
			c.metrics.pendingQueries.Inc()
		}
	}

	if err := c.transport.Send(queryID, req); err != nil {
		if handler != nil {
			c.dropHandler(queryID)
		}
		return 0, errors.WrapTransient(err, "Client", "SendQuery", "send "+req.TypeName())
	}
	if c.metrics != nil {
		c.metrics.queriesSent.Inc()
	}
	return queryID, nil
}

// syncRecord carries the result of one synchronous query from the
// receive loop back to the waiting caller. The response handler holds
// the only other reference, so the record stays valid even after the
// caller gives up waiting.
type syncRecord struct {
	mu       sync.Mutex
	cond     *sync.Cond
	result   Object
	finished bool
}

// SendQuerySync sends a request and blocks until its response arrives,
// ctx is done, or timeout elapses. Some other goroutine must be
// driving Loop for the response to be delivered.
func (c *Client) SendQuerySync(ctx context.Context, req Request, timeout time.Duration) (Object, error) {
	rec := &syncRecord{}
	rec.cond = sync.NewCond(&rec.mu)

	queryID, err := c.SendQuery(req, func(obj Object) {
		rec.mu.Lock()
		rec.result = obj
		rec.finished = true
		rec.mu.Unlock()
		rec.cond.Signal()
	})
	if err != nil {
		return nil, err
	}

	deadline := time.Now().Add(timeout)
	rec.mu.Lock()
	for !rec.finished {
		if ctx.Err() != nil || !time.Now().Before(deadline) {
			break
		}
		wait := time.Until(deadline)
		if wait > time.Second {
			wait = time.Second
		}
		condWaitTimeout(rec.cond, wait)
	}
	result, finished := rec.result, rec.finished
	rec.mu.Unlock()

	if !finished {
		c.dropHandler(queryID)
		if ctx.Err() != nil {
			return nil, errors.Wrap(ctx.Err(), "Client", "SendQuerySync", "wait for "+req.TypeName())
		}
		return nil, errors.WrapTransient(errors.ErrQueryTimeout, "Client", "SendQuerySync", "wait for "+req.TypeName())
	}
	if terr, ok := result.(*Error); ok {
		return nil, errors.Wrap(terr, "Client", "SendQuerySync", "query "+req.TypeName())
	}
	return result, nil
}

func (c *Client) dropHandler(queryID int64) {
	c.handlersMu.Lock()
	_, present := c.handlers[queryID]
	delete(c.handlers, queryID)
	c.handlersMu.Unlock()
	if present && c.metrics != nil {
		c.metrics.pendingQueries.Dec()
	}
}

// Loop receives and processes at most one envelope, waiting up to
// timeout for one to arrive.
func (c *Client) Loop(timeout time.Duration) {
	env := c.transport.Receive(timeout)
	if env == nil {
		return
	}
	c.processEnvelope(env)
}

// Run drives Loop until ctx is done or the session reaches the closed
// state.
func (c *Client) Run(ctx context.Context, timeout time.Duration) error {
	for {
		if err := ctx.Err(); err != nil {
			return errors.Wrap(err, "Client", "Run", "receive loop")
		}
		if c.Status() == StatusClosed {
			return nil
		}
		c.Loop(timeout)
	}
}

func (c *Client) processEnvelope(env *Envelope) {
	if env.Object == nil {
		return
	}
	if env.RequestID == 0 {
		c.processUpdate(env.Object)
		return
	}

	c.handlersMu.Lock()
	handler, ok := c.handlers[env.RequestID]
	delete(c.handlers, env.RequestID)
	c.handlersMu.Unlock()

	if c.metrics != nil {
		c.metrics.responses.Inc()
		if ok {
			c.metrics.pendingQueries.Dec()
		} else {
			c.metrics.orphanResponses.Inc()
		}
	}
	if !ok {
		c.logger.Debug("response without handler",
			"query_id", env.RequestID,
			"type", env.Object.TypeName())
		return
	}
	handler(env.Object)
}

func (c *Client) processUpdate(obj Object) {
	if c.metrics != nil {
		c.metrics.updates.WithLabelValues(obj.TypeName()).Inc()
	}

	switch u := obj.(type) {
	case *UpdateAuthorizationState:
		c.applyAuthorizationState(u.State)
		c.callback.executeAuthorizationState(u)
	case *UpdateNewChat:
		if u.Chat != nil {
			c.chatTitles.Set(u.Chat.ID, u.Chat.Title)
		}
		c.callback.executeNewChat(u)
	case *UpdateChatTitle:
		c.chatTitles.Set(u.ChatID, u.Title)
		c.callback.executeChatTitle(u)
	case *UpdateUser:
		if u.User != nil {
			c.users.Set(u.User.ID, u.User)
		}
		c.callback.executeUser(u)
	case *UpdateNewMessage:
		c.callback.executeNewMessage(u)
	default:
		c.logger.Debug("unhandled update", "type", obj.TypeName())
	}
}

func (c *Client) applyAuthorizationState(state string) {
	switch state {
	case AuthStateWaitParameters, AuthStateWaitPhoneNumber, AuthStateWaitCode, AuthStateWaitPassword:
		c.setStatus(StatusAuthorizing)
	case AuthStateReady:
		c.setStatus(StatusReady)
	case AuthStateClosing:
		c.setStatus(StatusClosing)
	case AuthStateClosed:
		c.setStatus(StatusClosed)
	}
	c.logger.Info("authorization state changed",
		"state", state,
		"status", c.Status().String())
}

// Close asks the server to end the session, pumps the receive loop
// until the closed state is observed or five seconds pass, then closes
// the transport. Safe to call once workers no longer use the client.
func (c *Client) Close() error {
	if !c.closed.CompareAndSwap(false, true) {
		return nil
	}

	queryID := c.nextQueryID.Add(1)
	if err := c.transport.Send(queryID, &CloseRequest{}); err != nil {
		c.logger.Error("failed to send close request", "error", err)
	} else {
		deadline := time.Now().Add(5 * time.Second)
		for c.Status() != StatusClosed && time.Now().Before(deadline) {
			c.Loop(time.Second)
		}
	}

	c.setStatus(StatusClosed)
	if err := c.transport.Close(); err != nil {
		return errors.Wrap(err, "Client", "Close", "close transport")
	}
	return nil
}

// condWaitTimeout waits on cond for at most d. The caller must hold
// the associated lock and re-check its predicate afterwards.
func condWaitTimeout(cond *sync.Cond, d time.Duration) {
	timer := time.AfterFunc(d, cond.Broadcast)
	defer timer.Stop()
	cond.Wait()
}
