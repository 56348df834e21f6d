package tdclient

import (
	"sync"
	"time"
)

// SentQuery records one request a TestTransport has seen.
type SentQuery struct {
	QueryID int64
	Request Request
}

// TestTransport is an in-memory Transport for exercising Client logic
// without a real Telegram connection. Queued envelopes are delivered
// by Receive in FIFO order; auto-responders registered with Handle
// answer matching requests as soon as they are sent.
type TestTransport struct {
	mu       sync.Mutex
	sent     []SentQuery
	handlers map[string]func(q SentQuery) Object
	sendErr  error
	closed   bool

	inbox chan *Envelope
}

// NewTestTransport creates a fake transport with a buffered inbox.
func NewTestTransport() *TestTransport {
	return &TestTransport{
		handlers: make(map[string]func(q SentQuery) Object),
		inbox:    make(chan *Envelope, 256),
	}
}

// Send records the query and runs any matching auto-responder.
func (t *TestTransport) Send(queryID int64, req Request) error {
	t.mu.Lock()
	if t.sendErr != nil {
		err := t.sendErr
		t.mu.Unlock()
		return err
	}
	q := SentQuery{QueryID: queryID, Request: req}
	t.sent = append(t.sent, q)
	handler := t.handlers[req.TypeName()]
	t.mu.Unlock()

	if handler != nil {
		if obj := handler(q); obj != nil {
			t.inbox <- &Envelope{RequestID: queryID, Object: obj}
		}
	}
	return nil
}

// Receive returns the next queued envelope, or nil after timeout.
func (t *TestTransport) Receive(timeout time.Duration) *Envelope {
	select {
	case env := <-t.inbox:
		return env
	case <-time.After(timeout):
		return nil
	}
}

// Close marks the transport closed.
func (t *TestTransport) Close() error {
	t.mu.Lock()
	t.closed = true
	t.mu.Unlock()
	return nil
}

// Closed reports whether Close has been called.
func (t *TestTransport) Closed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.closed
}

// Sent returns a copy of all recorded queries.
func (t *TestTransport) Sent() []SentQuery {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]SentQuery, len(t.sent))
	copy(out, t.sent)
	return out
}

// Handle registers an auto-responder for requests of the given type.
// Returning nil from fn suppresses the response.
func (t *TestTransport) Handle(typeName string, fn func(q SentQuery) Object) {
	t.mu.Lock()
	t.handlers[typeName] = fn
	t.mu.Unlock()
}

// Reply queues a response envelope for a specific query.
func (t *TestTransport) Reply(queryID int64, obj Object) {
	t.inbox <- &Envelope{RequestID: queryID, Object: obj}
}

// PushUpdate queues a server-initiated update.
func (t *TestTransport) PushUpdate(obj Object) {
	t.inbox <- &Envelope{RequestID: 0, Object: obj}
}

// FailSends makes subsequent Send calls return err.
func (t *TestTransport) FailSends(err error) {
	t.mu.Lock()
	t.sendErr = err
	t.mu.Unlock()
}
