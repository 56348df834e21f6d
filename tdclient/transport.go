package tdclient

import "time"

// Envelope is one item received from the transport. RequestID is zero
// for server-initiated updates and echoes the query ID for responses.
type Envelope struct {
	RequestID int64
	Object    Object
}

// Transport is the raw bidirectional channel to the Telegram server.
// Implementations must allow Send and Receive to be called from
// different goroutines, and Receive must return nil when the timeout
// elapses with nothing pending.
type Transport interface {
	Send(queryID int64, req Request) error
	Receive(timeout time.Duration) *Envelope
	Close() error
}
