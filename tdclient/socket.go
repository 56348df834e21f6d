package tdclient

import (
	"bufio"
	"encoding/json"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ammarfaizi2/green-tea-bot/errors"
)

// wireFrame is one newline-delimited JSON frame on the bridge socket.
// A zero RequestID marks an update, anything else a query response.
type wireFrame struct {
	RequestID int64           `json:"request_id,omitempty"`
	Type      string          `json:"type"`
	Payload   json.RawMessage `json:"payload,omitempty"`
}

// wireFactories maps wire type names to constructors for the objects
// the client can receive.
var wireFactories = map[string]func() Object{
	"error":                    func() Object { return &Error{} },
	"ok":                       func() Object { return &Ok{} },
	"chat":                     func() Object { return &Chat{} },
	"user":                     func() Object { return &User{} },
	"message":                  func() Object { return &Message{} },
	"chats":                    func() Object { return &Chats{} },
	"messages":                 func() Object { return &Messages{} },
	"updateAuthorizationState": func() Object { return &UpdateAuthorizationState{} },
	"updateNewChat":            func() Object { return &UpdateNewChat{} },
	"updateChatTitle":          func() Object { return &UpdateChatTitle{} },
	"updateUser":               func() Object { return &UpdateUser{} },
	"updateNewMessage":         func() Object { return &UpdateNewMessage{} },
}

// SocketTransport speaks the bridge protocol over a Unix domain
// socket: one JSON frame per line, requests tagged with the query ID
// and answered with a frame carrying the same ID.
type SocketTransport struct {
	conn   net.Conn
	reader *bufio.Reader

	writeMu sync.Mutex
	closed  atomic.Bool
}

// DialSocket connects to the bridge socket at path.
func DialSocket(path string, timeout time.Duration) (*SocketTransport, error) {
	conn, err := net.DialTimeout("unix", path, timeout)
	if err != nil {
		return nil, errors.WrapTransient(errors.ErrNotConnected, "SocketTransport", "DialSocket",
			"dial "+path+": "+err.Error())
	}
	return &SocketTransport{
		conn:   conn,
		reader: bufio.NewReader(conn),
	}, nil
}

// Send writes one request frame.
func (t *SocketTransport) Send(queryID int64, req Request) error {
	if t.closed.Load() {
		return errors.Wrap(errors.ErrNotConnected, "SocketTransport", "Send", "transport closed")
	}
	payload, err := json.Marshal(req)
	if err != nil {
		return errors.WrapInvalid(err, "SocketTransport", "Send", "encode "+req.TypeName())
	}
	frame, err := json.Marshal(&wireFrame{
		RequestID: queryID,
		Type:      req.TypeName(),
		Payload:   payload,
	})
	if err != nil {
		return errors.WrapInvalid(err, "SocketTransport", "Send", "encode frame")
	}
	frame = append(frame, '\n')

	t.writeMu.Lock()
	defer t.writeMu.Unlock()
	if _, err := t.conn.Write(frame); err != nil {
		return errors.WrapTransient(err, "SocketTransport", "Send", "write frame")
	}
	return nil
}

// Receive reads the next decodable frame, waiting at most timeout.
// It returns nil when the deadline passes, the connection drops or no
// known frame arrives in time.
func (t *SocketTransport) Receive(timeout time.Duration) *Envelope {
	if t.closed.Load() {
		return nil
	}
	deadline := time.Now().Add(timeout)
	_ = t.conn.SetReadDeadline(deadline)

	for time.Now().Before(deadline) {
		line, err := t.reader.ReadBytes('\n')
		if err != nil {
			return nil
		}
		var frame wireFrame
		if err := json.Unmarshal(line, &frame); err != nil {
			continue
		}
		factory, ok := wireFactories[frame.Type]
		if !ok {
			continue
		}
		obj := factory()
		if len(frame.Payload) > 0 {
			if err := json.Unmarshal(frame.Payload, obj); err != nil {
				continue
			}
		}
		return &Envelope{RequestID: frame.RequestID, Object: obj}
	}
	return nil
}

// Close shuts the socket down. Safe to call more than once.
func (t *SocketTransport) Close() error {
	if !t.closed.CompareAndSwap(false, true) {
		return nil
	}
	return t.conn.Close()
}
