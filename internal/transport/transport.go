// Package transport implements the inspector transport (spec.md §4.2): a
// framed request/response/event channel over a single WebSocket connection
// to the managed-runtime's CDP-shaped inspector.
//
// Grounded on the request-correlation pattern (monotonic ID, pending
// response channel map) in the teacher's internal/mcp/client.go
// (MCPClientConnection.Request/readLoop), and on the read/write pump split
// in the teacher's former internal/websocket/client.go.
package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/apex-build/cdp-debugger/internal/cdpwire"
	"github.com/apex-build/cdp-debugger/internal/dbgerr"
)

// DefaultCommandTimeout is the default per-request deadline (spec.md §4.2).
const DefaultCommandTimeout = 5 * time.Second

// disconnectGrace bounds how long Disconnect waits for in-flight event
// handlers to finish before returning anyway (spec.md §4.2).
const disconnectGrace = 2 * time.Second

// EventHandler receives the raw params of an unsolicited inspector event.
type EventHandler func(params json.RawMessage)

// Transport owns one WebSocket connection to the inspector. It is
// single-writer (Send) and single-reader (the internal read pump), per
// spec.md §5 "Shared-resource policy".
type Transport struct {
	conn *websocket.Conn
	log  *zap.Logger

	nextID int64

	mu       sync.Mutex
	pending  map[int64]chan cdpwire.Message
	handlers map[string][]EventHandler
	closed   bool
	closeErr error

	done chan struct{}
}

// Connect dials the inspector's WebSocket URL and starts the read pump.
func Connect(ctx context.Context, wsURL string, log *zap.Logger) (*Transport, error) {
	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, _, err := dialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		return nil, dbgerr.Wrap(dbgerr.SpawnFailed, err, "failed to connect to inspector at %s", wsURL)
	}

	t := &Transport{
		conn:     conn,
		log:      log,
		pending:  make(map[int64]chan cdpwire.Message),
		handlers: make(map[string][]EventHandler),
		done:     make(chan struct{}),
	}
	go t.readPump()
	return t, nil
}

// Send issues a CDP request and blocks until the correlated response
// arrives or the context deadline expires. Exceeding the deadline fails
// with CommandTimeout but does not tear down the transport (spec.md §4.2).
func (t *Transport) Send(ctx context.Context, method string, params any) (json.RawMessage, error) {
	id := atomic.AddInt64(&t.nextID, 1)

	var raw json.RawMessage
	if params != nil {
		b, err := json.Marshal(params)
		if err != nil {
			return nil, dbgerr.Wrap(dbgerr.InvalidArgument, err, "failed to marshal params for %s", method)
		}
		raw = b
	}

	respCh := make(chan cdpwire.Message, 1)
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil, dbgerr.New(dbgerr.TransportClosed, "transport closed before sending %s", method)
	}
	t.pending[id] = respCh
	t.mu.Unlock()

	defer func() {
		t.mu.Lock()
		delete(t.pending, id)
		t.mu.Unlock()
	}()

	msg := cdpwire.Message{ID: id, Method: method, Params: raw}
	if err := t.writeJSON(msg); err != nil {
		return nil, dbgerr.Wrap(dbgerr.TransportClosed, err, "failed to write %s", method)
	}

	select {
	case <-ctx.Done():
		return nil, dbgerr.New(dbgerr.CommandTimeout, "command %s timed out", method)
	case resp := <-respCh:
		if resp.Error != nil {
			return nil, dbgerr.New(dbgerr.Internal, "inspector error for %s: %s", method, resp.Error.Message).
				WithData(map[string]any{"code": resp.Error.Code})
		}
		return resp.Result, nil
	case <-t.done:
		return nil, dbgerr.New(dbgerr.TransportClosed, "transport closed while waiting for %s", method)
	}
}

// OnEvent registers a handler for an unsolicited inspector event. Multiple
// handlers for the same method are invoked in registration order, in the
// order their events arrived (spec.md §4.2).
func (t *Transport) OnEvent(method string, handler EventHandler) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.handlers[method] = append(t.handlers[method], handler)
}

// Disconnect closes the transport. Idempotent; waits up to a fixed grace
// period for the read pump to finish delivering in-flight events.
func (t *Transport) Disconnect() error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.closed = true
	t.mu.Unlock()

	err := t.conn.Close()

	select {
	case <-t.done:
	case <-time.After(disconnectGrace):
	}
	return err
}

// writeJSON serializes and writes one message; Send is the sole caller
// context, making the transport single-writer as required.
func (t *Transport) writeJSON(msg cdpwire.Message) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return fmt.Errorf("transport closed")
	}
	return t.conn.WriteJSON(msg)
}

// readPump is the sole reader of the connection. It processes each inbound
// message to completion — dispatching events synchronously — before
// reading the next one, which is what gives callers the ordering guarantee
// in spec.md §5: a response is only delivered after every earlier event up
// to it has been applied.
func (t *Transport) readPump() {
	defer func() {
		t.mu.Lock()
		t.closed = true
		pending := t.pending
		t.pending = make(map[int64]chan cdpwire.Message)
		t.mu.Unlock()

		closeErr := cdpwire.Message{Error: &cdpwire.Error{Message: "transport closed"}}
		for _, ch := range pending {
			ch <- closeErr
		}
		close(t.done)
	}()

	for {
		var msg cdpwire.Message
		if err := t.conn.ReadJSON(&msg); err != nil {
			if t.log != nil {
				t.log.Debug("inspector transport read loop ending", zap.Error(err))
			}
			return
		}

		if msg.ID != 0 {
			t.mu.Lock()
			ch, ok := t.pending[msg.ID]
			t.mu.Unlock()
			if ok {
				ch <- msg
			}
			continue
		}

		t.mu.Lock()
		hs := append([]EventHandler(nil), t.handlers[msg.Method]...)
		t.mu.Unlock()
		for _, h := range hs {
			h(msg.Params)
		}
	}
}
