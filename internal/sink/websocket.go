package sink

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/invergent-ai/surogate-studio-sub002/internal/reconcile"
	xstrings "github.com/invergent-ai/surogate-studio-sub002/pkg/strings"
)

const (
	defaultWriteTimeout = 10 * time.Second

	// close reasons must fit a control frame together with the status code
	maxCloseReason = 120
)

// WebSocket writes events as JSON text frames to one connection.
type WebSocket struct {
	conn         *websocket.Conn
	writeTimeout time.Duration

	mu     sync.Mutex
	closed bool
}

var _ reconcile.Sink = (*WebSocket)(nil)

// NewWebSocket wraps an upgraded connection. The sink owns the connection and
// closes it on completion.
func NewWebSocket(conn *websocket.Conn) *WebSocket {
	return &WebSocket{conn: conn, writeTimeout: defaultWriteTimeout}
}

func (w *WebSocket) Send(_ context.Context, event reconcile.Event) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return reconcile.ErrStreamClosed
	}
	if err := w.write(event); err != nil {
		w.closeLocked()
		return fmt.Errorf("websocket send: %w", err)
	}
	return nil
}

func (w *WebSocket) Complete() { w.CompleteWithError(nil) }

func (w *WebSocket) CompleteWithError(err error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return
	}
	_ = w.write(completionFrame(err))

	code, reason := websocket.CloseNormalClosure, ""
	if err != nil {
		code, reason = websocket.CloseInternalServerErr, xstrings.TruncateBytes(err.Error(), maxCloseReason)
	}
	_ = w.conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, reason),
		time.Now().Add(w.writeTimeout))
	w.closeLocked()
}

// Close drops the connection without a completion frame.
func (w *WebSocket) Close() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.closeLocked()
}

func (w *WebSocket) write(v any) error {
	if err := w.conn.SetWriteDeadline(time.Now().Add(w.writeTimeout)); err != nil {
		return err
	}
	return w.conn.WriteJSON(v)
}

func (w *WebSocket) closeLocked() {
	if w.closed {
		return
	}
	w.closed = true
	_ = w.conn.Close()
}

// IsClientGone reports whether err means the peer went away.
func IsClientGone(err error) bool {
	return errors.Is(err, reconcile.ErrStreamClosed) ||
		websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived)
}
