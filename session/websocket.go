package session

import (
	"context"
	"errors"
	"net"
	"sync"

	"github.com/coder/websocket"
)

var _ Conn = (*WebSocketConn)(nil)

// WebSocketConn adapts a [websocket.Conn] to [Conn].
//
// Pings are answered by the websocket library itself, so Read never
// returns [KindPing] events and writing a pong is a no-op.
// A close frame from the peer is returned as a [KindClose] event.
type WebSocketConn struct {
	conn *websocket.Conn

	closeOnce sync.Once
	closeErr  error
}

func NewWebSocketConn(conn *websocket.Conn) *WebSocketConn {
	return &WebSocketConn{
		conn: conn,
	}
}

func (c *WebSocketConn) Read(ctx context.Context) (Inbound, error) {
	typ, data, err := c.conn.Read(ctx)
	if err != nil {
		var closeErr websocket.CloseError
		if errors.As(err, &closeErr) {
			return Inbound{
				Kind:        KindClose,
				CloseCode:   uint16(closeErr.Code),
				CloseReason: closeErr.Reason,
			}, nil
		}

		return Inbound{}, err
	}

	kind := KindText
	if typ == websocket.MessageBinary {
		kind = KindBinary
	}

	return Inbound{Kind: kind, Data: data}, nil
}

func (c *WebSocketConn) Write(ctx context.Context, msg Outbound) error {
	switch msg.Kind {
	case KindText:
		return c.conn.Write(ctx, websocket.MessageText, msg.Data)
	case KindBinary:
		return c.conn.Write(ctx, websocket.MessageBinary, msg.Data)
	case KindPong:
		return nil
	case KindClose:
		return c.Close(msg.CloseCode, msg.CloseReason)
	}

	return nil
}

// Close performs the closing handshake. Only the first call has effect.
func (c *WebSocketConn) Close(code uint16, reason string) error {
	c.closeOnce.Do(func() {
		err := c.conn.Close(websocket.StatusCode(code), reason)

		// The peer initiated the handshake, the library has already replied
		if err != nil && websocket.CloseStatus(err) == -1 && !errors.Is(err, net.ErrClosed) {
			c.closeErr = err
		}
	})

	return c.closeErr
}
