package websocket

import (
	"context"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait = 10 * time.Second

	// PongWait is how long a connection may stay silent, pongs included.
	PongWait = 60 * time.Second
	// PingPeriod must stay below PongWait.
	PingPeriod = (PongWait * 9) / 10
)

// Conn serializes writes to a gorilla connection. The countdown goroutine,
// the keepalive pinger and the read loop all write; gorilla allows one
// concurrent writer.
type Conn struct {
	ws       *websocket.Conn
	mu       sync.Mutex
	pongWait time.Duration
}

// NewConn wraps ws. A pong from the peer extends the read deadline by pongWait;
// zero means PongWait.
func NewConn(ws *websocket.Conn, pongWait time.Duration) *Conn {
	if pongWait <= 0 {
		pongWait = PongWait
	}
	c := &Conn{ws: ws, pongWait: pongWait}
	c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(c.pongWait))
	})
	return c
}

// WriteTyped sends a strongly-typed response payload over the WebSocket.
func (c *Conn) WriteTyped(v interface{}) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ws.SetWriteDeadline(time.Now().Add(writeWait))
	return c.ws.WriteJSON(v)
}

// WriteError sends a typed ErrorResponse over the WebSocket.
func (c *Conn) WriteError(errMsg string) error {
	return c.WriteTyped(ErrorResponse{Event: EventError, Error: errMsg})
}

// WriteFieldErrors sends an ErrorResponse with field-level validation details.
func (c *Conn) WriteFieldErrors(errMsg string, fields map[string]string) error {
	return c.WriteTyped(ErrorResponse{Event: EventError, Error: errMsg, Fields: fields})
}

// ReadMessage reads one raw frame. Only one goroutine may read; pongs are
// consumed here and never returned.
func (c *Conn) ReadMessage() ([]byte, error) {
	_, data, err := c.ws.ReadMessage()
	if err == nil {
		c.ws.SetReadDeadline(time.Now().Add(c.pongWait))
	}
	return data, err
}

// KeepAlive pings the peer every period until ctx is done or a ping fails.
// A student who only watches the countdown sends nothing, so the pongs are
// what keep the read deadline moving.
func (c *Conn) KeepAlive(ctx context.Context, period time.Duration) {
	if period <= 0 {
		period = PingPeriod
	}
	ticker := time.NewTicker(period)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.mu.Lock()
			err := c.ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait))
			c.mu.Unlock()
			if err != nil {
				return
			}
		}
	}
}

// Close sends a close frame and closes the underlying connection.
func (c *Conn) Close() error {
	c.mu.Lock()
	_ = c.ws.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	c.mu.Unlock()
	return c.ws.Close()
}
