package wsrouter

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Conn serializes writes to a websocket so handlers and background
// notifiers can share one connection.
type Conn struct {
	*websocket.Conn
	mu sync.Mutex
}

func NewConn(conn *websocket.Conn) *Conn {
	return &Conn{Conn: conn}
}

func (c *Conn) WriteJSON(v any) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.Conn.WriteJSON(v)
}

func (c *Conn) WriteControl(messageType int, data []byte, deadline time.Time) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.Conn.WriteControl(messageType, data, deadline)
}
