package websocket

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait = 10 * time.Second
	readWait  = 5 * time.Minute
)

// Conn serializes writes so the countdown goroutine and the read loop can
// both send events.
type Conn struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

// Wrap returns a Conn over an upgraded connection.
func Wrap(conn *websocket.Conn) *Conn {
	return &Conn{conn: conn}
}

// WriteTyped sends a strongly-typed payload.
func (c *Conn) WriteTyped(v interface{}) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteJSON(v)
}

// WriteError sends a typed ErrorEvent.
func (c *Conn) WriteError(code, errMsg string) error {
	return c.WriteTyped(ErrorEvent{
		Event: EventError,
		Code:  code,
		Error: errMsg,
	})
}

// ErrMalformed wraps a message that is not a valid Request. The connection
// stays usable.
var ErrMalformed = errors.New("malformed message")

// ReadRequest reads the next client message into req. It sets a read
// deadline.
func (c *Conn) ReadRequest(req *Request) error {
	_ = c.conn.SetReadDeadline(time.Now().Add(readWait))
	_, data, err := c.conn.ReadMessage()
	if err != nil {
		return err
	}
	*req = Request{}
	if err := json.Unmarshal(data, req); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return nil
}

// Close sends a normal close frame and closes the connection.
func (c *Conn) Close(reason string) error {
	c.mu.Lock()
	_ = c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, reason),
		time.Now().Add(writeWait))
	c.mu.Unlock()
	return c.conn.Close()
}
