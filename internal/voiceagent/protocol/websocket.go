package protocol

import (
	"errors"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

const writeWait = 5 * time.Second

var errChannelClosed = errors.New("audio channel closed")

// channel is one websocket connection. Writes are serialized; the read side
// is owned by Protocol.readLoop.
type channel struct {
	conn *websocket.Conn
	url  string

	writeMu   sync.Mutex
	closeOnce sync.Once
	closed    atomic.Bool

	// local is set when the device closed the channel itself
	local atomic.Bool
}

func newChannel(conn *websocket.Conn, url string) *channel {
	return &channel{conn: conn, url: url}
}

func (c *channel) write(messageType int, data []byte) error {
	if c.closed.Load() {
		return errChannelClosed
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := c.conn.WriteMessage(messageType, data); err != nil {
		if c.closed.Load() || errors.Is(err, net.ErrClosed) {
			return errChannelClosed
		}
		return &TransportError{Op: "send", URL: c.url, Err: err}
	}
	return nil
}

func (c *channel) read() (int, []byte, error) {
	return c.conn.ReadMessage()
}

func (c *channel) close() {
	c.local.Store(true)
	c.shutdown()
}

// shutdown sends a close frame once and drops the connection.
func (c *channel) shutdown() {
	c.closeOnce.Do(func() {
		c.closed.Store(true)
		c.writeMu.Lock()
		_ = c.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
		c.writeMu.Unlock()
		_ = c.conn.Close()
	})
}

func isNormalClose(err error) bool {
	return websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway)
}
