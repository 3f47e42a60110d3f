package ws

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/tbourn/go-shop-chat/internal/chat"
)

// conn is the outbound half of one websocket. Events are queued on a bounded
// channel and written by a single pump goroutine; when the queue is full the
// event is dropped for this connection only.
type conn struct {
	ws   *websocket.Conn
	send chan chat.Event

	done      chan struct{}
	closeOnce sync.Once
}

func newConn(ws *websocket.Conn, buffer int) *conn {
	if buffer < 1 {
		buffer = 1
	}
	return &conn{
		ws:   ws,
		send: make(chan chat.Event, buffer),
		done: make(chan struct{}),
	}
}

// Send implements chat.Outbound. It never blocks.
func (c *conn) Send(ev chat.Event) bool {
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.send <- ev:
		return true
	default:
		return false
	}
}

// Close implements chat.Outbound. The pump sends a close frame and releases
// the socket; queued events that were not written yet are discarded.
func (c *conn) Close() error {
	c.closeOnce.Do(func() { close(c.done) })
	return nil
}

// writePump owns every data write on the socket. It returns, closing the
// socket, when the connection is closed, the gateway shuts down, or a write
// fails.
func (c *conn) writePump(ping, writeTimeout time.Duration, quit <-chan struct{}) {
	ticker := time.NewTicker(ping)
	defer func() {
		ticker.Stop()
		_ = c.ws.Close()
	}()

	for {
		select {
		case ev := <-c.send:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := c.ws.WriteJSON(ev); err != nil {
				log.Debug().Err(err).Str("event", ev.Name).Msg("ws write failed")
				return
			}
		case <-ticker.C:
			if err := c.ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeTimeout)); err != nil {
				return
			}
		case <-c.done:
			c.closeFrame(websocket.CloseNormalClosure, writeTimeout)
			return
		case <-quit:
			c.closeFrame(websocket.CloseGoingAway, writeTimeout)
			return
		}
	}
}

func (c *conn) closeFrame(code int, writeTimeout time.Duration) {
	_ = c.ws.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(code, ""), time.Now().Add(writeTimeout))
}
