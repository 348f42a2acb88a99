package signaling

import (
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/wilsonzlin/aero/proxy/webrtc-signaling/internal/relay"
)

const wsWriteWait = 1 * time.Second

// closeSlowConsumer is sent when a client cannot keep up with its outbound
// queue.
const closeSlowConsumer = websocket.CloseTryAgainLater

// wsConn is the relay.Conn for one WebSocket.
//
// All data frames go through queue and are written by writeLoop. Control
// frames (ping, close) use WriteControl, which gorilla allows concurrently
// with the writer.
type wsConn struct {
	id  string
	ws  *websocket.Conn
	log *slog.Logger

	queue *sendQueue

	closeOnce   sync.Once
	closeCode   int
	closeReason string

	// done is closed when writeLoop has sent the close frame and closed ws.
	done chan struct{}
}

func newWSConn(id string, ws *websocket.Conn, logger *slog.Logger, queueBytes int) *wsConn {
	return &wsConn{
		id:    id,
		ws:    ws,
		log:   logger.With("conn_id", id),
		queue: newSendQueue(queueBytes),
		done:  make(chan struct{}),
	}
}

func (c *wsConn) ID() string { return c.id }

// Deliver implements relay.Conn.
func (c *wsConn) Deliver(ev relay.Event) bool {
	return c.send(serverMessageFromEvent(ev))
}

func (c *wsConn) send(msg ServerMessage) bool {
	data, err := encodeServerMessage(msg)
	if err != nil {
		c.log.Error("encode outbound message", "event", string(msg.Event), "err", err)
		return false
	}
	switch err := c.queue.Enqueue(data); {
	case err == nil:
		return true
	case errors.Is(err, errQueueFull):
		c.log.Warn("outbound queue full; closing slow consumer", "event", string(msg.Event), "queued_bytes", c.queue.Len())
		c.abort(closeSlowConsumer, "slow consumer")
	}
	return false
}

// shutdown flushes what is queued and then closes with code.
func (c *wsConn) shutdown(code int, reason string) {
	c.closeOnce.Do(func() {
		c.closeCode, c.closeReason = code, reason
		c.queue.Drain()
	})
}

// abort closes with code without flushing the queue.
func (c *wsConn) abort(code int, reason string) {
	c.closeOnce.Do(func() {
		c.closeCode, c.closeReason = code, reason
		c.queue.Close()
	})
}

// fail sends an error event to the client and then closes the socket.
func (c *wsConn) fail(code, message string, closeCode int, closeReason string) {
	c.send(errorMessage(code, message))
	c.shutdown(closeCode, closeReason)
}

func (c *wsConn) writeLoop() {
	defer close(c.done)
	defer c.ws.Close()

	for {
		frame, ok := c.queue.Dequeue()
		if !ok {
			break
		}
		_ = c.ws.SetWriteDeadline(time.Now().Add(wsWriteWait))
		if err := c.ws.WriteMessage(websocket.TextMessage, frame); err != nil {
			c.log.Debug("websocket write failed", "err", err)
			c.abort(websocket.CloseAbnormalClosure, "")
			return
		}
	}

	// closeCode is written inside closeOnce before the queue is stopped, and
	// Dequeue only returns false after that, so the read is ordered by q.mu.
	code, reason := c.closeCode, c.closeReason
	if code == 0 {
		code = websocket.CloseNormalClosure
	}
	_ = c.ws.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, reason), time.Now().Add(wsWriteWait))
}

// pingLoop sends pings until stop or done is closed or a ping fails.
func (c *wsConn) pingLoop(interval time.Duration, stop <-chan struct{}) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-c.done:
			return
		case <-ticker.C:
			if err := c.ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(wsWriteWait)); err != nil {
				return
			}
		}
	}
}
