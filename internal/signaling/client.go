package signaling

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const clientWriteWait = 10 * time.Second

// DialOptions configures Dial.
type DialOptions struct {
	// APIKey is sent as an `auth` frame right after connecting.
	APIKey string
	// Header is sent with the upgrade request (for example Origin).
	Header http.Header
	// Dialer defaults to websocket.DefaultDialer.
	Dialer *websocket.Dialer
	// MaxMessageBytes bounds inbound frames. Defaults to 64KiB.
	MaxMessageBytes int64
}

// Client is a signaling connection from the endpoint side.
type Client struct {
	conn     *websocket.Conn
	incoming chan ServerMessage

	writeMu sync.Mutex

	closeOnce sync.Once
	done      chan struct{}

	errMu sync.Mutex
	err   error
}

// Dial connects to a relay at url (ws:// or wss://, including the /ws path).
func Dial(ctx context.Context, url string, opts DialOptions) (*Client, error) {
	dialer := opts.Dialer
	if dialer == nil {
		dialer = websocket.DefaultDialer
	}
	conn, resp, err := dialer.DialContext(ctx, url, opts.Header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("connect %s: %w (status %d)", url, err, resp.StatusCode)
		}
		return nil, fmt.Errorf("connect %s: %w", url, err)
	}

	maxBytes := opts.MaxMessageBytes
	if maxBytes <= 0 {
		maxBytes = defaultMaxMessageBytes
	}
	conn.SetReadLimit(maxBytes)

	c := &Client{
		conn:     conn,
		incoming: make(chan ServerMessage, 16),
		done:     make(chan struct{}),
	}
	if opts.APIKey != "" {
		if err := c.Send(ClientMessage{Event: EventAuth, APIKey: opts.APIKey}); err != nil {
			_ = conn.Close()
			return nil, fmt.Errorf("send auth: %w", err)
		}
	}
	go c.readPump()
	return c, nil
}

func (c *Client) readPump() {
	defer close(c.incoming)
	defer c.conn.Close()

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			c.setErr(err)
			return
		}
		msg, err := ParseServerMessage(data)
		if err != nil {
			continue
		}
		select {
		case c.incoming <- msg:
		case <-c.done:
			return
		}
	}
}

// Events returns relay frames in arrival order. It is closed when the
// connection ends; Err then reports why.
func (c *Client) Events() <-chan ServerMessage {
	return c.incoming
}

// Err returns the error that ended the read loop, if any.
func (c *Client) Err() error {
	c.errMu.Lock()
	defer c.errMu.Unlock()
	return c.err
}

func (c *Client) setErr(err error) {
	c.errMu.Lock()
	if c.err == nil {
		c.err = err
	}
	c.errMu.Unlock()
}

// Send writes one frame.
func (c *Client) Send(msg ClientMessage) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(clientWriteWait))
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

// JoinRoom sends a join-room request.
func (c *Client) JoinRoom(roomID string) error {
	return c.Send(ClientMessage{Event: EventJoinRoom, RoomID: &roomID})
}

// Forward sends an offer, answer or ice-candidate with payload encoded as
// JSON.
func (c *Client) Forward(event EventName, roomID string, payload any) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode %s payload: %w", event, err)
	}
	return c.Send(ClientMessage{Event: event, RoomID: &roomID, Payload: raw})
}

// Close sends a normal close frame and tears the socket down.
func (c *Client) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.done)
		_ = c.conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(wsWriteWait))
		err = c.conn.Close()
	})
	return err
}
