package signaling

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/wilsonzlin/aero/proxy/webrtc-signaling/internal/metrics"
	"github.com/wilsonzlin/aero/proxy/webrtc-signaling/internal/origin"
	"github.com/wilsonzlin/aero/proxy/webrtc-signaling/internal/ratelimit"
	"github.com/wilsonzlin/aero/proxy/webrtc-signaling/internal/relay"
)

const (
	defaultAuthTimeout          = 2 * time.Second
	defaultIdleTimeout          = 60 * time.Second
	defaultPingInterval         = 20 * time.Second
	defaultMaxMessageBytes      = 64 * 1024
	defaultMaxMessagesPerSecond = 50
	defaultSendQueueBytes       = 1 << 20
)

// Config wires together the runtime dependencies for the signaling service.
type Config struct {
	Relay  *relay.Relay
	Logger *slog.Logger

	// Authorizer defaults to AllowAllAuthorizer.
	Authorizer Authorizer

	// AllowedOrigins follows origin.IsAllowed: empty means same host only.
	AllowedOrigins []string

	AuthTimeout  time.Duration
	IdleTimeout  time.Duration
	PingInterval time.Duration

	MaxMessageBytes      int64
	MaxMessagesPerSecond int
	SendQueueBytes       int

	// ConnectLimiter, if set, is keyed by client IP and checked before the
	// upgrade.
	ConnectLimiter *ratelimit.KeyedLimiter

	// NewID overrides connection id generation. Defaults to uuid.NewString.
	NewID func() string
}

func (c Config) withDefaults() Config {
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	if c.Authorizer == nil {
		c.Authorizer = AllowAllAuthorizer{}
	}
	if c.AuthTimeout <= 0 {
		c.AuthTimeout = defaultAuthTimeout
	}
	if c.IdleTimeout <= 0 {
		c.IdleTimeout = defaultIdleTimeout
	}
	if c.PingInterval <= 0 || c.PingInterval >= c.IdleTimeout {
		c.PingInterval = c.IdleTimeout / 3
		if c.PingInterval > defaultPingInterval {
			c.PingInterval = defaultPingInterval
		}
	}
	if c.MaxMessageBytes <= 0 {
		c.MaxMessageBytes = defaultMaxMessageBytes
	}
	if c.MaxMessagesPerSecond <= 0 {
		c.MaxMessagesPerSecond = defaultMaxMessagesPerSecond
	}
	if c.SendQueueBytes <= 0 {
		c.SendQueueBytes = defaultSendQueueBytes
	}
	if c.NewID == nil {
		c.NewID = uuid.NewString
	}
	return c
}

// Server accepts signaling WebSockets on GET /ws.
type Server struct {
	cfg      Config
	relay    *relay.Relay
	log      *slog.Logger
	metrics  *metrics.Metrics
	origins  origin.Policy
	upgrader websocket.Upgrader

	mu     sync.Mutex
	conns  map[*wsConn]struct{}
	closed bool
	wg     sync.WaitGroup
}

func NewServer(cfg Config) *Server {
	cfg = cfg.withDefaults()
	r := cfg.Relay
	if r == nil {
		r = relay.New(relay.DefaultConfig(), cfg.Logger, nil)
	}
	s := &Server{
		cfg:     cfg,
		relay:   r,
		log:     cfg.Logger,
		metrics: r.Metrics(),
		origins: origin.Policy{AllowedOrigins: cfg.AllowedOrigins},
		conns:   make(map[*wsConn]struct{}),
	}
	s.upgrader = websocket.Upgrader{
		CheckOrigin: s.checkOrigin,
	}
	return s
}

func (s *Server) Relay() *relay.Relay { return s.relay }

func (s *Server) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /ws", s.handleWebSocket)
}

func (s *Server) checkOrigin(r *http.Request) bool {
	if _, ok := s.origins.Check(r); ok {
		return true
	}
	s.metrics.Inc(metrics.OriginRejected)
	return false
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	if s.cfg.ConnectLimiter != nil && !s.cfg.ConnectLimiter.Allow(clientIP(r)) {
		s.metrics.Inc(metrics.DropRateLimited)
		http.Error(w, "too many connections", http.StatusTooManyRequests)
		return
	}

	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written the HTTP error response.
		s.log.Debug("websocket upgrade failed", "err", err, "remote_addr", r.RemoteAddr)
		return
	}

	c := newWSConn(s.cfg.NewID(), ws, s.log, s.cfg.SendQueueBytes)
	if !s.track(c) {
		c.abort(websocket.CloseGoingAway, "server shutting down")
		c.writeLoop()
		return
	}
	defer s.untrack(c)
	go c.writeLoop()

	sess := &wsSession{
		srv:     s,
		conn:    c,
		req:     r,
		limiter: ratelimit.NewTokenBucket(ratelimit.RealClock{}, int64(s.cfg.MaxMessagesPerSecond), int64(s.cfg.MaxMessagesPerSecond)),
	}
	sess.run()
}

func (s *Server) track(c *wsConn) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	s.conns[c] = struct{}{}
	s.wg.Add(1)
	return true
}

func (s *Server) untrack(c *wsConn) {
	s.mu.Lock()
	delete(s.conns, c)
	s.mu.Unlock()
	s.wg.Done()
}

// Shutdown closes every open socket with 1001 (going away) after flushing its
// queue, then waits for the handlers to return or ctx to end. Hijacked
// connections are not covered by http.Server.Shutdown, so callers run both.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	s.closed = true
	conns := make([]*wsConn, 0, len(s.conns))
	for c := range s.conns {
		conns = append(conns, c)
	}
	s.mu.Unlock()

	for _, c := range conns {
		c.shutdown(websocket.CloseGoingAway, "server shutting down")
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

type wsSession struct {
	srv     *Server
	conn    *wsConn
	req     *http.Request
	limiter *ratelimit.TokenBucket

	registered bool
	stopPing   chan struct{}
}

func (wss *wsSession) run() {
	defer wss.finish()

	ws := wss.conn.ws
	cfg := wss.srv.cfg
	ws.SetReadLimit(cfg.MaxMessageBytes)

	authorized := false
	if err := cfg.Authorizer.Authorize(wss.req, nil); err != nil {
		if !isAuthMissing(err) {
			wss.srv.metrics.Inc(metrics.AuthFailures)
			wss.conn.fail(ErrCodeUnauthorized, unauthorizedMessage(err), websocket.ClosePolicyViolation, "unauthorized")
			return
		}
		_ = ws.SetReadDeadline(time.Now().Add(cfg.AuthTimeout))
	} else {
		authorized = true
		if !wss.activate() {
			return
		}
	}

	for {
		msgType, data, err := ws.ReadMessage()
		if err != nil {
			wss.readFailed(err, authorized)
			return
		}
		if authorized {
			_ = ws.SetReadDeadline(time.Now().Add(cfg.IdleTimeout))
		}

		// Rate limiting happens after the read so bytes already in the socket
		// buffer are consumed; closing with unread data can turn into a RST and
		// hide the close frame from the client.
		if !wss.limiter.Allow(1) {
			wss.srv.metrics.Inc(metrics.DropRateLimited)
			wss.conn.fail(ErrCodeRateLimited, "rate limit exceeded", websocket.ClosePolicyViolation, "rate limit exceeded")
			return
		}
		if msgType != websocket.TextMessage {
			wss.srv.metrics.Inc(metrics.DropBadMessage)
			wss.conn.fail(ErrCodeBadMessage, "expected text message", websocket.CloseUnsupportedData, "expected text message")
			return
		}

		msg, err := ParseClientMessage(data)
		if !authorized {
			cred, ok := authCredential(msg, err)
			if !ok {
				wss.srv.metrics.Inc(metrics.AuthFailures)
				wss.conn.fail(ErrCodeUnauthorized, "authentication required", websocket.ClosePolicyViolation, "authentication required")
				return
			}
			if err := cfg.Authorizer.Authorize(wss.req, &cred); err != nil {
				wss.srv.metrics.Inc(metrics.AuthFailures)
				wss.conn.fail(ErrCodeUnauthorized, unauthorizedMessage(err), websocket.ClosePolicyViolation, "unauthorized")
				return
			}
			authorized = true
			_ = ws.SetReadDeadline(time.Now().Add(cfg.IdleTimeout))
			if !wss.activate() {
				return
			}
			continue
		}
		if err != nil {
			wss.srv.metrics.Inc(metrics.DropBadMessage)
			wss.conn.log.Debug("bad signaling message", "err", err)
			wss.conn.send(errorMessage(ErrCodeBadMessage, err.Error()))
			continue
		}

		wss.handle(msg)
	}
}

func authCredential(msg ClientMessage, parseErr error) (string, bool) {
	if parseErr != nil || msg.Event != EventAuth {
		return "", false
	}
	if msg.APIKey != "" {
		return msg.APIKey, true
	}
	return msg.Token, true
}

// activate registers the connection with the relay and starts keepalives.
func (wss *wsSession) activate() bool {
	if err := wss.srv.relay.Register(wss.conn); err != nil {
		wss.conn.log.Error("register connection", "err", err)
		wss.conn.fail(ErrCodeInternal, "could not register connection", websocket.CloseInternalServerErr, "internal error")
		return false
	}
	wss.registered = true

	ws := wss.conn.ws
	idle := wss.srv.cfg.IdleTimeout
	_ = ws.SetReadDeadline(time.Now().Add(idle))
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(idle))
	})
	wss.stopPing = make(chan struct{})
	go wss.conn.pingLoop(wss.srv.cfg.PingInterval, wss.stopPing)

	wss.conn.log.Debug("signaling connection registered", "remote_addr", wss.req.RemoteAddr)
	return true
}

func (wss *wsSession) handle(msg ClientMessage) {
	r := wss.srv.relay
	switch msg.Event {
	case EventAuth:
		// Tolerated after the handshake, e.g. when the key was also sent in the
		// query string.
	case EventJoinRoom:
		err := r.Join(wss.conn, *msg.RoomID)
		switch {
		case err == nil:
		case errors.Is(err, relay.ErrRoomFull):
			wss.conn.send(errorMessage(ErrCodeRoomFull, "room is full"))
		default:
			wss.conn.log.Warn("join room", "room_id", *msg.RoomID, "err", err)
			wss.conn.send(errorMessage(ErrCodeInternal, "could not join room"))
		}
	case EventOffer, EventAnswer, EventICECandidate:
		if _, err := r.Forward(relay.Kind(msg.Event), wss.conn, *msg.RoomID, msg.Payload); err != nil {
			wss.conn.log.Warn("forward", "event", string(msg.Event), "err", err)
		}
	}
}

func (wss *wsSession) readFailed(err error, authorized bool) {
	switch {
	case errors.Is(err, websocket.ErrReadLimit):
		wss.srv.metrics.Inc(metrics.DropFrameTooLarge)
		wss.conn.shutdown(websocket.CloseMessageTooBig, "message too large")
	case !authorized && isTimeout(err):
		wss.srv.metrics.Inc(metrics.AuthFailures)
		wss.conn.shutdown(websocket.ClosePolicyViolation, "authentication timeout")
	case isTimeout(err):
		wss.conn.log.Debug("signaling connection idle", "err", err)
	case websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived):
		wss.conn.log.Debug("signaling connection closed unexpectedly", "err", err)
	}
}

func (wss *wsSession) finish() {
	if wss.stopPing != nil {
		close(wss.stopPing)
	}
	if wss.registered {
		wss.srv.relay.Disconnect(wss.conn)
	}
	wss.conn.shutdown(websocket.CloseNormalClosure, "")
	<-wss.conn.done
}

func isTimeout(err error) bool {
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

// clientIP is the remote address without port. Forwarded headers are not
// trusted here; deployments behind a proxy should limit at the proxy.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
