package signaling

import (
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"github.com/openlobby/lobby-relay/internal/lobby"
	"github.com/openlobby/lobby-relay/internal/metrics"
	"github.com/openlobby/lobby-relay/internal/origin"
	"github.com/openlobby/lobby-relay/internal/protocol"
)

const wsWriteWait = 1 * time.Second

// Config wires the runtime dependencies for the WebSocket endpoint.
type Config struct {
	Hub     *lobby.Hub
	Metrics *metrics.Metrics
	Logger  *slog.Logger

	// AllowedOrigins is passed through to the origin check; empty means
	// same-host only.
	AllowedOrigins []string

	// IdleTimeout closes connections that neither send messages nor answer
	// keepalive pings. Zero picks a default.
	IdleTimeout time.Duration

	// MaxMessageBytes caps inbound frames; MessagesPerSecond caps inbound
	// message rate per connection. Zero picks defaults.
	MaxMessageBytes   int64
	MessagesPerSecond int
}

// Server implements GET /ws: one long-lived WebSocket per peer, all lobby
// traffic multiplexed over it as text frames.
type Server struct {
	hub     *lobby.Hub
	metrics *metrics.Metrics
	log     *slog.Logger

	allowedOrigins    []string
	idleTimeout       time.Duration
	maxMessageBytes   int64
	messagesPerSecond int

	upgrader websocket.Upgrader
}

func NewServer(cfg Config) *Server {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	m := cfg.Metrics
	if m == nil {
		m = metrics.New()
	}

	idle := cfg.IdleTimeout
	if idle <= 0 {
		idle = 60 * time.Second
	}
	maxBytes := cfg.MaxMessageBytes
	if maxBytes <= 0 {
		maxBytes = 64 * 1024
	}
	perSecond := cfg.MessagesPerSecond
	if perSecond <= 0 {
		perSecond = 50
	}

	s := &Server{
		hub:               cfg.Hub,
		metrics:           m,
		log:               logger,
		allowedOrigins:    cfg.AllowedOrigins,
		idleTimeout:       idle,
		maxMessageBytes:   maxBytes,
		messagesPerSecond: perSecond,
	}
	s.upgrader = websocket.Upgrader{CheckOrigin: s.checkOrigin}
	return s
}

func (s *Server) checkOrigin(r *http.Request) bool {
	originHeader := strings.TrimSpace(r.Header.Get("Origin"))
	if originHeader == "" {
		return true
	}

	normalizedOrigin, originHost, ok := origin.NormalizeHeader(originHeader)
	if !ok {
		return false
	}
	return origin.IsAllowed(normalizedOrigin, originHost, r.Host, s.allowedOrigins)
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}

	s.metrics.Inc(metrics.WSConnections)
	s.log.Info("ws_connected", "remote_addr", r.RemoteAddr)

	wc := &wsConn{conn: conn}
	defer func() {
		// Read errors, idle timeouts, and peer closes all end up here; the
		// hub decides whether anything cascades.
		s.hub.HandleDisconnect(wc)
		wc.Close()
		s.log.Info("ws_disconnected", "remote_addr", r.RemoteAddr)
	}()

	conn.SetReadLimit(s.maxMessageBytes)
	_ = conn.SetReadDeadline(time.Now().Add(s.idleTimeout))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(s.idleTimeout))
	})

	limiter := rate.NewLimiter(rate.Limit(s.messagesPerSecond), s.messagesPerSecond)

	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		_ = conn.SetReadDeadline(time.Now().Add(s.idleTimeout))

		if !limiter.Allow() {
			s.metrics.Inc(metrics.RateLimited)
			_ = wc.Send(protocol.Encode(protocol.NewError("Rate limit exceeded")))
			return
		}

		if msgType != websocket.TextMessage {
			s.metrics.Inc(metrics.DecodeFailures)
			_ = wc.Send(protocol.Encode(protocol.NewError("Invalid message: expected a text frame")))
			continue
		}

		s.hub.HandleMessage(wc, data)
	}
}

// wsConn adapts a gorilla connection to lobby.Conn. All writes, including
// control frames, go through writeMu; gorilla allows one concurrent writer
// only.
type wsConn struct {
	conn      *websocket.Conn
	writeMu   sync.Mutex
	closeOnce sync.Once
}

func (c *wsConn) Send(data []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

func (c *wsConn) Close() {
	c.closeOnce.Do(func() {
		c.writeMu.Lock()
		_ = c.conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(wsWriteWait))
		c.writeMu.Unlock()
		_ = c.conn.Close()
	})
}

func (c *wsConn) Ping() error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(wsWriteWait))
}
