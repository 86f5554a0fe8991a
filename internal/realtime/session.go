package realtime

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/xid"
	"golang.org/x/time/rate"

	"github.com/sakif/pixelboard/internal/auth"
	"github.com/sakif/pixelboard/internal/broadcast"
	"github.com/sakif/pixelboard/internal/metrics"
	"github.com/sakif/pixelboard/internal/protocol"
	"github.com/sakif/pixelboard/internal/service"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 16 << 10
)

// Options configures the websocket handler.
type Options struct {
	// AdminID is the subject id allowed through the admin gate. Empty
	// disables admin messages entirely.
	AdminID string
	// MessagesPerSecond and Burst bound how fast one socket may send.
	// Frames over the limit are dropped.
	MessagesPerSecond float64
	Burst             int
	// CheckOrigin overrides the same-origin check on upgrade.
	CheckOrigin func(r *http.Request) bool
}

// Handler upgrades /ws requests and runs one session per socket.
//
// SESSION LIFECYCLE:
//
//	upgrade → register with hub → welcome frames → read loop ┐
//	                                 writer goroutine ───────┤
//	                        unregister ← either side fails ←─┘
//
// The read loop handles one frame at a time, so a socket's messages are
// processed in order. Different sockets run concurrently.
type Handler struct {
	hub      *broadcast.Hub
	router   *Router
	observer *service.ObserverService
	metrics  *metrics.Metrics
	logger   *slog.Logger
	opts     Options
	upgrader websocket.Upgrader

	mu    sync.Mutex
	conns map[string]*websocket.Conn
}

func NewHandler(hub *broadcast.Hub, router *Router, observer *service.ObserverService, m *metrics.Metrics, logger *slog.Logger, opts Options) *Handler {
	if opts.MessagesPerSecond <= 0 {
		opts.MessagesPerSecond = 20
	}
	if opts.Burst <= 0 {
		opts.Burst = 40
	}
	return &Handler{
		hub:      hub,
		router:   router,
		observer: observer,
		metrics:  m,
		logger:   logger,
		opts:     opts,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin:     opts.CheckOrigin,
		},
		conns: make(map[string]*websocket.Conn),
	}
}

// caller builds the sender description for a socket. The identity comes from
// the request context, where auth.OptionalAuth put it.
func (h *Handler) caller(clientID string, r *http.Request) service.Caller {
	id := auth.IdentityFromContext(r.Context())
	admin := id != nil && h.opts.AdminID != "" && id.SubjectID == h.opts.AdminID
	return service.Caller{ClientID: clientID, Identity: id, Admin: admin}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written the HTTP error.
		h.logger.Debug("websocket upgrade failed", slog.String("error", err.Error()))
		return
	}

	clientID := xid.New().String()
	caller := h.caller(clientID, r)
	logger := h.logger.With(
		slog.String("client_id", clientID),
		slog.String("user_id", caller.SubjectID()),
	)

	client := h.hub.Register(clientID, caller.SubjectID())
	h.track(clientID, conn)
	h.metrics.SocketOpened()
	logger.Info("socket connected", slog.Bool("admin", caller.Admin))

	h.observer.Welcome(caller)

	done := make(chan struct{})
	go func() {
		defer close(done)
		h.writeLoop(conn, client, logger)
	}()

	h.readLoop(r.Context(), conn, caller, logger)

	h.hub.Unregister(client)
	<-done
	h.untrack(clientID)
	h.metrics.SocketClosed()
	logger.Info("socket disconnected")
}

func (h *Handler) readLoop(ctx context.Context, conn *websocket.Conn, caller service.Caller, logger *slog.Logger) {
	conn.SetReadLimit(maxMessageSize)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	limiter := rate.NewLimiter(rate.Limit(h.opts.MessagesPerSecond), h.opts.Burst)

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseNoStatusReceived) {
				logger.Debug("socket read ended", slog.String("error", err.Error()))
			}
			return
		}
		if !limiter.Allow() {
			logger.Debug("frame dropped by rate limit")
			continue
		}

		env, err := protocol.ParseEnvelope(data)
		if err != nil {
			logger.Debug("malformed frame dropped", slog.String("error", err.Error()))
			continue
		}
		if err := h.router.Dispatch(ctx, caller, env); err != nil && !errors.Is(err, errAdminOnly) {
			logger.Debug("frame dropped",
				slog.String("type", env.Type),
				slog.String("error", err.Error()),
			)
		}
	}
}

// writeLoop drains the client's queue onto the socket and keeps it alive
// with pings. It closes the connection on exit, which also ends the read loop.
func (h *Handler) writeLoop(conn *websocket.Conn, client *broadcast.Client, logger *slog.Logger) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = conn.Close()
	}()

	for {
		select {
		case frame, ok := <-client.Frames():
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				logger.Debug("socket write failed", slog.String("error", err.Error()))
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (h *Handler) track(id string, conn *websocket.Conn) {
	h.mu.Lock()
	h.conns[id] = conn
	h.mu.Unlock()
}

func (h *Handler) untrack(id string) {
	h.mu.Lock()
	delete(h.conns, id)
	h.mu.Unlock()
}

// Open is the number of live sockets.
func (h *Handler) Open() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.conns)
}

// CloseAll tells every socket the server is going away. http.Server.Shutdown
// does not touch hijacked connections, so the server calls this on shutdown.
func (h *Handler) CloseAll() {
	h.mu.Lock()
	conns := make([]*websocket.Conn, 0, len(h.conns))
	for _, c := range h.conns {
		conns = append(conns, c)
	}
	h.mu.Unlock()

	msg := websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down")
	for _, c := range conns {
		_ = c.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
		_ = c.Close()
	}
}
