// Package ws adapts websocket connections to the chat session manager.
//
// The handshake is authenticated before the upgrade: a request without a
// valid bearer token gets a plain 401 and never reaches the registry. After
// the upgrade each connection runs one read loop (this handler's goroutine)
// and one write pump. Inbound frames are handled strictly in arrival order.
//
// Frames are JSON text messages shaped {"event": "...", "data": {...}}.
package ws

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/tbourn/go-shop-chat/internal/chat"
	"github.com/tbourn/go-shop-chat/internal/domain"
	"github.com/tbourn/go-shop-chat/internal/http/handlers"
	"github.com/tbourn/go-shop-chat/internal/http/middleware"
	"github.com/tbourn/go-shop-chat/internal/services"
)

// Options configures the gateway. Zero values fall back to the defaults in
// NewGateway.
type Options struct {
	SendBuffer     int           // outbound events queued per connection
	PingInterval   time.Duration // read deadline is twice this
	WriteTimeout   time.Duration
	EventTimeout   time.Duration // budget for handling one inbound event
	MaxFrameBytes  int64
	AllowedOrigins []string // empty allows any origin
}

// Gateway upgrades HTTP requests to chat sessions.
type Gateway struct {
	mgr      *chat.Manager
	opts     Options
	upgrader websocket.Upgrader

	quit     chan struct{}
	quitOnce sync.Once
	wg       sync.WaitGroup
}

// NewGateway returns a gateway serving sessions through mgr.
func NewGateway(mgr *chat.Manager, opts Options) *Gateway {
	if opts.SendBuffer < 1 {
		opts.SendBuffer = 64
	}
	if opts.PingInterval <= 0 {
		opts.PingInterval = 30 * time.Second
	}
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = 10 * time.Second
	}
	if opts.EventTimeout <= 0 {
		opts.EventTimeout = 10 * time.Second
	}
	if opts.MaxFrameBytes <= 0 {
		opts.MaxFrameBytes = 64 << 10
	}
	g := &Gateway{mgr: mgr, opts: opts, quit: make(chan struct{})}
	g.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     originChecker(opts.AllowedOrigins),
	}
	return g
}

// Handle is the gin handler for GET /ws/chat. It blocks for the lifetime of
// the connection.
func (g *Gateway) Handle(c *gin.Context) {
	select {
	case <-g.quit:
		handlers.Fail(c, http.StatusServiceUnavailable, handlers.ErrCodeUnavailable, "shutting down")
		return
	default:
	}

	lg := middleware.LoggerFrom(c)
	ctx := c.Request.Context()

	id, err := g.mgr.Authenticate(ctx, credential(c.Request))
	if err != nil {
		if errors.Is(err, services.ErrUnauthenticated) {
			c.Header("WWW-Authenticate", `Bearer realm="chat"`)
			handlers.Fail(c, http.StatusUnauthorized, handlers.ErrCodeUnauthorized, "missing or invalid access token")
			return
		}
		handlers.Fail(c, http.StatusInternalServerError, handlers.ErrCodeInternal, "authentication unavailable")
		return
	}

	wsConn, err := g.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// The upgrader has already written the HTTP error.
		lg.Warn().Err(err).Int64("user_id", id.ID).Msg("ws upgrade failed")
		return
	}

	g.wg.Add(1)
	defer g.wg.Done()

	out := newConn(wsConn, g.opts.SendBuffer)
	connectCtx, cancel := context.WithTimeout(ctx, g.opts.EventTimeout)
	s, err := g.mgr.Connect(connectCtx, id, out)
	cancel()
	if err != nil {
		lg.Error().Err(err).Int64("user_id", id.ID).Msg("chat connect failed")
		_ = wsConn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseInternalServerErr, "internal error"),
			time.Now().Add(g.opts.WriteTimeout))
		_ = wsConn.Close()
		return
	}

	go out.writePump(g.opts.PingInterval, g.opts.WriteTimeout, g.quit)

	sl := lg.With().Int64("user_id", id.ID).Str("conn_id", s.ID).Logger()
	g.readLoop(ctx, s, wsConn, &sl)
	g.mgr.Disconnect(s)
}

// Shutdown makes every live connection send a going-away close frame and
// waits for their handlers to return, or for ctx to end. New handshakes are
// refused with 503 from the first call on.
func (g *Gateway) Shutdown(ctx context.Context) error {
	g.quitOnce.Do(func() { close(g.quit) })
	done := make(chan struct{})
	go func() {
		g.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (g *Gateway) readLoop(ctx context.Context, s *chat.Session, c *websocket.Conn, lg *zerolog.Logger) {
	wait := 2 * g.opts.PingInterval
	c.SetReadLimit(g.opts.MaxFrameBytes)
	_ = c.SetReadDeadline(time.Now().Add(wait))
	c.SetPongHandler(func(string) error {
		return c.SetReadDeadline(time.Now().Add(wait))
	})

	for {
		typ, data, err := c.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				lg.Debug().Err(err).Msg("ws read ended")
			}
			return
		}
		_ = c.SetReadDeadline(time.Now().Add(wait))

		if typ != websocket.TextMessage {
			s.Send(chat.ErrorEvent(chat.ErrInvalidFrame, ""))
			continue
		}
		g.dispatch(ctx, s, data, lg)
	}
}

// inbound is the envelope of a client frame; data is decoded per event.
type inbound struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

func (g *Gateway) dispatch(parent context.Context, s *chat.Session, frame []byte, lg *zerolog.Logger) {
	var in inbound
	if err := json.Unmarshal(frame, &in); err != nil || in.Event == "" {
		s.Send(chat.ErrorEvent(chat.ErrInvalidFrame, in.Event))
		return
	}

	ctx, cancel := context.WithTimeout(parent, g.opts.EventTimeout)
	defer cancel()

	var (
		reply chat.Event
		err   error
	)
	switch in.Event {
	case chat.EventSendMessage:
		var req chat.SendMessage
		if err = decodeData(in.Data, &req); err == nil {
			var msg *domain.Message
			msg, err = g.mgr.SubmitMessage(ctx, s, req)
			if err == nil {
				reply = chat.MessageSentEvent(msg)
			}
		}
	case chat.EventJoinRoom:
		var req chat.RoomRequest
		if err = decodeData(in.Data, &req); err == nil {
			if err = g.mgr.JoinRoom(ctx, s, req.RoomID); err == nil {
				reply = chat.RoomJoinedEvent(req.RoomID)
			}
		}
	case chat.EventLeaveRoom:
		var req chat.RoomRequest
		if err = decodeData(in.Data, &req); err == nil {
			if err = g.mgr.LeaveRoom(ctx, s, req.RoomID); err == nil {
				reply = chat.RoomLeftEvent(req.RoomID)
			}
		}
	default:
		err = chat.ErrUnknownEvent
	}

	if err != nil {
		if chat.PublicMessage(err) == "internal error" {
			lg.Warn().Err(err).Str("event", in.Event).Msg("chat event failed")
		}
		reply = chat.ErrorEvent(err, in.Event)
	}
	s.Send(reply)
}

func decodeData(raw json.RawMessage, dst any) error {
	if len(raw) == 0 {
		return chat.ErrInvalidParams
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return chat.ErrInvalidParams
	}
	return chat.Validate(dst)
}

// credential returns the Authorization header, or a bearer credential built
// from the access_token query parameter for browser clients that cannot set
// headers on a websocket handshake.
func credential(r *http.Request) string {
	if h := strings.TrimSpace(r.Header.Get("Authorization")); h != "" {
		return h
	}
	if t := strings.TrimSpace(r.URL.Query().Get("access_token")); t != "" {
		return "Bearer " + t
	}
	return ""
}

func originChecker(allowed []string) func(*http.Request) bool {
	if len(allowed) == 0 {
		return func(*http.Request) bool { return true }
	}
	set := make(map[string]struct{}, len(allowed))
	for _, o := range allowed {
		set[o] = struct{}{}
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true // non-browser client
		}
		_, ok := set[origin]
		return ok
	}
}
