// Package server hosts the localhost endpoint the browser extension talks
// to. The extension opens a WebSocket on /v1/trigger and sends one JSON frame
// per context-menu click; each click is handled independently and answered
// with one JSON reply frame.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/anduleh/save-to-google-photos/internal/trigger"
)

// Routes.
const (
	TriggerPath = "/v1/trigger"
	MenuPath    = "/v1/menu"
	HealthPath  = "/healthz"
)

// Reply statuses.
const (
	StatusOK      = "ok"
	StatusIgnored = "ignored"
	StatusError   = "error"
)

const (
	readHeaderTimeout = 5 * time.Second
	shutdownTimeout   = 10 * time.Second

	// maxFrameBytes bounds a single event frame. Events carry URLs, and data
	// URLs can be large.
	maxFrameBytes = 64 << 20
)

// ErrNotLoopback is returned when the listen address is not a loopback
// address. The endpoint uploads on the user's behalf and must not be
// reachable from the network.
var ErrNotLoopback = errors.New("server: listen address must be loopback")

// Handler processes one trigger event. *trigger.Handler satisfies it.
type Handler interface {
	Handle(ctx context.Context, ev trigger.Event) (*trigger.Outcome, error)
}

// Request is one event frame. RequestID is chosen by the extension and echoed
// back so replies to concurrent clicks can be matched.
type Request struct {
	RequestID string `json:"requestId,omitempty"`
	trigger.Event
}

// Reply answers one Request.
type Reply struct {
	RequestID   string `json:"requestId,omitempty"`
	ID          string `json:"id,omitempty"`
	Status      string `json:"status"`
	MediaItemID string `json:"mediaItemId,omitempty"`
	ProductURL  string `json:"productUrl,omitempty"`
	Error       string `json:"error,omitempty"`
}

// Server serves the trigger endpoint.
type Server struct {
	handler Handler
	origins func() []string
	logger  *slog.Logger
}

// New creates a Server. origins is consulted on every upgrade so a config
// reload takes effect for new connections; nil allows same-origin only.
func New(handler Handler, origins func() []string, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}

	if origins == nil {
		origins = func() []string { return nil }
	}

	return &Server{
		handler: handler,
		origins: origins,
		logger:  logger,
	}
}

// Routes returns the HTTP handler with all endpoints registered.
func (s *Server) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET "+TriggerPath, s.handleTrigger)
	mux.HandleFunc("GET "+MenuPath, handleMenu)
	mux.HandleFunc("GET "+HealthPath, handleHealth)

	return mux
}

// ListenAndServe binds addr (which must be loopback) and serves until ctx is
// canceled, then shuts down gracefully. ready, if non-nil, receives the bound
// address once listening.
func (s *Server) ListenAndServe(ctx context.Context, addr string, ready func(net.Addr)) error {
	if err := checkLoopback(addr); err != nil {
		return err
	}

	lc := net.ListenConfig{}

	ln, err := lc.Listen(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("server: listening on %s: %w", addr, err)
	}

	srv := &http.Server{
		Handler:           s.Routes(),
		ReadHeaderTimeout: readHeaderTimeout,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	s.logger.Info("trigger server listening", slog.String("addr", ln.Addr().String()))

	if ready != nil {
		ready(ln.Addr())
	}

	errCh := make(chan error, 1)

	go func() {
		errCh <- srv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}

		return fmt.Errorf("server: serving: %w", err)
	case <-ctx.Done():
	}

	s.logger.Info("trigger server shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server: shutdown: %w", err)
	}

	return nil
}

// checkLoopback rejects wildcard and non-loopback hosts.
func checkLoopback(addr string) error {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return fmt.Errorf("server: invalid listen address %q: %w", addr, err)
	}

	if host == "localhost" {
		return nil
	}

	ip := net.ParseIP(host)
	if ip == nil || !ip.IsLoopback() {
		return fmt.Errorf("%w, got %q", ErrNotLoopback, addr)
	}

	return nil
}

// handleTrigger upgrades to a WebSocket and processes frames until the peer
// closes. Each event runs in its own goroutine; the connection stays open
// until every in-flight event has replied.
func (s *Server) handleTrigger(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: s.origins(),
	})
	if err != nil {
		s.logger.Warn("websocket upgrade rejected",
			slog.String("origin", r.Header.Get("Origin")),
			slog.String("error", err.Error()),
		)

		return
	}

	conn.SetReadLimit(maxFrameBytes)

	ctx := r.Context()
	logger := s.logger.With(slog.String("remote", r.RemoteAddr))
	logger.Debug("extension connected")

	var wg sync.WaitGroup

	defer func() {
		wg.Wait()
		conn.Close(websocket.StatusNormalClosure, "")
		logger.Debug("extension disconnected")
	}()

	for {
		typ, data, err := conn.Read(ctx)
		if err != nil {
			if !isNormalClose(err) {
				logger.Debug("read loop ended", slog.String("error", err.Error()))
			}

			return
		}

		if typ != websocket.MessageText {
			s.writeReply(ctx, conn, Reply{Status: StatusError, Error: "event frames must be text"}, logger)
			continue
		}

		var req Request
		if err := json.Unmarshal(data, &req); err != nil {
			s.writeReply(ctx, conn, Reply{Status: StatusError, Error: "malformed event: " + err.Error()}, logger)
			continue
		}

		wg.Add(1)

		go func() {
			defer wg.Done()

			// ctx outlives the peer: the handler does not return before wg
			// drains, so only server shutdown cancels an upload.
			reply := s.process(ctx, req)
			s.writeReply(ctx, conn, reply, logger)
		}()
	}
}

// process runs one event through the handler and builds the reply.
func (s *Server) process(ctx context.Context, req Request) Reply {
	reply := Reply{RequestID: req.RequestID}

	out, err := s.handler.Handle(ctx, req.Event)
	if out != nil {
		reply.ID = out.InvocationID
	}

	switch {
	case err != nil:
		reply.Status = StatusError
		reply.Error = err.Error()
	case out == nil:
		reply.Status = StatusIgnored
	default:
		reply.Status = StatusOK

		if item := out.MediaItem(); item != nil {
			reply.MediaItemID = item.ID
			reply.ProductURL = item.ProductURL
		}
	}

	return reply
}

func (s *Server) writeReply(ctx context.Context, conn *websocket.Conn, reply Reply, logger *slog.Logger) {
	if err := wsjson.Write(ctx, conn, reply); err != nil {
		logger.Warn("writing reply failed",
			slog.String("request_id", reply.RequestID),
			slog.String("error", err.Error()),
		)
	}
}

func isNormalClose(err error) bool {
	switch websocket.CloseStatus(err) {
	case websocket.StatusNormalClosure, websocket.StatusGoingAway:
		return true
	default:
		return false
	}
}

func handleMenu(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(trigger.DefaultMenu())
}

func handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	fmt.Fprintln(w, "ok")
}
