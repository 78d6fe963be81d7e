// Package server serves a live, interactive layout to browsers over a
// websocket and exposes engine metrics.
package server

import (
	"context"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/msalah0e/canopy/internal/config"
	"github.com/msalah0e/canopy/internal/graph"
	"github.com/msalah0e/canopy/internal/hierarchy"
	"github.com/msalah0e/canopy/internal/logging"
	"github.com/msalah0e/canopy/internal/render"
	"github.com/msalah0e/canopy/internal/stats"
	"golang.org/x/sync/errgroup"
)

//go:embed static/*
var static embed.FS

const (
	writeWait      = 5 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = pongWait * 9 / 10
	maxMessageSize = 16 << 10
)

// Options configures a Server.
type Options struct {
	Addr string
	// Watch reloads the hierarchy from this file whenever it changes.
	Watch    string
	Debounce time.Duration
	// Load reads the watched file. Defaults to hierarchy.Load.
	Load    func(path string) (*hierarchy.Node, error)
	Metrics *stats.Metrics
	Logger  *slog.Logger
}

// Server wires a Session to HTTP.
type Server struct {
	cfg      *config.Config
	opts     Options
	session  *Session
	metrics  *stats.Metrics
	logger   *slog.Logger
	upgrader websocket.Upgrader
}

// New builds a server for root. Nothing runs until Serve.
func New(root *hierarchy.Node, cfg *config.Config, opts Options) (*Server, error) {
	if opts.Logger == nil {
		opts.Logger = logging.Discard()
	}
	if opts.Metrics == nil {
		opts.Metrics = stats.New(true)
	}
	if opts.Load == nil {
		opts.Load = hierarchy.Load
	}
	if opts.Addr == "" {
		opts.Addr = cfg.Server.Addr
	}

	session, err := NewSession(root, cfg, opts.Metrics, opts.Logger.With("component", "session"))
	if err != nil {
		return nil, err
	}
	return &Server{
		cfg:     cfg,
		opts:    opts,
		session: session,
		metrics: opts.Metrics,
		logger:  opts.Logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4 << 10,
			WriteBufferSize: 64 << 10,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}, nil
}

func (s *Server) Session() *Session { return s.session }

// Handler returns the HTTP routes. The websocket route bypasses the logging
// middleware, which cannot hijack connections.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	ui, err := fs.Sub(static, "static")
	if err != nil {
		panic(err) // embedded at build time
	}
	mux.Handle("GET /", http.FileServer(http.FS(ui)))
	mux.Handle("GET /metrics", s.metrics.Handler())
	mux.HandleFunc("GET /healthz", s.handleHealthz)
	mux.HandleFunc("GET /graph.json", s.handleGraphJSON)
	mux.HandleFunc("GET /graph.svg", s.handleGraphSVG)
	mux.HandleFunc("POST /nodes/{id}/toggle", s.handleToggle)

	var handler http.Handler = mux
	handler = s.loggingMiddleware(handler)
	handler = s.recoveryMiddleware(handler)

	root := http.NewServeMux()
	root.HandleFunc("GET /ws", s.handleWebSocket)
	root.Handle("/", handler)
	return root
}

// ListenAndServe listens on the configured address and serves until ctx is done.
func (s *Server) ListenAndServe(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.opts.Addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.opts.Addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve runs the session loop, the file watcher and the HTTP server on ln,
// stopping all three when ctx is done or any of them fails.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return s.session.Run(ctx, s.cfg.Layout.TickInterval.Duration)
	})

	if s.opts.Watch != "" {
		w, err := NewWatcher(s.opts.Watch, s.opts.Debounce, s.reload, s.logger.With("component", "watch"))
		if err != nil {
			ln.Close()
			return err
		}
		g.Go(func() error { return w.Run(ctx) })
	}

	srv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}
	g.Go(func() error {
		s.logger.Info("listening", "addr", ln.Addr().String())
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

func (s *Server) reload(ctx context.Context) {
	root, err := s.opts.Load(s.opts.Watch)
	if err != nil {
		s.metrics.ObserveReload(err)
		s.logger.Warn("reload failed", "path", s.opts.Watch, "err", err)
		_ = s.session.Do(ctx, func() {
			s.session.broadcast(Response{Type: MsgError, Error: "reload: " + err.Error()})
		})
		return
	}
	_ = s.session.Do(ctx, func() {
		if err := s.session.Reload(root); err != nil {
			s.logger.Warn("reload rejected", "path", s.opts.Watch, "err", err)
			s.session.broadcast(Response{Type: MsgError, Error: "reload: " + err.Error()})
		}
	})
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "err", err)
		return
	}
	defer conn.Close()

	ctx := r.Context()
	v, err := s.session.Join(ctx)
	if err != nil {
		_ = conn.WriteJSON(Response{Type: MsgError, Error: err.Error()})
		return
	}
	defer func() {
		leaveCtx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		s.session.Leave(leaveCtx, v)
	}()

	go s.writeLoop(conn, v)

	conn.SetReadLimit(maxMessageSize)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		var req Request
		if err := conn.ReadJSON(&req); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.logger.Debug("websocket read failed", "client", v.ID(), "err", err)
			}
			return
		}
		if err := s.session.Do(ctx, func() { s.session.Handle(v, req) }); err != nil {
			return
		}
	}
}

// writeLoop is the connection's only writer. It exits when the viewer's queue
// is closed or a write fails.
func (s *Server) writeLoop(conn *websocket.Conn, v *Viewer) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		conn.Close()
	}()

	for {
		select {
		case resp, ok := <-v.Out():
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := conn.WriteJSON(resp); err != nil {
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

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleGraphJSON(w http.ResponseWriter, r *http.Request) {
	var snap graph.Snapshot
	if err := s.session.Do(r.Context(), func() { snap = s.session.Graph().Snapshot() }); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (s *Server) handleGraphSVG(w http.ResponseWriter, r *http.Request) {
	var f render.Frame
	var width, height float64
	err := s.session.Do(r.Context(), func() {
		f = render.Project(s.session.Graph(), render.Identity)
		opts := s.session.engine.Options()
		width, height = opts.Width, opts.Height
	})
	if err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": err.Error()})
		return
	}
	w.Header().Set("Content-Type", "image/svg+xml")
	if err := render.WriteSVG(w, f, width, height); err != nil {
		s.logger.Warn("write svg", "err", err)
	}
}

func (s *Server) handleToggle(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	var view *ChangeView
	var toggleErr error
	err := s.session.Do(r.Context(), func() {
		c, err := s.session.Toggle(id)
		view, toggleErr = changeView(c), err
	})
	switch {
	case err != nil:
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": err.Error()})
	case errors.Is(toggleErr, graph.ErrUnknownNode):
		writeJSON(w, http.StatusNotFound, map[string]string{"error": toggleErr.Error()})
	case toggleErr != nil:
		writeJSON(w, http.StatusConflict, map[string]string{"error": toggleErr.Error()})
	default:
		writeJSON(w, http.StatusOK, view)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
