package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/msalah0e/canopy/internal/config"
	"github.com/msalah0e/canopy/internal/disclosure"
	"github.com/msalah0e/canopy/internal/graph"
	"github.com/msalah0e/canopy/internal/hierarchy"
	"github.com/msalah0e/canopy/internal/ingest"
	"github.com/msalah0e/canopy/internal/interact"
	"github.com/msalah0e/canopy/internal/layout"
	"github.com/msalah0e/canopy/internal/logging"
	"github.com/msalah0e/canopy/internal/render"
	"github.com/msalah0e/canopy/internal/stats"
	"golang.org/x/time/rate"
)

// ErrClosed is returned when the session loop has stopped.
var ErrClosed = errors.New("session closed")

// Viewer is one connected client. Its camera is owned by the session loop.
type Viewer struct {
	id     string
	camera render.Camera
	out    chan Response
}

func (v *Viewer) ID() string { return v.id }

// Out delivers messages for the viewer. It is closed when the viewer leaves.
func (v *Viewer) Out() <-chan Response { return v.out }

// Session owns one graph and everything that edits it. All state is touched
// only by the goroutine running Run; other goroutines submit closures with Do.
type Session struct {
	cfg     *config.Config
	logger  *slog.Logger
	metrics *stats.Metrics
	inbox   chan func()
	limiter *rate.Limiter

	engine   *layout.Engine
	ctrl     *disclosure.Controller
	resolver *interact.Resolver
	viewers  map[string]*Viewer
	holder   string // viewer that started the current gesture
	pending  bool   // a frame is owed to viewers
	stopped  chan struct{}
}

// NewSession ingests root and prepares the engine. It does not start ticking
// until Run is called.
func NewSession(root *hierarchy.Node, cfg *config.Config, metrics *stats.Metrics, logger *slog.Logger) (*Session, error) {
	if logger == nil {
		logger = logging.Discard()
	}
	if metrics == nil {
		metrics = stats.New(false)
	}
	g, err := ingest.Ingest(root, cfg.Engine.ClusterThreshold)
	if err != nil {
		return nil, err
	}

	opts := cfg.LayoutOptions()
	opts.Logger = logger.With("component", "layout")
	engine := layout.New(opts)

	s := &Session{
		cfg:     cfg,
		logger:  logger,
		metrics: metrics,
		inbox:   make(chan func(), 64),
		limiter: newFrameLimiter(cfg.Server.MaxFPS),
		engine:  engine,
		viewers: make(map[string]*Viewer),
		stopped: make(chan struct{}),
	}
	s.ctrl = s.controller(g)
	s.resolver = interact.NewResolver(g, engine, s, cfg.InteractConfig(), engine.DragTarget(), logger.With("component", "interact"))
	engine.OnTick(s.onTick)
	engine.OnTick(metrics.ObserveTick)
	engine.Reseed(g)
	return s, nil
}

func newFrameLimiter(fps int) *rate.Limiter {
	if fps <= 0 {
		return rate.NewLimiter(rate.Inf, 1)
	}
	return rate.NewLimiter(rate.Limit(fps), 1)
}

func (s *Session) controller(g *graph.Graph) *disclosure.Controller {
	opts := s.cfg.DisclosureOptions()
	opts.Reseeder = s.engine
	opts.Logger = s.logger.With("component", "disclosure")
	return disclosure.New(g, opts)
}

// Run ticks the simulation every interval and serves Do requests until ctx is
// done.
func (s *Session) Run(ctx context.Context, interval time.Duration) error {
	defer close(s.stopped)
	flush := time.NewTicker(interval)
	defer flush.Stop()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	errc := make(chan error, 1)
	go func() { errc <- s.engine.Run(ctx, interval, s.inbox) }()

	// Frames owed while the simulation is idle (camera moves, releases) are
	// sent from here so that a settled layout still answers.
	for {
		select {
		case <-ctx.Done():
			err := <-errc
			s.closeViewers()
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		case <-flush.C:
			select {
			case s.inbox <- s.flushPending:
			case <-ctx.Done():
			}
		}
	}
}

// Do runs fn on the session goroutine and waits for it to finish.
func (s *Session) Do(ctx context.Context, fn func()) error {
	done := make(chan struct{})
	select {
	case s.inbox <- func() { fn(); close(done) }:
	case <-s.stopped:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case <-done:
		return nil
	case <-s.stopped:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Join registers a viewer and returns it with its hello message queued.
func (s *Session) Join(ctx context.Context) (*Viewer, error) {
	v := &Viewer{id: uuid.NewString(), camera: render.Identity, out: make(chan Response, 8)}
	err := s.Do(ctx, func() {
		s.viewers[v.id] = v
		s.metrics.ClientConnected()
		opts := s.engine.Options()
		v.out <- Response{Type: MsgHello, Client: v.id, Width: opts.Width, Height: opts.Height}
		s.sendFrame(v)
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("viewer joined", "client", v.id)
	return v, nil
}

// Leave drops a viewer and releases any node it was holding.
func (s *Session) Leave(ctx context.Context, v *Viewer) {
	_ = s.Do(ctx, func() { s.leave(v) })
	s.logger.Info("viewer left", "client", v.id)
}

func (s *Session) leave(v *Viewer) {
	if _, ok := s.viewers[v.id]; !ok {
		return
	}
	delete(s.viewers, v.id)
	close(v.out)
	s.metrics.ClientDisconnected()
	if s.owns(v) || len(s.viewers) == 0 {
		s.release()
	}
}

// owns reports whether v holds the current gesture.
func (s *Session) owns(v *Viewer) bool {
	_, active := s.resolver.Active()
	return active && s.holder == v.id
}

// free reports whether v may drive the resolver: nobody holds a gesture or v
// does.
func (s *Session) free(v *Viewer) bool {
	_, active := s.resolver.Active()
	return !active || s.holder == v.id
}

func (s *Session) release() {
	s.resolver.Cancel()
	s.holder = ""
	s.pending = true
}

// Handle applies one viewer message. It must run on the session goroutine.
func (s *Session) Handle(v *Viewer, req Request) {
	switch req.Type {
	case MsgStart, MsgMove, MsgEnd, MsgCancel:
		if !s.free(v) {
			s.logger.Debug("gesture held by another viewer", "client", v.id, "holder", s.holder, "type", req.Type)
			return
		}
		s.gesture(v, req)
	case MsgCamera:
		if req.Camera != nil {
			v.camera = *req.Camera
		}
		s.sendFrame(v)
	case MsgToggle:
		if _, err := s.Toggle(req.Node); err != nil {
			s.reply(v, Response{Type: MsgError, Error: err.Error()})
		}
	default:
		s.reply(v, Response{Type: MsgError, Error: fmt.Sprintf("unknown message type %q", req.Type)})
	}
}

// gesture feeds a pointer message from the viewer holding the resolver.
func (s *Session) gesture(v *Viewer, req Request) {
	switch req.Type {
	case MsgStart:
		if id, ok := s.resolver.Start(req.Point()); ok {
			s.holder = v.id
			s.logger.Debug("gesture started", "client", v.id, "node", id)
		}
	case MsgMove:
		s.resolver.Move(req.Point())
	case MsgEnd:
		s.holder = ""
		out, err := s.resolver.End(req.Point())
		if out.Kind != interact.OutcomeNone {
			s.metrics.ObserveOutcome(out)
		}
		if err != nil {
			s.reply(v, Response{Type: MsgError, Error: err.Error()})
		}
		s.pending = true
	case MsgCancel:
		s.release()
	}
}

// Toggle flips id and tells every viewer. It implements interact.Toggler.
func (s *Session) Toggle(id string) (disclosure.Change, error) {
	c, err := s.ctrl.Toggle(id)
	if err != nil {
		return c, err
	}
	s.metrics.ObserveChange(c)
	if c.Action != disclosure.ActionNone {
		s.broadcast(Response{Type: MsgChange, Change: changeView(c)})
		s.pending = true
	}
	return c, nil
}

// Reload replaces the hierarchy. Nodes whose ids survive keep their
// positions, pins and velocities. It must run on the session goroutine.
func (s *Session) Reload(root *hierarchy.Node) error {
	g, err := ingest.Ingest(root, s.cfg.Engine.ClusterThreshold)
	s.metrics.ObserveReload(err)
	if err != nil {
		return err
	}
	s.release()
	if old := s.engine.Graph(); old != nil {
		g.Each(func(n *graph.Node) bool {
			if prev := old.Node(n.ID); prev != nil {
				n.Position, n.Pinned = prev.Position, prev.Pinned
			}
			return true
		})
	}
	s.ctrl = s.controller(g)
	s.resolver.Rebind(g, s.engine, s)
	s.engine.Reseed(g)
	s.pending = true
	s.logger.Info("reloaded", "nodes", g.Len(), "links", g.LinkCount())
	return nil
}

// Graph returns the visible graph. Only safe on the session goroutine.
func (s *Session) Graph() *graph.Graph { return s.engine.Graph() }

func (s *Session) onTick(t layout.Tick) {
	if !t.Live || s.limiter.Allow() {
		s.pending = true
		s.flushPending()
	}
}

func (s *Session) flushPending() {
	if !s.pending {
		return
	}
	s.pending = false
	for _, v := range s.viewers {
		s.sendFrame(v)
	}
}

func (s *Session) sendFrame(v *Viewer) {
	f := render.Project(s.engine.Graph(), v.camera)
	s.metrics.ObserveFrame(f)
	if len(f.Skipped) > 0 {
		s.logger.Warn("skipped unresolvable links", "count", len(f.Skipped))
	}
	s.reply(v, Response{Type: MsgFrame, Frame: &f})
}

// reply queues r for v. A full queue drops its oldest frame so slow viewers
// always get the latest picture.
func (s *Session) reply(v *Viewer, r Response) {
	for {
		select {
		case v.out <- r:
			return
		default:
		}
		select {
		case <-v.out:
		default:
		}
	}
}

func (s *Session) broadcast(r Response) {
	for _, v := range s.viewers {
		s.reply(v, r)
	}
}

func (s *Session) closeViewers() {
	// The engine loop has exited, so nothing else touches viewers now.
	for id, v := range s.viewers {
		close(v.out)
		delete(s.viewers, id)
		s.metrics.ClientDisconnected()
	}
}
