package server

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/ironsheep/image-filter-server/internal/config"
	"github.com/ironsheep/image-filter-server/internal/filters"
	"github.com/ironsheep/image-filter-server/internal/metrics"
	"github.com/ironsheep/image-filter-server/internal/store"
)

// Routes served by the socket API. A trailing slash is accepted on each.
const (
	RouteList    = "/api/v1/filters"
	RouteStat    = "/api/v1/filters/stat"
	RouteApply   = "/api/v1/filters/apply"
	RouteMetrics = "/metrics"
)

// StatWindowDays is the length of the usage histogram.
const StatWindowDays = 30

// Server owns the listener, the usage log handle and every live session.
type Server struct {
	cfg     config.Config
	usage   store.UsageLog
	factory *filters.Factory
	metrics *metrics.Metrics
	log     zerolog.Logger
	now     func() time.Time

	upgrader websocket.Upgrader
	http     *http.Server

	mu       sync.Mutex
	sessions map[*session]struct{}
	closing  bool
	active   sync.WaitGroup
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the server logger. The default discards everything.
func WithLogger(l zerolog.Logger) Option {
	return func(s *Server) { s.log = l }
}

// WithClock replaces time.Now for usage timestamps and the stat window.
func WithClock(now func() time.Time) Option {
	return func(s *Server) { s.now = now }
}

// WithMetrics sets the collectors. The default is a fresh metrics.New().
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Server) { s.metrics = m }
}

// New creates a Server logging usage to usage and building filters with
// factory.
func New(cfg config.Config, usage store.UsageLog, factory *filters.Factory, opts ...Option) *Server {
	s := &Server{
		cfg:      cfg,
		usage:    usage,
		factory:  factory,
		log:      zerolog.Nop(),
		now:      time.Now,
		sessions: make(map[*session]struct{}),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  32 << 10,
			WriteBufferSize: 32 << 10,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.metrics == nil {
		s.metrics = metrics.New()
	}
	s.http = &http.Server{
		Addr:              cfg.Addr(),
		Handler:           s,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Handler returns the HTTP handler serving every route.
func (s *Server) Handler() http.Handler { return s }

// ListenAndServe listens on the configured address. It returns
// http.ErrServerClosed after Shutdown.
func (s *Server) ListenAndServe() error {
	s.log.Info().Str("addr", s.http.Addr).Msg("Listening")
	return s.http.ListenAndServe()
}

// Serve accepts connections on l.
func (s *Server) Serve(l net.Listener) error {
	s.log.Info().Str("addr", l.Addr().String()).Msg("Listening")
	return s.http.Serve(l)
}

// Shutdown stops accepting connections, closes every live session and
// waits for their handlers to return or ctx to expire.
func (s *Server) Shutdown(ctx context.Context) error {
	err := s.http.Shutdown(ctx)

	s.mu.Lock()
	s.closing = true
	live := make([]*session, 0, len(s.sessions))
	for sess := range s.sessions {
		live = append(live, sess)
	}
	s.mu.Unlock()

	for _, sess := range live {
		sess.close(websocket.CloseGoingAway, "server shutting down")
	}

	done := make(chan struct{})
	go func() {
		s.active.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		return errors.Join(err, ctx.Err())
	}
	if errors.Is(err, http.ErrServerClosed) {
		err = nil
	}
	return err
}

// ServeHTTP routes a request. Unknown paths get a plain 404 without an
// upgrade.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimSuffix(r.URL.Path, "/")
	switch path {
	case RouteList:
		s.serveSocket(w, r, "list", s.handleList)
	case RouteStat:
		s.serveSocket(w, r, "stat", s.handleStat)
	case RouteApply:
		s.serveSocket(w, r, "apply", s.handleApply)
	case RouteMetrics:
		s.metrics.Handler().ServeHTTP(w, r)
	default:
		s.log.Debug().Str("path", r.URL.Path).Str("remote", r.RemoteAddr).Msg("Unknown path")
		http.NotFound(w, r)
	}
}

type sessionHandler func(*session) error

func (s *Server) serveSocket(w http.ResponseWriter, r *http.Request, route string, handle sessionHandler) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Debug().Err(err).Str("route", route).Str("remote", r.RemoteAddr).Msg("Upgrade failed")
		return
	}
	conn.SetReadLimit(s.cfg.MaxMessageBytes)

	id := uuid.NewString()
	remote := clientAddress(r.RemoteAddr)
	logger := s.log.With().
		Str("conn_id", id).
		Str("route", route).
		Str("remote", remote).
		Logger()
	ctx, cancel := context.WithCancel(logger.WithContext(context.Background()))

	sess := &session{
		id:           id,
		route:        route,
		remote:       remote,
		conn:         conn,
		log:          logger,
		ctx:          ctx,
		cancel:       cancel,
		readTimeout:  s.cfg.ReadTimeout,
		writeTimeout: s.cfg.WriteTimeout,
	}
	if !s.track(sess) {
		sess.close(websocket.CloseGoingAway, "server shutting down")
		return
	}
	defer s.untrack(sess)

	s.metrics.ActiveSessions.Inc()
	defer s.metrics.ActiveSessions.Dec()

	logger.Debug().Msg("Session opened")
	start := time.Now()
	status := s.finish(sess, handle(sess))
	logger.Debug().
		Int("status", int(status)).
		Dur("elapsed", time.Since(start)).
		Msg("Session closed")
}

func (s *Server) track(sess *session) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closing {
		return false
	}
	s.sessions[sess] = struct{}{}
	s.active.Add(1)
	return true
}

func (s *Server) untrack(sess *session) {
	s.mu.Lock()
	delete(s.sessions, sess)
	s.mu.Unlock()
	s.active.Done()
}

// clientAddress strips the port from a RemoteAddr.
func clientAddress(remoteAddr string) string {
	host, _, err := net.SplitHostPort(remoteAddr)
	if err != nil {
		return remoteAddr
	}
	return host
}
