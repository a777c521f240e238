// Package dashboard serves the operations view: reservation and
// session snapshots over REST, live change events over websocket, and
// the prometheus scrape endpoint. The dashboard is a passive observer
// of the reservation store; it tolerates duplicate change events and
// never mutates anything.
package dashboard

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/websocket/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/harborview/voicedesk/pkg/hub"
	"github.com/harborview/voicedesk/pkg/notify"
	"github.com/harborview/voicedesk/pkg/session"
	"github.com/harborview/voicedesk/pkg/store"
)

// recentEventLimit bounds the replayable event buffer.
const recentEventLimit = 100

// SessionLister exposes the live call sessions. The agent implements it.
type SessionLister interface {
	Sessions() []*session.Session
}

// ChangeView is the wire shape of one reservation change event.
type ChangeView struct {
	ReservationID int    `json:"reservation_id"`
	NewStatus     string `json:"new_status"`
	Timestamp     string `json:"timestamp"`
}

// Server is the dashboard HTTP server.
type Server struct {
	app    *fiber.App
	addr   string
	logger *slog.Logger

	store    store.Store
	sessions SessionLister
	notifier *notify.Notifier

	eventsHub *hub.Hub

	recentMu sync.RWMutex
	recent   []ChangeView

	metricsHandler fiber.Handler
	cancelFeed     context.CancelFunc
}

// Option configures the server.
type Option func(*Server)

// WithAddr sets the listen address. Default ":8081".
func WithAddr(addr string) Option {
	return func(s *Server) { s.addr = addr }
}

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) { s.logger = l }
}

// WithMetricsRegistry serves /metrics from the given registry instead
// of the default one.
func WithMetricsRegistry(reg *prometheus.Registry) Option {
	return func(s *Server) {
		s.metricsHandler = adaptor.HTTPHandler(
			promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	}
}

// NewServer creates a dashboard over the given store, session lister,
// and change notifier.
func NewServer(st store.Store, sessions SessionLister, notifier *notify.Notifier, opts ...Option) *Server {
	s := &Server{
		addr:     ":8081",
		logger:   slog.Default().With("component", "dashboard"),
		store:    st,
		sessions: sessions,
		notifier: notifier,
	}

	app := fiber.New(fiber.Config{
		AppName:               "voicedesk dashboard",
		DisableStartupMessage: true,
	})
	app.Use(cors.New())
	s.app = app

	s.eventsHub = hub.New("events", s.logger)

	api := app.Group("/api")
	api.Get("/sessions", s.handleSessions)
	api.Get("/accounts/:id/reservations", s.handleReservations)
	api.Get("/events", s.handleRecentEvents)

	app.Get("/healthz", s.handleHealth)

	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Get("/ws/events", websocket.New(s.handleEventsWS))

	s.metricsHandler = adaptor.HTTPHandler(promhttp.Handler())
	for _, opt := range opts {
		opt(s)
	}
	app.Get("/metrics", func(c *fiber.Ctx) error { return s.metricsHandler(c) })

	s.logger = s.logger.With("addr", s.addr)
	return s
}

// Start runs the event feed and blocks serving HTTP.
func (s *Server) Start() error {
	s.startFeed()
	s.logger.Info("dashboard listening")
	return s.app.Listen(s.addr)
}

// StartAsync runs the server in a goroutine.
func (s *Server) StartAsync() {
	go func() {
		if err := s.Start(); err != nil {
			s.logger.Error("dashboard server stopped", "error", err)
		}
	}()
}

// Shutdown stops the server, the hub, and the event feed.
func (s *Server) Shutdown() error {
	if s.cancelFeed != nil {
		s.cancelFeed()
	}
	s.eventsHub.Stop()
	return s.app.Shutdown()
}

// startFeed subscribes to the notifier and fans events out to the hub
// and the replay buffer.
func (s *Server) startFeed() {
	go s.eventsHub.Run()

	ctx, cancel := context.WithCancel(context.Background())
	s.cancelFeed = cancel

	events, unsubscribe := s.notifier.Subscribe()
	go func() {
		defer unsubscribe()
		for {
			select {
			case <-ctx.Done():
				return
			case e, ok := <-events:
				if !ok {
					return
				}
				view := changeView(e)
				s.remember(view)
				if err := s.eventsHub.BroadcastJSON(view); err != nil {
					s.logger.Warn("event broadcast failed", "error", err)
				}
			}
		}
	}()
}

func changeView(e notify.Event) ChangeView {
	ts := e.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}
	return ChangeView{
		ReservationID: e.ReservationID,
		NewStatus:     e.NewStatus,
		Timestamp:     ts.UTC().Format(time.RFC3339),
	}
}

func (s *Server) remember(v ChangeView) {
	s.recentMu.Lock()
	defer s.recentMu.Unlock()
	s.recent = append(s.recent, v)
	if len(s.recent) > recentEventLimit {
		s.recent = s.recent[len(s.recent)-recentEventLimit:]
	}
}
