// Package server is the composition root: it opens the database, boots the
// canvas, wires every protocol to the socket router and mounts the HTTP
// routes.
//
// DEPENDENCY INJECTION FLOW:
//
//	config.Config
//	  → sqlstore.DB (repository.Store)
//	  → canvas.Canvas (config, grid, bans, timeouts, stats)
//	  → broadcast.Hub ← metrics (dropped frames)
//	  → service.{Pixel,Comment,Admin,Observer}Service
//	  → realtime.Router → realtime.Handler (/ws)
//
// Everything is built once in New; nothing below this package constructs
// its own dependencies.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"golang.org/x/sync/errgroup"

	"github.com/sakif/pixelboard/internal/auth"
	"github.com/sakif/pixelboard/internal/automod"
	"github.com/sakif/pixelboard/internal/broadcast"
	"github.com/sakif/pixelboard/internal/canvas"
	"github.com/sakif/pixelboard/internal/config"
	"github.com/sakif/pixelboard/internal/handler"
	"github.com/sakif/pixelboard/internal/metrics"
	"github.com/sakif/pixelboard/internal/middleware"
	"github.com/sakif/pixelboard/internal/realtime"
	"github.com/sakif/pixelboard/internal/repository/sqlstore"
	"github.com/sakif/pixelboard/internal/service"
)

const shutdownTimeout = 30 * time.Second

// Server owns every long-lived resource of the process.
type Server struct {
	cfg    config.Config
	logger *slog.Logger

	db      *sqlstore.DB
	canvas  *canvas.Canvas
	metrics *metrics.Metrics
	sockets *realtime.Handler
	router  *chi.Mux
}

// OpenDB prepares the data directory for file-backed SQLite, then opens the
// database and runs migrations.
func OpenDB(ctx context.Context, cfg config.Config) (*sqlstore.DB, error) {
	if cfg.DBDriver == sqlstore.DriverSQLite && cfg.DBDSN == "" && cfg.DBPath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(cfg.DBPath), 0o755); err != nil {
			return nil, fmt.Errorf("server: creating database directory: %w", err)
		}
	}
	return sqlstore.Open(ctx, cfg.DBDriver, cfg.DSN(), sqlstore.Options{})
}

// canvasDefaults converts the config file's canvas_defaults section.
func canvasDefaults(in []config.CanvasDefault) []canvas.Default {
	out := make([]canvas.Default, 0, len(in))
	for _, d := range in {
		out = append(out, canvas.Default{Key: d.Key, Value: d.Value, Public: d.Public})
	}
	return out
}

// New builds the whole server. A boot failure of any store is fatal; the
// process must not serve a half-hydrated canvas.
func New(ctx context.Context, cfg config.Config, logger *slog.Logger) (*Server, error) {
	db, err := OpenDB(ctx, cfg)
	if err != nil {
		return nil, err
	}

	s, err := build(ctx, cfg, db, logger)
	if err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func build(ctx context.Context, cfg config.Config, db *sqlstore.DB, logger *slog.Logger) (*Server, error) {
	m := metrics.New()

	cv := canvas.New(db, logger, canvas.Options{})
	if err := cv.Boot(ctx, canvas.MergeDefaults(canvas.BuiltinDefaults(), canvasDefaults(cfg.CanvasDefaults))); err != nil {
		return nil, fmt.Errorf("server: booting canvas: %w", err)
	}
	if err := m.RegisterStats(cv.Stats); err != nil {
		return nil, fmt.Errorf("server: registering stats collector: %w", err)
	}

	hub := broadcast.NewHub(logger.With(slog.String("component", "hub")), broadcast.Options{
		QueueSize: cfg.BroadcastQueueSize,
		OnDrop:    m.FrameDropped,
	})

	deps := service.Deps{Canvas: cv, Hub: hub, Metrics: m, Logger: logger}
	observer := service.NewObserverService(deps)
	hub.SetPresenceHook(observer.PresenceChanged)

	router := realtime.NewRouter(realtime.Services{
		Pixels:   service.NewPixelService(deps),
		Comments: service.NewCommentService(deps, automod.New(cfg.OpenAIAPIKey, logger)),
		Admin:    service.NewAdminService(deps),
		Observer: observer,
	}, logger.With(slog.String("component", "router")))

	if cfg.AdminUserID == "" {
		logger.Warn("ADMIN_USER_ID not set; admin messages are disabled")
	}
	sockets := realtime.NewHandler(hub, router, observer, m, logger.With(slog.String("component", "socket")), realtime.Options{
		AdminID:           cfg.AdminUserID,
		MessagesPerSecond: cfg.SocketMessagesPerSecond,
		Burst:             cfg.SocketBurst,
	})

	s := &Server{
		cfg:     cfg,
		logger:  logger,
		db:      db,
		canvas:  cv,
		metrics: m,
		sockets: sockets,
		router:  chi.NewRouter(),
	}
	if err := s.setupRoutes(); err != nil {
		return nil, err
	}
	return s, nil
}

// setupRoutes mounts every HTTP route.
//
// ROUTE STRUCTURE:
//
//	GET  /healthz                → database ping
//	GET  /metrics                → Prometheus exposition
//	GET  /ws                     → websocket (cookie or ?token= optional)
//	GET  /auth/discord/login     → redirect to Discord
//	GET  /auth/discord/callback  → finish login, set cookie
//	POST /auth/logout            → clear cookie
//	GET  /api/me                 → current identity (auth required)
//	GET  /api/grid               → colors snapshot
//	GET  /api/config/{key}       → one public config value
//
// Without JWT_SECRET nobody can log in: the auth routes are not mounted and
// every socket is an anonymous observer.
func (s *Server) setupRoutes() error {
	r := s.router
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.Logger(s.logger))

	r.Get("/healthz", s.handleHealth)
	r.Handle("/metrics", s.metrics.Handler())

	canvasHandler := handler.NewCanvasHandler(s.canvas, s.logger)
	r.Route("/api", func(r chi.Router) {
		r.Get("/grid", canvasHandler.HandleGrid)
		r.Get("/config/{key}", canvasHandler.HandleConfigValue)
	})

	if !s.cfg.AuthEnabled() {
		s.logger.Warn("JWT_SECRET not set; authentication is disabled")
		r.Handle("/ws", s.sockets)
		return nil
	}

	tokens, err := auth.NewTokenService(s.cfg.JWTSecret)
	if err != nil {
		return fmt.Errorf("server: %w", err)
	}
	discord := auth.NewDiscordProvider(s.cfg.DiscordClientID, s.cfg.DiscordClientSecret, s.cfg.DiscordCallbackURL)
	if !discord.Configured() {
		s.logger.Warn("Discord credentials not set; /auth/discord/login will answer 503")
	}
	authHandler := handler.NewAuthHandler(
		discord,
		service.NewAuthService(s.db, tokens, s.logger),
		tokens,
		s.cfg.CookieSecure,
		s.logger,
	)

	r.With(auth.OptionalAuth(tokens)).Handle("/ws", s.sockets)

	r.Route("/auth", func(r chi.Router) {
		r.Get("/discord/login", authHandler.HandleDiscordLogin)
		r.Get("/discord/callback", authHandler.HandleDiscordCallback)
		r.Post("/logout", authHandler.HandleLogout)
	})
	r.With(auth.RequireAuth(tokens)).Get("/api/me", authHandler.HandleMe)

	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	w.Header().Set("Content-Type", "application/json")
	if err := s.db.Ping(ctx); err != nil {
		s.logger.Warn("health check failed", slog.String("error", err.Error()))
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte(`{"status":"unavailable"}`))
		return
	}
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler { return s.router }

// Run serves until ctx is cancelled, then shuts down.
//
// GRACEFUL SHUTDOWN:
//  1. Tell every socket the server is going away. Shutdown does not touch
//     hijacked connections, so this has to happen first.
//  2. Stop accepting HTTP connections and wait for in-flight requests.
//  3. Stop the cooldown sweeper (same context) and close the database.
func (s *Server) Run(ctx context.Context) error {
	defer s.db.Close()

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", s.cfg.Port),
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		s.logger.Info("server starting",
			slog.Int("port", s.cfg.Port),
			slog.String("db_driver", s.cfg.DBDriver),
			slog.Bool("auth", s.cfg.AuthEnabled()),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server: listening: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		return s.canvas.Timeouts.Run(gctx, s.cfg.TimeoutSweepInterval)
	})

	g.Go(func() error {
		<-gctx.Done()
		s.logger.Info("shutting down", slog.Int("open_sockets", s.sockets.Open()))
		s.sockets.CloseAll()

		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server: graceful shutdown: %w", err)
		}
		s.logger.Info("server stopped gracefully")
		return nil
	})

	return g.Wait()
}
