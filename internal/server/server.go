// Package server assembles the catalog HTTP server from its parts.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/julienschmidt/httprouter"
	"github.com/rs/cors"

	"turtle-internet/config"
	"turtle-internet/internal/auth"
	"turtle-internet/internal/game"
	"turtle-internet/internal/relay"
	"turtle-internet/internal/response"
	"turtle-internet/internal/scheduler"
	"turtle-internet/internal/storage"
)

const eventBuffer = 32

type Server struct {
	cfg       *config.Config
	games     *game.Service
	plays     *game.PlayRecorder
	events    *game.Broadcaster
	limiter   *auth.RateLimiter
	cache     *storage.MemoryCache
	scheduler *scheduler.Scheduler
	handler   http.Handler
}

func New(cfg *config.Config, deps *Dependencies) (*Server, error) {
	events := game.NewBroadcaster(eventBuffer)
	s := &Server{
		cfg:       cfg,
		games:     game.NewService(deps.Store, deps.Resolver, cfg.PlaceholderImageURL, cfg.PageSize),
		plays:     game.NewPlayRecorder(deps.Store, events),
		events:    events,
		limiter:   auth.NewRateLimiter(cfg.LoginMaxAttempts, cfg.LoginLockTime),
		cache:     deps.Cache,
		scheduler: scheduler.New(),
	}

	authService := auth.NewService(cfg.AdminEmail, cfg.AdminPasswordHash, []byte(cfg.JWTSecret), cfg.JWTExpiration)

	router := httprouter.New()
	router.NotFound = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		response.Error(w, http.StatusNotFound, "not found")
	})
	router.MethodNotAllowed = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		response.Error(w, http.StatusMethodNotAllowed, "method not allowed")
	})
	router.PanicHandler = func(w http.ResponseWriter, r *http.Request, v any) {
		slog.Error("handler panic", "method", r.Method, "path", r.URL.Path, "panic", v)
		response.Error(w, http.StatusInternalServerError, "internal server error")
	}
	router.GET("/health", func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		response.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	game.NewHandler(s.games, s.plays, events, cfg.CORSOrigins).Register(router, authService.RequireAdmin)
	auth.NewHandler(authService, s.limiter).Register(router)
	relay.NewHandler(deps.Signer, nil, cfg.StorageBucket).Register(router)

	c := cors.New(cors.Options{
		AllowedOrigins: cfg.CORSOrigins,
		AllowedMethods: []string{
			http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions,
		},
		AllowedHeaders: []string{"Content-Type", "Authorization"},
	})
	s.handler = Logger(c.Handler(router))

	if err := s.scheduleJobs(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Server) Handler() http.Handler {
	return s.handler
}

// Jobs reports the number of scheduled housekeeping jobs.
func (s *Server) Jobs() int {
	return s.scheduler.Jobs()
}

func (s *Server) scheduleJobs() error {
	if err := s.scheduler.Add("prune-login-attempts", "@every 1m", func(context.Context) error {
		s.limiter.Prune()
		return nil
	}); err != nil {
		return err
	}

	if s.cache != nil {
		if err := s.scheduler.Add("sweep-url-cache", "@every 5m", func(context.Context) error {
			if n := s.cache.Sweep(); n > 0 {
				slog.Debug("swept signed url cache", "removed", n)
			}
			return nil
		}); err != nil {
			return err
		}
	}

	return s.scheduler.Add("catalog-stats", "@hourly", func(ctx context.Context) error {
		stats, err := s.games.Stats(ctx)
		if err != nil {
			return fmt.Errorf("collect stats: %w", err)
		}
		slog.Info("catalog stats",
			"total_plays", stats.TotalPlays,
			"categories", len(stats.Categories),
			"event_subscribers", s.events.Subscribers(),
		)
		return nil
	})
}

// Run serves until ctx is cancelled, then shuts down gracefully and waits
// for pending play increments.
func (s *Server) Run(ctx context.Context) error {
	baseCtx, cancelBase := context.WithCancel(context.Background())
	defer cancelBase()

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", s.cfg.Port),
		Handler:           s.handler,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       time.Minute,
		BaseContext:       func(net.Listener) context.Context { return baseCtx },
	}

	s.scheduler.Start()
	defer s.scheduler.Stop()

	errCh := make(chan error, 1)
	go func() {
		slog.Info("starting server", "addr", srv.Addr, "environment", s.cfg.Environment)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	slog.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer cancel()

	err := srv.Shutdown(shutdownCtx)
	// Hijacked websocket connections and stragglers end here.
	cancelBase()
	s.plays.Wait()
	if err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}
	slog.Info("server stopped")
	return nil
}
