// Package server sets up the HTTP server, router, and all route definitions.
//
// SERVER ARCHITECTURE:
// This package is the "wiring" layer. It connects handlers, middleware, and routes,
// and it decides:
// - Which URL patterns map to which handler functions
// - What middleware runs on which routes
// - How the server and its background workers start and stop
//
// WHY SEPARATE FROM main.go?
// Keeping server setup in its own package makes it testable (httptest can
// serve Handler() directly) and keeps cmd/garden down to flag parsing.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/sakif/garden-companion/internal/auth"
	"github.com/sakif/garden-companion/internal/handler"
	"github.com/sakif/garden-companion/internal/middleware"
)

// ShutdownTimeout is how long in-flight requests get after SIGINT/SIGTERM.
const ShutdownTimeout = 30 * time.Second

// Server represents the HTTP server and all its dependencies.
//
// RESOURCE MANAGEMENT:
// The Server does not own the App. Whoever called NewApp closes it after
// Run returns, which keeps the database open until the last request is done.
type Server struct {
	router *chi.Mux
	app    *App
	logger *slog.Logger

	// draining is cancelled when shutdown begins. Long-lived responses
	// (the garden stream) end on it; ordinary requests run to completion.
	draining     context.Context
	stopDraining context.CancelFunc
}

// New creates a Server on top of an already built App.
func New(app *App) *Server {
	draining, stop := context.WithCancel(context.Background())
	s := &Server{
		router:       chi.NewRouter(),
		app:          app,
		logger:       app.Logger,
		draining:     draining,
		stopDraining: stop,
	}
	s.setupRoutes()
	return s
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler { return s.router }

// setupRoutes configures all middleware and route handlers.
//
// ROUTE STRUCTURE:
// GET    /healthz                    → liveness + database ping
// GET    /metrics                    → Prometheus scrape endpoint
// POST   /auth/signup                → create account
// POST   /auth/signin                → email/password sign-in
// POST   /auth/signout               → sign out          [auth]
// GET    /auth/github/login|callback → GitHub OAuth      (if configured)
// GET    /api/me                     → current user      [auth]
// GET    /api/weather                → current conditions
// GET    /api/plants                 → catalog search
// GET    /api/plants/{id}            → catalog record
// GET    /api/garden                 → garden            [auth]
// GET    /api/garden/stream          → garden as SSE     [auth]
// GET    /api/garden/tasks           → care tasks        [auth]
// POST   /api/garden                 → add plant         [auth]
// PATCH  /api/garden/{id}            → edit details      [auth]
// POST   /api/garden/{id}/water      → record watering   [auth]
// POST   /api/garden/{id}/fertilize  → record fertilizing [auth]
// DELETE /api/garden/{id}            → remove plant      [auth]
//
// MIDDLEWARE ORDER MATTERS:
// Middleware executes in the order it's added:
// 1. RequestID: assigns a unique ID to each request (for tracing)
// 2. RealIP: extracts the real client IP from proxy headers
// 3. Logger: logs each request with timing info
// 4. Metrics: per-route latency histogram
// 5. Recoverer: catches panics and returns 500 instead of crashing
func (s *Server) setupRoutes() {
	s.router.Use(chimiddleware.RequestID)
	s.router.Use(chimiddleware.RealIP)
	s.router.Use(middleware.Logger(s.logger))
	s.router.Use(middleware.NewHTTPMetrics(s.app.Registry).Middleware)
	s.router.Use(chimiddleware.Recoverer)

	s.router.Get("/healthz", s.handleHealth)
	s.router.Handle("/metrics", promhttp.HandlerFor(s.app.Registry, promhttp.HandlerOpts{}))

	catalog := handler.NewCatalogHandler(s.app.Weather, s.app.Plants)

	if s.app.Tokens == nil {
		// Without JWT_SECRET there is no identity, so only the public,
		// cache-backed routes exist.
		s.logger.Warn("JWT_SECRET not set: authentication and garden routes are disabled")
		s.router.Route("/api", func(r chi.Router) {
			r.Get("/weather", catalog.HandleWeather)
			r.Get("/plants", catalog.HandleSearch)
			r.Get("/plants/{id}", catalog.HandlePlantDetail)
		})
		return
	}

	// A nil *auth.GitHubProvider stored in the interface would not compare
	// equal to nil, so pass an untyped nil when GitHub is off.
	var github handler.GitHubAuthenticator
	if s.app.GitHub != nil {
		github = s.app.GitHub
	}
	authHandler := handler.NewAuthHandler(s.app.Auth, github, s.app.Tokens.TTL(), s.logger)
	gardenHandler := handler.NewGardenHandler(s.app.Garden, s.logger)
	requireAuth := auth.RequireAuth(s.app.Tokens)

	s.router.Route("/auth", func(r chi.Router) {
		r.Post("/signup", authHandler.HandleSignUp)
		r.Post("/signin", authHandler.HandleSignIn)
		r.With(requireAuth).Post("/signout", authHandler.HandleSignOut)
		if github != nil {
			r.Get("/github/login", authHandler.HandleGitHubLogin)
			r.Get("/github/callback", authHandler.HandleGitHubCallback)
		}
	})

	s.router.Route("/api", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(auth.OptionalAuth(s.app.Tokens))
			r.Get("/weather", catalog.HandleWeather)
			r.Get("/plants", catalog.HandleSearch)
			r.Get("/plants/{id}", catalog.HandlePlantDetail)
		})

		r.Group(func(r chi.Router) {
			r.Use(requireAuth)
			r.Get("/me", authHandler.HandleMe)

			r.Get("/garden", gardenHandler.HandleList)
			r.Post("/garden", gardenHandler.HandleAdd)
			r.With(s.endOnShutdown).Get("/garden/stream", gardenHandler.HandleStream)
			r.Get("/garden/tasks", gardenHandler.HandleTasks)
			r.Patch("/garden/{id}", gardenHandler.HandleUpdate)
			r.Delete("/garden/{id}", gardenHandler.HandleDelete)
			r.Post("/garden/{id}/water", gardenHandler.HandleWater)
			r.Post("/garden/{id}/fertilize", gardenHandler.HandleFertilize)
		})
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	status, body := http.StatusOK, map[string]string{"status": "ok"}
	if err := s.app.DB.Ping(ctx); err != nil {
		s.logger.Error("health check: database ping failed", slog.String("error", err.Error()))
		status, body = http.StatusServiceUnavailable, map[string]string{"status": "unavailable"}
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

// endOnShutdown cancels the request context once the server starts draining.
func (s *Server) endOnShutdown(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithCancel(r.Context())
		defer cancel()
		stop := context.AfterFunc(s.draining, cancel)
		defer stop()

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// Run serves HTTP on addr and runs the session tracker until ctx is done
// (cmd/garden cancels it on SIGINT/SIGTERM), then shuts down gracefully.
//
// GRACEFUL SHUTDOWN:
// 1. Stop accepting new HTTP connections
// 2. Wait for in-flight requests to finish (ShutdownTimeout)
// 3. Stop the background workers
//
// Shutdown does not cancel request contexts, so open garden streams would
// hold it until the timeout. RegisterOnShutdown ends them first.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	srv.RegisterOnShutdown(s.stopDraining)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		s.logger.Info("server starting",
			slog.String("addr", addr),
			slog.String("database", s.app.Config.DBPath),
			slog.Bool("auth", s.app.Tokens != nil),
			slog.Bool("github", s.app.GitHub != nil),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	if s.app.Sessions != nil {
		g.Go(func() error {
			return s.app.Sessions.Run(gctx, nil)
		})
	}

	g.Go(func() error {
		<-gctx.Done()
		s.logger.Info("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), ShutdownTimeout)
		defer cancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
		s.logger.Info("server stopped gracefully")
		return nil
	})

	return g.Wait()
}
