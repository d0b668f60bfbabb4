// Package server sets up the HTTP server, router, and all route definitions.
//
// This package is the "wiring" layer: it connects the store, services,
// handlers and middleware, and owns graceful shutdown. main.go only reads
// configuration and builds the optional out-of-process dependencies.
//
// DEPENDENCY INJECTION FLOW:
//
//	config.Config ──► sqlite.DB ──► IdentityDB / RecipeDB
//	              ──► TokenService (counted) + PasswordService
//	              ──► AuthService / RecipeService
//	              ──► AuthHandler / RecipeHandler / DetectHandler
//
// This is the "composition root" pattern: every dependency is wired in one
// place (New/setupRoutes) rather than scattered across the codebase.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/sakif/foodlens/internal/auth"
	"github.com/sakif/foodlens/internal/config"
	"github.com/sakif/foodlens/internal/handler"
	"github.com/sakif/foodlens/internal/metrics"
	"github.com/sakif/foodlens/internal/middleware"
	sqliteRepo "github.com/sakif/foodlens/internal/repository/sqlite"
	"github.com/sakif/foodlens/internal/service"
)

// Deps are the optional dependencies built outside the server because they
// talk to external systems at start-up. Nil fields disable their routes.
type Deps struct {
	// Detector serves POST /predict.
	Detector handler.Detector
	// Google verifies ID tokens on /google-auth and runs the browser flow.
	Google *auth.GoogleProvider
}

// Server represents the HTTP server and all its dependencies.
//
// RESOURCE MANAGEMENT:
// The Server owns the database connection. Start closes it after the
// HTTP server has drained.
type Server struct {
	router   *chi.Mux
	config   config.Config
	logger   *slog.Logger
	db       *sqliteRepo.DB
	registry *prometheus.Registry
	deps     Deps
}

// New opens the database and builds the router.
//
// IMPORT ALIAS:
// repository/sqlite is imported as `sqliteRepo` to keep it apart from the
// modernc.org/sqlite driver package.
func New(cfg config.Config, logger *slog.Logger, deps Deps) (*Server, error) {
	db, err := sqliteRepo.New(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	s := &Server{
		router:   chi.NewRouter(),
		config:   cfg,
		logger:   logger,
		db:       db,
		registry: prometheus.NewRegistry(),
		deps:     deps,
	}

	if err := s.setupRoutes(); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting up routes: %w", err)
	}

	return s, nil
}

// Handler returns the root HTTP handler. Tests drive it with httptest.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Close releases the database. Start calls it on shutdown.
func (s *Server) Close() error {
	return s.db.Close()
}

// federatedVerifier picks how /google-auth assertions are checked.
//
//	GOOGLE_CLIENT_ID set              → ID token verified against Google
//	ALLOW_UNVERIFIED_FEDERATED=true   → email taken from the request as-is
//	otherwise                         → every assertion rejected
func (s *Server) federatedVerifier() auth.FederatedVerifier {
	switch {
	case s.deps.Google != nil:
		return s.deps.Google
	case s.config.AllowUnverifiedFederated:
		s.logger.Warn("federated login trusts client-supplied emails; do not enable in production")
		return auth.TrustedClaimsVerifier{}
	default:
		return auth.DisabledVerifier{}
	}
}

// setupRoutes configures all middleware and route handlers.
//
// ROUTE STRUCTURE:
// POST   /register             → create a password identity
// POST   /login                → password login, returns a token
// POST   /google-auth          → federated login, returns a token
// GET    /auth/google/login    → browser redirect to Google
// GET    /auth/google/callback → finish the browser flow
// GET    /me                   → current identity        [bearer]
// POST   /save_recipe          → save a recipe           [bearer]
// GET    /my_recipes           → list own recipes        [bearer]
// POST   /update_recipe        → patch a recipe          [bearer]
// DELETE /delete_recipe        → delete a recipe         [bearer]
// POST   /predict              → run the food detector   (when enabled)
// GET    /healthz, /metrics    → operations
//
// MIDDLEWARE ORDER MATTERS:
// RequestID first so every later log line can carry it, Recoverer last so
// the logger and metrics still see the 500 it writes.
func (s *Server) setupRoutes() error {
	collector := metrics.NewCollector(s.registry)
	s.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	s.router.Use(chimiddleware.RequestID)
	s.router.Use(chimiddleware.RealIP)
	s.router.Use(middleware.Logger(s.logger))
	s.router.Use(middleware.Metrics(collector))
	s.router.Use(middleware.CORS(s.config.CORSAllowedOrigin))
	s.router.Use(chimiddleware.Recoverer)

	// === Services ===
	signer, err := auth.NewHMACSigner(s.config.JWTSecret)
	if err != nil {
		return fmt.Errorf("creating token signer: %w", err)
	}
	tokens := metrics.NewCountingTokens(auth.NewTokenService(signer,
		auth.WithIssuer(s.config.JWTIssuer),
		auth.WithDefaultTTL(s.config.TokenTTL),
	), collector)

	authService := service.NewAuthService(
		s.db.Identities(),
		tokens,
		auth.NewPasswordService(),
		s.federatedVerifier(),
		s.logger,
	)
	recipeService := service.NewRecipeService(s.db.Recipes(), tokens, s.logger)

	// === Handlers ===
	// A nil *GoogleProvider must become a nil interface, not a typed nil.
	var google handler.GoogleFlow
	if s.deps.Google != nil {
		google = s.deps.Google
	}
	authHandler := handler.NewAuthHandler(authService, google, collector, s.logger)
	recipeHandler := handler.NewRecipeHandler(recipeService, collector, s.logger)
	healthHandler := handler.NewHealthHandler(s.db, s.logger)

	// === Public routes ===
	s.router.Get("/healthz", healthHandler.HandleHealth)
	s.router.Handle("/metrics", metrics.Handler(s.registry))

	s.router.Post("/register", authHandler.HandleRegister)
	s.router.Post("/login", authHandler.HandleLogin)
	s.router.Post("/google-auth", authHandler.HandleFederated)
	s.router.Get("/auth/google/login", authHandler.HandleGoogleLogin)
	s.router.Get("/auth/google/callback", authHandler.HandleGoogleCallback)

	if s.deps.Detector != nil {
		detectHandler := handler.NewDetectHandler(s.deps.Detector, collector, s.logger)
		s.router.Post("/predict", detectHandler.HandlePredict)
	} else {
		s.logger.Info("detector disabled, /predict is not mounted")
	}

	// === Bearer routes ===
	// RequireBearer only rejects a missing header. The services verify the
	// token itself.
	s.router.Group(func(r chi.Router) {
		r.Use(auth.RequireBearer)

		r.Get("/me", authHandler.HandleMe)
		r.Post("/save_recipe", recipeHandler.HandleSave)
		r.Get("/my_recipes", recipeHandler.HandleList)
		r.Post("/update_recipe", recipeHandler.HandleUpdate)
		r.Delete("/delete_recipe", recipeHandler.HandleDelete)
	})

	return nil
}

// Start starts the HTTP server and blocks until SIGINT/SIGTERM.
//
// GRACEFUL SHUTDOWN:
// 1. Stop accepting new HTTP connections
// 2. Wait for in-flight requests to finish (30s timeout)
// 3. Close the database connection (flushes WAL, releases file lock)
func (s *Server) Start() error {
	defer s.Close()

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", s.config.Port),
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       30 * time.Second,
		// Detection waits on the model container.
		WriteTimeout: s.config.DetectorTimeout + 30*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	serverErrors := make(chan error, 1)

	go func() {
		s.logger.Info("server starting",
			slog.Int("port", s.config.Port),
			slog.String("env", s.config.Env),
			slog.String("database", s.config.DBPath),
			slog.Bool("detector", s.deps.Detector != nil),
			slog.Bool("googleVerified", s.deps.Google != nil),
		)
		serverErrors <- srv.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}

	case sig := <-quit:
		s.logger.Info("shutdown signal received", slog.String("signal", sig.String()))

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := srv.Shutdown(ctx); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
		s.logger.Info("server stopped gracefully")
	}

	return nil
}
