// Package main is the entry point for the FoodLens API server.
//
// The main package is kept minimal. Its job is to:
// 1. Read configuration (.env file and environment variables)
// 2. Create the logger and the dependencies that reach outside the process
//    (Docker for the detector, Google's discovery document for sign-in)
// 3. Start the server
//
// All actual logic lives in internal/.
package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/sakif/foodlens/internal/auth"
	"github.com/sakif/foodlens/internal/config"
	"github.com/sakif/foodlens/internal/detector"
	"github.com/sakif/foodlens/internal/detector/docker"
	"github.com/sakif/foodlens/internal/server"
)

func main() {
	// === 1. READ CONFIGURATION ===
	// A .env file is a development convenience; in production the variables
	// come from the environment and the file does not exist.
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		slog.Error("failed to read .env file", slog.String("error", err.Error()))
		os.Exit(1)
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("invalid configuration", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// === 2. SET UP LOGGING ===
	logger := newLogger(cfg)
	slog.SetDefault(logger)

	// === 3. DATABASE DIRECTORY ===
	if cfg.DBPath != ":memory:" {
		dbDir := filepath.Dir(cfg.DBPath)
		if err := os.MkdirAll(dbDir, 0o755); err != nil {
			logger.Error("failed to create database directory",
				slog.String("dir", dbDir),
				slog.String("error", err.Error()),
			)
			os.Exit(1)
		}
	}

	var deps server.Deps
	releaseDetector := func() {}

	// === 4. GOOGLE SIGN-IN ===
	// Verified sign-in needs Google's discovery document. Without a client
	// ID the server still starts and /google-auth follows
	// ALLOW_UNVERIFIED_FEDERATED.
	if cfg.GoogleEnabled() {
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		google, err := auth.NewGoogleProvider(ctx, cfg.GoogleClientID, cfg.GoogleClientSecret, cfg.GoogleCallbackURL)
		cancel()
		if err != nil {
			logger.Error("failed to initialise Google sign-in", slog.String("error", err.Error()))
			os.Exit(1)
		}
		deps.Google = google
	}

	// === 5. DETECTOR ===
	// The detector is optional: if Docker is unreachable the API still
	// serves auth and recipes, and /predict is not mounted.
	if cfg.DetectorEnabled {
		dcfg := docker.DefaultConfig()
		dcfg.Image = cfg.DetectorImage
		dcfg.Command = cfg.DetectorCommand
		dcfg.PoolSize = cfg.DetectorPoolSize
		dcfg.Timeout = cfg.DetectorTimeout

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
		model, err := docker.New(ctx, dcfg, logger)
		cancel()
		if err != nil {
			logger.Warn("detector unavailable, /predict will not be served",
				slog.String("error", err.Error()),
			)
		} else {
			deps.Detector = detector.New(model, logger)
			releaseDetector = func() {
				if err := model.Close(); err != nil {
					logger.Warn("failed to stop detector containers", slog.String("error", err.Error()))
				}
			}
		}
	}

	// === 6. CREATE AND START THE SERVER ===
	// os.Exit skips deferred calls, so the detector is released inside
	// serve before main decides the exit code.
	if err := serve(cfg, logger, deps, releaseDetector); err != nil {
		logger.Error("server error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

// serve creates the server and blocks in Start until it shuts down (Ctrl+C
// or SIGTERM). release runs once serve is done, including when the server
// could not be created.
func serve(cfg config.Config, logger *slog.Logger, deps server.Deps, release func()) error {
	defer release()

	srv, err := server.New(cfg, logger, deps)
	if err != nil {
		return fmt.Errorf("creating server: %w", err)
	}
	return srv.Start()
}

// newLogger builds a text logger for development and a JSON logger
// everywhere else. LOG_LEVEL overrides the default level (debug in dev,
// info otherwise).
func newLogger(cfg config.Config) *slog.Logger {
	level := slog.LevelInfo
	if cfg.Env == "dev" {
		level = slog.LevelDebug
	}
	if cfg.LogLevel != "" {
		var l slog.Level
		if err := l.UnmarshalText([]byte(strings.ToUpper(cfg.LogLevel))); err == nil {
			level = l
		}
	}

	opts := &slog.HandlerOptions{Level: level}
	if cfg.Env == "dev" {
		return slog.New(slog.NewTextHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, opts))
}
