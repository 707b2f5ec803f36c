package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/kvsankar/sattosat/data"
	"github.com/kvsankar/sattosat/internal/api"
	"github.com/kvsankar/sattosat/internal/cache"
	"github.com/kvsankar/sattosat/internal/config"
	"github.com/kvsankar/sattosat/internal/conjunction"
	"github.com/kvsankar/sattosat/internal/health"
	"github.com/kvsankar/sattosat/internal/propagation"
	"github.com/kvsankar/sattosat/internal/stream"
	"github.com/kvsankar/sattosat/internal/tle"
)

func main() {
	level := new(slog.LevelVar)
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: level,
	}))

	cfg, err := config.Load(logger)
	if err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}
	level.Set(cfg.LogLevel)

	factory, err := propagation.NewFactory(cfg.Backend)
	if err != nil {
		logger.Error("invalid propagation backend", "error", err)
		os.Exit(1)
	}
	engine := conjunction.NewEngine(factory, logger)

	var sources []tle.Source
	if cfg.Catalog.Bundled {
		sources = append(sources, tle.NewFSSource(data.Seeds(), logger))
	}
	if cfg.Catalog.SeedDir != "" {
		sources = append(sources, tle.NewDirSource(cfg.Catalog.SeedDir, logger))
	}
	catalog := tle.NewCatalog(logger, sources...)

	profiles, err := tle.LoadProfiles(data.Files, "profiles.json")
	if err != nil {
		logger.Error("loading bundled profiles", "error", err)
		os.Exit(1)
	}

	readiness := &health.Readiness{}
	deps := api.Deps{
		Catalog:   catalog,
		Engine:    engine,
		Readiness: readiness,
		Profiles:  profiles,
	}

	var resultCache *cache.ResultCache
	if cfg.CacheEnabled {
		resultCache = cache.New(cfg.Cache, logger)
		deps.Cache = resultCache
	}
	if cfg.StreamEnabled {
		deps.Stream = stream.NewHandler(catalog, engine, cfg.Stream, logger)
	}

	srv := api.NewServer(cfg.API, deps, logger)

	// Graceful shutdown on SIGINT/SIGTERM.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if resultCache != nil {
		go resultCache.Start(ctx)
	}

	// Seed the profile satellites before reporting ready so the first
	// search does not pay for parsing.
	go func() {
		for _, p := range profiles {
			for _, s := range p.Satellites {
				if _, err := catalog.Seed(s.NORADID); err != nil {
					logger.Warn("seeding profile satellite", "profile", p.Name, "norad_id", s.NORADID, "error", err)
				}
			}
		}
		readiness.SetReady(true)
		logger.Info("catalog ready", "satellites", len(catalog.IDs()))
	}()

	go func() {
		logger.Info("starting server",
			"addr", cfg.API.Addr,
			"auth_enabled", cfg.API.Auth.Enabled,
			"backend", cfg.Backend,
			"cache_enabled", cfg.CacheEnabled,
			"stream_enabled", cfg.StreamEnabled,
			"config_file", cfg.File,
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server listen error", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down server...")
	readiness.SetReady(false)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.HTTPServer().Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", "error", err)
		os.Exit(1)
	}

	logger.Info("server stopped")
}
