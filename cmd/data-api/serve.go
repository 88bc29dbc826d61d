// SPDX-License-Identifier: MIT

package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/cityops/data-api/internal/api"
	"github.com/cityops/data-api/internal/auth"
	"github.com/cityops/data-api/internal/cache"
	"github.com/cityops/data-api/internal/config"
	"github.com/cityops/data-api/internal/daemon"
	"github.com/cityops/data-api/internal/health"
	"github.com/cityops/data-api/internal/log"
	"github.com/cityops/data-api/internal/store"
	"github.com/cityops/data-api/internal/telemetry"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the API server",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe()
	},
}

func loadConfig() (config.Config, *config.Loader, error) {
	loader := config.NewLoader(configPath, version)
	cfg, err := loader.Load()
	if err != nil {
		return config.Config{}, nil, fmt.Errorf("load configuration: %w", err)
	}
	return cfg, loader, nil
}

func runServe() error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, loader, err := loadConfig()
	if err != nil {
		return err
	}

	log.Configure(log.Config{
		Level:   cfg.LogLevel,
		Service: "data-api",
		Version: version,
	})
	logger := log.WithComponent("serve")
	logger.Info().
		Str("event", "config.loaded").
		Str("env", cfg.Env).
		Str("config_path", configPath).
		Msg("configuration loaded")

	// tracing
	tracer, err := telemetry.NewProvider(ctx, cfg.Tracing, version)
	if err != nil {
		return fmt.Errorf("init tracing: %w", err)
	}

	// storage
	st, err := store.Open(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return fmt.Errorf("apply migrations: %w", err)
	}

	// auth
	var verifier auth.Verifier
	var keys *auth.KeyProvider
	if !cfg.Keycloak.Disabled {
		keys = auth.NewKeyProvider(cfg.Keycloak)
		verifier = auth.NewKeycloakVerifier(keys)
	} else {
		logger.Warn().Str("event", "auth.disabled").Msg("token verification is DISABLED")
	}

	// cache: Redis when configured, in-memory otherwise
	var responseCache cache.Cache
	var redisCache *cache.RedisCache
	var memCache *cache.MemoryCache
	if cfg.Redis.Addr != "" {
		redisCache, err = cache.NewRedisCache(cfg.Redis, log.WithComponent("cache"))
		if err != nil {
			logger.Warn().Err(err).Msg("redis unavailable, falling back to in-memory cache")
			memCache = cache.NewMemoryCache(time.Minute)
			responseCache = memCache
		} else {
			responseCache = redisCache
		}
	} else {
		memCache = cache.NewMemoryCache(time.Minute)
		responseCache = memCache
	}

	// health
	healthMgr := health.NewManager(version)
	healthMgr.RegisterChecker(health.NewPingChecker("postgres", st))
	if keys != nil {
		healthMgr.RegisterChecker(health.NewPingChecker("keycloak", keys))
	}
	if redisCache != nil {
		healthMgr.RegisterChecker(health.NewOptionalPingChecker("redis", redisCache))
	}

	server, err := api.NewServer(cfg, api.Deps{
		Occurrences:   st.Occurrences,
		AnalysisTypes: st.AnalysisTypes,
		Cache:         responseCache,
		Verifier:      verifier,
		Health:        healthMgr,
	})
	if err != nil {
		_ = st.Close()
		return fmt.Errorf("build api server: %w", err)
	}

	var metricsHandler http.Handler
	if cfg.MetricsListen != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		metricsHandler = mux
	}

	mgr, err := daemon.NewManager(cfg, server.Router(), metricsHandler)
	if err != nil {
		_ = st.Close()
		return err
	}
	mgr.RegisterShutdownHook("store", func(ctx context.Context) error {
		return st.Close()
	})
	if redisCache != nil {
		mgr.RegisterShutdownHook("redis", func(ctx context.Context) error {
			return redisCache.Close()
		})
	}
	if memCache != nil {
		mgr.RegisterShutdownHook("cache", func(ctx context.Context) error {
			memCache.Stop()
			return nil
		})
	}
	mgr.RegisterShutdownHook("tracer", tracer.Shutdown)

	// hot reload: SIGHUP and config file watch apply the runtime-safe subset
	holder := config.NewHolder(cfg, loader, configPath)
	holder.OnReload(server.ApplyConfig)
	go watchReloadSignals(ctx, holder)
	if configPath != "" {
		go func() {
			if err := holder.Watch(ctx); err != nil {
				logger.Warn().Err(err).Msg("config watcher stopped")
			}
		}()
	}

	return mgr.Start(ctx)
}

func watchReloadSignals(ctx context.Context, holder *config.Holder) {
	sighup := make(chan os.Signal, 1)
	signal.Notify(sighup, syscall.SIGHUP)
	defer signal.Stop(sighup)

	for {
		select {
		case <-ctx.Done():
			return
		case <-sighup:
			if err := holder.Reload(ctx); err != nil {
				logger := log.WithComponent("serve")
				logger.Warn().Err(err).Msg("SIGHUP reload rejected")
			}
		}
	}
}
