// Package bootstrap wires the argus components into a runnable application:
// logger, configuration, storage, cache, pipeline, and the admin HTTP server.
package bootstrap

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"argus/analysis"
	"argus/config"
	"argus/core"
	"argus/correlate"
	"argus/ingest"
	"argus/ml"
	"argus/notify"
	"argus/respond"
	"argus/service"
	"argus/storage"
	"argus/threat"
)

const shutdownTimeout = 10 * time.Second

// App represents the argus application with all its components.
type App struct {
	Config *config.Config
	Logger *zap.Logger
	Sugar  *zap.SugaredLogger

	// Storage
	SQLite *storage.SQLite
	Cache  *core.RedisCache

	// Components
	Correlator *correlate.Engine
	Intel      *threat.Index
	Detector   ml.AnomalyDetector
	Analyzer   *analysis.Engine
	Notifier   *notify.Notifier
	Executor   *respond.Executor
	Incidents  *respond.IncidentManager
	Pipeline   *service.Pipeline

	httpServer *http.Server
}

// NewApp creates a new application instance and initializes all components.
func NewApp(ctx context.Context) (*App, error) {
	app := &App{}

	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: Failed to load config: %v\n", err)
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	app.Config = cfg

	logger, sugar, err := InitLogger(cfg.Logging.Level)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	app.Logger = logger
	app.Sugar = sugar

	sugar.Info("Argus analysis and response core starting...")

	sqlite, err := storage.NewSQLite(cfg.Database.Path, sugar)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize sqlite: %w", err)
	}
	app.SQLite = sqlite

	if cfg.Redis.Enabled {
		cache := core.NewRedisCache(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, cfg.Redis.PoolSize, sugar)
		if err := cache.Ping(ctx); err != nil {
			sugar.Warnf("Redis unavailable, continuing without cache: %v", err)
			_ = cache.Close()
		} else {
			app.Cache = cache
			sugar.Infow("Redis cache connected", "addr", cfg.Redis.Addr)
		}
	} else {
		sugar.Info("Redis cache disabled by configuration")
	}

	patterns, err := correlate.LoadPatterns(cfg.Correlation.PatternFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load correlation patterns: %w", err)
	}
	sugar.Infow("Correlation patterns loaded", "count", len(patterns))

	app.Correlator = correlate.NewEngine(patterns, app.Cache, sugar)
	app.Intel = threat.NewIndex(sqlite, app.Cache, sugar)
	app.Detector = ml.NewIQRDetector(nil)
	app.Analyzer = analysis.NewEngine(app.Detector, threat.NewEnricher(app.Intel, sugar), sugar)
	app.Notifier = notify.NewNotifier([]notify.Channel{notify.NewLogChannel(sugar)}, cfg.Notify.RatePerSecond, sugar)

	firewall := respond.NewCacheFirewall(app.Cache, sugar)
	app.Executor = respond.NewExecutor(sqlite, app.Cache, firewall, app.Notifier, sugar)
	app.Incidents = respond.NewIncidentManager(sqlite, app.Cache, sugar)

	app.Pipeline = service.NewPipeline(sqlite, ingest.NewIngestor(), app.Correlator,
		app.Analyzer, app.Executor, app.Incidents, cfg.Correlation.Window, sugar)

	return app, nil
}

// Start starts the admin HTTP server.
func (a *App) Start(ctx context.Context) error {
	a.httpServer = &http.Server{
		Addr:         a.Config.Server.Addr,
		Handler:      a.buildRouter(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	go func() {
		a.Sugar.Infow("HTTP server listening", "addr", a.Config.Server.Addr)
		if err := a.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			a.Sugar.Errorf("HTTP server failed: %v", err)
		}
	}()

	return nil
}

// WaitForShutdown blocks until a shutdown signal is received.
func (a *App) WaitForShutdown() {
	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)
	<-c
}

// Shutdown gracefully shuts down all components.
func (a *App) Shutdown() {
	a.Sugar.Info("Shutting down...")

	if a.httpServer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := a.httpServer.Shutdown(ctx); err != nil {
			a.Sugar.Errorf("HTTP server shutdown error: %v", err)
		}
	}

	if a.Cache != nil {
		if err := a.Cache.Close(); err != nil {
			a.Sugar.Errorf("Redis close error: %v", err)
		}
	}

	if a.SQLite != nil {
		if err := a.SQLite.Close(); err != nil {
			a.Sugar.Errorf("SQLite close error: %v", err)
		}
	}

	a.Sugar.Info("Shutdown complete")
	_ = a.Logger.Sync()
}
