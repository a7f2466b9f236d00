// Package main provides the replay server executable with HTTP API and
// background drain loop.
package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/coregx/replay"
	adapter "github.com/coregx/replay/adapters/relica"
	"github.com/coregx/replay/cmd/replay-server/internal/api"
	"github.com/coregx/replay/cmd/replay-server/internal/config"
	"github.com/coregx/replay/cmd/replay-server/internal/metrics"
)

// statsPollInterval is how often the backlog gauges are refreshed from the store.
const statsPollInterval = 15 * time.Second

// ZapLogger adapts a zap logger to the replay.Logger interface.
type ZapLogger struct {
	sugar *zap.SugaredLogger
}

// NewZapLogger creates a ZapLogger from a zap core logger.
func NewZapLogger(l *zap.Logger) *ZapLogger {
	return &ZapLogger{sugar: l.Sugar()}
}

func (l *ZapLogger) Debugf(format string, args ...interface{}) { l.sugar.Debugf(format, args...) }
func (l *ZapLogger) Infof(format string, args ...interface{})  { l.sugar.Infof(format, args...) }
func (l *ZapLogger) Warnf(format string, args ...interface{})  { l.sugar.Warnf(format, args...) }
func (l *ZapLogger) Errorf(format string, args ...interface{}) { l.sugar.Errorf(format, args...) }
func (l *ZapLogger) Info(message string)                       { l.sugar.Info(message) }

func main() {
	// Load configuration from environment
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	zapLogger, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer func() { _ = zapLogger.Sync() }()
	logger := NewZapLogger(zapLogger)

	logger.Infof("Starting Replay Server v0.1.0")
	logger.Infof("Server: %s:%d", cfg.Server.Host, cfg.Server.Port)
	logger.Infof("Database: %s", cfg.Database.Driver)
	logger.Infof("Drain batch size: %d, interval: %ds", cfg.Replay.BatchSize, cfg.Replay.IntervalSeconds)

	// Connect to database
	db, err := sql.Open(cfg.Database.Driver, cfg.Database.GetDSN())
	if err != nil {
		logger.Errorf("Failed to open database: %v", err)
		os.Exit(1)
	}
	defer func() {
		if closeErr := db.Close(); closeErr != nil {
			logger.Errorf("Failed to close database: %v", closeErr)
		}
	}()

	if err := db.Ping(); err != nil {
		logger.Errorf("Failed to connect to database: %v", err)
		os.Exit(1)
	}
	logger.Info("Database connection established")

	// Apply embedded migrations against the configured table prefix
	migrate := func() error {
		if cfg.Database.Prefix != "" {
			return replay.ApplyMigrationsWithPrefix(db, cfg.Database.Prefix)
		}
		return replay.ApplyMigrations(db)
	}
	if err := migrate(); err != nil {
		logger.Errorf("Failed to apply migrations: %v", err)
		os.Exit(1)
	}
	logger.Info("Migrations applied")

	// Create message store using the Relica adapter
	var store *adapter.MessageStore
	if cfg.Database.Prefix != "" {
		store = adapter.NewMessageStoreWithPrefix(db, cfg.Database.Driver, cfg.Database.Prefix)
	} else {
		store = adapter.NewMessageStore(db, cfg.Database.Driver)
	}
	logger.Info("Message store initialized (Relica adapter)")

	// Prometheus registry and collectors
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(registry)

	// Notification chain: metrics always, logging when enabled
	var notifications replay.NotificationService = &replay.NoOpNotificationService{}
	if cfg.Replay.EnableNotifications {
		notifications = replay.NewLoggingNotificationService(logger)
	}
	notifications = m.Notifier(notifications)

	// Create replay manager
	manager, err := replay.NewReplayManager(
		replay.WithStore(store),
		replay.WithLogger(logger),
		replay.WithNotifications(notifications),
		replay.WithBatchSize(cfg.Replay.BatchSize),
		replay.WithMaxConcurrent(cfg.Replay.MaxConcurrent),
		replay.WithInterval(time.Duration(cfg.Replay.IntervalSeconds)*time.Second),
		replay.WithRetention(time.Duration(cfg.Replay.RetentionHours)*time.Hour),
		replay.WithDefaultMaxRetries(cfg.Replay.MaxRetries),
	)
	if err != nil {
		logger.Errorf("Failed to create replay manager: %v", err)
		os.Exit(1)
	}
	logger.Info("Replay manager created")

	// Start background drain loop
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	manager.Start(ctx)

	// Refresh backlog gauges periodically
	go func() {
		ticker := time.NewTicker(statsPollInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				stats, err := manager.Stats(ctx)
				if err != nil {
					logger.Warnf("Failed to refresh statistics: %v", err)
					continue
				}
				m.ObserveStats(stats)
			}
		}
	}()

	// Create API handler
	handler := api.NewHandler(manager, logger, m)

	// Setup HTTP routes
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/messages", handler.HandlePersist)
	mux.HandleFunc("/api/v1/messages/", handler.HandleMessage) // Note trailing slash for :id
	mux.HandleFunc("/api/v1/stats", handler.HandleStats)
	mux.HandleFunc("/api/v1/health", handler.HandleHealth)
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))

	// Create HTTP server
	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	server := &http.Server{
		Addr:         addr,
		Handler:      loggingMiddleware(mux, logger),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in background
	go func() {
		logger.Infof("HTTP server listening on %s", addr)
		logger.Info("API Endpoints:")
		logger.Info("   POST   /api/v1/messages")
		logger.Info("   GET    /api/v1/messages/:id")
		logger.Info("   POST   /api/v1/messages/:id/replay")
		logger.Info("   POST   /api/v1/messages/:id/requeue")
		logger.Info("   GET    /api/v1/stats")
		logger.Info("   GET    /api/v1/health")
		logger.Info("   GET    /metrics")
		logger.Info("Replay Server is ready")

		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Errorf("Failed to start server: %v", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal for graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")

	// Graceful shutdown with timeout
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Errorf("Server forced to shutdown: %v", err)
	}

	manager.Stop()
	cancel()
	logger.Info("Server stopped gracefully")
}

// loggingMiddleware logs HTTP requests.
func loggingMiddleware(next http.Handler, logger replay.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		logger.Infof("%s %s", r.Method, r.URL.Path)
		next.ServeHTTP(w, r)
		logger.Debugf("%s %s - %v", r.Method, r.URL.Path, time.Since(start))
	})
}
