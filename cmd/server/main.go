package main

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/sdko-org/beacon-analytics/internal/archive"
	"github.com/sdko-org/beacon-analytics/internal/auth"
	"github.com/sdko-org/beacon-analytics/internal/config"
	"github.com/sdko-org/beacon-analytics/internal/database"
	"github.com/sdko-org/beacon-analytics/internal/handlers"
	httpserver "github.com/sdko-org/beacon-analytics/internal/http"
	"github.com/sdko-org/beacon-analytics/internal/ingest"
	"github.com/sdko-org/beacon-analytics/internal/ratelimit"
	"github.com/sdko-org/beacon-analytics/internal/stats"
	"github.com/sdko-org/beacon-analytics/internal/storage"
	"github.com/sdko-org/beacon-analytics/internal/store"
	"github.com/sdko-org/beacon-analytics/internal/visitor"
	"github.com/sirupsen/logrus"
)

const shutdownTimeout = 10 * time.Second

func newLogger(cfg *config.Config) *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(os.Stdout)

	if cfg.LogFormat == "json" {
		logger.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}

	level, err := logrus.ParseLevel(cfg.LogLevel)
	if err != nil {
		logger.WithField("level", cfg.LogLevel).Warn("Unknown log level, using info")
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)
	return logger
}

func main() {
	cfg := config.Load()
	logger := newLogger(cfg)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	code := run(ctx, cfg, logger)
	stop()
	os.Exit(code)
}

// run serves until ctx is done or a listener fails. Background workers are
// joined before the database closes.
func run(ctx context.Context, cfg *config.Config, logger *logrus.Logger) int {
	for _, name := range cfg.InsecureDefaults() {
		logger.WithField("variable", name).Warn("Running with the shipped default; set it before exposing the service")
	}

	db, err := database.Open(logger, cfg)
	if err != nil {
		logger.WithError(err).Error("Failed to open database")
		return 1
	}
	defer db.Close()

	var workers sync.WaitGroup
	defer workers.Wait()
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	st := store.New(logger, db)
	limiter := ratelimit.New(logger)
	workers.Add(1)
	go func() {
		defer workers.Done()
		limiter.Start(ctx, cfg.RateLimitSweepInterval)
	}()

	ingestSvc := ingest.NewService(logger, st, limiter, visitor.NewHasher(cfg.Salt))
	statsSvc := stats.NewService(st)
	gate := auth.NewGate(logger, cfg.AdminUser, cfg.AdminPassword, cfg.AdminPasswordHash)

	handler := handlers.NewHandler(logger, ingestSvc, statsSvc, st, cfg.DashboardPath)
	router := handlers.NewRouter(logger, handler, gate, cfg.AllowedOrigins)

	if cfg.ExportEnabled() {
		s3Storage, err := storage.NewS3Storage(storage.S3Config{
			Bucket:    cfg.ExportBucket,
			Region:    cfg.ExportRegion,
			Endpoint:  cfg.ExportEndpoint,
			AccessKey: cfg.ExportAccessKey,
			SecretKey: cfg.ExportSecretKey,
		})
		if err != nil {
			logger.WithError(err).Error("Failed to configure archive storage")
			return 1
		}
		exporter := archive.NewExporter(logger, st, s3Storage, cfg.ExportInterval)
		workers.Add(1)
		go func() {
			defer workers.Done()
			exporter.Start(ctx)
		}()
	}

	servers, err := httpserver.New(logger, cfg.ListenAddr, cfg.TLSAddr, router)
	if err != nil {
		logger.WithError(err).Error("Failed to prepare servers")
		return 1
	}
	if err := servers.Start(); err != nil {
		logger.WithError(err).Error("Failed to start servers")
		return 1
	}

	code := 0
	select {
	case <-ctx.Done():
		logger.Info("Shutting down")
	case err := <-servers.Errors():
		logger.WithError(err).Error("Server failed, shutting down")
		code = 1
	}
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()
	if err := servers.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Error("Server shutdown error")
		code = 1
	}
	return code
}
