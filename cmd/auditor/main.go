package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/ariefcatur/slab-orders/internal/audit"
	"github.com/ariefcatur/slab-orders/internal/config"
	kafkax "github.com/ariefcatur/slab-orders/internal/kafka"
	"github.com/ariefcatur/slab-orders/internal/logging"
	"github.com/ariefcatur/slab-orders/internal/postgres"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading configuration: %v\n", err)
		os.Exit(1)
	}
	logger, err := logging.New(cfg.LogLevel, cfg.ServiceName+"-auditor", string(cfg.Environment))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()
	if cfg.EnvironmentDefaulted {
		logger.Warn("APP_ENV not set, assuming development; production-only guards such as test-shipment rejection are off")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	db, err := postgres.Connect(ctx, cfg.PostgresDSN)
	if err != nil {
		logger.Fatal("Database connect failed", zap.Error(err))
	}
	defer db.Close()
	if cfg.MigrateOnStart {
		if err := postgres.Migrate(cfg.PostgresDSN, logger); err != nil {
			logger.Fatal("Database migration failed", zap.Error(err))
		}
	}

	sink := &audit.Sink{Store: &audit.Repo{DB: db}, Log: logger.With(zap.String("component", "audit-sink"))}
	cons := kafkax.NewConsumer(cfg.KafkaBrokers, cfg.AuditorGroup, cfg.AuditTopic, cfg.AuditorWorkers, logger)

	logger.Info("Audit consumer started",
		zap.String("group", cfg.AuditorGroup), zap.String("topic", cfg.AuditTopic), zap.Int("workers", cfg.AuditorWorkers))
	if err := cons.Start(ctx, sink.Handle); err != nil {
		logger.Error("Consumer exited", zap.Error(err))
		os.Exit(1)
	}
	logger.Info("Audit consumer stopped")
}
