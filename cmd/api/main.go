package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ariefcatur/slab-orders/internal/audit"
	"github.com/ariefcatur/slab-orders/internal/config"
	"github.com/ariefcatur/slab-orders/internal/fulfillment"
	"github.com/ariefcatur/slab-orders/internal/httpx"
	kafkax "github.com/ariefcatur/slab-orders/internal/kafka"
	"github.com/ariefcatur/slab-orders/internal/logging"
	"github.com/ariefcatur/slab-orders/internal/notify"
	"github.com/ariefcatur/slab-orders/internal/orders"
	"github.com/ariefcatur/slab-orders/internal/postgres"
	"github.com/ariefcatur/slab-orders/internal/provider"
	"github.com/ariefcatur/slab-orders/internal/reconcile"
	"github.com/ariefcatur/slab-orders/internal/redisx"
	"github.com/ariefcatur/slab-orders/internal/webhook"
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
	logger, err := logging.New(cfg.LogLevel, cfg.ServiceName, string(cfg.Environment))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()
	if cfg.EnvironmentDefaulted {
		logger.Warn("APP_ENV not set, assuming development; production-only guards such as test-shipment rejection are off")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// DB
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

	// Redis
	rdb := redisx.New(cfg.RedisAddr)
	defer rdb.Close()
	if err := rdb.Ping(ctx).Err(); err != nil {
		logger.Warn("Redis unreachable at startup, cache and email dedup degraded", zap.Error(err))
	}
	statusCache := redisx.NewStatusCache(rdb)

	// Kafka producers
	auditProd := kafkax.NewProducer(cfg.KafkaBrokers, cfg.AuditTopic, 1024, logger)
	auditProd.Start(ctx)
	notifyProd := kafkax.NewProducer(cfg.KafkaBrokers, cfg.NotifyTopic, 1024, logger)
	notifyProd.Start(ctx)

	recorder := &audit.KafkaRecorder{Publisher: auditProd, Service: cfg.ServiceName}
	dispatcher := notify.NewDispatcher(notifyProd, rdb, cfg.NotifyDedupTTL, cfg.ServiceName, logger)

	repo := &orders.Repo{DB: db}
	receiver := &webhook.Receiver{
		Lookup:       repo,
		Purchases:    reconcile.New(repo, recorder, dispatcher, logger),
		Tracker:      fulfillment.New(repo, recorder, dispatcher, logger),
		Cache:        statusCache,
		PaymentAuth:  webhook.NewPaymentAuthenticator(cfg.PaymentWebhookSecret, cfg.PaymentSignatureTolerance, logger),
		TrackingAuth: webhook.NewTrackingAuthenticator(cfg.TrackingWebhookSecret, logger),
		Environment:  cfg.Environment,
		Log:          logger.With(zap.String("component", "webhook-receiver")),
	}
	if cfg.PaymentAPIKey != "" {
		receiver.Details = provider.New(cfg.PaymentAPIBase, cfg.PaymentAPIKey, cfg.PaymentAPITimeout, logger)
	} else {
		logger.Warn("PAYMENT_API_KEY not set, supplementary payment lookups disabled")
	}

	router := httpx.NewRouter(logger)
	(&httpx.WebhooksHandler{Receiver: receiver, Log: logger.With(zap.String("component", "webhooks-http"))}).Register(router)
	(&httpx.OrdersHandler{Orders: repo, Cache: statusCache, Log: logger.With(zap.String("component", "orders-http"))}).Register(router)

	srv := &http.Server{
		Addr:         cfg.HTTPAddr,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 20 * time.Second,
		IdleTimeout:  120 * time.Second,
	}
	go func() {
		logger.Info("HTTP listening", zap.String("addr", cfg.HTTPAddr), zap.String("env", string(cfg.Environment)))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("HTTP server failed", zap.Error(err))
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	logger.Info("Shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP shutdown", zap.Error(err))
	}
	// flush whatever the last requests queued
	auditProd.Close()
	notifyProd.Close()
	auditProd.WaitClosed()
	notifyProd.WaitClosed()
	cancel()
}
