package main

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/user/name-indexer/internal/adapter/api"
	"github.com/user/name-indexer/internal/adapter/api/handler"
	"github.com/user/name-indexer/internal/adapter/metrics"
	kafkapub "github.com/user/name-indexer/internal/adapter/publisher/kafka"
	"github.com/user/name-indexer/internal/adapter/repository/postgres"
	redisrepo "github.com/user/name-indexer/internal/adapter/repository/redis"
	"github.com/user/name-indexer/internal/adapter/upstream"
	"github.com/user/name-indexer/internal/domain"
	"github.com/user/name-indexer/internal/pkg/config"
	"github.com/user/name-indexer/internal/pkg/logger"
	"github.com/user/name-indexer/internal/usecase"

	_ "github.com/lib/pq" // postgres driver
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	log := logger.New(cfg.LogLevel)
	slog.SetDefault(log)
	log.Info("starting name token indexer")

	m := metrics.NewIndexerMetrics()

	// --- Graceful Shutdown Context ---
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// --- PostgreSQL ---
	db, err := sql.Open("postgres", cfg.PostgresURL)
	if err != nil {
		log.Error("failed to open postgres connection", "error", err)
		os.Exit(1)
	}
	defer db.Close()
	if err := db.PingContext(ctx); err != nil {
		log.Error("failed to connect to postgres", "error", err)
		os.Exit(1)
	}

	eventRepo := postgres.NewEventRepository(db, log)
	if err := eventRepo.EnsureSchema(ctx); err != nil {
		log.Error("failed to ensure schema", "error", err)
		os.Exit(1)
	}
	log.Info("connected to postgres")

	// --- Optional Redis dedup cache ---
	var dedup domain.DedupCache
	if cfg.RedisAddr != "" {
		redisClient := goredis.NewClient(&goredis.Options{Addr: cfg.RedisAddr})
		if err := redisClient.Ping(ctx).Err(); err != nil {
			log.Warn("could not connect to redis, continuing without dedup cache", "error", err)
		} else {
			dedup = redisrepo.NewDedupCache(redisClient, log, cfg.DedupTTL, m)
			log.Info("connected to redis dedup cache")
		}
		defer redisClient.Close()
	}

	// --- Upstream API client ---
	upstreamClient := upstream.NewClient(upstream.Config{
		BaseURL:           cfg.UpstreamBaseURL,
		APIKey:            cfg.UpstreamAPIKey,
		Timeout:           cfg.UpstreamTimeout,
		RequestsPerSecond: cfg.UpstreamRPS,
	})

	// --- Use cases ---
	cursorManager := usecase.NewCursorManager(eventRepo, upstreamClient, log)
	processor := usecase.NewEventProcessor(log, m)

	// --- Optional Kafka fan-out ---
	if len(cfg.KafkaBrokers) > 0 {
		publisher := kafkapub.NewPublisher(cfg.KafkaBrokers, cfg.KafkaTopicPrefix, log)
		defer publisher.Close()
		processor.SubscribeAll(publisher.Handle)
		log.Info("kafka fan-out enabled", "brokers", cfg.KafkaBrokers, "topic_prefix", cfg.KafkaTopicPrefix)
	}

	eventTypes := make([]domain.EventType, 0, len(cfg.PollEventTypes))
	for _, t := range cfg.PollEventTypes {
		eventTypes = append(eventTypes, domain.EventType(t))
	}

	poller := usecase.NewPoller(upstreamClient, eventRepo, cursorManager, processor, dedup, log, m, usecase.PollerConfig{
		Interval:      cfg.PollInterval,
		BatchSize:     cfg.PollBatchSize,
		EventTypes:    eventTypes,
		FinalizedOnly: cfg.FinalizedOnly,
		RetryInterval: cfg.RetryInterval,
		MaxRetries:    cfg.MaxRetries,
	})
	poller.Start(ctx)
	defer poller.Stop()

	// --- HTTP surface ---
	statsAggregator := usecase.NewStatsAggregator(eventRepo, cursorManager, poller)
	eventHandler := handler.NewEventHandler(eventRepo, statsAggregator, log)
	adminHandler := handler.NewAdminHandler(cursorManager, log)
	router := api.NewRouter(log, cfg.APIKey, eventHandler, adminHandler)

	server := &http.Server{
		Addr:         cfg.ServerAddr,
		Handler:      router,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	go func() {
		log.Info("starting http server", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("http server failed", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	log.Info("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("http server shutdown failed", "error", err)
	}

	log.Info("indexer shut down gracefully")
}
