package main

import (
	"context"
	"errors"
	"os/signal"
	"syscall"
	"time"

	"imagevault/internal/cache"
	"imagevault/internal/config"
	"imagevault/internal/database"
	"imagevault/internal/log"
	"imagevault/internal/queue"
	"imagevault/internal/repository"
	"imagevault/internal/tasks"
)

func main() {
	cfg, err := config.LoadWorker()
	if err != nil {
		panic(err)
	}

	logger := log.NewWithLevel(cfg.Environment, "worker", cfg.Logging.Level)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	dbPool, err := database.NewPostgresPool(ctx, cfg.Postgres)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect postgres")
	}
	defer dbPool.Close()

	client, err := cache.NewRedisClient(ctx, config.RedisConfig{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("redis connection failed")
	}
	defer client.Close()

	processor := tasks.NewProcessor(logger, repository.NewActivityRepository(dbPool))
	consumer := queue.NewConsumer(client, queue.ConsumerOptions{
		Stream:        cfg.Redis.Stream,
		Group:         cfg.Redis.Group,
		Consumer:      cfg.Redis.Consumer,
		ClaimInterval: cfg.Queues.ClaimInterval,
		BatchSize:     cfg.Queues.BatchSize,
	}, logger, processor)

	done := make(chan error, 1)
	go func() {
		done <- consumer.Start(ctx)
	}()

	logger.Info().Str("stream", cfg.Redis.Stream).Str("group", cfg.Redis.Group).Msg("activity worker started")

	select {
	case <-ctx.Done():
		logger.Info().Msg("shutdown signal received")
		select {
		case <-done:
		case <-time.After(5 * time.Second):
			logger.Warn().Msg("consumer did not stop in time")
		}
	case err := <-done:
		if err != nil && !errors.Is(err, context.Canceled) {
			logger.Error().Err(err).Msg("consumer stopped unexpectedly")
		}
	}
}
