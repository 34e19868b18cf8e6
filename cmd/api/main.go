package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"imagevault/internal/cache"
	"imagevault/internal/config"
	"imagevault/internal/database"
	"imagevault/internal/handlers"
	"imagevault/internal/jobs"
	"imagevault/internal/log"
	"imagevault/internal/media/encoder"
	"imagevault/internal/queue"
	"imagevault/internal/repository"
	"imagevault/internal/server"
	"imagevault/internal/service"
	"imagevault/internal/storage"
)

// activityStreamMaxLen caps the activity stream when the worker falls behind.
const activityStreamMaxLen = 100000

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logger := log.New(cfg.Environment)

	ctx := context.Background()

	dbPool, err := database.NewPostgresPool(ctx, cfg.Postgres)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect postgres")
	}
	if cfg.Postgres.MigrateOnStart {
		if err := database.Migrate(ctx, dbPool); err != nil {
			logger.Fatal().Err(err).Msg("migrations failed")
		}
	}

	redisClient, err := cache.NewRedisClient(ctx, cfg.Redis)
	if err != nil {
		if cfg.Activity.Mode == config.ActivityModeStream {
			logger.Fatal().Err(err).Msg("failed to connect redis")
		}
		logger.Warn().Err(err).Msg("redis unavailable; rate limiting disabled")
		redisClient = nil
	}

	store, sweeper, err := openStore(ctx, cfg.Storage)
	if err != nil {
		logger.Fatal().Err(err).Str("driver", cfg.Storage.Driver).Msg("failed to init storage")
	}

	fallback, err := service.LoadFallback(cfg.Storage.FallbackImage)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load fallback image")
	}

	if cfg.Security.AdminPassword == "" {
		logger.Warn().Msg("no admin password configured; account creation is disabled")
	}

	users := repository.NewUserRepository(dbPool)
	var activity service.ActivityLogger = repository.NewActivityRepository(dbPool)
	if cfg.Activity.Mode == config.ActivityModeStream {
		activity = queue.NewActivityPublisher(redisClient, cfg.Activity.Stream, activityStreamMaxLen)
	}

	authService := service.NewAuthService(users, cfg.Security.AdminPassword, logger)
	imageService := service.NewImageService(
		service.NewNamer(users),
		store,
		encoder.NewBimg(cfg.Encoder),
		activity,
		fallback,
		logger,
	)

	handlerSet := handlers.NewHandlerSet(logger, cfg, handlers.Deps{
		Auth:   authService,
		Images: imageService,
		DB:     dbPool,
		Cache:  redisClient,
		Store:  store,
	})
	httpServer := server.NewHTTPServer(cfg, logger, handlerSet)

	scheduler := jobs.NewScheduler(sweeper, cfg.Jobs, logger)
	if err := scheduler.Start(); err != nil {
		logger.Error().Err(err).Msg("scheduler start failed")
	}

	go func() {
		if err := httpServer.Start(); err != nil {
			logger.Fatal().Err(err).Msg("http server failed")
		}
	}()

	waitForShutdown(logger, httpServer, scheduler, dbPool, redisClient)
}

// openStore returns the configured blob store and, for local disk, its temp sweeper.
func openStore(ctx context.Context, cfg config.StorageConfig) (storage.Store, jobs.TempSweeper, error) {
	if cfg.Driver == config.StorageDriverS3 {
		objectStore, err := storage.NewObjectStore(cfg)
		if err != nil {
			return nil, nil, err
		}
		if err := objectStore.EnsureBucket(ctx); err != nil {
			return nil, nil, err
		}
		return objectStore, nil, nil
	}

	fileStore, err := storage.NewFileStore(cfg.Dir)
	if err != nil {
		return nil, nil, err
	}
	return fileStore, fileStore, nil
}

func waitForShutdown(logger zerolog.Logger, srv *server.HTTPServer, scheduler *jobs.Scheduler, db *pgxpool.Pool, redisClient *redis.Client) {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	<-ctx.Done()
	logger.Info().Msg("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("graceful shutdown failed")
	}

	scheduler.Stop(shutdownCtx)

	db.Close()
	if redisClient != nil {
		if err := redisClient.Close(); err != nil {
			logger.Error().Err(err).Msg("redis close error")
		}
	}

	logger.Info().Msg("server exited cleanly")
}
