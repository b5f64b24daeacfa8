package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"
	"github.com/joho/godotenv"

	"github.com/iach526526/pastexam/internal/aiexam"
	"github.com/iach526526/pastexam/internal/db"
	"github.com/iach526526/pastexam/internal/infra"
	"github.com/iach526526/pastexam/internal/providers/genai"
	"github.com/iach526526/pastexam/internal/storage"
	"github.com/iach526526/pastexam/internal/worker"
)

func main() {
	_ = godotenv.Load()

	cfg, err := infra.LoadConfig()
	if err != nil {
		bootLogger := infra.NewLogger("production")
		bootLogger.Fatal().Err(err).Msg("load config")
	}
	logger := infra.NewLogger(cfg.AppEnv)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := infra.NewDBPool(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("connect database")
	}
	defer pool.Close()

	if err := db.Migrate(ctx, pool); err != nil {
		logger.Fatal().Err(err).Msg("migrate database")
	}

	rdb, err := infra.NewRedisClient(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("connect redis")
	}
	defer rdb.Close()

	var store storage.ObjectStore
	if cfg.MinioEndpoint != "" {
		store, err = storage.NewMinioStore(ctx, cfg.MinioEndpoint, cfg.MinioAccessKey, cfg.MinioSecretKey, cfg.MinioBucket, cfg.MinioUseSSL)
		if err != nil {
			logger.Fatal().Err(err).Msg("connect object storage")
		}
	} else {
		store, err = storage.NewFileStore(cfg.StoragePath, cfg.StorageBaseURL)
		if err != nil {
			logger.Fatal().Err(err).Msg("open file storage")
		}
	}

	genaiClient, err := genai.NewClient(genai.Options{
		BaseURL: cfg.GeminiBaseURL,
		Model:   cfg.GeminiModel,
		Logger:  &logger,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("init genai client")
	}
	factory := func(apiKey string) worker.ContentClient {
		return genaiClient.WithAPIKey(apiKey)
	}

	runner := infra.NewSQLRunner(pool, logger)
	generator := worker.NewGenerator(runner, store, factory, logger)
	publisher := aiexam.NewPublisher(rdb, logger)
	handler := worker.NewHandler(generator, publisher, infra.NewMetrics(), logger)

	redisOpt, err := infra.AsynqRedisOpt(cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("parse redis url")
	}

	srv := asynq.NewServer(redisOpt, asynq.Config{
		Concurrency: cfg.WorkerConcurrency,
		Queues: map[string]int{
			aiexam.QueueDefault: 1,
		},
	})

	mux := asynq.NewServeMux()
	handler.Register(mux)

	go func() {
		<-ctx.Done()
		logger.Info().Msg("shutting down worker")
		srv.Shutdown()
	}()

	logger.Info().Int("concurrency", cfg.WorkerConcurrency).Msg("worker started")
	if err := srv.Run(mux); err != nil {
		logger.Fatal().Err(err).Msg("worker server")
	}
}
