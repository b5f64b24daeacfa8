package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"github.com/joho/godotenv"

	"github.com/iach526526/pastexam/internal/aiexam"
	"github.com/iach526526/pastexam/internal/db"
	"github.com/iach526526/pastexam/internal/discussion"
	"github.com/iach526526/pastexam/internal/http/handlers"
	"github.com/iach526526/pastexam/internal/http/httpapi"
	"github.com/iach526526/pastexam/internal/infra"
	"github.com/iach526526/pastexam/internal/infra/geoip"
	"github.com/iach526526/pastexam/internal/providers/genai"
	"github.com/iach526526/pastexam/internal/storage"
	"github.com/iach526526/pastexam/internal/taskstream"
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

	redisOpt, err := infra.AsynqRedisOpt(cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("parse redis url")
	}
	queue := asynq.NewClient(redisOpt)
	defer queue.Close()
	inspector := asynq.NewInspector(redisOpt)
	defer inspector.Close()

	var store storage.ObjectStore
	var staticDir string
	if cfg.MinioEndpoint != "" {
		store, err = storage.NewMinioStore(ctx, cfg.MinioEndpoint, cfg.MinioAccessKey, cfg.MinioSecretKey, cfg.MinioBucket, cfg.MinioUseSSL)
		if err != nil {
			logger.Fatal().Err(err).Msg("connect object storage")
		}
	} else {
		fs, err := storage.NewFileStore(cfg.StoragePath, cfg.StorageBaseURL)
		if err != nil {
			logger.Fatal().Err(err).Msg("open file storage")
		}
		store = fs
		staticDir = cfg.StoragePath
	}

	countries, err := geoip.NewResolver(cfg.GeoIPDBPath)
	if err != nil {
		logger.Warn().Err(err).Msg("geoip database unavailable")
	}

	genaiClient, err := genai.NewClient(genai.Options{
		BaseURL: cfg.GeminiBaseURL,
		Model:   cfg.GeminiModel,
		Logger:  &logger,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("init genai client")
	}

	runner := infra.NewSQLRunner(pool, logger)
	taskStore := aiexam.NewStore(rdb, inspector)
	metrics := infra.NewMetrics()

	app := &handlers.App{
		SQL:         runner,
		Logger:      logger,
		Cfg:         cfg,
		Redis:       rdb,
		Tasks:       aiexam.NewService(taskStore, queue, cfg.JobTimeout, logger),
		TaskStore:   taskStore,
		Streamer:    taskstream.NewStreamer(taskStore, logger),
		Discussions: discussion.NewService(runner),
		Registry:    discussion.NewRegistry(),
		Store:       store,
		Genai:       genaiClient,
		Metrics:     metrics,
	}

	srv := infra.NewHTTPServer(cfg, httpapi.NewRouter(app, countries, staticDir))

	go func() {
		logger.Info().Str("port", cfg.Port).Msg("api listening")
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("http server")
		}
	}()

	<-ctx.Done()
	logger.Info().Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("shutdown http server")
		os.Exit(1)
	}
}
