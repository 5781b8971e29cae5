// File: cmd/app/main.go
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/session"

	"batch-transcription-service/internal/config"
	"batch-transcription-service/internal/domain/model"
	"batch-transcription-service/internal/domain/ports/adapter"
	"batch-transcription-service/internal/infra/adapters/notify"
	"batch-transcription-service/internal/infra/adapters/openai"
	"batch-transcription-service/internal/infra/adapters/storage"
	"batch-transcription-service/internal/infra/adapters/whisper"
	pg "batch-transcription-service/internal/infra/db/postgres"
	"batch-transcription-service/internal/infra/logging"
	"batch-transcription-service/internal/infra/metrics"
	red "batch-transcription-service/internal/infra/redis"
	"batch-transcription-service/internal/infra/sched"
	"batch-transcription-service/internal/infra/web"
	"batch-transcription-service/internal/infra/worker"
	"batch-transcription-service/internal/usecase"
)

var (
	version = "dev"
	commit  = "none"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// ---- CLI flags ----
	cfgPath := flag.String("config", "config.yaml", "path to YAML config file")
	devMode := flag.Bool("dev", false, "enable developer mode (console logs, relaxed checks)")
	flag.Parse()

	cfg, err := config.LoadConfig(*cfgPath, *devMode)
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	logger := logging.New(cfg.Log, cfg.Runtime.Dev)
	metrics.MustRegister()
	metrics.SetBuildInfo(version, commit)

	// ---- Postgres ----
	pool, err := pg.NewPgxPool(ctx, cfg.Database.URL, cfg.Database.MaxConns)
	if err != nil {
		logger.Fatal().Err(err).Msg("postgres")
	}
	defer pool.Close()
	go pg.ReportPoolStats(ctx, pool, 30*time.Second)

	// ---- Redis ----
	redisClient, err := red.NewClient(ctx, &cfg.Redis)
	if err != nil {
		logger.Fatal().Err(err).Msg("redis")
	}
	defer redisClient.Close()
	rateLimiter := red.NewRateLimiter(redisClient)
	locker := red.NewLocker(redisClient)

	// ---- Repositories ----
	jobRepo := pg.NewBatchJobRepo(pool)
	itemRepo := pg.NewBatchItemRepo(pool)
	chunkRepo := pg.NewChunkItemRepo(pool)
	txManager := pg.NewTxManager(pool)

	// ---- Object store ----
	var store adapter.ObjectStore
	switch cfg.Storage.Backend {
	case "s3":
		sess, err := session.NewSession(&aws.Config{Region: aws.String(cfg.Storage.Region)})
		if err != nil {
			logger.Fatal().Err(err).Msg("aws session")
		}
		store = storage.NewS3Store(sess, cfg.Storage.Bucket, cfg.Storage.Region, cfg.Storage.Prefix)
		logger.Info().Str("bucket", cfg.Storage.Bucket).Msg("object store: s3")
	default:
		local, err := storage.NewLocalStore(cfg.Storage.LocalDir, cfg.Storage.PublicBaseURL)
		if err != nil {
			logger.Fatal().Err(err).Msg("local store")
		}
		store = local
		logger.Info().Str("dir", cfg.Storage.LocalDir).Msg("object store: local")
	}

	// ---- Remote batch API ----
	batchAPI, err := openai.NewBatchAdapter(cfg.Batch.APIKey, cfg.Batch.BaseURL, cfg.Batch.RequestTimeout)
	if err != nil {
		logger.Fatal().Err(err).Msg("batch api adapter")
	}

	// ---- Notifiers ----
	var sinks []adapter.Notifier
	if cfg.Notify.WebhookURL != "" {
		sinks = append(sinks, notify.NewWebhookNotifier(cfg.Notify.WebhookURL, cfg.Notify.WebhookTimeout))
	}
	if cfg.Notify.TelegramToken != "" && cfg.Notify.TelegramChatID != 0 {
		tg, err := notify.NewTelegramNotifier(cfg.Notify.TelegramToken, cfg.Notify.TelegramChatID)
		if err != nil {
			logger.Fatal().Err(err).Msg("telegram notifier")
		}
		sinks = append(sinks, tg)
	}
	var notifier adapter.Notifier
	if len(sinks) > 0 {
		notifier = notify.NewMultiNotifier(*logger, sinks...)
	}

	// ---- On-demand transcription collaborators ----
	splitter := whisper.NewFFmpegSplitter(cfg.Chunk.FFmpegPath, cfg.Chunk.FFprobePath, cfg.Chunk.WorkDir)
	transcriber := whisper.NewCLITranscriber(cfg.Chunk.WhisperPath, cfg.Chunk.WorkDir)

	// ---- Use cases ----
	defaultWindow := model.CompletionWindow(cfg.Batch.Window)
	if defaultWindow != model.CompletionWindowFast && defaultWindow != model.CompletionWindowExtended {
		logger.Warn().Str("window", cfg.Batch.Window).Msg("unknown completion window, defaulting to fast")
		defaultWindow = model.CompletionWindowFast
	}
	submissionUC := usecase.NewSubmissionUseCase(
		jobRepo, itemRepo, txManager, batchAPI, store, notifier,
		cfg.Batch.DefaultModel, defaultWindow, cfg.Batch.MaxFileBytes, *logger,
	)
	materializer := usecase.NewMaterializer(jobRepo, itemRepo, txManager, batchAPI, *logger)
	chunkUC := usecase.NewChunkUseCase(chunkRepo, splitter, transcriber, usecase.ChunkConfig{
		ThresholdSeconds: cfg.Chunk.ThresholdSeconds,
		PartSeconds:      cfg.Chunk.PartSeconds,
		PartTimeout:      cfg.Chunk.PartTimeout,
		DefaultModel:     cfg.Batch.DefaultModel,
	}, *logger)

	// ---- Workers and poller ----
	workerPool := worker.NewPool(cfg.Chunk.Workers, *logger)
	workerPool.Start(ctx)
	defer workerPool.Stop()

	poller := sched.NewBatchPoller(jobRepo, itemRepo, batchAPI, materializer, notifier, workerPool, locker, *logger)
	if cfg.Batch.AutoStartPoller {
		if err := poller.Start(ctx, cfg.Batch.PollInterval); err != nil {
			logger.Fatal().Err(err).Msg("poller start")
		}
	}
	defer poller.Stop()

	// ---- HTTP server ----
	auth := web.NewAuthManager(cfg.Server.SessionSecret, !cfg.Runtime.Dev, cfg.Server.SessionTTL)
	submitLimit := web.NewRateLimit(rateLimiter, cfg.Redis.SubmitRateLimit, *logger)
	srv := web.NewServer(
		submissionUC, chunkUC, poller, workerPool, auth, submitLimit,
		cfg.Server.APIKey, cfg.Batch.PollInterval, cfg.Chunk.WorkDir, *logger,
	)

	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: srv.Routes(),
	}
	go func() {
		logger.Info().Str("addr", server.Addr).Str("version", version).Msg("http server listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error().Err(err).Msg("http server")
		}
	}()

	// ---- Graceful shutdown ----
	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)
	<-sigc
	logger.Info().Msg("shutdown requested")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("http shutdown")
	}
	cancel()
}
