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

	"audio-transcription-platform/internal/audio"
	"audio-transcription-platform/internal/config"
	"audio-transcription-platform/internal/domain/ports/adapter"
	"audio-transcription-platform/internal/infra/adapters/speech"
	pg "audio-transcription-platform/internal/infra/db/postgres"
	"audio-transcription-platform/internal/infra/logging"
	"audio-transcription-platform/internal/infra/metrics"
	red "audio-transcription-platform/internal/infra/redis"
	"audio-transcription-platform/internal/infra/sched"
	"audio-transcription-platform/internal/infra/web"
	"audio-transcription-platform/internal/infra/worker"
	"audio-transcription-platform/internal/usecase"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// ---- CLI flags ----
	cfgPath := flag.String("config", "config.yaml", "path to YAML config file")
	devMode := flag.Bool("dev", false, "enable developer mode (console logs, debug level)")
	flag.Parse()

	cfg, err := config.LoadConfig(*cfgPath, *devMode)
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	logger := logging.New(cfg.Log, cfg.Runtime.Dev)
	if cfg.Runtime.Dev {
		logger.Info().Msg("dev mode enabled")
	}

	// ---- Postgres ----
	pool, err := pg.NewPgxPool(ctx, cfg.Database.URL, 10)
	if err != nil {
		logger.Fatal().Err(err).Msg("postgres")
	}
	defer pool.Close()

	// ---- Redis ----
	redisClient, err := red.NewClient(ctx, &cfg.Redis)
	if err != nil {
		logger.Fatal().Err(err).Msg("redis")
	}
	defer redisClient.Close()
	cancelSignal := red.NewCancelSignal(redisClient)
	progressPub := red.NewProgressPublisher(redisClient)

	// ---- Repositories ----
	tm := pg.NewTxManager(pool)
	jobRepo := pg.NewTranscriptionJobRepo(pool, tm)
	usageRepo := pg.NewUsageRecordRepo(pool)

	// ---- Speech engine ----
	var engine adapter.SpeechTranscriber
	switch cfg.Speech.Engine {
	case "openai":
		engine, err = speech.NewOpenAIEngine(cfg.Speech.OpenAIKey, cfg.Speech.Model, logger)
		if err != nil {
			logger.Fatal().Err(err).Msg("openai engine")
		}
		logger.Info().Str("model", cfg.Speech.Model).Msg("speech engine: openai")
	default:
		engine = speech.NewLocalEngine(cfg.Speech.Model, cfg.Speech.Device, cfg.Speech.PythonBin, logger)
		logger.Info().Str("model", cfg.Speech.Model).Msg("speech engine: local")
	}
	engine = speech.NewExclusive(engine)

	// ---- Pipeline ----
	normalizer := audio.NewNormalizer(logger)
	pipeline := worker.NewPipeline(jobRepo, usageRepo, tm, engine, cancelSignal, progressPub, normalizer, cfg.Pipeline, logger)
	workers := worker.NewPool(cfg.Pipeline.AcceleratorSlots, logger)
	workers.Start(ctx)
	go pipeline.Start(ctx, workers)

	// ---- Retention sweeper ----
	retention := sched.NewRetentionWorker(jobRepo, usageRepo, tm, cfg.Retention, logger)
	go func() { _ = retention.Run(ctx) }()

	// ---- Metrics ----
	metrics.MustRegister()

	// ---- HTTP API ----
	uc := usecase.NewTranscriptionUseCase(jobRepo, cancelSignal, redisClient, cfg.Pipeline.WorkDir, cfg.Pipeline.MaxUploadBytes, logger)
	srv := web.NewServer(uc, cfg.Retention, cfg.Web.APIKey, cfg.Pipeline.MaxUploadBytes, logger)
	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Web.Port),
		Handler:           srv.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		logger.Info().Str("addr", server.Addr).Msg("http listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error().Err(err).Msg("http server error")
		}
	}()

	// ---- Graceful shutdown ----
	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)
	<-sigc
	logger.Info().Msg("shutdown requested")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	_ = server.Shutdown(shutdownCtx)
	workers.Stop()
	engine.Release()
}
