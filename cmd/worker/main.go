package main

import (
	"context"
	"net/http"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/voicedesk/backend/internal/audio"
	"github.com/voicedesk/backend/internal/config"
	"github.com/voicedesk/backend/internal/db"
	"github.com/voicedesk/backend/internal/inference"
	"github.com/voicedesk/backend/internal/pipeline"
	"github.com/voicedesk/backend/internal/queue"
	"github.com/voicedesk/backend/internal/storage"
	"github.com/voicedesk/backend/internal/worker"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	zerolog.TimeFieldFormat = time.RFC3339
	level, _ := zerolog.ParseLevel(cfg.LogLevel)
	logger := log.Level(level).With().Str("service", "voicedesk-worker").Logger()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := db.New(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect db")
	}
	defer store.Close()

	rdb, err := queue.Connect(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect redis")
	}
	defer rdb.Close()

	jobs := queue.New(rdb, cfg.QueueName)
	locker := queue.NewLocker(rdb, cfg.QueueName)

	files, err := storage.New(cfg.AudioDir)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to init audio storage")
	}

	var (
		transcriber inference.Transcriber
		diarizer    inference.Diarizer
		sentiment   inference.SentimentClassifier
	)
	client := &http.Client{Timeout: cfg.JobSoftLimit}
	if cfg.TranscriberURL == "" {
		transcriber = inference.MockTranscriber{}
		logger.Info().Msg("using mock transcriber")
	} else {
		transcriber = inference.HTTPTranscriber{BaseURL: cfg.TranscriberURL, Client: client}
	}
	if cfg.DiarizerURL == "" {
		diarizer = inference.MockDiarizer{}
		logger.Info().Msg("using mock diarizer")
	} else {
		diarizer = inference.HTTPDiarizer{BaseURL: cfg.DiarizerURL, Client: client}
	}
	if cfg.SentimentURL == "" {
		sentiment = inference.MockSentimentClassifier{}
		logger.Info().Msg("using mock sentiment classifier")
	} else {
		sentiment = inference.HTTPSentimentClassifier{BaseURL: cfg.SentimentURL, Client: client}
	}

	orchestrator := &pipeline.Orchestrator{
		Store:       store,
		Transcriber: transcriber,
		Diarizer:    diarizer,
		Sentiment:   sentiment,
		Silence:     audio.DefaultSilenceDetector(),
		Logger:      logger,
	}

	pool := &worker.Worker{
		Queue:       jobs,
		Locker:      locker,
		Processor:   orchestrator,
		Logger:      logger,
		Count:       cfg.WorkerCount,
		SoftLimit:   cfg.JobSoftLimit,
		HardLimit:   cfg.JobHardLimit,
		MaxAttempts: cfg.JobMaxAttempts,
	}

	watchdog := &worker.Watchdog{
		Store:     store,
		Logger:    logger,
		Threshold: cfg.StuckThreshold,
		Interval:  10 * time.Minute,
	}

	sweeper := &worker.Sweeper{
		Store:         store,
		Files:         files,
		Logger:        logger,
		RetentionDays: cfg.RetentionDays,
		Interval:      cfg.SweepInterval,
	}

	logger.Info().Int("workers", cfg.WorkerCount).Str("queue", cfg.QueueName).Msg("worker started")

	var wg sync.WaitGroup
	wg.Add(3)
	go func() { defer wg.Done(); pool.Run(ctx) }()
	go func() { defer wg.Done(); watchdog.Run(ctx) }()
	go func() { defer wg.Done(); sweeper.Run(ctx) }()
	wg.Wait()

	logger.Info().Msg("worker stopped")
}
