// The transcriber service consumes MediaUploaded events, runs audio
// extraction and speech recognition, and publishes MediaTranscribed.
package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"mediarag/config"
	"mediarag/core"
	"mediarag/messaging"
	"mediarag/processors"
	"mediarag/storage"
	"mediarag/workers"
)

func main() {
	_ = godotenv.Load()
	log := slog.New(slog.NewJSONHandler(os.Stdout, nil)).With("service", "transcriber")

	cfg, err := config.Load()
	if err != nil {
		log.Error("load configuration", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := storage.New(ctx, cfg.PostgresURL, log)
	if err != nil {
		log.Error("connect database", "error", err)
		os.Exit(1)
	}
	defer store.Close()
	if err := store.EnsureSchema(ctx, cfg.EmbeddingDim); err != nil {
		log.Error("ensure schema", "error", err)
		os.Exit(1)
	}

	broker, err := messaging.Dial(ctx, messaging.Config{
		URL:             cfg.RabbitURL,
		Exchange:        cfg.Exchange,
		Prefetch:        cfg.Prefetch,
		MaxDeliveries:   cfg.MaxDeliveries,
		RetryDelay:      cfg.RetryDelay,
		ConnectAttempts: cfg.ConnectAttempts,
	}, log)
	if err != nil {
		log.Error("connect broker", "error", err)
		os.Exit(1)
	}
	defer broker.Close()
	if err := broker.DeclareTopology(cfg.TranscriptionQueue, core.EventMediaUploaded); err != nil {
		log.Error("declare topology", "error", err)
		os.Exit(1)
	}

	cli := processors.NewOpenAIClient(cfg)
	recognizer, err := processors.NewRecognizer(cfg, cli)
	if err != nil {
		log.Error("build recognizer", "error", err)
		os.Exit(1)
	}

	worker := workers.NewTranscriptionWorker(store, store, processors.FFmpegExtractor{},
		recognizer, broker, cfg.Chunker, cfg.WhisperModel, os.TempDir(), log)

	log.Info("transcriber started", "queue", cfg.TranscriptionQueue)
	if err := broker.Consume(ctx, cfg.TranscriptionQueue, worker.Handle); err != nil &&
		!errors.Is(err, context.Canceled) {
		log.Error("consume loop", "error", err)
		os.Exit(1)
	}
	log.Info("transcriber stopped")
}
