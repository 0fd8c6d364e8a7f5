// The api service accepts uploads, answers status and transcript reads, and
// serves retrieval-augmented queries. It only publishes to the broker; the
// worker services do the processing.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"mediarag/config"
	"mediarag/messaging"
	"mediarag/processors"
	"mediarag/server"
	"mediarag/storage"
)

func main() {
	_ = godotenv.Load()
	log := slog.New(slog.NewJSONHandler(os.Stdout, nil)).With("service", "api")

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

	index, err := storage.NewIndex(ctx, cfg, store)
	if err != nil {
		log.Error("build vector index", "error", err)
		os.Exit(1)
	}

	broker, err := messaging.Dial(ctx, messaging.Config{
		URL:             cfg.RabbitURL,
		Exchange:        cfg.Exchange,
		ConnectAttempts: cfg.ConnectAttempts,
	}, log)
	if err != nil {
		log.Error("connect broker", "error", err)
		os.Exit(1)
	}
	defer broker.Close()
	if err := broker.DeclarePublishOnly(); err != nil {
		log.Error("declare exchange", "error", err)
		os.Exit(1)
	}

	cache := storage.NewStatusCache(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, cfg.StatusTTL, log)
	cli := processors.NewOpenAIClient(cfg)
	embedder := processors.NewOpenAIEmbedder(cli, cfg.EmbeddingModel)
	chat := processors.NewOpenAIChat(cli, cfg.ChatModel)

	srv := server.New(store, cache, index, embedder, chat, broker, cfg, log)
	httpServer := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           srv.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			log.Warn("http shutdown", "error", err)
		}
	}()

	log.Info("api listening", "addr", cfg.HTTPAddr)
	if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Error("http server", "error", err)
		os.Exit(1)
	}
	log.Info("api stopped")
}
