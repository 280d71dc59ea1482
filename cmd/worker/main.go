package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"seminar-attendance/internal/config"
	"seminar-attendance/internal/queue"
	"seminar-attendance/internal/store"
	"seminar-attendance/internal/worker"
)

// Worker consumes attendance events and keeps the live headcount.
func main() {
	cfg := config.Load()
	logger := cfg.Logger()
	slog.SetDefault(logger)

	if cfg.QueueBackend == "memory" {
		logger.Error("QUEUE_BACKEND=memory is consumed inside the api process; the worker needs redis")
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.Info("shutdown signal received")
		cancel()
	}()

	redisClient := store.NewRedis(cfg.RedisAddr)
	defer redisClient.Close()
	if !redisClient.Healthy(ctx) {
		logger.Warn("redis not reachable, will keep retrying", "addr", cfg.RedisAddr)
	}

	q := queue.NewRedisQueue(redisClient.Client, "")
	w := worker.New(store.NewHeadcount(redisClient.Client, ""), logger)
	if err := w.Run(ctx, q); err != nil {
		logger.Error("queue consume init failed", "error", err)
		os.Exit(1)
	}
}
