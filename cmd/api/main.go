package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"seminar-attendance/internal/attendance"
	"seminar-attendance/internal/config"
	"seminar-attendance/internal/handler"
	"seminar-attendance/internal/httpmiddleware"
	"seminar-attendance/internal/queue"
	"seminar-attendance/internal/store"
	"seminar-attendance/internal/worker"
)

func main() {
	cfg := config.Load()
	logger := cfg.Logger()
	slog.SetDefault(logger)

	if cfg.Production() {
		gin.SetMode(gin.ReleaseMode)
	}

	if err := runHTTP(cfg, logger); err != nil {
		logger.Error("http server failed", "error", err)
		os.Exit(1)
	}
}

// openBackend selects the attendance store named by STORE_BACKEND. The
// returned func reports store health for /healthz.
func openBackend(ctx context.Context, cfg config.App) (attendance.Backend, func(context.Context) bool, func() error, error) {
	switch cfg.StoreBackend {
	case config.BackendPostgREST:
		rest := attendance.NewRESTStore(cfg.PostgRESTURL, cfg.PostgRESTKey, cfg.StoreTimeout)
		return rest, func(context.Context) bool { return true }, func() error { return nil }, nil
	case config.BackendPostgres, config.BackendSQLite:
		var (
			db  *store.DB
			err error
		)
		if cfg.StoreBackend == config.BackendSQLite {
			db, err = store.NewSQLite(cfg.SQLitePath)
		} else {
			db, err = store.NewDB(cfg.DatabaseURL)
		}
		if err != nil {
			return nil, nil, nil, err
		}
		if err := db.Migrate(ctx); err != nil {
			_ = db.Close()
			return nil, nil, nil, fmt.Errorf("migrate: %w", err)
		}
		healthy := func(ctx context.Context) bool { return db.Client.PingContext(ctx) == nil }
		return attendance.NewRepository(db.Client), healthy, db.Close, nil
	default:
		return nil, nil, nil, fmt.Errorf("unknown STORE_BACKEND %q", cfg.StoreBackend)
	}
}

func runHTTP(cfg config.App, logger *slog.Logger) error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	backend, storeHealthy, closeStore, err := openBackend(ctx, cfg)
	cancel()
	if err != nil {
		return fmt.Errorf("open %s store: %w", cfg.StoreBackend, err)
	}
	defer func() { _ = closeStore() }()
	logger.Info("attendance store ready", "backend", cfg.StoreBackend)

	redisClient := store.NewRedis(cfg.RedisAddr)
	defer redisClient.Close()

	headcount := store.NewHeadcount(redisClient.Client, "")

	workerCtx, stopWorker := context.WithCancel(context.Background())
	defer stopWorker()

	var q queue.Queue
	if cfg.QueueBackend == "memory" {
		// nothing outside this process can read an in-memory queue
		mem := queue.NewInMemory(64)
		go func() {
			if err := worker.New(headcount, logger).Run(workerCtx, mem); err != nil {
				logger.Error("in-process worker failed", "error", err)
			}
		}()
		q = mem
	} else {
		q = queue.NewRedisQueue(redisClient.Client, "")
	}

	h := handler.New(handler.Deps{
		Resolver:     attendance.NewResolver(backend, attendance.WithLogger(logger)),
		Records:      backend,
		Queue:        q,
		Headcount:    headcount,
		StoreTimeout: cfg.StoreTimeout,
		Logger:       logger,
	})

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(gin.LoggerWithConfig(gin.LoggerConfig{
		SkipPaths: []string{"/healthz", "/metrics"},
	}))
	r.Use(cors.New(cors.Config{
		AllowOrigins:     []string{"*"},
		AllowMethods:     []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "X-Scanner-ID"},
		AllowCredentials: false,
		MaxAge:           24 * time.Hour,
	}))
	r.Use(securityHeaders())

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	r.GET("/healthz", func(c *gin.Context) {
		redisHealthy := redisClient.Healthy(c.Request.Context())
		dbHealthy := storeHealthy(c.Request.Context())
		status := http.StatusOK
		if !dbHealthy {
			status = http.StatusServiceUnavailable
		}
		c.JSON(status, gin.H{"status": "ok", "redis": redisHealthy, "store": dbHealthy, "backend": cfg.StoreBackend})
	})

	v1 := r.Group("/v1", httpmiddleware.NewRateLimiter(cfg.RateLimitPerMin, cfg.RateLimitPerMin).GinMiddleware())
	h.Routes(v1)

	srv := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("starting server", "port", cfg.HTTPPort)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case err := <-errCh:
		return err
	case <-quit:
	}
	logger.Info("shutting down server")

	// give outstanding requests 10 seconds to complete
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("server forced shutdown", "error", err)
	}
	logger.Info("server exited")
	return nil
}

// securityHeaders sets the usual hardening headers.
func securityHeaders() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("X-Content-Type-Options", "nosniff")
		c.Header("X-Frame-Options", "DENY")
		c.Header("Referrer-Policy", "strict-origin-when-cross-origin")
		if gin.Mode() == gin.ReleaseMode {
			c.Header("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
		}
		c.Next()
	}
}
