package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"storygate/internal/app"
	"storygate/internal/config"
	"storygate/internal/jobs"
	"storygate/internal/metrics"
	"storygate/pkg/logging/logging"
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("gateway exited with error: %v", err)
	}
}

func run() error {
	// A missing .env is normal outside local development.
	_ = godotenv.Load()

	configPath := flag.String("config", os.Getenv("STORYGATE_CONFIG"), "path to a YAML config file")
	flag.Parse()

	// ----- Config -----
	var files []string
	if *configPath != "" {
		files = append(files, *configPath)
	}
	cfg, err := config.NewLoader(config.EnvPrefix, files...).Load(context.Background())
	if err != nil {
		return err
	}

	// ----- Logger -----
	logger, err := logging.NewLogger(logging.Options{Env: cfg.Logging.Env, Level: cfg.Logging.Level})
	if err != nil {
		return err
	}
	logging.SetDefault(logger)
	defer logger.Sync()

	// ----- Metrics -----
	metrics.Register()

	logger.Info("loaded config",
		zap.String("port", cfg.Server.Port),
		zap.String("llm_provider", cfg.LLM.Provider),
		zap.String("llm_fallback_policy", cfg.LLM.FallbackPolicy),
		zap.String("image_provider", cfg.Image.Provider),
		zap.Bool("image_fallback", cfg.Image.Fallback),
		zap.String("cache_dir", cfg.Cache.Dir),
		zap.String("jobs_backend", cfg.Jobs.Backend),
	)

	// ----- Redis client (only if needed) -----
	var redisClient *redis.Client
	if cfg.Jobs.Backend == "redis" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Jobs.Redis.Addr,
			Password: cfg.Jobs.Redis.Password,
			DB:       cfg.Jobs.Redis.DB,
		})
		defer redisClient.Close()

		// Fail fast if Redis is misconfigured
		if err := redisClient.Ping(context.Background()).Err(); err != nil {
			logger.Error("redis connection failed", zap.Error(err))
			return err
		}
		logger.Info("redis connection established",
			zap.String("addr", cfg.Jobs.Redis.Addr),
		)
	}

	// ----- Job store -----
	store := jobs.NewStore(jobs.StoreConfig{
		Backend:   cfg.Jobs.Backend,
		Retention: cfg.Jobs.Retention,
		Prefix:    cfg.Jobs.Redis.Prefix,
	}, redisClient)

	// ----- Components + router -----
	a, err := app.Build(cfg, store, logger)
	if err != nil {
		return err
	}

	workCtx, stopWork := context.WithCancel(context.Background())
	defer stopWork()
	a.Start(workCtx)

	// ----- HTTP server -----
	srv := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           a.Handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       cfg.Server.ReadTimeout,
		WriteTimeout:      cfg.Server.WriteTimeout,
		IdleTimeout:       cfg.Server.IdleTimeout,
	}

	logger.Info("starting gateway",
		zap.String("addr", srv.Addr),
		zap.String("version", cfg.Server.Version),
	)

	serveErr := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
	}()

	// ----- Graceful shutdown -----
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-stop:
		logger.Info("shutdown signal received")
	case err := <-serveErr:
		logger.Error("server error", zap.Error(err))
		_ = a.Shutdown(context.Background())
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", zap.Error(err))
		return err
	}
	if err := a.Shutdown(shutdownCtx); err != nil {
		logger.Error("job shutdown error", zap.Error(err))
		return err
	}

	logger.Info("server shutdown complete")
	return nil
}
