package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"

	"github.com/kkkkikiki/surveyreview/internal/config"
	"github.com/kkkkikiki/surveyreview/internal/database"
	"github.com/kkkkikiki/surveyreview/internal/generation"
	"github.com/kkkkikiki/surveyreview/internal/handler"
	"github.com/kkkkikiki/surveyreview/internal/jobs"
	"github.com/kkkkikiki/surveyreview/internal/lock"
	"github.com/kkkkikiki/surveyreview/internal/logger"
	"github.com/kkkkikiki/surveyreview/internal/prompt"
	"github.com/kkkkikiki/surveyreview/internal/quota"
	"github.com/kkkkikiki/surveyreview/internal/repository"
	"github.com/kkkkikiki/surveyreview/internal/rpc"
	"github.com/kkkkikiki/surveyreview/internal/service"
)

func main() {
	ctx := context.Background()

	// Load configuration from environment variables
	cfg, err := config.Load(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(cfg.App.Environment, cfg.App.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to build logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	log.Info("Starting survey review service", "environment", cfg.App.Environment)

	// Initialize database connections
	db, err := database.NewDB(ctx, cfg, log)
	if err != nil {
		log.Fatal("Failed to connect to database", "error", err)
	}
	defer func() {
		if err := db.Close(); err != nil {
			log.Error("Error closing database connections", "error", err)
		}
	}()

	shops := repository.NewShopRepository(db.Postgres)
	settings := repository.NewSurveySettingsRepository(db.Postgres)
	responses := repository.NewSurveyResponseRepository(db.Postgres)
	reviews := repository.NewReviewRepository(db.Postgres)

	governor := quota.NewGovernor(shops, log, nil)

	generator, err := generation.New(ctx, cfg.Generation, log)
	if err != nil {
		log.Fatal("Failed to create generation client", "error", err)
	}

	// Redis is optional: without it generation locks are per process and the
	// rollover sweep is not scheduled.
	var locker lock.Locker = lock.NewLocalLocker()
	var runner *jobs.Runner
	if cfg.Redis.Enabled() {
		rdb, err := database.NewRedis(ctx, cfg.Redis)
		if err != nil {
			log.Fatal("Failed to connect to redis", "error", err)
		}
		defer rdb.Close()
		locker = lock.NewRedisLocker(rdb, "surveyreview:generate:", log)

		runner, err = jobs.NewRunner(
			asynq.RedisClientOpt{Addr: cfg.Redis.Addr, Password: cfg.Redis.Password, DB: cfg.Redis.DB},
			cfg.Quota.SweepSchedule, cfg.Quota.SweepBatch, governor, log,
		)
		if err != nil {
			log.Fatal("Failed to create job runner", "error", err)
		}
		if err := runner.Start(); err != nil {
			log.Fatal("Failed to start job runner", "error", err)
		}
	} else {
		log.Warn("REDIS_ADDR not set; using in-process locks and lazy quota rollover only")
	}

	reviewService := service.NewReviewService(service.ReviewDeps{
		Reviews:   reviews,
		Responses: responses,
		Settings:  settings,
		Shops:     shops,
		Governor:  governor,
		Prompts:   prompt.NewBuilder(nil),
		Generator: generator,
		Locker:    locker,
	}, service.ReviewOptions{
		GenerationTimeout: cfg.Generation.GenerationTimeout(),
		LockTTL:           time.Duration(cfg.Generation.LockTTL) * time.Second,
	}, log)
	surveyService := service.NewSurveyService(settings, responses, shops, log)
	shopService := service.NewShopService(shops, governor, cfg.Quota.SweepBatch, log)

	rpcPath, rpcHandler := rpc.NewReviewServiceHandler(rpc.NewReviewServer(reviewService, log))

	h := handler.NewHandler(reviewService, surveyService, shopService, cfg.App.IsDevelopment(), log)
	router := handler.NewRouter(h, handler.RouterOptions{
		AllowedOrigins: cfg.Server.AllowedOrigins,
		Auth:           handler.NewAuthenticator(cfg.Auth.JWTSecret, cfg.Auth.Issuer, cfg.Auth.Audience),
		DB:             db,
		Mount:          map[string]http.Handler{rpcPath: rpcHandler},
	})

	server := &http.Server{
		Addr:           cfg.Server.GetServerAddr(),
		ReadTimeout:    time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout:   time.Duration(cfg.Server.WriteTimeout) * time.Second,
		IdleTimeout:    120 * time.Second,
		MaxHeaderBytes: 1 << 20, // 1MB
		// Use h2c so we can serve HTTP/2 without TLS
		Handler: h2c.NewHandler(router, &http2.Server{
			MaxConcurrentStreams: 250,
		}),
	}

	// Start server in goroutine
	go func() {
		log.Info("Listening", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("Failed to start server", "error", err)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("Shutting down server...")

	// In-flight generations may run up to the write timeout.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.Server.WriteTimeout)*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("Server forced to shutdown", "error", err)
	}
	if runner != nil {
		runner.Shutdown()
	}

	log.Info("Server exited gracefully")
}
