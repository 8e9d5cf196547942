package main

import (
	"context"
	"encoding/json"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-assessment/internal/config"
	"github.com/stemsi/exstem-assessment/internal/database"
	"github.com/stemsi/exstem-assessment/internal/events"
	"github.com/stemsi/exstem-assessment/internal/handler"
	"github.com/stemsi/exstem-assessment/internal/logger"
	"github.com/stemsi/exstem-assessment/internal/metrics"
	"github.com/stemsi/exstem-assessment/internal/middleware"
	"github.com/stemsi/exstem-assessment/internal/notify"
	"github.com/stemsi/exstem-assessment/internal/repository"
	"github.com/stemsi/exstem-assessment/internal/router"
	"github.com/stemsi/exstem-assessment/internal/service"
	"github.com/stemsi/exstem-assessment/internal/validator"
	"github.com/stemsi/exstem-assessment/internal/worker"
)

func main() {
	// ─── Load Configuration ────────────────────────────────────────────
	cfg := config.Load()

	// ─── Initialize Logger ─────────────────────────────────────────────
	log := logger.Setup(cfg.LogLevel, cfg.LogFormat)
	log.Info().
		Str("port", cfg.ServerPort).
		Str("mode", cfg.GinMode).
		Str("log_level", cfg.LogLevel).
		Msg("Starting ExStem Assessment")

	validator.Setup()
	metrics.Init()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// ─── Connect to PostgreSQL ─────────────────────────────────────────
	pool, err := database.NewPostgresPool(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to PostgreSQL")
	}
	defer pool.Close()

	// ─── Connect to Redis ──────────────────────────────────────────────
	rdb, err := database.NewRedisClient(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to Redis")
	}
	defer rdb.Close()

	// ─── Event Bus ─────────────────────────────────────────────────────
	bus, err := events.New(cfg.KafkaBrokers, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create event bus")
	}
	defer bus.Close()

	// ─── Initialize Repositories ───────────────────────────────────────
	assessmentRepo := repository.NewAssessmentRepository(pool)
	questionRepo := repository.NewQuestionRepository(pool)
	attemptRepo := repository.NewAttemptRepository(pool)

	// ─── Initialize Services ──────────────────────────────────────────
	notifier := notify.Fanout{
		notify.NewRedisQueue(rdb, config.WorkerKey.PersistResultsQueue),
		notify.NewEventBus(bus, cfg.ResultTopic),
	}

	authService := service.NewAuthService(cfg)
	assessmentService := service.NewAssessmentService(assessmentRepo, questionRepo, rdb, log)
	attemptService := service.NewAttemptService(assessmentService, notifier, cfg, log)
	resultService := service.NewResultService(attemptRepo, log)

	// ─── Initialize Handlers ──────────────────────────────────────────
	handlers := &router.Handlers{
		Assessment:    handler.NewAssessmentHandler(assessmentService),
		StudentPortal: handler.NewStudentPortalHandler(assessmentService, resultService),
		Result:        handler.NewResultHandler(resultService, assessmentService, log),
		WS:            handler.NewWSHandler(attemptService, log, cfg.AllowedOrigins, cfg.WSCommandsPerSecond),
	}

	// ─── Start Background Workers ─────────────────────────────────────
	workerCtx, workerCancel := context.WithCancel(context.Background())

	resultWorker := worker.NewResultWorker(pool, rdb, log)
	workerDone := make(chan struct{})
	go func() {
		defer close(workerDone)
		resultWorker.Start(workerCtx)
	}()

	limiter := middleware.NewRateLimiter(cfg.RateLimitPerMinute, time.Minute)
	go limiter.Start(workerCtx.Done())

	// Without Kafka nobody else reads the topic; log announcements locally.
	if len(cfg.KafkaBrokers) == 0 {
		go func() {
			err := bus.Consume(workerCtx, cfg.ResultTopic, func(payload []byte) error {
				var msg notify.ResultMessage
				if err := json.Unmarshal(payload, &msg); err != nil {
					return err
				}
				log.Info().
					Str("attempt_id", msg.AttemptID).
					Str("assessment_id", msg.AssessmentID).
					Int("user_id", msg.UserID).
					Int("score", msg.Score).
					Bool("auto_submitted", msg.AutoSubmitted).
					Msg("Attempt submitted")
				return nil
			})
			if err != nil && workerCtx.Err() == nil {
				log.Error().Err(err).Msg("Result topic consumer stopped")
			}
		}()
	}

	// ─── Prewarm Redis Caches ─────────────────────────────────────────
	// Load all published assessments into Redis BEFORE accepting traffic.
	if err := assessmentService.PrewarmAllCaches(ctx); err != nil {
		log.Warn().Err(err).Msg("Cache prewarm failed")
	}

	// ─── Setup Router ──────────────────────────────────────────────────
	r := router.SetupRouter(authService, handlers, limiter, cfg, log)

	srv := &http.Server{
		Addr:              ":" + cfg.ServerPort,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	// Upgraded connections are hijacked; Shutdown only reaches them via this hook.
	srv.RegisterOnShutdown(handlers.WS.CloseAll)

	go func() {
		log.Info().Str("addr", ":"+cfg.ServerPort).Msg("Server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Server error")
		}
	}()

	// ─── Graceful Shutdown ─────────────────────────────────────────────
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit

	log.Info().Str("signal", sig.String()).Msg("Shutting down gracefully...")

	// 1. Stop accepting new HTTP requests (5s timeout).
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown error")
	}

	// 2. Let live attempts tear down and flush their result notifications.
	attemptsCtx, attemptsCancel := context.WithTimeout(context.Background(), cfg.NotifyTimeout+time.Second)
	defer attemptsCancel()
	if err := handlers.WS.Wait(attemptsCtx); err != nil {
		log.Warn().Err(err).Msg("Live attempts did not finish in time")
	}

	// 3. Stop background workers and wait for the result queue to drain.
	workerCancel()
	select {
	case <-workerDone:
	case <-time.After(10 * time.Second):
		log.Warn().Msg("Result worker did not stop in time")
	}

	log.Info().Msg("Shutdown complete")
}

// init sets zerolog global defaults before main runs.
func init() {
	zerolog.TimeFieldFormat = time.RFC3339
}
