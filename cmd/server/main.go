package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ignite/sendcore/internal/api"
	"github.com/ignite/sendcore/internal/config"
	"github.com/ignite/sendcore/internal/dispatch"
	"github.com/ignite/sendcore/internal/events"
	"github.com/ignite/sendcore/internal/repository/postgres"
	"github.com/ignite/sendcore/internal/retry"
	"github.com/ignite/sendcore/internal/service/admission"
	"github.com/ignite/sendcore/internal/service/reputation"
	"github.com/ignite/sendcore/internal/service/suppression"
	"github.com/ignite/sendcore/internal/worker"

	_ "github.com/lib/pq" // PostgreSQL driver
)

func main() {
	cfg, err := config.LoadFromEnv("config/config.yaml")
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	db, err := openDatabase(cfg.Database)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Repositories
	suppressionRepo := postgres.NewSuppressionRepo(db)
	reputationRepo := postgres.NewReputationRepo(db)
	eventRepo := postgres.NewEventRepo(db)
	messageRepo := postgres.NewMessageRepo(db)
	webhookRepo := postgres.NewWebhookRepo(db)
	tenantRepo := postgres.NewTenantRepo(db)

	// Core services
	suppressions := suppression.NewService(suppressionRepo,
		suppression.WithSoftBounceTTL(cfg.Reliability.SoftBounceTTL()))

	tracker := reputation.NewTracker(reputationRepo,
		reputation.WithThresholds(reputation.Thresholds{
			BouncePct:    cfg.Reliability.BounceThrottleThresholdPct,
			ComplaintPct: cfg.Reliability.ComplaintThrottleThresholdPct,
		}),
		reputation.WithParallelism(cfg.Reliability.ReputationSweepParallelism))
	if err := tracker.WarmCache(ctx); err != nil {
		log.Printf("Warning: reputation cache warm-up failed: %v", err)
	}
	go tracker.Run(ctx, cfg.Reliability.SweepInterval())

	admissionCtrl := admission.NewController(suppressions, tracker)

	ingestor := events.NewIngestor(eventRepo, suppressions,
		events.WithIPAnonymization(cfg.Reliability.AnonymizeIPs()),
		events.WithWebhookFanout(webhookRepo, cfg.Reliability.MaxWebhookRetries))

	scheduler := retry.NewScheduler(
		retry.WithSchedule(cfg.Reliability.RetrySchedule()),
		retry.WithSuppressor(suppressions),
		retry.WithEventRecorder(ingestor))

	// Redis: queue engine handoff, rate limiting, outcome intake
	redisClient, err := connectRedis(ctx, cfg.Redis)
	if err != nil {
		log.Fatalf("Failed to connect to Redis: %v", err)
	}
	defer redisClient.Close()

	engine := dispatch.NewRedisEngine(redisClient, "")
	var limiter dispatch.Limiter
	if cfg.Redis.Enabled {
		limiter = dispatch.NewRateLimiter(redisClient)
	}
	dispatcher := dispatch.NewDispatcher(engine, limiter, tenantRepo, messageRepo)

	// Background workers
	go worker.NewDispatchWorker(messageRepo, dispatcher,
		cfg.Dispatch.Interval(), cfg.Dispatch.BatchSize).Run(ctx)
	go worker.NewWebhookWorker(webhookRepo, engine, 0).Run(ctx)
	go worker.NewJanitor(suppressions, 0).Run(ctx)

	outcomes := worker.NewOutcomeWorker(redisClient, "", scheduler, messageRepo, webhookRepo)
	go func() {
		if err := outcomes.Run(ctx); err != nil && ctx.Err() == nil {
			log.Printf("Outcome worker exited: %v", err)
		}
	}()

	// HTTP surface
	handlers := api.NewHandlers(suppressions, tracker, admissionCtrl, ingestor, dispatcher, messageRepo)
	handlers.SetMessageIntake(messageRepo, cfg.Reliability.MaxEmailRetries, cfg.Reliability.RetrySchedule())
	router := api.SetupRoutes(handlers)

	addr := fmt.Sprintf("%s:%d", cfg.Server.GetHost(), cfg.Server.Port)
	server := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		log.Printf("Starting server on %s", addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server error: %v", err)
		}
	}()

	<-done
	log.Println("Shutting down...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server shutdown error: %v", err)
	}
	log.Println("Server stopped")
}

func openDatabase(cfg config.DatabaseConfig) (*sql.DB, error) {
	db, err := sql.Open("postgres", cfg.URL)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(time.Duration(cfg.ConnMaxLifetime) * time.Second)

	pingCtx, pingCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer pingCancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

func connectRedis(ctx context.Context, cfg config.RedisConfig) (*redis.Client, error) {
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		opts = &redis.Options{Addr: cfg.URL}
	}
	client := redis.NewClient(opts)

	pingCtx, pingCancel := context.WithTimeout(ctx, 3*time.Second)
	defer pingCancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, err
	}
	return client, nil
}
