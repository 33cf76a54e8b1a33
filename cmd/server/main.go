package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jonboulle/clockwork"

	"github.com/wisdom-muso/laso/internal/broadcast"
	"github.com/wisdom-muso/laso/internal/config"
	"github.com/wisdom-muso/laso/internal/domain"
	"github.com/wisdom-muso/laso/internal/ingest"
	"github.com/wisdom-muso/laso/internal/logging"
	"github.com/wisdom-muso/laso/internal/postgres"
	"github.com/wisdom-muso/laso/internal/redis"
	"github.com/wisdom-muso/laso/internal/server"
)

func setupConfig() *config.Config {
	cfg, err := config.Load()
	if err != nil {
		// Use log before slog is initialized
		log.Fatalf("Failed to load config: %v", err)
	}
	return cfg
}

func setupDB(cfg *config.Config) *pgxpool.Pool {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := postgres.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		slog.Error("Failed to connect to database", "error", err)
		os.Exit(1)
	}

	if err := postgres.RunMigrationsWithLock(ctx, pool); err != nil {
		slog.Error("Failed to run migrations", "error", err)
		os.Exit(1)
	}

	return pool
}

func setupRedis(cfg *config.Config) *redis.Client {
	client, err := redis.NewClient(cfg.RedisURL)
	if err != nil {
		slog.Error("Failed to connect to Redis", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx); err != nil {
		slog.Error("Failed to ping Redis", "error", err)
		os.Exit(1)
	}

	return client
}

// seedDevelopmentData inserts a demo patient and treating staff so a fresh
// local environment is usable immediately.
func seedDevelopmentData(patients *postgres.PatientRepo) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	patientID := uuid.MustParse("00000000-0000-0000-0000-000000000001")
	staffID := uuid.MustParse("00000000-0000-0000-0000-000000000002")

	if err := patients.Create(ctx, domain.Patient{ID: patientID, Name: "Demo Patient"}); err != nil {
		slog.Warn("Failed to seed demo patient", "error", err)
		return
	}
	if err := patients.AssignStaff(ctx, staffID, patientID); err != nil {
		slog.Warn("Failed to seed demo treatment", "error", err)
		return
	}
	slog.Info("Seeded development data",
		"patient_id", patientID.String(), "staff_id", staffID.String())
}

func runGracefulShutdown(srv *server.Server, dispatcher *broadcast.Dispatcher) <-chan struct{} {
	done := make(chan struct{})
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sigChan
		slog.Info("Shutdown signal received, cleaning up...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Error("Server shutdown error", "error", err)
		}

		dispatcher.Stop()

		close(done)
	}()

	return done
}

func main() {
	clock := clockwork.NewRealClock()

	cfg := setupConfig()

	logging.InitLogger(cfg.LogLevel, cfg.LogFormat)
	slog.Info("Application starting", "env", cfg.AppEnv, "port", cfg.Port)

	pool := setupDB(cfg)
	defer pool.Close()

	vitalsRepo := postgres.NewVitalsRepo(pool)
	alertRepo := postgres.NewAlertRepo(pool)
	patientRepo := postgres.NewPatientRepo(pool)

	if cfg.AppEnv == "development" {
		seedDevelopmentData(patientRepo)
	}

	// Redis is optional: without it new subscribers simply miss the
	// latest-reading snapshot until the next observation arrives.
	var (
		cache       domain.LatestReadingCache
		redisHealth interface {
			Ping(ctx context.Context) error
		}
	)
	if cfg.RedisURL != "" {
		redisClient := setupRedis(cfg)
		defer func() { _ = redisClient.Close() }()
		cache = redis.NewLatestReadingCache(redisClient.Underlying())
		redisHealth = redisClient
	}

	dispatcher := broadcast.NewDispatcher(clock, broadcast.Options{
		QueueSize:    cfg.SubscriberQueueSize,
		PingInterval: cfg.PingInterval,
		IdleTimeout:  cfg.IdleTimeout,
	})

	pipeline := ingest.New(vitalsRepo, patientRepo, dispatcher, cache,
		clock, cfg.MaxFutureSkew, cfg.AlertThresholdCategory())

	srv := server.NewServer(cfg, clock, server.Dependencies{
		Pipeline:       pipeline,
		Vitals:         vitalsRepo,
		Alerts:         alertRepo,
		Patients:       patientRepo,
		Cache:          cache,
		Dispatcher:     dispatcher,
		PostgresHealth: pool,
		RedisHealth:    redisHealth,
	})

	done := runGracefulShutdown(srv, dispatcher)

	slog.Info("Server starting", "port", cfg.Port)
	if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("Server error", "error", err)
		os.Exit(1)
	}

	<-done
}
