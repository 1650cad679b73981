/**
 * @description
 * This is the main entry point for the keygate API service: the synchronous
 * request layer an authenticated user calls to manage their API key, credit
 * card, billing, and account. It wires together configuration, the database
 * connection pool, the event producer, the external clients, and the HTTP
 * router, then starts the server with graceful shutdown.
 */
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"github.com/keygate/keygate-backend/internal/api"
	"github.com/keygate/keygate-backend/internal/app"
	"github.com/keygate/keygate-backend/internal/config"
	"github.com/keygate/keygate-backend/internal/store"
	"github.com/keygate/keygate-backend/pkg/authclient"
	"github.com/keygate/keygate-backend/pkg/rabbitmq"
)

func main() {
	// Initialize structured logger
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	// Load .env file for local development. In production, env vars are set directly.
	if err := godotenv.Load(); err != nil {
		logger.Info("no .env file found, using environment variables")
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		logger.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	// Establish connection to the PostgreSQL database with connection pool configuration
	dbConfig, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		logger.Error("unable to parse database URL", "error", err)
		os.Exit(1)
	}

	dbConfig.MaxConns = 100
	dbConfig.MinConns = 20
	dbConfig.MaxConnLifetime = 30 * time.Minute
	dbConfig.MaxConnIdleTime = 5 * time.Minute

	// Disable prepared statement caching to prevent conflicts behind poolers
	dbConfig.ConnConfig.DefaultQueryExecMode = pgx.QueryExecModeSimpleProtocol

	dbpool, err := pgxpool.NewWithConfig(ctx, dbConfig)
	if err != nil {
		logger.Error("unable to connect to database", "error", err)
		os.Exit(1)
	}
	defer dbpool.Close()
	logger.Info("database connection established")

	if err := store.EnsureSchema(ctx, dbpool); err != nil {
		logger.Error("failed to ensure database schema", "error", err)
		os.Exit(1)
	}

	// Event producer, with a no-op fallback so the API stays up when the
	// broker is briefly unavailable at startup.
	var publisher rabbitmq.Publisher
	producer, err := rabbitmq.NewEventProducer(cfg.RabbitMQURL)
	if err != nil {
		logger.Warn("rabbitmq unavailable at startup, using fallback publisher", "error", err)
		publisher = &rabbitmq.EventProducerFallback{}
	} else {
		publisher = producer
	}
	defer publisher.Close()

	// Optional Redis-backed rate limiting
	var limiter *api.RedisRateLimiter
	if cfg.RedisURL != "" {
		redisOptions, parseErr := redis.ParseURL(cfg.RedisURL)
		if parseErr != nil {
			logger.Warn("redis url parse failed, rate limiting disabled", "error", parseErr)
		} else {
			redisClient := redis.NewClient(redisOptions)
			pingCtx, pingCancel := context.WithTimeout(ctx, 5*time.Second)
			if pingErr := redisClient.Ping(pingCtx).Err(); pingErr != nil {
				logger.Warn("redis ping failed, rate limiting disabled", "error", pingErr)
				redisClient.Close()
			} else {
				limiter = api.NewRedisRateLimiter(redisClient, "keygate:rate_limit", cfg.RateLimitPerMinute, time.Minute)
				defer redisClient.Close()
			}
			pingCancel()
		}
	}

	// Initialize application layers
	accounts := store.NewPostgresAccountRepository(dbpool)
	cards := store.NewPostgresCardRepository(dbpool)
	ledger := store.NewPostgresLedgerRepository(dbpool)
	identity := authclient.NewClient(cfg.AuthAPIBaseURL, cfg.AuthAPIKey)
	service := app.NewService(accounts, cards, ledger, publisher, identity)
	handler := api.NewHandler(service)
	router := api.NewRouter(handler, cfg.JWTSecret, limiter)

	// Configure and start the HTTP server
	server := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.Port),
		Handler: router,
	}

	go func() {
		logger.Info("starting server", "port", cfg.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server failed to start", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for an OS signal
	<-sigCh
	logger.Info("shutdown signal received, gracefully shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown failed", "error", err)
	}

	logger.Info("server stopped")
}
