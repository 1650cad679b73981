/**
 * @description
 * This is the main entry point for the keygate worker. It hosts every
 * asynchronous consumer in the account lifecycle: account provisioning
 * (user.created), the daily renewal scan (billing.renewal.trigger), the
 * simulated charge decision (payment.requested), the payment outcome
 * handlers, and the external key provisioning sync (account.mutation). It
 * also runs the outbox dispatcher that publishes committed store mutations
 * to the broker.
 */
package main

import (
	"context"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"

	"github.com/keygate/keygate-backend/internal/app"
	"github.com/keygate/keygate-backend/internal/config"
	"github.com/keygate/keygate-backend/internal/domain"
	"github.com/keygate/keygate-backend/internal/store"
	"github.com/keygate/keygate-backend/pkg/gatewayclient"
	"github.com/keygate/keygate-backend/pkg/rabbitmq"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	// Load .env file for local development. In production, env vars are set directly.
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("cannot load config: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Establish database connection pool
	dbConfig, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("Unable to parse database URL: %v\n", err)
	}

	dbConfig.MaxConns = 10
	dbConfig.MinConns = 2
	dbConfig.MaxConnLifetime = 30 * time.Minute
	dbConfig.MaxConnIdleTime = 5 * time.Minute
	dbConfig.ConnConfig.DefaultQueryExecMode = pgx.QueryExecModeExec

	dbpool, err := pgxpool.NewWithConfig(ctx, dbConfig)
	if err != nil {
		log.Fatalf("Unable to connect to database: %v\n", err)
	}
	defer dbpool.Close()
	log.Println("Database connection established")

	if err := store.EnsureSchema(ctx, dbpool); err != nil {
		log.Fatalf("Failed ensuring database schema: %v", err)
	}

	// Set up dependencies
	accounts := store.NewPostgresAccountRepository(dbpool)
	cards := store.NewPostgresCardRepository(dbpool)
	ledger := store.NewPostgresLedgerRepository(dbpool)
	keyIDs := store.NewPostgresKeyIDRepository(dbpool)
	outbox := store.NewPostgresOutboxRepository(dbpool)

	producer, err := rabbitmq.NewEventProducer(cfg.RabbitMQURL)
	if err != nil {
		log.Fatalf("Failed to connect to RabbitMQ producer: %v", err)
	}
	defer producer.Close()

	gateway := gatewayclient.NewClient(cfg.GatewayAPIBaseURL, cfg.GatewayAPIKey)

	provisioning := app.NewAccountProvisioningHandler(accounts)
	renewal := app.NewRenewalProcessor(accounts, cards, ledger, producer, logger)
	payments := app.NewPaymentRequestHandler(cards, producer)
	outcomes := app.NewPaymentOutcomeHandler(accounts, ledger, producer)
	keysync := app.NewKeyProvisioningSync(keyIDs, gateway, cfg.FreeUsagePlanName, cfg.PaidUsagePlanName)

	// Start the outbox dispatcher in the background
	dispatcher := app.NewOutboxDispatcher(outbox, cfg.RabbitMQURL, logger)
	go dispatcher.Run(ctx)

	// Set up and start RabbitMQ consumer
	consumer, err := rabbitmq.NewConsumer(cfg.RabbitMQURL)
	if err != nil {
		log.Fatalf("Failed to connect to RabbitMQ: %v", err)
	}
	defer consumer.Close()

	bindings := map[string]func([]byte) bool{
		domain.UserCreatedKey:      provisioning.HandleUserCreated,
		domain.RenewalTriggerKey:   renewal.HandleRenewalTrigger,
		domain.PaymentRequestedKey: payments.HandlePaymentRequested,
		domain.PaymentSuccessKey:   outcomes.HandlePaymentSuccess,
		domain.PaymentFailureKey:   outcomes.HandlePaymentFailure,
		domain.AccountMutationKey:  keysync.HandleAccountMutation,
	}

	queueName := "keygate_worker"
	go func() {
		log.Printf("Starting consumer for queue '%s'...", queueName)
		if err := consumer.ConsumeWithBindings(domain.AccountEventsExchange, queueName, bindings); err != nil {
			log.Fatalf("Consumer error: %v", err)
		}
	}()

	log.Println("Keygate worker is running. Waiting for events.")

	// Wait for termination signal for graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("Shutting down keygate worker...")
}
