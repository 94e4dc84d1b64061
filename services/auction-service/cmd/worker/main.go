package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	pkgdb "github.com/floroz/atelier/pkg/database"
	pkgevents "github.com/floroz/atelier/pkg/events"
	"github.com/floroz/atelier/pkg/logger"
	"github.com/floroz/atelier/services/auction-service/internal/adapters/database"
	"github.com/floroz/atelier/services/auction-service/internal/adapters/events"
	"github.com/floroz/atelier/services/auction-service/internal/adapters/jobs"
	"github.com/floroz/atelier/services/auction-service/internal/adapters/store"
	"github.com/floroz/atelier/services/auction-service/internal/config"
	"github.com/floroz/atelier/services/auction-service/internal/domain/admin"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	log, err := logger.New(cfg.Log.Level)
	if err != nil {
		panic(err)
	}
	defer func() { _ = log.Sync() }()

	if err := cfg.Validate(); err != nil {
		log.Error("Invalid configuration", "error", err)
		os.Exit(1)
	}
	if cfg.Store.Backend != "redis" {
		log.Error("The worker needs the shared redis auction store", "backend", cfg.Store.Backend)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// 1. Postgres
	pool, err := pkgdb.NewPool(ctx, cfg.Database.URL, cfg.Database.MaxConns)
	if err != nil {
		log.Error("Failed to connect to Postgres", "error", err)
		os.Exit(1)
	}
	defer pool.Close()
	log.Info("Postgres Connected")

	// 2. Redis
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Address,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer rdb.Close()
	if err := rdb.Ping(ctx).Err(); err != nil {
		log.Error("Failed to connect to Redis", "error", err)
		os.Exit(1)
	}
	log.Info("Redis Connected")

	// 3. RabbitMQ
	amqpConn, err := amqp.Dial(cfg.RabbitMQ.URL)
	if err != nil {
		log.Error("Failed to connect to RabbitMQ", "error", err)
		os.Exit(1)
	}
	defer amqpConn.Close()

	publisher, err := events.NewRabbitMQPublisher(amqpConn)
	if err != nil {
		log.Error("Failed to create RabbitMQ publisher", "error", err)
		os.Exit(1)
	}
	defer publisher.Close()
	log.Info("RabbitMQ Connected")

	// 4. Repositories and services
	txManager := pkgdb.NewPostgresTransactionManager(pool, cfg.Database.LockTimeout)
	outboxRepo := database.NewPostgresOutboxRepository(pool)
	auctionStore := store.NewRedisStore(rdb, store.RetryConfig{
		MaxRetries: cfg.Store.MaxRetries,
		BaseDelay:  cfg.Store.BaseDelay,
		MaxDelay:   cfg.Store.MaxDelay,
	})
	adminService := admin.NewService(
		txManager,
		database.NewPostgresArtistRepository(),
		database.NewPostgresRequestRepository(pool),
		outboxRepo,
		auctionStore,
		log,
	)

	var mailer events.Mailer
	if cfg.SMTP.Host != "" {
		mailer = events.NewSMTPMailer(cfg.SMTP.Host, cfg.SMTP.Port, cfg.SMTP.Username, cfg.SMTP.Password, cfg.SMTP.From)
	} else {
		log.Warn("SMTP_HOST not set, notification emails are only logged")
		mailer = events.NewLogMailer(log)
	}

	relay := pkgevents.NewOutboxRelay(
		outboxRepo,
		publisher,
		txManager,
		cfg.Worker.OutboxBatchSize,
		cfg.Worker.OutboxInterval,
		events.Exchange,
		log,
	)
	consumer := events.NewNotificationConsumer(amqpConn, database.NewPostgresUserRepository(pool), mailer, log)

	// 5. Periodic jobs
	scheduler := jobs.NewScheduler(adminService, outboxRepo, log)
	if err := scheduler.Start(ctx, cfg.Worker.ReconcileCron); err != nil {
		log.Error("Failed to start scheduler", "error", err)
		os.Exit(1)
	}
	defer scheduler.Stop()

	// 6. Run until a signal or a fatal component error
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("Starting Outbox Relay...")
		return relay.Run(gctx)
	})
	g.Go(func() error {
		log.Info("Starting Notification Consumer...")
		return consumer.Run(gctx)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		log.Error("Worker failed", "error", err)
		scheduler.Stop()
		os.Exit(1)
	}
	log.Info("Worker stopped")
}
