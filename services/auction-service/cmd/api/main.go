package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/redis/go-redis/v9"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"

	"github.com/floroz/atelier/pkg/auth"
	"github.com/floroz/atelier/pkg/concurrency"
	pkgdb "github.com/floroz/atelier/pkg/database"
	"github.com/floroz/atelier/pkg/logger"
	"github.com/floroz/atelier/services/auction-service/internal/adapters/api"
	"github.com/floroz/atelier/services/auction-service/internal/adapters/database"
	"github.com/floroz/atelier/services/auction-service/internal/adapters/events"
	"github.com/floroz/atelier/services/auction-service/internal/adapters/live"
	"github.com/floroz/atelier/services/auction-service/internal/adapters/store"
	"github.com/floroz/atelier/services/auction-service/internal/config"
	"github.com/floroz/atelier/services/auction-service/internal/domain/admin"
	"github.com/floroz/atelier/services/auction-service/internal/domain/auctions"
	"github.com/floroz/atelier/services/auction-service/internal/domain/bids"
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

	// 2. Redis (auction store and live fan-out)
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

	// 4. Auth
	publicKey, err := os.ReadFile(cfg.Auth.PublicKeyPath)
	if err != nil {
		log.Error("Failed to read JWT public key", "path", cfg.Auth.PublicKeyPath, "error", err)
		os.Exit(1)
	}
	signer, err := auth.NewSignerFromPublicKey(publicKey, cfg.Auth.Issuer)
	if err != nil {
		log.Error("Failed to load JWT public key", "error", err)
		os.Exit(1)
	}

	// 5. Auction store
	retry := store.RetryConfig{
		MaxRetries: cfg.Store.MaxRetries,
		BaseDelay:  cfg.Store.BaseDelay,
		MaxDelay:   cfg.Store.MaxDelay,
	}
	var auctionStore auctions.Store
	switch cfg.Store.Backend {
	case "memory":
		log.Warn("Using in-memory auction store; state is lost on restart")
		auctionStore = store.NewMemoryStore(retry)
	default:
		auctionStore = store.NewRedisStore(rdb, retry)
	}

	// 6. Live feed: every replica subscribes and forwards to its own viewers
	hub := live.NewHub(cfg.Server.AllowedOrigins, log)
	defer hub.Close()

	subscriber := events.NewRedisLiveSubscriber(rdb, log)
	go func() {
		if err := subscriber.Run(ctx, hub.Publish); err != nil && !errors.Is(err, context.Canceled) {
			log.Error("Live subscriber stopped", "error", err)
		}
	}()

	// 7. Notifications
	notifyPool := concurrency.NewWorkerPool(concurrency.PoolConfig{
		Name:        "bid-notifications",
		MaxWorkers:  cfg.Notifications.Workers,
		MaxCapacity: cfg.Notifications.QueueSize,
		NonBlocking: true,
	}, log)

	dispatcher := events.NewDispatcher(notifyPool, publisher, events.NewRedisBroadcaster(rdb), log)

	// 8. Domain services
	txManager := pkgdb.NewPostgresTransactionManager(pool, cfg.Database.LockTimeout)
	catalog := database.NewPostgresCatalogRepository(pool)
	users := database.NewPostgresUserRepository(pool)

	engine := bids.NewEngine(auctionStore, dispatcher, log).WithAntiSnipeWindow(cfg.Bidding.AntiSnipeWindow)
	queries := auctions.NewQueryService(auctionStore, catalog, log)
	adminService := admin.NewService(
		txManager,
		database.NewPostgresArtistRepository(),
		database.NewPostgresRequestRepository(pool),
		database.NewPostgresOutboxRepository(pool),
		auctionStore,
		log,
	)

	// 9. Public REST API
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.RequestID())
	e.Use(middleware.Recover())

	handler := api.NewHandler(engine, queries, users, hub, log)
	handler.Register(e, signer, api.NewBidLimiter(cfg.Bidding.RateLimit, cfg.Bidding.RateBurst))

	// 10. Admin RPC (h2c for HTTP/2 without TLS inside the cluster)
	adminPath, adminHandler := api.NewAdminServiceHandler(api.NewAdminHandler(adminService, log), signer)
	adminMux := http.NewServeMux()
	adminMux.Handle(adminPath, adminHandler)
	adminSrv := &http.Server{
		Addr:    cfg.Server.AdminAddress,
		Handler: h2c.NewHandler(adminMux, &http2.Server{}),
	}

	go func() {
		log.Info("Starting admin RPC server", "addr", cfg.Server.AdminAddress)
		if err := adminSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("Admin server failed", "error", err)
			stop()
		}
	}()

	go func() {
		log.Info("Starting auction API", "addr", cfg.Server.Address, "store", cfg.Store.Backend)
		if err := e.Start(cfg.Server.Address); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("API server failed", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	log.Info("Shutting down auction API...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := e.Shutdown(shutdownCtx); err != nil {
		log.Error("API shutdown failed", "error", err)
	}
	if err := adminSrv.Shutdown(shutdownCtx); err != nil {
		log.Error("Admin shutdown failed", "error", err)
	}
	// In-flight notifications get whatever is left of the shutdown budget.
	notifyPool.StopWithin(cfg.Server.ShutdownTimeout)
	log.Info("Auction API stopped", "notification_pool", notifyPool.Stats())
}
