package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Madhav-Gupta-28/0xmart-reconciler/config"
	"github.com/Madhav-Gupta-28/0xmart-reconciler/database"
	"github.com/Madhav-Gupta-28/0xmart-reconciler/handlers"
	"github.com/Madhav-Gupta-28/0xmart-reconciler/jobs"
	customMiddleware "github.com/Madhav-Gupta-28/0xmart-reconciler/middleware"
	"github.com/Madhav-Gupta-28/0xmart-reconciler/routes"
	"github.com/Madhav-Gupta-28/0xmart-reconciler/utils"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// store is everything main wires against; both MongoStore and MemoryStore
// satisfy it.
type store interface {
	jobs.ReconcileStore
	handlers.LedgerStore
	utils.MailStore
	utils.SMSStore
}

func main() {
	envErr := config.LoadEnv()
	cfg := config.Load()
	logger := config.NewLogger(cfg.LogLevel)
	if envErr != nil {
		logger.WithError(envErr).Warn("no .env file loaded, using process environment")
	}

	var (
		st       store
		ledger   *handlers.LedgerSynchronizer
		listener *utils.OrderEventListener
	)
	ledgerLog := logger.WithField("module", "ledger")

	switch cfg.Store {
	case "memory":
		mem := database.NewMemoryStore()
		ledger = handlers.NewLedgerSynchronizer(mem, ledgerLog)
		mem.Subscribe(func(c database.OrderChange) {
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			switch c.Operation {
			case "insert":
				ledger.OnOrderCreated(ctx, c.OrderID, c.Document)
			case "update":
				ledger.OnOrderUpdated(ctx, c.OrderID, c.Document)
			}
		})
		st = mem
		logger.Warn("running against the in-process memory store")
	default:
		db, err := database.ConnectDB(cfg.MongoURI, cfg.MongoDatabase)
		if err != nil {
			logger.WithError(err).Fatal("failed to connect to database")
		}
		logger.WithField("database", cfg.MongoDatabase).Info("connected to MongoDB")
		mongoStore := database.NewMongoStore(db, cfg.MongoTransactions)
		ledger = handlers.NewLedgerSynchronizer(mongoStore, ledgerLog)
		listener = utils.NewOrderEventListener(db.Collection(database.OrdersCollection), ledger, logger.WithField("module", "listener"))
		if err := listener.Start(); err != nil {
			// The ledger falls behind until the listener is restarted from
			// the admin API; reconciliation does not depend on it.
			logger.WithError(err).Error("failed to start order change listener")
		}
		st = mongoStore
	}

	var locker jobs.Locker = jobs.NewLocalLocker()
	if cfg.RedisAddress != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddress})
		pingCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		err := rdb.Ping(pingCtx).Err()
		cancel()
		if err != nil {
			logger.WithError(err).Fatal("failed to connect to redis")
		}
		defer rdb.Close()
		locker = jobs.NewRedisLocker(rdb)
		logger.WithField("addr", cfg.RedisAddress).Info("using redis run lock")
	}

	var notifier jobs.Notifier
	if cfg.NotifyOnCleanup {
		sms := utils.NewSMSClient(utils.SMSConfig{
			URL:    cfg.SMSAPIURL,
			User:   cfg.SMSAPIUser,
			APIKey: cfg.SMSAPIKey,
			Sender: cfg.SMSSender,
		}, st, logger.WithField("module", "sms"))
		notifier = utils.NewCancellationNotifier(utils.NewMailer(st), sms, logger.WithField("module", "notify"))
	}

	reconciler := jobs.NewReconciler(st, locker, notifier, logger, jobs.Options{
		BatchLimit: cfg.BatchLimit,
		Grace:      cfg.RestockGrace,
		Mode:       jobs.RestockMode(cfg.RestockMode),
		LockTTL:    cfg.ReconcileTimeout + time.Minute,
	})

	scheduler, err := jobs.NewScheduler(cfg.Schedule, cfg.Timezone, cfg.ReconcileTimeout, reconciler, logger)
	if err != nil {
		logger.WithError(err).Fatal("invalid reconcile schedule")
	}
	scheduler.Start()
	logger.WithFields(logrus.Fields{
		"batchLimit": cfg.BatchLimit,
		"schedule":   cfg.Schedule,
		"timezone":   cfg.Timezone,
		"next":       scheduler.Next(),
	}).Info("reconciliation scheduled")

	// Initialize Echo
	e := echo.New()
	e.HideBanner = true

	// Middleware
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	e.Use(customMiddleware.Metrics())

	routes.SetupRoutes(e, cfg.JWTSecret,
		handlers.NewAdminHandler(reconciler, ledger, cfg.ReconcileTimeout),
		handlers.NewListenerHandler(listener),
	)

	go func() {
		logger.WithField("port", cfg.Port).Info("server starting")
		if err := e.Start(":" + cfg.Port); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithError(err).Fatal("server stopped")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit
	logger.Info("shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := e.Shutdown(ctx); err != nil {
		logger.WithError(err).Error("server shutdown failed")
	}
	scheduler.Stop(ctx)
	if listener != nil {
		_ = listener.Stop()
	}
	if cfg.Store != "memory" {
		if err := database.DisconnectDB(ctx); err != nil {
			logger.WithError(err).Error("failed to disconnect from database")
		}
	}
}
