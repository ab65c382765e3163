package main

import (
	"context"   // Context for startup checks and shutdown
	"errors"    // errors.Is for server shutdown
	"net/http"  // HTTP server
	"os"        // Signals and output
	"os/signal" // Graceful shutdown
	"syscall"   // SIGTERM
	"time"      // Shutdown deadline

	"settlement_ledger/internal/api"        // Custom package for API handlers
	"settlement_ledger/internal/batch"      // Bulk settlement
	"settlement_ledger/internal/cash"       // Cash reconciliation
	"settlement_ledger/internal/commission" // Commission settlement
	"settlement_ledger/internal/config"     // Custom package for configuration
	"settlement_ledger/internal/db"         // Database connection
	"settlement_ledger/internal/engagement" // Engagement intake
	"settlement_ledger/internal/events"     // Ledger events
	"settlement_ledger/internal/ledger"     // Wallet store
	"settlement_ledger/internal/lock"       // Per-entity locks
	"settlement_ledger/internal/payout"     // Earnings payouts
	"settlement_ledger/internal/withdrawal" // Withdrawal workflow

	"github.com/gin-gonic/gin"     // Gin web framework
	"github.com/redis/go-redis/v9" // Redis client
	"github.com/sirupsen/logrus"   // Logrus for structured logging
)

// Main function to set up and run the server
func main() {
	cfg := config.LoadConfig() // Load configuration
	setupLogger(cfg)

	gdb, err := db.Open(cfg)
	if err != nil {
		logrus.Fatalf("failed to connect to DB: %v", err)
	}

	// Setup Redis client
	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr, // Redis server address
		Password: cfg.RedisPass, // Redis password
		DB:       cfg.RedisDB,   // Redis database number
	})
	if _, err := redisClient.Ping(context.Background()).Result(); err != nil {
		logrus.Fatalf("failed to connect to Redis: %v", err)
	}

	// Ledger events go to Kafka when brokers are configured, otherwise to the log
	var publisher events.Publisher = events.LogPublisher{}
	if len(cfg.KafkaBrokers) > 0 {
		kp, err := events.NewKafkaPublisher(cfg.KafkaBrokers, cfg.KafkaTopic)
		if err != nil {
			logrus.Fatalf("failed to create Kafka publisher: %v", err)
		}
		defer kp.Close()
		publisher = kp
	}

	locker := lock.NewRedisLocker(redisClient, cfg.LockTTL, cfg.LockTimeout)
	store := ledger.NewStore(gdb, locker, cfg.Currency)
	payouts := payout.NewProcessor(store, publisher)
	commissions := commission.NewSettler(store, publisher)
	withdrawals := withdrawal.NewWorkflow(store, publisher)
	services := api.Services{
		DB:          gdb,
		Redis:       redisClient,
		JWTSecret:   cfg.JWTSecret,
		Ledger:      store,
		Cash:        cash.NewEngine(gdb, locker, publisher),
		Payouts:     payouts,
		Withdrawals: withdrawals,
		Commissions: commissions,
		Engagements: engagement.NewRecorder(gdb, locker),
		Batch:       batch.NewOrchestrator(payouts, commissions, withdrawals, cfg.BatchConcurrency),
	}

	// Set Mode to Release if in production
	if cfg.IsProd {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.Default()
	if err := r.SetTrustedProxies([]string{"127.0.0.1"}); err != nil {
		logrus.Fatalf("failed to set trusted proxies: %v", err)
	}
	api.RegisterRoutes(r, services)

	srv := &http.Server{Addr: ":" + cfg.AppPort, Handler: r, ReadHeaderTimeout: 10 * time.Second}
	go func() {
		logrus.WithField("port", cfg.AppPort).Info("Server running")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logrus.Fatalf("server failed: %v", err)
		}
	}()

	// Wait for interrupt, then let in-flight units of work finish
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logrus.Errorf("server shutdown: %v", err)
	}
	logrus.Info("Server stopped")
}

// setupLogger applies LOG_FORMAT and LOG_LEVEL to the global logrus logger
func setupLogger(cfg *config.Config) {
	logrus.SetOutput(os.Stdout)
	if cfg.LogFormat == "json" {
		logrus.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	level, err := logrus.ParseLevel(cfg.LogLevel)
	if err != nil {
		logrus.Warnf("unknown LOG_LEVEL %q, using info", cfg.LogLevel)
		level = logrus.InfoLevel
	}
	logrus.SetLevel(level)
}
