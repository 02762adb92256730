// Package main provides the main entry point for the Blastline campaign delivery engine
package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/blastline/blastline-backend/app/handlers"
	"github.com/blastline/blastline-backend/app/router"
	"github.com/blastline/blastline-backend/app/scheduler"
	"github.com/blastline/blastline-backend/app/services"
	businessflow "github.com/blastline/blastline-backend/business_flow"
	"github.com/blastline/blastline-backend/config"
	"github.com/blastline/blastline-backend/repository"
	"github.com/redis/go-redis/v9"
	"gopkg.in/natefinch/lumberjack.v2"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

// Application represents the main application structure
type Application struct {
	router    router.Router
	config    *config.ProductionConfig
	stopFuncs []func()
}

func main() {
	log.Println("Starting Blastline application...")

	cfg, err := config.LoadProductionConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	app, err := initializeApplication(cfg)
	if err != nil {
		log.Fatalf("Failed to initialize application: %v", err)
	}

	app.router.SetupRoutes()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		address := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
		if err := app.router.Start(address); err != nil {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	<-sigChan
	log.Println("Shutting down gracefully...")

	// Stop background workers before closing the HTTP surface
	for _, fn := range app.stopFuncs {
		fn()
	}

	if err := app.router.Shutdown(); err != nil {
		log.Printf("Error during shutdown: %v", err)
	}

	log.Println("Server stopped")
}

// initializeDatabase initializes the database connection with connection pooling
func initializeDatabase(cfg config.DatabaseConfig) (*gorm.DB, error) {
	dsn := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.Name, cfg.SSLMode)

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}

	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	sqlDB.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)

	if err := sqlDB.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	log.Printf("Database connection established with %d max open connections, %d max idle connections",
		cfg.MaxOpenConns, cfg.MaxIdleConns)

	return db, nil
}

// initializeRedis initializes the Redis client and verifies connectivity
func initializeRedis(cfg config.RedisConfig) (*redis.Client, error) {
	if !cfg.Enabled {
		return nil, nil
	}

	rc := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rc.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	log.Printf("Redis connection established at %s", cfg.Addr)
	return rc, nil
}

// initializeDispatcherLogger builds a logger writing to stdout and a rotated file
func initializeDispatcherLogger(cfg config.LoggingConfig) *log.Logger {
	var out io.Writer = os.Stdout
	if cfg.Output == "file" || cfg.Output == "both" {
		rotated := &lumberjack.Logger{
			Filename:   cfg.FilePath,
			MaxSize:    cfg.MaxSize,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAge,
			Compress:   cfg.Compress,
		}
		if cfg.Output == "file" {
			out = rotated
		} else {
			out = io.MultiWriter(os.Stdout, rotated)
		}
	}
	return log.New(out, "", log.LstdFlags|log.LUTC)
}

// initializeMessageSender picks the platform client or the mock
func initializeMessageSender(cfg config.PlatformConfig) services.MessageSender {
	if cfg.Mock {
		log.Println("Platform sender running in mock mode")
		return services.NewMockMessageSender()
	}
	return services.NewWhatsAppSender(cfg)
}

// initializeApplication wires repositories, flows, the dispatcher and the HTTP layer
func initializeApplication(cfg *config.ProductionConfig) (*Application, error) {
	var stopFuncs []func()

	db, err := initializeDatabase(cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("database initialization failed: %w", err)
	}

	redisClient, err := initializeRedis(cfg.Redis)
	if err != nil {
		return nil, fmt.Errorf("redis initialization failed: %w", err)
	}

	// Repositories
	campaignRepo := repository.NewCampaignRepository(db)
	recipientRepo := repository.NewRecipientRepository(db)
	walletRepo := repository.NewWalletRepository(db)
	reservationRepo := repository.NewCreditReservationRepository(db)
	channelRepo := repository.NewChannelRepository(db)
	templateRepo := repository.NewTemplateRepository(db)
	eventRepo := repository.NewDeliveryEventRepository(db)
	clickRepo := repository.NewButtonClickRepository(db)
	auditRepo := repository.NewAuditLogRepository(db)
	transactor := repository.NewGormTransactor(db)

	// Business flows
	ledger := businessflow.NewCreditLedger(walletRepo, reservationRepo, transactor)
	var statusCache businessflow.StatusCache
	if redisClient != nil {
		statusCache = businessflow.NewRedisStatusCache(redisClient)
	}
	lifecycleFlow := businessflow.NewCampaignLifecycleFlow(
		campaignRepo, recipientRepo, channelRepo, templateRepo,
		reservationRepo, auditRepo, ledger, statusCache, transactor,
	)
	statusFlow := businessflow.NewDeliveryStatusFlow(
		recipientRepo, campaignRepo, eventRepo, clickRepo, lifecycleFlow, transactor,
	)

	// Dispatcher
	sender := initializeMessageSender(cfg.Platform)
	var limiter scheduler.RateLimiter
	if redisClient != nil {
		limiter = scheduler.NewRedisRateLimiter(redisClient)
	} else {
		limiter = scheduler.NewMemoryRateLimiter()
	}
	dispatcher := scheduler.NewCampaignDispatcher(
		campaignRepo, recipientRepo, channelRepo, templateRepo, reservationRepo,
		lifecycleFlow, ledger, sender, limiter,
		initializeDispatcherLogger(cfg.Logging), cfg.Dispatcher,
	)
	stopDispatcher := dispatcher.Start(context.Background())
	stopFuncs = append(stopFuncs, stopDispatcher)

	// HTTP layer
	campaignHandler := handlers.NewCampaignHandler(lifecycleFlow)
	webhookHandler := handlers.NewWebhookHandler(statusFlow)
	fiberRouter := router.NewFiberRouter(campaignHandler, webhookHandler, cfg)

	if redisClient != nil {
		stopFuncs = append(stopFuncs, func() {
			if err := redisClient.Close(); err != nil {
				log.Printf("Error closing redis client: %v", err)
			}
		})
	}

	return &Application{
		router:    fiberRouter,
		config:    cfg,
		stopFuncs: stopFuncs,
	}, nil
}
