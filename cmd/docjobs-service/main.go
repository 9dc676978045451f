package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cuongbtq/docjobs/internal/api/handler"
	"github.com/cuongbtq/docjobs/internal/api/router"
	apistorage "github.com/cuongbtq/docjobs/internal/api/storage"
	"github.com/cuongbtq/docjobs/internal/config"
	"github.com/cuongbtq/docjobs/internal/domain"
	"github.com/cuongbtq/docjobs/internal/events"
	"github.com/cuongbtq/docjobs/internal/processor"
	"github.com/cuongbtq/docjobs/internal/queue"
	"github.com/cuongbtq/docjobs/internal/quota"
	"github.com/cuongbtq/docjobs/internal/service"
	"github.com/cuongbtq/docjobs/internal/storage"
	"github.com/cuongbtq/docjobs/internal/worker"
	"github.com/cuongbtq/docjobs/shared/logger"
	"github.com/cuongbtq/docjobs/shared/postgresql"
	"github.com/cuongbtq/docjobs/shared/rabbitmq"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
)

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	// Load .env file if it exists
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables or flags")
	}

	defaultConfigPath := os.Getenv("DOCJOBS_CONFIG_PATH")
	if defaultConfigPath == "" {
		defaultConfigPath = "configs/docjobs-service/config.yaml"
	}
	configPath := flag.String("config", defaultConfigPath, "Path to configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return fmt.Errorf("failed to apply environment overrides: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	appLogger, err := initLogger(&cfg.Logging)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer appLogger.Close()

	appLogger.Info("Starting docjobs service",
		slog.String("app", cfg.App.Name),
		slog.String("version", cfg.App.Version),
		slog.String("environment", cfg.App.Environment),
		slog.Int("tenants", len(cfg.Auth.APIKeys)),
		slog.Int("monthly_doc_limit", cfg.Quota.MonthlyDocLimit),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Optional PostgreSQL archive
	var (
		dbClient *postgresql.Client
		archiver storage.Archiver
	)
	if cfg.Database.Enabled {
		dbClient, err = initPostgreSQL(ctx, &cfg.Database, appLogger.Logger)
		if err != nil {
			return fmt.Errorf("failed to initialize database: %w", err)
		}
		defer dbClient.Close()

		if cfg.Retention.Archive {
			pgArchiver, err := storage.NewPostgresArchiver(ctx, dbClient, appLogger.Logger)
			if err != nil {
				return fmt.Errorf("failed to initialize job archive: %w", err)
			}
			archiver = pgArchiver
		}
	}

	// Completion events: in-process waiters, plus RabbitMQ when enabled
	hub := events.NewHub()
	publishers := events.Multi{hub}
	var broker handler.BrokerChecker
	if cfg.RabbitMQ.Enabled {
		rabbitClient, err := initRabbitMQ(&cfg.RabbitMQ, appLogger.Logger)
		if err != nil {
			return fmt.Errorf("failed to initialize RabbitMQ: %w", err)
		}
		defer rabbitClient.Close()

		// Broker publishes go through a dispatcher and never block the worker.
		dispatcher := events.NewDispatcher(events.NewRabbitPublisher(rabbitClient, appLogger.Logger), events.DispatcherConfig{
			Buffer:  cfg.RabbitMQ.Publish.BufferSize,
			Timeout: cfg.RabbitMQ.Publish.Timeout,
			Logger:  appLogger.Logger,
		})
		defer func() {
			flushCtx, flushCancel := context.WithTimeout(context.Background(), cfg.RabbitMQ.Publish.Timeout)
			defer flushCancel()
			if err := dispatcher.Close(flushCtx); err != nil {
				appLogger.Warn("Completion events left undelivered",
					slog.Int("pending", dispatcher.Pending()),
					slog.Any("error", err),
				)
			}
		}()

		publishers = append(publishers, dispatcher)
		broker = rabbitClient
	}

	store := storage.NewStore()
	jobQueue := queue.New(cfg.Queue.Capacity)

	svc := service.New(&service.Config{
		Logger:       appLogger.Logger,
		Store:        store,
		Quota:        quota.NewTracker(),
		Queue:        jobQueue,
		Hub:          hub,
		MonthlyLimit: cfg.Quota.MonthlyDocLimit,
	})

	registry := initRegistry(&cfg.OCR, appLogger.Logger)
	if err := registry.Covers(); err != nil {
		return fmt.Errorf("incomplete processor registry: %w", err)
	}

	workerInstance := worker.NewWorker(&worker.Config{
		Logger:      appLogger.Logger,
		Store:       store,
		Queue:       jobQueue,
		Registry:    registry,
		Publisher:   publishers,
		Concurrency: cfg.Worker.Concurrency,
		JobTimeout:  cfg.Worker.JobTimeout,
	})
	workerInstance.Start(ctx)

	sweeper := storage.NewSweeper(&storage.SweeperConfig{
		Store: store,
		Policy: storage.RetentionPolicy{
			MaxAge:  cfg.Retention.MaxAge,
			MaxJobs: cfg.Retention.MaxJobs,
		},
		Interval: cfg.Retention.SweepInterval,
		Archiver: archiver,
		Logger:   appLogger.Logger,
	})
	go sweeper.Run(ctx)

	uploads, err := apistorage.NewUploads(cfg.Storage.LocalDir)
	if err != nil {
		return err
	}

	deps := &handler.Dependencies{
		Logger:         appLogger.Logger,
		AppName:        cfg.App.Name,
		Service:        svc,
		Tenants:        service.NewTenants(cfg.Auth.APIKeys),
		Uploads:        uploads,
		MaxUploadBytes: cfg.Storage.MaxUploadBytes,
		MaxWait:        cfg.Server.MaxWait,
	}
	if dbClient != nil {
		deps.Database = dbClient
	}
	deps.Broker = broker

	r := initRouter(cfg, deps)

	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	errChan := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}()

	appLogger.Info("Docjobs service is running",
		slog.String("address", addr),
		slog.String("upload_dir", uploads.Dir()),
	)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		appLogger.Info("Received signal, shutting down gracefully",
			slog.String("signal", sig.String()),
		)
	case err := <-errChan:
		appLogger.Error("Server failed", slog.Any("error", err))
		cancel()
		workerInstance.Stop()
		return err
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		appLogger.Error("Server forced to shutdown", slog.Any("error", err))
	}

	// No new submissions can arrive; let the worker drain what is queued.
	jobQueue.Close()
	drainWorker(workerInstance, cfg.Worker.ShutdownTimeout, appLogger.Logger)
	cancel()

	stats := workerInstance.Stats()
	appLogger.Info("Docjobs service shutdown complete",
		slog.Int64("succeeded", stats.Succeeded),
		slog.Int64("failed", stats.Failed),
		slog.Int64("skipped", stats.Skipped),
		slog.Int("abandoned", jobQueue.Len()),
	)
	return nil
}

// drainWorker waits for the closed queue to empty, then stops the worker.
// In-flight jobs always finish; queued jobs left after timeout are dropped.
func drainWorker(w *worker.Worker, timeout time.Duration, logger *slog.Logger) {
	done := make(chan struct{})
	go func() {
		w.Wait()
		close(done)
	}()

	select {
	case <-done:
		logger.Info("Worker drained queue")
	case <-time.After(timeout):
		logger.Warn("Worker shutdown timeout exceeded, abandoning queued jobs")
		w.Stop()
	}
}

// initLogger initializes and configures the application logger
func initLogger(cfg *config.LoggingConfig) (*logger.Logger, error) {
	loggerCfg := &logger.Config{
		Level:        cfg.Level,
		Format:       cfg.Format,
		Output:       cfg.Output,
		EnableSource: cfg.EnableCaller,
		TimeFormat:   time.RFC3339,
	}

	return logger.New(loggerCfg)
}

// initRegistry wires a processor for every job type
func initRegistry(cfg *config.OCRConfig, logger *slog.Logger) *processor.Registry {
	engine := processor.NewCommandEngine(processor.CommandEngineConfig{
		Command: cfg.Command,
		Args:    cfg.Args,
		Lang:    cfg.Lang,
		UseGPU:  cfg.UseGPU,
	}, nil, logger)

	return processor.NewRegistry().
		Register(domain.JobTypeOCR, processor.NewOCRProcessor(engine, logger)).
		Register(domain.JobTypeIdentityVerify, processor.IdentityProcessor{})
}

// initPostgreSQL initializes the PostgreSQL database client
func initPostgreSQL(ctx context.Context, cfg *config.DatabaseConfig, logger *slog.Logger) (*postgresql.Client, error) {
	dbConfig := &postgresql.Config{
		Host:            cfg.Host,
		Port:            cfg.Port,
		User:            cfg.User,
		Password:        cfg.Password,
		Database:        cfg.Database,
		SSLMode:         cfg.SSLMode,
		MaxOpenConns:    cfg.MaxOpenConns,
		MaxIdleConns:    cfg.MaxIdleConns,
		ConnMaxLifetime: cfg.ConnMaxLifetime,
		ConnMaxIdleTime: cfg.ConnMaxIdleTime,
	}

	return postgresql.NewClient(ctx, dbConfig, logger)
}

// initRabbitMQ initializes the RabbitMQ client
func initRabbitMQ(cfg *config.RabbitMQConfig, logger *slog.Logger) (*rabbitmq.Client, error) {
	rabbitConfig := &rabbitmq.Config{
		Host:               cfg.Host,
		Port:               cfg.Port,
		User:               cfg.User,
		Password:           cfg.Password,
		VHost:              cfg.VHost,
		ExchangeName:       cfg.Exchange.Name,
		ExchangeType:       cfg.Exchange.Type,
		ExchangeDurable:    cfg.Exchange.Durable,
		ExchangeAutoDelete: cfg.Exchange.AutoDelete,
		QueueName:          cfg.Queue.Name,
		QueueDurable:       cfg.Queue.Durable,
		QueueAutoDelete:    cfg.Queue.AutoDelete,
		QueueExclusive:     cfg.Queue.Exclusive,
		RoutingKey:         cfg.RoutingKey,
		RetryAttempts:      cfg.Connection.RetryAttempts,
		RetryInterval:      cfg.Connection.RetryInterval,
		Heartbeat:          cfg.Connection.Heartbeat,
		ConnectionTimeout:  cfg.Connection.ConnectionTimeout,
		PublishRetries:     cfg.Publish.RetryAttempts,
		PublishRetryDelay:  cfg.Publish.RetryInterval,
		PublishBackoffMult: cfg.Publish.BackoffMultiplier,
	}

	return rabbitmq.NewClient(rabbitConfig, logger)
}

// initRouter initializes the Gin router with all routes and middleware
func initRouter(cfg *config.Config, deps *handler.Dependencies) *gin.Engine {
	if cfg.App.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	} else {
		gin.SetMode(gin.DebugMode)
	}

	return router.SetupRouter(deps, router.Options{
		RequestsPerSecond: cfg.RateLimit.RequestsPerSecond,
		Burst:             cfg.RateLimit.Burst,
	})
}
