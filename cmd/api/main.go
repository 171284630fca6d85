package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"moysklad-sync-layer/internal/application"
	"moysklad-sync-layer/internal/application/task_handlers"
	"moysklad-sync-layer/internal/domain"
	"moysklad-sync-layer/internal/infrastructure/api"
	"moysklad-sync-layer/internal/infrastructure/cache"
	"moysklad-sync-layer/internal/infrastructure/encryption"
	"moysklad-sync-layer/internal/infrastructure/metrics"
	"moysklad-sync-layer/internal/infrastructure/platform"
	"moysklad-sync-layer/internal/infrastructure/queue"
	"moysklad-sync-layer/internal/infrastructure/repository"
	"moysklad-sync-layer/internal/ports"
)

// webhookCheckInterval is how often registration existence checks are queued
// for every active account.
const webhookCheckInterval = time.Hour

func main() {
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()
	if err := godotenv.Load(); err != nil {
		logger.Warn().Msg("No .env file found")
	}

	mongoURI := os.Getenv("MONGODB_URI")
	if mongoURI == "" {
		mongoURI = "mongodb://localhost:27017"
	}
	dbName := os.Getenv("MONGODB_DATABASE")
	if dbName == "" {
		dbName = "moysklad_sync"
	}
	appURL := os.Getenv("APP_URL")
	if appURL == "" {
		appURL = "http://localhost:8080"
	}
	encryptionKey := os.Getenv("ENCRYPTION_KEY")
	if encryptionKey == "" {
		logger.Fatal().Msg("ENCRYPTION_KEY environment variable is required")
	}
	workers := 4
	if raw := os.Getenv("TASK_WORKERS"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			logger.Fatal().Str("value", raw).Msg("TASK_WORKERS must be a positive integer")
		}
		workers = parsed
	}

	ctx := context.Background()
	mongoClient, err := mongo.Connect(ctx, options.Client().ApplyURI(mongoURI))
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to connect to MongoDB")
	}
	defer mongoClient.Disconnect(context.Background())
	db := mongoClient.Database(dbName)

	if err := repository.EnsureIndexes(ctx, db); err != nil {
		logger.Fatal().Err(err).Msg("Failed to ensure indexes")
	}

	encryptionService, err := encryption.NewService(encryptionKey)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to initialize encryption service")
	}

	var classifierCache ports.Cache
	if redisURL := os.Getenv("REDIS_URL"); redisURL != "" {
		opts, err := redis.ParseURL(redisURL)
		if err != nil {
			logger.Fatal().Err(err).Msg("Invalid REDIS_URL")
		}
		classifierCache = cache.NewRedisCache(redis.NewClient(opts))
		logger.Info().Msg("Using Redis classifier cache")
	} else {
		classifierCache = cache.NewMemoryCache()
		logger.Info().Msg("REDIS_URL not set, using in-memory classifier cache")
	}

	registry := prometheus.NewRegistry()
	m := metrics.New(registry)

	// Repositories
	accountRepo := repository.NewMongoAccountRepository(db)
	childLinkRepo := repository.NewMongoChildLinkRepository(db)
	entityMappingRepo := repository.NewMongoEntityMappingRepository(db)
	nameMappingRepo := repository.NewMongoNameMappingRepository(db)
	webhookLogRepo := repository.NewMongoWebhookLogRepository(db)
	webhookStatRepo := repository.NewMongoWebhookStatRepository(db)
	taskRepo := repository.NewMongoTaskRepository(db)
	updateLogRepo := repository.NewMongoUpdateLogRepository(db)

	// Platform access
	rateLimiter := platform.NewRateLimiter(logger)
	retryConfig := platform.DefaultRetryConfig()
	clientPool := platform.NewClientPool(accountRepo, encryptionService, rateLimiter, retryConfig, m, logger)

	// Application services
	classifier := application.NewClassifier(nameMappingRepo, classifierCache, logger)
	selector := application.NewStrategySelector(classifier, logger)
	executor := application.NewExecutor(clientPool, entityMappingRepo, nameMappingRepo, updateLogRepo, m, logger)
	syncer := application.NewEntitySyncer(clientPool, entityMappingRepo, executor, logger)
	healthService := application.NewHealthService(accountRepo, webhookStatRepo, webhookLogRepo, clientPool, appURL+"/api/webhooks", logger)

	dispatcher := application.NewTaskDispatcher(logger)
	taskService := application.NewTaskService(taskRepo, clientPool, dispatcher, m, logger)
	webhookService := application.NewWebhookService(
		webhookLogRepo, webhookStatRepo, accountRepo, childLinkRepo, entityMappingRepo,
		classifier, selector, executor, syncer, taskService, m, logger,
	)

	// Task handlers, one per category
	for _, category := range []domain.EntityCategory{
		domain.CategoryProduct,
		domain.CategoryVariant,
		domain.CategoryBundle,
		domain.CategoryService,
		domain.CategoryFolder,
	} {
		dispatcher.RegisterHandler(task_handlers.NewCatalogHandler(category, childLinkRepo, syncer, logger))
	}
	dispatcher.RegisterHandler(task_handlers.NewOrderHandler(childLinkRepo, entityMappingRepo, nameMappingRepo, clientPool, logger))
	dispatcher.RegisterHandler(task_handlers.NewImageHandler(childLinkRepo, entityMappingRepo, clientPool, logger))
	dispatcher.RegisterHandler(task_handlers.NewBatchVariantHandler(childLinkRepo, syncer, clientPool, logger))
	dispatcher.RegisterHandler(task_handlers.NewWebhookCheckHandler(healthService, logger))

	// Background workers
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	pool := queue.NewWorkerPool(taskService, workers, logger)
	pool.Start(runCtx)
	defer pool.Stop()

	go scheduleWebhookChecks(runCtx, accountRepo, taskService, logger)

	// HTTP surface
	webhookHandler := api.NewWebhookHandler(webhookService, logger)
	lifecycleHandler := api.NewLifecycleHandler(accountRepo, encryptionService, healthService, clientPool, logger)
	adminHandler := api.NewAdminHandler(taskService, healthService, logger)
	router := api.NewRouter(webhookHandler, lifecycleHandler, adminHandler, registry)

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}
	server := &http.Server{
		Addr:              ":" + port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info().Str("port", port).Msg("Starting API server")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	logger.Info().Msg("Shutting down")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("Server shutdown failed")
	}
}

// scheduleWebhookChecks periodically enqueues a registration check task for
// every active account. The queue serializes the checks with the rest of the
// platform traffic so they respect the same rate limits.
func scheduleWebhookChecks(ctx context.Context, accounts ports.AccountRepository, tasks *application.TaskService, logger zerolog.Logger) {
	ticker := time.NewTicker(webhookCheckInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		active, err := accounts.ListActive(ctx)
		if err != nil {
			logger.Error().Err(err).Msg("Failed to list accounts for webhook checks")
			continue
		}
		for _, account := range active {
			task := &domain.SyncTask{
				AccountID: account.AccountID,
				Category:  domain.CategoryWebhookCheck,
				Operation: domain.OpUpdate,
				Priority:  domain.PriorityLow,
			}
			if err := tasks.Enqueue(ctx, task); err != nil {
				logger.Error().Err(err).Str("accountId", account.AccountID).Msg("Failed to enqueue webhook check")
			}
		}
	}
}
