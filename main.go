package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	sdkaws "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"github.com/joho/godotenv"
	"go.uber.org/zap"

	apperrors "github.com/carloz138/catalogo-magico-mx-sub005/common/errors"
	"github.com/carloz138/catalogo-magico-mx-sub005/common/logger"
	"github.com/carloz138/catalogo-magico-mx-sub005/common/middleware"
	"github.com/carloz138/catalogo-magico-mx-sub005/controllers"
	awspkg "github.com/carloz138/catalogo-magico-mx-sub005/pkg/aws"
	"github.com/carloz138/catalogo-magico-mx-sub005/repository"
	"github.com/carloz138/catalogo-magico-mx-sub005/retry"
	"github.com/carloz138/catalogo-magico-mx-sub005/routes"
	"github.com/carloz138/catalogo-magico-mx-sub005/services"
	"github.com/carloz138/catalogo-magico-mx-sub005/storage"
)

const serviceName = "ingestion-service"

func main() {
	// Load .env file (optional, falls back to system env)
	_ = godotenv.Load()

	cfg, err := LoadConfig()
	if err != nil {
		panic("failed to load configuration: " + err.Error())
	}

	awsCfg, err := awspkg.LoadAWSConfig(context.Background())
	if err != nil {
		panic("failed to load AWS config: " + err.Error())
	}

	// CloudWatch Logs is optional; console logging always works
	var sink *awspkg.CloudWatchLogsClient
	if cfg.MetricsEnabled {
		sink, err = awspkg.NewCloudWatchLogsClient(context.Background(), awsCfg, cfg.LogGroup, serviceName)
		if err != nil {
			sink = nil
		}
	}
	if sink != nil {
		err = logger.InitializeWithWriter(cfg.Env, sink)
	} else {
		err = logger.Initialize(cfg.Env)
	}
	if err != nil {
		panic("failed to initialize logger: " + err.Error())
	}
	defer logger.Sync()

	zap.L().Info("AWS Configuration",
		zap.String("endpoint", awspkg.Endpoint()),
		zap.String("region", awsCfg.Region),
		zap.String("product_store", cfg.ProductStore),
		zap.String("queue", cfg.Queue),
	)

	// --- 1. Infrastructure ---

	redisOpts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		zap.L().Warn("Failed to parse REDIS_URL, falling back to default", zap.Error(err))
		redisOpts = &redis.Options{Addr: "redis:6379", DB: 0}
	}
	rdb := redis.NewClient(redisOpts)

	store, closeStore := buildProductStore(cfg, awsCfg)
	defer closeStore()

	uploader := storage.NewS3Uploader(awspkg.NewS3Client(awsCfg), storage.S3Config{
		Bucket:            cfg.Bucket,
		Prefix:            cfg.Prefix,
		PublicBaseURL:     cfg.CDNBaseURL,
		Endpoint:          cfg.S3Endpoint,
		RequestsPerSecond: cfg.UploadsPerSecond,
	})

	metricsClient := awspkg.NewMetricsClient(awsCfg, cfg.MetricsNS, cfg.MetricsEnabled)

	var events *services.EventPublisher
	if cfg.SNSTopic != "" {
		events = services.NewEventPublisher(awspkg.NewSNSClient(awsCfg), cfg.SNSTopic)
	}

	// --- 2. Dependency Injection ---

	ingestionService := services.NewIngestionService(store, uploader, services.Config{
		BatchSize:      cfg.BatchSize,
		FuzzyThreshold: cfg.FuzzyThreshold,
		ResubmitFailed: cfg.ResubmitFailed,
		UploadWorkers:  cfg.UploadWorkers,
		Media:          cfg.Media,
		Retry:          []retry.Option{retry.WithPolicy(cfg.Retry)},
	}, metricsClient, events)

	jobStore := services.NewRedisJobStore(rdb)
	worker := services.NewWorker(jobStore, ingestionService, cfg.StorageDir)

	workerCtx, stopWorker := context.WithCancel(context.Background())
	defer stopWorker()

	var queue services.JobQueue = jobStore
	switch cfg.Queue {
	case queueSQS:
		consumer := awspkg.NewSQSConsumer(awsCfg, cfg.SQSQueue)
		queue = services.NewSQSJobQueue(consumer)
		if err := os.MkdirAll(cfg.StorageDir, 0o755); err != nil {
			zap.L().Fatal("Failed to create storage dir", zap.Error(err))
		}
		go func() {
			if err := consumer.StartPolling(workerCtx, worker.HandleMessage); err != nil && !errors.Is(err, context.Canceled) {
				zap.L().Error("SQS consumer stopped", zap.Error(err))
			}
		}()
	default:
		services.StartIngestionWorker(workerCtx, jobStore, worker)
	}

	ingestionController := controllers.NewIngestionController(
		ingestionService,
		jobStore,
		queue,
		controllers.NewRequestValidator(cfg.MaxUploadSize),
		cfg.StorageDir,
	)

	// --- 3. HTTP Server & Middleware ---

	if cfg.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(logger.RequestLogger())
	r.Use(middleware.Timeout(cfg.RequestTimeout))
	r.Use(middleware.CORS(cfg.AllowedOrigins))
	r.Use(middleware.MetricsMiddleware(metricsClient, serviceName))
	r.Use(apperrors.ErrorMiddleware())

	// --- 4. Route Registration ---

	routes.RegisterRoutes(r, ingestionController)

	r.GET("/health", func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()
		if err := rdb.Ping(ctx).Err(); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "DEGRADED", "redis": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "OK"})
	})

	// --- 5. Graceful Shutdown ---

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: r,
	}

	go func() {
		zap.L().Info("Ingestion Service starting", zap.String("port", cfg.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			zap.L().Fatal("Failed to start server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	zap.L().Info("Shutting down Ingestion Service...")

	stopWorker()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		zap.L().Error("Server forced to shutdown", zap.Error(err))
	}

	if err := rdb.Close(); err != nil {
		zap.L().Error("Failed to close Redis", zap.Error(err))
	}

	zap.L().Info("Ingestion Service stopped gracefully")
}

// buildProductStore picks the catalog backend. The returned func releases it.
func buildProductStore(cfg *Config, awsCfg sdkaws.Config) (repository.ProductStore, func()) {
	switch cfg.ProductStore {
	case storePostgres:
		db, err := repository.OpenPostgres(cfg.DatabaseURL)
		if err != nil {
			zap.L().Fatal("Failed to connect to Postgres", zap.Error(err))
		}
		store := repository.NewGormProductStore(db)
		if err := store.Migrate(context.Background()); err != nil {
			zap.L().Fatal("Failed to migrate products table", zap.Error(err))
		}
		return store, func() {
			if sqlDB, err := db.DB(); err == nil {
				_ = sqlDB.Close()
			}
		}
	default:
		endpoint := awspkg.Endpoint()
		ddbClient := dynamodb.NewFromConfig(awsCfg, func(o *dynamodb.Options) {
			if endpoint != "" {
				o.BaseEndpoint = sdkaws.String(endpoint)
			}
		})
		store := repository.NewDynamoProductStore(ddbClient, cfg.DynamoTable)
		if err := store.EnsureTable(context.Background()); err != nil {
			zap.L().Warn("Failed to ensure products table", zap.Error(err))
		}
		return store, func() {}
	}
}
