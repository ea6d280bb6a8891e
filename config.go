package main

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/carloz138/catalogo-magico-mx-sub005/batch"
	"github.com/carloz138/catalogo-magico-mx-sub005/matching"
	"github.com/carloz138/catalogo-magico-mx-sub005/media"
	awspkg "github.com/carloz138/catalogo-magico-mx-sub005/pkg/aws"
	"github.com/carloz138/catalogo-magico-mx-sub005/retry"
)

const (
	storeDynamo   = "dynamodb"
	storePostgres = "postgres"
	queueRedis    = "redis"
	queueSQS      = "sqs"
)

// Config holds all environment variables for the ingestion service.
type Config struct {
	Env            string
	Port           string
	RedisURL       string
	AllowedOrigins string

	ProductStore string // dynamodb or postgres
	DynamoTable  string
	DatabaseURL  string

	Bucket           string
	Prefix           string
	CDNBaseURL       string
	S3Endpoint       string
	UploadsPerSecond float64

	Queue      string // redis or sqs
	SQSQueue   string
	SNSTopic   string
	StorageDir string

	MetricsEnabled bool
	MetricsNS      string
	LogGroup       string

	MaxUploadSize  int64
	RequestTimeout time.Duration

	BatchSize      int
	FuzzyThreshold float64
	ResubmitFailed bool
	UploadWorkers  int
	Media          media.Policy
	Retry          retry.Policy
}

// LoadConfig reads the environment into Config and validates it. When
// AWS_USE_SECRETS=true the ingestion/config secret overrides connection
// strings, falling back to env vars on failure.
func LoadConfig() (*Config, error) {
	cfg := &Config{
		Env:            getEnv("ENV", "development"),
		Port:           getEnv("PORT", "8090"),
		RedisURL:       getEnv("REDIS_URL", "redis://redis:6379"),
		AllowedOrigins: os.Getenv("ALLOWED_ORIGINS"),

		ProductStore: strings.ToLower(getEnv("PRODUCT_STORE", storeDynamo)),
		DynamoTable:  getEnv("DDB_TABLE_PRODUCTS", "Products"),
		DatabaseURL:  os.Getenv("DATABASE_URL"),

		Bucket:     getEnv("AWS_S3_BUCKET", "catalogo-magico"),
		Prefix:     getEnv("AWS_S3_PREFIX", "products"),
		CDNBaseURL: os.Getenv("AWS_CLOUDFRONT_DOMAIN"),
		S3Endpoint: awspkg.Endpoint(),

		Queue:      strings.ToLower(getEnv("INGEST_QUEUE", queueRedis)),
		SQSQueue:   os.Getenv("SQS_QUEUE_URL"),
		SNSTopic:   os.Getenv("SNS_TOPIC_ARN"),
		StorageDir: getEnv("INGEST_STORAGE_DIR", "/tmp/ingestions"),

		MetricsEnabled: os.Getenv("CLOUDWATCH_ENABLED") == "true",
		MetricsNS:      getEnv("CLOUDWATCH_NAMESPACE", "CatalogoMagico/Ingestion"),
		LogGroup:       os.Getenv("CLOUDWATCH_LOG_GROUP"),

		Media: media.DefaultPolicy(),
		Retry: retry.DefaultPolicy(),
	}

	var err error
	parse := func(key string, fn func(string) error) {
		if err != nil {
			return
		}
		if v := strings.TrimSpace(os.Getenv(key)); v != "" {
			if perr := fn(v); perr != nil {
				err = fmt.Errorf("invalid %s %q: %w", key, v, perr)
			}
		}
	}

	cfg.MaxUploadSize = 50 << 20
	cfg.RequestTimeout = 120 * time.Second
	cfg.BatchSize = batch.DefaultSize
	cfg.FuzzyThreshold = matching.DefaultThreshold
	cfg.UploadsPerSecond = 10

	parse("MAX_UPLOAD_SIZE_MB", func(v string) error {
		n, err := strconv.ParseInt(v, 10, 64)
		cfg.MaxUploadSize = n << 20
		return err
	})
	parse("REQUEST_TIMEOUT", func(v string) (err error) {
		cfg.RequestTimeout, err = time.ParseDuration(v)
		return err
	})
	parse("INGEST_BATCH_SIZE", func(v string) (err error) {
		cfg.BatchSize, err = strconv.Atoi(v)
		return err
	})
	parse("INGEST_FUZZY_THRESHOLD", func(v string) (err error) {
		cfg.FuzzyThreshold, err = strconv.ParseFloat(v, 64)
		return err
	})
	parse("INGEST_RESUBMIT_FAILED", func(v string) (err error) {
		cfg.ResubmitFailed, err = strconv.ParseBool(v)
		return err
	})
	parse("INGEST_UPLOAD_WORKERS", func(v string) (err error) {
		cfg.UploadWorkers, err = strconv.Atoi(v)
		return err
	})
	parse("INGEST_UPLOAD_RPS", func(v string) (err error) {
		cfg.UploadsPerSecond, err = strconv.ParseFloat(v, 64)
		return err
	})
	parse("INGEST_COMPRESS_WORKERS", func(v string) (err error) {
		cfg.Media.Workers, err = strconv.Atoi(v)
		return err
	})
	parse("INGEST_IMAGE_MAX_BYTES", func(v string) (err error) {
		cfg.Media.MaxBytes, err = strconv.Atoi(v)
		return err
	})
	parse("INGEST_IMAGE_MAX_DIMENSION", func(v string) (err error) {
		cfg.Media.MaxDimension, err = strconv.Atoi(v)
		return err
	})
	parse("INGEST_JPEG_QUALITY", func(v string) (err error) {
		cfg.Media.Quality, err = strconv.Atoi(v)
		return err
	})
	parse("INGEST_RETRY_ATTEMPTS", func(v string) (err error) {
		cfg.Retry.MaxAttempts, err = strconv.Atoi(v)
		return err
	})
	if err != nil {
		return nil, err
	}

	if os.Getenv("AWS_USE_SECRETS") == "true" {
		if awsCfg, err := awspkg.LoadAWSConfig(context.Background()); err == nil {
			sm := awspkg.NewSecretsClient(awsCfg)
			if secrets, err := sm.GetSecretMap(context.Background(), getEnv("AWS_SECRET_NAME", "ingestion/config")); err == nil {
				cfg.applySecrets(secrets)
			} else {
				zap.L().Warn("Failed to read secrets, using environment", zap.Error(err))
			}
		}
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applySecrets(secrets map[string]string) {
	if v := secrets["DATABASE_URL"]; v != "" {
		c.DatabaseURL = v
	}
	if v := secrets["REDIS_URL"]; v != "" {
		c.RedisURL = v
	}
	if v := secrets["SNS_TOPIC_ARN"]; v != "" {
		c.SNSTopic = v
	}
}

func (c *Config) validate() error {
	switch c.ProductStore {
	case storeDynamo:
	case storePostgres:
		if c.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required when PRODUCT_STORE=postgres")
		}
	default:
		return fmt.Errorf("unknown PRODUCT_STORE %q", c.ProductStore)
	}

	switch c.Queue {
	case queueRedis:
	case queueSQS:
		if c.SQSQueue == "" {
			return fmt.Errorf("SQS_QUEUE_URL is required when INGEST_QUEUE=sqs")
		}
	default:
		return fmt.Errorf("unknown INGEST_QUEUE %q", c.Queue)
	}

	if c.BatchSize <= 0 {
		return fmt.Errorf("INGEST_BATCH_SIZE must be positive")
	}
	if c.FuzzyThreshold <= 0 || c.FuzzyThreshold > 1 {
		return fmt.Errorf("INGEST_FUZZY_THRESHOLD must be in (0, 1]")
	}
	if c.Media.Quality < 1 || c.Media.Quality > 100 {
		return fmt.Errorf("INGEST_JPEG_QUALITY must be between 1 and 100")
	}
	if c.Retry.MaxAttempts < 1 {
		return fmt.Errorf("INGEST_RETRY_ATTEMPTS must be at least 1")
	}
	return nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
