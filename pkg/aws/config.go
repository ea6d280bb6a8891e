package aws

import (
	"context"
	"fmt"
	"os"

	sdkaws "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"go.uber.org/zap"
)

// Endpoint returns the LocalStack style override from AWS_ENDPOINT, or
// AWS_S3_ENDPOINT when only storage is redirected.
func Endpoint() string {
	if e := os.Getenv("AWS_ENDPOINT"); e != "" {
		return e
	}
	return os.Getenv("AWS_S3_ENDPOINT")
}

// LoadAWSConfig loads the default AWS config. When an endpoint override is set
// every client is pointed at it, and missing credentials fall back to the
// static pair LocalStack accepts.
func LoadAWSConfig(ctx context.Context) (sdkaws.Config, error) {
	endpoint := Endpoint()

	var opts []func(*config.LoadOptions) error
	if endpoint != "" && os.Getenv("AWS_ACCESS_KEY_ID") == "" {
		opts = append(opts, config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider("test", "test", "")))
	}

	cfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return cfg, fmt.Errorf("failed to load aws config: %w", err)
	}
	if cfg.Region == "" {
		cfg.Region = "us-east-1"
	}

	if endpoint != "" {
		signingRegion := cfg.Region
		resolver := sdkaws.EndpointResolverWithOptionsFunc(func(service, region string, options ...interface{}) (sdkaws.Endpoint, error) {
			return sdkaws.Endpoint{
				URL:               endpoint,
				SigningRegion:     signingRegion,
				HostnameImmutable: true,
			}, nil
		})
		cfg.EndpointResolverWithOptions = resolver

		zap.L().Info("AWS custom endpoint configured",
			zap.String("endpoint", endpoint),
			zap.String("region", signingRegion))
	}

	return cfg, nil
}
