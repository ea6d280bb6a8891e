package aws

import (
	"context"
	"fmt"
	"time"

	sdkaws "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"
)

// CloudWatchAPI is the part of *cloudwatch.Client MetricsClient needs.
type CloudWatchAPI interface {
	PutMetricData(ctx context.Context, in *cloudwatch.PutMetricDataInput, opts ...func(*cloudwatch.Options)) (*cloudwatch.PutMetricDataOutput, error)
}

// MetricsClient wraps AWS CloudWatch Metrics operations
type MetricsClient struct {
	client    CloudWatchAPI
	namespace string
	enabled   bool
	now       func() time.Time
}

// NewMetricsClient creates a CloudWatch Metrics client. A disabled client
// accepts every call and sends nothing.
func NewMetricsClient(cfg sdkaws.Config, namespace string, enabled bool) *MetricsClient {
	return NewMetricsClientFromAPI(cloudwatch.NewFromConfig(cfg), namespace, enabled)
}

func NewMetricsClientFromAPI(client CloudWatchAPI, namespace string, enabled bool) *MetricsClient {
	if namespace == "" {
		namespace = "CatalogoIngestion"
	}
	return &MetricsClient{client: client, namespace: namespace, enabled: enabled, now: time.Now}
}

// PutMetric sends a single metric data point to CloudWatch
func (m *MetricsClient) PutMetric(ctx context.Context, metricName string, value float64, unit types.StandardUnit, dimensions map[string]string) error {
	if m == nil || !m.enabled {
		return nil
	}

	dims := make([]types.Dimension, 0, len(dimensions))
	for k, v := range dimensions {
		dims = append(dims, types.Dimension{
			Name:  sdkaws.String(k),
			Value: sdkaws.String(v),
		})
	}

	_, err := m.client.PutMetricData(ctx, &cloudwatch.PutMetricDataInput{
		Namespace: sdkaws.String(m.namespace),
		MetricData: []types.MetricDatum{
			{
				MetricName: sdkaws.String(metricName),
				Value:      sdkaws.Float64(value),
				Unit:       unit,
				Timestamp:  sdkaws.Time(m.now()),
				Dimensions: dims,
			},
		},
	})
	if err != nil {
		return fmt.Errorf("failed to put metric: %w", err)
	}
	return nil
}

// RecordCount adds n to a counter metric.
func (m *MetricsClient) RecordCount(ctx context.Context, metricName string, n int, dimensions map[string]string) error {
	return m.PutMetric(ctx, metricName, float64(n), types.StandardUnitCount, dimensions)
}

// RecordLatency records a duration in milliseconds.
func (m *MetricsClient) RecordLatency(ctx context.Context, metricName string, duration time.Duration, dimensions map[string]string) error {
	return m.PutMetric(ctx, metricName, float64(duration.Milliseconds()), types.StandardUnitMilliseconds, dimensions)
}

func (m *MetricsClient) IsEnabled() bool {
	return m != nil && m.enabled
}

const (
	// HTTP metrics
	MetricHTTPRequests = "HTTPRequests"
	MetricHTTPLatency  = "HTTPLatency"
	MetricHTTP4xx      = "HTTP4xxErrors"
	MetricHTTP5xx      = "HTTP5xxErrors"

	// Ingestion metrics
	MetricProductsIngested   = "ProductsIngested"
	MetricProductsFailed     = "ProductsFailed"
	MetricProductsSkipped    = "ProductsSkipped"
	MetricImagesUploaded     = "ImagesUploaded"
	MetricImagesFailed       = "ImagesFailed"
	MetricCompressionFailed  = "ImageCompressionFailures"
	MetricBatchesFailed      = "BatchesFailed"
	MetricIngestionLatency   = "IngestionLatency"
	MetricIngestionCancelled = "IngestionsCancelled"
)
