package services

import (
	"context"
	"time"

	"github.com/carloz138/catalogo-magico-mx-sub005/dedupe"
	"github.com/carloz138/catalogo-magico-mx-sub005/media"
	"github.com/carloz138/catalogo-magico-mx-sub005/models"
	"github.com/carloz138/catalogo-magico-mx-sub005/retry"
)

// MaxImageBytes is the largest image accepted from a merchant.
const MaxImageBytes = 25 << 20

// ImageFile is one uploaded image, name as the merchant sent it.
type ImageFile struct {
	FileName string
	Data     []byte
}

// Input is everything a merchant submits for one ingestion.
type Input struct {
	MerchantID string
	SheetName  string
	SheetData  []byte
	Images     []ImageFile
	Overrides  models.Overrides
}

// Preview is the reconciliation shown to the merchant before anything is
// written.
type Preview struct {
	Rows              []models.ProductRow      `json:"rows"`
	Images            []models.ImageAsset      `json:"images"`
	Matches           []models.MatchResult     `json:"matches"`
	UnmatchedImages   []string                 `json:"unmatched_images"`
	ImagelessProducts []string                 `json:"imageless_products"`
	Duplicates        []models.DuplicateRecord `json:"duplicates"`
}

// RunOptions carries per-run callbacks. All of them may be nil.
type RunOptions struct {
	JobID         string
	Duplicates    dedupe.Policy
	OnProgress    func(models.IngestionProgress)
	OnCompression func(models.CompressionProgress)
	// Cancelled is polled between batches.
	Cancelled func() bool
}

// Config tunes the pipeline.
type Config struct {
	BatchSize      int
	FuzzyThreshold float64
	ResubmitFailed bool
	MaxImageBytes  int
	UploadWorkers  int
	Media          media.Policy
	// Retry applies to image uploads and batch writes.
	Retry []retry.Option
}

// MetricsRecorder is satisfied by *aws.MetricsClient.
type MetricsRecorder interface {
	RecordCount(ctx context.Context, metricName string, n int, dimensions map[string]string) error
	RecordLatency(ctx context.Context, metricName string, duration time.Duration, dimensions map[string]string) error
}
