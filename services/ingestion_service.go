package services

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/carloz138/catalogo-magico-mx-sub005/batch"
	apperrors "github.com/carloz138/catalogo-magico-mx-sub005/common/errors"
	"github.com/carloz138/catalogo-magico-mx-sub005/dedupe"
	"github.com/carloz138/catalogo-magico-mx-sub005/matching"
	"github.com/carloz138/catalogo-magico-mx-sub005/media"
	"github.com/carloz138/catalogo-magico-mx-sub005/models"
	"github.com/carloz138/catalogo-magico-mx-sub005/naming"
	awspkg "github.com/carloz138/catalogo-magico-mx-sub005/pkg/aws"
	"github.com/carloz138/catalogo-magico-mx-sub005/progress"
	"github.com/carloz138/catalogo-magico-mx-sub005/repository"
	"github.com/carloz138/catalogo-magico-mx-sub005/retry"
	"github.com/carloz138/catalogo-magico-mx-sub005/sheet"
	"github.com/carloz138/catalogo-magico-mx-sub005/storage"
)

// IngestionService reconciles a sheet and its images and writes the result
// to the product store.
type IngestionService struct {
	store      repository.ProductStore
	uploader   storage.Uploader
	engine     *matching.Engine
	normalizer *media.Normalizer
	metrics    MetricsRecorder
	events     *EventPublisher
	cfg        Config
	now        func() time.Time
}

// NewIngestionService wires the pipeline. metrics and events may be nil.
func NewIngestionService(store repository.ProductStore, uploader storage.Uploader, cfg Config, metrics MetricsRecorder, events *EventPublisher) *IngestionService {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = batch.DefaultSize
	}
	if cfg.MaxImageBytes <= 0 {
		cfg.MaxImageBytes = MaxImageBytes
	}
	if cfg.UploadWorkers <= 0 {
		cfg.UploadWorkers = media.DefaultWorkers
	}
	return &IngestionService{
		store:      store,
		uploader:   uploader,
		engine:     matching.NewEngine(cfg.FuzzyThreshold),
		normalizer: media.NewNormalizer(cfg.Media),
		metrics:    metrics,
		events:     events,
		cfg:        cfg,
		now:        time.Now,
	}
}

// Preview parses and validates the input, matches images to rows and checks
// for duplicate SKUs. Nothing is written.
func (s *IngestionService) Preview(ctx context.Context, in Input) (*Preview, error) {
	return s.prepare(ctx, in, true)
}

func (s *IngestionService) prepare(ctx context.Context, in Input, thumbnails bool) (*Preview, error) {
	format, err := sheet.FormatFromName(in.SheetName)
	if err != nil {
		verr := &apperrors.ValidationError{}
		verr.Add(apperrors.RowError{File: in.SheetName, Field: "sheet", Message: err.Error()})
		return nil, verr
	}
	rows, err := sheet.Parse(bytes.NewReader(in.SheetData), format)
	if err != nil {
		return nil, err
	}

	assets, err := s.buildAssets(in.MerchantID, in.Images, thumbnails)
	if err != nil {
		return nil, err
	}

	matches := s.engine.MatchAll(matching.GroupImages(assets), rows, in.Overrides)

	lookup := dedupe.LookupFunc(func(ctx context.Context, skus []string) (map[string]string, error) {
		return s.store.ExistingSKUs(ctx, in.MerchantID, skus)
	})
	dups, err := dedupe.Detect(ctx, rows, lookup)
	if err != nil {
		return nil, err
	}

	p := &Preview{
		Rows:              rows,
		Images:            assets,
		Matches:           matches,
		UnmatchedImages:   unmatched(matches),
		ImagelessProducts: matching.Imageless(rows, matches),
		Duplicates:        dups,
	}
	zap.L().Info("Ingestion preview built",
		zap.String("merchant_id", in.MerchantID),
		zap.Int("rows", len(rows)),
		zap.Int("images", len(assets)),
		zap.Int("unmatched_images", len(p.UnmatchedImages)),
		zap.Int("duplicates", len(dups)),
	)
	return p, nil
}

// imageNamespace scopes image IDs derived from merchant and file name.
var imageNamespace = uuid.MustParse("6f1c2a9e-3b4d-5e8f-9a0b-1c2d3e4f5a6b")

// ImageID is stable for a merchant's file name, so IDs shown by a preview
// stay valid as override targets for later previews and runs.
func ImageID(merchantID, fileName string) string {
	return uuid.NewSHA1(imageNamespace, []byte(merchantID+"/"+fileName)).String()
}

func (s *IngestionService) buildAssets(merchantID string, files []ImageFile, thumbnails bool) ([]models.ImageAsset, error) {
	verr := &apperrors.ValidationError{}
	assets := make([]models.ImageAsset, 0, len(files))
	seen := make(map[string]int, len(files))
	for _, f := range files {
		if len(f.Data) > s.cfg.MaxImageBytes {
			verr.Add(apperrors.RowError{File: f.FileName, Field: "image", Message: fmt.Sprintf("image exceeds %d MB", s.cfg.MaxImageBytes>>20)})
			continue
		}
		contentType, ok := media.DetectType(f.Data)
		if !ok {
			verr.Add(apperrors.RowError{File: f.FileName, Field: "image", Message: "unsupported image type " + contentType})
			continue
		}

		// repeated file names keep distinct IDs in upload order
		key := f.FileName
		if n := seen[f.FileName]; n > 0 {
			key = fmt.Sprintf("%s#%d", f.FileName, n)
		}
		seen[f.FileName]++

		asset := models.ImageAsset{
			ID:          ImageID(merchantID, key),
			FileName:    f.FileName,
			CleanName:   naming.Normalize(f.FileName),
			ContentType: contentType,
			Size:        int64(len(f.Data)),
			Secondary:   naming.IsSecondary(f.FileName),
			Data:        f.Data,
		}
		if thumbnails {
			if uri, err := media.Thumbnail(f.Data, media.ThumbnailSize); err == nil {
				asset.PreviewURI = uri
			}
		}
		assets = append(assets, asset)
	}
	if err := verr.OrNil(); err != nil {
		return nil, err
	}
	return assets, nil
}

func unmatched(matches []models.MatchResult) []string {
	var out []string
	for _, m := range matches {
		if !m.Matched() {
			out = append(out, m.FileName)
		}
	}
	return out
}

// Run executes a full ingestion. When duplicates block the run, the returned
// report lists them next to ErrDuplicatesFound. A run cancelled between
// batches returns its partial report with Cancelled set and no error.
func (s *IngestionService) Run(ctx context.Context, in Input, opts RunOptions) (*models.IngestionReport, error) {
	start := s.now()
	p, err := s.prepare(ctx, in, false)
	if err != nil {
		return nil, err
	}

	rows, err := dedupe.NewResolution(p.Duplicates).Apply(opts.Duplicates, p.Rows)
	if err != nil {
		report := &models.IngestionReport{
			Total:      len(p.Rows),
			Duplicates: p.Duplicates,
			Cancelled:  errors.Is(err, apperrors.ErrIngestionCancelled),
			Duration:   s.now().Sub(start),
		}
		if report.Cancelled {
			s.count(ctx, awspkg.MetricIngestionCancelled, 1)
		}
		return report, err
	}
	kept := make(map[string]bool, len(rows))
	for _, r := range rows {
		kept[r.SKU] = true
	}

	report := &models.IngestionReport{
		Total:           len(p.Rows),
		Skipped:         len(p.Rows) - len(rows),
		Duplicates:      p.Duplicates,
		UnmatchedImages: p.UnmatchedImages,
	}

	// images of the products that will actually be written, primary first
	assetByID := make(map[string]models.ImageAsset, len(p.Images))
	for _, a := range p.Images {
		assetByID[a.ID] = a
	}
	imagesBySKU := make(map[string][]string)
	var raw []media.RawImage
	for _, m := range p.Matches {
		if m.Product == nil || !kept[m.Product.SKU] {
			continue
		}
		ids := append([]string{m.ImageID}, m.SecondaryImageIDs...)
		imagesBySKU[m.Product.SKU] = ids
		for _, id := range ids {
			a := assetByID[id]
			raw = append(raw, media.RawImage{ID: a.ID, FileName: a.FileName, ContentType: a.ContentType, Data: a.Data})
		}
	}

	compression := progress.NewCompressionTracker(len(raw), opts.OnCompression)
	normalized, err := s.normalizer.NormalizeAll(ctx, raw, func(_ int, img media.NormalizedImage) {
		compression.Advance(img.FileName)
	})
	if err != nil {
		return nil, err
	}
	for _, img := range normalized {
		if img.Err != nil {
			report.CompressionFailures = append(report.CompressionFailures, img.Err.FileName)
		}
	}

	urls := s.uploadImages(ctx, in.MerchantID, normalized, report)

	now := s.now().UTC()
	products := make([]models.Product, 0, len(rows))
	for _, row := range rows {
		var images []string
		for _, id := range imagesBySKU[row.SKU] {
			if u, ok := urls[id]; ok {
				images = append(images, u)
			}
		}
		if len(images) == 0 {
			report.ImagelessProducts = append(report.ImagelessProducts, row.SKU)
		}
		products = append(products, models.NewProduct(in.MerchantID, row, images, now))
	}

	s.writeProducts(ctx, products, opts, report)
	report.Duration = s.now().Sub(start)

	zap.L().Info("Ingestion finished",
		zap.String("job_id", opts.JobID),
		zap.String("merchant_id", in.MerchantID),
		zap.Int("total", report.Total),
		zap.Int("uploaded", report.Uploaded),
		zap.Int("failed", report.Failed),
		zap.Int("skipped", report.Skipped),
		zap.Bool("cancelled", report.Cancelled),
		zap.Duration("duration", report.Duration),
	)
	s.recordMetrics(ctx, report)
	if err := s.events.IngestionCompleted(ctx, opts.JobID, in.MerchantID, report); err != nil {
		zap.L().Warn("Failed to publish ingestion event", zap.String("job_id", opts.JobID), zap.Error(err))
	}
	return report, nil
}

// uploadImages uploads every image through the retry loop. A failed image is
// logged and left out of the returned map; the product is still written.
func (s *IngestionService) uploadImages(ctx context.Context, merchantID string, images []media.NormalizedImage, report *models.IngestionReport) map[string]string {
	var mu sync.Mutex
	urls := make(map[string]string, len(images))

	var g errgroup.Group
	g.SetLimit(s.cfg.UploadWorkers)
	for _, img := range images {
		img := img
		g.Go(func() error {
			url, err := retry.Do(ctx, func(ctx context.Context) (string, error) {
				return s.uploader.UploadImage(ctx, merchantID, img)
			}, s.cfg.Retry...)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				report.ImagesFailed++
				zap.L().Error("Image upload failed", zap.String("file", img.FileName), zap.Error(err))
				return nil
			}
			report.ImagesUploaded++
			urls[img.ID] = url
			return nil
		})
	}
	_ = g.Wait()
	return urls
}

func (s *IngestionService) writeProducts(ctx context.Context, products []models.Product, opts RunOptions, report *models.IngestionReport) {
	tracker := progress.NewTracker(len(products), opts.OnProgress)

	persist := func(ctx context.Context, b []models.Product) ([]models.Product, error) {
		if err := s.store.CreateMany(ctx, b); err != nil {
			return nil, err
		}
		return b, nil
	}

	res := batch.WriteAll(ctx, products, s.cfg.BatchSize, persist,
		batch.WithRetry(s.cfg.Retry...),
		batch.OnBatchStart(func(i, n int) {
			tracker.SetCurrent(fmt.Sprintf("Lote %d de %d", i+1, n))
		}),
		batch.OnBatch(func(u batch.Update) {
			switch {
			case u.Resubmitted && u.Err == nil:
				tracker.RecordRecovered(u.Size)
			case u.Resubmitted:
			case u.Err != nil:
				tracker.RecordFailure(u.Size)
				zap.L().Error("Batch write failed",
					zap.Int("batch", u.BatchIndex),
					zap.Int("size", u.Size),
					zap.Error(u.Err))
			default:
				tracker.RecordSuccess(u.Size)
			}
		}),
		batch.OnRetrying(tracker.SetRetrying),
		batch.WithCancel(opts.Cancelled),
		batch.WithResubmitFailed(s.cfg.ResubmitFailed),
	)

	batches := batch.Partition(products, s.cfg.BatchSize)
	report.Uploaded = len(res.Successful)
	report.Batches = res.Outcomes
	report.Cancelled = res.Cancelled
	report.Skipped += res.Skipped
	for _, f := range res.Failed {
		b := batches[f.BatchIndex]
		skus := make([]string, len(b))
		for i, p := range b {
			skus[i] = p.SKU
		}
		report.Failed += len(b)
		report.FailedBatches = append(report.FailedBatches, models.FailedBatch{
			BatchIndex: f.BatchIndex,
			SKUs:       skus,
			Error:      f.Err.Error(),
		})
	}
}

func (s *IngestionService) recordMetrics(ctx context.Context, r *models.IngestionReport) {
	s.count(ctx, awspkg.MetricProductsIngested, r.Uploaded)
	s.count(ctx, awspkg.MetricProductsFailed, r.Failed)
	s.count(ctx, awspkg.MetricProductsSkipped, r.Skipped)
	s.count(ctx, awspkg.MetricImagesUploaded, r.ImagesUploaded)
	s.count(ctx, awspkg.MetricImagesFailed, r.ImagesFailed)
	s.count(ctx, awspkg.MetricCompressionFailed, len(r.CompressionFailures))
	s.count(ctx, awspkg.MetricBatchesFailed, len(r.FailedBatches))
	if r.Cancelled {
		s.count(ctx, awspkg.MetricIngestionCancelled, 1)
	}
	if s.metrics != nil {
		if err := s.metrics.RecordLatency(ctx, awspkg.MetricIngestionLatency, r.Duration, metricDimensions); err != nil {
			zap.L().Warn("Failed to record metric", zap.String("metric", awspkg.MetricIngestionLatency), zap.Error(err))
		}
	}
}

var metricDimensions = map[string]string{"Service": "ingestion-service"}

func (s *IngestionService) count(ctx context.Context, name string, n int) {
	if s.metrics == nil {
		return
	}
	if err := s.metrics.RecordCount(ctx, name, n, metricDimensions); err != nil {
		zap.L().Warn("Failed to record metric", zap.String("metric", name), zap.Error(err))
	}
}
