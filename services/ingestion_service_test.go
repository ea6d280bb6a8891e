package services_test

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/carloz138/catalogo-magico-mx-sub005/common/errors"
	"github.com/carloz138/catalogo-magico-mx-sub005/dedupe"
	"github.com/carloz138/catalogo-magico-mx-sub005/media"
	"github.com/carloz138/catalogo-magico-mx-sub005/models"
	"github.com/carloz138/catalogo-magico-mx-sub005/retry"
	"github.com/carloz138/catalogo-magico-mx-sub005/services"
)

const sheetCSV = "sku,nombre,precio,precio_mayoreo,descripcion,categoria\n" +
	"A1,Blusa Roja,199.00,150,Blusa de algodón,Ropa\n" +
	"B2,Pantalón Azul,450,,,Ropa\n" +
	"C3,Gorra Negra,120,,,Accesorios\n"

type fakeStore struct {
	mu       sync.Mutex
	existing map[string]string
	// failures per SKU; the batch containing the SKU fails while > 0
	failures map[string]int
	written  []models.Product
	calls    int
}

func (f *fakeStore) ExistingSKUs(ctx context.Context, merchantID string, skus []string) (map[string]string, error) {
	out := map[string]string{}
	for _, s := range skus {
		if name, ok := f.existing[s]; ok {
			out[s] = name
		}
	}
	return out, nil
}

func (f *fakeStore) CreateMany(ctx context.Context, products []models.Product) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	for _, p := range products {
		if f.failures[p.SKU] > 0 {
			f.failures[p.SKU]--
			return &apperrors.StatusError{Status: http.StatusServiceUnavailable, Message: "table busy"}
		}
	}
	f.written = append(f.written, products...)
	return nil
}

func (f *fakeStore) bySKU(sku string) *models.Product {
	for i := range f.written {
		if f.written[i].SKU == sku {
			return &f.written[i]
		}
	}
	return nil
}

type fakeUploader struct {
	mu   sync.Mutex
	fail map[string]bool
	got  []string
}

func (f *fakeUploader) UploadImage(ctx context.Context, merchantID string, img media.NormalizedImage) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail[img.FileName] {
		return "", errors.New("access denied")
	}
	f.got = append(f.got, img.FileName)
	return "https://cdn.test/" + merchantID + "/" + img.FileName, nil
}

type fakeMetrics struct {
	mu     sync.Mutex
	counts map[string]int
}

func (f *fakeMetrics) RecordCount(ctx context.Context, name string, n int, dims map[string]string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.counts == nil {
		f.counts = map[string]int{}
	}
	f.counts[name] += n
	return nil
}

func (f *fakeMetrics) RecordLatency(ctx context.Context, name string, d time.Duration, dims map[string]string) error {
	return nil
}

type fakePublisher struct {
	topics   []string
	messages []string
}

func (f *fakePublisher) Publish(ctx context.Context, topicArn string, message []byte) error {
	f.topics = append(f.topics, topicArn)
	f.messages = append(f.messages, string(message))
	return nil
}

func pngBytes(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 8, 8))
	for i := range img.Pix {
		img.Pix[i] = 200
	}
	img.Set(0, 0, color.Black)
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func input(t *testing.T) services.Input {
	data := pngBytes(t)
	return services.Input{
		MerchantID: "m1",
		SheetName:  "productos.csv",
		SheetData:  []byte(sheetCSV),
		Images: []services.ImageFile{
			{FileName: "foto_blusa_roja.png", Data: data},
			{FileName: "blusa_roja_2.png", Data: data},
			{FileName: "zapato.png", Data: data},
		},
	}
}

func noSleep() []retry.Option {
	return []retry.Option{retry.WithSleep(func(context.Context, time.Duration) error { return nil })}
}

func newService(store *fakeStore, up *fakeUploader, cfg services.Config, metrics services.MetricsRecorder, events *services.EventPublisher) *services.IngestionService {
	cfg.Retry = append(cfg.Retry, noSleep()...)
	return services.NewIngestionService(store, up, cfg, metrics, events)
}

func TestPreview(t *testing.T) {
	store := &fakeStore{existing: map[string]string{"B2": "Pantalón viejo"}}
	svc := newService(store, &fakeUploader{}, services.Config{}, nil, nil)

	p, err := svc.Preview(context.Background(), input(t))
	require.NoError(t, err)

	assert.Len(t, p.Rows, 3)
	require.Len(t, p.Images, 3)
	assert.True(t, strings.HasPrefix(p.Images[0].PreviewURI, "data:image/jpeg;base64,"))
	assert.Equal(t, "blusa roja", p.Images[0].CleanName)
	assert.True(t, p.Images[1].Secondary)

	require.Len(t, p.Matches, 2)
	require.NotNil(t, p.Matches[0].Product)
	assert.Equal(t, "A1", p.Matches[0].Product.SKU)
	assert.Equal(t, models.MatchExact, p.Matches[0].Method)
	assert.Equal(t, []string{p.Images[1].ID}, p.Matches[0].SecondaryImageIDs)

	assert.Equal(t, []string{"zapato.png"}, p.UnmatchedImages)
	assert.Equal(t, []string{"B2", "C3"}, p.ImagelessProducts)
	require.Len(t, p.Duplicates, 1)
	assert.Equal(t, "Pantalón viejo", p.Duplicates[0].ConflictingName)
	assert.Empty(t, store.written)
}

func TestPreviewRejectsInvalidImages(t *testing.T) {
	svc := newService(&fakeStore{}, &fakeUploader{}, services.Config{MaxImageBytes: 1024}, nil, nil)
	in := input(t)
	in.Images = append(in.Images,
		services.ImageFile{FileName: "notas.png", Data: []byte("hello world")},
		services.ImageFile{FileName: "enorme.png", Data: make([]byte, 1025)},
	)

	_, err := svc.Preview(context.Background(), in)

	var verr *apperrors.ValidationError
	require.ErrorAs(t, err, &verr)
	files := []string{}
	for _, r := range verr.Rows {
		files = append(files, r.File)
	}
	assert.Contains(t, files, "notas.png")
	assert.Contains(t, files, "enorme.png")
}

func TestPreviewRejectsUnknownSheetFormat(t *testing.T) {
	svc := newService(&fakeStore{}, &fakeUploader{}, services.Config{}, nil, nil)
	in := input(t)
	in.SheetName = "productos.pdf"

	_, err := svc.Preview(context.Background(), in)
	var verr *apperrors.ValidationError
	assert.ErrorAs(t, err, &verr)
}

func TestRunSkipsDuplicatesAndWritesProducts(t *testing.T) {
	store := &fakeStore{existing: map[string]string{"B2": "Pantalón viejo"}}
	up := &fakeUploader{}
	metrics := &fakeMetrics{}
	pub := &fakePublisher{}
	svc := newService(store, up, services.Config{BatchSize: 1}, metrics, services.NewEventPublisher(pub, "arn:topic"))

	var last models.IngestionProgress
	var compression []models.CompressionProgress
	report, err := svc.Run(context.Background(), input(t), services.RunOptions{
		JobID:         "job-1",
		Duplicates:    dedupe.PolicySkip,
		OnProgress:    func(p models.IngestionProgress) { last = p },
		OnCompression: func(p models.CompressionProgress) { compression = append(compression, p) },
	})
	require.NoError(t, err)

	assert.Equal(t, 3, report.Total)
	assert.Equal(t, 2, report.Uploaded)
	assert.Equal(t, 1, report.Skipped)
	assert.Equal(t, 0, report.Failed)
	assert.Equal(t, 2, report.ImagesUploaded)
	assert.Equal(t, []string{"C3"}, report.ImagelessProducts)
	assert.Equal(t, []string{"zapato.png"}, report.UnmatchedImages)
	assert.Len(t, report.Batches, 2)

	require.Len(t, store.written, 2)
	a1 := store.bySKU("A1")
	require.NotNil(t, a1)
	assert.Equal(t, []string{
		"https://cdn.test/m1/foto_blusa_roja.png",
		"https://cdn.test/m1/blusa_roja_2.png",
	}, a1.Images)
	assert.Equal(t, int64(19900), a1.PriceCents)
	assert.Nil(t, store.bySKU("B2"))

	assert.Equal(t, models.IngestionProgress{Total: 2, Uploaded: 2, CurrentLabel: "Lote 2 de 2"}, last)
	require.Len(t, compression, 2)
	assert.Equal(t, 100.0, compression[1].Percentage)

	assert.Equal(t, 2, metrics.counts["ProductsIngested"])
	assert.Equal(t, 1, metrics.counts["ProductsSkipped"])
	require.Len(t, pub.messages, 1)
	assert.Contains(t, pub.messages[0], `"type":"ingestion.completed"`)
	assert.Contains(t, pub.messages[0], `"job_id":"job-1"`)
}

func TestRunBlocksOnDuplicates(t *testing.T) {
	store := &fakeStore{existing: map[string]string{"B2": "Pantalón viejo"}}
	up := &fakeUploader{}
	svc := newService(store, up, services.Config{}, nil, nil)

	report, err := svc.Run(context.Background(), input(t), services.RunOptions{Duplicates: dedupe.PolicyBlock})

	assert.ErrorIs(t, err, apperrors.ErrDuplicatesFound)
	require.NotNil(t, report)
	assert.Len(t, report.Duplicates, 1)
	assert.Empty(t, store.written)
	assert.Empty(t, up.got)
}

func TestRunCancelOnDuplicates(t *testing.T) {
	store := &fakeStore{existing: map[string]string{"A1": "Blusa"}}
	svc := newService(store, &fakeUploader{}, services.Config{}, nil, nil)

	report, err := svc.Run(context.Background(), input(t), services.RunOptions{Duplicates: dedupe.PolicyCancel})

	assert.ErrorIs(t, err, apperrors.ErrIngestionCancelled)
	assert.True(t, report.Cancelled)
	assert.Empty(t, store.written)
}

func TestRunIsolatesFailedBatch(t *testing.T) {
	store := &fakeStore{failures: map[string]int{"B2": 100}}
	svc := newService(store, &fakeUploader{}, services.Config{BatchSize: 1}, nil, nil)

	var last models.IngestionProgress
	report, err := svc.Run(context.Background(), input(t), services.RunOptions{
		OnProgress: func(p models.IngestionProgress) { last = p },
	})
	require.NoError(t, err)

	assert.Equal(t, 2, report.Uploaded)
	assert.Equal(t, 1, report.Failed)
	require.Len(t, report.FailedBatches, 1)
	assert.Equal(t, 1, report.FailedBatches[0].BatchIndex)
	assert.Equal(t, []string{"B2"}, report.FailedBatches[0].SKUs)
	assert.NotNil(t, store.bySKU("C3"))
	assert.Equal(t, 2, last.Uploaded)
	assert.Equal(t, 1, last.Failed)
	assert.False(t, last.Retrying)
	// five attempts for the failing batch plus one each for the others
	assert.Equal(t, 7, store.calls)
}

func TestRunResubmitsFailedBatches(t *testing.T) {
	store := &fakeStore{failures: map[string]int{"B2": 5}}
	svc := newService(store, &fakeUploader{}, services.Config{BatchSize: 1, ResubmitFailed: true}, nil, nil)

	var last models.IngestionProgress
	report, err := svc.Run(context.Background(), input(t), services.RunOptions{
		OnProgress: func(p models.IngestionProgress) { last = p },
	})
	require.NoError(t, err)

	assert.Equal(t, 3, report.Uploaded)
	assert.Zero(t, report.Failed)
	assert.Empty(t, report.FailedBatches)
	assert.Equal(t, 3, last.Uploaded)
	assert.Zero(t, last.Failed)
}

func TestRunKeepsProductWhenImageUploadFails(t *testing.T) {
	store := &fakeStore{}
	up := &fakeUploader{fail: map[string]bool{"blusa_roja_2.png": true}}
	svc := newService(store, up, services.Config{Retry: []retry.Option{retry.WithClassifier(func(error) bool { return false })}}, nil, nil)

	report, err := svc.Run(context.Background(), input(t), services.RunOptions{})
	require.NoError(t, err)

	assert.Equal(t, 1, report.ImagesUploaded)
	assert.Equal(t, 1, report.ImagesFailed)
	a1 := store.bySKU("A1")
	require.NotNil(t, a1)
	assert.Equal(t, []string{"https://cdn.test/m1/foto_blusa_roja.png"}, a1.Images)
}

func TestRunDefaultOverrideLeavesProductImageless(t *testing.T) {
	store := &fakeStore{}
	up := &fakeUploader{}
	svc := newService(store, up, services.Config{}, nil, nil)
	in := input(t)
	in.Overrides = models.Overrides{"A1": models.OverrideDefault}

	report, err := svc.Run(context.Background(), in, services.RunOptions{})
	require.NoError(t, err)

	assert.Equal(t, 3, report.Uploaded)
	assert.Empty(t, store.bySKU("A1").Images)
	assert.Empty(t, up.got)
	assert.Contains(t, report.ImagelessProducts, "A1")
}

func TestRunCancelledBetweenBatches(t *testing.T) {
	store := &fakeStore{}
	svc := newService(store, &fakeUploader{}, services.Config{BatchSize: 1}, nil, nil)

	report, err := svc.Run(context.Background(), input(t), services.RunOptions{
		Cancelled: func() bool { return len(store.written) >= 1 },
	})
	require.NoError(t, err)

	assert.True(t, report.Cancelled)
	assert.Equal(t, 1, report.Uploaded)
	assert.Equal(t, 2, report.Skipped)
	assert.Len(t, store.written, 1)
}

func TestImageIDsAreStableAcrossPreviews(t *testing.T) {
	svc := newService(&fakeStore{}, &fakeUploader{}, services.Config{}, nil, nil)

	first, err := svc.Preview(context.Background(), input(t))
	require.NoError(t, err)
	second, err := svc.Preview(context.Background(), input(t))
	require.NoError(t, err)

	require.Len(t, second.Images, len(first.Images))
	for i := range first.Images {
		assert.Equal(t, first.Images[i].ID, second.Images[i].ID, first.Images[i].FileName)
	}
	assert.Equal(t, services.ImageID("m1", "zapato.png"), first.Images[2].ID)
	assert.NotEqual(t, services.ImageID("m2", "zapato.png"), first.Images[2].ID)
}

func TestRepeatedFileNamesGetDistinctImageIDs(t *testing.T) {
	svc := newService(&fakeStore{}, &fakeUploader{}, services.Config{}, nil, nil)
	in := input(t)
	in.Images = append(in.Images, services.ImageFile{FileName: "zapato.png", Data: in.Images[2].Data})

	p, err := svc.Preview(context.Background(), in)
	require.NoError(t, err)
	require.Len(t, p.Images, 4)
	assert.NotEqual(t, p.Images[2].ID, p.Images[3].ID)
}

func TestManualOverrideFromPreviewIsApplied(t *testing.T) {
	store := &fakeStore{}
	svc := newService(store, &fakeUploader{}, services.Config{}, nil, nil)

	preview, err := svc.Preview(context.Background(), input(t))
	require.NoError(t, err)
	var zapatoID string
	for _, img := range preview.Images {
		if img.FileName == "zapato.png" {
			zapatoID = img.ID
		}
	}
	require.NotEmpty(t, zapatoID)

	in := input(t)
	in.Overrides = models.Overrides{"C3": zapatoID}

	again, err := svc.Preview(context.Background(), in)
	require.NoError(t, err)
	var manual *models.MatchResult
	for i := range again.Matches {
		if again.Matches[i].ImageID == zapatoID {
			manual = &again.Matches[i]
		}
	}
	require.NotNil(t, manual)
	require.NotNil(t, manual.Product)
	assert.Equal(t, "C3", manual.Product.SKU)
	assert.Equal(t, models.MatchManual, manual.Method)

	_, err = svc.Run(context.Background(), in, services.RunOptions{})
	require.NoError(t, err)
	c3 := store.bySKU("C3")
	require.NotNil(t, c3)
	assert.Equal(t, []string{"https://cdn.test/m1/zapato.png"}, c3.Images)
}
