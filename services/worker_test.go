package services_test

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/carloz138/catalogo-magico-mx-sub005/models"
	"github.com/carloz138/catalogo-magico-mx-sub005/services"
)

type memoryJobs struct {
	mu        sync.Mutex
	jobs      map[string]models.IngestionJob
	cancelled map[string]bool
	saves     int
}

func newMemoryJobs() *memoryJobs {
	return &memoryJobs{jobs: map[string]models.IngestionJob{}, cancelled: map[string]bool{}}
}

func (m *memoryJobs) Get(ctx context.Context, id string) (*models.IngestionJob, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	j, ok := m.jobs[id]
	if !ok {
		return nil, services.ErrJobNotFound
	}
	return &j, nil
}

func (m *memoryJobs) Save(ctx context.Context, job *models.IngestionJob) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saves++
	m.jobs[job.ID] = *job
	return nil
}

func (m *memoryJobs) RequestCancel(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cancelled[id] = true
	return nil
}

func (m *memoryJobs) CancelRequested(ctx context.Context, id string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cancelled[id], nil
}

func stageJob(t *testing.T, jobs *memoryJobs, dir, id, duplicates string) {
	t.Helper()
	sheetPath, imagePaths, err := services.StageFiles(dir, id, input(t))
	require.NoError(t, err)
	require.NoError(t, jobs.Save(context.Background(), &models.IngestionJob{
		ID:         id,
		MerchantID: "m1",
		Status:     models.JobPending,
		SheetFile:  sheetPath,
		ImageFiles: imagePaths,
		Duplicates: duplicates,
		CreatedAt:  time.Now(),
	}))
}

func TestStageFilesRoundTrip(t *testing.T) {
	dir := t.TempDir()
	in := input(t)
	in.Images = append(in.Images, services.ImageFile{FileName: "zapato.png", Data: []byte("second copy")})

	sheetPath, imagePaths, err := services.StageFiles(dir, "job-1", in)
	require.NoError(t, err)
	require.Len(t, imagePaths, 4)

	loaded, err := services.LoadStagedInput("m1", sheetPath, imagePaths)
	require.NoError(t, err)
	assert.Equal(t, "productos.csv", loaded.SheetName)
	assert.Equal(t, in.SheetData, loaded.SheetData)
	require.Len(t, loaded.Images, 4)
	for i := range in.Images {
		assert.Equal(t, in.Images[i].FileName, loaded.Images[i].FileName)
		assert.Equal(t, in.Images[i].Data, loaded.Images[i].Data)
	}
}

func TestWorkerProcessCompletesJob(t *testing.T) {
	dir := t.TempDir()
	jobs := newMemoryJobs()
	store := &fakeStore{}
	stageJob(t, jobs, dir, "job-1", "block")

	w := services.NewWorker(jobs, newService(store, &fakeUploader{}, services.Config{}, nil, nil), dir)
	require.NoError(t, w.Process(context.Background(), "job-1"))

	job, err := jobs.Get(context.Background(), "job-1")
	require.NoError(t, err)
	assert.Equal(t, models.JobDone, job.Status)
	require.NotNil(t, job.Report)
	assert.Equal(t, 3, job.Report.Uploaded)
	assert.Equal(t, 3, job.Progress.Uploaded)
	assert.Equal(t, 2, job.Compression.Current)
	assert.Len(t, store.written, 3)

	_, err = os.Stat(filepath.Join(dir, "job-1"))
	assert.True(t, os.IsNotExist(err))
}

func TestWorkerProcessRecordsDuplicates(t *testing.T) {
	dir := t.TempDir()
	jobs := newMemoryJobs()
	store := &fakeStore{existing: map[string]string{"C3": "Gorra"}}
	stageJob(t, jobs, dir, "job-2", "")

	w := services.NewWorker(jobs, newService(store, &fakeUploader{}, services.Config{}, nil, nil), dir)
	assert.Error(t, w.Process(context.Background(), "job-2"))

	job, _ := jobs.Get(context.Background(), "job-2")
	assert.Equal(t, models.JobFailed, job.Status)
	dups, ok := job.Details.([]models.DuplicateRecord)
	require.True(t, ok)
	assert.Equal(t, "C3", dups[0].SKU)
	assert.Empty(t, store.written)
}

func TestWorkerProcessHonoursEarlyCancel(t *testing.T) {
	dir := t.TempDir()
	jobs := newMemoryJobs()
	store := &fakeStore{}
	stageJob(t, jobs, dir, "job-3", "skip")
	require.NoError(t, jobs.RequestCancel(context.Background(), "job-3"))

	w := services.NewWorker(jobs, newService(store, &fakeUploader{}, services.Config{}, nil, nil), dir)
	require.NoError(t, w.Process(context.Background(), "job-3"))

	job, _ := jobs.Get(context.Background(), "job-3")
	assert.Equal(t, models.JobCancelled, job.Status)
	assert.Empty(t, store.written)
}

func TestWorkerHandleMessage(t *testing.T) {
	dir := t.TempDir()
	jobs := newMemoryJobs()
	stageJob(t, jobs, dir, "job-4", "skip")
	w := services.NewWorker(jobs, newService(&fakeStore{}, &fakeUploader{}, services.Config{}, nil, nil), dir)

	assert.NoError(t, w.HandleMessage(context.Background(), "unknown"))
	assert.NoError(t, w.HandleMessage(context.Background(), " job-4\n"))

	job, _ := jobs.Get(context.Background(), "job-4")
	assert.Equal(t, models.JobDone, job.Status)

	// a second delivery of a finished job is ignored
	saves := jobs.saves
	assert.NoError(t, w.HandleMessage(context.Background(), "job-4"))
	assert.Equal(t, saves, jobs.saves)
}

func TestRedisJobStoreSurfacesConnectionErrors(t *testing.T) {
	rdb := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1", DialTimeout: 50 * time.Millisecond, MaxRetries: -1})
	defer rdb.Close()
	store := services.NewRedisJobStore(rdb)

	_, err := store.Get(context.Background(), "job-1")
	require.Error(t, err)
	assert.NotErrorIs(t, err, services.ErrJobNotFound)
}
