package services

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	apperrors "github.com/carloz138/catalogo-magico-mx-sub005/common/errors"
	"github.com/carloz138/catalogo-magico-mx-sub005/dedupe"
	"github.com/carloz138/catalogo-magico-mx-sub005/models"
)

// Worker runs queued ingestion jobs.
type Worker struct {
	jobs       JobStore
	svc        *IngestionService
	storageDir string
	now        func() time.Time
}

func NewWorker(jobs JobStore, svc *IngestionService, storageDir string) *Worker {
	return &Worker{jobs: jobs, svc: svc, storageDir: storageDir, now: time.Now}
}

// Process runs one job to completion and stores its final state. The job's
// staged files are removed afterwards whatever the outcome.
func (w *Worker) Process(ctx context.Context, jobID string) error {
	job, err := w.jobs.Get(ctx, jobID)
	if err != nil {
		return err
	}
	if job.Status != models.JobPending {
		zap.L().Warn("Skipping job that is not pending", zap.String("job", jobID), zap.String("status", string(job.Status)))
		return nil
	}
	defer os.RemoveAll(filepath.Join(w.storageDir, jobID))

	var mu sync.Mutex
	save := func(mutate func(*models.IngestionJob)) {
		mu.Lock()
		defer mu.Unlock()
		mutate(job)
		job.UpdatedAt = w.now().UTC()
		if err := w.jobs.Save(ctx, job); err != nil {
			zap.L().Error("Failed to save job state", zap.String("job", jobID), zap.Error(err))
		}
	}

	if requested, _ := w.jobs.CancelRequested(ctx, jobID); requested {
		save(func(j *models.IngestionJob) { j.Status = models.JobCancelled })
		return nil
	}
	save(func(j *models.IngestionJob) { j.Status = models.JobProcessing })

	in, err := LoadStagedInput(job.MerchantID, job.SheetFile, job.ImageFiles)
	if err != nil {
		save(func(j *models.IngestionJob) { fail(j, err) })
		return err
	}
	in.Overrides = job.Overrides

	policy, err := dedupe.ParsePolicy(job.Duplicates)
	if err != nil {
		save(func(j *models.IngestionJob) { fail(j, err) })
		return err
	}

	report, err := w.svc.Run(ctx, in, RunOptions{
		JobID:      jobID,
		Duplicates: policy,
		OnProgress: func(p models.IngestionProgress) {
			save(func(j *models.IngestionJob) { j.Progress = p })
		},
		OnCompression: func(p models.CompressionProgress) {
			save(func(j *models.IngestionJob) { j.Compression = p })
		},
		Cancelled: func() bool {
			requested, err := w.jobs.CancelRequested(ctx, jobID)
			if err != nil {
				zap.L().Warn("Failed to read cancel flag", zap.String("job", jobID), zap.Error(err))
			}
			return requested
		},
	})

	save(func(j *models.IngestionJob) {
		j.Report = report
		switch {
		case err == nil && report.Cancelled:
			j.Status = models.JobCancelled
		case err == nil:
			j.Status = models.JobDone
		case errors.Is(err, apperrors.ErrIngestionCancelled):
			j.Status = models.JobCancelled
			j.Error = err.Error()
		default:
			fail(j, err)
		}
	})
	if err != nil {
		zap.L().Error("Ingestion job failed", zap.String("job", jobID), zap.Error(err))
	}
	return err
}

func fail(j *models.IngestionJob, err error) {
	j.Status = models.JobFailed
	j.Error = err.Error()

	var verr *apperrors.ValidationError
	if errors.As(err, &verr) {
		j.Details = verr.Rows
	}
	if errors.Is(err, apperrors.ErrDuplicatesFound) && j.Report != nil {
		j.Details = j.Report.Duplicates
	}
}

// HandleMessage adapts Process to an SQS message whose body is the job ID.
func (w *Worker) HandleMessage(ctx context.Context, body string) error {
	id := strings.TrimSpace(body)
	if id == "" {
		return nil
	}
	if _, err := w.jobs.Get(ctx, id); err != nil {
		if errors.Is(err, ErrJobNotFound) {
			zap.L().Warn("Dropping message for unknown job", zap.String("job", id))
			return nil
		}
		return err
	}
	// run failures are recorded on the job, redelivery would not help
	_ = w.Process(ctx, id)
	return nil
}

// StartIngestionWorker consumes job IDs from the Redis queue until ctx ends.
func StartIngestionWorker(ctx context.Context, queue *RedisJobStore, w *Worker) {
	if queue == nil || w == nil {
		zap.L().Warn("ingestion worker not started: missing dependencies")
		return
	}
	if err := os.MkdirAll(w.storageDir, 0o755); err != nil {
		zap.L().Error("failed to create ingestion storage dir", zap.Error(err))
		return
	}

	go func() {
		zap.L().Info("ingestion worker started", zap.String("queue", queueKey), zap.String("dir", w.storageDir))
		for {
			select {
			case <-ctx.Done():
				zap.L().Info("ingestion worker stopping")
				return
			default:
			}

			jobID, err := queue.Dequeue(ctx, 5*time.Second)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				zap.L().Error("redis BLPop failed", zap.Error(err))
				time.Sleep(500 * time.Millisecond)
				continue
			}
			if jobID == "" {
				continue
			}
			if err := w.Process(ctx, jobID); err != nil {
				zap.L().Error("ingestion job ended with error", zap.String("job", jobID), zap.Error(err))
			}
		}
	}()
}
