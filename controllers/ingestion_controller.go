package controllers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	apperrors "github.com/carloz138/catalogo-magico-mx-sub005/common/errors"
	"github.com/carloz138/catalogo-magico-mx-sub005/common/logger"
	"github.com/carloz138/catalogo-magico-mx-sub005/dedupe"
	"github.com/carloz138/catalogo-magico-mx-sub005/models"
	"github.com/carloz138/catalogo-magico-mx-sub005/services"
	"github.com/carloz138/catalogo-magico-mx-sub005/sheet"
)

// DefaultContextTimeout bounds the synchronous part of a request.
const DefaultContextTimeout = 60 * time.Second

// PreviewService is the part of the ingestion service the HTTP layer calls
// synchronously.
type PreviewService interface {
	Preview(ctx context.Context, in services.Input) (*services.Preview, error)
}

// IngestionController serves the /ingestions endpoints.
type IngestionController struct {
	service    PreviewService
	jobs       services.JobStore
	queue      services.JobQueue
	validator  *RequestValidator
	storageDir string
	timeout    time.Duration
}

func NewIngestionController(svc PreviewService, jobs services.JobStore, queue services.JobQueue, validator *RequestValidator, storageDir string) *IngestionController {
	return &IngestionController{
		service:    svc,
		jobs:       jobs,
		queue:      queue,
		validator:  validator,
		storageDir: storageDir,
		timeout:    DefaultContextTimeout,
	}
}

// Preview reconciles the upload and returns the matches without writing.
func (h *IngestionController) Preview(c *gin.Context) {
	in, _, err := h.validator.ReadInput(c)
	if err != nil {
		_ = c.Error(err)
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), h.timeout)
	defer cancel()

	preview, err := h.service.Preview(ctx, in)
	if err != nil {
		logger.Warn(ctx, "Ingestion preview rejected", zap.String("merchant_id", in.MerchantID), zap.Error(err))
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, preview)
}

// Create stages the upload and queues an ingestion job.
func (h *IngestionController) Create(c *gin.Context) {
	in, duplicates, err := h.validator.ReadInput(c)
	if err != nil {
		_ = c.Error(err)
		return
	}
	policy, err := dedupe.ParsePolicy(duplicates)
	if err != nil {
		_ = c.Error(apperrors.New(http.StatusBadRequest, err.Error(), err))
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), h.timeout)
	defer cancel()

	jobID := uuid.NewString()
	sheetPath, imagePaths, err := services.StageFiles(h.storageDir, jobID, in)
	if err != nil {
		logger.Error(ctx, "Failed to stage ingestion files", err)
		_ = c.Error(apperrors.New(http.StatusInternalServerError, "Failed to store upload", err))
		return
	}

	now := time.Now().UTC()
	job := &models.IngestionJob{
		ID:         jobID,
		MerchantID: in.MerchantID,
		Status:     models.JobPending,
		SheetFile:  sheetPath,
		ImageFiles: imagePaths,
		Overrides:  in.Overrides,
		Duplicates: string(policy),
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := h.jobs.Save(ctx, job); err != nil {
		logger.Error(ctx, "Failed to save ingestion job", err, zap.String("job", jobID))
		_ = c.Error(apperrors.New(http.StatusInternalServerError, "Failed to queue ingestion job", err))
		return
	}
	if err := h.queue.Enqueue(ctx, jobID); err != nil {
		logger.Error(ctx, "Failed to enqueue ingestion job", err, zap.String("job", jobID))
		_ = c.Error(apperrors.New(http.StatusInternalServerError, "Failed to queue ingestion job", err))
		return
	}

	logger.Info(ctx, "Ingestion job queued",
		zap.String("job", jobID),
		zap.String("merchant_id", in.MerchantID),
		zap.Int("images", len(in.Images)))
	c.JSON(http.StatusAccepted, gin.H{
		"job_id":  jobID,
		"status":  job.Status,
		"message": "Ingestion queued for processing",
	})
}

// Get returns the job document with its progress and report.
func (h *IngestionController) Get(c *gin.Context) {
	job, ok := h.loadJob(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, job)
}

// Cancel flags a job; the worker stops before its next batch.
func (h *IngestionController) Cancel(c *gin.Context) {
	job, ok := h.loadJob(c)
	if !ok {
		return
	}
	switch job.Status {
	case models.JobDone, models.JobFailed, models.JobCancelled:
		_ = c.Error(apperrors.New(http.StatusConflict, fmt.Sprintf("job already %s", job.Status), nil))
		return
	}

	if err := h.jobs.RequestCancel(c.Request.Context(), job.ID); err != nil {
		logger.Error(c, "Failed to flag job cancellation", err, zap.String("job", job.ID))
		_ = c.Error(apperrors.New(http.StatusInternalServerError, "Failed to cancel job", err))
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"job_id": job.ID, "status": "cancelling"})
}

// Template serves an empty product sheet.
func (h *IngestionController) Template(c *gin.Context) {
	format := sheet.Format(strings.ToLower(c.DefaultQuery("format", string(sheet.FormatXLSX))))
	data, err := sheet.Template(format)
	if err != nil {
		_ = c.Error(apperrors.New(http.StatusBadRequest, err.Error(), err))
		return
	}

	contentType := "text/csv; charset=utf-8"
	if format == sheet.FormatXLSX {
		contentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	}
	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="plantilla_productos.%s"`, format))
	c.Data(http.StatusOK, contentType, data)
}

func (h *IngestionController) loadJob(c *gin.Context) (*models.IngestionJob, bool) {
	id := strings.TrimSpace(c.Param("id"))
	if id == "" {
		_ = c.Error(apperrors.New(http.StatusBadRequest, "Job ID required", nil))
		return nil, false
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	job, err := h.jobs.Get(ctx, id)
	if errors.Is(err, services.ErrJobNotFound) {
		_ = c.Error(apperrors.New(http.StatusNotFound, "Job not found", err))
		return nil, false
	}
	if err != nil {
		logger.Error(ctx, "Failed to get job status", err, zap.String("job", id))
		_ = c.Error(apperrors.New(http.StatusInternalServerError, "Failed to retrieve job status", err))
		return nil, false
	}
	return job, true
}
