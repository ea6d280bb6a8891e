package models

import "time"

// DuplicateRecord flags a sheet SKU that already exists in the product store.
type DuplicateRecord struct {
	SKU             string `json:"sku"`
	Row             int    `json:"row"`
	ExistsInBackend bool   `json:"exists_in_backend"`
	ConflictingName string `json:"conflicting_name,omitempty"`
}

// IngestionProgress is the upload-phase progress of a run.
type IngestionProgress struct {
	Total        int    `json:"total"`
	Uploaded     int    `json:"uploaded"`
	Failed       int    `json:"failed"`
	CurrentLabel string `json:"current_label"`
	Retrying     bool   `json:"retrying"`
}

// CompressionProgress is the per-image compression-phase progress of a run.
type CompressionProgress struct {
	Total      int     `json:"total"`
	Current    int     `json:"current"`
	FileName   string  `json:"file_name"`
	Percentage float64 `json:"percentage"`
}

// BatchOutcome is emitted once per persisted batch.
type BatchOutcome struct {
	BatchIndex int    `json:"batch_index"`
	Succeeded  int    `json:"succeeded"`
	Error      string `json:"error,omitempty"`
}

// FailedBatch is a batch whose persist call failed after all retries.
type FailedBatch struct {
	BatchIndex int      `json:"batch_index"`
	SKUs       []string `json:"skus"`
	Error      string   `json:"error"`
}

// IngestionReport summarises a finished run.
type IngestionReport struct {
	Total               int               `json:"total"`
	Uploaded            int               `json:"uploaded"`
	Failed              int               `json:"failed"`
	Skipped             int               `json:"skipped"`
	Cancelled           bool              `json:"cancelled"`
	Duplicates          []DuplicateRecord `json:"duplicates,omitempty"`
	FailedBatches       []FailedBatch     `json:"failed_batches,omitempty"`
	Batches             []BatchOutcome    `json:"batches"`
	UnmatchedImages     []string          `json:"unmatched_images,omitempty"`
	ImagelessProducts   []string          `json:"imageless_products,omitempty"`
	ImagesUploaded      int               `json:"images_uploaded"`
	ImagesFailed        int               `json:"images_failed"`
	CompressionFailures []string          `json:"compression_failures,omitempty"`
	Duration            time.Duration     `json:"duration"`
}

// JobStatus is the lifecycle state of an asynchronous ingestion job.
type JobStatus string

const (
	JobPending    JobStatus = "pending"
	JobProcessing JobStatus = "processing"
	JobDone       JobStatus = "done"
	JobFailed     JobStatus = "failed"
	JobCancelled  JobStatus = "cancelled"
)

// IngestionJob is the status document stored for an asynchronous run.
type IngestionJob struct {
	ID          string              `json:"job_id"`
	MerchantID  string              `json:"merchant_id"`
	Status      JobStatus           `json:"status"`
	SheetFile   string              `json:"sheet_file"`
	ImageFiles  []string            `json:"image_files"`
	Overrides   Overrides           `json:"overrides,omitempty"`
	Duplicates  string              `json:"duplicates"`
	Progress    IngestionProgress   `json:"progress"`
	Compression CompressionProgress `json:"compression"`
	Report      *IngestionReport    `json:"report,omitempty"`
	Error       string              `json:"error,omitempty"`
	Details     interface{}         `json:"details,omitempty"`
	CreatedAt   time.Time           `json:"created_at"`
	UpdatedAt   time.Time           `json:"updated_at"`
}
