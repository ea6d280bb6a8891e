// Package batch persists records in fixed-size, order-preserving batches with
// per-batch failure isolation.
package batch

import (
	"context"
	"errors"
	"time"

	apperrors "github.com/carloz138/catalogo-magico-mx-sub005/common/errors"
	"github.com/carloz138/catalogo-magico-mx-sub005/models"
	"github.com/carloz138/catalogo-magico-mx-sub005/retry"
)

// DefaultSize is the batch size used when none is given.
const DefaultSize = 500

// Failure is a batch whose persist call failed after all retries. Err is the
// error persist returned on its last attempt.
type Failure struct {
	BatchIndex int
	Err        error
}

// Result aggregates the outcome of WriteAll.
type Result[T any] struct {
	Successful []T
	Failed     []Failure
	Outcomes   []models.BatchOutcome
	// Skipped counts records never submitted because the run was cancelled.
	Skipped   int
	Cancelled bool
}

// Err joins the failures as BatchPersistErrors, or returns nil.
func (r Result[T]) Err() error {
	errs := make([]error, 0, len(r.Failed))
	for _, f := range r.Failed {
		errs = append(errs, &apperrors.BatchPersistError{BatchIndex: f.BatchIndex, Err: f.Err})
	}
	return errors.Join(errs...)
}

// Update is passed to the progress callback after every batch.
type Update struct {
	BatchIndex  int
	Batches     int
	Size        int
	Err         error
	Resubmitted bool
	// Running totals across the whole run.
	Succeeded int
	Failed    int
}

type config struct {
	retryOpts  []retry.Option
	onStart    func(batchIndex, batches int)
	onBatch    func(Update)
	onRetrying func(retrying bool)
	cancelled  func() bool
	resubmit   bool
}

// Option customises WriteAll.
type Option func(*config)

// WithRetry passes options to the retry loop around each persist call.
func WithRetry(opts ...retry.Option) Option {
	return func(c *config) { c.retryOpts = append(c.retryOpts, opts...) }
}

// OnBatchStart is called before a batch is submitted.
func OnBatchStart(fn func(batchIndex, batches int)) Option {
	return func(c *config) { c.onStart = fn }
}

// OnBatch is called after every batch, successful or not.
func OnBatch(fn func(Update)) Option {
	return func(c *config) { c.onBatch = fn }
}

// OnRetrying is called with true when a batch starts waiting out a backoff
// and with false once that batch settles.
func OnRetrying(fn func(retrying bool)) Option {
	return func(c *config) { c.onRetrying = fn }
}

// WithCancel adds a cancellation signal checked between batches, in addition
// to the context.
func WithCancel(fn func() bool) Option {
	return func(c *config) { c.cancelled = fn }
}

// WithResubmitFailed re-runs every failed batch once after the main pass.
func WithResubmitFailed(enabled bool) Option {
	return func(c *config) { c.resubmit = enabled }
}

// Persist writes one batch and returns the stored records.
type Persist[T any] func(ctx context.Context, batch []T) ([]T, error)

// WriteAll splits records into contiguous batches of batchSize and persists
// them one after another. A failed batch never stops later batches.
// Cancellation is only observed between batches: a submitted batch, retries
// included, always runs to completion.
func WriteAll[T any](ctx context.Context, records []T, batchSize int, persist Persist[T], opts ...Option) Result[T] {
	cfg := &config{}
	for _, opt := range opts {
		opt(cfg)
	}
	if batchSize <= 0 {
		batchSize = DefaultSize
	}

	batches := Partition(records, batchSize)
	res := Result[T]{
		Successful: make([]T, 0, len(records)),
		Outcomes:   make([]models.BatchOutcome, 0, len(batches)),
	}
	w := &writer[T]{cfg: cfg, persist: persist, batches: len(batches)}
	inflight := context.WithoutCancel(ctx)

	for i, b := range batches {
		if w.stopped(ctx) {
			res.Cancelled = true
			for _, rest := range batches[i:] {
				res.Skipped += len(rest)
			}
			break
		}

		stored, err := w.submit(inflight, i, b)
		outcome := models.BatchOutcome{BatchIndex: i}
		if err != nil {
			res.Failed = append(res.Failed, Failure{BatchIndex: i, Err: err})
			outcome.Error = err.Error()
			w.failed += len(b)
		} else {
			res.Successful = append(res.Successful, stored...)
			outcome.Succeeded = len(b)
			w.succeeded += len(b)
		}
		res.Outcomes = append(res.Outcomes, outcome)
		w.notify(Update{BatchIndex: i, Size: len(b), Err: err})
	}

	if cfg.resubmit && !res.Cancelled && len(res.Failed) > 0 {
		w.resubmit(ctx, inflight, batches, &res)
	}
	return res
}

func (w *writer[T]) resubmit(ctx, inflight context.Context, batches [][]T, res *Result[T]) {
	remaining := res.Failed[:0:0]
	for n, f := range res.Failed {
		if w.stopped(ctx) {
			res.Cancelled = true
			remaining = append(remaining, res.Failed[n:]...)
			break
		}
		b := batches[f.BatchIndex]
		stored, err := w.submit(inflight, f.BatchIndex, b)
		if err != nil {
			remaining = append(remaining, Failure{BatchIndex: f.BatchIndex, Err: err})
			res.Outcomes[f.BatchIndex].Error = err.Error()
			w.notify(Update{BatchIndex: f.BatchIndex, Size: len(b), Err: err, Resubmitted: true})
			continue
		}
		res.Successful = append(res.Successful, stored...)
		res.Outcomes[f.BatchIndex] = models.BatchOutcome{BatchIndex: f.BatchIndex, Succeeded: len(b)}
		w.failed -= len(b)
		w.succeeded += len(b)
		w.notify(Update{BatchIndex: f.BatchIndex, Size: len(b), Resubmitted: true})
	}
	res.Failed = remaining
}

type writer[T any] struct {
	cfg       *config
	persist   Persist[T]
	batches   int
	succeeded int
	failed    int
}

func (w *writer[T]) stopped(ctx context.Context) bool {
	return ctx.Err() != nil || (w.cfg.cancelled != nil && w.cfg.cancelled())
}

func (w *writer[T]) submit(ctx context.Context, index int, b []T) ([]T, error) {
	if w.cfg.onStart != nil {
		w.cfg.onStart(index, w.batches)
	}

	waited := false
	opts := append([]retry.Option{}, w.cfg.retryOpts...)
	if w.cfg.onRetrying != nil {
		opts = append(opts, retry.OnRetry(func(int, error, time.Duration) {
			waited = true
			w.cfg.onRetrying(true)
		}))
	}

	stored, err := retry.Do(ctx, func(ctx context.Context) ([]T, error) {
		return w.persist(ctx, b)
	}, opts...)

	if waited {
		w.cfg.onRetrying(false)
	}
	return stored, err
}

func (w *writer[T]) notify(u Update) {
	if w.cfg.onBatch == nil {
		return
	}
	u.Batches = w.batches
	u.Succeeded = w.succeeded
	u.Failed = w.failed
	w.cfg.onBatch(u)
}

// Partition splits records into contiguous slices of at most size elements.
func Partition[T any](records []T, size int) [][]T {
	if size <= 0 {
		size = DefaultSize
	}
	out := make([][]T, 0, (len(records)+size-1)/size)
	for start := 0; start < len(records); start += size {
		end := start + size
		if end > len(records) {
			end = len(records)
		}
		out = append(out, records[start:end])
	}
	return out
}
