package service

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/janjanpower/77law-sub002/model"
	"github.com/janjanpower/77law-sub002/pkg/logger"
)

// ErrUploadInProgress is returned by StartUpload while a previous run's
// completion callback has not fired yet.
var ErrUploadInProgress = errors.New("an upload is already in progress")

// backoffUnit is the base delay between retry attempts; attempt n waits
// n * backoffUnit before trying again.
var backoffUnit = 1200 * time.Millisecond

// ProgressFunc receives progress updates during a run. Percent never
// decreases within one run. Invoked on the uploader's background goroutine;
// callers that need delivery on a UI thread must marshal themselves.
type ProgressFunc func(percent int, message string)

// CompleteFunc is invoked exactly once per run, on the uploader's background
// goroutine.
type CompleteFunc func(success bool, summary Summary)

// Summary is the terminal report of one upload run. Message is set on
// failure outcomes; Total/Uploaded/Failed describe completed runs.
type Summary struct {
	Message  string `json:"message,omitempty"`
	Total    int    `json:"total"`
	Uploaded int    `json:"uploaded"`
	Failed   int    `json:"failed"`
}

// Status is a point-in-time snapshot of the cumulative counters.
type Status struct {
	Uploaded int `json:"uploaded_count"`
	Failed   int `json:"failed_count"`
}

type uploadOptions struct {
	batchSize  int
	maxRetries int
}

// UploadOption tunes one upload run.
type UploadOption func(*uploadOptions)

// WithBatchSize caps how many records go into one transmission. Values
// below 1 are ignored.
func WithBatchSize(n int) UploadOption {
	return func(o *uploadOptions) {
		if n >= 1 {
			o.batchSize = n
		}
	}
}

// WithMaxRetries sets how many retries each batch gets after its first
// attempt. Negative values are ignored.
func WithMaxRetries(n int) UploadOption {
	return func(o *uploadOptions) {
		if n >= 0 {
			o.maxRetries = n
		}
	}
}

// Uploader runs batch case uploads against the backend. One run is active
// at a time; counters and the cancellation flag are safe to read from other
// goroutines while a run is in flight.
type Uploader struct {
	client *CaseAPIClient

	running   atomic.Bool
	cancelled atomic.Bool
	uploaded  atomic.Int64
	failed    atomic.Int64
}

func NewUploader(client *CaseAPIClient) *Uploader {
	return &Uploader{client: client}
}

// StartUpload begins one background upload run and returns immediately.
// Records are normalized, records without a case identifier dropped, the
// rest stamped with the context's client_id and uploaded_by and sent in
// order, one bounded batch at a time. If uploadCtx carries a bearer token
// it replaces the client's configured credential for this and subsequent
// requests.
//
// A second call while a run is active returns ErrUploadInProgress.
func (u *Uploader) StartUpload(
	records []model.Record,
	uploadCtx model.UploadContext,
	onProgress ProgressFunc,
	onComplete CompleteFunc,
	opts ...UploadOption,
) error {
	if onProgress == nil {
		onProgress = func(int, string) {}
	}
	if onComplete == nil {
		onComplete = func(bool, Summary) {}
	}

	o := &uploadOptions{batchSize: 100, maxRetries: 2}
	for _, opt := range opts {
		opt(o)
	}

	if !u.running.CompareAndSwap(false, true) {
		return ErrUploadInProgress
	}

	u.cancelled.Store(false)
	u.uploaded.Store(0)
	u.failed.Store(0)

	if token := uploadCtx.Token(); token != "" {
		u.client.SetToken(token)
	}

	runID := uuid.New().String()
	ctx := context.WithValue(context.Background(), logger.RunIDKey, runID)
	if clientID := uploadCtx.ClientID(); clientID != "" {
		ctx = context.WithValue(ctx, logger.ClientIDKey, clientID)
	}

	go u.run(ctx, records, uploadCtx, onProgress, onComplete, o)
	return nil
}

// Cancel requests cooperative cancellation of the active run. The flag is
// observed before each record normalization and before each batch send; a
// batch already dispatched finishes first. Calling Cancel with no active
// run is a no-op, and repeated calls are idempotent.
func (u *Uploader) Cancel() {
	if u.running.Load() {
		u.cancelled.Store(true)
	}
}

// Status returns the cumulative counters of the current (or most recent)
// run. Safe to call concurrently with an active run.
func (u *Uploader) Status() Status {
	return Status{
		Uploaded: int(u.uploaded.Load()),
		Failed:   int(u.failed.Load()),
	}
}

// Running reports whether a run is currently active.
func (u *Uploader) Running() bool {
	return u.running.Load()
}

func (u *Uploader) run(
	ctx context.Context,
	records []model.Record,
	uploadCtx model.UploadContext,
	onProgress ProgressFunc,
	onComplete CompleteFunc,
	o *uploadOptions,
) {
	// finish releases the run slot before the completion callback fires, so
	// a caller may start the next run from inside onComplete.
	completed := false
	finish := func(ok bool, s Summary) {
		completed = true
		u.running.Store(false)
		onComplete(ok, s)
	}
	defer func() {
		if r := recover(); r != nil {
			logger.Error(ctx, "upload run panicked",
				"panic", r,
				"stack", string(debug.Stack()),
			)
			if !completed {
				u.running.Store(false)
				onComplete(false, Summary{Message: fmt.Sprintf("internal error: %v", r)})
			}
		}
	}()

	if len(records) == 0 {
		finish(false, Summary{Message: "no records to upload"})
		return
	}

	clientID := uploadCtx.ClientID()
	uploadedBy := uploadCtx.UploadedBy()

	valid := make([]model.NormalizedRecord, 0, len(records))
	for _, rec := range records {
		if u.cancelled.Load() {
			onProgress(100, "cancelled")
			finish(false, Summary{Message: "cancelled by user"})
			return
		}

		normalized := model.Normalize(rec)
		if normalized.CaseID() == "" {
			// Cannot be upserted without an identifier.
			continue
		}
		if clientID != "" {
			normalized[model.FieldClientID] = clientID
		}
		if uploadedBy != "" {
			normalized[model.FieldUploadedBy] = uploadedBy
		}
		valid = append(valid, normalized)
	}

	if len(valid) == 0 {
		finish(false, Summary{Message: "no valid records (missing case_id)"})
		return
	}

	batches := partition(valid, o.batchSize)
	total := len(batches)
	logger.Info(ctx, "upload run started",
		"records", len(valid),
		"dropped", len(records)-len(valid),
		"batches", total,
	)

	for i, batch := range batches {
		if u.cancelled.Load() {
			onProgress(100, "cancelled")
			finish(false, Summary{Message: "cancelled by user"})
			return
		}

		percent := 100 * (i + 1) / total
		if percent > 99 {
			percent = 99
		}

		if err := u.sendWithRetry(ctx, batch, o.maxRetries); err != nil {
			u.failed.Add(int64(len(batch)))
			logger.Warn(ctx, "batch failed", "batch", i+1, "total", total, "error", err)
			onProgress(percent, fmt.Sprintf("batch %d/%d failed: %v", i+1, total, err))
		} else {
			u.uploaded.Add(int64(len(batch)))
			onProgress(percent, fmt.Sprintf("batch %d/%d uploaded (%d records)", i+1, total, len(batch)))
		}
	}

	onProgress(100, "upload complete")
	finish(true, Summary{
		Total:    len(valid),
		Uploaded: int(u.uploaded.Load()),
		Failed:   int(u.failed.Load()),
	})
}

// sendWithRetry transmits one batch with up to maxRetries retries. Attempt
// n waits n * backoffUnit before retrying. The last transmission error is
// returned after exhaustion.
func (u *Uploader) sendWithRetry(ctx context.Context, batch []model.NormalizedRecord, maxRetries int) error {
	var lastErr error
	for attempt := 1; attempt <= maxRetries+1; attempt++ {
		err := u.client.UploadBatch(ctx, batch)
		if err == nil {
			return nil
		}
		lastErr = err
		if attempt <= maxRetries {
			time.Sleep(time.Duration(attempt) * backoffUnit)
		}
	}
	return lastErr
}

// partition splits records into consecutive batches of at most size,
// preserving order within and across batches.
func partition(records []model.NormalizedRecord, size int) [][]model.NormalizedRecord {
	if size < 1 {
		size = 1
	}
	batches := make([][]model.NormalizedRecord, 0, (len(records)+size-1)/size)
	for start := 0; start < len(records); start += size {
		end := start + size
		if end > len(records) {
			end = len(records)
		}
		batches = append(batches, records[start:end])
	}
	return batches
}
