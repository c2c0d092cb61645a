package davsdk

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// TransferEngine executes batches of independent transfer tasks against a
// WebDAV remote under a concurrency cap, with per-task retry. One task's
// failure never aborts its siblings; cancellation aborts the whole batch
// and is never recorded as a task failure.
type TransferEngine struct {
	client *Client
	opts   TransferOptions
}

func NewTransferEngine(client *Client, opts TransferOptions) *TransferEngine {
	return &TransferEngine{
		client: client,
		opts:   opts.normalized(),
	}
}

// RunDownloads fetches all tasks and returns exactly one result per task,
// in unspecified order. onProgress fires once per completed task. A nil
// error guarantees len(results) == len(tasks).
func (e *TransferEngine) RunDownloads(ctx context.Context, tasks []*DownloadTask, onProgress ProgressFunc) ([]*DownloadResult, error) {
	if len(tasks) == 0 {
		return nil, nil
	}

	jobs := make(chan *DownloadTask, len(tasks))
	results := make(chan *DownloadResult, len(tasks))
	total := len(tasks)
	var completed atomic.Int64

	workers := e.opts.MaxParallel
	if workers > total {
		workers = total
	}

	var wg sync.WaitGroup
	wg.Add(workers)
	for range workers {
		go func() {
			defer wg.Done()
			for task := range jobs {
				if ctx.Err() != nil {
					return
				}
				res := e.downloadOne(ctx, task)
				if res == nil {
					// cancelled mid-task; batch is being abandoned
					return
				}
				results <- res
				if onProgress != nil {
					onProgress(int(completed.Add(1)), total, task.ID)
				}
			}
		}()
	}

	for _, task := range tasks {
		jobs <- task
	}
	close(jobs)
	wg.Wait()
	close(results)

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	out := make([]*DownloadResult, 0, total)
	for res := range results {
		out = append(out, res)
	}
	return out, nil
}

// RunUploads mirrors RunDownloads for the upload direction.
func (e *TransferEngine) RunUploads(ctx context.Context, tasks []*UploadTask, onProgress ProgressFunc) ([]*UploadResult, error) {
	if len(tasks) == 0 {
		return nil, nil
	}

	jobs := make(chan *UploadTask, len(tasks))
	results := make(chan *UploadResult, len(tasks))
	total := len(tasks)
	var completed atomic.Int64

	workers := e.opts.MaxParallel
	if workers > total {
		workers = total
	}

	var wg sync.WaitGroup
	wg.Add(workers)
	for range workers {
		go func() {
			defer wg.Done()
			for task := range jobs {
				if ctx.Err() != nil {
					return
				}
				res := e.uploadOne(ctx, task)
				if res == nil {
					return
				}
				results <- res
				if onProgress != nil {
					onProgress(int(completed.Add(1)), total, task.ID)
				}
			}
		}()
	}

	for _, task := range tasks {
		jobs <- task
	}
	close(jobs)
	wg.Wait()
	close(results)

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	out := make([]*UploadResult, 0, total)
	for res := range results {
		out = append(out, res)
	}
	return out, nil
}

// downloadOne runs a single task with retries. Returns nil if the context
// was cancelled: cancellation must never surface as a Failure result.
func (e *TransferEngine) downloadOne(ctx context.Context, task *DownloadTask) *DownloadResult {
	if task.Skip {
		return &DownloadResult{TaskID: task.ID, Outcome: OutcomeSkipped, SkipReason: task.SkipReason}
	}

	var lastErr error
	for attempt := 0; attempt <= e.opts.RetryCount; attempt++ {
		if attempt > 0 {
			if err := sleepCtx(ctx, retryBaseDelay*time.Duration(attempt)); err != nil {
				return nil
			}
		}

		body, etag, err := e.client.Get(ctx, task.URL)
		if err == nil {
			if etag == "" {
				etag = task.ETag
			}
			return &DownloadResult{TaskID: task.ID, Outcome: OutcomeSuccess, Body: body, ETag: etag}
		}
		if ctx.Err() != nil {
			return nil
		}
		lastErr = err
		if !IsRetryable(err) {
			break
		}
	}

	return &DownloadResult{TaskID: task.ID, Outcome: OutcomeFailure, Err: lastErr}
}

func (e *TransferEngine) uploadOne(ctx context.Context, task *UploadTask) *UploadResult {
	if task.Skip {
		return &UploadResult{TaskID: task.ID, Outcome: OutcomeSkipped, Markdown: task.Markdown, SkipReason: task.SkipReason}
	}

	var lastErr error
	for attempt := 0; attempt <= e.opts.RetryCount; attempt++ {
		if attempt > 0 {
			if err := sleepCtx(ctx, retryBaseDelay*time.Duration(attempt)); err != nil {
				return nil
			}
		}

		etag, err := e.client.Put(ctx, task.URL, task.Body, task.ContentType)
		if err == nil {
			return &UploadResult{TaskID: task.ID, Outcome: OutcomeSuccess, ETag: etag, Markdown: task.Markdown}
		}
		if ctx.Err() != nil {
			return nil
		}
		lastErr = err
		if !IsRetryable(err) {
			break
		}
	}

	return &UploadResult{TaskID: task.ID, Outcome: OutcomeFailure, Err: lastErr, Markdown: task.Markdown}
}

// sleepCtx waits for d or until ctx is cancelled. Backoff sleeps must be
// interruptible so cancellation propagates immediately.
func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
