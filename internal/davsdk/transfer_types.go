package davsdk

import (
	"time"
)

const (
	DefaultMaxParallel = 5
	MinParallel        = 1
	MaxParallel        = 10
	DefaultRetryCount  = 2

	// retryBaseDelay is multiplied by the attempt number between retries,
	// so delays grow linearly: 500ms, 1s, 1.5s, ...
	retryBaseDelay = 500 * time.Millisecond
)

// Outcome tags a transfer result. Skipped and Failure are expected
// outcomes, not faults; callers switch on the outcome exhaustively.
type Outcome uint8

const (
	OutcomeSuccess Outcome = iota
	OutcomeFailure
	OutcomeSkipped
)

var outcomeNames = []string{
	"Success",
	"Failure",
	"Skipped",
}

func (o Outcome) String() string {
	return outcomeNames[o]
}

// DownloadTask describes one resource to fetch. Immutable once submitted.
type DownloadTask struct {
	ID           string // note id, used to correlate results
	URL          string // server path
	ETag         string
	Size         int64
	LastModified time.Time
	Skip         bool // tombstoned or unchanged; yields OutcomeSkipped
	SkipReason   string
}

// DownloadResult is the single result produced for a DownloadTask.
type DownloadResult struct {
	TaskID     string
	Outcome    Outcome
	Body       []byte
	ETag       string
	Err        error
	SkipReason string
}

// UploadTask describes one resource to push. Markdown marks export-folder
// uploads, which are best-effort mirrors of the note content.
type UploadTask struct {
	ID          string
	URL         string
	Body        []byte
	ContentType string
	Markdown    bool
	Skip        bool
	SkipReason  string
}

// UploadResult is the single result produced for an UploadTask.
type UploadResult struct {
	TaskID     string
	Outcome    Outcome
	ETag       string
	Markdown   bool
	Err        error
	SkipReason string
}

// ProgressFunc is invoked exactly once per completed task with a
// monotonically increasing completed count. Calls may arrive out of
// submission order.
type ProgressFunc func(completed, total int, taskID string)

// TransferOptions bounds concurrency and retries for one batch.
type TransferOptions struct {
	MaxParallel int // clamped to [1,10], 0 means default
	RetryCount  int // extra attempts after the first, negative means default
}

func (o TransferOptions) normalized() TransferOptions {
	if o.MaxParallel == 0 {
		o.MaxParallel = DefaultMaxParallel
	}
	if o.MaxParallel < MinParallel {
		o.MaxParallel = MinParallel
	}
	if o.MaxParallel > MaxParallel {
		o.MaxParallel = MaxParallel
	}
	if o.RetryCount < 0 {
		o.RetryCount = DefaultRetryCount
	}
	return o
}
