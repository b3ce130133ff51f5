package dispatch

import (
	"strings"
	"time"

	"github.com/cockroachdb/errors"
)

type NewJobParams struct {
	ID                string
	FolderPath        string
	DeleteAfterSend   bool
	AllowedExtensions []string
	IdempotencyKey    string
	CreatedAt         time.Time
}

// Job is one dispatch of a folder. Its state only moves forward:
// pending -> running -> completed|failed, and terminal states are final.
type Job struct {
	id                string
	folderPath        string
	deleteAfterSend   bool
	allowedExtensions []string
	idempotencyKey    string
	status            Status
	progress          Progress
	createdAt         time.Time
	completedAt       *time.Time
	failureReason     string
}

func NewJob(params NewJobParams) (*Job, error) {
	id := strings.TrimSpace(params.ID)
	if id == "" {
		return nil, errors.Wrap(ErrInvalidJob, "job id is required")
	}
	folder := NormalizeFolderPath(params.FolderPath)
	if folder == "" {
		return nil, errors.Wrap(ErrInvalidJob, "folder path is required")
	}
	createdAt := params.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	return &Job{
		id:                id,
		folderPath:        folder,
		deleteAfterSend:   params.DeleteAfterSend,
		allowedExtensions: NormalizeExtensions(params.AllowedExtensions),
		idempotencyKey:    NormalizeIdempotencyKey(params.IdempotencyKey),
		status:            StatusPending,
		createdAt:         createdAt.UTC(),
	}, nil
}

func (j *Job) ID() string                  { return j.id }
func (j *Job) FolderPath() string          { return j.folderPath }
func (j *Job) DeleteAfterSend() bool       { return j.deleteAfterSend }
func (j *Job) IdempotencyKey() string      { return j.idempotencyKey }
func (j *Job) Status() Status              { return j.status }
func (j *Job) Progress() Progress          { return j.progress }
func (j *Job) CreatedAt() time.Time        { return j.createdAt }
func (j *Job) FailureReason() string       { return j.failureReason }
func (j *Job) AllowedExtensions() []string { return append([]string(nil), j.allowedExtensions...) }

func (j *Job) CompletedAt() (time.Time, bool) {
	if j.completedAt == nil {
		return time.Time{}, false
	}
	return *j.completedAt, true
}

// Start moves the job to running. Starting a running job is a no-op.
func (j *Job) Start() error {
	if j.status.IsTerminal() {
		return errors.Wrapf(ErrJobFinished, "start job %s in status %s", j.id, j.status)
	}
	j.status = StatusRunning
	return nil
}

// AddExpectedFiles grows the expected total. Non-positive counts are ignored.
func (j *Job) AddExpectedFiles(n int) {
	if n <= 0 {
		return
	}
	j.progress.TotalFiles += n
}

func (j *Job) RecordResult(success bool) error {
	if j.progress.Processed >= j.progress.TotalFiles {
		return errors.Wrapf(ErrProgressOverflow, "job %s processed=%d total=%d", j.id, j.progress.Processed, j.progress.TotalFiles)
	}
	j.progress.Processed++
	if success {
		j.progress.Succeeded++
	} else {
		j.progress.Failed++
	}
	return nil
}

func (j *Job) Complete(at time.Time) error {
	if j.status.IsTerminal() {
		return errors.Wrapf(ErrJobFinished, "complete job %s in status %s", j.id, j.status)
	}
	j.status = StatusCompleted
	j.finish(at)
	return nil
}

func (j *Job) Fail(reason string, at time.Time) error {
	if j.status.IsTerminal() {
		return errors.Wrapf(ErrJobFinished, "fail job %s in status %s", j.id, j.status)
	}
	j.status = StatusFailed
	j.failureReason = strings.TrimSpace(reason)
	j.finish(at)
	return nil
}

func (j *Job) finish(at time.Time) {
	if at.IsZero() {
		at = time.Now()
	}
	at = at.UTC()
	j.completedAt = &at
}

// Clone returns a deep copy that shares no mutable state with j.
func (j *Job) Clone() *Job {
	if j == nil {
		return nil
	}
	copied := *j
	copied.allowedExtensions = append([]string(nil), j.allowedExtensions...)
	if j.completedAt != nil {
		at := *j.completedAt
		copied.completedAt = &at
	}
	return &copied
}

func (j *Job) Snapshot() Snapshot {
	snap := Snapshot{
		ID:                j.id,
		Status:            j.status,
		Progress:          j.progress,
		FolderPath:        j.folderPath,
		DeleteAfterSend:   j.deleteAfterSend,
		AllowedExtensions: j.AllowedExtensions(),
		IdempotencyKey:    j.idempotencyKey,
		CreatedAt:         j.createdAt,
		FailureReason:     j.failureReason,
	}
	if j.completedAt != nil {
		at := *j.completedAt
		snap.CompletedAt = &at
	}
	return snap
}

// Snapshot is a read-only copy of a job for status queries.
type Snapshot struct {
	ID                string
	Status            Status
	Progress          Progress
	FolderPath        string
	DeleteAfterSend   bool
	AllowedExtensions []string
	IdempotencyKey    string
	CreatedAt         time.Time
	CompletedAt       *time.Time
	FailureReason     string
}
