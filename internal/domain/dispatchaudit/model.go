package dispatchaudit

import "time"

type EventStatus string

const (
	StatusSent   EventStatus = "sent"
	StatusFailed EventStatus = "failed"
)

// FileEvent is the latest publish outcome of one file within one job.
// Events are keyed by (JobID, FileName).
type FileEvent struct {
	JobID        string
	FileName     string
	SourcePath   string
	PartitionKey string
	ContentType  string
	SizeBytes    int
	Deleted      bool
	Status       EventStatus
	ErrorMessage string
	OccurredAt   time.Time
	TraceID      string
	SpanID       string
}
