package postgres

import (
	"database/sql"
	"time"
)

const dispatchFileEventsTable = "dispatch_file_events"

type dispatchFileEventInsertModel struct {
	JobID        string     `db:"job_id"`
	FileName     string     `db:"file_name"`
	SourcePath   string     `db:"source_path"`
	PartitionKey string     `db:"partition_key"`
	Status       string     `db:"status"`
	Metadata     string     `db:"metadata"`
	LastError    *string    `db:"last_error"`
	SentAt       *time.Time `db:"sent_at"`
	FailedAt     *time.Time `db:"failed_at"`
	OccurredAt   time.Time  `db:"occurred_at"`
	TraceID      *string    `db:"trace_id"`
	SpanID       *string    `db:"span_id"`
}

type dispatchFileEventRow struct {
	JobID        string         `db:"job_id"`
	FileName     string         `db:"file_name"`
	SourcePath   string         `db:"source_path"`
	PartitionKey string         `db:"partition_key"`
	Status       string         `db:"status"`
	Metadata     string         `db:"metadata"`
	LastError    sql.NullString `db:"last_error"`
	OccurredAt   time.Time      `db:"occurred_at"`
	TraceID      sql.NullString `db:"trace_id"`
	SpanID       sql.NullString `db:"span_id"`
}

type dispatchFileEventMetadata struct {
	ContentType string `json:"content_type,omitempty"`
	SizeBytes   int    `json:"size_bytes"`
	Deleted     bool   `json:"deleted"`
}
