package postgres

import (
	"context"
	"strings"
	"time"

	sonic "github.com/bytedance/sonic"
	"github.com/cockroachdb/errors"
	"github.com/jmoiron/sqlx"
	"github.com/riskibarqy/transaction-dispatch/internal/domain/dispatchaudit"
	qb "github.com/riskibarqy/transaction-dispatch/internal/platform/querybuilder"
)

const upsertDispatchFileEventSuffix = `ON CONFLICT (job_id, file_name)
DO UPDATE SET
    source_path = EXCLUDED.source_path,
    partition_key = EXCLUDED.partition_key,
    status = EXCLUDED.status,
    metadata = EXCLUDED.metadata,
    sent_at = CASE
        WHEN EXCLUDED.status = 'sent' THEN EXCLUDED.sent_at
        ELSE dispatch_file_events.sent_at
    END,
    failed_at = CASE
        WHEN EXCLUDED.status = 'failed' THEN EXCLUDED.failed_at
        ELSE dispatch_file_events.failed_at
    END,
    last_error = CASE
        WHEN EXCLUDED.status = 'failed' THEN EXCLUDED.last_error
        ELSE NULL
    END,
    occurred_at = EXCLUDED.occurred_at,
    trace_id = EXCLUDED.trace_id,
    span_id = EXCLUDED.span_id`

type DispatchEventRepository struct {
	db *sqlx.DB
}

func NewDispatchEventRepository(db *sqlx.DB) *DispatchEventRepository {
	return &DispatchEventRepository{db: db}
}

func (r *DispatchEventRepository) UpsertEvent(ctx context.Context, event dispatchaudit.FileEvent) error {
	query, args, err := buildUpsertDispatchEventQuery(event)
	if err != nil {
		return err
	}

	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return errors.Wrapf(err, "upsert dispatch event job_id=%s file=%s status=%s", event.JobID, event.FileName, event.Status)
	}
	return nil
}

func (r *DispatchEventRepository) ListByJob(ctx context.Context, jobID string) ([]dispatchaudit.FileEvent, error) {
	cols, err := qb.Columns(dispatchFileEventRow{})
	if err != nil {
		return nil, err
	}
	query, args, err := qb.Select(cols...).
		From(dispatchFileEventsTable).
		Where(qb.Eq("job_id", strings.TrimSpace(jobID))).
		OrderBy("occurred_at", "file_name").
		ToSQL()
	if err != nil {
		return nil, errors.Wrap(err, "build list dispatch events query")
	}

	var rows []dispatchFileEventRow
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, errors.Wrapf(err, "list dispatch events job_id=%s", jobID)
	}

	out := make([]dispatchaudit.FileEvent, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.toDomain())
	}
	return out, nil
}

func buildUpsertDispatchEventQuery(event dispatchaudit.FileEvent) (string, []any, error) {
	jobID := strings.TrimSpace(event.JobID)
	fileName := strings.TrimSpace(event.FileName)
	if jobID == "" || fileName == "" {
		return "", nil, errors.New("job id and file name are required")
	}

	occurredAt := event.OccurredAt.UTC()
	if event.OccurredAt.IsZero() {
		occurredAt = time.Now().UTC()
	}

	metadata, err := sonic.MarshalString(dispatchFileEventMetadata{
		ContentType: event.ContentType,
		SizeBytes:   event.SizeBytes,
		Deleted:     event.Deleted,
	})
	if err != nil {
		return "", nil, errors.Wrap(err, "marshal dispatch event metadata")
	}

	model := dispatchFileEventInsertModel{
		JobID:        jobID,
		FileName:     fileName,
		SourcePath:   event.SourcePath,
		PartitionKey: event.PartitionKey,
		Status:       string(event.Status),
		Metadata:     metadata,
		OccurredAt:   occurredAt,
		TraceID:      optionalString(event.TraceID),
		SpanID:       optionalString(event.SpanID),
	}
	switch event.Status {
	case dispatchaudit.StatusSent:
		model.SentAt = &occurredAt
	case dispatchaudit.StatusFailed:
		model.FailedAt = &occurredAt
		model.LastError = optionalString(event.ErrorMessage)
	default:
		return "", nil, errors.Newf("unknown dispatch event status %q", event.Status)
	}

	query, args, err := qb.InsertModel(dispatchFileEventsTable, model, upsertDispatchFileEventSuffix)
	if err != nil {
		return "", nil, errors.Wrap(err, "build upsert dispatch event query")
	}
	return query, args, nil
}

func (row dispatchFileEventRow) toDomain() dispatchaudit.FileEvent {
	event := dispatchaudit.FileEvent{
		JobID:        row.JobID,
		FileName:     row.FileName,
		SourcePath:   row.SourcePath,
		PartitionKey: row.PartitionKey,
		Status:       dispatchaudit.EventStatus(row.Status),
		ErrorMessage: row.LastError.String,
		OccurredAt:   row.OccurredAt.UTC(),
		TraceID:      row.TraceID.String,
		SpanID:       row.SpanID.String,
	}

	var meta dispatchFileEventMetadata
	if err := sonic.UnmarshalString(row.Metadata, &meta); err == nil {
		event.ContentType = meta.ContentType
		event.SizeBytes = meta.SizeBytes
		event.Deleted = meta.Deleted
	}
	return event
}
