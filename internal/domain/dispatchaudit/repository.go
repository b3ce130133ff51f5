package dispatchaudit

import "context"

type Repository interface {
	UpsertEvent(ctx context.Context, event FileEvent) error
	ListByJob(ctx context.Context, jobID string) ([]FileEvent, error)
}
