package dispatch

import "context"

// JobStore keeps jobs for the life of the process. Lookups of unknown keys
// report ok=false rather than an error.
type JobStore interface {
	Add(ctx context.Context, job *Job) bool
	Update(ctx context.Context, job *Job)
	Get(ctx context.Context, id string) (*Job, bool)
	GetByIdempotencyKey(ctx context.Context, key string) (*Job, bool)
	GetSnapshot(ctx context.Context, id string) (Snapshot, bool)
}

type FileDiscovery interface {
	Discover(ctx context.Context, folder string, extensions []string) ([]FileEntry, error)
	ReadFile(ctx context.Context, path string) ([]byte, error)
	DeleteFile(ctx context.Context, path string) error
}

type Publisher interface {
	Publish(ctx context.Context, msg TransactionMessage) error
}
