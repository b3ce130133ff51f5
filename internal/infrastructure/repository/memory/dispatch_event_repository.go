package memory

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/riskibarqy/transaction-dispatch/internal/domain/dispatchaudit"
)

// DispatchEventRepository is the audit log used when no database is configured.
type DispatchEventRepository struct {
	mu    sync.RWMutex
	items map[string]map[string]dispatchaudit.FileEvent
}

func NewDispatchEventRepository() *DispatchEventRepository {
	return &DispatchEventRepository{items: make(map[string]map[string]dispatchaudit.FileEvent)}
}

func (r *DispatchEventRepository) UpsertEvent(_ context.Context, event dispatchaudit.FileEvent) error {
	jobID := strings.TrimSpace(event.JobID)
	fileName := strings.TrimSpace(event.FileName)
	if jobID == "" || fileName == "" {
		return errors.New("job id and file name are required")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	byFile, ok := r.items[jobID]
	if !ok {
		byFile = make(map[string]dispatchaudit.FileEvent)
		r.items[jobID] = byFile
	}
	byFile[fileName] = event
	return nil
}

func (r *DispatchEventRepository) ListByJob(_ context.Context, jobID string) ([]dispatchaudit.FileEvent, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	byFile := r.items[strings.TrimSpace(jobID)]
	out := make([]dispatchaudit.FileEvent, 0, len(byFile))
	for _, event := range byFile {
		out = append(out, event)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].OccurredAt.Equal(out[j].OccurredAt) {
			return out[i].OccurredAt.Before(out[j].OccurredAt)
		}
		return out[i].FileName < out[j].FileName
	})
	return out, nil
}
