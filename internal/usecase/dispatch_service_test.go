package usecase

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/mock"

	"github.com/riskibarqy/transaction-dispatch/internal/domain/dispatch"
	"github.com/riskibarqy/transaction-dispatch/internal/domain/dispatchaudit"
	"github.com/riskibarqy/transaction-dispatch/internal/infrastructure/filesystem"
	"github.com/riskibarqy/transaction-dispatch/internal/infrastructure/repository/memory"
	dispatchmock "github.com/riskibarqy/transaction-dispatch/internal/mocks/domain/dispatch"
	"github.com/riskibarqy/transaction-dispatch/internal/platform/logging"
)

type sequenceIDGenerator struct {
	next atomic.Int64
}

func (g *sequenceIDGenerator) NewID() (string, error) {
	return fmt.Sprintf("job-%d", g.next.Add(1)), nil
}

func newTestDispatchService(
	t *testing.T,
	store dispatch.JobStore,
	discovery dispatch.FileDiscovery,
	publisher dispatch.Publisher,
	auditRepo dispatchaudit.Repository,
) *DispatchService {
	t.Helper()

	svc := NewDispatchService(store, discovery, publisher, auditRepo, &sequenceIDGenerator{}, DispatchConfig{
		DefaultExtensions: []string{".xml", ".json"},
		PublishTimeout:    time.Second,
	}, logging.NewNop())
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = svc.Shutdown(ctx)
	})
	return svc
}

func waitForTerminal(t *testing.T, svc *DispatchService, jobID string) dispatch.Snapshot {
	t.Helper()

	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		snap, ok := svc.GetStatus(context.Background(), jobID)
		if ok && snap.Status.IsTerminal() {
			return snap
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("job %s did not finish in time", jobID)
	return dispatch.Snapshot{}
}

func anyContext() any {
	return mock.MatchedBy(func(context.Context) bool { return true })
}

func TestDispatchService_Submit_RejectsBlankFolder(t *testing.T) {
	t.Parallel()

	store := memory.NewJobStore()
	svc := newTestDispatchService(t, store, dispatchmock.NewFileDiscovery(t), dispatchmock.NewPublisher(t), nil)

	_, err := svc.Submit(context.Background(), SubmitInput{FolderPath: "   "})
	if !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
	if store.Count() != 0 {
		t.Fatalf("expected no job to be stored, got %d", store.Count())
	}
}

func TestDispatchService_Submit_IdempotentKeyReturnsSameJob(t *testing.T) {
	t.Parallel()

	store := memory.NewJobStore()
	discovery := dispatchmock.NewFileDiscovery(t)
	publisher := dispatchmock.NewPublisher(t)
	svc := newTestDispatchService(t, store, discovery, publisher, nil)

	discovery.
		On("Discover", anyContext(), "/data/outbox", []string{".xml", ".json"}).
		Return([]dispatch.FileEntry{}, nil).
		Once()

	first, err := svc.Submit(context.Background(), SubmitInput{FolderPath: "/data/outbox", IdempotencyKey: " batch-42 "})
	if err != nil {
		t.Fatalf("first submit: %v", err)
	}
	second, err := svc.Submit(context.Background(), SubmitInput{FolderPath: "/data/other", IdempotencyKey: "BATCH-42"})
	if err != nil {
		t.Fatalf("second submit: %v", err)
	}
	if first != second {
		t.Fatalf("expected same job id, got %s and %s", first, second)
	}
	if store.Count() != 1 {
		t.Fatalf("expected exactly one job, got %d", store.Count())
	}

	snap := waitForTerminal(t, svc, first)
	if snap.IdempotencyKey != "batch-42" {
		t.Fatalf("unexpected stored key %q", snap.IdempotencyKey)
	}
}

func TestDispatchService_Submit_ConcurrentSameKeyCreatesOneJob(t *testing.T) {
	t.Parallel()

	store := memory.NewJobStore()
	discovery := dispatchmock.NewFileDiscovery(t)
	svc := newTestDispatchService(t, store, discovery, dispatchmock.NewPublisher(t), nil)

	discovery.
		On("Discover", anyContext(), "/data/outbox", mock.Anything).
		Return([]dispatch.FileEntry{}, nil).
		Once()

	const callers = 16
	ids := make([]string, callers)
	errs := make([]error, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			ids[i], errs[i] = svc.Submit(context.Background(), SubmitInput{FolderPath: "/data/outbox", IdempotencyKey: "same"})
		}(i)
	}
	wg.Wait()

	for i := 0; i < callers; i++ {
		if errs[i] != nil {
			t.Fatalf("caller %d: %v", i, errs[i])
		}
		if ids[i] != ids[0] {
			t.Fatalf("caller %d got %s, want %s", i, ids[i], ids[0])
		}
	}
	if store.Count() != 1 {
		t.Fatalf("expected exactly one job, got %d", store.Count())
	}
	waitForTerminal(t, svc, ids[0])
}

func TestDispatchService_ExplicitEmptyExtensionsDisableFilter(t *testing.T) {
	t.Parallel()

	discovery := dispatchmock.NewFileDiscovery(t)
	svc := newTestDispatchService(t, memory.NewJobStore(), discovery, dispatchmock.NewPublisher(t), nil)

	discovery.
		On("Discover", anyContext(), "/data/outbox", mock.MatchedBy(func(v []string) bool { return len(v) == 0 })).
		Return(nil, nil).
		Once()

	jobID, err := svc.Submit(context.Background(), SubmitInput{FolderPath: "/data/outbox", AllowedExtensions: []string{}})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	waitForTerminal(t, svc, jobID)
}

func TestDispatchService_ZeroFilesCompletes(t *testing.T) {
	t.Parallel()

	discovery := dispatchmock.NewFileDiscovery(t)
	svc := newTestDispatchService(t, memory.NewJobStore(), discovery, dispatchmock.NewPublisher(t), nil)

	discovery.
		On("Discover", anyContext(), "/data/empty", mock.Anything).
		Return([]dispatch.FileEntry{}, nil).
		Once()

	jobID, err := svc.Submit(context.Background(), SubmitInput{FolderPath: "/data/empty/"})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}

	snap := waitForTerminal(t, svc, jobID)
	if snap.Status != dispatch.StatusCompleted {
		t.Fatalf("expected completed, got %s (%s)", snap.Status, snap.FailureReason)
	}
	if snap.Progress.TotalFiles != 0 || snap.Progress.Percentage() != 0 {
		t.Fatalf("unexpected progress %+v", snap.Progress)
	}
	if snap.CompletedAt == nil {
		t.Fatalf("expected completed_at to be set")
	}
}

func TestDispatchService_MissingFolderFailsJob(t *testing.T) {
	t.Parallel()

	discovery := dispatchmock.NewFileDiscovery(t)
	svc := newTestDispatchService(t, memory.NewJobStore(), discovery, dispatchmock.NewPublisher(t), nil)

	discovery.
		On("Discover", anyContext(), "/data/missing", mock.Anything).
		Return(nil, errors.Wrap(dispatch.ErrFolderNotFound, "folder /data/missing")).
		Once()

	jobID, err := svc.Submit(context.Background(), SubmitInput{FolderPath: "/data/missing"})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}

	snap := waitForTerminal(t, svc, jobID)
	if snap.Status != dispatch.StatusFailed {
		t.Fatalf("expected failed, got %s", snap.Status)
	}
	if !strings.Contains(snap.FailureReason, "folder not found") {
		t.Fatalf("unexpected failure reason %q", snap.FailureReason)
	}
}

func TestDispatchService_PartialFailureFailsJobWithCount(t *testing.T) {
	t.Parallel()

	discovery := dispatchmock.NewFileDiscovery(t)
	publisher := dispatchmock.NewPublisher(t)
	svc := newTestDispatchService(t, memory.NewJobStore(), discovery, publisher, nil)

	files := []dispatch.FileEntry{
		{FullPath: "/data/outbox/a.xml", Name: "a.xml", ContentType: dispatch.ContentTypeXML},
		{FullPath: "/data/outbox/b.json", Name: "b.json", ContentType: dispatch.ContentTypeJSON},
	}
	discovery.On("Discover", anyContext(), "/data/outbox", mock.Anything).Return(files, nil).Once()
	discovery.On("ReadFile", anyContext(), "/data/outbox/a.xml").Return([]byte("<tx/>"), nil).Once()
	discovery.On("ReadFile", anyContext(), "/data/outbox/b.json").Return([]byte(`{"tx":1}`), nil).Once()
	publisher.
		On("Publish", anyContext(), mock.MatchedBy(func(m dispatch.TransactionMessage) bool { return m.Key == "a.xml" })).
		Return(errors.Mark(errors.New("broker down"), dispatch.ErrPublishFailure)).
		Once()
	publisher.
		On("Publish", anyContext(), mock.MatchedBy(func(m dispatch.TransactionMessage) bool {
			jobID, _ := m.Header(dispatch.HeaderJobID)
			return m.Key == "b.json" && m.ContentType == dispatch.ContentTypeJSON && jobID != ""
		})).
		Return(nil).
		Once()

	jobID, err := svc.Submit(context.Background(), SubmitInput{FolderPath: "/data/outbox"})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}

	snap := waitForTerminal(t, svc, jobID)
	if snap.Status != dispatch.StatusFailed {
		t.Fatalf("expected failed, got %s", snap.Status)
	}
	if snap.FailureReason != "1 files failed to publish." {
		t.Fatalf("unexpected failure reason %q", snap.FailureReason)
	}
	want := dispatch.Progress{TotalFiles: 2, Processed: 2, Succeeded: 1, Failed: 1}
	if snap.Progress != want {
		t.Fatalf("unexpected progress: got=%+v want=%+v", snap.Progress, want)
	}
}

func TestDispatchService_AllFailedKeepsSourceFiles(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	for _, name := range []string{"a.xml", "b.xml"} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte("<tx/>"), 0o600); err != nil {
			t.Fatalf("write fixture: %v", err)
		}
	}

	publisher := dispatchmock.NewPublisher(t)
	publisher.
		On("Publish", anyContext(), mock.Anything).
		Return(errors.Mark(errors.New("unreachable"), dispatch.ErrPublishFailure)).
		Twice()

	svc := newTestDispatchService(t, memory.NewJobStore(), filesystem.NewDiscovery(0), publisher, nil)
	jobID, err := svc.Submit(context.Background(), SubmitInput{FolderPath: dir, DeleteAfterSend: true})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}

	snap := waitForTerminal(t, svc, jobID)
	if snap.Status != dispatch.StatusFailed || snap.FailureReason != "2 files failed to publish." {
		t.Fatalf("unexpected outcome %s %q", snap.Status, snap.FailureReason)
	}
	if snap.Progress.Failed != 2 || snap.Progress.Succeeded != 0 {
		t.Fatalf("unexpected progress %+v", snap.Progress)
	}
	for _, name := range []string{"a.xml", "b.xml"} {
		if _, err := os.Stat(filepath.Join(dir, name)); err != nil {
			t.Fatalf("expected %s to be kept: %v", name, err)
		}
	}
}

func TestDispatchService_DeleteAfterSendAndAudit(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	for name, body := range map[string]string{"a.xml": "<tx/>", "b.csv": "id,amount", "notes.txt": "skip"} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(body), 0o600); err != nil {
			t.Fatalf("write fixture: %v", err)
		}
	}

	publisher := dispatchmock.NewPublisher(t)
	publisher.On("Publish", anyContext(), mock.Anything).Return(nil).Twice()
	auditRepo := memory.NewDispatchEventRepository()

	svc := newTestDispatchService(t, memory.NewJobStore(), filesystem.NewDiscovery(0), publisher, auditRepo)
	jobID, err := svc.Submit(context.Background(), SubmitInput{
		FolderPath:        dir,
		DeleteAfterSend:   true,
		AllowedExtensions: []string{"XML", ".csv"},
	})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}

	snap := waitForTerminal(t, svc, jobID)
	if snap.Status != dispatch.StatusCompleted {
		t.Fatalf("expected completed, got %s (%s)", snap.Status, snap.FailureReason)
	}
	if snap.Progress.Percentage() != 100 {
		t.Fatalf("expected 100%%, got %v", snap.Progress.Percentage())
	}
	for _, name := range []string{"a.xml", "b.csv"} {
		if _, err := os.Stat(filepath.Join(dir, name)); !os.IsNotExist(err) {
			t.Fatalf("expected %s to be deleted, stat err=%v", name, err)
		}
	}
	if _, err := os.Stat(filepath.Join(dir, "notes.txt")); err != nil {
		t.Fatalf("expected unmatched file to remain: %v", err)
	}

	events, err := svc.ListFileEvents(context.Background(), jobID)
	if err != nil {
		t.Fatalf("list file events: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("expected 2 audit events, got %d", len(events))
	}
	for _, event := range events {
		if event.Status != dispatchaudit.StatusSent || !event.Deleted || event.SizeBytes == 0 {
			t.Fatalf("unexpected audit event %+v", event)
		}
	}
}

func TestDispatchService_DeleteFailureStillCountsAsSent(t *testing.T) {
	t.Parallel()

	discovery := dispatchmock.NewFileDiscovery(t)
	publisher := dispatchmock.NewPublisher(t)
	svc := newTestDispatchService(t, memory.NewJobStore(), discovery, publisher, nil)

	file := dispatch.FileEntry{FullPath: "/data/outbox/a.xml", Name: "a.xml", ContentType: dispatch.ContentTypeXML}
	discovery.On("Discover", anyContext(), "/data/outbox", mock.Anything).Return([]dispatch.FileEntry{file}, nil).Once()
	discovery.On("ReadFile", anyContext(), file.FullPath).Return([]byte("<tx/>"), nil).Once()
	discovery.On("DeleteFile", anyContext(), file.FullPath).Return(errors.New("read-only file system")).Once()
	publisher.On("Publish", anyContext(), mock.Anything).Return(nil).Once()

	jobID, err := svc.Submit(context.Background(), SubmitInput{FolderPath: "/data/outbox", DeleteAfterSend: true})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}

	snap := waitForTerminal(t, svc, jobID)
	if snap.Status != dispatch.StatusCompleted || snap.Progress.Succeeded != 1 {
		t.Fatalf("unexpected outcome %s %+v", snap.Status, snap.Progress)
	}
}

func TestDispatchService_PanicFailsJob(t *testing.T) {
	t.Parallel()

	discovery := dispatchmock.NewFileDiscovery(t)
	publisher := dispatchmock.NewPublisher(t)
	svc := newTestDispatchService(t, memory.NewJobStore(), discovery, publisher, nil)

	file := dispatch.FileEntry{FullPath: "/data/outbox/a.xml", Name: "a.xml"}
	discovery.On("Discover", anyContext(), "/data/outbox", mock.Anything).Return([]dispatch.FileEntry{file}, nil).Once()
	discovery.On("ReadFile", anyContext(), file.FullPath).Return([]byte("<tx/>"), nil).Once()
	publisher.On("Publish", anyContext(), mock.Anything).Panic("broker exploded").Once()

	jobID, err := svc.Submit(context.Background(), SubmitInput{FolderPath: "/data/outbox"})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}

	snap := waitForTerminal(t, svc, jobID)
	if snap.Status != dispatch.StatusFailed || !strings.Contains(snap.FailureReason, "broker exploded") {
		t.Fatalf("unexpected outcome %s %q", snap.Status, snap.FailureReason)
	}
}

func TestDispatchService_ShutdownStopsBeforeNextFile(t *testing.T) {
	t.Parallel()

	discovery := dispatchmock.NewFileDiscovery(t)
	publisher := dispatchmock.NewPublisher(t)
	svc := newTestDispatchService(t, memory.NewJobStore(), discovery, publisher, nil)

	files := []dispatch.FileEntry{
		{FullPath: "/data/outbox/a.xml", Name: "a.xml"},
		{FullPath: "/data/outbox/b.xml", Name: "b.xml"},
	}
	started := make(chan struct{})
	release := make(chan struct{})
	discovery.On("Discover", anyContext(), "/data/outbox", mock.Anything).Return(files, nil).Once()
	discovery.On("ReadFile", anyContext(), "/data/outbox/a.xml").Return([]byte("<tx/>"), nil).Once()
	publisher.
		On("Publish", anyContext(), mock.Anything).
		Run(func(args mock.Arguments) {
			close(started)
			<-release
		}).
		Return(nil).
		Once()

	jobID, err := svc.Submit(context.Background(), SubmitInput{FolderPath: "/data/outbox"})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	<-started

	shutdownErr := make(chan error, 1)
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		shutdownErr <- svc.Shutdown(ctx)
	}()
	for svc.rootCtx.Err() == nil {
		time.Sleep(time.Millisecond)
	}
	close(release)

	if err := <-shutdownErr; err != nil {
		t.Fatalf("shutdown: %v", err)
	}

	snap, ok := svc.GetStatus(context.Background(), jobID)
	if !ok {
		t.Fatalf("job %s not found", jobID)
	}
	if snap.Status != dispatch.StatusFailed || !strings.Contains(snap.FailureReason, "canceled after 1 of 2") {
		t.Fatalf("unexpected outcome %s %q", snap.Status, snap.FailureReason)
	}
	if snap.Progress.Processed != 1 || snap.Progress.Succeeded != 1 {
		t.Fatalf("in-flight file should finish, got %+v", snap.Progress)
	}

	if _, err := svc.Submit(context.Background(), SubmitInput{FolderPath: "/data/outbox"}); !errors.Is(err, ErrDependencyUnavailable) {
		t.Fatalf("expected ErrDependencyUnavailable after shutdown, got %v", err)
	}
}

type rejectingStore struct {
	*memory.JobStore
}

func (rejectingStore) Add(context.Context, *dispatch.Job) bool { return false }

func TestDispatchService_Submit_ConflictWhenStoreRejects(t *testing.T) {
	t.Parallel()

	svc := newTestDispatchService(t, rejectingStore{memory.NewJobStore()}, dispatchmock.NewFileDiscovery(t), dispatchmock.NewPublisher(t), nil)

	_, err := svc.Submit(context.Background(), SubmitInput{FolderPath: "/data/outbox"})
	if !errors.Is(err, ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
}

func TestDispatchService_ListFileEvents_UnknownJob(t *testing.T) {
	t.Parallel()

	svc := newTestDispatchService(t, memory.NewJobStore(), dispatchmock.NewFileDiscovery(t), dispatchmock.NewPublisher(t), memory.NewDispatchEventRepository())

	if _, err := svc.ListFileEvents(context.Background(), "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
