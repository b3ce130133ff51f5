package usecase

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/sourcegraph/conc"
	"github.com/sourcegraph/conc/panics"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/riskibarqy/transaction-dispatch/internal/domain/dispatch"
	"github.com/riskibarqy/transaction-dispatch/internal/domain/dispatchaudit"
	"github.com/riskibarqy/transaction-dispatch/internal/platform/id"
	"github.com/riskibarqy/transaction-dispatch/internal/platform/logging"
	"github.com/riskibarqy/transaction-dispatch/internal/platform/resilience"
)

const defaultPublishTimeout = 30 * time.Second

type DispatchConfig struct {
	// DefaultExtensions applies when a submission leaves AllowedExtensions nil.
	DefaultExtensions []string
	PublishTimeout    time.Duration
}

type SubmitInput struct {
	FolderPath        string
	DeleteAfterSend   bool
	AllowedExtensions []string
	IdempotencyKey    string
}

// DispatchService owns dispatch jobs: it accepts submissions, runs each job in
// the background and answers status queries. Only this service mutates jobs.
type DispatchService struct {
	store     dispatch.JobStore
	discovery dispatch.FileDiscovery
	publisher dispatch.Publisher
	auditRepo dispatchaudit.Repository
	idGen     id.Generator
	cfg       DispatchConfig
	logger    *logging.Logger
	now       func() time.Time

	submitFlight resilience.SingleFlight[string]

	mu      sync.RWMutex
	closed  bool
	rootCtx context.Context
	cancel  context.CancelFunc
	workers conc.WaitGroup
}

func NewDispatchService(
	store dispatch.JobStore,
	discovery dispatch.FileDiscovery,
	publisher dispatch.Publisher,
	auditRepo dispatchaudit.Repository,
	idGen id.Generator,
	cfg DispatchConfig,
	logger *logging.Logger,
) *DispatchService {
	if logger == nil {
		logger = logging.Default()
	}
	if idGen == nil {
		idGen = id.NewUUIDGenerator()
	}
	if cfg.PublishTimeout <= 0 {
		cfg.PublishTimeout = defaultPublishTimeout
	}
	cfg.DefaultExtensions = dispatch.NormalizeExtensions(cfg.DefaultExtensions)

	rootCtx, cancel := context.WithCancel(context.Background())
	return &DispatchService{
		store:     store,
		discovery: discovery,
		publisher: publisher,
		auditRepo: auditRepo,
		idGen:     idGen,
		cfg:       cfg,
		logger:    logger.Named("dispatch"),
		now:       time.Now,
		rootCtx:   rootCtx,
		cancel:    cancel,
	}
}

// Submit registers a dispatch job and starts it in the background. A repeated
// idempotency key returns the id of the job it first created.
func (s *DispatchService) Submit(ctx context.Context, input SubmitInput) (string, error) {
	ctx, span := startUsecaseSpan(ctx, "usecase.DispatchService.Submit")
	defer span.End()

	folder := dispatch.NormalizeFolderPath(input.FolderPath)
	if folder == "" {
		return "", fmt.Errorf("%w: folder path is required", ErrInvalidInput)
	}
	input.FolderPath = folder
	input.IdempotencyKey = dispatch.NormalizeIdempotencyKey(input.IdempotencyKey)
	if s.isClosed() {
		return "", fmt.Errorf("%w: dispatch service is shutting down", ErrDependencyUnavailable)
	}

	if input.IdempotencyKey == "" {
		return s.submit(ctx, input)
	}
	jobID, err, shared := s.submitFlight.Do(strings.ToLower(input.IdempotencyKey), func() (string, error) {
		return s.submit(ctx, input)
	})
	span.SetAttributes(attribute.Bool("dispatch.submit.shared", shared))
	return jobID, err
}

func (s *DispatchService) submit(ctx context.Context, input SubmitInput) (string, error) {
	if input.IdempotencyKey != "" {
		if existing, ok := s.store.GetByIdempotencyKey(ctx, input.IdempotencyKey); ok {
			s.logger.InfoContext(ctx, "idempotent submission resolved to existing job",
				"job_id", existing.ID(),
				"idempotency_key", input.IdempotencyKey,
			)
			return existing.ID(), nil
		}
	}

	jobID, err := s.idGen.NewID()
	if err != nil {
		return "", errors.Wrap(err, "generate job id")
	}

	extensions := input.AllowedExtensions
	if extensions == nil {
		extensions = s.cfg.DefaultExtensions
	}
	job, err := dispatch.NewJob(dispatch.NewJobParams{
		ID:                jobID,
		FolderPath:        input.FolderPath,
		DeleteAfterSend:   input.DeleteAfterSend,
		AllowedExtensions: extensions,
		IdempotencyKey:    input.IdempotencyKey,
		CreatedAt:         s.now(),
	})
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}

	if !s.store.Add(ctx, job) {
		if input.IdempotencyKey != "" {
			if existing, ok := s.store.GetByIdempotencyKey(ctx, input.IdempotencyKey); ok {
				return existing.ID(), nil
			}
		}
		return "", fmt.Errorf("%w: job %s could not be registered", ErrConflict, jobID)
	}

	if err := s.startProcessing(ctx, jobID); err != nil {
		s.failJob(ctx, jobID, err.Error())
		return "", err
	}

	s.logger.InfoContext(ctx, "dispatch job accepted",
		"job_id", jobID,
		"folder", job.FolderPath(),
		"delete_after_send", job.DeleteAfterSend(),
		"extensions", strings.Join(job.AllowedExtensions(), ","),
	)
	return jobID, nil
}

func (s *DispatchService) startProcessing(ctx context.Context, jobID string) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return fmt.Errorf("%w: dispatch service is shutting down", ErrDependencyUnavailable)
	}

	// Background work joins the submit trace but not its cancellation.
	runCtx := trace.ContextWithSpanContext(s.rootCtx, trace.SpanContextFromContext(ctx))
	s.workers.Go(func() {
		var catcher panics.Catcher
		catcher.Try(func() { s.process(runCtx, jobID) })
		if recovered := catcher.Recovered(); recovered != nil {
			s.logger.Error("dispatch job panicked",
				"job_id", jobID,
				"error", recovered.AsError(),
			)
			s.failJob(context.WithoutCancel(runCtx), jobID, fmt.Sprintf("panic: %v", recovered.Value))
		}
	})
	return nil
}

func (s *DispatchService) process(ctx context.Context, jobID string) {
	ctx, span := startUsecaseSpan(ctx, "usecase.DispatchService.process")
	defer span.End()
	span.SetAttributes(attribute.String("dispatch.job_id", jobID))

	job, ok := s.store.Get(ctx, jobID)
	if !ok {
		s.logger.ErrorContext(ctx, "dispatch job vanished before processing", "job_id", jobID)
		return
	}

	if err := s.run(ctx, job); err != nil {
		s.logger.WarnContext(ctx, "dispatch job failed",
			"job_id", jobID,
			"error", err,
		)
		s.finish(ctx, job, err.Error())
		return
	}
	s.finish(ctx, job, "")
}

// run drives job through discovery and publishing. A non-nil error fails the
// job with the error text.
func (s *DispatchService) run(ctx context.Context, job *dispatch.Job) error {
	if err := job.Start(); err != nil {
		return err
	}
	s.store.Update(ctx, job)

	files, err := s.discovery.Discover(ctx, job.FolderPath(), job.AllowedExtensions())
	if err != nil {
		return err
	}
	job.AddExpectedFiles(len(files))
	s.store.Update(ctx, job)

	s.logger.InfoContext(ctx, "dispatch job running",
		"job_id", job.ID(),
		"total_files", len(files),
	)

	for _, file := range files {
		if ctx.Err() != nil {
			progress := job.Progress()
			return errors.Newf("dispatch canceled after %d of %d files", progress.Processed, progress.TotalFiles)
		}

		sent := s.dispatchFile(ctx, job, file)
		if err := job.RecordResult(sent); err != nil {
			return err
		}
		s.store.Update(ctx, job)
	}

	if failed := job.Progress().Failed; failed > 0 {
		return errors.Newf("%d files failed to publish.", failed)
	}
	return nil
}

// dispatchFile publishes one file and reports whether it was sent. Once the
// publish starts it runs to completion even if ctx is canceled.
func (s *DispatchService) dispatchFile(ctx context.Context, job *dispatch.Job, file dispatch.FileEntry) bool {
	fileCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.cfg.PublishTimeout)
	defer cancel()

	event := dispatchaudit.FileEvent{
		JobID:        job.ID(),
		FileName:     file.Name,
		SourcePath:   file.FullPath,
		PartitionKey: file.Name,
		ContentType:  file.ContentType,
	}

	payload, err := s.discovery.ReadFile(fileCtx, file.FullPath)
	if err != nil {
		s.logger.WarnContext(ctx, "read transaction file failed",
			"job_id", job.ID(),
			"file", file.FullPath,
			"error", err,
		)
		s.recordFileEvent(fileCtx, event, err)
		return false
	}
	event.SizeBytes = len(payload)

	msg := dispatch.NewTransactionMessage(job.ID(), file, payload)
	event.ContentType = msg.ContentType
	if err := s.publisher.Publish(fileCtx, msg); err != nil {
		s.logger.WarnContext(ctx, "publish transaction file failed",
			"job_id", job.ID(),
			"file", file.Name,
			"error", err,
		)
		s.recordFileEvent(fileCtx, event, err)
		return false
	}

	if job.DeleteAfterSend() {
		if err := s.discovery.DeleteFile(fileCtx, file.FullPath); err != nil {
			s.logger.WarnContext(ctx, "delete sent transaction file failed",
				"job_id", job.ID(),
				"file", file.FullPath,
				"error", err,
			)
		} else {
			event.Deleted = true
		}
	}

	s.recordFileEvent(fileCtx, event, nil)
	return true
}

func (s *DispatchService) finish(ctx context.Context, job *dispatch.Job, failureReason string) {
	now := s.now()
	var err error
	if failureReason == "" {
		err = job.Complete(now)
	} else {
		err = job.Fail(failureReason, now)
	}
	if err != nil {
		s.logger.WarnContext(ctx, "dispatch job already finished",
			"job_id", job.ID(),
			"error", err,
		)
		return
	}
	s.store.Update(ctx, job)

	progress := job.Progress()
	s.logger.InfoContext(ctx, "dispatch job finished",
		"job_id", job.ID(),
		"status", job.Status(),
		"processed", progress.Processed,
		"succeeded", progress.Succeeded,
		"failed", progress.Failed,
		"failure_reason", job.FailureReason(),
	)
}

func (s *DispatchService) failJob(ctx context.Context, jobID, reason string) {
	job, ok := s.store.Get(ctx, jobID)
	if !ok || job.Status().IsTerminal() {
		return
	}
	s.finish(ctx, job, reason)
}

func (s *DispatchService) recordFileEvent(ctx context.Context, event dispatchaudit.FileEvent, cause error) {
	if s.auditRepo == nil {
		return
	}
	event.Status = dispatchaudit.StatusSent
	if cause != nil {
		event.Status = dispatchaudit.StatusFailed
		event.ErrorMessage = cause.Error()
	}
	event.TraceID, event.SpanID = traceMetaFromContext(ctx)
	event.OccurredAt = s.now().UTC()
	if err := s.auditRepo.UpsertEvent(ctx, event); err != nil {
		s.logger.WarnContext(ctx, "record dispatch file event failed",
			"job_id", event.JobID,
			"file", event.FileName,
			"status", event.Status,
			"error", err,
		)
	}
}

// GetStatus returns a point-in-time copy of the job.
func (s *DispatchService) GetStatus(ctx context.Context, jobID string) (dispatch.Snapshot, bool) {
	ctx, span := startUsecaseSpan(ctx, "usecase.DispatchService.GetStatus")
	defer span.End()

	return s.store.GetSnapshot(ctx, jobID)
}

func (s *DispatchService) ListFileEvents(ctx context.Context, jobID string) ([]dispatchaudit.FileEvent, error) {
	ctx, span := startUsecaseSpan(ctx, "usecase.DispatchService.ListFileEvents")
	defer span.End()

	if _, ok := s.store.GetSnapshot(ctx, jobID); !ok {
		return nil, fmt.Errorf("%w: job %s", ErrNotFound, jobID)
	}
	if s.auditRepo == nil {
		return nil, fmt.Errorf("%w: dispatch audit is disabled", ErrDependencyUnavailable)
	}

	events, err := s.auditRepo.ListByJob(ctx, jobID)
	if err != nil {
		return nil, errors.Wrapf(err, "list file events for job %s", jobID)
	}
	return events, nil
}

// Shutdown stops background jobs before their next file and waits for them to
// record their final state.
func (s *DispatchService) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	s.cancel()

	done := make(chan struct{})
	go func() {
		s.workers.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return errors.Wrap(ctx.Err(), "wait for dispatch jobs")
	}
}

func (s *DispatchService) isClosed() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.closed
}
