package httpapi

import (
	"context"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/riskibarqy/transaction-dispatch/internal/domain/dispatch"
	"github.com/riskibarqy/transaction-dispatch/internal/domain/dispatchaudit"
	"github.com/riskibarqy/transaction-dispatch/internal/platform/logging"
	"github.com/riskibarqy/transaction-dispatch/internal/usecase"
)

type Handler struct {
	dispatchService *usecase.DispatchService
	logger          *logging.Logger
	validator       *validator.Validate
}

func NewHandler(dispatchService *usecase.DispatchService, logger *logging.Logger) *Handler {
	if logger == nil {
		logger = logging.Default()
	}

	return &Handler{
		dispatchService: dispatchService,
		logger:          logger,
		validator:       validator.New(),
	}
}

func (h *Handler) validateRequest(ctx context.Context, payload any) error {
	ctx, span := startSpan(ctx, "httpapi.Handler.validateRequest")
	defer span.End()

	if err := h.validator.StructCtx(ctx, payload); err != nil {
		return fmt.Errorf("%w: validation failed: %v", usecase.ErrInvalidInput, err)
	}

	return nil
}

type dispatchTransactionsRequest struct {
	FolderPath        string   `json:"folder_path" validate:"required,max=4096"`
	DeleteAfterSend   bool     `json:"delete_after_send"`
	AllowedExtensions []string `json:"allowed_extensions" validate:"omitempty,max=32,dive,required,max=32"`
	IdempotencyKey    string   `json:"idempotency_key" validate:"omitempty,max=200"`
}

type dispatchAcceptedDTO struct {
	JobID string `json:"job_id"`
}

type dispatchStatusDTO struct {
	JobID             string   `json:"job_id"`
	Status            string   `json:"status"`
	Progress          string   `json:"progress"`
	TotalFiles        int      `json:"total_files"`
	Processed         int      `json:"processed"`
	Successful        int      `json:"successful"`
	Failed            int      `json:"failed"`
	FolderPath        string   `json:"folder_path"`
	DeleteAfterSend   bool     `json:"delete_after_send"`
	AllowedExtensions []string `json:"allowed_extensions"`
	CreatedAt         string   `json:"created_at"`
	CompletedAt       string   `json:"completed_at,omitempty"`
	FailureReason     string   `json:"failure_reason,omitempty"`
}

type dispatchFileEventDTO struct {
	FileName     string `json:"file_name"`
	SourcePath   string `json:"source_path"`
	PartitionKey string `json:"partition_key"`
	ContentType  string `json:"content_type,omitempty"`
	SizeBytes    int    `json:"size_bytes"`
	Deleted      bool   `json:"deleted"`
	Status       string `json:"status"`
	ErrorMessage string `json:"error_message,omitempty"`
	OccurredAt   string `json:"occurred_at"`
	TraceID      string `json:"trace_id,omitempty"`
}

func dispatchStatusToDTO(snap dispatch.Snapshot) dispatchStatusDTO {
	extensions := snap.AllowedExtensions
	if extensions == nil {
		extensions = []string{}
	}
	return dispatchStatusDTO{
		JobID:             snap.ID,
		Status:            snap.Status.String(),
		Progress:          snap.Progress.PercentageString(),
		TotalFiles:        snap.Progress.TotalFiles,
		Processed:         snap.Progress.Processed,
		Successful:        snap.Progress.Succeeded,
		Failed:            snap.Progress.Failed,
		FolderPath:        snap.FolderPath,
		DeleteAfterSend:   snap.DeleteAfterSend,
		AllowedExtensions: extensions,
		CreatedAt:         snap.CreatedAt.Format(time.RFC3339),
		CompletedAt:       formatOptionalTime(snap.CompletedAt),
		FailureReason:     snap.FailureReason,
	}
}

func dispatchFileEventToDTO(event dispatchaudit.FileEvent) dispatchFileEventDTO {
	return dispatchFileEventDTO{
		FileName:     event.FileName,
		SourcePath:   event.SourcePath,
		PartitionKey: event.PartitionKey,
		ContentType:  event.ContentType,
		SizeBytes:    event.SizeBytes,
		Deleted:      event.Deleted,
		Status:       string(event.Status),
		ErrorMessage: event.ErrorMessage,
		OccurredAt:   event.OccurredAt.UTC().Format(time.RFC3339Nano),
		TraceID:      event.TraceID,
	}
}

func formatOptionalTime(v *time.Time) string {
	if v == nil {
		return ""
	}
	return v.UTC().Format(time.RFC3339)
}
