package httpapi

import (
	"fmt"
	"net/http"
	"strings"

	sonic "github.com/bytedance/sonic"

	"github.com/riskibarqy/transaction-dispatch/internal/platform/id"
	"github.com/riskibarqy/transaction-dispatch/internal/usecase"
)

const idempotencyKeyHeader = "Idempotency-Key"

func (h *Handler) DispatchTransactions(w http.ResponseWriter, r *http.Request) {
	ctx, span := startSpan(r.Context(), "httpapi.Handler.DispatchTransactions")
	defer span.End()

	var req dispatchTransactionsRequest
	decoder := sonic.ConfigDefault.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&req); err != nil {
		writeError(ctx, w, fmt.Errorf("%w: invalid JSON payload: %v", usecase.ErrInvalidInput, err))
		return
	}
	if err := h.validateRequest(ctx, req); err != nil {
		writeError(ctx, w, err)
		return
	}

	idempotencyKey := strings.TrimSpace(req.IdempotencyKey)
	if idempotencyKey == "" {
		idempotencyKey = strings.TrimSpace(r.Header.Get(idempotencyKeyHeader))
	}

	jobID, err := h.dispatchService.Submit(ctx, usecase.SubmitInput{
		FolderPath:        req.FolderPath,
		DeleteAfterSend:   req.DeleteAfterSend,
		AllowedExtensions: req.AllowedExtensions,
		IdempotencyKey:    idempotencyKey,
	})
	if err != nil {
		h.logger.WarnContext(ctx, "dispatch transactions failed",
			"folder", req.FolderPath,
			"idempotency_key", idempotencyKey,
			"error", err,
		)
		writeError(ctx, w, err)
		return
	}

	w.Header().Set("Location", "/v1/dispatch-status/"+jobID)
	span.SetAttributes(jobIDAttr(jobID))
	writeSuccess(ctx, w, http.StatusAccepted, dispatchAcceptedDTO{JobID: jobID})
}

func (h *Handler) GetDispatchStatus(w http.ResponseWriter, r *http.Request) {
	jobID, ok := id.Canonical(r.PathValue("jobID"))
	ctx, span := startSpan(r.Context(), "httpapi.Handler.GetDispatchStatus", jobIDAttr(jobID))
	defer span.End()
	if !ok {
		writeError(ctx, w, fmt.Errorf("%w: job id must be a UUID", usecase.ErrInvalidInput))
		return
	}

	snap, found := h.dispatchService.GetStatus(ctx, jobID)
	if !found {
		writeError(ctx, w, fmt.Errorf("%w: dispatch job %s", usecase.ErrNotFound, jobID))
		return
	}

	writeSuccess(ctx, w, http.StatusOK, dispatchStatusToDTO(snap))
}

func (h *Handler) ListDispatchFiles(w http.ResponseWriter, r *http.Request) {
	jobID, ok := id.Canonical(r.PathValue("jobID"))
	ctx, span := startSpan(r.Context(), "httpapi.Handler.ListDispatchFiles", jobIDAttr(jobID))
	defer span.End()
	if !ok {
		writeError(ctx, w, fmt.Errorf("%w: job id must be a UUID", usecase.ErrInvalidInput))
		return
	}

	events, err := h.dispatchService.ListFileEvents(ctx, jobID)
	if err != nil {
		h.logger.WarnContext(ctx, "list dispatch files failed", "job_id", jobID, "error", err)
		writeError(ctx, w, err)
		return
	}

	items := make([]dispatchFileEventDTO, 0, len(events))
	for _, event := range events {
		items = append(items, dispatchFileEventToDTO(event))
	}
	writeSuccess(ctx, w, http.StatusOK, items)
}
