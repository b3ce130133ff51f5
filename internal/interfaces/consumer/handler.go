package consumer

import (
	"context"
	"strings"

	"github.com/cockroachdb/errors"

	"github.com/riskibarqy/transaction-dispatch/internal/domain/dispatch"
	"github.com/riskibarqy/transaction-dispatch/internal/platform/logging"
)

// Handler processes one delivery. Returning an error schedules a retry unless
// the error is Permanent.
type Handler func(ctx context.Context, d dispatch.Delivery) error

// NewTransactionHandler returns the default handler: it checks that the
// message carries a key and a job-id header, then logs it.
func NewTransactionHandler(logger *logging.Logger) Handler {
	if logger == nil {
		logger = logging.Default()
	}
	return func(ctx context.Context, d dispatch.Delivery) error {
		if strings.TrimSpace(d.Key) == "" {
			return Permanent(errors.Wrapf(ErrInvalidMessage, "message at %s has no key", d.Position()))
		}
		jobID, _ := d.Header(dispatch.HeaderJobID)
		if strings.TrimSpace(jobID) == "" {
			return Permanent(errors.Wrapf(ErrInvalidMessage, "message at %s has no %s header", d.Position(), dispatch.HeaderJobID))
		}
		sourceFile, _ := d.Header(dispatch.HeaderSourceFile)

		logger.InfoContext(ctx, "consumed transaction message",
			"key", d.Key,
			"partition", d.Partition,
			"offset", d.Offset,
			"bytes", len(d.Value),
			"job_id", jobID,
			"source_file", sourceFile,
		)
		return nil
	}
}
