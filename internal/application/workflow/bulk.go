package workflow

import (
	"context"
	"fmt"

	"github.com/garyjia/invoice-workflow/internal/domain/entity"
	domainwf "github.com/garyjia/invoice-workflow/internal/domain/workflow"
	"github.com/google/uuid"
)

// DefaultBulkLimit is the largest batch accepted by a bulk transition
const DefaultBulkLimit = 50

// Transitioner is the single-invoice transition path the bulk coordinator drives
type Transitioner interface {
	Transition(ctx context.Context, actor entity.Actor, invoiceID int64, req domainwf.Request) (*TransitionResult, error)
}

// BulkFailure is one failed item of a bulk call
type BulkFailure struct {
	InvoiceID int64  `json:"id"`
	Error     string `json:"error"`
	Kind      string `json:"kind"`
}

// BulkResult aggregates per-item outcomes. Callers must inspect Failed.
type BulkResult struct {
	BatchID string        `json:"batch_id"`
	Success int           `json:"success"`
	Failed  []BulkFailure `json:"failed"`
}

// BulkCoordinator applies one target status to many invoices,
// isolating each item's failure from the rest of the batch.
type BulkCoordinator struct {
	engine  Transitioner
	limit   int
	logger  Logger
	metrics Metrics
}

// BulkOption configures the coordinator
type BulkOption func(*BulkCoordinator)

// WithBulkLimit sets the batch size cap
func WithBulkLimit(limit int) BulkOption {
	return func(b *BulkCoordinator) {
		if limit > 0 {
			b.limit = limit
		}
	}
}

// WithBulkLogger sets the coordinator logger
func WithBulkLogger(l Logger) BulkOption {
	return func(b *BulkCoordinator) {
		if l != nil {
			b.logger = l
		}
	}
}

// WithBulkMetrics sets the metrics recorder
func WithBulkMetrics(m Metrics) BulkOption {
	return func(b *BulkCoordinator) {
		if m != nil {
			b.metrics = m
		}
	}
}

// NewBulkCoordinator creates a coordinator over the single-invoice path
func NewBulkCoordinator(engine Transitioner, opts ...BulkOption) *BulkCoordinator {
	b := &BulkCoordinator{
		engine:  engine,
		limit:   DefaultBulkLimit,
		logger:  noopLogger{},
		metrics: noopMetrics{},
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Limit returns the batch size cap
func (b *BulkCoordinator) Limit() int {
	return b.limit
}

// Apply runs req for every id through the single-invoice path.
// The size cap is checked before any item is touched; an oversized or empty
// batch is rejected as a whole. Duplicate ids are applied once.
func (b *BulkCoordinator) Apply(ctx context.Context, actor entity.Actor, invoiceIDs []int64, req domainwf.Request) (*BulkResult, error) {
	if len(invoiceIDs) == 0 {
		return nil, domainwf.Validation("At least one invoice id is required")
	}
	if len(invoiceIDs) > b.limit {
		return nil, domainwf.Validation(fmt.Sprintf("Bulk transitions are limited to %d invoices", b.limit))
	}

	result := &BulkResult{
		BatchID: uuid.NewString(),
		Failed:  []BulkFailure{},
	}
	req.Bulk = true
	req.BatchID = result.BatchID

	ids := dedupe(invoiceIDs)
	b.metrics.ObserveBulk(len(ids))

	for i, id := range ids {
		if err := ctx.Err(); err != nil {
			for _, rest := range ids[i:] {
				result.Failed = append(result.Failed, BulkFailure{InvoiceID: rest, Error: "Request cancelled", Kind: "cancelled"})
			}
			break
		}

		if _, err := b.engine.Transition(ctx, actor, id, req); err != nil {
			result.Failed = append(result.Failed, b.failure(id, err))
			continue
		}
		result.Success++
	}

	b.logger.Info("Bulk transition completed",
		"batch_id", result.BatchID,
		"actor_user_id", actor.ID,
		"to_status", req.To,
		"requested", len(invoiceIDs),
		"success", result.Success,
		"failed", len(result.Failed),
	)
	return result, nil
}

func (b *BulkCoordinator) failure(id int64, err error) BulkFailure {
	if wfErr, ok := domainwf.AsError(err); ok {
		return BulkFailure{InvoiceID: id, Error: wfErr.Message, Kind: string(wfErr.Kind)}
	}
	b.logger.Error("Bulk item failed", "invoice_id", id, "error", err)
	return BulkFailure{InvoiceID: id, Error: "Internal error", Kind: "internal"}
}

func dedupe(ids []int64) []int64 {
	seen := make(map[int64]bool, len(ids))
	out := make([]int64, 0, len(ids))
	for _, id := range ids {
		if seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}
