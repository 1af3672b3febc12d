package workflow

import (
	"context"
	"fmt"

	"github.com/garyjia/invoice-workflow/internal/application/port"
	"github.com/garyjia/invoice-workflow/internal/domain/entity"
)

// AuditTrail is the append-only log of invoice mutations
type AuditTrail struct {
	repo   port.AuditRepository
	logger Logger
}

// NewAuditTrail creates an audit trail over a sink
func NewAuditTrail(repo port.AuditRepository, logger Logger) *AuditTrail {
	if logger == nil {
		logger = noopLogger{}
	}
	return &AuditTrail{repo: repo, logger: logger}
}

// Record appends evt. A failed append is a compliance gap: it is logged
// and reported as false, never returned to the caller as an error.
func (a *AuditTrail) Record(ctx context.Context, evt *entity.AuditEvent) bool {
	if err := a.repo.Append(ctx, evt); err != nil {
		a.logger.Error("Audit append failed",
			"compliance_gap", true,
			"invoice_id", evt.InvoiceID,
			"actor_user_id", evt.ActorUserID,
			"event_type", evt.EventType,
			"from_status", evt.FromStatus,
			"to_status", evt.ToStatus,
			"error", err,
		)
		return false
	}
	return true
}

// History returns the audit events of an invoice oldest first
func (a *AuditTrail) History(ctx context.Context, invoiceID int64) ([]*entity.AuditEvent, error) {
	events, err := a.repo.GetByInvoiceID(ctx, invoiceID)
	if err != nil {
		return nil, fmt.Errorf("get audit trail: %w", err)
	}
	if events == nil {
		events = []*entity.AuditEvent{}
	}
	return events, nil
}
