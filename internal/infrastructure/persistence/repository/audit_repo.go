package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/garyjia/invoice-workflow/internal/application/port"
	"github.com/garyjia/invoice-workflow/internal/domain/entity"
	"github.com/garyjia/invoice-workflow/internal/infrastructure/persistence/sqlite"
	"go.uber.org/zap"
)

// AuditRepository implements port.AuditRepository. Rows are never updated.
type AuditRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewAuditRepository creates a new audit repository
func NewAuditRepository(db *sql.DB, logger *zap.Logger) port.AuditRepository {
	return &AuditRepository{
		db:     db,
		logger: logger,
	}
}

// Append records an audit event
func (r *AuditRepository) Append(ctx context.Context, evt *entity.AuditEvent) error {
	query := `
		INSERT INTO audit_events (
			invoice_id, actor_user_id, event_type, from_status, to_status,
			payload, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?)
	`

	payload := "{}"
	if len(evt.Payload) > 0 {
		b, err := json.Marshal(evt.Payload)
		if err != nil {
			return fmt.Errorf("failed to marshal audit payload: %w", err)
		}
		payload = string(b)
	}
	if evt.CreatedAt.IsZero() {
		evt.CreatedAt = time.Now()
	}

	result, err := sqlite.Conn(ctx, r.db).ExecContext(ctx, query,
		evt.InvoiceID,
		evt.ActorUserID,
		evt.EventType,
		evt.FromStatus,
		evt.ToStatus,
		payload,
		evt.CreatedAt,
	)
	if err != nil {
		r.logger.Error("Failed to append audit event",
			zap.Int64("invoice_id", evt.InvoiceID),
			zap.String("event_type", evt.EventType),
			zap.Error(err))
		return fmt.Errorf("failed to append audit event: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}

	evt.ID = id
	return nil
}

// GetByInvoiceID returns the trail of an invoice in insertion order
func (r *AuditRepository) GetByInvoiceID(ctx context.Context, invoiceID int64) ([]*entity.AuditEvent, error) {
	query := `
		SELECT id, invoice_id, actor_user_id, event_type, from_status, to_status,
			payload, created_at
		FROM audit_events
		WHERE invoice_id = ?
		ORDER BY id ASC
	`

	rows, err := sqlite.Conn(ctx, r.db).QueryContext(ctx, query, invoiceID)
	if err != nil {
		r.logger.Error("Failed to get audit trail", zap.Int64("invoice_id", invoiceID), zap.Error(err))
		return nil, fmt.Errorf("failed to get audit trail: %w", err)
	}
	defer rows.Close()

	var events []*entity.AuditEvent
	for rows.Next() {
		var evt entity.AuditEvent
		var payload string
		if err := rows.Scan(
			&evt.ID,
			&evt.InvoiceID,
			&evt.ActorUserID,
			&evt.EventType,
			&evt.FromStatus,
			&evt.ToStatus,
			&payload,
			&evt.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan audit event: %w", err)
		}
		if payload != "" && payload != "{}" {
			if err := json.Unmarshal([]byte(payload), &evt.Payload); err != nil {
				return nil, fmt.Errorf("failed to decode audit payload %d: %w", evt.ID, err)
			}
		}
		events = append(events, &evt)
	}
	return events, rows.Err()
}

var _ port.AuditRepository = (*AuditRepository)(nil)
