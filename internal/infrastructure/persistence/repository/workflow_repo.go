package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/garyjia/invoice-workflow/internal/application/port"
	"github.com/garyjia/invoice-workflow/internal/domain/entity"
	"github.com/garyjia/invoice-workflow/internal/infrastructure/persistence/sqlite"
	"go.uber.org/zap"
)

const workflowColumns = `
	w.invoice_id, w.status, w.manager_user_id, w.rejection_reason,
	w.admin_comment, w.payment_reference, w.paid_date, w.pending_manager_since,
	w.bank_details_confirmed, w.version, w.updated_at`

// WorkflowRepository implements port.WorkflowRepository
type WorkflowRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewWorkflowRepository creates a new workflow repository
func NewWorkflowRepository(db *sql.DB, logger *zap.Logger) port.WorkflowRepository {
	return &WorkflowRepository{
		db:     db,
		logger: logger,
	}
}

// Create inserts the lifecycle row of a freshly created invoice
func (r *WorkflowRepository) Create(ctx context.Context, state *entity.WorkflowState) error {
	query := `
		INSERT INTO workflows (
			invoice_id, status, manager_user_id, rejection_reason, admin_comment,
			payment_reference, paid_date, pending_manager_since,
			bank_details_confirmed, version, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	if state.UpdatedAt.IsZero() {
		state.UpdatedAt = time.Now()
	}

	_, err := sqlite.Conn(ctx, r.db).ExecContext(ctx, query,
		state.InvoiceID,
		state.Status,
		nullString(state.ManagerUserID),
		nullString(state.RejectionReason),
		nullString(state.AdminComment),
		nullString(state.PaymentReference),
		nullDate(state.PaidDate),
		nullDate(state.PendingManagerSince),
		state.BankDetailsConfirmed,
		state.Version,
		state.UpdatedAt,
	)
	if err != nil {
		r.logger.Error("Failed to create workflow", zap.Int64("invoice_id", state.InvoiceID), zap.Error(err))
		return fmt.Errorf("failed to create workflow: %w", err)
	}
	return nil
}

// GetByInvoiceID retrieves the lifecycle row of an invoice
func (r *WorkflowRepository) GetByInvoiceID(ctx context.Context, invoiceID int64) (*entity.WorkflowState, error) {
	query := `SELECT ` + workflowColumns + ` FROM workflows w WHERE w.invoice_id = ?`

	state, err := scanWorkflow(sqlite.Conn(ctx, r.db).QueryRowContext(ctx, query, invoiceID))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		r.logger.Error("Failed to get workflow", zap.Int64("invoice_id", invoiceID), zap.Error(err))
		return nil, fmt.Errorf("failed to get workflow: %w", err)
	}
	return state, nil
}

// CompareAndSwap writes next only while the row still holds expectedStatus at expectedVersion
func (r *WorkflowRepository) CompareAndSwap(ctx context.Context, next *entity.WorkflowState, expectedStatus string, expectedVersion int64) (bool, error) {
	query := `
		UPDATE workflows SET
			status = ?,
			manager_user_id = ?,
			rejection_reason = ?,
			admin_comment = ?,
			payment_reference = ?,
			paid_date = ?,
			pending_manager_since = ?,
			bank_details_confirmed = ?,
			version = ?,
			updated_at = ?
		WHERE invoice_id = ? AND status = ? AND version = ?
	`

	result, err := sqlite.Conn(ctx, r.db).ExecContext(ctx, query,
		next.Status,
		nullString(next.ManagerUserID),
		nullString(next.RejectionReason),
		nullString(next.AdminComment),
		nullString(next.PaymentReference),
		nullDate(next.PaidDate),
		nullDate(next.PendingManagerSince),
		next.BankDetailsConfirmed,
		next.Version,
		next.UpdatedAt,
		next.InvoiceID,
		expectedStatus,
		expectedVersion,
	)
	if err != nil {
		r.logger.Error("Failed to update workflow",
			zap.Int64("invoice_id", next.InvoiceID),
			zap.String("expected_status", expectedStatus),
			zap.Error(err))
		return false, fmt.Errorf("failed to update workflow: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return affected == 1, nil
}

// ListPendingSince returns rows in status that have waited since onOrBefore or earlier
func (r *WorkflowRepository) ListPendingSince(ctx context.Context, status string, onOrBefore time.Time) ([]*entity.WorkflowState, error) {
	query := `SELECT ` + workflowColumns + `
		FROM workflows w
		WHERE w.status = ?
			AND w.pending_manager_since IS NOT NULL
			AND w.pending_manager_since <= ?
		ORDER BY w.pending_manager_since ASC, w.invoice_id ASC
	`

	rows, err := sqlite.Conn(ctx, r.db).QueryContext(ctx, query, status, onOrBefore.Format(entity.DateLayout))
	if err != nil {
		r.logger.Error("Failed to list pending workflows", zap.String("status", status), zap.Error(err))
		return nil, fmt.Errorf("failed to list pending workflows: %w", err)
	}
	defer rows.Close()

	var states []*entity.WorkflowState
	for rows.Next() {
		state, err := scanWorkflow(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan workflow: %w", err)
		}
		states = append(states, state)
	}
	return states, rows.Err()
}

// scanWorkflow reads workflowColumns, followed by any extra destinations
func scanWorkflow(row rowScanner, extra ...interface{}) (*entity.WorkflowState, error) {
	var state entity.WorkflowState
	var manager, reason, comment, ref sql.NullString
	var paidDate, pendingSince sql.NullString

	dest := []interface{}{
		&state.InvoiceID,
		&state.Status,
		&manager,
		&reason,
		&comment,
		&ref,
		&paidDate,
		&pendingSince,
		&state.BankDetailsConfirmed,
		&state.Version,
		&state.UpdatedAt,
	}
	if err := row.Scan(append(dest, extra...)...); err != nil {
		return nil, err
	}

	state.ManagerUserID = stringPtr(manager)
	state.RejectionReason = stringPtr(reason)
	state.AdminComment = stringPtr(comment)
	state.PaymentReference = stringPtr(ref)

	var err error
	if state.PaidDate, err = datePtr(paidDate); err != nil {
		return nil, err
	}
	if state.PendingManagerSince, err = datePtr(pendingSince); err != nil {
		return nil, err
	}
	return &state, nil
}

var _ port.WorkflowRepository = (*WorkflowRepository)(nil)
