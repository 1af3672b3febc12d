package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/garyjia/invoice-workflow/internal/application/port"
	"github.com/garyjia/invoice-workflow/internal/domain/entity"
	"github.com/garyjia/invoice-workflow/internal/domain/workflow"
	"github.com/garyjia/invoice-workflow/internal/infrastructure/persistence/sqlite"
	"go.uber.org/zap"
)

const invoiceColumns = `
	i.id, i.type, i.submitter_user_id, i.department_id, i.program_id,
	i.description, i.imported, i.created_at`

// InvoiceRepository implements port.InvoiceRepository
type InvoiceRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewInvoiceRepository creates a new invoice repository
func NewInvoiceRepository(db *sql.DB, logger *zap.Logger) port.InvoiceRepository {
	return &InvoiceRepository{
		db:     db,
		logger: logger,
	}
}

// Create creates a new invoice
func (r *InvoiceRepository) Create(ctx context.Context, invoice *entity.Invoice) error {
	query := `
		INSERT INTO invoices (
			type, submitter_user_id, department_id, program_id,
			description, imported, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?)
	`

	if invoice.CreatedAt.IsZero() {
		invoice.CreatedAt = time.Now()
	}

	result, err := sqlite.Conn(ctx, r.db).ExecContext(ctx, query,
		invoice.Type,
		invoice.SubmitterUserID,
		invoice.DepartmentID,
		invoice.ProgramID,
		invoice.Description,
		invoice.Imported,
		invoice.CreatedAt,
	)
	if err != nil {
		r.logger.Error("Failed to create invoice", zap.Error(err))
		return fmt.Errorf("failed to create invoice: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}

	invoice.ID = id
	return nil
}

// GetByID retrieves an invoice by ID
func (r *InvoiceRepository) GetByID(ctx context.Context, id int64) (*entity.Invoice, error) {
	query := `SELECT ` + invoiceColumns + ` FROM invoices i WHERE i.id = ?`

	var invoice entity.Invoice
	err := sqlite.Conn(ctx, r.db).QueryRowContext(ctx, query, id).Scan(invoiceDest(&invoice)...)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		r.logger.Error("Failed to get invoice by ID", zap.Int64("id", id), zap.Error(err))
		return nil, fmt.Errorf("failed to get invoice: %w", err)
	}
	return &invoice, nil
}

// List returns invoices with their workflow rows, newest first
func (r *InvoiceRepository) List(ctx context.Context, filter port.InvoiceFilter) ([]*entity.InvoiceView, error) {
	var where []string
	var args []interface{}

	if filter.Status != "" {
		where = append(where, "w.status = ?")
		args = append(args, filter.Status)
	}
	if filter.SubmitterUserID != "" {
		where = append(where, "i.submitter_user_id = ?")
		args = append(args, filter.SubmitterUserID)
	}
	if filter.ManagerUserID != "" {
		where = append(where, "w.manager_user_id = ?")
		args = append(args, filter.ManagerUserID)
	}

	query := `SELECT ` + workflowColumns + `,` + invoiceColumns + `
		FROM invoices i
		JOIN workflows w ON w.invoice_id = i.id`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY i.id DESC LIMIT ? OFFSET ?"

	limit := filter.Limit
	if limit <= 0 {
		limit = -1
	}
	args = append(args, limit, filter.Offset)

	return r.queryViews(ctx, "list invoices", query, args...)
}

// ListPaidBetween returns paid or archived invoices with paid_date inside [from, to]
func (r *InvoiceRepository) ListPaidBetween(ctx context.Context, from, to time.Time) ([]*entity.InvoiceView, error) {
	query := `SELECT ` + workflowColumns + `,` + invoiceColumns + `
		FROM invoices i
		JOIN workflows w ON w.invoice_id = i.id
		WHERE w.status IN (?, ?)
			AND w.paid_date IS NOT NULL
			AND w.paid_date BETWEEN ? AND ?
		ORDER BY w.paid_date ASC, i.id ASC
	`

	return r.queryViews(ctx, "list paid invoices", query,
		workflow.StatusPaid.String(),
		workflow.StatusArchived.String(),
		from.Format(entity.DateLayout),
		to.Format(entity.DateLayout),
	)
}

func (r *InvoiceRepository) queryViews(ctx context.Context, op, query string, args ...interface{}) ([]*entity.InvoiceView, error) {
	rows, err := sqlite.Conn(ctx, r.db).QueryContext(ctx, query, args...)
	if err != nil {
		r.logger.Error("Failed to "+op, zap.Error(err))
		return nil, fmt.Errorf("failed to %s: %w", op, err)
	}
	defer rows.Close()

	var views []*entity.InvoiceView
	for rows.Next() {
		var invoice entity.Invoice
		state, err := scanWorkflow(rows, invoiceDest(&invoice)...)
		if err != nil {
			return nil, fmt.Errorf("failed to scan invoice: %w", err)
		}
		views = append(views, &entity.InvoiceView{Invoice: &invoice, Workflow: state})
	}
	return views, rows.Err()
}

func invoiceDest(invoice *entity.Invoice) []interface{} {
	return []interface{}{
		&invoice.ID,
		&invoice.Type,
		&invoice.SubmitterUserID,
		&invoice.DepartmentID,
		&invoice.ProgramID,
		&invoice.Description,
		&invoice.Imported,
		&invoice.CreatedAt,
	}
}

var _ port.InvoiceRepository = (*InvoiceRepository)(nil)
