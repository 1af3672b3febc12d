package port

import (
	"context"
	"time"

	"github.com/garyjia/invoice-workflow/internal/domain/entity"
)

// InvoiceFilter narrows an invoice listing
type InvoiceFilter struct {
	Status          string
	SubmitterUserID string
	ManagerUserID   string
	Limit           int
	Offset          int
}

// InvoiceRepository defines persistence operations for Invoice
type InvoiceRepository interface {
	// Create inserts the invoice and sets its ID
	Create(ctx context.Context, invoice *entity.Invoice) error

	// GetByID returns nil, nil when the invoice does not exist
	GetByID(ctx context.Context, id int64) (*entity.Invoice, error)

	// List returns invoices joined with their workflow rows, newest first
	List(ctx context.Context, filter InvoiceFilter) ([]*entity.InvoiceView, error)

	// ListPaidBetween returns invoices in paid or archived whose paid_date is within [from, to]
	ListPaidBetween(ctx context.Context, from, to time.Time) ([]*entity.InvoiceView, error)
}

// WorkflowRepository defines persistence operations for WorkflowState.
// Writes are only issued by the workflow engine.
type WorkflowRepository interface {
	Create(ctx context.Context, state *entity.WorkflowState) error

	// GetByInvoiceID returns nil, nil when the row does not exist
	GetByInvoiceID(ctx context.Context, invoiceID int64) (*entity.WorkflowState, error)

	// CompareAndSwap writes next only if the persisted row still has expectedStatus and expectedVersion.
	// It returns false when another writer got there first.
	CompareAndSwap(ctx context.Context, next *entity.WorkflowState, expectedStatus string, expectedVersion int64) (bool, error)

	// ListPendingSince returns rows in status whose pending_manager_since is on or before the given day
	ListPendingSince(ctx context.Context, status string, onOrBefore time.Time) ([]*entity.WorkflowState, error)
}

// DelegationRepository defines persistence operations for Delegation
type DelegationRepository interface {
	Create(ctx context.Context, d *entity.Delegation) error
	GetByID(ctx context.Context, id int64) (*entity.Delegation, error)
	Update(ctx context.Context, d *entity.Delegation) error
	Delete(ctx context.Context, id int64) error

	// List returns delegations, optionally only those of one delegator
	List(ctx context.Context, delegatorUserID string) ([]*entity.Delegation, error)

	// ListCovering returns the delegator's delegations whose window contains day
	ListCovering(ctx context.Context, delegatorUserID string, day time.Time) ([]*entity.Delegation, error)
}

// AuditRepository is the append-only audit sink
type AuditRepository interface {
	Append(ctx context.Context, evt *entity.AuditEvent) error

	// GetByInvoiceID returns the trail oldest first
	GetByInvoiceID(ctx context.Context, invoiceID int64) ([]*entity.AuditEvent, error)
}

// UserRepository is the identity and role provider
type UserRepository interface {
	Create(ctx context.Context, user *entity.User) error

	// GetByID returns nil, nil when the user does not exist
	GetByID(ctx context.Context, id string) (*entity.User, error)
	ListByRole(ctx context.Context, role entity.Role) ([]*entity.User, error)
}

// TransactionManager handles database transactions
type TransactionManager interface {
	WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}
