package workflow

import (
	"context"
	"time"

	"github.com/garyjia/invoice-workflow/internal/domain/entity"
	domainwf "github.com/garyjia/invoice-workflow/internal/domain/workflow"
)

// WorkflowEngine is the only writer of workflow rows
type WorkflowEngine interface {
	// Transition moves one invoice to req.To on behalf of actor
	Transition(ctx context.Context, actor entity.Actor, invoiceID int64, req domainwf.Request) (*TransitionResult, error)

	// Submit creates an invoice with its workflow row
	Submit(ctx context.Context, actor entity.Actor, cmd SubmitCommand) (*entity.InvoiceView, error)

	// ReassignManager changes the assigned approver of an invoice
	ReassignManager(ctx context.Context, actor entity.Actor, invoiceID int64, managerUserID string) (*entity.WorkflowState, error)

	// AllowedTransitions returns the statuses actor may currently request for the invoice
	AllowedTransitions(ctx context.Context, actor entity.Actor, invoiceID int64) ([]domainwf.Status, error)
}

// TransitionResult is returned by a successful transition
type TransitionResult struct {
	InvoiceID int64                 `json:"invoice_id"`
	From      domainwf.Status       `json:"from_status"`
	To        domainwf.Status       `json:"to_status"`
	Workflow  *entity.WorkflowState `json:"workflow"`
}

// SubmitCommand describes a new invoice.
// Imported guest invoices are created directly in paid.
type SubmitCommand struct {
	Type             entity.InvoiceType
	SubmitterUserID  string
	DepartmentID     string
	ProgramID        string
	Description      string
	ManagerUserID    string
	Imported         bool
	PaidDate         *time.Time
	PaymentReference string
}

// Logger interface for minimal logging dependency
type Logger interface {
	Info(msg string, keysAndValues ...interface{})
	Error(msg string, keysAndValues ...interface{})
}

// Metrics records workflow outcomes
type Metrics interface {
	ObserveTransition(from, to, outcome string)
	ObserveBulk(size int)
}

// DelegateResolver finds the active stand-in approver of a manager
type DelegateResolver interface {
	ActiveDelegateFor(ctx context.Context, delegatorUserID string, day time.Time) (string, error)
}

type noopMetrics struct{}

func (noopMetrics) ObserveTransition(from, to, outcome string) {}
func (noopMetrics) ObserveBulk(size int)                       {}

type noopLogger struct{}

func (noopLogger) Info(msg string, keysAndValues ...interface{})  {}
func (noopLogger) Error(msg string, keysAndValues ...interface{}) {}

// outcomeOf labels an error for metrics
func outcomeOf(err error) string {
	if err == nil {
		return "ok"
	}
	if wfErr, ok := domainwf.AsError(err); ok {
		return string(wfErr.Kind)
	}
	return "error"
}
