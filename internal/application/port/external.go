package port

import (
	"context"
	"io"
	"time"

	"github.com/garyjia/invoice-workflow/internal/domain/entity"
	"github.com/garyjia/invoice-workflow/internal/domain/workflow"
)

// InvoiceContext is what a notification needs to know about its invoice
type InvoiceContext struct {
	InvoiceID        int64
	InvoiceType      string
	SubmitterUserID  string
	ActorUserID      string
	FromStatus       string
	ToStatus         string
	RejectionReason  string
	PaymentReference string
	DaysPending      int
}

// Notifier delivers a notification to a set of users.
// Callers treat it as fire-and-forget; errors are only logged.
type Notifier interface {
	Notify(ctx context.Context, kind workflow.NotificationKind, recipients []*entity.User, ic InvoiceContext) error
}

// LarkMessageSender sends an IM message to a Lark user
type LarkMessageSender interface {
	SendText(ctx context.Context, openID string, text string) error
}

// PaymentReportRow is one line of the payment report
type PaymentReportRow struct {
	InvoiceID        int64
	InvoiceType      string
	SubmitterUserID  string
	DepartmentID     string
	ProgramID        string
	Status           string
	PaidDate         time.Time
	PaymentReference string
}

// ReportExporter renders report rows into a document
type ReportExporter interface {
	ContentType() string
	WritePaymentReport(w io.Writer, rows []PaymentReportRow) error
}
