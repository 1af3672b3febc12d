package notification

import (
	"fmt"
	"strings"

	"github.com/garyjia/invoice-workflow/internal/application/port"
	"github.com/garyjia/invoice-workflow/internal/domain/workflow"
)

// Render builds the plain-text body of a notification
func Render(kind workflow.NotificationKind, ic port.InvoiceContext) string {
	var b strings.Builder
	subject := fmt.Sprintf("Invoice #%d", ic.InvoiceID)
	if ic.InvoiceType != "" {
		subject = fmt.Sprintf("Invoice #%d (%s)", ic.InvoiceID, ic.InvoiceType)
	}

	switch kind {
	case workflow.NotifyApprovalRequested:
		fmt.Fprintf(&b, "%s is waiting for your approval.", subject)
	case workflow.NotifyInvoiceApproved:
		fmt.Fprintf(&b, "%s has been approved.", subject)
	case workflow.NotifyInvoiceRejected:
		fmt.Fprintf(&b, "%s has been rejected.", subject)
		if ic.RejectionReason != "" {
			fmt.Fprintf(&b, "\nReason: %s", ic.RejectionReason)
		}
	case workflow.NotifyInvoiceResubmitted:
		fmt.Fprintf(&b, "%s has been resubmitted for approval.", subject)
	case workflow.NotifyInvoicePaid:
		fmt.Fprintf(&b, "%s has been paid.", subject)
		if ic.PaymentReference != "" {
			fmt.Fprintf(&b, "\nPayment reference: %s", ic.PaymentReference)
		}
	case workflow.NotifySLAReminder:
		fmt.Fprintf(&b, "Reminder: %s has been waiting for manager approval for %d days.", subject, ic.DaysPending)
	default:
		fmt.Fprintf(&b, "%s: %s", subject, kind)
	}

	if ic.FromStatus != "" && ic.ToStatus != "" {
		fmt.Fprintf(&b, "\nStatus: %s -> %s", ic.FromStatus, ic.ToStatus)
	}
	return b.String()
}
