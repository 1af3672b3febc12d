package workflow

import "github.com/garyjia/invoice-workflow/internal/domain/entity"

// Status represents a workflow status in the invoice lifecycle
type Status string

const (
	StatusSubmitted         Status = "submitted"
	StatusPendingManager    Status = "pending_manager"
	StatusApprovedByManager Status = "approved_by_manager"
	StatusRejected          Status = "rejected"
	StatusPendingAdmin      Status = "pending_admin"
	StatusReadyForPayment   Status = "ready_for_payment"
	StatusPaid              Status = "paid"
	StatusArchived          Status = "archived"
)

var validStatuses = map[Status]bool{
	StatusSubmitted:         true,
	StatusPendingManager:    true,
	StatusApprovedByManager: true,
	StatusRejected:          true,
	StatusPendingAdmin:      true,
	StatusReadyForPayment:   true,
	StatusPaid:              true,
	StatusArchived:          true,
}

// AllStatuses lists every status in lifecycle order
func AllStatuses() []Status {
	return []Status{
		StatusSubmitted,
		StatusPendingManager,
		StatusApprovedByManager,
		StatusRejected,
		StatusPendingAdmin,
		StatusReadyForPayment,
		StatusPaid,
		StatusArchived,
	}
}

// String returns the string representation of the status
func (s Status) String() string {
	return string(s)
}

// IsValid returns true if the status is a valid workflow status
func (s Status) IsValid() bool {
	return validStatuses[s]
}

// IsTerminalFor returns true if no transition may leave this status for the invoice.
// archived is always terminal; paid is terminal for imported guest invoices.
func (s Status) IsTerminalFor(inv *entity.Invoice) bool {
	switch s {
	case StatusArchived:
		return true
	case StatusPaid:
		return inv != nil && inv.IsImportedGuest()
	}
	return false
}

// IsEntry returns true for the two synonymous entry statuses
func (s Status) IsEntry() bool {
	return s == StatusSubmitted || s == StatusPendingManager
}
