package workflow

import "github.com/garyjia/invoice-workflow/internal/domain/entity"

// Capability is an independent source of authority over an invoice
type Capability string

const (
	// CapAdmin is held by administrators; the state table is the only gate
	CapAdmin Capability = "admin"
	// CapApprover is held by the assigned approver or their active delegate
	CapApprover Capability = "approver"
	// CapOperationsRoom is held by operations room members
	CapOperationsRoom Capability = "operations_room"
	// CapFinance is held by finance users once the invoice reaches the payment stage
	CapFinance Capability = "finance"
	// CapOwner is held by the invoice submitter
	CapOwner Capability = "owner"
)

var financeGateStatuses = map[Status]bool{
	StatusReadyForPayment: true,
	StatusPaid:            true,
	StatusArchived:        true,
}

// Subject is an immutable snapshot of everything a permission decision needs
type Subject struct {
	Actor    entity.Actor
	Invoice  *entity.Invoice
	Workflow *entity.WorkflowState
	// Delegate is the active delegate of the assigned approver for today, empty when none
	Delegate string
}

// Facts are the derived booleans a decision is composed from
type Facts struct {
	IsAdmin            bool
	IsViewer           bool
	IsOwner            bool
	IsAssignedApprover bool
	IsDelegate         bool
	IsOperationsRoom   bool
	IsFinanceGate      bool
}

// DeriveFacts computes the facts for a subject
func DeriveFacts(s Subject) Facts {
	f := Facts{
		IsAdmin:          s.Actor.IsAdmin(),
		IsViewer:         s.Actor.Role == entity.RoleViewer,
		IsOperationsRoom: s.Actor.OperationsRoomMember,
	}
	if s.Actor.ID == "" {
		return f
	}
	if s.Invoice != nil {
		f.IsOwner = s.Actor.ID == s.Invoice.SubmitterUserID
	}
	if s.Workflow != nil {
		f.IsAssignedApprover = s.Workflow.IsAssignedTo(s.Actor.ID)
		f.IsDelegate = s.Workflow.ManagerUserID != nil && s.Delegate != "" && s.Delegate == s.Actor.ID
		f.IsFinanceGate = s.Actor.Role == entity.RoleFinance && financeGateStatuses[Status(s.Workflow.Status)]
	}
	return f
}

// Capabilities returns the set of capabilities the facts grant.
// Viewers hold none.
func (f Facts) Capabilities() map[Capability]bool {
	caps := make(map[Capability]bool)
	if f.IsViewer {
		return caps
	}
	if f.IsAdmin {
		caps[CapAdmin] = true
	}
	if f.IsAssignedApprover || f.IsDelegate {
		caps[CapApprover] = true
	}
	if f.IsOperationsRoom {
		caps[CapOperationsRoom] = true
	}
	if f.IsFinanceGate {
		caps[CapFinance] = true
	}
	if f.IsOwner {
		caps[CapOwner] = true
	}
	return caps
}

// DenialReason returns the user-facing reason for lacking a capability
func (c Capability) DenialReason() string {
	switch c {
	case CapApprover:
		return ReasonApproverOnly
	case CapOperationsRoom:
		return ReasonOperationsRoom
	case CapFinance:
		return ReasonFinanceGate
	case CapOwner:
		return ReasonOwnerOnly
	default:
		return ReasonAdminOnly
	}
}
