package workflow

import (
	"strings"
	"time"

	"github.com/garyjia/invoice-workflow/internal/domain/entity"
)

// Request carries the caller-supplied fields of a transition
type Request struct {
	To               Status
	RejectionReason  string
	PaymentReference string
	PaidDate         *time.Time
	ManagerConfirmed bool
	AdminComment     string
	Bulk             bool
	BatchID          string
}

// Decision is the computed outcome of a valid transition
type Decision struct {
	From          Status
	To            Status
	Capability    Capability
	Next          entity.WorkflowState
	AuditPayload  map[string]interface{}
	Notifications []Notification
}

// TransitionEngine validates a request against the table and computes the next workflow state
type TransitionEngine struct {
	permissions *PermissionEngine
}

// NewTransitionEngine creates a transition engine
func NewTransitionEngine(permissions *PermissionEngine) *TransitionEngine {
	if permissions == nil {
		permissions = NewPermissionEngine(nil)
	}
	return &TransitionEngine{permissions: permissions}
}

// Permissions returns the underlying permission engine
func (t *TransitionEngine) Permissions() *PermissionEngine {
	return t.permissions
}

// Plan authorizes and validates req against subj and returns the decision.
// now must already be in the business timezone; its calendar date is "today".
// The subject is never mutated.
func (t *TransitionEngine) Plan(subj Subject, req Request, now time.Time) (*Decision, error) {
	edge, via, err := t.permissions.CanTransition(subj, req.To)
	if err != nil {
		return nil, err
	}
	invoiceID := subj.Invoice.ID
	wf := subj.Workflow

	reason := strings.TrimSpace(req.RejectionReason)
	if edge.RequireReason && reason == "" {
		return nil, Validation(ReasonRejectionRequired).WithInvoice(invoiceID)
	}
	if edge.RequireBankConfirmation && via != CapAdmin && !req.ManagerConfirmed && !wf.BankDetailsConfirmed {
		return nil, Validation(ReasonBankDetails).WithInvoice(invoiceID)
	}
	comment := strings.TrimSpace(req.AdminComment)
	if comment != "" && via != CapAdmin {
		return nil, PermissionDenied("Only an administrator can add an admin comment").WithInvoice(invoiceID)
	}

	today := entity.DateOf(now, now.Location())
	next := wf.Clone()
	next.Status = req.To.String()
	next.Version = wf.Version + 1
	next.UpdatedAt = now

	payload := map[string]interface{}{
		"authorized_as": string(via),
	}

	if req.To == StatusRejected {
		next.RejectionReason = &reason
		payload["rejection_reason"] = reason
	} else {
		next.RejectionReason = nil
	}

	if req.ManagerConfirmed && edge.RequireBankConfirmation {
		next.BankDetailsConfirmed = true
		payload["manager_confirmed"] = true
	}

	if req.To == StatusPendingManager {
		next.PendingManagerSince = &today
		next.BankDetailsConfirmed = false
		payload["pending_manager_since"] = today.Format(entity.DateLayout)
	}

	if req.To == StatusPaid {
		paid := today
		if req.PaidDate != nil {
			y, m, d := req.PaidDate.Date()
			paid = time.Date(y, m, d, 0, 0, 0, 0, now.Location())
		}
		next.PaidDate = &paid
		payload["paid_date"] = paid.Format(entity.DateLayout)
		if ref := strings.TrimSpace(req.PaymentReference); ref != "" {
			next.PaymentReference = &ref
			payload["payment_reference"] = ref
		}
	}

	if comment != "" {
		next.AdminComment = &comment
		payload["admin_comment"] = comment
	}

	if via == CapApprover && !wf.IsAssignedTo(subj.Actor.ID) && wf.ManagerUserID != nil {
		payload["delegated_for"] = *wf.ManagerUserID
	}
	if req.Bulk {
		payload["bulk"] = true
		if req.BatchID != "" {
			payload["batch_id"] = req.BatchID
		}
	}

	return &Decision{
		From:          Status(wf.Status),
		To:            req.To,
		Capability:    via,
		Next:          next,
		AuditPayload:  payload,
		Notifications: append([]Notification{}, edge.Notifications...),
	}, nil
}

// CanActOn returns the statuses subj may currently request
func (t *TransitionEngine) CanActOn(subj Subject) []Status {
	return t.permissions.AllowedTargets(subj)
}
