package entity

import "time"

// InvoiceType classifies an invoice
type InvoiceType string

const (
	InvoiceTypeGuest      InvoiceType = "guest"
	InvoiceTypeFreelancer InvoiceType = "freelancer"
	InvoiceTypeOther      InvoiceType = "other"
)

// IsValid returns true if the type is a known invoice type
func (t InvoiceType) IsValid() bool {
	switch t {
	case InvoiceTypeGuest, InvoiceTypeFreelancer, InvoiceTypeOther:
		return true
	}
	return false
}

// Invoice represents an expense or payment request.
// It is immutable once created except for administrative edits.
type Invoice struct {
	ID              int64       `json:"id"`
	Type            InvoiceType `json:"type"`
	SubmitterUserID string      `json:"submitter_user_id"`
	DepartmentID    string      `json:"department_id"`
	ProgramID       string      `json:"program_id"`
	Description     string      `json:"description,omitempty"`
	Imported        bool        `json:"imported"`
	CreatedAt       time.Time   `json:"created_at"`
}

// IsImportedGuest returns true for guest invoices created through the import path
func (i *Invoice) IsImportedGuest() bool {
	return i.Imported && i.Type == InvoiceTypeGuest
}

// WorkflowState is the lifecycle row of an invoice (one-to-one).
// Only the workflow engine writes it.
type WorkflowState struct {
	InvoiceID            int64      `json:"invoice_id"`
	Status               string     `json:"status"`
	ManagerUserID        *string    `json:"manager_user_id,omitempty"`
	RejectionReason      *string    `json:"rejection_reason,omitempty"`
	AdminComment         *string    `json:"admin_comment,omitempty"`
	PaymentReference     *string    `json:"payment_reference,omitempty"`
	PaidDate             *time.Time `json:"paid_date,omitempty"`
	PendingManagerSince  *time.Time `json:"pending_manager_since,omitempty"`
	BankDetailsConfirmed bool       `json:"bank_details_confirmed"`
	Version              int64      `json:"version"`
	UpdatedAt            time.Time  `json:"updated_at"`
}

// Clone returns a deep copy so decisions never alias a persisted snapshot
func (w *WorkflowState) Clone() WorkflowState {
	c := *w
	c.ManagerUserID = cloneString(w.ManagerUserID)
	c.RejectionReason = cloneString(w.RejectionReason)
	c.AdminComment = cloneString(w.AdminComment)
	c.PaymentReference = cloneString(w.PaymentReference)
	c.PaidDate = cloneTime(w.PaidDate)
	c.PendingManagerSince = cloneTime(w.PendingManagerSince)
	return c
}

// IsAssignedTo reports whether userID is the assigned approver
func (w *WorkflowState) IsAssignedTo(userID string) bool {
	return w.ManagerUserID != nil && userID != "" && *w.ManagerUserID == userID
}

// InvoiceView joins an invoice with its workflow row for read models
type InvoiceView struct {
	Invoice  *Invoice       `json:"invoice"`
	Workflow *WorkflowState `json:"workflow"`
}

func cloneString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
