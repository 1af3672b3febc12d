package entity

import "time"

// Audit event types
const (
	AuditEventCreated           = "created"
	AuditEventTransition        = "transition"
	AuditEventManagerReassigned = "manager_reassigned"
)

// AuditEvent is an immutable record of one mutation of an invoice.
// Payload carries a structured diff, e.g. {"rejection_reason": "...", "bulk": true}.
type AuditEvent struct {
	ID          int64                  `json:"id"`
	InvoiceID   int64                  `json:"invoice_id"`
	ActorUserID string                 `json:"actor_user_id"`
	EventType   string                 `json:"event_type"`
	FromStatus  string                 `json:"from_status,omitempty"`
	ToStatus    string                 `json:"to_status,omitempty"`
	Payload     map[string]interface{} `json:"payload,omitempty"`
	CreatedAt   time.Time              `json:"created_at"`
}
