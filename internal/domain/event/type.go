package event

// Type identifies the type of domain event
type Type string

const (
	TypeInvoiceSubmitted      Type = "invoice.submitted"
	TypeStatusChanged         Type = "invoice.status_changed"
	TypeManagerReassigned     Type = "invoice.manager_reassigned"
	TypeNotificationRequested Type = "notification.requested"
	TypeSLABreached           Type = "invoice.sla_breached"
)

// String returns the string representation of the event type
func (t Type) String() string {
	return string(t)
}

// IsValid checks if the event type is one of the defined constants
func (t Type) IsValid() bool {
	switch t {
	case TypeInvoiceSubmitted,
		TypeStatusChanged,
		TypeManagerReassigned,
		TypeNotificationRequested,
		TypeSLABreached:
		return true
	default:
		return false
	}
}
