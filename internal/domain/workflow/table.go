package workflow

import "fmt"

// NotificationKind identifies which notification a transition fires
type NotificationKind string

const (
	NotifyInvoiceApproved    NotificationKind = "invoice_approved"
	NotifyInvoiceRejected    NotificationKind = "invoice_rejected"
	NotifyInvoiceResubmitted NotificationKind = "invoice_resubmitted"
	NotifyInvoicePaid        NotificationKind = "invoice_paid"
	NotifyApprovalRequested  NotificationKind = "approval_requested"
	NotifySLAReminder        NotificationKind = "sla_reminder"
)

// Audience is a recipient group resolved to users at delivery time
type Audience string

const (
	AudienceSubmitter Audience = "submitter"
	AudienceFinance   Audience = "finance"
	AudienceAdmins    Audience = "admins"
	AudienceManager   Audience = "manager"
)

// Notification is a side effect computed for a transition
type Notification struct {
	Kind      NotificationKind
	Audiences []Audience
}

// Edge is one legal transition and the capabilities that may take it
type Edge struct {
	From                    Status
	To                      Status
	Allowed                 []Capability
	RequireReason           bool
	RequireBankConfirmation bool
	Notifications           []Notification
}

// Permits returns the first capability in caps that authorizes the edge.
// Admin is checked first so admin decisions are attributed to the admin role.
func (e *Edge) Permits(caps map[Capability]bool) (Capability, bool) {
	if caps[CapAdmin] && e.allows(CapAdmin) {
		return CapAdmin, true
	}
	for _, c := range e.Allowed {
		if caps[c] {
			return c, true
		}
	}
	return "", false
}

func (e *Edge) allows(c Capability) bool {
	for _, a := range e.Allowed {
		if a == c {
			return true
		}
	}
	return false
}

// denialReason picks the reason naming the first non-admin capability on the edge
func (e *Edge) denialReason() string {
	for _, c := range e.Allowed {
		if c != CapAdmin {
			return c.DenialReason()
		}
	}
	return ReasonAdminOnly
}

// Table is the immutable edge set of the invoice state machine
type Table struct {
	edges map[Status]map[Status]*Edge
}

// Edge looks up the edge from -> to
func (t *Table) Edge(from, to Status) (*Edge, bool) {
	e, ok := t.edges[from][to]
	return e, ok
}

// EdgesFrom returns the outgoing edges of a status in lifecycle order
func (t *Table) EdgesFrom(from Status) []*Edge {
	var out []*Edge
	for _, to := range AllStatuses() {
		if e, ok := t.edges[from][to]; ok {
			out = append(out, e)
		}
	}
	return out
}

// Edges returns every edge in lifecycle order
func (t *Table) Edges() []*Edge {
	var out []*Edge
	for _, from := range AllStatuses() {
		out = append(out, t.EdgesFrom(from)...)
	}
	return out
}

// TableBuilder builds a Table
type TableBuilder struct {
	edges map[Status]map[Status]*Edge
}

// StatusConfiguration configures the outgoing edges of one status
type StatusConfiguration struct {
	builder *TableBuilder
	from    Status
}

// EdgeConfiguration configures one edge
type EdgeConfiguration struct {
	*StatusConfiguration
	edge *Edge
}

// NewTableBuilder creates an empty builder
func NewTableBuilder() *TableBuilder {
	return &TableBuilder{edges: make(map[Status]map[Status]*Edge)}
}

// From returns the configuration for a source status
func (b *TableBuilder) From(from Status) *StatusConfiguration {
	if !from.IsValid() {
		panic(fmt.Sprintf("invalid status: %s", from))
	}
	if _, ok := b.edges[from]; !ok {
		b.edges[from] = make(map[Status]*Edge)
	}
	return &StatusConfiguration{builder: b, from: from}
}

// Permit adds the edge from -> to, authorized by any of caps
func (c *StatusConfiguration) Permit(to Status, caps ...Capability) *EdgeConfiguration {
	if !to.IsValid() {
		panic(fmt.Sprintf("invalid target status: %s", to))
	}
	if len(caps) == 0 {
		panic(fmt.Sprintf("edge %s -> %s has no capabilities", c.from, to))
	}
	e := &Edge{From: c.from, To: to, Allowed: append([]Capability{}, caps...)}
	c.builder.edges[c.from][to] = e
	return &EdgeConfiguration{StatusConfiguration: c, edge: e}
}

// RequireReason marks the edge as needing a non-empty rejection reason
func (c *EdgeConfiguration) RequireReason() *EdgeConfiguration {
	c.edge.RequireReason = true
	return c
}

// RequireBankConfirmation marks the edge as needing the approver's bank detail confirmation
func (c *EdgeConfiguration) RequireBankConfirmation() *EdgeConfiguration {
	c.edge.RequireBankConfirmation = true
	return c
}

// Notify adds a notification side effect to the edge
func (c *EdgeConfiguration) Notify(kind NotificationKind, audiences ...Audience) *EdgeConfiguration {
	c.edge.Notifications = append(c.edge.Notifications, Notification{
		Kind:      kind,
		Audiences: append([]Audience{}, audiences...),
	})
	return c
}

// Build returns an immutable copy of the configured table
func (b *TableBuilder) Build() *Table {
	edges := make(map[Status]map[Status]*Edge, len(b.edges))
	for from, targets := range b.edges {
		edges[from] = make(map[Status]*Edge, len(targets))
		for to, e := range targets {
			cp := *e
			cp.Allowed = append([]Capability{}, e.Allowed...)
			cp.Notifications = append([]Notification{}, e.Notifications...)
			edges[from][to] = &cp
		}
	}
	return &Table{edges: edges}
}

// DefaultTable returns the invoice lifecycle table.
// submitted is a legacy name for pending_manager and carries the same edges.
func DefaultTable() *Table {
	b := NewTableBuilder()

	for _, entry := range []Status{StatusPendingManager, StatusSubmitted} {
		b.From(entry).
			Permit(StatusApprovedByManager, CapAdmin, CapApprover).
			RequireBankConfirmation().
			Notify(NotifyInvoiceApproved, AudienceSubmitter, AudienceFinance, AudienceAdmins)
		b.From(entry).
			Permit(StatusRejected, CapAdmin, CapApprover).
			RequireReason().
			Notify(NotifyInvoiceRejected, AudienceSubmitter)
		b.From(entry).
			Permit(StatusReadyForPayment, CapAdmin).
			Notify(NotifyInvoiceApproved, AudienceSubmitter, AudienceFinance, AudienceAdmins)
	}

	b.From(StatusApprovedByManager).Permit(StatusPendingAdmin, CapAdmin, CapOperationsRoom)
	b.From(StatusApprovedByManager).Permit(StatusReadyForPayment, CapAdmin, CapOperationsRoom)

	b.From(StatusPendingAdmin).Permit(StatusApprovedByManager, CapAdmin, CapOperationsRoom)
	b.From(StatusPendingAdmin).Permit(StatusReadyForPayment, CapAdmin, CapOperationsRoom)

	b.From(StatusReadyForPayment).
		Permit(StatusPaid, CapAdmin, CapFinance).
		Notify(NotifyInvoicePaid, AudienceSubmitter)

	b.From(StatusPaid).Permit(StatusArchived, CapAdmin, CapFinance)

	b.From(StatusRejected).
		Permit(StatusPendingManager, CapAdmin, CapOwner).
		Notify(NotifyInvoiceResubmitted, AudienceManager)

	return b.Build()
}
