package workflow

// PermissionEngine decides whether an actor may request a transition.
// It is a pure function of the table and the subject snapshot.
type PermissionEngine struct {
	table *Table
}

// NewPermissionEngine creates a permission engine over a table
func NewPermissionEngine(table *Table) *PermissionEngine {
	if table == nil {
		table = DefaultTable()
	}
	return &PermissionEngine{table: table}
}

// Table returns the state table the engine decides against
func (p *PermissionEngine) Table() *Table {
	return p.table
}

// CanTransition authorizes subj to move its invoice to `to`.
// It returns the edge and the capability that authorized it, or a typed *Error.
func (p *PermissionEngine) CanTransition(subj Subject, to Status) (*Edge, Capability, error) {
	if subj.Invoice == nil || subj.Workflow == nil {
		return nil, "", NotFound("Invoice not found")
	}
	from := Status(subj.Workflow.Status)
	if !from.IsValid() {
		return nil, "", Validation("Unknown workflow status: " + from.String()).WithInvoice(subj.Invoice.ID)
	}
	if !to.IsValid() {
		return nil, "", Validation("Unknown target status: " + to.String()).WithInvoice(subj.Invoice.ID)
	}
	if from.IsTerminalFor(subj.Invoice) {
		return nil, "", InvalidTransition().WithInvoice(subj.Invoice.ID)
	}

	edge, ok := p.table.Edge(from, to)
	if !ok {
		return nil, "", InvalidTransition().WithInvoice(subj.Invoice.ID)
	}

	facts := DeriveFacts(subj)
	if facts.IsViewer {
		return nil, "", PermissionDenied(ReasonViewer).WithInvoice(subj.Invoice.ID)
	}
	if !facts.IsAdmin && facts.IsOwner && (to == StatusApprovedByManager || to == StatusRejected) {
		return nil, "", PermissionDenied(ReasonSelfApproval).WithInvoice(subj.Invoice.ID)
	}

	via, ok := edge.Permits(facts.Capabilities())
	if !ok {
		return nil, "", PermissionDenied(edge.denialReason()).WithInvoice(subj.Invoice.ID)
	}
	return edge, via, nil
}

// AllowedTargets returns the statuses subj may currently request, in lifecycle order
func (p *PermissionEngine) AllowedTargets(subj Subject) []Status {
	if subj.Workflow == nil {
		return nil
	}
	targets := []Status{}
	for _, e := range p.table.EdgesFrom(Status(subj.Workflow.Status)) {
		if _, _, err := p.CanTransition(subj, e.To); err == nil {
			targets = append(targets, e.To)
		}
	}
	return targets
}
