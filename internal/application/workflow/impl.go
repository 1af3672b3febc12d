package workflow

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/garyjia/invoice-workflow/internal/application/dispatcher"
	"github.com/garyjia/invoice-workflow/internal/application/port"
	"github.com/garyjia/invoice-workflow/internal/domain/entity"
	"github.com/garyjia/invoice-workflow/internal/domain/event"
	domainwf "github.com/garyjia/invoice-workflow/internal/domain/workflow"
)

// engineImpl is the concrete implementation of WorkflowEngine
type engineImpl struct {
	invoiceRepo  port.InvoiceRepository
	workflowRepo port.WorkflowRepository
	userRepo     port.UserRepository
	txManager    port.TransactionManager
	audit        *AuditTrail
	resolver     DelegateResolver

	transitions *domainwf.TransitionEngine
	dispatcher  dispatcher.Dispatcher
	logger      Logger
	metrics     Metrics
	clock       func() time.Time
	location    *time.Location
}

// EngineOption configures the workflow engine
type EngineOption func(*engineImpl)

// WithDispatcher sets the event dispatcher used for notifications
func WithDispatcher(d dispatcher.Dispatcher) EngineOption {
	return func(e *engineImpl) {
		e.dispatcher = d
	}
}

// WithLogger sets the engine logger
func WithLogger(l Logger) EngineOption {
	return func(e *engineImpl) {
		if l != nil {
			e.logger = l
		}
	}
}

// WithMetrics sets the metrics recorder
func WithMetrics(m Metrics) EngineOption {
	return func(e *engineImpl) {
		if m != nil {
			e.metrics = m
		}
	}
}

// WithClock overrides time.Now
func WithClock(clock func() time.Time) EngineOption {
	return func(e *engineImpl) {
		e.clock = clock
	}
}

// WithLocation sets the business timezone that decides "today"
func WithLocation(loc *time.Location) EngineOption {
	return func(e *engineImpl) {
		if loc != nil {
			e.location = loc
		}
	}
}

// WithTable replaces the default state table
func WithTable(table *domainwf.Table) EngineOption {
	return func(e *engineImpl) {
		e.transitions = domainwf.NewTransitionEngine(domainwf.NewPermissionEngine(table))
	}
}

// NewEngine creates a new workflow engine
func NewEngine(
	invoiceRepo port.InvoiceRepository,
	workflowRepo port.WorkflowRepository,
	userRepo port.UserRepository,
	txManager port.TransactionManager,
	audit *AuditTrail,
	resolver DelegateResolver,
	opts ...EngineOption,
) WorkflowEngine {
	e := &engineImpl{
		invoiceRepo:  invoiceRepo,
		workflowRepo: workflowRepo,
		userRepo:     userRepo,
		txManager:    txManager,
		audit:        audit,
		resolver:     resolver,
		transitions:  domainwf.NewTransitionEngine(nil),
		logger:       noopLogger{},
		metrics:      noopMetrics{},
		clock:        time.Now,
		location:     time.UTC,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *engineImpl) now() time.Time {
	return e.clock().In(e.location)
}

// loadSubject reads the invoice, its workflow row and the approver's delegate for today
func (e *engineImpl) loadSubject(ctx context.Context, actor entity.Actor, invoiceID int64, today time.Time) (domainwf.Subject, error) {
	subj := domainwf.Subject{Actor: actor}

	inv, err := e.invoiceRepo.GetByID(ctx, invoiceID)
	if err != nil {
		return subj, fmt.Errorf("failed to load invoice %d: %w", invoiceID, err)
	}
	if inv == nil {
		return subj, domainwf.NotFound("Invoice not found").WithInvoice(invoiceID)
	}

	wf, err := e.workflowRepo.GetByInvoiceID(ctx, invoiceID)
	if err != nil {
		return subj, fmt.Errorf("failed to load workflow of invoice %d: %w", invoiceID, err)
	}
	if wf == nil {
		return subj, domainwf.NotFound("Workflow not found").WithInvoice(invoiceID)
	}

	subj.Invoice = inv
	subj.Workflow = wf

	if wf.ManagerUserID != nil && e.resolver != nil {
		delegate, err := e.resolver.ActiveDelegateFor(ctx, *wf.ManagerUserID, today)
		if err != nil {
			return subj, fmt.Errorf("failed to resolve delegate of %s: %w", *wf.ManagerUserID, err)
		}
		subj.Delegate = delegate
	}
	return subj, nil
}

// Transition moves one invoice to req.To. The status write is a compare-and-swap
// on the status and version that were read, and the audit event is written in
// the same transaction.
func (e *engineImpl) Transition(ctx context.Context, actor entity.Actor, invoiceID int64, req domainwf.Request) (*TransitionResult, error) {
	now := e.now()
	today := entity.DateOf(now, e.location)

	var (
		subj     domainwf.Subject
		decision *domainwf.Decision
	)

	err := e.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		var err error
		subj, err = e.loadSubject(txCtx, actor, invoiceID, today)
		if err != nil {
			return err
		}

		decision, err = e.transitions.Plan(subj, req, now)
		if err != nil {
			return err
		}

		swapped, err := e.workflowRepo.CompareAndSwap(txCtx, &decision.Next, decision.From.String(), subj.Workflow.Version)
		if err != nil {
			return fmt.Errorf("failed to update workflow of invoice %d: %w", invoiceID, err)
		}
		if !swapped {
			return domainwf.ConcurrencyConflict().WithInvoice(invoiceID)
		}

		e.audit.Record(txCtx, &entity.AuditEvent{
			InvoiceID:   invoiceID,
			ActorUserID: actor.ID,
			EventType:   entity.AuditEventTransition,
			FromStatus:  decision.From.String(),
			ToStatus:    decision.To.String(),
			Payload:     decision.AuditPayload,
			CreatedAt:   now,
		})
		return nil
	})

	from := ""
	if subj.Workflow != nil {
		from = subj.Workflow.Status
	}
	e.metrics.ObserveTransition(from, req.To.String(), outcomeOf(err))

	if err != nil {
		if _, ok := domainwf.AsError(err); !ok {
			e.logger.Error("Transition failed",
				"invoice_id", invoiceID,
				"actor_user_id", actor.ID,
				"to_status", req.To,
				"error", err,
			)
		}
		return nil, err
	}

	e.logger.Info("Invoice transitioned",
		"invoice_id", invoiceID,
		"actor_user_id", actor.ID,
		"from_status", decision.From,
		"to_status", decision.To,
		"authorized_as", decision.Capability,
		"bulk", req.Bulk,
	)

	e.publishTransition(ctx, actor, subj, decision)

	next := decision.Next
	return &TransitionResult{
		InvoiceID: invoiceID,
		From:      decision.From,
		To:        decision.To,
		Workflow:  &next,
	}, nil
}

// AllowedTransitions returns the statuses actor may request right now
func (e *engineImpl) AllowedTransitions(ctx context.Context, actor entity.Actor, invoiceID int64) ([]domainwf.Status, error) {
	today := entity.DateOf(e.now(), e.location)
	subj, err := e.loadSubject(ctx, actor, invoiceID, today)
	if err != nil {
		return nil, err
	}
	return e.transitions.CanActOn(subj), nil
}

// Submit creates an invoice and its workflow row in one transaction
func (e *engineImpl) Submit(ctx context.Context, actor entity.Actor, cmd SubmitCommand) (*entity.InvoiceView, error) {
	if actor.Role == entity.RoleViewer {
		return nil, domainwf.PermissionDenied(domainwf.ReasonViewer)
	}

	submitter := strings.TrimSpace(cmd.SubmitterUserID)
	if submitter == "" {
		submitter = actor.ID
	}
	if submitter != actor.ID && !actor.IsAdmin() {
		return nil, domainwf.PermissionDenied("Only an administrator can submit on behalf of another user")
	}
	if cmd.Type == "" {
		cmd.Type = entity.InvoiceTypeOther
	}
	if !cmd.Type.IsValid() {
		return nil, domainwf.Validation("Unknown invoice type: " + string(cmd.Type))
	}

	manager := strings.TrimSpace(cmd.ManagerUserID)
	if cmd.Imported {
		if !actor.IsAdmin() {
			return nil, domainwf.PermissionDenied("Only an administrator can import invoices")
		}
		if cmd.Type != entity.InvoiceTypeGuest {
			return nil, domainwf.Validation("Only guest invoices can be imported")
		}
	} else if verr := e.checkApprover(ctx, manager, submitter); verr != nil {
		return nil, verr
	}

	now := e.now()
	today := entity.DateOf(now, e.location)

	inv := &entity.Invoice{
		Type:            cmd.Type,
		SubmitterUserID: submitter,
		DepartmentID:    cmd.DepartmentID,
		ProgramID:       cmd.ProgramID,
		Description:     cmd.Description,
		Imported:        cmd.Imported,
		CreatedAt:       now,
	}
	wf := &entity.WorkflowState{
		Status:    domainwf.StatusPendingManager.String(),
		Version:   1,
		UpdatedAt: now,
	}
	if manager != "" {
		wf.ManagerUserID = &manager
	}
	payload := map[string]interface{}{
		"invoice_type": string(cmd.Type),
		"imported":     cmd.Imported,
	}

	if cmd.Imported {
		paid := today
		if cmd.PaidDate != nil {
			y, m, d := cmd.PaidDate.Date()
			paid = time.Date(y, m, d, 0, 0, 0, 0, e.location)
		}
		wf.Status = domainwf.StatusPaid.String()
		wf.PaidDate = &paid
		payload["paid_date"] = paid.Format(entity.DateLayout)
		if ref := strings.TrimSpace(cmd.PaymentReference); ref != "" {
			wf.PaymentReference = &ref
			payload["payment_reference"] = ref
		}
	} else {
		wf.PendingManagerSince = &today
		payload["manager_user_id"] = manager
	}

	err := e.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		if err := e.invoiceRepo.Create(txCtx, inv); err != nil {
			return fmt.Errorf("failed to create invoice: %w", err)
		}
		wf.InvoiceID = inv.ID
		if err := e.workflowRepo.Create(txCtx, wf); err != nil {
			return fmt.Errorf("failed to create workflow: %w", err)
		}
		e.audit.Record(txCtx, &entity.AuditEvent{
			InvoiceID:   inv.ID,
			ActorUserID: actor.ID,
			EventType:   entity.AuditEventCreated,
			ToStatus:    wf.Status,
			Payload:     payload,
			CreatedAt:   now,
		})
		return nil
	})
	if err != nil {
		e.logger.Error("Invoice submission failed", "actor_user_id", actor.ID, "error", err)
		return nil, err
	}

	e.logger.Info("Invoice submitted",
		"invoice_id", inv.ID,
		"submitter_user_id", submitter,
		"status", wf.Status,
		"imported", cmd.Imported,
	)

	base := e.eventPayload(actor, inv, wf, "")
	base[event.KeyToStatus] = wf.Status
	e.dispatch(ctx, event.TypeInvoiceSubmitted, inv.ID, base)
	if !cmd.Imported {
		e.requestNotification(ctx, inv.ID, base, domainwf.Notification{
			Kind:      domainwf.NotifyApprovalRequested,
			Audiences: []domainwf.Audience{domainwf.AudienceManager},
		})
	}

	return &entity.InvoiceView{Invoice: inv, Workflow: wf}, nil
}

// ReassignManager changes the approver while the invoice still awaits manager review
func (e *engineImpl) ReassignManager(ctx context.Context, actor entity.Actor, invoiceID int64, managerUserID string) (*entity.WorkflowState, error) {
	if !actor.IsAdmin() {
		return nil, domainwf.PermissionDenied(domainwf.ReasonAdminOnly).WithInvoice(invoiceID)
	}
	manager := strings.TrimSpace(managerUserID)
	now := e.now()

	var (
		inv      *entity.Invoice
		previous *entity.WorkflowState
		next     entity.WorkflowState
		changed  bool
	)

	err := e.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		subj, err := e.loadSubject(txCtx, actor, invoiceID, entity.DateOf(now, e.location))
		if err != nil {
			return err
		}
		inv, previous = subj.Invoice, subj.Workflow

		status := domainwf.Status(previous.Status)
		if !status.IsEntry() && status != domainwf.StatusRejected {
			return domainwf.Validation("The approver can only be changed before manager approval").WithInvoice(invoiceID)
		}
		if verr := e.checkApprover(txCtx, manager, inv.SubmitterUserID); verr != nil {
			return verr.WithInvoice(invoiceID)
		}

		next = previous.Clone()
		if previous.IsAssignedTo(manager) {
			return nil
		}

		next.ManagerUserID = &manager
		next.BankDetailsConfirmed = false
		next.Version = previous.Version + 1
		next.UpdatedAt = now

		swapped, err := e.workflowRepo.CompareAndSwap(txCtx, &next, previous.Status, previous.Version)
		if err != nil {
			return fmt.Errorf("failed to update workflow of invoice %d: %w", invoiceID, err)
		}
		if !swapped {
			return domainwf.ConcurrencyConflict().WithInvoice(invoiceID)
		}
		changed = true

		prevManager := ""
		if previous.ManagerUserID != nil {
			prevManager = *previous.ManagerUserID
		}
		e.audit.Record(txCtx, &entity.AuditEvent{
			InvoiceID:   invoiceID,
			ActorUserID: actor.ID,
			EventType:   entity.AuditEventManagerReassigned,
			FromStatus:  previous.Status,
			ToStatus:    next.Status,
			Payload: map[string]interface{}{
				"previous_manager_user_id": prevManager,
				"manager_user_id":          manager,
			},
			CreatedAt: now,
		})
		return nil
	})
	if err != nil {
		return nil, err
	}

	if changed {
		e.logger.Info("Approver reassigned",
			"invoice_id", invoiceID,
			"actor_user_id", actor.ID,
			"manager_user_id", manager,
		)
		payload := e.eventPayload(actor, inv, &next, "")
		e.dispatch(ctx, event.TypeManagerReassigned, invoiceID, payload)
		e.requestNotification(ctx, invoiceID, payload, domainwf.Notification{
			Kind:      domainwf.NotifyApprovalRequested,
			Audiences: []domainwf.Audience{domainwf.AudienceManager},
		})
	}
	return &next, nil
}

// checkApprover validates an approver assignment
func (e *engineImpl) checkApprover(ctx context.Context, manager, submitter string) *domainwf.Error {
	if manager == "" {
		return domainwf.Validation("An approver is required")
	}
	if manager == submitter {
		return domainwf.Validation("The submitter cannot be their own approver")
	}
	user, err := e.userRepo.GetByID(ctx, manager)
	if err != nil {
		e.logger.Error("Failed to look up approver", "manager_user_id", manager, "error", err)
		return domainwf.Validation("Approver could not be verified")
	}
	if user == nil {
		return domainwf.Validation("Unknown approver: " + manager)
	}
	if user.Role == entity.RoleViewer {
		return domainwf.Validation("A viewer cannot be assigned as approver")
	}
	return nil
}

func (e *engineImpl) eventPayload(actor entity.Actor, inv *entity.Invoice, wf *entity.WorkflowState, delegate string) map[string]interface{} {
	payload := map[string]interface{}{
		event.KeyActorUserID:     actor.ID,
		event.KeySubmitterUserID: inv.SubmitterUserID,
		event.KeyInvoiceType:     string(inv.Type),
	}
	if wf.ManagerUserID != nil {
		payload[event.KeyManagerUserID] = *wf.ManagerUserID
	}
	if delegate != "" {
		payload[event.KeyDelegateUserID] = delegate
	}
	return payload
}

// publishTransition fires the status change and the notifications the decision computed
func (e *engineImpl) publishTransition(ctx context.Context, actor entity.Actor, subj domainwf.Subject, d *domainwf.Decision) {
	payload := e.eventPayload(actor, subj.Invoice, &d.Next, subj.Delegate)
	payload[event.KeyFromStatus] = d.From.String()
	payload[event.KeyToStatus] = d.To.String()
	if d.Next.RejectionReason != nil {
		payload[event.KeyRejectionReason] = *d.Next.RejectionReason
	}
	if d.Next.PaymentReference != nil {
		payload[event.KeyPaymentRef] = *d.Next.PaymentReference
	}
	if batch, ok := d.AuditPayload["batch_id"]; ok {
		payload[event.KeyBatchID] = batch
	}

	e.dispatch(ctx, event.TypeStatusChanged, subj.Invoice.ID, payload)
	for _, n := range d.Notifications {
		e.requestNotification(ctx, subj.Invoice.ID, payload, n)
	}
}

func (e *engineImpl) requestNotification(ctx context.Context, invoiceID int64, base map[string]interface{}, n domainwf.Notification) {
	audiences := make([]string, 0, len(n.Audiences))
	for _, a := range n.Audiences {
		audiences = append(audiences, string(a))
	}
	payload := make(map[string]interface{}, len(base)+2)
	for k, v := range base {
		payload[k] = v
	}
	payload[event.KeyKind] = string(n.Kind)
	payload[event.KeyAudiences] = audiences
	e.dispatch(ctx, event.TypeNotificationRequested, invoiceID, payload)
}

func (e *engineImpl) dispatch(ctx context.Context, t event.Type, invoiceID int64, payload map[string]interface{}) {
	if e.dispatcher == nil {
		return
	}
	evt := event.NewEventWithCorrelation(t, invoiceID, payload, port.RequestIDFromContext(ctx))
	e.dispatcher.DispatchAsync(ctx, evt)
}
