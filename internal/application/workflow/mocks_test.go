package workflow

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/garyjia/invoice-workflow/internal/application/dispatcher"
	"github.com/garyjia/invoice-workflow/internal/application/port"
	"github.com/garyjia/invoice-workflow/internal/domain/entity"
	"github.com/garyjia/invoice-workflow/internal/domain/event"
)

// memoryStore implements the invoice, workflow, user, audit and delegation repositories in memory
type memoryStore struct {
	mu          sync.Mutex
	invoices    map[int64]*entity.Invoice
	workflows   map[int64]*entity.WorkflowState
	users       map[string]*entity.User
	audits      []*entity.AuditEvent
	delegations []*entity.Delegation
	nextID      int64

	auditErr  error
	beforeCAS func(invoiceID int64)
}

func newMemoryStore() *memoryStore {
	return &memoryStore{
		invoices:  make(map[int64]*entity.Invoice),
		workflows: make(map[int64]*entity.WorkflowState),
		users:     make(map[string]*entity.User),
	}
}

func (m *memoryStore) addUser(id string, role entity.Role) *entity.User {
	u := &entity.User{ID: id, Name: id, Role: role}
	m.users[id] = u
	return u
}

func (m *memoryStore) seed(inv *entity.Invoice, wf *entity.WorkflowState) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.invoices[inv.ID] = inv
	wf.InvoiceID = inv.ID
	m.workflows[inv.ID] = wf
	if inv.ID > m.nextID {
		m.nextID = inv.ID
	}
}

func (m *memoryStore) workflow(id int64) entity.WorkflowState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.workflows[id].Clone()
}

func (m *memoryStore) auditFor(id int64) []*entity.AuditEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*entity.AuditEvent
	for _, a := range m.audits {
		if a.InvoiceID == id {
			out = append(out, a)
		}
	}
	return out
}

// invoice repository

type invoiceRepo struct{ *memoryStore }

func (r invoiceRepo) Create(ctx context.Context, inv *entity.Invoice) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	inv.ID = r.nextID
	r.invoices[inv.ID] = inv
	return nil
}

func (r invoiceRepo) GetByID(ctx context.Context, id int64) (*entity.Invoice, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	inv, ok := r.invoices[id]
	if !ok {
		return nil, nil
	}
	cp := *inv
	return &cp, nil
}

func (r invoiceRepo) List(ctx context.Context, filter port.InvoiceFilter) ([]*entity.InvoiceView, error) {
	return nil, nil
}

func (r invoiceRepo) ListPaidBetween(ctx context.Context, from, to time.Time) ([]*entity.InvoiceView, error) {
	return nil, nil
}

// workflow repository

type workflowRepo struct{ *memoryStore }

func (r workflowRepo) Create(ctx context.Context, wf *entity.WorkflowState) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := wf.Clone()
	r.workflows[wf.InvoiceID] = &cp
	return nil
}

func (r workflowRepo) GetByInvoiceID(ctx context.Context, id int64) (*entity.WorkflowState, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	wf, ok := r.workflows[id]
	if !ok {
		return nil, nil
	}
	cp := wf.Clone()
	return &cp, nil
}

func (r workflowRepo) CompareAndSwap(ctx context.Context, next *entity.WorkflowState, expectedStatus string, expectedVersion int64) (bool, error) {
	if r.beforeCAS != nil {
		r.beforeCAS(next.InvoiceID)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	cur, ok := r.workflows[next.InvoiceID]
	if !ok || cur.Status != expectedStatus || cur.Version != expectedVersion {
		return false, nil
	}
	cp := next.Clone()
	r.workflows[next.InvoiceID] = &cp
	return true, nil
}

func (r workflowRepo) ListPendingSince(ctx context.Context, status string, onOrBefore time.Time) ([]*entity.WorkflowState, error) {
	return nil, nil
}

// user repository

type userRepo struct{ *memoryStore }

func (r userRepo) Create(ctx context.Context, u *entity.User) error {
	r.users[u.ID] = u
	return nil
}

func (r userRepo) GetByID(ctx context.Context, id string) (*entity.User, error) {
	return r.users[id], nil
}

func (r userRepo) ListByRole(ctx context.Context, role entity.Role) ([]*entity.User, error) {
	var out []*entity.User
	for _, u := range r.users {
		if u.Role == role {
			out = append(out, u)
		}
	}
	return out, nil
}

// audit repository

type auditRepo struct{ *memoryStore }

func (r auditRepo) Append(ctx context.Context, evt *entity.AuditEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.auditErr != nil {
		return r.auditErr
	}
	evt.ID = int64(len(r.audits) + 1)
	r.audits = append(r.audits, evt)
	return nil
}

func (r auditRepo) GetByInvoiceID(ctx context.Context, id int64) ([]*entity.AuditEvent, error) {
	return r.auditFor(id), nil
}

// delegation repository

type delegationRepo struct{ *memoryStore }

func (r delegationRepo) Create(ctx context.Context, d *entity.Delegation) error {
	d.ID = int64(len(r.delegations) + 1)
	r.delegations = append(r.delegations, d)
	return nil
}

func (r delegationRepo) GetByID(ctx context.Context, id int64) (*entity.Delegation, error) {
	return nil, nil
}

func (r delegationRepo) Update(ctx context.Context, d *entity.Delegation) error { return nil }

func (r delegationRepo) Delete(ctx context.Context, id int64) error { return nil }

func (r delegationRepo) List(ctx context.Context, delegator string) ([]*entity.Delegation, error) {
	return r.delegations, nil
}

func (r delegationRepo) ListCovering(ctx context.Context, delegator string, day time.Time) ([]*entity.Delegation, error) {
	var out []*entity.Delegation
	for _, d := range r.delegations {
		if d.DelegatorUserID == delegator && d.Covers(day) {
			out = append(out, d)
		}
	}
	return out, nil
}

type mockTxManager struct {
	calls int
}

func (m *mockTxManager) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	m.calls++
	return fn(ctx)
}

type mockDispatcher struct {
	mu     sync.Mutex
	events []*event.Event
}

func (m *mockDispatcher) Subscribe(eventType event.Type, handler dispatcher.Handler) {}

func (m *mockDispatcher) SubscribeNamed(eventType event.Type, name string, handler dispatcher.Handler) {
}

func (m *mockDispatcher) Unsubscribe(eventType event.Type, name string) {}

func (m *mockDispatcher) Dispatch(ctx context.Context, evt *event.Event) error {
	m.DispatchAsync(ctx, evt)
	return nil
}

func (m *mockDispatcher) DispatchAsync(ctx context.Context, evt *event.Event) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, evt)
}

func (m *mockDispatcher) ListHandlers(eventType event.Type) []dispatcher.HandlerInfo { return nil }

func (m *mockDispatcher) Close() error { return nil }

func (m *mockDispatcher) ofType(t event.Type) []*event.Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*event.Event
	for _, e := range m.events {
		if e.Type == t {
			out = append(out, e)
		}
	}
	return out
}

type recordingLogger struct {
	mu     sync.Mutex
	errors []map[string]interface{}
}

func (l *recordingLogger) Info(msg string, keysAndValues ...interface{}) {}

func (l *recordingLogger) Error(msg string, keysAndValues ...interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()
	entry := map[string]interface{}{"msg": msg}
	for i := 0; i+1 < len(keysAndValues); i += 2 {
		entry[fmt.Sprint(keysAndValues[i])] = keysAndValues[i+1]
	}
	l.errors = append(l.errors, entry)
}

type recordingMetrics struct {
	mu          sync.Mutex
	transitions []string
	bulkSizes   []int
}

func (m *recordingMetrics) ObserveTransition(from, to, outcome string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.transitions = append(m.transitions, from+">"+to+":"+outcome)
}

func (m *recordingMetrics) ObserveBulk(size int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.bulkSizes = append(m.bulkSizes, size)
}

func sortedKinds(events []*event.Event) []string {
	var kinds []string
	for _, e := range events {
		kinds = append(kinds, e.GetPayloadString(event.KeyKind))
	}
	sort.Strings(kinds)
	return kinds
}

func contextWithRequestID(id string) context.Context {
	return port.WithRequestID(context.Background(), id)
}
