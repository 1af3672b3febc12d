package service

import (
	"context"
	"io"
	"sync"
	"time"

	"github.com/garyjia/invoice-workflow/internal/application/port"
	"github.com/garyjia/invoice-workflow/internal/domain/entity"
	"github.com/garyjia/invoice-workflow/internal/domain/workflow"
)

type mockLogger struct {
	mu     sync.Mutex
	infos  []string
	errors []string
}

func (m *mockLogger) Info(msg string, keysAndValues ...interface{}) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.infos = append(m.infos, msg)
}

func (m *mockLogger) Error(msg string, keysAndValues ...interface{}) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errors = append(m.errors, msg)
}

func (m *mockLogger) countInfo(msg string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, s := range m.infos {
		if s == msg {
			n++
		}
	}
	return n
}

type mockUserRepo struct {
	users         map[string]*entity.User
	getByIDFunc   func(ctx context.Context, id string) (*entity.User, error)
	listByRoleErr error
}

func newMockUserRepo(users ...*entity.User) *mockUserRepo {
	m := &mockUserRepo{users: make(map[string]*entity.User)}
	for _, u := range users {
		m.users[u.ID] = u
	}
	return m
}

func (m *mockUserRepo) Create(ctx context.Context, u *entity.User) error {
	m.users[u.ID] = u
	return nil
}

func (m *mockUserRepo) GetByID(ctx context.Context, id string) (*entity.User, error) {
	if m.getByIDFunc != nil {
		return m.getByIDFunc(ctx, id)
	}
	return m.users[id], nil
}

func (m *mockUserRepo) ListByRole(ctx context.Context, role entity.Role) ([]*entity.User, error) {
	if m.listByRoleErr != nil {
		return nil, m.listByRoleErr
	}
	var out []*entity.User
	for _, u := range m.users {
		if u.Role == role {
			out = append(out, u)
		}
	}
	return out, nil
}

type mockNotifier struct {
	mu         sync.Mutex
	delivered  []string
	kinds      []workflow.NotificationKind
	notifyFunc func(recipient *entity.User) error
}

func (m *mockNotifier) Notify(ctx context.Context, kind workflow.NotificationKind, recipients []*entity.User, ic port.InvoiceContext) error {
	for _, r := range recipients {
		if m.notifyFunc != nil {
			if err := m.notifyFunc(r); err != nil {
				return err
			}
		}
		m.mu.Lock()
		m.delivered = append(m.delivered, r.ID)
		m.kinds = append(m.kinds, kind)
		m.mu.Unlock()
	}
	return nil
}

type mockInvoiceRepo struct {
	getByIDFunc         func(ctx context.Context, id int64) (*entity.Invoice, error)
	listFunc            func(ctx context.Context, filter port.InvoiceFilter) ([]*entity.InvoiceView, error)
	listPaidBetweenFunc func(ctx context.Context, from, to time.Time) ([]*entity.InvoiceView, error)
}

func (m *mockInvoiceRepo) Create(ctx context.Context, inv *entity.Invoice) error { return nil }

func (m *mockInvoiceRepo) GetByID(ctx context.Context, id int64) (*entity.Invoice, error) {
	if m.getByIDFunc != nil {
		return m.getByIDFunc(ctx, id)
	}
	return nil, nil
}

func (m *mockInvoiceRepo) List(ctx context.Context, filter port.InvoiceFilter) ([]*entity.InvoiceView, error) {
	if m.listFunc != nil {
		return m.listFunc(ctx, filter)
	}
	return nil, nil
}

func (m *mockInvoiceRepo) ListPaidBetween(ctx context.Context, from, to time.Time) ([]*entity.InvoiceView, error) {
	if m.listPaidBetweenFunc != nil {
		return m.listPaidBetweenFunc(ctx, from, to)
	}
	return nil, nil
}

type mockWorkflowRepo struct {
	getFunc func(ctx context.Context, id int64) (*entity.WorkflowState, error)
}

func (m *mockWorkflowRepo) Create(ctx context.Context, wf *entity.WorkflowState) error { return nil }

func (m *mockWorkflowRepo) GetByInvoiceID(ctx context.Context, id int64) (*entity.WorkflowState, error) {
	if m.getFunc != nil {
		return m.getFunc(ctx, id)
	}
	return nil, nil
}

func (m *mockWorkflowRepo) CompareAndSwap(ctx context.Context, next *entity.WorkflowState, status string, version int64) (bool, error) {
	return false, nil
}

func (m *mockWorkflowRepo) ListPendingSince(ctx context.Context, status string, day time.Time) ([]*entity.WorkflowState, error) {
	return nil, nil
}

type mockAuditRepo struct {
	events []*entity.AuditEvent
}

func (m *mockAuditRepo) Append(ctx context.Context, evt *entity.AuditEvent) error {
	m.events = append(m.events, evt)
	return nil
}

func (m *mockAuditRepo) GetByInvoiceID(ctx context.Context, id int64) ([]*entity.AuditEvent, error) {
	var out []*entity.AuditEvent
	for _, e := range m.events {
		if e.InvoiceID == id {
			out = append(out, e)
		}
	}
	return out, nil
}

type mockDelegationRepo struct {
	rows   []*entity.Delegation
	nextID int64
}

func (m *mockDelegationRepo) Create(ctx context.Context, d *entity.Delegation) error {
	m.nextID++
	d.ID = m.nextID
	m.rows = append(m.rows, d)
	return nil
}

func (m *mockDelegationRepo) GetByID(ctx context.Context, id int64) (*entity.Delegation, error) {
	for _, d := range m.rows {
		if d.ID == id {
			cp := *d
			return &cp, nil
		}
	}
	return nil, nil
}

func (m *mockDelegationRepo) Update(ctx context.Context, d *entity.Delegation) error {
	for i, row := range m.rows {
		if row.ID == d.ID {
			cp := *d
			m.rows[i] = &cp
		}
	}
	return nil
}

func (m *mockDelegationRepo) Delete(ctx context.Context, id int64) error {
	kept := m.rows[:0]
	for _, d := range m.rows {
		if d.ID != id {
			kept = append(kept, d)
		}
	}
	m.rows = kept
	return nil
}

func (m *mockDelegationRepo) List(ctx context.Context, delegator string) ([]*entity.Delegation, error) {
	var out []*entity.Delegation
	for _, d := range m.rows {
		if delegator == "" || d.DelegatorUserID == delegator {
			out = append(out, d)
		}
	}
	return out, nil
}

func (m *mockDelegationRepo) ListCovering(ctx context.Context, delegator string, day time.Time) ([]*entity.Delegation, error) {
	var out []*entity.Delegation
	for _, d := range m.rows {
		if d.DelegatorUserID == delegator && d.Covers(day) {
			out = append(out, d)
		}
	}
	return out, nil
}

type mockExporter struct {
	rows []port.PaymentReportRow
	err  error
}

func (m *mockExporter) ContentType() string { return "text/plain" }

func (m *mockExporter) WritePaymentReport(w io.Writer, rows []port.PaymentReportRow) error {
	m.rows = rows
	if m.err != nil {
		return m.err
	}
	_, err := io.WriteString(w, "report")
	return err
}
