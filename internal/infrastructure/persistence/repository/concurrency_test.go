package repository

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/garyjia/invoice-workflow/internal/application/delegation"
	appwf "github.com/garyjia/invoice-workflow/internal/application/workflow"
	"github.com/garyjia/invoice-workflow/internal/domain/entity"
	domainwf "github.com/garyjia/invoice-workflow/internal/domain/workflow"
	"github.com/garyjia/invoice-workflow/internal/infrastructure/persistence/sqlite"
)

type nopLogger struct{}

func (nopLogger) Info(string, ...interface{})  {}
func (nopLogger) Error(string, ...interface{}) {}

func TestEngine_ConcurrentApprovalsOnSQLite(t *testing.T) {
	const workers = 20

	db := newTestDB(t)
	invoices := NewInvoiceRepository(db.DB, zap.NewNop())
	workflows := NewWorkflowRepository(db.DB, zap.NewNop())
	users := NewUserRepository(db.DB, zap.NewNop())
	auditRepo := NewAuditRepository(db.DB, zap.NewNop())
	delegations := NewDelegationRepository(db.DB, zap.NewNop())

	ctx := context.Background()
	require.NoError(t, users.Create(ctx, &entity.User{ID: "sub-1", Name: "Submitter", Role: entity.RoleSubmitter}))
	require.NoError(t, users.Create(ctx, &entity.User{ID: "mgr-1", Name: "Manager", Role: entity.RoleManager}))

	id := seedInvoice(t, invoices, workflows, "sub-1", "pending_manager", func(w *entity.WorkflowState) {
		w.PendingManagerSince = day("2024-03-01")
	})

	engine := appwf.NewEngine(invoices, workflows, users,
		sqlite.NewDB(db.DB, zap.NewNop()),
		appwf.NewAuditTrail(auditRepo, nopLogger{}),
		delegation.NewResolver(delegations, nopLogger{}),
		appwf.WithLogger(nopLogger{}),
	)
	manager := entity.Actor{ID: "mgr-1", Role: entity.RoleManager}

	var (
		wg        sync.WaitGroup
		start     = make(chan struct{})
		succeeded atomic.Int32
		mu        sync.Mutex
		failures  []error
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			_, err := engine.Transition(ctx, manager, id, domainwf.Request{
				To:               domainwf.StatusApprovedByManager,
				ManagerConfirmed: true,
			})
			if err == nil {
				succeeded.Add(1)
				return
			}
			mu.Lock()
			failures = append(failures, err)
			mu.Unlock()
		}()
	}
	close(start)
	wg.Wait()

	assert.Equal(t, int32(1), succeeded.Load())
	require.Len(t, failures, workers-1)
	for _, err := range failures {
		derr, ok := domainwf.AsError(err)
		require.True(t, ok, "unexpected error: %v", err)
		assert.Contains(t, []domainwf.Kind{domainwf.KindInvalidTransition, domainwf.KindConcurrencyConflict}, derr.Kind)
	}

	state, err := workflows.GetByInvoiceID(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "approved_by_manager", state.Status)
	assert.True(t, state.BankDetailsConfirmed)

	events, err := auditRepo.GetByInvoiceID(ctx, id)
	require.NoError(t, err)
	transitions := 0
	for _, evt := range events {
		if evt.EventType == entity.AuditEventTransition {
			transitions++
		}
	}
	assert.Equal(t, 1, transitions)
}
