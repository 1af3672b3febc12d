package workflow

import (
	"testing"
	"time"

	"github.com/garyjia/invoice-workflow/internal/domain/entity"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var planNow = time.Date(2024, 3, 15, 14, 30, 0, 0, time.UTC)

func TestTransition_ManagerApprovalScenario(t *testing.T) {
	engine := NewTransitionEngine(nil)
	subj := newSubject(actor(managerID, entity.RoleManager), StatusPendingManager)

	decision, err := engine.Plan(subj, Request{To: StatusApprovedByManager, ManagerConfirmed: true}, planNow)
	require.NoError(t, err)

	assert.Equal(t, StatusPendingManager, decision.From)
	assert.Equal(t, StatusApprovedByManager, decision.To)
	assert.Equal(t, CapApprover, decision.Capability)
	assert.Equal(t, "approved_by_manager", decision.Next.Status)
	assert.True(t, decision.Next.BankDetailsConfirmed)
	assert.Equal(t, int64(4), decision.Next.Version)
	assert.Nil(t, decision.Next.RejectionReason)
	require.Len(t, decision.Notifications, 1)
	assert.Equal(t, NotifyInvoiceApproved, decision.Notifications[0].Kind)

	assert.Equal(t, "pending_manager", subj.Workflow.Status, "subject snapshot must not be mutated")
	assert.Equal(t, int64(3), subj.Workflow.Version)
}

func TestTransition_BankConfirmation(t *testing.T) {
	engine := NewTransitionEngine(nil)

	t.Run("missing confirmation is rejected", func(t *testing.T) {
		subj := newSubject(actor(managerID, entity.RoleManager), StatusPendingManager)
		_, err := engine.Plan(subj, Request{To: StatusApprovedByManager}, planNow)
		wfErr := assertKind(t, err, KindValidation)
		assert.Equal(t, ReasonBankDetails, wfErr.Message)
	})

	t.Run("persisted confirmation satisfies", func(t *testing.T) {
		subj := newSubject(actor(managerID, entity.RoleManager), StatusPendingManager)
		subj.Workflow.BankDetailsConfirmed = true
		decision, err := engine.Plan(subj, Request{To: StatusApprovedByManager}, planNow)
		require.NoError(t, err)
		assert.True(t, decision.Next.BankDetailsConfirmed)
	})

	t.Run("delegate needs confirmation too", func(t *testing.T) {
		subj := newSubject(actor("mgr-2", entity.RoleManager), StatusPendingManager)
		subj.Delegate = "mgr-2"
		_, err := engine.Plan(subj, Request{To: StatusApprovedByManager}, planNow)
		assertKind(t, err, KindValidation)

		decision, err := engine.Plan(subj, Request{To: StatusApprovedByManager, ManagerConfirmed: true}, planNow)
		require.NoError(t, err)
		assert.Equal(t, managerID, decision.AuditPayload["delegated_for"])
	})

	t.Run("admin does not need confirmation", func(t *testing.T) {
		subj := newSubject(actor("adm-1", entity.RoleAdmin), StatusPendingManager)
		decision, err := engine.Plan(subj, Request{To: StatusApprovedByManager}, planNow)
		require.NoError(t, err)
		assert.Equal(t, CapAdmin, decision.Capability)
	})
}

func TestTransition_ConfirmationOnlyRecordedOnApprovalEdges(t *testing.T) {
	engine := NewTransitionEngine(nil)

	tests := []struct {
		name  string
		actor entity.Actor
		from  Status
		to    Status
	}{
		{"finance paying", actor("fin-1", entity.RoleFinance), StatusReadyForPayment, StatusPaid},
		{"admin clearing admin review", actor("adm-1", entity.RoleAdmin), StatusPendingAdmin, StatusReadyForPayment},
		{"admin fast-tracking to payment", actor("adm-1", entity.RoleAdmin), StatusPendingManager, StatusReadyForPayment},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			subj := newSubject(tt.actor, tt.from)
			decision, err := engine.Plan(subj, Request{To: tt.to, ManagerConfirmed: true}, planNow)
			require.NoError(t, err)
			assert.False(t, decision.Next.BankDetailsConfirmed)
			assert.NotContains(t, decision.AuditPayload, "manager_confirmed")
		})
	}

	t.Run("admin approval records it", func(t *testing.T) {
		subj := newSubject(actor("adm-1", entity.RoleAdmin), StatusPendingManager)
		decision, err := engine.Plan(subj, Request{To: StatusApprovedByManager, ManagerConfirmed: true}, planNow)
		require.NoError(t, err)
		assert.True(t, decision.Next.BankDetailsConfirmed)
		assert.Equal(t, true, decision.AuditPayload["manager_confirmed"])
	})
}

func TestTransition_RejectionReason(t *testing.T) {
	engine := NewTransitionEngine(nil)
	subj := newSubject(actor(managerID, entity.RoleManager), StatusPendingManager)

	for _, reason := range []string{"", "   "} {
		_, err := engine.Plan(subj, Request{To: StatusRejected, RejectionReason: reason}, planNow)
		wfErr := assertKind(t, err, KindValidation)
		assert.Equal(t, ReasonRejectionRequired, wfErr.Message)
	}
	assert.Equal(t, "pending_manager", subj.Workflow.Status)

	decision, err := engine.Plan(subj, Request{To: StatusRejected, RejectionReason: "  missing receipt "}, planNow)
	require.NoError(t, err)
	require.NotNil(t, decision.Next.RejectionReason)
	assert.Equal(t, "missing receipt", *decision.Next.RejectionReason)
	assert.Equal(t, "missing receipt", decision.AuditPayload["rejection_reason"])
	require.Len(t, decision.Notifications, 1)
	assert.Equal(t, []Audience{AudienceSubmitter}, decision.Notifications[0].Audiences)
}

// Every reachable successful decision keeps rejection_reason set exactly when status is rejected.
func TestTransition_RejectionReasonInvariant(t *testing.T) {
	engine := NewTransitionEngine(nil)
	admin := actor("adm-1", entity.RoleAdmin)

	for key := range expectedEdges {
		subj := newSubject(admin, key.from)
		if key.from == StatusRejected {
			subj.Workflow.RejectionReason = strPtr("old reason")
		}
		decision, err := engine.Plan(subj, Request{To: key.to, RejectionReason: "reason"}, planNow)
		require.NoError(t, err, "%s -> %s", key.from, key.to)

		if key.to == StatusRejected {
			assert.NotNil(t, decision.Next.RejectionReason, "%s -> %s", key.from, key.to)
		} else {
			assert.Nil(t, decision.Next.RejectionReason, "%s -> %s", key.from, key.to)
		}
	}
}

func TestTransition_ResubmissionIdempotence(t *testing.T) {
	engine := NewTransitionEngine(nil)
	subj := newSubject(actor(submitterID, entity.RoleSubmitter), StatusRejected)
	subj.Workflow.RejectionReason = strPtr("wrong amount")
	oldSince := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)
	subj.Workflow.PendingManagerSince = &oldSince
	subj.Workflow.BankDetailsConfirmed = true

	decision, err := engine.Plan(subj, Request{To: StatusPendingManager}, planNow)
	require.NoError(t, err)
	assert.Nil(t, decision.Next.RejectionReason)
	require.NotNil(t, decision.Next.PendingManagerSince)
	assert.Equal(t, "2024-03-15", decision.Next.PendingManagerSince.Format(entity.DateLayout))
	assert.False(t, decision.Next.BankDetailsConfirmed)
	require.Len(t, decision.Notifications, 1)
	assert.Equal(t, NotifyInvoiceResubmitted, decision.Notifications[0].Kind)

	// second call starts from the persisted result and must fail cleanly
	next := decision.Next
	subj.Workflow = &next
	_, err = engine.Plan(subj, Request{To: StatusPendingManager}, planNow.Add(time.Hour))
	assertKind(t, err, KindInvalidTransition)
	assert.Nil(t, subj.Workflow.RejectionReason)
	assert.Equal(t, "pending_manager", subj.Workflow.Status)
}

func TestTransition_Payment(t *testing.T) {
	engine := NewTransitionEngine(nil)
	finance := actor("fin-1", entity.RoleFinance)

	t.Run("paid date defaults to today", func(t *testing.T) {
		subj := newSubject(finance, StatusReadyForPayment)
		decision, err := engine.Plan(subj, Request{To: StatusPaid, PaymentReference: "TX-1"}, planNow)
		require.NoError(t, err)
		require.NotNil(t, decision.Next.PaidDate)
		assert.Equal(t, "2024-03-15", decision.Next.PaidDate.Format(entity.DateLayout))
		require.NotNil(t, decision.Next.PaymentReference)
		assert.Equal(t, "TX-1", *decision.Next.PaymentReference)
		assert.Equal(t, "TX-1", decision.AuditPayload["payment_reference"])
		assert.Equal(t, "2024-03-15", decision.AuditPayload["paid_date"])
		require.Len(t, decision.Notifications, 1)
		assert.Equal(t, NotifyInvoicePaid, decision.Notifications[0].Kind)
	})

	t.Run("supplied paid date keeps its calendar day", func(t *testing.T) {
		loc := time.FixedZone("UTC-5", -5*3600)
		paid := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
		subj := newSubject(finance, StatusReadyForPayment)
		decision, err := engine.Plan(subj, Request{To: StatusPaid, PaidDate: &paid}, planNow.In(loc))
		require.NoError(t, err)
		assert.Equal(t, "2024-03-01", decision.Next.PaidDate.Format(entity.DateLayout))
		assert.Nil(t, decision.Next.PaymentReference)
	})

	t.Run("finance on pending manager is invalid", func(t *testing.T) {
		subj := newSubject(finance, StatusPendingManager)
		_, err := engine.Plan(subj, Request{To: StatusPaid}, planNow)
		assertKind(t, err, KindInvalidTransition)
	})
}

func TestTransition_AdminComment(t *testing.T) {
	engine := NewTransitionEngine(nil)

	subj := newSubject(actor("adm-1", entity.RoleAdmin), StatusApprovedByManager)
	decision, err := engine.Plan(subj, Request{To: StatusReadyForPayment, AdminComment: "checked budget"}, planNow)
	require.NoError(t, err)
	require.NotNil(t, decision.Next.AdminComment)
	assert.Equal(t, "checked budget", *decision.Next.AdminComment)
	assert.Equal(t, "checked budget", decision.AuditPayload["admin_comment"])

	ops := actor("ops-1", entity.RoleOperations)
	ops.OperationsRoomMember = true
	_, err = engine.Plan(newSubject(ops, StatusApprovedByManager), Request{To: StatusReadyForPayment, AdminComment: "x"}, planNow)
	assertKind(t, err, KindPermissionDenied)
}

func TestTransition_BulkMarker(t *testing.T) {
	engine := NewTransitionEngine(nil)
	subj := newSubject(actor("adm-1", entity.RoleAdmin), StatusPendingManager)

	decision, err := engine.Plan(subj, Request{To: StatusReadyForPayment, Bulk: true, BatchID: "batch-1"}, planNow)
	require.NoError(t, err)
	assert.Equal(t, true, decision.AuditPayload["bulk"])
	assert.Equal(t, "batch-1", decision.AuditPayload["batch_id"])
	assert.Equal(t, "admin", decision.AuditPayload["authorized_as"])
}

func TestTransition_CanActOn(t *testing.T) {
	engine := NewTransitionEngine(nil)
	subj := newSubject(actor("fin-1", entity.RoleFinance), StatusPaid)
	assert.Equal(t, []Status{StatusArchived}, engine.CanActOn(subj))
}
