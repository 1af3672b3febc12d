package http

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"

	"github.com/garyjia/invoice-workflow/internal/application/delegation"
	"github.com/garyjia/invoice-workflow/internal/application/service"
	appwf "github.com/garyjia/invoice-workflow/internal/application/workflow"
	"github.com/garyjia/invoice-workflow/internal/domain/entity"
	"github.com/garyjia/invoice-workflow/internal/infrastructure/export"
	"github.com/garyjia/invoice-workflow/internal/infrastructure/persistence/repository"
	"github.com/garyjia/invoice-workflow/internal/infrastructure/persistence/sqlite"
	"github.com/garyjia/invoice-workflow/migrations"
	"github.com/garyjia/invoice-workflow/pkg/database"
)

type nopLogger struct{}

func (nopLogger) Info(msg string, keysAndValues ...interface{})  {}
func (nopLogger) Error(msg string, keysAndValues ...interface{}) {}

// newTestServer wires the API over a real SQLite database in a temp dir
func newTestServer(t *testing.T) *Server {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db, err := database.New(database.Config{Path: filepath.Join(t.TempDir(), "api.db")}, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, database.NewMigrator(db, zap.NewNop()).Run(migrations.FS))

	invoices := repository.NewInvoiceRepository(db.DB, zap.NewNop())
	workflows := repository.NewWorkflowRepository(db.DB, zap.NewNop())
	delegations := repository.NewDelegationRepository(db.DB, zap.NewNop())
	users := repository.NewUserRepository(db.DB, zap.NewNop())
	auditRepo := repository.NewAuditRepository(db.DB, zap.NewNop())

	ctx := context.Background()
	for _, u := range []*entity.User{
		{ID: "admin-1", Name: "Admin", Role: entity.RoleAdmin},
		{ID: "mgr-1", Name: "Manager", Role: entity.RoleManager},
		{ID: "mgr-2", Name: "Deputy", Role: entity.RoleManager},
		{ID: "fin-1", Name: "Finance", Role: entity.RoleFinance},
		{ID: "sub-1", Name: "Submitter", Role: entity.RoleSubmitter},
		{ID: "view-1", Name: "Viewer", Role: entity.RoleViewer},
	} {
		require.NoError(t, users.Create(ctx, u))
	}

	resolver := delegation.NewResolver(delegations, nopLogger{})
	audit := appwf.NewAuditTrail(auditRepo, nopLogger{})
	engine := appwf.NewEngine(invoices, workflows, users, sqlite.NewDB(db.DB, zap.NewNop()), audit, resolver,
		appwf.WithLogger(nopLogger{}),
	)
	invoiceSvc := service.NewInvoiceService(invoices, workflows, audit)

	return NewServer(ServerConfig{Mode: gin.TestMode, MetricsPath: "/metrics"}, Dependencies{
		Engine:      engine,
		Bulk:        appwf.NewBulkCoordinator(engine, appwf.WithBulkLimit(3)),
		Invoices:    invoiceSvc,
		Delegations: service.NewDelegationService(delegations, users, resolver, nopLogger{}),
		Reports:     service.NewReportService(invoiceSvc, export.NewXLSXExporter(zap.NewNop()), nopLogger{}),
		Users:       users,
		Metrics: http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte("# metrics"))
		}),
		Logger: nopLogger{},
	})
}

func do(t *testing.T, s *Server, method, path, userID string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if userID != "" {
		req.Header.Set(headerUserID, userID)
	}
	w := httptest.NewRecorder()
	s.Router().ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), v))
}

func submit(t *testing.T, s *Server) int64 {
	t.Helper()
	w := do(t, s, http.MethodPost, "/api/invoices", "sub-1", gin.H{
		"type":          "freelancer",
		"managerUserId": "mgr-1",
		"departmentId":  "dep-1",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var resp struct {
		Data entity.InvoiceView `json:"data"`
	}
	decode(t, w, &resp)
	require.NotNil(t, resp.Data.Invoice)
	return resp.Data.Invoice.ID
}

func TestHealthAndMetrics(t *testing.T) {
	s := newTestServer(t)

	w := do(t, s, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "healthy")
	assert.NotEmpty(t, w.Header().Get(headerRequestID))

	w = do(t, s, http.MethodGet, "/metrics", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "# metrics", w.Body.String())
}

func TestActorMiddleware(t *testing.T) {
	s := newTestServer(t)

	tests := []struct {
		name   string
		userID string
		want   int
	}{
		{"missing header", "", http.StatusUnauthorized},
		{"unknown user", "ghost", http.StatusUnauthorized},
		{"known user", "admin-1", http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(t, s, http.MethodGet, "/api/invoices", tt.userID, nil)
			assert.Equal(t, tt.want, w.Code)
		})
	}
}

func TestSubmitInvoice_Validation(t *testing.T) {
	s := newTestServer(t)

	w := do(t, s, http.MethodPost, "/api/invoices", "sub-1", gin.H{"type": "freelancer", "managerUserId": "sub-1"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	var resp Response
	decode(t, w, &resp)
	assert.Equal(t, "validation_error", resp.Kind)

	w = do(t, s, http.MethodPost, "/api/invoices", "view-1", gin.H{"type": "freelancer", "managerUserId": "mgr-1"})
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestTransition(t *testing.T) {
	s := newTestServer(t)
	id := submit(t, s)
	path := fmt.Sprintf("/api/invoices/%d/transition", id)

	t.Run("submitter is not the approver", func(t *testing.T) {
		w := do(t, s, http.MethodPost, path, "sub-1", gin.H{"toStatus": "approved_by_manager", "managerConfirmed": true})
		assert.Equal(t, http.StatusForbidden, w.Code)
		var resp TransitionResponse
		decode(t, w, &resp)
		assert.False(t, resp.OK)
		assert.Equal(t, "permission_denied", resp.Kind)
	})

	t.Run("approval needs bank confirmation", func(t *testing.T) {
		w := do(t, s, http.MethodPost, path, "mgr-1", gin.H{"toStatus": "approved_by_manager"})
		assert.Equal(t, http.StatusBadRequest, w.Code)
		var resp TransitionResponse
		decode(t, w, &resp)
		assert.Equal(t, "validation_error", resp.Kind)
	})

	t.Run("unknown target status", func(t *testing.T) {
		w := do(t, s, http.MethodPost, path, "mgr-1", gin.H{"toStatus": "approved"})
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("manager approves", func(t *testing.T) {
		w := do(t, s, http.MethodPost, path, "mgr-1", gin.H{"toStatus": "approved_by_manager", "managerConfirmed": true})
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		var resp TransitionResponse
		decode(t, w, &resp)
		assert.True(t, resp.OK)
		assert.Equal(t, "approved_by_manager", resp.ToStatus)
		require.NotNil(t, resp.Workflow)
		assert.True(t, resp.Workflow.BankDetailsConfirmed)
	})

	t.Run("audit trail lists both events in order", func(t *testing.T) {
		w := do(t, s, http.MethodGet, fmt.Sprintf("/api/invoices/%d/audit", id), "admin-1", nil)
		require.Equal(t, http.StatusOK, w.Code)
		var resp struct {
			Data []entity.AuditEvent `json:"data"`
		}
		decode(t, w, &resp)
		require.Len(t, resp.Data, 2)
		assert.Equal(t, "pending_manager", resp.Data[0].ToStatus)
		assert.Equal(t, "approved_by_manager", resp.Data[1].ToStatus)
	})

	t.Run("bad id", func(t *testing.T) {
		w := do(t, s, http.MethodPost, "/api/invoices/abc/transition", "mgr-1", gin.H{"toStatus": "rejected"})
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("missing invoice", func(t *testing.T) {
		w := do(t, s, http.MethodPost, "/api/invoices/9999/transition", "admin-1", gin.H{"toStatus": "rejected", "rejectionReason": "x"})
		assert.Equal(t, http.StatusNotFound, w.Code)
	})
}

func TestAllowedTransitions(t *testing.T) {
	s := newTestServer(t)
	id := submit(t, s)

	w := do(t, s, http.MethodGet, fmt.Sprintf("/api/invoices/%d/transitions", id), "mgr-1", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var resp struct {
		Data []string `json:"data"`
	}
	decode(t, w, &resp)
	assert.ElementsMatch(t, []string{"approved_by_manager", "rejected"}, resp.Data)
}

func TestTransitionBulk(t *testing.T) {
	s := newTestServer(t)
	first := submit(t, s)
	second := submit(t, s)

	w := do(t, s, http.MethodPost, "/api/invoices/transition-bulk", "admin-1", gin.H{
		"invoiceIds": []int64{first, second, 9999},
		"toStatus":   "ready_for_payment",
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var result appwf.BulkResult
	decode(t, w, &result)
	assert.NotEmpty(t, result.BatchID)
	assert.Equal(t, 2, result.Success)
	require.Len(t, result.Failed, 1)
	assert.Equal(t, int64(9999), result.Failed[0].InvoiceID)
	assert.Equal(t, "not_found", result.Failed[0].Kind)

	w = do(t, s, http.MethodPost, "/api/invoices/transition-bulk", "admin-1", gin.H{
		"invoiceIds": []int64{1, 2, 3, 4},
		"toStatus":   "ready_for_payment",
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestBindingErrors(t *testing.T) {
	s := newTestServer(t)
	id := submit(t, s)
	transitionPath := fmt.Sprintf("/api/invoices/%d/transition", id)

	tests := []struct {
		name     string
		path     string
		body     string
		contains []string
	}{
		{
			name:     "missing toStatus",
			path:     transitionPath,
			body:     `{"rejectionReason":"x"}`,
			contains: []string{"toStatus is required"},
		},
		{
			name:     "toStatus of the wrong type",
			path:     transitionPath,
			body:     `{"toStatus":5}`,
			contains: []string{"Malformed request body", "toStatus"},
		},
		{
			name:     "truncated transition body",
			path:     transitionPath,
			body:     `{"toStatus":`,
			contains: []string{"Malformed request body"},
		},
		{
			name:     "invoiceIds not a list",
			path:     "/api/invoices/transition-bulk",
			body:     `{"invoiceIds":"x","toStatus":"paid"}`,
			contains: []string{"Malformed request body", "invoiceIds"},
		},
		{
			name:     "bulk missing both fields",
			path:     "/api/invoices/transition-bulk",
			body:     `{}`,
			contains: []string{"invoiceIds is required", "toStatus is required"},
		},
		{
			name:     "submit missing type",
			path:     "/api/invoices",
			body:     `{"managerUserId":"mgr-1"}`,
			contains: []string{"type is required"},
		},
		{
			name:     "submit with a non-object body",
			path:     "/api/invoices",
			body:     `[1,2]`,
			contains: []string{"Malformed request body"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, tt.path, strings.NewReader(tt.body))
			req.Header.Set("Content-Type", "application/json")
			req.Header.Set(headerUserID, "admin-1")
			w := httptest.NewRecorder()
			s.Router().ServeHTTP(w, req)

			assert.Equal(t, http.StatusBadRequest, w.Code)
			var resp Response
			decode(t, w, &resp)
			assert.Equal(t, "validation_error", resp.Kind)
			for _, want := range tt.contains {
				assert.Contains(t, resp.Error, want)
			}
		})
	}
}

func TestReassignManager(t *testing.T) {
	s := newTestServer(t)
	id := submit(t, s)
	path := fmt.Sprintf("/api/invoices/%d/manager", id)

	w := do(t, s, http.MethodPut, path, "sub-1", gin.H{"managerUserId": "mgr-2"})
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = do(t, s, http.MethodPut, path, "admin-1", gin.H{"managerUserId": "mgr-2"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var resp struct {
		Data entity.WorkflowState `json:"data"`
	}
	decode(t, w, &resp)
	require.NotNil(t, resp.Data.ManagerUserID)
	assert.Equal(t, "mgr-2", *resp.Data.ManagerUserID)
}

func TestDelegations(t *testing.T) {
	s := newTestServer(t)
	body := gin.H{
		"delegatorUserId": "mgr-1",
		"delegateUserId":  "mgr-2",
		"validFrom":       "2024-03-01",
		"validUntil":      "2024-03-10",
	}

	w := do(t, s, http.MethodPost, "/api/delegations", "mgr-1", body)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = do(t, s, http.MethodPost, "/api/delegations", "admin-1", gin.H{
		"delegatorUserId": "mgr-1",
		"delegateUserId":  "mgr-2",
		"validFrom":       "03/01/2024",
		"validUntil":      "2024-03-10",
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(t, s, http.MethodPost, "/api/delegations", "admin-1", body)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var created struct {
		Data entity.Delegation `json:"data"`
	}
	decode(t, w, &created)

	w = do(t, s, http.MethodGet, "/api/delegations/active?delegator=mgr-1&date=2024-03-10", "admin-1", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var active struct {
		Data *entity.Delegation `json:"data"`
	}
	decode(t, w, &active)
	require.NotNil(t, active.Data)
	assert.Equal(t, "mgr-2", active.Data.DelegateUserID)

	w = do(t, s, http.MethodGet, "/api/delegations?delegator=mgr-1", "admin-1", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var list struct {
		Data []entity.Delegation `json:"data"`
	}
	decode(t, w, &list)
	assert.Len(t, list.Data, 1)

	path := fmt.Sprintf("/api/delegations/%d", created.Data.ID)
	w = do(t, s, http.MethodDelete, path, "admin-1", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	w = do(t, s, http.MethodDelete, path, "admin-1", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestPaymentReport(t *testing.T) {
	s := newTestServer(t)

	w := do(t, s, http.MethodPost, "/api/invoices", "admin-1", gin.H{
		"type":             "guest",
		"submitterUserId":  "sub-1",
		"imported":         true,
		"paidDate":         "2024-02-15",
		"paymentReference": "TRX-1",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	w = do(t, s, http.MethodGet, "/api/reports/payments.xlsx?from=2024-02-01&to=2024-02-29", "fin-1", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Contains(t, w.Header().Get("Content-Disposition"), "payments_2024-02-01_2024-02-29.xlsx")

	f, err := excelize.OpenReader(bytes.NewReader(w.Body.Bytes()))
	require.NoError(t, err)
	defer f.Close()
	rows, err := f.GetRows("Payments")
	require.NoError(t, err)
	assert.Len(t, rows, 2)

	w = do(t, s, http.MethodGet, "/api/reports/payments.xlsx?from=2024-02-01&to=2024-02-29", "mgr-1", nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = do(t, s, http.MethodGet, "/api/reports/payments.xlsx?from=2024-02-01", "fin-1", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestParseDay(t *testing.T) {
	h := NewHandlers(Dependencies{Location: time.UTC, Logger: nopLogger{}})

	d, err := h.parseDay("2024-03-01", "date")
	require.NoError(t, err)
	require.NotNil(t, d)
	assert.Equal(t, "2024-03-01", d.Format(entity.DateLayout))

	d, err = h.parseDay("  ", "date")
	require.NoError(t, err)
	assert.Nil(t, d)

	_, err = h.parseDay("2024-13-01", "date")
	assert.Error(t, err)
}
