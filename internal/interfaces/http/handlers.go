package http

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/garyjia/invoice-workflow/internal/application/port"
	appwf "github.com/garyjia/invoice-workflow/internal/application/workflow"
	"github.com/garyjia/invoice-workflow/internal/domain/entity"
	"github.com/garyjia/invoice-workflow/internal/domain/workflow"
)

// Handlers contains all HTTP request handlers
type Handlers struct {
	deps   Dependencies
	logger Logger
}

// NewHandlers creates a new Handlers instance
func NewHandlers(deps Dependencies) *Handlers {
	return &Handlers{deps: deps, logger: deps.Logger}
}

// HealthResponse represents the health check response
type HealthResponse struct {
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
}

// TransitionRequest is the body of a single transition
type TransitionRequest struct {
	ToStatus         string `json:"toStatus" binding:"required"`
	RejectionReason  string `json:"rejectionReason"`
	PaymentReference string `json:"paymentReference"`
	PaidDate         string `json:"paidDate"`
	ManagerConfirmed bool   `json:"managerConfirmed"`
	AdminComment     string `json:"adminComment"`
}

// BulkTransitionRequest is the body of a bulk transition
type BulkTransitionRequest struct {
	InvoiceIDs []int64 `json:"invoiceIds" binding:"required"`
	TransitionRequest
}

// TransitionResponse is the outcome of a single transition
type TransitionResponse struct {
	OK       bool                  `json:"ok"`
	ToStatus string                `json:"toStatus,omitempty"`
	Workflow *entity.WorkflowState `json:"workflow,omitempty"`
	Error    string                `json:"error,omitempty"`
	Kind     string                `json:"kind,omitempty"`
}

// SubmitRequest is the body of an invoice submission or guest import
type SubmitRequest struct {
	Type             string `json:"type" binding:"required"`
	SubmitterUserID  string `json:"submitterUserId"`
	DepartmentID     string `json:"departmentId"`
	ProgramID        string `json:"programId"`
	Description      string `json:"description"`
	ManagerUserID    string `json:"managerUserId"`
	Imported         bool   `json:"imported"`
	PaidDate         string `json:"paidDate"`
	PaymentReference string `json:"paymentReference"`
}

// ReassignRequest is the body of a manager reassignment
type ReassignRequest struct {
	ManagerUserID string `json:"managerUserId" binding:"required"`
}

// ListInvoicesRequest represents query parameters for listing invoices
type ListInvoicesRequest struct {
	Status    string `form:"status"`
	Submitter string `form:"submitter"`
	Manager   string `form:"manager"`
	Limit     int    `form:"limit"`
	Offset    int    `form:"offset"`
}

// HealthCheck handles GET /health
func (h *Handlers) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, Response{
		Success: true,
		Data: HealthResponse{
			Status:    "healthy",
			Timestamp: time.Now().UTC().Format(time.RFC3339),
		},
	})
}

// Transition handles POST /api/invoices/:id/transition
func (h *Handlers) Transition(c *gin.Context) {
	id, ok := h.invoiceID(c)
	if !ok {
		return
	}

	var body TransitionRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, TransitionResponse{Error: bindingMessage(err), Kind: string(workflow.KindValidation)})
		return
	}
	req, err := toRequest(body)
	if err != nil {
		h.writeTransitionError(c, err)
		return
	}

	result, err := h.deps.Engine.Transition(c.Request.Context(), actorFrom(c), id, req)
	if err != nil {
		h.writeTransitionError(c, err)
		return
	}

	c.JSON(http.StatusOK, TransitionResponse{
		OK:       true,
		ToStatus: result.To.String(),
		Workflow: result.Workflow,
	})
}

// TransitionBulk handles POST /api/invoices/transition-bulk.
// Per-item failures are reported in the body with status 200.
func (h *Handlers) TransitionBulk(c *gin.Context) {
	var body BulkTransitionRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		badRequest(c, err)
		return
	}
	req, err := toRequest(body.TransitionRequest)
	if err != nil {
		h.writeError(c, err)
		return
	}

	result, err := h.deps.Bulk.Apply(c.Request.Context(), actorFrom(c), body.InvoiceIDs, req)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// AllowedTransitions handles GET /api/invoices/:id/transitions
func (h *Handlers) AllowedTransitions(c *gin.Context) {
	id, ok := h.invoiceID(c)
	if !ok {
		return
	}

	targets, err := h.deps.Engine.AllowedTransitions(c.Request.Context(), actorFrom(c), id)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, Response{Success: true, Data: targets})
}

// SubmitInvoice handles POST /api/invoices
func (h *Handlers) SubmitInvoice(c *gin.Context) {
	var body SubmitRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		badRequest(c, err)
		return
	}

	paid, err := h.parseDay(body.PaidDate, "paidDate")
	if err != nil {
		h.writeError(c, err)
		return
	}

	view, err := h.deps.Engine.Submit(c.Request.Context(), actorFrom(c), appwf.SubmitCommand{
		Type:             entity.InvoiceType(strings.TrimSpace(body.Type)),
		SubmitterUserID:  body.SubmitterUserID,
		DepartmentID:     body.DepartmentID,
		ProgramID:        body.ProgramID,
		Description:      body.Description,
		ManagerUserID:    body.ManagerUserID,
		Imported:         body.Imported,
		PaidDate:         paid,
		PaymentReference: body.PaymentReference,
	})
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, Response{Success: true, Data: view})
}

// ReassignManager handles PUT /api/invoices/:id/manager
func (h *Handlers) ReassignManager(c *gin.Context) {
	id, ok := h.invoiceID(c)
	if !ok {
		return
	}

	var body ReassignRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		badRequest(c, err)
		return
	}

	wf, err := h.deps.Engine.ReassignManager(c.Request.Context(), actorFrom(c), id, body.ManagerUserID)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, Response{Success: true, Data: wf})
}

// GetInvoice handles GET /api/invoices/:id
func (h *Handlers) GetInvoice(c *gin.Context) {
	id, ok := h.invoiceID(c)
	if !ok {
		return
	}

	view, err := h.deps.Invoices.Get(c.Request.Context(), id)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, Response{Success: true, Data: view})
}

// ListInvoices handles GET /api/invoices
func (h *Handlers) ListInvoices(c *gin.Context) {
	var q ListInvoicesRequest
	if err := c.ShouldBindQuery(&q); err != nil {
		badRequest(c, err)
		return
	}

	views, err := h.deps.Invoices.List(c.Request.Context(), port.InvoiceFilter{
		Status:          q.Status,
		SubmitterUserID: q.Submitter,
		ManagerUserID:   q.Manager,
		Limit:           q.Limit,
		Offset:          q.Offset,
	})
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, Response{Success: true, Data: views})
}

// GetAuditTrail handles GET /api/invoices/:id/audit
func (h *Handlers) GetAuditTrail(c *gin.Context) {
	id, ok := h.invoiceID(c)
	if !ok {
		return
	}

	events, err := h.deps.Invoices.AuditTrail(c.Request.Context(), id)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, Response{Success: true, Data: events})
}

func (h *Handlers) writeTransitionError(c *gin.Context, err error) {
	status, kind, msg := classify(err)
	if status == http.StatusInternalServerError {
		h.logger.Error("Transition failed", "path", c.Request.URL.Path, "error", err)
	}
	c.JSON(status, TransitionResponse{OK: false, Error: msg, Kind: kind})
}

func (h *Handlers) invoiceID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, Response{Error: "invalid invoice id", Kind: string(workflow.KindValidation)})
		return 0, false
	}
	return id, true
}

// parseDay parses an optional YYYY-MM-DD field in the configured location
func (h *Handlers) parseDay(value, field string) (*time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil, nil
	}
	d, err := time.ParseInLocation(entity.DateLayout, value, h.location())
	if err != nil {
		return nil, workflow.Validation(field + " must be a YYYY-MM-DD date")
	}
	return &d, nil
}

func toRequest(body TransitionRequest) (workflow.Request, error) {
	to := workflow.Status(strings.TrimSpace(body.ToStatus))
	req := workflow.Request{
		To:               to,
		RejectionReason:  body.RejectionReason,
		PaymentReference: body.PaymentReference,
		ManagerConfirmed: body.ManagerConfirmed,
		AdminComment:     body.AdminComment,
	}
	if v := strings.TrimSpace(body.PaidDate); v != "" {
		d, err := entity.ParseDate(v)
		if err != nil {
			return req, workflow.Validation("paidDate must be a YYYY-MM-DD date")
		}
		req.PaidDate = &d
	}
	return req, nil
}
