package http

import (
	"bytes"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/garyjia/invoice-workflow/internal/application/service"
	"github.com/garyjia/invoice-workflow/internal/domain/entity"
	"github.com/garyjia/invoice-workflow/internal/domain/workflow"
)

// DelegationRequest is the body of a delegation create or update
type DelegationRequest struct {
	DelegatorUserID string `json:"delegatorUserId"`
	DelegateUserID  string `json:"delegateUserId"`
	ValidFrom       string `json:"validFrom"`
	ValidUntil      string `json:"validUntil"`
}

// ListDelegations handles GET /api/delegations
func (h *Handlers) ListDelegations(c *gin.Context) {
	rows, err := h.deps.Delegations.List(c.Request.Context(), actorFrom(c), c.Query("delegator"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, Response{Success: true, Data: rows})
}

// CreateDelegation handles POST /api/delegations
func (h *Handlers) CreateDelegation(c *gin.Context) {
	in, ok := h.bindDelegation(c)
	if !ok {
		return
	}

	d, err := h.deps.Delegations.Create(c.Request.Context(), actorFrom(c), in)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, Response{Success: true, Data: d})
}

// UpdateDelegation handles PUT /api/delegations/:id
func (h *Handlers) UpdateDelegation(c *gin.Context) {
	id, ok := h.delegationID(c)
	if !ok {
		return
	}
	in, ok := h.bindDelegation(c)
	if !ok {
		return
	}

	d, err := h.deps.Delegations.Update(c.Request.Context(), actorFrom(c), id, in)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, Response{Success: true, Data: d})
}

// DeleteDelegation handles DELETE /api/delegations/:id
func (h *Handlers) DeleteDelegation(c *gin.Context) {
	id, ok := h.delegationID(c)
	if !ok {
		return
	}

	if err := h.deps.Delegations.Delete(c.Request.Context(), actorFrom(c), id); err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, Response{Success: true})
}

// ActiveDelegation handles GET /api/delegations/active?delegator=&date=.
// The date defaults to today in the configured location.
func (h *Handlers) ActiveDelegation(c *gin.Context) {
	day := time.Now().In(h.location())
	if raw := c.Query("date"); raw != "" {
		parsed, err := h.parseDay(raw, "date")
		if err != nil {
			h.writeError(c, err)
			return
		}
		day = *parsed
	}

	d, err := h.deps.Delegations.Active(c.Request.Context(), c.Query("delegator"), day)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, Response{Success: true, Data: d})
}

// PaymentReport handles GET /api/reports/payments.xlsx?from=&to=
func (h *Handlers) PaymentReport(c *gin.Context) {
	from, err := h.parseDay(c.Query("from"), "from")
	if err != nil {
		h.writeError(c, err)
		return
	}
	to, err := h.parseDay(c.Query("to"), "to")
	if err != nil {
		h.writeError(c, err)
		return
	}
	if from == nil || to == nil {
		h.writeError(c, workflow.Validation("from and to are required"))
		return
	}

	var buf bytes.Buffer
	if err := h.deps.Reports.PaymentReport(c.Request.Context(), actorFrom(c), *from, *to, &buf); err != nil {
		h.writeError(c, err)
		return
	}

	filename := fmt.Sprintf("payments_%s_%s.xlsx", from.Format(entity.DateLayout), to.Format(entity.DateLayout))
	c.Header("Content-Disposition", `attachment; filename="`+filename+`"`)
	c.Data(http.StatusOK, h.deps.Reports.ContentType(), buf.Bytes())
}

func (h *Handlers) bindDelegation(c *gin.Context) (service.DelegationInput, bool) {
	var body DelegationRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		badRequest(c, err)
		return service.DelegationInput{}, false
	}

	in := service.DelegationInput{
		DelegatorUserID: body.DelegatorUserID,
		DelegateUserID:  body.DelegateUserID,
	}
	from, err := h.parseDay(body.ValidFrom, "validFrom")
	if err != nil {
		h.writeError(c, err)
		return in, false
	}
	until, err := h.parseDay(body.ValidUntil, "validUntil")
	if err != nil {
		h.writeError(c, err)
		return in, false
	}
	if from != nil {
		in.ValidFrom = *from
	}
	if until != nil {
		in.ValidUntil = *until
	}
	return in, true
}

func (h *Handlers) delegationID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, Response{Error: "invalid delegation id", Kind: string(workflow.KindValidation)})
		return 0, false
	}
	return id, true
}

func (h *Handlers) location() *time.Location {
	if h.deps.Location == nil {
		return time.UTC
	}
	return h.deps.Location
}
