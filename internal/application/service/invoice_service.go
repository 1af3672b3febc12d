package service

import (
	"context"
	"fmt"
	"time"

	"github.com/garyjia/invoice-workflow/internal/application/port"
	appwf "github.com/garyjia/invoice-workflow/internal/application/workflow"
	"github.com/garyjia/invoice-workflow/internal/domain/entity"
	"github.com/garyjia/invoice-workflow/internal/domain/workflow"
)

const (
	defaultListLimit = 50
	maxListLimit     = 200
)

// InvoiceService serves read models. It never writes workflow rows.
type InvoiceService struct {
	invoices  port.InvoiceRepository
	workflows port.WorkflowRepository
	audit     *appwf.AuditTrail
}

// NewInvoiceService creates a new InvoiceService
func NewInvoiceService(invoices port.InvoiceRepository, workflows port.WorkflowRepository, audit *appwf.AuditTrail) *InvoiceService {
	return &InvoiceService{invoices: invoices, workflows: workflows, audit: audit}
}

// Get returns an invoice joined with its workflow row
func (s *InvoiceService) Get(ctx context.Context, id int64) (*entity.InvoiceView, error) {
	inv, err := s.invoices.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get invoice: %w", err)
	}
	if inv == nil {
		return nil, workflow.NotFound("Invoice not found").WithInvoice(id)
	}
	wf, err := s.workflows.GetByInvoiceID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get workflow: %w", err)
	}
	if wf == nil {
		return nil, workflow.NotFound("Workflow not found").WithInvoice(id)
	}
	return &entity.InvoiceView{Invoice: inv, Workflow: wf}, nil
}

// List returns a page of invoices
func (s *InvoiceService) List(ctx context.Context, filter port.InvoiceFilter) ([]*entity.InvoiceView, error) {
	if filter.Status != "" && !workflow.Status(filter.Status).IsValid() {
		return nil, workflow.Validation("Unknown status filter: " + filter.Status)
	}
	if filter.Limit <= 0 {
		filter.Limit = defaultListLimit
	}
	if filter.Limit > maxListLimit {
		filter.Limit = maxListLimit
	}
	if filter.Offset < 0 {
		filter.Offset = 0
	}

	views, err := s.invoices.List(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("list invoices: %w", err)
	}
	if views == nil {
		views = []*entity.InvoiceView{}
	}
	return views, nil
}

// AuditTrail returns the audit history of an existing invoice
func (s *InvoiceService) AuditTrail(ctx context.Context, id int64) ([]*entity.AuditEvent, error) {
	inv, err := s.invoices.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get invoice: %w", err)
	}
	if inv == nil {
		return nil, workflow.NotFound("Invoice not found").WithInvoice(id)
	}
	return s.audit.History(ctx, id)
}

// PaidBetween returns report rows for invoices paid within [from, to]
func (s *InvoiceService) PaidBetween(ctx context.Context, from, to time.Time) ([]port.PaymentReportRow, error) {
	if to.Before(from) {
		return nil, workflow.Validation("Report start date must not be after its end date")
	}
	views, err := s.invoices.ListPaidBetween(ctx, from, to)
	if err != nil {
		return nil, fmt.Errorf("list paid invoices: %w", err)
	}

	rows := make([]port.PaymentReportRow, 0, len(views))
	for _, v := range views {
		row := port.PaymentReportRow{
			InvoiceID:       v.Invoice.ID,
			InvoiceType:     string(v.Invoice.Type),
			SubmitterUserID: v.Invoice.SubmitterUserID,
			DepartmentID:    v.Invoice.DepartmentID,
			ProgramID:       v.Invoice.ProgramID,
			Status:          v.Workflow.Status,
		}
		if v.Workflow.PaidDate != nil {
			row.PaidDate = *v.Workflow.PaidDate
		}
		if v.Workflow.PaymentReference != nil {
			row.PaymentReference = *v.Workflow.PaymentReference
		}
		rows = append(rows, row)
	}
	return rows, nil
}
