package service

import (
	"context"
	"io"
	"time"

	"github.com/garyjia/invoice-workflow/internal/application/port"
	"github.com/garyjia/invoice-workflow/internal/domain/entity"
	"github.com/garyjia/invoice-workflow/internal/domain/workflow"
)

// ReportService renders read-only reports for admins and finance
type ReportService struct {
	invoices *InvoiceService
	exporter port.ReportExporter
	logger   Logger
}

// NewReportService creates a new ReportService
func NewReportService(invoices *InvoiceService, exporter port.ReportExporter, logger Logger) *ReportService {
	return &ReportService{invoices: invoices, exporter: exporter, logger: logger}
}

// ContentType returns the MIME type of rendered reports
func (s *ReportService) ContentType() string {
	return s.exporter.ContentType()
}

// PaymentReport writes the payments made within [from, to] to w
func (s *ReportService) PaymentReport(ctx context.Context, actor entity.Actor, from, to time.Time, w io.Writer) error {
	if actor.Role != entity.RoleAdmin && actor.Role != entity.RoleFinance {
		return workflow.PermissionDenied("Only administrators and finance can export payment reports")
	}

	rows, err := s.invoices.PaidBetween(ctx, from, to)
	if err != nil {
		return err
	}

	if err := s.exporter.WritePaymentReport(w, rows); err != nil {
		s.logger.Error("Failed to render payment report", "error", err, "rows", len(rows))
		return err
	}

	s.logger.Info("Payment report exported",
		"actor_user_id", actor.ID,
		"from", from.Format(entity.DateLayout),
		"to", to.Format(entity.DateLayout),
		"rows", len(rows),
	)
	return nil
}
