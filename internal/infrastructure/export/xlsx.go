package export

import (
	"fmt"
	"io"

	"github.com/garyjia/invoice-workflow/internal/application/port"
	"github.com/garyjia/invoice-workflow/internal/domain/entity"
	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"
)

// PaymentSheet is the name of the worksheet holding the payment report
const PaymentSheet = "Payments"

var paymentHeader = []interface{}{
	"Invoice ID", "Type", "Submitter", "Department", "Program",
	"Paid Date", "Payment Reference", "Status",
}

// XLSXExporter renders reports as Excel workbooks
type XLSXExporter struct {
	logger *zap.Logger
}

// NewXLSXExporter creates a new XLSXExporter
func NewXLSXExporter(logger *zap.Logger) *XLSXExporter {
	return &XLSXExporter{logger: logger}
}

// ContentType implements port.ReportExporter
func (e *XLSXExporter) ContentType() string {
	return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
}

// WritePaymentReport writes one header row and one row per payment
func (e *XLSXExporter) WritePaymentReport(w io.Writer, rows []port.PaymentReportRow) error {
	f := excelize.NewFile()
	defer func() {
		if err := f.Close(); err != nil {
			e.logger.Warn("Failed to close workbook", zap.Error(err))
		}
	}()

	if err := f.SetSheetName(f.GetSheetName(0), PaymentSheet); err != nil {
		return fmt.Errorf("failed to name sheet: %w", err)
	}

	if err := f.SetSheetRow(PaymentSheet, "A1", &paymentHeader); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}
	if style, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}}); err == nil {
		_ = f.SetRowStyle(PaymentSheet, 1, 1, style)
	} else {
		e.logger.Warn("Failed to create header style", zap.Error(err))
	}
	if err := f.SetColWidth(PaymentSheet, "A", "H", 18); err != nil {
		e.logger.Warn("Failed to set column width", zap.Error(err))
	}

	for i, r := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		paid := ""
		if !r.PaidDate.IsZero() {
			paid = r.PaidDate.Format(entity.DateLayout)
		}
		values := []interface{}{
			r.InvoiceID,
			r.InvoiceType,
			r.SubmitterUserID,
			r.DepartmentID,
			r.ProgramID,
			paid,
			r.PaymentReference,
			r.Status,
		}
		if err := f.SetSheetRow(PaymentSheet, cell, &values); err != nil {
			return fmt.Errorf("failed to write row %d: %w", i+2, err)
		}
	}

	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("failed to write workbook: %w", err)
	}

	e.logger.Debug("Payment report rendered", zap.Int("rows", len(rows)))
	return nil
}

var _ port.ReportExporter = (*XLSXExporter)(nil)
