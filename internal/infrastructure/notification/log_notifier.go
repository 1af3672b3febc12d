package notification

import (
	"context"

	"github.com/garyjia/invoice-workflow/internal/application/port"
	"github.com/garyjia/invoice-workflow/internal/domain/entity"
	"github.com/garyjia/invoice-workflow/internal/domain/workflow"
	"go.uber.org/zap"
)

// LogNotifier writes notifications to the log instead of delivering them.
// It is the default driver for local runs.
type LogNotifier struct {
	logger *zap.Logger
}

// NewLogNotifier creates a new LogNotifier
func NewLogNotifier(logger *zap.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

// Notify implements port.Notifier
func (n *LogNotifier) Notify(ctx context.Context, kind workflow.NotificationKind, recipients []*entity.User, ic port.InvoiceContext) error {
	body := Render(kind, ic)
	for _, r := range recipients {
		n.logger.Info("Notification",
			zap.String("kind", string(kind)),
			zap.Int64("invoice_id", ic.InvoiceID),
			zap.String("recipient", r.ID),
			zap.String("body", body))
	}
	return nil
}

var _ port.Notifier = (*LogNotifier)(nil)
