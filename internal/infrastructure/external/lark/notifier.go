package lark

import (
	"context"
	"errors"
	"fmt"

	"github.com/garyjia/invoice-workflow/internal/application/port"
	"github.com/garyjia/invoice-workflow/internal/domain/entity"
	"github.com/garyjia/invoice-workflow/internal/domain/workflow"
	"github.com/garyjia/invoice-workflow/internal/infrastructure/notification"
	"go.uber.org/zap"
)

// Notifier delivers notifications as Lark text messages.
// Recipients without a Lark open_id are skipped.
type Notifier struct {
	sender port.LarkMessageSender
	logger *zap.Logger
}

// NewNotifier creates a new Lark notifier
func NewNotifier(sender port.LarkMessageSender, logger *zap.Logger) *Notifier {
	return &Notifier{sender: sender, logger: logger}
}

// Notify implements port.Notifier
func (n *Notifier) Notify(ctx context.Context, kind workflow.NotificationKind, recipients []*entity.User, ic port.InvoiceContext) error {
	text := notification.Render(kind, ic)

	var errs []error
	for _, r := range recipients {
		if r.LarkOpenID == "" {
			n.logger.Warn("Recipient has no Lark open_id, skipping",
				zap.String("user_id", r.ID),
				zap.String("kind", string(kind)),
				zap.Int64("invoice_id", ic.InvoiceID))
			continue
		}
		if err := n.sender.SendText(ctx, r.LarkOpenID, text); err != nil {
			errs = append(errs, fmt.Errorf("user %s: %w", r.ID, err))
		}
	}
	return errors.Join(errs...)
}

var _ port.Notifier = (*Notifier)(nil)
