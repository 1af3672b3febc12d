package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/garyjia/invoice-workflow/internal/application/dispatcher"
	"github.com/garyjia/invoice-workflow/internal/application/port"
	"github.com/garyjia/invoice-workflow/internal/domain/entity"
	"github.com/garyjia/invoice-workflow/internal/domain/event"
	"github.com/garyjia/invoice-workflow/internal/domain/workflow"
	"github.com/sourcegraph/conc/pool"
)

const defaultNotifyParallelism = 4

// NotificationService turns notification requests into deliveries.
// It resolves audiences to users and fans out to the notifier; delivery
// failures are collected and logged and never reach the workflow.
type NotificationService struct {
	users       port.UserRepository
	notifier    port.Notifier
	logger      Logger
	parallelism int
}

// NotificationOption configures the service
type NotificationOption func(*NotificationService)

// WithParallelism bounds concurrent deliveries per notification
func WithParallelism(n int) NotificationOption {
	return func(s *NotificationService) {
		if n > 0 {
			s.parallelism = n
		}
	}
}

// NewNotificationService creates a new NotificationService
func NewNotificationService(users port.UserRepository, notifier port.Notifier, logger Logger, opts ...NotificationOption) *NotificationService {
	s := &NotificationService{
		users:       users,
		notifier:    notifier,
		logger:      logger,
		parallelism: defaultNotifyParallelism,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Register subscribes the service to notification requests
func (s *NotificationService) Register(d dispatcher.Dispatcher) {
	d.SubscribeNamed(event.TypeNotificationRequested, "notification-service", s.HandleNotificationRequested)
}

// HandleNotificationRequested delivers one requested notification
func (s *NotificationService) HandleNotificationRequested(ctx context.Context, evt *event.Event) error {
	kind := workflow.NotificationKind(evt.GetPayloadString(event.KeyKind))
	if kind == "" {
		return fmt.Errorf("notification event %s has no kind", evt.ID)
	}

	recipients, resolveErr := s.resolveRecipients(ctx, evt)
	if len(recipients) == 0 {
		s.logger.Info("No recipients for notification", "kind", kind, "invoice_id", evt.InvoiceID)
		return resolveErr
	}

	ic := port.InvoiceContext{
		InvoiceID:        evt.InvoiceID,
		InvoiceType:      evt.GetPayloadString(event.KeyInvoiceType),
		SubmitterUserID:  evt.GetPayloadString(event.KeySubmitterUserID),
		ActorUserID:      evt.GetPayloadString(event.KeyActorUserID),
		FromStatus:       evt.GetPayloadString(event.KeyFromStatus),
		ToStatus:         evt.GetPayloadString(event.KeyToStatus),
		RejectionReason:  evt.GetPayloadString(event.KeyRejectionReason),
		PaymentReference: evt.GetPayloadString(event.KeyPaymentRef),
		DaysPending:      int(evt.GetPayloadInt(event.KeyDaysPending)),
	}
	return errors.Join(resolveErr, s.Deliver(ctx, kind, recipients, ic))
}

// Deliver sends the notification to every recipient concurrently and
// returns the joined delivery errors.
func (s *NotificationService) Deliver(ctx context.Context, kind workflow.NotificationKind, recipients []*entity.User, ic port.InvoiceContext) error {
	p := pool.New().WithErrors().WithMaxGoroutines(s.parallelism)
	for _, r := range recipients {
		r := r
		p.Go(func() error {
			if err := s.notifier.Notify(ctx, kind, []*entity.User{r}, ic); err != nil {
				return fmt.Errorf("notify %s: %w", r.ID, err)
			}
			return nil
		})
	}

	err := p.Wait()
	if err != nil {
		s.logger.Error("Notification delivery failed",
			"kind", kind,
			"invoice_id", ic.InvoiceID,
			"recipients", len(recipients),
			"error", err,
		)
		return err
	}

	s.logger.Info("Notification delivered",
		"kind", kind,
		"invoice_id", ic.InvoiceID,
		"recipients", len(recipients),
	)
	return nil
}

// resolveRecipients maps audiences to distinct users, excluding the acting user
func (s *NotificationService) resolveRecipients(ctx context.Context, evt *event.Event) ([]*entity.User, error) {
	actorID := evt.GetPayloadString(event.KeyActorUserID)
	seen := make(map[string]bool)
	var recipients []*entity.User
	var errs []error

	add := func(u *entity.User) {
		if u == nil || u.ID == actorID || seen[u.ID] {
			return
		}
		seen[u.ID] = true
		recipients = append(recipients, u)
	}
	addByID := func(id string) {
		if id == "" {
			return
		}
		u, err := s.users.GetByID(ctx, id)
		if err != nil {
			errs = append(errs, fmt.Errorf("load user %s: %w", id, err))
			return
		}
		if u == nil {
			s.logger.Info("Notification recipient not found", "user_id", id, "invoice_id", evt.InvoiceID)
			return
		}
		add(u)
	}
	addRole := func(role entity.Role) {
		users, err := s.users.ListByRole(ctx, role)
		if err != nil {
			errs = append(errs, fmt.Errorf("list %s users: %w", role, err))
			return
		}
		for _, u := range users {
			add(u)
		}
	}

	for _, audience := range evt.GetPayloadStrings(event.KeyAudiences) {
		switch workflow.Audience(audience) {
		case workflow.AudienceSubmitter:
			addByID(evt.GetPayloadString(event.KeySubmitterUserID))
		case workflow.AudienceManager:
			addByID(evt.GetPayloadString(event.KeyManagerUserID))
			addByID(evt.GetPayloadString(event.KeyDelegateUserID))
		case workflow.AudienceFinance:
			addRole(entity.RoleFinance)
		case workflow.AudienceAdmins:
			addRole(entity.RoleAdmin)
		default:
			s.logger.Info("Unknown notification audience", "audience", audience, "invoice_id", evt.InvoiceID)
		}
	}

	if len(errs) > 0 {
		return recipients, errors.Join(errs...)
	}
	return recipients, nil
}
