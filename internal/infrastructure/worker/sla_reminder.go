package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/garyjia/invoice-workflow/internal/application/port"
	"github.com/garyjia/invoice-workflow/internal/domain/entity"
	"github.com/garyjia/invoice-workflow/internal/domain/event"
	"github.com/garyjia/invoice-workflow/internal/domain/workflow"
	"go.uber.org/zap"
)

// SLAConfig holds configuration for the SLA reminder worker
type SLAConfig struct {
	PollInterval time.Duration
	// SLADays is how long an invoice may wait in pending_manager before reminders start
	SLADays  int
	Location *time.Location
}

// DefaultSLAConfig returns default configuration
func DefaultSLAConfig() SLAConfig {
	return SLAConfig{
		PollInterval: time.Hour,
		SLADays:      5,
		Location:     time.UTC,
	}
}

// EventPublisher is the subset of the dispatcher the worker needs
type EventPublisher interface {
	DispatchAsync(ctx context.Context, evt *event.Event)
}

// DelegateResolver finds the active stand-in of a manager
type DelegateResolver interface {
	ActiveDelegateFor(ctx context.Context, delegatorUserID string, day time.Time) (string, error)
}

// SLAMetrics counts emitted reminders
type SLAMetrics interface {
	ObserveSLAReminder()
}

// SLAReminderWorker reminds managers about invoices waiting too long for
// approval. It never writes workflow state, and reminds at most once per
// invoice per calendar day.
type SLAReminderWorker struct {
	config    SLAConfig
	workflows port.WorkflowRepository
	invoices  port.InvoiceRepository
	resolver  DelegateResolver
	publisher EventPublisher
	metrics   SLAMetrics
	logger    *zap.Logger
	clock     func() time.Time

	mu       sync.Mutex
	cancel   context.CancelFunc
	done     chan struct{}
	reminded map[int64]string
}

// NewSLAReminderWorker creates a new SLA reminder worker. metrics may be nil.
func NewSLAReminderWorker(
	config SLAConfig,
	workflows port.WorkflowRepository,
	invoices port.InvoiceRepository,
	resolver DelegateResolver,
	publisher EventPublisher,
	metrics SLAMetrics,
	logger *zap.Logger,
) *SLAReminderWorker {
	if config.Location == nil {
		config.Location = time.UTC
	}
	if config.PollInterval <= 0 {
		config.PollInterval = DefaultSLAConfig().PollInterval
	}
	return &SLAReminderWorker{
		config:    config,
		workflows: workflows,
		invoices:  invoices,
		resolver:  resolver,
		publisher: publisher,
		metrics:   metrics,
		logger:    logger,
		clock:     time.Now,
		reminded:  make(map[int64]string),
	}
}

// Name returns the worker name for identification
func (w *SLAReminderWorker) Name() string {
	return "SLAReminderWorker"
}

// Start runs one pass immediately and then polls in the background
func (w *SLAReminderWorker) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.cancel != nil {
		w.mu.Unlock()
		return errors.New("sla reminder worker already running")
	}
	runCtx, cancel := context.WithCancel(ctx)
	w.cancel = cancel
	w.done = make(chan struct{})
	done := w.done
	w.mu.Unlock()

	w.logger.Info("SLAReminderWorker started",
		zap.Duration("poll_interval", w.config.PollInterval),
		zap.Int("sla_days", w.config.SLADays))

	go w.pollLoop(runCtx, done)
	return nil
}

// Stop cancels the poll loop and waits for it to exit
func (w *SLAReminderWorker) Stop() error {
	w.mu.Lock()
	cancel, done := w.cancel, w.done
	w.cancel, w.done = nil, nil
	w.mu.Unlock()

	if cancel == nil {
		return nil
	}
	cancel()
	<-done
	return nil
}

func (w *SLAReminderWorker) pollLoop(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(w.config.PollInterval)
	defer ticker.Stop()

	for {
		if _, err := w.RunOnce(ctx); err != nil && ctx.Err() == nil {
			w.logger.Error("SLA reminder pass failed", zap.Error(err))
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// RunOnce emits reminders for every overdue invoice and returns how many were sent
func (w *SLAReminderWorker) RunOnce(ctx context.Context) (int, error) {
	today := entity.DateOf(w.clock(), w.config.Location)
	todayKey := today.Format(entity.DateLayout)
	cutoff := today.AddDate(0, 0, -w.config.SLADays)

	rows, err := w.workflows.ListPendingSince(ctx, workflow.StatusPendingManager.String(), cutoff)
	if err != nil {
		return 0, fmt.Errorf("list overdue invoices: %w", err)
	}

	w.mu.Lock()
	overdue := make(map[int64]bool, len(rows))
	for _, row := range rows {
		overdue[row.InvoiceID] = true
	}
	for id := range w.reminded {
		if !overdue[id] {
			delete(w.reminded, id)
		}
	}
	w.mu.Unlock()

	sent := 0
	var errs []error
	for _, row := range rows {
		if ctx.Err() != nil {
			break
		}
		if !w.claim(row.InvoiceID, todayKey) {
			continue
		}
		if err := w.remind(ctx, row, today); err != nil {
			w.release(row.InvoiceID)
			errs = append(errs, fmt.Errorf("invoice %d: %w", row.InvoiceID, err))
			continue
		}
		sent++
	}

	if sent > 0 {
		w.logger.Info("SLA reminders emitted", zap.Int("count", sent), zap.String("date", todayKey))
	}
	return sent, errors.Join(errs...)
}

func (w *SLAReminderWorker) remind(ctx context.Context, row *entity.WorkflowState, today time.Time) error {
	if row.ManagerUserID == nil || *row.ManagerUserID == "" {
		return errors.New("no assigned manager")
	}
	inv, err := w.invoices.GetByID(ctx, row.InvoiceID)
	if err != nil {
		return err
	}
	if inv == nil {
		return errors.New("invoice not found")
	}

	manager := *row.ManagerUserID
	delegate := ""
	if w.resolver != nil {
		if delegate, err = w.resolver.ActiveDelegateFor(ctx, manager, today); err != nil {
			w.logger.Error("Failed to resolve delegate for SLA reminder",
				zap.Int64("invoice_id", row.InvoiceID), zap.Error(err))
			delegate = ""
		}
	}

	days := 0
	if row.PendingManagerSince != nil {
		days = entity.DaysBetween(*row.PendingManagerSince, today)
	}

	payload := map[string]interface{}{
		event.KeySubmitterUserID: inv.SubmitterUserID,
		event.KeyInvoiceType:     string(inv.Type),
		event.KeyManagerUserID:   manager,
		event.KeyDaysPending:     days,
		event.KeyToStatus:        row.Status,
	}
	if delegate != "" {
		payload[event.KeyDelegateUserID] = delegate
	}

	w.publisher.DispatchAsync(ctx, event.NewEvent(event.TypeSLABreached, row.InvoiceID, payload))

	notify := event.NewEvent(event.TypeNotificationRequested, row.InvoiceID, payload).
		WithPayload(event.KeyKind, string(workflow.NotifySLAReminder)).
		WithPayload(event.KeyAudiences, []string{string(workflow.AudienceManager)})
	w.publisher.DispatchAsync(ctx, notify)

	if w.metrics != nil {
		w.metrics.ObserveSLAReminder()
	}
	return nil
}

func (w *SLAReminderWorker) claim(invoiceID int64, day string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.reminded[invoiceID] == day {
		return false
	}
	w.reminded[invoiceID] = day
	return true
}

func (w *SLAReminderWorker) release(invoiceID int64) {
	w.mu.Lock()
	defer w.mu.Unlock()
	delete(w.reminded, invoiceID)
}
