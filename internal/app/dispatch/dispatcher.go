// Package dispatch runs the periodic sweep that delivers due reminders.
package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/charlesng35/invoicereminder/internal/models"
	"github.com/charlesng35/invoicereminder/internal/monitoring"
	"github.com/charlesng35/invoicereminder/internal/notifications"
	"github.com/charlesng35/invoicereminder/internal/notify"
	"github.com/charlesng35/invoicereminder/internal/services"
	"github.com/charlesng35/invoicereminder/pkg/logger"
)

const (
	defaultSchedule    = "*/5 * * * *"
	defaultMaxRetries  = 3
	defaultDueBatch    = 200
	defaultWorkers     = 4
	defaultSendTimeout = 30 * time.Second
)

// ErrTickInProgress is returned when a sweep is requested while another is still running.
var ErrTickInProgress = errors.New("dispatch: a sweep is already running")

// ErrStopped is returned when a sweep is requested after Stop.
var ErrStopped = errors.New("dispatch: dispatcher stopped")

type outcome int

const (
	outcomeSkipped outcome = iota
	outcomeSent
	outcomeFailed
	outcomeExhausted
	outcomeCancelled
)

func (o outcome) String() string {
	switch o {
	case outcomeSent:
		return "sent"
	case outcomeFailed:
		return "failed"
	case outcomeExhausted:
		return "exhausted"
	case outcomeCancelled:
		return "cancelled"
	default:
		return "skipped"
	}
}

// TickReport summarises a single sweep.
type TickReport struct {
	StartedAt  time.Time     `json:"started_at"`
	Duration   time.Duration `json:"duration"`
	Reconciled int           `json:"reconciled"`
	Due        int           `json:"due"`
	Retried    int           `json:"retried"`
	Sent       int           `json:"sent"`
	Failed     int           `json:"failed"`
	Exhausted  int           `json:"exhausted"`
	Cancelled  int           `json:"cancelled"`
	Skipped    int           `json:"skipped"`
}

func (r *TickReport) count(o outcome) {
	switch o {
	case outcomeSent:
		r.Sent++
	case outcomeFailed:
		r.Failed++
	case outcomeExhausted:
		r.Exhausted++
	case outcomeCancelled:
		r.Cancelled++
	default:
		r.Skipped++
	}
}

func (r TickReport) stats() monitoring.DispatchTickStats {
	return monitoring.DispatchTickStats{
		Due:       r.Due,
		Retried:   r.Retried,
		Sent:      r.Sent,
		Failed:    r.Failed,
		Exhausted: r.Exhausted,
		Cancelled: r.Cancelled,
		Skipped:   r.Skipped,
	}
}

// Dispatcher periodically delivers due and retriable reminders through a notification gateway.
type Dispatcher struct {
	db        *gorm.DB
	store     *services.ReminderStore
	lifecycle *services.ReminderLifecycle
	gateway   notify.Gateway
	events    notifications.Publisher
	cron      *cron.Cron
	now       func() time.Time
	log       *zap.Logger

	schedule    string
	maxRetries  int
	retryBatch  int
	dueBatch    int
	workers     int
	sendTimeout time.Duration
	runOnStart  bool
	publicURL   string

	mu      sync.Mutex
	stopped atomic.Bool
}

// Option customises the Dispatcher.
type Option func(*Dispatcher)

// WithCron injects a preconfigured cron instance, primarily for testing.
func WithCron(c *cron.Cron) Option {
	return func(d *Dispatcher) {
		if c != nil {
			d.cron = c
		}
	}
}

// WithNow overrides the clock used to decide which reminders are due.
func WithNow(now func() time.Time) Option {
	return func(d *Dispatcher) {
		if now != nil {
			d.now = now
		}
	}
}

// WithSchedule overrides the cron specification of the sweep.
func WithSchedule(spec string) Option {
	return func(d *Dispatcher) {
		if spec != "" {
			d.schedule = spec
		}
	}
}

// WithMaxRetries bounds how many failed deliveries a reminder may accumulate.
func WithMaxRetries(n int) Option {
	return func(d *Dispatcher) {
		if n > 0 {
			d.maxRetries = n
		}
	}
}

// WithRetryBatch bounds how many failed reminders one sweep retries.
func WithRetryBatch(n int) Option {
	return func(d *Dispatcher) {
		if n > 0 {
			d.retryBatch = n
		}
	}
}

// WithDueBatch bounds how many pending reminders one sweep picks up.
func WithDueBatch(n int) Option {
	return func(d *Dispatcher) {
		if n > 0 {
			d.dueBatch = n
		}
	}
}

// WithWorkers sets how many reminders are delivered concurrently.
func WithWorkers(n int) Option {
	return func(d *Dispatcher) {
		if n > 0 {
			d.workers = n
		}
	}
}

// WithSendTimeout bounds a single gateway call.
func WithSendTimeout(timeout time.Duration) Option {
	return func(d *Dispatcher) {
		if timeout > 0 {
			d.sendTimeout = timeout
		}
	}
}

// WithRunOnStart triggers one sweep as soon as Start is called.
func WithRunOnStart(enabled bool) Option {
	return func(d *Dispatcher) {
		d.runOnStart = enabled
	}
}

// WithPublicURL sets the base URL payment links are built from.
func WithPublicURL(url string) Option {
	return func(d *Dispatcher) {
		d.publicURL = url
	}
}

// WithPublisher forwards delivery events to realtime subscribers.
func WithPublisher(p notifications.Publisher) Option {
	return func(d *Dispatcher) {
		d.events = p
	}
}

// New constructs a Dispatcher.
func New(db *gorm.DB, store *services.ReminderStore, lifecycle *services.ReminderLifecycle, gateway notify.Gateway, opts ...Option) (*Dispatcher, error) {
	if db == nil {
		return nil, errors.New("dispatch: db is required")
	}
	if store == nil {
		return nil, errors.New("dispatch: reminder store is required")
	}
	if gateway == nil {
		return nil, errors.New("dispatch: gateway is required")
	}

	d := &Dispatcher{
		db:          db,
		store:       store,
		lifecycle:   lifecycle,
		gateway:     gateway,
		now:         func() time.Time { return time.Now().UTC() },
		schedule:    defaultSchedule,
		maxRetries:  defaultMaxRetries,
		retryBatch:  services.DefaultRetryBatch,
		dueBatch:    defaultDueBatch,
		workers:     defaultWorkers,
		sendTimeout: defaultSendTimeout,
		log:         logger.WithModule("dispatch"),
	}
	for _, opt := range opts {
		opt(d)
	}

	if d.cron == nil {
		d.cron = cron.New(
			cron.WithLogger(cron.DiscardLogger),
			cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)),
		)
	}
	return d, nil
}

// Start registers the sweep with the cron scheduler and launches it.
func (d *Dispatcher) Start() error {
	if _, err := d.cron.AddFunc(d.schedule, d.scheduledRun); err != nil {
		return fmt.Errorf("dispatch: register schedule %q: %w", d.schedule, err)
	}
	d.cron.Start()

	if d.runOnStart {
		go d.scheduledRun()
	}
	d.log.Info("reminder dispatcher started",
		zap.String("schedule", d.schedule),
		zap.Int("max_retries", d.maxRetries),
		zap.String("gateway", d.gateway.Name()),
	)
	return nil
}

// Stop halts the scheduler and refuses further sweeps. The returned context is done once
// every running sweep completes, including eager and manually triggered ones.
func (d *Dispatcher) Stop() context.Context {
	d.stopped.Store(true)

	var cronDone context.Context
	if d.cron != nil {
		cronDone = d.cron.Stop()
	}

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		if cronDone != nil {
			<-cronDone.Done()
		}
		d.mu.Lock()
		cancel()
		d.mu.Unlock()
	}()
	return ctx
}

// RunOnce executes a single sweep and returns the aggregated per-reminder errors.
func (d *Dispatcher) RunOnce(ctx context.Context) error {
	_, err := d.Tick(ctx)
	return err
}

// Tick runs one sweep: reconcile missing reminders, then deliver every due and retriable one.
// A failure on one reminder never stops the others.
func (d *Dispatcher) Tick(ctx context.Context) (TickReport, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if !d.mu.TryLock() {
		return TickReport{}, ErrTickInProgress
	}
	defer d.mu.Unlock()
	if d.stopped.Load() {
		return TickReport{}, ErrStopped
	}

	now := d.now()
	started := time.Now()
	report := TickReport{StartedAt: now}

	var errs error
	if d.lifecycle != nil {
		created, err := d.lifecycle.Reconcile(ctx)
		report.Reconciled = created
		errs = multierr.Append(errs, err)
	}

	batch, due, retried, err := d.collect(ctx, now)
	report.Due, report.Retried = due, retried
	errs = multierr.Append(errs, err)

	var mu sync.Mutex
	group, gctx := errgroup.WithContext(ctx)
	group.SetLimit(d.workers)
	for i := range batch {
		reminder := batch[i]
		group.Go(func() error {
			result, err := d.deliver(gctx, &reminder, now)
			monitoring.RecordReminderDelivery(string(reminder.Type), result.String())

			mu.Lock()
			defer mu.Unlock()
			report.count(result)
			if err != nil {
				d.log.Warn("reminder dispatch failed",
					zap.String("reminder_id", reminder.ID),
					zap.String("invoice_id", reminder.InvoiceID),
					zap.Error(err),
				)
				errs = multierr.Append(errs, fmt.Errorf("reminder %s: %w", reminder.ID, err))
			}
			return nil
		})
	}
	_ = group.Wait()

	report.Duration = time.Since(started)
	status, message := "success", ""
	if errs != nil {
		status, message = "failure", errs.Error()
	}
	monitoring.RecordDispatchTick(status, message, report.stats(), report.Duration)

	if len(batch) > 0 || report.Reconciled > 0 {
		d.log.Info("reminder sweep completed",
			zap.Int("due", report.Due),
			zap.Int("retried", report.Retried),
			zap.Int("sent", report.Sent),
			zap.Int("failed", report.Failed),
			zap.Int("exhausted", report.Exhausted),
			zap.Int("cancelled", report.Cancelled),
			zap.Int("skipped", report.Skipped),
			zap.Duration("duration", report.Duration),
		)
	}
	return report, errs
}

func (d *Dispatcher) scheduledRun() {
	if _, err := d.Tick(context.Background()); err != nil {
		if errors.Is(err, ErrTickInProgress) {
			d.log.Debug("skipping sweep, previous one still running")
			return
		}
		if errors.Is(err, ErrStopped) {
			return
		}
		d.log.Warn("reminder sweep finished with errors", zap.Error(err))
	}
}

// collect returns the union of due and retriable reminders, each reminder at most once.
func (d *Dispatcher) collect(ctx context.Context, now time.Time) ([]models.Reminder, int, int, error) {
	due, err := d.store.FindDue(ctx, now, d.dueBatch)
	if err != nil {
		return nil, 0, 0, err
	}
	retriable, err := d.store.FindRetriable(ctx, now, d.maxRetries, d.retryBatch)
	if err != nil {
		return due, len(due), 0, err
	}

	seen := make(map[string]struct{}, len(due)+len(retriable))
	batch := make([]models.Reminder, 0, len(due)+len(retriable))
	for _, r := range due {
		seen[r.ID] = struct{}{}
		batch = append(batch, r)
	}
	retried := 0
	for _, r := range retriable {
		if _, ok := seen[r.ID]; ok {
			continue
		}
		seen[r.ID] = struct{}{}
		batch = append(batch, r)
		retried++
	}
	return batch, len(due), retried, nil
}

func (d *Dispatcher) deliver(ctx context.Context, reminder *models.Reminder, now time.Time) (outcome, error) {
	if reminder.ScheduledDate.After(now) {
		return outcomeSkipped, nil
	}

	var invoice models.Invoice
	err := d.db.WithContext(ctx).Preload("Client").First(&invoice, "id = ?", reminder.InvoiceID).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		return d.cancelOrphan(ctx, reminder)
	case err != nil:
		return outcomeSkipped, fmt.Errorf("load invoice: %w", err)
	}

	if invoice.IsPaid() {
		return d.cancelPaid(ctx, reminder, &invoice)
	}

	var owner models.User
	if err := d.db.WithContext(ctx).Limit(1).Find(&owner, "id = ?", invoice.UserID).Error; err != nil {
		return outcomeSkipped, fmt.Errorf("load owner: %w", err)
	}

	snap := services.SnapshotFor(reminder, &invoice, &owner, d.publicURL)
	attempt := reminder.RetryCount + 1

	sendCtx, cancel := context.WithTimeout(ctx, d.sendTimeout)
	sendStarted := time.Now()
	result, sendErr := d.gateway.Send(sendCtx, reminder.Type, snap)
	cancel()
	elapsed := time.Since(sendStarted)

	if sendErr == nil {
		monitoring.ObserveGatewayLatency(d.gateway.Name(), "success", elapsed)
		d.recordAttempt(ctx, reminder, attempt, models.AttemptOutcomeSent, result.MessageID, "", snap, elapsed)

		sent, err := d.store.MarkSent(ctx, reminder.ID, d.now(), result.MessageID)
		if err != nil {
			return outcomeSkipped, err
		}
		if !sent {
			return outcomeSkipped, nil
		}
		d.publish(invoice.UserID, notifications.EventReminderSent, reminder, map[string]any{
			"type":       reminder.Type,
			"message_id": result.MessageID,
		})
		return outcomeSent, nil
	}

	monitoring.ObserveGatewayLatency(d.gateway.Name(), "failure", elapsed)
	reason := sendErr.Error()
	d.recordAttempt(ctx, reminder, attempt, models.AttemptOutcomeFailed, "", reason, snap, elapsed)

	if notify.IsPermanent(sendErr) {
		marked, err := d.store.MarkFailedPermanent(ctx, reminder.ID, reason)
		if err != nil {
			return outcomeSkipped, err
		}
		if !marked {
			return outcomeSkipped, nil
		}
		d.publishFailure(invoice.UserID, reminder, reason, attempt, false)
		return outcomeExhausted, nil
	}

	updated, err := d.store.MarkFailed(ctx, reminder.ID, reason, d.maxRetries)
	if err != nil {
		return outcomeSkipped, err
	}
	if updated == nil {
		return outcomeSkipped, nil
	}
	d.publishFailure(invoice.UserID, reminder, reason, updated.RetryCount, updated.RetryEligible)
	if !updated.RetryEligible {
		return outcomeExhausted, nil
	}
	return outcomeFailed, nil
}

func (d *Dispatcher) cancelOrphan(ctx context.Context, reminder *models.Reminder) (outcome, error) {
	cancelled, err := d.store.MarkCancelled(ctx, reminder.ID)
	if err != nil {
		return outcomeSkipped, err
	}
	if !cancelled {
		return outcomeSkipped, nil
	}
	monitoring.RecordRemindersCancelled("orphan", 1)
	d.log.Info("cancelled reminder of deleted invoice",
		zap.String("reminder_id", reminder.ID),
		zap.String("invoice_id", reminder.InvoiceID),
	)
	return outcomeCancelled, nil
}

func (d *Dispatcher) cancelPaid(ctx context.Context, reminder *models.Reminder, invoice *models.Invoice) (outcome, error) {
	var (
		cancelled int64
		err       error
	)
	if d.lifecycle != nil {
		cancelled, err = d.lifecycle.OnInvoicePaid(ctx, invoice.ID)
	} else {
		cancelled, err = d.store.CancelAllPending(ctx, invoice.ID)
	}
	if err != nil {
		return outcomeSkipped, err
	}

	// Reminders of the same invoice in this batch race on the cancel; only report
	// this one as cancelled when it is no longer deliverable.
	current, err := d.store.Get(ctx, reminder.ID)
	if err != nil {
		return outcomeSkipped, err
	}
	if current.Status != models.ReminderStatusCancelled {
		return outcomeSkipped, nil
	}
	if cancelled > 0 {
		d.publish(invoice.UserID, notifications.EventReminderCancelled, reminder, map[string]any{
			"reason": "paid",
			"count":  cancelled,
		})
	}
	return outcomeCancelled, nil
}

func (d *Dispatcher) recordAttempt(ctx context.Context, reminder *models.Reminder, attempt int, result, messageID, reason string, snap notify.Snapshot, elapsed time.Duration) {
	details, err := json.Marshal(map[string]any{
		"gateway":     d.gateway.Name(),
		"recipient":   snap.ClientEmail,
		"duration_ms": elapsed.Milliseconds(),
	})
	if err != nil {
		details = nil
	}

	if err := d.store.RecordAttempt(ctx, &models.ReminderAttempt{
		ReminderID: reminder.ID,
		Attempt:    attempt,
		Outcome:    result,
		MessageID:  messageID,
		Error:      reason,
		Details:    datatypes.JSON(details),
	}); err != nil {
		d.log.Warn("failed to record delivery attempt",
			zap.String("reminder_id", reminder.ID),
			zap.Error(err),
		)
	}
}

func (d *Dispatcher) publishFailure(userID string, reminder *models.Reminder, reason string, retryCount int, willRetry bool) {
	d.publish(userID, notifications.EventReminderFailed, reminder, map[string]any{
		"type":        reminder.Type,
		"reason":      reason,
		"retry_count": retryCount,
		"will_retry":  willRetry,
	})
}

func (d *Dispatcher) publish(userID, event string, reminder *models.Reminder, data map[string]any) {
	if d.events == nil {
		return
	}
	d.events.Publish(userID, notifications.Event{
		Event:      event,
		InvoiceID:  reminder.InvoiceID,
		ReminderID: reminder.ID,
		Data:       data,
	})
}
