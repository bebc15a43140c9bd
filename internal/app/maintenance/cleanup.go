package maintenance

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/charlesng35/invoicereminder/internal/models"
	"github.com/charlesng35/invoicereminder/internal/monitoring"
	"github.com/charlesng35/invoicereminder/pkg/logger"
)

const (
	jobMarkOverdue   = "mark_overdue"
	jobPruneAttempts = "prune_attempts"

	defaultAttemptRetentionDays = 90
	defaultOverdueSpec          = "@hourly"
	defaultPruneSpec            = "@daily"
)

// Cleaner coordinates background housekeeping: flagging unpaid invoices past their due date
// as overdue and pruning old delivery attempts.
type Cleaner struct {
	db        *gorm.DB
	cron      *cron.Cron
	now       func() time.Time
	log       *zap.Logger
	retention int

	overdueSchedule string
	pruneSchedule   string
}

// Option customises the Cleaner.
type Option func(*Cleaner)

// WithCron injects a preconfigured cron instance, primarily for testing.
func WithCron(c *cron.Cron) Option {
	return func(cleaner *Cleaner) {
		if c != nil {
			cleaner.cron = c
		}
	}
}

// WithNow overrides the clock used for cleanup comparisons.
func WithNow(now func() time.Time) Option {
	return func(cleaner *Cleaner) {
		if now != nil {
			cleaner.now = now
		}
	}
}

// WithAttemptRetentionDays adjusts how long delivery attempts are kept.
func WithAttemptRetentionDays(days int) Option {
	return func(cleaner *Cleaner) {
		if days > 0 {
			cleaner.retention = days
		}
	}
}

// WithOverdueSchedule overrides the cron specification for the overdue sweep.
func WithOverdueSchedule(spec string) Option {
	return func(cleaner *Cleaner) {
		if spec != "" {
			cleaner.overdueSchedule = spec
		}
	}
}

// WithPruneSchedule overrides the cron specification for attempt pruning.
func WithPruneSchedule(spec string) Option {
	return func(cleaner *Cleaner) {
		if spec != "" {
			cleaner.pruneSchedule = spec
		}
	}
}

// NewCleaner constructs a Cleaner. A nil db disables every job.
func NewCleaner(db *gorm.DB, opts ...Option) *Cleaner {
	cleaner := &Cleaner{
		db:              db,
		now:             func() time.Time { return time.Now().UTC() },
		retention:       defaultAttemptRetentionDays,
		overdueSchedule: defaultOverdueSpec,
		pruneSchedule:   defaultPruneSpec,
		log:             logger.WithModule("maintenance"),
	}

	for _, opt := range opts {
		opt(cleaner)
	}

	if cleaner.cron == nil {
		cleaner.cron = cron.New(cron.WithLogger(cron.DiscardLogger))
	}

	return cleaner
}

// Start registers the housekeeping jobs with the cron scheduler and launches it.
func (c *Cleaner) Start() error {
	if c.db == nil {
		return nil
	}

	if _, err := c.cron.AddFunc(c.overdueSchedule, func() {
		if err := c.markOverdue(context.Background()); err != nil {
			c.log.Warn("overdue sweep failed", zap.Error(err))
		}
	}); err != nil {
		return err
	}

	if _, err := c.cron.AddFunc(c.pruneSchedule, func() {
		if err := c.pruneAttempts(context.Background()); err != nil {
			c.log.Warn("attempt pruning failed", zap.Error(err))
		}
	}); err != nil {
		return err
	}

	c.cron.Start()
	return nil
}

// Stop halts the underlying scheduler, waiting for any running jobs to complete.
func (c *Cleaner) Stop() context.Context {
	if c.cron == nil {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		return ctx
	}
	return c.cron.Stop()
}

// RunOnce executes every job sequentially.
func (c *Cleaner) RunOnce(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if c.db == nil {
		return nil
	}

	var errs error
	errs = multierr.Append(errs, c.markOverdue(ctx))
	errs = multierr.Append(errs, c.pruneAttempts(ctx))
	return errs
}

func (c *Cleaner) markOverdue(ctx context.Context) error {
	start := time.Now()
	count, err := MarkOverdue(ctx, c.db, c.now())
	c.record(jobMarkOverdue, start, err)
	if err == nil && count > 0 {
		c.log.Info("invoices marked overdue", zap.Int64("count", count))
	}
	return err
}

func (c *Cleaner) pruneAttempts(ctx context.Context) error {
	start := time.Now()
	cutoff := c.now().AddDate(0, 0, -c.retention)
	count, err := PruneAttempts(ctx, c.db, cutoff)
	c.record(jobPruneAttempts, start, err)
	if err == nil && count > 0 {
		c.log.Info("delivery attempts pruned", zap.Int64("count", count), zap.Time("cutoff", cutoff))
	}
	return err
}

func (c *Cleaner) record(job string, start time.Time, err error) {
	if err != nil {
		monitoring.RecordMaintenanceRun(job, "failure", err.Error(), time.Since(start))
		return
	}
	monitoring.RecordMaintenanceRun(job, "success", "", time.Since(start))
}

// MarkOverdue flags unpaid invoices whose due date has passed. Paid invoices are never touched.
func MarkOverdue(ctx context.Context, db *gorm.DB, now time.Time) (int64, error) {
	if db == nil {
		return 0, errors.New("mark overdue: db is required")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	result := db.WithContext(ctx).
		Model(&models.Invoice{}).
		Where("status = ? AND due_date < ?", models.InvoiceStatusUnpaid, now.UTC()).
		Update("status", models.InvoiceStatusOverdue)
	if result.Error != nil {
		return 0, fmt.Errorf("mark overdue: %w", result.Error)
	}
	return result.RowsAffected, nil
}

// PruneAttempts removes delivery attempts recorded before cutoff.
func PruneAttempts(ctx context.Context, db *gorm.DB, cutoff time.Time) (int64, error) {
	if db == nil {
		return 0, errors.New("prune attempts: db is required")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	result := db.WithContext(ctx).
		Where("created_at < ?", cutoff.UTC()).
		Delete(&models.ReminderAttempt{})
	if result.Error != nil {
		return 0, fmt.Errorf("prune attempts: %w", result.Error)
	}
	return result.RowsAffected, nil
}
