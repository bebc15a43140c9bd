package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/charlesng35/invoicereminder/internal/api"
	"github.com/charlesng35/invoicereminder/internal/app"
	"github.com/charlesng35/invoicereminder/internal/app/dispatch"
	"github.com/charlesng35/invoicereminder/internal/app/maintenance"
	"github.com/charlesng35/invoicereminder/internal/database"
	"github.com/charlesng35/invoicereminder/internal/monitoring"
	"github.com/charlesng35/invoicereminder/internal/monitoring/checks"
	"github.com/charlesng35/invoicereminder/internal/notifications"
	"github.com/charlesng35/invoicereminder/internal/notify"
	"github.com/charlesng35/invoicereminder/internal/services"
	"github.com/charlesng35/invoicereminder/pkg/logger"
	"github.com/charlesng35/invoicereminder/pkg/mail"
)

const (
	dbCheckTimeout     = 3 * time.Second
	healthProbeTimeout = 5 * time.Second
)

// runtimeStack bundles long-lived services used by the HTTP server.
type runtimeStack struct {
	DB         *gorm.DB
	Monitoring *monitoring.Module
	Hub        *notifications.Hub
	Gateway    notify.Gateway
	Dispatcher *dispatch.Dispatcher
	Cleaner    *maintenance.Cleaner
	Router     *gin.Engine
}

// bootstrapRuntime initialises the database, reminder services, background jobs and the HTTP router.
func bootstrapRuntime(cfg *app.Config, log *zap.Logger) (*runtimeStack, error) {
	stack := &runtimeStack{}
	var err error
	success := false

	defer func() {
		if !success {
			stack.Shutdown(context.Background(), log)
		}
	}()

	// enable gin debug mod
	if debug, _ := os.LookupEnv("GIN_DEBUG"); debug != "true" {
		gin.SetMode(gin.ReleaseMode)
	}

	stack.DB, err = initialiseDatabase(cfg)
	if err != nil {
		return nil, err
	}

	stack.Monitoring, err = monitoring.NewModule(monitoring.Options{})
	if err != nil {
		return nil, fmt.Errorf("initialise monitoring: %w", err)
	}
	monitoring.SetModule(stack.Monitoring)

	schedulerEnabled := cfg.Reminders.Scheduler.Enabled
	health := stack.Monitoring.Health()
	health.SetProbeTimeout(healthProbeTimeout)
	health.RegisterReadiness(checks.Database(stack.DB, dbCheckTimeout))
	health.RegisterLiveness(checks.Dispatcher(schedulerEnabled, 0))
	health.RegisterLiveness(checks.Maintenance(0))

	policy, err := cfg.Reminders.Policy()
	if err != nil {
		return nil, fmt.Errorf("build reminder schedule: %w", err)
	}

	stack.Hub = notifications.NewHub()

	store, err := services.NewReminderStore(stack.DB)
	if err != nil {
		return nil, fmt.Errorf("initialise reminder store: %w", err)
	}
	lifecycle, err := services.NewReminderLifecycle(stack.DB, store, policy, stack.Hub)
	if err != nil {
		return nil, fmt.Errorf("initialise reminder lifecycle: %w", err)
	}
	clients, err := services.NewClientService(stack.DB)
	if err != nil {
		return nil, fmt.Errorf("initialise client service: %w", err)
	}
	invoices, err := services.NewInvoiceService(stack.DB, clients, lifecycle, stack.Hub)
	if err != nil {
		return nil, fmt.Errorf("initialise invoice service: %w", err)
	}
	queries, err := services.NewReminderQueryService(stack.DB, policy, cfg.Server.PublicURL)
	if err != nil {
		return nil, fmt.Errorf("initialise reminder query service: %w", err)
	}

	stack.Gateway, err = selectGateway(cfg)
	if err != nil {
		return nil, err
	}
	log.Info("reminder gateway selected", zap.String("gateway", stack.Gateway.Name()))

	deps := api.Dependencies{
		Config:     cfg,
		Invoices:   invoices,
		Clients:    clients,
		Queries:    queries,
		Hub:        stack.Hub,
		Monitoring: stack.Monitoring,
	}

	if schedulerEnabled {
		sched := cfg.Reminders.Scheduler
		stack.Dispatcher, err = dispatch.New(stack.DB, store, lifecycle, stack.Gateway,
			dispatch.WithSchedule(sched.Interval),
			dispatch.WithMaxRetries(sched.MaxRetries),
			dispatch.WithRetryBatch(sched.RetryBatch),
			dispatch.WithDueBatch(sched.DueBatch),
			dispatch.WithWorkers(sched.Workers),
			dispatch.WithSendTimeout(sched.SendTimeout),
			dispatch.WithRunOnStart(sched.RunOnStart),
			dispatch.WithPublicURL(cfg.Server.PublicURL),
			dispatch.WithPublisher(stack.Hub),
		)
		if err != nil {
			return nil, fmt.Errorf("initialise dispatcher: %w", err)
		}
		if err := stack.Dispatcher.Start(); err != nil {
			return nil, fmt.Errorf("start dispatcher: %w", err)
		}
		deps.Sweeper = stack.Dispatcher
	} else {
		log.Warn("reminder scheduler disabled; reminders will not be sent")
	}

	maint := cfg.Reminders.Maintenance
	stack.Cleaner = maintenance.NewCleaner(stack.DB,
		maintenance.WithOverdueSchedule(maint.OverdueInterval),
		maintenance.WithPruneSchedule(maint.PruneInterval),
		maintenance.WithAttemptRetentionDays(maint.AttemptRetentionDays),
	)
	if err := stack.Cleaner.Start(); err != nil {
		return nil, fmt.Errorf("start maintenance jobs: %w", err)
	}

	stack.Router, err = api.NewRouter(deps)
	if err != nil {
		return nil, fmt.Errorf("build api router: %w", err)
	}

	success = true
	return stack, nil
}

// selectGateway returns the SMTP gateway when email delivery is configured and the no-op
// gateway otherwise.
func selectGateway(cfg *app.Config) (notify.Gateway, error) {
	if !cfg.DeliversEmail() {
		return notify.NewNoopGateway(), nil
	}

	mailer, err := mail.NewSMTPMailer(cfg.Email.SMTPSettings())
	if err != nil {
		return nil, fmt.Errorf("initialise smtp mailer: %w", err)
	}
	gateway, err := notify.NewEmailGateway(mailer, cfg.Reminders.Delivery.FromName)
	if err != nil {
		return nil, fmt.Errorf("initialise email gateway: %w", err)
	}
	return gateway, nil
}

// Shutdown gracefully stops background jobs and releases resources.
func (s *runtimeStack) Shutdown(ctx context.Context, log *zap.Logger) {
	if s == nil {
		return
	}

	if s.Dispatcher != nil {
		waitFor(ctx, s.Dispatcher.Stop())
	}

	if s.Cleaner != nil {
		waitFor(ctx, s.Cleaner.Stop())
		if err := s.Cleaner.RunOnce(ctx); err != nil {
			log.Warn("maintenance shutdown cleanup failed", zap.Error(err))
		}
	}

	if s.DB != nil {
		closeDatabase(s.DB, log)
	}
}

// waitFor blocks until a cron stop context is done or the shutdown deadline passes.
func waitFor(ctx, done context.Context) {
	if done == nil {
		return
	}
	select {
	case <-done.Done():
	case <-ctx.Done():
	}
}

func initialiseDatabase(cfg *app.Config) (*gorm.DB, error) {
	dbCfg := cfg.Database.Connection()
	db, err := database.Open(dbCfg)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if err := database.Migrate(db); err != nil {
		closeErr := closeSQL(db)
		return nil, multierr.Append(fmt.Errorf("migrate database: %w", err), closeErr)
	}

	log := logger.WithModule("database")
	log.Info("database connected", zap.String("driver", strings.ToLower(strings.TrimSpace(dbCfg.Driver))))

	return db, nil
}

func closeSQL(db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func closeDatabase(db *gorm.DB, log *zap.Logger) {
	if db == nil {
		return
	}

	if err := closeSQL(db); err != nil {
		log.Warn("failed to close database", zap.Error(err))
	}
}
