package maintenance

import (
	"context"
	"testing"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	testutil "github.com/charlesng35/invoicereminder/internal/database/testutil"
	"github.com/charlesng35/invoicereminder/internal/models"
	"github.com/charlesng35/invoicereminder/internal/monitoring"
)

func TestMarkOverdue(t *testing.T) {
	db := testutil.MustOpenTestDB(t, testutil.WithAutoMigrate())
	now := time.Date(2024, 2, 10, 15, 0, 0, 0, time.UTC)

	late := seedInvoice(t, db, "INV-LATE", now.AddDate(0, 0, -1), models.InvoiceStatusUnpaid)
	current := seedInvoice(t, db, "INV-CURRENT", now.AddDate(0, 0, 3), models.InvoiceStatusUnpaid)
	paid := seedInvoice(t, db, "INV-PAID", now.AddDate(0, 0, -5), models.InvoiceStatusPaid)

	count, err := MarkOverdue(context.Background(), db, now)
	require.NoError(t, err)
	require.Equal(t, int64(1), count)

	assertStatus := func(id string, expected models.InvoiceStatus) {
		var invoice models.Invoice
		require.NoError(t, db.First(&invoice, "id = ?", id).Error)
		require.Equal(t, expected, invoice.Status)
	}
	assertStatus(late.ID, models.InvoiceStatusOverdue)
	assertStatus(current.ID, models.InvoiceStatusUnpaid)
	assertStatus(paid.ID, models.InvoiceStatusPaid)

	count, err = MarkOverdue(context.Background(), db, now)
	require.NoError(t, err)
	require.Zero(t, count)

	_, err = MarkOverdue(context.Background(), nil, now)
	require.Error(t, err)
}

func TestCleanerRunOnce(t *testing.T) {
	mod, err := monitoring.NewModule(monitoring.Options{DisableGoCollector: true, DisableProcessCollector: true})
	require.NoError(t, err)
	monitoring.SetModule(mod)

	db := testutil.MustOpenTestDB(t, testutil.WithAutoMigrate())

	clock := fixedClock{current: time.Date(2024, 5, 20, 9, 0, 0, 0, time.UTC)}

	invoice := seedInvoice(t, db, "INV-1", clock.Now().AddDate(0, 0, -2), models.InvoiceStatusUnpaid)
	reminder := models.Reminder{
		InvoiceID:     invoice.ID,
		Type:          models.ReminderOnDue,
		ScheduledDate: invoice.DueDate,
		Status:        models.ReminderStatusSent,
	}
	require.NoError(t, db.Create(&reminder).Error)

	stale := models.ReminderAttempt{ReminderID: reminder.ID, Attempt: 1, Outcome: models.AttemptOutcomeFailed}
	fresh := models.ReminderAttempt{ReminderID: reminder.ID, Attempt: 2, Outcome: models.AttemptOutcomeSent}
	require.NoError(t, db.Create(&stale).Error)
	require.NoError(t, db.Create(&fresh).Error)
	require.NoError(t, db.Model(&stale).Update("created_at", clock.Now().AddDate(0, 0, -10)).Error)
	require.NoError(t, db.Model(&fresh).Update("created_at", clock.Now().AddDate(0, 0, -1)).Error)

	c := NewCleaner(db,
		WithNow(clock.Now),
		WithAttemptRetentionDays(7),
		WithCron(cron.New(cron.WithLogger(cron.DiscardLogger))),
	)

	require.NoError(t, c.RunOnce(context.Background()))

	var stored models.Invoice
	require.NoError(t, db.First(&stored, "id = ?", invoice.ID).Error)
	require.Equal(t, models.InvoiceStatusOverdue, stored.Status)

	err = db.First(&models.ReminderAttempt{}, "id = ?", stale.ID).Error
	require.ErrorIs(t, err, gorm.ErrRecordNotFound)
	require.NoError(t, db.First(&models.ReminderAttempt{}, "id = ?", fresh.ID).Error)

	jobs := map[string]monitoring.MaintenanceJobSummary{}
	for _, job := range monitoring.Snapshot().Maintenance.Jobs {
		jobs[job.Job] = job
	}
	require.Equal(t, "success", jobs[jobMarkOverdue].LastStatus)
	require.Equal(t, "success", jobs[jobPruneAttempts].LastStatus)
}

func TestCleanerWithoutDatabaseIsInert(t *testing.T) {
	c := NewCleaner(nil)
	require.NoError(t, c.Start())
	require.NoError(t, c.RunOnce(context.Background()))
	<-c.Stop().Done()
}

func TestCleanerStartRegistersJobs(t *testing.T) {
	db := testutil.MustOpenTestDB(t, testutil.WithAutoMigrate())
	scheduler := cron.New(cron.WithLogger(cron.DiscardLogger))

	c := NewCleaner(db, WithCron(scheduler), WithOverdueSchedule("@every 1h"), WithPruneSchedule("@every 24h"))
	require.NoError(t, c.Start())
	require.Len(t, scheduler.Entries(), 2)
	<-c.Stop().Done()

	bad := NewCleaner(db, WithCron(cron.New()), WithOverdueSchedule("never"))
	require.Error(t, bad.Start())
}

func seedInvoice(t *testing.T, db *gorm.DB, number string, due time.Time, status models.InvoiceStatus) *models.Invoice {
	t.Helper()

	client := models.Client{UserID: "owner-1", Name: "Acme", Email: number + "@acme.test"}
	require.NoError(t, db.Create(&client).Error)

	invoice := &models.Invoice{
		UserID:        "owner-1",
		ClientID:      client.ID,
		InvoiceNumber: number,
		Amount:        decimal.NewFromInt(100),
		DueDate:       due,
		Status:        status,
		PaymentToken:  "token-" + number,
	}
	require.NoError(t, db.Create(invoice).Error)
	return invoice
}

type fixedClock struct {
	current time.Time
}

func (c *fixedClock) Now() time.Time {
	return c.current
}
