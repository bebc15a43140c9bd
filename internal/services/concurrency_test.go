package services

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/charlesng35/invoicereminder/internal/database/testutil"
	"github.com/charlesng35/invoicereminder/internal/models"
)

func TestReminderLifecycleConcurrentOnInvoiceCreatedConverges(t *testing.T) {
	env := newTestEnv(t, testutil.WithFileStorage())
	ctx := context.Background()
	invoice := env.seedInvoice(t, "INV-1", day(2024, time.March, 10))

	var g errgroup.Group
	for i := 0; i < 16; i++ {
		g.Go(func() error {
			return env.lifecycle.OnInvoiceCreated(ctx, invoice)
		})
	}
	require.NoError(t, g.Wait())

	reminders, err := env.store.ListForInvoice(ctx, invoice.ID)
	require.NoError(t, err)
	require.Len(t, reminders, 3)

	seen := map[models.ReminderType]bool{}
	for _, r := range reminders {
		require.False(t, seen[r.Type], "duplicate reminder of type %s", r.Type)
		seen[r.Type] = true
		require.Equal(t, models.ReminderStatusPending, r.Status)
	}
}

func TestReminderStoreConcurrentCreateIfAbsentReturnsSameRow(t *testing.T) {
	env := newTestEnv(t, testutil.WithFileStorage())
	ctx := context.Background()
	invoice := env.seedInvoice(t, "INV-1", day(2024, time.March, 10))

	const callers = 12
	ids := make([]string, callers)
	created := make([]bool, callers)

	var g errgroup.Group
	for i := 0; i < callers; i++ {
		g.Go(func() error {
			reminder, ok, err := env.store.CreateIfAbsent(ctx, invoice, models.ReminderOnDue, invoice.DueDate)
			if err != nil {
				return err
			}
			ids[i] = reminder.ID
			created[i] = ok
			return nil
		})
	}
	require.NoError(t, g.Wait())

	winners := 0
	for i := range ids {
		require.Equal(t, ids[0], ids[i])
		if created[i] {
			winners++
		}
	}
	require.Equal(t, 1, winners)
}

func TestReminderStoreMarkSentRacingCancelEndsInOneTerminalState(t *testing.T) {
	env := newTestEnv(t, testutil.WithFileStorage())
	ctx := context.Background()

	for i := 0; i < 20; i++ {
		invoice := env.seedInvoice(t, fmt.Sprintf("INV-%d", i), day(2024, time.March, 10))
		reminder, _, err := env.store.CreateIfAbsent(ctx, invoice, models.ReminderOnDue, invoice.DueDate)
		require.NoError(t, err)

		var (
			start     = make(chan struct{})
			wg        sync.WaitGroup
			sent      bool
			cancelled int64
			sendErr   error
			cancelErr error
		)
		wg.Add(2)
		go func() {
			defer wg.Done()
			<-start
			sent, sendErr = env.store.MarkSent(ctx, reminder.ID, day(2024, time.March, 10), "<race@test>")
		}()
		go func() {
			defer wg.Done()
			<-start
			cancelled, cancelErr = env.store.CancelAllPending(ctx, invoice.ID)
		}()
		close(start)
		wg.Wait()

		require.NoError(t, sendErr)
		require.NoError(t, cancelErr)
		require.NotEqual(t, sent, cancelled == 1, "exactly one update must win (sent=%v cancelled=%d)", sent, cancelled)

		stored, err := env.store.Get(ctx, reminder.ID)
		require.NoError(t, err)
		if sent {
			require.Equal(t, models.ReminderStatusSent, stored.Status)
			require.NotNil(t, stored.SentDate)

			again, err := env.store.CancelAllPending(ctx, invoice.ID)
			require.NoError(t, err)
			require.Zero(t, again)
			stored, err = env.store.Get(ctx, reminder.ID)
			require.NoError(t, err)
			require.Equal(t, models.ReminderStatusSent, stored.Status)
		} else {
			require.Equal(t, models.ReminderStatusCancelled, stored.Status)
			require.Nil(t, stored.SentDate)
		}
	}
}
