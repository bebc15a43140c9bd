package schedule

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/charlesng35/invoicereminder/internal/models"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestOccurrencesDefaultCadence(t *testing.T) {
	occ := DefaultPolicy().Occurrences(date(2024, time.March, 10))

	require.Equal(t, []Occurrence{
		{Type: models.ReminderBeforeDue, ScheduledDate: date(2024, time.March, 7)},
		{Type: models.ReminderOnDue, ScheduledDate: date(2024, time.March, 10)},
		{Type: models.ReminderAfterDue, ScheduledDate: date(2024, time.March, 13)},
	}, occ)
}

func TestOccurrencesCrossMonthBoundary(t *testing.T) {
	occ := DefaultPolicy().Occurrences(date(2024, time.March, 1))

	require.Equal(t, date(2024, time.February, 27), occ[0].ScheduledDate)
	require.Equal(t, date(2024, time.March, 4), occ[2].ScheduledDate)
}

func TestOccurrencesIsPure(t *testing.T) {
	policy := DefaultPolicy()
	due := date(2024, time.June, 15)
	require.Equal(t, policy.Occurrences(due), policy.Occurrences(due))
}

func TestScheduledDate(t *testing.T) {
	policy := DefaultPolicy()

	got, err := policy.ScheduledDate(models.ReminderAfterDue, date(2024, time.March, 10))
	require.NoError(t, err)
	require.Equal(t, date(2024, time.March, 13), got)

	_, err = policy.ScheduledDate("weekly", date(2024, time.March, 10))
	require.True(t, errors.Is(err, ErrUnknownType))
}

func TestNewPolicyCustomOffsets(t *testing.T) {
	policy, err := NewPolicy(map[models.ReminderType]Offset{
		models.ReminderOnDue:    {Days: 0, Label: "Due"},
		models.ReminderAfterDue: {Days: 7, Label: "Week Late"},
	})
	require.NoError(t, err)

	occ := policy.Occurrences(date(2024, time.March, 10))
	require.Len(t, occ, 2)
	require.Equal(t, models.ReminderOnDue, occ[0].Type)
	require.Equal(t, date(2024, time.March, 17), occ[1].ScheduledDate)

	_, err = policy.ScheduledDate(models.ReminderBeforeDue, date(2024, time.March, 10))
	require.ErrorIs(t, err, ErrUnknownType)
}

func TestNewPolicyRejectsUnknownType(t *testing.T) {
	_, err := NewPolicy(map[models.ReminderType]Offset{"weekly": {Days: 7}})
	require.ErrorIs(t, err, ErrUnknownType)
}

func TestLabelFallsBackToType(t *testing.T) {
	policy := DefaultPolicy()
	require.Equal(t, "Before Due", policy.Label(models.ReminderBeforeDue))
	require.Equal(t, "weekly", policy.Label("weekly"))
}

func TestTypesExposeMetadata(t *testing.T) {
	types := DefaultPolicy().Types()
	require.Len(t, types, 3)
	require.Equal(t, "On the day the invoice is due", types[1].Description)
	require.Equal(t, 3, types[2].Days)
}
