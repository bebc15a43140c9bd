package models

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm/schema"
)

func TestBaseModelBeforeCreateGeneratesID(t *testing.T) {
	var base BaseModel
	require.NoError(t, base.BeforeCreate(nil))
	require.NotEmpty(t, base.ID)
}

func TestBaseModelBeforeCreateKeepsExistingID(t *testing.T) {
	base := BaseModel{ID: "fixed"}
	require.NoError(t, base.BeforeCreate(nil))
	require.Equal(t, "fixed", base.ID)
}

func TestEmbeddedModelsUseBaseBeforeCreate(t *testing.T) {
	cases := []struct {
		name  string
		model func() *BaseModel
	}{
		{"user", func() *BaseModel {
			u := &User{}
			return &u.BaseModel
		}},
		{"client", func() *BaseModel {
			c := &Client{}
			return &c.BaseModel
		}},
		{"invoice", func() *BaseModel {
			i := &Invoice{}
			return &i.BaseModel
		}},
		{"reminder", func() *BaseModel {
			r := &Reminder{}
			return &r.BaseModel
		}},
		{"reminder_attempt", func() *BaseModel {
			a := &ReminderAttempt{}
			return &a.BaseModel
		}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			base := tc.model()
			require.NoError(t, base.BeforeCreate(nil))
			require.NotEmpty(t, base.ID)
		})
	}
}

func TestReminderTypeValid(t *testing.T) {
	for _, typ := range ReminderTypes {
		require.True(t, typ.Valid(), typ)
	}
	require.False(t, ReminderType("weekly").Valid())
}

func TestReminderIsTerminal(t *testing.T) {
	cases := []struct {
		name     string
		reminder Reminder
		terminal bool
	}{
		{"pending", Reminder{Status: ReminderStatusPending}, false},
		{"sent", Reminder{Status: ReminderStatusSent}, true},
		{"cancelled", Reminder{Status: ReminderStatusCancelled}, true},
		{"failed retriable", Reminder{Status: ReminderStatusFailed, RetryEligible: true}, false},
		{"failed exhausted", Reminder{Status: ReminderStatusFailed}, true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.terminal, tc.reminder.IsTerminal())
		})
	}
}

func TestInvoiceIsPaid(t *testing.T) {
	var nilInvoice *Invoice
	require.False(t, nilInvoice.IsPaid())
	require.False(t, (&Invoice{Status: InvoiceStatusUnpaid}).IsPaid())
	require.True(t, (&Invoice{Status: InvoiceStatusPaid}).IsPaid())
}

func TestIdentifierColumnsAcceptOwnerTags(t *testing.T) {
	cases := []struct {
		model  any
		fields []string
	}{
		{&User{}, []string{"ID"}},
		{&Client{}, []string{"ID", "UserID"}},
		{&Invoice{}, []string{"ID", "UserID", "ClientID"}},
		{&Reminder{}, []string{"ID", "InvoiceID"}},
		{&ReminderAttempt{}, []string{"ID", "ReminderID"}},
	}

	cache := &sync.Map{}
	for _, tc := range cases {
		parsed, err := schema.Parse(tc.model, cache, schema.NamingStrategy{})
		require.NoError(t, err)
		for _, name := range tc.fields {
			field := parsed.LookUpField(name)
			require.NotNil(t, field, "%s.%s", parsed.Name, name)
			require.Equal(t, schema.DataType("varchar(64)"), field.DataType, "%s.%s", parsed.Name, name)
		}
	}
}
