package handlers_test

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/charlesng35/invoicereminder/internal/handlers/testutil"
)

type paymentPayload struct {
	InvoiceNumber string `json:"invoice_number"`
	ClientName    string `json:"client_name"`
	Status        string `json:"status"`
	AlreadyPaid   bool   `json:"already_paid"`
}

func TestPaymentLinkConfirmsOnce(t *testing.T) {
	env := testutil.NewEnv(t)
	owner := testutil.NewOwner()
	created := createInvoice(t, env, owner, "INV-400", today().AddDate(0, 0, 7))
	token := env.PaymentToken(created.ID)

	// the payment link is public, no owner header
	resp := env.Request(http.MethodGet, "/api/pay/"+token, nil, "")
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())
	var first paymentPayload
	testutil.DecodeInto(t, testutil.DecodeResponse(t, resp).Data, &first)
	require.Equal(t, "INV-400", first.InvoiceNumber)
	require.Equal(t, "Acme Corp", first.ClientName)
	require.Equal(t, "paid", first.Status)
	require.False(t, first.AlreadyPaid)

	resp = env.Request(http.MethodGet, "/api/pay/"+token, nil, "")
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())
	var second paymentPayload
	testutil.DecodeInto(t, testutil.DecodeResponse(t, resp).Data, &second)
	require.True(t, second.AlreadyPaid)

	resp = env.Request(http.MethodGet, "/api/reminders/invoice/"+created.ID, nil, owner)
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())
	var reminders struct {
		Summary struct {
			Total     int `json:"total"`
			Cancelled int `json:"cancelled"`
		} `json:"summary"`
	}
	testutil.DecodeInto(t, testutil.DecodeResponse(t, resp).Data, &reminders)
	require.Equal(t, 3, reminders.Summary.Total)
	require.Equal(t, 3, reminders.Summary.Cancelled)
}

func TestPaymentLinkUnknownToken(t *testing.T) {
	env := testutil.NewEnv(t)

	resp := env.Request(http.MethodGet, "/api/pay/does-not-exist", nil, "")
	require.Equal(t, http.StatusNotFound, resp.Code, resp.Body.String())
	require.Equal(t, "invoice.invalid_payment_link", testutil.DecodeResponse(t, resp).Error.Code)
	require.NotEmpty(t, resp.Header().Get("X-RateLimit-Limit"))
}
