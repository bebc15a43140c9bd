package handlers_test

import (
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/charlesng35/invoicereminder/internal/handlers/testutil"
)

type invoicePayload struct {
	ID            string `json:"id"`
	InvoiceNumber string `json:"invoice_number"`
	ClientName    string `json:"client_name"`
	ClientEmail   string `json:"client_email"`
	Amount        string `json:"amount"`
	DueDate       string `json:"due_date"`
	Status        string `json:"status"`
	Reminders     []struct {
		ID     string `json:"id"`
		Type   string `json:"type"`
		Status string `json:"status"`
	} `json:"reminders"`
}

func createInvoice(t *testing.T, env *testutil.Env, owner, number string, due time.Time) invoicePayload {
	t.Helper()

	resp := env.Request(http.MethodPost, "/api/invoices", map[string]any{
		"client_name":    "Acme Corp",
		"client_email":   "billing@acme.test",
		"invoice_number": number,
		"amount":         125.5,
		"due_date":       due.Format("2006-01-02"),
	}, owner)
	require.Equal(t, http.StatusCreated, resp.Code, resp.Body.String())

	var invoice invoicePayload
	testutil.DecodeInto(t, testutil.DecodeResponse(t, resp).Data, &invoice)
	return invoice
}

func today() time.Time {
	return time.Now().UTC().Truncate(24 * time.Hour)
}

func TestInvoiceLifecycleEndpoints(t *testing.T) {
	env := testutil.NewEnv(t)
	owner := testutil.NewOwner()

	due := today().AddDate(0, 0, 10)
	created := createInvoice(t, env, owner, "INV-100", due)
	require.NotEmpty(t, created.ID)
	require.Equal(t, "unpaid", created.Status)
	require.Equal(t, "Acme Corp", created.ClientName)
	require.Equal(t, "125.5", created.Amount)
	require.Equal(t, due.Format("2006-01-02"), created.DueDate)
	require.Len(t, created.Reminders, 3)
	for _, reminder := range created.Reminders {
		require.Equal(t, "pending", reminder.Status)
	}

	resp := env.Request(http.MethodGet, "/api/invoices/"+created.ID, nil, owner)
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())

	resp = env.Request(http.MethodGet, "/api/invoices?status=unpaid", nil, owner)
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())
	list := testutil.DecodeResponse(t, resp)
	require.NotNil(t, list.Meta)
	require.Equal(t, 1, list.Meta.Total)
	var invoices []invoicePayload
	testutil.DecodeInto(t, list.Data, &invoices)
	require.Len(t, invoices, 1)

	resp = env.Request(http.MethodPatch, "/api/invoices/"+created.ID+"/mark-paid", nil, owner)
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())
	var paid invoicePayload
	testutil.DecodeInto(t, testutil.DecodeResponse(t, resp).Data, &paid)
	require.Equal(t, "paid", paid.Status)
	for _, reminder := range paid.Reminders {
		require.Equal(t, "cancelled", reminder.Status)
	}

	resp = env.Request(http.MethodPatch, "/api/invoices/"+created.ID+"/mark-paid", nil, owner)
	require.Equal(t, http.StatusBadRequest, resp.Code, resp.Body.String())
	require.Equal(t, "invoice.already_paid", testutil.DecodeResponse(t, resp).Error.Code)
}

func TestCreateInvoiceValidation(t *testing.T) {
	env := testutil.NewEnv(t)
	owner := testutil.NewOwner()

	cases := map[string]map[string]any{
		"missing email": {
			"invoice_number": "INV-1",
			"amount":         10,
			"due_date":       "2030-01-01",
		},
		"zero amount": {
			"client_email":   "a@b.test",
			"invoice_number": "INV-1",
			"amount":         0,
			"due_date":       "2030-01-01",
		},
		"bad due date": {
			"client_email":   "a@b.test",
			"invoice_number": "INV-1",
			"amount":         10,
			"due_date":       "01/01/2030",
		},
	}

	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			resp := env.Request(http.MethodPost, "/api/invoices", body, owner)
			require.Equal(t, http.StatusBadRequest, resp.Code, resp.Body.String())
			require.False(t, testutil.DecodeResponse(t, resp).Success)
		})
	}
}

func TestInvoicesAreScopedToOwner(t *testing.T) {
	env := testutil.NewEnv(t)
	owner := testutil.NewOwner()
	created := createInvoice(t, env, owner, "INV-200", today().AddDate(0, 0, 5))

	resp := env.Request(http.MethodGet, "/api/invoices/"+created.ID, nil, testutil.NewOwner())
	require.Equal(t, http.StatusNotFound, resp.Code, resp.Body.String())
	require.Equal(t, "invoice.not_found", testutil.DecodeResponse(t, resp).Error.Code)

	resp = env.Request(http.MethodGet, "/api/invoices/"+created.ID, nil, "")
	require.Equal(t, http.StatusUnauthorized, resp.Code, resp.Body.String())
}

func TestDeleteInvoice(t *testing.T) {
	env := testutil.NewEnv(t)
	owner := testutil.NewOwner()
	created := createInvoice(t, env, owner, "INV-300", today().AddDate(0, 0, 5))

	resp := env.Request(http.MethodDelete, "/api/invoices/"+created.ID, nil, owner)
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())

	resp = env.Request(http.MethodGet, "/api/invoices/"+created.ID, nil, owner)
	require.Equal(t, http.StatusNotFound, resp.Code, resp.Body.String())

	resp = env.Request(http.MethodGet, "/api/reminders/invoice/"+created.ID, nil, owner)
	require.Equal(t, http.StatusNotFound, resp.Code, resp.Body.String())
}

func TestInvoiceListRejectsUnknownStatus(t *testing.T) {
	env := testutil.NewEnv(t)

	resp := env.Request(http.MethodGet, "/api/invoices?status=draft", nil, testutil.NewOwner())
	require.Equal(t, http.StatusBadRequest, resp.Code, resp.Body.String())
}
