package notify

import (
	"bytes"
	"fmt"
	"html/template"

	"github.com/charlesng35/invoicereminder/internal/models"
)

// Rendered is a fully formatted reminder message.
type Rendered struct {
	Subject string `json:"subject"`
	HTML    string `json:"html"`
}

type messageTemplate struct {
	subject string
	body    *template.Template
}

type templateData struct {
	Snapshot
	ClientGreeting string
	AmountText     string
	DueDateText    string
}

const bodyLayout = `<div style="font-family: Arial, sans-serif; max-width: 600px; margin: 0 auto;">
  <h2>Hi {{.ClientGreeting}},</h2>
  <p>{{template "intro" .}}</p>
  <div style="{{template "panel" .}} padding: 20px; margin: 20px 0; border-radius: 8px;">
    <p style="margin: 5px 0;"><strong>Invoice:</strong> {{.InvoiceNumber}}</p>
    <p style="margin: 5px 0;"><strong>Amount:</strong> ${{.AmountText}}</p>
    <p style="margin: 5px 0;"><strong>Due Date:</strong> {{template "due" .}}</p>
    {{- if .Note}}
    <p style="margin: 5px 0;"><strong>Note:</strong> {{.Note}}</p>
    {{- end}}
  </div>
  <p>{{template "outro" .}}</p>
  <div style="margin: 30px 0;">
    <a href="{{.PaymentLink}}" style="background: #4CAF50; color: white; padding: 12px 30px; text-decoration: none; border-radius: 5px; display: inline-block;">Mark as Paid</a>
  </div>
  <p>{{template "signoff" .}}<br>{{.Sender.Name}}</p>
</div>
`

var templates = map[models.ReminderType]messageTemplate{
	models.ReminderBeforeDue: {
		subject: "Friendly reminder: Invoice %s due soon",
		body: mustBody(`
{{define "intro"}}Just a friendly heads up that your invoice is coming due soon.{{end}}
{{define "panel"}}background: #f5f5f5;{{end}}
{{define "due"}}{{.DueDateText}}{{end}}
{{define "outro"}}If you've already sent payment, please disregard this reminder.{{end}}
{{define "signoff"}}Thanks!{{end}}`),
	},
	models.ReminderOnDue: {
		subject: "Invoice %s is due today",
		body: mustBody(`
{{define "intro"}}This is a quick reminder that your invoice is due today.{{end}}
{{define "panel"}}background: #fff3cd; border-left: 4px solid #ffc107;{{end}}
{{define "due"}}Today{{end}}
{{define "outro"}}If you've already sent payment, thank you! You can mark it as paid using the button below.{{end}}
{{define "signoff"}}Best regards,{{end}}`),
	},
	models.ReminderAfterDue: {
		subject: "Follow-up: Invoice %s is past due",
		body: mustBody(`
{{define "intro"}}I wanted to follow up regarding the invoice below, which is now past its due date.{{end}}
{{define "panel"}}background: #f8d7da; border-left: 4px solid #dc3545;{{end}}
{{define "due"}}{{.DueDateText}}{{end}}
{{define "outro"}}If you've already sent payment, please let me know or mark it as paid below. If you have any questions or need to discuss payment arrangements, feel free to reach out.{{end}}
{{define "signoff"}}Thanks for your attention to this matter.{{end}}`),
	},
}

func mustBody(blocks string) *template.Template {
	return template.Must(template.Must(template.New("body").Parse(bodyLayout)).Parse(blocks))
}

// Render formats the subject and HTML body for a reminder type.
func Render(typ models.ReminderType, snap Snapshot) (Rendered, error) {
	tpl, ok := templates[typ]
	if !ok {
		return Rendered{}, fmt.Errorf("%w: %q", ErrNoTemplate, typ)
	}

	data := templateData{
		Snapshot:       snap,
		ClientGreeting: snap.ClientName,
		AmountText:     snap.Amount.StringFixed(2),
		DueDateText:    "-",
	}
	if data.ClientGreeting == "" {
		data.ClientGreeting = "there"
	}
	if !snap.DueDate.IsZero() {
		data.DueDateText = snap.DueDate.Format("Jan 2, 2006")
	}
	if data.PaymentLink == "" {
		data.PaymentLink = "#"
	}

	var buf bytes.Buffer
	if err := tpl.body.Execute(&buf, data); err != nil {
		return Rendered{}, fmt.Errorf("notify: render %s: %w", typ, err)
	}

	return Rendered{
		Subject: fmt.Sprintf(tpl.subject, snap.InvoiceNumber),
		HTML:    buf.String(),
	}, nil
}
