// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package dunning

import (
	"bytes"
	"fmt"
	"html/template"
	"strings"
	"time"

	"github.com/licenseops/dunning/internal/models"
	"github.com/licenseops/dunning/internal/services/ledger"
	"github.com/licenseops/dunning/pkg/money"
)

const paidKeyword = "PAGADO"

func formatLine(label, value string) string {
	trimmedLabel := strings.TrimSpace(label)
	trimmedValue := strings.TrimSpace(value)
	if trimmedLabel == "" || trimmedValue == "" {
		return ""
	}
	return fmt.Sprintf("%s: %s", trimmedLabel, trimmedValue)
}

func buildMessage(blocks ...[]string) string {
	out := make([]string, 0, len(blocks))
	for _, lines := range blocks {
		kept := make([]string, 0, len(lines))
		for _, line := range lines {
			if trimmed := strings.TrimSpace(line); trimmed != "" {
				kept = append(kept, trimmed)
			}
		}
		if len(kept) > 0 {
			out = append(out, strings.Join(kept, "\n"))
		}
	}
	return strings.Join(out, "\n\n")
}

func formatDate(t *time.Time, loc *time.Location) string {
	if t == nil || t.IsZero() {
		return ""
	}
	if loc == nil {
		loc = time.UTC
	}
	return t.In(loc).Format(dateLayout)
}

// PaidAcknowledgement is the reply that tells billing a payment was made.
func PaidAcknowledgement(l *models.License) string {
	return paidKeyword + " " + l.LicenseKey
}

type chatTemplate struct {
	License     *models.License
	Summary     ledger.Summary
	Stage       string
	CustomIntro string
	CustomOutro string
	PaymentURL  string
	Location    *time.Location
}

func renderChatMessage(t chatTemplate) string {
	l := t.License

	greeting := "Hola"
	if name := strings.TrimSpace(l.CompanyName); name != "" {
		greeting = "Hola " + name + ","
	}

	details := []string{"Detalle de tu licencia:"}
	details = append(details,
		formatLine("Servicio", l.ServiceName),
		formatLine("Licencia", l.LicenseKey),
		formatLine("Dominio", l.Domain),
		formatLine("Monto", money.Format(t.Summary.BaseDue, l.Currency)),
	)
	if t.Summary.Validity.DaysOverdue > 0 && t.Summary.LateFee.IsPositive() {
		details = append(details, formatLine("Mora", money.Format(t.Summary.LateFee, l.Currency)))
	}
	details = append(details,
		formatLine("Total a pagar", money.Format(t.Summary.TotalDue, l.Currency)),
		formatLine("Fecha de vencimiento", formatDate(ledger.Anchor(l), t.Location)),
	)

	var payment []string
	if url := strings.TrimSpace(t.PaymentURL); url != "" {
		payment = append(payment, "Puedes realizar el pago aquí: "+url)
	}

	outro := strings.TrimSpace(t.CustomOutro)
	if outro == "" {
		outro = fmt.Sprintf("Cuando hayas realizado el pago, responde a este mensaje con %s para registrarlo. ¡Gracias!", PaidAcknowledgement(l))
	}

	return buildMessage(
		[]string{greeting},
		[]string{StageIntro(t.Stage, l.GracePeriodDays), t.CustomIntro},
		details,
		payment,
		[]string{outro},
	)
}

type emailContent struct {
	Subject string
	Text    string
	HTML    string
}

type emailRow struct {
	Label string
	Value string
}

var emailHTML = template.Must(template.New("license").Parse(`<!DOCTYPE html>
<html>
<body style="font-family: Arial, sans-serif; color: #1f2933;">
<h2>{{.Title}}</h2>
<p>Hola {{.Company}},</p>
<p>Este es el resumen de tu licencia:</p>
<table cellpadding="6" style="border-collapse: collapse;">
{{- range .Rows}}
<tr><td style="font-weight: bold;">{{.Label}}</td><td>{{.Value}}</td></tr>
{{- end}}
</table>
{{- if .PaymentURL}}
<p><a href="{{.PaymentURL}}">Realizar el pago</a></p>
{{- end}}
<p>Si ya realizaste el pago, responde con <strong>{{.Ack}}</strong>.</p>
</body>
</html>`))

func licenseRows(l *models.License, s ledger.Summary, loc *time.Location) []emailRow {
	rows := []emailRow{
		{"Licencia", l.LicenseKey},
		{"Servicio", l.ServiceName},
		{"Dominio", l.Domain},
		{"Tarifa", fmt.Sprintf("%s (%s)", money.Format(l.Amount, l.Currency), frequencyLabel(l.Frequency))},
	}
	if s.ProratedAmount.Valid {
		line := money.Format(s.ProratedAmount.Decimal, l.Currency)
		if l.ProratedDays != nil && l.BillingCycleDays != nil {
			line = fmt.Sprintf("%s por %d de %d días", line, *l.ProratedDays, *l.BillingCycleDays)
		}
		rows = append(rows, emailRow{"Prorrateo", line})
	}
	rows = append(rows,
		emailRow{"Próximo pago", formatDate(l.NextPaymentDue, loc)},
		emailRow{"Días de gracia", fmt.Sprintf("%d", l.GracePeriodDays)},
		emailRow{"Mora", lateFeeText(l)},
	)
	if l.OutstandingBalance.Valid {
		rows = append(rows, emailRow{"Saldo pendiente", money.Format(l.OutstandingBalance.Decimal, l.Currency)})
	}
	rows = append(rows,
		emailRow{"Vigencia", validityWindow(l, s.Validity, loc)},
		emailRow{"Estado", string(l.Status)},
	)

	kept := rows[:0]
	for _, row := range rows {
		if strings.TrimSpace(row.Value) != "" {
			kept = append(kept, row)
		}
	}
	return kept
}

func renderLicenseEmail(l *models.License, s ledger.Summary, paymentURL string, loc *time.Location) (emailContent, error) {
	rows := licenseRows(l, s, loc)

	title := "Resumen de licencia " + l.LicenseKey
	lines := make([]string, 0, len(rows))
	for _, row := range rows {
		lines = append(lines, formatLine(row.Label, row.Value))
	}

	var payment []string
	if paymentURL != "" {
		payment = append(payment, "Realiza el pago en: "+paymentURL)
	}

	text := buildMessage(
		[]string{"Hola " + l.CompanyName + ","},
		[]string{"Este es el resumen de tu licencia:"},
		lines,
		payment,
		[]string{"Si ya realizaste el pago, responde con " + PaidAcknowledgement(l) + "."},
	)

	var html bytes.Buffer
	err := emailHTML.Execute(&html, map[string]any{
		"Title":      title,
		"Company":    l.CompanyName,
		"Rows":       rows,
		"PaymentURL": paymentURL,
		"Ack":        PaidAcknowledgement(l),
	})
	if err != nil {
		return emailContent{}, fmt.Errorf("render license email: %w", err)
	}

	return emailContent{Subject: title, Text: text, HTML: html.String()}, nil
}

func frequencyLabel(f models.LicenseFrequency) string {
	switch f {
	case models.FrequencyAnnual:
		return "anual"
	case models.FrequencyMonthly:
		return "mensual"
	default:
		return string(f)
	}
}

func lateFeeText(l *models.License) string {
	switch {
	case l.LateFeeAmount.Valid:
		return money.Format(l.LateFeeAmount.Decimal, l.Currency)
	case l.LateFeePercentage.Valid:
		return fmt.Sprintf("%s%% (%s)", l.LateFeePercentage.Decimal.String(), money.Format(ledger.LateFee(l), l.Currency))
	default:
		return "Sin mora"
	}
}

func validityWindow(l *models.License, v ledger.Validity, loc *time.Location) string {
	start := l.StartDate
	from := formatDate(&start, loc)
	if v.Anchor == nil {
		return "Desde " + from + " sin fecha de fin"
	}
	window := from + " al " + formatDate(v.Anchor, loc)
	if v.GraceEndsAt != nil && l.GracePeriodDays > 0 {
		window += " (gracia hasta " + formatDate(v.GraceEndsAt, loc) + ")"
	}
	return window
}
