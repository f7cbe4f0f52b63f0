package notifications

import (
	"context"
	"fmt"
	"html"
	"strings"

	"proptyos-backend/internal/pipeline"
)

// Mailer renders and sends the pipeline's client-facing emails. It satisfies
// the notifier ports of the offers and allocation services.
type Mailer struct {
	client *BrevoClient
}

func NewMailer(client *BrevoClient) *Mailer {
	return &Mailer{client: client}
}

func (m *Mailer) SendOfferResolved(ctx context.Context, entry pipeline.Entry, email, outcome string) (string, error) {
	subject := fmt.Sprintf("Your offer for %s plot %s", entry.ProjectName, entry.PlotNumber)
	var intro string
	switch outcome {
	case pipeline.OfferAccepted:
		intro = "Thank you for accepting your offer. Your unit is now reserved and our team will reach out with the allocation paperwork."
	case pipeline.OfferDeclined:
		intro = "We have recorded that you declined the offer. The unit has been released and no further action is needed."
	default:
		intro = "There has been an update on your offer."
	}

	body := emailShell(
		fmt.Sprintf("Hello %s,", html.EscapeString(entry.ClientName)),
		intro,
		detailRows(entry),
	)
	return m.client.Send(ctx, email, entry.ClientName, subject, body)
}

func (m *Mailer) SendAllocationApproved(ctx context.Context, entry pipeline.Entry, email string) (string, error) {
	subject := fmt.Sprintf("Allocation approved for %s plot %s", entry.ProjectName, entry.PlotNumber)
	body := emailShell(
		fmt.Sprintf("Hello %s,", html.EscapeString(entry.ClientName)),
		"Your allocation has been approved. Payments recorded against your unit will now count toward your balance.",
		detailRows(entry),
	)
	return m.client.Send(ctx, email, entry.ClientName, subject, body)
}

func detailRows(entry pipeline.Entry) string {
	rows := []string{
		row("Project", entry.ProjectName),
		row("Plot", entry.PlotNumber),
		row("Sale amount", FormatMoney(entry.SaleAmount)),
		row("Initial payment", FormatMoney(entry.InitialPayment)),
	}
	if entry.Allocation != nil {
		rows = append(rows, row("Amount paid", FormatMoney(pipeline.Money{
			Amount:   entry.Allocation.AmountPaid,
			Currency: entry.SaleAmount.Currency,
		})))
	}
	return strings.Join(rows, "\n")
}

func row(label, value string) string {
	return fmt.Sprintf(`<tr><td style="padding:4px 12px 4px 0;color:#555;">%s</td><td style="padding:4px 0;"><strong>%s</strong></td></tr>`,
		html.EscapeString(label), html.EscapeString(value))
}

func emailShell(greeting, intro, rows string) string {
	return fmt.Sprintf(`<!DOCTYPE html>
<html>
<body style="font-family:Arial,sans-serif;color:#222;max-width:560px;margin:0 auto;padding:24px;">
  <p>%s</p>
  <p>%s</p>
  <table style="border-collapse:collapse;margin:16px 0;">%s</table>
  <p style="color:#777;font-size:13px;">This message was sent by ProptyOS. If you believe you received it in error, please contact our sales team.</p>
</body>
</html>`, greeting, intro, rows)
}

// FormatMoney renders a minor-unit amount with thousands separators,
// e.g. 2500000 NGN -> "NGN 2,500,000".
func FormatMoney(m pipeline.Money) string {
	negative := m.Amount < 0
	amount := m.Amount
	if negative {
		amount = -amount
	}

	digits := fmt.Sprint(amount)
	var b strings.Builder
	for i, d := range digits {
		if i > 0 && (len(digits)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(d)
	}

	formatted := b.String()
	if negative {
		formatted = "-" + formatted
	}
	currency := m.Currency
	if currency == "" {
		currency = pipeline.DefaultCurrency
	}
	return currency + " " + formatted
}
