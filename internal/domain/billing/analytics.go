package billing

import (
	"time"

	"github.com/shopspring/decimal"
)

// PaymentMethodUnknown is the grouping key for paid invoices with no
// recorded payment method
const PaymentMethodUnknown = "UNKNOWN"

// Analytics holds summary statistics over a set of invoices. Amounts are
// exact decimals; counts group invoices by effective status.
type Analytics struct {
	TotalRevenue      decimal.Decimal
	PendingAmount     decimal.Decimal
	TotalInvoices     int
	PaidInvoices      int
	OverdueInvoices   int
	PendingInvoices   int
	DraftInvoices     int
	CancelledInvoices int
	PaymentMethods    map[string]int
	MonthlyRevenue    map[string]decimal.Decimal
}

// Aggregate computes billing analytics over normalized invoices. The
// classification uses each invoice's effective status at now, so an
// invoice stored as sent but past due counts as overdue. Group keys are
// pure functions of invoice fields and decimal addition is exact, so the
// output is identical for any iteration order of the input.
func Aggregate(invoices []Invoice, now time.Time) Analytics {
	a := Analytics{
		TotalRevenue:   decimal.Zero,
		PendingAmount:  decimal.Zero,
		TotalInvoices:  len(invoices),
		PaymentMethods: make(map[string]int),
		MonthlyRevenue: make(map[string]decimal.Decimal),
	}

	for i := range invoices {
		inv := &invoices[i]
		switch inv.EffectiveStatus(now) {
		case InvoiceStatusPaid:
			a.PaidInvoices++
			a.TotalRevenue = a.TotalRevenue.Add(inv.Total)

			key := PaymentMethodUnknown
			if inv.PaymentMethod != nil {
				key = inv.PaymentMethod.String()
			}
			a.PaymentMethods[key]++

			if inv.PaidDate != nil {
				month := inv.PaidDate.UTC().Format("2006-01")
				a.MonthlyRevenue[month] = a.MonthlyRevenue[month].Add(inv.Total)
			}
		case InvoiceStatusOverdue:
			a.OverdueInvoices++
			a.PendingAmount = a.PendingAmount.Add(inv.Total)
		case InvoiceStatusSent:
			a.PendingInvoices++
			a.PendingAmount = a.PendingAmount.Add(inv.Total)
		case InvoiceStatusDraft:
			a.DraftInvoices++
		case InvoiceStatusCancelled:
			a.CancelledInvoices++
		}
	}

	return a
}
