package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Invoice status values. An invoice starts unpaid and may only move to paid.
const (
	StatusUnpaid = "unpaid"
	StatusPaid   = "paid"
)

// DateLayout is the wire format for invoice due dates.
const DateLayout = "2006-01-02"

type Invoice struct {
	// Core identifiers
	ID       string // Unique within one analysis batch
	Supplier string // Supplier display name

	// Dates
	DueDate time.Time // Payment due date (calendar date, no time of day)

	// Amounts
	Amount   decimal.Decimal // Invoice total, non-negative
	Discount float64         // Early-payment discount percentage, 0-100

	// Terms
	PaymentTerms string // Free-text label such as "Net 30", advisory only

	// Status
	Status string // StatusUnpaid or StatusPaid
}

// DaysUntilDue returns the number of whole calendar days between now and the
// invoice due date. Both sides are truncated to midnight UTC so time of day
// never shifts the count. Negative for overdue invoices.
func (inv Invoice) DaysUntilDue(now time.Time) int {
	due := truncateToDate(inv.DueDate)
	today := truncateToDate(now)
	return int(due.Sub(today).Hours() / 24)
}

func truncateToDate(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
