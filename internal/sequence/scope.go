package sequence

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Scope identifies one independent number sequence: a document kind, an
// outlet, and the time period the numbering resets over. Anchor is the last
// calendar day the scope is current; it drives counter expiry.
type Scope struct {
	Key    string
	Anchor time.Time
}

// OrderScope numbers orders per outlet per calendar day.
func OrderScope(outletID uuid.UUID, day time.Time) Scope {
	return dayScope("order", outletID, day)
}

// TicketScope numbers kitchen tickets per outlet per calendar day.
func TicketScope(outletID uuid.UUID, day time.Time) Scope {
	return dayScope("ticket", outletID, day)
}

// InvoiceScope numbers invoices per outlet per financial year.
func InvoiceScope(outletID uuid.UUID, fy FinancialYear) Scope {
	return Scope{
		Key:    fmt.Sprintf("invoice:%s:%s", outletID, fy.Label()),
		Anchor: fy.End(),
	}
}

func dayScope(kind string, outletID uuid.UUID, day time.Time) Scope {
	return Scope{
		Key:    fmt.Sprintf("%s:%s:%s", kind, outletID, day.Format("2006-01-02")),
		Anchor: day,
	}
}

// FinancialYear is an April-to-March accounting period.
type FinancialYear struct {
	StartYear int
}

// FinancialYearOf returns the financial year containing t. January through
// March belong to the year that started the previous April.
func FinancialYearOf(t time.Time) FinancialYear {
	year := t.Year()
	if t.Month() < time.April {
		year--
	}
	return FinancialYear{StartYear: year}
}

// Label renders the period as "2025-26".
func (fy FinancialYear) Label() string {
	return fmt.Sprintf("%d-%02d", fy.StartYear, (fy.StartYear+1)%100)
}

// End is March 31 of the closing calendar year.
func (fy FinancialYear) End() time.Time {
	return time.Date(fy.StartYear+1, time.March, 31, 0, 0, 0, 0, time.UTC)
}

// BusinessDay truncates now to a calendar date in the outlet's timezone.
// Falls back to UTC when the configured zone doesn't resolve.
func BusinessDay(now time.Time, tzName string) time.Time {
	loc, err := time.LoadLocation(tzName)
	if err != nil {
		loc = time.UTC
	}
	local := now.In(loc)
	return time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, time.UTC)
}

// FormatOrderNumber renders an order number for display, e.g. "015/2025-26".
func FormatOrderNumber(n int32, fyLabel string) string {
	return fmt.Sprintf("%03d/%s", n, fyLabel)
}

// FormatTicketNumber renders a ticket number as zero-padded 3-digit, growing
// naturally past 999.
func FormatTicketNumber(n int32) string {
	return fmt.Sprintf("%03d", n)
}

// FormatInvoiceNumber renders an invoice number for display, e.g.
// "042/2025-26".
func FormatInvoiceNumber(n int32, fyLabel string) string {
	return fmt.Sprintf("%03d/%s", n, fyLabel)
}
