// Package printer renders kitchen tickets and customer invoices as plain
// text sized for 58mm thermal rolls (32 columns) and hands finished jobs to
// the outlet's websocket room, where whichever station runs the print bridge
// picks them up.
package printer

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/neanvt/restro-pos/internal/database"
	"github.com/neanvt/restro-pos/internal/ws"
	"github.com/shopspring/decimal"
)

const width = 32

// Job is a rendered document ready for a print bridge.
type Job struct {
	Kind    string `json:"kind"` // "ticket" or "invoice"
	Content string `json:"content"`
}

// Spooler broadcasts print jobs to the outlet room. Delivery is best effort:
// a station that is offline simply misses the job and reprints on demand.
type Spooler struct {
	hub *ws.Hub
}

func NewSpooler(hub *ws.Hub) *Spooler {
	return &Spooler{hub: hub}
}

// Dispatch pushes a rendered job to every listener in the outlet room.
func (s *Spooler) Dispatch(outletID uuid.UUID, job Job) error {
	event, err := ws.NewEvent(ws.EventPrintJob, job)
	if err != nil {
		return fmt.Errorf("encode print job: %w", err)
	}
	s.hub.BroadcastToOutlet(outletID, event)
	return nil
}

// RenderTicket lays out a kitchen ticket: big-picture header for the expo,
// then one line per dish with the prep note underneath.
func RenderTicket(order database.Order, ticket database.Ticket, items []database.TicketItem, displayNumber string) string {
	var b strings.Builder
	b.WriteString(center("KOT " + displayNumber))
	b.WriteString(divider())
	left(&b, "Order", fmt.Sprintf("#%03d", order.OrderNumber))
	if order.TableLabel.Valid {
		left(&b, "Table", order.TableLabel.String)
	}
	left(&b, "Time", ticket.CreatedAt.Format("15:04"))
	b.WriteString(divider())
	for _, it := range items {
		b.WriteString(fmt.Sprintf("%2d x %s\n", it.Quantity, truncate(it.Name, width-5)))
		if it.Note.Valid && it.Note.String != "" {
			b.WriteString("     " + truncate(it.Note.String, width-5) + "\n")
		}
	}
	b.WriteString(divider())
	return b.String()
}

// RenderInvoice lays out a customer receipt.
func RenderInvoice(outlet database.Outlet, order database.Order, invoice database.Invoice, items []database.InvoiceItem, displayNumber string) string {
	var b strings.Builder
	b.WriteString(center(outlet.Name))
	b.WriteString(center("TAX INVOICE"))
	b.WriteString(divider())
	left(&b, "Invoice", displayNumber)
	left(&b, "Order", fmt.Sprintf("#%03d", order.OrderNumber))
	left(&b, "Date", invoice.CreatedAt.Format(time.DateOnly))
	b.WriteString(divider())
	for _, it := range items {
		name := fmt.Sprintf("%s x%d", it.Name, it.Quantity)
		b.WriteString(row(truncate(name, width-10), money(it.TotalAmount)))
	}
	b.WriteString(divider())
	b.WriteString(row("Subtotal", money(invoice.Subtotal)))
	b.WriteString(row("Tax", money(invoice.TaxTotal)))
	if invoice.DiscountType.Valid {
		b.WriteString(row("Discount", "-"+money(invoice.DiscountAmount)))
	}
	b.WriteString(row("TOTAL", money(invoice.TotalAmount)))
	b.WriteString(divider())
	left(&b, "Paid", money(invoice.PaidAmount)+" "+invoice.PaymentMethod)
	b.WriteString(center("Thank you, visit again!"))
	return b.String()
}

func center(s string) string {
	s = truncate(s, width)
	pad := (width - len(s)) / 2
	return strings.Repeat(" ", pad) + s + "\n"
}

func divider() string {
	return strings.Repeat("-", width) + "\n"
}

// row right-aligns value against label on one 32-column line.
func row(label, value string) string {
	gap := width - len(label) - len(value)
	if gap < 1 {
		gap = 1
	}
	return label + strings.Repeat(" ", gap) + value + "\n"
}

func left(b *strings.Builder, label, value string) {
	b.WriteString(truncate(label+": "+value, width) + "\n")
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

// money renders an amount rounded to 2 decimal places. This is the display
// boundary; stored amounts stay unrounded.
func money(n pgtype.Numeric) string {
	if !n.Valid || n.Int == nil {
		return "0.00"
	}
	return decimal.NewFromBigInt(n.Int, n.Exp).StringFixed(2)
}
