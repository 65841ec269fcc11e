package service

import "github.com/shopspring/decimal"

// Line is one priced order line as fed to the totals calculator.
type Line struct {
	UnitPrice     decimal.Decimal
	Quantity      int32
	TaxRate       decimal.Decimal
	TaxApplicable bool
}

// LineTotals are the computed amounts for a single line.
type LineTotals struct {
	Subtotal  decimal.Decimal
	TaxAmount decimal.Decimal
	Total     decimal.Decimal
}

// OrderTotals are the sums across all lines.
type OrderTotals struct {
	Subtotal decimal.Decimal
	TaxTotal decimal.Decimal
	Total    decimal.Decimal
}

// CalcLine computes subtotal = price * qty, tax on the subtotal when
// applicable, and their sum. No rounding happens here; amounts are rounded to
// 2 decimal places only at the display boundary so accumulation error never
// compounds.
func CalcLine(l Line) LineTotals {
	subtotal := l.UnitPrice.Mul(decimal.NewFromInt32(l.Quantity))
	tax := decimal.Zero
	if l.TaxApplicable {
		tax = subtotal.Mul(l.TaxRate).Div(decimal.NewFromInt(100))
	}
	return LineTotals{
		Subtotal:  subtotal,
		TaxAmount: tax,
		Total:     subtotal.Add(tax),
	}
}

// CalcOrder sums per-line totals into order-level amounts.
// Invariant: Total = Subtotal + TaxTotal.
func CalcOrder(lines []Line) OrderTotals {
	t := OrderTotals{Subtotal: decimal.Zero, TaxTotal: decimal.Zero, Total: decimal.Zero}
	for _, l := range lines {
		lt := CalcLine(l)
		t.Subtotal = t.Subtotal.Add(lt.Subtotal)
		t.TaxTotal = t.TaxTotal.Add(lt.TaxAmount)
		t.Total = t.Total.Add(lt.Total)
	}
	return t
}
