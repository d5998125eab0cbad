/*
ledger.go - Line item totals

PURPOSE:
  Owns the two derived monetary values in the system: a line item's total
  price and the request's aggregate total. Both are recomputed server-side
  on every mutation that touches line items; client-supplied totals are
  ignored. All arithmetic is exact decimal.
*/
package procure

import (
	"time"

	"github.com/shopspring/decimal"
)

// ItemTotal returns unit price times quantity. A nil unit price counts as
// zero.
func ItemTotal(unitPrice *decimal.Decimal, quantity int) decimal.Decimal {
	if unitPrice == nil {
		return decimal.Zero
	}
	return unitPrice.Mul(decimal.NewFromInt(int64(quantity)))
}

// ComputeTotal sums TotalPrice across all line items. Returns zero for an
// empty slice. Must be invoked, and the request's TotalAmount updated, in
// the same commit as any line-item mutation.
func ComputeTotal(items []LineItem) decimal.Decimal {
	total := decimal.Zero
	for i := range items {
		total = total.Add(items[i].TotalPrice)
	}
	return total
}

// LineItemInput carries caller-supplied fields for a new line item. There is
// deliberately no total price field.
type LineItemInput struct {
	Description string
	Quantity    int
	Unit        string
	UnitPrice   *decimal.Decimal
	Vendor      string
	VendorSKU   string
	Category    string
	Notes       string
}

// newLineItem builds a line item with its total computed. Quantity defaults
// to 1 when unset.
func newLineItem(requestID RequestID, in LineItemInput, now func() time.Time) LineItem {
	qty := in.Quantity
	if qty < 1 {
		qty = 1
	}
	return LineItem{
		ID:          NewItemID(),
		RequestID:   requestID,
		Description: in.Description,
		Quantity:    qty,
		Unit:        in.Unit,
		UnitPrice:   in.UnitPrice,
		TotalPrice:  ItemTotal(in.UnitPrice, qty),
		Vendor:      in.Vendor,
		VendorSKU:   in.VendorSKU,
		Category:    in.Category,
		Notes:       in.Notes,
		CreatedAt:   now(),
	}
}
