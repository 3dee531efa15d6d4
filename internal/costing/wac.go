// Package costing holds the pure cost arithmetic shared by the posting
// flows: weighted average cost on receipt and period price variance.
package costing

import "github.com/shopspring/decimal"

// Storage precision: WAC is carried at four decimal places, monetary line
// values at two.
const (
	WACScale   = 4
	ValueScale = 2
)

// ComputeWAC returns the new weighted average cost after receiving
// receivedQty units at receiptPrice on top of currentQty units valued at
// currentWAC. With no existing stock the receipt price becomes the WAC.
func ComputeWAC(currentQty, currentWAC, receivedQty, receiptPrice decimal.Decimal) decimal.Decimal {
	if currentQty.IsZero() {
		return receiptPrice.Round(WACScale)
	}
	totalQty := currentQty.Add(receivedQty)
	if totalQty.IsZero() {
		return currentWAC.Round(WACScale)
	}
	totalValue := currentQty.Mul(currentWAC).Add(receivedQty.Mul(receiptPrice))
	return totalValue.Div(totalQty).Round(WACScale)
}

// LineValue values a quantity at a unit cost, rounded to storage precision.
func LineValue(qty, unitCost decimal.Decimal) decimal.Decimal {
	return qty.Mul(unitCost).Round(ValueScale)
}
