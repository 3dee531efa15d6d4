package costing

import "github.com/shopspring/decimal"

// VarianceResult describes the outcome of comparing a transaction price
// against the period-locked price for an item.
type VarianceResult struct {
	Variance        decimal.Decimal
	VariancePercent decimal.Decimal
	HasVariance     bool
}

// DetectVariance compares actualPrice with the locked period price. The
// threshold is exactly zero: any nonzero difference is a variance. Callers
// skip detection entirely when no locked price exists for the item/period.
func DetectVariance(actualPrice, lockedPrice decimal.Decimal) VarianceResult {
	variance := actualPrice.Sub(lockedPrice)
	result := VarianceResult{
		Variance:    variance,
		HasVariance: !variance.IsZero(),
	}
	if !lockedPrice.IsZero() {
		result.VariancePercent = variance.Div(lockedPrice).Mul(decimal.NewFromInt(100)).Round(ValueScale)
	}
	return result
}

// VarianceValue is the financial magnitude of a variance over a quantity,
// used as the value of an auto-generated NCR.
func VarianceValue(variance, qty decimal.Decimal) decimal.Decimal {
	return variance.Abs().Mul(qty).Round(ValueScale)
}
