// Package ratio computes home-office business-use ratios and property basis.
package ratio

import (
	"github.com/shopspring/decimal"

	"bizledger/internal/core"
)

// BusinessUseRatio returns office/home*100 rounded to two places, or null
// unless both areas are positive.
func BusinessUseRatio(officeSqFt, homeSqFt decimal.Decimal) decimal.NullDecimal {
	if !officeSqFt.IsPositive() || !homeSqFt.IsPositive() {
		return decimal.NullDecimal{}
	}
	return core.Null(core.Round2(officeSqFt.Div(homeSqFt).Mul(core.Hundred())))
}

// TotalBasis returns purchase price plus cost of purchase, less improvements
// and land value, floored at zero.
func TotalBasis(purchasePrice, costOfPurchase, landValue, improvements decimal.Decimal) decimal.Decimal {
	total := purchasePrice.Add(costOfPurchase).Sub(improvements).Sub(landValue)
	if total.IsNegative() {
		return decimal.Zero
	}
	return total
}

// Derive overwrites the derived fields of b from its inputs.
func Derive(b *core.Business) {
	b.BusinessUseRatio = BusinessUseRatio(b.OfficeSquareFootage, b.HomeSquareFootage)
	b.TotalBasis = TotalBasis(b.PurchasePrice, b.CostOfPurchase, b.LandValue, b.Improvements)
}
