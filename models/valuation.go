package models

import (
	"github.com/shopspring/decimal"
)

var percentBase = decimal.NewFromInt(100)

// LineDiffAmount prices one line's quantity difference. Shortages are valued
// at cost, surpluses at retail. That asymmetry is deliberate accounting
// policy, not an accident: lost goods cost the business their purchase price,
// found goods are worth their selling price.
func LineDiffAmount(diff, costPrice, retailPrice decimal.Decimal) decimal.Decimal {
	switch {
	case diff.IsPositive():
		return diff.Mul(retailPrice)
	case diff.IsNegative():
		return diff.Abs().Mul(costPrice).Neg()
	default:
		return decimal.Zero
	}
}

// RevalueItems recomputes DiffQty and DiffAmount for every line. Pure; returns
// a fresh slice.
//
// Per type:
// - Count: DiffQty = Actual − Declared (counted vs system stock), amount per
//   the shortage-at-cost / surplus-at-retail rule.
// - Transfer/WriteOff: Actual is the quantity leaving the (departure) shop, so
//   DiffQty = −Actual and the amount is that outflow valued at cost.
// - Repricing: DiffQty carries the price delta (Actual − Declared); the amount
//   equals the delta, unscaled by stock.
func RevalueItems(docType DocumentType, items []StockDocumentItem) []StockDocumentItem {
	valued := make([]StockDocumentItem, len(items))
	copy(valued, items)

	for i := range valued {
		line := &valued[i]
		switch docType {
		case DocumentTypeCount:
			line.DiffQty = line.Actual.Sub(line.Declared)
			line.DiffAmount = LineDiffAmount(line.DiffQty, line.SupplyPrice, line.RetailPrice)
		case DocumentTypeTransfer, DocumentTypeWriteOff:
			line.DiffQty = line.Actual.Neg()
			line.DiffAmount = line.Actual.Mul(line.SupplyPrice).Neg()
		case DocumentTypeRepricing:
			line.DiffQty = line.Actual.Sub(line.Declared)
			line.DiffAmount = line.DiffQty
		}
	}
	return valued
}

// ComputeDocumentTotals rebuilds the aggregate counters from the full item
// list, always from scratch rather than incrementally, so DiffAmount is the
// exact sum of per-line contributions after any sequence of edits.
func ComputeDocumentTotals(docType DocumentType, items []StockDocumentItem) DocumentTotals {
	var totals DocumentTotals

	for i := range items {
		line := &items[i]

		if docType == DocumentTypeRepricing {
			totals.TotalQty = totals.TotalQty.Add(decimal.NewFromInt(1))
			if line.DiffQty.IsNegative() {
				totals.ShortageQty = totals.ShortageQty.Add(decimal.NewFromInt(1))
			} else if line.DiffQty.IsPositive() {
				totals.SurplusQty = totals.SurplusQty.Add(decimal.NewFromInt(1))
			}
			totals.DiffAmount = totals.DiffAmount.Add(line.DiffAmount)
			continue
		}

		totals.TotalQty = totals.TotalQty.Add(line.Actual)
		if line.DiffQty.IsNegative() {
			totals.ShortageQty = totals.ShortageQty.Add(line.DiffQty.Abs())
			totals.ShortageCost = totals.ShortageCost.Add(line.DiffQty.Abs().Mul(line.SupplyPrice))
		} else if line.DiffQty.IsPositive() {
			totals.SurplusQty = totals.SurplusQty.Add(line.DiffQty)
			totals.SurplusRetail = totals.SurplusRetail.Add(line.DiffQty.Mul(line.RetailPrice))
		}
		totals.DiffAmount = totals.DiffAmount.Add(line.DiffAmount)
	}
	return totals
}

// Markup is the percentage added to the supply price: (retail − supply) / supply.
func Markup(supply, retail decimal.Decimal) decimal.Decimal {
	if supply.LessThanOrEqual(decimal.Zero) {
		return decimal.Zero
	}
	return retail.Sub(supply).Div(supply).Mul(percentBase)
}

// Margin is the share of the retail price kept: (retail − supply) / retail.
func Margin(supply, retail decimal.Decimal) decimal.Decimal {
	if retail.LessThanOrEqual(decimal.Zero) {
		return decimal.Zero
	}
	return retail.Sub(supply).Div(retail).Mul(percentBase)
}

func RetailForMarkup(supply, markup decimal.Decimal) decimal.Decimal {
	return supply.Mul(percentBase.Add(markup)).Div(percentBase)
}

func SupplyForMarkup(retail, markup decimal.Decimal) decimal.Decimal {
	denom := percentBase.Add(markup)
	if denom.LessThanOrEqual(decimal.Zero) {
		return decimal.Zero
	}
	return retail.Mul(percentBase).Div(denom)
}

// PriceDerivation is the consistent supply/markup/margin/retail tuple after
// one of the three writable figures changed.
type PriceDerivation struct {
	Supply decimal.Decimal `json:"supply"`
	Markup decimal.Decimal `json:"markup"`
	Margin decimal.Decimal `json:"margin"`
	Retail decimal.Decimal `json:"retail"`
}

// DerivePrices recomputes the linked figures from whichever field was just
// edited. Derivation runs in one direction only, from the edited field to the
// others, so there is no recomputation loop.
func DerivePrices(edited PriceField, supply, markup, retail decimal.Decimal) PriceDerivation {
	switch edited {
	case PriceFieldSupply:
		return PriceDerivation{
			Supply: supply,
			Markup: Markup(supply, retail),
			Margin: Margin(supply, retail),
			Retail: retail,
		}
	case PriceFieldMarkup:
		newRetail := RetailForMarkup(supply, markup)
		return PriceDerivation{
			Supply: supply,
			Markup: markup,
			Margin: Margin(supply, newRetail),
			Retail: newRetail,
		}
	default: // PriceFieldRetail
		return PriceDerivation{
			Supply: supply,
			Markup: Markup(supply, retail),
			Margin: Margin(supply, retail),
			Retail: retail,
		}
	}
}

// ApplyPercentToItems reprices exactly the selected lines by a percentage of
// their declared (pre-revision) price: Actual = round(declared · (1 + pct/100)).
// Unselected lines are returned untouched. Pure; returns a fresh slice.
func ApplyPercentToItems(items []StockDocumentItem, selectedProductIds []int, percent decimal.Decimal, scale int32) []StockDocumentItem {
	selected := make(map[int]bool, len(selectedProductIds))
	for _, id := range selectedProductIds {
		selected[id] = true
	}

	factor := percentBase.Add(percent).Div(percentBase)
	repriced := make([]StockDocumentItem, len(items))
	copy(repriced, items)

	for i := range repriced {
		if !selected[repriced[i].ProductId] {
			continue
		}
		repriced[i].Actual = repriced[i].Declared.Mul(factor).Round(scale)
	}
	return repriced
}
