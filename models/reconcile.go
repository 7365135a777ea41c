package models

import (
	"strings"

	"bitbucket.org/mmdatafocus/stockdocs_backend/utils"
	"github.com/shopspring/decimal"
)

// ItemEdit is one user action against a document's item list: a barcode scan,
// a typed quantity/price, or a line removal. Matching is by ProductId first,
// exact Barcode second (scan workflows).
type ItemEdit struct {
	ProductId int             `json:"product_id"`
	Barcode   string          `json:"barcode"`
	Actual    *decimal.Decimal `json:"actual"`
	// Delta is the scanned increment for count documents (nil = +1).
	Delta  *decimal.Decimal `json:"delta"`
	Remove bool             `json:"remove"`
}

// mergeFunc applies one edit to a line in place. The strategy is resolved once
// per reconciliation from the document type; no type checks inside the merge.
type mergeFunc func(line *StockDocumentItem, snap *ProductSnapshot, edit ItemEdit, isNew bool) error

// ReconcileEdit merges the authoritative snapshot, the current item list and
// one edit into a fresh item list. It is a pure function of its inputs:
// replaying the same snapshot and edit history always yields the same output.
// Valuation (DiffQty/DiffAmount) is done separately by RevalueItems.
func ReconcileEdit(docType DocumentType, priceMode PriceMode, items []StockDocumentItem, lookup *SnapshotLookup, edit ItemEdit) ([]StockDocumentItem, error) {

	merge, err := strategyFor(docType, priceMode)
	if err != nil {
		return nil, err
	}

	snap, err := resolveSnapshot(lookup, edit)
	if err != nil {
		return nil, err
	}

	merged := make([]StockDocumentItem, len(items))
	copy(merged, items)

	// Refresh every line against the snapshot it reconciles with: declared and
	// the denormalized catalog fields always reflect the snapshot at
	// reconciliation time, not whatever was stored on a prior save.
	bounded := docType == DocumentTypeTransfer || docType == DocumentTypeWriteOff
	for i := range merged {
		if s, ok := lookup.ById(merged[i].ProductId); ok {
			refreshLine(&merged[i], s, docType, priceMode)
		}
		// A refreshed declared may have shrunk below an earlier clamp.
		if bounded {
			if merged[i].Actual.IsNegative() {
				merged[i].Actual = decimal.Zero
			}
			if merged[i].Actual.GreaterThan(merged[i].Declared) {
				merged[i].Actual = merged[i].Declared
			}
		}
	}

	idx := -1
	for i := range merged {
		if merged[i].ProductId == snap.ID {
			idx = i
			break
		}
	}

	if edit.Remove {
		if idx < 0 {
			return nil, utils.ErrorRecordNotFound
		}
		return append(merged[:idx], merged[idx+1:]...), nil
	}

	if idx < 0 {
		line := StockDocumentItem{ProductId: snap.ID}
		refreshLine(&line, snap, docType, priceMode)
		if err := merge(&line, snap, edit, true); err != nil {
			return nil, err
		}
		return append(merged, line), nil
	}

	if err := merge(&merged[idx], snap, edit, false); err != nil {
		return nil, err
	}
	return merged, nil
}

// ReconcileRefresh re-baselines every line against the current snapshot with
// no user edit. This is the final pass finalize runs before flipping status.
func ReconcileRefresh(docType DocumentType, priceMode PriceMode, items []StockDocumentItem, lookup *SnapshotLookup) []StockDocumentItem {
	merged := make([]StockDocumentItem, len(items))
	copy(merged, items)

	bounded := docType == DocumentTypeTransfer || docType == DocumentTypeWriteOff
	for i := range merged {
		if s, ok := lookup.ById(merged[i].ProductId); ok {
			refreshLine(&merged[i], s, docType, priceMode)
		}
		if bounded {
			if merged[i].Actual.IsNegative() {
				merged[i].Actual = decimal.Zero
			}
			if merged[i].Actual.GreaterThan(merged[i].Declared) {
				merged[i].Actual = merged[i].Declared
			}
		}
	}
	return merged
}

func strategyFor(docType DocumentType, priceMode PriceMode) (mergeFunc, error) {
	switch docType {
	case DocumentTypeCount:
		return mergeScanAccumulate, nil
	case DocumentTypeTransfer, DocumentTypeWriteOff:
		return mergeBoundedSet, nil
	case DocumentTypeRepricing:
		if priceMode != PriceModeSupply && priceMode != PriceModeRetail {
			return nil, utils.NewValidationError("price_mode", "repricing documents require a price mode")
		}
		return mergeRepricing(priceMode), nil
	default:
		return nil, utils.NewValidationError("document_type", "invalid document type")
	}
}

func resolveSnapshot(lookup *SnapshotLookup, edit ItemEdit) (*ProductSnapshot, error) {
	if edit.ProductId > 0 {
		if s, ok := lookup.ById(edit.ProductId); ok {
			return s, nil
		}
		return nil, utils.ErrorRecordNotFound
	}
	if code := strings.TrimSpace(edit.Barcode); code != "" {
		if s, ok := lookup.ByBarcode(code); ok {
			return s, nil
		}
		return nil, utils.ErrorRecordNotFound
	}
	return nil, utils.NewValidationError("product_id", "product id or barcode is required")
}

// refreshLine pulls the authoritative snapshot fields onto a line. Declared is
// the comparison baseline: snapshot stock for quantity documents, the edited
// price field for repricings.
func refreshLine(line *StockDocumentItem, snap *ProductSnapshot, docType DocumentType, priceMode PriceMode) {
	line.ProductName = snap.Name
	line.ProductSku = snap.Sku
	line.Barcode = snap.Barcode
	line.Unit = snap.Unit
	line.SupplyPrice = snap.CostPrice
	line.RetailPrice = snap.Price
	if docType == DocumentTypeRepricing {
		if priceMode == PriceModeSupply {
			line.Declared = snap.CostPrice
		} else {
			line.Declared = snap.Price
		}
	} else {
		line.Declared = snap.Stock
	}
}

// mergeScanAccumulate: repeated scans of the same barcode add up on one line.
// Physical counts may legitimately exceed system stock, so no clamping.
func mergeScanAccumulate(line *StockDocumentItem, snap *ProductSnapshot, edit ItemEdit, isNew bool) error {
	if edit.Actual != nil {
		// Typed quantity replaces the accumulated value.
		if edit.Actual.IsNegative() {
			return utils.NewValidationError("actual", "counted quantity cannot be negative")
		}
		line.Actual = *edit.Actual
		return nil
	}
	delta := decimal.NewFromInt(1)
	if edit.Delta != nil {
		delta = *edit.Delta
	}
	if isNew {
		line.Actual = delta
	} else {
		line.Actual = line.Actual.Add(delta)
	}
	if line.Actual.IsNegative() {
		line.Actual = decimal.Zero
	}
	return nil
}

// mergeBoundedSet: transfers and write-offs cannot move more than exists, so
// the submitted value is clamped into [0, declared].
func mergeBoundedSet(line *StockDocumentItem, snap *ProductSnapshot, edit ItemEdit, isNew bool) error {
	if edit.Actual == nil {
		return utils.NewValidationError("actual", "quantity is required")
	}
	actual := *edit.Actual
	if actual.IsNegative() {
		actual = decimal.Zero
	}
	if actual.GreaterThan(line.Declared) {
		actual = line.Declared
	}
	line.Actual = actual
	return nil
}

// mergeRepricing: Declared/Actual carry prices. Actual is the proposed value
// for the field matching the document's price mode; both price columns stay
// read-only mirrors of the snapshot.
func mergeRepricing(priceMode PriceMode) mergeFunc {
	return func(line *StockDocumentItem, snap *ProductSnapshot, edit ItemEdit, isNew bool) error {
		if edit.Actual == nil {
			return utils.NewValidationError("actual", "new price is required")
		}
		price := *edit.Actual
		if price.IsNegative() {
			return utils.NewValidationError("actual", "price cannot be negative")
		}
		line.Actual = price
		return nil
	}
}
