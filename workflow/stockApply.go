package workflow

import (
	"fmt"

	"bitbucket.org/mmdatafocus/stockdocs_backend/models"
	"gorm.io/gorm"
)

// ApplyDocumentStock mutates shop stock (or product prices) per line of an
// approved document. It runs inside the finalize transaction: a failure on any
// line rolls back the status flip too.
//
//	Count     shop stock moves by the line diff, up or down
//	WriteOff  actual quantity leaves the shop
//	Transfer  actual quantity leaves departure and arrives at arrival
//	Repricing cost or retail price becomes the proposed value, per price mode
func ApplyDocumentStock(tx *gorm.DB, doc *models.StockDocument) error {

	switch doc.DocumentType {

	case models.DocumentTypeCount:
		for i := range doc.Items {
			item := &doc.Items[i]
			if err := models.AdjustShopStock(tx, doc.BusinessId, doc.ShopId, item.ProductId, item.DiffQty); err != nil {
				return fmt.Errorf("apply count line product %d: %w", item.ProductId, err)
			}
		}

	case models.DocumentTypeWriteOff:
		for i := range doc.Items {
			item := &doc.Items[i]
			if err := models.AdjustShopStock(tx, doc.BusinessId, doc.ShopId, item.ProductId, item.Actual.Neg()); err != nil {
				return fmt.Errorf("apply write-off line product %d: %w", item.ProductId, err)
			}
		}

	case models.DocumentTypeTransfer:
		for i := range doc.Items {
			item := &doc.Items[i]
			if err := models.AdjustShopStock(tx, doc.BusinessId, doc.DepartureShopId, item.ProductId, item.Actual.Neg()); err != nil {
				return fmt.Errorf("apply transfer departure line product %d: %w", item.ProductId, err)
			}
			if err := models.AdjustShopStock(tx, doc.BusinessId, doc.ArrivalShopId, item.ProductId, item.Actual); err != nil {
				return fmt.Errorf("apply transfer arrival line product %d: %w", item.ProductId, err)
			}
		}

	case models.DocumentTypeRepricing:
		column := "price"
		if doc.PriceMode != nil && *doc.PriceMode == models.PriceModeSupply {
			column = "cost_price"
		}
		for i := range doc.Items {
			item := &doc.Items[i]
			if err := tx.Model(&models.Product{}).
				Where("business_id = ? AND id = ?", doc.BusinessId, item.ProductId).
				Update(column, item.Actual).Error; err != nil {
				return fmt.Errorf("apply repricing line product %d: %w", item.ProductId, err)
			}
		}
	}

	return nil
}
