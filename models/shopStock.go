package models

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ShopStock is the per-shop stock cache adjusted by approved documents.
type ShopStock struct {
	ID         int             `gorm:"primary_key" json:"id"`
	BusinessId string          `gorm:"index;not null" json:"business_id"`
	ShopId     int             `gorm:"uniqueIndex:idx_shop_product;not null" json:"shop_id"`
	ProductId  int             `gorm:"uniqueIndex:idx_shop_product;not null" json:"product_id"`
	Qty        decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"qty"`
	CreatedAt  time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt  time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

// AdjustShopStock adds delta (may be negative) to the (shop, product) row,
// inserting it when missing. Must run inside the caller's transaction so the
// stock change commits or rolls back together with the document status flip.
func AdjustShopStock(tx *gorm.DB, businessId string, shopId int, productId int, delta decimal.Decimal) error {
	if delta.IsZero() {
		return nil
	}
	row := ShopStock{
		BusinessId: businessId,
		ShopId:     shopId,
		ProductId:  productId,
		Qty:        delta,
	}
	return tx.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "shop_id"}, {Name: "product_id"}},
		DoUpdates: clause.Assignments(map[string]interface{}{
			"qty": gorm.Expr("qty + ?", delta),
		}),
	}).Create(&row).Error
}
