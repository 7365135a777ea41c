package models

import (
	"context"
	"errors"
	"strings"
	"time"

	"bitbucket.org/mmdatafocus/stockdocs_backend/config"
	"bitbucket.org/mmdatafocus/stockdocs_backend/utils"
	"github.com/shopspring/decimal"
)

type Product struct {
	ID         int             `gorm:"primary_key" json:"id"`
	BusinessId string          `gorm:"index;not null" json:"business_id"`
	Name       string          `gorm:"size:255;not null" json:"name" binding:"required"`
	Sku        string          `gorm:"size:100" json:"sku"`
	Barcode    string          `gorm:"index;size:100" json:"barcode"`
	Unit       string          `gorm:"size:20;default:pcs" json:"unit"`
	CostPrice  decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"cost_price"`
	Price      decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"price"`
	IsActive   *bool           `gorm:"not null;default:true" json:"is_active"`
	CreatedAt  time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt  time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

type NewProduct struct {
	Name      string          `json:"name" binding:"required"`
	Sku       string          `json:"sku"`
	Barcode   string          `json:"barcode"`
	Unit      string          `json:"unit"`
	CostPrice decimal.Decimal `json:"cost_price"`
	Price     decimal.Decimal `json:"price"`
}

func (input *NewProduct) validate(ctx context.Context, businessId string, id int) error {
	if len(strings.TrimSpace(input.Barcode)) > 0 {
		if err := utils.ValidateUnique[Product](ctx, businessId, "barcode", input.Barcode, id); err != nil {
			return err
		}
	}
	if len(strings.TrimSpace(input.Sku)) > 0 {
		if err := utils.ValidateUnique[Product](ctx, businessId, "sku", input.Sku, id); err != nil {
			return err
		}
	}
	if input.CostPrice.IsNegative() || input.Price.IsNegative() {
		return errors.New("price cannot be negative")
	}
	return nil
}

func CreateProduct(ctx context.Context, input *NewProduct) (*Product, error) {

	db := config.GetDB()
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}

	if err := input.validate(ctx, businessId, 0); err != nil {
		return nil, err
	}

	unit := input.Unit
	if unit == "" {
		unit = "pcs"
	}
	product := Product{
		BusinessId: businessId,
		Name:       input.Name,
		Sku:        input.Sku,
		Barcode:    input.Barcode,
		Unit:       unit,
		CostPrice:  input.CostPrice,
		Price:      input.Price,
	}

	err := db.WithContext(ctx).Create(&product).Error
	if err != nil {
		return nil, err
	}
	return &product, nil
}

func GetProduct(ctx context.Context, id int) (*Product, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}
	return utils.FetchModel[Product](ctx, businessId, id)
}

// ProductSnapshot is the authoritative view a document reconciles against:
// catalog fields plus the stock on hand in one shop at lookup time.
type ProductSnapshot struct {
	ID        int             `json:"id"`
	Name      string          `json:"name"`
	Sku       string          `json:"sku"`
	Barcode   string          `json:"barcode"`
	Unit      string          `json:"unit"`
	Stock     decimal.Decimal `json:"stock"`
	CostPrice decimal.Decimal `json:"cost_price"`
	Price     decimal.Decimal `json:"price"`
}

// QueryProductSnapshots supplies declared values for a shop. searchTerm matches
// name, sku or barcode; blank returns the first SearchLimit actives.
func QueryProductSnapshots(ctx context.Context, shopId int, searchTerm string, limit int) ([]*ProductSnapshot, error) {

	db := config.GetDB()
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}
	if limit <= 0 || limit > 100 {
		limit = config.SearchLimit
	}

	dbCtx := db.WithContext(ctx).Model(&Product{}).
		Select(`products.id, products.name, products.sku, products.barcode, products.unit,
COALESCE(shop_stocks.qty, 0) AS stock, products.cost_price, products.price`).
		Joins("LEFT JOIN shop_stocks ON shop_stocks.product_id = products.id AND shop_stocks.shop_id = ?", shopId).
		Where("products.business_id = ?", businessId).
		Where("products.is_active = ?", true)

	if s := strings.TrimSpace(searchTerm); s != "" {
		like := "%" + s + "%"
		dbCtx = dbCtx.Where("products.name LIKE ? OR products.sku LIKE ? OR products.barcode = ?", like, like, s)
	}

	var results []*ProductSnapshot
	if err := dbCtx.Order("products.name").Limit(limit).Scan(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

// GetProductSnapshotsByIds batch-resolves snapshots for a document's lines.
func GetProductSnapshotsByIds(ctx context.Context, shopId int, productIds []int) ([]*ProductSnapshot, error) {
	if len(productIds) == 0 {
		return nil, nil
	}

	db := config.GetDB()
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}

	var results []*ProductSnapshot
	err := db.WithContext(ctx).Model(&Product{}).
		Select(`products.id, products.name, products.sku, products.barcode, products.unit,
COALESCE(shop_stocks.qty, 0) AS stock, products.cost_price, products.price`).
		Joins("LEFT JOIN shop_stocks ON shop_stocks.product_id = products.id AND shop_stocks.shop_id = ?", shopId).
		Where("products.business_id = ?", businessId).
		Where("products.id IN ?", utils.UniqueSlice(productIds)).
		Scan(&results).Error
	if err != nil {
		return nil, err
	}
	return results, nil
}

// GetProductSnapshot resolves one product by id, with stock for the given shop.
func GetProductSnapshot(ctx context.Context, shopId int, productId int) (*ProductSnapshot, error) {
	snap, err := snapshotWhere(ctx, shopId, "products.id = ?", productId)
	if err != nil {
		return nil, err
	}
	return snap, nil
}

// GetProductSnapshotByBarcode resolves a scanned barcode (exact match).
func GetProductSnapshotByBarcode(ctx context.Context, shopId int, barcode string) (*ProductSnapshot, error) {
	barcode = strings.TrimSpace(barcode)
	if barcode == "" {
		return nil, utils.NewValidationError("barcode", "barcode is required")
	}
	return snapshotWhere(ctx, shopId, "products.barcode = ?", barcode)
}

func snapshotWhere(ctx context.Context, shopId int, cond string, value interface{}) (*ProductSnapshot, error) {
	db := config.GetDB()
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}

	var snap ProductSnapshot
	err := db.WithContext(ctx).Model(&Product{}).
		Select(`products.id, products.name, products.sku, products.barcode, products.unit,
COALESCE(shop_stocks.qty, 0) AS stock, products.cost_price, products.price`).
		Joins("LEFT JOIN shop_stocks ON shop_stocks.product_id = products.id AND shop_stocks.shop_id = ?", shopId).
		Where("products.business_id = ?", businessId).
		Where(cond, value).
		Limit(1).
		Scan(&snap).Error
	if err != nil {
		return nil, err
	}
	if snap.ID == 0 {
		return nil, utils.ErrorRecordNotFound
	}
	return &snap, nil
}

// SnapshotLookup indexes snapshots for reconciliation: primary key product id,
// exact barcode as the scan fallback.
type SnapshotLookup struct {
	byId      map[int]*ProductSnapshot
	byBarcode map[string]*ProductSnapshot
}

func NewSnapshotLookup(snaps []*ProductSnapshot) *SnapshotLookup {
	l := &SnapshotLookup{
		byId:      make(map[int]*ProductSnapshot, len(snaps)),
		byBarcode: make(map[string]*ProductSnapshot, len(snaps)),
	}
	for _, s := range snaps {
		l.byId[s.ID] = s
		if s.Barcode != "" {
			l.byBarcode[s.Barcode] = s
		}
	}
	return l
}

func (l *SnapshotLookup) ById(id int) (*ProductSnapshot, bool) {
	s, ok := l.byId[id]
	return s, ok
}

func (l *SnapshotLookup) ByBarcode(code string) (*ProductSnapshot, bool) {
	s, ok := l.byBarcode[code]
	return s, ok
}
