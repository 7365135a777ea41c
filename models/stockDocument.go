package models

import (
	"context"
	"errors"
	"time"

	"bitbucket.org/mmdatafocus/stockdocs_backend/config"
	"bitbucket.org/mmdatafocus/stockdocs_backend/utils"
	"github.com/shopspring/decimal"
)

type StockDocument struct {
	ID              int            `gorm:"primary_key" json:"id"`
	BusinessId      string         `gorm:"index;not null" json:"business_id"`
	DocumentNumber  string         `gorm:"size:20;index;not null" json:"document_number"`
	DocumentType    DocumentType   `gorm:"type:enum('Count','Transfer','WriteOff','Repricing');not null" json:"document_type"`
	CurrentStatus   DocumentStatus `gorm:"type:enum('New','Approved','Rejected');not null;default:New" json:"current_status"`
	ShopId          int            `gorm:"index" json:"shop_id"`
	DepartureShopId int            `gorm:"index" json:"departure_shop_id"`
	ArrivalShopId   int            `gorm:"index" json:"arrival_shop_id"`
	// PriceMode is set on repricing documents only; NULL everywhere else.
	PriceMode       *PriceMode     `gorm:"type:enum('Supply','Retail')" json:"price_mode"`
	Description     string         `gorm:"type:text" json:"description"`
	// SyncVersion orders autosave replacements; only the highest version wins.
	SyncVersion int64               `gorm:"not null;default:0" json:"sync_version"`
	Items       []StockDocumentItem `gorm:"foreignKey:StockDocumentId" json:"items"`
	Totals      DocumentTotals      `gorm:"embedded" json:"totals"`
	CreatedBy   int                 `gorm:"not null" json:"created_by"`
	CreatedAt   time.Time           `gorm:"autoCreateTime" json:"created_at"`
	FinishedBy  *int                `json:"finished_by"`
	FinishedAt  *time.Time          `json:"finished_at"`
	UpdatedAt   time.Time           `gorm:"autoUpdateTime" json:"updated_at"`
}

type StockDocumentItem struct {
	ID              int             `gorm:"primary_key" json:"id"`
	StockDocumentId int             `gorm:"index;not null" json:"stock_document_id"`
	ProductId       int             `gorm:"index;not null" json:"product_id"`
	ProductName     string          `gorm:"size:255;not null" json:"product_name"`
	ProductSku      string          `gorm:"size:100" json:"product_sku"`
	Barcode         string          `gorm:"size:100" json:"barcode"`
	Unit            string          `gorm:"size:20" json:"unit"`
	Declared        decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"declared"`
	Actual          decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"actual"`
	SupplyPrice     decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"supply_price"`
	RetailPrice     decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"retail_price"`
	DiffQty         decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"diff_qty"`
	DiffAmount      decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"diff_amount"`
	CreatedAt       time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt       time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

// DocumentTotals are always recomputed from the full item list, never adjusted
// incrementally, so DiffAmount stays the exact sum of line contributions.
type DocumentTotals struct {
	TotalQty      decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"total_qty"`
	ShortageQty   decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"shortage_qty"`
	SurplusQty    decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"surplus_qty"`
	ShortageCost  decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"shortage_cost"`
	SurplusRetail decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"surplus_retail"`
	DiffAmount    decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"diff_amount"`
}

type NewStockDocument struct {
	DocumentType    string `json:"document_type" binding:"required"`
	ShopId          int    `json:"shop_id"`
	DepartureShopId int    `json:"departure_shop_id"`
	ArrivalShopId   int    `json:"arrival_shop_id"`
	PriceMode       string `json:"price_mode"`
	Description     string `json:"description"`
}

type StockDocumentsConnection struct {
	Edges    []*StockDocumentsEdge `json:"edges"`
	PageInfo *PageInfo             `json:"pageInfo"`
}

type StockDocumentsEdge Edge[StockDocument]

func (obj StockDocument) GetId() int {
	return obj.ID
}

// returns decoded cursor string
func (doc StockDocument) GetCursor() string {
	return doc.CreatedAt.String()
}

// EnsureEditable guards every mutation: once a document leaves New it is
// read-only forever.
func (doc *StockDocument) EnsureEditable() error {
	if doc.CurrentStatus != DocumentStatusNew {
		return utils.ErrorInvalidDocumentState
	}
	return nil
}

func (input *NewStockDocument) validate(ctx context.Context, businessId string) (DocumentType, *PriceMode, error) {
	docType, err := ParseDocumentType(input.DocumentType)
	if err != nil {
		return "", nil, utils.NewValidationError("document_type", err.Error())
	}

	var priceMode *PriceMode
	if docType == DocumentTypeRepricing {
		parsed, err := ParsePriceMode(input.PriceMode)
		if err != nil {
			return "", nil, utils.NewValidationError("price_mode", "repricing documents require a price mode")
		}
		priceMode = &parsed
	}

	if docType.SingleShop() {
		if input.ShopId == 0 {
			return "", nil, utils.NewValidationError("shop_id", "target shop is required")
		}
		if err := utils.ValidateResourceId[Shop](ctx, businessId, input.ShopId); err != nil {
			return "", nil, errors.New("shop not found")
		}
	} else {
		if input.DepartureShopId == 0 || input.ArrivalShopId == 0 {
			return "", nil, utils.NewValidationError("shop_id", "transfer documents require departure and arrival shops")
		}
		if input.DepartureShopId == input.ArrivalShopId {
			return "", nil, utils.NewValidationError("shop_id", "departure and arrival shops must differ")
		}
		if err := utils.ValidateResourcesId[Shop, int](ctx, businessId, []int{input.DepartureShopId, input.ArrivalShopId}); err != nil {
			return "", nil, errors.New("shop not found")
		}
	}
	return docType, priceMode, nil
}

func CreateStockDocument(ctx context.Context, input *NewStockDocument) (*StockDocument, error) {

	db := config.GetDB()
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}
	userId, ok := utils.GetUserIdFromContext(ctx)
	if !ok || userId == 0 {
		return nil, errors.New("user id is required")
	}

	docType, priceMode, err := input.validate(ctx, businessId)
	if err != nil {
		return nil, err
	}

	doc := StockDocument{
		BusinessId:      businessId,
		DocumentType:    docType,
		CurrentStatus:   DocumentStatusNew,
		ShopId:          input.ShopId,
		DepartureShopId: input.DepartureShopId,
		ArrivalShopId:   input.ArrivalShopId,
		PriceMode:       priceMode,
		Description:     input.Description,
		CreatedBy:       userId,
	}

	tx := db.WithContext(ctx).Begin()
	doc.DocumentNumber, err = NextDocumentNumber(tx, businessId, docType)
	if err != nil {
		tx.Rollback()
		return nil, err
	}
	if err := tx.Create(&doc).Error; err != nil {
		tx.Rollback()
		return nil, err
	}
	if err := tx.Commit().Error; err != nil {
		return nil, err
	}
	return &doc, nil
}

func GetStockDocument(ctx context.Context, id int) (*StockDocument, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}
	return utils.FetchModel[StockDocument](ctx, businessId, id, "Items")
}

func PaginateStockDocuments(
	ctx context.Context,
	docType *DocumentType,
	status *DocumentStatus,
	shopId *int,
	limit int,
	after *string,
) (*StockDocumentsConnection, error) {

	db := config.GetDB()
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}
	if limit <= 0 || limit > 100 {
		limit = 20
	}

	dbCtx := db.WithContext(ctx).Model(&StockDocument{}).Where("business_id = ?", businessId)
	if docType != nil {
		dbCtx = dbCtx.Where("document_type = ?", *docType)
	}
	if status != nil {
		dbCtx = dbCtx.Where("current_status = ?", *status)
	}
	if shopId != nil && *shopId > 0 {
		dbCtx = dbCtx.Where("shop_id = ? OR departure_shop_id = ? OR arrival_shop_id = ?", *shopId, *shopId, *shopId)
	}

	edges, pageInfo, err := FetchPagePureCursor[StockDocument](dbCtx, limit, after, "created_at", "<")
	if err != nil {
		return nil, err
	}

	connection := StockDocumentsConnection{PageInfo: pageInfo}
	for i := range edges {
		edge := StockDocumentsEdge(edges[i])
		connection.Edges = append(connection.Edges, &edge)
	}
	return &connection, nil
}

// ReplaceDocumentItems persists a full item-list replacement plus recomputed
// totals, guarded by the autosave version: a commit whose version is not newer
// than the stored one was superseded and is dropped (ErrorStaleVersion).
// Only New documents accept replacements.
func ReplaceDocumentItems(ctx context.Context, docId int, version int64, items []StockDocumentItem, totals DocumentTotals) error {

	db := config.GetDB()
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return errors.New("business id is required")
	}

	tx := db.WithContext(ctx).Begin()

	var doc StockDocument
	if err := tx.Where("business_id = ?", businessId).First(&doc, docId).Error; err != nil {
		tx.Rollback()
		return utils.ErrorRecordNotFound
	}
	if err := doc.EnsureEditable(); err != nil {
		tx.Rollback()
		return err
	}
	if version <= doc.SyncVersion {
		tx.Rollback()
		return utils.ErrorStaleVersion
	}

	if err := tx.Where("stock_document_id = ?", docId).Delete(&StockDocumentItem{}).Error; err != nil {
		tx.Rollback()
		return err
	}
	for i := range items {
		items[i].ID = 0
		items[i].StockDocumentId = docId
	}
	if len(items) > 0 {
		if err := tx.Create(&items).Error; err != nil {
			tx.Rollback()
			return err
		}
	}

	if err := tx.Model(&StockDocument{}).Where("id = ?", docId).Updates(map[string]interface{}{
		"sync_version":   version,
		"total_qty":      totals.TotalQty,
		"shortage_qty":   totals.ShortageQty,
		"surplus_qty":    totals.SurplusQty,
		"shortage_cost":  totals.ShortageCost,
		"surplus_retail": totals.SurplusRetail,
		"diff_amount":    totals.DiffAmount,
	}).Error; err != nil {
		tx.Rollback()
		return err
	}

	return tx.Commit().Error
}
