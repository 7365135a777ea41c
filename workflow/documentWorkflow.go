package workflow

import (
	"context"
	"errors"
	"fmt"
	"time"

	"bitbucket.org/mmdatafocus/stockdocs_backend/config"
	"bitbucket.org/mmdatafocus/stockdocs_backend/models"
	"bitbucket.org/mmdatafocus/stockdocs_backend/utils"
	"github.com/bsm/redislock"
	"github.com/shopspring/decimal"
	"gorm.io/gorm/clause"
)

// ErrFinalizeInProgress is returned when another actor holds the finalize lock
// for the same document. Callers should re-check document status before
// retrying: the other finalize may have won.
var ErrFinalizeInProgress = errors.New("finalize already in progress for this document")

// snapshotShopId picks the shop whose stock supplies declared values. For
// transfers that is the departure shop: you can only send what it holds.
func snapshotShopId(doc *models.StockDocument) int {
	if doc.DocumentType == models.DocumentTypeTransfer {
		return doc.DepartureShopId
	}
	return doc.ShopId
}

// buildSnapshotLookup loads authoritative snapshots for every existing line
// plus the edit target (by id or scanned barcode).
func buildSnapshotLookup(ctx context.Context, doc *models.StockDocument, edit *models.ItemEdit) (*models.SnapshotLookup, error) {
	shopId := snapshotShopId(doc)

	ids := make([]int, 0, len(doc.Items)+1)
	for i := range doc.Items {
		ids = append(ids, doc.Items[i].ProductId)
	}
	if edit != nil && edit.ProductId > 0 {
		ids = append(ids, edit.ProductId)
	}

	snaps, err := models.GetProductSnapshotsByIds(ctx, shopId, ids)
	if err != nil {
		return nil, err
	}

	if edit != nil && edit.ProductId == 0 && edit.Barcode != "" {
		snap, err := models.GetProductSnapshotByBarcode(ctx, shopId, edit.Barcode)
		if err != nil && err != utils.ErrorRecordNotFound {
			return nil, err
		}
		if snap != nil {
			snaps = append(snaps, snap)
		}
	}
	return models.NewSnapshotLookup(snaps), nil
}

// EditStockDocument runs one edit through reconciliation and valuation and
// returns the updated document. Persistence is the autosave queue's job; the
// caller enqueues the result. Terminal documents reject every edit.
func EditStockDocument(ctx context.Context, docId int, edit models.ItemEdit) (*models.StockDocument, error) {

	doc, err := models.GetStockDocument(ctx, docId)
	if err != nil {
		return nil, err
	}
	if err := doc.EnsureEditable(); err != nil {
		return nil, err
	}

	lookup, err := buildSnapshotLookup(ctx, doc, &edit)
	if err != nil {
		return nil, err
	}

	items, err := models.ReconcileEdit(doc.DocumentType, utils.DereferencePtr(doc.PriceMode), doc.Items, lookup, edit)
	if err != nil {
		return nil, err
	}

	doc.Items = models.RevalueItems(doc.DocumentType, items)
	doc.Totals = models.ComputeDocumentTotals(doc.DocumentType, doc.Items)
	return doc, nil
}

// BulkRepriceStockDocument applies a percentage change to the selected lines
// of a repricing document and returns the updated document.
func BulkRepriceStockDocument(ctx context.Context, docId int, productIds []int, percent decimal.Decimal) (*models.StockDocument, error) {

	doc, err := models.GetStockDocument(ctx, docId)
	if err != nil {
		return nil, err
	}
	if err := doc.EnsureEditable(); err != nil {
		return nil, err
	}
	if doc.DocumentType != models.DocumentTypeRepricing {
		return nil, utils.NewValidationError("document_type", "bulk reprice applies to repricing documents only")
	}
	if len(productIds) == 0 {
		return nil, utils.NewValidationError("product_ids", "no lines selected")
	}

	business, err := models.GetBusiness(ctx, doc.BusinessId)
	if err != nil {
		return nil, err
	}
	prefs := business.DisplayPreferences()

	items := models.ApplyPercentToItems(doc.Items, productIds, percent, prefs.PriceScale)
	doc.Items = models.RevalueItems(doc.DocumentType, items)
	doc.Totals = models.ComputeDocumentTotals(doc.DocumentType, doc.Items)
	return doc, nil
}

// FinalizeStockDocument performs the single terminal transition of a document.
//
// Approve recomputes the reconciliation/valuation one final time, flips the
// status and applies the stock mutation per line, all inside one transaction:
// either everything commits or nothing does. Reject flips the status only.
// A document that already left New always returns ErrorInvalidDocumentState.
func FinalizeStockDocument(ctx context.Context, docId int, action models.FinalizeAction) (*models.StockDocument, error) {

	db := config.GetDB()
	logger := config.GetLogger()

	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}
	userId, ok := utils.GetUserIdFromContext(ctx)
	if !ok || userId == 0 {
		return nil, errors.New("user id is required")
	}

	// Serialize finalize per document across instances. The loser of a race
	// re-checks status and observes the terminal document.
	if locker := config.GetRedisLock(); locker != nil {
		lock, err := locker.Obtain(ctx, fmt.Sprintf("finalize:doc:%d", docId), 30*time.Second, nil)
		if err == redislock.ErrNotObtained {
			return nil, ErrFinalizeInProgress
		}
		if err != nil {
			return nil, err
		}
		defer lock.Release(context.Background())
	}

	tx := db.WithContext(ctx).Begin()

	var doc models.StockDocument
	if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Preload("Items").
		Where("business_id = ?", businessId).
		First(&doc, docId).Error; err != nil {
		tx.Rollback()
		return nil, utils.ErrorRecordNotFound
	}
	if err := doc.EnsureEditable(); err != nil {
		tx.Rollback()
		return nil, err
	}

	now := time.Now().UTC()
	doc.FinishedAt = &now
	doc.FinishedBy = &userId

	if action == models.FinalizeActionApprove {
		// A gated-off type must not approve at all: an Approved document whose
		// stock never moved would break the books. Rejection stays available.
		if !config.UseStockApplyFor(string(doc.DocumentType)) {
			tx.Rollback()
			return nil, utils.NewValidationError("document_type", "approval is disabled for this document type")
		}

		// One last reconciliation/valuation pass against fresh snapshots.
		lookup, err := buildSnapshotLookup(ctx, &doc, nil)
		if err != nil {
			tx.Rollback()
			return nil, err
		}
		items := models.ReconcileRefresh(doc.DocumentType, utils.DereferencePtr(doc.PriceMode), doc.Items, lookup)
		doc.Items = models.RevalueItems(doc.DocumentType, items)
		doc.Totals = models.ComputeDocumentTotals(doc.DocumentType, doc.Items)
		doc.CurrentStatus = models.DocumentStatusApproved

		if err := tx.Where("stock_document_id = ?", doc.ID).Delete(&models.StockDocumentItem{}).Error; err != nil {
			tx.Rollback()
			return nil, err
		}
		for i := range doc.Items {
			doc.Items[i].ID = 0
			doc.Items[i].StockDocumentId = doc.ID
		}
		if len(doc.Items) > 0 {
			if err := tx.Create(&doc.Items).Error; err != nil {
				tx.Rollback()
				return nil, err
			}
		}

		if err := ApplyDocumentStock(tx, &doc); err != nil {
			tx.Rollback()
			config.LogError(logger, "documentWorkflow.go", "FinalizeStockDocument", "ApplyDocumentStock", doc.ID, err)
			return nil, err
		}
	} else {
		doc.CurrentStatus = models.DocumentStatusRejected
	}

	if err := tx.Model(&models.StockDocument{}).Where("id = ?", doc.ID).Updates(map[string]interface{}{
		"current_status": doc.CurrentStatus,
		"finished_at":    doc.FinishedAt,
		"finished_by":    doc.FinishedBy,
		"total_qty":      doc.Totals.TotalQty,
		"shortage_qty":   doc.Totals.ShortageQty,
		"surplus_qty":    doc.Totals.SurplusQty,
		"shortage_cost":  doc.Totals.ShortageCost,
		"surplus_retail": doc.Totals.SurplusRetail,
		"diff_amount":    doc.Totals.DiffAmount,
	}).Error; err != nil {
		tx.Rollback()
		return nil, err
	}

	// A failed commit here means status flip and stock mutation both rolled
	// back. Surfaced as fatal: the operator re-checks document status before
	// any retry.
	if err := tx.Commit().Error; err != nil {
		config.LogError(logger, "documentWorkflow.go", "FinalizeStockDocument", "Commit", doc.ID, err)
		return nil, err
	}

	GetAutosaveQueue().Forget(doc.ID)
	return &doc, nil
}
