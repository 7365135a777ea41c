package reports

import (
	"context"
	"errors"
	"time"

	"bitbucket.org/mmdatafocus/stockdocs_backend/config"
	"bitbucket.org/mmdatafocus/stockdocs_backend/utils"
	"github.com/shopspring/decimal"
)

type VarianceReportResponse struct {
	ProductId     int             `json:"productId"`
	ProductName   string          `json:"productName"`
	ProductSku    string          `json:"productSku,omitempty"`
	DocumentCount int             `json:"documentCount"`
	ShortageQty   decimal.Decimal `json:"shortageQty"`
	SurplusQty    decimal.Decimal `json:"surplusQty"`
	NetDiffQty    decimal.Decimal `json:"netDiffQty"`
	NetDiffAmount decimal.Decimal `json:"netDiffAmount"`
}

// GetVarianceReport aggregates per-product discrepancies across approved
// count documents in a date range. Transfers and write-offs are excluded:
// their quantities are intentional movements, not variance.
func GetVarianceReport(ctx context.Context, fromDate time.Time, toDate time.Time, shopId *int) ([]*VarianceReportResponse, error) {

	sql := `
SELECT
    sdi.product_id,
    sdi.product_name,
    sdi.product_sku,
    COUNT(DISTINCT sd.id) AS document_count,
    SUM(CASE WHEN sdi.diff_qty < 0 THEN ABS(sdi.diff_qty) ELSE 0 END) AS shortage_qty,
    SUM(CASE WHEN sdi.diff_qty > 0 THEN sdi.diff_qty ELSE 0 END) AS surplus_qty,
    SUM(sdi.diff_qty) AS net_diff_qty,
    SUM(sdi.diff_amount) AS net_diff_amount
FROM stock_document_items sdi
JOIN stock_documents sd ON sd.id = sdi.stock_document_id
WHERE sd.business_id = @businessId
  AND sd.document_type = 'Count'
  AND sd.current_status = 'Approved'
  AND sd.finished_at >= @fromDate
  AND sd.finished_at < @toDate
  AND (@shopId = 0 OR sd.shop_id = @shopId)
GROUP BY sdi.product_id, sdi.product_name, sdi.product_sku
ORDER BY ABS(SUM(sdi.diff_amount)) DESC;
`
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}
	if !toDate.After(fromDate) {
		return nil, errors.New("to date must be after from date")
	}

	var results []*VarianceReportResponse
	db := config.GetDB()
	if err := db.WithContext(ctx).Raw(sql, map[string]interface{}{
		"businessId": businessId,
		"fromDate":   fromDate,
		"toDate":     toDate,
		"shopId":     utils.DereferencePtr(shopId),
	}).Scan(&results).Error; err != nil {
		return nil, err
	}

	return results, nil
}
