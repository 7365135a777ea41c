package reports

import (
	"context"
	"fmt"

	"bitbucket.org/mmdatafocus/stockdocs_backend/models"
	"github.com/xuri/excelize/v2"
)

// BuildDocumentWorkbook renders a stock document as an xlsx workbook with a
// header block followed by one row per line. Amounts are exported in base
// currency; display conversion is the client's concern.
func BuildDocumentWorkbook(ctx context.Context, doc *models.StockDocument) (*excelize.File, error) {

	f := excelize.NewFile()
	sheet := "Document"
	index, err := f.NewSheet(sheet)
	if err != nil {
		return nil, err
	}
	f.SetActiveSheet(index)
	f.DeleteSheet("Sheet1")

	f.SetCellValue(sheet, "A1", "Document Number")
	f.SetCellValue(sheet, "B1", doc.DocumentNumber)
	f.SetCellValue(sheet, "A2", "Type")
	f.SetCellValue(sheet, "B2", string(doc.DocumentType))
	f.SetCellValue(sheet, "A3", "Status")
	f.SetCellValue(sheet, "B3", string(doc.CurrentStatus))
	f.SetCellValue(sheet, "A4", "Created At")
	f.SetCellValue(sheet, "B4", doc.CreatedAt.Format("2006-01-02 15:04"))
	if doc.FinishedAt != nil {
		f.SetCellValue(sheet, "A5", "Finished At")
		f.SetCellValue(sheet, "B5", doc.FinishedAt.Format("2006-01-02 15:04"))
	}

	headerRow := 7
	headings := []string{"Product", "SKU", "Barcode", "Unit", "Declared", "Actual", "Supply Price", "Retail Price", "Diff Qty", "Diff Amount"}
	for i, h := range headings {
		cell, err := excelize.CoordinatesToCellName(i+1, headerRow)
		if err != nil {
			return nil, err
		}
		f.SetCellValue(sheet, cell, h)
	}

	for i := range doc.Items {
		item := &doc.Items[i]
		row := headerRow + 1 + i
		values := []interface{}{
			item.ProductName,
			item.ProductSku,
			item.Barcode,
			item.Unit,
			item.Declared.InexactFloat64(),
			item.Actual.InexactFloat64(),
			item.SupplyPrice.InexactFloat64(),
			item.RetailPrice.InexactFloat64(),
			item.DiffQty.InexactFloat64(),
			item.DiffAmount.InexactFloat64(),
		}
		for col, value := range values {
			cell, err := excelize.CoordinatesToCellName(col+1, row)
			if err != nil {
				return nil, err
			}
			f.SetCellValue(sheet, cell, value)
		}
	}

	totalsRow := headerRow + len(doc.Items) + 2
	f.SetCellValue(sheet, fmt.Sprintf("A%d", totalsRow), "Totals")
	f.SetCellValue(sheet, fmt.Sprintf("E%d", totalsRow), doc.Totals.TotalQty.InexactFloat64())
	f.SetCellValue(sheet, fmt.Sprintf("I%d", totalsRow), doc.Totals.DiffAmount.InexactFloat64())
	f.SetCellValue(sheet, fmt.Sprintf("A%d", totalsRow+1), "Shortage Qty / Cost")
	f.SetCellValue(sheet, fmt.Sprintf("E%d", totalsRow+1), doc.Totals.ShortageQty.InexactFloat64())
	f.SetCellValue(sheet, fmt.Sprintf("I%d", totalsRow+1), doc.Totals.ShortageCost.InexactFloat64())
	f.SetCellValue(sheet, fmt.Sprintf("A%d", totalsRow+2), "Surplus Qty / Retail")
	f.SetCellValue(sheet, fmt.Sprintf("E%d", totalsRow+2), doc.Totals.SurplusQty.InexactFloat64())
	f.SetCellValue(sheet, fmt.Sprintf("I%d", totalsRow+2), doc.Totals.SurplusRetail.InexactFloat64())

	return f, nil
}
