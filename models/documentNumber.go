package models

import (
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// DocumentNumberSeries hands out the sequential display numbers shown to staff
// (one counter per business + document type).
type DocumentNumberSeries struct {
	ID           int          `gorm:"primary_key" json:"id"`
	BusinessId   string       `gorm:"uniqueIndex:idx_series_biz_type;not null" json:"business_id"`
	DocumentType DocumentType `gorm:"uniqueIndex:idx_series_biz_type;type:enum('Count','Transfer','WriteOff','Repricing');not null" json:"document_type"`
	Prefix       string       `gorm:"size:10" json:"prefix"`
	NextNumber   int          `gorm:"not null;default:1" json:"next_number"`
	CreatedAt    time.Time    `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt    time.Time    `gorm:"autoUpdateTime" json:"updated_at"`
}

func defaultSeriesPrefix(docType DocumentType) string {
	switch docType {
	case DocumentTypeCount:
		return "CNT"
	case DocumentTypeTransfer:
		return "TRF"
	case DocumentTypeWriteOff:
		return "WRO"
	case DocumentTypeRepricing:
		return "RPR"
	default:
		return "DOC"
	}
}

// NextDocumentNumber allocates the next display number inside the caller's
// transaction. The series row is locked FOR UPDATE so concurrent creates never
// hand out the same number.
func NextDocumentNumber(tx *gorm.DB, businessId string, docType DocumentType) (string, error) {
	var series DocumentNumberSeries
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("business_id = ? AND document_type = ?", businessId, docType).
		First(&series).Error
	if err == gorm.ErrRecordNotFound {
		series = DocumentNumberSeries{
			BusinessId:   businessId,
			DocumentType: docType,
			Prefix:       defaultSeriesPrefix(docType),
			NextNumber:   1,
		}
		if err := tx.Create(&series).Error; err != nil {
			return "", err
		}
	} else if err != nil {
		return "", err
	}

	number := fmt.Sprintf("%s-%06d", series.Prefix, series.NextNumber)
	if err := tx.Model(&DocumentNumberSeries{}).Where("id = ?", series.ID).
		Update("next_number", gorm.Expr("next_number + 1")).Error; err != nil {
		return "", err
	}
	return number, nil
}
