package models

import (
	"context"
	"time"

	"bitbucket.org/mmdatafocus/stockdocs_backend/config"
	"bitbucket.org/mmdatafocus/stockdocs_backend/utils"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type Business struct {
	ID                uuid.UUID       `gorm:"primary_key" json:"id"`
	Name              string          `gorm:"index;size:100;not null" json:"name" binding:"required"`
	Email             string          `gorm:"size:255" json:"email"`
	Phone             string          `gorm:"size:20" json:"phone"`
	Address           string          `gorm:"type:text" json:"address"`
	Timezone          string          `gorm:"size:50" json:"timezone"`
	BaseCurrencyId    int             `json:"base_currency_id"`
	DisplayCurrencyId int             `json:"display_currency_id"`
	// LiveRate is the currently configured conversion rate (base units per one
	// display-currency unit). Historical amounts resolve against exchange_rates;
	// this is only the fallback and the rate for fresh documents.
	LiveRate   decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"live_rate"`
	PriceScale int32           `gorm:"default:0" json:"price_scale"`
	IsActive   *bool           `gorm:"not null;default:true" json:"is_active"`
	CreatedAt  time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt  time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

type NewBusiness struct {
	Name     string `json:"name" binding:"required"`
	Email    string `json:"email"`
	Phone    string `json:"phone"`
	Address  string `json:"address"`
	Timezone string `json:"timezone"`
}

func CreateBusiness(ctx context.Context, input *NewBusiness) (*Business, error) {
	db := config.GetDB()

	business := Business{
		ID:       uuid.New(),
		Name:     input.Name,
		Email:    input.Email,
		Phone:    input.Phone,
		Address:  input.Address,
		Timezone: input.Timezone,
		LiveRate: decimal.NewFromInt(1),
	}
	if err := db.WithContext(ctx).Create(&business).Error; err != nil {
		return nil, err
	}
	return &business, nil
}

func GetBusiness(ctx context.Context, businessId string) (*Business, error) {
	db := config.GetDB()
	var business Business
	err := db.WithContext(ctx).Where("id = ?", businessId).First(&business).Error
	if err != nil {
		return nil, utils.ErrorRecordNotFound
	}
	return &business, nil
}

// DisplayPreferences carries the per-business display settings into the pure
// engine functions. Engines never read globals; callers build this once per
// request from the Business row.
func (b *Business) DisplayPreferences() DisplayPreferences {
	return DisplayPreferences{
		BaseCurrencyId:    b.BaseCurrencyId,
		DisplayCurrencyId: b.DisplayCurrencyId,
		LiveRate:          b.LiveRate,
		PriceScale:        b.PriceScale,
	}
}
