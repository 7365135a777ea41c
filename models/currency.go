package models

import (
	"context"
	"errors"
	"time"

	"bitbucket.org/mmdatafocus/stockdocs_backend/config"
	"bitbucket.org/mmdatafocus/stockdocs_backend/utils"
)

type Currency struct {
	ID            int       `gorm:"primary_key" json:"id"`
	BusinessId    string    `gorm:"index;not null" json:"business_id"`
	Name          string    `gorm:"size:100;not null" json:"name" binding:"required"`
	Symbol        string    `gorm:"size:10;not null" json:"symbol" binding:"required"`
	DecimalPlaces int       `gorm:"default:0" json:"decimal_places"`
	CreatedAt     time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt     time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

type NewCurrency struct {
	Name          string `json:"name" binding:"required"`
	Symbol        string `json:"symbol" binding:"required"`
	DecimalPlaces int    `json:"decimal_places"`
}

func (input *NewCurrency) validate(ctx context.Context, businessId string, id int) error {
	return utils.ValidateUnique[Currency](ctx, businessId, "symbol", input.Symbol, id)
}

func CreateCurrency(ctx context.Context, input *NewCurrency) (*Currency, error) {

	db := config.GetDB()
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}

	if err := input.validate(ctx, businessId, 0); err != nil {
		return nil, err
	}

	currency := Currency{
		BusinessId:    businessId,
		Name:          input.Name,
		Symbol:        input.Symbol,
		DecimalPlaces: input.DecimalPlaces,
	}

	err := db.WithContext(ctx).Create(&currency).Error
	if err != nil {
		return nil, err
	}
	return &currency, nil
}

func GetCurrency(ctx context.Context, id int) (*Currency, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}
	return utils.FetchModel[Currency](ctx, businessId, id)
}

func GetCurrencies(ctx context.Context) ([]*Currency, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}
	return utils.FetchAllModels[Currency](ctx, businessId)
}
