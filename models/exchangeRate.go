package models

import (
	"context"
	"errors"
	"time"

	"bitbucket.org/mmdatafocus/stockdocs_backend/config"
	"bitbucket.org/mmdatafocus/stockdocs_backend/utils"
	"github.com/shopspring/decimal"
)

// ExchangeRate is one validity window of the display-currency conversion rate:
// units of base currency per 1 display-currency unit. Windows are chronological
// and non-overlapping; at most one record is open-ended (EndAt nil), the
// currently effective one. CreateExchangeRate maintains that invariant.
type ExchangeRate struct {
	ID         int             `gorm:"primary_key" json:"id"`
	BusinessId string          `gorm:"index;not null" json:"business_id"`
	CurrencyId int             `gorm:"index;not null" json:"currency_id"`
	Rate       decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"rate"`
	StartAt    time.Time       `gorm:"index;not null" json:"start_at"`
	EndAt      *time.Time      `gorm:"index" json:"end_at"`
	Notes      string          `gorm:"size:255" json:"notes"`
	CreatedAt  time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt  time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

type NewExchangeRate struct {
	CurrencyId int             `json:"currency_id" binding:"required"`
	Rate       decimal.Decimal `json:"rate" binding:"required"`
	Notes      string          `json:"notes"`
}

// DisplayPreferences is the explicit per-request configuration for money
// display. Engines take it as an argument; nothing reads ambient state.
type DisplayPreferences struct {
	BaseCurrencyId    int
	DisplayCurrencyId int
	LiveRate          decimal.Decimal
	PriceScale        int32
}

func (p DisplayPreferences) RoundPrice(d decimal.Decimal) decimal.Decimal {
	return d.Round(p.PriceScale)
}

func exchangeRateCacheKey(businessId string) string {
	return "ExchangeRates:" + businessId
}

func (input *NewExchangeRate) validate(ctx context.Context, businessId string) error {
	if input.Rate.LessThanOrEqual(decimal.Zero) {
		return utils.NewValidationError("rate", "rate must be positive")
	}
	if err := utils.ValidateResourceId[Currency](ctx, businessId, input.CurrencyId); err != nil {
		return errors.New("currency not found")
	}
	return nil
}

// CreateExchangeRate opens a new rate window at now and closes the previous
// open record at the same instant, so windows never overlap. The business live
// rate follows the newest record.
func CreateExchangeRate(ctx context.Context, input *NewExchangeRate) (*ExchangeRate, error) {

	db := config.GetDB()
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}

	if err := input.validate(ctx, businessId); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	rate := ExchangeRate{
		BusinessId: businessId,
		CurrencyId: input.CurrencyId,
		Rate:       input.Rate,
		StartAt:    now,
		Notes:      input.Notes,
	}

	tx := db.WithContext(ctx).Begin()
	if err := tx.Model(&ExchangeRate{}).
		Where("business_id = ? AND currency_id = ? AND end_at IS NULL", businessId, input.CurrencyId).
		Update("end_at", now).Error; err != nil {
		tx.Rollback()
		return nil, err
	}
	if err := tx.Create(&rate).Error; err != nil {
		tx.Rollback()
		return nil, err
	}
	if err := tx.Model(&Business{}).Where("id = ?", businessId).
		Update("live_rate", input.Rate).Error; err != nil {
		tx.Rollback()
		return nil, err
	}
	if err := tx.Commit().Error; err != nil {
		return nil, err
	}

	if err := config.RemoveRedisKey(exchangeRateCacheKey(businessId)); err != nil {
		config.LogError(config.GetLogger(), "exchangeRate.go", "CreateExchangeRate", "RemoveRedisKey", businessId, err)
	}
	return &rate, nil
}

// GetExchangeRates returns rate windows newest first.
func GetExchangeRates(ctx context.Context, limit int) ([]*ExchangeRate, error) {

	db := config.GetDB()
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}
	if limit <= 0 || limit > 500 {
		limit = 100
	}

	var results []*ExchangeRate
	err := db.WithContext(ctx).
		Where("business_id = ?", businessId).
		Order("start_at desc").
		Limit(limit).
		Find(&results).Error
	if err != nil {
		return nil, err
	}
	return results, nil
}

// listExchangeRatesCached reads the full rate history through redis. Resolution
// runs on every money display, so the window list is worth caching; a miss or a
// redis outage falls through to the database.
func listExchangeRatesCached(ctx context.Context, businessId string) ([]*ExchangeRate, error) {
	key := exchangeRateCacheKey(businessId)

	var cached []*ExchangeRate
	found, err := config.GetRedisObject(key, &cached)
	if err == nil && found {
		return cached, nil
	}

	db := config.GetDB()
	var results []*ExchangeRate
	if err := db.WithContext(ctx).
		Where("business_id = ?", businessId).
		Order("start_at desc").
		Find(&results).Error; err != nil {
		return nil, err
	}

	if err := config.SetRedisObject(key, results, time.Hour); err != nil {
		config.LogError(config.GetLogger(), "exchangeRate.go", "listExchangeRatesCached", "SetRedisObject", businessId, err)
	}
	return results, nil
}

// ResolveRateAt finds the rate window covering the timestamp. When no window
// matches (timestamp predates the first record, or no records), it returns the
// live rate and resolved=false. That degradation is silent: money display must
// never hard-fail on a missing window.
func ResolveRateAt(records []*ExchangeRate, at time.Time, liveRate decimal.Decimal) (rate decimal.Decimal, resolved bool) {
	for _, r := range records {
		if r == nil {
			continue
		}
		if r.StartAt.After(at) {
			continue
		}
		if r.EndAt == nil || at.Before(*r.EndAt) {
			return r.Rate, true
		}
	}
	return liveRate, false
}

// ResolveRate is the I/O wrapper around ResolveRateAt: loads the window list
// (cached) and logs a warning when the lookup fell back to the live rate.
func ResolveRate(ctx context.Context, businessId string, at time.Time, prefs DisplayPreferences) decimal.Decimal {
	records, err := listExchangeRatesCached(ctx, businessId)
	if err != nil {
		config.LogWarn(config.GetLogger(), "exchangeRate.go", "ResolveRate", "listExchangeRatesCached", businessId,
			"rate history unavailable; using live rate: "+err.Error())
		return prefs.LiveRate
	}
	return resolveOrWarn(records, at, prefs, businessId)
}

func resolveOrWarn(records []*ExchangeRate, at time.Time, prefs DisplayPreferences, businessId string) decimal.Decimal {
	rate, resolved := ResolveRateAt(records, at, prefs.LiveRate)
	if !resolved {
		config.LogWarn(config.GetLogger(), "exchangeRate.go", "ResolveRate", "ResolveRateAt",
			map[string]interface{}{"business_id": businessId, "at": at},
			"no rate window covers timestamp; using live rate")
	}
	return rate
}

// ConvertAmount converts a base-currency amount using an already resolved
// rate. A zero rate means conversion is not configured; the base amount is
// returned unchanged rather than divided by zero.
func ConvertAmount(amountBase, rate decimal.Decimal) decimal.Decimal {
	if rate.IsZero() {
		return amountBase
	}
	return amountBase.Div(rate)
}

// ConvertDocumentTotals converts the money fields of a totals block at the
// given rate, rounding to the display price scale. Quantity fields carry no
// currency and pass through unchanged.
func ConvertDocumentTotals(totals DocumentTotals, rate decimal.Decimal, prefs DisplayPreferences) DocumentTotals {
	totals.ShortageCost = prefs.RoundPrice(ConvertAmount(totals.ShortageCost, rate))
	totals.SurplusRetail = prefs.RoundPrice(ConvertAmount(totals.SurplusRetail, rate))
	totals.DiffAmount = prefs.RoundPrice(ConvertAmount(totals.DiffAmount, rate))
	return totals
}

// DisplayDocumentTotals converts a document's totals into the requested
// display currency, resolving the rate in effect when the document was
// finished (or now for documents still in progress). Requests in the base
// currency are a passthrough.
func DisplayDocumentTotals(ctx context.Context, doc *StockDocument, displayCurrencyId int) (*DocumentTotals, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}
	business, err := GetBusiness(ctx, businessId)
	if err != nil {
		return nil, err
	}
	prefs := business.DisplayPreferences()

	totals := doc.Totals
	if displayCurrencyId == 0 || displayCurrencyId == prefs.BaseCurrencyId {
		return &totals, nil
	}
	if err := utils.ValidateResourceId[Currency](ctx, businessId, displayCurrencyId); err != nil {
		return nil, utils.NewValidationError("currency", "currency not found")
	}

	at := time.Now().UTC()
	if doc.FinishedAt != nil {
		at = *doc.FinishedAt
	}
	rate := ResolveRate(ctx, businessId, at, prefs)
	totals = ConvertDocumentTotals(totals, rate, prefs)
	return &totals, nil
}
