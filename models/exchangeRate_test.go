package models

import (
	"testing"
	"time"

	"bitbucket.org/mmdatafocus/stockdocs_backend/config"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	logrustest "github.com/sirupsen/logrus/hooks/test"
)

func ts(s string) time.Time {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		panic(err)
	}
	return t
}

func tsPtr(s string) *time.Time {
	t := ts(s)
	return &t
}

// Two windows: 1000 through January 2024, 1100 open-ended from February on.
func rateHistory() []*ExchangeRate {
	return []*ExchangeRate{
		{Rate: dec("1100"), StartAt: ts("2024-02-01")},
		{Rate: dec("1000"), StartAt: ts("2024-01-01"), EndAt: tsPtr("2024-02-01")},
	}
}

func TestResolveRateAt_PicksCoveringWindow(t *testing.T) {
	live := dec("1200")

	rate, resolved := ResolveRateAt(rateHistory(), ts("2024-01-15"), live)
	if !resolved || !rate.Equal(dec("1000")) {
		t.Fatalf("mid-January should resolve to 1000, got %s (resolved=%v)", rate, resolved)
	}

	rate, resolved = ResolveRateAt(rateHistory(), ts("2024-03-01"), live)
	if !resolved || !rate.Equal(dec("1100")) {
		t.Fatalf("March falls in the open window, expected 1100, got %s (resolved=%v)", rate, resolved)
	}
}

func TestResolveRateAt_WindowBoundaries(t *testing.T) {
	live := dec("1200")

	// Window start is inclusive.
	rate, resolved := ResolveRateAt(rateHistory(), ts("2024-01-01"), live)
	if !resolved || !rate.Equal(dec("1000")) {
		t.Fatalf("start boundary should belong to its window, got %s (resolved=%v)", rate, resolved)
	}
	// Window end is exclusive: the new window owns the cutover instant.
	rate, resolved = ResolveRateAt(rateHistory(), ts("2024-02-01"), live)
	if !resolved || !rate.Equal(dec("1100")) {
		t.Fatalf("cutover instant should belong to the new window, got %s (resolved=%v)", rate, resolved)
	}
}

func TestResolveRateAt_FallsBackToLiveRate(t *testing.T) {
	live := dec("1200")

	// Timestamp before any window.
	rate, resolved := ResolveRateAt(rateHistory(), ts("2023-01-01"), live)
	if resolved || !rate.Equal(live) {
		t.Fatalf("pre-history timestamp should fall back to live rate, got %s (resolved=%v)", rate, resolved)
	}

	// Empty history.
	rate, resolved = ResolveRateAt(nil, ts("2024-01-15"), live)
	if resolved || !rate.Equal(live) {
		t.Fatalf("empty history should fall back to live rate, got %s (resolved=%v)", rate, resolved)
	}
}

func TestConvertAmount(t *testing.T) {
	// Historical amounts convert at the rate effective when they happened.
	rate, _ := ResolveRateAt(rateHistory(), ts("2024-01-15"), dec("1200"))
	if got := ConvertAmount(dec("5000"), rate); !got.Equal(dec("5")) {
		t.Fatalf("5000 at rate 1000 should display as 5, got %s", got)
	}
	rate, _ = ResolveRateAt(rateHistory(), ts("2024-03-01"), dec("1200"))
	if got := ConvertAmount(dec("5500"), rate); !got.Equal(dec("5")) {
		t.Fatalf("5500 at rate 1100 should display as 5, got %s", got)
	}

	// Zero rate: never divide, display the base amount.
	if got := ConvertAmount(dec("5000"), decimal.Zero); !got.Equal(dec("5000")) {
		t.Fatalf("zero rate must not divide, got %s", got)
	}
}

func TestConvertDocumentTotals_OnlyMoneyFieldsConvert(t *testing.T) {
	prefs := DisplayPreferences{BaseCurrencyId: 1, PriceScale: 2}
	totals := DocumentTotals{
		TotalQty:      dec("35"),
		ShortageQty:   dec("3"),
		SurplusQty:    dec("2"),
		ShortageCost:  dec("750"),
		SurplusRetail: dec("800"),
		DiffAmount:    dec("50"),
	}

	got := ConvertDocumentTotals(totals, dec("1000"), prefs)
	if !got.TotalQty.Equal(dec("35")) || !got.ShortageQty.Equal(dec("3")) || !got.SurplusQty.Equal(dec("2")) {
		t.Fatalf("quantity fields must pass through unchanged, got %+v", got)
	}
	if !got.ShortageCost.Equal(dec("0.75")) || !got.SurplusRetail.Equal(dec("0.8")) || !got.DiffAmount.Equal(dec("0.05")) {
		t.Fatalf("money fields should convert at rate 1000, got %+v", got)
	}
}

func TestResolveRate_WarnsWhenFallingBackToLiveRate(t *testing.T) {
	hook := logrustest.NewLocal(config.GetLogger())
	defer hook.Reset()

	prefs := DisplayPreferences{LiveRate: dec("1200")}

	// Timestamp predates every window: live rate, with a warning.
	if got := resolveOrWarn(rateHistory(), ts("2023-01-01"), prefs, "biz-1"); !got.Equal(dec("1200")) {
		t.Fatalf("expected live rate 1200, got %s", got)
	}
	entry := hook.LastEntry()
	if entry == nil || entry.Level != logrus.WarnLevel {
		t.Fatalf("fallback to live rate must log a warning, got %+v", entry)
	}

	// Covered timestamp: window rate, no warning.
	hook.Reset()
	if got := resolveOrWarn(rateHistory(), ts("2024-01-15"), prefs, "biz-1"); !got.Equal(dec("1000")) {
		t.Fatalf("expected window rate 1000, got %s", got)
	}
	if len(hook.AllEntries()) != 0 {
		t.Fatalf("window hits must not warn, got %+v", hook.AllEntries())
	}
}

func TestRoundPrice(t *testing.T) {
	prefs := DisplayPreferences{PriceScale: 0}
	if got := prefs.RoundPrice(dec("366.3")); !got.Equal(dec("366")) {
		t.Fatalf("scale 0 should round to whole units, got %s", got)
	}
	prefs.PriceScale = 2
	if got := prefs.RoundPrice(dec("366.335")); !got.Equal(dec("366.34")) {
		t.Fatalf("scale 2 should round to cents, got %s", got)
	}
}
