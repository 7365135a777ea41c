package models

import (
	"testing"

	"github.com/shopspring/decimal"
)

func TestLineDiffAmount_ShortageAtCostSurplusAtRetail(t *testing.T) {
	cost := dec("250")
	retail := dec("400")

	// Surplus of 2: worth selling price.
	if got := LineDiffAmount(dec("2"), cost, retail); !got.Equal(dec("800")) {
		t.Fatalf("surplus 2 at retail 400 should be 800, got %s", got)
	}
	// Shortage of 3: costs purchase price.
	if got := LineDiffAmount(dec("-3"), cost, retail); !got.Equal(dec("-750")) {
		t.Fatalf("shortage 3 at cost 250 should be -750, got %s", got)
	}
	if got := LineDiffAmount(decimal.Zero, cost, retail); !got.IsZero() {
		t.Fatalf("zero diff should value at zero, got %s", got)
	}
}

func TestRevalueItems_Count(t *testing.T) {
	items := []StockDocumentItem{{
		ProductId:   1,
		Declared:    dec("10"),
		Actual:      dec("7"),
		SupplyPrice: dec("250"),
		RetailPrice: dec("400"),
	}}

	valued := RevalueItems(DocumentTypeCount, items)
	if !valued[0].DiffQty.Equal(dec("-3")) {
		t.Fatalf("expected diff -3, got %s", valued[0].DiffQty)
	}
	if !valued[0].DiffAmount.Equal(dec("-750")) {
		t.Fatalf("expected shortage valued at cost (-750), got %s", valued[0].DiffAmount)
	}
}

func TestRevalueItems_WriteOffValuesOutflowAtCost(t *testing.T) {
	items := []StockDocumentItem{{
		ProductId:   1,
		Declared:    dec("10"),
		Actual:      dec("4"),
		SupplyPrice: dec("250"),
		RetailPrice: dec("400"),
	}}

	valued := RevalueItems(DocumentTypeWriteOff, items)
	if !valued[0].DiffQty.Equal(dec("-4")) {
		t.Fatalf("expected diff -4 (the quantity leaving), got %s", valued[0].DiffQty)
	}
	if !valued[0].DiffAmount.Equal(dec("-1000")) {
		t.Fatalf("expected -4*250 = -1000, got %s", valued[0].DiffAmount)
	}
}

func TestRevalueItems_RepricingAmountIsPriceDelta(t *testing.T) {
	items := []StockDocumentItem{{
		ProductId: 1,
		Declared:  dec("400"),
		Actual:    dec("450"),
	}}

	valued := RevalueItems(DocumentTypeRepricing, items)
	if !valued[0].DiffQty.Equal(dec("50")) || !valued[0].DiffAmount.Equal(dec("50")) {
		t.Fatalf("expected price delta 50, got qty=%s amount=%s", valued[0].DiffQty, valued[0].DiffAmount)
	}
}

func TestComputeDocumentTotals_MatchesLineSum(t *testing.T) {
	items := RevalueItems(DocumentTypeCount, []StockDocumentItem{
		{ProductId: 1, Declared: dec("10"), Actual: dec("7"), SupplyPrice: dec("250"), RetailPrice: dec("400")},
		{ProductId: 2, Declared: dec("5"), Actual: dec("8"), SupplyPrice: dec("350"), RetailPrice: dec("500")},
		{ProductId: 3, Declared: dec("20"), Actual: dec("20"), SupplyPrice: dec("600"), RetailPrice: dec("900")},
	})

	totals := ComputeDocumentTotals(DocumentTypeCount, items)

	sum := decimal.Zero
	for i := range items {
		sum = sum.Add(items[i].DiffAmount)
	}
	if !totals.DiffAmount.Equal(sum) {
		t.Fatalf("totals.DiffAmount %s != sum of lines %s", totals.DiffAmount, sum)
	}
	if !totals.TotalQty.Equal(dec("35")) {
		t.Fatalf("expected total qty 35, got %s", totals.TotalQty)
	}
	if !totals.ShortageQty.Equal(dec("3")) || !totals.ShortageCost.Equal(dec("750")) {
		t.Fatalf("expected shortage 3 / 750, got %s / %s", totals.ShortageQty, totals.ShortageCost)
	}
	if !totals.SurplusQty.Equal(dec("3")) || !totals.SurplusRetail.Equal(dec("1500")) {
		t.Fatalf("expected surplus 3 / 1500, got %s / %s", totals.SurplusQty, totals.SurplusRetail)
	}
}

func TestComputeDocumentTotals_SumHoldsAcrossEditSequence(t *testing.T) {
	lookup := testLookup(
		waterSnap(),
		&ProductSnapshot{ID: 2, Name: "Instant Noodles", Barcode: "8851001000028", Stock: dec("30"), CostPrice: dec("350"), Price: dec("500")},
	)

	edits := []ItemEdit{
		{ProductId: 1},
		{ProductId: 2, Actual: decPtr("25")},
		{ProductId: 1},
		{ProductId: 1, Actual: decPtr("12")},
		{ProductId: 2, Actual: decPtr("31")},
	}

	var items []StockDocumentItem
	var err error
	for _, edit := range edits {
		items, err = ReconcileEdit(DocumentTypeCount, "", items, lookup, edit)
		if err != nil {
			t.Fatal(err)
		}
		items = RevalueItems(DocumentTypeCount, items)

		totals := ComputeDocumentTotals(DocumentTypeCount, items)
		sum := decimal.Zero
		for i := range items {
			sum = sum.Add(items[i].DiffAmount)
		}
		if !totals.DiffAmount.Equal(sum) {
			t.Fatalf("after edit %+v: totals %s != line sum %s", edit, totals.DiffAmount, sum)
		}
	}
}

func TestComputeDocumentTotals_RepricingCountsLines(t *testing.T) {
	items := RevalueItems(DocumentTypeRepricing, []StockDocumentItem{
		{ProductId: 1, Declared: dec("400"), Actual: dec("450")},
		{ProductId: 2, Declared: dec("500"), Actual: dec("480")},
		{ProductId: 3, Declared: dec("900"), Actual: dec("900")},
	})

	totals := ComputeDocumentTotals(DocumentTypeRepricing, items)
	if !totals.TotalQty.Equal(dec("3")) {
		t.Fatalf("repricing total should count lines, got %s", totals.TotalQty)
	}
	if !totals.SurplusQty.Equal(dec("1")) || !totals.ShortageQty.Equal(dec("1")) {
		t.Fatalf("expected 1 increase / 1 decrease, got %s / %s", totals.SurplusQty, totals.ShortageQty)
	}
	if !totals.DiffAmount.Equal(dec("30")) {
		t.Fatalf("expected net price delta 30, got %s", totals.DiffAmount)
	}
}

func TestMarkupMargin_ZeroGuards(t *testing.T) {
	if got := Markup(decimal.Zero, dec("400")); !got.IsZero() {
		t.Fatalf("markup with zero supply should be 0, got %s", got)
	}
	if got := Margin(dec("250"), decimal.Zero); !got.IsZero() {
		t.Fatalf("margin with zero retail should be 0, got %s", got)
	}
	if got := SupplyForMarkup(dec("400"), dec("-100")); !got.IsZero() {
		t.Fatalf("supply for -100%% markup should be 0, got %s", got)
	}
}

func TestMarkupMargin_RoundTrip(t *testing.T) {
	supply := dec("250")
	retail := dec("400")

	markup := Markup(supply, retail)
	if !markup.Equal(dec("60")) {
		t.Fatalf("expected markup 60%%, got %s", markup)
	}
	if got := RetailForMarkup(supply, markup); !got.Equal(retail) {
		t.Fatalf("retail for markup should round-trip to 400, got %s", got)
	}
	if got := Margin(supply, retail); !got.Equal(dec("37.5")) {
		t.Fatalf("expected margin 37.5%%, got %s", got)
	}
}

func TestDerivePrices_SingleDirection(t *testing.T) {
	// Editing markup recomputes retail, leaves supply put.
	d := DerivePrices(PriceFieldMarkup, dec("250"), dec("100"), dec("400"))
	if !d.Retail.Equal(dec("500")) {
		t.Fatalf("markup 100%% on supply 250 should give retail 500, got %s", d.Retail)
	}
	if !d.Supply.Equal(dec("250")) {
		t.Fatalf("supply must not move when markup is edited, got %s", d.Supply)
	}

	// Editing retail recomputes markup, leaves retail as entered.
	d = DerivePrices(PriceFieldRetail, dec("250"), dec("60"), dec("375"))
	if !d.Retail.Equal(dec("375")) || !d.Markup.Equal(dec("50")) {
		t.Fatalf("expected retail 375 / markup 50, got %s / %s", d.Retail, d.Markup)
	}
}

func TestApplyPercentToItems_OnlySelectedLinesMove(t *testing.T) {
	var items []StockDocumentItem
	for i := 1; i <= 10; i++ {
		items = append(items, StockDocumentItem{
			ProductId: i,
			Declared:  dec("1000"),
			Actual:    dec("1000"),
		})
	}

	repriced := ApplyPercentToItems(items, []int{2, 5, 9}, dec("10"), 0)

	for i := range repriced {
		want := dec("1000")
		if id := repriced[i].ProductId; id == 2 || id == 5 || id == 9 {
			want = dec("1100")
		}
		if !repriced[i].Actual.Equal(want) {
			t.Fatalf("product %d: expected %s, got %s", repriced[i].ProductId, want, repriced[i].Actual)
		}
	}
}

func TestApplyPercentToItems_RoundsToScale(t *testing.T) {
	items := []StockDocumentItem{{ProductId: 1, Declared: dec("333"), Actual: dec("333")}}

	repriced := ApplyPercentToItems(items, []int{1}, dec("10"), 0)
	if !repriced[0].Actual.Equal(dec("366")) {
		t.Fatalf("333 * 1.10 rounded to whole should be 366, got %s", repriced[0].Actual)
	}

	repriced = ApplyPercentToItems(items, []int{1}, dec("10"), 2)
	if !repriced[0].Actual.Equal(dec("366.3")) {
		t.Fatalf("333 * 1.10 at scale 2 should be 366.3, got %s", repriced[0].Actual)
	}
}
