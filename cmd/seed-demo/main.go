// seed-demo creates a demo business with two shops, a product set and an
// exchange rate history so a fresh environment has something to work with.
//
// Usage (from backend directory):
//
//	DB_USER=... DB_PASSWORD=... DB_HOST=... DB_PORT=... DB_NAME=... go run ./cmd/seed-demo
//
// Running it twice creates a second demo business; it never touches existing
// data.
package main

import (
	"context"
	"fmt"
	"os"

	"bitbucket.org/mmdatafocus/stockdocs_backend/config"
	"bitbucket.org/mmdatafocus/stockdocs_backend/models"
	"bitbucket.org/mmdatafocus/stockdocs_backend/utils"
	"github.com/shopspring/decimal"
)

func main() {
	ctx := context.Background()
	config.ConnectDatabaseWithRetry()
	db := config.GetDB()
	if db == nil {
		fmt.Fprintln(os.Stderr, "database not initialized (config.GetDB returned nil). Set DB_* env vars.")
		os.Exit(1)
	}
	models.MigrateTable()

	business, err := models.CreateBusiness(ctx, &models.NewBusiness{
		Name:     "Demo Retail",
		Email:    "demo@example.com",
		Timezone: "Asia/Yangon",
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create business: %v\n", err)
		os.Exit(1)
	}
	businessId := business.ID.String()

	ctx = utils.SetBusinessIdInContext(ctx, businessId)
	ctx = utils.SetUserIdInContext(ctx, 1)
	ctx = utils.SetUserNameInContext(ctx, "Seed")

	mainShop, err := models.CreateShop(ctx, &models.NewShop{Name: "Main Store", City: "Yangon"})
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create shop: %v\n", err)
		os.Exit(1)
	}
	_, err = models.CreateShop(ctx, &models.NewShop{Name: "Warehouse", City: "Yangon"})
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create shop: %v\n", err)
		os.Exit(1)
	}

	usd, err := models.CreateCurrency(ctx, &models.NewCurrency{Name: "US Dollar", Symbol: "USD", DecimalPlaces: 2})
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create currency: %v\n", err)
		os.Exit(1)
	}
	_, err = models.CreateExchangeRate(ctx, &models.NewExchangeRate{
		CurrencyId: usd.ID,
		Rate:       decimal.NewFromInt(4500),
		Notes:      "seed rate",
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create exchange rate: %v\n", err)
		os.Exit(1)
	}

	products := []models.NewProduct{
		{Name: "Drinking Water 1L", Sku: "WTR-001", Barcode: "8851001000011", CostPrice: decimal.NewFromInt(250), Price: decimal.NewFromInt(400)},
		{Name: "Instant Noodles", Sku: "NDL-001", Barcode: "8851001000028", CostPrice: decimal.NewFromInt(350), Price: decimal.NewFromInt(500)},
		{Name: "Green Tea 500ml", Sku: "TEA-001", Barcode: "8851001000035", CostPrice: decimal.NewFromInt(600), Price: decimal.NewFromInt(900)},
		{Name: "Rice 5kg", Sku: "RCE-005", Barcode: "8851001000042", CostPrice: decimal.NewFromInt(9000), Price: decimal.NewFromInt(12500)},
		{Name: "Cooking Oil 1L", Sku: "OIL-001", Barcode: "8851001000059", CostPrice: decimal.NewFromInt(5500), Price: decimal.NewFromInt(7000)},
	}
	for i := range products {
		product, err := models.CreateProduct(ctx, &products[i])
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to create product %q: %v\n", products[i].Name, err)
			os.Exit(1)
		}
		if err := models.AdjustShopStock(db.WithContext(ctx), businessId, mainShop.ID, product.ID, decimal.NewFromInt(int64(20+i*10))); err != nil {
			fmt.Fprintf(os.Stderr, "failed to seed stock for %q: %v\n", products[i].Name, err)
			os.Exit(1)
		}
	}

	fmt.Printf("Seeded demo business %s (business_id=%s)\n", business.Name, businessId)
	fmt.Println("Pass the business id as the X-Business-Id header.")
}
