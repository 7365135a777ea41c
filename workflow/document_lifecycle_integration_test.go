package workflow_test

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"regexp"
	"strings"
	"testing"
	"time"

	"bitbucket.org/mmdatafocus/stockdocs_backend/config"
	"bitbucket.org/mmdatafocus/stockdocs_backend/models"
	"bitbucket.org/mmdatafocus/stockdocs_backend/utils"
	"bitbucket.org/mmdatafocus/stockdocs_backend/workflow"
	"github.com/shopspring/decimal"
)

func TestDocumentLifecycle_CountApproveAppliesStock(t *testing.T) {
	if strings.TrimSpace(os.Getenv("INTEGRATION_TESTS")) == "" {
		t.Skip("set INTEGRATION_TESTS=1 to run integration tests (requires docker)")
	}

	ctx := setupIntegrationEnv(t)
	db := config.GetDB()

	shop, err := models.CreateShop(ctx, &models.NewShop{Name: "Main Store"})
	if err != nil {
		t.Fatalf("create shop: %v", err)
	}
	businessId, _ := utils.GetBusinessIdFromContext(ctx)

	product, err := models.CreateProduct(ctx, &models.NewProduct{
		Name:      "Drinking Water 1L",
		Barcode:   "8851001000011",
		CostPrice: decimal.NewFromInt(250),
		Price:     decimal.NewFromInt(400),
	})
	if err != nil {
		t.Fatalf("create product: %v", err)
	}
	if err := models.AdjustShopStock(db.WithContext(ctx), businessId, shop.ID, product.ID, decimal.NewFromInt(10)); err != nil {
		t.Fatalf("seed stock: %v", err)
	}

	doc, err := models.CreateStockDocument(ctx, &models.NewStockDocument{
		DocumentType: "Count",
		ShopId:       shop.ID,
	})
	if err != nil {
		t.Fatalf("create document: %v", err)
	}
	if !strings.HasPrefix(doc.DocumentNumber, "CNT-") {
		t.Fatalf("expected CNT- document number, got %s", doc.DocumentNumber)
	}

	// Count 7 of 10: shortage of 3.
	actual := decimal.NewFromInt(7)
	edited, err := workflow.EditStockDocument(ctx, doc.ID, models.ItemEdit{ProductId: product.ID, Actual: &actual})
	if err != nil {
		t.Fatalf("edit document: %v", err)
	}
	// Persist synchronously; the debounced path is covered by the queue tests.
	if err := models.ReplaceDocumentItems(ctx, doc.ID, edited.SyncVersion+1, edited.Items, edited.Totals); err != nil {
		t.Fatalf("persist items: %v", err)
	}

	approved, err := workflow.FinalizeStockDocument(ctx, doc.ID, models.FinalizeActionApprove)
	if err != nil {
		t.Fatalf("finalize: %v", err)
	}
	if approved.CurrentStatus != models.DocumentStatusApproved {
		t.Fatalf("expected Approved, got %s", approved.CurrentStatus)
	}
	if approved.FinishedAt == nil || approved.FinishedBy == nil {
		t.Fatalf("expected finished stamps, got %+v", approved)
	}
	if !approved.Totals.DiffAmount.Equal(decimal.NewFromInt(-750)) {
		t.Fatalf("expected diff amount -750 (shortage of 3 at cost 250), got %s", approved.Totals.DiffAmount)
	}

	// Stock moved down by the shortage.
	var stock models.ShopStock
	if err := db.WithContext(ctx).Where("shop_id = ? AND product_id = ?", shop.ID, product.ID).First(&stock).Error; err != nil {
		t.Fatalf("load stock: %v", err)
	}
	if !stock.Qty.Equal(decimal.NewFromInt(7)) {
		t.Fatalf("expected stock 7 after count approval, got %s", stock.Qty)
	}

	// Terminal document: no second finalize, no further edits.
	if _, err := workflow.FinalizeStockDocument(ctx, doc.ID, models.FinalizeActionApprove); err != utils.ErrorInvalidDocumentState {
		t.Fatalf("expected ErrorInvalidDocumentState on second finalize, got %v", err)
	}
	if _, err := workflow.EditStockDocument(ctx, doc.ID, models.ItemEdit{ProductId: product.ID}); err != utils.ErrorInvalidDocumentState {
		t.Fatalf("expected ErrorInvalidDocumentState on edit after approval, got %v", err)
	}
}

func TestDocumentLifecycle_TransferMovesStockBetweenShops(t *testing.T) {
	if strings.TrimSpace(os.Getenv("INTEGRATION_TESTS")) == "" {
		t.Skip("set INTEGRATION_TESTS=1 to run integration tests (requires docker)")
	}

	ctx := setupIntegrationEnv(t)
	db := config.GetDB()
	businessId, _ := utils.GetBusinessIdFromContext(ctx)

	departure, err := models.CreateShop(ctx, &models.NewShop{Name: "Warehouse"})
	if err != nil {
		t.Fatalf("create departure shop: %v", err)
	}
	arrival, err := models.CreateShop(ctx, &models.NewShop{Name: "Main Store"})
	if err != nil {
		t.Fatalf("create arrival shop: %v", err)
	}

	product, err := models.CreateProduct(ctx, &models.NewProduct{
		Name:      "Rice 5kg",
		CostPrice: decimal.NewFromInt(9000),
		Price:     decimal.NewFromInt(12500),
	})
	if err != nil {
		t.Fatalf("create product: %v", err)
	}
	if err := models.AdjustShopStock(db.WithContext(ctx), businessId, departure.ID, product.ID, decimal.NewFromInt(20)); err != nil {
		t.Fatalf("seed stock: %v", err)
	}

	doc, err := models.CreateStockDocument(ctx, &models.NewStockDocument{
		DocumentType:    "Transfer",
		DepartureShopId: departure.ID,
		ArrivalShopId:   arrival.ID,
	})
	if err != nil {
		t.Fatalf("create document: %v", err)
	}

	// Send 25: clamps to the departure shop's 20.
	qty := decimal.NewFromInt(25)
	edited, err := workflow.EditStockDocument(ctx, doc.ID, models.ItemEdit{ProductId: product.ID, Actual: &qty})
	if err != nil {
		t.Fatalf("edit document: %v", err)
	}
	if !edited.Items[0].Actual.Equal(decimal.NewFromInt(20)) {
		t.Fatalf("expected clamp to available 20, got %s", edited.Items[0].Actual)
	}
	if err := models.ReplaceDocumentItems(ctx, doc.ID, edited.SyncVersion+1, edited.Items, edited.Totals); err != nil {
		t.Fatalf("persist items: %v", err)
	}

	if _, err := workflow.FinalizeStockDocument(ctx, doc.ID, models.FinalizeActionApprove); err != nil {
		t.Fatalf("finalize: %v", err)
	}

	var departureStock, arrivalStock models.ShopStock
	if err := db.WithContext(ctx).Where("shop_id = ? AND product_id = ?", departure.ID, product.ID).First(&departureStock).Error; err != nil {
		t.Fatalf("load departure stock: %v", err)
	}
	if err := db.WithContext(ctx).Where("shop_id = ? AND product_id = ?", arrival.ID, product.ID).First(&arrivalStock).Error; err != nil {
		t.Fatalf("load arrival stock: %v", err)
	}
	if !departureStock.Qty.IsZero() {
		t.Fatalf("expected departure emptied, got %s", departureStock.Qty)
	}
	if !arrivalStock.Qty.Equal(decimal.NewFromInt(20)) {
		t.Fatalf("expected 20 at arrival, got %s", arrivalStock.Qty)
	}
}

func TestDocumentLifecycle_RejectLeavesStockUntouched(t *testing.T) {
	if strings.TrimSpace(os.Getenv("INTEGRATION_TESTS")) == "" {
		t.Skip("set INTEGRATION_TESTS=1 to run integration tests (requires docker)")
	}

	ctx := setupIntegrationEnv(t)
	db := config.GetDB()
	businessId, _ := utils.GetBusinessIdFromContext(ctx)

	shop, err := models.CreateShop(ctx, &models.NewShop{Name: "Main Store"})
	if err != nil {
		t.Fatalf("create shop: %v", err)
	}
	product, err := models.CreateProduct(ctx, &models.NewProduct{
		Name:      "Cooking Oil 1L",
		CostPrice: decimal.NewFromInt(5500),
		Price:     decimal.NewFromInt(7000),
	})
	if err != nil {
		t.Fatalf("create product: %v", err)
	}
	if err := models.AdjustShopStock(db.WithContext(ctx), businessId, shop.ID, product.ID, decimal.NewFromInt(12)); err != nil {
		t.Fatalf("seed stock: %v", err)
	}

	doc, err := models.CreateStockDocument(ctx, &models.NewStockDocument{
		DocumentType: "WriteOff",
		ShopId:       shop.ID,
	})
	if err != nil {
		t.Fatalf("create document: %v", err)
	}
	qty := decimal.NewFromInt(5)
	edited, err := workflow.EditStockDocument(ctx, doc.ID, models.ItemEdit{ProductId: product.ID, Actual: &qty})
	if err != nil {
		t.Fatalf("edit document: %v", err)
	}
	if err := models.ReplaceDocumentItems(ctx, doc.ID, edited.SyncVersion+1, edited.Items, edited.Totals); err != nil {
		t.Fatalf("persist items: %v", err)
	}

	rejected, err := workflow.FinalizeStockDocument(ctx, doc.ID, models.FinalizeActionReject)
	if err != nil {
		t.Fatalf("finalize reject: %v", err)
	}
	if rejected.CurrentStatus != models.DocumentStatusRejected {
		t.Fatalf("expected Rejected, got %s", rejected.CurrentStatus)
	}

	var stock models.ShopStock
	if err := db.WithContext(ctx).Where("shop_id = ? AND product_id = ?", shop.ID, product.ID).First(&stock).Error; err != nil {
		t.Fatalf("load stock: %v", err)
	}
	if !stock.Qty.Equal(decimal.NewFromInt(12)) {
		t.Fatalf("rejected write-off must not move stock, got %s", stock.Qty)
	}
}

func TestDocumentLifecycle_ApproveRefusedWhenTypeGatedOff(t *testing.T) {
	if strings.TrimSpace(os.Getenv("INTEGRATION_TESTS")) == "" {
		t.Skip("set INTEGRATION_TESTS=1 to run integration tests (requires docker)")
	}

	ctx := setupIntegrationEnv(t)
	db := config.GetDB()
	businessId, _ := utils.GetBusinessIdFromContext(ctx)

	shop, err := models.CreateShop(ctx, &models.NewShop{Name: "Main Store"})
	if err != nil {
		t.Fatalf("create shop: %v", err)
	}
	product, err := models.CreateProduct(ctx, &models.NewProduct{
		Name:      "Instant Coffee",
		CostPrice: decimal.NewFromInt(800),
		Price:     decimal.NewFromInt(1200),
	})
	if err != nil {
		t.Fatalf("create product: %v", err)
	}
	if err := models.AdjustShopStock(db.WithContext(ctx), businessId, shop.ID, product.ID, decimal.NewFromInt(8)); err != nil {
		t.Fatalf("seed stock: %v", err)
	}

	doc, err := models.CreateStockDocument(ctx, &models.NewStockDocument{
		DocumentType: "WriteOff",
		ShopId:       shop.ID,
	})
	if err != nil {
		t.Fatalf("create document: %v", err)
	}
	qty := decimal.NewFromInt(3)
	edited, err := workflow.EditStockDocument(ctx, doc.ID, models.ItemEdit{ProductId: product.ID, Actual: &qty})
	if err != nil {
		t.Fatalf("edit document: %v", err)
	}
	if err := models.ReplaceDocumentItems(ctx, doc.ID, edited.SyncVersion+1, edited.Items, edited.Totals); err != nil {
		t.Fatalf("persist items: %v", err)
	}

	// Gate write-offs out: approval must refuse rather than flip status
	// without moving stock.
	t.Setenv("STOCK_APPLY_DOCS", "COUNT,TRANSFER")
	if _, err := workflow.FinalizeStockDocument(ctx, doc.ID, models.FinalizeActionApprove); !utils.IsValidationError(err) {
		t.Fatalf("expected validation error for gated-off approval, got %v", err)
	}

	reloaded, err := models.GetStockDocument(ctx, doc.ID)
	if err != nil {
		t.Fatalf("reload document: %v", err)
	}
	if reloaded.CurrentStatus != models.DocumentStatusNew || reloaded.FinishedAt != nil {
		t.Fatalf("refused approval must leave the document New, got %+v", reloaded)
	}
	var stock models.ShopStock
	if err := db.WithContext(ctx).Where("shop_id = ? AND product_id = ?", shop.ID, product.ID).First(&stock).Error; err != nil {
		t.Fatalf("load stock: %v", err)
	}
	if !stock.Qty.Equal(decimal.NewFromInt(8)) {
		t.Fatalf("refused approval must not move stock, got %s", stock.Qty)
	}

	// Rejection stays available for gated-off types.
	rejected, err := workflow.FinalizeStockDocument(ctx, doc.ID, models.FinalizeActionReject)
	if err != nil {
		t.Fatalf("finalize reject: %v", err)
	}
	if rejected.CurrentStatus != models.DocumentStatusRejected {
		t.Fatalf("expected Rejected, got %s", rejected.CurrentStatus)
	}
}

func TestDisplayTotals_WindowRateWithLiveFallback(t *testing.T) {
	if strings.TrimSpace(os.Getenv("INTEGRATION_TESTS")) == "" {
		t.Skip("set INTEGRATION_TESTS=1 to run integration tests (requires docker)")
	}

	ctx := setupIntegrationEnv(t)
	db := config.GetDB()
	businessId, _ := utils.GetBusinessIdFromContext(ctx)

	usd, err := models.CreateCurrency(ctx, &models.NewCurrency{Name: "US Dollar", Symbol: "USD", DecimalPlaces: 2})
	if err != nil {
		t.Fatalf("create currency: %v", err)
	}
	if err := db.WithContext(ctx).Model(&models.Business{}).Where("id = ?", businessId).Updates(map[string]interface{}{
		"display_currency_id": usd.ID,
		"live_rate":           decimal.NewFromInt(1500),
		"price_scale":         2,
	}).Error; err != nil {
		t.Fatalf("configure business: %v", err)
	}

	// Two historical windows: 1000 through January 2024, 1200 afterwards.
	jan := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	feb := time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)
	windows := []*models.ExchangeRate{
		{BusinessId: businessId, CurrencyId: usd.ID, Rate: decimal.NewFromInt(1000), StartAt: jan, EndAt: &feb},
		{BusinessId: businessId, CurrencyId: usd.ID, Rate: decimal.NewFromInt(1200), StartAt: feb},
	}
	if err := db.WithContext(ctx).Create(&windows).Error; err != nil {
		t.Fatalf("seed rate windows: %v", err)
	}

	finished := time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC)
	doc := &models.StockDocument{
		BusinessId:   businessId,
		DocumentType: models.DocumentTypeCount,
		Totals:       models.DocumentTotals{ShortageCost: decimal.NewFromInt(750), DiffAmount: decimal.NewFromInt(-750)},
		FinishedAt:   &finished,
	}

	display, err := models.DisplayDocumentTotals(ctx, doc, usd.ID)
	if err != nil {
		t.Fatalf("display totals: %v", err)
	}
	if !display.DiffAmount.Equal(decimal.RequireFromString("-0.75")) {
		t.Fatalf("January totals should convert at window rate 1000, got %s", display.DiffAmount)
	}

	// A document finished before any window falls back to the live rate.
	early := time.Date(2023, 6, 1, 0, 0, 0, 0, time.UTC)
	doc.FinishedAt = &early
	display, err = models.DisplayDocumentTotals(ctx, doc, usd.ID)
	if err != nil {
		t.Fatalf("display totals (fallback): %v", err)
	}
	if !display.DiffAmount.Equal(decimal.RequireFromString("-0.5")) {
		t.Fatalf("pre-history totals should convert at live rate 1500, got %s", display.DiffAmount)
	}

	// Base-currency requests pass through untouched.
	display, err = models.DisplayDocumentTotals(ctx, doc, 0)
	if err != nil {
		t.Fatalf("display totals (base): %v", err)
	}
	if !display.DiffAmount.Equal(decimal.NewFromInt(-750)) {
		t.Fatalf("base currency must be passthrough, got %s", display.DiffAmount)
	}
}

// setupIntegrationEnv boots redis + mysql containers, connects the config
// singletons, migrates and returns a context scoped to a fresh business.
func setupIntegrationEnv(t *testing.T) context.Context {
	t.Helper()
	ctx := context.Background()

	redisName, redisPort := startRedisContainer(t)
	t.Cleanup(func() { _ = dockerRmForce(redisName) })

	mysqlName, mysqlPort := startMySQLContainer(t)
	t.Cleanup(func() { _ = dockerRmForce(mysqlName) })

	t.Setenv("REDIS_ADDRESS", fmt.Sprintf("127.0.0.1:%s", redisPort))
	t.Setenv("DB_USER", "root")
	t.Setenv("DB_PASSWORD", "testpw")
	t.Setenv("DB_HOST", "127.0.0.1")
	t.Setenv("DB_PORT", mysqlPort)
	t.Setenv("DB_NAME", "stockdocs_test")

	config.ConnectDatabaseWithRetry()
	config.ConnectRedisWithRetry()
	models.MigrateTable()

	business, err := models.CreateBusiness(ctx, &models.NewBusiness{Name: "Test Retail"})
	if err != nil {
		t.Fatalf("create business: %v", err)
	}

	ctx = utils.SetBusinessIdInContext(ctx, business.ID.String())
	ctx = utils.SetUserIdInContext(ctx, 1)
	ctx = utils.SetUserNameInContext(ctx, "Test")
	return ctx
}

func startRedisContainer(t *testing.T) (containerName, hostPort string) {
	t.Helper()
	name := fmt.Sprintf("stockdocs-test-redis-%d", time.Now().UnixNano())
	out, err := dockerRun(
		"run", "-d", "--name", name,
		"-p", "127.0.0.1:0:6379",
		"redis:7-alpine",
	)
	if err != nil {
		t.Fatalf("start redis container: %v\n%s", err, out)
	}
	port, err := dockerHostPort(name, "6379/tcp")
	if err != nil {
		t.Fatalf("redis docker port: %v", err)
	}
	deadline := time.Now().Add(60 * time.Second)
	for time.Now().Before(deadline) {
		_, err := dockerRun("exec", name, "redis-cli", "ping")
		if err == nil {
			return name, port
		}
		time.Sleep(250 * time.Millisecond)
	}
	t.Fatalf("redis did not become ready")
	return "", ""
}

func startMySQLContainer(t *testing.T) (containerName, hostPort string) {
	t.Helper()
	name := fmt.Sprintf("stockdocs-test-mysql-%d", time.Now().UnixNano())
	out, err := dockerRun(
		"run", "-d", "--name", name,
		"-e", "MYSQL_ROOT_PASSWORD=testpw",
		"-e", "MYSQL_DATABASE=stockdocs_test",
		"-p", "127.0.0.1:0:3306",
		"mysql:8.0",
		"--default-authentication-plugin=mysql_native_password",
	)
	if err != nil {
		t.Fatalf("start mysql container: %v\n%s", err, out)
	}
	port, err := dockerHostPort(name, "3306/tcp")
	if err != nil {
		t.Fatalf("mysql docker port: %v", err)
	}
	deadline := time.Now().Add(120 * time.Second)
	for time.Now().Before(deadline) {
		_, err := dockerRun("exec", name, "mysqladmin", "ping", "-h", "127.0.0.1", "-ptestpw", "--silent")
		if err == nil {
			return name, port
		}
		time.Sleep(500 * time.Millisecond)
	}
	t.Fatalf("mysql did not become ready")
	return "", ""
}

func dockerHostPort(container, portProto string) (string, error) {
	out, err := dockerRun("port", container, portProto)
	if err != nil {
		return "", fmt.Errorf("docker port: %w: %s", err, out)
	}
	re := regexp.MustCompile(`:(\d+)`)
	m := re.FindStringSubmatch(out)
	if len(m) != 2 {
		return "", fmt.Errorf("unexpected docker port output: %q", out)
	}
	return m[1], nil
}

func dockerRmForce(container string) error {
	if strings.TrimSpace(container) == "" {
		return nil
	}
	_, err := dockerRun("rm", "-f", container)
	return err
}

func dockerRun(args ...string) (string, error) {
	cmd := exec.Command("docker", args...)
	b, err := cmd.CombinedOutput()
	return string(b), err
}
