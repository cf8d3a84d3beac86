package metrics

import (
	"strings"
	"testing"
	"time"

	"tokopos/backend/internal/domain"
)

var testNow = time.Date(2024, 6, 15, 12, 0, 0, 0, time.UTC)

func saleTx(productID string, qty int, priceCents int64, daysAgo int) domain.Transaction {
	return domain.Transaction{
		ID:         "txn-" + productID,
		ProductID:  productID,
		Qty:        qty,
		PriceCents: priceCents,
		Type:       domain.TxTypeSale,
		Date:       testNow.AddDate(0, 0, -daysAgo),
	}
}

func TestParseWindowDefaultsToAll(t *testing.T) {
	if got := ParseWindow("week"); got != WindowWeek {
		t.Fatalf("expected week, got %s", got)
	}
	if got := ParseWindow("month"); got != WindowMonth {
		t.Fatalf("expected month, got %s", got)
	}
	if got := ParseWindow(""); got != WindowAll {
		t.Fatalf("expected all for empty input, got %s", got)
	}
	if got := ParseWindow("yesterday"); got != WindowAll {
		t.Fatalf("expected all for unknown input, got %s", got)
	}
}

func TestProductPerformanceProfitAndOrder(t *testing.T) {
	products := []domain.Product{
		{ID: "prd-a", Name: "Produk A", Category: "grocery", CostCents: 600},
		{ID: "prd-b", Name: "Produk B", Category: "snack", CostCents: 100},
	}
	txs := []domain.Transaction{
		saleTx("prd-a", 3, 3000, 1),
		saleTx("prd-a", 1, 1000, 2),
		saleTx("prd-b", 2, 500, 1),
		{ID: "txn-r", ProductID: "prd-a", Qty: 10, PriceCents: 6000, Type: domain.TxTypeRestock, Date: testNow},
	}

	report := ProductPerformanceReport(products, txs, WindowAll, testNow)
	if len(report) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(report))
	}

	// prd-a: revenue 4000, cost 4*600 = 2400, profit 1600. prd-b: 500 - 200 = 300.
	first := report[0]
	if first.ProductID != "prd-a" || first.TotalSold != 4 || first.RevenueCents != 4000 || first.ProfitCents != 1600 {
		t.Fatalf("unexpected first row: %+v", first)
	}
	if report[1].ProfitCents != 300 {
		t.Fatalf("unexpected second row: %+v", report[1])
	}
}

func TestProductPerformanceUnknownProductKeepsRevenueAsProfit(t *testing.T) {
	txs := []domain.Transaction{saleTx("prd-gone", 1, 900, 0)}

	report := ProductPerformanceReport(nil, txs, WindowAll, testNow)
	if len(report) != 1 {
		t.Fatalf("expected 1 row, got %d", len(report))
	}
	if report[0].ProfitCents != 900 {
		t.Fatalf("expected profit to equal revenue for unknown product, got %d", report[0].ProfitCents)
	}
}

func TestWindowExcludesOldTransactions(t *testing.T) {
	txs := []domain.Transaction{
		saleTx("prd-a", 1, 1000, 1),
		saleTx("prd-a", 1, 1000, 20),
	}

	week := ProductPerformanceReport(nil, txs, WindowWeek, testNow)
	if len(week) != 1 || week[0].RevenueCents != 1000 {
		t.Fatalf("expected only the recent sale in week window, got %+v", week)
	}

	all := ProductPerformanceReport(nil, txs, WindowAll, testNow)
	if len(all) != 1 || all[0].RevenueCents != 2000 {
		t.Fatalf("expected both sales in all window, got %+v", all)
	}
}

func TestSalesSeriesBucketsPerDayAscending(t *testing.T) {
	txs := []domain.Transaction{
		saleTx("prd-a", 1, 1000, 0),
		saleTx("prd-b", 1, 500, 0),
		saleTx("prd-a", 1, 1000, 2),
	}

	series := SalesSeries(txs, WindowAll, testNow)
	if len(series) != 2 {
		t.Fatalf("expected 2 days, got %d", len(series))
	}
	if series[0].Day != "2024-06-13" || series[1].Day != "2024-06-15" {
		t.Fatalf("expected ascending days, got %+v", series)
	}
	if series[1].Transactions != 2 || series[1].RevenueCents != 1500 {
		t.Fatalf("unexpected bucket for latest day: %+v", series[1])
	}
}

func TestCategoryRevenueFallsBackToOther(t *testing.T) {
	products := []domain.Product{{ID: "prd-a", Category: "grocery"}}
	txs := []domain.Transaction{
		saleTx("prd-a", 1, 2000, 0),
		saleTx("prd-deleted", 1, 700, 0),
	}

	report := CategoryRevenueReport(products, txs, WindowAll, testNow)
	if len(report) != 2 {
		t.Fatalf("expected 2 categories, got %d", len(report))
	}
	if report[0].Category != "grocery" || report[0].RevenueCents != 2000 {
		t.Fatalf("unexpected top category: %+v", report[0])
	}
	if report[1].Category != "other" || report[1].RevenueCents != 700 {
		t.Fatalf("expected orphan revenue under other, got %+v", report[1])
	}
}

func TestAllocateDiscount(t *testing.T) {
	prices := []int64{3000, 1000}

	if got := AllocateDiscount(prices, 0); got[0] != 3000 || got[1] != 1000 {
		t.Fatalf("zero discount must return prices unchanged, got %v", got)
	}

	// 400 split 3:1 is 300 and 100.
	got := AllocateDiscount(prices, 400)
	if got[0] != 2700 || got[1] != 900 {
		t.Fatalf("expected proportional allocation, got %v", got)
	}

	// A discount larger than any line floors the net at zero.
	got = AllocateDiscount([]int64{100, 100}, 1000)
	for i, v := range got {
		if v != 0 {
			t.Fatalf("expected floor at zero for line %d, got %d", i, v)
		}
	}
}

func TestServicePerformanceExpandsBundles(t *testing.T) {
	incomes := []domain.FinanceRecord{
		{
			Type:         domain.FinanceTypeIncome,
			Date:         testNow,
			AmountCents:  27000,
			CustomerName: "Ibu Sari",
			Bundle: &domain.ServiceBundle{
				ServiceIDs:    []string{"svc-1", "svc-2"},
				ServiceNames:  []string{"Layanan Satu", "Layanan Dua"},
				ServicePrices: []int64{20000, 10000},
				DiscountCents: 3000,
			},
		},
		{
			Type:         domain.FinanceTypeIncome,
			Date:         testNow,
			AmountCents:  20000,
			ServiceID:    "svc-1",
			ServiceName:  "Layanan Satu",
			CustomerName: "Pak Joko",
		},
	}

	report := ServicePerformanceReport(incomes, WindowAll, testNow)
	if len(report) != 2 {
		t.Fatalf("expected 2 services, got %d", len(report))
	}

	// svc-1: bundle share 20000-2000=18000 plus plain 20000 = 38000, two customers.
	top := report[0]
	if top.ServiceID != "svc-1" || top.Count != 2 || top.RevenueCents != 38000 {
		t.Fatalf("unexpected top service: %+v", top)
	}
	if top.UniqueCustomers != 2 {
		t.Fatalf("expected 2 unique customers, got %d", top.UniqueCustomers)
	}
	if report[1].ServiceID != "svc-2" || report[1].RevenueCents != 9000 {
		t.Fatalf("unexpected second service: %+v", report[1])
	}
}

func TestServicePerformanceSkipsAnonymousRows(t *testing.T) {
	incomes := []domain.FinanceRecord{
		{Type: domain.FinanceTypeIncome, Date: testNow, AmountCents: 5000},
	}
	if got := ServicePerformanceReport(incomes, WindowAll, testNow); len(got) != 0 {
		t.Fatalf("expected rows without service reference to be skipped, got %+v", got)
	}
}

func TestBuildSummaryTotals(t *testing.T) {
	products := []domain.Product{{ID: "prd-a", Name: "Produk A", CostCents: 600}}
	txs := []domain.Transaction{
		saleTx("prd-a", 2, 2000, 0),
		saleTx("prd-a", 1, 1000, 1),
	}
	incomes := []domain.FinanceRecord{
		{Type: domain.FinanceTypeIncome, Date: testNow, AmountCents: 20000, ServiceID: "svc-1", ServiceName: "Layanan Satu", CustomerName: "Ibu Sari"},
		{Type: domain.FinanceTypeIncome, Date: testNow, AmountCents: 10000, ServiceID: "svc-2", ServiceName: "Layanan Dua", CustomerName: "Ibu Sari"},
	}

	summary := BuildSummary(products, txs, incomes, WindowAll, testNow)
	if summary.Totals.RevenueCents != 3000 {
		t.Fatalf("expected revenue 3000, got %d", summary.Totals.RevenueCents)
	}
	if summary.Totals.ProfitCents != 3000-3*600 {
		t.Fatalf("expected profit 1200, got %d", summary.Totals.ProfitCents)
	}
	if summary.Totals.SalesCount != 2 {
		t.Fatalf("expected 2 sale transactions, got %d", summary.Totals.SalesCount)
	}
	if summary.Totals.UniqueCustomers != 1 {
		t.Fatalf("expected 1 unique customer, got %d", summary.Totals.UniqueCustomers)
	}
}

func TestProductPerformanceCSVFormat(t *testing.T) {
	rows := []ProductPerformance{
		{ProductID: "prd-a", Name: "Produk A", Category: "grocery", TotalSold: 4, RevenueCents: 4050, ProfitCents: 1650},
	}

	payload, err := ProductPerformanceCSV(rows)
	if err != nil {
		t.Fatalf("csv: %v", err)
	}

	lines := strings.Split(strings.TrimSpace(string(payload)), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected header plus 1 row, got %d lines", len(lines))
	}
	if !strings.HasPrefix(lines[0], "Product,") {
		t.Fatalf("unexpected header: %s", lines[0])
	}
	if !strings.Contains(lines[1], "40.50") || !strings.Contains(lines[1], "16.50") {
		t.Fatalf("expected two-decimal money columns, got %s", lines[1])
	}
}

func TestSummaryXLSXHasReportSheets(t *testing.T) {
	summary := BuildSummary(
		[]domain.Product{{ID: "prd-a", Name: "Produk A", CostCents: 600}},
		[]domain.Transaction{saleTx("prd-a", 1, 1000, 0)},
		nil,
		WindowAll,
		testNow,
	)

	file, err := SummaryXLSX(summary)
	if err != nil {
		t.Fatalf("xlsx: %v", err)
	}
	defer file.Close()

	sheets := file.GetSheetList()
	want := map[string]bool{"Products": false, "Daily Sales": false, "Services": false}
	for _, sheet := range sheets {
		if _, ok := want[sheet]; ok {
			want[sheet] = true
		}
	}
	for sheet, found := range want {
		if !found {
			t.Fatalf("missing sheet %s (have %v)", sheet, sheets)
		}
	}
}
