package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"tokopos/backend/internal/domain"
	"tokopos/backend/internal/store"
)

func seedProduct(t *testing.T, s *Store, id string, stock int) {
	t.Helper()
	_, err := s.CreateProduct(context.Background(), domain.Product{
		ID:        id,
		Name:      "Produk " + id,
		Category:  "grocery",
		CostCents: 500,
		SellCents: 1000,
		StockQty:  stock,
	})
	if err != nil {
		t.Fatalf("seed product %s: %v", id, err)
	}
}

func TestApplyBulkSaleIsAllOrNothing(t *testing.T) {
	s := NewEmpty()
	ctx := context.Background()
	seedProduct(t, s, "prd-a", 5)
	seedProduct(t, s, "prd-b", 1)

	_, err := s.ApplyBulkSale(ctx, store.BulkSaleWrite{
		Sale: domain.Sale{ID: "sale-1", Date: time.Now().UTC()},
		Lines: []domain.Transaction{
			{ID: "txn-1", ProductID: "prd-a", Qty: 2, Type: domain.TxTypeSale},
			{ID: "txn-2", ProductID: "prd-b", Qty: 3, Type: domain.TxTypeSale},
		},
		StockDeltas: map[string]int{"prd-a": 2, "prd-b": 3},
	})
	if !errors.Is(err, store.ErrInsufficientStock) {
		t.Fatalf("expected ErrInsufficientStock, got %v", err)
	}

	p, err := s.GetProduct(ctx, "prd-a")
	if err != nil {
		t.Fatalf("get product: %v", err)
	}
	if p.StockQty != 5 {
		t.Fatalf("stock touched by failed bulk write: %d", p.StockQty)
	}
	txs, _ := s.ListTransactions(ctx)
	if len(txs) != 0 {
		t.Fatalf("transactions written by failed bulk write: %d", len(txs))
	}
	sales, _ := s.GetSales(ctx)
	if len(sales) != 0 {
		t.Fatalf("sale header written by failed bulk write")
	}
}

func TestApplyBulkSaleCommitsAllWrites(t *testing.T) {
	s := NewEmpty()
	ctx := context.Background()
	seedProduct(t, s, "prd-a", 5)

	sale, err := s.ApplyBulkSale(ctx, store.BulkSaleWrite{
		Sale:        domain.Sale{ID: "sale-1", Date: time.Now().UTC(), TotalCents: 2000},
		Lines:       []domain.Transaction{{ID: "txn-1", ProductID: "prd-a", Qty: 2, PriceCents: 2000, Type: domain.TxTypeSale}},
		StockDeltas: map[string]int{"prd-a": 2},
	})
	if err != nil {
		t.Fatalf("apply bulk sale: %v", err)
	}
	if sale.ID != "sale-1" {
		t.Fatalf("unexpected sale id %s", sale.ID)
	}

	p, _ := s.GetProduct(ctx, "prd-a")
	if p.StockQty != 3 {
		t.Fatalf("expected stock 3, got %d", p.StockQty)
	}
	txs, _ := s.ListTransactions(ctx)
	if len(txs) != 1 || txs[0].SaleID != "sale-1" {
		t.Fatalf("expected one line linked to the sale, got %+v", txs)
	}
}

func TestApplyMonthlyRestockSetsLevelsAndStamp(t *testing.T) {
	s := NewEmpty()
	ctx := context.Background()
	seedProduct(t, s, "prd-a", 2)

	stamp := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	parent, err := s.ApplyMonthlyRestock(ctx, store.MonthlyRestockWrite{
		Parent:        domain.Transaction{ID: "txn-parent", ProductID: domain.BulkRestockProductID, Type: domain.TxTypeRestock, Qty: 1},
		Children:      []domain.Transaction{{ID: "txn-child", ProductID: "prd-a", Qty: 8, Type: domain.TxTypeRestock}},
		StockLevels:   map[string]int{"prd-a": 10},
		LastRestocked: stamp,
	})
	if err != nil {
		t.Fatalf("apply monthly restock: %v", err)
	}

	p, _ := s.GetProduct(ctx, "prd-a")
	if p.StockQty != 10 {
		t.Fatalf("expected stock 10, got %d", p.StockQty)
	}
	if p.LastRestocked == nil || !p.LastRestocked.Equal(stamp) {
		t.Fatalf("expected last restocked %v, got %v", stamp, p.LastRestocked)
	}

	children, err := s.ListTransactionsByParent(ctx, parent.ID)
	if err != nil {
		t.Fatalf("list children: %v", err)
	}
	if len(children) != 1 || children[0].ID != "txn-child" {
		t.Fatalf("unexpected children %+v", children)
	}
}

func TestListFinanceRecordsFiltersByType(t *testing.T) {
	s := NewEmpty()
	ctx := context.Background()

	if _, err := s.CreateFinanceRecord(ctx, domain.FinanceRecord{Type: domain.FinanceTypeIncome, AmountCents: 1000}); err != nil {
		t.Fatalf("create income: %v", err)
	}
	if _, err := s.CreateFinanceRecord(ctx, domain.FinanceRecord{Type: domain.FinanceTypeExpense, AmountCents: 500}); err != nil {
		t.Fatalf("create expense: %v", err)
	}
	if _, err := s.CreateFinanceRecord(ctx, domain.FinanceRecord{Type: "mystery", AmountCents: 500}); !errors.Is(err, store.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput for unknown type, got %v", err)
	}

	incomes, err := s.ListFinanceRecords(ctx, domain.FinanceTypeIncome)
	if err != nil {
		t.Fatalf("list incomes: %v", err)
	}
	if len(incomes) != 1 || incomes[0].Type != domain.FinanceTypeIncome {
		t.Fatalf("unexpected incomes %+v", incomes)
	}
}

func TestCreateUserRejectsDuplicates(t *testing.T) {
	s := NewEmpty()
	ctx := context.Background()

	err := s.CreateUser(ctx, domain.UserAccount{Username: "Budi", Password: "x", Role: domain.RoleEmployee, Active: true})
	if err != nil {
		t.Fatalf("create user: %v", err)
	}
	// Usernames are case-folded on write.
	if err := s.CreateUser(ctx, domain.UserAccount{Username: "budi", Password: "y"}); !errors.Is(err, store.ErrInvalidInput) {
		t.Fatalf("expected duplicate rejection, got %v", err)
	}
}
