package store

import (
	"context"
	"errors"
	"time"

	"tokopos/backend/internal/domain"
)

var (
	ErrNotFound          = errors.New("not found")
	ErrInsufficientStock = errors.New("insufficient stock")
	ErrInvalidInput      = errors.New("invalid input")
	ErrNothingToUndo     = errors.New("nothing to undo")
	ErrCannotUndo        = errors.New("action cannot be undone")
)

// BulkSaleWrite carries everything a bulk sale commits in one unit: the sale
// header, its line transactions and the per-product stock decrements. The
// repository applies all of it atomically or none of it.
type BulkSaleWrite struct {
	Sale        domain.Sale
	Lines       []domain.Transaction
	StockDeltas map[string]int
}

// MonthlyRestockWrite is the atomic unit of a monthly restock: one parent
// aggregate transaction, one child transaction per restocked product and the
// absolute stock levels to set.
type MonthlyRestockWrite struct {
	Parent        domain.Transaction
	Children      []domain.Transaction
	StockLevels   map[string]int
	LastRestocked time.Time
}

type Repository interface {
	ListProducts(ctx context.Context) ([]domain.Product, error)
	GetProduct(ctx context.Context, id string) (*domain.Product, error)
	CreateProduct(ctx context.Context, product domain.Product) (*domain.Product, error)
	UpdateProduct(ctx context.Context, product domain.Product) (*domain.Product, error)
	DeleteProduct(ctx context.Context, id string) error
	SetProductStock(ctx context.Context, id string, qty int, lastRestocked *time.Time) error

	ListServices(ctx context.Context, includeInactive bool) ([]domain.Service, error)
	CreateService(ctx context.Context, svc domain.Service) (*domain.Service, error)
	UpdateService(ctx context.Context, svc domain.Service) (*domain.Service, error)
	SetServiceActive(ctx context.Context, id string, active bool) error

	ListTransactions(ctx context.Context) ([]domain.Transaction, error)
	ListTransactionsByParent(ctx context.Context, parentID string) ([]domain.Transaction, error)
	DeleteTransaction(ctx context.Context, id string) error

	GetSales(ctx context.Context) ([]domain.Sale, error)
	InsertSale(ctx context.Context, sale domain.Sale) (*domain.Sale, error)
	DeleteSale(ctx context.Context, id string) error
	InsertTransactionWithSale(ctx context.Context, tx domain.Transaction) (*domain.Transaction, error)
	ApplyBulkSale(ctx context.Context, write BulkSaleWrite) (*domain.Sale, error)
	ApplyMonthlyRestock(ctx context.Context, write MonthlyRestockWrite) (*domain.Transaction, error)

	ListFinanceRecords(ctx context.Context, recordType string) ([]domain.FinanceRecord, error)
	CreateFinanceRecord(ctx context.Context, record domain.FinanceRecord) (*domain.FinanceRecord, error)

	CreateUser(ctx context.Context, user domain.UserAccount) error
	ListUsers(ctx context.Context) ([]domain.UserAccount, error)
	UpdateUserPassword(ctx context.Context, username string, password string) error
}
