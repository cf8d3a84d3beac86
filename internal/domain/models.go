package domain

import "time"

type Product struct {
	ID                string     `json:"id"`
	Name              string     `json:"name"`
	Description       string     `json:"description,omitempty"`
	Category          string     `json:"category"`
	CostCents         int64      `json:"cost_cents"`
	SellCents         int64      `json:"sell_cents"`
	StockQty          int        `json:"stock_qty"`
	LowStockThreshold int        `json:"low_stock_threshold"`
	LastRestocked     *time.Time `json:"last_restocked,omitempty"`
}

type ProductCreateRequest struct {
	Name              string `json:"name"`
	Description       string `json:"description"`
	Category          string `json:"category"`
	CostCents         int64  `json:"cost_cents"`
	SellCents         int64  `json:"sell_cents"`
	StockQty          int    `json:"stock_qty"`
	LowStockThreshold int    `json:"low_stock_threshold"`
}

type ProductUpdateRequest struct {
	Name              *string `json:"name,omitempty"`
	Description       *string `json:"description,omitempty"`
	Category          *string `json:"category,omitempty"`
	CostCents         *int64  `json:"cost_cents,omitempty"`
	SellCents         *int64  `json:"sell_cents,omitempty"`
	StockQty          *int    `json:"stock_qty,omitempty"`
	LowStockThreshold *int    `json:"low_stock_threshold,omitempty"`
}

type Service struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	PriceCents  int64  `json:"price_cents"`
	Active      bool   `json:"active"`
}

type ServiceCreateRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	PriceCents  int64  `json:"price_cents"`
}

type ServiceUpdateRequest struct {
	Name        *string `json:"name,omitempty"`
	Description *string `json:"description,omitempty"`
	PriceCents  *int64  `json:"price_cents,omitempty"`
}

// Transaction is one row of the append-only inventory ledger. Rows are never
// edited in place; the only removal path is the explicit undo of the most
// recent action, which also reverses the row's stock effect.
type Transaction struct {
	ID                  string    `json:"id"`
	ProductID           string    `json:"product_id"`
	ProductName         string    `json:"product_name"`
	Qty                 int       `json:"qty"`
	PriceCents          int64     `json:"price_cents"`
	Type                string    `json:"type"`
	Date                time.Time `json:"date"`
	UserID              string    `json:"user_id,omitempty"`
	UserName            string    `json:"user_name,omitempty"`
	SaleID              string    `json:"sale_id,omitempty"`
	DiscountCents       int64     `json:"discount_cents,omitempty"`
	OriginalPriceCents  int64     `json:"original_price_cents,omitempty"`
	ParentTransactionID string    `json:"parent_transaction_id,omitempty"`
}

// IsRestockAggregate reports whether the row is the parent line of a monthly
// restock, i.e. the aggregate priced at the full batch cost. Child lines carry
// ParentTransactionID instead.
func (t Transaction) IsRestockAggregate() bool {
	return t.Type == TxTypeRestock && t.ProductID == BulkRestockProductID
}

type Sale struct {
	ID                  string        `json:"id"`
	Date                time.Time     `json:"date"`
	TotalCents          int64         `json:"total_cents"`
	UserID              string        `json:"user_id,omitempty"`
	UserName            string        `json:"user_name,omitempty"`
	PaymentMethod       string        `json:"payment_method,omitempty"`
	Notes               string        `json:"notes,omitempty"`
	DiscountCents       int64         `json:"discount_cents,omitempty"`
	OriginalTotalCents  int64         `json:"original_total_cents,omitempty"`
	Items               []Transaction `json:"items,omitempty"`
}

type BulkSaleItem struct {
	ProductID     string `json:"product_id"`
	Qty           int    `json:"qty"`
	DiscountCents int64  `json:"discount_cents"`
}

type BulkSaleRequest struct {
	Items         []BulkSaleItem `json:"items"`
	PaymentMethod string         `json:"payment_method"`
	Notes         string         `json:"notes"`
}

type RestockUpdate struct {
	ProductID string `json:"product_id"`
	NewQty    int    `json:"new_qty"`
}

type MonthlyRestockRequest struct {
	Updates []RestockUpdate `json:"updates"`
}

// ServiceBundle is the decoded form of a bundled-services income row. The
// finance table stores it as JSON inside the category column; the row mapper
// decodes it exactly once so nothing downstream touches the raw string.
type ServiceBundle struct {
	ServiceIDs    []string `json:"service_ids"`
	ServiceNames  []string `json:"service_names"`
	ServicePrices []int64  `json:"service_prices"`
	DiscountCents int64    `json:"discount_cents"`
}

type FinanceRecord struct {
	ID            string         `json:"id"`
	Type          string         `json:"type"`
	Date          time.Time      `json:"date"`
	AmountCents   int64          `json:"amount_cents"`
	CustomerName  string         `json:"customer_name,omitempty"`
	ServiceID     string         `json:"service_id,omitempty"`
	ServiceName   string         `json:"service_name,omitempty"`
	PaymentMethod string         `json:"payment_method,omitempty"`
	TipCents      int64          `json:"tip_cents,omitempty"`
	Vendor        string         `json:"vendor,omitempty"`
	Category      string         `json:"category,omitempty"`
	Bundle        *ServiceBundle `json:"bundle,omitempty"`
}

type ServiceIncomeRequest struct {
	ServiceIDs    []string `json:"service_ids"`
	CustomerName  string   `json:"customer_name"`
	PaymentMethod string   `json:"payment_method"`
	TipCents      int64    `json:"tip_cents"`
	DiscountCents int64    `json:"discount_cents"`
}

type ExpenseRequest struct {
	AmountCents int64  `json:"amount_cents"`
	Vendor      string `json:"vendor"`
	Category    string `json:"category"`
	Notes       string `json:"notes"`
}

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type LoginResponse struct {
	AccessToken string `json:"access_token"`
	Role        string `json:"role"`
	ExpiresAt   string `json:"expires_at"`
}

type Actor struct {
	Username string
	Role     string
}

type UserCreateRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
	Role     string `json:"role"`
}

type User struct {
	Username  string    `json:"username"`
	Role      string    `json:"role"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
}

// UserAccount is an internal persistence model for auth credentials.
type UserAccount struct {
	Username  string
	Password  string
	Role      string
	Active    bool
	CreatedAt time.Time
}

const (
	TxTypeSale       = "sale"
	TxTypeRestock    = "restock"
	TxTypeAdjustment = "adjustment"
	TxTypeReturn     = "return"
)

const (
	FinanceTypeIncome  = "income"
	FinanceTypeExpense = "expense"
)

const (
	RoleAdmin    = "admin"
	RoleEmployee = "employee"
)

// BulkRestockProductID is the well-known product id the parent line of a
// monthly restock is recorded against. It never corresponds to a real product.
const BulkRestockProductID = "bulk-restock"
