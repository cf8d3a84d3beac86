package memory

import (
	"context"
	"log"
	"os"
	"slices"
	"strings"
	"sync"
	"time"

	"golang.org/x/crypto/bcrypt"

	"tokopos/backend/internal/domain"
	"tokopos/backend/internal/store"
	"tokopos/backend/internal/xid"
)

type Store struct {
	mu              sync.RWMutex
	products        map[string]domain.Product
	services        map[string]domain.Service
	transactions    map[string]domain.Transaction
	sales           map[string]domain.Sale
	financeRecords  map[string]domain.FinanceRecord
	usersByUsername map[string]domain.UserAccount
}

// seedUsers builds the initial in-memory user accounts for dev/demo mode.
// Credentials are read from SEED_ADMIN_PASSWORD and SEED_EMPLOYEE_PASSWORD
// environment variables; hardcoded dev defaults are used otherwise with a
// warning. These credentials are never used in production (the backend uses
// PostgreSQL when DATABASE_URL is set).
func seedUsers() map[string]domain.UserAccount {
	adminPwd := envOr("SEED_ADMIN_PASSWORD", "admin123")
	employeePwd := envOr("SEED_EMPLOYEE_PASSWORD", "employee123")
	if os.Getenv("SEED_ADMIN_PASSWORD") == "" || os.Getenv("SEED_EMPLOYEE_PASSWORD") == "" {
		log.Println("[memory-store] WARNING: using default dev credentials. Set SEED_ADMIN_PASSWORD and SEED_EMPLOYEE_PASSWORD to override.")
	}

	now := time.Now().UTC()
	users := map[string]domain.UserAccount{}
	for _, u := range []struct {
		username string
		password string
		role     string
	}{
		{"admin", adminPwd, domain.RoleAdmin},
		{"employee", employeePwd, domain.RoleEmployee},
	} {
		hash, err := bcrypt.GenerateFromPassword([]byte(u.password), bcrypt.DefaultCost)
		if err != nil {
			log.Fatalf("[memory-store] failed to hash seed password for %s: %v", u.username, err)
		}
		users[u.username] = domain.UserAccount{
			Username:  u.username,
			Password:  string(hash),
			Role:      u.role,
			Active:    true,
			CreatedAt: now,
		}
	}
	return users
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func NewSeeded() *Store {
	products := []domain.Product{
		{ID: "prd-mie-01", Name: "Mie Goreng Instan", Category: "grocery", CostCents: 2700, SellCents: 3500, StockQty: 120, LowStockThreshold: 24},
		{ID: "prd-telur-01", Name: "Telur 10 Butir", Category: "grocery", CostCents: 23000, SellCents: 26500, StockQty: 40, LowStockThreshold: 10},
		{ID: "prd-susu-01", Name: "Susu UHT 1L", Category: "dairy", CostCents: 13600, SellCents: 18900, StockQty: 60, LowStockThreshold: 12},
		{ID: "prd-roti-01", Name: "Roti Tawar", Category: "bakery", CostCents: 12400, SellCents: 17800, StockQty: 30, LowStockThreshold: 8},
		{ID: "prd-kopi-01", Name: "Kopi Sachet", Category: "beverage", CostCents: 1700, SellCents: 2600, StockQty: 200, LowStockThreshold: 50},
		{ID: "prd-gula-01", Name: "Gula 1kg", Category: "grocery", CostCents: 15300, SellCents: 17400, StockQty: 50, LowStockThreshold: 10},
		{ID: "prd-teh-01", Name: "Teh Celup", Category: "beverage", CostCents: 7200, SellCents: 9800, StockQty: 80, LowStockThreshold: 16},
		{ID: "prd-air-01", Name: "Air Mineral 600ml", Category: "beverage", CostCents: 3200, SellCents: 3900, StockQty: 240, LowStockThreshold: 48},
		{ID: "prd-keripik-01", Name: "Keripik Singkong", Category: "snack", CostCents: 8100, SellCents: 12800, StockQty: 70, LowStockThreshold: 14},
		{ID: "prd-sabun-01", Name: "Sabun Mandi", Category: "household", CostCents: 5000, SellCents: 7400, StockQty: 90, LowStockThreshold: 18},
	}

	services := []domain.Service{
		{ID: "svc-cukur-01", Name: "Potong Rambut", PriceCents: 25000, Active: true},
		{ID: "svc-cuci-01", Name: "Cuci Motor", PriceCents: 15000, Active: true},
		{ID: "svc-setrika-01", Name: "Setrika Kiloan", PriceCents: 8000, Active: true},
	}

	productMap := make(map[string]domain.Product, len(products))
	for _, p := range products {
		productMap[p.ID] = p
	}
	serviceMap := make(map[string]domain.Service, len(services))
	for _, s := range services {
		serviceMap[s.ID] = s
	}

	return &Store{
		products:        productMap,
		services:        serviceMap,
		transactions:    make(map[string]domain.Transaction),
		sales:           make(map[string]domain.Sale),
		financeRecords:  make(map[string]domain.FinanceRecord),
		usersByUsername: seedUsers(),
	}
}

// NewEmpty returns a store with no seed data. Tests that need a known-clean
// starting state use this instead of NewSeeded.
func NewEmpty() *Store {
	return &Store{
		products:        make(map[string]domain.Product),
		services:        make(map[string]domain.Service),
		transactions:    make(map[string]domain.Transaction),
		sales:           make(map[string]domain.Sale),
		financeRecords:  make(map[string]domain.FinanceRecord),
		usersByUsername: seedUsers(),
	}
}

func (s *Store) ListProducts(_ context.Context) ([]domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	products := make([]domain.Product, 0, len(s.products))
	for _, p := range s.products {
		products = append(products, cloneProduct(p))
	}

	slices.SortFunc(products, func(a, b domain.Product) int {
		if a.Category == b.Category {
			return cmpString(a.Name, b.Name)
		}
		return cmpString(a.Category, b.Category)
	})

	return products, nil
}

func (s *Store) GetProduct(_ context.Context, id string) (*domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.products[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	clone := cloneProduct(p)
	return &clone, nil
}

func (s *Store) CreateProduct(_ context.Context, product domain.Product) (*domain.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if product.Name == "" || product.SellCents < 0 || product.CostCents < 0 || product.StockQty < 0 {
		return nil, store.ErrInvalidInput
	}
	if product.ID == "" {
		product.ID = xid.New("prd")
	}
	if _, exists := s.products[product.ID]; exists {
		return nil, store.ErrInvalidInput
	}

	s.products[product.ID] = cloneProduct(product)
	clone := cloneProduct(product)
	return &clone, nil
}

func (s *Store) UpdateProduct(_ context.Context, product domain.Product) (*domain.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.products[product.ID]; !ok {
		return nil, store.ErrNotFound
	}
	if product.Name == "" || product.SellCents < 0 || product.CostCents < 0 || product.StockQty < 0 {
		return nil, store.ErrInvalidInput
	}

	s.products[product.ID] = cloneProduct(product)
	clone := cloneProduct(product)
	return &clone, nil
}

func (s *Store) DeleteProduct(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.products[id]; !ok {
		return store.ErrNotFound
	}
	delete(s.products, id)
	return nil
}

func (s *Store) SetProductStock(_ context.Context, id string, qty int, lastRestocked *time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.products[id]
	if !ok {
		return store.ErrNotFound
	}
	if qty < 0 {
		return store.ErrInvalidInput
	}
	p.StockQty = qty
	if lastRestocked != nil {
		t := lastRestocked.UTC()
		p.LastRestocked = &t
	}
	s.products[id] = p
	return nil
}

func (s *Store) ListServices(_ context.Context, includeInactive bool) ([]domain.Service, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	services := make([]domain.Service, 0, len(s.services))
	for _, svc := range s.services {
		if !svc.Active && !includeInactive {
			continue
		}
		services = append(services, svc)
	}

	slices.SortFunc(services, func(a, b domain.Service) int {
		return cmpString(a.Name, b.Name)
	})

	return services, nil
}

func (s *Store) CreateService(_ context.Context, svc domain.Service) (*domain.Service, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if svc.Name == "" || svc.PriceCents < 0 {
		return nil, store.ErrInvalidInput
	}
	if svc.ID == "" {
		svc.ID = xid.New("svc")
	}
	if _, exists := s.services[svc.ID]; exists {
		return nil, store.ErrInvalidInput
	}
	svc.Active = true

	s.services[svc.ID] = svc
	return &svc, nil
}

func (s *Store) UpdateService(_ context.Context, svc domain.Service) (*domain.Service, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.services[svc.ID]
	if !ok {
		return nil, store.ErrNotFound
	}
	if svc.Name == "" || svc.PriceCents < 0 {
		return nil, store.ErrInvalidInput
	}
	svc.Active = existing.Active

	s.services[svc.ID] = svc
	return &svc, nil
}

func (s *Store) SetServiceActive(_ context.Context, id string, active bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	svc, ok := s.services[id]
	if !ok {
		return store.ErrNotFound
	}
	svc.Active = active
	s.services[id] = svc
	return nil
}

func (s *Store) ListTransactions(_ context.Context) ([]domain.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	txs := make([]domain.Transaction, 0, len(s.transactions))
	for _, tx := range s.transactions {
		txs = append(txs, tx)
	}
	sortTransactionsNewestFirst(txs)
	return txs, nil
}

func (s *Store) ListTransactionsByParent(_ context.Context, parentID string) ([]domain.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	txs := make([]domain.Transaction, 0, 8)
	for _, tx := range s.transactions {
		if tx.ParentTransactionID == parentID {
			txs = append(txs, tx)
		}
	}
	sortTransactionsNewestFirst(txs)
	return txs, nil
}

func (s *Store) DeleteTransaction(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.transactions[id]; !ok {
		return store.ErrNotFound
	}
	delete(s.transactions, id)
	return nil
}

func (s *Store) GetSales(_ context.Context) ([]domain.Sale, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sales := make([]domain.Sale, 0, len(s.sales))
	for _, sale := range s.sales {
		sale.Items = nil
		sales = append(sales, sale)
	}
	slices.SortFunc(sales, func(a, b domain.Sale) int {
		return b.Date.Compare(a.Date)
	})
	return sales, nil
}

func (s *Store) InsertSale(_ context.Context, sale domain.Sale) (*domain.Sale, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if sale.ID == "" {
		sale.ID = xid.New("sale")
	}
	if sale.Date.IsZero() {
		sale.Date = time.Now().UTC()
	}
	sale.Items = nil

	s.sales[sale.ID] = sale
	return &sale, nil
}

func (s *Store) DeleteSale(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.sales[id]; !ok {
		return store.ErrNotFound
	}
	delete(s.sales, id)
	return nil
}

func (s *Store) InsertTransactionWithSale(_ context.Context, tx domain.Transaction) (*domain.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if tx.ProductID == "" || tx.Qty < 0 {
		return nil, store.ErrInvalidInput
	}
	if tx.ID == "" {
		tx.ID = xid.New("txn")
	}
	if tx.Date.IsZero() {
		tx.Date = time.Now().UTC()
	}

	s.transactions[tx.ID] = tx
	return &tx, nil
}

func (s *Store) ApplyBulkSale(_ context.Context, write store.BulkSaleWrite) (*domain.Sale, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	// Validate everything before touching state so the write is all-or-nothing.
	for id, delta := range write.StockDeltas {
		p, ok := s.products[id]
		if !ok {
			return nil, store.ErrNotFound
		}
		if p.StockQty-delta < 0 {
			return nil, store.ErrInsufficientStock
		}
	}

	sale := write.Sale
	if sale.ID == "" {
		sale.ID = xid.New("sale")
	}
	if sale.Date.IsZero() {
		sale.Date = time.Now().UTC()
	}
	sale.Items = nil
	s.sales[sale.ID] = sale

	for _, line := range write.Lines {
		if line.ID == "" {
			line.ID = xid.New("txn")
		}
		line.SaleID = sale.ID
		if line.Date.IsZero() {
			line.Date = sale.Date
		}
		s.transactions[line.ID] = line
	}

	for id, delta := range write.StockDeltas {
		p := s.products[id]
		p.StockQty -= delta
		s.products[id] = p
	}

	return &sale, nil
}

func (s *Store) ApplyMonthlyRestock(_ context.Context, write store.MonthlyRestockWrite) (*domain.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for id := range write.StockLevels {
		if _, ok := s.products[id]; !ok {
			return nil, store.ErrNotFound
		}
	}

	parent := write.Parent
	if parent.ID == "" {
		parent.ID = xid.New("txn")
	}
	if parent.Date.IsZero() {
		parent.Date = time.Now().UTC()
	}
	s.transactions[parent.ID] = parent

	for _, child := range write.Children {
		if child.ID == "" {
			child.ID = xid.New("txn")
		}
		child.ParentTransactionID = parent.ID
		if child.Date.IsZero() {
			child.Date = parent.Date
		}
		s.transactions[child.ID] = child
	}

	restocked := write.LastRestocked.UTC()
	for id, qty := range write.StockLevels {
		p := s.products[id]
		p.StockQty = qty
		p.LastRestocked = &restocked
		s.products[id] = p
	}

	return &parent, nil
}

func (s *Store) ListFinanceRecords(_ context.Context, recordType string) ([]domain.FinanceRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	records := make([]domain.FinanceRecord, 0, len(s.financeRecords))
	for _, rec := range s.financeRecords {
		if recordType != "" && rec.Type != recordType {
			continue
		}
		records = append(records, cloneFinanceRecord(rec))
	}
	slices.SortFunc(records, func(a, b domain.FinanceRecord) int {
		return b.Date.Compare(a.Date)
	})
	return records, nil
}

func (s *Store) CreateFinanceRecord(_ context.Context, record domain.FinanceRecord) (*domain.FinanceRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if record.Type != domain.FinanceTypeIncome && record.Type != domain.FinanceTypeExpense {
		return nil, store.ErrInvalidInput
	}
	if record.AmountCents < 0 {
		return nil, store.ErrInvalidInput
	}
	if record.ID == "" {
		record.ID = xid.New("fin")
	}
	if record.Date.IsZero() {
		record.Date = time.Now().UTC()
	}

	s.financeRecords[record.ID] = cloneFinanceRecord(record)
	clone := cloneFinanceRecord(record)
	return &clone, nil
}

func (s *Store) CreateUser(_ context.Context, user domain.UserAccount) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	username := strings.ToLower(strings.TrimSpace(user.Username))
	if username == "" {
		return store.ErrInvalidInput
	}
	if _, exists := s.usersByUsername[username]; exists {
		return store.ErrInvalidInput
	}
	user.Username = username
	s.usersByUsername[username] = user
	return nil
}

func (s *Store) ListUsers(_ context.Context) ([]domain.UserAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	users := make([]domain.UserAccount, 0, len(s.usersByUsername))
	for _, u := range s.usersByUsername {
		users = append(users, u)
	}
	slices.SortFunc(users, func(a, b domain.UserAccount) int {
		return cmpString(a.Username, b.Username)
	})
	return users, nil
}

func (s *Store) UpdateUserPassword(_ context.Context, username string, password string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.usersByUsername[username]
	if !ok {
		return store.ErrNotFound
	}
	u.Password = password
	s.usersByUsername[username] = u
	return nil
}

func sortTransactionsNewestFirst(txs []domain.Transaction) {
	slices.SortFunc(txs, func(a, b domain.Transaction) int {
		if c := b.Date.Compare(a.Date); c != 0 {
			return c
		}
		return cmpString(b.ID, a.ID)
	})
}

func cloneProduct(p domain.Product) domain.Product {
	if p.LastRestocked != nil {
		t := *p.LastRestocked
		p.LastRestocked = &t
	}
	return p
}

func cloneFinanceRecord(r domain.FinanceRecord) domain.FinanceRecord {
	if r.Bundle != nil {
		b := domain.ServiceBundle{
			ServiceIDs:    slices.Clone(r.Bundle.ServiceIDs),
			ServiceNames:  slices.Clone(r.Bundle.ServiceNames),
			ServicePrices: slices.Clone(r.Bundle.ServicePrices),
			DiscountCents: r.Bundle.DiscountCents,
		}
		r.Bundle = &b
	}
	return r
}

func cmpString(a, b string) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}
