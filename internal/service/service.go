package service

import (
	"context"
	"fmt"
	"log"
	"slices"
	"strings"
	"sync"
	"time"

	"tokopos/backend/internal/cache"
	"tokopos/backend/internal/domain"
	"tokopos/backend/internal/metrics"
	"tokopos/backend/internal/store"
	"tokopos/backend/internal/xid"
)

type actorContextKey struct{}

func WithActor(ctx context.Context, actor domain.Actor) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

func ActorFromContext(ctx context.Context) (domain.Actor, bool) {
	actor, ok := ctx.Value(actorContextKey{}).(domain.Actor)
	return actor, ok
}

// undoKind discriminates the single undo slot. Exactly one of the payload
// fields below it is meaningful for each kind.
type undoKind int

const (
	undoSale undoKind = iota + 1
	undoRestock
	undoAdjustment
	undoProductUpdate
	undoProductDelete
	undoBlocked
)

type lastAction struct {
	kind          undoKind
	label         string
	transactionID string
	saleID        string
	productID     string
	prevStock     int
	prevRestocked *time.Time
	prevProduct   domain.Product
}

const summaryCacheTTL = 2 * time.Minute

// Service is the single mutation path for the ledger. It keeps an in-process
// snapshot of products, transactions, sales and service incomes that mirrors
// every successful remote write, plus a one-deep undo slot for the most
// recent reversible action.
type Service struct {
	repo      store.Repository
	summaries cache.SummaryCache

	mu             sync.RWMutex
	products       []domain.Product
	services       []domain.Service
	transactions   []domain.Transaction
	sales          []domain.Sale
	serviceIncomes []domain.FinanceRecord
	last           *lastAction
}

func New(repo store.Repository, summaries cache.SummaryCache) *Service {
	if summaries == nil {
		summaries = cache.NoopSummaryCache{}
	}
	return &Service{
		repo:      repo,
		summaries: summaries,
	}
}

// Load populates the snapshot from the repository. A failure in one category
// is logged and does not prevent the others from loading, so a partially
// reachable backend still yields a usable (if incomplete) state.
func (s *Service) Load(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var firstErr error
	note := func(what string, err error) {
		log.Printf("[service] WARN: load %s: %v", what, err)
		if firstErr == nil {
			firstErr = fmt.Errorf("load %s: %w", what, err)
		}
	}

	if products, err := s.repo.ListProducts(ctx); err != nil {
		note("products", err)
	} else {
		s.products = products
	}

	if services, err := s.repo.ListServices(ctx, true); err != nil {
		note("services", err)
	} else {
		s.services = services
	}

	if txs, err := s.repo.ListTransactions(ctx); err != nil {
		note("transactions", err)
	} else {
		s.transactions = txs
	}

	if sales, err := s.repo.GetSales(ctx); err != nil {
		note("sales", err)
	} else {
		for i := range sales {
			sales[i].Items = itemsForSale(s.transactions, sales[i].ID)
		}
		s.sales = sales
	}

	if incomes, err := s.repo.ListFinanceRecords(ctx, domain.FinanceTypeIncome); err != nil {
		note("service incomes", err)
	} else {
		s.serviceIncomes = incomes
	}

	return firstErr
}

func (s *Service) Products() []domain.Product {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.products)
}

func (s *Service) Services() []domain.Service {
	s.mu.RLock()
	defer s.mu.RUnlock()
	active := make([]domain.Service, 0, len(s.services))
	for _, svc := range s.services {
		if svc.Active {
			active = append(active, svc)
		}
	}
	return active
}

func (s *Service) Transactions() []domain.Transaction {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.transactions)
}

func (s *Service) Sales() []domain.Sale {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.sales)
}

func (s *Service) ServiceIncomes() []domain.FinanceRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.serviceIncomes)
}

// LastRestockDate is the newest LastRestocked stamp across all products.
func (s *Service) LastRestockDate() *time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var latest *time.Time
	for _, p := range s.products {
		if p.LastRestocked == nil {
			continue
		}
		if latest == nil || p.LastRestocked.After(*latest) {
			t := *p.LastRestocked
			latest = &t
		}
	}
	return latest
}

// RecordSale sells qty units of one product: one sale header, one ledger row,
// one stock decrement, all committed atomically. The stock precondition is
// checked against the snapshot before anything is written.
func (s *Service) RecordSale(ctx context.Context, productID string, qty int) (*domain.Sale, error) {
	if qty < 1 {
		return nil, store.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	idx := s.productIndex(productID)
	if idx < 0 {
		return nil, store.ErrNotFound
	}
	product := s.products[idx]
	if product.StockQty < qty {
		return nil, fmt.Errorf("%w: %s has %d left", store.ErrInsufficientStock, product.Name, product.StockQty)
	}

	actor, _ := ActorFromContext(ctx)
	now := time.Now().UTC()
	total := product.SellCents * int64(qty)

	sale := domain.Sale{
		ID:                 xid.New("sale"),
		Date:               now,
		TotalCents:         total,
		UserID:             actor.Username,
		UserName:           actor.Username,
		OriginalTotalCents: total,
	}
	line := domain.Transaction{
		ID:                 xid.New("txn"),
		ProductID:          product.ID,
		ProductName:        product.Name,
		Qty:                qty,
		PriceCents:         total,
		Type:               domain.TxTypeSale,
		Date:               now,
		UserID:             actor.Username,
		UserName:           actor.Username,
		SaleID:             sale.ID,
		OriginalPriceCents: total,
	}

	created, err := s.repo.ApplyBulkSale(ctx, store.BulkSaleWrite{
		Sale:        sale,
		Lines:       []domain.Transaction{line},
		StockDeltas: map[string]int{product.ID: qty},
	})
	if err != nil {
		return nil, err
	}

	prevStock := product.StockQty
	s.products[idx].StockQty -= qty
	s.prependTransaction(line)
	created.Items = []domain.Transaction{line}
	s.prependSale(*created)

	s.last = &lastAction{
		kind:          undoSale,
		label:         fmt.Sprintf("sale of %d x %s", qty, product.Name),
		transactionID: line.ID,
		saleID:        created.ID,
		productID:     product.ID,
		prevStock:     prevStock,
	}
	s.invalidateSummaries(ctx)

	return created, nil
}

// RecordBulkSale sells several products in one sale. Each line keeps its own
// discount; the header total is the discounted sum floored at zero. Bulk
// sales cannot be undone.
func (s *Service) RecordBulkSale(ctx context.Context, req domain.BulkSaleRequest) (*domain.Sale, error) {
	if len(req.Items) == 0 {
		return nil, store.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	actor, _ := ActorFromContext(ctx)
	now := time.Now().UTC()

	var (
		originalTotal int64
		totalDiscount int64
		lines         = make([]domain.Transaction, 0, len(req.Items))
		deltas        = make(map[string]int, len(req.Items))
	)
	for _, item := range req.Items {
		if item.Qty < 1 || item.DiscountCents < 0 {
			return nil, store.ErrInvalidInput
		}
		idx := s.productIndex(item.ProductID)
		if idx < 0 {
			return nil, fmt.Errorf("%w: product %s", store.ErrNotFound, item.ProductID)
		}
		product := s.products[idx]
		have := product.StockQty - deltas[product.ID]
		if have < item.Qty {
			return nil, fmt.Errorf("%w: %s has %d left", store.ErrInsufficientStock, product.Name, have)
		}
		deltas[product.ID] += item.Qty

		linePrice := product.SellCents * int64(item.Qty)
		originalTotal += linePrice
		totalDiscount += item.DiscountCents

		lines = append(lines, domain.Transaction{
			ID:                 xid.New("txn"),
			ProductID:          product.ID,
			ProductName:        product.Name,
			Qty:                item.Qty,
			PriceCents:         maxInt64(0, linePrice-item.DiscountCents),
			Type:               domain.TxTypeSale,
			Date:               now,
			UserID:             actor.Username,
			UserName:           actor.Username,
			DiscountCents:      item.DiscountCents,
			OriginalPriceCents: linePrice,
		})
	}

	sale := domain.Sale{
		ID:                 xid.New("sale"),
		Date:               now,
		TotalCents:         maxInt64(0, originalTotal-totalDiscount),
		UserID:             actor.Username,
		UserName:           actor.Username,
		PaymentMethod:      req.PaymentMethod,
		Notes:              req.Notes,
		DiscountCents:      totalDiscount,
		OriginalTotalCents: originalTotal,
	}
	for i := range lines {
		lines[i].SaleID = sale.ID
	}

	created, err := s.repo.ApplyBulkSale(ctx, store.BulkSaleWrite{
		Sale:        sale,
		Lines:       lines,
		StockDeltas: deltas,
	})
	if err != nil {
		return nil, err
	}

	for id, delta := range deltas {
		if idx := s.productIndex(id); idx >= 0 {
			s.products[idx].StockQty -= delta
		}
	}
	for i := len(lines) - 1; i >= 0; i-- {
		s.prependTransaction(lines[i])
	}
	created.Items = slices.Clone(lines)
	s.prependSale(*created)

	s.last = &lastAction{kind: undoBlocked, label: "bulk sale"}
	s.invalidateSummaries(ctx)

	return created, nil
}

// RecordRestock adds qty units of stock at the product's unit cost and stamps
// the product's last restock time.
func (s *Service) RecordRestock(ctx context.Context, productID string, qty int) (*domain.Transaction, error) {
	if qty < 1 {
		return nil, store.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	idx := s.productIndex(productID)
	if idx < 0 {
		return nil, store.ErrNotFound
	}
	product := s.products[idx]

	actor, _ := ActorFromContext(ctx)
	now := time.Now().UTC()
	newStock := product.StockQty + qty

	if err := s.repo.SetProductStock(ctx, product.ID, newStock, &now); err != nil {
		return nil, err
	}

	tx := domain.Transaction{
		ID:          xid.New("txn"),
		ProductID:   product.ID,
		ProductName: product.Name,
		Qty:         qty,
		PriceCents:  product.CostCents * int64(qty),
		Type:        domain.TxTypeRestock,
		Date:        now,
		UserID:      actor.Username,
		UserName:    actor.Username,
	}
	created, err := s.repo.InsertTransactionWithSale(ctx, tx)
	if err != nil {
		// Best-effort revert keeps stock consistent with the ledger.
		if revertErr := s.repo.SetProductStock(ctx, product.ID, product.StockQty, product.LastRestocked); revertErr != nil {
			log.Printf("[service] WARN: revert restock stock for %s: %v", product.ID, revertErr)
		}
		return nil, err
	}

	prevStock := product.StockQty
	prevRestocked := product.LastRestocked
	s.products[idx].StockQty = newStock
	s.products[idx].LastRestocked = &now
	s.prependTransaction(*created)

	s.last = &lastAction{
		kind:          undoRestock,
		label:         fmt.Sprintf("restock of %d x %s", qty, product.Name),
		transactionID: created.ID,
		productID:     product.ID,
		prevStock:     prevStock,
		prevRestocked: prevRestocked,
	}
	s.invalidateSummaries(ctx)

	return created, nil
}

// AdjustInventory sets a product's stock to an absolute count. The ledger row
// records the magnitude of the change and carries no monetary value.
func (s *Service) AdjustInventory(ctx context.Context, productID string, newQty int) (*domain.Transaction, error) {
	if newQty < 0 {
		return nil, store.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	idx := s.productIndex(productID)
	if idx < 0 {
		return nil, store.ErrNotFound
	}
	product := s.products[idx]

	actor, _ := ActorFromContext(ctx)
	now := time.Now().UTC()

	if err := s.repo.SetProductStock(ctx, product.ID, newQty, nil); err != nil {
		return nil, err
	}

	delta := newQty - product.StockQty
	if delta < 0 {
		delta = -delta
	}
	tx := domain.Transaction{
		ID:          xid.New("txn"),
		ProductID:   product.ID,
		ProductName: product.Name,
		Qty:         delta,
		PriceCents:  0,
		Type:        domain.TxTypeAdjustment,
		Date:        now,
		UserID:      actor.Username,
		UserName:    actor.Username,
	}
	created, err := s.repo.InsertTransactionWithSale(ctx, tx)
	if err != nil {
		if revertErr := s.repo.SetProductStock(ctx, product.ID, product.StockQty, nil); revertErr != nil {
			log.Printf("[service] WARN: revert adjustment stock for %s: %v", product.ID, revertErr)
		}
		return nil, err
	}

	prevStock := product.StockQty
	s.products[idx].StockQty = newQty
	s.prependTransaction(*created)

	s.last = &lastAction{
		kind:          undoAdjustment,
		label:         fmt.Sprintf("adjustment of %s to %d", product.Name, newQty),
		transactionID: created.ID,
		productID:     product.ID,
		prevStock:     prevStock,
	}
	s.invalidateSummaries(ctx)

	return created, nil
}

type MonthlyRestockResult struct {
	Parent         *domain.Transaction `json:"parent,omitempty"`
	Applied        int                 `json:"applied"`
	Skipped        int                 `json:"skipped"`
	TotalCostCents int64               `json:"total_cost_cents"`
}

// RecordMonthlyRestock tops several products up to new absolute levels in one
// batch. Entries whose new level does not exceed the current stock are
// skipped; if nothing qualifies, nothing is written at all. The batch is
// recorded as one aggregate parent row priced at the full batch cost plus one
// child row per product. Monthly restocks cannot be undone.
func (s *Service) RecordMonthlyRestock(ctx context.Context, req domain.MonthlyRestockRequest) (*MonthlyRestockResult, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok || actor.Role != domain.RoleAdmin {
		return nil, fmt.Errorf("admin role required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	result := &MonthlyRestockResult{}

	var (
		children = make([]domain.Transaction, 0, len(req.Updates))
		levels   = make(map[string]int, len(req.Updates))
	)
	for _, update := range req.Updates {
		idx := s.productIndex(update.ProductID)
		if idx < 0 {
			return nil, fmt.Errorf("%w: product %s", store.ErrNotFound, update.ProductID)
		}
		product := s.products[idx]
		if update.NewQty <= product.StockQty {
			result.Skipped++
			continue
		}
		added := update.NewQty - product.StockQty
		cost := product.CostCents * int64(added)
		result.TotalCostCents += cost
		levels[product.ID] = update.NewQty

		children = append(children, domain.Transaction{
			ID:          xid.New("txn"),
			ProductID:   product.ID,
			ProductName: product.Name,
			Qty:         added,
			PriceCents:  cost,
			Type:        domain.TxTypeRestock,
			Date:        now,
			UserID:      actor.Username,
			UserName:    actor.Username,
		})
	}

	if len(children) == 0 {
		return result, nil
	}

	parent := domain.Transaction{
		ID:          xid.New("txn"),
		ProductID:   domain.BulkRestockProductID,
		ProductName: "Monthly Restock",
		Qty:         len(children),
		PriceCents:  result.TotalCostCents,
		Type:        domain.TxTypeRestock,
		Date:        now,
		UserID:      actor.Username,
		UserName:    actor.Username,
	}
	for i := range children {
		children[i].ParentTransactionID = parent.ID
	}

	created, err := s.repo.ApplyMonthlyRestock(ctx, store.MonthlyRestockWrite{
		Parent:        parent,
		Children:      children,
		StockLevels:   levels,
		LastRestocked: now,
	})
	if err != nil {
		return nil, err
	}

	for id, qty := range levels {
		if idx := s.productIndex(id); idx >= 0 {
			s.products[idx].StockQty = qty
			t := now
			s.products[idx].LastRestocked = &t
		}
	}
	for i := len(children) - 1; i >= 0; i-- {
		s.prependTransaction(children[i])
	}
	s.prependTransaction(*created)

	result.Parent = created
	result.Applied = len(children)
	s.last = &lastAction{kind: undoBlocked, label: "monthly restock"}
	s.invalidateSummaries(ctx)

	return result, nil
}

// RestockDetails returns the child rows of a monthly restock aggregate,
// newest first.
func (s *Service) RestockDetails(parentID string) ([]domain.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var parent *domain.Transaction
	for i := range s.transactions {
		if s.transactions[i].ID == parentID {
			parent = &s.transactions[i]
			break
		}
	}
	if parent == nil || !parent.IsRestockAggregate() {
		return nil, store.ErrNotFound
	}

	details := make([]domain.Transaction, 0, parent.Qty)
	for _, tx := range s.transactions {
		if tx.ParentTransactionID == parentID {
			details = append(details, tx)
		}
	}
	return details, nil
}

// RecordServiceIncome writes one income row. Multiple services become a
// bundle: the row amount is the discounted sum and the per-service prices
// travel in the bundle descriptor for later expansion by reporting.
func (s *Service) RecordServiceIncome(ctx context.Context, req domain.ServiceIncomeRequest) (*domain.FinanceRecord, error) {
	if len(req.ServiceIDs) == 0 || req.TipCents < 0 || req.DiscountCents < 0 {
		return nil, store.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	selected := make([]domain.Service, 0, len(req.ServiceIDs))
	for _, id := range req.ServiceIDs {
		found := false
		for _, svc := range s.services {
			if svc.ID == id && svc.Active {
				selected = append(selected, svc)
				found = true
				break
			}
		}
		if !found {
			return nil, fmt.Errorf("%w: service %s", store.ErrNotFound, id)
		}
	}

	var total int64
	for _, svc := range selected {
		total += svc.PriceCents
	}

	record := domain.FinanceRecord{
		ID:            xid.New("fin"),
		Type:          domain.FinanceTypeIncome,
		Date:          time.Now().UTC(),
		AmountCents:   maxInt64(0, total-req.DiscountCents),
		CustomerName:  strings.TrimSpace(req.CustomerName),
		PaymentMethod: req.PaymentMethod,
		TipCents:      req.TipCents,
	}
	if len(selected) == 1 {
		record.ServiceID = selected[0].ID
		record.ServiceName = selected[0].Name
	} else {
		bundle := &domain.ServiceBundle{DiscountCents: req.DiscountCents}
		for _, svc := range selected {
			bundle.ServiceIDs = append(bundle.ServiceIDs, svc.ID)
			bundle.ServiceNames = append(bundle.ServiceNames, svc.Name)
			bundle.ServicePrices = append(bundle.ServicePrices, svc.PriceCents)
		}
		record.Bundle = bundle
	}

	created, err := s.repo.CreateFinanceRecord(ctx, record)
	if err != nil {
		return nil, err
	}

	s.serviceIncomes = append([]domain.FinanceRecord{*created}, s.serviceIncomes...)
	s.last = &lastAction{kind: undoBlocked, label: "service income"}
	s.invalidateSummaries(ctx)

	return created, nil
}

// RecordExpense writes one expense row. Expenses are not part of the
// in-process snapshot; reporting reads them from the repository on demand.
func (s *Service) RecordExpense(ctx context.Context, req domain.ExpenseRequest) (*domain.FinanceRecord, error) {
	if req.AmountCents < 1 {
		return nil, store.ErrInvalidInput
	}

	record := domain.FinanceRecord{
		ID:          xid.New("fin"),
		Type:        domain.FinanceTypeExpense,
		Date:        time.Now().UTC(),
		AmountCents: req.AmountCents,
		Vendor:      strings.TrimSpace(req.Vendor),
		Category:    strings.TrimSpace(req.Category),
	}
	created, err := s.repo.CreateFinanceRecord(ctx, record)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.last = &lastAction{kind: undoBlocked, label: "expense"}
	s.mu.Unlock()

	return created, nil
}

func (s *Service) ListExpenses(ctx context.Context) ([]domain.FinanceRecord, error) {
	return s.repo.ListFinanceRecords(ctx, domain.FinanceTypeExpense)
}

func (s *Service) CreateProduct(ctx context.Context, req domain.ProductCreateRequest) (domain.Product, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok || actor.Role != domain.RoleAdmin {
		return domain.Product{}, fmt.Errorf("admin role required")
	}

	req.Name = strings.TrimSpace(req.Name)
	req.Category = strings.TrimSpace(req.Category)
	if req.Name == "" || req.SellCents < 0 || req.CostCents < 0 || req.StockQty < 0 {
		return domain.Product{}, store.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	product := domain.Product{
		ID:                xid.New("prd"),
		Name:              req.Name,
		Description:       strings.TrimSpace(req.Description),
		Category:          req.Category,
		CostCents:         req.CostCents,
		SellCents:         req.SellCents,
		StockQty:          req.StockQty,
		LowStockThreshold: req.LowStockThreshold,
	}
	created, err := s.repo.CreateProduct(ctx, product)
	if err != nil {
		return domain.Product{}, err
	}

	s.products = append(s.products, *created)
	s.last = &lastAction{kind: undoBlocked, label: "product create"}
	s.invalidateSummaries(ctx)

	return *created, nil
}

func (s *Service) UpdateProduct(ctx context.Context, id string, req domain.ProductUpdateRequest) (domain.Product, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok || actor.Role != domain.RoleAdmin {
		return domain.Product{}, fmt.Errorf("admin role required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	idx := s.productIndex(id)
	if idx < 0 {
		return domain.Product{}, store.ErrNotFound
	}
	prev := s.products[idx]

	updated := prev
	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		if name == "" {
			return domain.Product{}, store.ErrInvalidInput
		}
		updated.Name = name
	}
	if req.Description != nil {
		updated.Description = strings.TrimSpace(*req.Description)
	}
	if req.Category != nil {
		updated.Category = strings.TrimSpace(*req.Category)
	}
	if req.CostCents != nil {
		if *req.CostCents < 0 {
			return domain.Product{}, store.ErrInvalidInput
		}
		updated.CostCents = *req.CostCents
	}
	if req.SellCents != nil {
		if *req.SellCents < 0 {
			return domain.Product{}, store.ErrInvalidInput
		}
		updated.SellCents = *req.SellCents
	}
	if req.StockQty != nil {
		if *req.StockQty < 0 {
			return domain.Product{}, store.ErrInvalidInput
		}
		updated.StockQty = *req.StockQty
	}
	if req.LowStockThreshold != nil {
		updated.LowStockThreshold = *req.LowStockThreshold
	}

	saved, err := s.repo.UpdateProduct(ctx, updated)
	if err != nil {
		return domain.Product{}, err
	}

	s.products[idx] = *saved
	s.last = &lastAction{
		kind:        undoProductUpdate,
		label:       fmt.Sprintf("update of %s", prev.Name),
		productID:   prev.ID,
		prevProduct: prev,
	}
	s.invalidateSummaries(ctx)

	return *saved, nil
}

func (s *Service) DeleteProduct(ctx context.Context, id string) error {
	actor, ok := ActorFromContext(ctx)
	if !ok || actor.Role != domain.RoleAdmin {
		return fmt.Errorf("admin role required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	idx := s.productIndex(id)
	if idx < 0 {
		return store.ErrNotFound
	}
	prev := s.products[idx]

	if err := s.repo.DeleteProduct(ctx, id); err != nil {
		return err
	}

	s.products = slices.Delete(s.products, idx, idx+1)
	s.last = &lastAction{
		kind:        undoProductDelete,
		label:       fmt.Sprintf("delete of %s", prev.Name),
		productID:   prev.ID,
		prevProduct: prev,
	}
	s.invalidateSummaries(ctx)

	return nil
}

func (s *Service) CreateService(ctx context.Context, req domain.ServiceCreateRequest) (domain.Service, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok || actor.Role != domain.RoleAdmin {
		return domain.Service{}, fmt.Errorf("admin role required")
	}

	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" || req.PriceCents < 0 {
		return domain.Service{}, store.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	created, err := s.repo.CreateService(ctx, domain.Service{
		ID:          xid.New("svc"),
		Name:        req.Name,
		Description: strings.TrimSpace(req.Description),
		PriceCents:  req.PriceCents,
		Active:      true,
	})
	if err != nil {
		return domain.Service{}, err
	}

	s.services = append(s.services, *created)
	return *created, nil
}

func (s *Service) UpdateService(ctx context.Context, id string, req domain.ServiceUpdateRequest) (domain.Service, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok || actor.Role != domain.RoleAdmin {
		return domain.Service{}, fmt.Errorf("admin role required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	idx := s.serviceIndex(id)
	if idx < 0 {
		return domain.Service{}, store.ErrNotFound
	}

	updated := s.services[idx]
	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		if name == "" {
			return domain.Service{}, store.ErrInvalidInput
		}
		updated.Name = name
	}
	if req.Description != nil {
		updated.Description = strings.TrimSpace(*req.Description)
	}
	if req.PriceCents != nil {
		if *req.PriceCents < 0 {
			return domain.Service{}, store.ErrInvalidInput
		}
		updated.PriceCents = *req.PriceCents
	}

	saved, err := s.repo.UpdateService(ctx, updated)
	if err != nil {
		return domain.Service{}, err
	}

	s.services[idx] = *saved
	return *saved, nil
}

// DeactivateService soft-deletes a service. Historical income rows keep
// referring to it; it just stops being offered.
func (s *Service) DeactivateService(ctx context.Context, id string) error {
	actor, ok := ActorFromContext(ctx)
	if !ok || actor.Role != domain.RoleAdmin {
		return fmt.Errorf("admin role required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	idx := s.serviceIndex(id)
	if idx < 0 {
		return store.ErrNotFound
	}

	if err := s.repo.SetServiceActive(ctx, id, false); err != nil {
		return err
	}
	s.services[idx].Active = false
	return nil
}

// UndoLastAction reverses the most recent reversible action and clears the
// slot. A second undo without an intervening action, or an undo after a
// non-reversible action, returns a sentinel error the caller can treat as
// benign.
func (s *Service) UndoLastAction(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.last == nil {
		return "", store.ErrNothingToUndo
	}
	if s.last.kind == undoBlocked {
		return "", fmt.Errorf("%w: %s", store.ErrCannotUndo, s.last.label)
	}

	action := *s.last
	switch action.kind {
	case undoSale:
		if err := s.repo.SetProductStock(ctx, action.productID, action.prevStock, nil); err != nil {
			return "", err
		}
		if err := s.repo.DeleteTransaction(ctx, action.transactionID); err != nil {
			return "", err
		}
		if err := s.repo.DeleteSale(ctx, action.saleID); err != nil {
			log.Printf("[service] WARN: undo: delete sale %s: %v", action.saleID, err)
		}
		if idx := s.productIndex(action.productID); idx >= 0 {
			s.products[idx].StockQty = action.prevStock
		}
		s.removeTransaction(action.transactionID)
		s.removeSale(action.saleID)

	case undoRestock:
		if err := s.repo.SetProductStock(ctx, action.productID, action.prevStock, action.prevRestocked); err != nil {
			return "", err
		}
		if err := s.repo.DeleteTransaction(ctx, action.transactionID); err != nil {
			return "", err
		}
		if idx := s.productIndex(action.productID); idx >= 0 {
			s.products[idx].StockQty = action.prevStock
			s.products[idx].LastRestocked = action.prevRestocked
		}
		s.removeTransaction(action.transactionID)

	case undoAdjustment:
		if err := s.repo.SetProductStock(ctx, action.productID, action.prevStock, nil); err != nil {
			return "", err
		}
		if err := s.repo.DeleteTransaction(ctx, action.transactionID); err != nil {
			return "", err
		}
		if idx := s.productIndex(action.productID); idx >= 0 {
			s.products[idx].StockQty = action.prevStock
		}
		s.removeTransaction(action.transactionID)

	case undoProductUpdate:
		if _, err := s.repo.UpdateProduct(ctx, action.prevProduct); err != nil {
			return "", err
		}
		if idx := s.productIndex(action.productID); idx >= 0 {
			s.products[idx] = action.prevProduct
		}

	case undoProductDelete:
		if _, err := s.repo.CreateProduct(ctx, action.prevProduct); err != nil {
			return "", err
		}
		s.products = append(s.products, action.prevProduct)

	default:
		return "", store.ErrCannotUndo
	}

	s.last = nil
	s.invalidateSummaries(ctx)
	return action.label, nil
}

// DashboardSummary computes the reporting payload for one window, with a
// short-lived cache in front so dashboard polling does not recompute on
// every request.
func (s *Service) DashboardSummary(ctx context.Context, window metrics.Window) (metrics.Summary, error) {
	key := summaryCacheKey(window)
	if cached, ok, err := s.summaries.Get(ctx, key); err == nil && ok {
		return *cached, nil
	} else if err != nil {
		log.Printf("[service] WARN: summary cache get: %v", err)
	}

	s.mu.RLock()
	products := slices.Clone(s.products)
	txs := slices.Clone(s.transactions)
	incomes := slices.Clone(s.serviceIncomes)
	s.mu.RUnlock()

	summary := metrics.BuildSummary(products, txs, incomes, window, time.Now().UTC())

	if err := s.summaries.Set(ctx, key, &summary, summaryCacheTTL); err != nil {
		log.Printf("[service] WARN: summary cache set: %v", err)
	}
	return summary, nil
}

func summaryCacheKey(window metrics.Window) string {
	return "summary:" + string(window)
}

// invalidateSummaries is called with s.mu held after every mutation.
func (s *Service) invalidateSummaries(ctx context.Context) {
	err := s.summaries.Invalidate(ctx,
		summaryCacheKey(metrics.WindowWeek),
		summaryCacheKey(metrics.WindowMonth),
		summaryCacheKey(metrics.WindowAll),
	)
	if err != nil {
		log.Printf("[service] WARN: summary cache invalidate: %v", err)
	}
}

func (s *Service) productIndex(id string) int {
	for i := range s.products {
		if s.products[i].ID == id {
			return i
		}
	}
	return -1
}

func (s *Service) serviceIndex(id string) int {
	for i := range s.services {
		if s.services[i].ID == id {
			return i
		}
	}
	return -1
}

func (s *Service) prependTransaction(tx domain.Transaction) {
	s.transactions = append([]domain.Transaction{tx}, s.transactions...)
}

func (s *Service) prependSale(sale domain.Sale) {
	s.sales = append([]domain.Sale{sale}, s.sales...)
}

func (s *Service) removeTransaction(id string) {
	for i := range s.transactions {
		if s.transactions[i].ID == id {
			s.transactions = slices.Delete(s.transactions, i, i+1)
			return
		}
	}
}

func (s *Service) removeSale(id string) {
	for i := range s.sales {
		if s.sales[i].ID == id {
			s.sales = slices.Delete(s.sales, i, i+1)
			return
		}
	}
}

func itemsForSale(txs []domain.Transaction, saleID string) []domain.Transaction {
	items := make([]domain.Transaction, 0, 4)
	for _, tx := range txs {
		if tx.SaleID == saleID {
			items = append(items, tx)
		}
	}
	return items
}

func maxInt64(a int64, b int64) int64 {
	if a > b {
		return a
	}
	return b
}
