// Package metrics derives reporting figures from ledger snapshots. Everything
// here is a pure function over slices the service hands in; no I/O and no
// locking happens at this layer.
package metrics

import (
	"math"
	"slices"
	"time"

	"tokopos/backend/internal/domain"
)

type Window string

const (
	WindowWeek  Window = "week"
	WindowMonth Window = "month"
	WindowAll   Window = "all"
)

func ParseWindow(raw string) Window {
	switch raw {
	case string(WindowWeek):
		return WindowWeek
	case string(WindowMonth):
		return WindowMonth
	default:
		return WindowAll
	}
}

// Cutoff returns the inclusive lower bound of the window. The second return
// is false for the all-time window, which has no bound.
func (w Window) Cutoff(now time.Time) (time.Time, bool) {
	switch w {
	case WindowWeek:
		return now.AddDate(0, 0, -7), true
	case WindowMonth:
		return now.AddDate(0, 0, -30), true
	default:
		return time.Time{}, false
	}
}

func (w Window) contains(t time.Time, now time.Time) bool {
	cutoff, bounded := w.Cutoff(now)
	if !bounded {
		return true
	}
	return !t.Before(cutoff)
}

type ProductPerformance struct {
	ProductID    string `json:"product_id"`
	Name         string `json:"name"`
	Category     string `json:"category"`
	TotalSold    int    `json:"total_sold"`
	RevenueCents int64  `json:"revenue_cents"`
	ProfitCents  int64  `json:"profit_cents"`
}

type DailySales struct {
	Day          string `json:"day"`
	Transactions int    `json:"transactions"`
	RevenueCents int64  `json:"revenue_cents"`
}

type CategoryRevenue struct {
	Category     string `json:"category"`
	RevenueCents int64  `json:"revenue_cents"`
}

type ServicePerformance struct {
	ServiceID       string `json:"service_id"`
	Name            string `json:"name"`
	Count           int    `json:"count"`
	RevenueCents    int64  `json:"revenue_cents"`
	UniqueCustomers int    `json:"unique_customers"`
}

type Totals struct {
	RevenueCents    int64 `json:"revenue_cents"`
	ProfitCents     int64 `json:"profit_cents"`
	SalesCount      int   `json:"sales_count"`
	UniqueCustomers int   `json:"unique_customers"`
}

type Summary struct {
	Window      Window               `json:"window"`
	GeneratedAt time.Time            `json:"generated_at"`
	Totals      Totals               `json:"totals"`
	Products    []ProductPerformance `json:"products"`
	Daily       []DailySales         `json:"daily"`
	Categories  []CategoryRevenue    `json:"categories"`
	Services    []ServicePerformance `json:"services"`
}

// ProductPerformanceReport groups sale transactions by product. Profit per
// product is revenue minus the product's current unit cost times units sold;
// products with no recorded sales in the window are omitted. Sorted by profit
// descending, name ascending on ties.
func ProductPerformanceReport(products []domain.Product, txs []domain.Transaction, w Window, now time.Time) []ProductPerformance {
	byID := make(map[string]domain.Product, len(products))
	for _, p := range products {
		byID[p.ID] = p
	}

	perf := make(map[string]*ProductPerformance)
	for _, tx := range txs {
		if tx.Type != domain.TxTypeSale || !w.contains(tx.Date, now) {
			continue
		}
		entry, ok := perf[tx.ProductID]
		if !ok {
			entry = &ProductPerformance{ProductID: tx.ProductID, Name: tx.ProductName}
			if p, known := byID[tx.ProductID]; known {
				entry.Name = p.Name
				entry.Category = p.Category
			}
			perf[tx.ProductID] = entry
		}
		entry.TotalSold += tx.Qty
		entry.RevenueCents += tx.PriceCents
	}

	result := make([]ProductPerformance, 0, len(perf))
	for id, entry := range perf {
		if p, known := byID[id]; known {
			entry.ProfitCents = entry.RevenueCents - p.CostCents*int64(entry.TotalSold)
		} else {
			entry.ProfitCents = entry.RevenueCents
		}
		result = append(result, *entry)
	}

	slices.SortFunc(result, func(a, b ProductPerformance) int {
		if a.ProfitCents != b.ProfitCents {
			if a.ProfitCents > b.ProfitCents {
				return -1
			}
			return 1
		}
		if a.Name < b.Name {
			return -1
		}
		if a.Name > b.Name {
			return 1
		}
		return 0
	})
	return result
}

// SalesSeries buckets sale revenue per ISO day (UTC), ascending by day.
func SalesSeries(txs []domain.Transaction, w Window, now time.Time) []DailySales {
	byDay := make(map[string]*DailySales)
	for _, tx := range txs {
		if tx.Type != domain.TxTypeSale || !w.contains(tx.Date, now) {
			continue
		}
		day := tx.Date.UTC().Format("2006-01-02")
		entry, ok := byDay[day]
		if !ok {
			entry = &DailySales{Day: day}
			byDay[day] = entry
		}
		entry.Transactions++
		entry.RevenueCents += tx.PriceCents
	}

	result := make([]DailySales, 0, len(byDay))
	for _, entry := range byDay {
		result = append(result, *entry)
	}
	slices.SortFunc(result, func(a, b DailySales) int {
		if a.Day < b.Day {
			return -1
		}
		if a.Day > b.Day {
			return 1
		}
		return 0
	})
	return result
}

// CategoryRevenueReport groups sale revenue by the selling product's current
// category. Transactions whose product no longer exists fall under "other".
func CategoryRevenueReport(products []domain.Product, txs []domain.Transaction, w Window, now time.Time) []CategoryRevenue {
	byID := make(map[string]string, len(products))
	for _, p := range products {
		byID[p.ID] = p.Category
	}

	byCategory := make(map[string]int64)
	for _, tx := range txs {
		if tx.Type != domain.TxTypeSale || !w.contains(tx.Date, now) {
			continue
		}
		category, ok := byID[tx.ProductID]
		if !ok || category == "" {
			category = "other"
		}
		byCategory[category] += tx.PriceCents
	}

	result := make([]CategoryRevenue, 0, len(byCategory))
	for category, revenue := range byCategory {
		result = append(result, CategoryRevenue{Category: category, RevenueCents: revenue})
	}
	slices.SortFunc(result, func(a, b CategoryRevenue) int {
		if a.RevenueCents != b.RevenueCents {
			if a.RevenueCents > b.RevenueCents {
				return -1
			}
			return 1
		}
		if a.Category < b.Category {
			return -1
		}
		if a.Category > b.Category {
			return 1
		}
		return 0
	})
	return result
}

// AllocateDiscount spreads a total discount across bundle prices in
// proportion to each price, rounding per line and flooring every net amount
// at zero. A zero discount returns the prices unchanged.
func AllocateDiscount(prices []int64, discountCents int64) []int64 {
	net := make([]int64, len(prices))
	var sum int64
	for _, p := range prices {
		sum += p
	}
	if sum <= 0 || discountCents <= 0 {
		copy(net, prices)
		return net
	}
	for i, p := range prices {
		share := int64(math.Round(float64(p) / float64(sum) * float64(discountCents)))
		v := p - share
		if v < 0 {
			v = 0
		}
		net[i] = v
	}
	return net
}

// ServicePerformanceReport groups income rows by service. Bundled rows expand
// into one entry per bundled service with the bundle discount allocated
// proportionally; plain rows count as a single occurrence at the recorded
// amount. Unique customers are distinct non-empty customer names per service.
func ServicePerformanceReport(incomes []domain.FinanceRecord, w Window, now time.Time) []ServicePerformance {
	type acc struct {
		perf      ServicePerformance
		customers map[string]struct{}
	}
	byService := make(map[string]*acc)

	track := func(serviceID, name, customer string, revenue int64) {
		key := serviceID
		if key == "" {
			key = name
		}
		entry, ok := byService[key]
		if !ok {
			entry = &acc{
				perf:      ServicePerformance{ServiceID: serviceID, Name: name},
				customers: make(map[string]struct{}),
			}
			byService[key] = entry
		}
		entry.perf.Count++
		entry.perf.RevenueCents += revenue
		if customer != "" {
			entry.customers[customer] = struct{}{}
		}
	}

	for _, rec := range incomes {
		if rec.Type != domain.FinanceTypeIncome || !w.contains(rec.Date, now) {
			continue
		}
		if rec.Bundle != nil {
			net := AllocateDiscount(rec.Bundle.ServicePrices, rec.Bundle.DiscountCents)
			for i, id := range rec.Bundle.ServiceIDs {
				name := ""
				if i < len(rec.Bundle.ServiceNames) {
					name = rec.Bundle.ServiceNames[i]
				}
				revenue := int64(0)
				if i < len(net) {
					revenue = net[i]
				}
				track(id, name, rec.CustomerName, revenue)
			}
			continue
		}
		if rec.ServiceID == "" && rec.ServiceName == "" {
			continue
		}
		track(rec.ServiceID, rec.ServiceName, rec.CustomerName, rec.AmountCents)
	}

	result := make([]ServicePerformance, 0, len(byService))
	for _, entry := range byService {
		entry.perf.UniqueCustomers = len(entry.customers)
		result = append(result, entry.perf)
	}
	slices.SortFunc(result, func(a, b ServicePerformance) int {
		if a.RevenueCents != b.RevenueCents {
			if a.RevenueCents > b.RevenueCents {
				return -1
			}
			return 1
		}
		if a.Name < b.Name {
			return -1
		}
		if a.Name > b.Name {
			return 1
		}
		return 0
	})
	return result
}

// BuildSummary computes the full dashboard payload for one window.
func BuildSummary(products []domain.Product, txs []domain.Transaction, incomes []domain.FinanceRecord, w Window, now time.Time) Summary {
	summary := Summary{
		Window:      w,
		GeneratedAt: now.UTC(),
		Products:    ProductPerformanceReport(products, txs, w, now),
		Daily:       SalesSeries(txs, w, now),
		Categories:  CategoryRevenueReport(products, txs, w, now),
		Services:    ServicePerformanceReport(incomes, w, now),
	}

	for _, p := range summary.Products {
		summary.Totals.RevenueCents += p.RevenueCents
		summary.Totals.ProfitCents += p.ProfitCents
	}
	for _, d := range summary.Daily {
		summary.Totals.SalesCount += d.Transactions
	}

	customers := make(map[string]struct{})
	for _, rec := range incomes {
		if rec.Type != domain.FinanceTypeIncome || !w.contains(rec.Date, now) {
			continue
		}
		if rec.CustomerName != "" {
			customers[rec.CustomerName] = struct{}{}
		}
	}
	summary.Totals.UniqueCustomers = len(customers)

	return summary
}
