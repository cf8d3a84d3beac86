package postgres

import (
	"database/sql"
	"encoding/json"
	"strings"
	"time"

	"tokopos/backend/internal/domain"
)

// rowScanner is satisfied by both *sql.Row and *sql.Rows so the mappers below
// work for single-row and multi-row queries alike.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanProduct(row rowScanner) (domain.Product, error) {
	var (
		p             domain.Product
		description   sql.NullString
		lastRestocked sql.NullTime
	)
	err := row.Scan(
		&p.ID, &p.Name, &description, &p.Category,
		&p.CostCents, &p.SellCents, &p.StockQty, &p.LowStockThreshold,
		&lastRestocked,
	)
	if err != nil {
		return domain.Product{}, err
	}
	p.Description = description.String
	if lastRestocked.Valid {
		t := lastRestocked.Time.UTC()
		p.LastRestocked = &t
	}
	return p, nil
}

func scanService(row rowScanner) (domain.Service, error) {
	var (
		svc         domain.Service
		description sql.NullString
	)
	err := row.Scan(&svc.ID, &svc.Name, &description, &svc.PriceCents, &svc.Active)
	if err != nil {
		return domain.Service{}, err
	}
	svc.Description = description.String
	return svc, nil
}

func scanTransaction(row rowScanner) (domain.Transaction, error) {
	var (
		tx        domain.Transaction
		userID    sql.NullString
		userName  sql.NullString
		saleID    sql.NullString
		discount  sql.NullInt64
		origPrice sql.NullInt64
		parentID  sql.NullString
		date      time.Time
	)
	err := row.Scan(
		&tx.ID, &tx.ProductID, &tx.ProductName, &tx.Qty, &tx.PriceCents,
		&tx.Type, &date, &userID, &userName, &saleID,
		&discount, &origPrice, &parentID,
	)
	if err != nil {
		return domain.Transaction{}, err
	}
	tx.Date = date.UTC()
	tx.UserID = userID.String
	tx.UserName = userName.String
	tx.SaleID = saleID.String
	tx.DiscountCents = discount.Int64
	tx.OriginalPriceCents = origPrice.Int64
	tx.ParentTransactionID = parentID.String
	return tx, nil
}

func scanSale(row rowScanner) (domain.Sale, error) {
	var (
		sale          domain.Sale
		userID        sql.NullString
		userName      sql.NullString
		paymentMethod sql.NullString
		notes         sql.NullString
		discount      sql.NullInt64
		origTotal     sql.NullInt64
		date          time.Time
	)
	err := row.Scan(
		&sale.ID, &date, &sale.TotalCents, &userID, &userName,
		&paymentMethod, &notes, &discount, &origTotal,
	)
	if err != nil {
		return domain.Sale{}, err
	}
	sale.Date = date.UTC()
	sale.UserID = userID.String
	sale.UserName = userName.String
	sale.PaymentMethod = paymentMethod.String
	sale.Notes = notes.String
	sale.DiscountCents = discount.Int64
	sale.OriginalTotalCents = origTotal.Int64
	return sale, nil
}

func scanFinanceRecord(row rowScanner) (domain.FinanceRecord, error) {
	var (
		rec           domain.FinanceRecord
		customerName  sql.NullString
		serviceID     sql.NullString
		serviceName   sql.NullString
		paymentMethod sql.NullString
		tip           sql.NullInt64
		vendor        sql.NullString
		category      sql.NullString
		date          time.Time
	)
	err := row.Scan(
		&rec.ID, &rec.Type, &date, &rec.AmountCents, &customerName,
		&serviceID, &serviceName, &paymentMethod, &tip, &vendor, &category,
	)
	if err != nil {
		return domain.FinanceRecord{}, err
	}
	rec.Date = date.UTC()
	rec.CustomerName = customerName.String
	rec.ServiceID = serviceID.String
	rec.ServiceName = serviceName.String
	rec.PaymentMethod = paymentMethod.String
	rec.TipCents = tip.Int64
	rec.Vendor = vendor.String
	rec.Bundle, rec.Category = decodeBundle(category.String)
	return rec, nil
}

// decodeBundle interprets the category column, which holds either a plain
// category string or a JSON descriptor for a bundled-services income row.
// Malformed JSON falls back to the plain-category reading; the raw string is
// never surfaced to callers as an error.
func decodeBundle(raw string) (*domain.ServiceBundle, string) {
	trimmed := strings.TrimSpace(raw)
	if !strings.HasPrefix(trimmed, "{") {
		return nil, raw
	}
	var bundle domain.ServiceBundle
	if err := json.Unmarshal([]byte(trimmed), &bundle); err != nil {
		return nil, raw
	}
	if len(bundle.ServiceIDs) == 0 {
		return nil, raw
	}
	return &bundle, ""
}

// encodeBundle is the inverse of decodeBundle for writes.
func encodeBundle(bundle *domain.ServiceBundle) (string, error) {
	raw, err := json.Marshal(bundle)
	if err != nil {
		return "", err
	}
	return string(raw), nil
}
