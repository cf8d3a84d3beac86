package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"

	"tokopos/backend/internal/domain"
	"tokopos/backend/internal/store"
	"tokopos/backend/internal/xid"
)

const (
	productColumns     = "id, name, description, category, cost_cents, sell_cents, stock_qty, low_stock_threshold, last_restocked"
	transactionColumns = "id, product_id, product_name, qty, price_cents, type, date, user_id, user_name, sale_id, discount_cents, original_price_cents, parent_transaction_id"
	saleColumns        = "id, date, total_cents, user_id, user_name, payment_method, notes, discount_cents, original_total_cents"
	financeColumns     = "id, type, date, amount_cents, customer_name, service_id, service_name, payment_method, tip_cents, vendor, category"
)

type Store struct {
	db *sql.DB
}

func New(ctx context.Context, databaseURL string) (*Store, error) {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, err
	}

	db.SetMaxIdleConns(8)
	db.SetMaxOpenConns(30)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 6*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) ListProducts(ctx context.Context) ([]domain.Product, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+productColumns+`
		FROM products
		ORDER BY category, name
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	products := make([]domain.Product, 0, 128)
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		products = append(products, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return products, nil
}

func (s *Store) GetProduct(ctx context.Context, id string) (*domain.Product, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+productColumns+`
		FROM products
		WHERE id = $1
	`, id)
	p, err := scanProduct(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &p, nil
}

func (s *Store) CreateProduct(ctx context.Context, product domain.Product) (*domain.Product, error) {
	if product.Name == "" || product.SellCents < 0 || product.CostCents < 0 || product.StockQty < 0 {
		return nil, store.ErrInvalidInput
	}
	if product.ID == "" {
		product.ID = xid.New("prd")
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO products (id, name, description, category, cost_cents, sell_cents, stock_qty, low_stock_threshold, last_restocked, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,now(),now())
	`, product.ID, product.Name, nullIfEmpty(product.Description), product.Category,
		product.CostCents, product.SellCents, product.StockQty, product.LowStockThreshold,
		nullTime(product.LastRestocked))
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrInvalidInput
		}
		return nil, err
	}

	created := product
	return &created, nil
}

func (s *Store) UpdateProduct(ctx context.Context, product domain.Product) (*domain.Product, error) {
	if product.Name == "" || product.SellCents < 0 || product.CostCents < 0 || product.StockQty < 0 {
		return nil, store.ErrInvalidInput
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE products
		SET name = $2, description = $3, category = $4, cost_cents = $5, sell_cents = $6,
		    stock_qty = $7, low_stock_threshold = $8, last_restocked = $9, updated_at = now()
		WHERE id = $1
	`, product.ID, product.Name, nullIfEmpty(product.Description), product.Category,
		product.CostCents, product.SellCents, product.StockQty, product.LowStockThreshold,
		nullTime(product.LastRestocked))
	if err != nil {
		return nil, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if affected == 0 {
		return nil, store.ErrNotFound
	}

	updated := product
	return &updated, nil
}

func (s *Store) DeleteProduct(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM products WHERE id = $1`, id)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) SetProductStock(ctx context.Context, id string, qty int, lastRestocked *time.Time) error {
	if qty < 0 {
		return store.ErrInvalidInput
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE products
		SET stock_qty = $2, last_restocked = COALESCE($3, last_restocked), updated_at = now()
		WHERE id = $1
	`, id, qty, nullTime(lastRestocked))
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) ListServices(ctx context.Context, includeInactive bool) ([]domain.Service, error) {
	query := `
		SELECT id, name, description, price_cents, active
		FROM services
		WHERE active = true
		ORDER BY name
	`
	if includeInactive {
		query = `
			SELECT id, name, description, price_cents, active
			FROM services
			ORDER BY name
		`
	}

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	services := make([]domain.Service, 0, 32)
	for rows.Next() {
		svc, err := scanService(rows)
		if err != nil {
			return nil, err
		}
		services = append(services, svc)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return services, nil
}

func (s *Store) CreateService(ctx context.Context, svc domain.Service) (*domain.Service, error) {
	if svc.Name == "" || svc.PriceCents < 0 {
		return nil, store.ErrInvalidInput
	}
	if svc.ID == "" {
		svc.ID = xid.New("svc")
	}
	svc.Active = true

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO services (id, name, description, price_cents, active, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,now(),now())
	`, svc.ID, svc.Name, nullIfEmpty(svc.Description), svc.PriceCents, svc.Active)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrInvalidInput
		}
		return nil, err
	}

	created := svc
	return &created, nil
}

func (s *Store) UpdateService(ctx context.Context, svc domain.Service) (*domain.Service, error) {
	if svc.Name == "" || svc.PriceCents < 0 {
		return nil, store.ErrInvalidInput
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE services
		SET name = $2, description = $3, price_cents = $4, updated_at = now()
		WHERE id = $1
	`, svc.ID, svc.Name, nullIfEmpty(svc.Description), svc.PriceCents)
	if err != nil {
		return nil, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if affected == 0 {
		return nil, store.ErrNotFound
	}

	updated := svc
	return &updated, nil
}

func (s *Store) SetServiceActive(ctx context.Context, id string, active bool) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE services SET active = $2, updated_at = now() WHERE id = $1
	`, id, active)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) ListTransactions(ctx context.Context) ([]domain.Transaction, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+transactionColumns+`
		FROM transactions
		ORDER BY date DESC, id DESC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return collectTransactions(rows)
}

func (s *Store) ListTransactionsByParent(ctx context.Context, parentID string) ([]domain.Transaction, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+transactionColumns+`
		FROM transactions
		WHERE parent_transaction_id = $1
		ORDER BY date DESC, id DESC
	`, parentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return collectTransactions(rows)
}

func (s *Store) DeleteTransaction(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM transactions WHERE id = $1`, id)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

// GetSales reads sale headers through the get_sales() database function so
// the row shape stays owned by the schema migration that defines it.
func (s *Store) GetSales(ctx context.Context) ([]domain.Sale, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+saleColumns+` FROM get_sales()`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	sales := make([]domain.Sale, 0, 128)
	for rows.Next() {
		sale, err := scanSale(rows)
		if err != nil {
			return nil, err
		}
		sales = append(sales, sale)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return sales, nil
}

func (s *Store) InsertSale(ctx context.Context, sale domain.Sale) (*domain.Sale, error) {
	if sale.ID == "" {
		sale.ID = xid.New("sale")
	}
	if sale.Date.IsZero() {
		sale.Date = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `SELECT insert_sale($1,$2,$3,$4,$5,$6,$7,$8,$9)`,
		sale.ID, sale.Date, sale.TotalCents, nullIfEmpty(sale.UserID), nullIfEmpty(sale.UserName),
		nullIfEmpty(sale.PaymentMethod), nullIfEmpty(sale.Notes), sale.DiscountCents, sale.OriginalTotalCents)
	if err != nil {
		return nil, err
	}

	created := sale
	created.Items = nil
	return &created, nil
}

func (s *Store) DeleteSale(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM sales WHERE id = $1`, id)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) InsertTransactionWithSale(ctx context.Context, tx domain.Transaction) (*domain.Transaction, error) {
	if tx.ProductID == "" || tx.Qty < 0 {
		return nil, store.ErrInvalidInput
	}
	if tx.ID == "" {
		tx.ID = xid.New("txn")
	}
	if tx.Date.IsZero() {
		tx.Date = time.Now().UTC()
	}

	err := execInsertTransaction(ctx, s.db, tx)
	if err != nil {
		return nil, err
	}

	created := tx
	return &created, nil
}

// ApplyBulkSale commits the sale header, its line transactions and the stock
// decrements in one serializable transaction. Rows are locked before the
// stock check so a concurrent sale cannot oversell.
func (s *Store) ApplyBulkSale(ctx context.Context, write store.BulkSaleWrite) (*domain.Sale, error) {
	if len(write.Lines) == 0 {
		return nil, store.ErrInvalidInput
	}

	pgTx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer func() { _ = pgTx.Rollback() }()

	for productID, delta := range write.StockDeltas {
		var current int
		err := pgTx.QueryRowContext(ctx, `
			SELECT stock_qty FROM products WHERE id = $1 FOR UPDATE
		`, productID).Scan(&current)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil, store.ErrNotFound
			}
			return nil, err
		}
		if current-delta < 0 {
			return nil, store.ErrInsufficientStock
		}
		if _, err := pgTx.ExecContext(ctx, `
			UPDATE products SET stock_qty = stock_qty - $2, updated_at = now() WHERE id = $1
		`, productID, delta); err != nil {
			return nil, err
		}
	}

	sale := write.Sale
	if sale.ID == "" {
		sale.ID = xid.New("sale")
	}
	if sale.Date.IsZero() {
		sale.Date = time.Now().UTC()
	}
	_, err = pgTx.ExecContext(ctx, `SELECT insert_sale($1,$2,$3,$4,$5,$6,$7,$8,$9)`,
		sale.ID, sale.Date, sale.TotalCents, nullIfEmpty(sale.UserID), nullIfEmpty(sale.UserName),
		nullIfEmpty(sale.PaymentMethod), nullIfEmpty(sale.Notes), sale.DiscountCents, sale.OriginalTotalCents)
	if err != nil {
		return nil, err
	}

	for _, line := range write.Lines {
		if line.ID == "" {
			line.ID = xid.New("txn")
		}
		line.SaleID = sale.ID
		if line.Date.IsZero() {
			line.Date = sale.Date
		}
		if err := execInsertTransaction(ctx, pgTx, line); err != nil {
			return nil, err
		}
	}

	if err := pgTx.Commit(); err != nil {
		return nil, err
	}
	sale.Items = nil
	return &sale, nil
}

// ApplyMonthlyRestock writes the parent aggregate, its child lines and the
// absolute stock levels in one serializable transaction.
func (s *Store) ApplyMonthlyRestock(ctx context.Context, write store.MonthlyRestockWrite) (*domain.Transaction, error) {
	if len(write.Children) == 0 {
		return nil, store.ErrInvalidInput
	}

	pgTx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer func() { _ = pgTx.Rollback() }()

	parent := write.Parent
	if parent.ID == "" {
		parent.ID = xid.New("txn")
	}
	if parent.Date.IsZero() {
		parent.Date = time.Now().UTC()
	}
	if err := execInsertTransaction(ctx, pgTx, parent); err != nil {
		return nil, err
	}

	for _, child := range write.Children {
		if child.ID == "" {
			child.ID = xid.New("txn")
		}
		child.ParentTransactionID = parent.ID
		if child.Date.IsZero() {
			child.Date = parent.Date
		}
		if err := execInsertTransaction(ctx, pgTx, child); err != nil {
			return nil, err
		}
	}

	for productID, qty := range write.StockLevels {
		res, err := pgTx.ExecContext(ctx, `
			UPDATE products SET stock_qty = $2, last_restocked = $3, updated_at = now() WHERE id = $1
		`, productID, qty, write.LastRestocked)
		if err != nil {
			return nil, err
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return nil, err
		}
		if affected == 0 {
			return nil, store.ErrNotFound
		}
	}

	if err := pgTx.Commit(); err != nil {
		return nil, err
	}
	return &parent, nil
}

func (s *Store) ListFinanceRecords(ctx context.Context, recordType string) ([]domain.FinanceRecord, error) {
	query := `SELECT ` + financeColumns + ` FROM finance_records ORDER BY date DESC, id DESC`
	args := []any{}
	if recordType != "" {
		query = `SELECT ` + financeColumns + ` FROM finance_records WHERE type = $1 ORDER BY date DESC, id DESC`
		args = append(args, recordType)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	records := make([]domain.FinanceRecord, 0, 128)
	for rows.Next() {
		rec, err := scanFinanceRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return records, nil
}

func (s *Store) CreateFinanceRecord(ctx context.Context, record domain.FinanceRecord) (*domain.FinanceRecord, error) {
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

	category := record.Category
	if record.Bundle != nil {
		encoded, err := encodeBundle(record.Bundle)
		if err != nil {
			return nil, err
		}
		category = encoded
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO finance_records (id, type, date, amount_cents, customer_name, service_id, service_name, payment_method, tip_cents, vendor, category, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,now())
	`, record.ID, record.Type, record.Date, record.AmountCents,
		nullIfEmpty(record.CustomerName), nullIfEmpty(record.ServiceID), nullIfEmpty(record.ServiceName),
		nullIfEmpty(record.PaymentMethod), record.TipCents, nullIfEmpty(record.Vendor), nullIfEmpty(category))
	if err != nil {
		return nil, err
	}

	created := record
	return &created, nil
}

func (s *Store) CreateUser(ctx context.Context, user domain.UserAccount) error {
	if user.Username == "" {
		return store.ErrInvalidInput
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (username, password, role, active, created_at)
		VALUES ($1,$2,$3,$4,$5)
	`, user.Username, user.Password, user.Role, user.Active, user.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return store.ErrInvalidInput
		}
		return err
	}
	return nil
}

func (s *Store) ListUsers(ctx context.Context) ([]domain.UserAccount, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT username, password, role, active, created_at
		FROM users
		ORDER BY username
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	users := make([]domain.UserAccount, 0, 16)
	for rows.Next() {
		var u domain.UserAccount
		if err := rows.Scan(&u.Username, &u.Password, &u.Role, &u.Active, &u.CreatedAt); err != nil {
			return nil, err
		}
		u.CreatedAt = u.CreatedAt.UTC()
		users = append(users, u)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return users, nil
}

func (s *Store) UpdateUserPassword(ctx context.Context, username string, password string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE users SET password = $2 WHERE username = $1
	`, username, password)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

// execer is satisfied by *sql.DB and *sql.Tx so transaction inserts share one
// code path inside and outside an explicit database transaction.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func execInsertTransaction(ctx context.Context, db execer, tx domain.Transaction) error {
	_, err := db.ExecContext(ctx, `SELECT insert_transaction($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)`,
		tx.ID, tx.ProductID, tx.ProductName, tx.Qty, tx.PriceCents, tx.Type, tx.Date,
		nullIfEmpty(tx.UserID), nullIfEmpty(tx.UserName), nullIfEmpty(tx.SaleID),
		tx.DiscountCents, tx.OriginalPriceCents, nullIfEmpty(tx.ParentTransactionID))
	return err
}

func collectTransactions(rows *sql.Rows) ([]domain.Transaction, error) {
	txs := make([]domain.Transaction, 0, 256)
	for rows.Next() {
		tx, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		txs = append(txs, tx)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return txs, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}

func nullIfEmpty(val string) any {
	if val == "" {
		return nil
	}
	return val
}

func nullTime(val *time.Time) any {
	if val == nil {
		return nil
	}
	return *val
}
