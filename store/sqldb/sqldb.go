/*
Package sqldb provides a SQL-backed implementation of ledger.TxStore.

PURPOSE:
  Persists customers, sales, line items and the balance journal. One schema
  serves SQLite (mattn/go-sqlite3) and PostgreSQL (pgx stdlib); queries are
  written with '?' placeholders and rebound per driver by sqlx.

KEY TABLES:
  customers:       Profile plus the three stored balances
  sales:           Sale header, idempotency key is UNIQUE
  sale_items:      Line items, cascade-deleted with their sale
  balance_entries: Append-only journal of every balance mutation

MONEY AND TIME:
  Amounts are stored as decimal strings and timestamps as fixed-width
  RFC3339 text, so both drivers round-trip them exactly and sort them alike.

CONCURRENCY:
  SQLite is opened with a single connection: transactions serialize on it.
  PostgreSQL locks the customer row with SELECT ... FOR UPDATE.

USAGE:
  store, err := sqldb.New("sqlite3", "./data/ledger.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

  engine := ledger.NewEngine(store)

SEE ALSO:
  - ledger/store.go: Interface definitions
  - ledger/store/memory.go: In-memory implementation for testing
*/
package sqldb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"

	"github.com/brickbook/sales-ledger/ledger"
)

const (
	DriverSQLite   = "sqlite3"
	DriverPostgres = "pgx"
)

// Store implements ledger.TxStore on a SQL database.
type Store struct {
	db     *sqlx.DB
	driver string
}

// New opens the database and migrates the schema.
// Use driver "sqlite3" with ":memory:" for an in-memory database.
func New(driver, dsn string) (*Store, error) {
	switch driver {
	case DriverSQLite:
		if !strings.Contains(dsn, "?") {
			dsn += "?_foreign_keys=on&_journal_mode=WAL"
		}
	case DriverPostgres:
	default:
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}

	db, err := sqlx.Connect(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if driver == DriverSQLite {
		db.SetMaxOpenConns(1)
	}

	store := &Store{db: db, driver: driver}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return store, nil
}

// DB exposes the pool for tuning and health checks.
func (s *Store) DB() *sqlx.DB { return s.db }

func (s *Store) Driver() string { return s.driver }

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *Store) migrate() error {
	schema := []string{
		`CREATE TABLE IF NOT EXISTS customers (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			phone TEXT NOT NULL DEFAULT '',
			email TEXT NOT NULL DEFAULT '',
			address TEXT NOT NULL DEFAULT '',
			wallet TEXT NOT NULL DEFAULT '0',
			outstanding TEXT NOT NULL DEFAULT '0',
			total_purchases TEXT NOT NULL DEFAULT '0',
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS sales (
			id TEXT PRIMARY KEY,
			customer_id TEXT REFERENCES customers(id),
			customer_name TEXT NOT NULL DEFAULT '',
			total_amount TEXT NOT NULL,
			paid_amount TEXT NOT NULL,
			due_amount TEXT NOT NULL,
			balance_due TEXT NOT NULL,
			advance_paid TEXT NOT NULL,
			discount TEXT NOT NULL,
			payment_type TEXT NOT NULL,
			payment_status TEXT NOT NULL,
			delivery_status TEXT NOT NULL DEFAULT '',
			status TEXT NOT NULL,
			due_date TEXT,
			notes TEXT NOT NULL DEFAULT '',
			idempotency_key TEXT UNIQUE,
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_sales_customer ON sales(customer_id, created_at)`,
		`CREATE TABLE IF NOT EXISTS sale_items (
			id TEXT PRIMARY KEY,
			sale_id TEXT NOT NULL REFERENCES sales(id) ON DELETE CASCADE,
			position INTEGER NOT NULL,
			name TEXT NOT NULL,
			quantity TEXT NOT NULL,
			unit_price TEXT NOT NULL,
			amount TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_sale_items_sale ON sale_items(sale_id, position)`,
		// sale_id has no foreign key: journal rows outlive deleted sales.
		`CREATE TABLE IF NOT EXISTS balance_entries (
			id TEXT PRIMARY KEY,
			customer_id TEXT NOT NULL REFERENCES customers(id),
			seq INTEGER NOT NULL,
			sale_id TEXT,
			kind TEXT NOT NULL,
			wallet_delta TEXT NOT NULL,
			outstanding_delta TEXT NOT NULL,
			purchases_delta TEXT NOT NULL,
			note TEXT NOT NULL DEFAULT '',
			created_at TEXT NOT NULL,
			UNIQUE(customer_id, seq)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_balance_entries_sale ON balance_entries(sale_id) WHERE sale_id IS NOT NULL`,
	}
	for _, stmt := range schema {
		if _, err := s.db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

// =============================================================================
// CUSTOMERS
// =============================================================================

const customerColumns = `id, name, phone, email, address, wallet, outstanding, total_purchases, created_at, updated_at`

func (s *Store) GetCustomer(ctx context.Context, id ledger.CustomerID) (*ledger.Customer, error) {
	return getCustomer(ctx, s.db, id, false)
}

func getCustomer(ctx context.Context, q sqlx.ExtContext, id ledger.CustomerID, forUpdate bool) (*ledger.Customer, error) {
	query := `SELECT ` + customerColumns + ` FROM customers WHERE id = ?`
	if forUpdate {
		query += ` FOR UPDATE`
	}
	var row customerRow
	if err := sqlx.GetContext(ctx, q, &row, q.Rebind(query), string(id)); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ledger.ErrCustomerNotFound
		}
		return nil, fmt.Errorf("failed to load customer: %w", err)
	}
	c, err := row.toCustomer()
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (s *Store) ListCustomers(ctx context.Context) ([]ledger.Customer, error) {
	var rows []customerRow
	if err := sqlx.SelectContext(ctx, s.db, &rows, `SELECT `+customerColumns+` FROM customers ORDER BY name, id`); err != nil {
		return nil, fmt.Errorf("failed to list customers: %w", err)
	}
	result := make([]ledger.Customer, 0, len(rows))
	for _, r := range rows {
		c, err := r.toCustomer()
		if err != nil {
			return nil, err
		}
		result = append(result, c)
	}
	return result, nil
}

func (s *Store) CreateCustomer(ctx context.Context, c ledger.Customer) error {
	now := formatTime(time.Now().UTC())
	_, err := s.db.ExecContext(ctx, s.db.Rebind(`
		INSERT INTO customers (id, name, phone, email, address, wallet, outstanding, total_purchases, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, '0', '0', '0', ?, ?)
	`), string(c.ID), c.Name, c.Phone, c.Email, c.Address, now, now)
	if err != nil {
		if isUniqueConstraintError(err) {
			return ledger.ErrDuplicateCustomer
		}
		return fmt.Errorf("failed to create customer: %w", err)
	}
	return nil
}

// UpdateCustomer writes profile fields only. Balances change through the engine.
func (s *Store) UpdateCustomer(ctx context.Context, c ledger.Customer) error {
	res, err := s.db.ExecContext(ctx, s.db.Rebind(`
		UPDATE customers SET name = ?, phone = ?, email = ?, address = ?, updated_at = ?
		WHERE id = ?
	`), c.Name, c.Phone, c.Email, c.Address, formatTime(time.Now().UTC()), string(c.ID))
	if err != nil {
		return fmt.Errorf("failed to update customer: %w", err)
	}
	return requireRow(res, ledger.ErrCustomerNotFound)
}

// =============================================================================
// SALES
// =============================================================================

const saleColumns = `id, customer_id, customer_name, total_amount, paid_amount, due_amount, balance_due,
	advance_paid, discount, payment_type, payment_status, delivery_status, status, due_date, notes,
	idempotency_key, created_at, updated_at`

func (s *Store) GetSale(ctx context.Context, id ledger.SaleID) (*ledger.Sale, error) {
	return getSale(ctx, s.db, id, false)
}

func saleQuery(forUpdate bool) string {
	query := `SELECT ` + saleColumns + ` FROM sales WHERE id = ?`
	if forUpdate {
		query += ` FOR UPDATE`
	}
	return query
}

func getSale(ctx context.Context, q sqlx.ExtContext, id ledger.SaleID, forUpdate bool) (*ledger.Sale, error) {
	var row saleRow
	err := sqlx.GetContext(ctx, q, &row, q.Rebind(saleQuery(forUpdate)), string(id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ledger.ErrSaleNotFound
		}
		return nil, fmt.Errorf("failed to load sale: %w", err)
	}
	sale, err := row.toSale()
	if err != nil {
		return nil, err
	}
	if err := loadItems(ctx, q, []*ledger.Sale{sale}); err != nil {
		return nil, err
	}
	return sale, nil
}

func (s *Store) ListSales(ctx context.Context, f ledger.SaleFilter) ([]ledger.Sale, error) {
	query := `SELECT ` + saleColumns + ` FROM sales WHERE 1 = 1`
	var args []any
	if f.CustomerID != nil {
		query += ` AND customer_id = ?`
		args = append(args, string(*f.CustomerID))
	}
	if f.Status != "" {
		query += ` AND status = ?`
		args = append(args, string(f.Status))
	}
	query += ` ORDER BY created_at DESC, id`
	if f.Limit > 0 {
		query += fmt.Sprintf(` LIMIT %d`, f.Limit)
	}

	var rows []saleRow
	if err := sqlx.SelectContext(ctx, s.db, &rows, s.db.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("failed to list sales: %w", err)
	}
	sales := make([]*ledger.Sale, 0, len(rows))
	for _, r := range rows {
		sale, err := r.toSale()
		if err != nil {
			return nil, err
		}
		sales = append(sales, sale)
	}
	if err := loadItems(ctx, s.db, sales); err != nil {
		return nil, err
	}

	result := make([]ledger.Sale, len(sales))
	for i, sale := range sales {
		result[i] = *sale
	}
	return result, nil
}

// loadItems fills Items on each sale with a single IN query.
func loadItems(ctx context.Context, q sqlx.ExtContext, sales []*ledger.Sale) error {
	if len(sales) == 0 {
		return nil
	}
	ids := make([]string, len(sales))
	byID := make(map[string]*ledger.Sale, len(sales))
	for i, sale := range sales {
		ids[i] = string(sale.ID)
		byID[ids[i]] = sale
		sale.Items = []ledger.LineItem{}
	}

	query, args, err := sqlx.In(`
		SELECT id, sale_id, position, name, quantity, unit_price, amount
		FROM sale_items WHERE sale_id IN (?) ORDER BY sale_id, position
	`, ids)
	if err != nil {
		return fmt.Errorf("failed to build items query: %w", err)
	}
	var rows []itemRow
	if err := sqlx.SelectContext(ctx, q, &rows, q.Rebind(query), args...); err != nil {
		return fmt.Errorf("failed to load sale items: %w", err)
	}
	for _, r := range rows {
		if sale, ok := byID[r.SaleID]; ok {
			sale.Items = append(sale.Items, r.toItem())
		}
	}
	return nil
}

// =============================================================================
// JOURNAL
// =============================================================================

const entryColumns = `id, customer_id, seq, sale_id, kind, wallet_delta, outstanding_delta, purchases_delta, note, created_at`

func (s *Store) CustomerEntries(ctx context.Context, id ledger.CustomerID) ([]ledger.Entry, error) {
	return queryEntries(ctx, s.db, `SELECT `+entryColumns+` FROM balance_entries WHERE customer_id = ? ORDER BY seq`, string(id))
}

func queryEntries(ctx context.Context, q sqlx.ExtContext, query string, args ...any) ([]ledger.Entry, error) {
	var rows []entryRow
	if err := sqlx.SelectContext(ctx, q, &rows, q.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("failed to load entries: %w", err)
	}
	result := make([]ledger.Entry, 0, len(rows))
	for _, r := range rows {
		e, err := r.toEntry()
		if err != nil {
			return nil, err
		}
		result = append(result, e)
	}
	return result, nil
}

// =============================================================================
// TRANSACTIONAL STORE (ledger.TxStore interface)
// =============================================================================

// WithTx executes fn within a database transaction. The transaction commits
// only if fn returns nil.
func (s *Store) WithTx(ctx context.Context, fn func(ledger.Tx) error) error {
	sqlTx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	if err := fn(&txStore{tx: sqlTx, parent: s}); err != nil {
		return err
	}
	if err := sqlTx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// txStore routes every query through the open transaction.
type txStore struct {
	tx     *sqlx.Tx
	parent *Store
}

func (ts *txStore) LockCustomer(ctx context.Context, id ledger.CustomerID) (*ledger.Customer, error) {
	return getCustomer(ctx, ts.tx, id, ts.parent.driver == DriverPostgres)
}

func (ts *txStore) WriteBalances(ctx context.Context, id ledger.CustomerID, b ledger.Balances) error {
	res, err := ts.tx.ExecContext(ctx, ts.tx.Rebind(`
		UPDATE customers SET wallet = ?, outstanding = ?, total_purchases = ?, updated_at = ?
		WHERE id = ?
	`), b.Wallet.String(), b.Outstanding.String(), b.TotalPurchases.String(),
		formatTime(time.Now().UTC()), string(id))
	if err != nil {
		return fmt.Errorf("failed to write balances: %w", err)
	}
	return requireRow(res, ledger.ErrCustomerNotFound)
}

func (ts *txStore) LockSale(ctx context.Context, id ledger.SaleID) (*ledger.Sale, error) {
	return getSale(ctx, ts.tx, id, ts.parent.driver == DriverPostgres)
}

func (ts *txStore) IdempotencyKeyExists(ctx context.Context, key string) (bool, error) {
	var count int
	err := ts.tx.GetContext(ctx, &count, ts.tx.Rebind(`SELECT COUNT(*) FROM sales WHERE idempotency_key = ?`), key)
	if err != nil {
		return false, fmt.Errorf("failed to check idempotency key: %w", err)
	}
	return count > 0, nil
}

func (ts *txStore) InsertSale(ctx context.Context, sale *ledger.Sale) error {
	var customerID sql.NullString
	if sale.CustomerID != nil {
		customerID = nullString(string(*sale.CustomerID))
	}
	var dueDate sql.NullString
	if sale.DueDate != nil {
		dueDate = nullString(formatTime(*sale.DueDate))
	}

	_, err := ts.tx.ExecContext(ctx, ts.tx.Rebind(`
		INSERT INTO sales (`+saleColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`),
		string(sale.ID),
		customerID,
		sale.CustomerName,
		sale.TotalAmount.String(),
		sale.PaidAmount.String(),
		sale.DueAmount.String(),
		sale.BalanceDue.String(),
		sale.AdvancePaid.String(),
		sale.Discount.String(),
		sale.PaymentType.String(),
		string(sale.PaymentStatus),
		sale.DeliveryStatus,
		string(sale.Status),
		dueDate,
		sale.Notes,
		nullString(sale.IdempotencyKey),
		formatTime(sale.CreatedAt),
		formatTime(sale.UpdatedAt),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return ledger.ErrDuplicateIdempotencyKey
		}
		return fmt.Errorf("failed to insert sale: %w", err)
	}

	for i, item := range sale.Items {
		_, err := ts.tx.ExecContext(ctx, ts.tx.Rebind(`
			INSERT INTO sale_items (id, sale_id, position, name, quantity, unit_price, amount)
			VALUES (?, ?, ?, ?, ?, ?, ?)
		`), item.ID, string(sale.ID), i, item.Name,
			item.Quantity.String(), item.UnitPrice.String(), item.Amount.String())
		if err != nil {
			return fmt.Errorf("failed to insert sale item: %w", err)
		}
	}
	return nil
}

func (ts *txStore) UpdateSale(ctx context.Context, sale *ledger.Sale) error {
	res, err := ts.tx.ExecContext(ctx, ts.tx.Rebind(`
		UPDATE sales SET paid_amount = ?, balance_due = ?, payment_status = ?, status = ?, notes = ?, updated_at = ?
		WHERE id = ?
	`), sale.PaidAmount.String(), sale.BalanceDue.String(), string(sale.PaymentStatus),
		string(sale.Status), sale.Notes, formatTime(sale.UpdatedAt), string(sale.ID))
	if err != nil {
		return fmt.Errorf("failed to update sale: %w", err)
	}
	return requireRow(res, ledger.ErrSaleNotFound)
}

// DeleteSale removes items explicitly so it does not depend on the
// connection having foreign keys enabled.
func (ts *txStore) DeleteSale(ctx context.Context, id ledger.SaleID) error {
	if _, err := ts.tx.ExecContext(ctx, ts.tx.Rebind(`DELETE FROM sale_items WHERE sale_id = ?`), string(id)); err != nil {
		return fmt.Errorf("failed to delete sale items: %w", err)
	}
	res, err := ts.tx.ExecContext(ctx, ts.tx.Rebind(`DELETE FROM sales WHERE id = ?`), string(id))
	if err != nil {
		return fmt.Errorf("failed to delete sale: %w", err)
	}
	return requireRow(res, ledger.ErrSaleNotFound)
}

func (ts *txStore) AppendEntry(ctx context.Context, e ledger.Entry) error {
	var seq int64
	err := ts.tx.GetContext(ctx, &seq, ts.tx.Rebind(
		`SELECT COALESCE(MAX(seq), 0) + 1 FROM balance_entries WHERE customer_id = ?`), string(e.CustomerID))
	if err != nil {
		return fmt.Errorf("failed to allocate entry sequence: %w", err)
	}

	var saleID sql.NullString
	if e.SaleID != nil {
		saleID = nullString(string(*e.SaleID))
	}
	_, err = ts.tx.ExecContext(ctx, ts.tx.Rebind(`
		INSERT INTO balance_entries (`+entryColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`), string(e.ID), string(e.CustomerID), seq, saleID, string(e.Kind),
		e.Delta.Wallet.String(), e.Delta.Outstanding.String(), e.Delta.TotalPurchases.String(),
		e.Note, formatTime(e.CreatedAt))
	if err != nil {
		return fmt.Errorf("failed to append entry: %w", err)
	}
	return nil
}

func (ts *txStore) SaleEntries(ctx context.Context, id ledger.SaleID) ([]ledger.Entry, error) {
	return queryEntries(ctx, ts.tx, `SELECT `+entryColumns+` FROM balance_entries WHERE sale_id = ? ORDER BY seq`, string(id))
}

// =============================================================================
// HELPERS
// =============================================================================

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

// timeLayout is RFC3339 with fixed-width nanoseconds so text order is time order.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid timestamp %q: %w", s, err)
	}
	return t, nil
}

func requireRow(res sql.Result, notFound error) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if n == 0 {
		return notFound
	}
	return nil
}

func isUniqueConstraintError(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") ||
		strings.Contains(msg, "duplicate key") ||
		strings.Contains(msg, "SQLSTATE 23505")
}
