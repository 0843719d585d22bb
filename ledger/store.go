/*
store.go - Persistence interfaces for sales, customers and the balance journal

PURPOSE:
  Defines the interface between the ledger engine and the database.
  Different implementations can use SQLite, PostgreSQL, or in-memory storage.

KEY INTERFACES:
  Store:   Read side (customers, sales, journal) plus customer profile writes
  TxStore: Store with scoped transactions
  Tx:      The only handle that can write sales and balances

BALANCE WRITE BOUNDARY:
  Balance columns are written only through Tx.WriteBalances, and a Tx only
  exists inside TxStore.WithTx. The engine is the only caller of WithTx that
  mutates balances. CreateCustomer/UpdateCustomer write profile fields only.

SCOPED TRANSACTIONS:
  WithTx(ctx, fn) begins a transaction, runs fn, commits if fn returns nil
  and rolls back on every other exit path (error, early return, panic).

IMPLEMENTATIONS:
  - store/sqldb: SQLite / PostgreSQL via sqlx
  - ledger/store: In-memory for testing

SEE ALSO:
  - engine.go: Uses TxStore
  - reader.go: Uses Store
*/
package ledger

import "context"

// =============================================================================
// STORE - Reads and customer profile writes
// =============================================================================

type SaleFilter struct {
	CustomerID *CustomerID
	Status     SaleStatus // empty matches all
	Limit      int        // zero means no limit
}

type Store interface {
	// GetCustomer returns ErrCustomerNotFound if absent.
	GetCustomer(ctx context.Context, id CustomerID) (*Customer, error)
	ListCustomers(ctx context.Context) ([]Customer, error)

	// CreateCustomer inserts a customer with zero balances.
	CreateCustomer(ctx context.Context, c Customer) error
	// UpdateCustomer updates profile fields only. Balances are ignored.
	UpdateCustomer(ctx context.Context, c Customer) error

	// GetSale returns the sale with its items, or ErrSaleNotFound.
	GetSale(ctx context.Context, id SaleID) (*Sale, error)
	ListSales(ctx context.Context, filter SaleFilter) ([]Sale, error)

	// CustomerEntries returns the journal for a customer, oldest first.
	CustomerEntries(ctx context.Context, id CustomerID) ([]Entry, error)
}

// =============================================================================
// TRANSACTIONAL STORE
// =============================================================================

type TxStore interface {
	Store

	// WithTx executes fn within a transaction.
	// If fn returns error, transaction is rolled back.
	// If fn returns nil, transaction is committed.
	WithTx(ctx context.Context, fn func(Tx) error) error
}

// Tx is the write handle scoped to one transaction.
type Tx interface {
	// LockCustomer reads a customer and holds its row for the rest of the
	// transaction where the store supports row locks.
	LockCustomer(ctx context.Context, id CustomerID) (*Customer, error)
	WriteBalances(ctx context.Context, id CustomerID, b Balances) error

	// LockSale reads a sale with its items and holds its row like
	// LockCustomer. Sale locks are always taken before the customer lock.
	LockSale(ctx context.Context, id SaleID) (*Sale, error)
	IdempotencyKeyExists(ctx context.Context, key string) (bool, error)
	InsertSale(ctx context.Context, s *Sale) error
	// UpdateSale persists paid/balance/status/notes fields of an existing sale.
	UpdateSale(ctx context.Context, s *Sale) error
	// DeleteSale removes the sale's items, then the sale.
	DeleteSale(ctx context.Context, id SaleID) error

	AppendEntry(ctx context.Context, e Entry) error
	SaleEntries(ctx context.Context, id SaleID) ([]Entry, error)
}
