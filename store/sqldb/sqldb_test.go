package sqldb

import (
	"bytes"
	"context"
	"errors"
	"log"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brickbook/sales-ledger/ledger"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(DriverSQLite, ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func newTestEngine(t *testing.T, s *Store) *ledger.Engine {
	t.Helper()
	e := ledger.NewEngine(s)
	e.Logger = log.New(&bytes.Buffer{}, "", 0)
	return e
}

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func cid(s string) *ledger.CustomerID {
	id := ledger.CustomerID(s)
	return &id
}

func TestNew_RejectsUnknownDriver(t *testing.T) {
	_, err := New("oracle", "whatever")
	assert.Error(t, err)
}

func TestCustomers(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	// GIVEN: Two customers
	require.NoError(t, s.CreateCustomer(ctx, ledger.Customer{ID: "c2", Name: "Zoya", Phone: "98100"}))
	require.NoError(t, s.CreateCustomer(ctx, ledger.Customer{ID: "c1", Name: "Arjun"}))

	// THEN: IDs are unique
	err := s.CreateCustomer(ctx, ledger.Customer{ID: "c1", Name: "Again"})
	assert.ErrorIs(t, err, ledger.ErrDuplicateCustomer)

	c, err := s.GetCustomer(ctx, "c2")
	require.NoError(t, err)
	assert.Equal(t, "Zoya", c.Name)
	assert.Equal(t, "98100", c.Phone)
	assert.True(t, c.Balances.IsZero())
	assert.False(t, c.CreatedAt.IsZero())

	list, err := s.ListCustomers(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "Arjun", list[0].Name)

	// WHEN: A profile update carries a different wallet
	// THEN: Only the profile is written
	c.Name = "Zoya Khan"
	c.Balances.Wallet = d("1000")
	require.NoError(t, s.UpdateCustomer(ctx, *c))
	c, err = s.GetCustomer(ctx, "c2")
	require.NoError(t, err)
	assert.Equal(t, "Zoya Khan", c.Name)
	assert.True(t, c.Balances.Wallet.IsZero(), "profile update must not write balances")

	_, err = s.GetCustomer(ctx, "missing")
	assert.ErrorIs(t, err, ledger.ErrCustomerNotFound)
	assert.ErrorIs(t, s.UpdateCustomer(ctx, ledger.Customer{ID: "missing"}), ledger.ErrCustomerNotFound)
}

func TestSales_RoundTrip(t *testing.T) {
	s := newTestStore(t)
	e := newTestEngine(t, s)
	ctx := context.Background()
	require.NoError(t, s.CreateCustomer(ctx, ledger.Customer{ID: "c1", Name: "Arjun"}))
	_, err := e.Deposit(ctx, "c1", d("400"), "advance")
	require.NoError(t, err)

	// GIVEN: An Advance + Cash sale with items, due date and idempotency key
	due := time.Date(2026, 11, 1, 0, 0, 0, 0, time.UTC)
	sale, err := e.CreateSale(ctx, ledger.NewSale{
		CustomerID: cid("c1"),
		Items: []ledger.NewLineItem{
			{Name: "Red brick", Quantity: d("1000"), UnitPrice: d("0.45")},
			{Name: "Delivery", Quantity: d("1"), UnitPrice: d("50")},
		},
		PaidAmount:     d("300"),
		AdvancePaid:    d("200"),
		PaymentType:    ledger.PaymentAdvanceCash,
		DueDate:        &due,
		Notes:          "site 4",
		IdempotencyKey: "key-1",
	})
	require.NoError(t, err)

	// WHEN: Read back
	got, err := s.GetSale(ctx, sale.ID)
	require.NoError(t, err)

	// THEN: Every field survives the TEXT columns
	assert.Equal(t, sale.ID, got.ID)
	require.NotNil(t, got.CustomerID)
	assert.Equal(t, ledger.CustomerID("c1"), *got.CustomerID)
	assert.Equal(t, "Arjun", got.CustomerName)
	assert.True(t, d("500").Equal(got.TotalAmount))
	assert.True(t, d("200").Equal(got.DueAmount))
	assert.True(t, d("200").Equal(got.AdvancePaid))
	assert.Equal(t, ledger.PaymentAdvanceCash, got.PaymentType)
	assert.Equal(t, ledger.PaymentPartial, got.PaymentStatus)
	assert.Equal(t, "key-1", got.IdempotencyKey)
	require.NotNil(t, got.DueDate)
	assert.True(t, due.Equal(*got.DueDate))
	assert.True(t, sale.CreatedAt.Equal(got.CreatedAt))
	require.Len(t, got.Items, 2)
	assert.Equal(t, "Red brick", got.Items[0].Name)
	assert.True(t, d("450").Equal(got.Items[0].Amount))

	c, err := s.GetCustomer(ctx, "c1")
	require.NoError(t, err)
	assert.True(t, d("200").Equal(c.Balances.Wallet))
	assert.True(t, d("200").Equal(c.Balances.Outstanding))
	assert.True(t, d("500").Equal(c.Balances.TotalPurchases))
}

func TestDeleteSale_RemovesItemsAndRestoresBalances(t *testing.T) {
	s := newTestStore(t)
	e := newTestEngine(t, s)
	ctx := context.Background()
	require.NoError(t, s.CreateCustomer(ctx, ledger.Customer{ID: "c1", Name: "Arjun"}))
	_, err := e.Deposit(ctx, "c1", d("600"), "")
	require.NoError(t, err)

	// GIVEN: A Full Advance sale drawing 500 of the 600 wallet
	sale, err := e.CreateSale(ctx, ledger.NewSale{
		CustomerID:  cid("c1"),
		Items:       []ledger.NewLineItem{{Name: "Cement", Quantity: d("10"), UnitPrice: d("50")}},
		PaymentType: ledger.PaymentFullAdvance,
	})
	require.NoError(t, err)

	// WHEN: Deleted
	_, err = e.DeleteSale(ctx, sale.ID)
	require.NoError(t, err)

	// THEN: Row and items gone, wallet restored, journal still balances

	_, err = s.GetSale(ctx, sale.ID)
	assert.ErrorIs(t, err, ledger.ErrSaleNotFound)

	var items int
	require.NoError(t, s.db.Get(&items, `SELECT COUNT(*) FROM sale_items WHERE sale_id = ?`, string(sale.ID)))
	assert.Zero(t, items)

	c, err := s.GetCustomer(ctx, "c1")
	require.NoError(t, err)
	assert.True(t, d("600").Equal(c.Balances.Wallet))
	assert.True(t, c.Balances.TotalPurchases.IsZero())

	rec, err := ledger.NewReader(s).Reconcile(ctx, "c1")
	require.NoError(t, err)
	assert.True(t, rec.Consistent)
	assert.Equal(t, 3, rec.Entries)
}

func TestListSales_Filters(t *testing.T) {
	s := newTestStore(t)
	e := newTestEngine(t, s)
	ctx := context.Background()
	require.NoError(t, s.CreateCustomer(ctx, ledger.Customer{ID: "c1", Name: "Arjun"}))
	require.NoError(t, s.CreateCustomer(ctx, ledger.Customer{ID: "c2", Name: "Bela"}))

	// GIVEN: Three credit sales, one walk-in, one of them cancelled
	var ids []ledger.SaleID
	for _, c := range []string{"c1", "c1", "c2"} {
		sale, err := e.CreateSale(ctx, ledger.NewSale{
			CustomerID:  cid(c),
			Items:       []ledger.NewLineItem{{Name: "Brick", Quantity: d("100"), UnitPrice: d("1")}},
			PaymentType: ledger.PaymentCredit,
		})
		require.NoError(t, err)
		ids = append(ids, sale.ID)
	}
	_, err := e.CreateSale(ctx, ledger.NewSale{
		Items:       []ledger.NewLineItem{{Name: "Brick", Quantity: d("10"), UnitPrice: d("1")}},
		PaidAmount:  d("10"),
		PaymentType: ledger.PaymentCash,
	})
	require.NoError(t, err)
	_, _, err = e.CancelSale(ctx, ids[0], "wrong site")
	require.NoError(t, err)

	// THEN: Each filter narrows the list
	all, err := s.ListSales(ctx, ledger.SaleFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 4)
	for _, sale := range all {
		assert.Len(t, sale.Items, 1)
	}

	mine, err := s.ListSales(ctx, ledger.SaleFilter{CustomerID: cid("c1")})
	require.NoError(t, err)
	assert.Len(t, mine, 2)

	active, err := s.ListSales(ctx, ledger.SaleFilter{CustomerID: cid("c1"), Status: ledger.SaleActive})
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, ids[1], active[0].ID)

	limited, err := s.ListSales(ctx, ledger.SaleFilter{Limit: 2})
	require.NoError(t, err)
	assert.Len(t, limited, 2)
}

func TestWithTx_RollsBackOnError(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.CreateCustomer(ctx, ledger.Customer{ID: "c1", Name: "Arjun"}))

	// GIVEN: A transaction that writes balances and a journal entry
	// WHEN: fn returns an error
	boom := errors.New("boom")
	err := s.WithTx(ctx, func(tx ledger.Tx) error {
		require.NoError(t, tx.WriteBalances(ctx, "c1", ledger.Balances{Wallet: d("999")}))
		require.NoError(t, tx.AppendEntry(ctx, ledger.Entry{
			ID: "e1", CustomerID: "c1", Kind: ledger.EntryDeposit,
			Delta: ledger.Balances{Wallet: d("999")}, CreatedAt: time.Now(),
		}))
		return boom
	})
	assert.ErrorIs(t, err, boom)

	// THEN: Neither write is visible
	c, err := s.GetCustomer(ctx, "c1")
	require.NoError(t, err)
	assert.True(t, c.Balances.Wallet.IsZero())

	entries, err := s.CustomerEntries(ctx, "c1")
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestInsertSale_DuplicateIdempotencyKey(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	insert := func(id string) error {
		return s.WithTx(ctx, func(tx ledger.Tx) error {
			now := time.Now()
			return tx.InsertSale(ctx, &ledger.Sale{
				ID: ledger.SaleID(id), TotalAmount: d("10"), PaidAmount: d("10"),
				PaymentType: ledger.PaymentCash, PaymentStatus: ledger.PaymentPaid,
				Status: ledger.SaleActive, IdempotencyKey: "same", CreatedAt: now, UpdatedAt: now,
			})
		})
	}
	// GIVEN: A sale with key "same"
	// WHEN: A second sale reuses the key
	// THEN: Rejected as a duplicate
	require.NoError(t, insert("s1"))
	assert.ErrorIs(t, insert("s2"), ledger.ErrDuplicateIdempotencyKey)

	err := s.WithTx(ctx, func(tx ledger.Tx) error {
		exists, err := tx.IdempotencyKeyExists(ctx, "same")
		require.NoError(t, err)
		assert.True(t, exists)
		return nil
	})
	require.NoError(t, err)
}

func TestEntries_OrderedPerCustomer(t *testing.T) {
	s := newTestStore(t)
	e := newTestEngine(t, s)
	ctx := context.Background()
	require.NoError(t, s.CreateCustomer(ctx, ledger.Customer{ID: "c1", Name: "Arjun"}))

	// GIVEN: Three deposits in order
	for _, amt := range []string{"10", "20", "30"} {
		_, err := e.Deposit(ctx, "c1", d(amt), "deposit "+amt)
		require.NoError(t, err)
	}
	// THEN: The journal returns them in sequence
	entries, err := s.CustomerEntries(ctx, "c1")
	require.NoError(t, err)
	require.Len(t, entries, 3)
	assert.Equal(t, "deposit 10", entries[0].Note)
	assert.Equal(t, "deposit 30", entries[2].Note)
	assert.Nil(t, entries[0].SaleID)
	assert.Equal(t, ledger.EntryDeposit, entries[1].Kind)
}

func TestLockSale(t *testing.T) {
	s := newTestStore(t)
	e := newTestEngine(t, s)
	ctx := context.Background()
	require.NoError(t, s.CreateCustomer(ctx, ledger.Customer{ID: "c1", Name: "Arjun"}))

	// GIVEN: A credit sale with one item
	sale, err := e.CreateSale(ctx, ledger.NewSale{
		CustomerID:  cid("c1"),
		Items:       []ledger.NewLineItem{{Name: "Brick", Quantity: d("100"), UnitPrice: d("1")}},
		PaymentType: ledger.PaymentCredit,
	})
	require.NoError(t, err)

	// WHEN: Read through the transaction handle
	err = s.WithTx(ctx, func(tx ledger.Tx) error {
		got, err := tx.LockSale(ctx, sale.ID)
		require.NoError(t, err)
		assert.Equal(t, ledger.SaleActive, got.Status)
		assert.Len(t, got.Items, 1)

		_, err = tx.LockSale(ctx, "missing")
		assert.ErrorIs(t, err, ledger.ErrSaleNotFound)
		return nil
	})
	require.NoError(t, err)

	// THEN: Postgres holds the row, SQLite serializes on its single connection
	assert.Contains(t, saleQuery(true), "FOR UPDATE")
	assert.NotContains(t, saleQuery(false), "FOR UPDATE")
	assert.Equal(t, 1, s.db.Stats().MaxOpenConnections)
}
