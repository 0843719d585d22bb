package ledger

import (
	"context"

	"github.com/shopspring/decimal"
)

// =============================================================================
// BALANCE READER - Read-only views for dashboards and customer pages
// =============================================================================

// Reader exposes balances without any write access.
type Reader struct {
	Store Store
}

func NewReader(store Store) *Reader {
	return &Reader{Store: store}
}

func (r *Reader) CustomerBalance(ctx context.Context, id CustomerID) (Balances, error) {
	c, err := r.Store.GetCustomer(ctx, id)
	if err != nil {
		return Balances{}, storageErr("load customer", err)
	}
	return c.Balances, nil
}

// Entries returns the customer's journal, oldest first.
func (r *Reader) Entries(ctx context.Context, id CustomerID) ([]Entry, error) {
	if _, err := r.Store.GetCustomer(ctx, id); err != nil {
		return nil, storageErr("load customer", err)
	}
	entries, err := r.Store.CustomerEntries(ctx, id)
	return entries, storageErr("load entries", err)
}

// Reconciliation compares stored balances with a replay of the journal.
type Reconciliation struct {
	CustomerID CustomerID
	Stored     Balances
	Replayed   Balances
	Entries    int
	Consistent bool
}

// Reconcile replays the customer's journal from zero. Balances are only
// written through journaled mutations, so a mismatch means something wrote
// around the engine.
func (r *Reader) Reconcile(ctx context.Context, id CustomerID) (*Reconciliation, error) {
	c, err := r.Store.GetCustomer(ctx, id)
	if err != nil {
		return nil, storageErr("load customer", err)
	}
	entries, err := r.Store.CustomerEntries(ctx, id)
	if err != nil {
		return nil, storageErr("load entries", err)
	}
	replayed := SumEntries(entries)
	return &Reconciliation{
		CustomerID: id,
		Stored:     c.Balances,
		Replayed:   replayed,
		Entries:    len(entries),
		Consistent: replayed.Equal(c.Balances),
	}, nil
}

// Stats is the dashboard summary.
type Stats struct {
	Customers        int
	TotalWallet      decimal.Decimal
	TotalOutstanding decimal.Decimal
	TotalPurchases   decimal.Decimal
	ActiveSales      int
	CancelledSales   int
	Revenue          decimal.Decimal // sum of active sale totals
	Collected        decimal.Decimal // sum of active sale paid amounts
}

func (r *Reader) Stats(ctx context.Context) (*Stats, error) {
	customers, err := r.Store.ListCustomers(ctx)
	if err != nil {
		return nil, storageErr("list customers", err)
	}
	sales, err := r.Store.ListSales(ctx, SaleFilter{})
	if err != nil {
		return nil, storageErr("list sales", err)
	}

	st := &Stats{Customers: len(customers)}
	for _, c := range customers {
		st.TotalWallet = st.TotalWallet.Add(c.Balances.Wallet)
		st.TotalOutstanding = st.TotalOutstanding.Add(c.Balances.Outstanding)
		st.TotalPurchases = st.TotalPurchases.Add(c.Balances.TotalPurchases)
	}
	for _, s := range sales {
		if s.IsCancelled() {
			st.CancelledSales++
			continue
		}
		st.ActiveSales++
		st.Revenue = st.Revenue.Add(s.TotalAmount)
		st.Collected = st.Collected.Add(s.PaidAmount)
	}
	return st, nil
}
