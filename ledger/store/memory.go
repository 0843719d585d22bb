// Package store provides in-memory ledger.TxStore implementations.
package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/brickbook/sales-ledger/ledger"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

type Memory struct {
	mu          sync.RWMutex
	customers   map[ledger.CustomerID]ledger.Customer
	sales       map[ledger.SaleID]ledger.Sale
	entries     []ledger.Entry
	idempotency map[string]ledger.SaleID
}

func NewMemory() *Memory {
	return &Memory{
		customers:   make(map[ledger.CustomerID]ledger.Customer),
		sales:       make(map[ledger.SaleID]ledger.Sale),
		idempotency: make(map[string]ledger.SaleID),
	}
}

func (m *Memory) GetCustomer(_ context.Context, id ledger.CustomerID) (*ledger.Customer, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.getCustomerLocked(id)
}

func (m *Memory) getCustomerLocked(id ledger.CustomerID) (*ledger.Customer, error) {
	c, ok := m.customers[id]
	if !ok {
		return nil, ledger.ErrCustomerNotFound
	}
	return &c, nil
}

func (m *Memory) ListCustomers(_ context.Context) ([]ledger.Customer, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]ledger.Customer, 0, len(m.customers))
	for _, c := range m.customers {
		result = append(result, c)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Name < result[j].Name })
	return result, nil
}

func (m *Memory) CreateCustomer(_ context.Context, c ledger.Customer) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.customers[c.ID]; ok {
		return ledger.ErrDuplicateCustomer
	}
	now := time.Now().UTC()
	c.Balances = ledger.Balances{}
	c.CreatedAt, c.UpdatedAt = now, now
	m.customers[c.ID] = c
	return nil
}

func (m *Memory) UpdateCustomer(_ context.Context, c ledger.Customer) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	existing, ok := m.customers[c.ID]
	if !ok {
		return ledger.ErrCustomerNotFound
	}
	existing.Name = c.Name
	existing.Phone = c.Phone
	existing.Email = c.Email
	existing.Address = c.Address
	existing.UpdatedAt = time.Now().UTC()
	m.customers[c.ID] = existing
	return nil
}

// ForceBalances overwrites balances without journaling. It simulates a
// writer bypassing the engine and exists for tests only.
func (m *Memory) ForceBalances(id ledger.CustomerID, b ledger.Balances) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if c, ok := m.customers[id]; ok {
		c.Balances = b
		m.customers[id] = c
	}
}

func (m *Memory) GetSale(_ context.Context, id ledger.SaleID) (*ledger.Sale, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.getSaleLocked(id)
}

func (m *Memory) getSaleLocked(id ledger.SaleID) (*ledger.Sale, error) {
	s, ok := m.sales[id]
	if !ok {
		return nil, ledger.ErrSaleNotFound
	}
	s = copySale(s)
	return &s, nil
}

func (m *Memory) ListSales(_ context.Context, f ledger.SaleFilter) ([]ledger.Sale, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []ledger.Sale
	for _, s := range m.sales {
		if f.CustomerID != nil && (s.CustomerID == nil || *s.CustomerID != *f.CustomerID) {
			continue
		}
		if f.Status != "" && s.Status != f.Status {
			continue
		}
		result = append(result, copySale(s))
	}
	sort.Slice(result, func(i, j int) bool { return result[i].CreatedAt.After(result[j].CreatedAt) })
	if f.Limit > 0 && len(result) > f.Limit {
		result = result[:f.Limit]
	}
	return result, nil
}

func (m *Memory) CustomerEntries(_ context.Context, id ledger.CustomerID) ([]ledger.Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []ledger.Entry
	for _, e := range m.entries {
		if e.CustomerID == id {
			result = append(result, e)
		}
	}
	return result, nil
}

// =============================================================================
// TRANSACTIONS
// =============================================================================

// WithTx executes fn within a transaction.
// For memory store, this is simulated with a snapshot + rollback on error.
func (m *Memory) WithTx(ctx context.Context, fn func(ledger.Tx) error) (err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	snapshot := m.snapshot()
	defer func() {
		if r := recover(); r != nil {
			m.restore(snapshot)
			panic(r)
		}
		if err != nil {
			m.restore(snapshot)
		}
	}()

	return fn(&txView{parent: m})
}

type memorySnapshot struct {
	customers   map[ledger.CustomerID]ledger.Customer
	sales       map[ledger.SaleID]ledger.Sale
	entries     []ledger.Entry
	idempotency map[string]ledger.SaleID
}

func (m *Memory) snapshot() memorySnapshot {
	s := memorySnapshot{
		customers:   make(map[ledger.CustomerID]ledger.Customer, len(m.customers)),
		sales:       make(map[ledger.SaleID]ledger.Sale, len(m.sales)),
		entries:     append([]ledger.Entry(nil), m.entries...),
		idempotency: make(map[string]ledger.SaleID, len(m.idempotency)),
	}
	for k, v := range m.customers {
		s.customers[k] = v
	}
	for k, v := range m.sales {
		s.sales[k] = copySale(v)
	}
	for k, v := range m.idempotency {
		s.idempotency[k] = v
	}
	return s
}

func (m *Memory) restore(s memorySnapshot) {
	m.customers = s.customers
	m.sales = s.sales
	m.entries = s.entries
	m.idempotency = s.idempotency
}

// txView runs with the parent's write lock held.
type txView struct {
	parent *Memory
}

func (tv *txView) LockCustomer(_ context.Context, id ledger.CustomerID) (*ledger.Customer, error) {
	return tv.parent.getCustomerLocked(id)
}

func (tv *txView) WriteBalances(_ context.Context, id ledger.CustomerID, b ledger.Balances) error {
	c, ok := tv.parent.customers[id]
	if !ok {
		return ledger.ErrCustomerNotFound
	}
	c.Balances = b
	c.UpdatedAt = time.Now().UTC()
	tv.parent.customers[id] = c
	return nil
}

func (tv *txView) LockSale(_ context.Context, id ledger.SaleID) (*ledger.Sale, error) {
	return tv.parent.getSaleLocked(id)
}

func (tv *txView) IdempotencyKeyExists(_ context.Context, key string) (bool, error) {
	_, ok := tv.parent.idempotency[key]
	return ok, nil
}

func (tv *txView) InsertSale(_ context.Context, s *ledger.Sale) error {
	if s.IdempotencyKey != "" {
		if _, ok := tv.parent.idempotency[s.IdempotencyKey]; ok {
			return ledger.ErrDuplicateIdempotencyKey
		}
		tv.parent.idempotency[s.IdempotencyKey] = s.ID
	}
	tv.parent.sales[s.ID] = copySale(*s)
	return nil
}

func (tv *txView) UpdateSale(_ context.Context, s *ledger.Sale) error {
	existing, ok := tv.parent.sales[s.ID]
	if !ok {
		return ledger.ErrSaleNotFound
	}
	existing.PaidAmount = s.PaidAmount
	existing.BalanceDue = s.BalanceDue
	existing.PaymentStatus = s.PaymentStatus
	existing.Status = s.Status
	existing.Notes = s.Notes
	existing.UpdatedAt = s.UpdatedAt
	tv.parent.sales[s.ID] = existing
	return nil
}

func (tv *txView) DeleteSale(_ context.Context, id ledger.SaleID) error {
	s, ok := tv.parent.sales[id]
	if !ok {
		return ledger.ErrSaleNotFound
	}
	if s.IdempotencyKey != "" {
		delete(tv.parent.idempotency, s.IdempotencyKey)
	}
	delete(tv.parent.sales, id)
	return nil
}

func (tv *txView) AppendEntry(_ context.Context, e ledger.Entry) error {
	tv.parent.entries = append(tv.parent.entries, e)
	return nil
}

func (tv *txView) SaleEntries(_ context.Context, id ledger.SaleID) ([]ledger.Entry, error) {
	var result []ledger.Entry
	for _, e := range tv.parent.entries {
		if e.SaleID != nil && *e.SaleID == id {
			result = append(result, e)
		}
	}
	return result, nil
}

func copySale(s ledger.Sale) ledger.Sale {
	s.Items = append([]ledger.LineItem(nil), s.Items...)
	return s
}
