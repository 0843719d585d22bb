/*
engine.go - Sales ledger engine: apply, reverse, payment updates

PURPOSE:
  The single code path that mutates customer balances. Every operation runs
  inside one scoped store transaction: sale rows, line items, balances and
  journal entries commit together or not at all.

OPERATIONS:
  CreateSale:    Apply a sale (delta table in payment.go)
  DeleteSale:    Reverse a sale's full effect, then delete sale + items
  CancelSale:    Reverse a sale's full effect, keep the row as cancelled
  RecordPayment: Record a later payment against a sale
  Deposit:       Add prepaid credit to a wallet
  SettleDues:    Customer pays down outstanding dues

REVERSAL RULE:
  Each mutation is journaled with a reference to its sale. Reversal applies
  the negated net of the sale's entries. Without payment updates this is
  exactly the negated delta-table row; with them it still restores the
  customer to where the sale found them.

WALLET INVARIANT:
  Wallet draws are checked against the locked customer row before anything
  is written (InsufficientBalanceError). If a wallet is still found negative
  after a mutation, it is clamped to zero, logged as an anomaly and the
  clamp is journaled so reconciliation stays exact.

SEE ALSO:
  - payment.go: Delta table
  - validate.go: Input validation and sale normalization
  - store.go: Tx write boundary
*/
package ledger

import (
	"context"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Engine applies sales and payments to customer balances.
type Engine struct {
	Store  TxStore
	Logger *log.Logger
	Now    func() time.Time
	NewID  func() string

	// OnClamp, if set, is called for every wallet clamped back to zero.
	OnClamp func(id CustomerID, wallet decimal.Decimal)
}

func NewEngine(store TxStore) *Engine {
	return &Engine{
		Store:  store,
		Logger: log.Default(),
		Now:    func() time.Time { return time.Now().UTC() },
		NewID:  uuid.NewString,
	}
}

// Reversal describes the balance effect undone by DeleteSale or CancelSale.
type Reversal struct {
	SaleID     SaleID
	CustomerID *CustomerID
	Delta      Balances
	Balances   Balances // customer balances after the reversal
}

// =============================================================================
// APPLY
// =============================================================================

// CreateSale validates in, persists the sale with its items and applies the
// payment type's balance delta to the customer, atomically.
func (e *Engine) CreateSale(ctx context.Context, in NewSale) (*Sale, error) {
	sale, err := buildSale(in)
	if err != nil {
		return nil, err
	}

	now := e.Now()
	sale.ID = SaleID(e.NewID())
	sale.CreatedAt, sale.UpdatedAt = now, now
	for i := range sale.Items {
		sale.Items[i].ID = e.NewID()
	}

	err = e.Store.WithTx(ctx, func(tx Tx) error {
		if sale.IdempotencyKey != "" {
			exists, err := tx.IdempotencyKeyExists(ctx, sale.IdempotencyKey)
			if err != nil {
				return storageErr("check idempotency key", err)
			}
			if exists {
				return ErrDuplicateIdempotencyKey
			}
		}

		var cust *Customer
		if !sale.IsWalkIn() {
			cust, err = tx.LockCustomer(ctx, *sale.CustomerID)
			if err != nil {
				return storageErr("load customer", err)
			}
			if draw := WalletDraw(sale); draw.GreaterThan(cust.Balances.Wallet) {
				return &InsufficientBalanceError{
					CustomerID: cust.ID,
					Required:   draw,
					Available:  cust.Balances.Wallet,
				}
			}
			if sale.CustomerName == "" {
				sale.CustomerName = cust.Name
			}
		}

		if err := tx.InsertSale(ctx, sale); err != nil {
			return storageErr("insert sale", err)
		}
		if cust == nil {
			return nil
		}
		_, err := e.applyDelta(ctx, tx, cust, SaleDelta(sale), EntrySale, &sale.ID,
			sale.PaymentType.String()+" sale")
		return err
	})
	if err != nil {
		return nil, err
	}
	return sale, nil
}

// =============================================================================
// REVERSE
// =============================================================================

// DeleteSale reverses the sale's balance effect and removes the sale and its
// line items. Walk-in sales are only deleted.
func (e *Engine) DeleteSale(ctx context.Context, id SaleID) (*Reversal, error) {
	var rev *Reversal
	err := e.Store.WithTx(ctx, func(tx Tx) error {
		sale, err := tx.LockSale(ctx, id)
		if err != nil {
			return storageErr("load sale", err)
		}
		rev, err = e.reverse(ctx, tx, sale, "sale deleted")
		if err != nil {
			return err
		}
		return storageErr("delete sale", tx.DeleteSale(ctx, id))
	})
	if err != nil {
		return nil, err
	}
	return rev, nil
}

// CancelSale reverses the sale's balance effect like DeleteSale but keeps
// the row, marked cancelled.
func (e *Engine) CancelSale(ctx context.Context, id SaleID, reason string) (*Sale, *Reversal, error) {
	var (
		sale *Sale
		rev  *Reversal
	)
	err := e.Store.WithTx(ctx, func(tx Tx) error {
		var err error
		sale, err = tx.LockSale(ctx, id)
		if err != nil {
			return storageErr("load sale", err)
		}
		note := "sale cancelled"
		if reason != "" {
			note += ": " + reason
		}
		rev, err = e.reverse(ctx, tx, sale, note)
		if err != nil {
			return err
		}
		sale.Status = SaleCancelled
		sale.UpdatedAt = e.Now()
		if reason != "" {
			sale.Notes = appendNote(sale.Notes, "Cancelled: "+reason)
		}
		return storageErr("update sale", tx.UpdateSale(ctx, sale))
	})
	if err != nil {
		return nil, nil, err
	}
	return sale, rev, nil
}

func (e *Engine) reverse(ctx context.Context, tx Tx, sale *Sale, note string) (*Reversal, error) {
	if sale.IsCancelled() {
		return nil, ErrAlreadyCancelled
	}
	rev := &Reversal{SaleID: sale.ID, CustomerID: sale.CustomerID}
	if sale.IsWalkIn() {
		return rev, nil
	}

	entries, err := tx.SaleEntries(ctx, sale.ID)
	if err != nil {
		return nil, storageErr("load sale entries", err)
	}
	cust, err := tx.LockCustomer(ctx, *sale.CustomerID)
	if err != nil {
		return nil, storageErr("load customer", err)
	}
	rev.Delta = SumEntries(entries).Neg()
	rev.Balances, err = e.applyDelta(ctx, tx, cust, rev.Delta, EntryReversal, &sale.ID, note)
	if err != nil {
		return nil, err
	}
	return rev, nil
}

// =============================================================================
// PAYMENT UPDATE
// =============================================================================

// RecordPayment sets a new paid amount on a sale. The wallet is never
// touched here. For payment types that carry dues, the customer's
// outstanding balance follows the sale's new balance due.
func (e *Engine) RecordPayment(ctx context.Context, id SaleID, upd PaymentUpdate) (*Sale, error) {
	if err := validateStruct(upd); err != nil {
		return nil, err
	}

	var sale *Sale
	err := e.Store.WithTx(ctx, func(tx Tx) error {
		var err error
		sale, err = tx.LockSale(ctx, id)
		if err != nil {
			return storageErr("load sale", err)
		}
		if sale.IsCancelled() {
			return ErrAlreadyCancelled
		}
		if upd.PaidAmount.GreaterThan(sale.TotalAmount) {
			return invalid("paidAmount", "must not exceed totalAmount "+sale.TotalAmount.StringFixed(2))
		}
		if upd.PaidAmount.LessThan(sale.AdvancePaid) {
			return invalid("paidAmount", "must not be below advancePaid "+sale.AdvancePaid.StringFixed(2))
		}
		if !sale.PaymentType.CarriesDues() && !upd.PaidAmount.Equal(sale.TotalAmount) {
			return invalid("paidAmount", "must equal totalAmount "+sale.TotalAmount.StringFixed(2)+" for "+sale.PaymentType.String())
		}

		diff := upd.PaidAmount.Sub(sale.PaidAmount)
		sale.PaidAmount = upd.PaidAmount
		sale.BalanceDue = sale.TotalAmount.Sub(upd.PaidAmount)
		sale.PaymentStatus = DerivePaymentStatus(sale.TotalAmount, sale.PaidAmount)
		if upd.PaymentStatus != nil {
			sale.PaymentStatus = *upd.PaymentStatus
		}
		if upd.Notes != nil {
			sale.Notes = *upd.Notes
		}
		sale.UpdatedAt = e.Now()
		if err := tx.UpdateSale(ctx, sale); err != nil {
			return storageErr("update sale", err)
		}

		if sale.IsWalkIn() || !sale.PaymentType.CarriesDues() || diff.IsZero() {
			return nil
		}
		entries, err := tx.SaleEntries(ctx, sale.ID)
		if err != nil {
			return storageErr("load sale entries", err)
		}
		booked := SumEntries(entries).Outstanding
		delta := Balances{Outstanding: sale.BalanceDue.Sub(booked)}
		if delta.IsZero() {
			return nil
		}
		cust, err := tx.LockCustomer(ctx, *sale.CustomerID)
		if err != nil {
			return storageErr("load customer", err)
		}
		// Dues already paid down through SettleDues cannot be paid again here.
		if cust.Balances.Outstanding.Add(delta.Outstanding).IsNegative() {
			return invalid("paidAmount", "payment of "+diff.StringFixed(2)+
				" exceeds the customer's outstanding balance "+cust.Balances.Outstanding.StringFixed(2))
		}
		_, err = e.applyDelta(ctx, tx, cust, delta, EntryPayment, &sale.ID,
			"payment of "+diff.StringFixed(2))
		return err
	})
	if err != nil {
		return nil, err
	}
	return sale, nil
}

// =============================================================================
// WALLET AND DUES
// =============================================================================

// Deposit adds prepaid credit to a customer's wallet.
func (e *Engine) Deposit(ctx context.Context, id CustomerID, amount decimal.Decimal, note string) (Balances, error) {
	if err := validateAmount("amount", amount); err != nil {
		return Balances{}, err
	}
	return e.mutateCustomer(ctx, id, func(c *Customer) (Balances, error) {
		return Balances{Wallet: amount}, nil
	}, EntryDeposit, note)
}

// SettleDues records a customer paying down outstanding dues.
func (e *Engine) SettleDues(ctx context.Context, id CustomerID, amount decimal.Decimal, note string) (Balances, error) {
	if err := validateAmount("amount", amount); err != nil {
		return Balances{}, err
	}
	return e.mutateCustomer(ctx, id, func(c *Customer) (Balances, error) {
		if amount.GreaterThan(c.Balances.Outstanding) {
			return Balances{}, invalid("amount", "must not exceed outstanding balance "+c.Balances.Outstanding.StringFixed(2))
		}
		return Balances{Outstanding: amount.Neg()}, nil
	}, EntrySettlement, note)
}

func (e *Engine) mutateCustomer(ctx context.Context, id CustomerID, delta func(*Customer) (Balances, error), kind EntryKind, note string) (Balances, error) {
	var after Balances
	err := e.Store.WithTx(ctx, func(tx Tx) error {
		cust, err := tx.LockCustomer(ctx, id)
		if err != nil {
			return storageErr("load customer", err)
		}
		d, err := delta(cust)
		if err != nil {
			return err
		}
		after, err = e.applyDelta(ctx, tx, cust, d, kind, nil, note)
		return err
	})
	return after, err
}

// =============================================================================
// BALANCE MUTATION - The only place balances are written
// =============================================================================

func (e *Engine) applyDelta(ctx context.Context, tx Tx, cust *Customer, delta Balances, kind EntryKind, saleID *SaleID, note string) (Balances, error) {
	now := e.Now()
	next := cust.Balances.Add(delta)

	if err := tx.AppendEntry(ctx, Entry{
		ID:         EntryID(e.NewID()),
		CustomerID: cust.ID,
		SaleID:     saleID,
		Kind:       kind,
		Delta:      delta,
		Note:       note,
		CreatedAt:  now,
	}); err != nil {
		return Balances{}, storageErr("append entry", err)
	}

	if next.Wallet.IsNegative() {
		e.Logger.Printf("[Ledger] ANOMALY: wallet of customer %s reached %s after %s entry; clamping to 0",
			cust.ID, next.Wallet.StringFixed(2), kind)
		if e.OnClamp != nil {
			e.OnClamp(cust.ID, next.Wallet)
		}
		clamp := Balances{Wallet: next.Wallet.Neg()}
		next.Wallet = decimal.Zero
		if err := tx.AppendEntry(ctx, Entry{
			ID:         EntryID(e.NewID()),
			CustomerID: cust.ID,
			SaleID:     saleID,
			Kind:       EntryClamp,
			Delta:      clamp,
			Note:       "wallet clamped to zero",
			CreatedAt:  now,
		}); err != nil {
			return Balances{}, storageErr("append entry", err)
		}
	}

	if err := tx.WriteBalances(ctx, cust.ID, next); err != nil {
		return Balances{}, storageErr("write balances", err)
	}
	cust.Balances = next
	return next, nil
}

func appendNote(notes, line string) string {
	if notes == "" {
		return line
	}
	return notes + "\n" + line
}
