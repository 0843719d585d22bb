/*
Package ledger provides the sales ledger engine for BrickBook.

PURPOSE:
  Applies and reverses the balance effects of sales on customer accounts.
  A customer account carries three balances that only this package may
  mutate: the prepaid wallet, outstanding dues, and cumulative purchases.

KEY CONCEPTS IN THIS FILE (types.go):
  - Balances: The three account balances, also used as a delta
  - Customer: Account holder with profile and balances
  - Sale / LineItem: A persisted sale and its owned line items
  - Entry: Append-only journal record of one balance mutation

DESIGN PRINCIPLES:
  1. Precision: All money uses decimal.Decimal, never float64
  2. Type Safety: Distinct ID types for customers, sales and entries
  3. Auditability: Every balance change is journaled with a reference

SEE ALSO:
  - payment.go: Payment types and the balance delta table
  - engine.go: Apply / reverse / payment update operations
  - store.go: Persistence interfaces
*/
package ledger

import (
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// IDENTIFIERS
// =============================================================================

type CustomerID string
type SaleID string
type EntryID string

// =============================================================================
// BALANCES - Account state, and the shape of every delta applied to it
// =============================================================================

// Balances holds a customer's wallet, dues and purchase totals.
// The same struct doubles as a delta when applying or reversing a sale.
type Balances struct {
	Wallet         decimal.Decimal
	Outstanding    decimal.Decimal
	TotalPurchases decimal.Decimal
}

func (b Balances) Add(o Balances) Balances {
	return Balances{
		Wallet:         b.Wallet.Add(o.Wallet),
		Outstanding:    b.Outstanding.Add(o.Outstanding),
		TotalPurchases: b.TotalPurchases.Add(o.TotalPurchases),
	}
}

func (b Balances) Neg() Balances {
	return Balances{
		Wallet:         b.Wallet.Neg(),
		Outstanding:    b.Outstanding.Neg(),
		TotalPurchases: b.TotalPurchases.Neg(),
	}
}

func (b Balances) IsZero() bool {
	return b.Wallet.IsZero() && b.Outstanding.IsZero() && b.TotalPurchases.IsZero()
}

func (b Balances) Equal(o Balances) bool {
	return b.Wallet.Equal(o.Wallet) &&
		b.Outstanding.Equal(o.Outstanding) &&
		b.TotalPurchases.Equal(o.TotalPurchases)
}

// =============================================================================
// CUSTOMER
// =============================================================================

type Customer struct {
	ID        CustomerID
	Name      string
	Phone     string
	Email     string
	Address   string
	Balances  Balances
	CreatedAt time.Time
	UpdatedAt time.Time
}

// =============================================================================
// SALE
// =============================================================================

type SaleStatus string

const (
	SaleActive    SaleStatus = "active"
	SaleCancelled SaleStatus = "cancelled"
)

type PaymentStatus string

const (
	PaymentPaid    PaymentStatus = "Paid"
	PaymentPartial PaymentStatus = "Partial"
	PaymentPending PaymentStatus = "Pending"
)

// DerivePaymentStatus splits on paid against total: nothing paid is Pending,
// fully paid is Paid, anything between is Partial.
func DerivePaymentStatus(total, paid decimal.Decimal) PaymentStatus {
	switch {
	case !paid.IsPositive():
		if total.IsZero() {
			return PaymentPaid
		}
		return PaymentPending
	case paid.GreaterThanOrEqual(total):
		return PaymentPaid
	default:
		return PaymentPartial
	}
}

type LineItem struct {
	ID        string
	Name      string
	Quantity  decimal.Decimal
	UnitPrice decimal.Decimal
	Amount    decimal.Decimal
}

// Sale is a persisted sale. CustomerID is nil for walk-in sales.
//
// DueAmount and AdvancePaid are fixed at creation. BalanceDue tracks what is
// still owed after later payment updates.
type Sale struct {
	ID             SaleID
	CustomerID     *CustomerID
	CustomerName   string
	Items          []LineItem
	TotalAmount    decimal.Decimal
	PaidAmount     decimal.Decimal
	DueAmount      decimal.Decimal
	BalanceDue     decimal.Decimal
	AdvancePaid    decimal.Decimal
	Discount       decimal.Decimal
	PaymentType    PaymentType
	PaymentStatus  PaymentStatus
	DeliveryStatus string
	Status         SaleStatus
	DueDate        *time.Time
	Notes          string
	IdempotencyKey string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

func (s *Sale) IsWalkIn() bool { return s.CustomerID == nil }

func (s *Sale) IsCancelled() bool { return s.Status == SaleCancelled }

// =============================================================================
// JOURNAL ENTRY - Append-only record of one balance mutation
// =============================================================================

type EntryKind string

const (
	EntrySale       EntryKind = "sale"
	EntryReversal   EntryKind = "reversal"
	EntryPayment    EntryKind = "payment"
	EntryDeposit    EntryKind = "deposit"
	EntrySettlement EntryKind = "settlement"
	EntryClamp      EntryKind = "clamp" // wallet forced back to zero, see Engine.applyDelta
)

type Entry struct {
	ID         EntryID
	CustomerID CustomerID
	SaleID     *SaleID
	Kind       EntryKind
	Delta      Balances
	Note       string
	CreatedAt  time.Time
}

// SumEntries returns the net balance effect of a set of entries.
func SumEntries(entries []Entry) Balances {
	var total Balances
	for _, e := range entries {
		total = total.Add(e.Delta)
	}
	return total
}
