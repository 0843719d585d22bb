package sqldb

import (
	"database/sql"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/brickbook/sales-ledger/ledger"
)

// Row types mirror the tables column for column. decimal.Decimal scans
// the stored decimal text directly.

type customerRow struct {
	ID             string          `db:"id"`
	Name           string          `db:"name"`
	Phone          string          `db:"phone"`
	Email          string          `db:"email"`
	Address        string          `db:"address"`
	Wallet         decimal.Decimal `db:"wallet"`
	Outstanding    decimal.Decimal `db:"outstanding"`
	TotalPurchases decimal.Decimal `db:"total_purchases"`
	CreatedAt      string          `db:"created_at"`
	UpdatedAt      string          `db:"updated_at"`
}

func (r customerRow) toCustomer() (ledger.Customer, error) {
	created, err := parseTime(r.CreatedAt)
	if err != nil {
		return ledger.Customer{}, err
	}
	updated, err := parseTime(r.UpdatedAt)
	if err != nil {
		return ledger.Customer{}, err
	}
	return ledger.Customer{
		ID:      ledger.CustomerID(r.ID),
		Name:    r.Name,
		Phone:   r.Phone,
		Email:   r.Email,
		Address: r.Address,
		Balances: ledger.Balances{
			Wallet:         r.Wallet,
			Outstanding:    r.Outstanding,
			TotalPurchases: r.TotalPurchases,
		},
		CreatedAt: created,
		UpdatedAt: updated,
	}, nil
}

type saleRow struct {
	ID             string          `db:"id"`
	CustomerID     sql.NullString  `db:"customer_id"`
	CustomerName   string          `db:"customer_name"`
	TotalAmount    decimal.Decimal `db:"total_amount"`
	PaidAmount     decimal.Decimal `db:"paid_amount"`
	DueAmount      decimal.Decimal `db:"due_amount"`
	BalanceDue     decimal.Decimal `db:"balance_due"`
	AdvancePaid    decimal.Decimal `db:"advance_paid"`
	Discount       decimal.Decimal `db:"discount"`
	PaymentType    string          `db:"payment_type"`
	PaymentStatus  string          `db:"payment_status"`
	DeliveryStatus string          `db:"delivery_status"`
	Status         string          `db:"status"`
	DueDate        sql.NullString  `db:"due_date"`
	Notes          string          `db:"notes"`
	IdempotencyKey sql.NullString  `db:"idempotency_key"`
	CreatedAt      string          `db:"created_at"`
	UpdatedAt      string          `db:"updated_at"`
}

func (r saleRow) toSale() (*ledger.Sale, error) {
	pt, err := ledger.ParsePaymentType(r.PaymentType)
	if err != nil {
		return nil, fmt.Errorf("sale %s: %w", r.ID, err)
	}
	created, err := parseTime(r.CreatedAt)
	if err != nil {
		return nil, err
	}
	updated, err := parseTime(r.UpdatedAt)
	if err != nil {
		return nil, err
	}

	sale := &ledger.Sale{
		ID:             ledger.SaleID(r.ID),
		CustomerName:   r.CustomerName,
		TotalAmount:    r.TotalAmount,
		PaidAmount:     r.PaidAmount,
		DueAmount:      r.DueAmount,
		BalanceDue:     r.BalanceDue,
		AdvancePaid:    r.AdvancePaid,
		Discount:       r.Discount,
		PaymentType:    pt,
		PaymentStatus:  ledger.PaymentStatus(r.PaymentStatus),
		DeliveryStatus: r.DeliveryStatus,
		Status:         ledger.SaleStatus(r.Status),
		Notes:          r.Notes,
		IdempotencyKey: r.IdempotencyKey.String,
		CreatedAt:      created,
		UpdatedAt:      updated,
	}
	if r.CustomerID.Valid {
		id := ledger.CustomerID(r.CustomerID.String)
		sale.CustomerID = &id
	}
	if r.DueDate.Valid {
		due, err := parseTime(r.DueDate.String)
		if err != nil {
			return nil, err
		}
		sale.DueDate = &due
	}
	return sale, nil
}

type itemRow struct {
	ID        string          `db:"id"`
	SaleID    string          `db:"sale_id"`
	Position  int             `db:"position"`
	Name      string          `db:"name"`
	Quantity  decimal.Decimal `db:"quantity"`
	UnitPrice decimal.Decimal `db:"unit_price"`
	Amount    decimal.Decimal `db:"amount"`
}

func (r itemRow) toItem() ledger.LineItem {
	return ledger.LineItem{
		ID:        r.ID,
		Name:      r.Name,
		Quantity:  r.Quantity,
		UnitPrice: r.UnitPrice,
		Amount:    r.Amount,
	}
}

type entryRow struct {
	ID               string          `db:"id"`
	CustomerID       string          `db:"customer_id"`
	Seq              int64           `db:"seq"`
	SaleID           sql.NullString  `db:"sale_id"`
	Kind             string          `db:"kind"`
	WalletDelta      decimal.Decimal `db:"wallet_delta"`
	OutstandingDelta decimal.Decimal `db:"outstanding_delta"`
	PurchasesDelta   decimal.Decimal `db:"purchases_delta"`
	Note             string          `db:"note"`
	CreatedAt        string          `db:"created_at"`
}

func (r entryRow) toEntry() (ledger.Entry, error) {
	created, err := parseTime(r.CreatedAt)
	if err != nil {
		return ledger.Entry{}, err
	}
	e := ledger.Entry{
		ID:         ledger.EntryID(r.ID),
		CustomerID: ledger.CustomerID(r.CustomerID),
		Kind:       ledger.EntryKind(r.Kind),
		Delta: ledger.Balances{
			Wallet:         r.WalletDelta,
			Outstanding:    r.OutstandingDelta,
			TotalPurchases: r.PurchasesDelta,
		},
		Note:      r.Note,
		CreatedAt: created,
	}
	if r.SaleID.Valid {
		id := ledger.SaleID(r.SaleID.String)
		e.SaleID = &id
	}
	return e, nil
}
