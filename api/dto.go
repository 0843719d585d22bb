/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. Money is held as
  decimal.Decimal inside the ledger and rendered as JSON numbers here.
  Field names are camelCase to match the sales front end.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients

TYPES:
  Customer:  CustomerDTO, CreateCustomerRequest, UpdateCustomerRequest
  Balance:   BalancesDTO, ReconciliationDTO, EntryDTO, MoneyRequest
  Sale:      SaleDTO, LineItemDTO, ReversalDTO (requests are ledger.NewSale
             and ledger.PaymentUpdate, decoded as-is)
  Dashboard: StatsDTO

VALIDATION:
  Request structs carry validator tags; ledger inputs are validated by the
  engine itself.

SEE ALSO:
  - handlers.go: Uses these types
  - ledger/validate.go: NewSale and PaymentUpdate
*/
package api

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/brickbook/sales-ledger/ledger"
)

// =============================================================================
// REQUEST TYPES
// =============================================================================

// CreateCustomerRequest creates a customer. ID is generated when empty.
type CreateCustomerRequest struct {
	ID      string `json:"id" validate:"omitempty,max=64"`
	Name    string `json:"name" validate:"required,max=200"`
	Phone   string `json:"phone" validate:"omitempty,max=32"`
	Email   string `json:"email" validate:"omitempty,email"`
	Address string `json:"address" validate:"omitempty,max=500"`
}

// UpdateCustomerRequest replaces profile fields. Balances are not accepted.
type UpdateCustomerRequest struct {
	Name    string `json:"name" validate:"required,max=200"`
	Phone   string `json:"phone" validate:"omitempty,max=32"`
	Email   string `json:"email" validate:"omitempty,email"`
	Address string `json:"address" validate:"omitempty,max=500"`
}

// MoneyRequest is the body of deposit and settlement requests.
type MoneyRequest struct {
	Amount decimal.Decimal `json:"amount"`
	Note   string          `json:"note" validate:"max=500"`
}

// =============================================================================
// RESPONSE TYPES
// =============================================================================

type BalancesDTO struct {
	WalletBalance      float64 `json:"walletBalance"`
	OutstandingBalance float64 `json:"outstandingBalance"`
	TotalPurchases     float64 `json:"totalPurchases"`
}

type CustomerDTO struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Phone   string `json:"phone"`
	Email   string `json:"email"`
	Address string `json:"address"`
	BalancesDTO
	CreatedAt string `json:"createdAt"`
	UpdatedAt string `json:"updatedAt"`
}

type LineItemDTO struct {
	ID        string  `json:"id"`
	Name      string  `json:"name"`
	Quantity  float64 `json:"quantity"`
	UnitPrice float64 `json:"unitPrice"`
	Amount    float64 `json:"amount"`
}

type SaleDTO struct {
	ID             string        `json:"id"`
	CustomerID     *string       `json:"customerId"`
	CustomerName   string        `json:"customerName"`
	Items          []LineItemDTO `json:"items"`
	TotalAmount    float64       `json:"totalAmount"`
	PaidAmount     float64       `json:"paidAmount"`
	DueAmount      float64       `json:"dueAmount"`
	BalanceDue     float64       `json:"balanceDue"`
	AdvancePaid    float64       `json:"advancePaid"`
	Discount       float64       `json:"discount"`
	PaymentType    string        `json:"paymentType"`
	PaymentStatus  string        `json:"paymentStatus"`
	DeliveryStatus string        `json:"deliveryStatus"`
	Status         string        `json:"status"`
	DueDate        *string       `json:"dueDate"`
	Notes          string        `json:"notes"`
	CreatedAt      string        `json:"createdAt"`
	UpdatedAt      string        `json:"updatedAt"`
}

// ReversalDTO is returned by cancel and delete.
type ReversalDTO struct {
	Success    bool        `json:"success"`
	Message    string      `json:"message"`
	SaleID     string      `json:"saleId"`
	CustomerID *string     `json:"reversedCustomerId"`
	Reversed   BalancesDTO `json:"reversed"`
	Balances   BalancesDTO `json:"balances"`
	Sale       *SaleDTO    `json:"sale,omitempty"`
}

type EntryDTO struct {
	ID        string      `json:"id"`
	SaleID    *string     `json:"saleId"`
	Kind      string      `json:"kind"`
	Delta     BalancesDTO `json:"delta"`
	Note      string      `json:"note"`
	CreatedAt string      `json:"createdAt"`
}

type ReconciliationDTO struct {
	CustomerID string      `json:"customerId"`
	Stored     BalancesDTO `json:"stored"`
	Replayed   BalancesDTO `json:"replayed"`
	Entries    int         `json:"entries"`
	Consistent bool        `json:"consistent"`
}

type StatsDTO struct {
	Customers        int     `json:"customers"`
	TotalWallet      float64 `json:"totalWallet"`
	TotalOutstanding float64 `json:"totalOutstanding"`
	TotalPurchases   float64 `json:"totalPurchases"`
	ActiveSales      int     `json:"activeSales"`
	CancelledSales   int     `json:"cancelledSales"`
	Revenue          float64 `json:"revenue"`
	Collected        float64 `json:"collected"`
}

// ErrorResponse is the standard error response.
type ErrorResponse struct {
	Error     string              `json:"error"`
	Code      string              `json:"code,omitempty"`
	Details   any                 `json:"details,omitempty"`
	Fields    []ledger.FieldError `json:"fields,omitempty"`
	Required  *float64            `json:"required,omitempty"`
	Available *float64            `json:"available,omitempty"`
}

// =============================================================================
// CONVERSION HELPERS
// =============================================================================

func money(d decimal.Decimal) float64 {
	return d.InexactFloat64()
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

func toBalancesDTO(b ledger.Balances) BalancesDTO {
	return BalancesDTO{
		WalletBalance:      money(b.Wallet),
		OutstandingBalance: money(b.Outstanding),
		TotalPurchases:     money(b.TotalPurchases),
	}
}

func toCustomerDTO(c ledger.Customer) CustomerDTO {
	return CustomerDTO{
		ID:          string(c.ID),
		Name:        c.Name,
		Phone:       c.Phone,
		Email:       c.Email,
		Address:     c.Address,
		BalancesDTO: toBalancesDTO(c.Balances),
		CreatedAt:   formatTime(c.CreatedAt),
		UpdatedAt:   formatTime(c.UpdatedAt),
	}
}

func toSaleDTO(s ledger.Sale) SaleDTO {
	items := make([]LineItemDTO, len(s.Items))
	for i, it := range s.Items {
		items[i] = LineItemDTO{
			ID:        it.ID,
			Name:      it.Name,
			Quantity:  money(it.Quantity),
			UnitPrice: money(it.UnitPrice),
			Amount:    money(it.Amount),
		}
	}
	dto := SaleDTO{
		ID:             string(s.ID),
		CustomerID:     customerIDPtr(s.CustomerID),
		CustomerName:   s.CustomerName,
		Items:          items,
		TotalAmount:    money(s.TotalAmount),
		PaidAmount:     money(s.PaidAmount),
		DueAmount:      money(s.DueAmount),
		BalanceDue:     money(s.BalanceDue),
		AdvancePaid:    money(s.AdvancePaid),
		Discount:       money(s.Discount),
		PaymentType:    s.PaymentType.String(),
		PaymentStatus:  string(s.PaymentStatus),
		DeliveryStatus: s.DeliveryStatus,
		Status:         string(s.Status),
		Notes:          s.Notes,
		CreatedAt:      formatTime(s.CreatedAt),
		UpdatedAt:      formatTime(s.UpdatedAt),
	}
	if s.DueDate != nil {
		due := s.DueDate.Format("2006-01-02")
		dto.DueDate = &due
	}
	return dto
}

func toEntryDTO(e ledger.Entry) EntryDTO {
	dto := EntryDTO{
		ID:        string(e.ID),
		Kind:      string(e.Kind),
		Delta:     toBalancesDTO(e.Delta),
		Note:      e.Note,
		CreatedAt: formatTime(e.CreatedAt),
	}
	if e.SaleID != nil {
		id := string(*e.SaleID)
		dto.SaleID = &id
	}
	return dto
}

func toStatsDTO(st *ledger.Stats) StatsDTO {
	return StatsDTO{
		Customers:        st.Customers,
		TotalWallet:      money(st.TotalWallet),
		TotalOutstanding: money(st.TotalOutstanding),
		TotalPurchases:   money(st.TotalPurchases),
		ActiveSales:      st.ActiveSales,
		CancelledSales:   st.CancelledSales,
		Revenue:          money(st.Revenue),
		Collected:        money(st.Collected),
	}
}

func customerIDPtr(id *ledger.CustomerID) *string {
	if id == nil {
		return nil
	}
	s := string(*id)
	return &s
}
