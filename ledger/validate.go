package ledger

import (
	"errors"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
)

// NewSale is the input to Engine.CreateSale.
type NewSale struct {
	CustomerID     *CustomerID     `json:"customerId"`
	CustomerName   string          `json:"customerName" validate:"max=200"`
	Items          []NewLineItem   `json:"items" validate:"required,min=1,dive"`
	TotalAmount    decimal.Decimal `json:"totalAmount" validate:"gte=0"`
	PaidAmount     decimal.Decimal `json:"paidAmount" validate:"gte=0"`
	AdvancePaid    decimal.Decimal `json:"advancePaid" validate:"gte=0"`
	Discount       decimal.Decimal `json:"discount" validate:"gte=0"`
	PaymentType    PaymentType     `json:"paymentType" validate:"required"`
	DeliveryStatus string          `json:"deliveryStatus" validate:"max=50"`
	DueDate        *time.Time      `json:"dueDate"`
	Notes          string          `json:"notes" validate:"max=2000"`
	IdempotencyKey string          `json:"-"`
}

type NewLineItem struct {
	Name      string           `json:"name" validate:"required,max=200"`
	Quantity  decimal.Decimal  `json:"quantity" validate:"gt=0"`
	UnitPrice decimal.Decimal  `json:"unitPrice" validate:"gt=0"`
	Amount    *decimal.Decimal `json:"amount"`
}

// PaymentUpdate is the input to Engine.RecordPayment.
type PaymentUpdate struct {
	PaidAmount    decimal.Decimal `json:"paidAmount" validate:"gte=0"`
	PaymentStatus *PaymentStatus  `json:"paymentStatus" validate:"omitempty,oneof=Paid Partial Pending"`
	Notes         *string         `json:"notes" validate:"omitempty,max=2000"`
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	// Compare decimals with the numeric tags (gt, gte, ...).
	v.RegisterCustomTypeFunc(func(field reflect.Value) interface{} {
		if d, ok := field.Interface().(decimal.Decimal); ok {
			return d.InexactFloat64()
		}
		return nil
	}, decimal.Decimal{})
	v.RegisterCustomTypeFunc(func(field reflect.Value) interface{} {
		if t, ok := field.Interface().(PaymentType); ok && t.Valid() {
			return int(t)
		}
		return 0
	}, PaymentType(0))
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return f.Name
		}
		return name
	})
	return v
}

// validateStruct runs tag validation and converts failures to a ValidationError.
func validateStruct(s interface{}) error {
	err := validate.Struct(s)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return invalid("body", err.Error())
	}
	out := &ValidationError{}
	for _, fe := range verrs {
		out.add(fieldPath(fe.Namespace()), tagMessage(fe))
	}
	return out
}

// fieldPath drops the top-level struct name: "NewSale.items[0].quantity" -> "items[0].quantity".
func fieldPath(ns string) string {
	if i := strings.Index(ns, "."); i >= 0 {
		return ns[i+1:]
	}
	return ns
}

func tagMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "min":
		return "must have at least " + fe.Param() + " entries"
	case "max":
		return "must be at most " + fe.Param() + " characters"
	case "gt":
		return "must be greater than " + fe.Param()
	case "gte":
		return "must not be negative"
	case "oneof":
		return "must be one of: " + fe.Param()
	default:
		return "is invalid"
	}
}

// =============================================================================
// SALE NORMALIZATION - Business rules beyond field tags
// =============================================================================

// buildSale validates input and derives the persisted sale: item amounts,
// total (when omitted), due amount, balance due and payment status.
func buildSale(in NewSale) (*Sale, error) {
	if err := validateStruct(in); err != nil {
		return nil, err
	}

	verr := &ValidationError{}
	items := make([]LineItem, len(in.Items))
	itemsTotal := decimal.Zero
	for i, it := range in.Items {
		amount := it.Quantity.Mul(it.UnitPrice)
		if it.Amount != nil {
			if it.Amount.IsNegative() {
				verr.add("items["+strconv.Itoa(i)+"].amount", "must not be negative")
			}
			amount = *it.Amount
		}
		items[i] = LineItem{
			Name:      strings.TrimSpace(it.Name),
			Quantity:  it.Quantity,
			UnitPrice: it.UnitPrice,
			Amount:    amount,
		}
		itemsTotal = itemsTotal.Add(amount)
	}

	if in.Discount.GreaterThan(itemsTotal) {
		verr.add("discount", "must not exceed the items total")
	}
	total := in.TotalAmount
	if total.IsZero() {
		total = decimal.Max(itemsTotal.Sub(in.Discount), decimal.Zero)
	}

	paid, advance := in.PaidAmount, in.AdvancePaid
	switch in.PaymentType {
	case PaymentCash:
		// nothing is booked to dues, so the whole total is settled now
		if paid.IsZero() {
			paid = total
		}
		if !paid.Equal(total) {
			verr.add("paidAmount", "must equal totalAmount for Cash")
		}
		if !advance.IsZero() {
			verr.add("advancePaid", "must be zero for Cash")
		}
	case PaymentDuesCash:
		if !advance.IsZero() {
			verr.add("advancePaid", "must be zero for Dues + Cash")
		}
	case PaymentCredit:
		if !paid.IsZero() {
			verr.add("paidAmount", "must be zero for Credit")
		}
		if !advance.IsZero() {
			verr.add("advancePaid", "must be zero for Credit")
		}
	case PaymentAdvanceCash:
		if !advance.IsPositive() {
			verr.add("advancePaid", "must be greater than 0 for Advance + Cash")
		} else if advance.GreaterThan(paid) {
			verr.add("advancePaid", "must not exceed paidAmount")
		}
	case PaymentFullAdvance:
		if paid.IsZero() {
			paid = total
		}
		if advance.IsZero() {
			advance = total
		}
		if !paid.Equal(total) || !advance.Equal(total) {
			verr.add("advancePaid", "must equal totalAmount for Full Advance")
		}
	}
	if paid.GreaterThan(total) {
		verr.add("paidAmount", "must not exceed totalAmount")
	}
	if in.CustomerID == nil && in.PaymentType != PaymentCash {
		verr.add("customerId", "is required for "+in.PaymentType.String())
	}
	if in.CustomerID != nil && strings.TrimSpace(string(*in.CustomerID)) == "" {
		verr.add("customerId", "must not be blank")
	}
	if err := verr.orNil(); err != nil {
		return nil, err
	}

	due := total.Sub(paid)
	delivery := in.DeliveryStatus
	if delivery == "" {
		delivery = "Pending"
	}
	return &Sale{
		CustomerID:     in.CustomerID,
		CustomerName:   strings.TrimSpace(in.CustomerName),
		Items:          items,
		TotalAmount:    total,
		PaidAmount:     paid,
		DueAmount:      due,
		BalanceDue:     due,
		AdvancePaid:    advance,
		Discount:       in.Discount,
		PaymentType:    in.PaymentType,
		PaymentStatus:  DerivePaymentStatus(total, paid),
		DeliveryStatus: delivery,
		Status:         SaleActive,
		DueDate:        in.DueDate,
		Notes:          in.Notes,
		IdempotencyKey: in.IdempotencyKey,
	}, nil
}

// validateAmount checks a positive money amount for deposits and settlements.
func validateAmount(field string, amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return invalid(field, "must be greater than 0")
	}
	return nil
}
