package ledger

import (
	"encoding/json"
	"fmt"

	"github.com/shopspring/decimal"
)

// =============================================================================
// PAYMENT TYPE - Closed set, parsed once at the boundary
// =============================================================================

// PaymentType selects how a sale is settled and therefore which balances it
// moves. The zero value is invalid.
type PaymentType int

const (
	PaymentCash PaymentType = iota + 1
	PaymentCredit
	PaymentDuesCash
	PaymentAdvanceCash
	PaymentFullAdvance
)

var paymentTypeNames = map[PaymentType]string{
	PaymentCash:        "Cash",
	PaymentCredit:      "Credit",
	PaymentDuesCash:    "Dues + Cash",
	PaymentAdvanceCash: "Advance + Cash",
	PaymentFullAdvance: "Full Advance",
}

// PaymentTypes lists every valid payment type in display order.
func PaymentTypes() []PaymentType {
	return []PaymentType{PaymentCash, PaymentCredit, PaymentDuesCash, PaymentAdvanceCash, PaymentFullAdvance}
}

func ParsePaymentType(s string) (PaymentType, error) {
	for t, name := range paymentTypeNames {
		if name == s {
			return t, nil
		}
	}
	return 0, fmt.Errorf("unknown payment type %q", s)
}

func (t PaymentType) String() string {
	if name, ok := paymentTypeNames[t]; ok {
		return name
	}
	return fmt.Sprintf("PaymentType(%d)", int(t))
}

func (t PaymentType) Valid() bool {
	_, ok := paymentTypeNames[t]
	return ok
}

func (t PaymentType) MarshalJSON() ([]byte, error) {
	if !t.Valid() {
		return nil, fmt.Errorf("invalid payment type %d", int(t))
	}
	return json.Marshal(t.String())
}

func (t *PaymentType) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := ParsePaymentType(s)
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

// =============================================================================
// DELTA TABLE - Balance effect of applying a sale, as data
// =============================================================================

// saleField names the sale amount a delta term reads.
type saleField int

const (
	fieldNone saleField = iota
	fieldTotal
	fieldDue
	fieldAdvance
)

// term is sign * field. A zero sign means the balance is untouched.
type term struct {
	sign  int64
	field saleField
}

var (
	none         = term{}
	plusTotal    = term{sign: 1, field: fieldTotal}
	plusDue      = term{sign: 1, field: fieldDue}
	minusTotal   = term{sign: -1, field: fieldTotal}
	minusAdvance = term{sign: -1, field: fieldAdvance}
)

type deltaRule struct {
	wallet      term
	outstanding term
	purchases   term
}

var deltaRules = map[PaymentType]deltaRule{
	PaymentCash:        {wallet: none, outstanding: none, purchases: plusTotal},
	PaymentCredit:      {wallet: none, outstanding: plusTotal, purchases: plusTotal},
	PaymentDuesCash:    {wallet: none, outstanding: plusDue, purchases: plusTotal},
	PaymentAdvanceCash: {wallet: minusAdvance, outstanding: plusDue, purchases: plusTotal},
	PaymentFullAdvance: {wallet: minusTotal, outstanding: none, purchases: plusTotal},
}

func (t term) eval(s *Sale) decimal.Decimal {
	var v decimal.Decimal
	switch t.field {
	case fieldTotal:
		v = s.TotalAmount
	case fieldDue:
		v = s.DueAmount
	case fieldAdvance:
		v = s.AdvancePaid
	default:
		return decimal.Zero
	}
	return v.Mul(decimal.NewFromInt(t.sign))
}

// SaleDelta returns the balance delta applying sale s has on its customer.
// Reversing a sale applies the negation.
func SaleDelta(s *Sale) Balances {
	rule, ok := deltaRules[s.PaymentType]
	if !ok {
		return Balances{}
	}
	return Balances{
		Wallet:         rule.wallet.eval(s),
		Outstanding:    rule.outstanding.eval(s),
		TotalPurchases: rule.purchases.eval(s),
	}
}

// WalletDraw is the amount a sale takes from the customer's wallet.
func WalletDraw(s *Sale) decimal.Decimal {
	return SaleDelta(s).Wallet.Neg()
}

// CarriesDues reports whether the payment type books unpaid amounts as
// outstanding dues on the customer.
func (t PaymentType) CarriesDues() bool {
	rule, ok := deltaRules[t]
	return ok && rule.outstanding != none
}

// DrawsWallet reports whether the payment type debits the wallet.
func (t PaymentType) DrawsWallet() bool {
	rule, ok := deltaRules[t]
	return ok && rule.wallet != none
}
