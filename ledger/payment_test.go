package ledger

import (
	"encoding/json"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestSaleDelta_Table(t *testing.T) {
	// total 500, paid 350, advance 200 -> due 150
	base := Sale{
		TotalAmount: dec("500"),
		PaidAmount:  dec("350"),
		AdvancePaid: dec("200"),
		DueAmount:   dec("150"),
	}
	cases := []struct {
		typ         PaymentType
		wallet      string
		outstanding string
		bought      string
	}{
		{PaymentCash, "0", "0", "500"},
		{PaymentCredit, "0", "500", "500"},
		{PaymentDuesCash, "0", "150", "500"},
		{PaymentAdvanceCash, "-200", "150", "500"},
		{PaymentFullAdvance, "-500", "0", "500"},
	}
	for _, tc := range cases {
		t.Run(tc.typ.String(), func(t *testing.T) {
			s := base
			s.PaymentType = tc.typ
			got := SaleDelta(&s)
			want := Balances{Wallet: dec(tc.wallet), Outstanding: dec(tc.outstanding), TotalPurchases: dec(tc.bought)}
			assert.True(t, got.Equal(want), "got %+v", got)
			assert.True(t, got.Add(got.Neg()).IsZero())
		})
	}
}

func TestSaleDelta_UnknownTypeIsZero(t *testing.T) {
	s := Sale{TotalAmount: dec("10")}
	assert.True(t, SaleDelta(&s).IsZero())
	assert.True(t, WalletDraw(&s).IsZero())
}

func TestPaymentType_Flags(t *testing.T) {
	assert.False(t, PaymentCash.CarriesDues())
	assert.True(t, PaymentCredit.CarriesDues())
	assert.True(t, PaymentDuesCash.CarriesDues())
	assert.True(t, PaymentAdvanceCash.CarriesDues())
	assert.False(t, PaymentFullAdvance.CarriesDues())

	assert.True(t, PaymentAdvanceCash.DrawsWallet())
	assert.True(t, PaymentFullAdvance.DrawsWallet())
	assert.False(t, PaymentCredit.DrawsWallet())
}

func TestPaymentType_JSON(t *testing.T) {
	var body struct {
		Type PaymentType `json:"paymentType"`
	}
	require.NoError(t, json.Unmarshal([]byte(`{"paymentType":"Dues + Cash"}`), &body))
	assert.Equal(t, PaymentDuesCash, body.Type)

	out, err := json.Marshal(body)
	require.NoError(t, err)
	assert.JSONEq(t, `{"paymentType":"Dues + Cash"}`, string(out))

	assert.Error(t, json.Unmarshal([]byte(`{"paymentType":"Barter"}`), &body))
	_, err = json.Marshal(struct{ T PaymentType }{})
	assert.Error(t, err, "zero value must not serialize")
}

func TestDerivePaymentStatus(t *testing.T) {
	assert.Equal(t, PaymentPending, DerivePaymentStatus(dec("100"), dec("0")))
	assert.Equal(t, PaymentPartial, DerivePaymentStatus(dec("100"), dec("40")))
	assert.Equal(t, PaymentPaid, DerivePaymentStatus(dec("100"), dec("100")))
	assert.Equal(t, PaymentPaid, DerivePaymentStatus(dec("0"), dec("0")))
}
