package models

import (
	"math/big"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseAmount(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr bool
	}{
		{"plain decimal", "0.10", false},
		{"integer", "5", false},
		{"many decimals", "0.000001", false},
		{"zero", "0", true},
		{"negative", "-1.5", true},
		{"empty", "", true},
		{"not a number", "ten", true},
		{"fraction form", "3/4", true},
		{"exponent form", "2e-3", true},
		{"bare dot", "1.", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, err := ParseAmount(tt.input)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, 1, r.Sign())
		})
	}
}

func TestParseAmount_Precision(t *testing.T) {
	// Decimal amounts must accumulate without float drift.
	total := new(big.Rat)
	cent, err := ParseAmount("0.001")
	require.NoError(t, err)
	for i := 0; i < 20; i++ {
		total.Add(total, cent)
	}

	want, _ := new(big.Rat).SetString("0.02")
	assert.Equal(t, 0, total.Cmp(want))
}

func TestBillingSession_TotalAmountString(t *testing.T) {
	s := &BillingSession{}
	assert.Equal(t, "0", s.TotalAmountString())

	s.TotalAmount, _ = new(big.Rat).SetString("0.020")
	assert.Equal(t, "0.02", s.TotalAmountString())

	s.TotalAmount, _ = new(big.Rat).SetString("3")
	assert.Equal(t, "3", s.TotalAmountString())
}

func TestPaymentChallenge_Expired(t *testing.T) {
	now := time.Now()
	c := &PaymentChallenge{ExpiresAt: now.Add(time.Minute)}
	assert.False(t, c.Expired(now))
	assert.True(t, c.Expired(now.Add(2*time.Minute)))
}

func TestLookupChain(t *testing.T) {
	eth, ok := LookupChain("ethereum")
	require.True(t, ok)
	assert.Equal(t, ChainKindEVM, eth.Kind)
	assert.Equal(t, int64(1), eth.ChainID)

	base, ok := LookupChain("base")
	require.True(t, ok)
	assert.Equal(t, int64(8453), base.ChainID)

	sol, ok := LookupChain("solana")
	require.True(t, ok)
	assert.Equal(t, ChainKindBase58, sol.Kind)

	_, ok = LookupChain("dogecoin")
	assert.False(t, ok)
}

func TestNewPaymentRequest(t *testing.T) {
	c := &PaymentChallenge{
		Challenge: "tok",
		Nonce:     "abc",
		ExpiresAt: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		Policy: PaymentPolicy{
			Amount:          "0.10",
			Currency:        "USDC",
			Recipient:       "0x1111111111111111111111111111111111111111",
			SupportedChains: []string{"base"},
		},
	}
	req := NewPaymentRequest(c)
	assert.Equal(t, "tok", req.Challenge)
	assert.Equal(t, "0.10", req.Amount)
	assert.Equal(t, "2026-03-01T12:00:00Z", req.ExpiresAt)
}
