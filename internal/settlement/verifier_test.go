package settlement

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dotrep/payment-gateway/internal/interfaces"
	"github.com/dotrep/payment-gateway/internal/models"
	"github.com/dotrep/payment-gateway/internal/retry"
)

type fakeLedger struct {
	confirmations int64
	err           error
	calls         int
}

func (f *fakeLedger) Confirmations(_ context.Context, _, _ string) (int64, error) {
	f.calls++
	return f.confirmations, f.err
}

type fakeProvider struct {
	name         string
	chains       []string
	verification *models.ProviderVerification
	err          error
}

func (f *fakeProvider) Name() string              { return f.name }
func (f *fakeProvider) SupportedChains() []string { return f.chains }

func (f *fakeProvider) Pay(context.Context, *models.PaymentRequest, string) (*models.ProviderReceipt, error) {
	return nil, errors.New("not implemented")
}

func (f *fakeProvider) Verify(context.Context, string, string) (*models.ProviderVerification, error) {
	return f.verification, f.err
}

func fastRetry() retry.Options {
	return retry.Options{MaxAttempts: 2, BaseDelay: time.Millisecond}
}

func ledgerProof() *models.PaymentProof {
	return &models.PaymentProof{
		TxID:  "0x" + "11" + "11111111111111111111111111111111111111111111111111111111111111",
		Chain: "base",
		Payer: "0x2222222222222222222222222222222222222222",
	}
}

func TestVerifier_LedgerConfirmed(t *testing.T) {
	ledger := &fakeLedger{confirmations: 5}
	v := NewVerifier(NewProviderRegistry(), ledger, 3, false, fastRetry())

	result, err := v.Verify(context.Background(), ledgerProof())
	require.NoError(t, err)
	assert.True(t, result.Verified)
	assert.Equal(t, models.SettlementMethodLedger, result.Method)
	assert.Equal(t, int64(5), result.Confirmations)
}

func TestVerifier_InsufficientConfirmations(t *testing.T) {
	ledger := &fakeLedger{confirmations: 1}
	v := NewVerifier(NewProviderRegistry(), ledger, 3, false, fastRetry())

	result, err := v.Verify(context.Background(), ledgerProof())
	require.NoError(t, err)
	assert.False(t, result.Verified)
	assert.Contains(t, result.Error, "1 of 3 required confirmations")
}

func TestVerifier_LedgerUnreachable(t *testing.T) {
	ledger := &fakeLedger{err: errors.New("rpc down")}
	v := NewVerifier(NewProviderRegistry(), ledger, 3, false, fastRetry())

	result, err := v.Verify(context.Background(), ledgerProof())
	require.Error(t, err)
	assert.False(t, result.Verified)
	assert.Equal(t, 2, ledger.calls)
}

func TestVerifier_TxNotFoundIsUnverifiedNotOutage(t *testing.T) {
	ledger := &fakeLedger{err: fmt.Errorf("transaction 0x11: %w", interfaces.ErrTxNotFound)}
	v := NewVerifier(NewProviderRegistry(), ledger, 3, false, fastRetry())

	result, err := v.Verify(context.Background(), ledgerProof())
	require.NoError(t, err)
	assert.False(t, result.Verified)
	assert.Equal(t, models.SettlementMethodLedger, result.Method)
	assert.Contains(t, result.Error, "not found")
	assert.Equal(t, 1, ledger.calls)
}

func TestVerifier_TxNotFoundSkipsFormatOnlyFallback(t *testing.T) {
	ledger := &fakeLedger{err: fmt.Errorf("transaction 0x11: %w", interfaces.ErrTxNotFound)}
	v := NewVerifier(NewProviderRegistry(), ledger, 3, true, fastRetry())

	result, err := v.Verify(context.Background(), ledgerProof())
	require.NoError(t, err)
	assert.False(t, result.Verified)
	assert.False(t, result.Degraded)
	assert.Equal(t, 1, ledger.calls)
}

func TestVerifier_FormatOnlyFallback(t *testing.T) {
	ledger := &fakeLedger{err: errors.New("rpc down")}
	v := NewVerifier(NewProviderRegistry(), ledger, 3, true, fastRetry())

	result, err := v.Verify(context.Background(), ledgerProof())
	require.NoError(t, err)
	assert.True(t, result.Verified)
	assert.True(t, result.Degraded)
	assert.Equal(t, models.SettlementMethodPending, result.Method)
}

func TestVerifier_ProviderPath(t *testing.T) {
	providers := NewProviderRegistry()
	providers.Register(&fakeProvider{
		name:         "facilitator",
		chains:       []string{"base"},
		verification: &models.ProviderVerification{Verified: true, Confirmations: 12},
	})
	ledger := &fakeLedger{err: errors.New("should not be called")}
	v := NewVerifier(providers, ledger, 3, false, fastRetry())

	p := ledgerProof()
	p.ProviderSig = "sig"
	p.Provider = "facilitator"

	result, err := v.Verify(context.Background(), p)
	require.NoError(t, err)
	assert.True(t, result.Verified)
	assert.Equal(t, models.SettlementMethodProvider, result.Method)
	assert.Equal(t, 0, ledger.calls)
}

func TestVerifier_ProviderRejects(t *testing.T) {
	providers := NewProviderRegistry()
	providers.Register(&fakeProvider{
		name:         "facilitator",
		chains:       []string{"base"},
		verification: &models.ProviderVerification{Verified: false, Reason: "unknown transaction"},
	})
	v := NewVerifier(providers, &fakeLedger{}, 3, false, fastRetry())

	p := ledgerProof()
	p.ProviderSig = "sig"
	p.Provider = "facilitator"

	result, err := v.Verify(context.Background(), p)
	require.NoError(t, err)
	assert.False(t, result.Verified)
	assert.Equal(t, "unknown transaction", result.Error)
}

func TestVerifier_UnknownProviderFallsBackToLedger(t *testing.T) {
	ledger := &fakeLedger{confirmations: 4}
	v := NewVerifier(NewProviderRegistry(), ledger, 3, false, fastRetry())

	p := ledgerProof()
	p.ProviderSig = "sig"
	p.Provider = "nobody"

	result, err := v.Verify(context.Background(), p)
	require.NoError(t, err)
	assert.True(t, result.Verified)
	assert.Equal(t, models.SettlementMethodLedger, result.Method)
}

func TestProviderRegistry_SelectByChain(t *testing.T) {
	providers := NewProviderRegistry()
	providers.Register(&fakeProvider{name: "a", chains: []string{"ethereum"}})
	providers.Register(&fakeProvider{name: "b", chains: []string{"base", "polygon"}})

	p, ok := providers.SelectProvider("polygon")
	require.True(t, ok)
	assert.Equal(t, "b", p.Name())

	_, ok = providers.SelectProvider("solana")
	assert.False(t, ok)
}
