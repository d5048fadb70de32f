package proof

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dotrep/payment-gateway/internal/models"
	"github.com/dotrep/payment-gateway/internal/protocolerr"
)

func signedProof(t *testing.T, key *SigningKey, ch *models.PaymentChallenge) *models.PaymentProof {
	t.Helper()
	now := time.Now().Unix()
	p := &models.PaymentProof{
		TxID:      testEVMTxID,
		Chain:     "base",
		Payer:     key.Address(),
		Amount:    ch.Policy.Amount,
		Currency:  ch.Policy.Currency,
		Recipient: ch.Policy.Recipient,
		Challenge: ch.Challenge,
		Signature: &models.ProofSignature{
			ValidAfter:  now - 60,
			ValidBefore: now + 300,
			Nonce:       ch.Nonce,
		},
	}
	sig, err := SignAuthorization(p, ch, key)
	require.NoError(t, err)
	p.Signature.Signature = sig
	return p
}

func TestValidateSignature_RoundTrip(t *testing.T) {
	key, err := GenerateSigningKey()
	require.NoError(t, err)

	v := NewValidator()
	ch := testChallenge()
	p := signedProof(t, key, ch)

	require.NoError(t, v.Validate(p, ch))
}

func TestValidateSignature_WrongSigner(t *testing.T) {
	key, err := GenerateSigningKey()
	require.NoError(t, err)
	other, err := GenerateSigningKey()
	require.NoError(t, err)

	v := NewValidator()
	ch := testChallenge()
	p := signedProof(t, key, ch)
	// Claim a different payer than the one that signed.
	p.Payer = other.Address()

	err = v.Validate(p, ch)
	require.Error(t, err)
	pe, ok := protocolerr.As(err)
	require.True(t, ok)
	assert.Equal(t, protocolerr.CodeSignatureInvalid, pe.Code)
}

func TestValidateSignature_TamperedAmount(t *testing.T) {
	key, err := GenerateSigningKey()
	require.NoError(t, err)

	v := NewValidator()
	ch := testChallenge()
	ch.Policy.Amount = "0.05"
	p := signedProof(t, key, ch)

	// Re-sign over a different amount, then submit the challenged amount so
	// the structural pass succeeds but recovery lands elsewhere.
	ch.Policy.Amount = "0.10"
	p.Amount = "0.10"

	err = v.Validate(p, ch)
	require.Error(t, err)
	pe, ok := protocolerr.As(err)
	require.True(t, ok)
	assert.Equal(t, protocolerr.CodeSignatureInvalid, pe.Code)
}

func TestValidateSignature_NonceMismatch(t *testing.T) {
	key, err := GenerateSigningKey()
	require.NoError(t, err)

	v := NewValidator()
	ch := testChallenge()
	p := signedProof(t, key, ch)
	p.Signature.Nonce = "ffffffffffffffffffffffffffffffffffffffffffffffffffffffffffffffff"

	err = v.Validate(p, ch)
	require.Error(t, err)
	pe, ok := protocolerr.As(err)
	require.True(t, ok)
	assert.Equal(t, protocolerr.CodeSignatureInvalid, pe.Code)
}

func TestValidateSignature_ValidityWindow(t *testing.T) {
	key, err := GenerateSigningKey()
	require.NoError(t, err)
	ch := testChallenge()

	t.Run("expired", func(t *testing.T) {
		v := NewValidator()
		p := signedProof(t, key, ch)
		v.now = func() time.Time { return time.Now().Add(time.Hour) }

		err := v.Validate(p, ch)
		require.Error(t, err)
		pe, _ := protocolerr.As(err)
		assert.Equal(t, protocolerr.CodeSignatureInvalid, pe.Code)
	})

	t.Run("not yet valid", func(t *testing.T) {
		v := NewValidator()
		p := signedProof(t, key, ch)
		v.now = func() time.Time { return time.Now().Add(-time.Hour) }

		err := v.Validate(p, ch)
		require.Error(t, err)
		pe, _ := protocolerr.As(err)
		assert.Equal(t, protocolerr.CodeSignatureInvalid, pe.Code)
	})

	t.Run("empty window", func(t *testing.T) {
		v := NewValidator()
		p := signedProof(t, key, ch)
		p.Signature.ValidBefore = p.Signature.ValidAfter

		err := v.Validate(p, ch)
		require.Error(t, err)
		pe, _ := protocolerr.As(err)
		assert.Equal(t, protocolerr.CodeSignatureInvalid, pe.Code)
	})
}

func TestValidateSignature_NonEVMChain(t *testing.T) {
	v := NewValidator()
	ch := testChallenge()
	ch.Policy.Recipient = ""

	p := &models.PaymentProof{
		TxID:      base58TxID(),
		Chain:     "solana",
		Payer:     base58Addr(2),
		Amount:    "0.10",
		Currency:  "USDC",
		Challenge: "tok-1",
		Signature: &models.ProofSignature{
			Signature:   "0xdead",
			ValidAfter:  time.Now().Unix() - 60,
			ValidBefore: time.Now().Unix() + 60,
			Nonce:       ch.Nonce,
		},
	}

	err := v.Validate(p, ch)
	require.Error(t, err)
	pe, ok := protocolerr.As(err)
	require.True(t, ok)
	assert.Equal(t, protocolerr.CodeSignatureInvalid, pe.Code)
}
