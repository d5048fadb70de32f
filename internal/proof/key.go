package proof

import (
	"crypto/ecdsa"

	"github.com/ethereum/go-ethereum/crypto"
)

// SigningKey wraps a secp256k1 private key used to sign payment
// authorizations.
type SigningKey struct {
	priv *ecdsa.PrivateKey
}

// GenerateSigningKey creates a fresh key.
func GenerateSigningKey() (*SigningKey, error) {
	priv, err := crypto.GenerateKey()
	if err != nil {
		return nil, err
	}
	return &SigningKey{priv: priv}, nil
}

// Address returns the payer address of the key.
func (k *SigningKey) Address() string {
	return crypto.PubkeyToAddress(k.priv.PublicKey).Hex()
}
