package proof

import (
	"encoding/hex"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/math"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"

	"github.com/dotrep/payment-gateway/internal/models"
	"github.com/dotrep/payment-gateway/internal/protocolerr"
)

// Domain separator of the payment authorization typed data.
const (
	signingDomainName    = "dotrep-payment-gateway"
	signingDomainVersion = "1"
)

// validateSignature reconstructs the signed payment authorization and
// verifies the signature recovers to the claimed payer address.
func (v *Validator) validateSignature(p *models.PaymentProof, challenge *models.PaymentChallenge) error {
	spec, _ := models.LookupChain(p.Chain)
	if spec.Kind != models.ChainKindEVM {
		return protocolerr.SignatureInvalid("structured signatures are only supported on EVM chains")
	}

	sig := p.Signature
	if sig.ValidAfter >= sig.ValidBefore {
		return protocolerr.SignatureInvalid("authorization validity window is empty")
	}
	now := v.now().Unix()
	if now < sig.ValidAfter || now > sig.ValidBefore {
		return protocolerr.SignatureInvalid("authorization is outside its validity window")
	}
	if sig.Nonce != challenge.Nonce {
		return protocolerr.SignatureInvalid("authorization nonce does not match the challenge nonce")
	}

	nonceBytes, err := hex.DecodeString(strings.TrimPrefix(sig.Nonce, "0x"))
	if err != nil || len(nonceBytes) != 32 {
		return protocolerr.SignatureInvalid("authorization nonce is not 32 bytes of hex")
	}
	var nonce [32]byte
	copy(nonce[:], nonceBytes)

	chainID := math.HexOrDecimal256(*big.NewInt(spec.ChainID))
	typedData := apitypes.TypedData{
		Types: apitypes.Types{
			"EIP712Domain": []apitypes.Type{
				{Name: "name", Type: "string"},
				{Name: "version", Type: "string"},
				{Name: "chainId", Type: "uint256"},
			},
			"PaymentAuthorization": []apitypes.Type{
				{Name: "payer", Type: "address"},
				{Name: "recipient", Type: "address"},
				{Name: "amount", Type: "string"},
				{Name: "currency", Type: "string"},
				{Name: "challenge", Type: "string"},
				{Name: "resource", Type: "string"},
				{Name: "validAfter", Type: "uint256"},
				{Name: "validBefore", Type: "uint256"},
				{Name: "nonce", Type: "bytes32"},
			},
		},
		PrimaryType: "PaymentAuthorization",
		Domain: apitypes.TypedDataDomain{
			Name:    signingDomainName,
			Version: signingDomainVersion,
			ChainId: &chainID,
		},
		Message: apitypes.TypedDataMessage{
			"payer":       p.Payer,
			"recipient":   challenge.Policy.Recipient,
			"amount":      p.Amount,
			"currency":    p.Currency,
			"challenge":   p.Challenge,
			"resource":    challenge.Policy.Resource,
			"validAfter":  big.NewInt(sig.ValidAfter),
			"validBefore": big.NewInt(sig.ValidBefore),
			"nonce":       nonce,
		},
	}

	domainSeparator, err := typedData.HashStruct("EIP712Domain", typedData.Domain.Map())
	if err != nil {
		return protocolerr.SignatureInvalid("failed to hash signing domain").WithCause(err)
	}
	messageHash, err := typedData.HashStruct(typedData.PrimaryType, typedData.Message)
	if err != nil {
		return protocolerr.SignatureInvalid("failed to hash authorization message").WithCause(err)
	}
	rawData := append(append([]byte("\x19\x01"), domainSeparator...), messageHash...)
	sighash := crypto.Keccak256(rawData)

	signature, err := hex.DecodeString(strings.TrimPrefix(sig.Signature, "0x"))
	if err != nil {
		return protocolerr.SignatureInvalid("signature is not hex encoded")
	}
	if len(signature) != 65 {
		return protocolerr.SignatureInvalid("signature must be 65 bytes")
	}
	// Normalize the recovery byte (27/28 -> 0/1).
	if signature[64] == 27 || signature[64] == 28 {
		signature[64] -= 27
	}

	pubkey, err := crypto.SigToPub(sighash, signature)
	if err != nil {
		return protocolerr.SignatureInvalid("signature recovery failed").WithCause(err)
	}
	recovered := crypto.PubkeyToAddress(*pubkey)
	if recovered != common.HexToAddress(p.Payer) {
		return protocolerr.SignatureInvalid("signature does not recover to the claimed payer")
	}
	return nil
}

// SignAuthorization produces the payer signature over an authorization.
// Exported for clients and tests; the gateway itself only verifies.
func SignAuthorization(p *models.PaymentProof, challenge *models.PaymentChallenge, key *SigningKey) (string, error) {
	spec, _ := models.LookupChain(p.Chain)
	nonceBytes, err := hex.DecodeString(strings.TrimPrefix(p.Signature.Nonce, "0x"))
	if err != nil {
		return "", err
	}
	var nonce [32]byte
	copy(nonce[:], nonceBytes)

	chainID := math.HexOrDecimal256(*big.NewInt(spec.ChainID))
	typedData := apitypes.TypedData{
		Types: apitypes.Types{
			"EIP712Domain": []apitypes.Type{
				{Name: "name", Type: "string"},
				{Name: "version", Type: "string"},
				{Name: "chainId", Type: "uint256"},
			},
			"PaymentAuthorization": []apitypes.Type{
				{Name: "payer", Type: "address"},
				{Name: "recipient", Type: "address"},
				{Name: "amount", Type: "string"},
				{Name: "currency", Type: "string"},
				{Name: "challenge", Type: "string"},
				{Name: "resource", Type: "string"},
				{Name: "validAfter", Type: "uint256"},
				{Name: "validBefore", Type: "uint256"},
				{Name: "nonce", Type: "bytes32"},
			},
		},
		PrimaryType: "PaymentAuthorization",
		Domain: apitypes.TypedDataDomain{
			Name:    signingDomainName,
			Version: signingDomainVersion,
			ChainId: &chainID,
		},
		Message: apitypes.TypedDataMessage{
			"payer":       p.Payer,
			"recipient":   challenge.Policy.Recipient,
			"amount":      p.Amount,
			"currency":    p.Currency,
			"challenge":   p.Challenge,
			"resource":    challenge.Policy.Resource,
			"validAfter":  big.NewInt(p.Signature.ValidAfter),
			"validBefore": big.NewInt(p.Signature.ValidBefore),
			"nonce":       nonce,
		},
	}

	domainSeparator, err := typedData.HashStruct("EIP712Domain", typedData.Domain.Map())
	if err != nil {
		return "", err
	}
	messageHash, err := typedData.HashStruct(typedData.PrimaryType, typedData.Message)
	if err != nil {
		return "", err
	}
	rawData := append(append([]byte("\x19\x01"), domainSeparator...), messageHash...)
	sighash := crypto.Keccak256(rawData)

	signature, err := crypto.Sign(sighash, key.priv)
	if err != nil {
		return "", err
	}
	return "0x" + hex.EncodeToString(signature), nil
}
