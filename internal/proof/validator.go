// Package proof validates submitted payment proofs: structural completeness
// and field formats first, then signature authenticity when a structured
// signature is present.
package proof

import (
	"regexp"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/mr-tron/base58"

	"github.com/dotrep/payment-gateway/internal/models"
	"github.com/dotrep/payment-gateway/internal/protocolerr"
)

var evmTxIDPattern = regexp.MustCompile(`^0x[0-9a-fA-F]{64}$`)

// Validator checks payment proofs against their consumed challenge.
type Validator struct {
	now func() time.Time
}

func NewValidator() *Validator {
	return &Validator{now: time.Now}
}

// Validate runs the structural pass and, when a signature is present, the
// authenticity pass. The challenge must be the one the proof references,
// already consumed from the registry.
func (v *Validator) Validate(p *models.PaymentProof, challenge *models.PaymentChallenge) error {
	if err := v.validateStructure(p, challenge); err != nil {
		return err
	}
	if p.Signature != nil {
		return v.validateSignature(p, challenge)
	}
	return nil
}

func (v *Validator) validateStructure(p *models.PaymentProof, challenge *models.PaymentChallenge) error {
	pe := protocolerr.MalformedProof("payment proof failed structural validation")

	if p.TxID == "" {
		pe.WithField("tx_id", "required")
	}
	if p.Chain == "" {
		pe.WithField("chain", "required")
	}
	if p.Payer == "" {
		pe.WithField("payer", "required")
	}
	if p.Challenge == "" {
		pe.WithField("challenge", "required")
	}
	if p.Amount == "" {
		pe.WithField("amount", "required")
	} else if _, err := models.ParseAmount(p.Amount); err != nil {
		pe.WithField("amount", "must be a positive decimal")
	}
	if p.Currency == "" {
		pe.WithField("currency", "required")
	}
	if len(pe.Fields) > 0 {
		return pe
	}

	spec, ok := models.LookupChain(p.Chain)
	if !ok {
		return pe.WithField("chain", "unknown chain")
	}

	switch spec.Kind {
	case models.ChainKindEVM:
		if !common.IsHexAddress(p.Payer) {
			pe.WithField("payer", "not a valid hex address")
		}
		if p.Recipient != "" && !common.IsHexAddress(p.Recipient) {
			pe.WithField("recipient", "not a valid hex address")
		}
		if !evmTxIDPattern.MatchString(p.TxID) {
			pe.WithField("tx_id", "not a 32-byte hex transaction hash")
		}
	case models.ChainKindBase58:
		if raw, err := base58.Decode(p.Payer); err != nil || len(raw) != 32 {
			pe.WithField("payer", "not a valid base58 address")
		}
		if p.Recipient != "" {
			if raw, err := base58.Decode(p.Recipient); err != nil || len(raw) != 32 {
				pe.WithField("recipient", "not a valid base58 address")
			}
		}
		if raw, err := base58.Decode(p.TxID); err != nil || len(raw) != 64 {
			pe.WithField("tx_id", "not a valid base58 transaction signature")
		}
	}
	if len(pe.Fields) > 0 {
		return pe
	}

	// Challenge binding: the proof must match the policy it was issued for.
	if p.Amount != challenge.Policy.Amount {
		pe.WithField("amount", "does not match the challenged amount")
	}
	if p.Currency != challenge.Policy.Currency {
		pe.WithField("currency", "does not match the challenged currency")
	}
	if p.Recipient != "" && p.Recipient != challenge.Policy.Recipient {
		pe.WithField("recipient", "does not match the challenged recipient")
	}
	if !chainSupported(p.Chain, challenge.Policy.SupportedChains) {
		pe.WithField("chain", "not accepted by the resource policy")
	}
	if len(pe.Fields) > 0 {
		return pe
	}
	return nil
}

func chainSupported(chain string, supported []string) bool {
	if len(supported) == 0 {
		return true
	}
	for _, s := range supported {
		if s == chain {
			return true
		}
	}
	return false
}
