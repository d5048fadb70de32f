package settlement

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/dotrep/payment-gateway/internal/interfaces"
	"github.com/dotrep/payment-gateway/internal/models"
	"github.com/dotrep/payment-gateway/internal/retry"
	"github.com/dotrep/payment-gateway/internal/telemetry"
)

// Verifier decides, per proof, how settlement is confirmed: through a
// delegated provider when the proof carries a provider confirmation
// signature, otherwise by direct ledger confirmation, with an optional
// format-only degraded fallback.
type Verifier struct {
	providers          *ProviderRegistry
	ledger             interfaces.LedgerClient
	confirmationBlocks int64
	formatOnlyFallback bool
	retryOpts          retry.Options
}

func NewVerifier(providers *ProviderRegistry, ledger interfaces.LedgerClient, confirmationBlocks int64, formatOnlyFallback bool, retryOpts retry.Options) *Verifier {
	return &Verifier{
		providers:          providers,
		ledger:             ledger,
		confirmationBlocks: confirmationBlocks,
		formatOnlyFallback: formatOnlyFallback,
		retryOpts:          retryOpts,
	}
}

// Verify returns the settlement result for a structurally valid proof. A
// failed or degraded result is never upgraded to verified.
func (v *Verifier) Verify(ctx context.Context, proof *models.PaymentProof) (*models.SettlementResult, error) {
	if proof.ProviderSig != "" {
		return v.verifyViaProvider(ctx, proof)
	}
	return v.verifyViaLedger(ctx, proof)
}

func (v *Verifier) verifyViaProvider(ctx context.Context, proof *models.PaymentProof) (*models.SettlementResult, error) {
	provider, ok := v.providers.Get(proof.Provider)
	if !ok {
		provider, ok = v.providers.SelectProvider(proof.Chain)
	}
	if !ok {
		// A confirmation signature from an unknown provider cannot be
		// trusted; fall through to ledger confirmation.
		telemetry.Logger.Warn("No settlement provider for chain, falling back to ledger",
			zap.String("chain", proof.Chain),
			zap.String("tx_id", proof.TxID),
		)
		return v.verifyViaLedger(ctx, proof)
	}

	verification, err := provider.Verify(ctx, proof.TxID, proof.Chain)
	if err != nil {
		return &models.SettlementResult{
			Verified: false,
			Method:   models.SettlementMethodProvider,
			Error:    err.Error(),
		}, fmt.Errorf("provider %s verify: %w", provider.Name(), err)
	}

	return &models.SettlementResult{
		Verified:      verification.Verified,
		Method:        models.SettlementMethodProvider,
		Confirmations: verification.Confirmations,
		Error:         verification.Reason,
	}, nil
}

func (v *Verifier) verifyViaLedger(ctx context.Context, proof *models.PaymentProof) (*models.SettlementResult, error) {
	opts := v.retryOpts
	if opts.Retryable == nil {
		// A ledger that answers "no such transaction" has answered; only
		// outages are worth retrying.
		opts.Retryable = func(err error) bool {
			return !errors.Is(err, interfaces.ErrTxNotFound)
		}
	}

	var confirmations int64
	err := retry.Do(ctx, func(ctx context.Context) error {
		var innerErr error
		confirmations, innerErr = v.ledger.Confirmations(ctx, proof.Chain, proof.TxID)
		return innerErr
	}, opts)

	if errors.Is(err, interfaces.ErrTxNotFound) {
		return &models.SettlementResult{
			Verified: false,
			Method:   models.SettlementMethodLedger,
			Error:    err.Error(),
		}, nil
	}
	if err != nil {
		if v.formatOnlyFallback {
			telemetry.Logger.Warn("Ledger unreachable, accepting on format only",
				zap.String("chain", proof.Chain),
				zap.String("tx_id", proof.TxID),
				zap.Error(err),
			)
			return &models.SettlementResult{
				Verified: true,
				Method:   models.SettlementMethodPending,
				Degraded: true,
				Error:    err.Error(),
			}, nil
		}
		return &models.SettlementResult{
			Verified: false,
			Method:   models.SettlementMethodLedger,
			Error:    err.Error(),
		}, fmt.Errorf("ledger confirmation: %w", err)
	}

	if confirmations < v.confirmationBlocks {
		return &models.SettlementResult{
			Verified:      false,
			Method:        models.SettlementMethodLedger,
			Confirmations: confirmations,
			Error:         fmt.Sprintf("%d of %d required confirmations", confirmations, v.confirmationBlocks),
		}, nil
	}

	return &models.SettlementResult{
		Verified:      true,
		Method:        models.SettlementMethodLedger,
		Confirmations: confirmations,
	}, nil
}
