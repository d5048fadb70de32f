package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/dotrep/payment-gateway/internal/challenge"
	"github.com/dotrep/payment-gateway/internal/interfaces"
	"github.com/dotrep/payment-gateway/internal/models"
	"github.com/dotrep/payment-gateway/internal/proof"
	"github.com/dotrep/payment-gateway/internal/protocolerr"
	"github.com/dotrep/payment-gateway/internal/replay"
	"github.com/dotrep/payment-gateway/internal/reputation"
	"github.com/dotrep/payment-gateway/internal/settlement"
	"github.com/dotrep/payment-gateway/internal/telemetry"
)

// State is a protocol state of one inbound request.
type State string

const (
	StateAwaitingProof        State = "AWAITING_PROOF"
	StateValidating           State = "VALIDATING"
	StateVerifyingSettlement  State = "VERIFYING_SETTLEMENT"
	StateCheckingReplay       State = "CHECKING_REPLAY"
	StateEvaluatingReputation State = "EVALUATING_REPUTATION"
	StateGranted              State = "GRANTED"
	StateDenied               State = "DENIED"
)

// Outcome is the terminal result of running the state machine.
type Outcome struct {
	State      State
	Err        *protocolerr.Error
	Request    *models.PaymentRequest // fresh challenge, nil on replay hits
	Evidence   *models.PaymentEvidence
	Settlement *models.SettlementResult
	Verdict    *models.GateVerdict
}

// Observer is notified after the state machine reaches a terminal state.
// Observer panics are isolated and cannot affect protocol correctness.
type Observer interface {
	OnOutcome(ctx context.Context, proof *models.PaymentProof, outcome *Outcome)
}

// Orchestrator composes the protocol components per inbound request.
type Orchestrator struct {
	challenges *challenge.Registry
	validator  *proof.Validator
	verifier   *settlement.Verifier
	replays    *replay.Ledger
	gate       *reputation.Gate
	publisher  interfaces.EvidencePublisher
	transforms []models.PolicyTransform
	observers  []Observer
}

func NewOrchestrator(
	challenges *challenge.Registry,
	validator *proof.Validator,
	verifier *settlement.Verifier,
	replays *replay.Ledger,
	gate *reputation.Gate,
	publisher interfaces.EvidencePublisher,
) *Orchestrator {
	return &Orchestrator{
		challenges: challenges,
		validator:  validator,
		verifier:   verifier,
		replays:    replays,
		gate:       gate,
		publisher:  publisher,
	}
}

// AddPolicyTransform registers a pure per-request policy override, applied
// to a copy of the policy before the state machine runs.
func (o *Orchestrator) AddPolicyTransform(t models.PolicyTransform) {
	o.transforms = append(o.transforms, t)
}

// AddObserver registers a post-terminal-state observer.
func (o *Orchestrator) AddObserver(obs Observer) {
	o.observers = append(o.observers, obs)
}

func (o *Orchestrator) applyTransforms(policy models.PaymentPolicy) models.PaymentPolicy {
	for _, t := range o.transforms {
		policy = t(policy)
	}
	return policy
}

// RequirePayment handles the no-proof path: it issues a challenge for the
// (transformed) policy and renders the payment request.
func (o *Orchestrator) RequirePayment(ctx context.Context, policy models.PaymentPolicy) (*models.PaymentRequest, error) {
	policy = o.applyTransforms(policy)
	issued, err := o.challenges.Issue(ctx, policy)
	if err != nil {
		return nil, err
	}
	telemetry.ChallengesIssued.Inc()
	return models.NewPaymentRequest(issued), nil
}

// ProcessProof runs the state machine for a submitted proof and returns the
// terminal outcome. Denials carry a typed error plus a freshly issued
// challenge, except replay hits, which are terminal for that txId.
func (o *Orchestrator) ProcessProof(ctx context.Context, p *models.PaymentProof, policy models.PaymentPolicy) *Outcome {
	policy = o.applyTransforms(policy)
	state := StateAwaitingProof

	outcome := o.run(ctx, p, policy, &state)
	o.notify(ctx, p, outcome)
	return outcome
}

func (o *Orchestrator) run(ctx context.Context, p *models.PaymentProof, policy models.PaymentPolicy, state *State) *Outcome {
	o.transition(state, StateValidating, p.TxID)

	consumed, err := o.challenges.Consume(ctx, p.Challenge)
	if err != nil {
		return o.deny(ctx, state, policy, toProtocolError(err, protocolerr.CodeChallengeExpired), nil)
	}
	// The challenge's stored policy snapshot governs validation from here;
	// the route policy only seeds re-issued challenges.
	policy = consumed.Policy

	if err := o.validator.Validate(p, consumed); err != nil {
		return o.deny(ctx, state, policy, toProtocolError(err, protocolerr.CodeMalformedProof), nil)
	}

	o.transition(state, StateVerifyingSettlement, p.TxID)
	settled, verr := o.verifier.Verify(ctx, p)
	if !settled.Verified {
		if verr != nil {
			pe := protocolerr.UpstreamUnavailable("settlement confirmation unavailable").WithCause(verr)
			return o.deny(ctx, state, policy, pe, settled)
		}
		pe := protocolerr.SettlementUnverified("payment is not settled: " + settled.Error)
		return o.deny(ctx, state, policy, pe, settled)
	}

	o.transition(state, StateCheckingReplay, p.TxID)
	accepted, err := o.replays.TryConsume(ctx, p.TxID, p.Payer, p.Chain, policy.Resource)
	if err != nil {
		pe := protocolerr.UpstreamUnavailable("replay ledger unavailable").WithCause(err)
		return o.deny(ctx, state, policy, pe, settled)
	}
	if !accepted {
		// Terminal conflict: the original settlement stands, no new
		// challenge is issued for this txId.
		telemetry.ReplaysDetected.Inc()
		pe := protocolerr.ReplayDetected(p.TxID)
		*state = StateDenied
		telemetry.PaymentsDenied.WithLabelValues(string(pe.Code)).Inc()
		return &Outcome{State: StateDenied, Err: pe, Settlement: settled}
	}

	o.transition(state, StateEvaluatingReputation, p.TxID)
	verdict, err := o.gate.Evaluate(ctx, p.Payer, policy.Recipient, reputation.Requirements{
		MinScore:                policy.MinReputationScore,
		MinPaymentCount:         policy.MinPaymentCount,
		MinTotalValue:           policy.MinTotalValue,
		RequireVerifiedIdentity: policy.RequireVerifiedIdentity,
		BlockSybil:              policy.BlockSybil,
		MinRecipientTrust:       policy.MinRecipientTrust,
	})
	if err != nil {
		pe := protocolerr.UpstreamUnavailable("reputation evaluation failed").WithCause(err)
		return o.deny(ctx, state, policy, pe, settled)
	}
	if !verdict.Allowed {
		pe := protocolerr.ReputationDenied(verdict.Reason)
		pe.Details = verdict
		out := o.deny(ctx, state, policy, pe, settled)
		out.Verdict = verdict
		return out
	}

	o.transition(state, StateGranted, p.TxID)
	ev := o.buildEvidence(ctx, p, policy, settled)
	telemetry.PaymentsGranted.Inc()
	return &Outcome{State: StateGranted, Evidence: ev, Settlement: settled, Verdict: verdict}
}

func (o *Orchestrator) buildEvidence(ctx context.Context, p *models.PaymentProof, policy models.PaymentPolicy, settled *models.SettlementResult) *models.PaymentEvidence {
	ev := &models.PaymentEvidence{
		ID:        uuid.NewString(),
		TxID:      p.TxID,
		Chain:     p.Chain,
		Payer:     p.Payer,
		Recipient: policy.Recipient,
		Amount:    p.Amount,
		Currency:  p.Currency,
		Resource:  policy.Resource,
		Verified:  settled.Verified,
		Degraded:  settled.Degraded,
		IssuedAt:  time.Now(),
	}
	// Publication is idempotent on txId: the replay gate guarantees this is
	// the only request that reached here for this transaction.
	if err := o.publisher.Publish(ctx, ev); err != nil {
		telemetry.Logger.Warn("Evidence publication failed",
			zap.String("tx_id", ev.TxID), zap.Error(err))
		ev.Published = false
		return ev
	}
	ev.Published = true
	telemetry.EvidencePublished.Inc()
	return ev
}

// deny reaches the Denied state, re-issuing a fresh challenge bound to the
// same policy so the caller can retry.
func (o *Orchestrator) deny(ctx context.Context, state *State, policy models.PaymentPolicy, pe *protocolerr.Error, settled *models.SettlementResult) *Outcome {
	*state = StateDenied
	telemetry.PaymentsDenied.WithLabelValues(string(pe.Code)).Inc()

	outcome := &Outcome{State: StateDenied, Err: pe, Settlement: settled}
	issued, err := o.challenges.Issue(ctx, policy)
	if err != nil {
		telemetry.Logger.Error("Failed to re-issue challenge on denial", zap.Error(err))
		return outcome
	}
	telemetry.ChallengesIssued.Inc()
	outcome.Request = models.NewPaymentRequest(issued)
	return outcome
}

func (o *Orchestrator) transition(state *State, to State, txID string) {
	from := *state
	*state = to
	telemetry.Logger.Debug("Protocol state transition",
		zap.String("tx_id", txID),
		zap.String("from_state", string(from)),
		zap.String("to_state", string(to)),
	)
}

// notify invokes observers after the terminal state, recovering panics so a
// faulty observer cannot affect the protocol outcome.
func (o *Orchestrator) notify(ctx context.Context, p *models.PaymentProof, outcome *Outcome) {
	for _, obs := range o.observers {
		func() {
			defer func() {
				if r := recover(); r != nil {
					telemetry.Logger.Error("Observer panicked", zap.Any("panic", r))
				}
			}()
			obs.OnOutcome(ctx, p, outcome)
		}()
	}
}

// toProtocolError passes through typed errors and wraps everything else
// under the fallback code.
func toProtocolError(err error, fallback protocolerr.Code) *protocolerr.Error {
	if pe, ok := protocolerr.As(err); ok {
		return pe
	}
	switch fallback {
	case protocolerr.CodeChallengeExpired:
		return protocolerr.ChallengeExpired(err.Error())
	default:
		return protocolerr.MalformedProof(err.Error())
	}
}
