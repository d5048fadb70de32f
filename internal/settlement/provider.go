// Package settlement confirms that a submitted payment proof corresponds to
// a settled transaction, either through a delegated settlement provider or
// by direct ledger confirmation.
package settlement

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/dotrep/payment-gateway/internal/interfaces"
	"github.com/dotrep/payment-gateway/internal/models"
	"github.com/dotrep/payment-gateway/internal/retry"
)

// ProviderRegistry holds the configured settlement providers.
type ProviderRegistry struct {
	mu        sync.RWMutex
	providers map[string]interfaces.SettlementProvider
}

func NewProviderRegistry() *ProviderRegistry {
	return &ProviderRegistry{providers: make(map[string]interfaces.SettlementProvider)}
}

func (r *ProviderRegistry) Register(p interfaces.SettlementProvider) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.providers[p.Name()] = p
}

// Get returns a provider by name.
func (r *ProviderRegistry) Get(name string) (interfaces.SettlementProvider, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.providers[name]
	return p, ok
}

// SelectProvider returns the first provider declaring support for the chain.
func (r *ProviderRegistry) SelectProvider(chain string) (interfaces.SettlementProvider, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, p := range r.providers {
		for _, c := range p.SupportedChains() {
			if c == chain {
				return p, true
			}
		}
	}
	return nil, false
}

// FacilitatorProvider talks to an x402 facilitator service over HTTP.
type FacilitatorProvider struct {
	name      string
	baseURL   string
	chains    []string
	client    *http.Client
	retryOpts retry.Options
}

func NewFacilitatorProvider(name, baseURL string, chains []string, timeout time.Duration, retryOpts retry.Options) *FacilitatorProvider {
	if retryOpts.Retryable == nil {
		retryOpts.Retryable = retry.HTTPRetryable(http.StatusRequestTimeout, http.StatusTooManyRequests)
	}
	return &FacilitatorProvider{
		name:      name,
		baseURL:   baseURL,
		chains:    chains,
		client:    &http.Client{Timeout: timeout},
		retryOpts: retryOpts,
	}
}

func (f *FacilitatorProvider) Name() string              { return f.name }
func (f *FacilitatorProvider) SupportedChains() []string { return f.chains }

// Pay asks the facilitator to execute a payment for the request.
func (f *FacilitatorProvider) Pay(ctx context.Context, request *models.PaymentRequest, payer string) (*models.ProviderReceipt, error) {
	body := map[string]any{
		"payment_request": request,
		"payer":           payer,
	}
	var receipt models.ProviderReceipt
	err := retry.Do(ctx, func(ctx context.Context) error {
		return f.post(ctx, "/pay", body, &receipt)
	}, f.retryOpts)
	if err != nil {
		return nil, err
	}
	return &receipt, nil
}

// Verify asks the facilitator whether the transaction settled.
func (f *FacilitatorProvider) Verify(ctx context.Context, txID, chain string) (*models.ProviderVerification, error) {
	body := map[string]any{
		"tx_id": txID,
		"chain": chain,
	}
	var verification models.ProviderVerification
	err := retry.Do(ctx, func(ctx context.Context) error {
		return f.post(ctx, "/verify", body, &verification)
	}, f.retryOpts)
	if err != nil {
		return nil, err
	}
	return &verification, nil
}

func (f *FacilitatorProvider) post(ctx context.Context, path string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, f.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := f.client.Do(req)
	if err != nil {
		return fmt.Errorf("facilitator %s: %w", f.name, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &retry.HTTPError{Status: resp.StatusCode, Body: string(raw)}
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
