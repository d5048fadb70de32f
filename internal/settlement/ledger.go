package settlement

import (
	"context"
	"errors"
	"fmt"
	"sync"

	ethereum "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/dotrep/payment-gateway/internal/interfaces"
)

// EthLedger answers confirmation queries against EVM chain RPC endpoints.
type EthLedger struct {
	mu      sync.Mutex
	rpcURLs map[string]string
	clients map[string]*ethclient.Client
}

func NewEthLedger(rpcURLs map[string]string) *EthLedger {
	return &EthLedger{
		rpcURLs: rpcURLs,
		clients: make(map[string]*ethclient.Client),
	}
}

func (l *EthLedger) clientFor(chain string) (*ethclient.Client, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if client, ok := l.clients[chain]; ok {
		return client, nil
	}
	url := l.rpcURLs[chain]
	if url == "" {
		return nil, fmt.Errorf("no ledger RPC endpoint configured for chain %s", chain)
	}
	client, err := ethclient.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("dial ledger RPC for %s: %w", chain, err)
	}
	l.clients[chain] = client
	return client, nil
}

// Confirmations returns head - txBlock + 1 for a mined transaction.
func (l *EthLedger) Confirmations(ctx context.Context, chain, txID string) (int64, error) {
	client, err := l.clientFor(chain)
	if err != nil {
		return 0, err
	}

	receipt, err := client.TransactionReceipt(ctx, common.HexToHash(txID))
	if errors.Is(err, ethereum.NotFound) {
		return 0, fmt.Errorf("transaction %s: %w", txID, interfaces.ErrTxNotFound)
	}
	if err != nil {
		return 0, fmt.Errorf("transaction receipt for %s: %w", txID, err)
	}

	head, err := client.BlockNumber(ctx)
	if err != nil {
		return 0, fmt.Errorf("head block number: %w", err)
	}

	txBlock := receipt.BlockNumber.Uint64()
	if head < txBlock {
		return 0, nil
	}
	return int64(head-txBlock) + 1, nil
}
