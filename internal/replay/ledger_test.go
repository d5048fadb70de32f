package replay

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dotrep/payment-gateway/internal/store"
)

func TestLedger_FirstConsumeWins(t *testing.T) {
	l := NewLedger(store.NewMemoryReplayStore())
	ctx := context.Background()

	accepted, err := l.TryConsume(ctx, "0xabc", "payer", "base", "/api/premium")
	require.NoError(t, err)
	assert.True(t, accepted)

	// Same txID again, even from a different payer or resource.
	accepted, err = l.TryConsume(ctx, "0xabc", "other-payer", "base", "/api/other")
	require.NoError(t, err)
	assert.False(t, accepted)
}

func TestLedger_DistinctTxIDs(t *testing.T) {
	l := NewLedger(store.NewMemoryReplayStore())
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		accepted, err := l.TryConsume(ctx, fmt.Sprintf("0x%064d", i), "payer", "base", "/r")
		require.NoError(t, err)
		assert.True(t, accepted)
	}
}

func TestLedger_ConcurrentSameTxID(t *testing.T) {
	l := NewLedger(store.NewMemoryReplayStore())
	ctx := context.Background()

	const workers = 64
	var wg sync.WaitGroup
	var winners int64
	wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer wg.Done()
			accepted, err := l.TryConsume(ctx, "0xdef", "payer", "base", "/r")
			assert.NoError(t, err)
			if accepted {
				atomic.AddInt64(&winners, 1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(1), winners)
}
