package chaintest

import (
	"testing"
	"time"

	"github.com/oxx-labs/oxx-backend/pkg/chain"
	"github.com/oxx-labs/oxx-backend/pkg/logging"
	"github.com/oxx-labs/oxx-backend/pkg/registry"
	"github.com/oxx-labs/oxx-backend/pkg/retry"
)

// TestChainID is the chain the embedded registry deploys to.
const TestChainID = 84532

// NewAdapter returns an adapter over client with fast polling, a short confirmation
// timeout and no read retries.
func NewAdapter(t testing.TB, client chain.EthClient) *chain.Adapter {
	t.Helper()
	cfg := chain.DefaultConfig().
		WithConfirmationTimeout(300 * time.Millisecond).
		WithPollInterval(5 * time.Millisecond).
		WithReadRetry(retry.NoRetryConfig())
	adapter, err := chain.NewAdapter(client, cfg, logging.NewNoOpLogger())
	if err != nil {
		t.Fatalf("chaintest: new adapter: %v", err)
	}
	return adapter
}

// Deployment returns the embedded registry's deployment for TestChainID.
func Deployment(t testing.TB) *registry.Deployment {
	t.Helper()
	reg, err := registry.Load()
	if err != nil {
		t.Fatalf("chaintest: load registry: %v", err)
	}
	return reg.Deployment(TestChainID)
}
