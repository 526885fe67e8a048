package deposit

import (
	"context"
	"errors"

	"github.com/elys-network/ara/internal/types"
)

// ErrNotDepositable is returned when no adapter can reach a pool's deposit
// contract. It is opportunity-scoped: the rest of a plan keeps executing.
var ErrNotDepositable = errors.New("no on-chain deposit adapter for pool")

// Receipt identifies a submitted on-chain deposit.
type Receipt struct {
	TxHash      string `json:"tx_hash"`
	AdapterName string `json:"adapter_name"`
}

// Adapter defines the interface for protocol-specific on-chain deposits.
type Adapter interface {
	// Name identifies the adapter in receipts and logs.
	Name() string

	// IsDepositable reports whether this adapter can resolve a deposit
	// destination for the pool.
	IsDepositable(pool types.YieldOpportunity) bool

	// Deposit moves the USD-equivalent amount into the pool and returns the
	// transaction receipt.
	Deposit(ctx context.Context, pool types.YieldOpportunity, amountUSD float64) (*Receipt, error)
}

// Registry resolves the first adapter claiming a pool, in registration order.
type Registry struct {
	adapters []Adapter
}

// NewRegistry creates a registry over the given adapters.
func NewRegistry(adapters ...Adapter) *Registry {
	return &Registry{adapters: adapters}
}

// Resolve returns the first adapter that can deposit into the pool, or nil.
func (r *Registry) Resolve(pool types.YieldOpportunity) Adapter {
	if r == nil {
		return nil
	}
	for _, adapter := range r.adapters {
		if adapter.IsDepositable(pool) {
			return adapter
		}
	}
	return nil
}
