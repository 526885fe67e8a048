package bridge

import (
	"context"
	"errors"
	"time"
)

// ErrNoRoute is a reported failure, not a transient error: retrying the same
// quote request will not conjure a route.
var ErrNoRoute = errors.New("no bridge route available")

// Quote is a bridge aggregator's offer for one cross-chain move.
type Quote struct {
	ToAmountUSD    float64       `json:"to_amount_usd"`     // expected amount delivered
	ToAmountMinUSD float64       `json:"to_amount_min_usd"` // worst case after slippage
	FeeUSD         float64       `json:"fee_usd"`
	BridgeName     string        `json:"bridge_name"`
	EstimatedGas   float64       `json:"estimated_gas_usd"`
	EstimatedTime  time.Duration `json:"estimated_time"`
}

// Client defines the interface to a bridge aggregator.
type Client interface {
	// GetQuote asks the aggregator for the best route. Returns ErrNoRoute
	// when no bridge can serve the move.
	GetQuote(ctx context.Context, fromChain, toChain, fromToken, toToken string, amountUSD float64, userAddress string) (*Quote, error)
}
