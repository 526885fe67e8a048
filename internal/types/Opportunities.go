/*

This file contains the types for externally discovered yield opportunities and
the rebalancing plans the decision engine builds from them.

*/

package types

import (
	"time"
)

// YieldOpportunity is a candidate pool reported by a yield data provider.
// It is untrusted external input and must pass the risk-profile filter
// before the engine will consider it.
type YieldOpportunity struct {
	ChainID   string  `json:"chain_id"`
	Protocol  string  `json:"protocol"`
	PoolID    string  `json:"pool_id"`
	Symbol    string  `json:"symbol"`
	APY       float64 `json:"apy"`
	BaseAPY   float64 `json:"base_apy"`
	RewardAPY float64 `json:"reward_apy"`
	TvlUSD    float64 `json:"tvl_usd"`
	RiskScore float64 `json:"risk_score"` // 1-10, lower is safer
}

// ScanStats carries provider-side metadata about one scan.
type ScanStats struct {
	PoolsScanned int       `json:"pools_scanned"`
	Source       string    `json:"source"`
	FetchedAt    time.Time `json:"fetched_at"`
}

// ScanResult is the output of one provider scan. An empty pool list is a
// valid result meaning "nothing eligible right now", never an error.
type ScanResult struct {
	Pools []YieldOpportunity `json:"pools"`
	Stats ScanStats          `json:"stats"`
}

// ActionKind classifies how an opportunity is settled.
type ActionKind string

const (
	ActionDeposit   ActionKind = "deposit"   // deploy idle funds into a pool
	ActionRebalance ActionKind = "rebalance" // move between pools on the same chain
	ActionBridge    ActionKind = "bridge"    // move across chains through a bridge
)

// RebalanceOpportunity is a single engine-produced move. A nil Source means
// idle funds are being deployed. Immutable once created; the executor
// consumes it exactly once.
type RebalanceOpportunity struct {
	Source           *Position        `json:"source,omitempty"`
	Target           YieldOpportunity `json:"target"`
	AmountUSD        float64          `json:"amount_usd"`
	APYGain          float64          `json:"apy_gain"`
	EstimatedCostUSD float64          `json:"estimated_cost_usd"`
	DailyBenefitUSD  float64          `json:"daily_benefit_usd"`  // net of amortized cost
	AnnualBenefitUSD float64          `json:"annual_benefit_usd"`
	Action           ActionKind       `json:"action"`
	Reason           string           `json:"reason"`
	Priority         int              `json:"priority"` // 0-100
}

// MaxSimultaneousOpportunities caps how many opportunities one plan may hold.
const MaxSimultaneousOpportunities = 3

// RebalancePlan is an ordered, capped list of opportunities produced by one
// analysis cycle. It is executed or discarded, never mutated.
type RebalancePlan struct {
	ID                    string                 `json:"id"`
	Opportunities         []RebalanceOpportunity `json:"opportunities"`
	TotalDailyBenefitUSD  float64                `json:"total_daily_benefit_usd"`
	EstimatedExecutionSec int                    `json:"estimated_execution_sec"`
	RiskProfile           string                 `json:"risk_profile"`
	Approved              bool                   `json:"approved"`
	CreatedAt             time.Time              `json:"created_at"`
}
