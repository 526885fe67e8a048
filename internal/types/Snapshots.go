/*

This file contains the per-cycle snapshot type persisted after every analysis
cycle, used for performance tracking and the ops dashboard.

*/

package types

import (
	"time"
)

// CycleSnapshot records everything one analysis cycle saw, decided, and did.
type CycleSnapshot struct {
	SnapshotID  int64     `json:"snapshot_id,omitempty"` // assigned by the database
	CycleNumber int       `json:"cycle_number"`
	Timestamp   time.Time `json:"timestamp"`
	RiskProfile string    `json:"risk_profile"`

	// Pre-decision state
	InitialTotalValueUSD float64    `json:"initial_total_value_usd"`
	InitialIdleUSD       float64    `json:"initial_idle_usd"`
	InitialPositions     []Position `json:"initial_positions"`

	// The decision
	Decision string         `json:"decision"` // engine reason, acted or not
	Plan     *RebalancePlan `json:"plan,omitempty"`

	// The outcome
	Executions         []TradeExecution `json:"executions,omitempty"`
	FinalTotalValueUSD float64          `json:"final_total_value_usd"`
	FinalIdleUSD       float64          `json:"final_idle_usd"`
	TotalCostUSD       float64          `json:"total_cost_usd"`
	TotalReceivedUSD   float64          `json:"total_received_usd"`
	ErrorCount         int              `json:"error_count"`
}
