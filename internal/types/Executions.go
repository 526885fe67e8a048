/*

This file contains the types describing executor attempts against a plan and
the aggregated result of one plan run.

*/

package types

import (
	"time"
)

// ExecutionStatus tracks the lifecycle of one executor attempt.
type ExecutionStatus string

const (
	ExecutionPending    ExecutionStatus = "pending"
	ExecutionExecuting  ExecutionStatus = "executing"
	ExecutionConfirming ExecutionStatus = "confirming"
	ExecutionCompleted  ExecutionStatus = "completed"
	ExecutionFailed     ExecutionStatus = "failed"
)

// TradeExecution is one executor attempt against one RebalanceOpportunity.
// Execution history is append-only.
type TradeExecution struct {
	ID                string               `json:"id"`
	Opportunity       RebalanceOpportunity `json:"opportunity"`
	Status            ExecutionStatus      `json:"status"`
	ReceiptID         string               `json:"receipt_id,omitempty"`
	ActualCostUSD     float64              `json:"actual_cost_usd"`
	ActualReceivedUSD float64              `json:"actual_received_usd"`
	StartedAt         time.Time            `json:"started_at"`
	CompletedAt       time.Time            `json:"completed_at,omitempty"`
	Error             string               `json:"error,omitempty"`
}

// ExecutionResult aggregates one ExecutePlan run. Success is true only when
// every opportunity in the plan completed without error.
type ExecutionResult struct {
	Success           bool             `json:"success"`
	Executions        []TradeExecution `json:"executions"`
	TotalCostUSD      float64          `json:"total_cost_usd"`
	TotalReceivedUSD  float64          `json:"total_received_usd"`
	Errors            []string         `json:"errors"`
}
