// ./internal/state/execution_store.go
package state

import (
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/elys-network/ara/internal/types"
	"github.com/rs/zerolog/log"
)

// SaveTradeExecution appends one execution record. Execution history is
// append-only; rows are never updated or deleted.
func SaveTradeExecution(planID string, exec types.TradeExecution) error {
	if DB == nil {
		return fmt.Errorf("database not initialized")
	}

	opportunityJSON, err := json.Marshal(exec.Opportunity)
	if err != nil {
		return fmt.Errorf("failed to marshal opportunity: %w", err)
	}

	var completedAt any
	if !exec.CompletedAt.IsZero() {
		completedAt = exec.CompletedAt
	}

	query := `
		INSERT INTO trade_executions (
			execution_id, plan_id, action, status, receipt_id,
			amount_usd, actual_cost_usd, actual_received_usd,
			opportunity, error, started_at, completed_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12);
	`
	_, err = DB.Exec(query,
		exec.ID, planID, string(exec.Opportunity.Action), string(exec.Status), exec.ReceiptID,
		exec.Opportunity.AmountUSD, exec.ActualCostUSD, exec.ActualReceivedUSD,
		opportunityJSON, exec.Error, exec.StartedAt, completedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save trade execution %s: %w", exec.ID, err)
	}

	log.Debug().
		Str("execution_id", exec.ID).
		Str("plan_id", planID).
		Str("status", string(exec.Status)).
		Msg("Trade execution saved to database")
	return nil
}

// GetRecentExecutions returns the newest executions first, up to the limit.
func GetRecentExecutions(limit int) ([]types.TradeExecution, error) {
	if DB == nil {
		return nil, fmt.Errorf("database not initialized")
	}
	if limit <= 0 {
		limit = 50
	}

	query := `
		SELECT execution_id, status, receipt_id, actual_cost_usd, actual_received_usd,
		       opportunity, error, started_at, completed_at
		FROM trade_executions
		ORDER BY started_at DESC
		LIMIT $1;
	`
	rows, err := DB.Query(query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query trade executions: %w", err)
	}
	defer rows.Close()

	var executions []types.TradeExecution
	for rows.Next() {
		var (
			exec            types.TradeExecution
			status          string
			receiptID       sql.NullString
			errText         sql.NullString
			completedAt     sql.NullTime
			opportunityJSON []byte
		)
		err := rows.Scan(
			&exec.ID, &status, &receiptID, &exec.ActualCostUSD, &exec.ActualReceivedUSD,
			&opportunityJSON, &errText, &exec.StartedAt, &completedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan execution row: %w", err)
		}
		exec.Status = types.ExecutionStatus(status)
		exec.ReceiptID = receiptID.String
		exec.Error = errText.String
		if completedAt.Valid {
			exec.CompletedAt = completedAt.Time
		}
		if len(opportunityJSON) > 0 {
			if err := json.Unmarshal(opportunityJSON, &exec.Opportunity); err != nil {
				return nil, fmt.Errorf("failed to unmarshal opportunity for %s: %w", exec.ID, err)
			}
		}
		executions = append(executions, exec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("execution row iteration failed: %w", err)
	}
	return executions, nil
}
