// ./internal/state/snapshot_store.go
package state

import (
	"encoding/json"
	"fmt"

	"github.com/elys-network/ara/internal/types"
	"github.com/rs/zerolog/log"
)

// SnapshotStore persists cycle snapshots to Postgres. It satisfies the
// orchestrator's SnapshotSink and also records every execution in the plan
// to the append-only execution history.
type SnapshotStore struct{}

// NewSnapshotStore returns a store over the global database pool.
func NewSnapshotStore() *SnapshotStore {
	return &SnapshotStore{}
}

// SaveCycleSnapshot saves a complete cycle snapshot to the database.
func (s *SnapshotStore) SaveCycleSnapshot(snapshot types.CycleSnapshot) error {
	_, err := SaveCycleSnapshot(snapshot)
	if err != nil {
		return err
	}
	planID := ""
	if snapshot.Plan != nil {
		planID = snapshot.Plan.ID
	}
	for _, exec := range snapshot.Executions {
		if err := SaveTradeExecution(planID, exec); err != nil {
			log.Error().Err(err).Str("execution_id", exec.ID).Msg("Failed to persist execution from snapshot")
		}
	}
	if _, err := IncrementCycleNumber(); err != nil {
		log.Error().Err(err).Msg("Failed to advance persistent cycle counter")
	}
	return nil
}

// SaveCycleSnapshot saves a complete cycle snapshot and returns its row ID.
func SaveCycleSnapshot(snapshot types.CycleSnapshot) (int64, error) {
	if DB == nil {
		return 0, fmt.Errorf("database not initialized")
	}

	// Marshal all JSONB fields
	initialPositionsJSON, err := json.Marshal(snapshot.InitialPositions)
	if err != nil {
		return 0, fmt.Errorf("failed to marshal initial_positions: %w", err)
	}
	planJSON, err := json.Marshal(snapshot.Plan)
	if err != nil {
		return 0, fmt.Errorf("failed to marshal plan: %w", err)
	}
	executionsJSON, err := json.Marshal(snapshot.Executions)
	if err != nil {
		return 0, fmt.Errorf("failed to marshal executions: %w", err)
	}

	query := `
		INSERT INTO cycle_snapshots (
			cycle_number, snapshot_timestamp, risk_profile,
			initial_total_value_usd, initial_idle_usd, initial_positions,
			decision, plan,
			executions, final_total_value_usd, final_idle_usd,
			total_cost_usd, total_received_usd, error_count
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		RETURNING snapshot_id;
	`

	var snapshotID int64
	err = DB.QueryRow(
		query,
		snapshot.CycleNumber, snapshot.Timestamp, snapshot.RiskProfile,
		snapshot.InitialTotalValueUSD, snapshot.InitialIdleUSD, initialPositionsJSON,
		snapshot.Decision, planJSON,
		executionsJSON, snapshot.FinalTotalValueUSD, snapshot.FinalIdleUSD,
		snapshot.TotalCostUSD, snapshot.TotalReceivedUSD, snapshot.ErrorCount,
	).Scan(&snapshotID)

	if err != nil {
		return 0, fmt.Errorf("failed to save cycle snapshot: %w", err)
	}

	log.Info().
		Int64("snapshot_id", snapshotID).
		Int("cycle_number", snapshot.CycleNumber).
		Float64("final_total_value", snapshot.FinalTotalValueUSD).
		Msg("Cycle snapshot saved to database")

	return snapshotID, nil
}

// GetRecentSnapshots returns the newest snapshots first, up to the limit.
func GetRecentSnapshots(limit int) ([]types.CycleSnapshot, error) {
	if DB == nil {
		return nil, fmt.Errorf("database not initialized")
	}
	if limit <= 0 {
		limit = 20
	}

	query := `
		SELECT snapshot_id, cycle_number, snapshot_timestamp, risk_profile,
		       initial_total_value_usd, initial_idle_usd, initial_positions,
		       decision, plan, executions,
		       final_total_value_usd, final_idle_usd,
		       total_cost_usd, total_received_usd, error_count
		FROM cycle_snapshots
		ORDER BY snapshot_timestamp DESC
		LIMIT $1;
	`
	rows, err := DB.Query(query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query cycle snapshots: %w", err)
	}
	defer rows.Close()

	var snapshots []types.CycleSnapshot
	for rows.Next() {
		var (
			snap                 types.CycleSnapshot
			initialPositionsJSON []byte
			planJSON             []byte
			executionsJSON       []byte
		)
		err := rows.Scan(
			&snap.SnapshotID, &snap.CycleNumber, &snap.Timestamp, &snap.RiskProfile,
			&snap.InitialTotalValueUSD, &snap.InitialIdleUSD, &initialPositionsJSON,
			&snap.Decision, &planJSON, &executionsJSON,
			&snap.FinalTotalValueUSD, &snap.FinalIdleUSD,
			&snap.TotalCostUSD, &snap.TotalReceivedUSD, &snap.ErrorCount,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan snapshot row: %w", err)
		}
		if len(initialPositionsJSON) > 0 {
			if err := json.Unmarshal(initialPositionsJSON, &snap.InitialPositions); err != nil {
				return nil, fmt.Errorf("failed to unmarshal initial_positions: %w", err)
			}
		}
		if len(planJSON) > 0 && string(planJSON) != "null" {
			snap.Plan = &types.RebalancePlan{}
			if err := json.Unmarshal(planJSON, snap.Plan); err != nil {
				return nil, fmt.Errorf("failed to unmarshal plan: %w", err)
			}
		}
		if len(executionsJSON) > 0 && string(executionsJSON) != "null" {
			if err := json.Unmarshal(executionsJSON, &snap.Executions); err != nil {
				return nil, fmt.Errorf("failed to unmarshal executions: %w", err)
			}
		}
		snapshots = append(snapshots, snap)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("snapshot row iteration failed: %w", err)
	}
	return snapshots, nil
}
