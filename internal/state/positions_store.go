// ./internal/state/positions_store.go
package state

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/elys-network/ara/internal/types"
	"github.com/rs/zerolog/log"
)

// PositionStore is the Postgres-backed portfolio store. It satisfies
// portfolio.Store and survives agent restarts, unlike the in-memory store.
type PositionStore struct{}

// NewPositionStore returns a store over the global database pool.
func NewPositionStore() *PositionStore {
	return &PositionStore{}
}

// GetCurrentPortfolio loads all open positions, ordered by ID, and derives
// the portfolio snapshot.
func (s *PositionStore) GetCurrentPortfolio() (types.Portfolio, error) {
	if DB == nil {
		return types.Portfolio{}, fmt.Errorf("database not initialized")
	}

	query := `
		SELECT position_id, chain_id, protocol, pool_id, symbol,
		       balance_usd, entry_apy, current_apy, unrealized_pnl, is_idle,
		       entered_at, updated_at
		FROM positions
		ORDER BY position_id;
	`
	rows, err := DB.Query(query)
	if err != nil {
		return types.Portfolio{}, fmt.Errorf("failed to query positions: %w", err)
	}
	defer rows.Close()

	var positions []types.Position
	for rows.Next() {
		var pos types.Position
		err := rows.Scan(
			&pos.ID, &pos.ChainID, &pos.Protocol, &pos.PoolID, &pos.Symbol,
			&pos.BalanceUSD, &pos.EntryAPY, &pos.CurrentAPY, &pos.UnrealizedPnL, &pos.Idle,
			&pos.EnteredAt, &pos.UpdatedAt,
		)
		if err != nil {
			return types.Portfolio{}, fmt.Errorf("failed to scan position row: %w", err)
		}
		positions = append(positions, pos)
	}
	if err := rows.Err(); err != nil {
		return types.Portfolio{}, fmt.Errorf("position row iteration failed: %w", err)
	}

	return types.NewPortfolio(positions), nil
}

// AddPosition opens a new position or merges the balance into an existing one.
func (s *PositionStore) AddPosition(pos types.Position) error {
	if DB == nil {
		return fmt.Errorf("database not initialized")
	}
	if pos.BalanceUSD < 0 {
		return fmt.Errorf("position balance cannot be negative: %f", pos.BalanceUSD)
	}
	if pos.ID == "" {
		pos.ID = types.PositionID(pos.ChainID, pos.Protocol, pos.PoolID)
	}

	query := `
		INSERT INTO positions (
			position_id, chain_id, protocol, pool_id, symbol,
			balance_usd, entry_apy, current_apy, unrealized_pnl, is_idle,
			entered_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (position_id) DO UPDATE SET
			balance_usd = positions.balance_usd + EXCLUDED.balance_usd,
			current_apy = EXCLUDED.current_apy,
			updated_at  = EXCLUDED.updated_at;
	`
	_, err := DB.Exec(query,
		pos.ID, pos.ChainID, pos.Protocol, pos.PoolID, pos.Symbol,
		pos.BalanceUSD, pos.EntryAPY, pos.CurrentAPY, pos.UnrealizedPnL, pos.Idle,
		pos.EnteredAt, pos.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert position %s: %w", pos.ID, err)
	}

	log.Debug().Str("position", pos.ID).Float64("balance", pos.BalanceUSD).Msg("Position upserted")
	return nil
}

// RecordTrade decrements a source position; a balance at or below zero
// removes the row.
func (s *PositionStore) RecordTrade(positionID string, spentUSD float64, at time.Time) error {
	if DB == nil {
		return fmt.Errorf("database not initialized")
	}
	if spentUSD < 0 {
		return fmt.Errorf("spent amount cannot be negative: %f", spentUSD)
	}

	tx, err := DB.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var balance float64
	err = tx.QueryRow(`SELECT balance_usd FROM positions WHERE position_id = $1 FOR UPDATE;`, positionID).Scan(&balance)
	if err == sql.ErrNoRows {
		return fmt.Errorf("position not found: %s", positionID)
	}
	if err != nil {
		return fmt.Errorf("failed to read position %s: %w", positionID, err)
	}

	remaining := balance - spentUSD
	if remaining <= 0 {
		if _, err := tx.Exec(`DELETE FROM positions WHERE position_id = $1;`, positionID); err != nil {
			return fmt.Errorf("failed to delete spent position %s: %w", positionID, err)
		}
		log.Debug().Str("position", positionID).Msg("Position fully spent, removed")
	} else {
		_, err := tx.Exec(
			`UPDATE positions SET balance_usd = $1, updated_at = $2 WHERE position_id = $3;`,
			remaining, at, positionID,
		)
		if err != nil {
			return fmt.Errorf("failed to decrement position %s: %w", positionID, err)
		}
	}

	return tx.Commit()
}

// AccrueYield advances unrealized P&L on every non-idle position from its
// current APY and the time elapsed since its last update.
func (s *PositionStore) AccrueYield(now time.Time) error {
	if DB == nil {
		return fmt.Errorf("database not initialized")
	}

	query := `
		UPDATE positions
		SET unrealized_pnl = unrealized_pnl
			+ balance_usd * current_apy / 100
			* EXTRACT(EPOCH FROM ($1::timestamptz - updated_at)) / 86400 / 365,
		    updated_at = $1
		WHERE is_idle = FALSE AND updated_at < $1;
	`
	if _, err := DB.Exec(query, now); err != nil {
		return fmt.Errorf("failed to accrue yield: %w", err)
	}
	return nil
}
