/*

This file contains the types for positions, which carry all the state needed
for exposure accounting and rebalancing decisions.

*/

package types

import (
	"time"
)

// Position is a single open allocation of capital: a balance sitting in one
// pool on one chain. Idle positions represent cash parked on the settlement
// network; they earn nothing and are excluded from exposure accounting.
type Position struct {
	ID            string    `json:"id"` // chain:protocol:pool
	ChainID       string    `json:"chain_id"`
	Protocol      string    `json:"protocol"`
	PoolID        string    `json:"pool_id"`
	Symbol        string    `json:"symbol"`
	BalanceUSD    float64   `json:"balance_usd"`
	EntryAPY      float64   `json:"entry_apy"`
	CurrentAPY    float64   `json:"current_apy"`
	EnteredAt     time.Time `json:"entered_at"`
	UpdatedAt     time.Time `json:"updated_at"`
	UnrealizedPnL float64   `json:"unrealized_pnl"` // accrued but not realized, USD
	Idle          bool      `json:"idle"`
}

// PositionID builds the canonical position identifier for a pool.
func PositionID(chainID, protocol, poolID string) string {
	return chainID + ":" + protocol + ":" + poolID
}

// Portfolio is a derived, read-only snapshot of all positions. It is
// recomputed on every read and never persisted on its own.
type Portfolio struct {
	Positions        []Position         `json:"positions"`
	TotalValueUSD    float64            `json:"total_value_usd"`
	TotalPnLUSD      float64            `json:"total_pnl_usd"`
	ChainExposure    map[string]float64 `json:"chain_exposure"`    // chainID -> fraction of total value
	ProtocolExposure map[string]float64 `json:"protocol_exposure"` // protocol -> fraction of total value
}

// NewPortfolio computes the derived snapshot from a set of positions.
// Idle positions count toward total value but not toward exposure.
func NewPortfolio(positions []Position) Portfolio {
	p := Portfolio{
		Positions:        positions,
		ChainExposure:    make(map[string]float64),
		ProtocolExposure: make(map[string]float64),
	}
	for _, pos := range positions {
		p.TotalValueUSD += pos.BalanceUSD
		p.TotalPnLUSD += pos.UnrealizedPnL
	}
	if p.TotalValueUSD <= 0 {
		return p
	}
	for _, pos := range positions {
		if pos.Idle {
			continue
		}
		p.ChainExposure[pos.ChainID] += pos.BalanceUSD / p.TotalValueUSD
		p.ProtocolExposure[pos.Protocol] += pos.BalanceUSD / p.TotalValueUSD
	}
	return p
}

// IdleBalanceUSD sums the balances of idle positions.
func (p Portfolio) IdleBalanceUSD() float64 {
	var total float64
	for _, pos := range p.Positions {
		if pos.Idle {
			total += pos.BalanceUSD
		}
	}
	return total
}

// BestHeldAPY returns the highest current APY across non-idle positions,
// or zero if the portfolio holds no yield-bearing positions.
func (p Portfolio) BestHeldAPY() float64 {
	var best float64
	for _, pos := range p.Positions {
		if !pos.Idle && pos.CurrentAPY > best {
			best = pos.CurrentAPY
		}
	}
	return best
}
