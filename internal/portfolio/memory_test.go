package portfolio

import (
	"testing"
	"time"

	"github.com/elys-network/ara/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testPosition(id string, balance, apy float64, idle bool) types.Position {
	return types.Position{
		ID:         id,
		ChainID:    "arbitrum",
		Protocol:   "aave-v3",
		PoolID:     id,
		BalanceUSD: balance,
		CurrentAPY: apy,
		Idle:       idle,
		UpdatedAt:  time.Now(),
	}
}

func TestGetCurrentPortfolioDerivesExposure(t *testing.T) {
	s := NewMemoryStore()
	require.NoError(t, s.AddPosition(types.Position{
		ID: "arbitrum:aave-v3:a", ChainID: "arbitrum", Protocol: "aave-v3",
		PoolID: "a", BalanceUSD: 600,
	}))
	require.NoError(t, s.AddPosition(types.Position{
		ID: "polygon:morpho:b", ChainID: "polygon", Protocol: "morpho",
		PoolID: "b", BalanceUSD: 300,
	}))
	require.NoError(t, s.AddPosition(types.Position{
		ID: "settlement:cash:usdc", ChainID: "settlement", Protocol: "cash",
		PoolID: "usdc", BalanceUSD: 100, Idle: true,
	}))

	p, err := s.GetCurrentPortfolio()
	require.NoError(t, err)
	assert.InDelta(t, 1000, p.TotalValueUSD, 1e-9)
	assert.InDelta(t, 100, p.IdleBalanceUSD(), 1e-9)
	// Idle cash counts toward value but never toward exposure.
	assert.InDelta(t, 0.6, p.ChainExposure["arbitrum"], 1e-9)
	assert.InDelta(t, 0.3, p.ChainExposure["polygon"], 1e-9)
	assert.NotContains(t, p.ChainExposure, "settlement")
	assert.InDelta(t, 0.6, p.ProtocolExposure["aave-v3"], 1e-9)

	// Deterministic ordering by ID.
	require.Len(t, p.Positions, 3)
	assert.Equal(t, "arbitrum:aave-v3:a", p.Positions[0].ID)
	assert.Equal(t, "polygon:morpho:b", p.Positions[1].ID)
	assert.Equal(t, "settlement:cash:usdc", p.Positions[2].ID)
}

func TestAddPositionMergesByID(t *testing.T) {
	s := NewMemoryStore()
	require.NoError(t, s.AddPosition(testPosition("p1", 100, 5, false)))
	require.NoError(t, s.AddPosition(testPosition("p1", 50, 7, false)))

	p, err := s.GetCurrentPortfolio()
	require.NoError(t, err)
	require.Len(t, p.Positions, 1)
	assert.InDelta(t, 150, p.Positions[0].BalanceUSD, 1e-9)
	// The merge refreshes the current APY.
	assert.InDelta(t, 7, p.Positions[0].CurrentAPY, 1e-9)
}

func TestAddPositionRejectsNegativeBalance(t *testing.T) {
	s := NewMemoryStore()
	err := s.AddPosition(testPosition("p1", -1, 5, false))
	assert.ErrorIs(t, err, ErrInvalidAmount)
}

func TestRecordTradeDecrementsAndRemovesAtZero(t *testing.T) {
	s := NewMemoryStore()
	require.NoError(t, s.AddPosition(testPosition("p1", 100, 5, false)))

	now := time.Now()
	require.NoError(t, s.RecordTrade("p1", 40, now))
	p, err := s.GetCurrentPortfolio()
	require.NoError(t, err)
	assert.InDelta(t, 60, p.Positions[0].BalanceUSD, 1e-9)

	// Spending the rest removes the position entirely.
	require.NoError(t, s.RecordTrade("p1", 60, now))
	p, err = s.GetCurrentPortfolio()
	require.NoError(t, err)
	assert.Empty(t, p.Positions)

	err = s.RecordTrade("p1", 1, now)
	assert.ErrorIs(t, err, ErrPositionNotFound)
}

func TestRecordTradeRejectsNegativeSpend(t *testing.T) {
	s := NewMemoryStore()
	require.NoError(t, s.AddPosition(testPosition("p1", 100, 5, false)))
	assert.ErrorIs(t, s.RecordTrade("p1", -5, time.Now()), ErrInvalidAmount)
}

func TestAccrueYieldAdvancesPnL(t *testing.T) {
	s := NewMemoryStore()
	pos := testPosition("p1", 10_000, 36.5, false)
	start := time.Now()
	pos.UpdatedAt = start
	require.NoError(t, s.AddPosition(pos))

	idle := testPosition("cash", 1_000, 0, true)
	idle.UpdatedAt = start
	require.NoError(t, s.AddPosition(idle))

	// One day at 36.5% APY on 10k is exactly 10 USD.
	require.NoError(t, s.AccrueYield(start.Add(24*time.Hour)))

	p, err := s.GetCurrentPortfolio()
	require.NoError(t, err)
	for _, got := range p.Positions {
		switch got.ID {
		case "p1":
			assert.InDelta(t, 10.0, got.UnrealizedPnL, 1e-6)
		case "cash":
			assert.Zero(t, got.UnrealizedPnL)
		}
	}

	// Accruing again with no elapsed time adds nothing.
	require.NoError(t, s.AccrueYield(start.Add(24*time.Hour)))
	p, err = s.GetCurrentPortfolio()
	require.NoError(t, err)
	assert.InDelta(t, 10.0, p.TotalPnLUSD, 1e-6)
}
