package engine

import (
	"testing"
	"time"

	"github.com/elys-network/ara/internal/config"
	"github.com/elys-network/ara/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	e, err := New(config.DefaultAgentConfig)
	require.NoError(t, err)
	return e
}

func pool(chain, protocol, id string, apy, tvl, risk float64) types.YieldOpportunity {
	return types.YieldOpportunity{
		ChainID:   chain,
		Protocol:  protocol,
		PoolID:    id,
		Symbol:    "USDC",
		APY:       apy,
		TvlUSD:    tvl,
		RiskScore: risk,
	}
}

func position(chain, protocol, id string, balance, apy float64) types.Position {
	return types.Position{
		ID:         types.PositionID(chain, protocol, id),
		ChainID:    chain,
		Protocol:   protocol,
		PoolID:     id,
		Symbol:     "USDC",
		BalanceUSD: balance,
		EntryAPY:   apy,
		CurrentAPY: apy,
	}
}

func TestAnalyzeSameChainRebalance(t *testing.T) {
	e := newTestEngine(t)

	portfolio := types.NewPortfolio([]types.Position{
		position("arbitrum", "aave-v3", "pool-a", 60_000, 5.0),
		position("polygon", "morpho", "pool-b", 40_000, 6.0),
	})
	pools := []types.YieldOpportunity{
		pool("arbitrum", "curve", "pool-c", 12.0, 5_000_000, 4),
	}

	decision := e.Analyze(portfolio, pools)
	require.True(t, decision.ShouldAct)
	require.NotNil(t, decision.Plan)
	require.Len(t, decision.Plan.Opportunities, 1)

	opp := decision.Plan.Opportunities[0]
	assert.Equal(t, types.ActionRebalance, opp.Action)
	require.NotNil(t, opp.Source)
	assert.Equal(t, "arbitrum:aave-v3:pool-a", opp.Source.ID)
	assert.InDelta(t, 7.0, opp.APYGain, 1e-9)
	// Single-trade cap binds: 25% of the 100k portfolio.
	assert.InDelta(t, 25_000, opp.AmountUSD, 1e-9)
	// Withdraw plus deposit on arbitrum.
	assert.InDelta(t, 0.60, opp.EstimatedCostUSD, 1e-9)
	assert.True(t, decision.Plan.Approved)
	assert.NotEmpty(t, decision.Plan.ID)
}

func TestAnalyzeCrossChainNeedsDoubleDifferential(t *testing.T) {
	e := newTestEngine(t)

	portfolio := types.NewPortfolio([]types.Position{
		position("ethereum", "aave-v3", "pool-a", 60_000, 4.0),
		position("polygon", "morpho", "pool-b", 40_000, 6.0),
	})
	pools := []types.YieldOpportunity{
		pool("arbitrum", "pendle", "pool-c", 25.0, 2_000_000, 5),
	}

	decision := e.Analyze(portfolio, pools)
	require.True(t, decision.ShouldAct)
	require.Len(t, decision.Plan.Opportunities, 2)

	for _, opp := range decision.Plan.Opportunities {
		assert.Equal(t, types.ActionBridge, opp.Action)
		assert.GreaterOrEqual(t, opp.APYGain, 2*e.profile.MinApyDifferential)
	}
	// The higher-gain move off ethereum ranks first.
	assert.Equal(t, "ethereum:aave-v3:pool-a", decision.Plan.Opportunities[0].Source.ID)
	assert.GreaterOrEqual(t, decision.Plan.Opportunities[0].Priority,
		decision.Plan.Opportunities[1].Priority)
	// Bridge moves dominate the ETA.
	assert.Equal(t, 2*bridgeExecutionSeconds, decision.Plan.EstimatedExecutionSec)
}

func TestAnalyzeCrossChainBelowDoubleDifferentialIsSkipped(t *testing.T) {
	e := newTestEngine(t)

	portfolio := types.NewPortfolio([]types.Position{
		position("polygon", "morpho", "pool-b", 100_000, 6.0),
	})
	// Gain is 6 points: above the plain differential, below the doubled one.
	pools := []types.YieldOpportunity{
		pool("arbitrum", "pendle", "pool-c", 12.0, 2_000_000, 5),
	}

	decision := e.Analyze(portfolio, pools)
	assert.False(t, decision.ShouldAct)
}

func TestAnalyzeIdleDeployment(t *testing.T) {
	e := newTestEngine(t)

	idle := position("settlement", "cash", "usdc", 10_000, 0)
	idle.Idle = true
	portfolio := types.NewPortfolio([]types.Position{idle})

	pools := []types.YieldOpportunity{
		pool("arbitrum", "aave-v3", "pool-a", 8.0, 20_000_000, 2),
	}

	decision := e.Analyze(portfolio, pools)
	require.True(t, decision.ShouldAct)
	require.Len(t, decision.Plan.Opportunities, 1)

	opp := decision.Plan.Opportunities[0]
	assert.Equal(t, types.ActionDeposit, opp.Action)
	assert.Nil(t, opp.Source)
	// Capped by the 25% single-trade limit, not the idle balance.
	assert.InDelta(t, 2_500, opp.AmountUSD, 1e-9)
	assert.InDelta(t, 8.0, opp.APYGain, 1e-9)
}

func TestAnalyzeExposureCapBlocksCrossChain(t *testing.T) {
	e := newTestEngine(t)

	// Arbitrum already sits exactly at the 60% chain cap.
	portfolio := types.NewPortfolio([]types.Position{
		position("arbitrum", "aave-v3", "pool-a", 60_000, 26.0),
		position("polygon", "morpho", "pool-b", 40_000, 6.0),
	})
	pools := []types.YieldOpportunity{
		pool("arbitrum", "pendle", "pool-c", 30.0, 2_000_000, 5),
	}

	decision := e.Analyze(portfolio, pools)
	// The polygon position cannot bridge into a maxed-out chain, and the
	// arbitrum position's gain is below the differential.
	assert.False(t, decision.ShouldAct)
	assert.Contains(t, decision.Reason, "exposure")
}

func TestAnalyzeSourceExposureCreditedBackOnSameChain(t *testing.T) {
	e := newTestEngine(t)

	// The whole portfolio is one arbitrum position, so chain exposure is
	// already 1.0. A same-chain move must still be possible.
	portfolio := types.NewPortfolio([]types.Position{
		position("arbitrum", "aave-v3", "pool-a", 100_000, 5.0),
	})
	pools := []types.YieldOpportunity{
		pool("arbitrum", "curve", "pool-c", 12.0, 5_000_000, 4),
	}

	decision := e.Analyze(portfolio, pools)
	require.True(t, decision.ShouldAct)
	require.Len(t, decision.Plan.Opportunities, 1)
	assert.InDelta(t, 25_000, decision.Plan.Opportunities[0].AmountUSD, 1e-9)
}

func TestAnalyzeFilterReasonNamesTheFilter(t *testing.T) {
	e := newTestEngine(t)
	portfolio := types.NewPortfolio(nil)

	pools := []types.YieldOpportunity{
		pool("arbitrum", "curve", "pool-a", 12.0, 100, 4), // below min TVL
		pool("base", "aave-v3", "pool-b", 9.0, 500, 2),    // below min TVL
	}

	decision := e.Analyze(portfolio, pools)
	assert.False(t, decision.ShouldAct)
	assert.Contains(t, decision.Reason, "TVL")
}

func TestAnalyzeEmptyScanEndsQuietly(t *testing.T) {
	e := newTestEngine(t)
	decision := e.Analyze(types.NewPortfolio(nil), nil)
	assert.False(t, decision.ShouldAct)
	assert.NotEmpty(t, decision.Reason)
}

func TestAnalyzeCooldownBypass(t *testing.T) {
	e := newTestEngine(t)

	base := time.Now()
	e.now = func() time.Time { return base }
	e.MarkRebalanceExecuted()
	// Ten minutes later the one-hour cooldown is still running.
	e.now = func() time.Time { return base.Add(10 * time.Minute) }
	require.True(t, e.CooldownActive())

	portfolio := types.NewPortfolio([]types.Position{
		position("arbitrum", "aave-v3", "pool-a", 60_000, 5.0),
		position("polygon", "morpho", "pool-b", 40_000, 6.0),
	})

	// Priority 80 (cheap same-chain move into a tier-2 protocol) clears the
	// bypass floor and acts despite the cooldown.
	urgent := e.Analyze(portfolio, []types.YieldOpportunity{
		pool("arbitrum", "curve", "pool-c", 12.0, 5_000_000, 4),
	})
	require.True(t, urgent.ShouldAct)
	for _, opp := range urgent.Plan.Opportunities {
		assert.GreaterOrEqual(t, opp.Priority, cooldownBypassPriority)
	}

	// A bridge-only plan stays below the floor and waits the cooldown out.
	routine := e.Analyze(portfolio, []types.YieldOpportunity{
		pool("base", "pendle", "pool-d", 25.0, 2_000_000, 5),
	})
	assert.False(t, routine.ShouldAct)
	assert.Contains(t, routine.Reason, "cooldown")

	// Once the cooldown lapses the same plan goes through.
	e.now = func() time.Time { return base.Add(2 * time.Hour) }
	require.False(t, e.CooldownActive())
	later := e.Analyze(portfolio, []types.YieldOpportunity{
		pool("base", "pendle", "pool-d", 25.0, 2_000_000, 5),
	})
	assert.True(t, later.ShouldAct)
}

func TestAnalyzePlanCappedAtThreeOpportunities(t *testing.T) {
	e := newTestEngine(t)

	positions := []types.Position{
		position("ethereum", "aave-v3", "p1", 20_000, 4.0),
		position("polygon", "morpho", "p2", 20_000, 4.0),
		position("base", "curve", "p3", 20_000, 4.0),
		position("optimism", "yearn", "p4", 20_000, 4.0),
		position("avalanche", "convex", "p5", 20_000, 4.0),
	}
	portfolio := types.NewPortfolio(positions)

	// One strong pool per source chain generates five same-chain candidates.
	pools := []types.YieldOpportunity{
		pool("ethereum", "compound-v3", "t1", 14.0, 5_000_000, 3),
		pool("polygon", "compound-v3", "t2", 14.0, 5_000_000, 3),
		pool("base", "compound-v3", "t3", 14.0, 5_000_000, 3),
		pool("optimism", "compound-v3", "t4", 14.0, 5_000_000, 3),
		pool("avalanche", "compound-v3", "t5", 14.0, 5_000_000, 3),
	}

	decision := e.Analyze(portfolio, pools)
	require.True(t, decision.ShouldAct)
	assert.Len(t, decision.Plan.Opportunities, types.MaxSimultaneousOpportunities)
}

func TestAnalyzeDeterministicTieBreak(t *testing.T) {
	e := newTestEngine(t)

	portfolio := types.NewPortfolio([]types.Position{
		position("arbitrum", "aave-v3", "pool-a", 100_000, 5.0),
	})
	// Two identical-APY pools; the first-seen one must win every time.
	pools := []types.YieldOpportunity{
		pool("arbitrum", "curve", "first", 12.0, 5_000_000, 4),
		pool("arbitrum", "convex", "second", 12.0, 5_000_000, 4),
	}

	for i := 0; i < 5; i++ {
		decision := e.Analyze(portfolio, pools)
		require.True(t, decision.ShouldAct)
		assert.Equal(t, "first", decision.Plan.Opportunities[0].Target.PoolID)
	}
}

func TestScorePriorityBounds(t *testing.T) {
	e := newTestEngine(t)

	best := types.RebalanceOpportunity{
		APYGain:          25,
		EstimatedCostUSD: 0.50,
		Action:           types.ActionRebalance,
		Target:           pool("arbitrum", "aave-v3", "p", 30, 1_000_000, 2),
	}
	assert.Equal(t, 100, e.scorePriority(best))

	worst := types.RebalanceOpportunity{
		APYGain:          6,
		EstimatedCostUSD: 40,
		Action:           types.ActionBridge,
		Target:           pool("arbitrum", "unknown-farm", "p", 30, 1_000_000, 2),
	}
	assert.Equal(t, 50, e.scorePriority(worst))
}

func TestFilterOpportunitiesByProfile(t *testing.T) {
	cfg := config.DefaultAgentConfig
	cfg.RiskProfile = "conservative"
	e, err := New(cfg)
	require.NoError(t, err)

	pools := []types.YieldOpportunity{
		pool("arbitrum", "aave-v3", "ok", 8.0, 20_000_000, 2),
		pool("arbitrum", "aave-v3", "thin", 8.0, 500_000, 2),       // TVL
		pool("arbitrum", "aave-v3", "spicy", 60.0, 20_000_000, 2),  // APY band
		pool("arbitrum", "aave-v3", "risky", 8.0, 20_000_000, 7),   // risk score
		pool("arbitrum", "degen-farm", "banned", 8.0, 20_000_000, 2), // allow-list
	}

	eligible, reason := e.filterOpportunities(pools)
	assert.Empty(t, reason)
	require.Len(t, eligible, 1)
	assert.Equal(t, "ok", eligible[0].PoolID)
}
