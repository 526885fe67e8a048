/*

This file contains the three opportunity generators and the shared exposure
and sizing logic that caps every generated amount. Each generator is gated
independently; the executor applies its own live-balance budget on top.

*/

package engine

import (
	"fmt"
	"sort"

	"github.com/elys-network/ara/internal/config"
	"github.com/elys-network/ara/internal/types"
)

// idleDeploymentOpportunities deploys cash sitting in zero-yield settlement
// positions. Candidate pools are walked in APY order; a pool without
// strictly positive chain AND protocol headroom is skipped entirely rather
// than partially filled, and the next candidate is tried.
func (e *Engine) idleDeploymentOpportunities(portfolio types.Portfolio, eligible []types.YieldOpportunity) []types.RebalanceOpportunity {
	idleUSD := portfolio.IdleBalanceUSD()
	if idleUSD <= 0 {
		return nil
	}

	candidates := make([]types.YieldOpportunity, len(eligible))
	copy(candidates, eligible)
	sort.SliceStable(candidates, func(i, j int) bool { return candidates[i].APY > candidates[j].APY })

	for _, pool := range candidates {
		if chainHeadroom(portfolio, pool.ChainID, nil, e.profile) <= 0 ||
			protocolHeadroom(portfolio, pool.Protocol, nil, e.profile) <= 0 {
			continue
		}
		allowed := e.computeAllowedAmount(idleUSD, pool, portfolio, nil)
		if allowed <= 0 {
			continue
		}
		cost := config.GasCostFor(pool.ChainID)
		opp := e.buildOpportunity(nil, pool, allowed, pool.APY, cost, types.ActionDeposit,
			fmt.Sprintf("deploy $%.2f idle funds into %s %s at %.2f%% APY", allowed, pool.Protocol, pool.Symbol, pool.APY))
		return []types.RebalanceOpportunity{opp}
	}
	return nil
}

// sameChainOpportunities improves positions using the best pool on their own
// chain. Same-chain moves are cheap, so the plain APY differential applies.
func (e *Engine) sameChainOpportunities(portfolio types.Portfolio, bestByChain map[string]types.YieldOpportunity) []types.RebalanceOpportunity {
	var out []types.RebalanceOpportunity
	for i := range portfolio.Positions {
		pos := portfolio.Positions[i]
		if pos.Idle {
			continue
		}
		best, ok := bestByChain[pos.ChainID]
		if !ok || (best.Protocol == pos.Protocol && best.PoolID == pos.PoolID) {
			continue
		}
		gain := best.APY - pos.CurrentAPY
		if gain < e.profile.MinApyDifferential {
			continue
		}
		allowed := e.computeAllowedAmount(pos.BalanceUSD, best, portfolio, &pos)
		if allowed <= 0 {
			continue
		}
		// Withdraw plus deposit, both on the position's chain.
		cost := 2 * config.GasCostFor(pos.ChainID)
		out = append(out, e.buildOpportunity(&pos, best, allowed, gain, cost, types.ActionRebalance,
			fmt.Sprintf("move $%.2f from %s %s (%.2f%%) to %s %s (%.2f%%) on %s",
				allowed, pos.Protocol, pos.Symbol, pos.CurrentAPY, best.Protocol, best.Symbol, best.APY, pos.ChainID)))
	}
	return out
}

// crossChainOpportunities chases the global best pool across chains. Bridges
// cost more and take longer, so they must clear twice the differential.
func (e *Engine) crossChainOpportunities(portfolio types.Portfolio, globalBest types.YieldOpportunity) []types.RebalanceOpportunity {
	if globalBest.APY <= 0 {
		return nil
	}
	var out []types.RebalanceOpportunity
	for i := range portfolio.Positions {
		pos := portfolio.Positions[i]
		if pos.Idle || pos.ChainID == globalBest.ChainID {
			continue
		}
		gain := globalBest.APY - pos.CurrentAPY
		if gain < 2*e.profile.MinApyDifferential {
			continue
		}
		allowed := e.computeAllowedAmount(pos.BalanceUSD, globalBest, portfolio, &pos)
		if allowed <= 0 {
			continue
		}
		cost := config.GasCostFor(pos.ChainID) +
			config.GasCostFor(globalBest.ChainID) +
			allowed*config.BridgeFeePercent/100
		out = append(out, e.buildOpportunity(&pos, globalBest, allowed, gain, cost, types.ActionBridge,
			fmt.Sprintf("bridge $%.2f from %s %s on %s (%.2f%%) to %s %s on %s (%.2f%%)",
				allowed, pos.Protocol, pos.Symbol, pos.ChainID, pos.CurrentAPY,
				globalBest.Protocol, globalBest.Symbol, globalBest.ChainID, globalBest.APY)))
	}
	return out
}

// computeAllowedAmount caps a desired amount by the single-trade limit and
// the remaining chain and protocol headroom, floored at zero. When the
// source sits on the target chain or protocol its own share is credited
// back, since moving within a bucket does not raise that bucket's exposure.
func (e *Engine) computeAllowedAmount(desired float64, target types.YieldOpportunity, portfolio types.Portfolio, source *types.Position) float64 {
	if portfolio.TotalValueUSD <= 0 || desired <= 0 {
		return 0
	}

	allowed := desired
	if cap := e.profile.MaxSingleTradePct * portfolio.TotalValueUSD; cap < allowed {
		allowed = cap
	}
	if headroom := chainHeadroom(portfolio, target.ChainID, source, e.profile); headroom < allowed {
		allowed = headroom
	}
	if headroom := protocolHeadroom(portfolio, target.Protocol, source, e.profile); headroom < allowed {
		allowed = headroom
	}
	if allowed < 0 {
		return 0
	}
	return allowed
}

func chainHeadroom(portfolio types.Portfolio, chainID string, source *types.Position, profile config.RiskProfileConfig) float64 {
	exposure := portfolio.ChainExposure[chainID]
	if source != nil && !source.Idle && source.ChainID == chainID {
		exposure -= source.BalanceUSD / portfolio.TotalValueUSD
	}
	return (profile.MaxChainExposure - exposure) * portfolio.TotalValueUSD
}

func protocolHeadroom(portfolio types.Portfolio, protocol string, source *types.Position, profile config.RiskProfileConfig) float64 {
	exposure := portfolio.ProtocolExposure[protocol]
	if source != nil && !source.Idle && source.Protocol == protocol {
		exposure -= source.BalanceUSD / portfolio.TotalValueUSD
	}
	return (profile.MaxProtocolExposure - exposure) * portfolio.TotalValueUSD
}

// buildOpportunity fills in the benefit math shared by all generators.
// Execution cost is amortized over 30 days against the daily yield gain.
func (e *Engine) buildOpportunity(source *types.Position, target types.YieldOpportunity, amount, gain, cost float64, action types.ActionKind, reason string) types.RebalanceOpportunity {
	daily := amount*gain/100/365 - cost/30
	var src *types.Position
	if source != nil {
		copied := *source
		src = &copied
	}
	return types.RebalanceOpportunity{
		Source:           src,
		Target:           target,
		AmountUSD:        amount,
		APYGain:          gain,
		EstimatedCostUSD: cost,
		DailyBenefitUSD:  daily,
		AnnualBenefitUSD: daily * 365,
		Action:           action,
		Reason:           reason,
	}
}

// scorePriority maps an opportunity onto the 0-100 priority scale.
func (e *Engine) scorePriority(opp types.RebalanceOpportunity) int {
	priority := 50

	switch {
	case opp.APYGain > 20:
		priority += 20
	case opp.APYGain > 10:
		priority += 10
	}

	switch {
	case opp.EstimatedCostUSD < 1:
		priority += 15
	case opp.EstimatedCostUSD < 5:
		priority += 5
	}

	if opp.Action != types.ActionBridge {
		priority += 10
	}

	switch config.ProtocolTier(opp.Target.Protocol) {
	case 1:
		priority += 15
	case 2:
		priority += 5
	}

	if priority < 0 {
		priority = 0
	}
	if priority > 100 {
		priority = 100
	}
	return priority
}
