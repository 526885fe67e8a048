/*

This file contains the decision engine: a pure-ish function of the current
portfolio, the scanned opportunity set, and the active risk profile that
produces a bounded, explainable rebalancing plan or a reasoned "no action".

*/

package engine

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/elys-network/ara/internal/config"
	"github.com/elys-network/ara/internal/logger"
	"github.com/elys-network/ara/internal/types"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// cooldownBypassPriority is the floor an opportunity must clear to act while
// the rebalance cooldown is still running. This is the designed bypass for
// urgent moves, not an accident.
const cooldownBypassPriority = 80

// Execution time estimates per action, used for plan-level ETA only.
const (
	bridgeExecutionSeconds    = 15 * 60
	sameChainExecutionSeconds = 30
)

// Decision is the outcome of one analysis pass.
type Decision struct {
	ShouldAct bool                 `json:"should_act"`
	Plan      *types.RebalancePlan `json:"plan,omitempty"`
	Reason    string               `json:"reason"`
}

// Engine turns noisy third-party yield data into risk-constrained plans.
type Engine struct {
	logger  zerolog.Logger
	cfg     config.AgentConfig
	profile config.RiskProfileConfig

	mu              sync.Mutex
	lastRebalanceAt time.Time

	// now is replaceable in tests.
	now func() time.Time
}

// New constructs an engine for the configured risk profile. Configuration
// errors surface here, never mid-cycle.
func New(cfg config.AgentConfig) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("agent configuration validation failed: %w", err)
	}
	profile, err := config.ProfileByName(cfg.RiskProfile)
	if err != nil {
		return nil, err
	}
	return &Engine{
		logger:  logger.GetForComponent("decision_engine"),
		cfg:     cfg,
		profile: profile,
		now:     time.Now,
	}, nil
}

// Profile returns the active risk profile.
func (e *Engine) Profile() config.RiskProfileConfig {
	return e.profile
}

// MarkRebalanceExecuted stamps the cooldown clock. The orchestrator calls
// this after every executed plan; it is the single serialization point
// preventing back-to-back full rebalances.
func (e *Engine) MarkRebalanceExecuted() {
	e.mu.Lock()
	e.lastRebalanceAt = e.now()
	e.mu.Unlock()
}

// CooldownActive reports whether the full-analysis cooldown is still running.
func (e *Engine) CooldownActive() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.lastRebalanceAt.IsZero() {
		return false
	}
	return e.now().Sub(e.lastRebalanceAt) < e.cfg.FullAnalysisInterval
}

// Analyze produces a plan (or a reasoned refusal) from the current portfolio
// and opportunity set. Re-running with identical inputs yields an identical
// plan: all ordering is deterministic and APY ties break first-seen.
func (e *Engine) Analyze(portfolio types.Portfolio, opportunities []types.YieldOpportunity) Decision {
	eligible, filterReason := e.filterOpportunities(opportunities)
	if len(eligible) == 0 {
		e.logger.Info().Str("reason", filterReason).Msg("No eligible opportunities after filtering")
		return Decision{ShouldAct: false, Reason: filterReason}
	}

	bestByChain, globalBest := bestPools(eligible)

	var candidates []types.RebalanceOpportunity
	candidates = append(candidates, e.idleDeploymentOpportunities(portfolio, eligible)...)
	candidates = append(candidates, e.sameChainOpportunities(portfolio, bestByChain)...)
	candidates = append(candidates, e.crossChainOpportunities(portfolio, globalBest)...)

	if len(candidates) == 0 {
		return Decision{ShouldAct: false, Reason: "no position can be improved within exposure and differential limits"}
	}

	for i := range candidates {
		candidates[i].Priority = e.scorePriority(candidates[i])
	}

	// Rank by priority, ties broken by net daily benefit.
	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].Priority != candidates[j].Priority {
			return candidates[i].Priority > candidates[j].Priority
		}
		return candidates[i].DailyBenefitUSD > candidates[j].DailyBenefitUSD
	})

	surviving := candidates[:0:0]
	for _, c := range candidates {
		if c.DailyBenefitUSD >= e.profile.MinNetBenefitUSD {
			surviving = append(surviving, c)
		}
	}
	if len(surviving) == 0 {
		return Decision{ShouldAct: false, Reason: fmt.Sprintf(
			"best candidate below minimum net benefit of $%.2f/day", e.profile.MinNetBenefitUSD)}
	}

	if e.CooldownActive() {
		urgent := surviving[:0:0]
		for _, c := range surviving {
			if c.Priority >= cooldownBypassPriority {
				urgent = append(urgent, c)
			}
		}
		if len(urgent) == 0 {
			return Decision{ShouldAct: false, Reason: "rebalance cooldown active and no opportunity is urgent enough to bypass it"}
		}
		e.logger.Info().Int("urgent", len(urgent)).Msg("Cooldown active, acting on high-priority opportunities only")
		surviving = urgent
	}

	if len(surviving) > types.MaxSimultaneousOpportunities {
		surviving = surviving[:types.MaxSimultaneousOpportunities]
	}

	plan := &types.RebalancePlan{
		ID:            uuid.New().String(),
		Opportunities: surviving,
		RiskProfile:   e.profile.Name,
		// Plans inside the policy thresholds are auto-approved.
		Approved:  true,
		CreatedAt: e.now(),
	}
	for _, opp := range surviving {
		plan.TotalDailyBenefitUSD += opp.DailyBenefitUSD
		if opp.Action == types.ActionBridge {
			plan.EstimatedExecutionSec += bridgeExecutionSeconds
		} else {
			plan.EstimatedExecutionSec += sameChainExecutionSeconds
		}
	}

	e.logger.Info().
		Int("opportunities", len(plan.Opportunities)).
		Float64("totalDailyBenefitUSD", plan.TotalDailyBenefitUSD).
		Int("estimatedExecutionSec", plan.EstimatedExecutionSec).
		Msg("Rebalance plan built")

	return Decision{
		ShouldAct: true,
		Plan:      plan,
		Reason:    fmt.Sprintf("%d opportunities worth $%.2f/day net", len(plan.Opportunities), plan.TotalDailyBenefitUSD),
	}
}

// bestPools computes the best pool per chain and the single best pool
// overall. Highest APY wins; an exact APY tie keeps the first-seen pool so
// the result does not depend on upstream ordering quirks.
func bestPools(eligible []types.YieldOpportunity) (map[string]types.YieldOpportunity, types.YieldOpportunity) {
	bestByChain := make(map[string]types.YieldOpportunity)
	var globalBest types.YieldOpportunity
	for _, opp := range eligible {
		if current, ok := bestByChain[opp.ChainID]; !ok || opp.APY > current.APY {
			bestByChain[opp.ChainID] = opp
		}
		if opp.APY > globalBest.APY {
			globalBest = opp
		}
	}
	return bestByChain, globalBest
}
