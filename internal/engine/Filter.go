/*

This file contains the risk-profile filter applied to the untrusted external
opportunity set before any decision logic runs.

*/

package engine

import (
	"fmt"

	"github.com/elys-network/ara/internal/types"
)

// filterOpportunities applies the active risk profile to the raw opportunity
// set. When everything is rejected the returned reason names the filter that
// emptied the set, so operators can tell a quiet market from a bad profile.
func (e *Engine) filterOpportunities(opportunities []types.YieldOpportunity) ([]types.YieldOpportunity, string) {
	if len(opportunities) == 0 {
		return nil, "provider returned no opportunities"
	}

	var (
		eligible        []types.YieldOpportunity
		rejectedTVL     int
		rejectedAPY     int
		rejectedRisk    int
		rejectedProto   int
	)

	for _, opp := range opportunities {
		switch {
		case opp.TvlUSD < e.profile.MinTvlUSD:
			rejectedTVL++
		case opp.APY < e.profile.MinAPY || opp.APY > e.profile.MaxAPY:
			rejectedAPY++
		case opp.RiskScore > e.profile.MaxRiskScore:
			rejectedRisk++
		case !e.profile.AllowsProtocol(opp.Protocol):
			rejectedProto++
		default:
			eligible = append(eligible, opp)
		}
	}

	if len(eligible) > 0 {
		return eligible, ""
	}

	reason := fmt.Sprintf(
		"all %d opportunities filtered out (%d below $%.0f TVL, %d outside %.1f-%.1f%% APY band, %d above risk score %.0f, %d disallowed protocols)",
		len(opportunities), rejectedTVL, e.profile.MinTvlUSD, rejectedAPY,
		e.profile.MinAPY, e.profile.MaxAPY, rejectedRisk, e.profile.MaxRiskScore, rejectedProto)
	return nil, reason
}

// FilterEligible exposes the profile filter for the orchestrator's cheap
// quick scan, which only needs the best eligible APY.
func (e *Engine) FilterEligible(opportunities []types.YieldOpportunity) []types.YieldOpportunity {
	eligible, _ := e.filterOpportunities(opportunities)
	return eligible
}
