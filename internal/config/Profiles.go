/*

This file contains the named risk profiles for the agent.

Each value has been chosen to balance risk management with return
optimization; the conservative profile is calibrated for capital
preservation, the aggressive profile for yield chasing with wider limits.

*/

package config

import (
	"fmt"
	"strings"
)

// RiskProfileConfig is the static policy table one agent runs under.
// All exposure values are fractions of total portfolio value.
type RiskProfileConfig struct {
	Name string `json:"name"`

	// --- Opportunity filter ---
	MinTvlUSD        float64  `json:"min_tvl_usd"`       // pools below this TVL cannot absorb meaningful size
	MinAPY           float64  `json:"min_apy"`           // percent; below this a move never pays for itself
	MaxAPY           float64  `json:"max_apy"`           // percent; above this the yield is usually a trap
	MaxRiskScore     float64  `json:"max_risk_score"`    // 1-10 heuristic, lower is safer
	AllowedProtocols []string `json:"allowed_protocols"` // empty means all protocols are allowed

	// --- Decision thresholds ---
	MinApyDifferential float64 `json:"min_apy_differential"` // percentage points a target must beat the source by
	MinNetBenefitUSD   float64 `json:"min_net_benefit_usd"`  // minimum projected daily USD gain to act

	// --- Exposure and sizing limits ---
	MaxChainExposure    float64 `json:"max_chain_exposure"`
	MaxProtocolExposure float64 `json:"max_protocol_exposure"`
	MaxSingleTradePct   float64 `json:"max_single_trade_pct"` // fraction of total value per trade
}

// ConservativeProfile prioritizes capital preservation: deep pools, proven
// protocols only, and a high bar before any capital moves.
var ConservativeProfile = RiskProfileConfig{
	Name:      "conservative",
	MinTvlUSD: 10_000_000,
	// Yields outside 1-15% are either not worth moving for or too good to be true.
	MinAPY:       1.0,
	MaxAPY:       15.0,
	MaxRiskScore: 3,
	AllowedProtocols: []string{
		"aave-v3", "compound-v3", "lido", "rocket-pool", "maker", "spark",
	},
	MinApyDifferential:  7.0,
	MinNetBenefitUSD:    1.0,
	MaxChainExposure:    0.50,
	MaxProtocolExposure: 0.40,
	MaxSingleTradePct:   0.20,
}

// BalancedProfile is the default: meaningful diversification limits with
// enough freedom to chase genuine improvements.
var BalancedProfile = RiskProfileConfig{
	Name:                "balanced",
	MinTvlUSD:           1_000_000,
	MinAPY:              2.0,
	MaxAPY:              50.0,
	MaxRiskScore:        5,
	AllowedProtocols:    nil, // all protocols
	MinApyDifferential:  5.0,
	MinNetBenefitUSD:    0.50,
	MaxChainExposure:    0.60,
	MaxProtocolExposure: 0.50,
	MaxSingleTradePct:   0.25,
}

// AggressiveProfile accepts thin pools and volatile yields in exchange for a
// much lower bar to act. Not suitable for large capital.
var AggressiveProfile = RiskProfileConfig{
	Name:                "aggressive",
	MinTvlUSD:           250_000,
	MinAPY:              3.0,
	MaxAPY:              200.0,
	MaxRiskScore:        8,
	AllowedProtocols:    nil,
	MinApyDifferential:  3.0,
	MinNetBenefitUSD:    0.25,
	MaxChainExposure:    0.80,
	MaxProtocolExposure: 0.70,
	MaxSingleTradePct:   0.40,
}

// ProfileByName resolves a named risk profile. The profile is validated
// before being returned so a bad table fails at construction, not mid-cycle.
func ProfileByName(name string) (RiskProfileConfig, error) {
	var profile RiskProfileConfig
	switch strings.ToLower(name) {
	case "conservative":
		profile = ConservativeProfile
	case "balanced":
		profile = BalancedProfile
	case "aggressive":
		profile = AggressiveProfile
	default:
		return RiskProfileConfig{}, fmt.Errorf("unknown risk profile: %q", name)
	}
	if err := profile.Validate(); err != nil {
		return RiskProfileConfig{}, err
	}
	return profile, nil
}

// Validate checks the profile's policy values. Configuration errors fail
// fast here, never at runtime.
func (p RiskProfileConfig) Validate() error {
	if p.Name == "" {
		return fmt.Errorf("risk profile name cannot be empty")
	}
	if p.MinTvlUSD < 0 {
		return fmt.Errorf("profile %s: MinTvlUSD cannot be negative", p.Name)
	}
	if p.MinAPY < 0 || p.MaxAPY < p.MinAPY {
		return fmt.Errorf("profile %s: APY band [%f, %f] is invalid", p.Name, p.MinAPY, p.MaxAPY)
	}
	if p.MaxRiskScore < 1 || p.MaxRiskScore > 10 {
		return fmt.Errorf("profile %s: MaxRiskScore must be within [1, 10], got %f", p.Name, p.MaxRiskScore)
	}
	if p.MinApyDifferential <= 0 {
		return fmt.Errorf("profile %s: MinApyDifferential must be positive", p.Name)
	}
	if p.MinNetBenefitUSD < 0 {
		return fmt.Errorf("profile %s: MinNetBenefitUSD cannot be negative", p.Name)
	}
	if p.MaxChainExposure <= 0 || p.MaxChainExposure > 1 {
		return fmt.Errorf("profile %s: MaxChainExposure must be within (0, 1], got %f", p.Name, p.MaxChainExposure)
	}
	if p.MaxProtocolExposure <= 0 || p.MaxProtocolExposure > 1 {
		return fmt.Errorf("profile %s: MaxProtocolExposure must be within (0, 1], got %f", p.Name, p.MaxProtocolExposure)
	}
	if p.MaxSingleTradePct <= 0 || p.MaxSingleTradePct > 1 {
		return fmt.Errorf("profile %s: MaxSingleTradePct must be within (0, 1], got %f", p.Name, p.MaxSingleTradePct)
	}
	return nil
}

// AllowsProtocol reports whether the profile permits the given protocol.
// An empty allow-list permits everything.
func (p RiskProfileConfig) AllowsProtocol(protocol string) bool {
	if len(p.AllowedProtocols) == 0 {
		return true
	}
	for _, allowed := range p.AllowedProtocols {
		if strings.EqualFold(allowed, protocol) {
			return true
		}
	}
	return false
}
