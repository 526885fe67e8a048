/*

Static cost and quality tables used by the decision engine.

GasCostUSD is a rough per-chain estimate of one transaction's gas in USD. It
only needs to be accurate enough to rank opportunities against each other;
the executor records actual costs from quotes and receipts.

ProtocolTiers is a hand-maintained quality allow-list. Tier 1 protocols have
years of track record and audits; tier 2 are established but younger.
Anything absent is tier 3 and earns no priority bonus.

If a chain or protocol is missing here the engine falls back to conservative
defaults, so keeping these up to date is best-effort, not load-bearing.

*/

package config

var (
	// GasCostUSD estimates the USD gas cost of one transaction per chain.
	GasCostUSD = map[string]float64{
		"ethereum":  8.00,
		"arbitrum":  0.30,
		"optimism":  0.25,
		"base":      0.15,
		"polygon":   0.05,
		"avalanche": 0.40,
		"bsc":       0.20,
		"solana":    0.01,
	}

	// DefaultGasCostUSD is used for chains absent from GasCostUSD.
	DefaultGasCostUSD = 2.00

	// BridgeFeePercent is the flat fee percentage assumed for cross-chain
	// moves on top of destination gas.
	BridgeFeePercent = 0.10

	// ProtocolTiers maps protocol slugs to a quality tier (1 is best).
	ProtocolTiers = map[string]int{
		"aave-v3":     1,
		"compound-v3": 1,
		"lido":        1,
		"maker":       1,
		"spark":       1,
		"rocket-pool": 2,
		"morpho":      2,
		"curve":       2,
		"convex":      2,
		"yearn":       2,
		"pendle":      2,
	}
)

// GasCostFor returns the estimated per-transaction gas cost for a chain.
func GasCostFor(chainID string) float64 {
	if cost, ok := GasCostUSD[chainID]; ok {
		return cost
	}
	return DefaultGasCostUSD
}

// ProtocolTier returns the quality tier for a protocol, defaulting to 3.
func ProtocolTier(protocol string) int {
	if tier, ok := ProtocolTiers[protocol]; ok {
		return tier
	}
	return 3
}
