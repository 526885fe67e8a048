package datafetcher

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/elys-network/ara/internal/ratelimit"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLimiter(t *testing.T) *ratelimit.Limiter {
	t.Helper()
	l, err := ratelimit.New(ratelimit.Config{RatePerSecond: 1000, Burst: 1000, Cooldown: time.Millisecond})
	require.NoError(t, err)
	t.Cleanup(l.Close)
	return l
}

const poolsFixture = `{
	"status": "success",
	"data": [
		{"chain": "Arbitrum", "project": "Aave-V3", "pool": "pool-a", "symbol": "USDC",
		 "apy": 4.2, "apyBase": 3.9, "apyReward": 0.3, "tvlUsd": 120000000,
		 "ilRisk": "no", "stablecoin": true, "exposure": "single"},
		{"chain": "Ethereum", "project": "degen", "pool": "pool-o", "symbol": "DGN",
		 "apy": 900, "tvlUsd": 2000000, "outlier": true},
		{"chain": "Base", "project": "dead", "pool": "pool-z", "symbol": "USDC",
		 "apy": 0, "tvlUsd": 5000000},
		{"chain": "Base", "project": "ghost", "pool": "pool-g", "symbol": "USDC",
		 "apy": 5, "tvlUsd": 0}
	]
}`

func TestScanNormalizesAndDropsUnusablePools(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/pools", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(poolsFixture))
	}))
	defer server.Close()

	provider := NewHTTPProvider(server.URL, testLimiter(t))
	result, err := provider.Scan(context.Background())
	require.NoError(t, err)

	// Outliers, zero-APY, and zero-TVL pools are dropped before filtering.
	assert.Equal(t, 4, result.Stats.PoolsScanned)
	require.Len(t, result.Pools, 1)

	pool := result.Pools[0]
	assert.Equal(t, "arbitrum", pool.ChainID)
	assert.Equal(t, "aave-v3", pool.Protocol)
	assert.Equal(t, "pool-a", pool.PoolID)
	assert.InDelta(t, 4.2, pool.APY, 1e-9)
	assert.InDelta(t, 3.9, pool.BaseAPY, 1e-9)
	assert.InDelta(t, 0.3, pool.RewardAPY, 1e-9)
	// Stablecoin plus deep TVL is the safest shape the feed can describe.
	assert.InDelta(t, 2.0, pool.RiskScore, 1e-9)
}

func TestScanSurfacesHTTPErrors(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad request", http.StatusBadRequest)
	}))
	defer server.Close()

	provider := NewHTTPProvider(server.URL, testLimiter(t))
	_, err := provider.Scan(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 400")
}

func TestDeriveRiskScore(t *testing.T) {
	cases := []struct {
		name string
		raw  poolPayload
		want float64
	}{
		{"bare pool sits at the middle", poolPayload{TvlUSD: 1_000_000}, 5},
		{"deep stablecoin pool", poolPayload{Stablecoin: true, TvlUSD: 120_000_000}, 2},
		{"volatile multi-asset pool with IL", poolPayload{
			ILRisk: "yes", Exposure: "multi", SigmaAPY: 2.5, TvlUSD: 1_000_000,
		}, 9},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.InDelta(t, tc.want, deriveRiskScore(tc.raw), 1e-9)
		})
	}
}
