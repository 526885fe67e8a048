/*

This file contains the HTTP yield data provider. It speaks the DefiLlama
/pools shape and normalizes the wire payload into YieldOpportunity values,
deriving a 1-10 risk score from the provider's impermanent-loss and
stability signals. All requests run through the shared rate limiter and the
default retry policy.

*/

package datafetcher

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/elys-network/ara/internal/logger"
	"github.com/elys-network/ara/internal/ratelimit"
	"github.com/elys-network/ara/internal/retry"
	"github.com/elys-network/ara/internal/types"
	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog"
)

// HTTPProvider fetches pool data from a DefiLlama-style yields API.
type HTTPProvider struct {
	logger  zerolog.Logger
	client  *resty.Client
	limiter *ratelimit.Limiter
}

// poolPayload is the provider's wire format for one pool.
type poolPayload struct {
	Chain       string   `json:"chain"`
	Project     string   `json:"project"`
	Pool        string   `json:"pool"`
	Symbol      string   `json:"symbol"`
	APY         float64  `json:"apy"`
	APYBase     *float64 `json:"apyBase"`
	APYReward   *float64 `json:"apyReward"`
	TvlUSD      float64  `json:"tvlUsd"`
	ILRisk      string   `json:"ilRisk"`
	Stablecoin  bool     `json:"stablecoin"`
	Exposure    string   `json:"exposure"`
	SigmaAPY    float64  `json:"sigma"`
	Outlier     bool     `json:"outlier"`
}

type poolsResponse struct {
	Status string        `json:"status"`
	Data   []poolPayload `json:"data"`
}

// NewHTTPProvider creates a provider against the given base URL.
func NewHTTPProvider(baseURL string, limiter *ratelimit.Limiter) *HTTPProvider {
	client := resty.New()
	client.SetBaseURL(baseURL)
	client.SetTimeout(30 * time.Second)

	return &HTTPProvider{
		logger:  logger.GetForComponent("yield_provider"),
		client:  client,
		limiter: limiter,
	}
}

// Scan fetches and normalizes the current pool set. Outliers and pools the
// provider flags as broken are dropped here, before any engine filtering.
func (p *HTTPProvider) Scan(ctx context.Context) (types.ScanResult, error) {
	var parsed poolsResponse

	call := func() error {
		resp, err := p.client.R().
			SetContext(ctx).
			SetResult(&parsed).
			Get("/pools")
		if err != nil {
			return fmt.Errorf("yield provider request failed: %w", err)
		}
		if resp.IsError() {
			return fmt.Errorf("yield provider returned status %d: %s", resp.StatusCode(), resp.String())
		}
		return nil
	}

	err := p.limiter.Execute(ctx, func() error {
		return retry.Do(ctx, retry.DefaultPolicy, call)
	})
	if err != nil {
		return types.ScanResult{}, err
	}

	pools := make([]types.YieldOpportunity, 0, len(parsed.Data))
	for _, raw := range parsed.Data {
		if raw.Outlier || raw.APY <= 0 || raw.TvlUSD <= 0 {
			continue
		}
		opp := types.YieldOpportunity{
			ChainID:   strings.ToLower(raw.Chain),
			Protocol:  strings.ToLower(raw.Project),
			PoolID:    raw.Pool,
			Symbol:    raw.Symbol,
			APY:       raw.APY,
			TvlUSD:    raw.TvlUSD,
			RiskScore: deriveRiskScore(raw),
		}
		if raw.APYBase != nil {
			opp.BaseAPY = *raw.APYBase
		}
		if raw.APYReward != nil {
			opp.RewardAPY = *raw.APYReward
		}
		pools = append(pools, opp)
	}

	result := types.ScanResult{
		Pools: pools,
		Stats: types.ScanStats{
			PoolsScanned: len(parsed.Data),
			Source:       p.client.BaseURL,
			FetchedAt:    time.Now(),
		},
	}

	p.logger.Info().
		Int("fetched", len(parsed.Data)).
		Int("usable", len(pools)).
		Msg("Yield scan complete")

	return result, nil
}

// deriveRiskScore maps provider signals onto the 1-10 scale (lower safer).
// The provider's payload is untrusted, so the result is always clamped.
func deriveRiskScore(raw poolPayload) float64 {
	score := 5.0
	if raw.Stablecoin {
		score -= 2
	}
	if strings.EqualFold(raw.ILRisk, "yes") {
		score += 2
	}
	if raw.Exposure == "multi" {
		score += 1
	}
	// High APY volatility is the strongest single red flag the feed gives us.
	if raw.SigmaAPY > 1.0 {
		score += 1
	}
	if raw.TvlUSD >= 50_000_000 {
		score -= 1
	}
	if score < 1 {
		score = 1
	}
	if score > 10 {
		score = 10
	}
	return score
}
