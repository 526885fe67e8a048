package bridge

import (
	"context"
	"fmt"
	"time"

	"github.com/elys-network/ara/internal/logger"
	"github.com/elys-network/ara/internal/ratelimit"
	"github.com/elys-network/ara/internal/retry"
	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog"
)

// HTTPClient talks to a LI.FI-style bridge aggregator over HTTP. Quote calls
// run through the shared rate limiter and retry policy like every other
// external call.
type HTTPClient struct {
	logger  zerolog.Logger
	client  *resty.Client
	limiter *ratelimit.Limiter
}

// quoteResponse is the aggregator's wire format for one quote.
type quoteResponse struct {
	ToAmountUSD    float64 `json:"toAmountUsd"`
	ToAmountMinUSD float64 `json:"toAmountMinUsd"`
	FeeUSD         float64 `json:"feeUsd"`
	Bridge         string  `json:"bridge"`
	EstimatedGas   float64 `json:"estimatedGasUsd"`
	EstimatedSec   int     `json:"estimatedSeconds"`
	Message        string  `json:"message,omitempty"`
}

// NewHTTPClient creates an aggregator client against the given base URL.
func NewHTTPClient(baseURL string, limiter *ratelimit.Limiter) *HTTPClient {
	client := resty.New()
	client.SetBaseURL(baseURL)
	client.SetTimeout(30 * time.Second)

	return &HTTPClient{
		logger:  logger.GetForComponent("bridge_client"),
		client:  client,
		limiter: limiter,
	}
}

// GetQuote fetches the best route for a cross-chain move. A 404 from the
// aggregator maps to ErrNoRoute and is not retried.
func (c *HTTPClient) GetQuote(ctx context.Context, fromChain, toChain, fromToken, toToken string, amountUSD float64, userAddress string) (*Quote, error) {
	var parsed quoteResponse

	call := func() error {
		resp, err := c.client.R().
			SetContext(ctx).
			SetQueryParams(map[string]string{
				"fromChain":   fromChain,
				"toChain":     toChain,
				"fromToken":   fromToken,
				"toToken":     toToken,
				"fromAmount":  fmt.Sprintf("%.2f", amountUSD),
				"fromAddress": userAddress,
			}).
			SetResult(&parsed).
			Get("/quote")
		if err != nil {
			return fmt.Errorf("bridge quote request failed: %w", err)
		}
		if resp.StatusCode() == 404 {
			return ErrNoRoute
		}
		if resp.IsError() {
			return fmt.Errorf("bridge quote returned status %d: %s", resp.StatusCode(), resp.String())
		}
		return nil
	}

	err := c.limiter.Execute(ctx, func() error {
		return retry.Do(ctx, retry.DefaultPolicy, call)
	})
	if err != nil {
		return nil, err
	}
	if parsed.Bridge == "" {
		return nil, ErrNoRoute
	}

	quote := &Quote{
		ToAmountUSD:    parsed.ToAmountUSD,
		ToAmountMinUSD: parsed.ToAmountMinUSD,
		FeeUSD:         parsed.FeeUSD,
		BridgeName:     parsed.Bridge,
		EstimatedGas:   parsed.EstimatedGas,
		EstimatedTime:  time.Duration(parsed.EstimatedSec) * time.Second,
	}

	c.logger.Debug().
		Str("bridge", quote.BridgeName).
		Str("fromChain", fromChain).
		Str("toChain", toChain).
		Float64("amountUSD", amountUSD).
		Float64("feeUSD", quote.FeeUSD).
		Msg("Bridge quote received")

	return quote, nil
}
