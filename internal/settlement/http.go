/*

This file contains the HTTP settlement network client. It talks to a
custody-style REST API: session first, then an authenticated token for
balance reads and payment submission. Amounts go over the wire as integer
minimum-unit strings, never as floats.

*/

package settlement

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/elys-network/ara/internal/logger"
	"github.com/elys-network/ara/internal/ratelimit"
	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// assetPrecisions maps asset symbols to their ledger decimal precision.
var assetPrecisions = map[string]int{
	"USDC": 6,
	"USDT": 6,
	"DAI":  18,
}

const defaultAssetPrecision = 6

// HTTPClient is the production NetworkClient over the settlement REST API.
type HTTPClient struct {
	logger  zerolog.Logger
	client  *resty.Client
	limiter *ratelimit.Limiter
	apiKey  string
	address string

	mu            sync.Mutex
	connected     bool
	authenticated bool
}

// NewHTTPClient creates a client against the given settlement endpoint.
func NewHTTPClient(baseURL, apiKey, address string, limiter *ratelimit.Limiter) *HTTPClient {
	client := resty.New()
	client.SetBaseURL(baseURL)
	client.SetTimeout(30 * time.Second)

	return &HTTPClient{
		logger:  logger.GetForComponent("settlement_client"),
		client:  client,
		limiter: limiter,
		apiKey:  apiKey,
		address: address,
	}
}

// Connect verifies the endpoint is reachable and opens the session.
func (c *HTTPClient) Connect(ctx context.Context) error {
	err := c.limiter.Execute(ctx, func() error {
		resp, err := c.client.R().SetContext(ctx).Get("/v1/health")
		if err != nil {
			return fmt.Errorf("settlement health check failed: %w", err)
		}
		if resp.IsError() {
			return fmt.Errorf("settlement endpoint returned status %d", resp.StatusCode())
		}
		return nil
	})
	if err != nil {
		return err
	}

	c.mu.Lock()
	c.connected = true
	c.mu.Unlock()
	c.logger.Info().Str("endpoint", c.client.BaseURL).Msg("Settlement network connected")
	return nil
}

// Authenticate exchanges the API key for a session token.
func (c *HTTPClient) Authenticate(ctx context.Context) error {
	if !c.Connected() {
		return ErrNotConnected
	}

	var session struct {
		Token string `json:"token"`
	}
	err := c.limiter.Execute(ctx, func() error {
		resp, err := c.client.R().
			SetContext(ctx).
			SetBody(map[string]string{"api_key": c.apiKey, "address": c.address}).
			SetResult(&session).
			Post("/v1/sessions")
		if err != nil {
			return fmt.Errorf("settlement authentication request failed: %w", err)
		}
		if resp.IsError() {
			return fmt.Errorf("settlement authentication returned status %d", resp.StatusCode())
		}
		return nil
	})
	if err != nil {
		return err
	}
	if session.Token == "" {
		return fmt.Errorf("settlement authentication returned an empty token")
	}

	c.client.SetAuthToken(session.Token)
	c.mu.Lock()
	c.authenticated = true
	c.mu.Unlock()
	c.logger.Info().Msg("Settlement session authenticated")
	return nil
}

// Connected reports whether a usable session exists.
func (c *HTTPClient) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

// GetLedgerBalance returns the available balance of an asset in USD
// equivalent.
func (c *HTTPClient) GetLedgerBalance(ctx context.Context, asset string) (float64, error) {
	if !c.Connected() {
		return 0, ErrNotConnected
	}

	var payload struct {
		Asset     string          `json:"asset"`
		Available decimal.Decimal `json:"available"`
	}
	err := c.limiter.Execute(ctx, func() error {
		resp, err := c.client.R().
			SetContext(ctx).
			SetResult(&payload).
			SetQueryParam("asset", asset).
			Get(fmt.Sprintf("/v1/accounts/%s/balances", c.address))
		if err != nil {
			return fmt.Errorf("settlement balance request failed: %w", err)
		}
		if resp.IsError() {
			return fmt.Errorf("settlement balance returned status %d", resp.StatusCode())
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	balance, _ := payload.Available.Float64()
	return balance, nil
}

// AssetPrecision returns the ledger precision for an asset.
func (c *HTTPClient) AssetPrecision(asset string) int {
	if precision, ok := assetPrecisions[strings.ToUpper(asset)]; ok {
		return precision
	}
	return defaultAssetPrecision
}

// Transfer submits a payment of the given minimum-unit amount and returns
// the network's receipt identifier.
func (c *HTTPClient) Transfer(ctx context.Context, destination, asset string, amount decimal.Decimal) (string, error) {
	if !c.Connected() {
		return "", ErrNotConnected
	}

	var payment struct {
		PaymentID string `json:"payment_id"`
		Status    string `json:"status"`
	}
	err := c.limiter.Execute(ctx, func() error {
		resp, err := c.client.R().
			SetContext(ctx).
			SetBody(map[string]string{
				"source":      c.address,
				"destination": destination,
				"asset":       asset,
				"amount":      amount.String(),
			}).
			SetResult(&payment).
			Post("/v1/payments")
		if err != nil {
			return fmt.Errorf("settlement payment request failed: %w", err)
		}
		if resp.IsError() {
			return fmt.Errorf("settlement payment returned status %d: %s", resp.StatusCode(), resp.String())
		}
		return nil
	})
	if err != nil {
		return "", err
	}
	if payment.PaymentID == "" {
		return "", ErrMissingReceipt
	}

	c.logger.Info().
		Str("paymentID", payment.PaymentID).
		Str("destination", destination).
		Str("amount", amount.String()).
		Msg("Settlement payment submitted")
	return payment.PaymentID, nil
}

// Disconnect tears the session down.
func (c *HTTPClient) Disconnect() error {
	c.mu.Lock()
	c.connected = false
	c.authenticated = false
	c.mu.Unlock()
	c.client.SetAuthToken("")
	c.logger.Info().Msg("Settlement network disconnected")
	return nil
}
