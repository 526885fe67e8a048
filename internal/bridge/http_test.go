package bridge

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

func TestGetQuoteParsesAggregatorResponse(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/quote", r.URL.Path)
		q := r.URL.Query()
		assert.Equal(t, "ethereum", q.Get("fromChain"))
		assert.Equal(t, "arbitrum", q.Get("toChain"))
		assert.Equal(t, "1000.00", q.Get("fromAmount"))

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"toAmountUsd": 997.5,
			"toAmountMinUsd": 995.0,
			"feeUsd": 1.0,
			"bridge": "across",
			"estimatedGasUsd": 1.5,
			"estimatedSeconds": 600
		}`))
	}))
	defer server.Close()

	client := NewHTTPClient(server.URL, testLimiter(t))
	quote, err := client.GetQuote(context.Background(),
		"ethereum", "arbitrum", "USDC", "USDC", 1000, "agent-address")
	require.NoError(t, err)

	assert.Equal(t, "across", quote.BridgeName)
	assert.InDelta(t, 997.5, quote.ToAmountUSD, 1e-9)
	assert.InDelta(t, 995.0, quote.ToAmountMinUSD, 1e-9)
	assert.InDelta(t, 1.0, quote.FeeUSD, 1e-9)
	assert.InDelta(t, 1.5, quote.EstimatedGas, 1e-9)
	assert.Equal(t, 10*time.Minute, quote.EstimatedTime)
}

func TestGetQuoteMapsNotFoundToNoRoute(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "no route", http.StatusNotFound)
	}))
	defer server.Close()

	client := NewHTTPClient(server.URL, testLimiter(t))
	_, err := client.GetQuote(context.Background(),
		"solana", "bsc", "USDC", "USDC", 50, "agent-address")
	assert.ErrorIs(t, err, ErrNoRoute)
}

func TestGetQuoteWithoutBridgeNameIsNoRoute(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"toAmountUsd": 0, "bridge": ""}`))
	}))
	defer server.Close()

	client := NewHTTPClient(server.URL, testLimiter(t))
	_, err := client.GetQuote(context.Background(),
		"ethereum", "arbitrum", "USDC", "USDC", 1000, "agent-address")
	assert.ErrorIs(t, err, ErrNoRoute)
}
