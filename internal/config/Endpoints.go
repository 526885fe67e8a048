package config

import (
	"github.com/rs/zerolog/log"
)

// Endpoint configuration loaded from environment variables.
// These are populated at startup by the LoadConfig function.
var (
	// YieldAPI is the base URL of the yield data provider.
	YieldAPI string
	// BridgeAPI is the base URL of the bridge aggregator.
	BridgeAPI string
	// SettlementEndpoint is the endpoint of the settlement network service.
	SettlementEndpoint string
)

// loadEndpointConfig loads endpoint configuration from environment variables.
// This function is called by LoadConfig() in General.go.
func loadEndpointConfig() error {
	log.Info().Msg("Loading endpoint configuration from environment variables...")

	var err error

	YieldAPI, err = getEnv("YIELD_API")
	if err != nil {
		return err
	}

	BridgeAPI, err = getEnv("BRIDGE_API")
	if err != nil {
		return err
	}

	SettlementEndpoint, err = getEnv("SETTLEMENT_ENDPOINT")
	if err != nil {
		return err
	}

	log.Debug().
		Str("YieldAPI", YieldAPI).
		Str("BridgeAPI", BridgeAPI).
		Str("SettlementEndpoint", SettlementEndpoint).
		Msg("Endpoint configuration loaded successfully.")

	return nil
}
