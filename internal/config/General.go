package config

import (
	"errors"

	"os"

	"github.com/rs/zerolog/log"
)

// AppConfig holds all application configuration loaded from environment
// variables. These are populated at startup by the LoadConfig function.
var (
	// RiskProfileName selects which named risk profile the agent runs under.
	RiskProfileName string

	// SettlementAsset is the asset symbol used for idle cash on the
	// settlement network (e.g. "USDC").
	SettlementAsset string

	// SettlementAddress is the agent's own address on the settlement network,
	// used as the destination for consolidations and as the bridge sender.
	SettlementAddress string
)

// LoadConfig loads configuration from environment variables and sets the
// global config vars. Endpoint variables are required; the risk profile
// defaults to "balanced" when unset.
func LoadConfig() error {
	log.Info().Msg("Loading application configuration from environment variables...")

	var err error

	RiskProfileName = getEnvOr("RISK_PROFILE", "balanced")
	if _, err = ProfileByName(RiskProfileName); err != nil {
		return err
	}

	SettlementAsset = getEnvOr("SETTLEMENT_ASSET", "USDC")

	SettlementAddress, err = getEnv("SETTLEMENT_ADDRESS")
	if err != nil {
		return err
	}

	if err := loadEndpointConfig(); err != nil {
		return err
	}

	log.Debug().
		Str("RiskProfile", RiskProfileName).
		Str("SettlementAsset", SettlementAsset).
		Msg("Configuration loaded successfully.")

	return nil
}

// getEnv retrieves a string environment variable. Returns error if not set.
func getEnv(key string) (string, error) {
	if value, exists := os.LookupEnv(key); exists {
		return value, nil
	}
	return "", errors.New("environment variable " + key + " is required but not set")
}

// getEnvOr retrieves a string environment variable with a fallback default.
func getEnvOr(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists && value != "" {
		return value
	}
	return fallback
}
