package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"
)

// AgentConfig holds the runtime policy of one agent instance: timing,
// execution preferences, and safety limits. Loaded once at construction and
// only replaced through Merge, never mutated in place.
type AgentConfig struct {
	RiskProfile string `json:"risk_profile"`

	// --- Timing ---
	ScanInterval         time.Duration `json:"scan_interval"`
	FullAnalysisInterval time.Duration `json:"full_analysis_interval"` // also the rebalance cooldown

	// --- Execution preferences ---
	PreferZeroFeeSettlement bool    `json:"prefer_zero_fee_settlement"`
	MaxSlippagePct          float64 `json:"max_slippage_pct"`
	MaxBridgeFeePct         float64 `json:"max_bridge_fee_pct"`
	SafetyBufferUSD         float64 `json:"safety_buffer_usd"` // reserved against rounding when budgeting spends

	// --- Safety limits ---
	DailyLossLimitUSD        float64 `json:"daily_loss_limit_usd"`
	PauseOnConsecutiveErrors int     `json:"pause_on_consecutive_errors"`
}

// AgentConfigOverrides carries optional replacement values for Merge.
// Nil fields leave the current value untouched.
type AgentConfigOverrides struct {
	RiskProfile              *string        `json:"risk_profile,omitempty"`
	ScanInterval             *time.Duration `json:"scan_interval,omitempty"`
	FullAnalysisInterval     *time.Duration `json:"full_analysis_interval,omitempty"`
	PreferZeroFeeSettlement  *bool          `json:"prefer_zero_fee_settlement,omitempty"`
	MaxSlippagePct           *float64       `json:"max_slippage_pct,omitempty"`
	MaxBridgeFeePct          *float64       `json:"max_bridge_fee_pct,omitempty"`
	SafetyBufferUSD          *float64       `json:"safety_buffer_usd,omitempty"`
	DailyLossLimitUSD        *float64       `json:"daily_loss_limit_usd,omitempty"`
	PauseOnConsecutiveErrors *int           `json:"pause_on_consecutive_errors,omitempty"`
}

// DefaultAgentConfig is the baseline runtime policy.
var DefaultAgentConfig = AgentConfig{
	RiskProfile:              "balanced",
	ScanInterval:             5 * time.Minute,
	FullAnalysisInterval:     1 * time.Hour,
	PreferZeroFeeSettlement:  true,
	MaxSlippagePct:           1.0,
	MaxBridgeFeePct:          0.3,
	SafetyBufferUSD:          0.005,
	DailyLossLimitUSD:        100.0,
	PauseOnConsecutiveErrors: 3,
}

// AgentConfigFromEnv builds the runtime policy from defaults plus
// environment overrides. Unset variables keep their defaults; a set but
// unparseable variable is a startup failure, never a silent fallback.
func AgentConfigFromEnv() (AgentConfig, error) {
	var o AgentConfigOverrides

	if RiskProfileName != "" {
		o.RiskProfile = &RiskProfileName
	}

	var err error
	if o.ScanInterval, err = getEnvAsDuration("SCAN_INTERVAL"); err != nil {
		return AgentConfig{}, err
	}
	if o.FullAnalysisInterval, err = getEnvAsDuration("FULL_ANALYSIS_INTERVAL"); err != nil {
		return AgentConfig{}, err
	}
	if o.MaxSlippagePct, err = getEnvAsFloat64Ptr("MAX_SLIPPAGE_PCT"); err != nil {
		return AgentConfig{}, err
	}
	if o.MaxBridgeFeePct, err = getEnvAsFloat64Ptr("MAX_BRIDGE_FEE_PCT"); err != nil {
		return AgentConfig{}, err
	}
	if o.SafetyBufferUSD, err = getEnvAsFloat64Ptr("SAFETY_BUFFER_USD"); err != nil {
		return AgentConfig{}, err
	}
	if o.DailyLossLimitUSD, err = getEnvAsFloat64Ptr("DAILY_LOSS_LIMIT_USD"); err != nil {
		return AgentConfig{}, err
	}
	if o.PauseOnConsecutiveErrors, err = getEnvAsIntPtr("PAUSE_ON_CONSECUTIVE_ERRORS"); err != nil {
		return AgentConfig{}, err
	}

	return DefaultAgentConfig.Merge(o)
}

func getEnvAsDuration(key string) (*time.Duration, error) {
	valueStr, exists := os.LookupEnv(key)
	if !exists || valueStr == "" {
		return nil, nil
	}
	value, err := time.ParseDuration(valueStr)
	if err != nil {
		return nil, errors.New("environment variable " + key + " must be a valid duration, got: " + valueStr)
	}
	return &value, nil
}

func getEnvAsFloat64Ptr(key string) (*float64, error) {
	valueStr, exists := os.LookupEnv(key)
	if !exists || valueStr == "" {
		return nil, nil
	}
	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return nil, errors.New("environment variable " + key + " must be a valid float64, got: " + valueStr)
	}
	return &value, nil
}

func getEnvAsIntPtr(key string) (*int, error) {
	valueStr, exists := os.LookupEnv(key)
	if !exists || valueStr == "" {
		return nil, nil
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return nil, errors.New("environment variable " + key + " must be a valid integer, got: " + valueStr)
	}
	return &value, nil
}

// Validate checks the agent configuration. Invalid configuration is a
// construction-time failure.
func (c AgentConfig) Validate() error {
	if _, err := ProfileByName(c.RiskProfile); err != nil {
		return err
	}
	if c.ScanInterval <= 0 {
		return fmt.Errorf("ScanInterval must be positive, got %s", c.ScanInterval)
	}
	if c.FullAnalysisInterval <= 0 {
		return fmt.Errorf("FullAnalysisInterval must be positive, got %s", c.FullAnalysisInterval)
	}
	if c.MaxSlippagePct < 0 {
		return fmt.Errorf("MaxSlippagePct cannot be negative, got %f", c.MaxSlippagePct)
	}
	if c.MaxBridgeFeePct < 0 {
		return fmt.Errorf("MaxBridgeFeePct cannot be negative, got %f", c.MaxBridgeFeePct)
	}
	if c.SafetyBufferUSD < 0 {
		return fmt.Errorf("SafetyBufferUSD cannot be negative, got %f", c.SafetyBufferUSD)
	}
	if c.DailyLossLimitUSD < 0 {
		return fmt.Errorf("DailyLossLimitUSD cannot be negative, got %f", c.DailyLossLimitUSD)
	}
	if c.PauseOnConsecutiveErrors <= 0 {
		return fmt.Errorf("PauseOnConsecutiveErrors must be positive, got %d", c.PauseOnConsecutiveErrors)
	}
	return nil
}

// Merge returns a new configuration with the override values applied.
// The receiver is never modified; an invalid result is rejected whole.
func (c AgentConfig) Merge(o AgentConfigOverrides) (AgentConfig, error) {
	merged := c
	if o.RiskProfile != nil {
		merged.RiskProfile = *o.RiskProfile
	}
	if o.ScanInterval != nil {
		merged.ScanInterval = *o.ScanInterval
	}
	if o.FullAnalysisInterval != nil {
		merged.FullAnalysisInterval = *o.FullAnalysisInterval
	}
	if o.PreferZeroFeeSettlement != nil {
		merged.PreferZeroFeeSettlement = *o.PreferZeroFeeSettlement
	}
	if o.MaxSlippagePct != nil {
		merged.MaxSlippagePct = *o.MaxSlippagePct
	}
	if o.MaxBridgeFeePct != nil {
		merged.MaxBridgeFeePct = *o.MaxBridgeFeePct
	}
	if o.SafetyBufferUSD != nil {
		merged.SafetyBufferUSD = *o.SafetyBufferUSD
	}
	if o.DailyLossLimitUSD != nil {
		merged.DailyLossLimitUSD = *o.DailyLossLimitUSD
	}
	if o.PauseOnConsecutiveErrors != nil {
		merged.PauseOnConsecutiveErrors = *o.PauseOnConsecutiveErrors
	}
	if err := merged.Validate(); err != nil {
		return AgentConfig{}, fmt.Errorf("merged configuration is invalid: %w", err)
	}
	return merged, nil
}
