package main

import (
	"context"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/elys-network/ara/internal/agent"
	"github.com/elys-network/ara/internal/bridge"
	"github.com/elys-network/ara/internal/config"
	"github.com/elys-network/ara/internal/datafetcher"
	"github.com/elys-network/ara/internal/deposit"
	"github.com/elys-network/ara/internal/engine"
	"github.com/elys-network/ara/internal/executor"
	"github.com/elys-network/ara/internal/logger"
	"github.com/elys-network/ara/internal/notify"
	"github.com/elys-network/ara/internal/ratelimit"
	"github.com/elys-network/ara/internal/settlement"
	"github.com/elys-network/ara/internal/state"
	"github.com/elys-network/ara/internal/web"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
)

// main is the entry point for the rebalancing agent.
func main() {
	// --- 1. Initialization Phase ---
	if err := godotenv.Load(); err != nil {
		log.Warn().Msg("Warning: .env file not found. Relying on OS environment variables.")
	}

	// Load configuration from environment variables
	if err := config.LoadConfig(); err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	logger.Initialize(os.Getenv("LOG_LEVEL"))
	log.Info().Msg("Autonomous Rebalancing Agent starting...")

	// Initialize Database Connection
	dbCfg := state.DBConfig{
		Host: os.Getenv("DB_HOST"), Port: mustAtoi(os.Getenv("DB_PORT"), 5432),
		User: os.Getenv("DB_USER"), Password: os.Getenv("DB_PASSWORD"),
		DBName: os.Getenv("DB_NAME"), SSLMode: os.Getenv("DB_SSLMODE"),
	}
	if err := state.InitDB(dbCfg); err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize database")
	}
	defer state.CloseDB()
	if err := state.EnsureSchema(); err != nil {
		log.Fatal().Err(err).Msg("Failed to ensure database schema")
	}

	// Agent policy: defaults merged with environment overrides
	agentCfg, err := config.AgentConfigFromEnv()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load agent configuration")
	}

	// --- 2. External Collaborators ---
	limiter, err := ratelimit.New(ratelimit.Config{
		RatePerSecond: 5,
		Burst:         10,
		Cooldown:      10 * time.Second,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create rate limiter")
	}
	defer limiter.Close()

	provider := datafetcher.NewHTTPProvider(config.YieldAPI, limiter)
	bridgeClient := bridge.NewHTTPClient(config.BridgeAPI, limiter)
	settlementClient := settlement.NewHTTPClient(
		config.SettlementEndpoint,
		os.Getenv("SETTLEMENT_API_KEY"),
		config.SettlementAddress,
		limiter,
	)

	positions := state.NewPositionStore()
	snapshots := state.NewSnapshotStore()
	notifier := notify.NewMultiSink(notify.NewConsoleSink())

	// --- 3. Core Assembly with Dependency Injection ---
	decisionEngine, err := engine.New(agentCfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create decision engine")
	}

	tradeExecutor, err := executor.New(executor.Config{
		Agent:      agentCfg,
		Settlement: settlementClient,
		Bridge:     bridgeClient,
		Deposits:   deposit.NewRegistry(),
		Portfolio:  positions,
		Notifier:   notifier,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create trade executor")
	}

	initialCycle, err := state.GetCurrentCycleNumber()
	if err != nil {
		log.Warn().Err(err).Msg("Could not load persistent cycle counter, starting from 0")
	}

	rebalancer, err := agent.New(agent.Config{
		Agent:        agentCfg,
		Engine:       decisionEngine,
		Executor:     tradeExecutor,
		Provider:     provider,
		Portfolio:    positions,
		Settlement:   settlementClient,
		Snapshots:    snapshots,
		Notifier:     notifier,
		InitialCycle: initialCycle,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create agent")
	}

	// --- 4. Web Server ---
	webPort := os.Getenv("WEB_PORT")
	if webPort == "" {
		webPort = "8080"
	}
	webServer := web.NewWebServer(webPort, rebalancer, positions)
	go func() {
		log.Info().Str("port", webPort).Msg("Starting agent status server")
		if err := webServer.Start(); err != nil {
			log.Error().Err(err).Msg("Web server stopped")
		}
	}()

	// --- 5. Run Until Signalled ---
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := rebalancer.Start(ctx); err != nil {
		log.Fatal().Err(err).Msg("Failed to start agent")
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	log.Info().Str("signal", sig.String()).Msg("Shutdown signal received")

	rebalancer.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := webServer.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Web server shutdown failed")
	}

	log.Info().Msg("Agent shut down cleanly")
}

// Helper to convert string to int with a default value
func mustAtoi(s string, defaultValue int) int {
	i, err := strconv.Atoi(s)
	if err != nil {
		return defaultValue
	}
	return i
}
