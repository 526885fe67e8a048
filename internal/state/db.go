// ./internal/state/db.go
package state

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq" // PostgreSQL driver
	"github.com/rs/zerolog/log"
)

// DB is a global database connection pool.
var DB *sql.DB

// DBConfig holds database connection parameters.
type DBConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  string // "disable", "require", "verify-full", etc.
}

// InitDB initializes the database connection pool.
func InitDB(cfg DBConfig) error {
	psqlInfo := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.DBName, cfg.SSLMode)

	var err error
	DB, err = sql.Open("postgres", psqlInfo)
	if err != nil {
		return fmt.Errorf("failed to open database connection: %w", err)
	}

	DB.SetMaxOpenConns(25)
	DB.SetMaxIdleConns(25)
	DB.SetConnMaxLifetime(5 * time.Minute)

	err = DB.Ping()
	if err != nil {
		DB.Close()
		return fmt.Errorf("failed to ping database: %w", err)
	}

	log.Info().Msg("Successfully connected to the PostgreSQL database!")
	return nil
}

// CloseDB closes the database connection pool.
func CloseDB() {
	if DB != nil {
		log.Info().Msg("Closing database connection...")
		if err := DB.Close(); err != nil {
			log.Error().Err(err).Msg("Error closing database connection")
		}
	}
}

// EnsureSchema applies the necessary DDL to create tables if they don't exist.
func EnsureSchema() error {
	if DB == nil {
		return fmt.Errorf("database not initialized")
	}

	schemaSQL := `
		CREATE TABLE IF NOT EXISTS positions (
			position_id VARCHAR(255) PRIMARY KEY,
			chain_id VARCHAR(64) NOT NULL,
			protocol VARCHAR(128) NOT NULL,
			pool_id VARCHAR(255) NOT NULL,
			symbol VARCHAR(64) NOT NULL DEFAULT '',
			balance_usd DECIMAL(20, 8) NOT NULL,
			entry_apy DECIMAL(10, 4) NOT NULL DEFAULT 0,
			current_apy DECIMAL(10, 4) NOT NULL DEFAULT 0,
			unrealized_pnl DECIMAL(20, 8) NOT NULL DEFAULT 0,
			is_idle BOOLEAN NOT NULL DEFAULT FALSE,
			entered_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP
		);
		CREATE INDEX IF NOT EXISTS idx_positions_chain ON positions(chain_id);
		CREATE INDEX IF NOT EXISTS idx_positions_protocol ON positions(protocol);

		CREATE TABLE IF NOT EXISTS trade_executions (
			execution_id VARCHAR(64) PRIMARY KEY,
			plan_id VARCHAR(64) NOT NULL,
			action VARCHAR(32) NOT NULL,
			status VARCHAR(32) NOT NULL,
			receipt_id TEXT,
			amount_usd DECIMAL(20, 8) NOT NULL,
			actual_cost_usd DECIMAL(20, 8) NOT NULL DEFAULT 0,
			actual_received_usd DECIMAL(20, 8) NOT NULL DEFAULT 0,
			opportunity JSONB,
			error TEXT,
			started_at TIMESTAMPTZ NOT NULL,
			completed_at TIMESTAMPTZ
		);
		CREATE INDEX IF NOT EXISTS idx_trade_executions_started ON trade_executions(started_at DESC);
		CREATE INDEX IF NOT EXISTS idx_trade_executions_plan ON trade_executions(plan_id);

		CREATE TABLE IF NOT EXISTS cycle_snapshots (
			snapshot_id SERIAL PRIMARY KEY,
			cycle_number INTEGER NOT NULL,
			snapshot_timestamp TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
			risk_profile VARCHAR(64) NOT NULL,

			-- Pre-decision state
			initial_total_value_usd DECIMAL(20, 8) NOT NULL,
			initial_idle_usd DECIMAL(20, 8) NOT NULL,
			initial_positions JSONB,

			-- The decision
			decision TEXT NOT NULL,
			plan JSONB,

			-- The outcome
			executions JSONB,
			final_total_value_usd DECIMAL(20, 8) NOT NULL,
			final_idle_usd DECIMAL(20, 8) NOT NULL,
			total_cost_usd DECIMAL(20, 8) NOT NULL DEFAULT 0,
			total_received_usd DECIMAL(20, 8) NOT NULL DEFAULT 0,
			error_count INTEGER NOT NULL DEFAULT 0
		);
		CREATE INDEX IF NOT EXISTS idx_cycle_snapshots_timestamp ON cycle_snapshots(snapshot_timestamp DESC);
		CREATE INDEX IF NOT EXISTS idx_cycle_snapshots_cycle ON cycle_snapshots(cycle_number DESC);

		-- Cycle counter table for persistent global cycle tracking
		CREATE TABLE IF NOT EXISTS cycle_counter (
			id INTEGER PRIMARY KEY DEFAULT 1,
			current_cycle INTEGER NOT NULL DEFAULT 0,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
			CONSTRAINT single_row_check CHECK (id = 1)
		);

		-- Insert initial row if it doesn't exist
		INSERT INTO cycle_counter (id, current_cycle)
		VALUES (1, 0)
		ON CONFLICT (id) DO NOTHING;
	`
	_, err := DB.Exec(schemaSQL)
	if err != nil {
		return fmt.Errorf("failed to execute schema DDL: %w", err)
	}
	log.Info().Msg("Database schema ensured.")
	return nil
}

// TestDBConnection tests if the database connection is healthy
func TestDBConnection() error {
	if DB == nil {
		return fmt.Errorf("database connection is nil")
	}

	// Use a short timeout context for health checks
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err := DB.PingContext(ctx)
	if err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}

	return nil
}
