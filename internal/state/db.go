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
		CREATE TABLE IF NOT EXISTS synthesis_parameters (
			params_id SERIAL PRIMARY KEY,
			version INTEGER NOT NULL DEFAULT 1,
			config_name VARCHAR(255) NOT NULL DEFAULT 'default',
			is_active BOOLEAN NOT NULL DEFAULT FALSE,
			activated_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
			created_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
			leverage_tiers DOUBLE PRECISION[] NOT NULL,
			safety_margin DECIMAL(10, 4) NOT NULL,
			hard_leverage_cap DECIMAL(10, 4) NOT NULL,
			min_liquidity_usd DECIMAL(20, 8) NOT NULL,
			max_borrow_apy DECIMAL(10, 4) NOT NULL,
			maturity_tolerance_days INTEGER NOT NULL,
			max_markets_per_collateral INTEGER NOT NULL,
			CONSTRAINT uq_synthesis_parameters_config_version UNIQUE (config_name, version)
		);
		CREATE INDEX IF NOT EXISTS idx_synthesis_parameters_config_active ON synthesis_parameters(config_name, is_active, activated_at DESC);

		CREATE TABLE IF NOT EXISTS synthesis_runs (
			run_id UUID PRIMARY KEY,
			run_timestamp TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
			opportunity_count INTEGER NOT NULL,
			top_apy DECIMAL(10, 4),
			categories TEXT[]
		);
		CREATE INDEX IF NOT EXISTS idx_synthesis_runs_timestamp ON synthesis_runs(run_timestamp DESC);

		CREATE TABLE IF NOT EXISTS opportunities (
			opportunity_id SERIAL PRIMARY KEY,
			run_id UUID NOT NULL REFERENCES synthesis_runs(run_id) ON DELETE CASCADE,
			fingerprint VARCHAR(12) NOT NULL,
			category VARCHAR(100) NOT NULL,
			protocol VARCHAR(100) NOT NULL,
			chain VARCHAR(50) NOT NULL,
			display_asset VARCHAR(100) NOT NULL,
			apy DECIMAL(10, 4) NOT NULL,
			tvl_usd DECIMAL(20, 8) NOT NULL,
			leverage DECIMAL(10, 4) NOT NULL,
			supply_apy DECIMAL(10, 4),
			borrow_apy DECIMAL(10, 4),
			risk_level VARCHAR(20) NOT NULL,
			maturity_date TIMESTAMPTZ,
			source_url TEXT,
			extra JSONB
		);
		CREATE INDEX IF NOT EXISTS idx_opportunities_run ON opportunities(run_id);
		CREATE INDEX IF NOT EXISTS idx_opportunities_fingerprint ON opportunities(fingerprint);
		CREATE INDEX IF NOT EXISTS idx_opportunities_category ON opportunities(category);
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
