// ./internal/state/parameters_store.go
package state

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/lib/pq"
	"github.com/rs/zerolog/log"

	"github.com/stableyield/loopscout/internal/types"
)

// SaveSynthesisParameters saves a new version of synthesis parameters.
func SaveSynthesisParameters(params types.SynthesisParameters, configName string, version int, makeActive bool) (int64, error) {
	if DB == nil {
		return 0, fmt.Errorf("database not initialized")
	}

	tx, err := DB.Begin()
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if p := recover(); p != nil {
			tx.Rollback()
			panic(p) // Re-panic after rollback
		} else if err != nil {
			tx.Rollback() // Rollback if error occurred
		}
	}()

	if makeActive {
		stmtDeactivate := `UPDATE synthesis_parameters SET is_active = FALSE WHERE config_name = $1 AND is_active = TRUE;`
		_, err = tx.Exec(stmtDeactivate, configName)
		if err != nil {
			return 0, fmt.Errorf("failed to deactivate existing active parameters for %s: %w", configName, err)
		}
	}

	stmt := `
        INSERT INTO synthesis_parameters (
            version, config_name, is_active, activated_at, created_at,
            leverage_tiers, safety_margin, hard_leverage_cap,
            min_liquidity_usd, max_borrow_apy,
            maturity_tolerance_days, max_markets_per_collateral
        ) VALUES (
            $1, $2, $3, $4, $5,
            $6, $7, $8,
            $9, $10,
            $11, $12
        ) RETURNING params_id;`

	var paramsID int64
	currentTime := time.Now()
	err = tx.QueryRow(
		stmt,
		version, configName, makeActive, currentTime, currentTime,
		pq.Array(params.LeverageTiers), params.SafetyMargin, params.HardLeverageCap,
		params.MinLiquidityUSD, params.MaxBorrowAPY,
		params.MaturityToleranceDays, params.MaxMarketsPerCollateral,
	).Scan(&paramsID)

	if err != nil {
		return 0, fmt.Errorf("failed to insert synthesis parameters: %w", err)
	}

	err = tx.Commit()
	if err != nil {
		return 0, fmt.Errorf("failed to commit transaction: %w", err)
	}

	log.Info().
		Int("version", version).
		Str("config", configName).
		Int64("params_id", paramsID).
		Bool("active", makeActive).
		Msg("Saved synthesis parameters")
	return paramsID, nil
}

// LoadActiveSynthesisParameters loads the currently active synthesis
// parameters for a config name. Returns sql.ErrNoRows (wrapped) when no
// active row exists; callers typically fall back to the compiled defaults.
func LoadActiveSynthesisParameters(configName string) (*types.SynthesisParameters, error) {
	if DB == nil {
		return nil, fmt.Errorf("database not initialized")
	}

	stmt := `
        SELECT leverage_tiers, safety_margin, hard_leverage_cap,
               min_liquidity_usd, max_borrow_apy,
               maturity_tolerance_days, max_markets_per_collateral
        FROM synthesis_parameters
        WHERE config_name = $1 AND is_active = TRUE
        ORDER BY activated_at DESC
        LIMIT 1;`

	var params types.SynthesisParameters
	err := DB.QueryRow(stmt, configName).Scan(
		pq.Array(&params.LeverageTiers), &params.SafetyMargin, &params.HardLeverageCap,
		&params.MinLiquidityUSD, &params.MaxBorrowAPY,
		&params.MaturityToleranceDays, &params.MaxMarketsPerCollateral,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("no active synthesis parameters for config %s: %w", configName, err)
		}
		return nil, fmt.Errorf("failed to load active synthesis parameters: %w", err)
	}

	return &params, nil
}
