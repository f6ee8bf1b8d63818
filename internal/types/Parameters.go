/*

This file contains the tunable constants for loop synthesis. Different
protocol families run with different parameter sets, so nothing in here is
hard-coded inside the core logic.

*/

package types

// SynthesisParameters holds all thresholds and caps used by the loop
// synthesizer when pairing collateral sources with borrow markets. Protocol
// families override individual values; see internal/config for the defaults.
type SynthesisParameters struct {
	// LeverageTiers is the fixed set of leverage multiples to consider.
	// 1.0 is never emitted: an unlooped position is a simple lend.
	LeverageTiers []float64 `json:"leverage_tiers"`

	// SafetyMargin scales the theoretical max leverage derived from the
	// collateral factor (e.g., 0.6 retains a ~40% buffer to liquidation).
	SafetyMargin float64 `json:"safety_margin"`

	// HardLeverageCap bounds leverage regardless of theoretical headroom.
	// Small de-peg events wipe thin buffers, so stablecoin loops cap at 5x.
	HardLeverageCap float64 `json:"hard_leverage_cap"`

	// MinLiquidityUSD excludes markets too thin to absorb a real position.
	MinLiquidityUSD float64 `json:"min_liquidity_usd"`

	// MaxBorrowAPY excludes markets with anomalous borrow rates, in percent.
	MaxBorrowAPY float64 `json:"max_borrow_apy"`

	// MaturityToleranceDays is the window within which two instrument
	// maturities are considered the same term.
	MaturityToleranceDays int `json:"maturity_tolerance_days"`

	// MaxMarketsPerCollateral caps how many distinct borrow markets are
	// surfaced per collateral source. The lowest-rate market is always
	// first, but liquidity constraints can make it impractical for size,
	// so more than one may be kept.
	MaxMarketsPerCollateral int `json:"max_markets_per_collateral"`
}
