/*

This file contains the default synthesis parameters per protocol family,
plus the asset classification tables the strategy registry uses.

These defaults are calibrated for strategies users could actually enter at
meaningful size: the thresholds err toward excluding thin or anomalous
markets rather than advertising yields no real position could capture.

*/

package config

import (
	"github.com/stableyield/loopscout/internal/types"
)

// DefaultSynthesisParameters is the baseline parameter set used when the
// database holds no active override.
var DefaultSynthesisParameters = types.SynthesisParameters{
	// 1.0 is deliberately absent: an unlooped position is a simple lend,
	// never a loop tier. Leverage above 5x is categorically excluded for
	// stablecoin loops regardless of collateral-factor headroom.
	LeverageTiers: []float64{2.0, 3.0, 5.0},

	SafetyMargin: 0.6, // Retain a ~40% buffer to the liquidation threshold.

	HardLeverageCap: 5.0,

	MinLiquidityUSD: 10_000,

	MaxBorrowAPY: 50.0, // A borrow rate above this is an anomaly, not an opportunity.

	MaturityToleranceDays: 3, // Absorbs minor on-chain vs off-chain clock skew, nothing more.

	MaxMarketsPerCollateral: 3,
}

// FixedLoopSynthesisParameters overrides the defaults for fixed-term (PT)
// looping, where borrow markets must be deep enough to absorb a levered
// position entered in one go.
var FixedLoopSynthesisParameters = types.SynthesisParameters{
	LeverageTiers:   []float64{2.0, 3.0, 5.0},
	SafetyMargin:    0.6,
	HardLeverageCap: 5.0,

	// Markets under $500k liquidity are generally too thin for meaningful
	// positions and may display rates no real position could access.
	MinLiquidityUSD: 500_000,

	MaxBorrowAPY:            50.0,
	MaturityToleranceDays:   3,
	MaxMarketsPerCollateral: 3,
}

// YieldBearingPatterns identifies yield-bearing stablecoins usable as loop
// collateral, matched by containment against uppercased symbols.
var YieldBearingPatterns = []string{
	"SUSDE", "SDAI", "SUSDS", "SFRAX", "MHYPER", "SUSN", "USD0++",
	"SCRVUSD", "SAVUSD", "STUSD", "SUSDX", "PT-",
}

// BorrowStables are the regular stablecoins viable as the borrow leg of a
// loop, matched by containment against uppercased loan symbols.
var BorrowStables = []string{
	"USDC", "USDT", "DAI", "USDS", "PYUSD", "FRAX", "CRVUSD", "GHO", "USDA",
	"USDTB", "AUSD",
}

// TargetStablecoins filters fixed-yield markets down to stablecoin
// denominated ones.
var TargetStablecoins = []string{
	"USDC", "USDT", "DAI", "FRAX", "LUSD", "GHO", "PYUSD",
	"USDE", "SUSDE", "USDS", "SUSDS", "SDAI",
	"CRVUSD", "SCRVUSD", "FRXUSD", "SFRXUSD", "SFRAX",
	"USDAI", "REUSD", "NUSD", "SAVUSD", "USD3", "RLP", "RUSD",
	"IUSD", "EUSD", "USDM", "USDY", "USR", "AUSD", "BOLD",
	"USDA", "DOLA", "MIM", "ALUSD", "MHYPER", "SNUSD", "SRUSDE",
}

// KnownCollateralYields carries the current yield of yield-bearing
// stablecoins whose rate is not observable from the borrow market itself.
// Based on implied fixed-market yields (conservative); revisit periodically.
var KnownCollateralYields = map[string]float64{
	"SUSDE":   5.27,
	"SDAI":    5.0,
	"SUSDS":   4.5,
	"SFRAX":   4.0,
	"MHYPER":  6.0,
	"USD0++":  8.0,
	"SCRVUSD": 4.2,
	"SAVUSD":  5.5,
}

// DefaultCollateralYield is the conservative estimate applied to
// yield-bearing collateral with no table entry.
const DefaultCollateralYield = 5.0
