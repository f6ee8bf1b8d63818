/*

This file contains the normalized market snapshot types consumed by the loop
synthesizer. Records are produced by the protocol fetchers and are read-only
once handed to the core.

*/

package types

import "time"

// MarketRecord is a normalized snapshot of one lending/vault borrow market.
// Yields are percentages (5.0 means 5% APY); fetchers are responsible for
// converting decimal-fraction sources before a record reaches the core.
type MarketRecord struct {
	MarketID         string  `json:"market_id"`         // Opaque source identifier, used for traceability and tie-breaking.
	Protocol         string  `json:"protocol"`          // e.g., "Morpho"
	Chain            string  `json:"chain"`             // e.g., "Ethereum"
	CollateralSymbol string  `json:"collateral_symbol"` // Raw collateral-side symbol as reported by the source.
	LoanSymbol       string  `json:"loan_symbol"`       // Raw loan-side symbol as reported by the source.
	SupplyAPY        float64 `json:"supply_apy"`        // Percentage.
	BorrowAPY        float64 `json:"borrow_apy"`        // Percentage.
	LiquidityUSD     float64 `json:"liquidity_usd"`     // Borrowable depth; falls back to TVL when the source omits it.
	TVLUSD           float64 `json:"tvl_usd"`
	CollateralFactor string  `json:"collateral_factor"` // Raw LLTV: decimal fraction or 1e18-scaled integer, parsed lazily.
	SourceURL        string  `json:"source_url"`
}

// CollateralSource is a yield-bearing instrument usable as the collateral leg
// of a loop: a fixed-yield claim, a staked stablecoin, or a simple
// yield-bearing balance.
type CollateralSource struct {
	Symbol    string     `json:"symbol"`
	Chain     string     `json:"chain"`
	YieldAPY  float64    `json:"yield_apy"` // Percentage.
	Maturity  *time.Time `json:"maturity,omitempty"`
	TVLUSD    float64    `json:"tvl_usd"`
	SourceURL string     `json:"source_url"`
}
