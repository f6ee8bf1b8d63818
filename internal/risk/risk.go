/*

This file contains the risk scorer: a pure additive point system that maps an
opportunity's characteristics onto one of four ordinal risk categories.

Absence of data always biases toward caution: protocols and chains the tables
do not know about score strictly worse than anything they do know about.

*/

package risk

import (
	"sort"
	"strings"
	"time"

	"github.com/stableyield/loopscout/internal/types"
)

// protocolMaturity scores protocol youth: battle-tested protocols score 1,
// newer ones up to 3. Matched case-insensitively by containment so composite
// labels like "Pendle + Morpho" resolve.
var protocolMaturity = map[string]int{
	"aave":        1,
	"compound":    1,
	"yearn":       1,
	"morpho":      2,
	"euler":       2,
	"pendle":      2,
	"merkl":       2,
	"beefy":       2,
	"gearbox":     2,
	"stakedao":    2,
	"convex":      2,
	"kamino":      2,
	"jupiter":     2,
	"silo":        3,
	"midas":       3,
	"spectra":     3,
	"upshift":     3,
	"ipor":        3,
	"townsquare":  3,
	"curvance":    3,
	"accountable": 3,
	"hyperion":    3,
	"yo":          3,
	"yieldfi":     3,
	"ploutos":     3,
	"lagoon":      3,
	"nest credit": 3,
}

// chainRisk scores how battle-tested a chain is (1 = established, 4 = new).
var chainRisk = map[string]int{
	"ethereum":    1,
	"arbitrum":    1,
	"base":        1,
	"optimism":    1,
	"polygon":     1,
	"avalanche":   2,
	"bsc":         2,
	"solana":      2,
	"sei":         3,
	"unichain":    3,
	"world chain": 3,
	"linea":       3,
	"mantle":      3,
	"rootstock":   3,
	"monad":       4,
	"plasma":      4,
	"hyperevm":    4,
	"etherlink":   4,
	"plume":       4,
	"katana":      4,
	"tac":         4,
	"unknown":     4,
	"hemi":        4,
	"ink":         4,
	"soneium":     4,
	"aptos":       4,
}

// strategyBaseRisk is the per-strategy base tier, multiplied by 10 points.
// Loops score above simple lends; leveraged fixed-yield loops score highest.
var strategyBaseRisk = map[types.StrategyType]int{
	types.StrategySimpleLend:     1,
	types.StrategyLoop:           3,
	types.StrategyFixedYield:     2,
	types.StrategyFixedYieldLoop: 4,
	types.StrategyReward:         2,
	types.StrategyYieldBearing:   2,
	types.StrategyVault:          2,
}

const (
	// unknownProtocolPoints exceeds every known protocol entry (max 3*5):
	// unfamiliarity is risk, not neutrality.
	unknownProtocolPoints = 20

	maxChainTier      = 4
	protocolTierScale = 5
	chainTierScale    = 5
)

// Input bundles the characteristics the scorer considers.
type Input struct {
	Strategy types.StrategyType
	Leverage float64 // >= 1.0; 1.0 means unlevered.
	Protocol string
	Chain    string
	Maturity *time.Time
	APY      float64 // Net percentage, post-leverage.
}

// Score maps an opportunity's characteristics to a risk category using the
// current time for time-to-maturity.
func Score(in Input) types.RiskLevel {
	return ScoreAt(in, time.Now().UTC())
}

// ScoreAt is Score with an explicit evaluation time. Pure: no state, no I/O.
func ScoreAt(in Input, now time.Time) types.RiskLevel {
	points := basePoints(in.Strategy)
	points += leveragePoints(in.Leverage)
	points += protocolPoints(in.Protocol)
	points += chainPoints(in.Chain)
	points += maturityPoints(in.Maturity, now)
	points += apyPoints(in.APY)

	switch {
	case points < 25:
		return types.RiskLow
	case points < 50:
		return types.RiskMedium
	case points < 75:
		return types.RiskHigh
	default:
		return types.RiskVeryHigh
	}
}

func basePoints(strategy types.StrategyType) float64 {
	tier, ok := strategyBaseRisk[strategy]
	if !ok {
		tier = 2
	}
	return float64(tier * 10)
}

func leveragePoints(leverage float64) float64 {
	if leverage <= 1 {
		return 0
	}
	points := (leverage - 1) * 15
	if leverage >= 5 {
		points += 20
	}
	if leverage >= 7 {
		points += 20
	}
	if leverage >= 10 {
		points += 30
	}
	return points
}

// protocolPoints resolves a protocol label against the maturity table.
// Containment matches iterate in sorted key order and keep the worst hit so
// composite labels resolve deterministically regardless of map order.
func protocolPoints(protocol string) float64 {
	lower := strings.ToLower(protocol)
	best := -1
	keys := make([]string, 0, len(protocolMaturity))
	for k := range protocolMaturity {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if strings.Contains(lower, k) && protocolMaturity[k] > best {
			best = protocolMaturity[k]
		}
	}
	if best < 0 {
		return unknownProtocolPoints
	}
	return float64(best * protocolTierScale)
}

func chainPoints(chain string) float64 {
	tier, ok := chainRisk[strings.ToLower(strings.TrimSpace(chain))]
	if !ok {
		tier = maxChainTier
	}
	return float64(tier * chainTierScale)
}

// maturityPoints penalizes positions close to expiry. Both operands are
// normalized to UTC before subtracting, so zone-aware maturities never
// misbehave against a local clock.
func maturityPoints(maturity *time.Time, now time.Time) float64 {
	if maturity == nil {
		return 0
	}
	days := maturity.UTC().Sub(now.UTC()).Hours() / 24
	switch {
	case days < 7:
		return 30
	case days < 14:
		return 15
	case days < 30:
		return 5
	default:
		return 0
	}
}

// apyPoints treats very high advertised yield as a risk signal in itself.
func apyPoints(apy float64) float64 {
	switch {
	case apy > 100:
		return 20
	case apy > 50:
		return 10
	case apy > 30:
		return 5
	default:
		return 0
	}
}

// LeverageWarning returns a graduated caution string for display annotation.
// Returns the empty string below 3x. Not used for scoring.
func LeverageWarning(leverage float64) string {
	switch {
	case leverage >= 10:
		return "EXTREME liquidation risk - small price moves can wipe position"
	case leverage >= 7:
		return "Very high liquidation risk - requires active monitoring"
	case leverage >= 5:
		return "High liquidation risk - monitor closely"
	case leverage >= 3:
		return "Moderate liquidation risk"
	default:
		return ""
	}
}

// MaturityWarning returns a graduated caution string for positions close to
// maturity, or the empty string when none applies.
func MaturityWarning(maturity *time.Time, now time.Time) string {
	if maturity == nil {
		return ""
	}
	days := maturity.UTC().Sub(now.UTC()).Hours() / 24
	switch {
	case days < 7:
		return "CRITICAL: Less than 7 days to maturity - extreme liquidation risk"
	case days < 14:
		return "WARNING: Less than 14 days to maturity - high liquidation risk"
	case days < 30:
		return "CAUTION: Less than 30 days to maturity - monitor closely"
	default:
		return ""
	}
}
