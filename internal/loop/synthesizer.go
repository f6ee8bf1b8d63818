/*

This file contains the loop synthesizer: the logic that pairs a yield-bearing
collateral source with compatible borrow markets and emits one leveraged
opportunity per surviving (market, leverage-tier) combination.

A loop does not exist as a single on-chain object; it is computed here by
combining the collateral instrument's yield with a borrow market's rate and
collateral factor. One synthesizer replaces the per-protocol variants that
used to duplicate this pairing logic: protocol differences are data
(SynthesisParameters), not code.

*/

package loop

import (
	"errors"
	"math"
	"sort"
	"time"

	"github.com/stableyield/loopscout/internal/logger"
	"github.com/stableyield/loopscout/internal/risk"
	"github.com/stableyield/loopscout/internal/symbols"
	"github.com/stableyield/loopscout/internal/types"
	"github.com/stableyield/loopscout/internal/utils"

	"github.com/rs/zerolog"
)

var (
	ErrInvalidParameters = errors.New("invalid synthesis parameters")
)

// Synthesizer pairs collateral yield sources with borrow markets under one
// parameter set. It performs no I/O and holds no mutable state, so a single
// instance may be used from any number of goroutines.
type Synthesizer struct {
	params types.SynthesisParameters
	logger zerolog.Logger
}

// viableMarket is a borrow market that passed every filter, with its parsed
// collateral factor and derived leverage ceiling attached.
type viableMarket struct {
	market      types.MarketRecord
	liquidity   float64
	lltv        float64
	theoMax     float64
	safeMax     float64
}

// NewSynthesizer validates the parameter set and returns a synthesizer
// bound to it.
func NewSynthesizer(params types.SynthesisParameters) (*Synthesizer, error) {
	if err := ValidateParameters(params); err != nil {
		return nil, errors.Join(ErrInvalidParameters, err)
	}
	return &Synthesizer{
		params: params,
		logger: logger.GetForComponent("loop_synthesizer"),
	}, nil
}

// ValidateParameters checks a parameter set for values that could silently
// corrupt every downstream computation.
func ValidateParameters(params types.SynthesisParameters) error {
	if len(params.LeverageTiers) == 0 {
		return errors.New("at least one leverage tier is required")
	}
	for _, tier := range params.LeverageTiers {
		if math.IsNaN(tier) || math.IsInf(tier, 0) || tier <= 0 {
			return errors.New("leverage tiers must be positive and finite")
		}
	}
	if params.SafetyMargin <= 0 || params.SafetyMargin > 1 {
		return errors.New("safety margin must be in (0, 1]")
	}
	if params.HardLeverageCap < 1 {
		return errors.New("hard leverage cap must be at least 1")
	}
	if params.MinLiquidityUSD < 0 {
		return errors.New("minimum liquidity cannot be negative")
	}
	if params.MaxBorrowAPY <= 0 {
		return errors.New("maximum borrow APY must be positive")
	}
	if params.MaturityToleranceDays < 0 {
		return errors.New("maturity tolerance cannot be negative")
	}
	if params.MaxMarketsPerCollateral <= 0 {
		return errors.New("max markets per collateral must be positive")
	}
	return nil
}

// NetAPY computes the leverage-adjusted net yield for one tier. Rates are
// percentages. The formula is linear and exact, not compounding or
// time-weighted; that simplification is deliberate and shared with every
// upstream variant of this calculation.
func NetAPY(collateralYield, borrowRate, leverage float64) float64 {
	return collateralYield*leverage - borrowRate*(leverage-1)
}

// TheoreticalMaxLeverage derives the leverage ceiling implied by a
// collateral factor. Callers must have validated factor < 1.
func TheoreticalMaxLeverage(collateralFactor float64) float64 {
	return 1 / (1 - collateralFactor)
}

// Synthesize discovers valid borrow legs for one collateral source among the
// candidate markets and emits one opportunity per (market, leverage-tier)
// pair that survives every filter. A source whose symbol yields no
// recognizable identity is unmatchable and produces nothing.
//
// Malformed market records are excluded individually; they never abort the
// batch. An empty result is indistinguishable from "no profitable loop
// exists", which is the expected frequent outcome, not an error.
func (s *Synthesizer) Synthesize(category, protocol string, source types.CollateralSource, markets []types.MarketRecord) []types.YieldOpportunity {
	return s.synthesizeAt(category, protocol, source, markets, time.Now().UTC())
}

func (s *Synthesizer) synthesizeAt(category, protocol string, source types.CollateralSource, markets []types.MarketRecord, now time.Time) []types.YieldOpportunity {
	if math.IsNaN(source.YieldAPY) || math.IsInf(source.YieldAPY, 0) || source.YieldAPY <= 0 {
		s.logger.Debug().
			Str("symbol", source.Symbol).
			Float64("yieldAPY", source.YieldAPY).
			Msg("Collateral source has no usable yield, skipping")
		return nil
	}

	identity := symbols.ExtractUnderlying(source.Symbol)
	if !identity.Known {
		s.logger.Debug().
			Str("symbol", source.Symbol).
			Msg("Collateral symbol has no recognizable identity, unmatchable")
		return nil
	}

	viable := s.findViableMarkets(identity, source.Maturity, markets)
	if len(viable) == 0 {
		return nil
	}

	// Lowest borrow rate wins; market ID breaks ties so ordering never
	// depends on fetch order.
	sort.Slice(viable, func(i, j int) bool {
		if viable[i].market.BorrowAPY != viable[j].market.BorrowAPY {
			return viable[i].market.BorrowAPY < viable[j].market.BorrowAPY
		}
		return viable[i].market.MarketID < viable[j].market.MarketID
	})
	if len(viable) > s.params.MaxMarketsPerCollateral {
		viable = viable[:s.params.MaxMarketsPerCollateral]
	}

	strategy := types.StrategyLoop
	if source.Maturity != nil {
		strategy = types.StrategyFixedYieldLoop
	}

	var opportunities []types.YieldOpportunity
	for _, vm := range viable {
		opportunities = append(opportunities, s.emitTiers(category, protocol, strategy, source, vm, now)...)
	}

	s.logger.Debug().
		Str("symbol", source.Symbol).
		Int("viableMarkets", len(viable)).
		Int("opportunities", len(opportunities)).
		Msg("Loop synthesis completed for collateral source")

	return opportunities
}

// findViableMarkets applies the identity, maturity, liquidity, rate, and
// collateral-factor filters.
func (s *Synthesizer) findViableMarkets(identity symbols.Identity, maturity *time.Time, markets []types.MarketRecord) []viableMarket {
	var viable []viableMarket

	for _, m := range markets {
		marketIdentity := symbols.ExtractUnderlying(m.CollateralSymbol)
		if !symbols.IdentitiesEquivalent(identity, marketIdentity) {
			continue
		}

		// When the collateral source carries a maturity, the market-side
		// symbol must carry a compatible one. A market without a maturity
		// is a non-match, not a wildcard.
		if maturity != nil {
			marketMaturity, ok := symbols.ExtractMaturity(m.CollateralSymbol)
			if !ok {
				continue
			}
			if !symbols.MaturitiesCompatible(maturity, &marketMaturity, s.params.MaturityToleranceDays) {
				continue
			}
		}

		liquidity := m.LiquidityUSD
		if liquidity <= 0 {
			liquidity = m.TVLUSD
		}
		if math.IsNaN(liquidity) || math.IsInf(liquidity, 0) || liquidity < s.params.MinLiquidityUSD {
			continue
		}

		if math.IsNaN(m.BorrowAPY) || math.IsInf(m.BorrowAPY, 0) {
			continue
		}
		if m.BorrowAPY <= 0 || m.BorrowAPY > s.params.MaxBorrowAPY {
			continue
		}

		lltv, err := utils.ParseCollateralFactor(m.CollateralFactor)
		if err != nil || lltv <= 0 {
			s.logger.Debug().
				Str("marketID", m.MarketID).
				Str("rawFactor", m.CollateralFactor).
				Err(err).
				Msg("Unparsable or unusable collateral factor, market excluded")
			continue
		}

		theoMax := TheoreticalMaxLeverage(lltv)
		safeMax := math.Min(theoMax*s.params.SafetyMargin, s.params.HardLeverageCap)

		viable = append(viable, viableMarket{
			market:    m,
			liquidity: liquidity,
			lltv:      lltv,
			theoMax:   theoMax,
			safeMax:   safeMax,
		})
	}

	return viable
}

// emitTiers produces the per-leverage-tier opportunities for one viable
// market. Tiers at or below 1.0 are never emitted (that is a simple lend),
// nor are tiers above the safe ceiling or with non-positive net yield.
func (s *Synthesizer) emitTiers(category, protocol string, strategy types.StrategyType, source types.CollateralSource, vm viableMarket, now time.Time) []types.YieldOpportunity {
	var out []types.YieldOpportunity

	for _, leverage := range s.params.LeverageTiers {
		if leverage <= 1 || leverage > vm.safeMax {
			continue
		}

		netAPY := NetAPY(source.YieldAPY, vm.market.BorrowAPY, leverage)
		if netAPY <= 0 || math.IsNaN(netAPY) || math.IsInf(netAPY, 0) {
			continue
		}

		extra := map[string]any{
			"collateral":               source.Symbol,
			"collateral_yield":         source.YieldAPY,
			"borrow_asset":             vm.market.LoanSymbol,
			"borrow_rate":              vm.market.BorrowAPY,
			"lltv":                     vm.lltv * 100,
			"theoretical_max_leverage": vm.theoMax,
			"safe_max_leverage":        vm.safeMax,
			"market_id":                vm.market.MarketID,
		}
		if warning := risk.LeverageWarning(leverage); warning != "" {
			extra["risk_warning"] = warning
		}
		if warning := risk.MaturityWarning(source.Maturity, now); warning != "" {
			extra["maturity_risk"] = warning
		}

		out = append(out, types.YieldOpportunity{
			Category:     category,
			Protocol:     protocol,
			Chain:        vm.market.Chain,
			DisplayAsset: source.Symbol,
			APY:          netAPY,
			// Liquidity of the borrow leg is the actual constraint on
			// position size, not the collateral instrument's own TVL.
			TVL:          vm.liquidity,
			Leverage:     leverage,
			SupplyAPY:    source.YieldAPY,
			BorrowAPY:    vm.market.BorrowAPY,
			MaturityDate: source.Maturity,
			SourceURL:    vm.market.SourceURL,
			RiskScore: risk.ScoreAt(risk.Input{
				Strategy: strategy,
				Leverage: leverage,
				Protocol: protocol,
				Chain:    vm.market.Chain,
				Maturity: source.Maturity,
				APY:      netAPY,
			}, now),
			Extra: extra,
		})
	}

	return out
}

// SimpleLend builds the unlooped leverage-1 opportunity for a plain supply
// position in one market. Markets with no usable supply yield produce
// nothing.
func (s *Synthesizer) SimpleLend(category string, m types.MarketRecord) (types.YieldOpportunity, bool) {
	return s.simpleLendAt(category, m, time.Now().UTC())
}

func (s *Synthesizer) simpleLendAt(category string, m types.MarketRecord, now time.Time) (types.YieldOpportunity, bool) {
	if math.IsNaN(m.SupplyAPY) || math.IsInf(m.SupplyAPY, 0) || m.SupplyAPY <= 0 {
		return types.YieldOpportunity{}, false
	}
	tvl := m.TVLUSD
	if tvl <= 0 {
		tvl = m.LiquidityUSD
	}
	if tvl < s.params.MinLiquidityUSD {
		return types.YieldOpportunity{}, false
	}

	return types.YieldOpportunity{
		Category:     category,
		Protocol:     m.Protocol,
		Chain:        m.Chain,
		DisplayAsset: m.LoanSymbol,
		APY:          m.SupplyAPY,
		TVL:          tvl,
		Leverage:     1.0,
		SupplyAPY:    m.SupplyAPY,
		BorrowAPY:    m.BorrowAPY,
		SourceURL:    m.SourceURL,
		RiskScore: risk.ScoreAt(risk.Input{
			Strategy: types.StrategySimpleLend,
			Leverage: 1.0,
			Protocol: m.Protocol,
			Chain:    m.Chain,
			APY:      m.SupplyAPY,
		}, now),
		Extra: map[string]any{
			"market_id": m.MarketID,
		},
	}, true
}

// FixedYield builds the unlooped opportunity for holding a fixed-yield
// claim (e.g., a PT token) to maturity.
func (s *Synthesizer) FixedYield(category, protocol string, source types.CollateralSource) (types.YieldOpportunity, bool) {
	return s.fixedYieldAt(category, protocol, source, time.Now().UTC())
}

func (s *Synthesizer) fixedYieldAt(category, protocol string, source types.CollateralSource, now time.Time) (types.YieldOpportunity, bool) {
	if math.IsNaN(source.YieldAPY) || math.IsInf(source.YieldAPY, 0) || source.YieldAPY <= 0 {
		return types.YieldOpportunity{}, false
	}
	if source.TVLUSD < s.params.MinLiquidityUSD {
		return types.YieldOpportunity{}, false
	}

	extra := map[string]any{}
	if warning := risk.MaturityWarning(source.Maturity, now); warning != "" {
		extra["maturity_risk"] = warning
	}

	return types.YieldOpportunity{
		Category:     category,
		Protocol:     protocol,
		Chain:        source.Chain,
		DisplayAsset: source.Symbol,
		APY:          source.YieldAPY,
		TVL:          source.TVLUSD,
		Leverage:     1.0,
		SupplyAPY:    source.YieldAPY,
		MaturityDate: source.Maturity,
		SourceURL:    source.SourceURL,
		RiskScore: risk.ScoreAt(risk.Input{
			Strategy: types.StrategyFixedYield,
			Leverage: 1.0,
			Protocol: protocol,
			Chain:    source.Chain,
			Maturity: source.Maturity,
			APY:      source.YieldAPY,
		}, now),
		Extra: extra,
	}, true
}
