package loop

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stableyield/loopscout/internal/types"
)

var synthClock = time.Date(2026, time.January, 15, 0, 0, 0, 0, time.UTC)

func testParameters() types.SynthesisParameters {
	return types.SynthesisParameters{
		LeverageTiers:           []float64{2, 3, 5},
		SafetyMargin:            0.6,
		HardLeverageCap:         5.0,
		MinLiquidityUSD:         10_000,
		MaxBorrowAPY:            50,
		MaturityToleranceDays:   3,
		MaxMarketsPerCollateral: 3,
	}
}

func borrowMarket(id string, borrowAPY, liquidity float64, factor string) types.MarketRecord {
	return types.MarketRecord{
		MarketID:         id,
		Protocol:         "Morpho",
		Chain:            "Ethereum",
		CollateralSymbol: "sUSDe",
		LoanSymbol:       "USDC",
		SupplyAPY:        3.5,
		BorrowAPY:        borrowAPY,
		LiquidityUSD:     liquidity,
		CollateralFactor: factor,
		SourceURL:        "https://app.morpho.org/market?id=" + id,
	}
}

func susdeSource() types.CollateralSource {
	return types.CollateralSource{
		Symbol:   "sUSDe",
		Chain:    "Ethereum",
		YieldAPY: 8.0,
	}
}

func TestNetAPY(t *testing.T) {
	// 8% yield borrowed at 4%: 8*3 - 4*2 = 16.
	assert.InDelta(t, 16.0, NetAPY(8, 4, 3), 1e-9)

	// Leverage 1 is just the raw yield.
	assert.InDelta(t, 8.0, NetAPY(8, 4, 1), 1e-9)

	// Borrow above yield erodes the position as leverage grows.
	assert.Less(t, NetAPY(5, 6, 3), NetAPY(5, 6, 2))
}

func TestTheoreticalMaxLeverage(t *testing.T) {
	assert.InDelta(t, 1/(1-0.85), TheoreticalMaxLeverage(0.85), 1e-9)
	assert.InDelta(t, 2.0, TheoreticalMaxLeverage(0.5), 1e-9)
}

func TestNewSynthesizer_RejectsBadParameters(t *testing.T) {
	bad := testParameters()
	bad.LeverageTiers = nil
	_, err := NewSynthesizer(bad)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidParameters)

	bad = testParameters()
	bad.SafetyMargin = 1.5
	_, err = NewSynthesizer(bad)
	assert.Error(t, err)

	bad = testParameters()
	bad.HardLeverageCap = 0.5
	_, err = NewSynthesizer(bad)
	assert.Error(t, err)
}

func TestSynthesize_ProfitableLoop(t *testing.T) {
	s, err := NewSynthesizer(testParameters())
	require.NoError(t, err)

	markets := []types.MarketRecord{borrowMarket("m1", 4.0, 5_000_000, "0.85")}
	got := s.synthesizeAt("Morpho Borrow/Lend Loop", "Morpho", susdeSource(), markets, synthClock)

	// 0.85 LLTV: theoretical max 6.67, safe max min(6.67*0.6, 5) = 4.0.
	// Tiers 2 and 3 survive; 5 exceeds the safe ceiling.
	require.Len(t, got, 2)

	byLeverage := map[float64]types.YieldOpportunity{}
	for _, o := range got {
		byLeverage[o.Leverage] = o
	}

	threeX, ok := byLeverage[3.0]
	require.True(t, ok)
	assert.InDelta(t, 16.0, threeX.APY, 1e-9)
	assert.InDelta(t, 5_000_000, threeX.TVL, 1e-9)
	assert.Equal(t, "sUSDe", threeX.DisplayAsset)
	assert.Equal(t, "Ethereum", threeX.Chain)
	assert.InDelta(t, 8.0, threeX.SupplyAPY, 1e-9)
	assert.InDelta(t, 4.0, threeX.BorrowAPY, 1e-9)

	twoX, ok := byLeverage[2.0]
	require.True(t, ok)
	assert.InDelta(t, 12.0, twoX.APY, 1e-9)

	_, fiveX := byLeverage[5.0]
	assert.False(t, fiveX)
}

func TestSynthesize_ExtraCarriesLoopDetail(t *testing.T) {
	s, err := NewSynthesizer(testParameters())
	require.NoError(t, err)

	markets := []types.MarketRecord{borrowMarket("m1", 4.0, 5_000_000, "0.85")}
	got := s.synthesizeAt("Morpho Borrow/Lend Loop", "Morpho", susdeSource(), markets, synthClock)
	require.NotEmpty(t, got)

	extra := got[0].Extra
	assert.Equal(t, "sUSDe", extra["collateral"])
	assert.Equal(t, "USDC", extra["borrow_asset"])
	assert.Equal(t, "m1", extra["market_id"])
	assert.InDelta(t, 85.0, extra["lltv"].(float64), 1e-9)
	assert.InDelta(t, 1/(1-0.85), extra["theoretical_max_leverage"].(float64), 1e-9)
	assert.InDelta(t, 4.0, extra["safe_max_leverage"].(float64), 1e-9)
}

func TestSynthesize_UnprofitableTiersSkipped(t *testing.T) {
	s, err := NewSynthesizer(testParameters())
	require.NoError(t, err)

	// 5% yield borrowed at 6%: every tier above 1x nets below the unlooped
	// yield and eventually below zero; all must be excluded.
	source := susdeSource()
	source.YieldAPY = 5.0
	markets := []types.MarketRecord{borrowMarket("m1", 6.0, 5_000_000, "0.85")}

	got := s.synthesizeAt("Morpho Borrow/Lend Loop", "Morpho", source, markets, synthClock)
	for _, o := range got {
		assert.Greater(t, o.APY, 0.0)
		assert.Less(t, o.APY, source.YieldAPY)
	}
	// 5*2-6*1 = 4 and 5*3-6*2 = 3 are positive but shrinking; 5x is capped
	// by the safe ceiling. Positive-but-shrinking tiers still emit.
	assert.Len(t, got, 2)
}

func TestSynthesize_NegativeNetExcluded(t *testing.T) {
	s, err := NewSynthesizer(testParameters())
	require.NoError(t, err)

	source := susdeSource()
	source.YieldAPY = 2.0
	// 2*2-10*1 < 0 and 2*3-10*2 < 0.
	markets := []types.MarketRecord{borrowMarket("m1", 10.0, 5_000_000, "0.85")}

	got := s.synthesizeAt("Morpho Borrow/Lend Loop", "Morpho", source, markets, synthClock)
	assert.Empty(t, got)
}

func TestSynthesize_HighFactorClampedByHardCap(t *testing.T) {
	s, err := NewSynthesizer(testParameters())
	require.NoError(t, err)

	// 0.95 LLTV: theoretical max 20, but 20*0.6 = 12 exceeds the hard cap,
	// so the safe ceiling clamps to 5.0 and the 5x tier survives.
	markets := []types.MarketRecord{borrowMarket("m1", 2.0, 5_000_000, "0.95")}
	got := s.synthesizeAt("Morpho Borrow/Lend Loop", "Morpho", susdeSource(), markets, synthClock)

	leverages := map[float64]bool{}
	for _, o := range got {
		leverages[o.Leverage] = true
		assert.InDelta(t, 5.0, o.Extra["safe_max_leverage"].(float64), 1e-9)
	}
	assert.True(t, leverages[5.0])
}

func TestSynthesize_ScaledFixedPointFactor(t *testing.T) {
	s, err := NewSynthesizer(testParameters())
	require.NoError(t, err)

	// On-chain LLTV in 1e18 fixed point must behave exactly like "0.85".
	markets := []types.MarketRecord{borrowMarket("m1", 4.0, 5_000_000, "850000000000000000")}
	got := s.synthesizeAt("Morpho Borrow/Lend Loop", "Morpho", susdeSource(), markets, synthClock)

	require.NotEmpty(t, got)
	assert.InDelta(t, 85.0, got[0].Extra["lltv"].(float64), 1e-9)
}

func TestSynthesize_LowestBorrowRateWins(t *testing.T) {
	params := testParameters()
	params.MaxMarketsPerCollateral = 1
	s, err := NewSynthesizer(params)
	require.NoError(t, err)

	markets := []types.MarketRecord{
		borrowMarket("expensive", 6.0, 5_000_000, "0.85"),
		borrowMarket("cheap", 3.0, 5_000_000, "0.85"),
	}
	got := s.synthesizeAt("Morpho Borrow/Lend Loop", "Morpho", susdeSource(), markets, synthClock)

	require.NotEmpty(t, got)
	for _, o := range got {
		assert.Equal(t, "cheap", o.Extra["market_id"])
	}
}

func TestSynthesize_BorrowRateTieBrokenByMarketID(t *testing.T) {
	params := testParameters()
	params.MaxMarketsPerCollateral = 1
	s, err := NewSynthesizer(params)
	require.NoError(t, err)

	markets := []types.MarketRecord{
		borrowMarket("zz", 4.0, 5_000_000, "0.85"),
		borrowMarket("aa", 4.0, 5_000_000, "0.85"),
	}
	got := s.synthesizeAt("Morpho Borrow/Lend Loop", "Morpho", susdeSource(), markets, synthClock)

	require.NotEmpty(t, got)
	for _, o := range got {
		assert.Equal(t, "aa", o.Extra["market_id"])
	}
}

func TestSynthesize_TopNMarketsPerCollateral(t *testing.T) {
	s, err := NewSynthesizer(testParameters())
	require.NoError(t, err)

	var markets []types.MarketRecord
	for i := 0; i < 6; i++ {
		markets = append(markets, borrowMarket(fmt.Sprintf("m%d", i), 3.0+float64(i), 5_000_000, "0.85"))
	}
	got := s.synthesizeAt("Morpho Borrow/Lend Loop", "Morpho", susdeSource(), markets, synthClock)

	distinct := map[any]bool{}
	for _, o := range got {
		distinct[o.Extra["market_id"]] = true
	}
	assert.LessOrEqual(t, len(distinct), 3)
	assert.True(t, distinct["m0"])
	assert.True(t, distinct["m1"])
	assert.True(t, distinct["m2"])
}

func TestSynthesize_FiltersUnusableMarkets(t *testing.T) {
	s, err := NewSynthesizer(testParameters())
	require.NoError(t, err)

	illiquid := borrowMarket("illiquid", 4.0, 500, "0.85")
	expensive := borrowMarket("expensive", 60.0, 5_000_000, "0.85")
	zeroRate := borrowMarket("zero", 0, 5_000_000, "0.85")
	badFactor := borrowMarket("badfactor", 4.0, 5_000_000, "not-a-number")
	wrongAsset := borrowMarket("wrong", 4.0, 5_000_000, "0.85")
	wrongAsset.CollateralSymbol = "WBTC"

	got := s.synthesizeAt("Morpho Borrow/Lend Loop", "Morpho", susdeSource(),
		[]types.MarketRecord{illiquid, expensive, zeroRate, badFactor, wrongAsset}, synthClock)
	assert.Empty(t, got)
}

func TestSynthesize_StakedCollateralNeverMatchesUnstakedSource(t *testing.T) {
	s, err := NewSynthesizer(testParameters())
	require.NoError(t, err)

	source := susdeSource()
	source.Symbol = "USDe"

	markets := []types.MarketRecord{borrowMarket("m1", 2.0, 5_000_000, "0.85")} // sUSDe collateral
	got := s.synthesizeAt("Morpho Borrow/Lend Loop", "Morpho", source, markets, synthClock)
	assert.Empty(t, got)
}

func TestSynthesize_MaturityMatching(t *testing.T) {
	s, err := NewSynthesizer(testParameters())
	require.NoError(t, err)

	maturity := time.Date(2026, time.June, 25, 0, 0, 0, 0, time.UTC)
	source := types.CollateralSource{
		Symbol:   "PT-reUSD-25JUN2026",
		Chain:    "Ethereum",
		YieldAPY: 9.0,
		Maturity: &maturity,
	}

	compatible := borrowMarket("near", 4.0, 5_000_000, "0.85")
	compatible.CollateralSymbol = "PT-reUSD-27JUN2026" // 2 days off, within tolerance

	incompatible := borrowMarket("far", 3.0, 5_000_000, "0.85")
	incompatible.CollateralSymbol = "PT-reUSD-8JUL2026" // 13 days off

	noDate := borrowMarket("undated", 3.0, 5_000_000, "0.85")
	noDate.CollateralSymbol = "reUSD" // missing maturity is a non-match

	got := s.synthesizeAt("Pendle Looping", "Pendle + Morpho", source,
		[]types.MarketRecord{compatible, incompatible, noDate}, synthClock)

	require.NotEmpty(t, got)
	for _, o := range got {
		assert.Equal(t, "near", o.Extra["market_id"])
		assert.NotNil(t, o.MaturityDate)
	}
}

func TestSynthesize_UnusableSourcesProduceNothing(t *testing.T) {
	s, err := NewSynthesizer(testParameters())
	require.NoError(t, err)

	markets := []types.MarketRecord{borrowMarket("m1", 4.0, 5_000_000, "0.85")}

	zeroYield := susdeSource()
	zeroYield.YieldAPY = 0
	assert.Empty(t, s.synthesizeAt("c", "p", zeroYield, markets, synthClock))

	unmatchable := susdeSource()
	unmatchable.Symbol = "12345"
	assert.Empty(t, s.synthesizeAt("c", "p", unmatchable, markets, synthClock))
}

func TestSimpleLend(t *testing.T) {
	s, err := NewSynthesizer(testParameters())
	require.NoError(t, err)

	m := borrowMarket("m1", 4.0, 0, "0.85")
	m.TVLUSD = 2_000_000

	opp, ok := s.simpleLendAt("Morpho Lend", m, synthClock)
	require.True(t, ok)
	assert.Equal(t, "USDC", opp.DisplayAsset)
	assert.Equal(t, "Morpho", opp.Protocol)
	assert.InDelta(t, 3.5, opp.APY, 1e-9)
	assert.InDelta(t, 1.0, opp.Leverage, 1e-9)
	assert.InDelta(t, 2_000_000, opp.TVL, 1e-9)

	// No usable supply yield.
	m.SupplyAPY = 0
	_, ok = s.simpleLendAt("Morpho Lend", m, synthClock)
	assert.False(t, ok)
}

func TestFixedYield(t *testing.T) {
	s, err := NewSynthesizer(testParameters())
	require.NoError(t, err)

	maturity := synthClock.AddDate(0, 0, 20)
	source := types.CollateralSource{
		Symbol:    "PT-sUSDE-4FEB2026",
		Chain:     "Ethereum",
		YieldAPY:  7.5,
		Maturity:  &maturity,
		TVLUSD:    1_500_000,
		SourceURL: "https://app.pendle.finance/trade/markets",
	}

	opp, ok := s.fixedYieldAt("Pendle Fixed Yields", "Pendle", source, synthClock)
	require.True(t, ok)
	assert.InDelta(t, 7.5, opp.APY, 1e-9)
	assert.Equal(t, &maturity, opp.MaturityDate)
	assert.Contains(t, opp.Extra["maturity_risk"], "CAUTION")

	// Below the liquidity floor.
	source.TVLUSD = 100
	_, ok = s.fixedYieldAt("Pendle Fixed Yields", "Pendle", source, synthClock)
	assert.False(t, ok)
}
