package engine

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stableyield/loopscout/internal/config"
	"github.com/stableyield/loopscout/internal/types"
)

type stubMarkets struct {
	records []types.MarketRecord
}

func (s *stubMarkets) Markets(ctx context.Context, chain string) ([]types.MarketRecord, error) {
	return s.records, nil
}

type stubSources struct {
	sources []types.CollateralSource
}

func (s *stubSources) CollateralSources(ctx context.Context, chain string) ([]types.CollateralSource, error) {
	return s.sources, nil
}

func testRegistry(t *testing.T, markets []types.MarketRecord, sources []types.CollateralSource) []Strategy {
	t.Helper()
	strategies, err := BuildRegistry(
		&stubMarkets{records: markets},
		&stubSources{sources: sources},
		config.DefaultSynthesisParameters,
		config.FixedLoopSynthesisParameters,
	)
	require.NoError(t, err)
	return strategies
}

func strategyByCategory(t *testing.T, strategies []Strategy, category string) Strategy {
	t.Helper()
	for _, s := range strategies {
		if s.Category == category {
			return s
		}
	}
	t.Fatalf("no strategy for category %q", category)
	return Strategy{}
}

func TestBuildRegistry_CoversAllCategories(t *testing.T) {
	strategies := testRegistry(t, nil, nil)
	require.Len(t, strategies, 4)

	categories := map[string]bool{}
	for _, s := range strategies {
		categories[s.Category] = true
		assert.NotEmpty(t, s.Chains)
		assert.NotNil(t, s.Fetch)
	}
	assert.True(t, categories["Morpho Lend"])
	assert.True(t, categories["Morpho Borrow/Lend Loop"])
	assert.True(t, categories["Pendle Fixed Yields"])
	assert.True(t, categories["Pendle Looping"])
}

func TestMorphoLendStrategy_StableLoanMarketsOnly(t *testing.T) {
	markets := []types.MarketRecord{
		{
			MarketID: "m1", Protocol: "Morpho", Chain: "Ethereum",
			CollateralSymbol: "WBTC", LoanSymbol: "USDC",
			SupplyAPY: 4.0, TVLUSD: 50_000_000, CollateralFactor: "0.86",
		},
		{
			MarketID: "m2", Protocol: "Morpho", Chain: "Ethereum",
			CollateralSymbol: "WBTC", LoanSymbol: "WETH",
			SupplyAPY: 2.0, TVLUSD: 50_000_000, CollateralFactor: "0.86",
		},
	}

	s := strategyByCategory(t, testRegistry(t, markets, nil), "Morpho Lend")
	got, err := s.Fetch(context.Background(), "Ethereum")
	require.NoError(t, err)

	require.Len(t, got, 1)
	assert.Equal(t, "USDC", got[0].DisplayAsset)
	assert.InDelta(t, 1.0, got[0].Leverage, 1e-9)
}

func TestMorphoLoopStrategy_YieldBearingCollateralOnly(t *testing.T) {
	markets := []types.MarketRecord{
		{
			MarketID: "loopable", Protocol: "Morpho", Chain: "Ethereum",
			CollateralSymbol: "SUSDE", LoanSymbol: "USDC",
			SupplyAPY: 3.0, BorrowAPY: 3.0, LiquidityUSD: 5_000_000, CollateralFactor: "0.86",
		},
		{
			// PT collateral belongs to the Pendle Looping category.
			MarketID: "pt", Protocol: "Morpho", Chain: "Ethereum",
			CollateralSymbol: "PT-SUSDE-27MAR2027", LoanSymbol: "USDC",
			SupplyAPY: 3.0, BorrowAPY: 3.0, LiquidityUSD: 5_000_000, CollateralFactor: "0.86",
		},
		{
			// Plain collateral: not loopable for yield.
			MarketID: "plain", Protocol: "Morpho", Chain: "Ethereum",
			CollateralSymbol: "WBTC", LoanSymbol: "USDC",
			SupplyAPY: 3.0, BorrowAPY: 3.0, LiquidityUSD: 5_000_000, CollateralFactor: "0.86",
		},
	}

	s := strategyByCategory(t, testRegistry(t, markets, nil), "Morpho Borrow/Lend Loop")
	got, err := s.Fetch(context.Background(), "Ethereum")
	require.NoError(t, err)

	require.NotEmpty(t, got)
	for _, o := range got {
		assert.Equal(t, "SUSDE", o.DisplayAsset)
		assert.Equal(t, "loopable", o.Extra["market_id"])
		assert.Greater(t, o.Leverage, 1.0)
		// sUSDe's tabled yield, not a default.
		assert.InDelta(t, 5.27, o.Extra["collateral_yield"].(float64), 1e-9)
	}
}

func TestPendleLoopingStrategy_PairsSourcesWithPTMarkets(t *testing.T) {
	maturity := time.Now().UTC().AddDate(0, 6, 0)
	maturityToken := formatMaturityToken(maturity)

	sources := []types.CollateralSource{{
		Symbol:   "PT-SUSDE-" + maturityToken,
		Chain:    "Ethereum",
		YieldAPY: 9.0,
		Maturity: &maturity,
		TVLUSD:   3_000_000,
	}}
	markets := []types.MarketRecord{{
		MarketID: "ptmkt", Protocol: "Morpho", Chain: "Ethereum",
		CollateralSymbol: "PT-SUSDE-" + maturityToken, LoanSymbol: "USDC",
		SupplyAPY: 3.0, BorrowAPY: 4.0, LiquidityUSD: 5_000_000, CollateralFactor: "0.86",
	}}

	s := strategyByCategory(t, testRegistry(t, markets, sources), "Pendle Looping")
	got, err := s.Fetch(context.Background(), "Ethereum")
	require.NoError(t, err)

	require.NotEmpty(t, got)
	for _, o := range got {
		assert.Equal(t, "Pendle + Morpho", o.Protocol)
		assert.Greater(t, o.Leverage, 1.0)
		assert.NotNil(t, o.MaturityDate)
	}
}

func TestPendleFixedYieldStrategy(t *testing.T) {
	maturity := time.Now().UTC().AddDate(0, 6, 0)
	sources := []types.CollateralSource{{
		Symbol:   "PT-SUSDE-27MAR2027",
		Chain:    "Ethereum",
		YieldAPY: 8.5,
		Maturity: &maturity,
		TVLUSD:   3_000_000,
	}}

	s := strategyByCategory(t, testRegistry(t, nil, sources), "Pendle Fixed Yields")
	got, err := s.Fetch(context.Background(), "Ethereum")
	require.NoError(t, err)

	require.Len(t, got, 1)
	assert.Equal(t, "Pendle", got[0].Protocol)
	assert.InDelta(t, 8.5, got[0].APY, 1e-9)
	assert.InDelta(t, 1.0, got[0].Leverage, 1e-9)
}

// formatMaturityToken renders a date in the {day}{MMM}{year} symbol form.
func formatMaturityToken(t time.Time) string {
	return t.Format("2Jan2006")
}

func TestCollateralYieldFor(t *testing.T) {
	assert.InDelta(t, 5.27, collateralYieldFor("SUSDE"), 1e-9)
	// Containment resolves wrapped variants.
	assert.InDelta(t, 5.27, collateralYieldFor("WSUSDE"), 1e-9)
	// No table entry falls back to the conservative default.
	assert.InDelta(t, config.DefaultCollateralYield, collateralYieldFor("SOMENEWUSD"), 1e-9)
}
