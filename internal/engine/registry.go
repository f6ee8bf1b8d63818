/*

This file contains the strategy registry: the table that replaces the old
idea of one scraper class per protocol. Each entry is a category expressed
as data (chains, parameters) plus an injected fetch capability; the engine
never needs to know a concrete protocol type.

*/

package engine

import (
	"context"
	"sort"
	"strings"

	"github.com/stableyield/loopscout/internal/config"
	"github.com/stableyield/loopscout/internal/datafetcher"
	"github.com/stableyield/loopscout/internal/loop"
	"github.com/stableyield/loopscout/internal/types"
)

// Strategy is one opportunity category: a name, the chains it covers, and a
// pure-ish fetch function that produces finished opportunities for one chain.
type Strategy struct {
	Category string
	Chains   []string
	Fetch    func(ctx context.Context, chain string) ([]types.YieldOpportunity, error)
}

// MarketSource supplies normalized borrow/lend markets for a chain.
type MarketSource interface {
	Markets(ctx context.Context, chain string) ([]types.MarketRecord, error)
}

// CollateralSourceProvider supplies yield-bearing collateral instruments for
// a chain.
type CollateralSourceProvider interface {
	CollateralSources(ctx context.Context, chain string) ([]types.CollateralSource, error)
}

// BuildRegistry assembles the default strategy table from the protocol
// fetchers. Parameter overrides per family come from internal/config.
func BuildRegistry(markets MarketSource, fixed CollateralSourceProvider, params, fixedLoopParams types.SynthesisParameters) ([]Strategy, error) {
	synth, err := loop.NewSynthesizer(params)
	if err != nil {
		return nil, err
	}
	fixedSynth, err := loop.NewSynthesizer(fixedLoopParams)
	if err != nil {
		return nil, err
	}

	morphoChains := sortedKeys(datafetcher.MorphoChainIDs)
	pendleChains := sortedKeys(datafetcher.PendleChainIDs)

	return []Strategy{
		{
			Category: "Morpho Lend",
			Chains:   morphoChains,
			Fetch: func(ctx context.Context, chain string) ([]types.YieldOpportunity, error) {
				records, err := markets.Markets(ctx, chain)
				if err != nil {
					return nil, err
				}
				var out []types.YieldOpportunity
				for _, m := range records {
					if !matchesAny(m.LoanSymbol, config.BorrowStables) {
						continue
					}
					if opp, ok := synth.SimpleLend("Morpho Lend", m); ok {
						out = append(out, opp)
					}
				}
				return out, nil
			},
		},
		{
			Category: "Morpho Borrow/Lend Loop",
			Chains:   morphoChains,
			Fetch: func(ctx context.Context, chain string) ([]types.YieldOpportunity, error) {
				records, err := markets.Markets(ctx, chain)
				if err != nil {
					return nil, err
				}
				return synthesizeYieldBearingLoops(synth, records), nil
			},
		},
		{
			Category: "Pendle Fixed Yields",
			Chains:   pendleChains,
			Fetch: func(ctx context.Context, chain string) ([]types.YieldOpportunity, error) {
				sources, err := fixed.CollateralSources(ctx, chain)
				if err != nil {
					return nil, err
				}
				var out []types.YieldOpportunity
				for _, source := range sources {
					if opp, ok := fixedSynth.FixedYield("Pendle Fixed Yields", "Pendle", source); ok {
						out = append(out, opp)
					}
				}
				return out, nil
			},
		},
		{
			Category: "Pendle Looping",
			Chains:   pendleChains,
			Fetch: func(ctx context.Context, chain string) ([]types.YieldOpportunity, error) {
				sources, err := fixed.CollateralSources(ctx, chain)
				if err != nil {
					return nil, err
				}
				if len(sources) == 0 {
					return nil, nil
				}
				records, err := markets.Markets(ctx, chain)
				if err != nil {
					return nil, err
				}
				// Only markets whose collateral is itself a fixed-term
				// token can back a PT loop; the maturity embedded in the
				// market symbol is matched against the PT's.
				candidates := filterMarkets(records, func(m types.MarketRecord) bool {
					return strings.Contains(m.CollateralSymbol, "PT-") &&
						matchesAny(m.LoanSymbol, config.BorrowStables)
				})
				var out []types.YieldOpportunity
				for _, source := range sources {
					out = append(out, fixedSynth.Synthesize("Pendle Looping", "Pendle + Morpho", source, candidates)...)
				}
				return out, nil
			},
		},
	}, nil
}

// synthesizeYieldBearingLoops derives loop opportunities from markets whose
// collateral is a yield-bearing stablecoin with a known (tabled) yield.
// Fixed-term collateral is excluded here: PT loops are synthesized from live
// fixed-market data, which carries the maturity the table cannot.
func synthesizeYieldBearingLoops(synth *loop.Synthesizer, records []types.MarketRecord) []types.YieldOpportunity {
	candidates := filterMarkets(records, func(m types.MarketRecord) bool {
		return !strings.Contains(m.CollateralSymbol, "PT-") &&
			matchesAny(m.CollateralSymbol, config.YieldBearingPatterns) &&
			matchesAny(m.LoanSymbol, config.BorrowStables)
	})

	// One collateral source per distinct symbol; iterate sorted so output
	// never depends on map order.
	seen := make(map[string]bool)
	var collaterals []string
	for _, m := range candidates {
		if !seen[m.CollateralSymbol] {
			seen[m.CollateralSymbol] = true
			collaterals = append(collaterals, m.CollateralSymbol)
		}
	}
	sort.Strings(collaterals)

	var out []types.YieldOpportunity
	for _, symbol := range collaterals {
		source := types.CollateralSource{
			Symbol:   symbol,
			YieldAPY: collateralYieldFor(symbol),
		}
		out = append(out, synth.Synthesize("Morpho Borrow/Lend Loop", "Morpho", source, candidates)...)
	}
	return out
}

// collateralYieldFor resolves the current yield of a yield-bearing
// stablecoin from the known-rates table, by exact then containment match.
func collateralYieldFor(symbol string) float64 {
	upper := strings.ToUpper(symbol)
	if rate, ok := config.KnownCollateralYields[upper]; ok {
		return rate
	}
	keys := make([]string, 0, len(config.KnownCollateralYields))
	for k := range config.KnownCollateralYields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if strings.Contains(upper, k) {
			return config.KnownCollateralYields[k]
		}
	}
	return config.DefaultCollateralYield
}

func matchesAny(symbol string, patterns []string) bool {
	upper := strings.ToUpper(symbol)
	for _, p := range patterns {
		if strings.Contains(upper, p) {
			return true
		}
	}
	return false
}

func filterMarkets(records []types.MarketRecord, keep func(types.MarketRecord) bool) []types.MarketRecord {
	var out []types.MarketRecord
	for _, m := range records {
		if keep(m) {
			out = append(out, m)
		}
	}
	return out
}

func sortedKeys(m map[string]int) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
