/*
This file fetches Pendle fixed-yield (PT) markets and shapes them into
collateral yield sources: an implied fixed yield plus a maturity date,
usable either standalone or as the collateral leg of a loop.
*/

package datafetcher

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/stableyield/loopscout/internal/config"
	"github.com/stableyield/loopscout/internal/logger"
	"github.com/stableyield/loopscout/internal/types"
	"github.com/stableyield/loopscout/internal/utils"

	"github.com/rs/zerolog"
)

// PendleChainIDs maps chain names onto Pendle's numeric chain IDs for the
// chains where PT looping is viable.
var PendleChainIDs = map[string]int{
	"Ethereum": 1,
	"Base":     8453,
	"Arbitrum": 42161,
	"Unichain": 130,
}

type pendleMarketsResponse struct {
	Markets []pendleMarket `json:"markets"`
	Results []pendleMarket `json:"results"`
}

type pendleMarket struct {
	Name       string  `json:"name"`
	Expiry     string  `json:"expiry"`
	ImpliedAPY float64 `json:"impliedApy"`
	Underlying struct {
		Symbol string `json:"symbol"`
	} `json:"underlyingAsset"`
	PT struct {
		Symbol string `json:"symbol"`
	} `json:"pt"`
	Liquidity struct {
		USD float64 `json:"usd"`
	} `json:"liquidity"`
}

// PendleFetcher retrieves fixed-yield markets from the Pendle core API.
type PendleFetcher struct {
	client  *Client
	cache   *responseCache
	baseURL string
	logger  zerolog.Logger
}

// NewPendleFetcher wires a fetcher against the given API base URL.
func NewPendleFetcher(client *Client, cache *responseCache, baseURL string) *PendleFetcher {
	return &PendleFetcher{
		client:  client,
		cache:   cache,
		baseURL: strings.TrimRight(baseURL, "/"),
		logger:  logger.GetForComponent("pendle_fetcher"),
	}
}

// CollateralSources fetches all active PT markets for one chain and keeps
// the stablecoin-denominated ones. Markets without a parsable expiry or a
// positive implied yield are dropped individually.
func (p *PendleFetcher) CollateralSources(ctx context.Context, chain string) ([]types.CollateralSource, error) {
	chainID, ok := PendleChainIDs[chain]
	if !ok {
		return nil, fmt.Errorf("no Pendle chain ID for %q", chain)
	}

	cacheKey := fmt.Sprintf("pendle:%d", chainID)
	if cached, ok := p.cache.get(cacheKey); ok {
		if sources, ok := cached.([]types.CollateralSource); ok {
			return sources, nil
		}
	}

	url := fmt.Sprintf("%s/%d/markets", p.baseURL, chainID)
	var resp pendleMarketsResponse
	if err := p.client.fetchJSON(ctx, "GET", url, nil, &resp); err != nil {
		return nil, err
	}

	raw := resp.Markets
	if len(raw) == 0 {
		raw = resp.Results
	}

	sources := make([]types.CollateralSource, 0, len(raw))
	for _, market := range raw {
		source, ok := p.normalize(market, chain)
		if !ok {
			continue
		}
		sources = append(sources, source)
	}

	p.logger.Info().
		Str("chain", chain).
		Int("rawMarkets", len(raw)).
		Int("stablecoinSources", len(sources)).
		Msg("Fetched Pendle fixed-yield markets")

	p.cache.set(cacheKey, sources)
	return sources, nil
}

func (p *PendleFetcher) normalize(market pendleMarket, chain string) (types.CollateralSource, bool) {
	symbol := strings.ToUpper(strings.TrimSpace(market.Underlying.Symbol))
	if symbol == "" {
		symbol = strings.ToUpper(strings.TrimSpace(market.PT.Symbol))
	}
	if symbol == "" || !isTargetStablecoin(symbol) {
		return types.CollateralSource{}, false
	}

	yieldAPY, err := utils.DecimalToPercent(market.ImpliedAPY)
	if err != nil || yieldAPY <= 0 {
		return types.CollateralSource{}, false
	}

	maturity, err := time.Parse(time.RFC3339, market.Expiry)
	if err != nil {
		p.logger.Debug().
			Str("market", market.Name).
			Str("expiry", market.Expiry).
			Msg("Unparsable expiry, market dropped")
		return types.CollateralSource{}, false
	}
	// Matured PTs no longer earn the implied yield.
	if !maturity.After(time.Now()) {
		return types.CollateralSource{}, false
	}
	maturityUTC := maturity.UTC()

	return types.CollateralSource{
		Symbol:    symbol,
		Chain:     chain,
		YieldAPY:  yieldAPY,
		Maturity:  &maturityUTC,
		TVLUSD:    market.Liquidity.USD,
		SourceURL: "https://app.pendle.finance/trade/markets",
	}, true
}

func isTargetStablecoin(symbol string) bool {
	for _, stable := range config.TargetStablecoins {
		if strings.Contains(symbol, stable) {
			return true
		}
	}
	return false
}
