/*
This file fetches Morpho Blue markets over GraphQL and shapes them into
normalized MarketRecords. Yields arrive as decimal fractions and are
converted to percentages here, before any record reaches the core.
*/

package datafetcher

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/stableyield/loopscout/internal/logger"
	"github.com/stableyield/loopscout/internal/types"
	"github.com/stableyield/loopscout/internal/utils"

	"github.com/rs/zerolog"
)

var ErrMorphoResponse = errors.New("morpho API returned errors")

// MorphoChainIDs maps the chain names this service tracks onto Morpho's
// numeric chain IDs.
var MorphoChainIDs = map[string]int{
	"Ethereum": 1,
	"Base":     8453,
	"Arbitrum": 42161,
	"Optimism": 10,
	"Unichain": 130,
}

const morphoMarketsQuery = `
query GetMarkets($chainId: Int!) {
    markets(where: { chainId_in: [$chainId] }, first: 1000) {
        items {
            uniqueKey
            loanAsset { symbol }
            collateralAsset { symbol }
            state {
                supplyApy
                borrowApy
                supplyAssetsUsd
                liquidityAssetsUsd
            }
            lltv
        }
    }
}`

type morphoResponse struct {
	Data struct {
		Markets struct {
			Items []morphoMarket `json:"items"`
		} `json:"markets"`
	} `json:"data"`
	Errors []struct {
		Message string `json:"message"`
	} `json:"errors"`
}

type morphoMarket struct {
	UniqueKey string `json:"uniqueKey"`
	LoanAsset struct {
		Symbol string `json:"symbol"`
	} `json:"loanAsset"`
	CollateralAsset struct {
		Symbol string `json:"symbol"`
	} `json:"collateralAsset"`
	State struct {
		SupplyAPY          float64 `json:"supplyApy"`
		BorrowAPY          float64 `json:"borrowApy"`
		SupplyAssetsUSD    float64 `json:"supplyAssetsUsd"`
		LiquidityAssetsUSD float64 `json:"liquidityAssetsUsd"`
	} `json:"state"`
	LLTV string `json:"lltv"`
}

// MorphoFetcher retrieves borrow/lend markets from the Morpho Blue API.
type MorphoFetcher struct {
	client *Client
	cache  *responseCache
	url    string
	logger zerolog.Logger
}

// NewMorphoFetcher wires a fetcher against the given GraphQL endpoint.
func NewMorphoFetcher(client *Client, cache *responseCache, url string) *MorphoFetcher {
	return &MorphoFetcher{
		client: client,
		cache:  cache,
		url:    url,
		logger: logger.GetForComponent("morpho_fetcher"),
	}
}

// Markets fetches and normalizes all markets for one chain. Individual
// records that fail normalization are dropped with a debug log; the batch
// always survives.
func (m *MorphoFetcher) Markets(ctx context.Context, chain string) ([]types.MarketRecord, error) {
	chainID, ok := MorphoChainIDs[chain]
	if !ok {
		return nil, fmt.Errorf("no Morpho chain ID for %q", chain)
	}

	cacheKey := fmt.Sprintf("morpho:%d", chainID)
	if cached, ok := m.cache.get(cacheKey); ok {
		if records, ok := cached.([]types.MarketRecord); ok {
			return records, nil
		}
	}

	var resp morphoResponse
	err := m.client.fetchJSON(ctx, "POST", m.url, map[string]any{
		"query":     morphoMarketsQuery,
		"variables": map[string]any{"chainId": chainID},
	}, &resp)
	if err != nil {
		return nil, err
	}
	if len(resp.Errors) > 0 {
		return nil, fmt.Errorf("%w: %s", ErrMorphoResponse, resp.Errors[0].Message)
	}

	records := make([]types.MarketRecord, 0, len(resp.Data.Markets.Items))
	for _, market := range resp.Data.Markets.Items {
		record, ok := m.normalize(market, chain)
		if !ok {
			continue
		}
		records = append(records, record)
	}

	m.logger.Info().
		Str("chain", chain).
		Int("rawMarkets", len(resp.Data.Markets.Items)).
		Int("normalized", len(records)).
		Msg("Fetched Morpho markets")

	m.cache.set(cacheKey, records)
	return records, nil
}

func (m *MorphoFetcher) normalize(market morphoMarket, chain string) (types.MarketRecord, bool) {
	collateral := strings.ToUpper(strings.TrimSpace(market.CollateralAsset.Symbol))
	loan := strings.ToUpper(strings.TrimSpace(market.LoanAsset.Symbol))
	if collateral == "" || loan == "" {
		return types.MarketRecord{}, false
	}

	supplyAPY, err := utils.DecimalToPercent(market.State.SupplyAPY)
	if err != nil {
		m.logger.Debug().Str("marketID", market.UniqueKey).Err(err).Msg("Bad supply APY, record dropped")
		return types.MarketRecord{}, false
	}
	borrowAPY, err := utils.DecimalToPercent(market.State.BorrowAPY)
	if err != nil {
		m.logger.Debug().Str("marketID", market.UniqueKey).Err(err).Msg("Bad borrow APY, record dropped")
		return types.MarketRecord{}, false
	}

	// liquidityAssetsUsd is the borrowable depth; some markets only report
	// total supply, which is the closest available stand-in.
	liquidity := market.State.LiquidityAssetsUSD
	if liquidity <= 0 {
		liquidity = market.State.SupplyAssetsUSD
	}

	return types.MarketRecord{
		MarketID:         market.UniqueKey,
		Protocol:         "Morpho",
		Chain:            chain,
		CollateralSymbol: collateral,
		LoanSymbol:       loan,
		SupplyAPY:        supplyAPY,
		BorrowAPY:        borrowAPY,
		LiquidityUSD:     liquidity,
		TVLUSD:           market.State.SupplyAssetsUSD,
		CollateralFactor: market.LLTV,
		SourceURL:        "https://app.morpho.org/market?id=" + market.UniqueKey,
	}, true
}
