/*

This file contains the function for ordering opportunities for display.
Ordering is fully deterministic: every sort falls back to the opportunity
fingerprint so that two runs over the same data always agree.

*/

package analyzer

import (
	"sort"
	"strings"

	"github.com/stableyield/loopscout/internal/types"
)

// SortField selects the primary sort key.
type SortField string

const (
	SortAPY      SortField = "apy"
	SortTVL      SortField = "tvl"
	SortRisk     SortField = "risk"
	SortChain    SortField = "chain"
	SortProtocol SortField = "protocol"
	SortAsset    SortField = "asset"
	SortLeverage SortField = "leverage"
)

// ParseSortField maps a query-string value onto a SortField, defaulting to
// APY for anything unrecognized.
func ParseSortField(s string) SortField {
	switch SortField(strings.ToLower(strings.TrimSpace(s))) {
	case SortTVL:
		return SortTVL
	case SortRisk:
		return SortRisk
	case SortChain:
		return SortChain
	case SortProtocol:
		return SortProtocol
	case SortAsset:
		return SortAsset
	case SortLeverage:
		return SortLeverage
	default:
		return SortAPY
	}
}

// SortOpportunities returns a new slice ordered by the given field. The
// numeric fields default to descending (highest APY first is the common
// view); ascending flips the order.
func SortOpportunities(opportunities []types.YieldOpportunity, field SortField, ascending bool) []types.YieldOpportunity {
	sorted := make([]types.YieldOpportunity, len(opportunities))
	copy(sorted, opportunities)

	less := lessFunc(field)
	sort.SliceStable(sorted, func(i, j int) bool {
		a, b := sorted[i], sorted[j]
		if !ascending {
			a, b = b, a
		}
		if c := less(a, b); c != 0 {
			return c < 0
		}
		return a.UniqueID() < b.UniqueID()
	})

	return sorted
}

// lessFunc returns a three-way comparator for the field.
func lessFunc(field SortField) func(a, b types.YieldOpportunity) int {
	switch field {
	case SortTVL:
		return func(a, b types.YieldOpportunity) int { return compareFloat(a.TVL, b.TVL) }
	case SortRisk:
		return func(a, b types.YieldOpportunity) int { return int(a.RiskScore) - int(b.RiskScore) }
	case SortChain:
		return func(a, b types.YieldOpportunity) int {
			return strings.Compare(strings.ToLower(a.Chain), strings.ToLower(b.Chain))
		}
	case SortProtocol:
		return func(a, b types.YieldOpportunity) int {
			return strings.Compare(strings.ToLower(a.Protocol), strings.ToLower(b.Protocol))
		}
	case SortAsset:
		return func(a, b types.YieldOpportunity) int {
			return strings.Compare(strings.ToLower(a.DisplayAsset), strings.ToLower(b.DisplayAsset))
		}
	case SortLeverage:
		return func(a, b types.YieldOpportunity) int { return compareFloat(a.Leverage, b.Leverage) }
	default:
		return func(a, b types.YieldOpportunity) int { return compareFloat(a.APY, b.APY) }
	}
}

func compareFloat(a, b float64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}
