/*

This file contains the function for narrowing a synthesis run down to the
opportunities a consumer asked for.

*/

package analyzer

import (
	"strings"

	"github.com/stableyield/loopscout/internal/types"
)

// Filter describes the criteria consumers may combine. Nil/zero fields are
// not applied.
type Filter struct {
	MinAPY      *float64
	MaxRisk     *types.RiskLevel
	Chain       string // Exact chain name, case-insensitive.
	Asset       string // Substring of the display asset, case-insensitive.
	Protocol    string // Substring of the protocol, case-insensitive.
	MaxLeverage *float64
	MinTVL      *float64
}

// FilterOpportunities returns the opportunities satisfying every criterion
// in f. The input slice is never mutated. An opportunity that fails a filter
// simply does not appear; there is nothing to report to the caller.
func FilterOpportunities(opportunities []types.YieldOpportunity, f Filter) []types.YieldOpportunity {
	filtered := make([]types.YieldOpportunity, 0, len(opportunities))

	for _, o := range opportunities {
		if f.MinAPY != nil && o.APY < *f.MinAPY {
			continue
		}
		if f.MaxRisk != nil && o.RiskScore > *f.MaxRisk {
			continue
		}
		if f.Chain != "" && !strings.EqualFold(o.Chain, f.Chain) {
			continue
		}
		if f.Asset != "" && !strings.Contains(strings.ToUpper(o.DisplayAsset), strings.ToUpper(f.Asset)) {
			continue
		}
		if f.Protocol != "" && !strings.Contains(strings.ToLower(o.Protocol), strings.ToLower(f.Protocol)) {
			continue
		}
		if f.MaxLeverage != nil && o.Leverage > *f.MaxLeverage {
			continue
		}
		if f.MinTVL != nil && o.TVL < *f.MinTVL {
			continue
		}
		filtered = append(filtered, o)
	}

	return filtered
}
