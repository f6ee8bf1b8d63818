/*

This file contains the YieldOpportunity record, the canonical output of the
synthesis engine, plus the risk and strategy enums attached to it.

*/

package types

import (
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// RiskLevel is an ordinal risk category. Ordering matters: filters compare
// levels with <=, so the zero value is the least risky.
type RiskLevel int

const (
	RiskLow RiskLevel = iota
	RiskMedium
	RiskHigh
	RiskVeryHigh
)

var riskNames = [...]string{"Low", "Medium", "High", "Very High"}

func (r RiskLevel) String() string {
	if r < RiskLow || r > RiskVeryHigh {
		return "Unknown"
	}
	return riskNames[r]
}

// ParseRiskLevel maps a display name back to a RiskLevel, case-insensitively.
func ParseRiskLevel(s string) (RiskLevel, error) {
	for i, name := range riskNames {
		if strings.EqualFold(strings.TrimSpace(s), name) {
			return RiskLevel(i), nil
		}
	}
	return RiskMedium, fmt.Errorf("unknown risk level: %q", s)
}

func (r RiskLevel) MarshalJSON() ([]byte, error) {
	return json.Marshal(r.String())
}

func (r *RiskLevel) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	level, err := ParseRiskLevel(s)
	if err != nil {
		return err
	}
	*r = level
	return nil
}

// StrategyType classifies how an opportunity earns its yield.
type StrategyType string

const (
	StrategySimpleLend     StrategyType = "simple_lend"
	StrategyLoop           StrategyType = "loop"
	StrategyFixedYield     StrategyType = "fixed_yield"
	StrategyFixedYieldLoop StrategyType = "fixed_yield_loop"
	StrategyReward         StrategyType = "reward"
	StrategyYieldBearing   StrategyType = "yield_bearing"
	StrategyVault          StrategyType = "vault"
)

// YieldOpportunity is one investable opportunity, looped or not. Records are
// constructed once per synthesis run and never mutated afterwards.
//
// APY is already leverage-adjusted; SupplyAPY and BorrowAPY retain the
// unleveraged legs for audit and display.
type YieldOpportunity struct {
	Category     string         `json:"category"`
	Protocol     string         `json:"protocol"`
	Chain        string         `json:"chain"`
	DisplayAsset string         `json:"display_asset"` // Collateral or pair label shown to users.
	APY          float64        `json:"apy"`
	TVL          float64        `json:"tvl"`
	Leverage     float64        `json:"leverage"` // >= 1.0; 1.0 means no loop.
	SupplyAPY    float64        `json:"supply_apy"`
	BorrowAPY    float64        `json:"borrow_apy"`
	RiskScore    RiskLevel      `json:"risk_score"`
	MaturityDate *time.Time     `json:"maturity_date,omitempty"`
	SourceURL    string         `json:"source_url"`
	Extra        map[string]any `json:"extra,omitempty"` // Free-form annotations: warnings, underlying pair, LLTV%.
}

// UniqueID returns a short stable fingerprint derived from the identifying
// fields. Downstream UIs key user preferences (e.g., hidden rows) on it, so
// it must not depend on volatile fields like APY or TVL.
func (o YieldOpportunity) UniqueID() string {
	key := strings.Join([]string{
		o.Category,
		o.Protocol,
		o.Chain,
		o.DisplayAsset,
		fmt.Sprintf("%.1f", o.Leverage),
		o.SourceURL,
	}, "|")
	sum := md5.Sum([]byte(key))
	return hex.EncodeToString(sum[:])[:12]
}

// FormattedAPY renders the APY as a percentage string.
func (o YieldOpportunity) FormattedAPY() string {
	if o.APY >= 100 {
		return fmt.Sprintf("%.1f%%", o.APY)
	}
	return fmt.Sprintf("%.2f%%", o.APY)
}

// FormattedTVL renders the TVL with B/M/K units.
func (o YieldOpportunity) FormattedTVL() string {
	switch {
	case o.TVL >= 1_000_000_000:
		return fmt.Sprintf("$%.2fB", o.TVL/1_000_000_000)
	case o.TVL >= 1_000_000:
		return fmt.Sprintf("$%.2fM", o.TVL/1_000_000)
	case o.TVL >= 1_000:
		return fmt.Sprintf("$%.2fK", o.TVL/1_000)
	default:
		return fmt.Sprintf("$%.2f", o.TVL)
	}
}

// FormattedLeverage renders the leverage multiplier.
func (o YieldOpportunity) FormattedLeverage() string {
	if o.Leverage == 1.0 {
		return "1x"
	}
	return fmt.Sprintf("%.1fx", o.Leverage)
}
