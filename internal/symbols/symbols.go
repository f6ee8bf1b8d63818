/*

This file contains the symbol and maturity normalizer: the single place where
instrument symbols from independent data sources are reduced to a comparable
underlying identity and an optional maturity date.

Matching strictness is deliberate and centralized here. Scattering per-source
regexes caused staked wrappers to be conflated with their unstaked underlying
(sUSDe vs USDe) and near-miss substrings to cross-contaminate (reUSD vs
reUSDe), so every rule below is unit-tested against the known collision cases.

*/

package symbols

import (
	"math"
	"regexp"
	"strings"
	"time"
)

const (
	// fixedTermPrefix marks tokenized fixed-yield claims (PT tokens).
	fixedTermPrefix = "PT-"

	// stakedMarker is the single-character prefix that flags a staked
	// wrapper. A staked wrapper and its unstaked underlying are different
	// assets and must never be treated as equivalent.
	stakedMarker = 'S'

	// fuzzyLengthRatio bounds the substring fallback: containment only
	// counts when the shorter identity covers at least this share of the
	// longer one. This keeps the fallback narrow rather than general
	// substring matching.
	fuzzyLengthRatio = 0.7
)

var (
	// Trailing date tokens like "-27MAR2025" or "27MAR2025".
	trailingDateToken = regexp.MustCompile(`[-_]?\d{1,2}[A-Z]{3}\d{4}$`)

	// Any embedded date token, for maturity extraction.
	dateToken = regexp.MustCompile(`(\d{1,2})([A-Z]{3})(\d{4})`)

	// Trailing purely-numeric index disambiguators like "-2" or "3".
	trailingIndex = regexp.MustCompile(`[-_]?\d+$`)

	hasLetter = regexp.MustCompile(`[A-Z]`)
)

var monthAbbrevs = map[string]time.Month{
	"JAN": time.January, "FEB": time.February, "MAR": time.March,
	"APR": time.April, "MAY": time.May, "JUN": time.June,
	"JUL": time.July, "AUG": time.August, "SEP": time.September,
	"OCT": time.October, "NOV": time.November, "DEC": time.December,
}

// Identity is a comparable underlying-asset identity. An unknown identity
// never matches anything, itself included: callers must treat unmatchable
// instruments as excluded, not as wildcards.
type Identity struct {
	Symbol string // Canonical uppercase form.
	Known  bool
}

// Unknown returns the sentinel identity for unrecognizable symbols.
func Unknown() Identity {
	return Identity{}
}

// ExtractUnderlying derives the underlying-asset identity from an instrument
// symbol. It strips the fixed-term prefix, a trailing maturity token, any
// trailing numeric index, and a leading wrapper prefix when stripping it does
// not flip the staked/unstaked status of the symbol.
//
// Deterministic and side-effect free; symbols with nothing recognizable left
// after stripping yield the unknown sentinel.
func ExtractUnderlying(symbol string) Identity {
	s := strings.ToUpper(strings.TrimSpace(symbol))
	if s == "" {
		return Unknown()
	}

	s = strings.TrimPrefix(s, fixedTermPrefix)
	s = trailingDateToken.ReplaceAllString(s, "")
	s = strings.Trim(s, "-_")
	s = trailingIndex.ReplaceAllString(s, "")
	s = strings.Trim(s, "-_")

	// Strip a single wrapped-token prefix (e.g., "W"), but only when the
	// remainder does not begin with the staked marker: unwrapping must not
	// turn an unstaked symbol into a staked-looking one.
	if len(s) >= 4 && s[0] == 'W' && s[1] != stakedMarker {
		s = s[1:]
	}

	if s == "" || !hasLetter.MatchString(s) {
		return Unknown()
	}
	return Identity{Symbol: s, Known: true}
}

// ExtractMaturity scans a symbol for a {day}{3-letter month}{4-digit year}
// token and returns the corresponding UTC date. An absent or unparsable
// token (including invalid day/month combinations like 31FEB) reports ok
// false rather than an error.
func ExtractMaturity(symbol string) (time.Time, bool) {
	m := dateToken.FindStringSubmatch(strings.ToUpper(symbol))
	if m == nil {
		return time.Time{}, false
	}

	day := 0
	for _, c := range m[1] {
		day = day*10 + int(c-'0')
	}
	month, ok := monthAbbrevs[m[2]]
	if !ok {
		return time.Time{}, false
	}
	year := 0
	for _, c := range m[3] {
		year = year*10 + int(c-'0')
	}

	t := time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
	// time.Date normalizes out-of-range days (31FEB becomes 2-3 MAR);
	// a shifted date means the token was not a real calendar date.
	if t.Day() != day || t.Month() != month || t.Year() != year {
		return time.Time{}, false
	}
	return t, true
}

// IdentitiesEquivalent reports whether two identities refer to the same
// underlying asset.
//
// The staked rule is strict: if exactly one side begins with the staked
// marker they are never equivalent, even though one symbol may contain the
// other (sUSDe is not USDe). Otherwise an exact match after separator
// normalization wins; a bounded substring fallback applies only when the
// exact comparison fails.
func IdentitiesEquivalent(a, b Identity) bool {
	if !a.Known || !b.Known {
		return false
	}

	na := normalize(a.Symbol)
	nb := normalize(b.Symbol)
	if na == "" || nb == "" {
		return false
	}

	aStaked := na[0] == stakedMarker
	bStaked := nb[0] == stakedMarker
	if aStaked != bStaked {
		return false
	}

	if na == nb {
		return true
	}

	return fuzzyContains(na, nb)
}

// MaturitiesCompatible reports whether two maturities fall within
// toleranceDays of each other. Both dates are required: a missing maturity
// when one is expected is a non-match, never a wildcard.
func MaturitiesCompatible(a, b *time.Time, toleranceDays int) bool {
	if a == nil || b == nil || toleranceDays < 0 {
		return false
	}
	diffDays := math.Abs(a.UTC().Sub(b.UTC()).Hours()) / 24
	return diffDays <= float64(toleranceDays)
}

func normalize(s string) string {
	s = strings.ToUpper(s)
	s = strings.ReplaceAll(s, "-", "")
	return strings.ReplaceAll(s, "_", "")
}

// fuzzyContains is the deliberately narrow heuristic fallback: substring
// containment, accepted only when the lengths are close enough that the two
// symbols plausibly name the same asset.
//
// A trailing suffix on a shared stem is never accepted: reUSD and reUSDe
// are distinct tokens, and substring matching on that shape is exactly the
// cross-contamination this package exists to prevent. The shorter identity
// must therefore not be a prefix of the longer; a leading wrapper remainder
// is the only shape that can pass.
func fuzzyContains(a, b string) bool {
	shorter, longer := a, b
	if len(shorter) > len(longer) {
		shorter, longer = longer, shorter
	}
	if !strings.Contains(longer, shorter) {
		return false
	}
	if strings.HasPrefix(longer, shorter) {
		return false
	}
	return float64(len(shorter))/float64(len(longer)) >= fuzzyLengthRatio
}
