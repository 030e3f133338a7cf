// Package market provides the Polymarket venue client: event discovery by
// slug, bracket parsing, price and depth reads, and resolution lookup.
package market

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/gopher-lab/zeus-trader/pkg/trading"
)

// Venue bracket questions come in a handful of textual forms:
// "60-61°F", "60–61°F" (en-dash), "60 - 61°F", "60 to 61°F",
// "60 - 61 degrees". Bounds must satisfy 0 < lower < upper < 150.
var bracketRe = regexp.MustCompile(`(\d{1,3})\s*(?:-|–|to)\s*(\d{1,3})\s*(?:°\s*F|degrees)`)

// ParseBracketBounds extracts [lower, upper) °F bounds from a market
// question. Returns ErrMalformedResponse-wrapped errors for questions
// that do not name a bracket.
func ParseBracketBounds(question string) (int, int, error) {
	m := bracketRe.FindStringSubmatch(question)
	if m == nil {
		return 0, 0, trading.Malformed("bracket parse", fmt.Sprintf("no bracket in question %q", question))
	}
	lower, err := strconv.Atoi(m[1])
	if err != nil {
		return 0, 0, trading.Malformed("bracket parse", err.Error())
	}
	upper, err := strconv.Atoi(m[2])
	if err != nil {
		return 0, 0, trading.Malformed("bracket parse", err.Error())
	}
	if lower <= 0 || upper >= 150 || lower >= upper {
		return 0, 0, trading.Malformed("bracket parse",
			fmt.Sprintf("bounds %d-%d outside sane range", lower, upper))
	}
	return lower, upper, nil
}

// BracketName renders the canonical display name for a bracket.
func BracketName(lowerF, upperF int) string {
	return fmt.Sprintf("%d-%d°F", lowerF, upperF)
}

// NormalizeBracketName strips venue decoration so winner and ledger
// bracket names compare by exact string equality: degree suffixes,
// tail-bracket arrows and whitespace all go.
func NormalizeBracketName(name string) string {
	s := strings.TrimSpace(name)
	s = strings.ReplaceAll(s, "°F", "")
	s = strings.ReplaceAll(s, "°", "")
	s = strings.ReplaceAll(s, "≤", "")
	s = strings.ReplaceAll(s, "≥", "")
	s = strings.ReplaceAll(s, " ", "")
	return s
}
