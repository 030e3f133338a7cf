// Package sizing turns bracket probabilities and market prices into
// cost-adjusted edges and capped-Kelly position sizes.
package sizing

import (
	"math"
	"strings"
	"time"

	"github.com/gopher-lab/zeus-trader/pkg/trading"
)

// Reason tokens recorded on each decision. They name what bound the size.
const (
	ReasonStandard  = "standard"
	ReasonStrong    = "strong_edge"
	ReasonKellyCap  = "kelly_capped"
	ReasonLiquidity = "liquidity_limited"
)

// Params are the sizing constants, all sourced from configuration.
type Params struct {
	EdgeMin      float64 // Minimum post-cost edge to trade, as a fraction
	FeeBP        float64 // Fee assumption in basis points
	SlippageBP   float64 // Slippage assumption in basis points
	KellyCap     float64 // Upper bound on the applied Kelly fraction
	PerMarketCap float64 // USD ceiling per bracket
	LiquidityMin float64 // USD bid-depth floor; below it the bracket is skipped
}

// Sizer computes edge decisions. Deterministic given inputs.
type Sizer struct {
	Params Params
}

// Evaluate walks the bracket probabilities in input order and emits one
// decision per bracket whose cost-adjusted edge clears EdgeMin and whose
// Kelly fraction is positive. depthUSD maps token ID to bid-side USD
// depth; a nil map means depth was not supplied and no liquidity rule
// applies.
func (s *Sizer) Evaluate(probs []trading.BracketProb, bankroll float64, depthUSD map[string]float64, now time.Time) []trading.EdgeDecision {
	var out []trading.EdgeDecision
	for _, bp := range probs {
		if bp.PMkt == nil {
			continue
		}
		d, ok := s.evaluateOne(bp, *bp.PMkt, bankroll, depthUSD, now)
		if ok {
			out = append(out, d)
		}
	}
	return out
}

func (s *Sizer) evaluateOne(bp trading.BracketProb, pMkt, bankroll float64, depthUSD map[string]float64, now time.Time) (trading.EdgeDecision, bool) {
	costs := (s.Params.FeeBP + s.Params.SlippageBP) / 1e4
	edge := (bp.PZeus - pMkt) - costs
	if edge < s.Params.EdgeMin {
		return trading.EdgeDecision{}, false
	}

	if pMkt <= 0 || pMkt >= 1 {
		return trading.EdgeDecision{}, false
	}
	b := 1/pMkt - 1
	fKelly := math.Max(0, (b*bp.PZeus-(1-bp.PZeus))/b)
	if fKelly <= 0 {
		return trading.EdgeDecision{}, false
	}

	var reasons []string

	// Caps apply in order and only ever tighten.
	size := fKelly * bankroll
	if kellyMax := s.Params.KellyCap * bankroll; size > kellyMax {
		size = kellyMax
		reasons = append(reasons, ReasonKellyCap)
	}
	if size > s.Params.PerMarketCap {
		size = s.Params.PerMarketCap
		if len(reasons) == 0 {
			reasons = append(reasons, ReasonKellyCap)
		}
	}
	if depthUSD != nil {
		depth, known := depthUSD[bp.Bracket.TokenID]
		if known {
			if depth < s.Params.LiquidityMin {
				return trading.EdgeDecision{}, false
			}
			if size > depth {
				size = depth
				reasons = append(reasons, ReasonLiquidity)
			}
		}
	}

	if len(reasons) == 0 {
		if edge >= 2*s.Params.EdgeMin {
			reasons = append(reasons, ReasonStrong)
		} else {
			reasons = append(reasons, ReasonStandard)
		}
	}

	return trading.EdgeDecision{
		Bracket:   bp.Bracket,
		Edge:      edge,
		FKelly:    fKelly,
		SizeUSD:   size,
		Reason:    strings.Join(reasons, "+"),
		Timestamp: now.UTC(),
	}, true
}
