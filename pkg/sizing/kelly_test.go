package sizing

import (
	"math"
	"strings"
	"testing"
	"time"

	"github.com/gopher-lab/zeus-trader/pkg/trading"
)

var now = time.Date(2026, 7, 1, 18, 0, 0, 0, time.UTC)

func prob(name string, pZeus, pMkt float64) trading.BracketProb {
	return trading.BracketProb{
		Bracket: trading.Bracket{Name: name, TokenID: "tok-" + name},
		PZeus:   pZeus,
		PMkt:    &pMkt,
	}
}

func TestEdgeBelowThresholdEmitsNothing(t *testing.T) {
	s := &Sizer{Params: Params{
		EdgeMin:      0.05,
		FeeBP:        50,
		SlippageBP:   30,
		KellyCap:     0.25,
		PerMarketCap: 250,
	}}

	// Edge = (0.52-0.50) - 0.008 = 0.012 < 0.05.
	got := s.Evaluate([]trading.BracketProb{prob("60-61°F", 0.52, 0.50)}, 1000, nil, now)
	if len(got) != 0 {
		t.Fatalf("Evaluate = %d decisions, want 0", len(got))
	}
}

func TestKellyCapBites(t *testing.T) {
	s := &Sizer{Params: Params{
		EdgeMin:      0.01,
		KellyCap:     0.10,
		PerMarketCap: 1e6,
	}}

	got := s.Evaluate([]trading.BracketProb{prob("60-61°F", 0.80, 0.50)}, 1000, nil, now)
	if len(got) != 1 {
		t.Fatalf("Evaluate = %d decisions, want 1", len(got))
	}
	d := got[0]

	// Raw Kelly f* = (1*0.80 - 0.20)/1 = 0.60, capped to 0.10 of bankroll.
	if math.Abs(d.FKelly-0.60) > 1e-9 {
		t.Errorf("FKelly = %v, want 0.60", d.FKelly)
	}
	if math.Abs(d.SizeUSD-100.0) > 1e-9 {
		t.Errorf("SizeUSD = %v, want 100.00", d.SizeUSD)
	}
	if !strings.Contains(d.Reason, ReasonKellyCap) {
		t.Errorf("Reason = %q, want it to contain %q", d.Reason, ReasonKellyCap)
	}
}

func TestPerMarketCapBites(t *testing.T) {
	s := &Sizer{Params: Params{
		EdgeMin:      0.01,
		KellyCap:     1.0,
		PerMarketCap: 50,
	}}

	got := s.Evaluate([]trading.BracketProb{prob("60-61°F", 0.80, 0.50)}, 1000, nil, now)
	if len(got) != 1 {
		t.Fatalf("Evaluate = %d decisions, want 1", len(got))
	}
	if got[0].SizeUSD != 50 {
		t.Errorf("SizeUSD = %v, want per-market cap 50", got[0].SizeUSD)
	}
}

func TestLiquidityRules(t *testing.T) {
	s := &Sizer{Params: Params{
		EdgeMin:      0.01,
		KellyCap:     1.0,
		PerMarketCap: 1e6,
		LiquidityMin: 100,
	}}
	bp := prob("60-61°F", 0.80, 0.50)

	// Depth below the floor: skip entirely.
	got := s.Evaluate([]trading.BracketProb{bp}, 1000, map[string]float64{bp.Bracket.TokenID: 40}, now)
	if len(got) != 0 {
		t.Fatalf("thin book: got %d decisions, want 0", len(got))
	}

	// Depth above the floor but below the Kelly size: capped to depth.
	got = s.Evaluate([]trading.BracketProb{bp}, 1000, map[string]float64{bp.Bracket.TokenID: 150}, now)
	if len(got) != 1 {
		t.Fatalf("capped book: got %d decisions, want 1", len(got))
	}
	if got[0].SizeUSD != 150 {
		t.Errorf("SizeUSD = %v, want depth 150", got[0].SizeUSD)
	}
	if !strings.Contains(got[0].Reason, ReasonLiquidity) {
		t.Errorf("Reason = %q, want it to contain %q", got[0].Reason, ReasonLiquidity)
	}

	// No depth map at all: no liquidity rule applies.
	got = s.Evaluate([]trading.BracketProb{bp}, 1000, nil, now)
	if len(got) != 1 {
		t.Fatalf("nil depth: got %d decisions, want 1", len(got))
	}
}

func TestReasonTiers(t *testing.T) {
	s := &Sizer{Params: Params{
		EdgeMin:      0.05,
		KellyCap:     1.0,
		PerMarketCap: 1e6,
	}}

	// Uncapped with edge >= 2*EdgeMin: strong.
	got := s.Evaluate([]trading.BracketProb{prob("a", 0.70, 0.50)}, 100, nil, now)
	if len(got) != 1 || got[0].Reason != ReasonStrong {
		t.Fatalf("strong edge: got %+v", got)
	}

	// Uncapped with edge just over EdgeMin: standard.
	got = s.Evaluate([]trading.BracketProb{prob("b", 0.56, 0.50)}, 100, nil, now)
	if len(got) != 1 || got[0].Reason != ReasonStandard {
		t.Fatalf("standard edge: got %+v", got)
	}
}

func TestSkipsUnpricedAndDegenerate(t *testing.T) {
	s := &Sizer{Params: Params{EdgeMin: 0.01, KellyCap: 1, PerMarketCap: 1e6}}

	unpriced := trading.BracketProb{Bracket: trading.Bracket{Name: "x"}, PZeus: 0.9}
	zero := prob("z", 0.9, 0.0)
	one := prob("o", 0.9, 1.0)

	got := s.Evaluate([]trading.BracketProb{unpriced, zero, one}, 1000, nil, now)
	if len(got) != 0 {
		t.Fatalf("got %d decisions, want 0", len(got))
	}
}

func TestSizeNeverExceedsCaps(t *testing.T) {
	s := &Sizer{Params: Params{
		EdgeMin:      0.01,
		KellyCap:     0.20,
		PerMarketCap: 180,
	}}
	bankroll := 1000.0

	for _, pZeus := range []float64{0.3, 0.5, 0.7, 0.9, 0.99} {
		got := s.Evaluate([]trading.BracketProb{prob("b", pZeus, 0.25)}, bankroll, nil, now)
		for _, d := range got {
			if d.SizeUSD > s.Params.KellyCap*bankroll+1e-9 {
				t.Errorf("pZeus=%v: size %v exceeds kelly cap", pZeus, d.SizeUSD)
			}
			if d.SizeUSD > s.Params.PerMarketCap+1e-9 {
				t.Errorf("pZeus=%v: size %v exceeds per-market cap", pZeus, d.SizeUSD)
			}
		}
	}
}
