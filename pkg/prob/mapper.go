// Package prob converts an hourly temperature forecast into a probability
// distribution over an event's temperature brackets.
package prob

import (
	"math"
	"time"

	"github.com/gopher-lab/zeus-trader/pkg/trading"
	"github.com/gopher-lab/zeus-trader/pkg/units"
	"github.com/gopher-lab/zeus-trader/pkg/weather"
)

// ModelMode selects how the daily-high sigma is derived.
type ModelMode string

const (
	// ModeSpread derives sigma from the spread of the hourly series.
	ModeSpread ModelMode = "spread"
	// ModeBands derives sigma from the forecast's one-sided confidence
	// bands, falling back to the spread formula when bands are absent.
	ModeBands ModelMode = "bands"
)

// Sigma bounds in °F. The daily high of a 24-point hourly series is
// better resolved than a single reading, but never perfectly.
const (
	SigmaDefault = 2.0
	SigmaMin     = 1.0
	SigmaMax     = 6.0
)

// Z-scores of the one-sided 80% and 95% quantiles.
const (
	z80 = 0.8416
	z95 = 1.6449
)

// Mapper assigns bracket probabilities from forecasts. Calibration models
// are optional; stations without one pass through unchanged.
type Mapper struct {
	Mode         ModelMode
	Calibrations map[string]*weather.Calibration
	// CalibrationEnabled mirrors the station_calibration feature toggle.
	CalibrationEnabled bool
}

// Distribution is the derived daily-high normal plus per-bracket mass.
type Distribution struct {
	MeanF  float64
	SigmaF float64
	Probs  []trading.BracketProb
}

// Map converts a forecast and bracket set into a normalized distribution.
// Empty inputs are precondition violations, not empty outputs.
func (m *Mapper) Map(f trading.Forecast, brackets []trading.Bracket, loc *time.Location) (*Distribution, error) {
	if len(f.Points) == 0 {
		return nil, trading.Precondition("forecast for %s has no points", f.StationCode)
	}
	if len(brackets) == 0 {
		return nil, trading.Precondition("empty bracket set for %s", f.StationCode)
	}

	if m.CalibrationEnabled {
		if cal := m.Calibrations[f.StationCode]; cal != nil {
			f = cal.Apply(f, loc)
		}
	}

	seriesF := make([]float64, len(f.Points))
	for i, p := range f.Points {
		seriesF[i] = units.KToF(p.TempK)
	}

	mu := maxOf(seriesF)
	sigma := m.sigma(f, seriesF, mu)

	probs := make([]trading.BracketProb, len(brackets))
	sum := 0.0
	for i, b := range brackets {
		raw := phi((float64(b.UpperF)-mu)/sigma) - phi((float64(b.LowerF)-mu)/sigma)
		if raw < 0 {
			raw = 0 // floating-point guard
		}
		probs[i] = trading.BracketProb{Bracket: b, PZeus: raw}
		sum += raw
	}

	if sum == 0 {
		uniform := 1.0 / float64(len(probs))
		for i := range probs {
			probs[i].PZeus = uniform
		}
	} else {
		for i := range probs {
			probs[i].PZeus /= sum
		}
	}

	s := sigma
	for i := range probs {
		probs[i].SigmaZ = &s
	}

	return &Distribution{MeanF: mu, SigmaF: sigma, Probs: probs}, nil
}

// sigma derives the daily-high standard deviation per the configured mode.
func (m *Mapper) sigma(f trading.Forecast, seriesF []float64, mu float64) float64 {
	if len(seriesF) == 1 {
		return SigmaDefault
	}

	if m.Mode == ModeBands && f.U80F != nil && f.U95F != nil {
		s1 := (*f.U80F - mu) / z80
		s2 := (*f.U95F - mu) / z95
		return clamp((s1+s2)/2, SigmaMin, SigmaMax)
	}

	// Spread formula. The sqrt(2) factor reflects that the daily high has
	// higher variance than a typical hourly reading.
	std := populationStd(seriesF)
	sigma := std * math.Sqrt2
	floor := math.Max(SigmaDefault/2, SigmaMin)
	return math.Max(math.Min(sigma, SigmaMax), floor)
}

// TopPick returns the bracket with the highest model probability.
func (d *Distribution) TopPick() trading.BracketProb {
	best := d.Probs[0]
	for _, bp := range d.Probs[1:] {
		if bp.PZeus > best.PZeus {
			best = bp
		}
	}
	return best
}

// phi is the standard normal CDF.
func phi(x float64) float64 {
	return 0.5 * (1 + math.Erf(x/math.Sqrt2))
}

func populationStd(xs []float64) float64 {
	mean := 0.0
	for _, x := range xs {
		mean += x
	}
	mean /= float64(len(xs))

	variance := 0.0
	for _, x := range xs {
		d := x - mean
		variance += d * d
	}
	variance /= float64(len(xs))
	return math.Sqrt(variance)
}

func maxOf(xs []float64) float64 {
	m := xs[0]
	for _, x := range xs[1:] {
		if x > m {
			m = x
		}
	}
	return m
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
