// Package metrics derives performance statistics from the paper ledger:
// hit rate, ROI, P&L extremes, and a simplified Sharpe ratio.
package metrics

import (
	"math"
	"time"

	"github.com/shopspring/decimal"

	"github.com/gopher-lab/zeus-trader/pkg/ledger"
	"github.com/gopher-lab/zeus-trader/pkg/trading"
)

// Filter restricts which ledger rows feed a summary. Zero values mean
// "any".
type Filter struct {
	From    time.Time
	To      time.Time
	Station string
	Venue   string
}

// Summary is the aggregate over one filtered slice of the ledger.
type Summary struct {
	Total    int `json:"total"`
	Resolved int `json:"resolved"`
	Pending  int `json:"pending"`
	Wins     int `json:"wins"`
	Losses   int `json:"losses"`

	HitRate   float64 `json:"hit_rate"`
	TotalRisk float64 `json:"total_risk_usd"`
	TotalPnL  float64 `json:"total_pnl_usd"`
	ROI       float64 `json:"roi"`

	LargestWin  float64 `json:"largest_win"`
	LargestLoss float64 `json:"largest_loss"`
	AvgWinPnL   float64 `json:"avg_win_pnl"`
	AvgLossPnL  float64 `json:"avg_loss_pnl"`
	AvgEdge     float64 `json:"avg_edge"`
	Sharpe      float64 `json:"sharpe"`
}

// Report is a full metrics pass: the overall summary, per-station and
// per-venue breakdowns, and the standard period bands.
type Report struct {
	Overall    Summary            `json:"overall"`
	ByStation  map[string]Summary `json:"by_station"`
	ByVenue    map[string]Summary `json:"by_venue"`
	Bands      map[string]Summary `json:"bands"`
	GeneratedAt time.Time         `json:"generated_at"`
}

// Aggregator reads the ledger and computes summaries.
type Aggregator struct {
	Ledger *ledger.Ledger
}

// SummarizeRecords computes a summary over an in-memory record slice,
// bypassing the ledger. The backtester uses it for run output.
func SummarizeRecords(records []trading.TradeRecord) Summary {
	return summarize(records)
}

// Summarize computes the summary for one filter.
func (a *Aggregator) Summarize(f Filter) (Summary, error) {
	records, err := a.load(f)
	if err != nil {
		return Summary{}, err
	}
	return summarize(records), nil
}

// Band names for the standard reporting windows.
const (
	BandToday   = "today"
	Band7d      = "last_7d"
	Band30d     = "last_30d"
	Band365d    = "last_365d"
	BandAllTime = "all_time"
)

// Run produces the full report over the given range.
func (a *Aggregator) Run(f Filter, now time.Time) (*Report, error) {
	records, err := a.load(f)
	if err != nil {
		return nil, err
	}

	report := &Report{
		Overall:     summarize(records),
		ByStation:   make(map[string]Summary),
		ByVenue:     make(map[string]Summary),
		Bands:       make(map[string]Summary),
		GeneratedAt: now.UTC(),
	}

	byStation := make(map[string][]trading.TradeRecord)
	byVenue := make(map[string][]trading.TradeRecord)
	for _, r := range records {
		byStation[r.StationCode] = append(byStation[r.StationCode], r)
		if r.Venue != "" {
			byVenue[r.Venue] = append(byVenue[r.Venue], r)
		}
	}
	for code, recs := range byStation {
		report.ByStation[code] = summarize(recs)
	}
	for venue, recs := range byVenue {
		report.ByVenue[venue] = summarize(recs)
	}

	bands := map[string]time.Time{
		BandToday: now.Truncate(24 * time.Hour),
		Band7d:    now.AddDate(0, 0, -7),
		Band30d:   now.AddDate(0, 0, -30),
		Band365d:  now.AddDate(0, 0, -365),
	}
	for name, since := range bands {
		var sel []trading.TradeRecord
		for _, r := range records {
			if !r.Timestamp.Before(since) {
				sel = append(sel, r)
			}
		}
		report.Bands[name] = summarize(sel)
	}
	report.Bands[BandAllTime] = report.Overall

	return report, nil
}

func (a *Aggregator) load(f Filter) ([]trading.TradeRecord, error) {
	from, to := f.From, f.To
	if from.IsZero() || to.IsZero() {
		days, err := a.Ledger.Days()
		if err != nil {
			return nil, err
		}
		if len(days) == 0 {
			return nil, nil
		}
		if from.IsZero() {
			from = days[0]
		}
		if to.IsZero() {
			to = days[len(days)-1]
		}
	}

	records, err := a.Ledger.ReadRange(from, to)
	if err != nil {
		return nil, err
	}

	var out []trading.TradeRecord
	for _, r := range records {
		if f.Station != "" && r.StationCode != f.Station {
			continue
		}
		if f.Venue != "" && r.Venue != f.Venue {
			continue
		}
		out = append(out, r)
	}
	return out, nil
}

func summarize(records []trading.TradeRecord) Summary {
	s := Summary{Total: len(records)}

	risk := decimal.Zero
	pnl := decimal.Zero
	var winSum, lossSum, edgeSum float64
	var resolvedPnLs []float64

	for _, r := range records {
		edgeSum += r.Edge
		risk = risk.Add(decimal.NewFromFloat(r.SizeUSD))

		switch r.Outcome {
		case trading.OutcomeWin:
			s.Wins++
			winSum += r.RealizedPnL
			if r.RealizedPnL > s.LargestWin {
				s.LargestWin = r.RealizedPnL
			}
		case trading.OutcomeLoss:
			s.Losses++
			lossSum += r.RealizedPnL
			if r.RealizedPnL < s.LargestLoss {
				s.LargestLoss = r.RealizedPnL
			}
		default:
			s.Pending++
			continue
		}
		pnl = pnl.Add(decimal.NewFromFloat(r.RealizedPnL))
		resolvedPnLs = append(resolvedPnLs, r.RealizedPnL)
	}

	s.Resolved = s.Wins + s.Losses
	s.TotalRisk, _ = risk.Round(2).Float64()
	s.TotalPnL, _ = pnl.Round(2).Float64()

	if s.Resolved > 0 {
		s.HitRate = float64(s.Wins) / float64(s.Resolved)
	}
	if s.TotalRisk > 0 {
		s.ROI = s.TotalPnL / s.TotalRisk
	}
	if s.Wins > 0 {
		s.AvgWinPnL = winSum / float64(s.Wins)
	}
	if s.Losses > 0 {
		s.AvgLossPnL = lossSum / float64(s.Losses)
	}
	if s.Total > 0 {
		s.AvgEdge = edgeSum / float64(s.Total)
	}
	s.Sharpe = sharpe(resolvedPnLs)

	return s
}

// sharpe is the simplified mean/stdev over resolved trade P&Ls. Not
// annualized; used for relative comparison only.
func sharpe(pnls []float64) float64 {
	if len(pnls) < 2 {
		return 0
	}
	mean := 0.0
	for _, p := range pnls {
		mean += p
	}
	mean /= float64(len(pnls))

	variance := 0.0
	for _, p := range pnls {
		d := p - mean
		variance += d * d
	}
	variance /= float64(len(pnls) - 1)
	std := math.Sqrt(variance)
	if std == 0 {
		return 0
	}
	return mean / std
}
