// Package backtest replays the trading cycle over a historical date range
// using stored snapshots where they exist and live fetches where they
// don't, then resolves and scores the resulting trades.
package backtest

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/gopher-lab/zeus-trader/pkg/engine"
	"github.com/gopher-lab/zeus-trader/pkg/ledger"
	"github.com/gopher-lab/zeus-trader/pkg/market"
	"github.com/gopher-lab/zeus-trader/pkg/metrics"
	"github.com/gopher-lab/zeus-trader/pkg/prob"
	"github.com/gopher-lab/zeus-trader/pkg/resolution"
	"github.com/gopher-lab/zeus-trader/pkg/sizing"
	"github.com/gopher-lab/zeus-trader/pkg/snapshot"
	"github.com/gopher-lab/zeus-trader/pkg/trading"
	"github.com/gopher-lab/zeus-trader/pkg/units"
	"github.com/gopher-lab/zeus-trader/pkg/weather"
)

// Runner replays and scores a date range. All fields are required except
// Snapshots, which may be nil when no snapshot store exists.
type Runner struct {
	Registry  *weather.Registry
	Fetchers  *engine.Fetchers
	Mapper    *prob.Mapper
	Sizer     *sizing.Sizer
	Snapshots *snapshot.Snapshotter
	Resolver  *resolution.Resolver
	DataDir   string
	Bankroll  float64
}

// SummaryRow scores one (day, station): the model's top pick against the
// resolved winner.
type SummaryRow struct {
	Day         string
	StationCode string
	ZeusPick    string
	Winner      string
	ZeusCorrect string // YES, NO or PENDING
}

// Result is one completed backtest run.
type Result struct {
	Trades      []trading.TradeRecord
	Summary     []SummaryRow
	Metrics     metrics.Summary
	RunFile     string
	SummaryFile string
}

// Run replays [start, end] for the given stations, resolves the trades,
// and writes the run CSVs under <dataDir>/runs/backtests/.
func (r *Runner) Run(ctx context.Context, start, end time.Time, stationCodes []string) (*Result, error) {
	if end.Before(start) {
		return nil, trading.Precondition("backtest range inverted: %s after %s",
			start.Format(units.DayFormat), end.Format(units.DayFormat))
	}

	var stations []*weather.Station
	for _, code := range stationCodes {
		st := r.Registry.ByCode(code)
		if st == nil {
			return nil, trading.Precondition("unknown station %q", code)
		}
		stations = append(stations, st)
	}
	if len(stations) == 0 {
		stations = r.Registry.All()
	}
	if len(stations) == 0 {
		return nil, trading.Precondition("no stations to backtest")
	}

	result := &Result{}
	for day := start; !day.After(end); day = day.AddDate(0, 0, 1) {
		for _, st := range stations {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			trades, row, err := r.replayDay(ctx, st, day)
			if err != nil {
				log.Warn().Err(err).
					Str("station", st.Code).
					Str("day", day.Format(units.DayFormat)).
					Msg("backtest day skipped")
				continue
			}
			result.Trades = append(result.Trades, trades...)
			result.Summary = append(result.Summary, row)
		}
	}

	if _, err := r.Resolver.Resolve(ctx, result.Trades); err != nil {
		return nil, err
	}
	r.scoreSummary(result)
	result.Metrics = metrics.SummarizeRecords(result.Trades)

	if err := r.writeOutputs(result, start, end); err != nil {
		return nil, err
	}
	return result, nil
}

// replayDay reconstructs one (station, day): forecast, brackets, prices
// by priority, then either full sizing or resolution-only rows.
func (r *Runner) replayDay(ctx context.Context, st *weather.Station, day time.Time) ([]trading.TradeRecord, SummaryRow, error) {
	forecast, err := r.loadForecast(ctx, st, day)
	if err != nil {
		return nil, SummaryRow{}, err
	}

	ev, err := r.Fetchers.Venue.DiscoverEvent(ctx, st.City, day)
	if err != nil {
		return nil, SummaryRow{}, err
	}

	prices := r.loadPrices(ctx, st, day, ev.Brackets)

	dist, err := r.Mapper.Map(forecast, ev.Brackets, st.Location())
	if err != nil {
		return nil, SummaryRow{}, err
	}
	for i := range dist.Probs {
		dist.Probs[i].PMkt = prices[i]
	}

	row := SummaryRow{
		Day:         day.Format(units.DayFormat),
		StationCode: st.Code,
		ZeusPick:    dist.TopPick().Bracket.Name,
		ZeusCorrect: "PENDING",
	}

	if !anyPriced(prices) {
		return resolutionOnlyRows(st, day, dist), row, nil
	}

	decisions := r.Sizer.Evaluate(dist.Probs, r.Bankroll, nil, day)
	byName := make(map[string]trading.BracketProb, len(dist.Probs))
	for _, bp := range dist.Probs {
		byName[bp.Bracket.Name] = bp
	}

	trades := make([]trading.TradeRecord, 0, len(decisions))
	for _, d := range decisions {
		bp := byName[d.Bracket.Name]
		trades = append(trades, trading.TradeRecord{
			Timestamp:   d.Timestamp,
			StationCode: st.Code,
			Bracket:     d.Bracket,
			Edge:        d.Edge,
			FKelly:      d.FKelly,
			SizeUSD:     d.SizeUSD,
			PZeus:       bp.PZeus,
			PMkt:        bp.PMkt,
			SigmaZ:      bp.SigmaZ,
			Reason:      d.Reason,
			Venue:       st.Venue,
			Outcome:     trading.OutcomePending,
			EventDay:    day,
		})
	}
	return trades, row, nil
}

// loadForecast prefers a stored snapshot; a live fetch with the
// historical instant is the fallback, provider permitting.
func (r *Runner) loadForecast(ctx context.Context, st *weather.Station, day time.Time) (trading.Forecast, error) {
	if r.Snapshots != nil {
		snap, err := r.Snapshots.ReadForecast(st.Code, day)
		if err != nil {
			log.Warn().Err(err).Str("station", st.Code).Msg("forecast snapshot unreadable, fetching live")
		} else if snap != nil {
			return trading.Forecast{
				StationCode: st.Code,
				Latitude:    st.Lat,
				Longitude:   st.Lon,
				EventDay:    day,
				Points:      snap.Points,
				U80F:        snap.U80F,
				U95F:        snap.U95F,
			}, nil
		}
	}
	return r.Fetchers.FetchForecast(ctx, st, day)
}

// loadPrices fills per-bracket prices in priority order: the manual
// price-snapshot file, the recorded market snapshot stream, the price
// history of closed markets, the current mid. A bracket no source can
// price stays nil.
func (r *Runner) loadPrices(ctx context.Context, st *weather.Station, day time.Time, brackets []trading.Bracket) []*float64 {
	prices := make([]*float64, len(brackets))

	saved := r.readPriceFile(st, day)
	var recorded *snapshot.MarketSnapshot
	if r.Snapshots != nil {
		recorded, _ = r.Snapshots.ReadMarket(st.City, day)
	}

	for i, b := range brackets {
		if p, ok := saved[market.NormalizeBracketName(b.Name)]; ok {
			v := p
			prices[i] = &v
			continue
		}
		if p := recordedPrice(recorded, b.Name); p != nil {
			prices[i] = p
			continue
		}
		if b.Closed && b.MarketID != "" {
			if p, err := r.Fetchers.Venue.OpeningPrice(ctx, b.MarketID); err == nil {
				prices[i] = &p
				continue
			}
		}
		if b.TokenID != "" {
			if p, err := r.Fetchers.Venue.Midpoint(ctx, b.TokenID); err == nil {
				prices[i] = &p
			}
		}
	}
	return prices
}

// readPriceFile loads data/price_snapshots/<day>/<STATION>_prices.json, a
// flat map of bracket name to price. Missing file means no saved prices.
func (r *Runner) readPriceFile(st *weather.Station, day time.Time) map[string]float64 {
	path := filepath.Join(r.DataDir, "price_snapshots", day.Format(units.DayFormat), st.Code+"_prices.json")
	data, err := os.ReadFile(path)
	if err != nil {
		return nil
	}
	var raw map[string]float64
	if err := json.Unmarshal(data, &raw); err != nil {
		log.Warn().Err(err).Str("file", path).Msg("price snapshot unparseable, ignoring")
		return nil
	}
	out := make(map[string]float64, len(raw))
	for name, p := range raw {
		out[market.NormalizeBracketName(name)] = p
	}
	return out
}

func recordedPrice(snap *snapshot.MarketSnapshot, name string) *float64 {
	if snap == nil {
		return nil
	}
	want := market.NormalizeBracketName(name)
	for i, b := range snap.Brackets {
		if market.NormalizeBracketName(b.Name) == want && i < len(snap.Prices) {
			return snap.Prices[i]
		}
	}
	return nil
}

func anyPriced(prices []*float64) bool {
	for _, p := range prices {
		if p != nil {
			return true
		}
	}
	return false
}

// resolutionOnlyRows emits one pending zero-size row per bracket so the
// resolver can score the model's pick against the actual outcome.
func resolutionOnlyRows(st *weather.Station, day time.Time, dist *prob.Distribution) []trading.TradeRecord {
	rows := make([]trading.TradeRecord, 0, len(dist.Probs))
	for _, bp := range dist.Probs {
		rows = append(rows, trading.TradeRecord{
			Timestamp:   day,
			StationCode: st.Code,
			Bracket:     bp.Bracket,
			Edge:        0,
			FKelly:      0,
			SizeUSD:     0,
			PZeus:       bp.PZeus,
			PMkt:        nil,
			SigmaZ:      bp.SigmaZ,
			Reason:      "resolution_only",
			Venue:       st.Venue,
			Outcome:     trading.OutcomePending,
			EventDay:    day,
		})
	}
	return rows
}

// scoreSummary fills winner and correctness per (day, station) from the
// resolved trades.
func (r *Runner) scoreSummary(result *Result) {
	winners := make(map[string]string) // day|station -> winner bracket
	for _, t := range result.Trades {
		if t.WinnerBracket != "" {
			winners[t.EventDay.Format(units.DayFormat)+"|"+t.StationCode] = t.WinnerBracket
		}
	}
	for i := range result.Summary {
		row := &result.Summary[i]
		winner, ok := winners[row.Day+"|"+row.StationCode]
		if !ok {
			continue
		}
		row.Winner = winner
		if market.NormalizeBracketName(row.ZeusPick) == market.NormalizeBracketName(winner) {
			row.ZeusCorrect = "YES"
		} else {
			row.ZeusCorrect = "NO"
		}
	}
}

// writeOutputs writes the run CSV and the per-day summary CSV under
// <dataDir>/runs/backtests/.
func (r *Runner) writeOutputs(result *Result, start, end time.Time) error {
	base := filepath.Join(r.DataDir, "runs", "backtests",
		start.Format(units.DayFormat)+"_to_"+end.Format(units.DayFormat))

	result.RunFile = base + ".csv"
	if err := ledger.WriteFile(result.RunFile, result.Trades); err != nil {
		return err
	}

	result.SummaryFile = base + "_SUMMARY.csv"
	f, err := os.Create(result.SummaryFile)
	if err != nil {
		return fmt.Errorf("create summary csv: %w", err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write([]string{"day", "station_code", "zeus_pick", "winner", "zeus_correct"}); err != nil {
		return fmt.Errorf("write summary header: %w", err)
	}
	for _, row := range result.Summary {
		if err := w.Write([]string{row.Day, row.StationCode, row.ZeusPick, row.Winner, row.ZeusCorrect}); err != nil {
			return fmt.Errorf("write summary row: %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("flush summary: %w", err)
	}

	log.Info().
		Int("trades", len(result.Trades)).
		Str("run", result.RunFile).
		Str("summary", result.SummaryFile).
		Msg("backtest written")
	return nil
}
