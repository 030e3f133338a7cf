package engine

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/gopher-lab/zeus-trader/internal/config"
	"github.com/gopher-lab/zeus-trader/pkg/dashboard"
	"github.com/gopher-lab/zeus-trader/pkg/ledger"
	"github.com/gopher-lab/zeus-trader/pkg/prob"
	"github.com/gopher-lab/zeus-trader/pkg/sizing"
	"github.com/gopher-lab/zeus-trader/pkg/snapshot"
	"github.com/gopher-lab/zeus-trader/pkg/telemetry"
	"github.com/gopher-lab/zeus-trader/pkg/toggles"
	"github.com/gopher-lab/zeus-trader/pkg/trading"
	"github.com/gopher-lab/zeus-trader/pkg/units"
	"github.com/gopher-lab/zeus-trader/pkg/weather"
)

// Services bundles everything the engine needs. Hub may be nil when the
// dashboard is disabled.
type Services struct {
	Config    *config.Config
	Registry  *weather.Registry
	Toggles   *toggles.Toggles
	Fetchers  *Fetchers
	Mapper    *prob.Mapper
	Sizer     *sizing.Sizer
	Ledger    *ledger.Ledger
	Snapshots *snapshot.Snapshotter
	Hub       *dashboard.Hub
}

// Engine drives the fixed-cadence evaluation loop. Stations and days are
// evaluated sequentially within a cycle; the venue and providers see one
// request stream, never a burst.
type Engine struct {
	svc      Services
	interval time.Duration
	stations []*weather.Station

	now func() time.Time
}

// New builds an engine from validated configuration. Stations listed in
// engine.active_stations but absent from the registry are dropped with a
// warning.
func New(svc Services) *Engine {
	var stations []*weather.Station
	if len(svc.Config.Engine.ActiveStations) == 0 {
		stations = svc.Registry.All()
	} else {
		for _, code := range svc.Config.Engine.ActiveStations {
			st := svc.Registry.ByCode(code)
			if st == nil {
				log.Warn().Str("station", code).Msg("active station not in registry, skipping")
				continue
			}
			stations = append(stations, st)
		}
	}

	return &Engine{
		svc:      svc,
		interval: time.Duration(svc.Config.Engine.IntervalSeconds) * time.Second,
		stations: stations,
		now:      time.Now,
	}
}

// Run executes cycles until ctx is cancelled. Cancellation is honored
// between (station, day) evaluations, so an in-flight item always
// finishes and its snapshots land.
func (e *Engine) Run(ctx context.Context) error {
	if len(e.stations) == 0 {
		return errors.New("no active stations; nothing to trade")
	}
	log.Info().
		Int("stations", len(e.stations)).
		Int("lookahead_days", e.svc.Config.Engine.LookaheadDays).
		Dur("interval", e.interval).
		Msg("engine starting")

	for {
		cycleStart := e.now()
		e.runCycle(ctx, cycleStart)
		telemetry.CyclesTotal.Inc()
		telemetry.CycleDuration.Observe(e.now().Sub(cycleStart).Seconds())

		if ctx.Err() != nil {
			log.Info().Msg("engine stopped")
			return nil
		}

		// Sleep to cycleStart + interval. An overlong cycle starts the
		// next one immediately; there is no catch-up of missed ticks.
		next := cycleStart.Add(e.interval)
		wait := next.Sub(e.now())
		if wait > 0 {
			select {
			case <-ctx.Done():
				log.Info().Msg("engine stopped")
				return nil
			case <-time.After(wait):
			}
		}
	}
}

// runCycle evaluates every (station, day) pair once. A failed pair is
// logged and skipped; it never aborts the remainder of the cycle.
func (e *Engine) runCycle(ctx context.Context, cycleStart time.Time) {
	// The mapper mirrors the calibration toggle at cycle granularity, so a
	// flip takes effect on the next cycle without a restart.
	e.svc.Mapper.CalibrationEnabled = e.svc.Toggles.Enabled(toggles.StationCalibration)

	// Cancellation is a flag polled between items, never inside one. The
	// evaluation runs on a detached context so an interrupt during its HTTP
	// calls cannot abort it midway and strand a partial snapshot set under
	// the shared cycleTime key; the per-request timeouts bound it instead.
	itemCtx := context.WithoutCancel(ctx)

	for _, st := range e.stations {
		for offset := 0; offset < e.svc.Config.Engine.LookaheadDays; offset++ {
			if ctx.Err() != nil {
				return
			}
			eventDay := localEventDay(cycleStart, st, offset)
			if err := e.evaluate(itemCtx, st, eventDay, cycleStart); err != nil {
				log.Warn().Err(err).
					Str("station", st.Code).
					Str("event_day", eventDay.Format(units.DayFormat)).
					Msg("evaluation skipped")
			}
		}
	}
}

// localEventDay is midnight of today-plus-offset in the station's zone.
func localEventDay(now time.Time, st *weather.Station, offset int) time.Time {
	local := now.In(st.Location())
	return time.Date(local.Year(), local.Month(), local.Day()+offset, 0, 0, 0, 0, st.Location())
}

// evaluate runs one (station, day) through the full pipeline: market
// pre-check, fetch, snapshot, infer, size, record.
func (e *Engine) evaluate(ctx context.Context, st *weather.Station, eventDay, cycleTime time.Time) error {
	open, err := e.svc.Fetchers.HaveOpenMarkets(ctx, st.City, eventDay)
	if err != nil {
		telemetry.UpstreamErrorsTotal.WithLabelValues("polymarket").Inc()
		return err
	}
	if !open {
		log.Debug().Str("station", st.Code).
			Str("event_day", eventDay.Format(units.DayFormat)).
			Msg("no open markets")
		return nil
	}

	forecast, err := e.svc.Fetchers.FetchForecast(ctx, st, eventDay)
	if err != nil {
		telemetry.UpstreamErrorsTotal.WithLabelValues("zeus").Inc()
		return err
	}
	if err := e.svc.Snapshots.WriteForecast(forecast, cycleTime); err != nil {
		log.Error().Err(err).Str("station", st.Code).Msg("forecast snapshot failed")
	}

	brackets, prices, err := e.svc.Fetchers.FetchMarket(ctx, st.City, eventDay)
	if err != nil {
		telemetry.UpstreamErrorsTotal.WithLabelValues("polymarket").Inc()
		return err
	}
	if err := e.svc.Snapshots.WriteMarket(st.City, eventDay, brackets, prices, cycleTime); err != nil {
		log.Error().Err(err).Str("station", st.Code).Msg("market snapshot failed")
	}

	// Observations are side data for later analysis; a METAR outage never
	// blocks trading.
	if obs, err := e.svc.Fetchers.FetchObservations(ctx, st, eventDay, cycleTime); err != nil {
		telemetry.UpstreamErrorsTotal.WithLabelValues("metar").Inc()
		log.Warn().Err(err).Str("station", st.Code).Msg("observation fetch failed")
	} else {
		for _, o := range obs {
			if err := e.svc.Snapshots.WriteObservation(o, eventDay); err != nil {
				log.Error().Err(err).Str("station", st.Code).Msg("observation snapshot failed")
			}
		}
	}

	dist, err := e.svc.Mapper.Map(forecast, brackets, st.Location())
	if err != nil {
		return err
	}
	for i := range dist.Probs {
		dist.Probs[i].PMkt = prices[i]
	}

	depth := e.svc.Fetchers.FetchDepth(ctx, brackets, prices)
	decisions := e.svc.Sizer.Evaluate(dist.Probs, e.svc.Config.Trading.DailyBankrollCap, depth, cycleTime)

	// The decision snapshot is written even when empty; a cycle that found
	// no edge is still part of the record.
	if err := e.svc.Snapshots.WriteDecisions(st.Code, eventDay, decisions, cycleTime); err != nil {
		log.Error().Err(err).Str("station", st.Code).Msg("decision snapshot failed")
	}
	telemetry.DecisionsTotal.WithLabelValues(st.Code).Add(float64(len(decisions)))

	if len(decisions) == 0 {
		log.Info().Str("station", st.Code).
			Str("event_day", eventDay.Format(units.DayFormat)).
			Float64("mean_f", dist.MeanF).
			Float64("sigma_f", dist.SigmaF).
			Msg("no edge this cycle")
		return nil
	}

	records := e.toRecords(st, eventDay, dist, decisions)
	if err := e.svc.Ledger.Append(eventDay, records); err != nil {
		return err
	}
	telemetry.TradesTotal.WithLabelValues(st.Code).Add(float64(len(records)))

	if e.svc.Hub != nil {
		e.svc.Hub.Broadcast(dashboard.Event{
			Type:      "decisions",
			Timestamp: cycleTime.UTC(),
			Data: map[string]any{
				"station":   st.Code,
				"event_day": eventDay.Format(units.DayFormat),
				"decisions": decisions,
			},
		})
	}

	log.Info().Str("station", st.Code).
		Str("event_day", eventDay.Format(units.DayFormat)).
		Int("trades", len(records)).
		Msg("paper trades placed")
	return nil
}

// toRecords joins decisions back to the distribution they were sized
// from, producing full ledger rows.
func (e *Engine) toRecords(st *weather.Station, eventDay time.Time, dist *prob.Distribution, decisions []trading.EdgeDecision) []trading.TradeRecord {
	byName := make(map[string]trading.BracketProb, len(dist.Probs))
	for _, bp := range dist.Probs {
		byName[bp.Bracket.Name] = bp
	}

	records := make([]trading.TradeRecord, 0, len(decisions))
	for _, d := range decisions {
		bp := byName[d.Bracket.Name]
		records = append(records, trading.TradeRecord{
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
			EventDay:    eventDay,
		})
	}
	return records
}
