// Package engine runs the continuous evaluation loop: fetch, infer,
// size, record, snapshot, at a fixed cadence across stations and days.
package engine

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/gopher-lab/zeus-trader/pkg/market"
	"github.com/gopher-lab/zeus-trader/pkg/trading"
	"github.com/gopher-lab/zeus-trader/pkg/units"
	"github.com/gopher-lab/zeus-trader/pkg/weather"
)

// Fetchers is the just-in-time façade over the external HTTP clients.
// Fetchers never write snapshots; that is the snapshotter's job.
type Fetchers struct {
	Zeus  *weather.ZeusClient
	Venue *market.Client
	METAR *weather.METARClient
}

// FetchForecast requests the 24 hours from local midnight of eventDay in
// the station's zone. The request timestamp keeps its zone offset; the
// provider treats it as an absolute instant, and a naive UTC value would
// shift the whole day.
func (f *Fetchers) FetchForecast(ctx context.Context, st *weather.Station, eventDay time.Time) (trading.Forecast, error) {
	start, err := units.LocalMidnight(eventDay, st.Timezone)
	if err != nil {
		return trading.Forecast{}, err
	}

	points, err := f.Zeus.FetchHourly(ctx, st.Lat, st.Lon, start, 24)
	if err != nil {
		return trading.Forecast{}, err
	}

	return trading.Forecast{
		StationCode: st.Code,
		Latitude:    st.Lat,
		Longitude:   st.Lon,
		EventDay:    eventDay,
		Points:      points,
	}, nil
}

// FetchMarket returns the bracket set for (city, eventDay) and, aligned
// by index, the current mid-prices. A failed price fetch maps to nil at
// that index rather than aborting the batch.
func (f *Fetchers) FetchMarket(ctx context.Context, city string, eventDay time.Time) ([]trading.Bracket, []*float64, error) {
	ev, err := f.Venue.DiscoverEvent(ctx, city, eventDay)
	if err != nil {
		return nil, nil, err
	}

	prices := make([]*float64, len(ev.Brackets))
	for i, b := range ev.Brackets {
		if b.TokenID == "" {
			continue
		}
		mid, err := f.Venue.Midpoint(ctx, b.TokenID)
		if err != nil {
			log.Warn().Err(err).Str("bracket", b.Name).Msg("midpoint fetch failed, pricing bracket as unknown")
			continue
		}
		p := mid
		prices[i] = &p
	}
	return ev.Brackets, prices, nil
}

// FetchDepth returns bid-side USD depth per token for the priced
// brackets. Missing books simply stay absent from the map.
func (f *Fetchers) FetchDepth(ctx context.Context, brackets []trading.Bracket, prices []*float64) map[string]float64 {
	depth := make(map[string]float64)
	for i, b := range brackets {
		if prices[i] == nil || b.TokenID == "" {
			continue
		}
		book, err := f.Venue.Book(ctx, b.TokenID)
		if err != nil {
			log.Warn().Err(err).Str("bracket", b.Name).Msg("book fetch failed, depth unknown")
			continue
		}
		depth[b.TokenID] = book.BidDepthUSD
	}
	return depth
}

// FetchObservations returns the day's observations, but only when
// eventDay is today in the station's zone: the upstream keeps no history,
// so any other day returns empty without a call.
func (f *Fetchers) FetchObservations(ctx context.Context, st *weather.Station, eventDay, now time.Time) ([]trading.Observation, error) {
	if !units.SameDay(eventDay, now, st.Location()) {
		return nil, nil
	}
	start, end, err := units.LocalDayWindow(eventDay.Year(), eventDay.Month(), eventDay.Day(), st.Timezone)
	if err != nil {
		return nil, err
	}
	return f.METAR.FetchRange(ctx, st.Code, start, end)
}

// HaveOpenMarkets is the cheap pre-check before a full (station, day)
// evaluation.
func (f *Fetchers) HaveOpenMarkets(ctx context.Context, city string, eventDay time.Time) (bool, error) {
	return f.Venue.HaveOpenMarkets(ctx, city, eventDay)
}
