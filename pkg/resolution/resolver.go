// Package resolution classifies paper trades as win or loss once their
// events settle, and computes realized P&L.
package resolution

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/gopher-lab/zeus-trader/pkg/ledger"
	"github.com/gopher-lab/zeus-trader/pkg/market"
	"github.com/gopher-lab/zeus-trader/pkg/trading"
	"github.com/gopher-lab/zeus-trader/pkg/units"
	"github.com/gopher-lab/zeus-trader/pkg/weather"
)

// OutcomeFetcher is the venue call the resolver depends on. Satisfied by
// *market.Client.
type OutcomeFetcher interface {
	FetchResolution(ctx context.Context, city string, day time.Time) (*market.ResolutionOutcome, error)
}

// Resolver groups trades by (eventDay, city), fetches each group's
// outcome once, and marks every trade. Re-running over resolved rows is
// a no-op; a failure on one event never affects the others.
type Resolver struct {
	Venue    OutcomeFetcher
	Registry *weather.Registry
}

type groupKey struct {
	day  string
	city string
}

// Resolve updates the records in place and reports how many were newly
// resolved.
func (r *Resolver) Resolve(ctx context.Context, records []trading.TradeRecord) (int, error) {
	groups := make(map[groupKey][]int)
	for i, rec := range records {
		if rec.Outcome != trading.OutcomePending {
			continue
		}
		st := r.Registry.ByCode(rec.StationCode)
		if st == nil {
			log.Warn().Str("station", rec.StationCode).Msg("unknown station on pending trade, leaving pending")
			continue
		}
		key := groupKey{day: rec.EventDay.Format(units.DayFormat), city: st.City}
		groups[key] = append(groups[key], i)
	}

	resolved := 0
	for key, idxs := range groups {
		day, _ := time.Parse(units.DayFormat, key.day)
		outcome, err := r.Venue.FetchResolution(ctx, key.city, day)
		if err != nil {
			if errors.Is(err, trading.ErrNotFound) {
				log.Debug().Str("city", key.city).Str("day", key.day).Msg("event not found, trades stay pending")
				continue
			}
			log.Error().Err(err).Str("city", key.city).Str("day", key.day).Msg("resolution fetch failed")
			continue
		}
		if !outcome.Resolved {
			log.Debug().Str("city", key.city).Str("day", key.day).Msg("event not yet resolved")
			continue
		}

		now := time.Now().UTC()
		for _, i := range idxs {
			markTrade(&records[i], outcome.Winner, now)
			resolved++
		}
		log.Info().Str("city", key.city).Str("day", key.day).Str("winner", outcome.Winner).
			Int("trades", len(idxs)).Msg("event resolved")
	}
	return resolved, nil
}

// markTrade classifies one trade against the winner bracket. Names are
// compared by exact equality after stripping venue decoration.
func markTrade(rec *trading.TradeRecord, winner string, now time.Time) {
	rec.WinnerBracket = winner
	rec.ResolvedAt = &now

	if market.NormalizeBracketName(rec.Bracket.Name) == market.NormalizeBracketName(winner) {
		rec.Outcome = trading.OutcomeWin
		rec.RealizedPnL = winPnL(rec.PMkt, rec.SizeUSD)
	} else {
		rec.Outcome = trading.OutcomeLoss
		rec.RealizedPnL = lossPnL(rec.SizeUSD)
	}
}

// winPnL is round((1/pMkt - 1) * size, 2) when a price and size exist,
// else 0 (resolution-only rows score correctness, not money).
func winPnL(pMkt *float64, sizeUSD float64) float64 {
	if pMkt == nil || *pMkt <= 0 || sizeUSD <= 0 {
		return 0
	}
	payout := decimal.NewFromFloat(1).
		Div(decimal.NewFromFloat(*pMkt)).
		Sub(decimal.NewFromFloat(1)).
		Mul(decimal.NewFromFloat(sizeUSD))
	f, _ := payout.Round(2).Float64()
	return f
}

func lossPnL(sizeUSD float64) float64 {
	if sizeUSD <= 0 {
		return 0
	}
	f, _ := decimal.NewFromFloat(-sizeUSD).Round(2).Float64()
	return f
}

// ResolveLedgerDay reads one ledger day, resolves its pending trades, and
// rewrites the file when anything changed. This is the only path that
// rewrites ledger history.
func (r *Resolver) ResolveLedgerDay(ctx context.Context, l *ledger.Ledger, day time.Time) (int, error) {
	records, err := l.ReadDay(day)
	if err != nil {
		return 0, err
	}
	if len(records) == 0 {
		return 0, nil
	}

	resolved, err := r.Resolve(ctx, records)
	if err != nil {
		return 0, err
	}
	if resolved == 0 {
		return 0, nil
	}
	if err := l.RewriteDay(day, records); err != nil {
		return 0, err
	}
	return resolved, nil
}
