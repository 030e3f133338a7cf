package resolution

import (
	"context"
	"testing"
	"time"

	"github.com/gopher-lab/zeus-trader/pkg/ledger"
	"github.com/gopher-lab/zeus-trader/pkg/market"
	"github.com/gopher-lab/zeus-trader/pkg/trading"
	"github.com/gopher-lab/zeus-trader/pkg/weather"
)

type fakeVenue struct {
	outcomes map[string]*market.ResolutionOutcome // keyed by city
	err      error
	calls    int
}

func (f *fakeVenue) FetchResolution(_ context.Context, city string, _ time.Time) (*market.ResolutionOutcome, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	if o, ok := f.outcomes[city]; ok {
		return o, nil
	}
	return nil, trading.ErrNotFound
}

func testRegistry() *weather.Registry {
	return weather.NewRegistry(
		&weather.Station{Code: "KLAX", City: "Los Angeles", Timezone: "America/Los_Angeles", Venue: "polymarket"},
		&weather.Station{Code: "KNYC", City: "New York", Timezone: "America/New_York", Venue: "polymarket"},
	)
}

func eventDay() time.Time {
	return time.Date(2026, 7, 1, 0, 0, 0, 0, time.UTC)
}

func pendingTrade(station, bracket string, pMkt, size float64) trading.TradeRecord {
	return trading.TradeRecord{
		Timestamp:   eventDay().Add(18 * time.Hour),
		StationCode: station,
		Bracket:     trading.Bracket{Name: bracket},
		PMkt:        &pMkt,
		SizeUSD:     size,
		Outcome:     trading.OutcomePending,
		EventDay:    eventDay(),
	}
}

func TestResolveWinAndLoss(t *testing.T) {
	venue := &fakeVenue{outcomes: map[string]*market.ResolutionOutcome{
		"Los Angeles": {Resolved: true, Winner: "58-59"},
	}}
	r := &Resolver{Venue: venue, Registry: testRegistry()}

	records := []trading.TradeRecord{
		pendingTrade("KLAX", "58-59°F", 0.40, 200),
		pendingTrade("KLAX", "60-61°F", 0.20, 150),
	}
	n, err := r.Resolve(context.Background(), records)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if n != 2 {
		t.Fatalf("resolved %d trades, want 2", n)
	}
	if venue.calls != 1 {
		t.Errorf("venue called %d times, want 1 per event group", venue.calls)
	}

	win := records[0]
	if win.Outcome != trading.OutcomeWin {
		t.Errorf("winner outcome = %s, want win", win.Outcome)
	}
	if win.RealizedPnL != 300.00 {
		t.Errorf("winner pnl = %v, want 300.00", win.RealizedPnL)
	}

	loss := records[1]
	if loss.Outcome != trading.OutcomeLoss {
		t.Errorf("loser outcome = %s, want loss", loss.Outcome)
	}
	if loss.RealizedPnL != -150.00 {
		t.Errorf("loser pnl = %v, want -150.00", loss.RealizedPnL)
	}

	for _, rec := range records {
		if rec.WinnerBracket != "58-59" {
			t.Errorf("winner bracket = %q, want recorded on every trade", rec.WinnerBracket)
		}
		if rec.ResolvedAt == nil {
			t.Error("ResolvedAt not set")
		}
	}
}

func TestResolveIdempotent(t *testing.T) {
	venue := &fakeVenue{outcomes: map[string]*market.ResolutionOutcome{
		"Los Angeles": {Resolved: true, Winner: "58-59"},
	}}
	r := &Resolver{Venue: venue, Registry: testRegistry()}

	records := []trading.TradeRecord{pendingTrade("KLAX", "58-59°F", 0.40, 200)}
	if _, err := r.Resolve(context.Background(), records); err != nil {
		t.Fatalf("first Resolve: %v", err)
	}
	first := records[0]

	n, err := r.Resolve(context.Background(), records)
	if err != nil {
		t.Fatalf("second Resolve: %v", err)
	}
	if n != 0 {
		t.Errorf("second pass resolved %d trades, want 0", n)
	}
	if records[0].Outcome != first.Outcome || records[0].RealizedPnL != first.RealizedPnL {
		t.Error("second pass mutated an already-resolved row")
	}
}

func TestResolveUnresolvedStaysPending(t *testing.T) {
	venue := &fakeVenue{outcomes: map[string]*market.ResolutionOutcome{
		"Los Angeles": {Resolved: false},
	}}
	r := &Resolver{Venue: venue, Registry: testRegistry()}

	records := []trading.TradeRecord{pendingTrade("KLAX", "58-59°F", 0.40, 200)}
	n, err := r.Resolve(context.Background(), records)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if n != 0 || records[0].Outcome != trading.OutcomePending {
		t.Errorf("unresolved event: n=%d outcome=%s, want pending", n, records[0].Outcome)
	}
}

func TestResolveEventNotFoundStaysPending(t *testing.T) {
	venue := &fakeVenue{}
	r := &Resolver{Venue: venue, Registry: testRegistry()}

	records := []trading.TradeRecord{pendingTrade("KNYC", "70-71°F", 0.30, 100)}
	n, err := r.Resolve(context.Background(), records)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if n != 0 || records[0].Outcome != trading.OutcomePending {
		t.Errorf("missing event: n=%d outcome=%s, want pending", n, records[0].Outcome)
	}
}

func TestResolveZeroSizeScoresWithoutMoney(t *testing.T) {
	venue := &fakeVenue{outcomes: map[string]*market.ResolutionOutcome{
		"Los Angeles": {Resolved: true, Winner: "58-59"},
	}}
	r := &Resolver{Venue: venue, Registry: testRegistry()}

	// Resolution-only rows: no price, no size.
	records := []trading.TradeRecord{
		{StationCode: "KLAX", Bracket: trading.Bracket{Name: "58-59°F"}, Outcome: trading.OutcomePending, EventDay: eventDay()},
		{StationCode: "KLAX", Bracket: trading.Bracket{Name: "60-61°F"}, Outcome: trading.OutcomePending, EventDay: eventDay()},
	}
	if _, err := r.Resolve(context.Background(), records); err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if records[0].Outcome != trading.OutcomeWin || records[0].RealizedPnL != 0 {
		t.Errorf("zero-size win: outcome=%s pnl=%v, want win with 0", records[0].Outcome, records[0].RealizedPnL)
	}
	if records[1].Outcome != trading.OutcomeLoss || records[1].RealizedPnL != 0 {
		t.Errorf("zero-size loss: outcome=%s pnl=%v, want loss with 0", records[1].Outcome, records[1].RealizedPnL)
	}
}

func TestResolveLedgerDayRewritesOnChange(t *testing.T) {
	l := ledger.New(t.TempDir())
	day := eventDay()
	if err := l.Append(day, []trading.TradeRecord{pendingTrade("KLAX", "58-59°F", 0.40, 200)}); err != nil {
		t.Fatalf("Append: %v", err)
	}

	venue := &fakeVenue{outcomes: map[string]*market.ResolutionOutcome{
		"Los Angeles": {Resolved: true, Winner: "58-59"},
	}}
	r := &Resolver{Venue: venue, Registry: testRegistry()}

	n, err := r.ResolveLedgerDay(context.Background(), l, day)
	if err != nil {
		t.Fatalf("ResolveLedgerDay: %v", err)
	}
	if n != 1 {
		t.Fatalf("resolved %d, want 1", n)
	}

	records, err := l.ReadDay(day)
	if err != nil {
		t.Fatalf("ReadDay: %v", err)
	}
	if len(records) != 1 || records[0].Outcome != trading.OutcomeWin {
		t.Fatalf("persisted records = %+v, want one resolved win", records)
	}
	if records[0].RealizedPnL != 300.00 {
		t.Errorf("persisted pnl = %v, want 300.00", records[0].RealizedPnL)
	}
}
