package engine

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gopher-lab/zeus-trader/internal/config"
	"github.com/gopher-lab/zeus-trader/pkg/ledger"
	"github.com/gopher-lab/zeus-trader/pkg/market"
	"github.com/gopher-lab/zeus-trader/pkg/prob"
	"github.com/gopher-lab/zeus-trader/pkg/sizing"
	"github.com/gopher-lab/zeus-trader/pkg/snapshot"
	"github.com/gopher-lab/zeus-trader/pkg/toggles"
	"github.com/gopher-lab/zeus-trader/pkg/trading"
	"github.com/gopher-lab/zeus-trader/pkg/weather"
)

// fakeVenue serves a one-bracket event priced far below the model's
// probability, so the sizer always finds edge.
func fakeVenue(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/events/slug/", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"slug":"x","markets":[
			{"id":"m1","question":"Will the highest temperature be 59-60°F?",
			 "clobTokenIds":"[\"tok1\"]","outcomePrices":"[\"0.10\"]","closed":false},
			{"id":"m2","question":"Will the highest temperature be 60-61°F?",
			 "clobTokenIds":"[\"tok2\"]","outcomePrices":"[\"0.10\"]","closed":false}
		]}`)
	})
	mux.HandleFunc("/midpoint", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"mid":"0.10"}`)
	})
	mux.HandleFunc("/book", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"bids":[{"price":"0.10","size":"10000"}],"asks":[{"price":"0.12","size":"10000"}]}`)
	})
	return httptest.NewServer(mux)
}

func fakeZeus(t *testing.T) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Constant 60.5°F = 289.0833K, close enough through the conversions.
		fmt.Fprint(w, `{"forecast":[
			{"time":"2026-07-01T07:00:00Z","temperature_k":289.0},
			{"time":"2026-07-01T08:00:00Z","temperature_k":289.1},
			{"time":"2026-07-01T09:00:00Z","temperature_k":289.0}
		]}`)
	}))
}

func testServices(t *testing.T, venueURL, zeusURL string) Services {
	t.Helper()
	dataDir := t.TempDir()

	flags, err := toggles.Load(filepath.Join(dataDir, "config", "feature_toggles.json"))
	if err != nil {
		t.Fatalf("toggles.Load: %v", err)
	}
	snaps, err := snapshot.New(filepath.Join(dataDir, "snapshots", "dynamic"))
	if err != nil {
		t.Fatalf("snapshot.New: %v", err)
	}

	venue := market.NewClient(venueURL, venueURL)
	cfg := &config.Config{
		DataDir: dataDir,
		Trading: config.TradingConfig{
			EdgeMin:          0.05,
			KellyCap:         0.25,
			PerMarketCap:     250,
			LiquidityMin:     10,
			DailyBankrollCap: 1000,
		},
		Engine: config.EngineConfig{
			ActiveStations:  []string{"KLAX"},
			ModelMode:       "spread",
			IntervalSeconds: 900,
			LookaheadDays:   1,
			ExecutionMode:   "paper",
		},
	}

	return Services{
		Config:   cfg,
		Registry: weather.NewRegistry(&weather.Station{Code: "KLAX", City: "Los Angeles", Timezone: "UTC", Venue: "polymarket"}),
		Toggles:  flags,
		Fetchers: &Fetchers{
			Zeus:  weather.NewZeusClient(zeusURL, "key"),
			Venue: venue,
			METAR: weather.NewMETARClient(venueURL + "/nope"),
		},
		Mapper:    &prob.Mapper{Mode: prob.ModeSpread},
		Sizer:     &sizing.Sizer{Params: sizing.Params{EdgeMin: 0.05, KellyCap: 0.25, PerMarketCap: 250, LiquidityMin: 10}},
		Ledger:    ledger.New(filepath.Join(dataDir, "trades")),
		Snapshots: snaps,
	}
}

func TestEvaluateWritesLedgerAndSnapshots(t *testing.T) {
	venue := fakeVenue(t)
	defer venue.Close()
	zeus := fakeZeus(t)
	defer zeus.Close()

	svc := testServices(t, venue.URL, zeus.URL)
	eng := New(svc)

	st := svc.Registry.ByCode("KLAX")
	day := time.Date(2026, 7, 1, 0, 0, 0, 0, time.UTC)
	cycle := day.Add(18 * time.Hour)

	if err := eng.evaluate(context.Background(), st, day, cycle); err != nil {
		t.Fatalf("evaluate: %v", err)
	}

	records, err := svc.Ledger.ReadDay(day)
	if err != nil {
		t.Fatalf("ReadDay: %v", err)
	}
	if len(records) == 0 {
		t.Fatal("no trades recorded despite a heavily underpriced bracket")
	}
	for _, r := range records {
		if r.Outcome != trading.OutcomePending {
			t.Errorf("fresh trade outcome = %s, want pending", r.Outcome)
		}
		if r.SizeUSD <= 0 || r.SizeUSD > 250 {
			t.Errorf("SizeUSD = %v outside (0, per-market cap]", r.SizeUSD)
		}
		if r.PMkt == nil || *r.PMkt != 0.10 {
			t.Errorf("PMkt = %v, want 0.10", r.PMkt)
		}
	}

	// All three cycle streams exist; the decision stream is never skipped.
	if snap, _ := svc.Snapshots.ReadForecast("KLAX", day); snap == nil {
		t.Error("forecast snapshot missing")
	}
	if snap, _ := svc.Snapshots.ReadMarket("Los Angeles", day); snap == nil {
		t.Error("market snapshot missing")
	}
}

func TestEvaluateNoOpenMarkets(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer srv.Close()
	zeus := fakeZeus(t)
	defer zeus.Close()

	svc := testServices(t, srv.URL, zeus.URL)
	eng := New(svc)

	st := svc.Registry.ByCode("KLAX")
	day := time.Date(2026, 7, 1, 0, 0, 0, 0, time.UTC)
	if err := eng.evaluate(context.Background(), st, day, day.Add(18*time.Hour)); err != nil {
		t.Fatalf("evaluate: %v", err)
	}

	records, _ := svc.Ledger.ReadDay(day)
	if len(records) != 0 {
		t.Errorf("got %d trades with no open markets, want 0", len(records))
	}
}

func TestCancelMidEvaluationFinishesItem(t *testing.T) {
	zeus := fakeZeus(t)
	defer zeus.Close()

	ctx, cancel := context.WithCancel(context.Background())

	// Cancel while the evaluation is mid-flight: the first discovery call
	// is the open-market pre-check, the second fetches the event itself.
	var discoveries int32
	mux := http.NewServeMux()
	mux.HandleFunc("/events/slug/", func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&discoveries, 1) == 2 {
			cancel()
		}
		fmt.Fprint(w, `{"slug":"x","markets":[
			{"id":"m1","question":"Will the highest temperature be 59-60°F?",
			 "clobTokenIds":"[\"tok1\"]","outcomePrices":"[\"0.10\"]","closed":false},
			{"id":"m2","question":"Will the highest temperature be 60-61°F?",
			 "clobTokenIds":"[\"tok2\"]","outcomePrices":"[\"0.10\"]","closed":false}
		]}`)
	})
	mux.HandleFunc("/midpoint", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"mid":"0.10"}`)
	})
	mux.HandleFunc("/book", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"bids":[{"price":"0.10","size":"10000"}],"asks":[{"price":"0.12","size":"10000"}]}`)
	})
	venue := httptest.NewServer(mux)
	defer venue.Close()

	svc := testServices(t, venue.URL, zeus.URL)
	eng := New(svc)

	day := time.Date(2026, 7, 1, 0, 0, 0, 0, time.UTC)
	cycle := day.Add(18 * time.Hour)
	eng.runCycle(ctx, cycle)

	// The in-flight item must finish: every stream of the cycle lands
	// under the shared cycle timestamp, never a partial set.
	if snap, _ := svc.Snapshots.ReadForecast("KLAX", day); snap == nil {
		t.Error("forecast snapshot missing")
	}
	if snap, _ := svc.Snapshots.ReadMarket("Los Angeles", day); snap == nil {
		t.Error("market snapshot missing after mid-evaluation cancel")
	}
	records, err := svc.Ledger.ReadDay(day)
	if err != nil {
		t.Fatalf("ReadDay: %v", err)
	}
	if len(records) == 0 {
		t.Error("trades not recorded after mid-evaluation cancel")
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	venue := fakeVenue(t)
	defer venue.Close()
	zeus := fakeZeus(t)
	defer zeus.Close()

	svc := testServices(t, venue.URL, zeus.URL)
	eng := New(svc)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	done := make(chan error, 1)
	go func() { done <- eng.Run(ctx) }()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run: %v", err)
		}
	case <-time.After(30 * time.Second):
		t.Fatal("Run did not stop after cancellation")
	}
}

func TestNewDropsUnknownStations(t *testing.T) {
	venue := fakeVenue(t)
	defer venue.Close()
	zeus := fakeZeus(t)
	defer zeus.Close()

	svc := testServices(t, venue.URL, zeus.URL)
	svc.Config.Engine.ActiveStations = []string{"KLAX", "KXYZ"}

	eng := New(svc)
	if len(eng.stations) != 1 {
		t.Errorf("engine kept %d stations, want 1 (unknown dropped)", len(eng.stations))
	}
}
