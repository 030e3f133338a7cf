// Package snapshot writes the four timestamped JSON streams that form the
// replay substrate: forecasts, market prices, decisions and observations.
// Files are immutable once written; joining the first three streams by
// cycle timestamp reconstructs a cycle exactly.
package snapshot

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/gopher-lab/zeus-trader/pkg/market"
	"github.com/gopher-lab/zeus-trader/pkg/trading"
	"github.com/gopher-lab/zeus-trader/pkg/units"
)

// TimestampFormat is the filename-safe UTC form of cycle and observation
// timestamps.
const TimestampFormat = "2006-01-02_15-04-05"

// Stream directory names under the snapshots root.
const (
	streamForecast    = "zeus"
	streamMarket      = "polymarket"
	streamDecision    = "decisions"
	streamObservation = "metar"
)

// Snapshotter is the sole writer of the snapshot streams.
type Snapshotter struct {
	root string

	mu   sync.Mutex
	seen map[string]struct{} // station|eventDay|obsTime already written
}

// New creates a snapshotter rooted at dir. Failure to create the root is
// fatal to the caller; without it there is no replay substrate.
func New(dir string) (*Snapshotter, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create snapshots root: %w", err)
	}
	return &Snapshotter{root: dir, seen: make(map[string]struct{})}, nil
}

// ForecastSnapshot is the stored form of one forecast fetch.
type ForecastSnapshot struct {
	StationCode string                  `json:"station_code"`
	EventDay    string                  `json:"event_day"`
	FetchedAt   time.Time               `json:"fetched_at"`
	Points      []trading.ForecastPoint `json:"points"`
	U80F        *float64                `json:"u80_f,omitempty"`
	U95F        *float64                `json:"u95_f,omitempty"`
}

// WriteForecast records a forecast under zeus/{station}/{eventDay}/.
func (s *Snapshotter) WriteForecast(f trading.Forecast, cycleTime time.Time) error {
	snap := ForecastSnapshot{
		StationCode: f.StationCode,
		EventDay:    f.EventDay.Format(units.DayFormat),
		FetchedAt:   cycleTime.UTC(),
		Points:      f.Points,
		U80F:        f.U80F,
		U95F:        f.U95F,
	}
	dir := filepath.Join(s.root, streamForecast, f.StationCode, snap.EventDay)
	return s.writeJSON(dir, cycleTime.UTC().Format(TimestampFormat), snap)
}

// MarketSnapshot carries every bracket mid-price from one fetch.
type MarketSnapshot struct {
	City      string             `json:"city"`
	EventDay  string             `json:"event_day"`
	FetchedAt time.Time          `json:"fetched_at"`
	Brackets  []trading.Bracket  `json:"brackets"`
	Prices    []*float64         `json:"prices"` // aligned by index; null = fetch failed
}

// WriteMarket records prices under polymarket/{cityTokenized}/{eventDay}/.
func (s *Snapshotter) WriteMarket(city string, eventDay time.Time, brackets []trading.Bracket, prices []*float64, cycleTime time.Time) error {
	snap := MarketSnapshot{
		City:      city,
		EventDay:  eventDay.Format(units.DayFormat),
		FetchedAt: cycleTime.UTC(),
		Brackets:  brackets,
		Prices:    prices,
	}
	dir := filepath.Join(s.root, streamMarket, market.TokenizeCity(city), snap.EventDay)
	return s.writeJSON(dir, cycleTime.UTC().Format(TimestampFormat), snap)
}

// DecisionSnapshot records the decisions of one (station, day) cycle.
// Written even when empty: the absence of trades is itself data.
type DecisionSnapshot struct {
	StationCode string                  `json:"station_code"`
	EventDay    string                  `json:"event_day"`
	CycleTime   time.Time               `json:"cycle_time"`
	Decisions   []trading.EdgeDecision  `json:"decisions"`
}

// WriteDecisions records decisions under decisions/{station}/{eventDay}/.
func (s *Snapshotter) WriteDecisions(stationCode string, eventDay time.Time, decisions []trading.EdgeDecision, cycleTime time.Time) error {
	if decisions == nil {
		decisions = []trading.EdgeDecision{}
	}
	snap := DecisionSnapshot{
		StationCode: stationCode,
		EventDay:    eventDay.Format(units.DayFormat),
		CycleTime:   cycleTime.UTC(),
		Decisions:   decisions,
	}
	dir := filepath.Join(s.root, streamDecision, stationCode, snap.EventDay)
	return s.writeJSON(dir, cycleTime.UTC().Format(TimestampFormat), snap)
}

// WriteObservation records one observation under metar/{station}/{eventDay}/,
// keyed by observation time rather than fetch time. An observation time
// seen before — in this process or in a previous one — is skipped, so the
// same report fetched in many cycles lands on disk exactly once.
func (s *Snapshotter) WriteObservation(obs trading.Observation, eventDay time.Time) error {
	day := eventDay.Format(units.DayFormat)
	name := obs.Time.UTC().Format(TimestampFormat)
	key := obs.StationCode + "|" + day + "|" + name
	dir := filepath.Join(s.root, streamObservation, obs.StationCode, day)

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, dup := s.seen[key]; dup {
		return nil
	}
	if _, err := os.Stat(filepath.Join(dir, name+".json")); err == nil {
		s.seen[key] = struct{}{}
		return nil
	}

	if err := s.writeJSON(dir, name, obs); err != nil {
		return err
	}
	s.seen[key] = struct{}{}
	return nil
}

// ReadForecast loads the most recent forecast snapshot for a station and
// event day, if any. Used by the backtester before falling back to live
// fetches.
func (s *Snapshotter) ReadForecast(stationCode string, eventDay time.Time) (*ForecastSnapshot, error) {
	dir := filepath.Join(s.root, streamForecast, stationCode, eventDay.Format(units.DayFormat))
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("list forecast snapshots: %w", err)
	}
	if len(entries) == 0 {
		return nil, nil
	}

	// Directory listings sort lexicographically, which for the timestamp
	// format is chronological; the last entry is the freshest.
	latest := entries[len(entries)-1].Name()
	data, err := os.ReadFile(filepath.Join(dir, latest))
	if err != nil {
		return nil, fmt.Errorf("read forecast snapshot: %w", err)
	}
	var snap ForecastSnapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("parse forecast snapshot %s: %w", latest, err)
	}
	return &snap, nil
}

// ReadMarket loads the earliest market snapshot for a city and event day,
// if any. The earliest fetch carries the prices closest to market open.
func (s *Snapshotter) ReadMarket(city string, eventDay time.Time) (*MarketSnapshot, error) {
	dir := filepath.Join(s.root, streamMarket, market.TokenizeCity(city), eventDay.Format(units.DayFormat))
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("list market snapshots: %w", err)
	}
	if len(entries) == 0 {
		return nil, nil
	}

	data, err := os.ReadFile(filepath.Join(dir, entries[0].Name()))
	if err != nil {
		return nil, fmt.Errorf("read market snapshot: %w", err)
	}
	var snap MarketSnapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("parse market snapshot %s: %w", entries[0].Name(), err)
	}
	return &snap, nil
}

// writeJSON writes the value whole; no partial snapshot ever appears
// under its final name.
func (s *Snapshotter) writeJSON(dir, name string, v any) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create snapshot dir: %w", err)
	}
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}
	path := filepath.Join(dir, name+".json")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write snapshot %s: %w", path, err)
	}
	log.Debug().Str("file", path).Msg("snapshot written")
	return nil
}
