// Package ledger persists paper trades as one append-only CSV per
// calendar day. Rows are immutable except for the resolution engine,
// which rewrites a whole day's file after updating outcomes.
package ledger

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/gopher-lab/zeus-trader/pkg/trading"
	"github.com/gopher-lab/zeus-trader/pkg/units"
)

// FileName is the per-day ledger file inside data/trades/<day>/.
const FileName = "paper_trades.csv"

// Header is the stable column order. Changing it breaks replay of every
// historical ledger; append-only.
var Header = []string{
	"timestamp", "station_code", "bracket_name", "bracket_lower_f", "bracket_upper_f",
	"market_id", "edge", "edge_pct", "f_kelly", "size_usd", "p_zeus", "p_mkt",
	"sigma_z", "reason", "outcome", "realized_pnl", "venue", "resolved_at", "winner_bracket",
}

// Ledger writes and reads the daily trade CSVs under a root directory.
type Ledger struct {
	root string
}

// New creates a ledger rooted at dir (typically data/trades).
func New(dir string) *Ledger {
	return &Ledger{root: dir}
}

func (l *Ledger) dayDir(day time.Time) string {
	return filepath.Join(l.root, day.Format(units.DayFormat))
}

func (l *Ledger) dayFile(day time.Time) string {
	return filepath.Join(l.dayDir(day), FileName)
}

// Append writes records to the day's CSV, creating directory and header
// on first write. Each row is flushed whole; a restart appends without
// rewriting.
func (l *Ledger) Append(day time.Time, records []trading.TradeRecord) error {
	if len(records) == 0 {
		return nil
	}
	if err := os.MkdirAll(l.dayDir(day), 0o755); err != nil {
		return fmt.Errorf("create trades dir: %w", err)
	}

	path := l.dayFile(day)
	_, statErr := os.Stat(path)
	needHeader := os.IsNotExist(statErr)

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open ledger %s: %w", path, err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if needHeader {
		if err := w.Write(Header); err != nil {
			return fmt.Errorf("write ledger header: %w", err)
		}
	}
	for _, r := range records {
		if err := w.Write(encodeRow(r)); err != nil {
			return fmt.Errorf("write ledger row: %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("flush ledger: %w", err)
	}

	log.Info().Int("rows", len(records)).Str("file", path).Msg("paper trades recorded")
	return nil
}

// ReadDay loads the day's records. A missing file is an empty day, not
// an error.
func (l *Ledger) ReadDay(day time.Time) ([]trading.TradeRecord, error) {
	f, err := os.Open(l.dayFile(day))
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("open ledger: %w", err)
	}
	defer f.Close()

	rows, err := csv.NewReader(f).ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read ledger: %w", err)
	}
	if len(rows) <= 1 {
		return nil, nil
	}

	records := make([]trading.TradeRecord, 0, len(rows)-1)
	for _, row := range rows[1:] {
		rec, err := decodeRow(row)
		if err != nil {
			return nil, fmt.Errorf("decode ledger row: %w", err)
		}
		rec.EventDay = day
		records = append(records, rec)
	}
	return records, nil
}

// ReadRange loads all records whose day directory falls within
// [from, to], inclusive.
func (l *Ledger) ReadRange(from, to time.Time) ([]trading.TradeRecord, error) {
	var out []trading.TradeRecord
	for day := from; !day.After(to); day = day.AddDate(0, 0, 1) {
		recs, err := l.ReadDay(day)
		if err != nil {
			return nil, err
		}
		out = append(out, recs...)
	}
	return out, nil
}

// RewriteDay replaces the day's file wholesale. Reserved for the
// resolution engine; nothing else may rewrite history.
func (l *Ledger) RewriteDay(day time.Time, records []trading.TradeRecord) error {
	if err := os.MkdirAll(l.dayDir(day), 0o755); err != nil {
		return fmt.Errorf("create trades dir: %w", err)
	}

	tmp := l.dayFile(day) + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("create temp ledger: %w", err)
	}

	w := csv.NewWriter(f)
	if err := w.Write(Header); err != nil {
		f.Close()
		return fmt.Errorf("write ledger header: %w", err)
	}
	for _, r := range records {
		if err := w.Write(encodeRow(r)); err != nil {
			f.Close()
			return fmt.Errorf("write ledger row: %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		f.Close()
		return fmt.Errorf("flush ledger: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close temp ledger: %w", err)
	}

	return os.Rename(tmp, l.dayFile(day))
}

// WriteFile writes records with the standard header to an arbitrary CSV
// path, creating parent directories. Backtest runs use it for their
// output files outside the daily ledger tree.
func WriteFile(path string, records []trading.TradeRecord) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create run dir: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create run csv: %w", err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write(Header); err != nil {
		return fmt.Errorf("write run header: %w", err)
	}
	for _, r := range records {
		if err := w.Write(encodeRow(r)); err != nil {
			return fmt.Errorf("write run row: %w", err)
		}
	}
	w.Flush()
	return w.Error()
}

// Days lists the day directories present under the ledger root, oldest
// first.
func (l *Ledger) Days() ([]time.Time, error) {
	entries, err := os.ReadDir(l.root)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("list trades dir: %w", err)
	}
	var days []time.Time
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		day, err := time.Parse(units.DayFormat, e.Name())
		if err != nil {
			continue
		}
		days = append(days, day)
	}
	return days, nil
}

func encodeRow(r trading.TradeRecord) []string {
	return []string{
		r.Timestamp.UTC().Format(time.RFC3339),
		r.StationCode,
		r.Bracket.Name,
		strconv.Itoa(r.Bracket.LowerF),
		strconv.Itoa(r.Bracket.UpperF),
		r.Bracket.MarketID,
		formatFloat(r.Edge),
		formatFloat(r.Edge * 100),
		formatFloat(r.FKelly),
		formatFloat(r.SizeUSD),
		formatFloat(r.PZeus),
		formatOptFloat(r.PMkt),
		formatOptFloat(r.SigmaZ),
		r.Reason,
		string(r.Outcome),
		formatFloat(r.RealizedPnL),
		r.Venue,
		formatOptTime(r.ResolvedAt),
		r.WinnerBracket,
	}
}

func decodeRow(row []string) (trading.TradeRecord, error) {
	if len(row) != len(Header) {
		return trading.TradeRecord{}, fmt.Errorf("row has %d columns, want %d", len(row), len(Header))
	}

	ts, err := time.Parse(time.RFC3339, row[0])
	if err != nil {
		return trading.TradeRecord{}, fmt.Errorf("parse timestamp %q: %w", row[0], err)
	}

	lower, err := strconv.Atoi(row[3])
	if err != nil {
		return trading.TradeRecord{}, fmt.Errorf("parse bracket_lower_f: %w", err)
	}
	upper, err := strconv.Atoi(row[4])
	if err != nil {
		return trading.TradeRecord{}, fmt.Errorf("parse bracket_upper_f: %w", err)
	}

	rec := trading.TradeRecord{
		Timestamp:   ts,
		StationCode: row[1],
		Bracket: trading.Bracket{
			Name:     row[2],
			LowerF:   lower,
			UpperF:   upper,
			MarketID: row[5],
		},
		Reason:        row[13],
		Outcome:       trading.Outcome(row[14]),
		Venue:         row[16],
		WinnerBracket: row[18],
	}

	rec.Edge, _ = strconv.ParseFloat(row[6], 64)
	rec.FKelly, _ = strconv.ParseFloat(row[8], 64)
	rec.SizeUSD, _ = strconv.ParseFloat(row[9], 64)
	rec.PZeus, _ = strconv.ParseFloat(row[10], 64)
	rec.PMkt = parseOptFloat(row[11])
	rec.SigmaZ = parseOptFloat(row[12])
	rec.RealizedPnL, _ = strconv.ParseFloat(row[15], 64)
	rec.ResolvedAt = parseOptTime(row[17])

	if rec.Outcome == "" {
		rec.Outcome = trading.OutcomePending
	}
	return rec, nil
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

func formatOptFloat(f *float64) string {
	if f == nil {
		return ""
	}
	return formatFloat(*f)
}

func parseOptFloat(s string) *float64 {
	if s == "" {
		return nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil
	}
	return &v
}

func formatOptTime(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

func parseOptTime(s string) *time.Time {
	if s == "" {
		return nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return nil
	}
	return &t
}
