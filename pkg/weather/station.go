// Package weather provides the station registry, per-station bias
// calibration, and the forecast and observation HTTP clients.
package weather

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

// Station describes one observation station the engine can trade.
type Station struct {
	Code     string  // METAR station code (e.g., "KLAX")
	City     string  // City name used for venue slug generation
	Timezone string  // IANA timezone (e.g., "America/Los_Angeles")
	Venue    string  // Venue hint (e.g., "polymarket")
	Lat      float64 // Latitude
	Lon      float64 // Longitude
}

// Location returns the timezone-aware location for the station, falling
// back to UTC when the zone cannot be loaded.
func (s *Station) Location() *time.Location {
	loc, err := time.LoadLocation(s.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// Registry is the read-only station lookup, keyed by station code and by
// lowercased city name.
type Registry struct {
	byCode map[string]*Station
	byCity map[string]*Station
	order  []*Station
}

// NewRegistry builds a registry from explicit stations, for callers that
// do not load the CSV file.
func NewRegistry(stations ...*Station) *Registry {
	r := &Registry{
		byCode: make(map[string]*Station),
		byCity: make(map[string]*Station),
	}
	for _, st := range stations {
		r.add(st)
	}
	return r
}

// LoadRegistry reads the stations CSV. Columns: code, city, timezone,
// venue, lat, lon; the first row is a header. A missing or unreadable
// file yields an empty registry and a logged warning, not an error: the
// engine can still run for explicitly configured stations.
func LoadRegistry(path string) *Registry {
	r := &Registry{
		byCode: make(map[string]*Station),
		byCity: make(map[string]*Station),
	}

	f, err := os.Open(path)
	if err != nil {
		log.Warn().Str("path", path).Err(err).Msg("station registry unavailable, starting empty")
		return r
	}
	defer f.Close()

	reader := csv.NewReader(f)
	reader.FieldsPerRecord = 6
	header := true
	for {
		rec, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			log.Warn().Str("path", path).Err(err).Msg("skipping malformed registry row")
			continue
		}
		if header {
			header = false
			continue
		}
		st, err := parseStationRow(rec)
		if err != nil {
			log.Warn().Str("path", path).Err(err).Msg("skipping malformed registry row")
			continue
		}
		r.add(st)
	}

	log.Info().Int("stations", len(r.order)).Str("path", path).Msg("station registry loaded")
	return r
}

func parseStationRow(rec []string) (*Station, error) {
	lat, err := strconv.ParseFloat(strings.TrimSpace(rec[4]), 64)
	if err != nil {
		return nil, fmt.Errorf("parse lat %q: %w", rec[4], err)
	}
	lon, err := strconv.ParseFloat(strings.TrimSpace(rec[5]), 64)
	if err != nil {
		return nil, fmt.Errorf("parse lon %q: %w", rec[5], err)
	}
	return &Station{
		Code:     strings.TrimSpace(rec[0]),
		City:     strings.TrimSpace(rec[1]),
		Timezone: strings.TrimSpace(rec[2]),
		Venue:    strings.TrimSpace(rec[3]),
		Lat:      lat,
		Lon:      lon,
	}, nil
}

func (r *Registry) add(st *Station) {
	r.byCode[st.Code] = st
	r.byCity[strings.ToLower(st.City)] = st
	r.order = append(r.order, st)
}

// ByCode returns the station with the given code, or nil.
func (r *Registry) ByCode(code string) *Station {
	return r.byCode[code]
}

// ByCity returns the station for a city name, matched case-insensitively
// and exactly, or nil.
func (r *Registry) ByCity(city string) *Station {
	return r.byCity[strings.ToLower(city)]
}

// All returns every registered station in file order.
func (r *Registry) All() []*Station {
	out := make([]*Station, len(r.order))
	copy(out, r.order)
	return out
}

// ByTimezone returns the stations in the given IANA zone.
func (r *Registry) ByTimezone(zone string) []*Station {
	var out []*Station
	for _, st := range r.order {
		if st.Timezone == zone {
			out = append(out, st)
		}
	}
	return out
}

// Len returns the number of registered stations.
func (r *Registry) Len() int {
	return len(r.order)
}
