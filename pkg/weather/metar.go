package weather

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/gopher-lab/zeus-trader/pkg/trading"
	"github.com/gopher-lab/zeus-trader/pkg/units"
)

// METARClient fetches station observations from the aviation weather API.
type METARClient struct {
	http *resty.Client
}

// NewMETARClient creates an observation client.
func NewMETARClient(baseURL string) *METARClient {
	httpClient := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(30 * time.Second).
		SetRetryCount(3).
		SetRetryWaitTime(2 * time.Second).
		SetRetryMaxWaitTime(10 * time.Second).
		AddRetryCondition(func(r *resty.Response, err error) bool {
			if err != nil {
				return true
			}
			return r.StatusCode() >= 500 || r.StatusCode() == http.StatusTooManyRequests
		}).
		SetHeader("Accept", "application/json")

	return &METARClient{http: httpClient}
}

// metarObservation is the upstream record. Older deployments used
// station/time field names; newer ones use icaoId/obsTime (Unix seconds).
type metarObservation struct {
	Station   string          `json:"station"`
	IcaoID    string          `json:"icaoId"`
	Time      string          `json:"time"`
	ObsTime   json.RawMessage `json:"obsTime"`
	TempC     *float64        `json:"temp"`
	DewpointC *float64        `json:"dewpoint"`
	WindDir   *float64        `json:"windDir"`
	WindSpeed *float64        `json:"windSpeed"`
	RawOb     string          `json:"rawOb"`
}

// FetchRange returns the observations for a station between start and
// end. A 204 response means no data and yields an empty, non-error list.
func (c *METARClient) FetchRange(ctx context.Context, stationCode string, start, end time.Time) ([]trading.Observation, error) {
	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"ids":    stationCode,
			"start":  start.UTC().Format(time.RFC3339),
			"end":    end.UTC().Format(time.RFC3339),
			"format": "json",
		}).
		Get("/metar")
	if err != nil {
		return nil, trading.TransientUpstream("metar fetch", err)
	}
	if resp.StatusCode() == http.StatusNoContent {
		return nil, nil
	}
	if resp.StatusCode() != http.StatusOK {
		return nil, trading.TransientUpstream("metar fetch",
			fmt.Errorf("status %d: %s", resp.StatusCode(), resp.String()))
	}

	var raw []metarObservation
	if err := json.Unmarshal(resp.Body(), &raw); err != nil {
		return nil, trading.Malformed("metar fetch", err.Error())
	}

	obs := make([]trading.Observation, 0, len(raw))
	for _, m := range raw {
		o, err := m.normalize(stationCode)
		if err != nil {
			// A single unparsable record does not poison the batch.
			continue
		}
		obs = append(obs, o)
	}
	return obs, nil
}

func (m metarObservation) normalize(fallbackStation string) (trading.Observation, error) {
	station := m.Station
	if station == "" {
		station = m.IcaoID
	}
	if station == "" {
		station = fallbackStation
	}

	var ts time.Time
	switch {
	case m.Time != "":
		parsed, err := time.Parse(time.RFC3339, m.Time)
		if err != nil {
			return trading.Observation{}, fmt.Errorf("parse obs time %q: %w", m.Time, err)
		}
		ts = parsed.UTC()
	case len(m.ObsTime) > 0:
		parsed, err := parseTimestamp(m.ObsTime)
		if err != nil {
			return trading.Observation{}, err
		}
		ts = parsed
	default:
		return trading.Observation{}, fmt.Errorf("observation has no timestamp")
	}

	if m.TempC == nil {
		return trading.Observation{}, fmt.Errorf("observation has no temperature")
	}

	obs := trading.Observation{
		StationCode: station,
		Time:        ts,
		TempF:       roundTo1(units.CToF(*m.TempC)),
		RawOb:       m.RawOb,
	}
	if m.DewpointC != nil {
		dew := roundTo1(units.CToF(*m.DewpointC))
		obs.DewpointF = &dew
	}
	obs.WindDirDeg = m.WindDir
	obs.WindSpeedKt = m.WindSpeed
	return obs, nil
}

func roundTo1(f float64) float64 {
	return math.Round(f*10) / 10
}
