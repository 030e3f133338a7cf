package weather

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog/log"

	"github.com/gopher-lab/zeus-trader/pkg/trading"
)

// ZeusClient fetches hourly temperature forecasts from the Zeus API.
type ZeusClient struct {
	http *resty.Client
}

// NewZeusClient creates a forecast client with retry and backoff. Retries
// follow 2s/4s/8s exponential backoff capped at 10s, on network errors,
// 5xx and 429.
func NewZeusClient(baseURL, apiKey string) *ZeusClient {
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
		SetAuthToken(apiKey).
		SetHeader("Accept", "application/json")

	return &ZeusClient{http: httpClient}
}

// FetchHourly requests predictHours of 2m temperature starting at start.
// start must keep its local zone offset: the API treats the timestamp as
// an absolute instant, and stripping the offset shifts the returned
// window by a whole day.
func (c *ZeusClient) FetchHourly(ctx context.Context, lat, lon float64, start time.Time, predictHours int) ([]trading.ForecastPoint, error) {
	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"latitude":      strconv.FormatFloat(lat, 'f', 4, 64),
			"longitude":     strconv.FormatFloat(lon, 'f', 4, 64),
			"variable":      "2m_temperature",
			"start_time":    start.Format(time.RFC3339),
			"predict_hours": strconv.Itoa(predictHours),
		}).
		Get("/forecast")
	if err != nil {
		return nil, trading.TransientUpstream("zeus forecast", err)
	}
	if resp.StatusCode() == http.StatusNotFound {
		return nil, fmt.Errorf("zeus forecast: %w", trading.ErrNotFound)
	}
	if resp.StatusCode() != http.StatusOK {
		return nil, trading.TransientUpstream("zeus forecast",
			fmt.Errorf("status %d: %s", resp.StatusCode(), resp.String()))
	}

	points, err := decodeForecastBody(resp.Body())
	if err != nil {
		log.Error().Err(err).Msg("zeus response did not match either known shape")
		return nil, err
	}
	return points, nil
}

// The Zeus API has returned two response shapes over time. The legacy
// shape is a list of {time, temperature_k} objects; the array shape
// carries parallel data arrays. Both are accepted and normalized; the
// timestamps of either shape may be ISO8601 strings or Unix numbers.
type legacyForecastBody struct {
	Forecast []struct {
		Time         json.RawMessage `json:"time"`
		TemperatureK float64         `json:"temperature_k"`
	} `json:"forecast"`
}

type arrayForecastBody struct {
	Temperature struct {
		Data []float64 `json:"data"`
	} `json:"2m_temperature"`
	Time struct {
		Data []json.RawMessage `json:"data"`
	} `json:"time"`
}

func decodeForecastBody(body []byte) ([]trading.ForecastPoint, error) {
	var legacy legacyForecastBody
	if err := json.Unmarshal(body, &legacy); err == nil && len(legacy.Forecast) > 0 {
		points := make([]trading.ForecastPoint, 0, len(legacy.Forecast))
		for _, p := range legacy.Forecast {
			ts, err := parseTimestamp(p.Time)
			if err != nil {
				return nil, trading.Malformed("zeus forecast", err.Error())
			}
			points = append(points, trading.ForecastPoint{TimeUTC: ts, TempK: p.TemperatureK})
		}
		return points, nil
	}

	var arr arrayForecastBody
	if err := json.Unmarshal(body, &arr); err != nil {
		return nil, trading.Malformed("zeus forecast", err.Error())
	}
	if len(arr.Temperature.Data) == 0 {
		return nil, trading.Malformed("zeus forecast", "no temperature data in either shape")
	}
	if len(arr.Temperature.Data) != len(arr.Time.Data) {
		return nil, trading.Malformed("zeus forecast",
			fmt.Sprintf("temperature/time length mismatch: %d vs %d",
				len(arr.Temperature.Data), len(arr.Time.Data)))
	}

	points := make([]trading.ForecastPoint, 0, len(arr.Temperature.Data))
	for i, raw := range arr.Time.Data {
		ts, err := parseTimestamp(raw)
		if err != nil {
			return nil, trading.Malformed("zeus forecast", err.Error())
		}
		points = append(points, trading.ForecastPoint{TimeUTC: ts, TempK: arr.Temperature.Data[i]})
	}
	return points, nil
}

// parseTimestamp accepts an ISO8601 string or a Unix numeric timestamp.
func parseTimestamp(raw json.RawMessage) (time.Time, error) {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		ts, err := time.Parse(time.RFC3339, s)
		if err != nil {
			return time.Time{}, fmt.Errorf("parse timestamp %q: %w", s, err)
		}
		return ts.UTC(), nil
	}
	var unix float64
	if err := json.Unmarshal(raw, &unix); err == nil {
		return time.Unix(int64(unix), 0).UTC(), nil
	}
	return time.Time{}, fmt.Errorf("timestamp %s is neither string nor number", string(raw))
}
