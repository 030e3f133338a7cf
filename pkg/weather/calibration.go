package weather

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/gopher-lab/zeus-trader/pkg/trading"
	"github.com/gopher-lab/zeus-trader/pkg/units"
)

// Calibration is an optional per-station additive bias model. The total
// correction applied to a Celsius reading at local time t is
// BiasMatrix[month(t)-1][hour(t)] + ElevationOffsetC.
type Calibration struct {
	Station          string       `json:"station"`
	ElevationOffsetC float64      `json:"elevation_offset_c"`
	BiasMatrix       [][]float64  `json:"bias_matrix_smoothed"` // exactly 12 rows of 24 hourly values
}

// calibrationFile is the conventional per-station filename.
func calibrationFile(dir, code string) string {
	return filepath.Join(dir, fmt.Sprintf("station_calibration_%s.json", code))
}

// LoadCalibrations reads the calibration files for the given stations.
// Stations without a file pass through uncorrected; a malformed file is
// logged and skipped.
func LoadCalibrations(dir string, codes []string) map[string]*Calibration {
	out := make(map[string]*Calibration)
	for _, code := range codes {
		cal, err := loadCalibration(calibrationFile(dir, code))
		if err != nil {
			if !os.IsNotExist(err) {
				log.Warn().Str("station", code).Err(err).Msg("ignoring unreadable calibration model")
			}
			continue
		}
		out[code] = cal
		log.Info().Str("station", code).Float64("elevation_offset_c", cal.ElevationOffsetC).
			Msg("station calibration loaded")
	}
	return out
}

func loadCalibration(path string) (*Calibration, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var cal Calibration
	if err := json.Unmarshal(data, &cal); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	if len(cal.BiasMatrix) != 12 {
		return nil, fmt.Errorf("%s: bias matrix has %d rows, want 12", path, len(cal.BiasMatrix))
	}
	for i, row := range cal.BiasMatrix {
		if len(row) != 24 {
			return nil, fmt.Errorf("%s: bias matrix row %d has %d values, want 24", path, i, len(row))
		}
	}
	return &cal, nil
}

// CorrectionC returns the Celsius correction for a local timestamp.
// Months are 1-indexed externally and 0-indexed into the matrix; a month
// outside 1..12 is a programmer error.
func (c *Calibration) CorrectionC(month time.Month, hour int) float64 {
	if month < time.January || month > time.December || hour < 0 || hour > 23 {
		panic(fmt.Sprintf("calibration index out of range: month=%d hour=%d", month, hour))
	}
	return c.BiasMatrix[int(month)-1][hour] + c.ElevationOffsetC
}

// Apply returns a calibrated copy of the forecast. Each point is
// converted K→C, corrected at its station-local month and hour, and
// converted back. The input forecast is not mutated.
func (c *Calibration) Apply(f trading.Forecast, loc *time.Location) trading.Forecast {
	out := f
	out.Points = make([]trading.ForecastPoint, len(f.Points))
	for i, p := range f.Points {
		local := p.TimeUTC.In(loc)
		corrected := units.KToC(p.TempK) + c.CorrectionC(local.Month(), local.Hour())
		out.Points[i] = trading.ForecastPoint{
			TimeUTC: p.TimeUTC,
			TempK:   units.CToK(corrected),
		}
	}
	return out
}
