package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/gopher-lab/zeus-trader/pkg/changelog"
)

// fileConfig mirrors Config for YAML serialization of updates.
type fileConfig struct {
	DataDir string `yaml:"data_dir"`

	Zeus struct {
		BaseURL string `yaml:"base_url"`
		APIKey  string `yaml:"api_key,omitempty"`
	} `yaml:"zeus"`
	Venue struct {
		GammaBaseURL string `yaml:"gamma_base_url"`
		CLOBBaseURL  string `yaml:"clob_base_url"`
	} `yaml:"venue"`
	METAR struct {
		BaseURL string `yaml:"base_url"`
	} `yaml:"metar"`
	Trading struct {
		EdgeMin          float64 `yaml:"edge_min"`
		FeeBP            float64 `yaml:"fee_bp"`
		SlippageBP       float64 `yaml:"slippage_bp"`
		KellyCap         float64 `yaml:"kelly_cap"`
		PerMarketCap     float64 `yaml:"per_market_cap"`
		LiquidityMin     float64 `yaml:"liquidity_min"`
		DailyBankrollCap float64 `yaml:"daily_bankroll_cap"`
	} `yaml:"trading"`
	Engine struct {
		ActiveStations  []string `yaml:"active_stations"`
		ModelMode       string   `yaml:"model_mode"`
		ZeusLikelyPct   float64  `yaml:"zeus_likely_pct"`
		ZeusPossiblePct float64  `yaml:"zeus_possible_pct"`
		IntervalSeconds int      `yaml:"dynamic_interval_seconds"`
		LookaheadDays   int      `yaml:"dynamic_lookahead_days"`
		ExecutionMode   string   `yaml:"execution_mode"`
	} `yaml:"engine"`
	Dashboard struct {
		Enabled bool `yaml:"enabled"`
		Port    int  `yaml:"port"`
	} `yaml:"dashboard"`
	Logging struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"logging"`
}

func toFileConfig(c *Config) fileConfig {
	var f fileConfig
	f.DataDir = c.DataDir
	f.Zeus.BaseURL = c.Zeus.BaseURL
	f.Zeus.APIKey = c.Zeus.APIKey
	f.Venue.GammaBaseURL = c.Venue.GammaBaseURL
	f.Venue.CLOBBaseURL = c.Venue.CLOBBaseURL
	f.METAR.BaseURL = c.METAR.BaseURL
	f.Trading.EdgeMin = c.Trading.EdgeMin
	f.Trading.FeeBP = c.Trading.FeeBP
	f.Trading.SlippageBP = c.Trading.SlippageBP
	f.Trading.KellyCap = c.Trading.KellyCap
	f.Trading.PerMarketCap = c.Trading.PerMarketCap
	f.Trading.LiquidityMin = c.Trading.LiquidityMin
	f.Trading.DailyBankrollCap = c.Trading.DailyBankrollCap
	f.Engine.ActiveStations = c.Engine.ActiveStations
	f.Engine.ModelMode = c.Engine.ModelMode
	f.Engine.ZeusLikelyPct = c.Engine.ZeusLikelyPct
	f.Engine.ZeusPossiblePct = c.Engine.ZeusPossiblePct
	f.Engine.IntervalSeconds = c.Engine.IntervalSeconds
	f.Engine.LookaheadDays = c.Engine.LookaheadDays
	f.Engine.ExecutionMode = c.Engine.ExecutionMode
	f.Dashboard.Enabled = c.Dashboard.Enabled
	f.Dashboard.Port = c.Dashboard.Port
	f.Logging.Level = c.Logging.Level
	f.Logging.Format = c.Logging.Format
	return f
}

// Update validates the new configuration, backs up the current file,
// writes the new one, and appends a configuration changelog entry for
// the diff. On validation failure the old file is untouched and every
// violation is returned.
func Update(path string, old, updated *Config, clog *changelog.Log) []error {
	if errs := updated.Validate(); len(errs) > 0 {
		return errs
	}

	if _, err := os.Stat(path); err == nil {
		data, err := os.ReadFile(path)
		if err != nil {
			return []error{fmt.Errorf("read current config for backup: %w", err)}
		}
		if err := os.WriteFile(path+".bak", data, 0o644); err != nil {
			return []error{fmt.Errorf("write config backup: %w", err)}
		}
	}

	data, err := yaml.Marshal(toFileConfig(updated))
	if err != nil {
		return []error{fmt.Errorf("marshal config: %w", err)}
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return []error{fmt.Errorf("create config dir: %w", err)}
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return []error{fmt.Errorf("write config: %w", err)}
	}

	if clog != nil {
		if err := clog.AppendConfigDiff("configuration updated", old.Flatten(), updated.Flatten()); err != nil {
			return []error{fmt.Errorf("append changelog: %w", err)}
		}
	}
	return nil
}
