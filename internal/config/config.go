// Package config defines the engine configuration, loaded from a YAML
// file with ZEUS_* environment overrides.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/viper"
)

// Config is the top-level configuration, built once at startup, validated,
// and passed by value. Changes go through Update, which backs up the old
// file and records a changelog entry.
type Config struct {
	DataDir string `mapstructure:"data_dir"`

	Zeus      ZeusConfig      `mapstructure:"zeus"`
	Venue     VenueConfig     `mapstructure:"venue"`
	METAR     METARConfig     `mapstructure:"metar"`
	Trading   TradingConfig   `mapstructure:"trading"`
	Engine    EngineConfig    `mapstructure:"engine"`
	Dashboard DashboardConfig `mapstructure:"dashboard"`
	Logging   LoggingConfig   `mapstructure:"logging"`
}

// ZeusConfig points at the forecast provider.
type ZeusConfig struct {
	BaseURL string `mapstructure:"base_url"`
	APIKey  string `mapstructure:"api_key"`
}

// VenueConfig points at the prediction-market venue APIs.
type VenueConfig struct {
	GammaBaseURL string `mapstructure:"gamma_base_url"`
	CLOBBaseURL  string `mapstructure:"clob_base_url"`
}

// METARConfig points at the observation provider.
type METARConfig struct {
	BaseURL string `mapstructure:"base_url"`
}

// TradingConfig holds the sizing constants.
//
//   - EdgeMin: minimum post-cost edge to trade, as a fraction.
//   - FeeBP, SlippageBP: cost assumptions in basis points.
//   - KellyCap: upper bound on the applied Kelly fraction.
//   - PerMarketCap: USD ceiling per bracket.
//   - LiquidityMin: USD bid-depth floor; below it the bracket is skipped.
//   - DailyBankrollCap: notional bankroll passed to the sizer each cycle.
type TradingConfig struct {
	EdgeMin          float64 `mapstructure:"edge_min"`
	FeeBP            float64 `mapstructure:"fee_bp"`
	SlippageBP       float64 `mapstructure:"slippage_bp"`
	KellyCap         float64 `mapstructure:"kelly_cap"`
	PerMarketCap     float64 `mapstructure:"per_market_cap"`
	LiquidityMin     float64 `mapstructure:"liquidity_min"`
	DailyBankrollCap float64 `mapstructure:"daily_bankroll_cap"`
}

// EngineConfig controls the evaluation loop.
type EngineConfig struct {
	ActiveStations  []string `mapstructure:"active_stations"`
	ModelMode       string   `mapstructure:"model_mode"` // spread or bands
	ZeusLikelyPct   float64  `mapstructure:"zeus_likely_pct"`
	ZeusPossiblePct float64  `mapstructure:"zeus_possible_pct"`
	IntervalSeconds int      `mapstructure:"dynamic_interval_seconds"`
	LookaheadDays   int      `mapstructure:"dynamic_lookahead_days"`
	ExecutionMode   string   `mapstructure:"execution_mode"` // paper or live
}

// DashboardConfig controls the read-only dashboard server.
type DashboardConfig struct {
	Enabled bool `mapstructure:"enabled"`
	Port    int  `mapstructure:"port"`
}

// LoggingConfig selects log level and format.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"` // json or console
}

// Load reads config from a YAML file with ZEUS_* env overrides. A missing
// file is fine when every needed value arrives via environment.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix("ZEUS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			if _, notFound := err.(viper.ConfigFileNotFoundError); !notFound && !os.IsNotExist(err) {
				return nil, fmt.Errorf("read config: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if key := os.Getenv("ZEUS_API_KEY"); key != "" {
		cfg.Zeus.APIKey = key
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("data_dir", "data")
	v.SetDefault("zeus.base_url", "https://api.zeusweather.ai")
	v.SetDefault("venue.gamma_base_url", "https://gamma-api.polymarket.com")
	v.SetDefault("venue.clob_base_url", "https://clob.polymarket.com")
	v.SetDefault("metar.base_url", "https://aviationweather.gov/api/data")
	v.SetDefault("trading.edge_min", 0.05)
	v.SetDefault("trading.fee_bp", 0.0)
	v.SetDefault("trading.slippage_bp", 50.0)
	v.SetDefault("trading.kelly_cap", 0.25)
	v.SetDefault("trading.per_market_cap", 250.0)
	v.SetDefault("trading.liquidity_min", 100.0)
	v.SetDefault("trading.daily_bankroll_cap", 1000.0)
	v.SetDefault("engine.model_mode", "spread")
	v.SetDefault("engine.zeus_likely_pct", 80.0)
	v.SetDefault("engine.zeus_possible_pct", 95.0)
	v.SetDefault("engine.dynamic_interval_seconds", 900)
	v.SetDefault("engine.dynamic_lookahead_days", 1)
	v.SetDefault("engine.execution_mode", "paper")
	v.SetDefault("dashboard.enabled", false)
	v.SetDefault("dashboard.port", 8090)
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "console")
}

// Validate checks value ranges and returns every violation, not just the
// first. A config that fails validation is never written.
func (c *Config) Validate() []error {
	var errs []error
	add := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf(format, args...))
	}

	if c.Trading.EdgeMin < 0 || c.Trading.EdgeMin >= 1 {
		add("trading.edge_min must be in [0,1), got %v", c.Trading.EdgeMin)
	}
	if c.Trading.FeeBP < 0 || c.Trading.SlippageBP < 0 {
		add("trading fee/slippage basis points must be >= 0")
	}
	if c.Trading.KellyCap <= 0 || c.Trading.KellyCap > 1 {
		add("trading.kelly_cap must be in (0,1], got %v", c.Trading.KellyCap)
	}
	if c.Trading.PerMarketCap <= 0 {
		add("trading.per_market_cap must be > 0")
	}
	if c.Trading.LiquidityMin < 0 {
		add("trading.liquidity_min must be >= 0")
	}
	if c.Trading.DailyBankrollCap <= 0 {
		add("trading.daily_bankroll_cap must be > 0")
	}
	switch c.Engine.ModelMode {
	case "spread", "bands":
	default:
		add("engine.model_mode must be spread or bands, got %q", c.Engine.ModelMode)
	}
	switch c.Engine.ExecutionMode {
	case "paper":
	case "live":
		add("engine.execution_mode live is not implemented; use paper")
	default:
		add("engine.execution_mode must be paper or live, got %q", c.Engine.ExecutionMode)
	}
	if c.Engine.IntervalSeconds <= 0 {
		add("engine.dynamic_interval_seconds must be > 0")
	}
	if c.Engine.LookaheadDays < 1 {
		add("engine.dynamic_lookahead_days must be >= 1")
	}
	if c.Dashboard.Enabled && (c.Dashboard.Port <= 0 || c.Dashboard.Port > 65535) {
		add("dashboard.port must be a valid TCP port")
	}

	return errs
}

// Flatten renders the tunable options as a flat key/value map, the form
// the changelog diffs.
func (c *Config) Flatten() map[string]string {
	f := func(v float64) string { return strconv.FormatFloat(v, 'f', -1, 64) }
	return map[string]string{
		"edge_min":                 f(c.Trading.EdgeMin),
		"fee_bp":                   f(c.Trading.FeeBP),
		"slippage_bp":              f(c.Trading.SlippageBP),
		"kelly_cap":                f(c.Trading.KellyCap),
		"per_market_cap":           f(c.Trading.PerMarketCap),
		"liquidity_min":            f(c.Trading.LiquidityMin),
		"daily_bankroll_cap":       f(c.Trading.DailyBankrollCap),
		"active_stations":          strings.Join(c.Engine.ActiveStations, ","),
		"model_mode":               c.Engine.ModelMode,
		"zeus_likely_pct":          f(c.Engine.ZeusLikelyPct),
		"zeus_possible_pct":        f(c.Engine.ZeusPossiblePct),
		"dynamic_interval_seconds": strconv.Itoa(c.Engine.IntervalSeconds),
		"dynamic_lookahead_days":   strconv.Itoa(c.Engine.LookaheadDays),
		"execution_mode":           c.Engine.ExecutionMode,
	}
}
