// zeus-trader converts probabilistic weather forecasts into sized paper
// positions on temperature-bracket prediction markets.
package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/gopher-lab/zeus-trader/internal/config"
	"github.com/gopher-lab/zeus-trader/pkg/changelog"
	"github.com/gopher-lab/zeus-trader/pkg/engine"
	"github.com/gopher-lab/zeus-trader/pkg/ledger"
	"github.com/gopher-lab/zeus-trader/pkg/market"
	"github.com/gopher-lab/zeus-trader/pkg/prob"
	"github.com/gopher-lab/zeus-trader/pkg/resolution"
	"github.com/gopher-lab/zeus-trader/pkg/sizing"
	"github.com/gopher-lab/zeus-trader/pkg/snapshot"
	"github.com/gopher-lab/zeus-trader/pkg/toggles"
	"github.com/gopher-lab/zeus-trader/pkg/weather"
)

var configPath string

func main() {
	root := &cobra.Command{
		Use:   "zeus-trader",
		Short: "Paper-trade temperature brackets from probabilistic forecasts",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "configs/config.yaml", "config file path")

	root.AddCommand(runCmd(), backtestCmd(), resolveCmd(), statsCmd(), configCmd(), toggleCmd())

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

// app is the wired process: every long-lived collaborator, built once
// from validated configuration.
type app struct {
	cfg       *config.Config
	registry  *weather.Registry
	toggles   *toggles.Toggles
	venue     *market.Client
	fetchers  *engine.Fetchers
	mapper    *prob.Mapper
	sizer     *sizing.Sizer
	ledger    *ledger.Ledger
	snapshots *snapshot.Snapshotter
	resolver  *resolution.Resolver
	clog      *changelog.Log
}

func newApp() (*app, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	if errs := cfg.Validate(); len(errs) > 0 {
		msgs := make([]string, len(errs))
		for i, e := range errs {
			msgs[i] = e.Error()
		}
		return nil, fmt.Errorf("invalid configuration:\n  %s", strings.Join(msgs, "\n  "))
	}
	setupLogging(cfg.Logging)

	registry := weather.LoadRegistry(filepath.Join(cfg.DataDir, "registry", "stations.csv"))

	togglesPath := filepath.Join(cfg.DataDir, "config", "feature_toggles.json")
	flags, err := toggles.Load(togglesPath)
	if err != nil {
		return nil, err
	}

	snaps, err := snapshot.New(filepath.Join(cfg.DataDir, "snapshots", "dynamic"))
	if err != nil {
		return nil, err
	}

	venue := market.NewClient(cfg.Venue.GammaBaseURL, cfg.Venue.CLOBBaseURL)

	var codes []string
	for _, st := range registry.All() {
		codes = append(codes, st.Code)
	}
	calibrations := weather.LoadCalibrations(filepath.Join(cfg.DataDir, "calibration"), codes)

	a := &app{
		cfg:      cfg,
		registry: registry,
		toggles:  flags,
		venue:    venue,
		fetchers: &engine.Fetchers{
			Zeus:  weather.NewZeusClient(cfg.Zeus.BaseURL, cfg.Zeus.APIKey),
			Venue: venue,
			METAR: weather.NewMETARClient(cfg.METAR.BaseURL),
		},
		mapper: &prob.Mapper{
			Mode:               prob.ModelMode(cfg.Engine.ModelMode),
			Calibrations:       calibrations,
			CalibrationEnabled: flags.Enabled(toggles.StationCalibration),
		},
		sizer: &sizing.Sizer{Params: sizing.Params{
			EdgeMin:      cfg.Trading.EdgeMin,
			FeeBP:        cfg.Trading.FeeBP,
			SlippageBP:   cfg.Trading.SlippageBP,
			KellyCap:     cfg.Trading.KellyCap,
			PerMarketCap: cfg.Trading.PerMarketCap,
			LiquidityMin: cfg.Trading.LiquidityMin,
		}},
		ledger:    ledger.New(filepath.Join(cfg.DataDir, "trades")),
		snapshots: snaps,
		resolver:  &resolution.Resolver{Venue: venue, Registry: registry},
		clog:      changelog.New(filepath.Join(cfg.DataDir, "strategy", "changelog.json")),
	}
	return a, nil
}

func setupLogging(lc config.LoggingConfig) {
	level, err := zerolog.ParseLevel(lc.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
	zerolog.TimeFieldFormat = time.RFC3339

	if lc.Format == "console" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05"})
	}
}
