package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/gopher-lab/zeus-trader/pkg/backtest"
	"github.com/gopher-lab/zeus-trader/pkg/units"
)

func backtestCmd() *cobra.Command {
	var (
		startStr string
		endStr   string
		stations []string
	)

	cmd := &cobra.Command{
		Use:   "backtest",
		Short: "Replay a date range against historical forecasts and prices",
		RunE: func(cmd *cobra.Command, _ []string) error {
			start, err := time.Parse(units.DayFormat, startStr)
			if err != nil {
				return fmt.Errorf("parse --start: %w", err)
			}
			end, err := time.Parse(units.DayFormat, endStr)
			if err != nil {
				return fmt.Errorf("parse --end: %w", err)
			}

			a, err := newApp()
			if err != nil {
				return err
			}

			runner := &backtest.Runner{
				Registry:  a.registry,
				Fetchers:  a.fetchers,
				Mapper:    a.mapper,
				Sizer:     a.sizer,
				Snapshots: a.snapshots,
				Resolver:  a.resolver,
				DataDir:   a.cfg.DataDir,
				Bankroll:  a.cfg.Trading.DailyBankrollCap,
			}
			result, err := runner.Run(cmd.Context(), start, end, stations)
			if err != nil {
				return err
			}

			m := result.Metrics
			fmt.Printf("trades: %d  resolved: %d  pending: %d\n", m.Total, m.Resolved, m.Pending)
			fmt.Printf("hit rate: %.1f%%  risk: $%.2f  pnl: $%.2f  roi: %.1f%%\n",
				m.HitRate*100, m.TotalRisk, m.TotalPnL, m.ROI*100)
			fmt.Printf("run: %s\nsummary: %s\n", result.RunFile, result.SummaryFile)
			return nil
		},
	}

	cmd.Flags().StringVar(&startStr, "start", "", "first day, YYYY-MM-DD")
	cmd.Flags().StringVar(&endStr, "end", "", "last day, YYYY-MM-DD")
	cmd.Flags().StringSliceVar(&stations, "stations", nil, "station codes (default: all registered)")
	cmd.MarkFlagRequired("start")
	cmd.MarkFlagRequired("end")
	return cmd
}
