package main

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/gopher-lab/zeus-trader/pkg/metrics"
	"github.com/gopher-lab/zeus-trader/pkg/units"
)

func statsCmd() *cobra.Command {
	var (
		fromStr string
		toStr   string
		station string
		venue   string
		asJSON  bool
	)

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Report P&L and hit-rate statistics from the paper ledger",
		RunE: func(*cobra.Command, []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}

			var filter metrics.Filter
			if fromStr != "" {
				if filter.From, err = time.Parse(units.DayFormat, fromStr); err != nil {
					return fmt.Errorf("parse --from: %w", err)
				}
			}
			if toStr != "" {
				if filter.To, err = time.Parse(units.DayFormat, toStr); err != nil {
					return fmt.Errorf("parse --to: %w", err)
				}
			}
			filter.Station = station
			filter.Venue = venue

			agg := &metrics.Aggregator{Ledger: a.ledger}
			report, err := agg.Run(filter, time.Now())
			if err != nil {
				return err
			}

			if asJSON {
				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")
				return enc.Encode(report)
			}

			o := report.Overall
			fmt.Printf("trades: %d  resolved: %d  pending: %d\n", o.Total, o.Resolved, o.Pending)
			fmt.Printf("wins: %d  losses: %d  hit rate: %.1f%%\n", o.Wins, o.Losses, o.HitRate*100)
			fmt.Printf("risk: $%.2f  pnl: $%.2f  roi: %.1f%%  sharpe: %.2f\n",
				o.TotalRisk, o.TotalPnL, o.ROI*100, o.Sharpe)
			for _, band := range []string{metrics.BandToday, metrics.Band7d, metrics.Band30d, metrics.Band365d} {
				b := report.Bands[band]
				fmt.Printf("%-10s trades: %-4d pnl: $%.2f\n", band, b.Total, b.TotalPnL)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&fromStr, "from", "", "first day, YYYY-MM-DD")
	cmd.Flags().StringVar(&toStr, "to", "", "last day, YYYY-MM-DD")
	cmd.Flags().StringVar(&station, "station", "", "filter by station code")
	cmd.Flags().StringVar(&venue, "venue", "", "filter by venue")
	cmd.Flags().BoolVar(&asJSON, "json", false, "emit the full report as JSON")
	return cmd
}
