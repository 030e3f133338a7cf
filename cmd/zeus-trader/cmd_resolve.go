package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/gopher-lab/zeus-trader/pkg/units"
)

func resolveCmd() *cobra.Command {
	var dayStr string

	cmd := &cobra.Command{
		Use:   "resolve",
		Short: "Resolve pending paper trades against venue outcomes",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}

			var days []time.Time
			if dayStr != "" {
				day, err := time.Parse(units.DayFormat, dayStr)
				if err != nil {
					return fmt.Errorf("parse --day: %w", err)
				}
				days = []time.Time{day}
			} else {
				days, err = a.ledger.Days()
				if err != nil {
					return err
				}
			}

			total := 0
			for _, day := range days {
				n, err := a.resolver.ResolveLedgerDay(cmd.Context(), a.ledger, day)
				if err != nil {
					return fmt.Errorf("resolve %s: %w", day.Format(units.DayFormat), err)
				}
				total += n
			}
			fmt.Printf("resolved %d trades across %d days\n", total, len(days))
			return nil
		},
	}

	cmd.Flags().StringVar(&dayStr, "day", "", "single ledger day, YYYY-MM-DD (default: all days)")
	return cmd
}
