package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/gopher-lab/zeus-trader/pkg/dashboard"
	"github.com/gopher-lab/zeus-trader/pkg/engine"
	"github.com/gopher-lab/zeus-trader/pkg/metrics"
)

func runCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run the continuous evaluation loop",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			var hub *dashboard.Hub
			if a.cfg.Dashboard.Enabled {
				hub = dashboard.NewHub()
				srv := dashboard.NewServer(a.cfg.Dashboard.Port, hub, &metrics.Aggregator{Ledger: a.ledger})
				srv.Start()
				defer func() {
					shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
					defer cancel()
					if err := srv.Shutdown(shutdownCtx); err != nil {
						log.Warn().Err(err).Msg("dashboard shutdown")
					}
				}()
			}

			eng := engine.New(engine.Services{
				Config:    a.cfg,
				Registry:  a.registry,
				Toggles:   a.toggles,
				Fetchers:  a.fetchers,
				Mapper:    a.mapper,
				Sizer:     a.sizer,
				Ledger:    a.ledger,
				Snapshots: a.snapshots,
				Hub:       hub,
			})
			return eng.Run(ctx)
		},
	}
}
