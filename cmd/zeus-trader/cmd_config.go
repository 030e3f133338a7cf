package main

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/gopher-lab/zeus-trader/internal/config"
)

func configCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect or update the configuration file",
	}
	cmd.AddCommand(configShowCmd(), configSetCmd())
	return cmd
}

func configShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Print the effective tunable options",
		RunE: func(*cobra.Command, []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			flat := a.cfg.Flatten()
			keys := make([]string, 0, len(flat))
			for k := range flat {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			for _, k := range keys {
				fmt.Printf("%-26s %s\n", k, flat[k])
			}
			return nil
		},
	}
}

func configSetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "set <key> <value>",
		Short: "Update one option, back up the old file, and log the change",
		Args:  cobra.ExactArgs(2),
		RunE: func(_ *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}

			old := *a.cfg
			updated := *a.cfg
			if err := applyOption(&updated, args[0], args[1]); err != nil {
				return err
			}

			if errs := config.Update(configPath, &old, &updated, a.clog); len(errs) > 0 {
				msgs := make([]string, len(errs))
				for i, e := range errs {
					msgs[i] = e.Error()
				}
				return fmt.Errorf("update rejected:\n  %s", strings.Join(msgs, "\n  "))
			}
			fmt.Printf("%s = %s\n", args[0], args[1])
			return nil
		},
	}
}

// applyOption maps a flattened key back onto the config struct. Keys
// match the output of Flatten.
func applyOption(c *config.Config, key, value string) error {
	setF := func(dst *float64) error {
		v, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return fmt.Errorf("%s wants a number, got %q", key, value)
		}
		*dst = v
		return nil
	}
	setI := func(dst *int) error {
		v, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("%s wants an integer, got %q", key, value)
		}
		*dst = v
		return nil
	}

	switch key {
	case "edge_min":
		return setF(&c.Trading.EdgeMin)
	case "fee_bp":
		return setF(&c.Trading.FeeBP)
	case "slippage_bp":
		return setF(&c.Trading.SlippageBP)
	case "kelly_cap":
		return setF(&c.Trading.KellyCap)
	case "per_market_cap":
		return setF(&c.Trading.PerMarketCap)
	case "liquidity_min":
		return setF(&c.Trading.LiquidityMin)
	case "daily_bankroll_cap":
		return setF(&c.Trading.DailyBankrollCap)
	case "active_stations":
		c.Engine.ActiveStations = splitNonEmpty(value)
		return nil
	case "model_mode":
		c.Engine.ModelMode = value
		return nil
	case "zeus_likely_pct":
		return setF(&c.Engine.ZeusLikelyPct)
	case "zeus_possible_pct":
		return setF(&c.Engine.ZeusPossiblePct)
	case "dynamic_interval_seconds":
		return setI(&c.Engine.IntervalSeconds)
	case "dynamic_lookahead_days":
		return setI(&c.Engine.LookaheadDays)
	case "execution_mode":
		c.Engine.ExecutionMode = value
		return nil
	default:
		return fmt.Errorf("unknown option %q", key)
	}
}

func splitNonEmpty(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func toggleCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "toggle <name> <on|off>",
		Short: "Flip a persisted feature toggle",
		Args:  cobra.ExactArgs(2),
		RunE: func(_ *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			var value bool
			switch args[1] {
			case "on", "true":
				value = true
			case "off", "false":
				value = false
			default:
				return fmt.Errorf("value must be on or off, got %q", args[1])
			}
			if err := a.toggles.Set(args[0], value); err != nil {
				return err
			}
			fmt.Printf("%s = %v\n", args[0], value)
			return nil
		},
	}
}
