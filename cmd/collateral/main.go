package main

import (
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:          "collateral",
		Short:        "Stable-swap LP collateral pricing and default monitor",
		SilenceUsage: true,
	}

	root.PersistentFlags().String("config", "", "config file path")

	priceCmd := &cobra.Command{
		Use:   "price",
		Short: "Print the current LP token price and basket breakdown",
		RunE:  runPrice,
	}
	addCollateralFlags(priceCmd.Flags())
	addStateFlags(priceCmd.Flags())
	priceCmd.Flags().Bool("strict", false, "fail instead of reporting the fallback price")
	root.AddCommand(priceCmd)

	refreshCmd := &cobra.Command{
		Use:   "refresh",
		Short: "Run one refresh, persist state and record a snapshot",
		RunE:  runRefresh,
	}
	addCollateralFlags(refreshCmd.Flags())
	addStateFlags(refreshCmd.Flags())
	addSinkFlags(refreshCmd.Flags())
	root.AddCommand(refreshCmd)

	monitorCmd := &cobra.Command{
		Use:   "monitor",
		Short: "Refresh on an interval and serve status, price and metrics",
		RunE:  runMonitor,
	}
	addCollateralFlags(monitorCmd.Flags())
	addStateFlags(monitorCmd.Flags())
	addSinkFlags(monitorCmd.Flags())
	monitorCmd.Flags().Duration("interval", time.Minute, "refresh interval")
	monitorCmd.Flags().String("metrics-addr", "", "listen address for /metrics, /status and /price (empty disables)")
	root.AddCommand(monitorCmd)
	return root
}

func addCollateralFlags(flags *pflag.FlagSet) {
	flags.String("rpc", "", "RPC URL")
	flags.String("pool", "", "stable-swap pool address")
	flags.String("lp-token", "", "LP token address (default: pool lp_token())")
	flags.StringArray("token-feeds", nil, "feed chain per token, comma-separated, repeat per token in pool order")
	flags.Duration("oracle-timeout", 24*time.Hour, "maximum feed answer age")
	flags.String("name", "", "collateral label (default: pool address)")
	flags.String("fallback-price", "", "price used when live pricing fails")
	flags.String("max-trade-volume", "1000000", "max trade volume in unit of account")
	flags.String("default-threshold", "0.05", "tolerated peg deviation as a fraction")
	flags.Duration("delay-until-default", 72*time.Hour, "time spent IFFY before DISABLED")
	flags.String("target-name", "USD", "target unit")
	flags.Bool("peg-check", false, "enable the peg-deviation soft default")
	flags.StringSlice("pegs", nil, "expected price per token (default 1 each)")
	flags.Bool("block-clock", false, "use the latest block timestamp as the clock")
	flags.Float64("rpc-rps", 10, "eth_call rate limit per second (0 disables)")
	flags.Int("rpc-burst", 10, "eth_call burst")
	flags.Uint32("breaker-failures", 5, "consecutive RPC failures that open the breaker (0 disables)")
	flags.Int("max-retries", 3, "maximum retry attempts")
	flags.Duration("retry-backoff", 500*time.Millisecond, "initial retry backoff")
	flags.String("log-level", "info", "log level (debug, info, warn, error)")
	flags.String("log-file", "", "also write logs to this rotating file")
}

func addStateFlags(flags *pflag.FlagSet) {
	flags.String("state-file", "./data/state.json", "reference state file (empty uses Postgres when pg-dsn is set)")
	flags.String("pg-dsn", "", "Postgres DSN")
}

func addSinkFlags(flags *pflag.FlagSet) {
	flags.String("out", "./data/collateral.jsonl", "status change and snapshot JSONL path (empty disables)")
}
