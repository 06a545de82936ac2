package commands

import (
	"github.com/spf13/cobra"
)

var (
	verbose bool
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "stock-sync",
	Short: "Daily OHLCV Sync Decision Engine",
	Long: `A daily OHLCV synchronization engine for equity instruments.

For every instrument it validates the latest persisted candle against the
provider, then decides between an incremental append, a full historical
rebuild, or no action at all.

Features:
• Per-instrument sync decisions (noop, incremental, full rebuild)
• Drift validation of persisted candles against the provider
• Transactional bar and tracker writes per instrument
• Redis-cached sync status and NATS run events
• REST API for status reads and triggered runs`,
	Version: "1.0.0",
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	// Global flags
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
}
