package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/stock-sync/internal/cache"
	"github.com/stock-sync/internal/database"
	"github.com/stock-sync/internal/messaging"
	"github.com/stock-sync/internal/provider"
	"github.com/stock-sync/internal/services"
	"github.com/stock-sync/pkg/config"
	"github.com/stock-sync/pkg/logger"
)

var (
	syncSymbol    string
	validateOnly  bool
	syncTolerance float64
)

// syncCmd represents the sync command
var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Run one daily OHLCV sync batch",
	Long: `Run one synchronization batch over the active instrument universe.

For each instrument the latest persisted candle is validated against the
provider, and the engine decides between an incremental append, a full
historical rebuild, or no action.

Examples:
  stock-sync sync                          # Sync all active instruments
  stock-sync sync --symbol RELIANCE        # Sync a single instrument
  stock-sync sync --validate-only          # Report decisions without writing
  stock-sync sync --tolerance 0.005        # Tighter drift tolerance`,
	RunE: runSync,
}

func init() {
	rootCmd.AddCommand(syncCmd)

	syncCmd.Flags().StringVarP(&syncSymbol, "symbol", "s", "", "Sync only this symbol")
	syncCmd.Flags().BoolVar(&validateOnly, "validate-only", false, "Validate and decide without writing")
	syncCmd.Flags().Float64Var(&syncTolerance, "tolerance", 0.01, "Relative drift tolerance for validation")
}

func runSync(cmd *cobra.Command, args []string) error {
	// Load .env file first
	if err := config.LoadDotEnv(); err != nil {
		fmt.Printf("Note: .env file not loaded: %v\n", err)
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	if cmd.Flags().Changed("tolerance") {
		cfg.Sync.Tolerance = syncTolerance
	}
	if verbose {
		cfg.Logging.Level = "debug"
	}

	log, err := logger.New(&cfg.Logging)
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}

	mysqlDB, err := database.NewMySQLClient(&cfg.MySQL, log)
	if err != nil {
		return fmt.Errorf("failed to connect to MySQL: %w", err)
	}
	defer mysqlDB.Close()

	yahoo := provider.NewClient(&cfg.Provider, log)

	// Redis and NATS are optional for a batch run. The syncer treats a
	// nil cache or publisher as disabled.
	var statusCache services.StatusCache
	redisCache, err := cache.NewRedisClient(&cfg.Redis, log)
	if err != nil {
		log.WithError(err).Warn("Redis unavailable, sync status will not be cached")
	} else {
		statusCache = redisCache
		defer redisCache.Close()
	}

	var events services.EventPublisher
	natsClient, err := messaging.NewNATSClient(&cfg.NATS, log)
	if err != nil {
		log.WithError(err).Warn("NATS unavailable, sync events will not be published")
	} else {
		events = natsClient
		defer natsClient.Close()
	}

	syncer := services.NewSyncer(mysqlDB, yahoo, statusCache, events, &cfg.Sync, log)
	runner := services.NewRunner(syncer, mysqlDB, events, &cfg.Sync, log)

	// Cancel the batch cleanly on SIGINT/SIGTERM
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt, syscall.SIGTERM)
	go func() {
		sig := <-interrupt
		log.WithField("signal", sig.String()).Info("Cancelling sync run")
		cancel()
	}()

	summary, err := runner.Run(ctx, services.RunOptions{
		Symbol:       syncSymbol,
		ValidateOnly: validateOnly,
	})
	if err != nil {
		return err
	}

	fmt.Printf("\nSync complete: %d total, %d succeeded, %d failed (%d rebuilt, %d incremental, %d noop)\n",
		summary.Total, summary.Succeeded, summary.Failed,
		summary.Rebuilt, summary.Incremental, summary.Noop)

	return nil
}
