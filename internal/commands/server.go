package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/stock-sync/internal/api"
	"github.com/stock-sync/internal/cache"
	"github.com/stock-sync/internal/database"
	"github.com/stock-sync/internal/messaging"
	"github.com/stock-sync/internal/provider"
	"github.com/stock-sync/internal/services"
	"github.com/stock-sync/pkg/config"
	"github.com/stock-sync/pkg/logger"
)

var (
	serverPort int
	serverHost string
	logLevel   string
)

// serverCmd represents the server command
var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "Run the sync status API server",
	Long: `Start the HTTP API server.

This exposes sync tracker status over REST and accepts triggered sync
runs. When scheduling is enabled the server also runs periodic sync
batches in the background.

Examples:
  stock-sync server                    # Start with default settings
  stock-sync server --port 9090        # Start on custom port
  stock-sync server --host 0.0.0.0     # Bind to all interfaces
  stock-sync server --log-level debug  # Enable debug logging`,
	RunE: runServer,
}

func init() {
	rootCmd.AddCommand(serverCmd)

	serverCmd.Flags().IntVarP(&serverPort, "port", "p", 0, "Server port")
	serverCmd.Flags().StringVarP(&serverHost, "host", "H", "", "Server host")
	serverCmd.Flags().StringVarP(&logLevel, "log-level", "l", "", "Log level (debug, info, warn, error)")
}

func runServer(cmd *cobra.Command, args []string) error {
	// Load .env file first
	if err := config.LoadDotEnv(); err != nil {
		fmt.Printf("Note: .env file not loaded: %v\n", err)
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	// Override config with command line flags if provided
	if serverHost != "" {
		cfg.Server.Host = serverHost
	}
	if serverPort != 0 {
		cfg.Server.Port = serverPort
	}
	if logLevel != "" {
		cfg.Logging.Level = logLevel
	}

	log, err := logger.New(&cfg.Logging)
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	log.Info("Starting stock-sync server")

	mysqlDB, err := database.NewMySQLClient(&cfg.MySQL, log)
	if err != nil {
		return fmt.Errorf("failed to connect to MySQL: %w", err)
	}
	defer mysqlDB.Close()

	yahoo := provider.NewClient(&cfg.Provider, log)

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

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var scheduler *services.Scheduler
	if cfg.Sync.ScheduleEnabled {
		scheduler = services.NewScheduler(runner, &cfg.Sync, log)
		if err := scheduler.Start(ctx); err != nil {
			return fmt.Errorf("failed to start scheduler: %w", err)
		}
	}

	server := api.NewServer(cfg, log, mysqlDB, redisCache, runner)

	serverErr := make(chan error, 1)
	go func() {
		serverErr <- server.Start()
	}()

	// Wait for interrupt signal
	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt, syscall.SIGTERM, syscall.SIGQUIT)

	select {
	case err := <-serverErr:
		if err != nil {
			log.WithError(err).Error("Server failed")
			return err
		}
	case sig := <-interrupt:
		log.WithField("signal", sig.String()).Info("Shutdown signal received")
	}

	cancel()
	if scheduler != nil {
		scheduler.Stop()
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Error("Server shutdown error")
		return err
	}

	log.Info("Server shutdown complete")
	return nil
}
