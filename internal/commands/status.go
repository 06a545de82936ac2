package commands

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/stock-sync/internal/database"
	"github.com/stock-sync/pkg/config"
	"github.com/stock-sync/pkg/logger"
	"github.com/stock-sync/pkg/models"
)

// statusCmd represents the status command
var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show per-instrument sync status",
	Long: `Display the sync tracker state for every instrument.

Examples:
  stock-sync status                # Show all tracked instruments`,
	RunE: runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	if err := config.LoadDotEnv(); err != nil {
		fmt.Printf("Note: .env file not loaded: %v\n", err)
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
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

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	trackers, err := mysqlDB.GetTrackers(ctx, models.DataTypeDailyOHLCV)
	if err != nil {
		return fmt.Errorf("failed to read sync trackers: %w", err)
	}

	if len(trackers) == 0 {
		fmt.Println("No sync history recorded")
		return nil
	}

	fmt.Println("Sync Status:")
	fmt.Println("============")
	fmt.Printf("%-15s %-12s %-12s %-10s %s\n", "Symbol", "Last Date", "Status", "Records", "Last Synced")
	fmt.Println(strings.Repeat("-", 75))

	for _, t := range trackers {
		lastDate := "-"
		if t.LastDataDate != nil {
			lastDate = t.LastDataDate.Format("2006-01-02")
		}

		fmt.Printf("%-15s %-12s %-12s %-10d %s\n",
			t.Symbol,
			lastDate,
			t.Status,
			t.RecordsCount,
			t.LastSyncTime.Format("2006-01-02 15:04:05"))

		if t.ErrorMessage != "" {
			fmt.Printf("    error: %s\n", t.ErrorMessage)
		}
	}

	return nil
}
