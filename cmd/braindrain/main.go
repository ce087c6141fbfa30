// Command braindrain assembles the state-level educated-migration master
// table from ACS 5-year data and serves, stores or summarises it.
//
// Usage:
//
//	braindrain assemble [--pretty] [--output FILE]
//	braindrain snapshot
//	braindrain snapshots [--limit N]
//	braindrain history STATE
//	braindrain serve [--port N] [--from-store]
//	braindrain summary [--top N]
//
// Global flags:
//
//	--config FILE   YAML configuration file
//	--year N        ACS 5-year release (overrides config and BRAINDRAIN_YEAR)
//	--verbose       Debug logging
//
// Environment:
//
//	CENSUS_API_KEY, BRAINDRAIN_YEAR, BRAINDRAIN_STORE, BRAINDRAIN_SQLITE_PATH,
//	POSTGRES_*, CLICKHOUSE_*, BRAINDRAIN_HISTORY, NATS_URL, BRAINDRAIN_PORT,
//	BRAINDRAIN_API_AUTH, BRAINDRAIN_API_KEYS
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"braindrain/internal/config"
)

var (
	// Global flags
	verbose    bool
	configPath string
	year       int

	// Loaded in PersistentPreRunE.
	cfg    *config.Config
	logger *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:   "braindrain",
	Short: "State-level educated migration from ACS 5-year data",
	Long: `braindrain fetches four ACS 5-year tables (in-migration, out-migration,
educational attainment and earnings by education) for every US state, joins
them into one master table and derives migration rates, talent concentration,
earnings premiums and a four-way policy segment per state.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load(configPath)
		if err != nil {
			return err
		}
		if cmd.Flags().Changed("year") {
			cfg.Census.Year = year
		}
		if verbose {
			cfg.Verbose = true
		}

		// Initialize logger
		zc := zap.NewProductionConfig()
		if cfg.Verbose {
			zc.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		}
		logger, err = zc.Build()
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		zap.ReplaceGlobals(logger)

		return cfg.Validate()
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "YAML configuration file")
	rootCmd.PersistentFlags().IntVar(&year, "year", 0, "ACS 5-year release year")

	assembleCmd.Flags().BoolVar(&pretty, "pretty", false, "Indent JSON output")
	assembleCmd.Flags().StringVarP(&outputPath, "output", "o", "", "Write to FILE instead of stdout")

	snapshotsCmd.Flags().IntVar(&listLimit, "limit", 20, "Maximum snapshots to list")

	serveCmd.Flags().IntVar(&port, "port", 0, "HTTP port (overrides config)")
	serveCmd.Flags().BoolVar(&fromStore, "from-store", false, "Serve the latest stored snapshot instead of live data")

	summaryCmd.Flags().IntVar(&topN, "top", 5, "Number of top gainers and losers")

	rootCmd.AddCommand(assembleCmd)
	rootCmd.AddCommand(snapshotCmd)
	rootCmd.AddCommand(snapshotsCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(summaryCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
