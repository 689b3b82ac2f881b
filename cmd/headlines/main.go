package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/pders01/headlines/internal/config"
	"github.com/pders01/headlines/internal/logging"
)

// Version is the version of the application, set at build time
var Version = "dev"

var (
	configPath string
	logLevel   string
	dataDir    string

	cfg *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "headlines",
	Short: "Log news homepage stories and snapshot their articles",
	Long: `headlines records the stories on a news homepage into dated CSV listings
and, once a day, fetches every logged article into a Parquet snapshot.

Run without a subcommand it fetches yesterday's (UTC) articles.`,
	SilenceUsage:      true,
	PersistentPreRunE: setup,
	RunE:              runArticles,
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = logging.Close()
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to configuration file")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level: debug, info, warn, error, off")
	rootCmd.PersistentFlags().StringVar(&dataDir, "data-dir", "", "data directory (overrides config)")
	rootCmd.Flags().StringVar(&articlesDate, "date", "", "listing date to fetch (YYYY-MM-DD, default yesterday UTC)")

	rootCmd.AddCommand(articlesCmd, listingsCmd, searchCmd, statusCmd, configCmd, versionCmd)
}

// setup loads configuration and starts logging before any command runs.
func setup(cmd *cobra.Command, args []string) error {
	loaded, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	if dataDir != "" {
		applyDataDir(loaded, dataDir)
	}

	level := loaded.Log.Level
	if logLevel != "" {
		level = logLevel
	}

	if err := startLogging(loaded.Log, logging.ParseLogLevel(level)); err != nil {
		return err
	}

	cfg = loaded
	return nil
}

// applyDataDir moves every data path under dir.
func applyDataDir(c *config.Config, dir string) {
	if abs, err := filepath.Abs(dir); err == nil {
		dir = abs
	}
	c.Data.Dir = dir
	c.Data.SnapshotDir = filepath.Join(dir, "article-content")
	c.Data.StatePath = filepath.Join(dir, "headlines.db")
	c.Data.IndexPath = filepath.Join(dir, "index.bleve")
}

func startLogging(lc config.LogConfig, level logging.LogLevel) error {
	switch {
	case lc.File != "":
		if err := logging.Setup(level, lc.File); err != nil {
			return fmt.Errorf("opening log file: %w", err)
		}
	case lc.Pretty:
		logging.SetupWithWriter(level, logging.Console(os.Stderr))
	default:
		if err := logging.Setup(level); err != nil {
			return err
		}
	}
	return nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
