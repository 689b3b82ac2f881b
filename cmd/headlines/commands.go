package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/pders01/headlines/internal/config"
	"github.com/pders01/headlines/internal/listing"
	"github.com/pders01/headlines/internal/logging"
	"github.com/pders01/headlines/internal/pipeline"
	"github.com/pders01/headlines/internal/search"
	"github.com/pders01/headlines/internal/storage"
)

var (
	articlesDate string
	searchLimit  int
	statusLimit  int
)

var articlesCmd = &cobra.Command{
	Use:   "articles",
	Short: "Fetch the articles logged on a date and write the snapshot",
	Args:  cobra.NoArgs,
	RunE:  runArticles,
}

var listingsCmd = &cobra.Command{
	Use:   "listings",
	Short: "Scrape the homepage and append today's listings",
	Args:  cobra.NoArgs,
	RunE:  runListings,
}

var searchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Search fetched articles",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runSearch,
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show recent article runs",
	Args:  cobra.NoArgs,
	RunE:  runStatus,
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration",
}

var configGenCmd = &cobra.Command{
	Use:               "generate [path]",
	Short:             "Write the default configuration file",
	Args:              cobra.MaximumNArgs(1),
	PersistentPreRunE: skipSetup,
	Run: func(cmd *cobra.Command, args []string) {
		configFile := defaultConfigFile()
		if len(args) > 0 {
			configFile = args[0]
		}

		if err := config.GenerateDefaultConfig(configFile); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to generate config: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Generated default configuration at: %s\n", configFile)
	},
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		out, err := config.Render(cfg)
		if err != nil {
			return err
		}
		_, err = cmd.OutOrStdout().Write(out)
		return err
	},
}

var versionCmd = &cobra.Command{
	Use:               "version",
	Short:             "Show version information",
	PersistentPreRunE: skipSetup,
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("headlines %s\n", Version)
		fmt.Println("news homepage logger and article archiver")
		fmt.Println("github.com/pders01/headlines")
	},
}

func init() {
	articlesCmd.Flags().StringVar(&articlesDate, "date", "", "listing date to fetch (YYYY-MM-DD, default yesterday UTC)")
	searchCmd.Flags().IntVar(&searchLimit, "limit", 10, "maximum number of results")
	statusCmd.Flags().IntVar(&statusLimit, "limit", 10, "number of runs to show")

	configCmd.AddCommand(configGenCmd, configShowCmd)
}

// skipSetup lets a command run without a readable configuration.
func skipSetup(cmd *cobra.Command, args []string) error { return nil }

func defaultConfigFile() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".config", "headlines", "config.toml")
}

// parseDate returns the UTC day named by value, or yesterday when empty.
func parseDate(value string, now time.Time) (time.Time, error) {
	if value == "" {
		return pipeline.Yesterday(now), nil
	}
	date, err := time.Parse(listing.DateLayout, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid --date %q, want YYYY-MM-DD", value)
	}
	return date, nil
}

func signalContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	return signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
}

// openSinks opens the state store and search index. Either may be nil when
// it cannot be opened; the run continues without it.
func openSinks() (*storage.Store, *search.BleveEngine, func()) {
	log := logging.Component("cli")

	store, err := storage.NewStore(cfg.Data.StatePath)
	if err != nil {
		log.Warnf("state store unavailable: %v", err)
	}

	idx, err := search.NewBleveEngine(cfg.Data.IndexPath)
	if err != nil {
		log.Warnf("search index unavailable: %v", err)
	}

	return store, idx, func() {
		if store != nil {
			_ = store.Close()
		}
		if idx != nil {
			_ = idx.Close()
		}
	}
}

func runArticles(cmd *cobra.Command, args []string) error {
	date, err := parseDate(articlesDate, time.Now())
	if err != nil {
		return err
	}

	ctx, cancel := signalContext(cmd)
	defer cancel()

	var opts []pipeline.Option
	store, idx, closeSinks := openSinks()
	defer closeSinks()
	if store != nil {
		opts = append(opts, pipeline.WithStore(store))
	}
	if idx != nil {
		opts = append(opts, pipeline.WithIndex(idx))
	}

	runner, err := pipeline.NewRunner(cfg, opts...)
	if err != nil {
		return err
	}

	summary, err := runner.Run(ctx, date)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if summary.Total == 0 {
		fmt.Fprintf(out, "No URLs to process for %s\n", summary.Date)
		return nil
	}
	fmt.Fprintf(out, "Saved %d articles (%d ok, %d failed) to %s\n",
		summary.Total, summary.Succeeded, summary.Failed, summary.SnapshotPath)
	return nil
}

func runListings(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext(cmd)
	defer cancel()

	runner, err := pipeline.NewRunner(cfg)
	if err != nil {
		return err
	}

	counts, err := runner.CollectListings(ctx, time.Now().UTC())

	prefixes := make([]string, 0, len(counts))
	for prefix := range counts {
		prefixes = append(prefixes, prefix)
	}
	sort.Strings(prefixes)
	for _, prefix := range prefixes {
		fmt.Fprintf(cmd.OutOrStdout(), "%-24s %d stories\n", prefix, counts[prefix])
	}

	return err
}

func runSearch(cmd *cobra.Command, args []string) error {
	idx, err := search.NewBleveEngine(cfg.Data.IndexPath)
	if err != nil {
		return fmt.Errorf("opening search index: %w", err)
	}
	defer idx.Close()

	query := strings.Join(args, " ")
	results, err := idx.Search(query, searchLimit)
	if err != nil {
		return err
	}

	fmt.Fprintln(cmd.OutOrStdout(), renderResults(query, results))
	return nil
}

func runStatus(cmd *cobra.Command, args []string) error {
	store, err := storage.NewStore(cfg.Data.StatePath)
	if err != nil {
		return fmt.Errorf("opening state store: %w", err)
	}
	defer store.Close()

	runs, err := store.ListRuns(statusLimit)
	if err != nil {
		return fmt.Errorf("listing runs: %w", err)
	}
	tracked, err := store.CountArticles()
	if err != nil {
		return fmt.Errorf("counting articles: %w", err)
	}

	fmt.Fprintln(cmd.OutOrStdout(), renderRuns(runs, tracked))
	return nil
}
