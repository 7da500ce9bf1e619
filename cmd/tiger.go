package main

import (
	"context"
	"fmt"
	"os/signal"
	"strings"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/crosswalk-cli/internal/crosswalk"
	"github.com/sells-group/crosswalk-cli/internal/db"
	"github.com/sells-group/crosswalk-cli/internal/tiger"
)

var tigerCmd = &cobra.Command{
	Use:   "tiger",
	Short: "Manage TIGER/Line boundaries in PostGIS",
}

var tigerLoadCmd = &cobra.Command{
	Use:   "load",
	Short: "Load TIGER/Line shapefiles into PostGIS",
	Long: `Downloads Census TIGER/Line ZCTA, county and tract shapefiles and loads them
into tiger_data.* tables for the postgis boundary source.

By default loads every level for all 50 states + DC.
Use --states to restrict tract downloads, --levels for specific levels.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if err := cfg.Validate("tiger"); err != nil {
			return err
		}
		pool, err := db.Open(ctx, cfg.Boundary.DatabaseURL, cfg.Boundary.Pool)
		if err != nil {
			return err
		}
		defer pool.Close()

		log := zap.L().With(zap.String("command", "tiger load"))

		// Parse flags.
		statesStr, _ := cmd.Flags().GetString("states")
		levelsStr, _ := cmd.Flags().GetString("levels")
		year, _ := cmd.Flags().GetInt("year")
		concurrency, _ := cmd.Flags().GetInt("concurrency")
		incremental, _ := cmd.Flags().GetBool("incremental")
		dryRun, _ := cmd.Flags().GetBool("dry-run")

		opts := tiger.LoadOptions{
			Year:        year,
			TempDir:     cfg.Tiger.CacheDir,
			BaseURL:     cfg.Tiger.BaseURL,
			Concurrency: concurrency,
			BatchSize:   cfg.Tiger.BatchSize,
			Incremental: incremental,
			DryRun:      dryRun,
		}

		if statesStr != "" {
			opts.States = toUpper(splitAndTrim(statesStr))
		} else if len(cfg.Geography.States) > 0 {
			opts.States = toUpper(cfg.Geography.States)
		}
		for _, l := range splitAndTrim(levelsStr) {
			level, err := crosswalk.ParseLevel(l)
			if err != nil {
				return err
			}
			opts.Levels = append(opts.Levels, level)
		}

		// Use config values as defaults.
		if opts.Year == 0 {
			opts.Year = cfg.Tiger.Year
		}
		if opts.Concurrency == 0 {
			opts.Concurrency = cfg.Tiger.Concurrency
		}

		log.Info("starting TIGER boundary load",
			zap.Int("year", opts.Year),
			zap.Strings("states", opts.States),
			zap.Bool("incremental", opts.Incremental),
			zap.Bool("dry_run", opts.DryRun),
			zap.Int("concurrency", opts.Concurrency),
		)

		if err := tiger.Load(ctx, pool, newFetcher(), opts); err != nil {
			return eris.Wrap(err, "tiger load")
		}

		fmt.Println("TIGER boundary load complete")
		return nil
	},
}

var tigerStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show TIGER boundary load status",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		if err := cfg.Validate("tiger"); err != nil {
			return err
		}
		pool, err := db.Open(ctx, cfg.Boundary.DatabaseURL, cfg.Boundary.Pool)
		if err != nil {
			return err
		}
		defer pool.Close()
		return printTigerStatus(ctx, pool)
	},
}

func init() {
	tigerLoadCmd.Flags().String("states", "", "comma-separated state abbreviations (default: geography.states or all 50 + DC)")
	tigerLoadCmd.Flags().Int("year", 0, "TIGER/Line year (default: from config or 2024)")
	tigerLoadCmd.Flags().String("levels", "", "comma-separated levels: zcta, county, tract (default: all)")
	tigerLoadCmd.Flags().Bool("incremental", true, "skip already-loaded state/table/year combos")
	tigerLoadCmd.Flags().Bool("dry-run", false, "download and validate without loading")
	tigerLoadCmd.Flags().Int("concurrency", 0, "parallel state downloads (default: from config or 3)")

	tigerCmd.AddCommand(tigerLoadCmd)
	tigerCmd.AddCommand(tigerStatusCmd)
	rootCmd.AddCommand(tigerCmd)
}

// printTigerStatus displays the current TIGER boundary load status.
func printTigerStatus(ctx context.Context, pool db.Pool) error {
	status, err := tiger.LoadStatus(ctx, pool)
	if err != nil {
		return eris.Wrap(err, "tiger status")
	}

	if len(status) == 0 {
		fmt.Println("No TIGER data loaded yet")
		return nil
	}

	fmt.Printf("%-6s %-6s %-15s %-6s %10s %12s %s\n",
		"FIPS", "State", "Table", "Year", "Rows", "Duration", "Loaded At")
	fmt.Println(strings.Repeat("-", 80))

	for _, s := range status {
		abbr, ok := tiger.AbbrFromFIPS(s.StateFIPS)
		if !ok {
			abbr = strings.ToUpper(s.StateFIPS)
		}
		fmt.Printf("%-6s %-6s %-15s %-6d %10d %10dms %s\n",
			s.StateFIPS, abbr, s.TableName, s.Year,
			s.RowCount, s.DurationMs, s.LoadedAt.Format("2006-01-02 15:04"))
	}

	return nil
}

// toUpper uppercases all strings in a slice.
func toUpper(ss []string) []string {
	out := make([]string, len(ss))
	for i, s := range ss {
		out[i] = strings.ToUpper(s)
	}
	return out
}
