package main

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/crosswalk-cli/internal/crosswalk"
	"github.com/sells-group/crosswalk-cli/internal/db"
	"github.com/sells-group/crosswalk-cli/internal/fetcher"
	"github.com/sells-group/crosswalk-cli/internal/pipeline"
	"github.com/sells-group/crosswalk-cli/internal/tabular"
)

var weightsCmd = &cobra.Command{
	Use:   "weights",
	Short: "Build source-to-ZCTA weight tables",
	Long: `Overlays county or tract polygons on the target ZCTAs and writes the
area weights, optionally refined with a ZCTA population file, as CSV.
With --postgis the table is also upserted into crosswalk.weights.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		levelStr, _ := cmd.Flags().GetString("level")
		popPath, _ := cmd.Flags().GetString("population")
		out, _ := cmd.Flags().GetString("out")
		export, _ := cmd.Flags().GetBool("postgis")

		level, err := crosswalk.ParseLevel(levelStr)
		if err != nil {
			return err
		}
		if level != crosswalk.LevelCounty && level != crosswalk.LevelTract {
			return eris.Errorf("weights: %s is not a source level", level)
		}
		if out == "" {
			out = filepath.Join(cfg.Output.WeightsDir, string(level)+"_weights.csv")
		}

		var population map[string]float64
		if popPath != "" {
			population, err = readPopulation(popPath)
			if err != nil {
				return err
			}
		}

		e, err := setup(ctx, "weights")
		if err != nil {
			return err
		}
		defer e.Close()

		return track(ctx, e.store, "weights", len(e.targets), func(report *pipeline.Report) error {
			wt, diags, err := e.runner.Weights(ctx, level, population)
			report.AddDiagnostics(diags)
			if err != nil {
				return err
			}
			if err := crosswalk.Validate(wt); err != nil {
				return err
			}
			if err := writeWeightsFile(out, wt); err != nil {
				return err
			}
			if export {
				n, err := exportWeights(ctx, wt)
				if err != nil {
					return err
				}
				fmt.Printf("Exported %d weights to %s\n", n, tabular.WeightsTable)
			}
			logDiagnostics(diags)
			fmt.Printf("Wrote %d %s weights to %s (%d diagnostics)\n", len(wt.Rows), level, out, len(diags))
			return nil
		})
	},
}

func init() {
	weightsCmd.Flags().String("level", "county", "source level (county or tract)")
	weightsCmd.Flags().String("population", "", "CSV with zcta5,population columns for refinement")
	weightsCmd.Flags().String("out", "", "output CSV (default <output.weights_dir>/<level>_weights.csv)")
	weightsCmd.Flags().Bool("postgis", false, "also upsert into the PostGIS weights table")
	rootCmd.AddCommand(weightsCmd)
}

func readPopulation(path string) (map[string]float64, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrap(err, "open population file")
	}
	defer f.Close() //nolint:errcheck
	return tabular.ReadPopulation(f)
}

func readWeightsFile(path string, level crosswalk.Level) (crosswalk.WeightTable, error) {
	f, err := os.Open(path)
	if err != nil {
		return crosswalk.WeightTable{}, eris.Wrap(err, "open weights file")
	}
	defer f.Close() //nolint:errcheck
	return tabular.ReadWeights(f, level)
}

func writeWeightsFile(path string, wt crosswalk.WeightTable) error {
	return writeFileAtomic(path, func(w io.Writer) error { return tabular.WriteWeights(w, wt) })
}

// writeFileAtomic renders into memory and replaces path in one rename.
func writeFileAtomic(path string, render func(io.Writer) error) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return eris.Wrap(err, "create output dir")
	}
	var buf bytes.Buffer
	if err := render(&buf); err != nil {
		return err
	}
	_, err := fetcher.WriteAtomic(path, &buf)
	return err
}

func exportWeights(ctx context.Context, wt crosswalk.WeightTable) (int64, error) {
	if cfg.Boundary.DatabaseURL == "" {
		return 0, eris.New("weights: --postgis needs boundary.database_url")
	}
	pool, err := db.Open(ctx, cfg.Boundary.DatabaseURL, cfg.Boundary.Pool)
	if err != nil {
		return 0, err
	}
	defer pool.Close()
	if err := tabular.EnsureWeightsTable(ctx, pool); err != nil {
		return 0, err
	}
	return tabular.ExportWeights(ctx, pool, wt)
}

func logDiagnostics(diags crosswalk.Diagnostics) {
	log := zap.L().With(zap.String("component", "cli"))
	for _, d := range diags {
		log.Warn("diagnostic",
			zap.String("kind", string(d.Kind)),
			zap.String("level", string(d.Level)),
			zap.String("code", d.Code),
			zap.String("detail", d.Detail),
		)
	}
}
