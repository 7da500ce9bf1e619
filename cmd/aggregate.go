package main

import (
	"fmt"
	"io"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/crosswalk-cli/internal/pipeline"
	"github.com/sells-group/crosswalk-cli/internal/tabular"
	"github.com/sells-group/crosswalk-cli/internal/zcta"
)

var aggregateCmd = &cobra.Command{
	Use:   "aggregate",
	Short: "Count point records per target ZCTA and month",
	Long: `Reads point records (for example permits or sales) carrying a ZIP or
coordinates and a date, assigns each to a ZCTA by ZIP or point-in-polygon,
and writes per-(zcta5, period) record counts and optional value sums.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		input, _ := cmd.Flags().GetString("input")
		sheet, _ := cmd.Flags().GetString("sheet")
		spec := tabular.PointSpec{}
		spec.ZIP, _ = cmd.Flags().GetString("zip-col")
		spec.Lon, _ = cmd.Flags().GetString("lon-col")
		spec.Lat, _ = cmd.Flags().GetString("lat-col")
		spec.Date, _ = cmd.Flags().GetString("date-col")
		spec.Value, _ = cmd.Flags().GetString("value-col")
		out, _ := cmd.Flags().GetString("out")

		rows, err := tabular.ReadRows(input, tabular.ReadOptions{Sheet: sheet})
		if err != nil {
			return err
		}
		parsed, err := tabular.ParsePoints(rows, spec)
		if err != nil {
			return err
		}

		e, err := setup(ctx, "aggregate")
		if err != nil {
			return err
		}
		defer e.Close()

		return track(ctx, e.store, "aggregate", len(e.targets), func(report *pipeline.Report) error {
			var loc *zcta.Locator
			if spec.Lon != "" && spec.Lat != "" {
				polys, err := e.provider.LoadTargetPolygons(ctx, e.targets)
				if err != nil {
					return err
				}
				if loc, err = zcta.NewLocator(polys); err != nil {
					return err
				}
			}
			res := zcta.Aggregate(parsed.Points, loc, e.targets, cfg.Geography.ZIPToZCTAOverrides, spec.Value)
			report.AddTable("points", res.Table)

			zap.L().Info("points aggregated",
				zap.Int("points", len(parsed.Points)),
				zap.Int("skipped", parsed.Skipped),
				zap.Int("unplaced", res.Unplaced),
				zap.Int("untracked", res.Untracked),
			)
			if err := writeFileAtomic(out, func(w io.Writer) error { return tabular.WriteTable(w, res.Table) }); err != nil {
				return err
			}
			fmt.Printf("Wrote %d (zcta5, period) rows to %s; %d unplaced, %d outside targets\n",
				len(res.Table.Rows), out, res.Unplaced+parsed.Skipped, res.Untracked)
			return nil
		})
	},
}

func init() {
	aggregateCmd.Flags().String("input", "", "point records (.csv, .tsv, .txt or .xlsx)")
	aggregateCmd.Flags().String("sheet", "", "worksheet name for .xlsx input")
	aggregateCmd.Flags().String("zip-col", "", "ZIP column")
	aggregateCmd.Flags().String("lon-col", "", "longitude column")
	aggregateCmd.Flags().String("lat-col", "", "latitude column")
	aggregateCmd.Flags().String("date-col", "date", "date column")
	aggregateCmd.Flags().String("value-col", "", "numeric column summed per cell")
	aggregateCmd.Flags().String("out", "points_zcta.csv", "output CSV")
	_ = aggregateCmd.MarkFlagRequired("input")
	rootCmd.AddCommand(aggregateCmd)
}
