package main

import (
	"fmt"
	"io"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/crosswalk-cli/internal/crosswalk"
	"github.com/sells-group/crosswalk-cli/internal/pipeline"
	"github.com/sells-group/crosswalk-cli/internal/tabular"
	"github.com/sells-group/crosswalk-cli/internal/workbook"
)

var allocateCmd = &cobra.Command{
	Use:   "allocate",
	Short: "Reallocate a county- or tract-keyed table onto the target ZCTAs",
	Long: `Reads a CSV, TSV or XLSX table keyed by county or tract FIPS, spreads every
value column onto ZCTAs with the weight table and writes the ZCTA table
with state and county geo-IDs. Missing cells are kept missing, never zero.
Output goes to a workbook when --out ends in .xlsx and to CSV otherwise.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		input, _ := cmd.Flags().GetString("input")
		sheet, _ := cmd.Flags().GetString("sheet")
		levelStr, _ := cmd.Flags().GetString("level")
		key, _ := cmd.Flags().GetString("key")
		dims, _ := cmd.Flags().GetString("dims")
		values, _ := cmd.Flags().GetString("values")
		weightsPath, _ := cmd.Flags().GetString("weights")
		popPath, _ := cmd.Flags().GetString("population")
		out, _ := cmd.Flags().GetString("out")

		level, err := crosswalk.ParseLevel(levelStr)
		if err != nil {
			return err
		}
		if key == "" {
			key = string(level)
		}
		rows, err := tabular.ReadRows(input, tabular.ReadOptions{Sheet: sheet})
		if err != nil {
			return err
		}
		src, err := tabular.ParseTable(rows, tabular.TableSpec{
			KeyColumn:    key,
			KeyWidth:     level.CodeWidth(),
			DimColumns:   splitAndTrim(dims),
			ValueColumns: splitAndTrim(values),
		})
		if err != nil {
			return err
		}
		name := strings.TrimSuffix(filepath.Base(input), filepath.Ext(input))
		if out == "" {
			out = name + "_zcta.csv"
		}

		e, err := setup(ctx, "allocate")
		if err != nil {
			return err
		}
		defer e.Close()

		return track(ctx, e.store, "allocate", len(e.targets), func(report *pipeline.Report) error {
			var wt crosswalk.WeightTable
			if weightsPath != "" {
				if wt, err = readWeightsFile(weightsPath, level); err != nil {
					return err
				}
			} else {
				var population map[string]float64
				if popPath != "" {
					if population, err = readPopulation(popPath); err != nil {
						return err
					}
				}
				var diags crosswalk.Diagnostics
				wt, diags, err = e.runner.Weights(ctx, level, population)
				report.AddDiagnostics(diags)
				if err != nil {
					return err
				}
			}

			batch, err := e.runner.Run(ctx, []pipeline.Job{{Name: name, Source: src, Weights: wt}})
			if err != nil {
				return err
			}
			res := batch.Results[0]
			report.AddTable(res.Name, res.Table)
			report.AddDiagnostics(batch.Diagnostics)
			logDiagnostics(batch.Diagnostics)

			if err := writeResult(out, report.RunID, res.Name, res.Table, &batch.GeoIDs, report.Diagnostics); err != nil {
				return err
			}
			fmt.Printf("Allocated %d source rows onto %d ZCTA rows in %s\n", len(src.Rows), len(res.Table.Rows), out)
			return nil
		})
	},
}

func init() {
	allocateCmd.Flags().String("input", "", "source table (.csv, .tsv, .txt or .xlsx)")
	allocateCmd.Flags().String("sheet", "", "worksheet name for .xlsx input (default first sheet)")
	allocateCmd.Flags().String("level", "county", "source level (county or tract)")
	allocateCmd.Flags().String("key", "", "key column (default the level name)")
	allocateCmd.Flags().String("dims", "", "comma-separated dimension columns carried through, e.g. year")
	allocateCmd.Flags().String("values", "", "comma-separated value columns (default all others)")
	allocateCmd.Flags().String("weights", "", "pre-built weights CSV instead of overlaying polygons")
	allocateCmd.Flags().String("population", "", "CSV with zcta5,population columns for refinement")
	allocateCmd.Flags().String("out", "", "output file, .xlsx or .csv (default <input>_zcta.csv)")
	_ = allocateCmd.MarkFlagRequired("input")
	rootCmd.AddCommand(allocateCmd)
}

// writeResult writes one ZCTA table as a workbook or a CSV.
func writeResult(path, runID, name string, t *crosswalk.Table, ids *crosswalk.GeoIDs, diags crosswalk.Diagnostics) error {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".xlsx":
		return workbook.Write(path, workbook.Book{
			RunID:       runID,
			Diagnostics: diags,
			Sheets: []workbook.Sheet{{
				Name:   name,
				Table:  t,
				GeoIDs: ids,
				Method: "area_weighted_allocation",
			}},
		})
	case ".csv", ".txt", "":
		return writeFileAtomic(path, func(w io.Writer) error { return tabular.WriteTable(w, t) })
	}
	return eris.Errorf("unsupported output format %q", filepath.Ext(path))
}
