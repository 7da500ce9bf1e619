package main

import (
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/crosswalk-cli/internal/acs"
	"github.com/sells-group/crosswalk-cli/internal/pipeline"
	"github.com/sells-group/crosswalk-cli/internal/workbook"
)

var refreshCmd = &cobra.Command{
	Use:   "refresh",
	Short: "Pull ACS estimates for the target ZCTAs into a workbook",
	Long: `Pulls ACS 5-year estimates natively by ZCTA and ACS 1-year county
estimates allocated onto ZCTAs with population-refined weights, for every
published vintage between census.start_year and census.end_year. An end year
of 0 means the newest published 5-year vintage. Writes one
sheet per series plus diagnostics and a data dictionary.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		out, _ := cmd.Flags().GetString("out")
		startYear, _ := cmd.Flags().GetInt("start-year")
		endYear, _ := cmd.Flags().GetInt("end-year")
		mappingPath, _ := cmd.Flags().GetString("vintages")

		if out == "" {
			out = cfg.Output.Workbook
		}
		if startYear != 0 {
			cfg.Census.StartYear = startYear
		}
		if endYear != 0 {
			cfg.Census.EndYear = endYear
		}

		vintages, err := loadVintages(mappingPath)
		if err != nil {
			return err
		}

		e, err := setup(ctx, "refresh")
		if err != nil {
			return err
		}
		defer e.Close()

		refresher := pipeline.NewRefresher(newCensus(), vintages, e.runner, pipeline.RefreshOptions{
			StartYear: cfg.Census.StartYear,
			EndYear:   cfg.Census.EndYear,
		})

		return track(ctx, e.store, "refresh", len(e.targets), func(report *pipeline.Report) error {
			res, err := refresher.Refresh(ctx)
			if err != nil {
				return err
			}
			report.AddTable(pipeline.TableACS5Native, res.Native)
			report.AddTable(pipeline.TableACS1Allocated, res.Allocated)
			report.AddDiagnostics(res.Diagnostics)
			logDiagnostics(res.Diagnostics)

			if err := os.MkdirAll(filepath.Dir(out), 0o755); err != nil {
				return eris.Wrap(err, "create workbook dir")
			}
			if err := workbook.Write(out, workbook.Book{
				RunID:       report.RunID,
				Sheets:      res.Sheets(),
				Diagnostics: res.Diagnostics,
			}); err != nil {
				return err
			}
			fmt.Printf("Wrote %s (run %s, %d diagnostics)\n", out, report.RunID, len(res.Diagnostics))
			return nil
		})
	},
}

func init() {
	refreshCmd.Flags().String("out", "", "workbook path (default output.workbook)")
	refreshCmd.Flags().Int("start-year", 0, "first vintage (default census.start_year)")
	refreshCmd.Flags().Int("end-year", 0, "last vintage (default census.end_year; 0 for the newest)")
	refreshCmd.Flags().String("vintages", "", "YAML variable mapping replacing the built-in one")
	rootCmd.AddCommand(refreshCmd)
}

// loadVintages reads the mapping file at path, or the embedded mapping when
// path is empty.
func loadVintages(path string) (*acs.Vintages, error) {
	if path == "" {
		return acs.DefaultVintages()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrap(err, "read vintage mapping")
	}
	return acs.LoadVintages(data)
}
