package pipeline

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"

	"github.com/sells-group/crosswalk-cli/internal/crosswalk"
)

// TableSummary describes one produced table.
type TableSummary struct {
	Name    string   `json:"name"`
	Rows    int      `json:"rows"`
	Columns []string `json:"columns"`
}

// Report summarizes a run for the run log and the CLI.
type Report struct {
	RunID       string                 `json:"run_id"`
	Command     string                 `json:"command"`
	StartedAt   time.Time              `json:"started_at"`
	FinishedAt  time.Time              `json:"finished_at"`
	Targets     int                    `json:"targets"`
	Tables      []TableSummary         `json:"tables,omitempty"`
	Counts      map[crosswalk.Kind]int `json:"diagnostic_counts,omitempty"`
	Diagnostics crosswalk.Diagnostics  `json:"diagnostics,omitempty"`
}

// NewReport starts a report. An empty runID gets a fresh UUID.
func NewReport(runID, command string, targets int) *Report {
	if runID == "" {
		runID = uuid.NewString()
	}
	return &Report{RunID: runID, Command: command, StartedAt: time.Now().UTC(), Targets: targets}
}

// AddTable records a produced table.
func (r *Report) AddTable(name string, t *crosswalk.Table) {
	if t == nil {
		return
	}
	cols := append([]string{t.KeyColumn}, t.DimColumns...)
	cols = append(cols, t.ValueColumns...)
	r.Tables = append(r.Tables, TableSummary{Name: name, Rows: len(t.Rows), Columns: cols})
}

// AddDiagnostics appends findings and updates the per-kind counts.
func (r *Report) AddDiagnostics(d crosswalk.Diagnostics) {
	if r.Counts == nil {
		r.Counts = make(map[crosswalk.Kind]int)
	}
	for _, x := range d {
		r.Counts[x.Kind]++
	}
	r.Diagnostics = append(r.Diagnostics, d...)
}

// Finish stamps the end time and encodes the report.
func (r *Report) Finish() ([]byte, error) {
	r.FinishedAt = time.Now().UTC()
	b, err := json.Marshal(r)
	if err != nil {
		return nil, eris.Wrap(err, "pipeline: encode report")
	}
	return b, nil
}
