package pipeline

import (
	"github.com/rotisserie/eris"

	"github.com/sells-group/crosswalk-cli/internal/crosswalk"
)

// SmokeCheck fails on an empty or non-ZCTA table and reports every target
// ZCTA the table lacks as a MissingTarget diagnostic.
func SmokeCheck(name string, t *crosswalk.Table, targets []string) (crosswalk.Diagnostics, error) {
	if t == nil || len(t.Rows) == 0 {
		return nil, eris.Errorf("pipeline: %s produced an empty table", name)
	}
	if t.KeyColumn != crosswalk.KeyZCTA {
		return nil, eris.Errorf("pipeline: %s is keyed by %s, not %s", name, t.KeyColumn, crosswalk.KeyZCTA)
	}
	have := make(map[string]struct{}, len(t.Rows))
	for _, r := range t.Rows {
		have[r.Key] = struct{}{}
	}
	var diags crosswalk.Diagnostics
	for _, z := range targets {
		if _, ok := have[z]; !ok {
			diags.Add(crosswalk.KindMissingTarget, crosswalk.LevelZCTA, z, "absent from %s", name)
		}
	}
	return diags, nil
}
