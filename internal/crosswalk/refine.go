package crosswalk

import (
	"math"

	"github.com/rotisserie/eris"
)

// RefineWithPopulation scales each area weight by the population of its ZCTA
// and renormalizes per source unit. Missing, negative and NaN populations
// count as zero. A source whose weighted sum is zero or non-finite keeps its
// area weights unchanged and is reported as a PopulationFallback diagnostic.
func RefineWithPopulation(area WeightTable, population map[string]float64) (WeightTable, Diagnostics, error) {
	if err := Validate(area); err != nil {
		return WeightTable{}, nil, eris.Wrap(err, "crosswalk: refine input")
	}

	var diags Diagnostics
	reported := make(map[string]struct{})
	pop := func(zcta string) float64 {
		p, ok := population[zcta]
		if !ok {
			return 0
		}
		if math.IsNaN(p) || p < 0 {
			if _, done := reported[zcta]; !done {
				reported[zcta] = struct{}{}
				diags.Add(KindInvalidPopulation, LevelZCTA, zcta, "population %g treated as 0", p)
			}
			return 0
		}
		return p
	}

	groups := make(map[string][]int)
	var order []string
	for i, r := range area.Rows {
		if _, ok := groups[r.Source]; !ok {
			order = append(order, r.Source)
		}
		groups[r.Source] = append(groups[r.Source], i)
	}

	out := WeightTable{Level: area.Level, Rows: make([]Weight, len(area.Rows))}
	copy(out.Rows, area.Rows)

	scaled := make([]float64, 0, 16)
	for _, src := range order {
		idx := groups[src]
		scaled = scaled[:0]
		var sum float64
		for _, i := range idx {
			v := area.Rows[i].Weight * pop(area.Rows[i].ZCTA)
			scaled = append(scaled, v)
			sum += v
		}
		if sum <= 0 || math.IsNaN(sum) || math.IsInf(sum, 0) {
			diags.Add(KindPopulationFallback, area.Level, src, "population mass %g, area weights kept", sum)
			continue
		}
		for k, i := range idx {
			out.Rows[i].Weight = scaled[k] / sum
		}
	}

	if err := Validate(out); err != nil {
		return WeightTable{}, diags, eris.Wrap(err, "crosswalk: refine output")
	}
	return out, diags, nil
}
