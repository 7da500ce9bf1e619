package crosswalk

import (
	"math"
)

// Weight sums must fall inside [1-SumTolerance, 1+SumTolerance] after rounding
// to six decimals.
const SumTolerance = 0.01

// weightSlack absorbs rounding in individually computed weights.
const weightSlack = 1e-9

// Validate checks that the weights of every source unit sum to 1 within
// SumTolerance and that each weight lies in [0, 1].
func Validate(weights WeightTable) error {
	return ValidateGroups(weights.Rows, func(w Weight) string { return w.Source })
}

// ValidateGroups checks rows grouped by the given key. It fails with a
// *ValidationError listing every offending group when a weight is outside
// [0, 1] or when a group's sum is zero, non-finite or outside tolerance.
func ValidateGroups(rows []Weight, group func(Weight) string) error {
	bad := make(map[string]float64)
	for _, r := range rows {
		if math.IsNaN(r.Weight) || r.Weight < -weightSlack || r.Weight > 1+weightSlack {
			bad[group(r)+"->"+r.ZCTA] = r.Weight
		}
	}
	if len(bad) > 0 {
		return &ValidationError{Reason: "weight outside [0, 1]", Groups: bad}
	}

	sums := make(map[string]float64)
	for _, r := range rows {
		sums[group(r)] += r.Weight
	}
	for g, s := range sums {
		rounded := math.Round(s*1e6) / 1e6
		switch {
		case math.IsNaN(rounded) || math.IsInf(rounded, 0):
			bad[g] = rounded
		case rounded == 0:
			bad[g] = 0
		case rounded < 1-SumTolerance || rounded > 1+SumTolerance:
			bad[g] = rounded
		}
	}
	if len(bad) > 0 {
		return &ValidationError{Reason: "group sum outside 1 +/- 0.01", Groups: bad}
	}
	return nil
}
