package crosswalk

import (
	"fmt"
	"sort"
)

// Kind classifies a non-fatal condition found while building or applying
// weights.
type Kind string

// Diagnostic kinds.
const (
	// KindMissingOverlap marks a unit with no counterpart in the other set.
	KindMissingOverlap Kind = "missing_overlap"
	// KindStaleCacheMiss marks a ZCTA missing from the geo-ID cache.
	KindStaleCacheMiss Kind = "stale_cache_miss"
	// KindFallbackAllSources marks a fall back to every source unit after
	// target narrowing failed.
	KindFallbackAllSources Kind = "fallback_all_sources"
	// KindPopulationFallback marks a source whose area weights were kept
	// because its population mass was zero.
	KindPopulationFallback Kind = "population_fallback"
	// KindInvalidPopulation marks a negative or NaN population count.
	KindInvalidPopulation Kind = "invalid_population"
	// KindProjectionDistortion marks a unit whose projected area disagrees
	// with its geodesic area.
	KindProjectionDistortion Kind = "projection_distortion"
	// KindMissingTarget marks a target ZCTA absent from a produced table.
	KindMissingTarget Kind = "missing_target"
	// KindNonTargetZCTA marks an allocated ZCTA outside the target set that
	// was dropped from the output.
	KindNonTargetZCTA Kind = "non_target_zcta"
)

// Diagnostic is one non-fatal finding.
type Diagnostic struct {
	Kind   Kind   `json:"kind"`
	Level  Level  `json:"level,omitempty"`
	Code   string `json:"code"`
	Detail string `json:"detail,omitempty"`
}

func (d Diagnostic) String() string {
	s := fmt.Sprintf("%s %s %s", d.Kind, d.Level, d.Code)
	if d.Detail != "" {
		s += ": " + d.Detail
	}
	return s
}

// Diagnostics is an ordered list of findings.
type Diagnostics []Diagnostic

// Add appends a finding.
func (d *Diagnostics) Add(kind Kind, level Level, code, format string, args ...any) {
	*d = append(*d, Diagnostic{Kind: kind, Level: level, Code: code, Detail: fmt.Sprintf(format, args...)})
}

// Count returns the number of findings of a kind.
func (d Diagnostics) Count(kind Kind) int {
	n := 0
	for _, x := range d {
		if x.Kind == kind {
			n++
		}
	}
	return n
}

// Codes returns the sorted distinct codes of findings of a kind.
func (d Diagnostics) Codes(kind Kind) []string {
	seen := make(map[string]struct{})
	for _, x := range d {
		if x.Kind == kind {
			seen[x.Code] = struct{}{}
		}
	}
	out := make([]string, 0, len(seen))
	for c := range seen {
		out = append(out, c)
	}
	sort.Strings(out)
	return out
}
