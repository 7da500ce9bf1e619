// Package acs maps American Community Survey variables to stable field
// names per vintage and turns Census API responses into measure tables.
package acs

import (
	_ "embed"
	"regexp"
	"sort"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
)

//go:embed vintages.yaml
var defaultVintages []byte

var variablePattern = regexp.MustCompile(`^[A-Z][A-Z0-9]*_[A-Z0-9]+(_[0-9]{3})?[EM]$`)

// Mapping maps field names to the variables summed into them for one dataset
// and an inclusive year range. To == 0 means open-ended.
type Mapping struct {
	Dataset string              `yaml:"-"`
	From    int                 `yaml:"from"`
	To      int                 `yaml:"to"`
	Fields  map[string][]string `yaml:"fields"`
}

// Covers reports whether year falls inside the mapping's range.
func (m Mapping) Covers(year int) bool {
	return year >= m.From && (m.To == 0 || year <= m.To)
}

// FieldNames returns the field names in sorted order.
func (m Mapping) FieldNames() []string {
	names := make([]string, 0, len(m.Fields))
	for f := range m.Fields {
		names = append(names, f)
	}
	sort.Strings(names)
	return names
}

// Variables returns every variable the mapping reads, sorted and distinct.
func (m Mapping) Variables() []string {
	seen := make(map[string]struct{})
	var out []string
	for _, vars := range m.Fields {
		for _, v := range vars {
			if _, ok := seen[v]; ok {
				continue
			}
			seen[v] = struct{}{}
			out = append(out, v)
		}
	}
	sort.Strings(out)
	return out
}

// With returns a copy of m with field mapped to vars. Fields discovered at
// run time (label-matched groups) are added this way.
func (m Mapping) With(field string, vars []string) Mapping {
	out := m
	out.Fields = make(map[string][]string, len(m.Fields)+1)
	for k, v := range m.Fields {
		out.Fields[k] = v
	}
	out.Fields[field] = append([]string(nil), vars...)
	return out
}

// Vintages holds the mappings of every dataset.
type Vintages struct {
	byDataset map[string][]Mapping
}

type vintageFile struct {
	Datasets map[string][]Mapping `yaml:"datasets"`
}

// DefaultVintages returns the embedded mapping file.
func DefaultVintages() (*Vintages, error) {
	return LoadVintages(defaultVintages)
}

// LoadVintages parses and validates a mapping file: fields must be non-empty,
// variable codes well-formed and ranges of a dataset disjoint.
func LoadVintages(data []byte) (*Vintages, error) {
	var f vintageFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, eris.Wrap(err, "acs: parse vintages")
	}
	if len(f.Datasets) == 0 {
		return nil, eris.New("acs: vintages define no datasets")
	}

	v := &Vintages{byDataset: make(map[string][]Mapping, len(f.Datasets))}
	for ds, ranges := range f.Datasets {
		for i := range ranges {
			m := &ranges[i]
			m.Dataset = ds
			if m.To != 0 && m.To < m.From {
				return nil, eris.Errorf("acs: %s range %d-%d is inverted", ds, m.From, m.To)
			}
			if len(m.Fields) == 0 {
				return nil, eris.Errorf("acs: %s range from %d has no fields", ds, m.From)
			}
			for field, vars := range m.Fields {
				if len(vars) == 0 {
					return nil, eris.Errorf("acs: %s field %s has no variables", ds, field)
				}
				for _, code := range vars {
					if !variablePattern.MatchString(code) {
						return nil, eris.Errorf("acs: %s field %s: malformed variable %q", ds, field, code)
					}
				}
			}
		}
		sort.Slice(ranges, func(i, j int) bool { return ranges[i].From < ranges[j].From })
		for i := 1; i < len(ranges); i++ {
			prev := ranges[i-1]
			if prev.To == 0 || prev.To >= ranges[i].From {
				return nil, eris.Errorf("acs: %s ranges from %d and %d overlap", ds, prev.From, ranges[i].From)
			}
		}
		v.byDataset[ds] = ranges
	}
	return v, nil
}

// Resolve returns the mapping of a dataset for a year.
func (v *Vintages) Resolve(dataset string, year int) (Mapping, error) {
	ranges, ok := v.byDataset[dataset]
	if !ok {
		return Mapping{}, eris.Errorf("acs: unknown dataset %q", dataset)
	}
	for _, m := range ranges {
		if m.Covers(year) {
			return m, nil
		}
	}
	return Mapping{}, eris.Errorf("acs: no %s variable mapping for %d", dataset, year)
}

// Datasets returns the configured dataset names, sorted.
func (v *Vintages) Datasets() []string {
	out := make([]string, 0, len(v.byDataset))
	for ds := range v.byDataset {
		out = append(out, ds)
	}
	sort.Strings(out)
	return out
}
