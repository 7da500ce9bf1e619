package tabular

import (
	"encoding/csv"
	"io"
	"math"
	"sort"
	"strings"

	"github.com/jszwec/csvutil"
	"github.com/rotisserie/eris"

	"github.com/sells-group/crosswalk-cli/internal/crosswalk"
	"github.com/sells-group/crosswalk-cli/internal/zcta"
)

// WriteWeights writes a weight table as CSV with columns source, zcta5 and
// weight.
func WriteWeights(w io.Writer, wt crosswalk.WeightTable) error {
	cw := csv.NewWriter(w)
	enc := csvutil.NewEncoder(cw)
	if err := enc.EncodeHeader(crosswalk.Weight{}); err != nil {
		return eris.Wrap(err, "tabular: encode weights header")
	}
	for _, r := range wt.Rows {
		if err := enc.Encode(r); err != nil {
			return eris.Wrapf(err, "tabular: encode weight %s->%s", r.Source, r.ZCTA)
		}
	}
	cw.Flush()
	return eris.Wrap(cw.Error(), "tabular: flush weights")
}

// ReadWeights reads a weight CSV written by WriteWeights or an external
// tool using the same header. Codes are zero-padded to the level's width.
func ReadWeights(r io.Reader, level crosswalk.Level) (crosswalk.WeightTable, error) {
	dec, err := csvutil.NewDecoder(csv.NewReader(r))
	if err != nil {
		return crosswalk.WeightTable{}, eris.Wrap(err, "tabular: read weights header")
	}
	wt := crosswalk.WeightTable{Level: level}
	width := level.CodeWidth()
	for {
		var w crosswalk.Weight
		err := dec.Decode(&w)
		if err == io.EOF {
			break
		}
		if err != nil {
			return crosswalk.WeightTable{}, eris.Wrap(err, "tabular: decode weight")
		}
		w.Source = pad(w.Source, width)
		w.ZCTA = zcta.PadZIP(w.ZCTA)
		wt.Rows = append(wt.Rows, w)
	}
	return wt, nil
}

type populationRecord struct {
	ZCTA       string `csv:"zcta5"`
	Population string `csv:"population"`
}

// ReadPopulation reads zcta5,population rows. Blank or non-numeric counts
// are kept as NaN so refinement can report them.
func ReadPopulation(r io.Reader) (map[string]float64, error) {
	dec, err := csvutil.NewDecoder(csv.NewReader(r))
	if err != nil {
		return nil, eris.Wrap(err, "tabular: read population header")
	}
	out := make(map[string]float64)
	for {
		var rec populationRecord
		err := dec.Decode(&rec)
		if err == io.EOF {
			return out, nil
		}
		if err != nil {
			return nil, eris.Wrap(err, "tabular: decode population")
		}
		if strings.TrimSpace(rec.ZCTA) == "" {
			continue
		}
		v, ok := ParseNumber(rec.Population)
		if !ok {
			v = math.NaN()
		}
		out[zcta.PadZIP(rec.ZCTA)] = v
	}
}

// WritePopulation writes a population map sorted by ZCTA.
func WritePopulation(w io.Writer, pop map[string]float64) error {
	keys := make([]string, 0, len(pop))
	for k := range pop {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	recs := make([]populationRecord, len(keys))
	for i, k := range keys {
		recs[i] = populationRecord{ZCTA: k, Population: FormatNumber(pop[k])}
	}
	b, err := csvutil.Marshal(recs)
	if err != nil {
		return eris.Wrap(err, "tabular: marshal population")
	}
	_, err = w.Write(b)
	return eris.Wrap(err, "tabular: write population")
}

func pad(code string, width int) string {
	code = strings.TrimSpace(code)
	if width > 0 && len(code) < width {
		return strings.Repeat("0", width-len(code)) + code
	}
	return code
}
