package census

import (
	"context"
	"net/http"
	"sort"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// ZCTAStateCutoff is the last vintage whose ZCTA queries accept an
// in=state clause.
const ZCTAStateCutoff = 2018

const zctaChunk = 200

// AvailableYears returns the years in [from, to] for which dataset is
// published.
func AvailableYears(ctx context.Context, c Client, dataset string, from, to int) ([]int, error) {
	var years []int
	for y := from; y <= to; y++ {
		ok, err := c.DatasetExists(ctx, y, dataset)
		if err != nil {
			return nil, err
		}
		if ok {
			years = append(years, y)
		}
	}
	return years, nil
}

// LatestYear walks back from year until a published vintage is found.
func LatestYear(ctx context.Context, c Client, dataset string, year, maxBack int) (int, error) {
	for y := year; y > year-maxBack; y-- {
		ok, err := c.DatasetExists(ctx, y, dataset)
		if err != nil {
			return 0, err
		}
		if ok {
			return y, nil
		}
	}
	return 0, eris.Errorf("census: no %s vintage within %d years of %d", dataset, maxBack, year)
}

// table accumulates responses that share a header.
type table struct {
	rows [][]string
}

func (t *table) add(resp [][]string) error {
	if len(resp) == 0 {
		return nil
	}
	if t.rows == nil {
		t.rows = append(t.rows, resp[0])
	} else if strings.Join(t.rows[0], ",") != strings.Join(resp[0], ",") {
		return eris.Errorf("census: response header %v differs from %v", resp[0], t.rows[0])
	}
	t.rows = append(t.rows, resp[1:]...)
	return nil
}

// FetchCounties retrieves vars for 5-digit county FIPS codes with one query
// per state. When a state query is rejected the counties are retried one by
// one and rejected counties are skipped with a warning.
func FetchCounties(ctx context.Context, c Client, year int, dataset string, vars, counties []string) ([][]string, error) {
	log := zap.L().With(zap.String("component", "census"), zap.String("dataset", dataset), zap.Int("year", year))

	byState := make(map[string][]string)
	for _, fips := range counties {
		if len(fips) != 5 {
			return nil, eris.Errorf("census: county code %q is not 5 digits", fips)
		}
		byState[fips[:2]] = append(byState[fips[:2]], fips[2:])
	}
	states := make([]string, 0, len(byState))
	for s := range byState {
		states = append(states, s)
	}
	sort.Strings(states)

	var out table
	for _, st := range states {
		codes := byState[st]
		sort.Strings(codes)
		q := Query{Year: year, Dataset: dataset, Variables: vars, For: "county:" + strings.Join(codes, ","), In: "state:" + st}
		resp, err := c.Get(ctx, q)
		if err == nil {
			if err := out.add(resp); err != nil {
				return nil, err
			}
			continue
		}
		if !IsStatus(err, http.StatusBadRequest) {
			return nil, eris.Wrapf(err, "census: counties of state %s", st)
		}
		for _, code := range codes {
			q.For = "county:" + code
			resp, err := c.Get(ctx, q)
			if IsStatus(err, http.StatusBadRequest) {
				log.Warn("census: skipping county", zap.String("county", st+code), zap.Error(err))
				continue
			}
			if err != nil {
				return nil, eris.Wrapf(err, "census: county %s%s", st, code)
			}
			if err := out.add(resp); err != nil {
				return nil, err
			}
		}
	}
	return out.rows, nil
}

// FetchZCTAs retrieves vars for ZCTAs. Vintages up to ZCTAStateCutoff are
// queried per state using stateOf; later vintages reject the state clause
// and are queried nationally. A rejected batch is retried per ZCTA, first
// with the vintage's preferred clause and then the other; ZCTAs rejected
// both ways are skipped with a warning.
func FetchZCTAs(ctx context.Context, c Client, year int, dataset string, vars, zctas []string, stateOf map[string]string) ([][]string, error) {
	log := zap.L().With(zap.String("component", "census"), zap.String("dataset", dataset), zap.Int("year", year))
	withState := year <= ZCTAStateCutoff

	groups := make(map[string][]string)
	for _, z := range zctas {
		st := ""
		if withState {
			st = stateOf[z]
		}
		groups[st] = append(groups[st], z)
	}
	keys := make([]string, 0, len(groups))
	for k := range groups {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var out table
	for _, st := range keys {
		codes := groups[st]
		sort.Strings(codes)
		for start := 0; start < len(codes); start += zctaChunk {
			end := min(start+zctaChunk, len(codes))
			chunk := codes[start:end]
			q := Query{Year: year, Dataset: dataset, Variables: vars, For: "zip code tabulation area:" + strings.Join(chunk, ",")}
			if st != "" {
				q.In = "state:" + st
			}
			resp, err := c.Get(ctx, q)
			if err == nil {
				if err := out.add(resp); err != nil {
					return nil, err
				}
				continue
			}
			if !IsStatus(err, http.StatusBadRequest) {
				return nil, eris.Wrap(err, "census: zcta batch")
			}
			for _, z := range chunk {
				resp, err := fetchZCTA(ctx, c, q, z, stateOf[z], withState)
				if err != nil {
					return nil, err
				}
				if len(resp) < 2 {
					log.Warn("census: skipping zcta", zap.String("zcta", z))
					continue
				}
				if err := out.add(resp); err != nil {
					return nil, err
				}
			}
		}
	}
	return out.rows, nil
}

func fetchZCTA(ctx context.Context, c Client, q Query, zcta, state string, withState bool) ([][]string, error) {
	attempts := []string{""}
	if state != "" {
		if withState {
			attempts = []string{"state:" + state, ""}
		} else {
			attempts = []string{"", "state:" + state}
		}
	}
	q.For = "zip code tabulation area:" + zcta
	for _, in := range attempts {
		q.In = in
		resp, err := c.Get(ctx, q)
		if IsStatus(err, http.StatusBadRequest) {
			continue
		}
		if err != nil {
			return nil, eris.Wrapf(err, "census: zcta %s", zcta)
		}
		return resp, nil
	}
	return nil, nil
}
