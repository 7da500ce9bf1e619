package tiger

import (
	"context"
	"path/filepath"
	"sort"
	"strconv"
	"sync"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/crosswalk-cli/internal/crosswalk"
	"github.com/sells-group/crosswalk-cli/internal/fetcher"
)

// FileProvider serves boundary polygons from TIGER/Line shapefiles, fetching
// and caching the archives on first use.
type FileProvider struct {
	fetch    fetcher.Fetcher
	year     int
	cacheDir string
	baseURL  string
	parallel int
}

// NewFileProvider creates a provider for a TIGER year that caches archives
// under cacheDir.
func NewFileProvider(f fetcher.Fetcher, year int, cacheDir string) *FileProvider {
	return &FileProvider{fetch: f, year: year, cacheDir: cacheDir, baseURL: DefaultBaseURL, parallel: 4}
}

// WithBaseURL points the provider at a mirror of the TIGER download tree.
func (p *FileProvider) WithBaseURL(u string) *FileProvider {
	p.baseURL = u
	return p
}

// Year returns the TIGER vintage served.
func (p *FileProvider) Year() int { return p.year }

// LoadTargetPolygons returns the ZCTA polygons for the given codes. Codes
// absent from the shapefile are logged and left out.
func (p *FileProvider) LoadTargetPolygons(ctx context.Context, codes []string) (crosswalk.PolygonSet, error) {
	product, err := ProductFor(crosswalk.LevelZCTA, p.year)
	if err != nil {
		return crosswalk.PolygonSet{}, err
	}
	shpPath, err := p.fetchProduct(ctx, product, "")
	if err != nil {
		return crosswalk.PolygonSet{}, err
	}

	want := make(map[string]struct{}, len(codes))
	for _, c := range codes {
		want[c] = struct{}{}
	}
	set, err := ReadPolygons(shpPath, product, func(r Record) bool {
		_, ok := want[r.Code]
		return ok
	})
	if err != nil {
		return crosswalk.PolygonSet{}, err
	}
	if missing := len(want) - len(set.Units); missing > 0 {
		zap.L().Warn("tiger: target codes without polygons",
			zap.Int("missing", missing),
			zap.Int("year", p.year),
		)
	}
	return set, nil
}

// LoadSourcePolygons returns county or tract polygons inside the given
// states (2-digit FIPS or abbreviations); an empty list means all states.
func (p *FileProvider) LoadSourcePolygons(ctx context.Context, level crosswalk.Level, regions []string) (crosswalk.PolygonSet, error) {
	product, err := ProductFor(level, p.year)
	if err != nil {
		return crosswalk.PolygonSet{}, err
	}
	if product.Level == crosswalk.LevelZCTA {
		return crosswalk.PolygonSet{}, eris.New("tiger: ZCTA is not a source level")
	}
	states, err := StatesFIPS(regions)
	if err != nil {
		return crosswalk.PolygonSet{}, err
	}
	inStates := make(map[string]struct{}, len(states))
	for _, s := range states {
		inStates[s] = struct{}{}
	}
	keep := func(r Record) bool {
		_, ok := inStates[r.StateFP]
		return ok
	}

	if product.National {
		shpPath, err := p.fetchProduct(ctx, product, "")
		if err != nil {
			return crosswalk.PolygonSet{}, err
		}
		return ReadPolygons(shpPath, product, keep)
	}

	// Per-state files are fetched and parsed concurrently.
	var (
		mu    sync.Mutex
		units []crosswalk.Unit
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.parallel)
	for _, fips := range states {
		g.Go(func() error {
			shpPath, err := p.fetchProduct(gctx, product, fips)
			if err != nil {
				return err
			}
			set, err := ReadPolygons(shpPath, product, keep)
			if err != nil {
				return err
			}
			mu.Lock()
			units = append(units, set.Units...)
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return crosswalk.PolygonSet{}, err
	}
	sort.Slice(units, func(i, j int) bool { return units[i].Code < units[j].Code })
	return crosswalk.PolygonSet{Level: product.Level, Units: units}, nil
}

func (p *FileProvider) fetchProduct(ctx context.Context, product Product, fips string) (string, error) {
	url := DownloadURL(p.baseURL, product, p.year, fips)
	dir := filepath.Join(p.cacheDir, strconv.Itoa(p.year), product.Table)
	shpPath, err := Download(ctx, p.fetch, url, dir)
	if err != nil {
		return "", eris.Wrapf(err, "tiger: fetch %s", product.Name)
	}
	return shpPath, nil
}
