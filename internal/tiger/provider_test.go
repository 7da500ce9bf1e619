package tiger

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/crosswalk-cli/internal/crosswalk"
)

// tigerMirror serves zipped shapefiles under the TIGER URL layout.
func tigerMirror(t *testing.T, archives map[string]string) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	for urlPath, file := range archives {
		mux.HandleFunc(urlPath, func(w http.ResponseWriter, r *http.Request) {
			http.ServeFile(w, r, file)
		})
	}
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestFileProvider_Targets(t *testing.T) {
	src := t.TempDir()
	shpPath := writeShapefile(t, src, "tl_2024_us_zcta520", []string{"ZCTA5CE20", "GEOID20"}, []shpRecord{
		{[]string{"20001", "20001"}, polygon(rect(-77.02, 38.90, -77.00, 38.92, true))},
		{[]string{"20002", "20002"}, polygon(rect(-77.00, 38.90, -76.98, 38.92, true))},
		{[]string{"20003", "20003"}, polygon(rect(-77.00, 38.87, -76.98, 38.90, true))},
	})
	srv := tigerMirror(t, map[string]string{
		"/TIGER2024/ZCTA520/tl_2024_us_zcta520.zip": zipShapefile(t, shpPath, src, "tl_2024_us_zcta520"),
	})

	p := NewFileProvider(newTestFetcher(), 2024, t.TempDir()).WithBaseURL(srv.URL)
	assert.Equal(t, 2024, p.Year())

	set, err := p.LoadTargetPolygons(context.Background(), []string{"20003", "20001", "99999"})
	require.NoError(t, err)
	assert.Equal(t, crosswalk.LevelZCTA, set.Level)
	assert.Equal(t, []string{"20001", "20003"}, set.Codes())
}

func TestFileProvider_CountiesByState(t *testing.T) {
	src := t.TempDir()
	srv := tigerMirror(t, map[string]string{
		"/TIGER2024/COUNTY/tl_2024_us_county.zip": zipShapefile(t, countyShapefile(t, src), src, "tl_2024_us_county"),
	})
	cache := t.TempDir()
	p := NewFileProvider(newTestFetcher(), 2024, cache).WithBaseURL(srv.URL)

	set, err := p.LoadSourcePolygons(context.Background(), crosswalk.LevelCounty, []string{"MD"})
	require.NoError(t, err)
	assert.Equal(t, []string{"24001", "24003"}, set.Codes())
	assert.FileExists(t, filepath.Join(cache, "2024", "county", "tl_2024_us_county.zip"))

	all, err := p.LoadSourcePolygons(context.Background(), crosswalk.LevelCounty, nil)
	require.NoError(t, err)
	assert.Len(t, all.Units, 3)
}

func TestFileProvider_TractsPerState(t *testing.T) {
	src := t.TempDir()
	dc := writeShapefile(t, src, "tl_2024_11_tract", []string{"STATEFP", "GEOID"}, []shpRecord{
		{[]string{"11", "11001000201"}, polygon(rect(-77.02, 38.90, -77.00, 38.92, true))},
		{[]string{"11", "11001000100"}, polygon(rect(-77.00, 38.90, -76.98, 38.92, true))},
	})
	md := writeShapefile(t, src, "tl_2024_24_tract", []string{"STATEFP", "GEOID"}, []shpRecord{
		{[]string{"24", "24031700101"}, polygon(rect(-77.10, 39.00, -77.08, 39.02, true))},
	})
	srv := tigerMirror(t, map[string]string{
		"/TIGER2024/TRACT/tl_2024_11_tract.zip": zipShapefile(t, dc, src, "tl_2024_11_tract"),
		"/TIGER2024/TRACT/tl_2024_24_tract.zip": zipShapefile(t, md, src, "tl_2024_24_tract"),
	})
	p := NewFileProvider(newTestFetcher(), 2024, t.TempDir()).WithBaseURL(srv.URL)

	set, err := p.LoadSourcePolygons(context.Background(), crosswalk.LevelTract, []string{"24", "DC"})
	require.NoError(t, err)
	assert.Equal(t, crosswalk.LevelTract, set.Level)
	assert.Equal(t, []string{"11001000100", "11001000201", "24031700101"}, set.Codes())
}

func TestFileProvider_Errors(t *testing.T) {
	p := NewFileProvider(newTestFetcher(), 2024, t.TempDir()).WithBaseURL("http://127.0.0.1:1")

	_, err := p.LoadSourcePolygons(context.Background(), crosswalk.LevelZCTA, nil)
	assert.Error(t, err)

	_, err = p.LoadSourcePolygons(context.Background(), crosswalk.LevelCounty, []string{"ZZ"})
	assert.Error(t, err)

	_, err = p.LoadSourcePolygons(context.Background(), crosswalk.LevelState, nil)
	assert.Error(t, err)
}
