package tiger

import (
	"archive/zip"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/jonas-p/go-shp"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/crosswalk-cli/internal/fetcher"
)

// rect returns a closed ring; clockwise when cw is true (shapefile outer ring).
func rect(x0, y0, x1, y1 float64, cw bool) []shp.Point {
	if cw {
		return []shp.Point{{X: x0, Y: y0}, {X: x0, Y: y1}, {X: x1, Y: y1}, {X: x1, Y: y0}, {X: x0, Y: y0}}
	}
	return []shp.Point{{X: x0, Y: y0}, {X: x1, Y: y0}, {X: x1, Y: y1}, {X: x0, Y: y1}, {X: x0, Y: y0}}
}

func polygon(parts ...[]shp.Point) *shp.Polygon {
	p := shp.Polygon(*shp.NewPolyLine(parts))
	return &p
}

type shpRecord struct {
	attrs []string
	shape *shp.Polygon
}

// writeShapefile writes name.shp/.shx/.dbf into dir with string columns.
func writeShapefile(t *testing.T, dir, name string, columns []string, records []shpRecord) string {
	t.Helper()
	path := filepath.Join(dir, name+".shp")
	w, err := shp.Create(path, shp.POLYGON)
	require.NoError(t, err)

	fields := make([]shp.Field, len(columns))
	for i, c := range columns {
		fields[i] = shp.StringField(c, 16)
	}
	require.NoError(t, w.SetFields(fields))

	for _, r := range records {
		n := w.Write(r.shape)
		for i, v := range r.attrs {
			require.NoError(t, w.WriteAttribute(int(n), i, v))
		}
	}
	w.Close()
	// go-shp names the attribute file <stem>dbf, without the dot.
	stem := path[:len(path)-len(".shp")]
	require.NoError(t, os.Rename(stem+"dbf", stem+".dbf"))
	return path
}

// zipShapefile bundles a shapefile's sidecar files into name.zip in dir.
func zipShapefile(t *testing.T, shpPath, dir, name string) string {
	t.Helper()
	zipPath := filepath.Join(dir, name+".zip")
	out, err := os.Create(zipPath)
	require.NoError(t, err)
	zw := zip.NewWriter(out)

	stem := shpPath[:len(shpPath)-len(".shp")]
	for _, ext := range []string{".shp", ".shx", ".dbf"} {
		in, err := os.Open(stem + ext)
		require.NoError(t, err)
		fw, err := zw.Create(name + ext)
		require.NoError(t, err)
		_, err = io.Copy(fw, in)
		require.NoError(t, err)
		require.NoError(t, in.Close())
	}
	require.NoError(t, zw.Close())
	require.NoError(t, out.Close())
	return zipPath
}

func newTestFetcher() *fetcher.HTTPFetcher {
	return fetcher.NewHTTPFetcher(fetcher.HTTPOptions{
		Timeout:     5 * time.Second,
		MaxRetries:  1,
		BaseBackoff: time.Millisecond,
		MaxBackoff:  time.Millisecond,
	})
}

// countyShapefile writes three counties: two in Maryland, one in DC.
func countyShapefile(t *testing.T, dir string) string {
	t.Helper()
	return writeShapefile(t, dir, "tl_2024_us_county", []string{"STATEFP", "GEOID", "ALAND"}, []shpRecord{
		{[]string{"24", "24001", "1000"}, polygon(rect(-77.10, 38.80, -77.05, 38.85, true))},
		{[]string{"24", "24003", "2000"}, polygon(rect(-77.05, 38.80, -77.00, 38.85, true))},
		{[]string{"11", "11001", "3000"}, polygon(rect(-77.00, 38.80, -76.95, 38.85, true))},
	})
}
