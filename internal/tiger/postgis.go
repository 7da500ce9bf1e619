package tiger

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"

	"github.com/sells-group/crosswalk-cli/internal/crosswalk"
	"github.com/sells-group/crosswalk-cli/internal/db"
)

// PostGISProvider serves boundary polygons from tables filled by Load.
type PostGISProvider struct {
	pool db.Pool
	year int
}

// NewPostGISProvider creates a provider reading the given TIGER vintage.
func NewPostGISProvider(pool db.Pool, year int) *PostGISProvider {
	return &PostGISProvider{pool: pool, year: year}
}

// LoadTargetPolygons returns the ZCTA polygons for the given codes.
func (p *PostGISProvider) LoadTargetPolygons(ctx context.Context, codes []string) (crosswalk.PolygonSet, error) {
	sql := fmt.Sprintf(
		"SELECT code, ST_AsBinary(the_geom) FROM %s WHERE vintage = $1 AND code = ANY($2) ORDER BY code",
		pgx.Identifier{Schema, LevelTable(crosswalk.LevelZCTA)}.Sanitize(),
	)
	return p.query(ctx, crosswalk.LevelZCTA, sql, p.year, codes)
}

// LoadSourcePolygons returns county or tract polygons inside the given
// states; an empty list means all states.
func (p *PostGISProvider) LoadSourcePolygons(ctx context.Context, level crosswalk.Level, regions []string) (crosswalk.PolygonSet, error) {
	if level != crosswalk.LevelCounty && level != crosswalk.LevelTract {
		return crosswalk.PolygonSet{}, eris.Errorf("tiger: %q is not a source level", level)
	}
	table := pgx.Identifier{Schema, LevelTable(level)}.Sanitize()
	if len(regions) == 0 {
		sql := fmt.Sprintf("SELECT code, ST_AsBinary(the_geom) FROM %s WHERE vintage = $1 ORDER BY code", table)
		return p.query(ctx, level, sql, p.year)
	}
	states, err := StatesFIPS(regions)
	if err != nil {
		return crosswalk.PolygonSet{}, err
	}
	sql := fmt.Sprintf(
		"SELECT code, ST_AsBinary(the_geom) FROM %s WHERE vintage = $1 AND statefp = ANY($2) ORDER BY code",
		table,
	)
	return p.query(ctx, level, sql, p.year, states)
}

func (p *PostGISProvider) query(ctx context.Context, level crosswalk.Level, sql string, args ...any) (crosswalk.PolygonSet, error) {
	rows, err := p.pool.Query(ctx, sql, args...)
	if err != nil {
		return crosswalk.PolygonSet{}, eris.Wrapf(err, "tiger: query %s polygons", level)
	}
	defer rows.Close()

	set := crosswalk.PolygonSet{Level: level}
	for rows.Next() {
		var (
			code string
			wkb  []byte
		)
		if err := rows.Scan(&code, &wkb); err != nil {
			return crosswalk.PolygonSet{}, eris.Wrapf(err, "tiger: scan %s polygon", level)
		}
		mp, err := DecodeWKB(wkb)
		if err != nil {
			return crosswalk.PolygonSet{}, eris.Wrapf(err, "tiger: %s %s", level, code)
		}
		set.Units = append(set.Units, crosswalk.Unit{Code: code, Geom: mp})
	}
	if err := rows.Err(); err != nil {
		return crosswalk.PolygonSet{}, eris.Wrapf(err, "tiger: read %s polygons", level)
	}
	return set, nil
}
