// Package store persists geo-ID maps and pipeline run records.
package store

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strings"
	"time"

	"github.com/sells-group/crosswalk-cli/internal/crosswalk"
)

// Geo-ID kinds stored per ZCTA.
const (
	KindState  = "state"
	KindCounty = "county"
)

// RunStatus is the lifecycle state of a pipeline run.
type RunStatus string

// Run statuses.
const (
	RunStatusRunning  RunStatus = "running"
	RunStatusComplete RunStatus = "complete"
	RunStatusFailed   RunStatus = "failed"
)

// Run is one recorded pipeline invocation.
type Run struct {
	ID        string    `json:"id"`
	Command   string    `json:"command"`
	Status    RunStatus `json:"status"`
	Report    []byte    `json:"report,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// CachedGeoIDs is a geo-ID cache entry. Known holds every ZCTA the entry was
// computed for, including ZCTAs without any overlapping county.
type CachedGeoIDs struct {
	IDs   crosswalk.GeoIDs
	Known map[string]struct{}
}

// Absent returns the requested ZCTAs the entry was not computed for.
func (c CachedGeoIDs) Absent(zctas []string) []string {
	var out []string
	for _, z := range zctas {
		if _, ok := c.Known[z]; !ok {
			out = append(out, z)
		}
	}
	return out
}

// GeoIDCache persists geo-ID maps keyed by a target-set hash.
type GeoIDCache interface {
	// LoadGeoIDs returns the entry for setHash; an unknown hash yields an
	// empty entry.
	LoadGeoIDs(ctx context.Context, setHash string) (CachedGeoIDs, error)
	// SaveGeoIDs replaces the entry for setHash with ids computed for zctas.
	SaveGeoIDs(ctx context.Context, setHash string, zctas []string, ids crosswalk.GeoIDs) error
}

// Store is the full persistence surface.
type Store interface {
	GeoIDCache

	CreateRun(ctx context.Context, command string) (*Run, error)
	CompleteRun(ctx context.Context, runID string, status RunStatus, report []byte) error
	GetRun(ctx context.Context, runID string) (*Run, error)
	ListRuns(ctx context.Context, limit int) ([]Run, error)

	Migrate(ctx context.Context) error
	Close() error
}

// SetHash returns the SHA-256 hex digest of a ZCTA set. Order and duplicates
// do not affect the result.
func SetHash(zctas []string) string {
	uniq := make([]string, 0, len(zctas))
	seen := make(map[string]struct{}, len(zctas))
	for _, z := range zctas {
		if _, ok := seen[z]; ok {
			continue
		}
		seen[z] = struct{}{}
		uniq = append(uniq, z)
	}
	sort.Strings(uniq)
	sum := sha256.Sum256([]byte(strings.Join(uniq, "\n")))
	return hex.EncodeToString(sum[:])
}

// geoIDRows flattens ids into (kind, zcta, unit) rows; ZCTAs without a value
// get an empty unit code.
func geoIDRows(zctas []string, ids crosswalk.GeoIDs) [][3]string {
	rows := make([][3]string, 0, 2*len(zctas))
	seen := make(map[string]struct{}, len(zctas))
	for _, z := range zctas {
		if _, dup := seen[z]; dup {
			continue
		}
		seen[z] = struct{}{}
		rows = append(rows,
			[3]string{KindState, z, ids.State[z]},
			[3]string{KindCounty, z, ids.County[z]},
		)
	}
	return rows
}

// addGeoIDRow folds one stored row into an entry.
func addGeoIDRow(c *CachedGeoIDs, kind, zcta, unit string) {
	c.Known[zcta] = struct{}{}
	if unit == "" {
		return
	}
	switch kind {
	case KindState:
		c.IDs.State[zcta] = unit
	case KindCounty:
		c.IDs.County[zcta] = unit
	}
}

func newCachedGeoIDs() CachedGeoIDs {
	return CachedGeoIDs{IDs: crosswalk.NewGeoIDs(), Known: make(map[string]struct{})}
}
