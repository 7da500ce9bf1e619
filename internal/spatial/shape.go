package spatial

import (
	"math"

	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/xy"
	"github.com/twpayne/go-geom/xy/location"
	"github.com/twpayne/go-geom/xy/orientation"
)

type pt struct{ x, y float64 }

func (p pt) coord() geom.Coord { return geom.Coord{p.x, p.y} }

func (p pt) sub(q pt) pt { return pt{p.x - q.x, p.y - q.y} }

func cross(p, q pt) float64 { return p.x*q.y - p.y*q.x }

func dot(p, q pt) float64 { return p.x*q.x + p.y*q.y }

type seg struct{ a, b pt }

func (s seg) minY() float64 { return math.Min(s.a.y, s.b.y) }
func (s seg) maxY() float64 { return math.Max(s.a.y, s.b.y) }

func (s seg) box() Box {
	return Box{
		MinX: math.Min(s.a.x, s.b.x), MinY: s.minY(),
		MaxX: math.Max(s.a.x, s.b.x), MaxY: s.maxY(),
	}
}

// Box is an axis-aligned bounding box in projected coordinates.
type Box struct {
	MinX, MinY, MaxX, MaxY float64
}

// Intersects reports whether b and o share any point.
func (b Box) Intersects(o Box) bool {
	return b.MinX <= o.MaxX && o.MinX <= b.MaxX && b.MinY <= o.MaxY && o.MinY <= b.MaxY
}

func (b Box) intersect(o Box) (Box, bool) {
	if !b.Intersects(o) {
		return Box{}, false
	}
	return Box{
		MinX: math.Max(b.MinX, o.MinX), MinY: math.Max(b.MinY, o.MinY),
		MaxX: math.Min(b.MaxX, o.MaxX), MaxY: math.Min(b.MaxY, o.MaxY),
	}, true
}

func (b Box) expand(d float64) Box {
	return Box{MinX: b.MinX - d, MinY: b.MinY - d, MaxX: b.MaxX + d, MaxY: b.MaxY + d}
}

// Shape is a polygon or multipolygon prepared for repeated area and overlay
// queries. Outer rings are oriented counter-clockwise and holes clockwise, so
// the signed shoelace sum over every edge is the net area.
type Shape struct {
	segs  []seg
	rings [][]float64 // closed flat XY rings
	area  float64
	box   Box
	index *bandIndex
}

// NewShape prepares a projected multipolygon. Rings with fewer than three
// distinct vertices or zero area are ignored.
func NewShape(mp *geom.MultiPolygon) *Shape {
	s := &Shape{}
	if mp == nil {
		return s
	}
	for i := 0; i < mp.NumPolygons(); i++ {
		poly := mp.Polygon(i)
		for j := 0; j < poly.NumLinearRings(); j++ {
			ring := cleanRing(poly.LinearRing(j).Coords())
			if len(ring) < 3 {
				continue
			}
			a := signedArea(ring)
			if a == 0 {
				continue
			}
			if (j == 0) != (a > 0) {
				reverse(ring)
				a = -a
			}
			s.area += a
			s.rings = append(s.rings, flatRing(ring))
			for k := range ring {
				s.segs = append(s.segs, seg{ring[k], ring[(k+1)%len(ring)]})
			}
		}
	}
	if len(s.segs) > 0 {
		s.box = boundsOf(s.segs)
	}
	s.index = newBandIndex(s.segs)
	return s
}

// Area returns the net planar area (outer rings minus holes).
func (s *Shape) Area() float64 { return s.area }

// Bounds returns the bounding box of the shape.
func (s *Shape) Bounds() Box { return s.box }

// Empty reports whether the shape has no usable rings.
func (s *Shape) Empty() bool { return len(s.segs) == 0 }

// Contains reports whether (x, y) lies inside the shape or within eps of its
// boundary.
func (s *Shape) Contains(x, y, eps float64) bool {
	if s.Empty() {
		return false
	}
	p := pt{x, y}
	if !s.box.expand(eps).Intersects(Box{x, y, x, y}) {
		return false
	}
	lo, hi := s.index.span(y-eps, y+eps)
	for b := lo; b <= hi; b++ {
		for _, i := range s.index.bands[b] {
			if distToSeg(p, s.segs[i]) <= eps {
				return true
			}
		}
	}
	inside := false
	for _, ring := range s.rings {
		switch xy.LocatePointInRing(geom.XY, p.coord(), ring) {
		case location.Boundary:
			return true
		case location.Interior:
			inside = !inside
		}
	}
	return inside
}

// crossings counts edges crossed by a ray from p towards +x. Edges for which
// skip returns true are ignored.
func (s *Shape) crossings(p pt, skip func(seg) bool) int {
	b := s.index.band(p.y)
	if b < 0 {
		return 0
	}
	n := 0
	for _, i := range s.index.bands[b] {
		e := s.segs[i]
		if skip != nil && skip(e) {
			continue
		}
		if rayCrosses(p, e) {
			n++
		}
	}
	return n
}

// rayCrosses reports whether e crosses the ray from p towards +x. An edge
// counts when one endpoint is above p and the other at or below it, and p is
// strictly left of the edge taken bottom to top.
func rayCrosses(p pt, e seg) bool {
	if (e.a.y > p.y) == (e.b.y > p.y) {
		return false
	}
	lo, hi := e.a, e.b
	if lo.y > hi.y {
		lo, hi = hi, lo
	}
	return xy.OrientationIndex(lo.coord(), hi.coord(), p.coord()) == orientation.CounterClockwise
}

func distToSeg(p pt, s seg) float64 {
	return xy.DistanceFromPointToLine(p.coord(), s.a.coord(), s.b.coord())
}

func cleanRing(coords []geom.Coord) []pt {
	ring := make([]pt, 0, len(coords))
	for _, c := range coords {
		if len(c) < 2 {
			continue
		}
		p := pt{c[0], c[1]}
		if n := len(ring); n > 0 && ring[n-1] == p {
			continue
		}
		ring = append(ring, p)
	}
	for len(ring) > 1 && ring[0] == ring[len(ring)-1] {
		ring = ring[:len(ring)-1]
	}
	return ring
}

// signedArea is positive for counter-clockwise rings.
func signedArea(ring []pt) float64 {
	return -xy.SignedArea(geom.XY, flatRing(ring))
}

// flatRing closes ring into a flat XY coordinate slice.
func flatRing(ring []pt) []float64 {
	flat := make([]float64, 0, 2*len(ring)+2)
	for _, p := range ring {
		flat = append(flat, p.x, p.y)
	}
	return append(flat, ring[0].x, ring[0].y)
}

func reverse(ring []pt) {
	for i, j := 0, len(ring)-1; i < j; i, j = i+1, j-1 {
		ring[i], ring[j] = ring[j], ring[i]
	}
}

func boundsOf(segs []seg) Box {
	b := segs[0].box()
	for _, s := range segs[1:] {
		sb := s.box()
		b.MinX = math.Min(b.MinX, sb.MinX)
		b.MinY = math.Min(b.MinY, sb.MinY)
		b.MaxX = math.Max(b.MaxX, sb.MaxX)
		b.MaxY = math.Max(b.MaxY, sb.MaxY)
	}
	return b
}

// bandIndex buckets segments into horizontal bands. A segment is registered in
// every band its y-range touches, so all segments spanning a given y are found
// in that y's band exactly once.
type bandIndex struct {
	minY, step float64
	bands      [][]int32
}

const maxBands = 1024

func newBandIndex(segs []seg) *bandIndex {
	bi := &bandIndex{}
	if len(segs) == 0 {
		return bi
	}
	minY, maxY := math.Inf(1), math.Inf(-1)
	for _, s := range segs {
		minY = math.Min(minY, s.minY())
		maxY = math.Max(maxY, s.maxY())
	}
	n := int(math.Sqrt(float64(len(segs)))) + 1
	if n > maxBands {
		n = maxBands
	}
	bi.minY = minY
	bi.step = (maxY - minY) / float64(n)
	if bi.step <= 0 {
		n, bi.step = 1, 1
	}
	bi.bands = make([][]int32, n)
	for i, s := range segs {
		lo, hi := bi.span(s.minY(), s.maxY())
		for b := lo; b <= hi; b++ {
			bi.bands[b] = append(bi.bands[b], int32(i))
		}
	}
	return bi
}

func (bi *bandIndex) band(y float64) int {
	n := len(bi.bands)
	if n == 0 {
		return -1
	}
	b := int(math.Floor((y - bi.minY) / bi.step))
	if b < 0 {
		return 0
	}
	if b >= n {
		return n - 1
	}
	return b
}

// span returns the inclusive band range covering [y0, y1]; lo > hi when the
// index is empty.
func (bi *bandIndex) span(y0, y1 float64) (int, int) {
	if len(bi.bands) == 0 {
		return 0, -1
	}
	return bi.band(y0), bi.band(y1)
}

// dedup tracks which segment indexes a multi-band query already visited.
type dedup struct {
	seen []uint32
	gen  uint32
}

func newDedup(n int) *dedup { return &dedup{seen: make([]uint32, n)} }

func (d *dedup) reset() { d.gen++ }

func (d *dedup) first(i int32) bool {
	if d.seen[i] == d.gen {
		return false
	}
	d.seen[i] = d.gen
	return true
}
