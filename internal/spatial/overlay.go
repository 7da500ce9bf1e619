package spatial

import (
	"math"
	"sort"

	"github.com/twpayne/go-geom/xy"
	"github.com/twpayne/go-geom/xy/lineintersection"
	"github.com/twpayne/go-geom/xy/lineintersector"
)

// DefaultSnapTolerance is the distance, in projected metres, under which two
// vertices are treated as the same point and a vertex is treated as lying on
// an edge.
const DefaultSnapTolerance = 1e-3

// IntersectionArea returns the area of the intersection of a and b.
//
// The area is integrated over the boundary of a∩b (Green's theorem): pieces of
// a's edges inside b, pieces of b's edges inside a, and boundary shared by both
// with the same orientation, counted once. Before integrating, the edges of both
// shapes inside the common bounding box are noded against each other: vertices
// closer than eps are merged and vertices lying within eps of the other shape's
// edges are inserted into those edges, so shared boundaries become identical
// vertex sequences and are matched exactly.
func IntersectionArea(a, b *Shape, eps float64) float64 {
	if a == nil || b == nil || a.Empty() || b.Empty() {
		return 0
	}
	if eps <= 0 {
		eps = DefaultSnapTolerance
	}
	clip, ok := a.box.intersect(b.box)
	if !ok {
		return 0
	}
	clip = clip.expand(eps)

	ov := &overlay{eps: eps, clip: clip, origin: pt{clip.MinX, clip.MinY}}
	ov.ea = segsIn(a.segs, clip)
	ov.eb = segsIn(b.segs, clip)
	if len(ov.ea) == 0 && len(ov.eb) == 0 {
		return 0
	}
	ov.snap()
	ov.node()

	area := ov.integrate(a, b)
	if area < 0 {
		return 0
	}
	return math.Min(area, math.Min(a.area, b.area))
}

type overlay struct {
	eps    float64
	clip   Box
	origin pt

	ea, eb []seg
	// split points per working edge, filled by node.
	sa, sb [][]pt
}

func segsIn(segs []seg, clip Box) []seg {
	var out []seg
	for _, s := range segs {
		if s.box().Intersects(clip) {
			out = append(out, s)
		}
	}
	return out
}

// snap moves every vertex of a's working edges onto a vertex of b's working
// edges when one lies within eps.
func (ov *overlay) snap() {
	if len(ov.eb) == 0 {
		return
	}
	grid := make(map[[2]int64][]pt, len(ov.eb))
	key := func(p pt) [2]int64 {
		return [2]int64{int64(math.Floor(p.x / ov.eps)), int64(math.Floor(p.y / ov.eps))}
	}
	for _, s := range ov.eb {
		for _, v := range [2]pt{s.a, s.b} {
			k := key(v)
			grid[k] = append(grid[k], v)
		}
	}
	lookup := func(p pt) pt {
		k := key(p)
		best, bestD := p, ov.eps
		found := false
		for dx := int64(-1); dx <= 1; dx++ {
			for dy := int64(-1); dy <= 1; dy++ {
				for _, q := range grid[[2]int64{k[0] + dx, k[1] + dy}] {
					d := math.Hypot(p.x-q.x, p.y-q.y)
					if d <= bestD && (!found || d < bestD || lessPt(q, best)) {
						best, bestD, found = q, d, true
					}
				}
			}
		}
		return best
	}
	for i := range ov.ea {
		ov.ea[i].a = lookup(ov.ea[i].a)
		ov.ea[i].b = lookup(ov.ea[i].b)
	}
}

func lessPt(p, q pt) bool {
	if p.x != q.x {
		return p.x < q.x
	}
	return p.y < q.y
}

// node collects split points: vertices of one shape lying on the interior of
// the other's edges, and proper crossings between edges.
func (ov *overlay) node() {
	ov.sa = make([][]pt, len(ov.ea))
	ov.sb = make([][]pt, len(ov.eb))
	ia := newBandIndex(ov.ea)
	ib := newBandIndex(ov.eb)

	ov.vertexSplits(ov.eb, ia, ov.ea, ov.sa)
	ov.vertexSplits(ov.ea, ib, ov.eb, ov.sb)

	seen := newDedup(len(ov.eb))
	for i, e := range ov.ea {
		eb := e.box().expand(ov.eps)
		seen.reset()
		lo, hi := ib.span(eb.MinY, eb.MaxY)
		for band := lo; band <= hi; band++ {
			for _, j := range ib.bands[band] {
				if !seen.first(j) {
					continue
				}
				f := ov.eb[j]
				if !f.box().Intersects(eb) {
					continue
				}
				if x, ok := properCrossing(e, f, ov.eps); ok {
					ov.sa[i] = append(ov.sa[i], x)
					ov.sb[j] = append(ov.sb[j], x)
				}
			}
		}
	}
}

// vertexSplits inserts every endpoint of src that lies within eps of the
// interior of an edge in dst into that edge's split list.
func (ov *overlay) vertexSplits(src []seg, idx *bandIndex, dst []seg, splits [][]pt) {
	if len(dst) == 0 {
		return
	}
	seen := newDedup(len(dst))
	for _, s := range src {
		for _, v := range [2]pt{s.a, s.b} {
			seen.reset()
			lo, hi := idx.span(v.y-ov.eps, v.y+ov.eps)
			for band := lo; band <= hi; band++ {
				for _, j := range idx.bands[band] {
					if !seen.first(j) {
						continue
					}
					e := dst[j]
					if xy.Distance(v.coord(), e.a.coord()) <= ov.eps || xy.Distance(v.coord(), e.b.coord()) <= ov.eps {
						continue
					}
					if distToSeg(v, e) <= ov.eps {
						splits[j] = append(splits[j], v)
					}
				}
			}
		}
	}
}

// properCrossing returns the point where e and f cross when the crossing is
// farther than eps from every endpoint of both segments. Collinear overlaps
// are not crossings; they are handled by vertex splits.
func properCrossing(e, f seg, eps float64) (pt, bool) {
	res := lineintersector.LineIntersectsLine(lineintersector.RobustLineIntersector{},
		e.a.coord(), e.b.coord(), f.a.coord(), f.b.coord())
	if res.Type() != lineintersection.PointIntersection {
		return pt{}, false
	}
	x := res.Intersection()[0]
	for _, end := range [4]pt{e.a, e.b, f.a, f.b} {
		if xy.Distance(x, end.coord()) <= eps {
			return pt{}, false
		}
	}
	return pt{x[0], x[1]}, true
}

// pieces splits edge e at the given points, ordered along e.
func pieces(e seg, splits []pt) []seg {
	if len(splits) == 0 {
		return []seg{e}
	}
	d := e.b.sub(e.a)
	l2 := dot(d, d)
	pts := make([]pt, 0, len(splits)+2)
	pts = append(pts, e.a)
	pts = append(pts, splits...)
	pts = append(pts, e.b)
	param := func(p pt) float64 { return dot(p.sub(e.a), d) / l2 }
	inner := pts[1 : len(pts)-1]
	sort.SliceStable(inner, func(i, j int) bool { return param(inner[i]) < param(inner[j]) })

	out := make([]seg, 0, len(pts)-1)
	prev := pts[0]
	for _, p := range pts[1:] {
		if p == prev {
			continue
		}
		out = append(out, seg{prev, p})
		prev = p
	}
	return out
}

func (ov *overlay) integrate(a, b *Shape) float64 {
	pa := make([]seg, 0, len(ov.ea))
	for i, e := range ov.ea {
		pa = append(pa, pieces(e, ov.sa[i])...)
	}
	pb := make([]seg, 0, len(ov.eb))
	for j, f := range ov.eb {
		pb = append(pb, pieces(f, ov.sb[j])...)
	}

	shared := make(map[seg]struct{}, len(pb))
	for _, f := range pb {
		shared[f] = struct{}{}
	}
	sharedA := make(map[seg]struct{}, len(pa))
	for _, e := range pa {
		sharedA[e] = struct{}{}
	}

	inB := ov.locator(b, pb)
	inA := ov.locator(a, pa)

	var sum float64
	for _, e := range pa {
		if _, same := shared[e]; same {
			sum += cross(e.a.sub(ov.origin), e.b.sub(ov.origin))
			continue
		}
		if _, opposite := shared[seg{e.b, e.a}]; opposite {
			continue
		}
		if inB(midpoint(e)) {
			sum += cross(e.a.sub(ov.origin), e.b.sub(ov.origin))
		}
	}
	for _, f := range pb {
		if _, ok := sharedA[f]; ok {
			continue
		}
		if _, ok := sharedA[seg{f.b, f.a}]; ok {
			continue
		}
		if inA(midpoint(f)) {
			sum += cross(f.a.sub(ov.origin), f.b.sub(ov.origin))
		}
	}
	return sum / 2
}

// locator returns a point-in-shape test that uses the noded pieces inside the
// clip box and the shape's original edges outside it.
func (ov *overlay) locator(s *Shape, noded []seg) func(pt) bool {
	idx := newBandIndex(noded)
	replaced := func(e seg) bool { return e.box().Intersects(ov.clip) }
	return func(p pt) bool {
		n := s.crossings(p, replaced)
		if b := idx.band(p.y); b >= 0 {
			for _, i := range idx.bands[b] {
				if rayCrosses(p, noded[i]) {
					n++
				}
			}
		}
		return n%2 == 1
	}
}

func midpoint(s seg) pt { return pt{(s.a.x + s.b.x) / 2, (s.a.y + s.b.y) / 2} }
