package photomatch

import (
	"math"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"
)

const (
	// EndpointRadiusSq is the squared NDC distance within which a point
	// grabs a line endpoint.
	EndpointRadiusSq = 0.00006

	// MaxPerpDistSq is the squared NDC distance within which a point
	// selects a line or an edge.
	MaxPerpDistSq = 0.00006
)

// PerpDistInfo locates a point relative to a segment. T is the projection
// parameter along the segment (0 at V0, 1 at V1).
type PerpDistInfo struct {
	T          float64
	PerpDistSq float64
	OnSegment  bool
}

// LinePointDistance projects p onto the segment a-b. A zero-length segment
// reports the squared distance to a and T=0.
func LinePointDistance(a, b, p Vector2) PerpDistInfo {
	lx := b.X - a.X
	ly := b.Y - a.Y
	ld := lx*lx + ly*ly
	if ld == 0 {
		return PerpDistInfo{T: 0, PerpDistSq: p.DistanceSq(a), OnSegment: true}
	}
	ax := p.X - a.X
	ay := p.Y - a.Y
	t := (ax*lx + ay*ly) / ld
	cross := ly*ax - lx*ay
	return PerpDistInfo{
		T:          t,
		PerpDistSq: cross * cross / ld,
		OnSegment:  t >= 0 && t <= 1,
	}
}

func segmentHit(a, b, p Vector2) bool {
	info := LinePointDistance(a, b, p)
	return info.OnSegment && info.PerpDistSq <= MaxPerpDistSq
}

// PickEndpoint returns the first line endpoint within EndpointRadiusSq of
// p, checking V0 before V1 for each line.
func PickEndpoint(p Vector2, lines []Line) (LineEndpoint, bool) {
	for _, l := range lines {
		if p.DistanceSq(l.V0) < EndpointRadiusSq {
			return LineEndpoint{LineID: l.ID, Index: 0}, true
		}
		if p.DistanceSq(l.V1) < EndpointRadiusSq {
			return LineEndpoint{LineID: l.ID, Index: 1}, true
		}
	}
	return LineEndpoint{}, false
}

// PickLine returns the first line whose segment passes within
// MaxPerpDistSq of p.
func PickLine(p Vector2, lines []Line) (Line, bool) {
	for _, l := range lines {
		if segmentHit(l.V0, l.V1, p) {
			return l, true
		}
	}
	return Line{}, false
}

// PickEdge returns the first projected edge whose segment passes within
// MaxPerpDistSq of p.
func PickEdge(p Vector2, edges []ProjectedEdge) (ProjectedEdge, bool) {
	for _, e := range edges {
		if segmentHit(e.V0, e.V1, p) {
			return e, true
		}
	}
	return ProjectedEdge{}, false
}

// PickKind says what a pick hit.
type PickKind string

const (
	KindNone     PickKind = "none"
	KindEndpoint PickKind = "endpoint"
	KindLine     PickKind = "line"
	KindEdge     PickKind = "edge"
)

// PickResult is the outcome of Pick. NearestLineDistSq is the squared
// distance from the point to the closest line segment, or -1 without lines.
type PickResult struct {
	Kind              PickKind       `json:"kind"`
	Endpoint          *LineEndpoint  `json:"endpoint,omitempty"`
	Line              *Line          `json:"line,omitempty"`
	Edge              *ProjectedEdge `json:"edge,omitempty"`
	NearestLineID     int            `json:"nearestLineId"`
	NearestLineDistSq float64        `json:"nearestLineDistSq"`
}

// Pick resolves a click: endpoints first, then lines, then edges.
func Pick(p Vector2, lines []Line, edges []ProjectedEdge) PickResult {
	res := PickResult{Kind: KindNone, NearestLineID: -1, NearestLineDistSq: -1}
	if l, d, ok := NearestLine(p, lines); ok {
		res.NearestLineID = l.ID
		res.NearestLineDistSq = d
	}

	if ep, ok := PickEndpoint(p, lines); ok {
		res.Kind = KindEndpoint
		res.Endpoint = &ep
		return res
	}
	if l, ok := PickLine(p, lines); ok {
		res.Kind = KindLine
		res.Line = &l
		return res
	}
	if e, ok := PickEdge(p, edges); ok {
		res.Kind = KindEdge
		res.Edge = &e
	}
	return res
}

// SegmentDistanceSq is the squared distance from p to the closed segment a-b.
func SegmentDistanceSq(a, b, p Vector2) float64 {
	return planar.DistanceFromSegmentSquared(point(a), point(b), point(p))
}

// NearestLine returns the line whose segment is closest to p.
func NearestLine(p Vector2, lines []Line) (Line, float64, bool) {
	best := math.Inf(1)
	var hit Line
	for _, l := range lines {
		if d := SegmentDistanceSq(l.V0, l.V1, p); d < best {
			best, hit = d, l
		}
	}
	return hit, best, !math.IsInf(best, 1)
}

func point(v Vector2) orb.Point {
	return orb.Point{v.X, v.Y}
}
