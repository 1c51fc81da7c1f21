package photomatch

import (
	"cmp"
	"slices"
)

// Correspondence pairs a match edge with the line linked to it.
type Correspondence struct {
	Edge MatchEdge
	Line Line
}

// CorrespondenceSet indexes linked lines by the edge they are linked to.
// When several lines link the same edge the last one wins.
type CorrespondenceSet struct {
	byEdge map[EdgeRef]Line
}

// NewCorrespondenceSet indexes the linked lines; unlinked lines are ignored.
func NewCorrespondenceSet(lines []Line) CorrespondenceSet {
	s := CorrespondenceSet{byEdge: make(map[EdgeRef]Line)}
	for _, l := range lines {
		if l.Match != nil {
			s.byEdge[*l.Match] = l
		}
	}
	return s
}

// Len returns the number of linked edges.
func (s CorrespondenceSet) Len() int {
	return len(s.byEdge)
}

// Line returns the line linked to an edge.
func (s CorrespondenceSet) Line(ref EdgeRef) (Line, bool) {
	l, ok := s.byEdge[ref]
	return l, ok
}

// Refs returns the linked edges sorted by shape and edge index.
func (s CorrespondenceSet) Refs() []EdgeRef {
	refs := make([]EdgeRef, 0, len(s.byEdge))
	for r := range s.byEdge {
		refs = append(refs, r)
	}
	slices.SortFunc(refs, func(a, b EdgeRef) int {
		if c := cmp.Compare(a.ShapeID, b.ShapeID); c != 0 {
			return c
		}
		return cmp.Compare(a.EdgeIndex, b.EdgeIndex)
	})
	return refs
}

// Pairs returns the linked edges together with their lines, in edge order.
// Links to edges that are not in edges are dropped.
func (s CorrespondenceSet) Pairs(edges []MatchEdge) []Correspondence {
	var out []Correspondence
	for _, e := range edges {
		if l, ok := s.byEdge[e.Ref()]; ok {
			out = append(out, Correspondence{Edge: e, Line: l})
		}
	}
	return out
}

// Dangling returns the links that point at edges missing from edges, for
// example after a shape was removed from the scene.
func (s CorrespondenceSet) Dangling(edges []MatchEdge) []Line {
	known := make(map[EdgeRef]bool, len(edges))
	for _, e := range edges {
		known[e.Ref()] = true
	}
	var out []Line
	for _, r := range s.Refs() {
		if !known[r] {
			out = append(out, s.byEdge[r])
		}
	}
	return out
}
