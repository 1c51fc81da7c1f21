package photomatch

import (
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

// lineString converts an NDC segment to an orb.LineString.
func lineString(a, b Vector2) orb.LineString {
	return orb.LineString{point(a), point(b)}
}

// ExportGeoJSON writes the projected match edges and the photo lines as a
// FeatureCollection in NDC. Edges carry kind=edge with shapeId, edgeIndex
// and the id of the linked line (or -1); lines carry kind=line with their
// id and link.
func ExportGeoJSON(edges []ProjectedEdge, lines []Line) *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()
	set := NewCorrespondenceSet(lines)

	for _, e := range edges {
		f := geojson.NewFeature(lineString(e.V0, e.V1))
		f.ID = e.Ref().String()
		f.Properties["kind"] = "edge"
		f.Properties["shapeId"] = e.ShapeID
		f.Properties["edgeIndex"] = e.EdgeIndex
		f.Properties["lineId"] = unlinked
		if l, ok := set.Line(e.Ref()); ok {
			f.Properties["lineId"] = l.ID
		}
		fc.Append(f)
	}

	for _, l := range lines {
		f := geojson.NewFeature(lineString(l.V0, l.V1))
		f.ID = l.ID
		f.Properties["kind"] = "line"
		f.Properties["lineId"] = l.ID
		f.Properties["matchingShapeId"] = unlinked
		f.Properties["matchingEdgeId"] = unlinked
		if l.Match != nil {
			f.Properties["matchingShapeId"] = l.Match.ShapeID
			f.Properties["matchingEdgeId"] = l.Match.EdgeIndex
		}
		fc.Append(f)
	}

	return fc
}

// Bounds returns the NDC bounding box of the projected edges.
func Bounds(edges []ProjectedEdge) orb.Bound {
	if len(edges) == 0 {
		return orb.Bound{}
	}
	b := orb.Bound{Min: point(edges[0].V0), Max: point(edges[0].V0)}
	for _, e := range edges {
		b = b.Extend(point(e.V0)).Extend(point(e.V1))
	}
	return b
}
