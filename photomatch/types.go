package photomatch

import (
	"encoding/json"
	"fmt"

	"github.com/golang/geo/r3"
)

// Vector2 is a point in normalized device coordinates, both axes in [-1, 1]
// across the photo with +Y up.
type Vector2 struct {
	X float64 `json:"x" yaml:"x"`
	Y float64 `json:"y" yaml:"y"`
}

// Sub returns v - o.
func (v Vector2) Sub(o Vector2) Vector2 {
	return Vector2{X: v.X - o.X, Y: v.Y - o.Y}
}

// DistanceSq returns the squared euclidean distance between v and o.
func (v Vector2) DistanceSq(o Vector2) float64 {
	d := v.Sub(o)
	return d.X*d.X + d.Y*d.Y
}

// Vector3 is a point or direction in model/world space (Y up).
type Vector3 struct {
	X float64 `json:"x" yaml:"x"`
	Y float64 `json:"y" yaml:"y"`
	Z float64 `json:"z" yaml:"z"`
}

func (v Vector3) vec() r3.Vector {
	return r3.Vector{X: v.X, Y: v.Y, Z: v.Z}
}

func fromVec(v r3.Vector) Vector3 {
	return Vector3{X: v.X, Y: v.Y, Z: v.Z}
}

// Add returns v + o.
func (v Vector3) Add(o Vector3) Vector3 {
	return fromVec(v.vec().Add(o.vec()))
}

// Sub returns v - o.
func (v Vector3) Sub(o Vector3) Vector3 {
	return fromVec(v.vec().Sub(o.vec()))
}

// Distance returns the euclidean distance between v and o.
func (v Vector3) Distance(o Vector3) float64 {
	return v.vec().Distance(o.vec())
}

// CameraTransform is the 7-parameter camera: vertical field of view in
// degrees, world position, and XYZ Euler rotation in radians.
type CameraTransform struct {
	FOV      float64 `json:"fov" yaml:"fov"`
	Position Vector3 `json:"position" yaml:"position"`
	Rotation Vector3 `json:"rotation" yaml:"rotation"`
}

// DefaultCamera is the camera of a photo that has never been solved.
func DefaultCamera() CameraTransform {
	return CameraTransform{
		FOV:      50,
		Position: Vector3{X: 200, Y: 100, Z: 400},
		Rotation: Vector3{X: -0.44497866312686412, Y: 0.4516334410795318, Z: 0.10867903971378184},
	}
}

// CameraParams is the length of the camera parameter vector.
const CameraParams = 7

// Vector flattens the camera as [fov, px, py, pz, rx, ry, rz].
func (c CameraTransform) Vector() []float64 {
	return []float64{
		c.FOV,
		c.Position.X, c.Position.Y, c.Position.Z,
		c.Rotation.X, c.Rotation.Y, c.Rotation.Z,
	}
}

// CameraFromVector is the inverse of CameraTransform.Vector.
func CameraFromVector(x []float64) (CameraTransform, error) {
	if len(x) != CameraParams {
		return CameraTransform{}, fmt.Errorf("camera vector must have %d elements, got %d", CameraParams, len(x))
	}
	return cameraFromVector(x), nil
}

func cameraFromVector(x []float64) CameraTransform {
	return CameraTransform{
		FOV:      x[0],
		Position: Vector3{X: x[1], Y: x[2], Z: x[3]},
		Rotation: Vector3{X: x[4], Y: x[5], Z: x[6]},
	}
}

// EdgeRef identifies one match edge of one shape instance.
type EdgeRef struct {
	ShapeID   int `json:"shapeId" yaml:"shapeId"`
	EdgeIndex int `json:"edgeIndex" yaml:"edgeIndex"`
}

func (r EdgeRef) String() string {
	return fmt.Sprintf("s%d:e%d", r.ShapeID, r.EdgeIndex)
}

// MatchEdge is a world-space match edge tagged with its origin.
type MatchEdge struct {
	ShapeID   int     `json:"shapeId"`
	EdgeIndex int     `json:"edgeIndex"`
	V0        Vector3 `json:"v0"`
	V1        Vector3 `json:"v1"`
}

// Ref returns the join key of the edge.
func (e MatchEdge) Ref() EdgeRef {
	return EdgeRef{ShapeID: e.ShapeID, EdgeIndex: e.EdgeIndex}
}

// ProjectedEdge is a match edge after projection to NDC.
type ProjectedEdge struct {
	ShapeID   int     `json:"shapeId"`
	EdgeIndex int     `json:"edgeIndex"`
	V0        Vector2 `json:"v0"`
	V1        Vector2 `json:"v1"`
}

// Ref returns the join key of the edge.
func (e ProjectedEdge) Ref() EdgeRef {
	return EdgeRef{ShapeID: e.ShapeID, EdgeIndex: e.EdgeIndex}
}

// Line is a user-drawn segment on a photo, optionally linked to a match edge.
type Line struct {
	ID    int      `json:"id"`
	V0    Vector2  `json:"v0"`
	V1    Vector2  `json:"v1"`
	Match *EdgeRef `json:"-"`
}

// Linked reports whether the line is linked to a match edge.
func (l Line) Linked() bool {
	return l.Match != nil
}

// unlinked is the sentinel used by the stored line format.
const unlinked = -1

// lineJSON is the stored line format: flat matchingShapeId/matchingEdgeId
// fields with -1 meaning "not linked". matchingEdgeIndex is accepted as an
// older spelling of matchingEdgeId.
type lineJSON struct {
	ID                int     `json:"id"`
	V0                Vector2 `json:"v0"`
	V1                Vector2 `json:"v1"`
	MatchingShapeID   *int    `json:"matchingShapeId,omitempty"`
	MatchingEdgeID    *int    `json:"matchingEdgeId,omitempty"`
	MatchingEdgeIndex *int    `json:"matchingEdgeIndex,omitempty"`
}

// MarshalJSON writes the stored line format.
func (l Line) MarshalJSON() ([]byte, error) {
	shapeID, edgeID := unlinked, unlinked
	if l.Match != nil {
		shapeID, edgeID = l.Match.ShapeID, l.Match.EdgeIndex
	}
	return json.Marshal(lineJSON{
		ID:              l.ID,
		V0:              l.V0,
		V1:              l.V1,
		MatchingShapeID: &shapeID,
		MatchingEdgeID:  &edgeID,
	})
}

// UnmarshalJSON reads the stored line format. A link with only one of the
// shape and edge set is rejected.
func (l *Line) UnmarshalJSON(data []byte) error {
	var raw lineJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	edge := raw.MatchingEdgeID
	if edge == nil {
		edge = raw.MatchingEdgeIndex
	}
	shapeSet := raw.MatchingShapeID != nil && *raw.MatchingShapeID != unlinked
	edgeSet := edge != nil && *edge != unlinked

	*l = Line{ID: raw.ID, V0: raw.V0, V1: raw.V1}
	switch {
	case shapeSet && edgeSet:
		if *raw.MatchingShapeID < 0 {
			return fmt.Errorf("line %d: negative shape id %d", raw.ID, *raw.MatchingShapeID)
		}
		if *edge < 0 {
			return fmt.Errorf("line %d: negative edge index %d", raw.ID, *edge)
		}
		l.Match = &EdgeRef{ShapeID: *raw.MatchingShapeID, EdgeIndex: *edge}
	case shapeSet != edgeSet:
		return fmt.Errorf("line %d: matching shape and edge must both be set or both be unset", raw.ID)
	}
	return nil
}

// LineEndpoint identifies one end of a line: Index 0 is V0, 1 is V1.
type LineEndpoint struct {
	LineID int `json:"lineId"`
	Index  int `json:"endpointIndex"`
}
