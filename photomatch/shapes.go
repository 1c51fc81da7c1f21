package photomatch

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"

	"gopkg.in/yaml.v3"
)

// ErrInvalidShape is wrapped by every shape construction error.
var ErrInvalidShape = errors.New("invalid shape")

// ShapeType names a parametric shape.
type ShapeType string

const (
	ShapeBox   ShapeType = "box"
	ShapeRect  ShapeType = "rect"
	ShapeHouse ShapeType = "house"
	ShapeRoof  ShapeType = "roof"
)

// ParseShapeType accepts a shape type name in any case.
func ParseShapeType(s string) (ShapeType, error) {
	switch t := ShapeType(strings.ToLower(strings.TrimSpace(s))); t {
	case ShapeBox, ShapeRect, ShapeHouse, ShapeRoof:
		return t, nil
	}
	return "", &GeometryTypeError{Type: s}
}

// GeometryTypeError reports an unknown shape type, or a parameter record
// that belongs to a different shape type.
type GeometryTypeError struct {
	Type   string
	Params string // set when the params record does not match Type
}

func (e *GeometryTypeError) Error() string {
	if e.Params != "" {
		return fmt.Sprintf("shape type %q does not take %s parameters", e.Type, e.Params)
	}
	return fmt.Sprintf("unknown shape type %q", e.Type)
}

func (e *GeometryTypeError) Unwrap() error { return ErrInvalidShape }

// ParamError reports a dimension outside its valid range.
type ParamError struct {
	Type  ShapeType
	Field string
	Value float64
	Rule  string
}

func (e *ParamError) Error() string {
	return fmt.Sprintf("%s.%s = %g: must be %s", e.Type, e.Field, e.Value, e.Rule)
}

func (e *ParamError) Unwrap() error { return ErrInvalidShape }

// ShapeParams is one of BoxParams, RectParams, HouseParams or RoofParams.
type ShapeParams interface {
	shapeType() ShapeType
	validate() error
}

// BoxParams sizes an axis-aligned box standing on the XZ plane.
type BoxParams struct {
	Length float64 `json:"length" yaml:"length"`
	Width  float64 `json:"width" yaml:"width"`
	Height float64 `json:"height" yaml:"height"`
}

// RectParams sizes a flat rectangle in the XZ plane.
type RectParams struct {
	Length float64 `json:"length" yaml:"length"`
	Width  float64 `json:"width" yaml:"width"`
}

// HouseParams sizes a box with a gable roof whose ridge runs along X.
type HouseParams struct {
	Length     float64 `json:"length" yaml:"length"`
	Width      float64 `json:"width" yaml:"width"`
	Height     float64 `json:"height" yaml:"height"`
	RoofHeight float64 `json:"roofHeight" yaml:"roofHeight"`
}

// RoofParams sizes a thick gable roof slab with overhangs.
type RoofParams struct {
	Length        float64 `json:"length" yaml:"length"`
	Width         float64 `json:"width" yaml:"width"`
	RoofHeight    float64 `json:"roofHeight" yaml:"roofHeight"`
	RoofThickness float64 `json:"roofThickness" yaml:"roofThickness"`
	OverhangSide  float64 `json:"overhangSide" yaml:"overhangSide"`
	OverhangLeft  float64 `json:"overhangLeft" yaml:"overhangLeft"`
	OverhangRight float64 `json:"overhangRight" yaml:"overhangRight"`
}

func (BoxParams) shapeType() ShapeType   { return ShapeBox }
func (RectParams) shapeType() ShapeType  { return ShapeRect }
func (HouseParams) shapeType() ShapeType { return ShapeHouse }
func (RoofParams) shapeType() ShapeType  { return ShapeRoof }

type paramCheck struct {
	field    string
	value    float64
	positive bool // otherwise non-negative
}

func checkParams(t ShapeType, checks ...paramCheck) error {
	for _, c := range checks {
		switch {
		case math.IsNaN(c.value) || math.IsInf(c.value, 0):
			return &ParamError{Type: t, Field: c.field, Value: c.value, Rule: "finite"}
		case c.positive && c.value <= 0:
			return &ParamError{Type: t, Field: c.field, Value: c.value, Rule: "positive"}
		case !c.positive && c.value < 0:
			return &ParamError{Type: t, Field: c.field, Value: c.value, Rule: "non-negative"}
		}
	}
	return nil
}

func (p BoxParams) validate() error {
	return checkParams(ShapeBox,
		paramCheck{"length", p.Length, true},
		paramCheck{"width", p.Width, true},
		paramCheck{"height", p.Height, true})
}

func (p RectParams) validate() error {
	return checkParams(ShapeRect,
		paramCheck{"length", p.Length, true},
		paramCheck{"width", p.Width, true})
}

func (p HouseParams) validate() error {
	return checkParams(ShapeHouse,
		paramCheck{"length", p.Length, true},
		paramCheck{"width", p.Width, true},
		paramCheck{"height", p.Height, true},
		paramCheck{"roofHeight", p.RoofHeight, false})
}

func (p RoofParams) validate() error {
	return checkParams(ShapeRoof,
		paramCheck{"length", p.Length, true},
		paramCheck{"width", p.Width, true},
		paramCheck{"roofHeight", p.RoofHeight, false},
		paramCheck{"roofThickness", p.RoofThickness, false},
		paramCheck{"overhangSide", p.OverhangSide, false},
		paramCheck{"overhangLeft", p.OverhangLeft, false},
		paramCheck{"overhangRight", p.OverhangRight, false})
}

// Face is a triangle of vertex indices.
type Face [3]int

// Geometry is a shape in its local frame. Edges lists the match edges as
// vertex index pairs; the position of a pair in Edges is its edge index.
type Geometry struct {
	Type     ShapeType
	Vertices []Vector3
	Faces    []Face
	Edges    [][2]int
}

// Segment is a local-space match edge.
type Segment struct {
	V0, V1 Vector3
}

// MatchEdges resolves Edges to vertex coordinates, in edge index order.
func (g Geometry) MatchEdges() []Segment {
	out := make([]Segment, len(g.Edges))
	for i, e := range g.Edges {
		out[i] = Segment{V0: g.Vertices[e[0]], V1: g.Vertices[e[1]]}
	}
	return out
}

// FaceNormal returns the unit normal of face i, following the winding
// (v1-v0) x (v2-v0). A degenerate face yields the zero vector.
func (g Geometry) FaceNormal(i int) Vector3 {
	f := g.Faces[i]
	v0 := g.Vertices[f[0]].vec()
	n := g.Vertices[f[1]].vec().Sub(v0).Cross(g.Vertices[f[2]].vec().Sub(v0))
	if n.Norm() == 0 {
		return Vector3{}
	}
	return fromVec(n.Normalize())
}

// BuildGeometry constructs the vertices, faces and ordered match edges of a
// shape. Edge indices are fixed per shape type.
func BuildGeometry(t ShapeType, params ShapeParams) (Geometry, error) {
	if params == nil {
		return Geometry{}, &GeometryTypeError{Type: string(t), Params: "nil"}
	}
	if params.shapeType() != t {
		return Geometry{}, &GeometryTypeError{Type: string(t), Params: string(params.shapeType())}
	}
	if err := params.validate(); err != nil {
		return Geometry{}, err
	}

	switch p := params.(type) {
	case BoxParams:
		return boxGeometry(p), nil
	case RectParams:
		return rectGeometry(p), nil
	case HouseParams:
		return houseGeometry(p), nil
	case RoofParams:
		return roofGeometry(p), nil
	}
	return Geometry{}, &GeometryTypeError{Type: string(t)}
}

// footprint returns the four corners of an l x w rectangle centred on the
// origin at height y, in the order (-x,-z) (+x,-z) (+x,+z) (-x,+z).
func footprint(l, w, y float64) []Vector3 {
	return []Vector3{
		{X: -0.5 * l, Y: y, Z: -0.5 * w},
		{X: 0.5 * l, Y: y, Z: -0.5 * w},
		{X: 0.5 * l, Y: y, Z: 0.5 * w},
		{X: -0.5 * l, Y: y, Z: 0.5 * w},
	}
}

// Box: floor 0-3, ceiling 4-7, walls 8-11.
func boxGeometry(p BoxParams) Geometry {
	return Geometry{
		Type:     ShapeBox,
		Vertices: append(footprint(p.Length, p.Width, 0), footprint(p.Length, p.Width, p.Height)...),
		Faces: []Face{
			{0, 1, 2}, {0, 2, 3}, // bottom
			{3, 6, 7}, {2, 6, 3}, // front +Z
			{0, 4, 5}, {0, 5, 1}, // back -Z
			{1, 5, 2}, {2, 5, 6}, // right +X
			{0, 3, 7}, {0, 7, 4}, // left -X
			{4, 6, 5}, {4, 7, 6}, // top
		},
		Edges: [][2]int{
			{0, 1}, {1, 2}, {2, 3}, {3, 0},
			{4, 5}, {5, 6}, {6, 7}, {7, 4},
			{0, 4}, {1, 5}, {2, 6}, {3, 7},
		},
	}
}

func rectGeometry(p RectParams) Geometry {
	return Geometry{
		Type:     ShapeRect,
		Vertices: footprint(p.Length, p.Width, 0),
		Faces:    []Face{{0, 2, 1}, {0, 3, 2}},
		Edges:    [][2]int{{0, 1}, {1, 2}, {2, 3}, {3, 0}},
	}
}

// House: floor 0-3 (2 is the floor-front edge), eaves 4-7, walls 8-11,
// roof slopes 12-15, ridge 16.
func houseGeometry(p HouseParams) Geometry {
	verts := append(footprint(p.Length, p.Width, 0), footprint(p.Length, p.Width, p.Height)...)
	verts = append(verts,
		Vector3{X: -0.5 * p.Length, Y: p.Height + p.RoofHeight},
		Vector3{X: 0.5 * p.Length, Y: p.Height + p.RoofHeight},
	)
	return Geometry{
		Type:     ShapeHouse,
		Vertices: verts,
		Faces: []Face{
			{0, 1, 2}, {0, 2, 3}, // bottom
			{3, 6, 7}, {2, 6, 3}, // front +Z
			{6, 8, 7}, {6, 9, 8}, // front roof
			{0, 4, 5}, {0, 5, 1}, // back -Z
			{4, 9, 5}, {4, 8, 9}, // back roof
			{1, 5, 2}, {2, 5, 6}, // right +X
			{6, 5, 9}, // right gable
			{0, 3, 7}, {0, 7, 4}, // left -X
			{4, 7, 8}, // left gable
		},
		Edges: [][2]int{
			{0, 1}, {1, 2}, {2, 3}, {3, 0},
			{4, 5}, {5, 6}, {6, 7}, {7, 4},
			{0, 4}, {1, 5}, {2, 6}, {3, 7},
			{4, 8}, {7, 8}, {5, 9}, {6, 9},
			{8, 9},
		},
	}
}

// Roof: right profile 0-5, left profile 6-11, front 12-13, back 14-15,
// top 16, bottom 17. The cross-section is swept along X.
func roofGeometry(p RoofParams) Geometry {
	xl := -0.5*p.Length - p.OverhangLeft
	xr := 0.5*p.Length + p.OverhangRight
	py, pz := 0.0, p.RoofHeight
	qy := 0.5*p.Width + p.OverhangSide
	qz := -2 * p.RoofHeight * p.OverhangSide / p.Width
	rt := p.RoofThickness

	profile := func(x float64) []Vector3 {
		return []Vector3{
			{X: x, Y: pz, Z: py},
			{X: x, Y: qz, Z: qy},
			{X: x, Y: qz + rt, Z: qy},
			{X: x, Y: pz + rt, Z: py},
			{X: x, Y: qz + rt, Z: -qy},
			{X: x, Y: qz, Z: -qy},
		}
	}

	return Geometry{
		Type:     ShapeRoof,
		Vertices: append(profile(xr), profile(xl)...),
		Faces: []Face{
			{0, 2, 1}, {0, 3, 2}, {0, 4, 3}, {0, 5, 4}, // right
			{6, 7, 8}, {6, 8, 9}, {6, 9, 10}, {6, 10, 11}, // left
			{5, 11, 10}, {5, 10, 4}, // front
			{1, 8, 7}, {1, 2, 8}, // back
			{0, 6, 11}, {0, 11, 5}, // bottom front
			{0, 1, 7}, {0, 7, 6}, // bottom back
			{3, 4, 10}, {3, 10, 9}, // top front
			{2, 3, 8}, {3, 9, 8}, // top back
		},
		Edges: [][2]int{
			{0, 1}, {1, 2}, {2, 3}, {3, 4}, {4, 5}, {5, 0},
			{6, 7}, {7, 8}, {8, 9}, {9, 10}, {10, 11}, {11, 6},
			{4, 10}, {5, 11},
			{1, 7}, {2, 8},
			{3, 9},
			{0, 6},
		},
	}
}

// EdgeCount returns the number of match edges of a shape type, or 0 for an
// unknown type.
func EdgeCount(t ShapeType) int {
	switch t {
	case ShapeBox:
		return 12
	case ShapeRect:
		return 4
	case ShapeHouse:
		return 17
	case ShapeRoof:
		return 18
	}
	return 0
}

// ShapeSpec is one shape instance of a scene.
type ShapeSpec struct {
	ID       int         `json:"id" yaml:"id"`
	Name     string      `json:"name,omitempty" yaml:"name,omitempty"`
	Type     ShapeType   `json:"type" yaml:"type"`
	Position Vector3     `json:"position" yaml:"position"`
	Rotation Vector3     `json:"rotation" yaml:"rotation"`
	Params   ShapeParams `json:"params" yaml:"params"`
}

// Geometry builds the local-space geometry of the shape.
func (s ShapeSpec) Geometry() (Geometry, error) {
	return BuildGeometry(s.Type, s.Params)
}

// newParams returns a decode target for the params record of t.
func newParams(t ShapeType) any {
	switch t {
	case ShapeBox:
		return &BoxParams{}
	case ShapeRect:
		return &RectParams{}
	case ShapeHouse:
		return &HouseParams{}
	case ShapeRoof:
		return &RoofParams{}
	}
	return nil
}

// derefParams turns the decode target from newParams into a value.
func derefParams(target any) ShapeParams {
	switch p := target.(type) {
	case *BoxParams:
		return *p
	case *RectParams:
		return *p
	case *HouseParams:
		return *p
	case *RoofParams:
		return *p
	}
	return nil
}

type shapeSpecYAML struct {
	ID       int       `yaml:"id"`
	Name     string    `yaml:"name"`
	Type     string    `yaml:"type"`
	Position Vector3   `yaml:"position"`
	Rotation Vector3   `yaml:"rotation"`
	Params   yaml.Node `yaml:"params"`
}

// UnmarshalYAML selects the params record from the shape type.
func (s *ShapeSpec) UnmarshalYAML(value *yaml.Node) error {
	var raw shapeSpecYAML
	if err := value.Decode(&raw); err != nil {
		return err
	}
	t, err := ParseShapeType(raw.Type)
	if err != nil {
		return err
	}
	target := newParams(t)
	if raw.Params.Kind != 0 {
		if err := raw.Params.Decode(target); err != nil {
			return fmt.Errorf("shape %d params: %w", raw.ID, err)
		}
	}
	*s = ShapeSpec{
		ID:       raw.ID,
		Name:     raw.Name,
		Type:     t,
		Position: raw.Position,
		Rotation: raw.Rotation,
		Params:   derefParams(target),
	}
	return nil
}

type shapeSpecJSON struct {
	ID       int             `json:"id"`
	Name     string          `json:"name,omitempty"`
	Type     string          `json:"type"`
	TypeName string          `json:"typeName,omitempty"`
	Position Vector3         `json:"position"`
	Rotation Vector3         `json:"rotation"`
	Params   json.RawMessage `json:"params"`
}

// UnmarshalJSON selects the params record from the shape type; "typeName"
// is accepted in place of "type".
func (s *ShapeSpec) UnmarshalJSON(data []byte) error {
	var raw shapeSpecJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	name := raw.Type
	if name == "" {
		name = raw.TypeName
	}
	t, err := ParseShapeType(name)
	if err != nil {
		return err
	}
	target := newParams(t)
	if len(raw.Params) > 0 {
		if err := json.Unmarshal(raw.Params, target); err != nil {
			return fmt.Errorf("shape %d params: %w", raw.ID, err)
		}
	}
	*s = ShapeSpec{
		ID:       raw.ID,
		Name:     raw.Name,
		Type:     t,
		Position: raw.Position,
		Rotation: raw.Rotation,
		Params:   derefParams(target),
	}
	return nil
}
