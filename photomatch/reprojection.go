package photomatch

import "math"

const (
	// DegenerateEdgePenalty replaces the misfit of a projected edge that
	// collapsed to a point, and any non-finite term.
	DegenerateEdgePenalty = 1e6

	// degenerateLengthSq is the squared NDC length below which a projected
	// edge has no direction.
	degenerateLengthSq = 1e-18
)

// DistanceSqPointToLine returns the squared perpendicular distance from p
// to the infinite line through a and b. ok is false when a and b coincide.
func DistanceSqPointToLine(p, a, b Vector2) (d float64, ok bool) {
	xa := b.X - a.X
	ya := b.Y - a.Y
	lenSq := xa*xa + ya*ya
	if lenSq < degenerateLengthSq {
		return 0, false
	}
	dd := xa*(a.Y-p.Y) - (a.X-p.X)*ya
	return dd * dd / lenSq, true
}

// ParameterBounds are the soft limits of the camera parameters.
type ParameterBounds struct {
	FOVMin      float64 `json:"fovMin" yaml:"fovMin"`
	FOVMax      float64 `json:"fovMax" yaml:"fovMax"`
	PositionMin float64 `json:"positionMin" yaml:"positionMin"`
	PositionMax float64 `json:"positionMax" yaml:"positionMax"`
	RotationMin float64 `json:"rotationMin" yaml:"rotationMin"`
	RotationMax float64 `json:"rotationMax" yaml:"rotationMax"`
}

// DefaultParameterBounds keeps fov in [10, 60] degrees, each position
// coordinate in [-2000, 2000] and each rotation angle in [-2.1π, 2.1π].
func DefaultParameterBounds() ParameterBounds {
	return ParameterBounds{
		FOVMin:      10,
		FOVMax:      60,
		PositionMin: -2000,
		PositionMax: 2000,
		RotationMin: -2.1 * math.Pi,
		RotationMax: 2.1 * math.Pi,
	}
}

// ConstraintError is the squared distance of x outside [min, max].
func ConstraintError(x, min, max float64) float64 {
	if x < min {
		return (min - x) * (min - x)
	}
	if x > max {
		return (x - max) * (x - max)
	}
	return 0
}

// Penalty sums ConstraintError over all seven camera parameters.
func (b ParameterBounds) Penalty(c CameraTransform) float64 {
	p := ConstraintError(c.FOV, b.FOVMin, b.FOVMax)
	for _, v := range []float64{c.Position.X, c.Position.Y, c.Position.Z} {
		p += ConstraintError(v, b.PositionMin, b.PositionMax)
	}
	for _, v := range []float64{c.Rotation.X, c.Rotation.Y, c.Rotation.Z} {
		p += ConstraintError(v, b.RotationMin, b.RotationMax)
	}
	return p
}

// LineResidual is the misfit of one linked line.
type LineResidual struct {
	LineID     int     `json:"lineId"`
	Edge       EdgeRef `json:"edge"`
	Error      float64 `json:"error"`
	Degenerate bool    `json:"degenerate,omitempty"`
}

// Objective is the reprojection error of one photo as a function of the
// camera. Correspondences are resolved once at construction.
type Objective struct {
	pairs  []Correspondence
	aspect float64
	bounds ParameterBounds
}

// NewObjective pairs the linked lines with their edges.
func NewObjective(aspect float64, edges []MatchEdge, lines []Line, bounds ParameterBounds) *Objective {
	return &Objective{
		pairs:  NewCorrespondenceSet(lines).Pairs(edges),
		aspect: aspect,
		bounds: bounds,
	}
}

// Len returns the number of correspondences that contribute to the error.
func (o *Objective) Len() int {
	return len(o.pairs)
}

// Error is the geometric misfit of every correspondence plus the bound
// penalty. The two terms are summed unweighted.
func (o *Objective) Error(camera CameraTransform) float64 {
	pr := NewProjector(camera, o.aspect)
	d := 0.0
	for _, c := range o.pairs {
		d += finiteOrPenalty(pairError(pr, c))
	}
	return d + finiteOrPenalty(o.bounds.Penalty(camera))
}

// Func adapts Error to a parameter vector for the optimizer.
func (o *Objective) Func(x []float64) float64 {
	return o.Error(cameraFromVector(x))
}

// Residuals reports the misfit of each correspondence.
func (o *Objective) Residuals(camera CameraTransform) []LineResidual {
	pr := NewProjector(camera, o.aspect)
	out := make([]LineResidual, len(o.pairs))
	for i, c := range o.pairs {
		e := pairError(pr, c)
		out[i] = LineResidual{
			LineID:     c.Line.ID,
			Edge:       c.Edge.Ref(),
			Error:      finiteOrPenalty(e),
			Degenerate: e == DegenerateEdgePenalty,
		}
	}
	return out
}

// pairError sums the squared distances of both line endpoints to the
// infinite line through the projected edge.
func pairError(pr Projector, c Correspondence) float64 {
	pe := pr.ProjectEdge(c.Edge)
	d0, ok0 := DistanceSqPointToLine(c.Line.V0, pe.V0, pe.V1)
	d1, ok1 := DistanceSqPointToLine(c.Line.V1, pe.V0, pe.V1)
	if !ok0 || !ok1 {
		return DegenerateEdgePenalty
	}
	return d0 + d1
}

func finiteOrPenalty(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return DegenerateEdgePenalty
	}
	return v
}

// ReprojectionError evaluates the objective once.
func ReprojectionError(camera CameraTransform, aspect float64, edges []MatchEdge, lines []Line) float64 {
	return NewObjective(aspect, edges, lines, DefaultParameterBounds()).Error(camera)
}
