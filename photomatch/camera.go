package photomatch

import (
	"math"

	"github.com/golang/geo/r3"
)

const (
	// NearPlane and FarPlane bound the view frustum in world units.
	NearPlane = 0.1
	FarPlane  = 10000.0

	// minClipW keeps the perspective divide finite for points on the
	// camera plane.
	minClipW = 1e-9
)

// Projector maps world points to NDC for one camera and aspect ratio.
//
// The camera looks down its local -Z axis with +Y up. Its world matrix is
// T(position) * R(rotation) and the projection is the OpenGL perspective
// matrix with vertical field of view, so x_ndc and y_ndc both span [-1, 1]
// across the image.
type Projector struct {
	view     Matrix3 // inverse camera rotation
	position r3.Vector
	sx, sy   float64 // focal scale along x and y
}

// NewProjector precomputes the view and projection for a camera.
func NewProjector(camera CameraTransform, aspect float64) Projector {
	f := 1 / math.Tan(camera.FOV*math.Pi/360)
	return Projector{
		view:     EulerMatrix(camera.Rotation).Transpose(),
		position: camera.Position.vec(),
		sx:       f / aspect,
		sy:       f,
	}
}

// ToCamera returns p in camera space.
func (pr Projector) ToCamera(p Vector3) Vector3 {
	return fromVec(pr.view.MulVec(p.vec().Sub(pr.position)))
}

// ProjectClip returns the NDC position of p and its clip w, which is the
// distance of p in front of the camera. Points behind the camera have a
// negative w and are mirrored through the image centre by the divide.
func (pr Projector) ProjectClip(p Vector3) (Vector2, float64) {
	c := pr.ToCamera(p)
	w := -c.Z
	d := w
	if math.Abs(d) < minClipW {
		if d < 0 {
			d = -minClipW
		} else {
			d = minClipW
		}
	}
	return Vector2{X: pr.sx * c.X / d, Y: pr.sy * c.Y / d}, w
}

// Project returns the NDC position of p.
func (pr Projector) Project(p Vector3) Vector2 {
	v, _ := pr.ProjectClip(p)
	return v
}

// InFrustum reports whether p lies between the near and far planes.
func (pr Projector) InFrustum(p Vector3) bool {
	_, w := pr.ProjectClip(p)
	return w >= NearPlane && w <= FarPlane
}

// ProjectEdge projects both endpoints of a match edge.
func (pr Projector) ProjectEdge(e MatchEdge) ProjectedEdge {
	return ProjectedEdge{
		ShapeID:   e.ShapeID,
		EdgeIndex: e.EdgeIndex,
		V0:        pr.Project(e.V0),
		V1:        pr.Project(e.V1),
	}
}

// Project maps a world point to NDC for the given camera.
func Project(camera CameraTransform, aspect float64, p Vector3) Vector2 {
	return NewProjector(camera, aspect).Project(p)
}

// ProjectEdge maps a match edge to NDC for the given camera.
func ProjectEdge(camera CameraTransform, aspect float64, e MatchEdge) ProjectedEdge {
	return NewProjector(camera, aspect).ProjectEdge(e)
}

// ProjectEdges maps every edge to NDC, preserving order.
func ProjectEdges(camera CameraTransform, aspect float64, edges []MatchEdge) []ProjectedEdge {
	pr := NewProjector(camera, aspect)
	out := make([]ProjectedEdge, len(edges))
	for i, e := range edges {
		out[i] = pr.ProjectEdge(e)
	}
	return out
}
