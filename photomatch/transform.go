package photomatch

import (
	"math"

	"github.com/golang/geo/r3"
)

// Matrix3 is a row-major 3x3 matrix.
type Matrix3 [3][3]float64

// Identity3 returns the identity matrix.
func Identity3() Matrix3 {
	return Matrix3{{1, 0, 0}, {0, 1, 0}, {0, 0, 1}}
}

// EulerMatrix returns R = Rx * Ry * Rz for angles in radians, so the Z
// rotation is applied to a point first and the X rotation last.
func EulerMatrix(rot Vector3) Matrix3 {
	a, b := math.Cos(rot.X), math.Sin(rot.X)
	c, d := math.Cos(rot.Y), math.Sin(rot.Y)
	e, f := math.Cos(rot.Z), math.Sin(rot.Z)

	ae, af, be, bf := a*e, a*f, b*e, b*f
	return Matrix3{
		{c * e, -c * f, d},
		{af + be*d, ae - bf*d, -b * c},
		{bf - ae*d, be + af*d, a * c},
	}
}

// MulVec returns m * v.
func (m Matrix3) MulVec(v r3.Vector) r3.Vector {
	return r3.Vector{
		X: m[0][0]*v.X + m[0][1]*v.Y + m[0][2]*v.Z,
		Y: m[1][0]*v.X + m[1][1]*v.Y + m[1][2]*v.Z,
		Z: m[2][0]*v.X + m[2][1]*v.Y + m[2][2]*v.Z,
	}
}

// Mul returns m * o.
func (m Matrix3) Mul(o Matrix3) Matrix3 {
	var out Matrix3
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			out[i][j] = m[i][0]*o[0][j] + m[i][1]*o[1][j] + m[i][2]*o[2][j]
		}
	}
	return out
}

// Transpose returns the transpose, which is the inverse of a rotation.
func (m Matrix3) Transpose() Matrix3 {
	return Matrix3{
		{m[0][0], m[1][0], m[2][0]},
		{m[0][1], m[1][1], m[2][1]},
		{m[0][2], m[1][2], m[2][2]},
	}
}

// RigidTransform is a rotation followed by a translation.
type RigidTransform struct {
	Rotation    Matrix3
	Translation Vector3
}

// NewRigidTransform builds the transform for an object placed at position
// with XYZ Euler rotation.
func NewRigidTransform(position, rotation Vector3) RigidTransform {
	return RigidTransform{Rotation: EulerMatrix(rotation), Translation: position}
}

// Apply maps a local point to world space.
func (t RigidTransform) Apply(p Vector3) Vector3 {
	return fromVec(t.Rotation.MulVec(p.vec()).Add(t.Translation.vec()))
}

// Inverse returns the transform mapping world space back to local space.
func (t RigidTransform) Inverse() RigidTransform {
	rt := t.Rotation.Transpose()
	return RigidTransform{
		Rotation:    rt,
		Translation: fromVec(rt.MulVec(t.Translation.vec()).Mul(-1)),
	}
}

// ApplyRigidTransform rotates p by the XYZ Euler angles and then translates
// it by position.
func ApplyRigidTransform(p, position, rotation Vector3) Vector3 {
	return NewRigidTransform(position, rotation).Apply(p)
}
