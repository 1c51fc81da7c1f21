package photomatch

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func assertVec3InDelta(t *testing.T, want, got Vector3, delta float64, msgAndArgs ...any) {
	t.Helper()
	assert.InDelta(t, want.X, got.X, delta, msgAndArgs...)
	assert.InDelta(t, want.Y, got.Y, delta, msgAndArgs...)
	assert.InDelta(t, want.Z, got.Z, delta, msgAndArgs...)
}

func assertMatrixInDelta(t *testing.T, want, got Matrix3, delta float64) {
	t.Helper()
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			assert.InDelta(t, want[i][j], got[i][j], delta, "m[%d][%d]", i, j)
		}
	}
}

func TestEulerMatrix_Identity(t *testing.T) {
	assert.Equal(t, Identity3(), EulerMatrix(Vector3{}))
}

func TestEulerMatrix_SingleAxis(t *testing.T) {
	tests := []struct {
		name string
		rot  Vector3
		in   Vector3
		want Vector3
	}{
		{"x quarter turn", Vector3{X: math.Pi / 2}, Vector3{Y: 1}, Vector3{Z: 1}},
		{"y quarter turn", Vector3{Y: math.Pi / 2}, Vector3{Z: 1}, Vector3{X: 1}},
		{"z quarter turn", Vector3{Z: math.Pi / 2}, Vector3{X: 1}, Vector3{Y: 1}},
		{"y half turn", Vector3{Y: math.Pi}, Vector3{X: 1, Z: 2}, Vector3{X: -1, Z: -2}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := fromVec(EulerMatrix(tt.rot).MulVec(tt.in.vec()))
			assertVec3InDelta(t, tt.want, got, 1e-12)
		})
	}
}

func TestEulerMatrix_XYZOrder(t *testing.T) {
	rot := Vector3{X: 0.3, Y: -0.7, Z: 1.1}
	rx := EulerMatrix(Vector3{X: rot.X})
	ry := EulerMatrix(Vector3{Y: rot.Y})
	rz := EulerMatrix(Vector3{Z: rot.Z})

	assertMatrixInDelta(t, rx.Mul(ry).Mul(rz), EulerMatrix(rot), 1e-12)
}

func TestEulerMatrix_Orthonormal(t *testing.T) {
	m := EulerMatrix(Vector3{X: -0.445, Y: 0.452, Z: 0.109})
	assertMatrixInDelta(t, Identity3(), m.Mul(m.Transpose()), 1e-12)
}

func TestRigidTransform_InverseRoundTrip(t *testing.T) {
	xf := NewRigidTransform(Vector3{X: 10, Y: -4, Z: 7}, Vector3{X: 0.2, Y: 1.3, Z: -0.4})
	inv := xf.Inverse()

	for _, p := range []Vector3{{}, {X: 1, Y: 2, Z: 3}, {X: -50, Y: 0.5, Z: 12}} {
		assertVec3InDelta(t, p, inv.Apply(xf.Apply(p)), 1e-9)
	}
}

func TestApplyRigidTransform(t *testing.T) {
	// Rotate a quarter turn about Y, then translate.
	got := ApplyRigidTransform(Vector3{X: 1}, Vector3{X: 10, Y: 5}, Vector3{Y: math.Pi / 2})
	assertVec3InDelta(t, Vector3{X: 10, Y: 5, Z: -1}, got, 1e-12)
}
