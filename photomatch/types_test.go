package photomatch

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCameraVectorRoundTrip(t *testing.T) {
	cam := DefaultCamera()
	x := cam.Vector()
	require.Len(t, x, CameraParams)
	assert.Equal(t, cam.FOV, x[0])
	assert.Equal(t, cam.Rotation.Z, x[6])

	back, err := CameraFromVector(x)
	require.NoError(t, err)
	assert.Equal(t, cam, back)

	_, err = CameraFromVector(x[:6])
	assert.ErrorContains(t, err, "7 elements")
}

func TestEdgeRefString(t *testing.T) {
	assert.Equal(t, "s3:e16", EdgeRef{ShapeID: 3, EdgeIndex: 16}.String())
}

func TestVector3(t *testing.T) {
	a := Vector3{X: 1, Y: 2, Z: 2}
	assert.Equal(t, Vector3{X: 2, Y: 4, Z: 4}, a.Add(a))
	assert.Equal(t, Vector3{}, a.Sub(a))
	assert.InDelta(t, 3, a.Distance(Vector3{}), 1e-12)
}

func TestLineJSON(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    Line
		wantErr string
	}{
		{
			name:  "linked",
			input: `{"id":4,"v0":{"x":0.1,"y":0.2},"v1":{"x":0.3,"y":0.4},"matchingShapeId":2,"matchingEdgeId":7}`,
			want:  Line{ID: 4, V0: Vector2{X: 0.1, Y: 0.2}, V1: Vector2{X: 0.3, Y: 0.4}, Match: &EdgeRef{ShapeID: 2, EdgeIndex: 7}},
		},
		{
			name:  "unlinked sentinel",
			input: `{"id":1,"v0":{"x":0,"y":0},"v1":{"x":1,"y":1},"matchingShapeId":-1,"matchingEdgeId":-1}`,
			want:  Line{ID: 1, V1: Vector2{X: 1, Y: 1}},
		},
		{
			name:  "link fields absent",
			input: `{"id":2,"v0":{"x":0,"y":0},"v1":{"x":1,"y":0}}`,
			want:  Line{ID: 2, V1: Vector2{X: 1}},
		},
		{
			name:  "legacy edge index",
			input: `{"id":3,"v0":{"x":0,"y":0},"v1":{"x":0,"y":1},"matchingShapeId":1,"matchingEdgeIndex":16}`,
			want:  Line{ID: 3, V1: Vector2{Y: 1}, Match: &EdgeRef{ShapeID: 1, EdgeIndex: 16}},
		},
		{
			name:    "shape without edge",
			input:   `{"id":5,"v0":{"x":0,"y":0},"v1":{"x":0,"y":1},"matchingShapeId":1,"matchingEdgeId":-1}`,
			wantErr: "both be set",
		},
		{
			name:    "edge without shape",
			input:   `{"id":6,"v0":{"x":0,"y":0},"v1":{"x":0,"y":1},"matchingEdgeId":3}`,
			wantErr: "both be set",
		},
		{
			name:    "negative edge",
			input:   `{"id":7,"v0":{"x":0,"y":0},"v1":{"x":0,"y":1},"matchingShapeId":1,"matchingEdgeId":-4}`,
			wantErr: "negative edge index",
		},
		{
			name:    "negative shape",
			input:   `{"id":8,"v0":{"x":0,"y":0},"v1":{"x":0,"y":1},"matchingShapeId":-3,"matchingEdgeId":2}`,
			wantErr: "negative shape id",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got Line
			err := json.Unmarshal([]byte(tt.input), &got)
			if tt.wantErr != "" {
				assert.ErrorContains(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestLineJSON_WritesSentinel(t *testing.T) {
	data, err := json.Marshal(Line{ID: 9, V1: Vector2{X: 1}})
	require.NoError(t, err)
	assert.JSONEq(t, `{"id":9,"v0":{"x":0,"y":0},"v1":{"x":1,"y":0},"matchingShapeId":-1,"matchingEdgeId":-1}`, string(data))

	linked := Line{ID: 10, Match: &EdgeRef{ShapeID: 1, EdgeIndex: 2}}
	data, err = json.Marshal(linked)
	require.NoError(t, err)

	var back Line
	require.NoError(t, json.Unmarshal(data, &back))
	assert.Equal(t, linked, back)
	assert.True(t, back.Linked())
}
