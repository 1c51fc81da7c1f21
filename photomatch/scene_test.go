package photomatch

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testShapes() []ShapeSpec {
	return []ShapeSpec{
		{ID: 1, Name: "house", Type: ShapeHouse, Params: HouseParams{Length: 200, Width: 150, Height: 120, RoofHeight: 60}},
		{ID: 2, Name: "shed", Type: ShapeBox, Position: Vector3{X: 250}, Rotation: Vector3{Y: 0.3}, Params: BoxParams{Length: 100, Width: 100, Height: 50}},
		{ID: 3, Name: "yard", Type: ShapeRect, Position: Vector3{Z: 250}, Params: RectParams{Length: 400, Width: 300}},
	}
}

func TestAssemble_OrderAndCount(t *testing.T) {
	edges, err := Assemble(testShapes())
	require.NoError(t, err)
	require.Len(t, edges, 17+12+4)

	i := 0
	for _, want := range []struct{ shape, count int }{{1, 17}, {2, 12}, {3, 4}} {
		for e := 0; e < want.count; e++ {
			assert.Equal(t, want.shape, edges[i].ShapeID)
			assert.Equal(t, e, edges[i].EdgeIndex)
			i++
		}
	}
}

func TestAssemble_Placement(t *testing.T) {
	shapes := []ShapeSpec{{
		ID:       7,
		Type:     ShapeBox,
		Position: Vector3{X: 10},
		Rotation: Vector3{Y: math.Pi / 2},
		Params:   BoxParams{Length: 4, Width: 2, Height: 1},
	}}
	edges, err := Assemble(shapes)
	require.NoError(t, err)

	// Local (-2, 0, -1) turns to (-1, 0, 2) and moves by +10 in X.
	assertVec3InDelta(t, Vector3{X: 9, Y: 0, Z: 2}, edges[0].V0, 1e-12)
	assert.Equal(t, EdgeRef{ShapeID: 7, EdgeIndex: 0}, edges[0].Ref())
}

func TestAssemble_IdentityPlacementMatchesGeometry(t *testing.T) {
	g, err := BuildGeometry(ShapeHouse, HouseParams{Length: 10, Width: 6, Height: 4, RoofHeight: 2})
	require.NoError(t, err)
	edges, err := Assemble([]ShapeSpec{{ID: 1, Type: ShapeHouse, Params: HouseParams{Length: 10, Width: 6, Height: 4, RoofHeight: 2}}})
	require.NoError(t, err)

	for i, seg := range g.MatchEdges() {
		assert.Equal(t, seg.V0, edges[i].V0, "edge %d", i)
		assert.Equal(t, seg.V1, edges[i].V1, "edge %d", i)
	}
}

func TestAssemble_DuplicateShapeID(t *testing.T) {
	shapes := testShapes()
	shapes[2].ID = 1
	_, err := Assemble(shapes)
	assert.True(t, errors.Is(err, ErrDuplicateShapeID))
}

func TestAssemble_InvalidShape(t *testing.T) {
	shapes := testShapes()
	shapes[1].Params = BoxParams{Length: 1, Width: 1}
	_, err := Assemble(shapes)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalidShape))
	assert.Contains(t, err.Error(), "shape 2")
}

func TestAssemble_Empty(t *testing.T) {
	edges, err := Assemble(nil)
	require.NoError(t, err)
	assert.Empty(t, edges)
}

func TestSceneDefinition_Shape(t *testing.T) {
	def := SceneDefinition{ID: 1, Shapes: testShapes()}
	s, ok := def.Shape(2)
	require.True(t, ok)
	assert.Equal(t, "shed", s.Name)

	_, ok = def.Shape(99)
	assert.False(t, ok)
	assert.NoError(t, def.Validate())
}

func TestShapeMesh_MatchEdges(t *testing.T) {
	meshes, err := AssembleMeshes(testShapes())
	require.NoError(t, err)
	require.Len(t, meshes, 3)

	house := meshes[0]
	assert.Equal(t, ShapeHouse, house.Type)
	assert.Len(t, house.Vertices, 10)
	assert.Len(t, house.Faces, 16)

	edges := house.MatchEdges()
	assert.Equal(t, house.Vertices[8], edges[16].V0)
	assert.Equal(t, house.Vertices[9], edges[16].V1)
}

// ---------------------------------------------------------------------------
// SceneCache
// ---------------------------------------------------------------------------

func TestSceneCache(t *testing.T) {
	cache := NewSceneCache()
	def := SceneDefinition{ID: 4, Shapes: testShapes()}

	edges, err := cache.Edges(def)
	require.NoError(t, err)
	assert.Len(t, edges, 33)
	assert.Equal(t, 1, cache.Len())

	// Scene definitions are fixed for the life of the process, so a cached
	// scene ignores later definitions with the same id.
	changed := SceneDefinition{ID: 4, Shapes: testShapes()[:1]}
	edges, err = cache.Edges(changed)
	require.NoError(t, err)
	assert.Len(t, edges, 33)

	meshes, err := cache.Meshes(SceneDefinition{ID: 5, Shapes: testShapes()[:1]})
	require.NoError(t, err)
	assert.Len(t, meshes, 1)
	assert.Equal(t, 2, cache.Len())
}

func TestSceneCache_Error(t *testing.T) {
	cache := NewSceneCache()
	shapes := testShapes()
	shapes[0].Params = nil
	_, err := cache.Meshes(SceneDefinition{ID: 9, Shapes: shapes})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "scene 9")
	assert.Equal(t, 0, cache.Len())
}
