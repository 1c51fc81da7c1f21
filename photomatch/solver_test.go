package photomatch

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ---------------------------------------------------------------------------
// fixtures
// ---------------------------------------------------------------------------

// targetCamera frames every shape of testShapes on a 3:2 photo.
func targetCamera() CameraTransform {
	return CameraTransform{
		FOV:      40,
		Position: Vector3{X: 380, Y: 260, Z: 780},
		Rotation: Vector3{X: -0.30, Y: 0.47, Z: 0.05},
	}
}

func startCamera() CameraTransform {
	return CameraTransform{
		FOV:      50,
		Position: Vector3{X: 400, Y: 300, Z: 750},
		Rotation: Vector3{X: -0.35, Y: 0.5, Z: 0},
	}
}

func targetRefs() []EdgeRef {
	return []EdgeRef{
		{1, 0}, {1, 1}, {1, 2}, {1, 8}, {1, 10}, {1, 12}, {1, 16},
		{2, 0}, {2, 1}, {2, 9},
		{3, 0}, {3, 1},
	}
}

func assertCameraInDelta(t *testing.T, want, got CameraTransform) {
	t.Helper()
	assert.InDelta(t, want.FOV, got.FOV, 1e-2, "fov")
	assertVec3InDelta(t, want.Position, got.Position, 1e-1, "position")
	assertVec3InDelta(t, want.Rotation, got.Rotation, 1e-3, "rotation")
}

// ---------------------------------------------------------------------------
// SolverConfig
// ---------------------------------------------------------------------------

func TestSolverConfig_Validate(t *testing.T) {
	assert.NoError(t, DefaultSolverConfig().Validate())

	tests := []struct {
		name   string
		mutate func(*SolverConfig)
		want   string
	}{
		{"zero iterations", func(c *SolverConfig) { c.MaxIterations = 0 }, "maxIterations"},
		{"negative delta", func(c *SolverConfig) { c.MinErrorDelta = -1 }, "minErrorDelta"},
		{"negative tolerance", func(c *SolverConfig) { c.MinTolerance = -1 }, "minTolerance"},
		{"negative max error", func(c *SolverConfig) { c.MaxError = -1 }, "maxError"},
		{"negative restarts", func(c *SolverConfig) { c.Restarts = -1 }, "restarts"},
		{"inverted fov bounds", func(c *SolverConfig) { c.Bounds.FOVMin = 90 }, "fovMin"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultSolverConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

// ---------------------------------------------------------------------------
// SolveEdges
// ---------------------------------------------------------------------------

func TestSolveEdges_RecoversGroundTruth(t *testing.T) {
	edges, err := Assemble(testShapes())
	require.NoError(t, err)
	lines := groundTruthLines(targetCamera(), 1.5, edges, targetRefs())

	res, err := SolveEdges(context.Background(), startCamera(), 1.5, edges, lines, DefaultSolverConfig())
	require.NoError(t, err)

	assert.True(t, res.Accepted)
	assert.True(t, res.Converged)
	assert.Less(t, res.Error, 1e-9)
	assert.Equal(t, 12, res.Links)
	assert.Equal(t, startCamera(), res.Initial)
	assertCameraInDelta(t, targetCamera(), res.Camera)
	assert.NotEmpty(t, res.ID)
	assert.Len(t, res.Residuals, 12)
	assert.LessOrEqual(t, res.Iterations, DefaultSolverConfig().MaxIterations)
	assert.Greater(t, res.Evaluations, res.Iterations)
}

func TestSolveEdges_Trace(t *testing.T) {
	edges, err := Assemble(testShapes())
	require.NoError(t, err)
	lines := groundTruthLines(targetCamera(), 1.5, edges, targetRefs())

	res, err := SolveEdges(context.Background(), startCamera(), 1.5, edges, lines, DefaultSolverConfig())
	require.NoError(t, err)

	require.Len(t, res.Trace, res.Iterations)
	for i, tp := range res.Trace {
		assert.Equal(t, i+1, tp.Iteration)
		if i > 0 {
			assert.LessOrEqual(t, tp.Error, res.Trace[i-1].Error, "iteration %d", tp.Iteration)
		}
	}
	assert.Equal(t, res.Error, res.Trace[len(res.Trace)-1].Error)
}

func TestSolveEdges_Deterministic(t *testing.T) {
	edges, err := Assemble(testShapes())
	require.NoError(t, err)
	lines := groundTruthLines(targetCamera(), 1.5, edges, targetRefs())

	a, err := SolveEdges(context.Background(), startCamera(), 1.5, edges, lines, DefaultSolverConfig())
	require.NoError(t, err)
	b, err := SolveEdges(context.Background(), startCamera(), 1.5, edges, lines, DefaultSolverConfig())
	require.NoError(t, err)

	assert.Equal(t, a.Camera, b.Camera)
	assert.Equal(t, a.Error, b.Error)
	assert.Equal(t, a.Iterations, b.Iterations)
	assert.NotEqual(t, a.ID, b.ID)
}

func TestSolveEdges_NonConvergenceKeepsInitial(t *testing.T) {
	edges, err := Assemble(testShapes())
	require.NoError(t, err)
	lines := groundTruthLines(targetCamera(), 1.5, edges, targetRefs())

	cfg := DefaultSolverConfig()
	cfg.MaxIterations = 3
	res, err := SolveEdges(context.Background(), startCamera(), 1.5, edges, lines, cfg)
	require.NoError(t, err)

	assert.False(t, res.Accepted)
	assert.False(t, res.Converged)
	assert.Equal(t, startCamera(), res.Camera)
	assert.Greater(t, res.Error, cfg.MaxError)
	assert.Equal(t, 3, res.Iterations)
	assert.Equal(t, 1, res.Runs)
}

func TestSolveEdges_EmptyLinksConvergeTrivially(t *testing.T) {
	res, err := SolveEdges(context.Background(), DefaultCamera(), 1.5, nil, nil, DefaultSolverConfig())
	require.NoError(t, err)

	assert.True(t, res.Converged)
	assert.True(t, res.Accepted)
	assert.Equal(t, 0.0, res.Error)
	assert.Equal(t, 0, res.Links)
	assert.Equal(t, DefaultCamera(), res.Camera)
}

func TestSolveEdges_OutOfBoundsWithoutBudget(t *testing.T) {
	initial := DefaultCamera()
	initial.FOV = 200

	cfg := DefaultSolverConfig()
	cfg.MaxIterations = 2
	res, err := SolveEdges(context.Background(), initial, 1.5, nil, nil, cfg)
	require.NoError(t, err)

	assert.False(t, res.Accepted)
	assert.Equal(t, initial, res.Camera)
	assert.GreaterOrEqual(t, res.Error, cfg.MaxError)
}

func TestSolveEdges_OutOfBoundsPulledBack(t *testing.T) {
	initial := DefaultCamera()
	initial.FOV = 200

	res, err := SolveEdges(context.Background(), initial, 1.5, nil, nil, DefaultSolverConfig())
	require.NoError(t, err)

	assert.True(t, res.Accepted)
	assert.LessOrEqual(t, res.Camera.FOV, DefaultParameterBounds().FOVMax)
}

func TestSolveEdges_Cancelled(t *testing.T) {
	edges, err := Assemble(testShapes())
	require.NoError(t, err)
	lines := groundTruthLines(targetCamera(), 1.5, edges, targetRefs())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = SolveEdges(ctx, startCamera(), 1.5, edges, lines, DefaultSolverConfig())
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled))
}

func TestSolveEdges_InvalidInput(t *testing.T) {
	_, err := SolveEdges(context.Background(), DefaultCamera(), 0, nil, nil, DefaultSolverConfig())
	assert.ErrorContains(t, err, "aspect")

	cfg := DefaultSolverConfig()
	cfg.MaxIterations = -1
	_, err = SolveEdges(context.Background(), DefaultCamera(), 1, nil, nil, cfg)
	assert.ErrorContains(t, err, "maxIterations")
}

// ---------------------------------------------------------------------------
// Solve
// ---------------------------------------------------------------------------

// Two lines on a house: the floor-front edge and the ridge. Four
// constraints do not pin all seven parameters, so the check is that the
// solved camera puts both edges back on their lines.
func TestSolve_HouseScenario(t *testing.T) {
	shapes := []ShapeSpec{{ID: 1, Type: ShapeHouse, Params: HouseParams{Length: 170, Width: 69, Height: 52, RoofHeight: 22}}}
	edges, err := Assemble(shapes)
	require.NoError(t, err)

	initial := CameraTransform{
		FOV:      50,
		Position: Vector3{X: 200, Y: 100, Z: 400},
		Rotation: Vector3{X: -0.445, Y: 0.452, Z: 0.109},
	}
	target := CameraTransform{
		FOV:      50,
		Position: Vector3{X: 205, Y: 98, Z: 395},
		Rotation: Vector3{X: -0.44, Y: 0.455, Z: 0.11},
	}
	lines := groundTruthLines(target, 1.5, edges, []EdgeRef{{1, 2}, {1, 16}})

	res, err := Solve(context.Background(), initial, 1.5, shapes, lines, DefaultSolverConfig())
	require.NoError(t, err)

	assert.True(t, res.Accepted)
	assert.Less(t, res.Error, 0.01)
	assert.Equal(t, 2, res.Links)
	// Two lines leave the pose underdetermined, so only the fit is checked.
	for _, r := range res.Residuals {
		assert.Less(t, r.Error, 1e-9, "line %d", r.LineID)
	}
}

func TestSolve_ShapeError(t *testing.T) {
	shapes := []ShapeSpec{{ID: 1, Type: ShapeBox, Params: BoxParams{}}}
	_, err := Solve(context.Background(), DefaultCamera(), 1, shapes, nil, DefaultSolverConfig())
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalidShape))
}
