package photomatch

import (
	"context"
	"fmt"
	"log"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/kwv/photomatch/simplex"
)

// SolverConfig controls the camera solve.
type SolverConfig struct {
	MaxIterations int             `json:"maxIterations" yaml:"maxIterations"` // Total optimizer iterations across all runs
	MinErrorDelta float64         `json:"minErrorDelta" yaml:"minErrorDelta"` // Simplex error spread that ends a run
	MinTolerance  float64         `json:"minTolerance" yaml:"minTolerance"`   // Simplex parameter spread that ends a run; 0 disables
	MaxError      float64         `json:"maxError" yaml:"maxError"`           // Largest error that is still accepted
	Restarts      int             `json:"restarts" yaml:"restarts"`           // Extra runs from the best point so far
	Bounds        ParameterBounds `json:"bounds" yaml:"bounds"`
}

// DefaultSolverConfig returns the tuning used for hand-drawn lines.
func DefaultSolverConfig() SolverConfig {
	return SolverConfig{
		MaxIterations: 7 * 200 * 10,
		MinErrorDelta: 1e-9,
		MinTolerance:  1e-5,
		MaxError:      0.01,
		Restarts:      2,
		Bounds:        DefaultParameterBounds(),
	}
}

// Validate reports the first invalid field.
func (c SolverConfig) Validate() error {
	switch {
	case c.MaxIterations <= 0:
		return fmt.Errorf("solver.maxIterations must be positive, got %d", c.MaxIterations)
	case c.MinErrorDelta < 0:
		return fmt.Errorf("solver.minErrorDelta must be non-negative, got %g", c.MinErrorDelta)
	case c.MinTolerance < 0:
		return fmt.Errorf("solver.minTolerance must be non-negative, got %g", c.MinTolerance)
	case c.MaxError < 0:
		return fmt.Errorf("solver.maxError must be non-negative, got %g", c.MaxError)
	case c.Restarts < 0:
		return fmt.Errorf("solver.restarts must be non-negative, got %d", c.Restarts)
	case c.Bounds.FOVMin > c.Bounds.FOVMax:
		return fmt.Errorf("solver.bounds: fovMin %g exceeds fovMax %g", c.Bounds.FOVMin, c.Bounds.FOVMax)
	case c.Bounds.PositionMin > c.Bounds.PositionMax:
		return fmt.Errorf("solver.bounds: positionMin %g exceeds positionMax %g", c.Bounds.PositionMin, c.Bounds.PositionMax)
	case c.Bounds.RotationMin > c.Bounds.RotationMax:
		return fmt.Errorf("solver.bounds: rotationMin %g exceeds rotationMax %g", c.Bounds.RotationMin, c.Bounds.RotationMax)
	}
	return nil
}

// TracePoint is the best error after one optimizer iteration.
type TracePoint struct {
	Iteration int     `json:"iteration"`
	Error     float64 `json:"error"`
}

// SolveResult is the outcome of a camera solve. When Accepted is false,
// Camera equals Initial.
type SolveResult struct {
	ID          string          `json:"id"`
	Camera      CameraTransform `json:"camera"`
	Initial     CameraTransform `json:"initial"`
	Error       float64         `json:"error"`
	Links       int             `json:"links"`
	Iterations  int             `json:"iterations"`
	Evaluations int             `json:"evaluations"`
	Runs        int             `json:"runs"`
	Converged   bool            `json:"converged"`
	Accepted    bool            `json:"accepted"`
	Residuals   []LineResidual  `json:"residuals,omitempty"`
	Trace       []TracePoint    `json:"-"`
	Duration    time.Duration   `json:"duration"`
}

// Solve assembles the scene and searches the camera that best aligns the
// linked match edges with their lines.
func Solve(ctx context.Context, initial CameraTransform, aspect float64, shapes []ShapeSpec, lines []Line, cfg SolverConfig) (SolveResult, error) {
	edges, err := Assemble(shapes)
	if err != nil {
		return SolveResult{}, fmt.Errorf("assembling scene: %w", err)
	}
	return SolveEdges(ctx, initial, aspect, edges, lines, cfg)
}

// SolveEdges is Solve for already assembled match edges.
//
// Failing to reach cfg.MaxError is not an error: the result carries
// Accepted=false and the initial camera. Errors are returned only for
// invalid input and for cancellation of ctx.
func SolveEdges(ctx context.Context, initial CameraTransform, aspect float64, edges []MatchEdge, lines []Line, cfg SolverConfig) (SolveResult, error) {
	if err := cfg.Validate(); err != nil {
		return SolveResult{}, err
	}
	if !(aspect > 0) || math.IsInf(aspect, 0) {
		return SolveResult{}, fmt.Errorf("aspect ratio must be positive and finite, got %g", aspect)
	}

	start := time.Now()
	obj := NewObjective(aspect, edges, lines, cfg.Bounds)
	result := SolveResult{
		ID:      uuid.New().String(),
		Camera:  initial,
		Initial: initial,
		Links:   obj.Len(),
	}

	best := simplex.Result{X: initial.Vector()}
	best.F = obj.Func(best.X)

	remaining := cfg.MaxIterations
	for run := 0; run <= cfg.Restarts && remaining > 0; run++ {
		offset := result.Iterations
		sc := simplex.Config{
			MaxIterations: remaining,
			MinErrorDelta: cfg.MinErrorDelta,
			MinTolerance:  cfg.MinTolerance,
			OnIteration: func(iteration int, f float64) {
				result.Trace = append(result.Trace, TracePoint{Iteration: offset + iteration, Error: f})
			},
		}

		r, err := simplex.Minimize(ctx, obj.Func, best.X, sc)
		result.Iterations += r.Iterations
		result.Evaluations += r.Evaluations
		result.Runs++
		remaining -= r.Iterations
		if err != nil {
			return result, fmt.Errorf("solving camera: %w", err)
		}
		log.Printf("Solve: run=%d iterations=%d error=%.3g converged=%v", run, r.Iterations, r.F, r.Converged)

		improvement := best.F - r.F
		if r.F <= best.F {
			best = r
		}
		result.Converged = r.Converged
		if !r.Converged || (run > 0 && improvement < cfg.MinErrorDelta) {
			break
		}
	}

	result.Error = best.F
	result.Accepted = best.F <= cfg.MaxError
	if result.Accepted {
		result.Camera = cameraFromVector(best.X)
	}
	result.Residuals = obj.Residuals(cameraFromVector(best.X))
	result.Duration = time.Since(start)

	if result.Accepted {
		log.Printf("Solve %s: accepted error=%.3g links=%d iterations=%d", result.ID, result.Error, result.Links, result.Iterations)
	} else {
		log.Printf("Solve %s: rejected error=%.3g exceeds %.3g, keeping initial camera", result.ID, result.Error, cfg.MaxError)
	}
	return result, nil
}
