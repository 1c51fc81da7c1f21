// Package simplex implements a derivative-free Nelder–Mead minimizer.
//
// The minimizer is deterministic: the initial simplex is built from the
// starting point alone, ties are broken by keeping the earlier vertex, and no
// randomness is involved anywhere.
package simplex

import (
	"context"
	"errors"
	"fmt"
	"math"
	"slices"

	"gonum.org/v1/gonum/floats"
)

// ErrEmptyStart is returned when the starting point has no coordinates.
var ErrEmptyStart = errors.New("simplex: starting point is empty")

// Func is the objective to minimize. It must not retain x.
type Func func(x []float64) float64

// Config holds the stopping criteria and the Nelder–Mead coefficients.
type Config struct {
	MaxIterations int     // Hard cap on iterations
	MinErrorDelta float64 // Stop when |f(best) - f(worst)| falls below this
	MinTolerance  float64 // ... and the best two vertices differ by less than this per coordinate; 0 disables

	NonZeroDelta float64 // Initial simplex scale for non-zero coordinates
	ZeroDelta    float64 // Initial simplex offset for zero coordinates

	Rho   float64 // Reflection
	Chi   float64 // Expansion
	Psi   float64 // Contraction
	Sigma float64 // Shrink

	// OnIteration, if set, is called after every iteration with the
	// iteration number (starting at 1) and the best objective value.
	OnIteration func(iteration int, best float64)
}

// DefaultConfig returns the standard coefficients with a generous budget.
func DefaultConfig() Config {
	return Config{
		MaxIterations: 1000,
		MinErrorDelta: 1e-6,
		MinTolerance:  1e-5,
		NonZeroDelta:  1.05,
		ZeroDelta:     0.001,
		Rho:           1,
		Chi:           2,
		Psi:           -0.5,
		Sigma:         0.5,
	}
}

// Validate reports the first invalid field.
func (c Config) Validate() error {
	switch {
	case c.MaxIterations <= 0:
		return fmt.Errorf("simplex: maxIterations must be positive, got %d", c.MaxIterations)
	case c.MinErrorDelta < 0 || math.IsNaN(c.MinErrorDelta):
		return fmt.Errorf("simplex: minErrorDelta must be non-negative, got %g", c.MinErrorDelta)
	case c.MinTolerance < 0 || math.IsNaN(c.MinTolerance):
		return fmt.Errorf("simplex: minTolerance must be non-negative, got %g", c.MinTolerance)
	case c.Rho <= 0:
		return fmt.Errorf("simplex: rho must be positive, got %g", c.Rho)
	case c.Chi <= 1:
		return fmt.Errorf("simplex: chi must be greater than 1, got %g", c.Chi)
	case c.Psi <= -1 || c.Psi >= 0:
		return fmt.Errorf("simplex: psi must be in (-1, 0), got %g", c.Psi)
	case c.Sigma <= 0 || c.Sigma >= 1:
		return fmt.Errorf("simplex: sigma must be in (0, 1), got %g", c.Sigma)
	}
	return nil
}

// withCoefficients fills zero coefficients from DefaultConfig so callers
// only need to set the stopping criteria.
func (c Config) withCoefficients() Config {
	d := DefaultConfig()
	if c.NonZeroDelta == 0 {
		c.NonZeroDelta = d.NonZeroDelta
	}
	if c.ZeroDelta == 0 {
		c.ZeroDelta = d.ZeroDelta
	}
	if c.Rho == 0 {
		c.Rho = d.Rho
	}
	if c.Chi == 0 {
		c.Chi = d.Chi
	}
	if c.Psi == 0 {
		c.Psi = d.Psi
	}
	if c.Sigma == 0 {
		c.Sigma = d.Sigma
	}
	return c
}

// Result is the outcome of a minimization.
type Result struct {
	X           []float64 // Best point found
	F           float64   // Objective value at X
	Iterations  int       // Iterations performed
	Evaluations int       // Objective evaluations performed
	Converged   bool      // True only if the tolerance criterion stopped the run
}

type vertex struct {
	x  []float64
	fx float64
}

// Minimize runs Nelder–Mead from x0.
//
// A NaN objective value is treated as +Inf. If ctx is cancelled the best
// vertex found so far is returned together with ctx.Err().
func Minimize(ctx context.Context, f Func, x0 []float64, cfg Config) (Result, error) {
	if len(x0) == 0 {
		return Result{}, ErrEmptyStart
	}
	cfg = cfg.withCoefficients()
	if err := cfg.Validate(); err != nil {
		return Result{}, err
	}

	n := len(x0)
	evals := 0
	eval := func(x []float64) float64 {
		evals++
		v := f(x)
		if math.IsNaN(v) {
			return math.Inf(1)
		}
		return v
	}

	simplex := initialSimplex(x0, cfg.NonZeroDelta, cfg.ZeroDelta)
	for i := range simplex {
		simplex[i].fx = eval(simplex[i].x)
	}

	byValue := func(a, b vertex) int {
		switch {
		case a.fx < b.fx:
			return -1
		case a.fx > b.fx:
			return 1
		}
		return 0
	}

	centroid := make([]float64, n)
	reflected := vertex{x: make([]float64, n)}
	expanded := vertex{x: make([]float64, n)}
	contracted := vertex{x: make([]float64, n)}

	result := Result{}
	for result.Iterations < cfg.MaxIterations {
		if err := ctx.Err(); err != nil {
			slices.SortStableFunc(simplex, byValue)
			result.X = slices.Clone(simplex[0].x)
			result.F = simplex[0].fx
			result.Evaluations = evals
			return result, err
		}

		slices.SortStableFunc(simplex, byValue)

		if converged(simplex, cfg) {
			result.Converged = true
			break
		}
		result.Iterations++

		best := simplex[0]
		worst := simplex[n]

		// Centroid of every vertex except the worst.
		for i := range centroid {
			centroid[i] = 0
		}
		for i := 0; i < n; i++ {
			floats.Add(centroid, simplex[i].x)
		}
		floats.Scale(1/float64(n), centroid)

		weightedSum(reflected.x, 1+cfg.Rho, centroid, -cfg.Rho, worst.x)
		reflected.fx = eval(reflected.x)

		switch {
		case reflected.fx < best.fx:
			weightedSum(expanded.x, 1+cfg.Chi, centroid, -cfg.Chi, worst.x)
			expanded.fx = eval(expanded.x)
			if expanded.fx < reflected.fx {
				replace(&simplex[n], expanded)
			} else {
				replace(&simplex[n], reflected)
			}

		case reflected.fx >= simplex[n-1].fx:
			shrink := false
			if reflected.fx > worst.fx {
				// Inside contraction.
				weightedSum(contracted.x, 1+cfg.Psi, centroid, -cfg.Psi, worst.x)
				contracted.fx = eval(contracted.x)
				if contracted.fx < worst.fx {
					replace(&simplex[n], contracted)
				} else {
					shrink = true
				}
			} else {
				// Outside contraction.
				weightedSum(contracted.x, 1-cfg.Psi*cfg.Rho, centroid, cfg.Psi*cfg.Rho, worst.x)
				contracted.fx = eval(contracted.x)
				if contracted.fx < reflected.fx {
					replace(&simplex[n], contracted)
				} else {
					shrink = true
				}
			}

			if shrink {
				for i := 1; i <= n; i++ {
					weightedSum(simplex[i].x, 1-cfg.Sigma, best.x, cfg.Sigma, simplex[i].x)
					simplex[i].fx = eval(simplex[i].x)
				}
			}

		default:
			replace(&simplex[n], reflected)
		}

		if cfg.OnIteration != nil {
			cfg.OnIteration(result.Iterations, minValue(simplex))
		}
	}

	slices.SortStableFunc(simplex, byValue)
	result.X = slices.Clone(simplex[0].x)
	result.F = simplex[0].fx
	result.Evaluations = evals
	return result, nil
}

// initialSimplex builds n+1 vertices: x0 and one vertex per coordinate with
// that coordinate scaled by nonZeroDelta, or set to zeroDelta when it is 0.
func initialSimplex(x0 []float64, nonZeroDelta, zeroDelta float64) []vertex {
	n := len(x0)
	simplex := make([]vertex, n+1)
	simplex[0] = vertex{x: slices.Clone(x0)}
	for i := 0; i < n; i++ {
		p := slices.Clone(x0)
		if p[i] != 0 {
			p[i] *= nonZeroDelta
		} else {
			p[i] = zeroDelta
		}
		simplex[i+1] = vertex{x: p}
	}
	return simplex
}

// converged expects a sorted simplex.
func converged(simplex []vertex, cfg Config) bool {
	n := len(simplex) - 1
	if math.Abs(simplex[0].fx-simplex[n].fx) >= cfg.MinErrorDelta {
		return false
	}
	if cfg.MinTolerance == 0 {
		return true
	}
	maxDiff := 0.0
	for i := range simplex[0].x {
		maxDiff = math.Max(maxDiff, math.Abs(simplex[0].x[i]-simplex[1].x[i]))
	}
	return maxDiff < cfg.MinTolerance
}

// weightedSum sets dst = wa*a + wb*b. dst may alias b.
func weightedSum(dst []float64, wa float64, a []float64, wb float64, b []float64) {
	floats.ScaleTo(dst, wb, b)
	floats.AddScaled(dst, wa, a)
}

func replace(dst *vertex, src vertex) {
	copy(dst.x, src.x)
	dst.fx = src.fx
}

func minValue(simplex []vertex) float64 {
	m := math.Inf(1)
	for _, v := range simplex {
		m = math.Min(m, v.fx)
	}
	return m
}
