package photomatch

import (
	"bytes"
	"image/png"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testTrace() []TracePoint {
	return []TracePoint{
		{Iteration: 1, Error: 10},
		{Iteration: 2, Error: 0.5},
		{Iteration: 3, Error: 1e-4},
		{Iteration: 4, Error: 0},
	}
}

func TestPlotTrace_SVG(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, PlotTrace(&buf, testTrace(), "svg"))
	assert.True(t, strings.Contains(buf.String(), "<svg"))
}

func TestPlotTrace_PNG(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, PlotTrace(&buf, testTrace(), "png"))

	img, err := png.Decode(&buf)
	require.NoError(t, err)
	assert.Greater(t, img.Bounds().Dx(), img.Bounds().Dy())
}

func TestPlotTrace_Errors(t *testing.T) {
	var buf bytes.Buffer
	assert.EqualError(t, PlotTrace(&buf, nil, "png"), "plot trace: no iterations recorded")
	assert.Error(t, PlotTrace(&buf, testTrace(), "bmp"))
}
