package photomatch

import (
	"fmt"
	"image/color"
	"image/png"
	"io"

	"github.com/tdewolff/canvas"
	"github.com/tdewolff/canvas/renderers/rasterizer"
	"github.com/tdewolff/canvas/renderers/svg"
)

// nrgbaToRGBA converts color.NRGBA to the premultiplied color.RGBA the
// canvas library expects
func nrgbaToRGBA(c color.NRGBA) color.RGBA {
	if c.A == 0 {
		return color.RGBA{0, 0, 0, 0}
	}
	if c.A == 255 {
		return color.RGBA{c.R, c.G, c.B, 255}
	}
	alpha32 := uint32(c.A)
	return color.RGBA{
		R: uint8((uint32(c.R) * alpha32) / 255),
		G: uint8((uint32(c.G) * alpha32) / 255),
		B: uint8((uint32(c.B) * alpha32) / 255),
		A: c.A,
	}
}

// OverlayColors are the colors of the overlay layers.
type OverlayColors struct {
	Background color.NRGBA
	Face       color.NRGBA
	Edge       color.NRGBA
	LinkedEdge color.NRGBA
	Line       color.NRGBA
	LinkedLine color.NRGBA
	Endpoint   color.NRGBA
}

// DefaultOverlayColors matches the browser client: translucent faces, grey
// edges, linked edges and lines in orange.
func DefaultOverlayColors() OverlayColors {
	return OverlayColors{
		Background: color.NRGBA{255, 255, 255, 255},
		Face:       color.NRGBA{100, 149, 237, 60},
		Edge:       color.NRGBA{90, 90, 90, 255},
		LinkedEdge: color.NRGBA{255, 140, 0, 255},
		Line:       color.NRGBA{0, 160, 0, 255},
		LinkedLine: color.NRGBA{255, 140, 0, 255},
		Endpoint:   color.NRGBA{0, 0, 0, 255},
	}
}

// OverlayRenderer draws the scene as seen by a camera, together with the
// lines of a photo, as vector graphics. Width and Height are in millimetres
// and set the aspect ratio of the projection.
type OverlayRenderer struct {
	Meshes     []ShapeMesh
	Lines      []Line
	Camera     CameraTransform
	Width      float64
	Height     float64
	Colors     OverlayColors
	Resolution canvas.Resolution // PNG output only
	EdgeWidth  float64
	LineWidth  float64
	DotRadius  float64
	HideFaces  bool
}

// NewOverlayRenderer creates a renderer for a photo of the given pixel size.
// The drawing is 200mm wide.
func NewOverlayRenderer(meshes []ShapeMesh, lines []Line, camera CameraTransform, aspect float64) (*OverlayRenderer, error) {
	if !(aspect > 0) {
		return nil, fmt.Errorf("aspect ratio must be positive, got %g", aspect)
	}
	return &OverlayRenderer{
		Meshes:     meshes,
		Lines:      lines,
		Camera:     camera,
		Width:      200,
		Height:     200 / aspect,
		Colors:     DefaultOverlayColors(),
		Resolution: canvas.DPI(150),
		EdgeWidth:  0.4,
		LineWidth:  0.6,
		DotRadius:  0.9,
	}, nil
}

// canvasRenderer is implemented by both the svg and rasterizer renderers
type canvasRenderer interface {
	RenderPath(path *canvas.Path, style canvas.Style, m canvas.Matrix)
}

// RenderToSVG writes the overlay as an SVG to the provided writer
func (r *OverlayRenderer) RenderToSVG(w io.Writer) error {
	svgRenderer := svg.New(w, r.Width, r.Height, nil)
	r.renderToCanvas(svgRenderer)
	return svgRenderer.Close()
}

// RenderToPNG writes the overlay as a PNG to the provided writer
func (r *OverlayRenderer) RenderToPNG(w io.Writer) error {
	res := r.Resolution
	if res == 0 {
		res = canvas.DPI(150)
	}
	rast := rasterizer.New(r.Width, r.Height, res, canvas.DefaultColorSpace)
	r.renderToCanvas(rast)
	return png.Encode(w, rast)
}

// toCanvas maps NDC to canvas millimetres. Both have +Y up.
func (r *OverlayRenderer) toCanvas(p Vector2) (float64, float64) {
	return (p.X + 1) / 2 * r.Width, (p.Y + 1) / 2 * r.Height
}

func (r *OverlayRenderer) renderToCanvas(renderer canvasRenderer) {
	aspect := r.Width / r.Height
	pr := NewProjector(r.Camera, aspect)

	bgStyle := canvas.DefaultStyle
	bgStyle.Fill = canvas.Paint{Color: nrgbaToRGBA(r.Colors.Background)}
	bgStyle.Stroke = canvas.Paint{Color: canvas.Transparent}
	renderer.RenderPath(canvas.Rectangle(r.Width, r.Height), bgStyle, canvas.Identity)

	linked := make(map[EdgeRef]bool)
	for _, ref := range NewCorrespondenceSet(r.Lines).Refs() {
		linked[ref] = true
	}

	// Faces with any vertex behind the near plane are skipped rather than
	// clipped.
	if !r.HideFaces {
		faceStyle := canvas.DefaultStyle
		faceStyle.Fill = canvas.Paint{Color: nrgbaToRGBA(r.Colors.Face)}
		faceStyle.Stroke = canvas.Paint{Color: canvas.Transparent}
		for _, m := range r.Meshes {
			for _, f := range m.Faces {
				path := &canvas.Path{}
				visible := true
				for i, vi := range f {
					v := m.Vertices[vi]
					if !pr.InFrustum(v) {
						visible = false
						break
					}
					x, y := r.toCanvas(pr.Project(v))
					if i == 0 {
						path.MoveTo(x, y)
					} else {
						path.LineTo(x, y)
					}
				}
				if visible {
					path.Close()
					renderer.RenderPath(path, faceStyle, canvas.Identity)
				}
			}
		}
	}

	edgeStyle := canvas.DefaultStyle
	edgeStyle.Fill = canvas.Paint{Color: canvas.Transparent}
	edgeStyle.Stroke = canvas.Paint{Color: nrgbaToRGBA(r.Colors.Edge)}
	edgeStyle.StrokeWidth = r.EdgeWidth
	linkedEdgeStyle := edgeStyle
	linkedEdgeStyle.Stroke = canvas.Paint{Color: nrgbaToRGBA(r.Colors.LinkedEdge)}
	linkedEdgeStyle.StrokeWidth = 2 * r.EdgeWidth

	for _, m := range r.Meshes {
		for _, e := range m.MatchEdges() {
			if !pr.InFrustum(e.V0) || !pr.InFrustum(e.V1) {
				continue
			}
			p0, p1 := pr.Project(e.V0), pr.Project(e.V1)
			style := edgeStyle
			if linked[e.Ref()] {
				style = linkedEdgeStyle
			}
			renderer.RenderPath(r.segment(p0, p1), style, canvas.Identity)
		}
	}

	lineStyle := canvas.DefaultStyle
	lineStyle.Fill = canvas.Paint{Color: canvas.Transparent}
	lineStyle.Stroke = canvas.Paint{Color: nrgbaToRGBA(r.Colors.Line)}
	lineStyle.StrokeWidth = r.LineWidth
	linkedLineStyle := lineStyle
	linkedLineStyle.Stroke = canvas.Paint{Color: nrgbaToRGBA(r.Colors.LinkedLine)}

	dotStyle := canvas.DefaultStyle
	dotStyle.Fill = canvas.Paint{Color: nrgbaToRGBA(r.Colors.Endpoint)}
	dotStyle.Stroke = canvas.Paint{Color: canvas.Transparent}

	for _, l := range r.Lines {
		style := lineStyle
		if l.Linked() {
			style = linkedLineStyle
		}
		renderer.RenderPath(r.segment(l.V0, l.V1), style, canvas.Identity)
		for _, v := range []Vector2{l.V0, l.V1} {
			x, y := r.toCanvas(v)
			renderer.RenderPath(canvas.Circle(r.DotRadius).Translate(x, y), dotStyle, canvas.Identity)
		}
	}
}

func (r *OverlayRenderer) segment(a, b Vector2) *canvas.Path {
	path := &canvas.Path{}
	x0, y0 := r.toCanvas(a)
	x1, y1 := r.toCanvas(b)
	path.MoveTo(x0, y0)
	path.LineTo(x1, y1)
	return path
}
