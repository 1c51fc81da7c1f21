package photomatch

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	_ "image/jpeg"
	"image/png"
	"os"

	xdraw "golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

// RasterOverlay draws the projected match edges and the lines of a photo
// on top of the photo itself, at the photo's pixel size.
type RasterOverlay struct {
	Edges      []MatchEdge
	Lines      []Line
	Camera     CameraTransform
	Width      int
	Height     int
	Background image.Image // optional; scaled to Width x Height
	ShowLabels bool

	EdgeColor       color.RGBA
	LinkedEdgeColor color.RGBA
	LineColor       color.RGBA
	EndpointColor   color.RGBA
}

// NewRasterOverlay creates an overlay of the given pixel size.
func NewRasterOverlay(edges []MatchEdge, lines []Line, camera CameraTransform, width, height int) *RasterOverlay {
	return &RasterOverlay{
		Edges:           edges,
		Lines:           lines,
		Camera:          camera,
		Width:           width,
		Height:          height,
		EdgeColor:       color.RGBA{255, 255, 255, 255},
		LinkedEdgeColor: color.RGBA{255, 140, 0, 255},
		LineColor:       color.RGBA{0, 200, 0, 255},
		EndpointColor:   color.RGBA{255, 0, 0, 255},
	}
}

// toPixel maps NDC to image pixels; image rows grow downwards.
func (r *RasterOverlay) toPixel(p Vector2) (int, int) {
	x := (p.X + 1) / 2 * float64(r.Width)
	y := (1 - p.Y) / 2 * float64(r.Height)
	return int(x), int(y)
}

// maxNDC bounds the points that are rasterized; edges reaching further
// out are dropped.
const maxNDC = 20

func onCanvas(p Vector2) bool {
	return p.X >= -maxNDC && p.X <= maxNDC && p.Y >= -maxNDC && p.Y <= maxNDC
}

// Render draws the overlay.
func (r *RasterOverlay) Render() (*image.RGBA, error) {
	if r.Width <= 0 || r.Height <= 0 {
		return nil, fmt.Errorf("overlay size must be positive, got %dx%d", r.Width, r.Height)
	}

	img := image.NewRGBA(image.Rect(0, 0, r.Width, r.Height))
	if r.Background != nil {
		xdraw.CatmullRom.Scale(img, img.Bounds(), r.Background, r.Background.Bounds(), xdraw.Src, nil)
	} else {
		xdraw.Draw(img, img.Bounds(), image.NewUniform(color.RGBA{40, 40, 40, 255}), image.Point{}, xdraw.Src)
	}

	pr := NewProjector(r.Camera, float64(r.Width)/float64(r.Height))
	set := NewCorrespondenceSet(r.Lines)

	for _, e := range r.Edges {
		if !pr.InFrustum(e.V0) || !pr.InFrustum(e.V1) {
			continue
		}
		p0, p1 := pr.Project(e.V0), pr.Project(e.V1)
		if !onCanvas(p0) || !onCanvas(p1) {
			continue
		}
		c := r.EdgeColor
		if _, ok := set.Line(e.Ref()); ok {
			c = r.LinkedEdgeColor
		}
		x0, y0 := r.toPixel(p0)
		x1, y1 := r.toPixel(p1)
		drawLine(img, x0, y0, x1, y1, c)
		if r.ShowLabels {
			drawText(img, (x0+x1)/2+3, (y0+y1)/2-3, e.Ref().String(), c)
		}
	}

	for _, l := range r.Lines {
		if !onCanvas(l.V0) || !onCanvas(l.V1) {
			continue
		}
		x0, y0 := r.toPixel(l.V0)
		x1, y1 := r.toPixel(l.V1)
		drawLine(img, x0, y0, x1, y1, r.LineColor)
		drawCircle(img, x0, y0, 3, r.EndpointColor)
		drawCircle(img, x1, y1, 3, r.EndpointColor)
		if r.ShowLabels {
			drawText(img, x1+4, y1+4, fmt.Sprintf("L%d", l.ID), r.LineColor)
		}
	}

	return img, nil
}

// SavePNG renders the overlay and writes it to a file. Nothing is written
// when rendering fails.
func (r *RasterOverlay) SavePNG(path string) error {
	img, err := r.Render()
	if err != nil {
		return err
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return err
	}
	return os.WriteFile(path, buf.Bytes(), 0644)
}

// LoadImage decodes a PNG or JPEG photo.
func LoadImage(path string) (image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening image: %w", err)
	}
	defer func() { _ = f.Close() }()

	img, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("decoding image %s: %w", path, err)
	}
	return img, nil
}

// drawLine draws a one pixel wide line (Bresenham)
func drawLine(img *image.RGBA, x0, y0, x1, y1 int, c color.RGBA) {
	dx := abs(x1 - x0)
	dy := -abs(y1 - y0)
	sx, sy := 1, 1
	if x0 > x1 {
		sx = -1
	}
	if y0 > y1 {
		sy = -1
	}
	b := img.Bounds()
	err := dx + dy
	for steps := 0; steps <= dx-dy; steps++ {
		if image.Pt(x0, y0).In(b) {
			img.SetRGBA(x0, y0, c)
		}
		if x0 == x1 && y0 == y1 {
			return
		}
		e2 := 2 * err
		if e2 >= dy {
			err += dy
			x0 += sx
		}
		if e2 <= dx {
			err += dx
			y0 += sy
		}
	}
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}

// drawCircle draws a filled circle
func drawCircle(img *image.RGBA, cx, cy, radius int, c color.RGBA) {
	for dy := -radius; dy <= radius; dy++ {
		for dx := -radius; dx <= radius; dx++ {
			if dx*dx+dy*dy <= radius*radius {
				x, y := cx+dx, cy+dy
				if x >= 0 && x < img.Bounds().Max.X && y >= 0 && y < img.Bounds().Max.Y {
					img.Set(x, y, c)
				}
			}
		}
	}
}

// drawText renders text onto an image at the specified position
func drawText(img *image.RGBA, x, y int, text string, c color.RGBA) {
	d := &font.Drawer{
		Dst:  img,
		Src:  image.NewUniform(c),
		Face: basicfont.Face7x13,
		Dot:  fixed.Point26_6{X: fixed.I(x), Y: fixed.I(y)},
	}
	d.DrawString(text)
}
