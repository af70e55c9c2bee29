package render

import (
	"fmt"
	"image"
	"image/color"
	"image/png"
	"io"

	"github.com/calculquebec/cq-formation-ecoulement-chaleur/ctc"
)

// gradientStops are the Bézier control colors, black through blue,
// magenta, red and yellow to white.
var gradientStops = [6][3]float64{
	{0, 0, 0},
	{0, 0, 255},
	{255, 0, 255},
	{255, 0, 0},
	{255, 255, 0},
	{255, 255, 255},
}

// gradient maps a temperature to a pixel via De Casteljau's algorithm
// over the control colors, normalized to [tmin, tmax]. A fully uniform
// grid (tmax == tmin) clamps to the low end instead of producing NaN.
func gradient(temp, tmin, tmax float32) color.RGBA {
	var t float64
	if tmax > tmin {
		t = float64(temp-tmin) / float64(tmax-tmin)
	}

	pts := gradientStops
	for n := len(pts) - 1; n > 0; n-- {
		for i := 0; i < n; i++ {
			for k := 0; k < 3; k++ {
				pts[i][k] += t * (pts[i+1][k] - pts[i][k])
			}
		}
	}
	return color.RGBA{
		R: uint8(pts[0][0]),
		G: uint8(pts[0][1]),
		B: uint8(pts[0][2]),
		A: 255,
	}
}

// Image renders the grid's temperatures onto the gradient.
func Image(g *ctc.Grid, tmin, tmax float32) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, g.Width(), g.Height()))
	for y := 0; y < g.Height(); y++ {
		for x := 0; x < g.Width(); x++ {
			img.SetRGBA(x, y, gradient(g.Temperature(y, x), tmin, tmax))
		}
	}
	return img
}

// Encode writes the gradient rendering of g as a PNG, burning the
// optional label lines into the top-left corner.
func Encode(w io.Writer, g *ctc.Grid, tmin, tmax float32, labels ...string) error {
	img := Image(g, tmin, tmax)
	if len(labels) > 0 {
		Annotate(img, labels...)
	}
	if err := png.Encode(w, img); err != nil {
		return fmt.Errorf("render: encoding result image: %w", err)
	}
	return nil
}
