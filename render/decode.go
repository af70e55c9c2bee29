/*
Package render converts between raster images and heat grids: a source
PNG becomes one CTC cell per pixel, and final temperatures become a
color-gradient PNG, a convergence chart or an MJPEG movie of the run.
*/
package render

import (
	"fmt"
	"image/png"
	"io"

	"github.com/calculquebec/cq-formation-ecoulement-chaleur/ctc"
)

// Decode reads a PNG image and builds one cell per pixel: the red
// channel is the heat bias, green the initial temperature, and blue
// divided by 256 the conduction factor, normalized into [0, 1).
func Decode(r io.Reader) (*ctc.Grid, error) {
	img, err := png.Decode(r)
	if err != nil {
		return nil, fmt.Errorf("render: decoding source image: %w", err)
	}

	b := img.Bounds()
	g, err := ctc.NewGrid(b.Dx(), b.Dy())
	if err != nil {
		return nil, err
	}
	for y := 0; y < b.Dy(); y++ {
		for x := 0; x < b.Dx(); x++ {
			r16, g16, b16, _ := img.At(b.Min.X+x, b.Min.Y+y).RGBA()
			c := g.At(y, x)
			c.Heat = float32(r16 >> 8)
			c.Temperature = float32(g16 >> 8)
			c.Conduction = float32(b16>>8) / 256
		}
	}
	return g, nil
}
