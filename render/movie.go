package render

import (
	"bytes"
	"fmt"
	"image/jpeg"

	"github.com/icza/mjpeg"

	"github.com/calculquebec/cq-formation-ecoulement-chaleur/ctc"
)

// Movie accumulates gradient frames of a running solve into an MJPEG
// AVI, one frame per snapshot the solver hands over.
type Movie struct {
	aw mjpeg.AviWriter
}

// NewMovie creates the AVI file sized for the grid.
func NewMovie(path string, width, height int, fps int32) (*Movie, error) {
	aw, err := mjpeg.New(path, int32(width), int32(height), fps)
	if err != nil {
		return nil, fmt.Errorf("render: creating movie %s: %w", path, err)
	}
	return &Movie{aw: aw}, nil
}

// AddFrame renders the grid's current temperatures, normalized to their
// own min/max, and appends the result as one frame.
func (m *Movie) AddFrame(g *ctc.Grid) error {
	tmin, tmax := g.MinMaxTemperature()
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, Image(g, tmin, tmax), nil); err != nil {
		return fmt.Errorf("render: encoding movie frame: %w", err)
	}
	return m.aw.AddFrame(buf.Bytes())
}

// Close finalizes the AVI index. The movie is unreadable without it.
func (m *Movie) Close() error {
	return m.aw.Close()
}
