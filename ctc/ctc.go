/*
Package ctc implements the heat diffusion grid model.

A grid is a fixed-size, row-major array of cells. Each cell is a CTC
triplet: the heat source bias (Chaleur), the simulated temperature and
the conduction factor. Heat and conduction are set once at load time;
only the temperature changes, and only through Step.
*/
package ctc

import (
	"errors"
	"math"
)

// Sentinel errors for grid construction and validation.
var (
	// ErrBadSize indicates a grid too small to hold a 1-cell margin
	// around at least one interior cell.
	ErrBadSize = errors.New("ctc: grid must be at least 3x3")
	// ErrMargin indicates a conducting cell in the outer margin ring.
	ErrMargin = errors.New("ctc: outer margin must have zero conduction")
)

// Cell is one grid point. Heat is the minimum target temperature imposed
// by the heat source under this cell. Conduction in [0, ~1) is how fully
// the cell adopts its neighbor-driven target each sweep; 0 freezes it.
type Cell struct {
	Heat        float32
	Temperature float32
	Conduction  float32
}

// Grid is a row-major 2D array of cells with fixed dimensions.
type Grid struct {
	width, height int
	cells         []Cell
}

// NewGrid allocates a width x height grid of zero cells.
func NewGrid(width, height int) (*Grid, error) {
	if width < 3 || height < 3 {
		return nil, ErrBadSize
	}
	return &Grid{
		width:  width,
		height: height,
		cells:  make([]Cell, width*height),
	}, nil
}

// Width returns the number of columns.
func (g *Grid) Width() int { return g.width }

// Height returns the number of rows.
func (g *Grid) Height() int { return g.height }

// At returns a pointer to the cell at (row, col).
func (g *Grid) At(row, col int) *Cell {
	return &g.cells[row*g.width+col]
}

// Heat returns the heat bias at (row, col).
func (g *Grid) Heat(row, col int) float32 {
	return g.cells[row*g.width+col].Heat
}

// Temperature returns the current temperature at (row, col).
func (g *Grid) Temperature(row, col int) float32 {
	return g.cells[row*g.width+col].Temperature
}

// Conduction returns the conduction factor at (row, col).
func (g *Grid) Conduction(row, col int) float32 {
	return g.cells[row*g.width+col].Conduction
}

// Rows returns the cells of rows [lo, hi) as one contiguous slice backed
// by the grid.
func (g *Grid) Rows(lo, hi int) []Cell {
	return g.cells[lo*g.width : hi*g.width]
}

// SetRows copies cells into the grid starting at row lo.
func (g *Grid) SetRows(lo int, cells []Cell) {
	copy(g.cells[lo*g.width:], cells)
}

// Clone returns a deep copy of the grid.
func (g *Grid) Clone() *Grid {
	c := &Grid{width: g.width, height: g.height, cells: make([]Cell, len(g.cells))}
	copy(c.cells, g.cells)
	return c
}

// Equal reports whether both grids have identical dimensions and cells.
func (g *Grid) Equal(o *Grid) bool {
	if g.width != o.width || g.height != o.height {
		return false
	}
	for i := range g.cells {
		if g.cells[i] != o.cells[i] {
			return false
		}
	}
	return true
}

// Fill sets every cell of the grid to c.
func (g *Grid) Fill(c Cell) {
	for i := range g.cells {
		g.cells[i] = c
	}
}

// MinMaxTemperature scans the whole grid for the lowest and highest
// temperatures.
func (g *Grid) MinMaxTemperature() (min, max float32) {
	min, max = g.cells[0].Temperature, g.cells[0].Temperature
	for _, c := range g.cells[1:] {
		if c.Temperature < min {
			min = c.Temperature
		}
		if c.Temperature > max {
			max = c.Temperature
		}
	}
	return min, max
}

// ValidateMargin checks that the 1-cell outer ring has zero conduction.
// The halo exchange wraps top and bottom ranks into a ring; the wrapped
// rows land in this margin and stay inert only while the margin never
// adapts, so the solver asserts this before the first sweep.
func (g *Grid) ValidateMargin() error {
	for j := 0; j < g.width; j++ {
		if g.Conduction(0, j) != 0 || g.Conduction(g.height-1, j) != 0 {
			return ErrMargin
		}
	}
	for i := 0; i < g.height; i++ {
		if g.Conduction(i, 0) != 0 || g.Conduction(i, g.width-1) != 0 {
			return ErrMargin
		}
	}
	return nil
}

// Step performs one full relaxation sweep over rows [lo, hi) and returns
// the sum of absolute temperature deltas it produced.
//
// The sweep runs in two checkerboard phases. The starting column offset
// ((i+1)^phase)&1 selects alternating columns so that a cell's four
// orthogonal neighbors are always updated in the other phase of the same
// sweep; the single in-place buffer therefore behaves like two logical
// generations. The noise bias keeps high-conduction regions far from any
// source slowly accumulating heat instead of settling at the ambient
// average.
func (g *Grid) Step(lo, hi int, noise float32) float32 {
	var sum float32

	for phase := 0; phase < 2; phase++ {
		for i := lo; i < hi; i++ {
			start := ((i + 1) ^ phase) & 1 // checkerboard

			for j := 1 + start; j < g.width-1; j += 2 {
				c := g.At(i, j)
				target := (g.Temperature(i-1, j) +
					g.Temperature(i, j-1) +
					g.Temperature(i, j+1) +
					g.Temperature(i+1, j)) / 4
				target += noise
				if c.Heat > target {
					target = c.Heat
				}
				delta := c.Conduction * (target - c.Temperature)
				c.Temperature += delta
				sum += abs(delta)
			}
		}
	}
	return sum
}

func abs(x float32) float32 {
	return float32(math.Abs(float64(x)))
}
