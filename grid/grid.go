// Package grid holds the pixel canvas value and the brush stamping
// algorithm. A Grid is immutable once built: every mutation returns a new
// value and leaves its input untouched.
package grid

import (
	"encoding/json"
	"fmt"
	"math"
)

const (
	MinBrushSize = 1
	MaxBrushSize = 5
)

type (
	// Grid is a fixed-size 2-D array of cell colors stored row-major.
	Grid struct {
		cols  int
		rows  int
		cells []Color
	}

	// Point is a cell coordinate.
	Point struct {
		X int `json:"x"`
		Y int `json:"y"`
	}
)

// NewBlank returns a cols × rows grid with every cell set to background.
// Non-positive dimensions yield an empty grid.
func NewBlank(cols, rows int, background Color) Grid {
	if cols <= 0 || rows <= 0 {
		return Grid{}
	}
	cells := make([]Color, cols*rows)
	for i := range cells {
		cells[i] = background
	}
	return Grid{cols: cols, rows: rows, cells: cells}
}

// FromRows builds a grid from a slice of rows. All rows must have the
// same length and every cell must be a valid color; colors are normalized.
func FromRows(rows [][]Color) (Grid, error) {
	if len(rows) == 0 {
		return Grid{}, nil
	}
	cols := len(rows[0])
	cells := make([]Color, 0, cols*len(rows))
	for y, row := range rows {
		if len(row) != cols {
			return Grid{}, fmt.Errorf("row %d has %d cells, want %d", y, len(row), cols)
		}
		for x, c := range row {
			parsed, err := ParseColor(string(c))
			if err != nil {
				return Grid{}, fmt.Errorf("cell (%d,%d): %w", x, y, err)
			}
			cells = append(cells, parsed)
		}
	}
	return Grid{cols: cols, rows: len(rows), cells: cells}, nil
}

func (g Grid) Cols() int { return g.cols }
func (g Grid) Rows() int { return g.rows }

// In reports whether (x, y) lies inside the grid.
func (g Grid) In(x, y int) bool {
	return x >= 0 && x < g.cols && y >= 0 && y < g.rows
}

// At returns the color of cell (x, y).
func (g Grid) At(x, y int) (Color, bool) {
	if !g.In(x, y) {
		return "", false
	}
	return g.cells[y*g.cols+x], true
}

// Clone returns a deep copy.
func (g Grid) Clone() Grid {
	if g.cells == nil {
		return Grid{cols: g.cols, rows: g.rows}
	}
	cells := make([]Color, len(g.cells))
	copy(cells, g.cells)
	return Grid{cols: g.cols, rows: g.rows, cells: cells}
}

// Equal reports structural equality.
func (g Grid) Equal(other Grid) bool {
	if g.cols != other.cols || g.rows != other.rows {
		return false
	}
	for i := range g.cells {
		if g.cells[i] != other.cells[i] {
			return false
		}
	}
	return true
}

// Diff returns the cells whose colors differ between g and other, in
// row-major order. Grids of different sizes differ everywhere.
func (g Grid) Diff(other Grid) []Point {
	var out []Point
	if g.cols != other.cols || g.rows != other.rows {
		for y := 0; y < g.rows; y++ {
			for x := 0; x < g.cols; x++ {
				out = append(out, Point{X: x, Y: y})
			}
		}
		return out
	}
	for i := range g.cells {
		if g.cells[i] != other.cells[i] {
			out = append(out, Point{X: i % g.cols, Y: i / g.cols})
		}
	}
	return out
}

// Rows2D returns a fresh [y][x] copy of the cells.
func (g Grid) Rows2D() [][]Color {
	out := make([][]Color, g.rows)
	for y := 0; y < g.rows; y++ {
		row := make([]Color, g.cols)
		copy(row, g.cells[y*g.cols:(y+1)*g.cols])
		out[y] = row
	}
	return out
}

func (g Grid) MarshalJSON() ([]byte, error) {
	return json.Marshal(g.Rows2D())
}

func (g *Grid) UnmarshalJSON(data []byte) error {
	var rows [][]Color
	if err := json.Unmarshal(data, &rows); err != nil {
		return err
	}
	parsed, err := FromRows(rows)
	if err != nil {
		return err
	}
	*g = parsed
	return nil
}

// ApplyStroke stamps a brushSize × brushSize square centered on
// (centerX, centerY) and returns the result as a new grid. Offsets run
// from -floor(b/2) to ceil(b/2)-1, so even sizes extend up and to the
// left of the center. Cells outside the grid are skipped.
func ApplyStroke(g Grid, centerX, centerY, brushSize int, c Color) Grid {
	next := g.Clone()
	lo := -(brushSize / 2)
	hi := (brushSize+1)/2 - 1
	for dy := lo; dy <= hi; dy++ {
		for dx := lo; dx <= hi; dx++ {
			x, y := centerX+dx, centerY+dy
			if !next.In(x, y) {
				continue
			}
			next.cells[y*next.cols+x] = c
		}
	}
	return next
}

// ClampBrushSize keeps b within [MinBrushSize, MaxBrushSize].
func ClampBrushSize(b int) int {
	if b < MinBrushSize {
		return MinBrushSize
	}
	if b > MaxBrushSize {
		return MaxBrushSize
	}
	return b
}

// CellAt maps a canvas pixel coordinate to a cell index.
func CellAt(pos float64, pixelSize int) int {
	if pixelSize <= 0 {
		pixelSize = 1
	}
	return int(math.Floor(pos / float64(pixelSize)))
}
