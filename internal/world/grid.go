package world

import (
	"fmt"
	"math"
	"sync"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/spatial/r2"
)

// GridConfig describes the extent and resolution of a Grid.
type GridConfig struct {
	Width      float64 // meters along x
	Height     float64 // meters along y
	Resolution float64 // meters per cell
	OriginX    float64 // world x of the grid's lower-left corner
	OriginY    float64 // world y of the grid's lower-left corner
}

// Grid is an in-memory layered occupancy grid. Each layer is a rows×cols
// raster (row = y cell, col = x cell) holding 0 or 1.
//
// A cell is covered by a shape when the cell centre lies inside it; the cell
// containing the shape's centre is always covered so shapes smaller than a
// cell still leave a mark. Writes outside the grid are clipped and queries
// outside it read as free.
type Grid struct {
	cfg        GridConfig
	rows, cols int

	mu     sync.RWMutex
	layers map[Layer]*mat.Dense

	// entity is held by an entity across a multi-call sequence such as
	// erase, test, redraw.
	entity sync.Mutex
}

// Cell is one occupied cell reported by Grid.Cells.
type Cell struct {
	Row, Col int
	X, Y     float64 // world coordinates of the cell centre
}

// NewGrid allocates a grid with every layer in Layers cleared.
func NewGrid(cfg GridConfig) (*Grid, error) {
	if cfg.Resolution <= 0 {
		return nil, fmt.Errorf("grid resolution must be positive, got %g", cfg.Resolution)
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return nil, fmt.Errorf("grid size must be positive, got %gx%g", cfg.Width, cfg.Height)
	}
	cols := int(math.Ceil(cfg.Width / cfg.Resolution))
	rows := int(math.Ceil(cfg.Height / cfg.Resolution))

	g := &Grid{
		cfg:    cfg,
		rows:   rows,
		cols:   cols,
		layers: make(map[Layer]*mat.Dense, len(Layers)),
	}
	for _, l := range Layers {
		g.layers[l] = mat.NewDense(rows, cols, nil)
	}
	return g, nil
}

// Lock reserves the grid for one entity's update sequence. It does not block
// readers of individual cells.
func (g *Grid) Lock() { g.entity.Lock() }

// Unlock releases the reservation taken by Lock.
func (g *Grid) Unlock() { g.entity.Unlock() }

// Config returns the configuration the grid was built with.
func (g *Grid) Config() GridConfig { return g.cfg }

// Dims returns the number of rows and columns.
func (g *Grid) Dims() (rows, cols int) { return g.rows, g.cols }

// cellOf returns the row and column containing world point (x, y). The
// result may be outside the grid.
func (g *Grid) cellOf(x, y float64) (row, col int) {
	col = int(math.Floor((x - g.cfg.OriginX) / g.cfg.Resolution))
	row = int(math.Floor((y - g.cfg.OriginY) / g.cfg.Resolution))
	return row, col
}

func (g *Grid) centre(row, col int) r2.Vec {
	return r2.Vec{
		X: g.cfg.OriginX + (float64(col)+0.5)*g.cfg.Resolution,
		Y: g.cfg.OriginY + (float64(row)+0.5)*g.cfg.Resolution,
	}
}

func (g *Grid) inside(row, col int) bool {
	return row >= 0 && row < g.rows && col >= 0 && col < g.cols
}

// visit calls fn for every in-grid cell covered by the shape described by
// contains, searching the world-frame bounding box [lo, hi].
func (g *Grid) visit(lo, hi, centre r2.Vec, contains func(r2.Vec) bool, fn func(row, col int)) {
	r0, c0 := g.cellOf(lo.X, lo.Y)
	r1, c1 := g.cellOf(hi.X, hi.Y)
	r0, c0 = max(r0, 0), max(c0, 0)
	r1, c1 = min(r1, g.rows-1), min(c1, g.cols-1)

	cr, cc := g.cellOf(centre.X, centre.Y)
	for row := r0; row <= r1; row++ {
		for col := c0; col <= c1; col++ {
			if (row == cr && col == cc) || contains(g.centre(row, col)) {
				fn(row, col)
			}
		}
	}
}

func (g *Grid) visitRectangle(x, y, theta, sizeX, sizeY float64, fn func(row, col int)) {
	centre := r2.Vec{X: x, Y: y}
	hx, hy := math.Abs(sizeX)/2, math.Abs(sizeY)/2

	// Axis-aligned extent of the rotated rectangle.
	c, s := math.Abs(math.Cos(theta)), math.Abs(math.Sin(theta))
	ex := hx*c + hy*s
	ey := hx*s + hy*c
	lo := r2.Vec{X: x - ex, Y: y - ey}
	hi := r2.Vec{X: x + ex, Y: y + ey}

	contains := func(p r2.Vec) bool {
		q := r2.Rotate(r2.Sub(p, centre), -theta, r2.Vec{})
		return math.Abs(q.X) <= hx && math.Abs(q.Y) <= hy
	}
	g.visit(lo, hi, centre, contains, fn)
}

func (g *Grid) visitCircle(x, y, radius float64, fn func(row, col int)) {
	centre := r2.Vec{X: x, Y: y}
	r := math.Abs(radius)
	lo := r2.Vec{X: x - r, Y: y - r}
	hi := r2.Vec{X: x + r, Y: y + r}

	contains := func(p r2.Vec) bool {
		return r2.Norm(r2.Sub(p, centre)) <= r
	}
	g.visit(lo, hi, centre, contains, fn)
}

// QueryRectangle implements Occupancy.
func (g *Grid) QueryRectangle(x, y, theta, sizeX, sizeY float64, layer Layer) int {
	g.mu.RLock()
	defer g.mu.RUnlock()

	m, ok := g.layers[layer]
	if !ok {
		return 0
	}
	n := 0
	g.visitRectangle(x, y, theta, sizeX, sizeY, func(row, col int) {
		if m.At(row, col) != 0 {
			n++
		}
	})
	return n
}

// SetRectangle implements Occupancy.
func (g *Grid) SetRectangle(x, y, theta, sizeX, sizeY float64, layer Layer, v uint8) {
	g.mu.Lock()
	defer g.mu.Unlock()

	m, ok := g.layers[layer]
	if !ok {
		return
	}
	val := cellValue(v)
	g.visitRectangle(x, y, theta, sizeX, sizeY, func(row, col int) {
		m.Set(row, col, val)
	})
}

// SetCircle implements Occupancy.
func (g *Grid) SetCircle(x, y, radius float64, layer Layer, v uint8) {
	g.mu.Lock()
	defer g.mu.Unlock()

	m, ok := g.layers[layer]
	if !ok {
		return
	}
	val := cellValue(v)
	g.visitCircle(x, y, radius, func(row, col int) {
		m.Set(row, col, val)
	})
}

func cellValue(v uint8) float64 {
	if v != 0 {
		return 1
	}
	return 0
}

// Occupied reports whether the cell containing (x, y) is set on layer.
func (g *Grid) Occupied(x, y float64, layer Layer) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()

	m, ok := g.layers[layer]
	if !ok {
		return false
	}
	row, col := g.cellOf(x, y)
	if !g.inside(row, col) {
		return false
	}
	return m.At(row, col) != 0
}

// Count returns the number of occupied cells on layer.
func (g *Grid) Count(layer Layer) int {
	g.mu.RLock()
	defer g.mu.RUnlock()

	m, ok := g.layers[layer]
	if !ok {
		return 0
	}
	return int(mat.Sum(m))
}

// Cells returns every occupied cell on layer in row-major order.
func (g *Grid) Cells(layer Layer) []Cell {
	g.mu.RLock()
	defer g.mu.RUnlock()

	m, ok := g.layers[layer]
	if !ok {
		return nil
	}
	var cells []Cell
	for row := 0; row < g.rows; row++ {
		for col := 0; col < g.cols; col++ {
			if m.At(row, col) == 0 {
				continue
			}
			c := g.centre(row, col)
			cells = append(cells, Cell{Row: row, Col: col, X: c.X, Y: c.Y})
		}
	}
	return cells
}

// Clear zeroes every cell on layer.
func (g *Grid) Clear(layer Layer) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if m, ok := g.layers[layer]; ok {
		m.Zero()
	}
}

var _ Occupancy = (*Grid)(nil)
