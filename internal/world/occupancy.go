package world

// Occupancy is the query/set contract entities use against the shared grid.
// Coordinates are world-frame meters and radians.
type Occupancy interface {
	// QueryRectangle returns the number of occupied cells under the
	// rectangle centred at (x, y), rotated by theta, on the given layer.
	QueryRectangle(x, y, theta, sizeX, sizeY float64, layer Layer) int

	// SetRectangle writes v (0 or 1) to every cell under the rectangle.
	SetRectangle(x, y, theta, sizeX, sizeY float64, layer Layer, v uint8)

	// SetCircle writes v (0 or 1) to every cell under the circle.
	SetCircle(x, y, radius float64, layer Layer, v uint8)
}

// Region is a piece of geometry that can be written into an Occupancy.
type Region interface {
	Set(o Occupancy, layer Layer, v uint8)
}

// Rect is an oriented rectangle.
type Rect struct {
	X, Y, Theta  float64
	SizeX, SizeY float64
}

// Set writes the rectangle into o.
func (r Rect) Set(o Occupancy, layer Layer, v uint8) {
	o.SetRectangle(r.X, r.Y, r.Theta, r.SizeX, r.SizeY, layer, v)
}

// Query counts occupied cells under the rectangle.
func (r Rect) Query(o Occupancy, layer Layer) int {
	return o.QueryRectangle(r.X, r.Y, r.Theta, r.SizeX, r.SizeY, layer)
}

// Circle is a disc.
type Circle struct {
	X, Y, Radius float64
}

// Set writes the disc into o.
func (c Circle) Set(o Occupancy, layer Layer, v uint8) {
	o.SetCircle(c.X, c.Y, c.Radius, layer, v)
}
