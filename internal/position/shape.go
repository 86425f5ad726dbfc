package position

import (
	"errors"
	"fmt"
	"strings"

	"github.com/banshee-data/robosim/internal/geom"
	"github.com/banshee-data/robosim/internal/monitoring"
	"github.com/banshee-data/robosim/internal/world"
)

// ShapeKind selects the robot's body geometry.
type ShapeKind int

const (
	ShapeUnknown ShapeKind = iota
	ShapeRectangle
	ShapeCircle
)

func (k ShapeKind) String() string {
	switch k {
	case ShapeRectangle:
		return "rectangle"
	case ShapeCircle:
		return "circle"
	default:
		return fmt.Sprintf("ShapeKind(%d)", int(k))
	}
}

// ErrUnknownShape is returned by LookupShape for names it does not know.
var ErrUnknownShape = errors.New("unknown shape")

// LookupShape converts a shape name into a ShapeKind.
func LookupShape(name string) (ShapeKind, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "rectangle":
		return ShapeRectangle, nil
	case "circle":
		return ShapeCircle, nil
	default:
		return ShapeUnknown, fmt.Errorf("%w: %q", ErrUnknownShape, name)
	}
}

// ParseShape is LookupShape for configuration input: unrecognised names log
// a warning and fall back to ShapeRectangle.
func ParseShape(name string) ShapeKind {
	kind, err := LookupShape(name)
	if err != nil {
		monitoring.Warnf("[position] %v; defaulting to rectangle", err)
		return ShapeRectangle
	}
	return kind
}

// EntityType is the coarse classification other entities see, e.g. so a
// sensor can tell a round robot from a rectangular one.
type EntityType int

const (
	UnknownRobotType EntityType = iota
	RectRobotType
	RoundRobotType
)

func (t EntityType) String() string {
	switch t {
	case RectRobotType:
		return "rect_robot"
	case RoundRobotType:
		return "round_robot"
	default:
		return "unknown"
	}
}

// EntityType returns the classification tag that goes with the shape.
func (k ShapeKind) EntityType() EntityType {
	switch k {
	case ShapeRectangle:
		return RectRobotType
	case ShapeCircle:
		return RoundRobotType
	default:
		return UnknownRobotType
	}
}

// Shape is the closed set of body geometries. Implementations are Rectangle
// and Circle.
type Shape interface {
	Kind() ShapeKind

	// Footprint is the geometry stamped into the occupancy layers when the
	// robot is at pose p.
	Footprint(p geom.Pose) world.Region

	// Bounds is the rectangle queried for obstacles when the robot is at p.
	Bounds(p geom.Pose) world.Rect
}

// NewShape builds the Shape for kind from the device's size parameters.
// It returns nil for kinds it does not know.
func NewShape(kind ShapeKind, sizeX, sizeY, offsetX float64) Shape {
	switch kind {
	case ShapeRectangle:
		return Rectangle{SizeX: sizeX, SizeY: sizeY, OffsetX: offsetX}
	case ShapeCircle:
		return Circle{Diameter: sizeX}
	default:
		return nil
	}
}

// Rectangle is a box whose centre sits OffsetX meters along the heading from
// the robot's origin. The Pioneer base is modelled this way.
type Rectangle struct {
	SizeX, SizeY float64
	OffsetX      float64
}

func (Rectangle) Kind() ShapeKind { return ShapeRectangle }

func (r Rectangle) Footprint(p geom.Pose) world.Region {
	return r.Bounds(p)
}

func (r Rectangle) Bounds(p geom.Pose) world.Rect {
	c := p.Ahead(r.OffsetX)
	return world.Rect{X: c.X, Y: c.Y, Theta: p.Theta, SizeX: r.SizeX, SizeY: r.SizeY}
}

// Circle is a disc centred on the robot's origin. Collision checks use its
// bounding square.
type Circle struct {
	Diameter float64
}

func (Circle) Kind() ShapeKind { return ShapeCircle }

func (c Circle) Footprint(p geom.Pose) world.Region {
	return world.Circle{X: p.X, Y: p.Y, Radius: c.Diameter / 2}
}

func (c Circle) Bounds(p geom.Pose) world.Rect {
	return world.Rect{X: p.X, Y: p.Y, Theta: p.Theta, SizeX: c.Diameter, SizeY: c.Diameter}
}
