// Package geom holds the planar pose type shared by the world and the
// position device.
package geom

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/spatial/r2"

	"github.com/banshee-data/robosim/internal/units"
)

// Pose is a planar position (meters) and heading (radians, counter-clockwise
// from the x axis).
type Pose struct {
	X     float64 `json:"x"`
	Y     float64 `json:"y"`
	Theta float64 `json:"theta"`
}

// Origin is the zero pose.
var Origin = Pose{}

// Position returns the translational part of p.
func (p Pose) Position() r2.Vec {
	return r2.Vec{X: p.X, Y: p.Y}
}

// Ahead returns the point d meters along p's heading. A negative d gives a
// point behind p.
func (p Pose) Ahead(d float64) r2.Vec {
	return r2.Add(p.Position(), r2.Rotate(r2.Vec{X: d}, p.Theta, r2.Vec{}))
}

// Compose returns local, given relative to the frame p, expressed in the
// frame p itself is given in.
func (p Pose) Compose(local Pose) Pose {
	v := r2.Add(p.Position(), r2.Rotate(local.Position(), p.Theta, r2.Vec{}))
	return Pose{X: v.X, Y: v.Y, Theta: p.Theta + local.Theta}
}

// Relative is the inverse of Compose: it returns q expressed in the frame p.
func (p Pose) Relative(q Pose) Pose {
	v := r2.Rotate(r2.Sub(q.Position(), p.Position()), -p.Theta, r2.Vec{})
	return Pose{X: v.X, Y: v.Y, Theta: q.Theta - p.Theta}
}

// Normalized returns p with its heading wrapped into [0, 2π).
func (p Pose) Normalized() Pose {
	p.Theta = units.NormalizeRadians(p.Theta)
	return p
}

// Near reports whether p and q differ by no more than tol on every axis.
// Headings are compared on the circle.
func (p Pose) Near(q Pose, tol float64) bool {
	if math.Abs(p.X-q.X) > tol || math.Abs(p.Y-q.Y) > tol {
		return false
	}
	d := units.NormalizeRadians(p.Theta - q.Theta)
	return d <= tol || units.TwoPi-d <= tol
}

func (p Pose) String() string {
	return fmt.Sprintf("(%.3f, %.3f, %.1f°)", p.X, p.Y, units.RTOD(p.Theta))
}
