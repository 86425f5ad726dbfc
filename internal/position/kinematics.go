package position

import (
	"math"
	"time"

	"github.com/banshee-data/robosim/internal/geom"
	"github.com/banshee-data/robosim/internal/units"
)

// Step integrates cmd over dt seconds.
//
// The candidate true pose is a zeroth-order (Euler) step from pose. The
// odometry delta uses a first-order step that takes the heading at the middle
// of the interval, starting from the odometric heading odoTheta.
func Step(dt float64, cmd Command, pose geom.Pose, odoTheta float64) (candidate, odoDelta geom.Pose) {
	dr := cmd.Speed * dt
	dth := cmd.TurnRate * dt

	candidate = geom.Pose{
		X:     pose.X + dr*math.Cos(pose.Theta),
		Y:     pose.Y + dr*math.Sin(pose.Theta),
		Theta: pose.Theta + dth,
	}
	odoDelta = geom.Pose{
		X:     dr * math.Cos(odoTheta+dth/2),
		Y:     dr * math.Sin(odoTheta+dth/2),
		Theta: dth,
	}
	return candidate, odoDelta
}

// Accumulate adds an odometry delta to odo and wraps the heading into
// [0, 2π).
func Accumulate(odo, delta geom.Pose) geom.Pose {
	return geom.Pose{
		X:     odo.X + delta.X,
		Y:     odo.Y + delta.Y,
		Theta: units.NormalizeRadians(odo.Theta + delta.Theta),
	}
}

// Integrator measures the time between its own invocations so integration
// stays consistent however the caller gates its updates.
type Integrator struct {
	last time.Duration
}

// Elapsed returns the seconds since the previous call (or since zero on the
// first call) and records now.
func (i *Integrator) Elapsed(now time.Duration) float64 {
	dt := now - i.last
	i.last = now
	return dt.Seconds()
}
