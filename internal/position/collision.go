package position

import (
	"github.com/banshee-data/robosim/internal/geom"
	"github.com/banshee-data/robosim/internal/monitoring"
	"github.com/banshee-data/robosim/internal/world"
)

// IsBlocked reports whether shape placed at pose (world frame) overlaps any
// occupied cell on the obstacle layer. It never writes to the grid.
//
// A nil shape is a broken invariant: it is logged and treated as free.
func IsBlocked(occ world.Occupancy, shape Shape, pose geom.Pose) bool {
	if shape == nil {
		monitoring.InternalErrorf("[position] collision test with unknown shape")
		return false
	}
	return shape.Bounds(pose).Query(occ, world.LayerObstacle) > 0
}
