package position

import (
	"github.com/banshee-data/robosim/internal/geom"
	"github.com/banshee-data/robosim/internal/monitoring"
	"github.com/banshee-data/robosim/internal/world"
)

// footprintLayers are the layers a robot marks itself on.
var footprintLayers = []world.Layer{world.LayerObstacle, world.LayerPuck}

// Footprint keeps an entity's mark in the occupancy grid. It remembers the
// exact geometry it last drew so Unstamp always erases what is really there,
// even if the entity has since moved or changed shape.
type Footprint struct {
	occ world.Occupancy

	present bool
	pose    geom.Pose
	region  world.Region
}

// NewFootprint returns an absent footprint drawing into occ.
func NewFootprint(occ world.Occupancy) *Footprint {
	return &Footprint{occ: occ}
}

// Present reports whether a footprint is currently drawn.
func (f *Footprint) Present() bool { return f.present }

// Pose returns the world pose of the drawn footprint and whether one is drawn.
func (f *Footprint) Pose() (geom.Pose, bool) { return f.pose, f.present }

// Unstamp erases the drawn footprint. It does nothing when none is drawn.
func (f *Footprint) Unstamp() {
	if !f.present {
		return
	}
	for _, l := range footprintLayers {
		f.region.Set(f.occ, l, 0)
	}
	f.present = false
	f.region = nil
}

// Stamp draws shape at the world pose p and records it as the footprint.
// A footprint that is still drawn is erased first.
func (f *Footprint) Stamp(shape Shape, p geom.Pose) {
	if shape == nil {
		monitoring.InternalErrorf("[position] footprint stamp with unknown shape")
		return
	}
	f.Unstamp()

	r := shape.Footprint(p)
	for _, l := range footprintLayers {
		r.Set(f.occ, l, 1)
	}
	f.present = true
	f.pose = p
	f.region = r
}
