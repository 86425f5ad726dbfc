package world

import (
	"sync"

	"github.com/banshee-data/robosim/internal/geom"
)

// Body is a rigid frame with a pose relative to an optional parent body.
// A nil parent means the pose is given in the world frame.
type Body struct {
	parent *Body

	mu   sync.RWMutex
	pose geom.Pose
}

// NewBody creates a body at pose relative to parent.
func NewBody(parent *Body, pose geom.Pose) *Body {
	return &Body{parent: parent, pose: pose}
}

// Parent returns the body this one is mounted on, or nil.
func (b *Body) Parent() *Body { return b.parent }

// Pose returns the pose relative to the parent.
func (b *Body) Pose() geom.Pose {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.pose
}

// SetPose sets the pose relative to the parent.
func (b *Body) SetPose(p geom.Pose) {
	b.mu.Lock()
	b.pose = p
	b.mu.Unlock()
}

// GlobalPose returns the body's pose in the world frame.
func (b *Body) GlobalPose() geom.Pose {
	p := b.Pose()
	for parent := b.parent; parent != nil; parent = parent.parent {
		p = parent.Pose().Compose(p)
	}
	return p
}

// LocalToGlobal converts a pose given in this body's frame to the world frame.
func (b *Body) LocalToGlobal(local geom.Pose) geom.Pose {
	return b.GlobalPose().Compose(local)
}

// GlobalToLocal converts a world-frame pose into this body's frame.
func (b *Body) GlobalToLocal(global geom.Pose) geom.Pose {
	return b.GlobalPose().Relative(global)
}
