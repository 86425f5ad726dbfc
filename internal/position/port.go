package position

import "github.com/banshee-data/robosim/internal/geom"

// Port is the device's connection to its controller.
type Port interface {
	// Command copies a newly deposited command record into buf and returns
	// the number of bytes copied. ok is false when nothing new has arrived
	// since the previous call.
	Command(buf []byte) (n int, ok bool)

	// PutData publishes the latest data record.
	PutData(buf []byte)

	// Subscribed reports whether any controller is attached.
	Subscribed() bool
}

// Frame is the entity's place in the world: a pose relative to its parent
// and the transform to world coordinates.
type Frame interface {
	Pose() geom.Pose
	SetPose(geom.Pose)
	GlobalPose() geom.Pose

	// LocalToGlobal converts a pose given relative to this frame into the
	// world frame.
	LocalToGlobal(geom.Pose) geom.Pose
}
