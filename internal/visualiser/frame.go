package visualiser

import (
	"time"

	"google.golang.org/protobuf/types/known/structpb"

	"github.com/banshee-data/robosim/internal/position"
)

// Frame is the state of every device after one world step.
type Frame struct {
	Seq     uint64
	SimTime time.Duration
	Devices []position.State
}

// ToStruct converts the frame to its wire form. When devices is non-empty
// only those device ids are included.
func (f *Frame) ToStruct(devices map[string]bool) (*structpb.Struct, error) {
	list := make([]any, 0, len(f.Devices))
	for _, s := range f.Devices {
		id := s.ID.String()
		if len(devices) > 0 && !devices[id] {
			continue
		}
		list = append(list, map[string]any{
			"id":       id,
			"cycles":   s.Cycles,
			"shape":    s.Shape.String(),
			"x":        s.Pose.X,
			"y":        s.Pose.Y,
			"theta":    s.Pose.Theta,
			"odo_x":    s.Odometry.X,
			"odo_y":    s.Odometry.Y,
			"odo_th":   s.Odometry.Theta,
			"speed":    s.Command.Speed,
			"turnrate": s.Command.TurnRate,
			"stall":    s.Stall,
		})
	}
	return structpb.NewStruct(map[string]any{
		"seq":         f.Seq,
		"sim_time_ns": int64(f.SimTime),
		"devices":     list,
	})
}

// requestedDevices reads the optional "devices" list from a stream request.
func requestedDevices(req *structpb.Struct) map[string]bool {
	if req == nil {
		return nil
	}
	v, ok := req.GetFields()["devices"]
	if !ok {
		return nil
	}
	ids := make(map[string]bool)
	for _, item := range v.GetListValue().GetValues() {
		if id := item.GetStringValue(); id != "" {
			ids[id] = true
		}
	}
	return ids
}
