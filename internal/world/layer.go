package world

import (
	"errors"
	"fmt"
	"strings"
)

// ErrUnknownLayer is returned by ParseLayer for names it does not recognise.
var ErrUnknownLayer = errors.New("unknown layer")

// Layer names a plane of the occupancy grid.
type Layer uint8

const (
	LayerObstacle Layer = iota + 1
	LayerPuck
	LayerLaser
	LayerVision
)

// Layers lists every layer a Grid allocates.
var Layers = []Layer{LayerObstacle, LayerPuck, LayerLaser, LayerVision}

func (l Layer) String() string {
	switch l {
	case LayerObstacle:
		return "obstacle"
	case LayerPuck:
		return "puck"
	case LayerLaser:
		return "laser"
	case LayerVision:
		return "vision"
	default:
		return fmt.Sprintf("Layer(%d)", uint8(l))
	}
}

// ParseLayer converts a layer name into a Layer.
func ParseLayer(name string) (Layer, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "obstacle":
		return LayerObstacle, nil
	case "puck":
		return LayerPuck, nil
	case "laser":
		return LayerLaser, nil
	case "vision":
		return LayerVision, nil
	default:
		return 0, fmt.Errorf("%w %q", ErrUnknownLayer, name)
	}
}
