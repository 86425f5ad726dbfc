package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/banshee-data/robosim/internal/geom"
	"github.com/banshee-data/robosim/internal/position"
	"github.com/banshee-data/robosim/internal/units"
	"github.com/banshee-data/robosim/internal/world"
)

// Defaults applied by the Get* accessors.
const (
	DefaultTimeStep   = 10 * time.Millisecond
	DefaultRealtime   = 1.0
	DefaultResolution = 0.05
	DefaultWidth      = 20.0
	DefaultHeight     = 20.0
)

// SimConfig is the root of a simulation config file. Every field is optional;
// the Get* methods fill in defaults for anything omitted.
type SimConfig struct {
	TimeStep *string  `json:"time_step,omitempty"` // duration string like "10ms"
	Realtime *float64 `json:"realtime,omitempty"`  // sim seconds per wall second; 0 runs flat out

	Grid      *GridConfig      `json:"grid,omitempty"`
	Obstacles []ObstacleConfig `json:"obstacles,omitempty"`
	Devices   []DeviceConfig   `json:"devices,omitempty"`
}

// GridConfig sizes the occupancy grid.
type GridConfig struct {
	Resolution *float64 `json:"resolution,omitempty"`
	Width      *float64 `json:"width,omitempty"`
	Height     *float64 `json:"height,omitempty"`
	OriginX    *float64 `json:"origin_x,omitempty"`
	OriginY    *float64 `json:"origin_y,omitempty"`
}

// ObstacleConfig is static geometry drawn into the grid at startup.
type ObstacleConfig struct {
	Shape string  `json:"shape"`           // "rectangle" or "circle"
	Layer string  `json:"layer,omitempty"` // default "obstacle"
	X     float64 `json:"x"`
	Y     float64 `json:"y"`
	Theta float64 `json:"theta,omitempty"` // degrees
	SizeX float64 `json:"size_x,omitempty"`
	SizeY float64 `json:"size_y,omitempty"`
	// Radius applies to circles.
	Radius float64 `json:"radius,omitempty"`
}

// PoseConfig is a pose with the heading in degrees.
type PoseConfig struct {
	X     float64 `json:"x"`
	Y     float64 `json:"y"`
	Theta float64 `json:"theta,omitempty"`
}

// Pose converts to the simulator's units.
func (p PoseConfig) Pose() geom.Pose {
	return geom.Pose{X: p.X, Y: p.Y, Theta: units.DTOR(p.Theta)}
}

// DeviceConfig places one position device in the world.
type DeviceConfig struct {
	ID       string     `json:"id,omitempty"`
	Name     string     `json:"name,omitempty"`
	Shape    *string    `json:"shape,omitempty"`
	SizeX    *float64   `json:"size_x,omitempty"`
	SizeY    *float64   `json:"size_y,omitempty"`
	OffsetX  *float64   `json:"offset_x,omitempty"`
	Diameter *float64   `json:"diameter,omitempty"` // circle shorthand for size_x
	Interval *string    `json:"interval,omitempty"`
	Pose     PoseConfig `json:"pose"`
	// Parent is the id of a device listed earlier that this one rides on.
	Parent string `json:"parent,omitempty"`

	UDPAddr    string `json:"udp_addr,omitempty"`
	SerialPort string `json:"serial_port,omitempty"`
	SerialBaud int    `json:"serial_baud,omitempty"`
}

func ptrFloat64(v float64) *float64 { return &v }
func ptrString(v string) *string    { return &v }

// EmptyConfig returns a SimConfig with every field unset.
func EmptyConfig() *SimConfig {
	return &SimConfig{}
}

// DefaultConfig returns a small world holding a single Pioneer listening for
// commands on UDP port 7000.
func DefaultConfig() *SimConfig {
	return &SimConfig{
		TimeStep: ptrString(DefaultTimeStep.String()),
		Realtime: ptrFloat64(DefaultRealtime),
		Grid: &GridConfig{
			Resolution: ptrFloat64(DefaultResolution),
			Width:      ptrFloat64(DefaultWidth),
			Height:     ptrFloat64(DefaultHeight),
		},
		Devices: []DeviceConfig{{
			Name:    "pioneer",
			Pose:    PoseConfig{X: 10, Y: 10},
			UDPAddr: ":7000",
		}},
	}
}

// LoadConfig loads a SimConfig from a JSON file. The file must have a .json
// extension and be under 1MB. Omitted fields keep their defaults.
func LoadConfig(path string) (*SimConfig, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := EmptyConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Validate checks that the configuration values are usable.
func (c *SimConfig) Validate() error {
	if c.TimeStep != nil && *c.TimeStep != "" {
		d, err := time.ParseDuration(*c.TimeStep)
		if err != nil {
			return fmt.Errorf("invalid time_step '%s': %w", *c.TimeStep, err)
		}
		if d <= 0 {
			return fmt.Errorf("time_step must be positive, got %s", d)
		}
	}
	if c.Realtime != nil && *c.Realtime < 0 {
		return fmt.Errorf("realtime must be non-negative, got %f", *c.Realtime)
	}

	gc := c.GetGridConfig()
	if gc.Resolution <= 0 {
		return fmt.Errorf("grid resolution must be positive, got %f", gc.Resolution)
	}
	if gc.Width <= 0 || gc.Height <= 0 {
		return fmt.Errorf("grid size must be positive, got %fx%f", gc.Width, gc.Height)
	}

	for i, o := range c.Obstacles {
		if err := o.Validate(); err != nil {
			return fmt.Errorf("obstacle %d: %w", i, err)
		}
	}

	seen := make(map[uuid.UUID]bool)
	for i, d := range c.Devices {
		if err := d.Validate(); err != nil {
			return fmt.Errorf("device %d: %w", i, err)
		}
		if d.Parent != "" {
			parent, _ := uuid.Parse(d.Parent)
			if !seen[parent] {
				return fmt.Errorf("device %d: parent %s must be listed before it", i, d.Parent)
			}
		}
		if id := d.GetID(); id != uuid.Nil {
			if seen[id] {
				return fmt.Errorf("device %d: duplicate id %s", i, id)
			}
			seen[id] = true
		}
	}
	return nil
}

// GetTimeStep returns the simulated time advanced by each world step.
func (c *SimConfig) GetTimeStep() time.Duration {
	if c.TimeStep == nil || *c.TimeStep == "" {
		return DefaultTimeStep
	}
	d, err := time.ParseDuration(*c.TimeStep)
	if err != nil || d <= 0 {
		return DefaultTimeStep
	}
	return d
}

// GetRealtime returns the realtime factor.
func (c *SimConfig) GetRealtime() float64 {
	if c.Realtime == nil {
		return DefaultRealtime
	}
	return *c.Realtime
}

// GetGridConfig returns the grid geometry with defaults filled in.
func (c *SimConfig) GetGridConfig() world.GridConfig {
	gc := world.GridConfig{
		Resolution: DefaultResolution,
		Width:      DefaultWidth,
		Height:     DefaultHeight,
	}
	if c.Grid == nil {
		return gc
	}
	if c.Grid.Resolution != nil {
		gc.Resolution = *c.Grid.Resolution
	}
	if c.Grid.Width != nil {
		gc.Width = *c.Grid.Width
	}
	if c.Grid.Height != nil {
		gc.Height = *c.Grid.Height
	}
	if c.Grid.OriginX != nil {
		gc.OriginX = *c.Grid.OriginX
	}
	if c.Grid.OriginY != nil {
		gc.OriginY = *c.Grid.OriginY
	}
	return gc
}

// Validate checks the obstacle's shape, layer and size.
func (o ObstacleConfig) Validate() error {
	if _, err := o.GetLayer(); err != nil {
		return err
	}
	kind, err := position.LookupShape(o.Shape)
	if err != nil {
		return err
	}
	switch kind {
	case position.ShapeCircle:
		if o.Radius <= 0 {
			return fmt.Errorf("circle radius must be positive, got %f", o.Radius)
		}
	default:
		if o.SizeX <= 0 || o.SizeY <= 0 {
			return fmt.Errorf("rectangle size must be positive, got %fx%f", o.SizeX, o.SizeY)
		}
	}
	return nil
}

// GetLayer returns the layer the obstacle is drawn on.
func (o ObstacleConfig) GetLayer() (world.Layer, error) {
	if o.Layer == "" {
		return world.LayerObstacle, nil
	}
	return world.ParseLayer(o.Layer)
}

// Region returns the obstacle geometry. The obstacle must be valid.
func (o ObstacleConfig) Region() world.Region {
	if kind, _ := position.LookupShape(o.Shape); kind == position.ShapeCircle {
		return world.Circle{X: o.X, Y: o.Y, Radius: o.Radius}
	}
	return world.Rect{X: o.X, Y: o.Y, Theta: units.DTOR(o.Theta), SizeX: o.SizeX, SizeY: o.SizeY}
}

// Validate checks the device's id, sizes and interval. An unknown shape name
// is not an error; it is reported and replaced when the device is built.
func (d DeviceConfig) Validate() error {
	if d.ID != "" {
		if _, err := uuid.Parse(d.ID); err != nil {
			return fmt.Errorf("invalid id %q: %w", d.ID, err)
		}
	}
	if d.Parent != "" {
		if _, err := uuid.Parse(d.Parent); err != nil {
			return fmt.Errorf("invalid parent %q: %w", d.Parent, err)
		}
	}
	for name, v := range map[string]*float64{"size_x": d.SizeX, "size_y": d.SizeY, "diameter": d.Diameter} {
		if v != nil && *v <= 0 {
			return fmt.Errorf("%s must be positive, got %f", name, *v)
		}
	}
	if d.Interval != nil && *d.Interval != "" {
		iv, err := time.ParseDuration(*d.Interval)
		if err != nil {
			return fmt.Errorf("invalid interval '%s': %w", *d.Interval, err)
		}
		if iv < 0 {
			return fmt.Errorf("interval must be non-negative, got %s", iv)
		}
	}
	if d.SerialBaud < 0 {
		return fmt.Errorf("serial_baud must be non-negative, got %d", d.SerialBaud)
	}
	return nil
}

// GetID returns the configured id, or uuid.Nil when none is set.
func (d DeviceConfig) GetID() uuid.UUID {
	id, err := uuid.Parse(d.ID)
	if err != nil {
		return uuid.Nil
	}
	return id
}

// GetParent returns the parent device id, or uuid.Nil.
func (d DeviceConfig) GetParent() uuid.UUID {
	id, err := uuid.Parse(d.Parent)
	if err != nil {
		return uuid.Nil
	}
	return id
}

// PositionConfig returns the device parameters with defaults filled in.
func (d DeviceConfig) PositionConfig() position.Config {
	pc := position.DefaultConfig()
	if d.Shape != nil {
		pc.Shape = *d.Shape
	}
	if d.SizeX != nil {
		pc.SizeX = *d.SizeX
	}
	if d.SizeY != nil {
		pc.SizeY = *d.SizeY
	}
	if d.Diameter != nil {
		pc.SizeX = *d.Diameter
	}
	if d.OffsetX != nil {
		pc.OffsetX = *d.OffsetX
	}
	if d.Interval != nil && *d.Interval != "" {
		if iv, err := time.ParseDuration(*d.Interval); err == nil {
			pc.Interval = iv
		}
	}
	return pc
}

// GetSerialBaud returns the serial baud rate, 9600 if unset.
func (d DeviceConfig) GetSerialBaud() int {
	if d.SerialBaud == 0 {
		return 9600
	}
	return d.SerialBaud
}
