package position

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/banshee-data/robosim/internal/geom"
	"github.com/banshee-data/robosim/internal/monitoring"
	"github.com/banshee-data/robosim/internal/world"
)

// Defaults for a Pioneer-class base.
const (
	DefaultSizeX    = 0.440
	DefaultSizeY    = 0.380
	DefaultOffsetX  = -0.04
	DefaultInterval = 10 * time.Millisecond
)

// Config holds the loadable device parameters.
type Config struct {
	Shape    string        `json:"shape"`
	SizeX    float64       `json:"size_x"`
	SizeY    float64       `json:"size_y"`
	OffsetX  float64       `json:"offset_x"`
	Interval time.Duration `json:"interval"`
}

// DefaultConfig returns the Pioneer defaults.
func DefaultConfig() Config {
	return Config{
		Shape:    ShapeRectangle.String(),
		SizeX:    DefaultSizeX,
		SizeY:    DefaultSizeY,
		OffsetX:  DefaultOffsetX,
		Interval: DefaultInterval,
	}
}

// State is a snapshot of a device after an update.
type State struct {
	ID       uuid.UUID     `json:"id"`
	Time     time.Duration `json:"time"`
	Cycles   uint64        `json:"cycles"`
	Pose     geom.Pose     `json:"pose"`
	Odometry geom.Pose     `json:"odometry"`
	Command  Command       `json:"command"`
	Stall    bool          `json:"stall"`
	Shape    ShapeKind     `json:"shape"`
	Data     DataRecord    `json:"data"`

	Footprint        geom.Pose `json:"footprint"`
	FootprintPresent bool      `json:"footprint_present"`
}

// Device simulates a position device. It is driven by a single stepping
// goroutine calling Update and is not safe for concurrent use.
type Device struct {
	id    uuid.UUID
	port  Port
	frame Frame
	occ   world.Occupancy

	kind    ShapeKind
	sizeX   float64
	sizeY   float64
	offsetX float64
	shape   Shape

	interval   time.Duration
	lastUpdate time.Duration
	integrator Integrator
	footprint  *Footprint

	command  Command
	odometry geom.Pose
	stall    bool

	cmdBuf [CommandLen]byte
	data   DataRecord
	cycles uint64
}

// New creates a device talking through port, moving frame and drawing into
// occ. A zero id is replaced by a random one.
func New(id uuid.UUID, port Port, frame Frame, occ world.Occupancy, cfg Config) *Device {
	if id == uuid.Nil {
		id = uuid.New()
	}
	d := &Device{
		id:        id,
		port:      port,
		frame:     frame,
		occ:       occ,
		sizeX:     cfg.SizeX,
		sizeY:     cfg.SizeY,
		offsetX:   cfg.OffsetX,
		interval:  cfg.Interval,
		footprint: NewFootprint(occ),
	}
	d.SetShape(ParseShape(cfg.Shape))
	return d
}

// ID returns the device identifier.
func (d *Device) ID() uuid.UUID { return d.id }

// SetShape changes the body shape. A circle's diameter is SizeX, so SizeY is
// made equal to it.
func (d *Device) SetShape(kind ShapeKind) {
	d.kind = kind
	if kind == ShapeCircle {
		d.sizeY = d.sizeX
	}
	d.rebuildShape()
}

// SetSize changes the body dimensions.
func (d *Device) SetSize(sizeX, sizeY float64) {
	d.sizeX, d.sizeY = sizeX, sizeY
	if d.kind == ShapeCircle {
		d.sizeY = d.sizeX
	}
	d.rebuildShape()
}

func (d *Device) rebuildShape() {
	d.shape = NewShape(d.kind, d.sizeX, d.sizeY, d.offsetX)
}

// Shape returns the current shape kind.
func (d *Device) Shape() ShapeKind { return d.kind }

// EntityType returns the classification tag for the current shape.
func (d *Device) EntityType() EntityType { return d.kind.EntityType() }

// Size returns the body dimensions.
func (d *Device) Size() (sizeX, sizeY float64) { return d.sizeX, d.sizeY }

// Config returns the device parameters in loadable form. A shape the device
// does not recognise is saved as "rectangle".
func (d *Device) Config() Config {
	name := d.kind.String()
	if d.kind != ShapeRectangle && d.kind != ShapeCircle {
		monitoring.Warnf("[position] device %s has odd shape %v; saving as rectangle", d.id, d.kind)
		name = ShapeRectangle.String()
	}
	return Config{
		Shape:    name,
		SizeX:    d.sizeX,
		SizeY:    d.sizeY,
		OffsetX:  d.offsetX,
		Interval: d.interval,
	}
}

// Odometry returns the dead-reckoned pose.
func (d *Device) Odometry() geom.Pose { return d.odometry }

// CurrentCommand returns the velocity command in effect.
func (d *Device) CurrentCommand() Command { return d.command }

// Stalled reports whether the last move was blocked.
func (d *Device) Stalled() bool { return d.stall }

// Data returns the last published data record.
func (d *Device) Data() DataRecord { return d.data }

// Footprint returns the device's occupancy footprint.
func (d *Device) Footprint() *Footprint { return d.footprint }

// Cycles returns the number of completed update cycles.
func (d *Device) Cycles() uint64 { return d.cycles }

// Update runs one scheduler invocation at simulation time now.
//
// An unsubscribed device only resets its odometry; its footprint stays where
// it was last drawn. A subscribed device does nothing until interval has
// passed since its last cycle, then reads a command, erases its footprint,
// moves, redraws and publishes.
func (d *Device) Update(now time.Duration) {
	if !d.port.Subscribed() {
		d.odometry = geom.Origin
		return
	}
	if now-d.lastUpdate < d.interval {
		return
	}
	d.lastUpdate = now

	d.readCommand()

	if l, ok := d.occ.(sync.Locker); ok {
		l.Lock()
		defer l.Unlock()
	}
	d.footprint.Unstamp()
	d.move(now)
	d.footprint.Stamp(d.shape, d.frame.GlobalPose())

	d.publish()
	d.cycles++
}

func (d *Device) readCommand() {
	n, ok := d.port.Command(d.cmdBuf[:])
	if !ok {
		return
	}
	cmd, err := DecodeCommand(d.cmdBuf[:n])
	if err != nil {
		// a partial record is the same as no record
		return
	}
	d.command = cmd
}

func (d *Device) move(now time.Duration) {
	dt := d.integrator.Elapsed(now)

	local := d.frame.Pose()
	candidate, delta := Step(dt, d.command, local, d.odometry.Theta)

	global := d.frame.LocalToGlobal(local.Relative(candidate))
	if IsBlocked(d.occ, d.shape, global) {
		d.stall = true
	} else {
		d.frame.SetPose(candidate.Normalized())
		d.stall = false
	}

	d.odometry = Accumulate(d.odometry, delta)
}

func (d *Device) publish() {
	d.data = EncodeData(Telemetry{
		Odometry:   d.odometry,
		Command:    d.command,
		GlobalPose: d.frame.GlobalPose(),
		Stall:      d.stall,
	})
	raw, _ := d.data.MarshalBinary()
	d.port.PutData(raw)
}

// State returns a snapshot of the device.
func (d *Device) State() State {
	fp, present := d.footprint.Pose()
	return State{
		ID:               d.id,
		Time:             d.lastUpdate,
		Cycles:           d.cycles,
		Pose:             d.frame.GlobalPose(),
		Odometry:         d.odometry,
		Command:          d.command,
		Stall:            d.stall,
		Shape:            d.kind,
		Data:             d.data,
		Footprint:        fp,
		FootprintPresent: present,
	}
}
