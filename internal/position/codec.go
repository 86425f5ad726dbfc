package position

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"

	"github.com/banshee-data/robosim/internal/geom"
	"github.com/banshee-data/robosim/internal/units"
)

// Record sizes on the wire.
const (
	CommandLen = 4
	DataLen    = 17
)

// ErrShortRecord is returned when a buffer does not hold a whole record.
var ErrShortRecord = errors.New("short record")

// Command is a velocity command in SI units.
type Command struct {
	Speed    float64 `json:"speed"`    // m/s
	TurnRate float64 `json:"turnrate"` // rad/s
}

// CommandRecord is the wire form of a command.
type CommandRecord struct {
	Speed    int16 // mm/s
	TurnRate int16 // deg/s
}

// MarshalBinary encodes the record in network byte order.
func (r CommandRecord) MarshalBinary() ([]byte, error) {
	b := make([]byte, CommandLen)
	binary.BigEndian.PutUint16(b[0:], uint16(r.Speed))
	binary.BigEndian.PutUint16(b[2:], uint16(r.TurnRate))
	return b, nil
}

// UnmarshalBinary decodes a record in network byte order. Bytes past
// CommandLen are ignored.
func (r *CommandRecord) UnmarshalBinary(b []byte) error {
	if len(b) < CommandLen {
		return fmt.Errorf("%w: command needs %d bytes, got %d", ErrShortRecord, CommandLen, len(b))
	}
	r.Speed = int16(binary.BigEndian.Uint16(b[0:]))
	r.TurnRate = int16(binary.BigEndian.Uint16(b[2:]))
	return nil
}

// Command converts the record to SI units.
func (r CommandRecord) Command() Command {
	return Command{
		Speed:    units.MillimetersToMeters(float64(r.Speed)),
		TurnRate: units.DTOR(float64(r.TurnRate)),
	}
}

// Record converts c to its wire form, truncating toward zero.
func (c Command) Record() CommandRecord {
	return CommandRecord{
		Speed:    truncInt16(units.MetersToMillimeters(c.Speed)),
		TurnRate: truncInt16(units.RTOD(c.TurnRate)),
	}
}

// DecodeCommand parses a raw command record.
func DecodeCommand(raw []byte) (Command, error) {
	var r CommandRecord
	if err := r.UnmarshalBinary(raw); err != nil {
		return Command{}, err
	}
	return r.Command(), nil
}

// DataRecord is the wire form of the state published to the controller.
type DataRecord struct {
	XPos     int32  // odometric x, mm
	YPos     int32  // odometric y, mm
	Theta    uint16 // odometric heading, deg [0, 360)
	Speed    uint16 // commanded speed, mm/s (two's complement)
	TurnRate int16  // commanded turn rate, deg/s
	Compass  uint16 // true heading + 90°, deg [0, 360)
	Stalls   uint8  // 1 when the last move was blocked
}

// SignedSpeed reinterprets Speed as the signed value it was encoded from.
func (d DataRecord) SignedSpeed() int16 {
	return int16(d.Speed)
}

// MarshalBinary encodes the record in network byte order.
func (d DataRecord) MarshalBinary() ([]byte, error) {
	b := make([]byte, DataLen)
	binary.BigEndian.PutUint32(b[0:], uint32(d.XPos))
	binary.BigEndian.PutUint32(b[4:], uint32(d.YPos))
	binary.BigEndian.PutUint16(b[8:], d.Theta)
	binary.BigEndian.PutUint16(b[10:], d.Speed)
	binary.BigEndian.PutUint16(b[12:], uint16(d.TurnRate))
	binary.BigEndian.PutUint16(b[14:], d.Compass)
	b[16] = d.Stalls
	return b, nil
}

// UnmarshalBinary decodes a record in network byte order.
func (d *DataRecord) UnmarshalBinary(b []byte) error {
	if len(b) < DataLen {
		return fmt.Errorf("%w: data needs %d bytes, got %d", ErrShortRecord, DataLen, len(b))
	}
	d.XPos = int32(binary.BigEndian.Uint32(b[0:]))
	d.YPos = int32(binary.BigEndian.Uint32(b[4:]))
	d.Theta = binary.BigEndian.Uint16(b[8:])
	d.Speed = binary.BigEndian.Uint16(b[10:])
	d.TurnRate = int16(binary.BigEndian.Uint16(b[12:]))
	d.Compass = binary.BigEndian.Uint16(b[14:])
	d.Stalls = b[16]
	return nil
}

// Telemetry is the device state EncodeData reads.
type Telemetry struct {
	Odometry   geom.Pose
	Command    Command
	GlobalPose geom.Pose
	Stall      bool
}

// EncodeData converts telemetry to a data record. Lengths become millimeters
// and angles degrees; every value is truncated toward zero, and headings are
// wrapped into [0, 360) before narrowing.
func EncodeData(t Telemetry) DataRecord {
	d := DataRecord{
		XPos:     truncInt32(units.MetersToMillimeters(t.Odometry.X)),
		YPos:     truncInt32(units.MetersToMillimeters(t.Odometry.Y)),
		Theta:    headingDegrees(t.Odometry.Theta),
		Speed:    uint16(truncInt16(units.MetersToMillimeters(t.Command.Speed))),
		TurnRate: truncInt16(units.RTOD(t.Command.TurnRate)),
		Compass:  headingDegrees(t.GlobalPose.Theta + math.Pi/2),
	}
	if t.Stall {
		d.Stalls = 1
	}
	return d
}

func headingDegrees(rad float64) uint16 {
	deg := units.NormalizeDegrees(units.RTOD(units.NormalizeRadians(rad)))
	return uint16(deg)
}

// truncInt32 truncates toward zero, saturating at the int32 range. NaN maps
// to zero.
func truncInt32(v float64) int32 {
	switch {
	case math.IsNaN(v):
		return 0
	case v >= math.MaxInt32:
		return math.MaxInt32
	case v <= math.MinInt32:
		return math.MinInt32
	}
	return int32(v)
}

func truncInt16(v float64) int16 {
	switch {
	case math.IsNaN(v):
		return 0
	case v >= math.MaxInt16:
		return math.MaxInt16
	case v <= math.MinInt16:
		return math.MinInt16
	}
	return int16(v)
}
