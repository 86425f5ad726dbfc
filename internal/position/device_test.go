package position

import (
	"math"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/robosim/internal/geom"
	"github.com/banshee-data/robosim/internal/units"
	"github.com/banshee-data/robosim/internal/world"
)

type deviceFixture struct {
	grid *world.Grid
	body *world.Body
	port *fakePort
	dev  *Device
}

func newDeviceFixture(t *testing.T, cfg Config, start geom.Pose) *deviceFixture {
	t.Helper()
	f := &deviceFixture{
		grid: newTestGrid(t),
		body: world.NewBody(nil, start),
		port: &fakePort{subscribed: true},
	}
	f.dev = New(uuid.Nil, f.port, f.body, f.grid, cfg)
	return f
}

func (f *deviceFixture) lastData(t *testing.T) DataRecord {
	t.Helper()
	require.NotEmpty(t, f.port.data)
	var d DataRecord
	require.NoError(t, d.UnmarshalBinary(f.port.data[len(f.port.data)-1]))
	return d
}

func TestDevice_Defaults(t *testing.T) {
	t.Parallel()
	f := newDeviceFixture(t, DefaultConfig(), geom.Origin)

	assert.NotEqual(t, uuid.Nil, f.dev.ID())
	assert.Equal(t, ShapeRectangle, f.dev.Shape())
	assert.Equal(t, RectRobotType, f.dev.EntityType())
	sx, sy := f.dev.Size()
	assert.Equal(t, 0.440, sx)
	assert.Equal(t, 0.380, sy)
	assert.Equal(t, DefaultConfig(), f.dev.Config())
	assert.Equal(t, 10*time.Millisecond, DefaultConfig().Interval)
}

func TestDevice_PioneerStraightLine(t *testing.T) {
	t.Parallel()
	f := newDeviceFixture(t, DefaultConfig(), geom.Pose{X: 5, Y: 5})
	f.port.send(CommandRecord{Speed: 500})

	f.dev.Update(time.Second)

	assert.True(t, f.body.GlobalPose().Near(geom.Pose{X: 5.5, Y: 5}, 1e-9), "pose %v", f.body.GlobalPose())
	assert.True(t, f.dev.Odometry().Near(geom.Pose{X: 0.5}, 1e-9), "odometry %v", f.dev.Odometry())
	assert.False(t, f.dev.Stalled())

	d := f.lastData(t)
	assert.Equal(t, int32(500), d.XPos)
	assert.Equal(t, int32(0), d.YPos)
	assert.Equal(t, uint16(0), d.Theta)
	assert.Equal(t, int16(500), d.SignedSpeed())
	assert.Equal(t, int16(0), d.TurnRate)
	assert.InDelta(t, 90, int(d.Compass), 1)
	assert.Equal(t, uint8(0), d.Stalls)

	fp, ok := f.dev.Footprint().Pose()
	assert.True(t, ok)
	assert.Equal(t, f.body.GlobalPose(), fp)
	assert.True(t, f.grid.Occupied(5.46, 5, world.LayerObstacle))
	assert.True(t, f.grid.Occupied(5.46, 5, world.LayerPuck))
	assert.False(t, f.grid.Occupied(5, 5, world.LayerObstacle))
}

func TestDevice_CommandPersistsUntilReplaced(t *testing.T) {
	t.Parallel()
	f := newDeviceFixture(t, DefaultConfig(), geom.Pose{X: 2, Y: 2})
	f.port.send(CommandRecord{Speed: 200})

	f.dev.Update(time.Second)
	f.dev.Update(2 * time.Second)
	assert.InDelta(t, 2.4, f.body.GlobalPose().X, 1e-9)

	f.port.send(CommandRecord{})
	f.dev.Update(3 * time.Second)
	assert.InDelta(t, 2.4, f.body.GlobalPose().X, 1e-9)
	assert.Equal(t, Command{}, f.dev.CurrentCommand())
}

func TestDevice_ShortCommandIgnored(t *testing.T) {
	t.Parallel()
	f := newDeviceFixture(t, DefaultConfig(), geom.Pose{X: 2, Y: 2})
	f.port.send(CommandRecord{Speed: 300})
	f.dev.Update(time.Second)

	f.port.cmd = []byte{0x7f}
	f.port.fresh = true
	f.dev.Update(2 * time.Second)

	assert.InDelta(t, 0.3, f.dev.CurrentCommand().Speed, 1e-12)
	assert.InDelta(t, 2.6, f.body.GlobalPose().X, 1e-9)
}

func TestDevice_CircleBlockedByObstacle(t *testing.T) {
	t.Parallel()
	cfg := DefaultConfig()
	cfg.Shape = "circle"
	cfg.SizeX = 0.4
	f := newDeviceFixture(t, cfg, geom.Pose{X: 5, Y: 5})
	f.grid.SetRectangle(5.6, 5, 0, 0.2, 0.2, world.LayerObstacle, 1)
	f.port.send(CommandRecord{Speed: 500})

	f.dev.Update(time.Second)

	assert.True(t, f.dev.Stalled())
	assert.Equal(t, geom.Pose{X: 5, Y: 5}, f.body.GlobalPose())
	// odometry still integrates the commanded motion
	assert.True(t, f.dev.Odometry().Near(geom.Pose{X: 0.5}, 1e-9))

	d := f.lastData(t)
	assert.Equal(t, uint8(1), d.Stalls)
	assert.Equal(t, int32(500), d.XPos)

	// stamped where it really is
	fp, ok := f.dev.Footprint().Pose()
	require.True(t, ok)
	assert.Equal(t, geom.Pose{X: 5, Y: 5}, fp)
	assert.True(t, f.grid.Occupied(5, 5, world.LayerPuck))

	// clearing the obstacle lets it move again
	f.grid.SetRectangle(5.6, 5, 0, 0.2, 0.2, world.LayerObstacle, 0)
	f.dev.Update(2 * time.Second)
	assert.False(t, f.dev.Stalled())
	assert.InDelta(t, 5.5, f.body.GlobalPose().X, 1e-9)
}

func TestDevice_DoesNotCollideWithItself(t *testing.T) {
	t.Parallel()
	f := newDeviceFixture(t, DefaultConfig(), geom.Pose{X: 5, Y: 5})
	f.port.send(CommandRecord{Speed: 10})

	for i := 1; i <= 5; i++ {
		f.dev.Update(time.Duration(i) * 100 * time.Millisecond)
		require.False(t, f.dev.Stalled(), "cycle %d", i)
	}
	assert.InDelta(t, 5.005, f.body.GlobalPose().X, 1e-9)
}

func TestDevice_IntervalGating(t *testing.T) {
	t.Parallel()
	f := newDeviceFixture(t, DefaultConfig(), geom.Pose{X: 5, Y: 5})
	f.port.send(CommandRecord{Speed: 500, TurnRate: 10})

	f.dev.Update(time.Second)
	before := f.dev.State()
	cells := f.grid.Cells(world.LayerObstacle)

	f.dev.Update(time.Second + 5*time.Millisecond)

	if diff := cmp.Diff(before, f.dev.State()); diff != "" {
		t.Errorf("state changed inside the interval (-before +after):\n%s", diff)
	}
	assert.Equal(t, cells, f.grid.Cells(world.LayerObstacle))
	assert.Len(t, f.port.data, 1)
	assert.Equal(t, uint64(1), f.dev.Cycles())

	// integration covers the whole gap once the interval has passed
	f.dev.Update(2 * time.Second)
	dth := units.DTOR(10)
	assert.InDelta(t, 0.5*math.Cos(dth/2)+0.5*math.Cos(dth*1.5), f.dev.Odometry().X, 1e-9)
	assert.Len(t, f.port.data, 2)
}

func TestDevice_UnsubscribedResetsOdometryOnly(t *testing.T) {
	t.Parallel()
	f := newDeviceFixture(t, DefaultConfig(), geom.Pose{X: 5, Y: 5})
	f.port.send(CommandRecord{Speed: 500})
	f.dev.Update(time.Second)
	cells := f.grid.Cells(world.LayerObstacle)

	f.port.subscribed = false
	f.dev.Update(2 * time.Second)

	assert.Equal(t, geom.Origin, f.dev.Odometry())
	assert.Len(t, f.port.data, 1, "nothing published while unsubscribed")
	assert.InDelta(t, 5.5, f.body.GlobalPose().X, 1e-9)

	// the last footprint is left in place
	assert.True(t, f.dev.Footprint().Present())
	assert.Equal(t, cells, f.grid.Cells(world.LayerObstacle))
}

func TestDevice_ResubscribeIntegratesWholeGap(t *testing.T) {
	t.Parallel()
	f := newDeviceFixture(t, DefaultConfig(), geom.Pose{X: 5, Y: 5})
	f.port.send(CommandRecord{Speed: 500})
	f.dev.Update(10 * time.Millisecond)
	assert.InDelta(t, 5.005, f.body.Pose().X, 1e-9)

	f.port.subscribed = false
	for now := 20 * time.Millisecond; now <= time.Second+10*time.Millisecond; now += 10 * time.Millisecond {
		f.dev.Update(now)
	}
	assert.InDelta(t, 5.005, f.body.Pose().X, 1e-9)

	// The integrator only runs while subscribed, so the first cycle after
	// resubscribing covers the whole gap in one step. Only the endpoint is
	// collision checked.
	f.port.subscribed = true
	f.dev.Update(time.Second + 20*time.Millisecond)
	assert.InDelta(t, 5.51, f.body.Pose().X, 1e-9)
	assert.InDelta(t, 0.505, f.dev.Odometry().X, 1e-9)
	assert.False(t, f.dev.Stalled())
}

func TestDevice_SingleFootprintAtTruePose(t *testing.T) {
	t.Parallel()
	f := newDeviceFixture(t, DefaultConfig(), geom.Pose{X: 3, Y: 3})
	f.port.send(CommandRecord{Speed: 400, TurnRate: 45})

	for i := 1; i <= 20; i++ {
		f.dev.Update(time.Duration(i) * 250 * time.Millisecond)

		pose := f.body.GlobalPose()
		fp, ok := f.dev.Footprint().Pose()
		require.True(t, ok)
		require.Equal(t, pose, fp)

		// everything drawn lies under the shape at the true pose
		under := f.dev.shape.Bounds(pose).Query(f.grid, world.LayerObstacle)
		require.Equal(t, f.grid.Count(world.LayerObstacle), under, "cycle %d", i)
		require.Equal(t, f.grid.Count(world.LayerObstacle), f.grid.Count(world.LayerPuck))
	}
}

func TestDevice_OdometricHeadingStaysInRange(t *testing.T) {
	t.Parallel()
	f := newDeviceFixture(t, DefaultConfig(), geom.Pose{X: 5, Y: 5})
	f.port.send(CommandRecord{TurnRate: -170})

	for i := 1; i <= 30; i++ {
		f.dev.Update(time.Duration(i) * 100 * time.Millisecond)
		th := f.dev.Odometry().Theta
		require.GreaterOrEqual(t, th, 0.0)
		require.Less(t, th, units.TwoPi)
		require.Less(t, f.lastData(t).Theta, uint16(360))
	}
}

func TestDevice_TrueHeadingStaysInRange(t *testing.T) {
	t.Parallel()
	f := newDeviceFixture(t, DefaultConfig(), geom.Pose{X: 5, Y: 5})

	check := func(i int) {
		th := f.body.Pose().Theta
		require.GreaterOrEqual(t, th, 0.0, "cycle %d", i)
		require.Less(t, th, units.TwoPi, "cycle %d", i)
		fp, ok := f.dev.Footprint().Pose()
		require.True(t, ok)
		require.Equal(t, f.body.GlobalPose(), fp)
	}

	f.port.send(CommandRecord{TurnRate: 90})
	for i := 1; i <= 6; i++ {
		f.dev.Update(time.Duration(i) * time.Second)
		check(i)
	}
	assert.InDelta(t, math.Pi, f.body.Pose().Theta, 1e-9)

	f.port.send(CommandRecord{TurnRate: -90})
	for i := 7; i <= 20; i++ {
		f.dev.Update(time.Duration(i) * time.Second)
		check(i)
	}
	// 540° then -1260° leaves the robot facing 0
	assert.True(t, f.body.Pose().Near(geom.Pose{X: 5, Y: 5}, 1e-9))
	assert.Equal(t, f.dev.State().Pose.Theta, f.body.GlobalPose().Theta)
}

func TestDevice_MountedOnParent(t *testing.T) {
	t.Parallel()
	g := newTestGrid(t)
	base := world.NewBody(nil, geom.Pose{X: 5, Y: 5, Theta: math.Pi / 2})
	body := world.NewBody(base, geom.Origin)
	port := &fakePort{subscribed: true}
	dev := New(uuid.New(), port, body, g, DefaultConfig())
	port.send(CommandRecord{Speed: 500})

	dev.Update(time.Second)

	assert.True(t, body.Pose().Near(geom.Pose{X: 0.5}, 1e-9), "local %v", body.Pose())
	assert.True(t, body.GlobalPose().Near(geom.Pose{X: 5, Y: 5.5, Theta: math.Pi / 2}, 1e-9), "global %v", body.GlobalPose())
	// compass reports the world heading plus a quarter turn
	assert.InDelta(t, 180, int(dev.Data().Compass), 1)
}

func TestDevice_SetShape(t *testing.T) {
	t.Parallel()
	f := newDeviceFixture(t, DefaultConfig(), geom.Origin)

	f.dev.SetShape(ShapeCircle)
	sx, sy := f.dev.Size()
	assert.Equal(t, sx, sy)
	assert.Equal(t, RoundRobotType, f.dev.EntityType())
	assert.Equal(t, "circle", f.dev.Config().Shape)

	f.dev.SetSize(0.6, 0.1)
	sx, sy = f.dev.Size()
	assert.Equal(t, 0.6, sx)
	assert.Equal(t, 0.6, sy)
}

func TestDevice_UnknownShape(t *testing.T) {
	logs := captureLogs(t)
	g := newTestGrid(t)
	body := world.NewBody(nil, geom.Pose{X: 5, Y: 5})
	port := &fakePort{subscribed: true}
	dev := New(uuid.New(), port, body, g, DefaultConfig())
	dev.SetShape(ShapeUnknown)
	port.send(CommandRecord{Speed: 500})

	dev.Update(time.Second)

	// moves without a collision test and draws nothing
	assert.InDelta(t, 5.5, body.GlobalPose().X, 1e-9)
	assert.False(t, dev.Footprint().Present())
	assert.Zero(t, g.Count(world.LayerObstacle))
	assert.Len(t, port.data, 1)
	assert.NotEmpty(t, *logs)

	*logs = nil
	assert.Equal(t, "rectangle", dev.Config().Shape)
	assert.Len(t, *logs, 1)
}

func TestDevice_ReleasesGridLock(t *testing.T) {
	t.Parallel()
	f := newDeviceFixture(t, DefaultConfig(), geom.Pose{X: 5, Y: 5})
	f.port.send(CommandRecord{Speed: 100})

	f.dev.Update(time.Second)
	f.dev.Update(2 * time.Second)

	// would deadlock if Update kept the entity lock
	f.grid.Lock()
	f.grid.Unlock()
	assert.Equal(t, uint64(2), f.dev.Cycles())
}
