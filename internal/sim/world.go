// Package sim owns a running simulation: the occupancy grid, the bodies and
// the position devices moving them, and the loop that steps them.
package sim

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/banshee-data/robosim/internal/config"
	"github.com/banshee-data/robosim/internal/geom"
	"github.com/banshee-data/robosim/internal/mailbox"
	"github.com/banshee-data/robosim/internal/monitoring"
	"github.com/banshee-data/robosim/internal/position"
	"github.com/banshee-data/robosim/internal/timeutil"
	"github.com/banshee-data/robosim/internal/world"
)

// ErrUnknownEntity is returned when an id does not name an entity in the world.
var ErrUnknownEntity = errors.New("unknown entity")

// Entity is one simulated robot.
type Entity struct {
	ID      uuid.UUID
	Name    string
	Body    *world.Body
	Mailbox *mailbox.Mailbox
	Device  *position.Device
}

// Observer is called after every step with the state of every device, in the
// order the devices were added. It runs on the stepping goroutine and must
// not block.
type Observer func(now time.Duration, states []position.State)

// Options control the pace of a World.
type Options struct {
	// TimeStep is the simulated time each Step advances.
	TimeStep time.Duration
	// Realtime is simulated seconds per wall second. Zero steps as fast as
	// possible.
	Realtime float64
	Clock    timeutil.Clock
}

// World is a simulation. Step is called from one goroutine at a time; the
// accessors may be used concurrently with it.
type World struct {
	grid *world.Grid
	opts Options

	mu        sync.RWMutex
	entities  []*Entity
	byID      map[uuid.UUID]*Entity
	now       time.Duration
	steps     uint64
	states    []position.State
	observers []Observer
}

// New creates an empty world over grid.
func New(grid *world.Grid, opts Options) *World {
	if opts.TimeStep <= 0 {
		opts.TimeStep = config.DefaultTimeStep
	}
	if opts.Clock == nil {
		opts.Clock = timeutil.RealClock{}
	}
	return &World{
		grid: grid,
		opts: opts,
		byID: make(map[uuid.UUID]*Entity),
	}
}

// FromConfig builds a world with the grid, obstacles and devices in cfg.
func FromConfig(cfg *config.SimConfig, clock timeutil.Clock) (*World, error) {
	grid, err := world.NewGrid(cfg.GetGridConfig())
	if err != nil {
		return nil, fmt.Errorf("build grid: %w", err)
	}
	w := New(grid, Options{
		TimeStep: cfg.GetTimeStep(),
		Realtime: cfg.GetRealtime(),
		Clock:    clock,
	})

	for i, o := range cfg.Obstacles {
		layer, err := o.GetLayer()
		if err != nil {
			return nil, fmt.Errorf("obstacle %d: %w", i, err)
		}
		w.AddObstacle(o.Region(), layer)
	}
	for i, d := range cfg.Devices {
		if _, err := w.AddDevice(d.GetID(), d.Name, d.Pose.Pose(), d.GetParent(), d.PositionConfig()); err != nil {
			return nil, fmt.Errorf("device %d: %w", i, err)
		}
	}
	return w, nil
}

// Grid returns the shared occupancy grid.
func (w *World) Grid() *world.Grid { return w.grid }

// TimeStep returns the simulated time advanced per step.
func (w *World) TimeStep() time.Duration { return w.opts.TimeStep }

// AddObstacle draws static geometry into the grid.
func (w *World) AddObstacle(r world.Region, layer world.Layer) {
	r.Set(w.grid, layer, 1)
}

// AddDevice places a position device at pose. The pose is relative to the
// body of parent, or to the world when parent is uuid.Nil. A nil id is
// replaced with a random one.
func (w *World) AddDevice(id uuid.UUID, name string, pose geom.Pose, parent uuid.UUID, cfg position.Config) (*Entity, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if id == uuid.Nil {
		id = uuid.New()
	}
	if _, ok := w.byID[id]; ok {
		return nil, fmt.Errorf("duplicate entity id %s", id)
	}

	var parentBody *world.Body
	if parent != uuid.Nil {
		p, ok := w.byID[parent]
		if !ok {
			return nil, fmt.Errorf("parent %s: %w", parent, ErrUnknownEntity)
		}
		parentBody = p.Body
	}
	if name == "" {
		name = id.String()[:8]
	}

	e := &Entity{
		ID:      id,
		Name:    name,
		Body:    world.NewBody(parentBody, pose),
		Mailbox: mailbox.New(),
	}
	e.Device = position.New(id, e.Mailbox, e.Body, w.grid, cfg)
	w.entities = append(w.entities, e)
	w.byID[id] = e

	monitoring.Logf("[world] added %s %s (%s) at %v", e.Device.EntityType(), name, id, e.Body.GlobalPose())
	return e, nil
}

// Entity looks up an entity by id.
func (w *World) Entity(id uuid.UUID) (*Entity, bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	e, ok := w.byID[id]
	return e, ok
}

// Entities returns the entities in the order they were added.
func (w *World) Entities() []*Entity {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return append([]*Entity(nil), w.entities...)
}

// Observe registers fn to be called after every step.
func (w *World) Observe(fn Observer) {
	w.mu.Lock()
	w.observers = append(w.observers, fn)
	w.mu.Unlock()
}

// Now returns the current simulated time.
func (w *World) Now() time.Duration {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.now
}

// Steps returns the number of completed steps.
func (w *World) Steps() uint64 {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.steps
}

// States returns the device states recorded by the last step.
func (w *World) States() []position.State {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return append([]position.State(nil), w.states...)
}

// Step advances simulated time by one time step and updates every device
// once, in the order they were added.
func (w *World) Step() {
	w.mu.Lock()
	w.now += w.opts.TimeStep
	now := w.now
	states := make([]position.State, 0, len(w.entities))
	for _, e := range w.entities {
		e.Device.Update(now)
		states = append(states, e.Device.State())
	}
	w.states = states
	w.steps++
	observers := append([]Observer(nil), w.observers...)
	w.mu.Unlock()

	for _, fn := range observers {
		fn(now, states)
	}
}

// Run steps the world until ctx is cancelled. With a positive realtime factor
// steps are paced by the clock; otherwise they run back to back.
func (w *World) Run(ctx context.Context) error {
	monitoring.Logf("[world] running: step=%s realtime=%.2f entities=%d",
		w.opts.TimeStep, w.opts.Realtime, len(w.Entities()))
	defer func() {
		monitoring.Logf("[world] stopped after %d steps at t=%s", w.Steps(), w.Now())
	}()

	if w.opts.Realtime <= 0 {
		for {
			select {
			case <-ctx.Done():
				return nil
			default:
			}
			w.Step()
		}
	}

	period := time.Duration(float64(w.opts.TimeStep) / w.opts.Realtime)
	if period <= 0 {
		period = time.Nanosecond
	}
	ticker := w.opts.Clock.NewTicker(period)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C():
			w.Step()
		}
	}
}
