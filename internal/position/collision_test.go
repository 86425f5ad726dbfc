package position

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/robosim/internal/geom"
	"github.com/banshee-data/robosim/internal/world"
)

func TestIsBlocked(t *testing.T) {
	g := newTestGrid(t)
	g.SetRectangle(5.6, 5, 0, 0.2, 0.2, world.LayerObstacle, 1)
	// pucks never block
	g.SetRectangle(3, 3, 0, 0.5, 0.5, world.LayerPuck, 1)

	rect := Rectangle{SizeX: 0.44, SizeY: 0.38, OffsetX: -0.04}
	circle := Circle{Diameter: 0.4}

	assert.True(t, IsBlocked(g, rect, geom.Pose{X: 5.4, Y: 5}))
	assert.True(t, IsBlocked(g, circle, geom.Pose{X: 5.5, Y: 5}))
	assert.False(t, IsBlocked(g, circle, geom.Pose{X: 5, Y: 5}))
	assert.False(t, IsBlocked(g, rect, geom.Pose{X: 3, Y: 3}))

	before := g.Count(world.LayerObstacle)
	IsBlocked(g, rect, geom.Pose{X: 5.6, Y: 5})
	assert.Equal(t, before, g.Count(world.LayerObstacle), "query must not write")
}

func TestIsBlocked_NilShape(t *testing.T) {
	logs := captureLogs(t)
	g := newTestGrid(t)
	g.SetRectangle(5, 5, 0, 1, 1, world.LayerObstacle, 1)

	assert.False(t, IsBlocked(g, nil, geom.Pose{X: 5, Y: 5}))
	require.Len(t, *logs, 1)
	assert.Contains(t, (*logs)[0], "internal error")
}
