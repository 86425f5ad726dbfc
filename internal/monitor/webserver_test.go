package monitor

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/plot/vg"

	"github.com/banshee-data/robosim/internal/db"
	"github.com/banshee-data/robosim/internal/geom"
	"github.com/banshee-data/robosim/internal/monitoring"
	"github.com/banshee-data/robosim/internal/position"
	"github.com/banshee-data/robosim/internal/sim"
	"github.com/banshee-data/robosim/internal/testutil"
	"github.com/banshee-data/robosim/internal/world"
)

func init() {
	monitoring.SetLogger(nil)
}

func newTestWorld(t *testing.T) (*sim.World, *sim.Entity) {
	t.Helper()
	g, err := world.NewGrid(world.GridConfig{Width: 10, Height: 10, Resolution: 0.1})
	require.NoError(t, err)
	w := sim.New(g, sim.Options{TimeStep: 10 * time.Millisecond})
	w.AddObstacle(world.Rect{X: 5, Y: 5, SizeX: 1, SizeY: 1}, world.LayerObstacle)
	e, err := w.AddDevice(uuid.Nil, "pioneer", geom.Pose{X: 2, Y: 2}, uuid.Nil, position.DefaultConfig())
	require.NoError(t, err)
	w.Step()
	return w, e
}

func newTestTelemetry(t *testing.T) (*db.DB, uuid.UUID, uuid.UUID) {
	t.Helper()
	store, err := db.NewDB(filepath.Join(t.TempDir(), "telemetry.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	run, err := store.CreateRun(db.Run{StartedAt: time.Now(), TimeStep: 10 * time.Millisecond})
	require.NoError(t, err)
	dev := uuid.New()
	require.NoError(t, store.AddDevice(run, db.DeviceInfo{ID: dev, Name: "roomba", Shape: "circle", SizeX: 0.33, SizeY: 0.33}))
	var samples []db.Sample
	for i := 0; i < 20; i++ {
		samples = append(samples, db.Sample{
			DeviceID: dev,
			SimTime:  time.Duration(i) * 10 * time.Millisecond,
			Pose:     geom.Pose{X: 1 + 0.1*float64(i), Y: 1},
		})
	}
	require.NoError(t, store.RecordSamples(run, samples))
	return store, run, dev
}

func serve(ws *WebServer, method, target string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	ws.Mux().ServeHTTP(rec, httptest.NewRequest(method, target, nil))
	return rec
}

func TestHealth(t *testing.T) {
	w, _ := newTestWorld(t)
	ws := NewWebServer(WebServerConfig{World: w})
	rec := serve(ws, http.MethodGet, "/health")
	testutil.AssertStatusCode(t, rec.Code, http.StatusOK)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestStatus(t *testing.T) {
	w, _ := newTestWorld(t)
	ws := NewWebServer(WebServerConfig{
		World:  w,
		Status: func() map[string]any { return map[string]any{"links": 2} },
	})
	rec := serve(ws, http.MethodGet, "/api/status")
	testutil.AssertStatusCode(t, rec.Code, http.StatusOK)

	var got map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, float64(1), got["steps"])
	assert.Equal(t, float64(10*time.Millisecond), got["sim_time_ns"])
	assert.Equal(t, float64(1), got["devices"])
	assert.Equal(t, float64(2), got["links"])
}

func TestDevices(t *testing.T) {
	w, e := newTestWorld(t)
	ws := NewWebServer(WebServerConfig{World: w})

	rec := serve(ws, http.MethodGet, "/api/devices")
	testutil.AssertStatusCode(t, rec.Code, http.StatusOK)
	var states []position.State
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &states))
	require.Len(t, states, 1)
	assert.Equal(t, e.ID, states[0].ID)
	assert.Equal(t, geom.Pose{X: 2, Y: 2}, states[0].Pose)

	rec = serve(ws, http.MethodGet, "/api/devices?id="+e.ID.String())
	testutil.AssertStatusCode(t, rec.Code, http.StatusOK)
	var one position.State
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &one))
	assert.Equal(t, e.ID, one.ID)

	rec = serve(ws, http.MethodGet, "/api/devices?id="+uuid.NewString())
	testutil.AssertStatusCode(t, rec.Code, http.StatusNotFound)

	rec = serve(ws, http.MethodPost, "/api/devices")
	testutil.AssertStatusCode(t, rec.Code, http.StatusMethodNotAllowed)
}

func TestOccupancyChart(t *testing.T) {
	w, _ := newTestWorld(t)
	ws := NewWebServer(WebServerConfig{World: w})
	rec := serve(ws, http.MethodGet, "/charts/occupancy")
	testutil.AssertStatusCode(t, rec.Code, http.StatusOK)
	assert.Equal(t, "text/html; charset=utf-8", rec.Header().Get("Content-Type"))
	body := rec.Body.String()
	assert.Contains(t, body, "Occupancy")
	assert.Contains(t, body, "obstacle")
	assert.Contains(t, body, "devices")
}

func TestTrajectoryViews(t *testing.T) {
	w, _ := newTestWorld(t)
	store, run, _ := newTestTelemetry(t)
	ws := NewWebServer(WebServerConfig{World: w, Telemetry: store})

	rec := serve(ws, http.MethodGet, "/charts/trajectory")
	testutil.AssertStatusCode(t, rec.Code, http.StatusOK)
	assert.Contains(t, rec.Body.String(), "roomba")

	rec = serve(ws, http.MethodGet, "/plots/trajectory.png?run="+run.String())
	testutil.AssertStatusCode(t, rec.Code, http.StatusOK)
	assert.Equal(t, "image/png", rec.Header().Get("Content-Type"))
	assert.True(t, bytes.HasPrefix(rec.Body.Bytes(), []byte("\x89PNG")))

	rec = serve(ws, http.MethodGet, "/charts/trajectory?run=nope")
	testutil.AssertStatusCode(t, rec.Code, http.StatusBadRequest)

	rec = serve(ws, http.MethodGet, "/charts/trajectory?run="+uuid.NewString())
	testutil.AssertStatusCode(t, rec.Code, http.StatusNotFound)
}

func TestTrajectoryWithoutTelemetry(t *testing.T) {
	w, _ := newTestWorld(t)
	ws := NewWebServer(WebServerConfig{World: w})
	rec := serve(ws, http.MethodGet, "/plots/trajectory.png")
	testutil.AssertStatusCode(t, rec.Code, http.StatusServiceUnavailable)
}

func TestTrajectoryNoRuns(t *testing.T) {
	w, _ := newTestWorld(t)
	store, err := db.NewDB(filepath.Join(t.TempDir(), "empty.db"))
	require.NoError(t, err)
	defer store.Close()
	ws := NewWebServer(WebServerConfig{World: w, Telemetry: store})
	rec := serve(ws, http.MethodGet, "/charts/trajectory")
	testutil.AssertStatusCode(t, rec.Code, http.StatusNotFound)
}

func TestLoadTrajectories(t *testing.T) {
	store, run, _ := newTestTelemetry(t)
	series, err := LoadTrajectories(store, run)
	require.NoError(t, err)
	require.Len(t, series, 1)
	assert.Equal(t, "roomba", series[0].Name)
	require.Len(t, series[0].Points, 20)
	assert.InDelta(t, 2.9, series[0].Points[19].X, 1e-9)
}

func TestPlotTrajectoriesEmptySeries(t *testing.T) {
	var buf bytes.Buffer
	err := PlotTrajectories(&buf, "empty", []TrajectorySeries{{Name: "idle"}}, 2*vg.Inch)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(buf.String(), "\x89PNG"))
}

func TestGenerateColors(t *testing.T) {
	assert.Empty(t, generateColors(0))
	colors := generateColors(3)
	require.Len(t, colors, 3)
	assert.NotEqual(t, colors[0], colors[1])
}
