package monitor

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"
	"github.com/google/uuid"

	"github.com/banshee-data/robosim/internal/db"
	"github.com/banshee-data/robosim/internal/world"
)

const echartsAssetsHost = "https://go-echarts.github.io/go-echarts-assets/assets/"

// handleOccupancyChart renders the obstacle and puck layers with the current
// device positions on top.
func (ws *WebServer) handleOccupancyChart(w http.ResponseWriter, r *http.Request) {
	grid := ws.world.Grid()
	cfg := grid.Config()

	scatter := charts.NewScatter()
	scatter.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: "Occupancy", Width: "900px", Height: "900px", AssetsHost: echartsAssetsHost}),
		charts.WithTitleOpts(opts.Title{Title: "Occupancy", Subtitle: fmt.Sprintf("t=%v resolution=%gm", ws.world.Now(), cfg.Resolution)}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Type: "value", Min: cfg.OriginX, Max: cfg.OriginX + cfg.Width, Name: "X (m)", NameLocation: "middle", NameGap: 25}),
		charts.WithYAxisOpts(opts.YAxis{Type: "value", Min: cfg.OriginY, Max: cfg.OriginY + cfg.Height, Name: "Y (m)", NameLocation: "middle", NameGap: 30}),
	)

	for _, layer := range []world.Layer{world.LayerObstacle, world.LayerPuck} {
		cells := grid.Cells(layer)
		data := make([]opts.ScatterData, 0, len(cells))
		for _, c := range cells {
			data = append(data, opts.ScatterData{Value: []interface{}{c.X, c.Y}})
		}
		scatter.AddSeries(layer.String(), data, charts.WithScatterChartOpts(opts.ScatterChart{SymbolSize: 3}))
	}

	states := ws.world.States()
	devices := make([]opts.ScatterData, 0, len(states))
	for _, s := range states {
		devices = append(devices, opts.ScatterData{
			Name:  s.ID.String(),
			Value: []interface{}{s.Pose.X, s.Pose.Y},
		})
	}
	scatter.AddSeries("devices", devices, charts.WithScatterChartOpts(opts.ScatterChart{SymbolSize: 12}))

	ws.renderChart(w, scatter)
}

// handleTrajectoryChart renders recorded device paths for a run.
// Query params:
//   - run (optional; defaults to the latest run)
func (ws *WebServer) handleTrajectoryChart(w http.ResponseWriter, r *http.Request) {
	run, series, ok := ws.trajectories(w, r)
	if !ok {
		return
	}

	scatter := charts.NewScatter()
	scatter.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: "Trajectories", Width: "900px", Height: "900px", AssetsHost: echartsAssetsHost}),
		charts.WithTitleOpts(opts.Title{Title: "Trajectories", Subtitle: fmt.Sprintf("run=%s devices=%d", run.ID, len(series))}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Type: "value", Name: "X (m)", NameLocation: "middle", NameGap: 25}),
		charts.WithYAxisOpts(opts.YAxis{Type: "value", Name: "Y (m)", NameLocation: "middle", NameGap: 30}),
	)
	for _, s := range series {
		data := make([]opts.ScatterData, 0, len(s.Points))
		for _, p := range s.Points {
			data = append(data, opts.ScatterData{Value: []interface{}{p.X, p.Y}})
		}
		scatter.AddSeries(s.Name, data, charts.WithScatterChartOpts(opts.ScatterChart{SymbolSize: 4}))
	}

	ws.renderChart(w, scatter)
}

func (ws *WebServer) renderChart(w http.ResponseWriter, chart interface {
	Render(w io.Writer) error
}) {
	var buf bytes.Buffer
	if err := chart.Render(&buf); err != nil {
		ws.writeJSONError(w, http.StatusInternalServerError, fmt.Sprintf("failed to render chart: %v", err))
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(buf.Bytes())
}

// trajectories loads every device path of the requested run, writing an
// error response and returning false when it cannot.
func (ws *WebServer) trajectories(w http.ResponseWriter, r *http.Request) (*db.Run, []TrajectorySeries, bool) {
	if ws.telemetry == nil {
		ws.writeJSONError(w, http.StatusServiceUnavailable, "telemetry is not enabled")
		return nil, nil, false
	}

	var (
		run *db.Run
		err error
	)
	if q := r.URL.Query().Get("run"); q != "" {
		id, perr := uuid.Parse(q)
		if perr != nil {
			ws.writeJSONError(w, http.StatusBadRequest, "invalid run id")
			return nil, nil, false
		}
		run, err = ws.telemetry.GetRun(id)
	} else {
		run, err = ws.telemetry.LatestRun()
	}
	if errors.Is(err, db.ErrRunNotFound) {
		ws.writeJSONError(w, http.StatusNotFound, "run not found")
		return nil, nil, false
	}
	if err != nil {
		ws.writeJSONError(w, http.StatusInternalServerError, err.Error())
		return nil, nil, false
	}

	series, err := LoadTrajectories(ws.telemetry, run.ID)
	if err != nil {
		ws.writeJSONError(w, http.StatusInternalServerError, err.Error())
		return nil, nil, false
	}
	return run, series, true
}
