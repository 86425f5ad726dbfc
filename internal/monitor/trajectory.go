package monitor

import (
	"fmt"
	"image/color"
	"io"
	"net/http"

	"github.com/google/uuid"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"

	"github.com/banshee-data/robosim/internal/db"
)

// TrajectorySeries is one device's recorded path.
type TrajectorySeries struct {
	Name   string
	Points plotter.XYs
}

// LoadTrajectories returns a series per device of run, in device order.
func LoadTrajectories(src TelemetrySource, run uuid.UUID) ([]TrajectorySeries, error) {
	devices, err := src.Devices(run)
	if err != nil {
		return nil, fmt.Errorf("devices: %w", err)
	}
	series := make([]TrajectorySeries, 0, len(devices))
	for _, d := range devices {
		samples, err := src.Samples(run, d.ID)
		if err != nil {
			return nil, fmt.Errorf("samples for %s: %w", d.ID, err)
		}
		name := d.Name
		if name == "" {
			name = d.ID.String()
		}
		series = append(series, SeriesFromSamples(name, samples))
	}
	return series, nil
}

// SeriesFromSamples converts samples to a path.
func SeriesFromSamples(name string, samples []db.Sample) TrajectorySeries {
	pts := make(plotter.XYs, len(samples))
	for i, s := range samples {
		pts[i] = plotter.XY{X: s.Pose.X, Y: s.Pose.Y}
	}
	return TrajectorySeries{Name: name, Points: pts}
}

// PlotTrajectories draws every series as a line, marks the final position
// and writes the plot to w as a PNG.
func PlotTrajectories(w io.Writer, title string, series []TrajectorySeries, size vg.Length) error {
	p := plot.New()
	p.Title.Text = title
	p.X.Label.Text = "X (m)"
	p.Y.Label.Text = "Y (m)"
	p.Add(plotter.NewGrid())

	colors := generateColors(len(series))
	for i, s := range series {
		if len(s.Points) == 0 {
			continue
		}
		line, err := plotter.NewLine(s.Points)
		if err != nil {
			return fmt.Errorf("%s: %w", s.Name, err)
		}
		line.Color = colors[i]
		line.Width = vg.Points(1)
		p.Add(line)
		p.Legend.Add(s.Name, line)

		end, err := plotter.NewScatter(s.Points[len(s.Points)-1:])
		if err != nil {
			return fmt.Errorf("%s: %w", s.Name, err)
		}
		end.GlyphStyle.Color = colors[i]
		end.GlyphStyle.Shape = draw.CircleGlyph{}
		end.GlyphStyle.Radius = vg.Points(3)
		p.Add(end)
	}

	wt, err := p.WriterTo(size, size, "png")
	if err != nil {
		return err
	}
	_, err = wt.WriteTo(w)
	return err
}

func (ws *WebServer) handleTrajectoryPlot(w http.ResponseWriter, r *http.Request) {
	run, series, ok := ws.trajectories(w, r)
	if !ok {
		return
	}
	w.Header().Set("Content-Type", "image/png")
	if err := PlotTrajectories(w, fmt.Sprintf("Run %s", run.ID), series, 6*vg.Inch); err != nil {
		ws.writeJSONError(w, http.StatusInternalServerError, fmt.Sprintf("failed to plot: %v", err))
	}
}

// generateColors spreads n colours evenly around the hue wheel.
func generateColors(n int) []color.Color {
	colors := make([]color.Color, n)
	for i := 0; i < n; i++ {
		r, g, b := hslToRGB(float64(i)/float64(n), 0.7, 0.5)
		colors[i] = color.RGBA{R: r, G: g, B: b, A: 255}
	}
	return colors
}

func hslToRGB(h, s, l float64) (r, g, b uint8) {
	if s == 0 {
		v := uint8(l * 255)
		return v, v, v
	}
	var q float64
	if l < 0.5 {
		q = l * (1 + s)
	} else {
		q = l + s - l*s
	}
	p := 2*l - q
	return uint8(hueToRGB(p, q, h+1.0/3.0) * 255),
		uint8(hueToRGB(p, q, h) * 255),
		uint8(hueToRGB(p, q, h-1.0/3.0) * 255)
}

func hueToRGB(p, q, t float64) float64 {
	if t < 0 {
		t += 1
	}
	if t > 1 {
		t -= 1
	}
	switch {
	case t < 1.0/6.0:
		return p + (q-p)*6*t
	case t < 1.0/2.0:
		return q
	case t < 2.0/3.0:
		return p + (q-p)*(2.0/3.0-t)*6
	}
	return p
}
