// Package monitor serves the simulator's HTTP dashboard: live device state,
// occupancy and trajectory charts.
package monitor

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/banshee-data/robosim/internal/db"
	"github.com/banshee-data/robosim/internal/position"
	"github.com/banshee-data/robosim/internal/world"
)

// WorldSource is the live world the dashboard reads from.
type WorldSource interface {
	Now() time.Duration
	Steps() uint64
	States() []position.State
	Grid() *world.Grid
}

// TelemetrySource is the run history behind the trajectory views.
type TelemetrySource interface {
	LatestRun() (*db.Run, error)
	GetRun(id uuid.UUID) (*db.Run, error)
	Devices(run uuid.UUID) ([]db.DeviceInfo, error)
	Samples(run, device uuid.UUID) ([]db.Sample, error)
}

// WebServer handles the HTTP interface for monitoring a running world.
type WebServer struct {
	address   string
	world     WorldSource
	telemetry TelemetrySource
	status    func() map[string]any
	mux       *http.ServeMux
	server    *http.Server
}

// WebServerConfig contains configuration options for the web server.
type WebServerConfig struct {
	Address   string
	World     WorldSource
	Telemetry TelemetrySource // optional
	// Status adds extra fields to /api/status, e.g. link and publisher stats.
	Status func() map[string]any
}

// NewWebServer creates a new web server with the provided configuration.
func NewWebServer(config WebServerConfig) *WebServer {
	ws := &WebServer{
		address:   config.Address,
		world:     config.World,
		telemetry: config.Telemetry,
		status:    config.Status,
	}
	ws.mux = ws.setupRoutes()
	ws.server = &http.Server{
		Addr:              ws.address,
		Handler:           ws.mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return ws
}

// Mux returns the route table so other packages can mount debug routes.
func (ws *WebServer) Mux() *http.ServeMux { return ws.mux }

// Start serves until ctx is done, then shuts the server down.
func (ws *WebServer) Start(ctx context.Context) error {
	go func() {
		log.Printf("Starting HTTP server on %s", ws.address)
		if err := ws.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("HTTP server error: %v", err)
		}
	}()

	<-ctx.Done()
	log.Println("shutting down HTTP server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 1*time.Second)
	defer cancel()
	if err := ws.server.Shutdown(shutdownCtx); err != nil {
		log.Printf("HTTP server shutdown error: %v", err)
		if err := ws.server.Close(); err != nil {
			log.Printf("HTTP server force close error: %v", err)
		}
	}
	log.Printf("HTTP server routine stopped")
	return nil
}

func (ws *WebServer) setupRoutes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", ws.handleHealth)
	mux.HandleFunc("/api/status", ws.handleStatus)
	mux.HandleFunc("/api/devices", ws.handleDevices)
	mux.HandleFunc("/charts/occupancy", ws.handleOccupancyChart)
	mux.HandleFunc("/charts/trajectory", ws.handleTrajectoryChart)
	mux.HandleFunc("/plots/trajectory.png", ws.handleTrajectoryPlot)
	return mux
}

func (ws *WebServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status": "ok"}`))
}

func (ws *WebServer) handleStatus(w http.ResponseWriter, r *http.Request) {
	status := map[string]any{
		"sim_time_ns": int64(ws.world.Now()),
		"steps":       ws.world.Steps(),
		"devices":     len(ws.world.States()),
	}
	if ws.status != nil {
		for k, v := range ws.status() {
			status[k] = v
		}
	}
	ws.writeJSON(w, http.StatusOK, status)
}

func (ws *WebServer) handleDevices(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		ws.writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	states := ws.world.States()
	if id := r.URL.Query().Get("id"); id != "" {
		for _, s := range states {
			if s.ID.String() == id {
				ws.writeJSON(w, http.StatusOK, s)
				return
			}
		}
		ws.writeJSONError(w, http.StatusNotFound, "no such device")
		return
	}
	ws.writeJSON(w, http.StatusOK, states)
}

func (ws *WebServer) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Printf("JSON encoding error: %v", err)
	}
}

func (ws *WebServer) writeJSONError(w http.ResponseWriter, status int, msg string) {
	ws.writeJSON(w, status, map[string]string{"error": msg})
}
