package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/banshee-data/robosim/internal/config"
	"github.com/banshee-data/robosim/internal/db"
	"github.com/banshee-data/robosim/internal/monitor"
	"github.com/banshee-data/robosim/internal/sim"
	"github.com/banshee-data/robosim/internal/timeutil"
	"github.com/banshee-data/robosim/internal/version"
	"github.com/banshee-data/robosim/internal/visualiser"
)

var (
	configFile  = flag.String("config", "", "Path to a JSON world config (default: one Pioneer on UDP :7000)")
	dbFile      = flag.String("db", "robosim.db", "Telemetry database path (empty disables telemetry)")
	listen      = flag.String("listen", ":8080", "Dashboard listen address (empty disables)")
	grpcListen  = flag.String("grpc-listen", "localhost:50051", "Visualiser gRPC listen address (empty disables)")
	realtime    = flag.Float64("realtime", -1, "Override the config's realtime factor (0 runs flat out)")
	sampleEvery = flag.Int("sample-every", db.DefaultSampleEvery, "Record telemetry every N steps")
	recordDir   = flag.String("record-dir", "", "Write received UDP commands to <dir>/<device>.pcap")
	showVersion = flag.Bool("version", false, "Print version and exit")
)

func main() {
	flag.Parse()

	if *showVersion {
		fmt.Println(version.String("robosim"))
		return
	}

	cfg, err := loadConfig(*configFile, *realtime)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	w, err := sim.FromConfig(cfg, timeutil.RealClock{})
	if err != nil {
		log.Fatalf("Failed to build world: %v", err)
	}
	log.Printf("%s: %d devices, step %v, realtime %g", version.String("robosim"), len(w.Entities()), w.TimeStep(), cfg.GetRealtime())

	var wg sync.WaitGroup
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	links, err := startLinks(ctx, &wg, cfg, w, *recordDir)
	if err != nil {
		log.Fatalf("Failed to start controller links: %v", err)
	}

	var store *db.DB
	var recorder *db.TelemetryRecorder
	var runID string
	if *dbFile != "" {
		store, err = db.NewDB(*dbFile)
		if err != nil {
			log.Fatalf("Failed to open database: %v", err)
		}
		defer store.Close()

		recorder, err = startTelemetry(store, cfg, w, *sampleEvery)
		if err != nil {
			log.Fatalf("Failed to start telemetry: %v", err)
		}
		runID = recorder.RunID.String()
		w.Observe(recorder.Observe)

		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := recorder.Run(ctx); err != nil {
				log.Printf("telemetry recorder error: %v", err)
			}
			log.Print("telemetry routine terminated")
		}()
	}

	var publisher *visualiser.Publisher
	if *grpcListen != "" {
		vcfg := visualiser.DefaultConfig()
		vcfg.ListenAddr = *grpcListen
		publisher = visualiser.NewPublisher(vcfg)
		if err := publisher.Start(); err != nil {
			log.Fatalf("Failed to start visualiser: %v", err)
		}
		defer publisher.Stop()
		w.Observe(publisher.Observe)
	}

	if *listen != "" {
		status := func() map[string]any {
			s := map[string]any{"links": links.stats()}
			if recorder != nil {
				s["run_id"] = runID
				s["telemetry"] = recorder.Stats()
			}
			if publisher != nil {
				s["visualiser"] = publisher.Stats()
			}
			return s
		}
		wcfg := monitor.WebServerConfig{Address: *listen, World: w, Status: status}
		if store != nil {
			wcfg.Telemetry = store
		}
		ws := monitor.NewWebServer(wcfg)
		if store != nil {
			store.AttachAdminRoutes(ws.Mux())
		}

		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := ws.Start(ctx); err != nil {
				log.Printf("HTTP server error: %v", err)
			}
		}()
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := w.Run(ctx); err != nil {
			log.Printf("world loop error: %v", err)
		}
		log.Printf("world stopped at t=%v after %d steps", w.Now(), w.Steps())
	}()

	<-ctx.Done()
	wg.Wait()
	links.close()

	if recorder != nil {
		if err := store.EndRun(recorder.RunID, time.Now()); err != nil {
			log.Printf("failed to close run: %v", err)
		}
	}
	log.Print("graceful shutdown complete")
}

// loadConfig reads path, or the default world when path is empty, and
// applies the realtime override when it is not negative.
func loadConfig(path string, realtimeOverride float64) (*config.SimConfig, error) {
	cfg := config.DefaultConfig()
	if path != "" {
		var err error
		if cfg, err = config.LoadConfig(path); err != nil {
			return nil, err
		}
	}
	if realtimeOverride >= 0 {
		cfg.Realtime = &realtimeOverride
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// startTelemetry opens a run for w and registers its devices.
func startTelemetry(store *db.DB, cfg *config.SimConfig, w *sim.World, every int) (*db.TelemetryRecorder, error) {
	raw, err := json.Marshal(cfg)
	if err != nil {
		return nil, fmt.Errorf("encode config: %w", err)
	}
	run, err := store.CreateRun(db.Run{
		StartedAt: time.Now(),
		TimeStep:  w.TimeStep(),
		Config:    string(raw),
	})
	if err != nil {
		return nil, err
	}
	for _, e := range w.Entities() {
		sizeX, sizeY := e.Device.Size()
		if err := store.AddDevice(run, db.DeviceInfo{
			ID:    e.ID,
			Name:  e.Name,
			Shape: e.Device.Shape().String(),
			SizeX: sizeX,
			SizeY: sizeY,
		}); err != nil {
			return nil, err
		}
	}
	log.Printf("recording telemetry for run %s to %s", run, store.Path())
	return db.NewTelemetryRecorder(store, run, every), nil
}
