// Package main renders the recorded device trajectories of a run as a PNG.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/google/uuid"
	"gonum.org/v1/plot/vg"

	"github.com/banshee-data/robosim/internal/db"
	"github.com/banshee-data/robosim/internal/monitor"
)

func main() {
	dbPath := flag.String("db", "robosim.db", "Telemetry database")
	runFlag := flag.String("run", "", "Run id (default: latest run)")
	out := flag.String("out", "trajectory.png", "Output PNG path")
	size := flag.Float64("size", 6, "Plot width and height in inches")
	list := flag.Bool("list", false, "List runs and exit")
	flag.Parse()

	store, err := db.OpenDB(*dbPath)
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer store.Close()

	if *list {
		if err := listRuns(store); err != nil {
			log.Fatalf("Failed to list runs: %v", err)
		}
		return
	}

	n, err := plotRun(store, *runFlag, *out, vg.Length(*size)*vg.Inch)
	if err != nil {
		log.Fatalf("Failed to plot: %v", err)
	}
	log.Printf("wrote %d trajectories to %s", n, *out)
}

func listRuns(store *db.DB) error {
	runs, err := store.Runs()
	if err != nil {
		return err
	}
	for _, r := range runs {
		ended := "running"
		if r.EndedAt != nil {
			ended = r.EndedAt.Sub(r.StartedAt).String()
		}
		fmt.Printf("%s  %s  step=%v  %s\n", r.ID, r.StartedAt.Format("2006-01-02 15:04:05"), r.TimeStep, ended)
	}
	return nil
}

// plotRun writes the run's trajectories to path and returns how many
// devices were drawn.
func plotRun(store *db.DB, runID, path string, size vg.Length) (int, error) {
	var run *db.Run
	var err error
	if runID == "" {
		run, err = store.LatestRun()
	} else {
		id, perr := uuid.Parse(runID)
		if perr != nil {
			return 0, fmt.Errorf("invalid run id %q: %w", runID, perr)
		}
		run, err = store.GetRun(id)
	}
	if err != nil {
		return 0, err
	}

	series, err := monitor.LoadTrajectories(store, run.ID)
	if err != nil {
		return 0, err
	}

	f, err := os.Create(path)
	if err != nil {
		return 0, err
	}
	if err := monitor.PlotTrajectories(f, fmt.Sprintf("Run %s", run.ID), series, size); err != nil {
		f.Close()
		return 0, err
	}
	return len(series), f.Close()
}
