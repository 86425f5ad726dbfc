// Package main replays captured controller commands into a headless world and
// prints the data records the device publishes in response.
//
// By default the world is stepped in lockstep with the capture: every command
// whose capture offset has been reached is delivered before the step runs, so
// the output does not depend on wall-clock speed. With -realtime the world
// runs on the wall clock and the commands are delivered at their captured
// pace, scaled by the same factor.
package main

import (
	"context"
	"encoding/csv"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/banshee-data/robosim/internal/config"
	"github.com/banshee-data/robosim/internal/position"
	"github.com/banshee-data/robosim/internal/sim"
	"github.com/banshee-data/robosim/internal/timeutil"
	"github.com/banshee-data/robosim/internal/transport"
)

// Config holds the replay options.
type Config struct {
	PCAPFile   string
	UDPPort    int
	ConfigFile string
	Device     string
	// Tail keeps stepping after the last command.
	Tail time.Duration
	// Realtime, when positive, paces the world and the commands by the wall
	// clock at this many simulated seconds per second.
	Realtime float64
}

func main() {
	var cfg Config
	flag.StringVar(&cfg.PCAPFile, "pcap", "", "Capture file to replay (required)")
	flag.IntVar(&cfg.UDPPort, "port", 7000, "Destination UDP port of the controller datagrams (0 = any)")
	flag.StringVar(&cfg.ConfigFile, "config", "", "World config (default: one Pioneer)")
	flag.StringVar(&cfg.Device, "device", "", "Device name to drive (default: first device)")
	flag.DurationVar(&cfg.Tail, "tail", time.Second, "Simulated time to keep running after the last command")
	flag.Float64Var(&cfg.Realtime, "realtime", 0, "Replay against the wall clock at this speed (0 = lockstep)")
	flag.Parse()

	if cfg.PCAPFile == "" {
		log.Fatal("-pcap is required")
	}
	if err := run(cfg, os.Stdout); err != nil {
		log.Fatalf("replay failed: %v", err)
	}
}

func run(cfg Config, out io.Writer) error {
	f, err := os.Open(cfg.PCAPFile)
	if err != nil {
		return err
	}
	defer f.Close()

	cmds, err := transport.ReadCommands(f, cfg.UDPPort)
	if err != nil {
		return err
	}
	if len(cmds) == 0 {
		return fmt.Errorf("no commands for port %d in %s", cfg.UDPPort, cfg.PCAPFile)
	}

	simCfg := config.DefaultConfig()
	if cfg.ConfigFile != "" {
		if simCfg, err = config.LoadConfig(cfg.ConfigFile); err != nil {
			return err
		}
	}
	if err := simCfg.Validate(); err != nil {
		return err
	}
	var clock timeutil.Clock = timeutil.NewMockClock(time.Unix(0, 0))
	if cfg.Realtime > 0 {
		simCfg.Realtime = &cfg.Realtime
		clock = timeutil.RealClock{}
	}
	w, err := sim.FromConfig(simCfg, clock)
	if err != nil {
		return err
	}

	var target *sim.Entity
	for _, e := range w.Entities() {
		if cfg.Device == "" || e.Name == cfg.Device {
			target = e
			break
		}
	}
	if target == nil {
		return fmt.Errorf("no device named %q", cfg.Device)
	}
	target.Mailbox.Subscribe()
	defer target.Mailbox.Unsubscribe()

	rows, err := newRowWriter(out)
	if err != nil {
		return err
	}
	if cfg.Realtime > 0 {
		err = replayPaced(w, target, cmds, clock, cfg, rows)
	} else {
		err = replayLockstep(w, target, cmds, cfg, rows)
	}
	if err != nil {
		return err
	}
	log.Printf("replayed %d commands over %v of simulated time", len(cmds), w.Now())
	return rows.flush()
}

// replayLockstep delivers commands between steps by capture offset.
func replayLockstep(w *sim.World, target *sim.Entity, cmds []transport.CapturedCommand, cfg Config, rows *rowWriter) error {
	end := cmds[len(cmds)-1].Offset + cfg.Tail
	next := 0
	for w.Now() <= end {
		for next < len(cmds) && cmds[next].Offset <= w.Now() {
			target.Mailbox.Deposit(cmds[next].Payload)
			next++
		}
		w.Step()
		if err := rows.write(w.Now(), target.Device.State()); err != nil {
			return err
		}
	}
	return nil
}

// replayPaced runs the world on its own goroutine while the commands are fed
// to the mailbox at their captured pace.
func replayPaced(w *sim.World, target *sim.Entity, cmds []transport.CapturedCommand, clock timeutil.Clock, cfg Config, rows *rowWriter) error {
	var (
		mu     sync.Mutex
		rowErr error
	)
	w.Observe(func(now time.Duration, states []position.State) {
		for _, st := range states {
			if st.ID != target.ID {
				continue
			}
			mu.Lock()
			if rowErr == nil {
				rowErr = rows.write(now, st)
			}
			mu.Unlock()
		}
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	err := transport.Replay(ctx, cmds, target.Mailbox, clock, cfg.Realtime)
	if err == nil {
		clock.Sleep(time.Duration(float64(cfg.Tail) / cfg.Realtime))
	}
	cancel()
	if runErr := <-done; err == nil {
		err = runErr
	}

	mu.Lock()
	defer mu.Unlock()
	if err == nil {
		err = rowErr
	}
	return err
}

// rowWriter emits one CSV row per device cycle.
type rowWriter struct {
	cw         *csv.Writer
	lastCycles uint64
}

func newRowWriter(out io.Writer) (*rowWriter, error) {
	cw := csv.NewWriter(out)
	if err := cw.Write([]string{"sim_ms", "xpos", "ypos", "theta", "speed", "turnrate", "compass", "stalls"}); err != nil {
		return nil, err
	}
	return &rowWriter{cw: cw}, nil
}

// write records st unless the device has not cycled since the last row.
func (r *rowWriter) write(now time.Duration, st position.State) error {
	if st.Cycles == r.lastCycles {
		return nil
	}
	r.lastCycles = st.Cycles
	d := st.Data
	return r.cw.Write([]string{
		strconv.FormatInt(now.Milliseconds(), 10),
		strconv.Itoa(int(d.XPos)),
		strconv.Itoa(int(d.YPos)),
		strconv.Itoa(int(d.Theta)),
		strconv.Itoa(int(d.SignedSpeed())),
		strconv.Itoa(int(d.TurnRate)),
		strconv.Itoa(int(d.Compass)),
		strconv.Itoa(int(d.Stalls)),
	})
}

func (r *rowWriter) flush() error {
	r.cw.Flush()
	return r.cw.Error()
}
