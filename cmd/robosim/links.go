package main

import (
	"context"
	"fmt"
	"log"
	"net"
	"os"
	"path/filepath"
	"sync"

	"github.com/banshee-data/robosim/internal/config"
	"github.com/banshee-data/robosim/internal/sim"
	"github.com/banshee-data/robosim/internal/timeutil"
	"github.com/banshee-data/robosim/internal/transport"
)

type statser interface {
	Stats() transport.LinkStats
}

// linkSet tracks the running links by "<device>/<kind>".
type linkSet struct {
	mu      sync.Mutex
	links   map[string]statser
	closers []func()
}

// close releases capture files once every link has stopped.
func (s *linkSet) close() {
	for _, fn := range s.closers {
		fn()
	}
}

func (s *linkSet) add(name string, l statser) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.links == nil {
		s.links = make(map[string]statser)
	}
	s.links[name] = l
}

func (s *linkSet) stats() map[string]transport.LinkStats {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]transport.LinkStats, len(s.links))
	for name, l := range s.links {
		out[name] = l.Stats()
	}
	return out
}

// startLinks opens the UDP and serial links named in cfg and runs each until
// ctx is done. Devices in w are in cfg.Devices order.
func startLinks(ctx context.Context, wg *sync.WaitGroup, cfg *config.SimConfig, w *sim.World, recordDir string) (*linkSet, error) {
	set := &linkSet{}
	entities := w.Entities()
	if len(entities) != len(cfg.Devices) {
		return nil, fmt.Errorf("world has %d devices, config lists %d", len(entities), len(cfg.Devices))
	}

	for i, d := range cfg.Devices {
		e := entities[i]

		if d.UDPAddr != "" {
			conn, err := transport.ListenUDP(d.UDPAddr)
			if err != nil {
				return nil, fmt.Errorf("device %s: %w", e.Name, err)
			}
			link := transport.NewUDPLink(conn, e.Mailbox)
			if recordDir != "" {
				closeFn, err := attachRecorder(link, conn, recordDir, e.Name)
				if err != nil {
					conn.Close()
					return nil, fmt.Errorf("device %s: %w", e.Name, err)
				}
				set.closers = append(set.closers, closeFn)
			}
			set.add(e.Name+"/udp", link)
			runLink(ctx, wg, e.Name+" udp", link.Run)
		}

		if d.SerialPort != "" {
			port, err := transport.OpenSerial(d.SerialPort, transport.PortOptions{BaudRate: d.GetSerialBaud()})
			if err != nil {
				return nil, fmt.Errorf("device %s: %w", e.Name, err)
			}
			link := transport.NewSerialLink(port, e.Mailbox)
			set.add(e.Name+"/serial", link)
			runLink(ctx, wg, e.Name+" serial", link.Run)
		}
	}
	return set, nil
}

func runLink(ctx context.Context, wg *sync.WaitGroup, name string, run func(context.Context) error) {
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := run(ctx); err != nil {
			log.Printf("%s link error: %v", name, err)
		}
		log.Printf("%s link terminated", name)
	}()
}

// attachRecorder captures every command the link receives into
// <dir>/<name>.pcap. The returned func closes the file.
func attachRecorder(link *transport.UDPLink, conn *net.UDPConn, dir, name string) (func(), error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	f, err := os.Create(filepath.Join(dir, name+".pcap"))
	if err != nil {
		return nil, err
	}
	rec, err := transport.NewPCAPRecorder(f, conn.LocalAddr().(*net.UDPAddr))
	if err != nil {
		f.Close()
		return nil, err
	}
	link.SetRecorder(rec, timeutil.RealClock{})
	log.Printf("recording %s commands to %s", name, f.Name())
	return func() { f.Close() }, nil
}
