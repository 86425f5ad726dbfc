package main

import (
	"context"
	"net"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/robosim/internal/config"
	"github.com/banshee-data/robosim/internal/db"
	"github.com/banshee-data/robosim/internal/monitoring"
	"github.com/banshee-data/robosim/internal/position"
	"github.com/banshee-data/robosim/internal/sim"
	"github.com/banshee-data/robosim/internal/timeutil"
	"github.com/banshee-data/robosim/internal/transport"
)

func init() {
	monitoring.SetLogger(nil)
}

func TestLoadConfig(t *testing.T) {
	cfg, err := loadConfig("", -1)
	require.NoError(t, err)
	assert.Equal(t, config.DefaultRealtime, cfg.GetRealtime())
	require.Len(t, cfg.Devices, 1)

	cfg, err = loadConfig("", 0)
	require.NoError(t, err)
	assert.Equal(t, 0.0, cfg.GetRealtime())

	cfg, err = loadConfig(filepath.Join("..", "..", "config", "robosim.example.json"), 4)
	require.NoError(t, err)
	assert.Equal(t, 4.0, cfg.GetRealtime())
	assert.Len(t, cfg.Devices, 2)

	_, err = loadConfig("world.yaml", -1)
	assert.Error(t, err)
}

func udpConfig() *config.SimConfig {
	cfg := config.DefaultConfig()
	cfg.Devices[0].UDPAddr = "127.0.0.1:0"
	return cfg
}

func TestStartLinksRecordsCommands(t *testing.T) {
	cfg := udpConfig()
	w, err := sim.FromConfig(cfg, timeutil.RealClock{})
	require.NoError(t, err)
	dir := t.TempDir()

	ctx, cancel := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	links, err := startLinks(ctx, &wg, cfg, w, dir)
	require.NoError(t, err)

	e := w.Entities()[0]
	stats := links.stats()
	require.Contains(t, stats, e.Name+"/udp")

	addr := boundAddr(t, links, e.Name+"/udp")
	require.NotNil(t, addr)

	client, err := net.DialUDP("udp", nil, addr)
	require.NoError(t, err)
	defer client.Close()
	cmd, err := position.CommandRecord{Speed: 200}.MarshalBinary()
	require.NoError(t, err)
	_, err = client.Write(cmd)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return links.stats()[e.Name+"/udp"].Commands == 1
	}, 2*time.Second, 10*time.Millisecond)
	assert.True(t, e.Mailbox.Subscribed())

	cancel()
	wg.Wait()
	links.close()

	f, err := os.Open(filepath.Join(dir, e.Name+".pcap"))
	require.NoError(t, err)
	defer f.Close()
	cmds, err := transport.ReadCommands(f, addr.Port)
	require.NoError(t, err)
	require.Len(t, cmds, 1)
	assert.Equal(t, cmd, cmds[0].Payload)
}

// boundAddr reports the local address of a running UDP link.
func boundAddr(t *testing.T, links *linkSet, name string) *net.UDPAddr {
	t.Helper()
	links.mu.Lock()
	defer links.mu.Unlock()
	l, ok := links.links[name].(*transport.UDPLink)
	if !ok {
		return nil
	}
	return l.LocalAddr()
}

func TestStartLinksBadAddress(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Devices[0].UDPAddr = "not-an-address"
	w, err := sim.FromConfig(cfg, timeutil.RealClock{})
	require.NoError(t, err)

	var wg sync.WaitGroup
	_, err = startLinks(context.Background(), &wg, cfg, w, "")
	assert.Error(t, err)
}

func TestStartTelemetry(t *testing.T) {
	cfg, err := loadConfig(filepath.Join("..", "..", "config", "robosim.example.json"), 0)
	require.NoError(t, err)
	w, err := sim.FromConfig(cfg, timeutil.RealClock{})
	require.NoError(t, err)

	store, err := db.NewDB(filepath.Join(t.TempDir(), "telemetry.db"))
	require.NoError(t, err)
	defer store.Close()

	rec, err := startTelemetry(store, cfg, w, 1)
	require.NoError(t, err)

	run, err := store.GetRun(rec.RunID)
	require.NoError(t, err)
	assert.Equal(t, cfg.GetTimeStep(), run.TimeStep)
	assert.Contains(t, run.Config, `"roomba"`)

	devices, err := store.Devices(rec.RunID)
	require.NoError(t, err)
	require.Len(t, devices, 2)
	assert.Equal(t, "pioneer", devices[0].Name)
	assert.Equal(t, "rectangle", devices[0].Shape)
	assert.Equal(t, "circle", devices[1].Shape)
	assert.InDelta(t, 0.33, devices[1].SizeY, 1e-9)
}
