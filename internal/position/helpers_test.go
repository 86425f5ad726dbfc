package position

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/banshee-data/robosim/internal/monitoring"
	"github.com/banshee-data/robosim/internal/world"
)

// captureLogs redirects the monitoring logger for the duration of the test.
// Tests using it must not run in parallel.
func captureLogs(t *testing.T) *[]string {
	t.Helper()
	var lines []string
	old := monitoring.Logf
	monitoring.SetLogger(func(format string, v ...interface{}) {
		lines = append(lines, fmt.Sprintf(format, v...))
	})
	t.Cleanup(func() { monitoring.Logf = old })
	return &lines
}

func newTestGrid(t *testing.T) *world.Grid {
	t.Helper()
	g, err := world.NewGrid(world.GridConfig{Width: 10, Height: 10, Resolution: 0.05})
	require.NoError(t, err)
	return g
}

// fakePort is a single-slot Port.
type fakePort struct {
	subscribed bool
	cmd        []byte
	fresh      bool

	data [][]byte
}

func (p *fakePort) send(r CommandRecord) {
	p.cmd, _ = r.MarshalBinary()
	p.fresh = true
}

func (p *fakePort) Command(buf []byte) (int, bool) {
	if !p.fresh {
		return 0, false
	}
	p.fresh = false
	return copy(buf, p.cmd), true
}

func (p *fakePort) PutData(buf []byte) {
	p.data = append(p.data, append([]byte(nil), buf...))
}

func (p *fakePort) Subscribed() bool { return p.subscribed }
