package transport

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/banshee-data/robosim/internal/monitoring"
	"github.com/banshee-data/robosim/internal/position"
	"github.com/banshee-data/robosim/internal/timeutil"
)

// UDPSocket is the subset of *net.UDPConn a UDPLink uses.
type UDPSocket interface {
	ReadFromUDP(b []byte) (n int, addr *net.UDPAddr, err error)
	WriteToUDP(b []byte, addr *net.UDPAddr) (int, error)
	SetReadDeadline(t time.Time) error
	Close() error
	LocalAddr() net.Addr
}

// ListenUDP opens a UDP socket on address, e.g. ":7000".
func ListenUDP(address string) (*net.UDPConn, error) {
	addr, err := net.ResolveUDPAddr("udp", address)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve UDP address: %w", err)
	}
	conn, err := net.ListenUDP("udp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on UDP address: %w", err)
	}
	return conn, nil
}

// CommandRecorder receives every accepted command, e.g. to capture a session
// for later replay.
type CommandRecorder interface {
	Record(ts time.Time, src *net.UDPAddr, payload []byte) error
}

// UDPLink serves one device over UDP. A datagram of exactly one command
// record is deposited in the mailbox; anything else is dropped. The sender
// of the latest command receives every data record.
//
// The link subscribes to the mailbox when the first command arrives and
// unsubscribes when Run returns.
type UDPLink struct {
	sock     UDPSocket
	box      Mailbox
	clock    timeutil.Clock
	recorder CommandRecorder

	mu         sync.Mutex
	peer       *net.UDPAddr
	subscribed bool

	stats linkCounters
}

// NewUDPLink serves box over sock. Run closes sock when it returns.
func NewUDPLink(sock UDPSocket, box Mailbox) *UDPLink {
	return &UDPLink{sock: sock, box: box, clock: timeutil.RealClock{}}
}

// SetRecorder installs r to see every accepted command. Call before Run.
func (l *UDPLink) SetRecorder(r CommandRecorder, clock timeutil.Clock) {
	l.recorder = r
	if clock != nil {
		l.clock = clock
	}
}

// Peer returns the address data records are sent to, or nil.
func (l *UDPLink) Peer() *net.UDPAddr {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.peer
}

// LocalAddr is the address the link is bound to.
func (l *UDPLink) LocalAddr() *net.UDPAddr {
	addr, _ := l.sock.LocalAddr().(*net.UDPAddr)
	return addr
}

// Stats returns the link counters.
func (l *UDPLink) Stats() LinkStats { return l.stats.snapshot() }

// Run serves the link until ctx is cancelled.
func (l *UDPLink) Run(ctx context.Context) error {
	defer l.sock.Close()
	defer l.unsubscribe()

	monitoring.Logf("[transport] udp link listening on %s", l.sock.LocalAddr())

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wg sync.WaitGroup
	var sendErr error
	wg.Add(1)
	go func() {
		defer wg.Done()
		sendErr = forwardData(ctx, l.box, l.send)
		cancel()
	}()

	err := l.readLoop(ctx)
	cancel()
	wg.Wait()
	if err == nil {
		err = sendErr
	}
	return err
}

func (l *UDPLink) readLoop(ctx context.Context) error {
	// one byte over a record so oversized datagrams are detected
	buf := make([]byte, position.CommandLen+1)
	for {
		if ctx.Err() != nil {
			return nil
		}
		if err := l.sock.SetReadDeadline(time.Now().Add(100 * time.Millisecond)); err != nil {
			return fmt.Errorf("set read deadline: %w", err)
		}
		n, addr, err := l.sock.ReadFromUDP(buf)
		if err != nil {
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				continue
			}
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("udp read: %w", err)
		}
		l.handle(buf[:n], addr)
	}
}

func (l *UDPLink) handle(pkt []byte, addr *net.UDPAddr) {
	if len(pkt) != position.CommandLen {
		dropped := l.stats.dropped.Add(1)
		if dropped == 1 || dropped%100 == 0 {
			monitoring.Warnf("[transport] dropped %d-byte datagram from %s (total dropped: %d)", len(pkt), addr, dropped)
		}
		return
	}

	l.mu.Lock()
	if l.peer == nil || l.peer.String() != addr.String() {
		monitoring.Logf("[transport] udp controller %s", addr)
	}
	l.peer = addr
	if !l.subscribed {
		l.box.Subscribe()
		l.subscribed = true
	}
	l.mu.Unlock()

	l.box.Deposit(pkt)
	l.stats.commands.Add(1)

	if l.recorder != nil {
		if err := l.recorder.Record(l.clock.Now(), addr, pkt); err != nil {
			monitoring.Warnf("[transport] command capture failed: %v", err)
		}
	}
}

func (l *UDPLink) send(data []byte) error {
	peer := l.Peer()
	if peer == nil {
		return nil
	}
	if _, err := l.sock.WriteToUDP(data, peer); err != nil {
		// a vanished peer is not fatal; the next command sets a new one
		monitoring.Warnf("[transport] udp write to %s: %v", peer, err)
		return nil
	}
	l.stats.records.Add(1)
	return nil
}

func (l *UDPLink) unsubscribe() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.subscribed {
		_ = l.box.Unsubscribe()
		l.subscribed = false
	}
}
