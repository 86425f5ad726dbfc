// Package mailbox connects controllers to a simulated device. Commands flow in
// and data records flow out through single last-writer-wins slots.
package mailbox

import (
	"context"
	"errors"
	"sync"
)

// ErrNotSubscribed is returned by Unsubscribe when nobody is subscribed.
var ErrNotSubscribed = errors.New("mailbox: not subscribed")

// Mailbox is safe for concurrent use by one device and any number of
// controller goroutines.
type Mailbox struct {
	mu sync.Mutex

	cmd      []byte
	cmdFresh bool
	cmdCount uint64

	data    []byte
	dataSeq uint64
	// dataReady is closed and replaced on every PutData.
	dataReady chan struct{}

	subs int
}

// New returns an empty mailbox with no subscribers.
func New() *Mailbox {
	return &Mailbox{dataReady: make(chan struct{})}
}

// Subscribe registers a controller. Devices only run while at least one is
// registered.
func (m *Mailbox) Subscribe() {
	m.mu.Lock()
	m.subs++
	m.mu.Unlock()
}

// Unsubscribe removes a controller registered with Subscribe.
func (m *Mailbox) Unsubscribe() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.subs == 0 {
		return ErrNotSubscribed
	}
	m.subs--
	return nil
}

// Subscribers returns the number of registered controllers.
func (m *Mailbox) Subscribers() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.subs
}

// Subscribed reports whether any controller is registered.
func (m *Mailbox) Subscribed() bool {
	return m.Subscribers() > 0
}

// Deposit stores a command, replacing any the device has not read yet.
func (m *Mailbox) Deposit(cmd []byte) {
	m.mu.Lock()
	m.cmd = append(m.cmd[:0], cmd...)
	m.cmdFresh = true
	m.cmdCount++
	m.mu.Unlock()
}

// Deposits returns the number of commands ever deposited.
func (m *Mailbox) Deposits() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cmdCount
}

// Command copies the pending command into buf. ok is false if nothing was
// deposited since the last call.
func (m *Mailbox) Command(buf []byte) (n int, ok bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.cmdFresh {
		return 0, false
	}
	m.cmdFresh = false
	return copy(buf, m.cmd), true
}

// PutData publishes a data record and wakes any WaitData callers.
func (m *Mailbox) PutData(buf []byte) {
	m.mu.Lock()
	m.data = append(m.data[:0], buf...)
	m.dataSeq++
	close(m.dataReady)
	m.dataReady = make(chan struct{})
	m.mu.Unlock()
}

// ReadData returns a copy of the latest data record and its sequence number.
// seq is zero if nothing has been published.
func (m *Mailbox) ReadData() (data []byte, seq uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]byte(nil), m.data...), m.dataSeq
}

// WaitData blocks until a record newer than after is published, then returns
// it. Records published in between are skipped.
func (m *Mailbox) WaitData(ctx context.Context, after uint64) ([]byte, uint64, error) {
	for {
		m.mu.Lock()
		if m.dataSeq > after {
			data, seq := append([]byte(nil), m.data...), m.dataSeq
			m.mu.Unlock()
			return data, seq, nil
		}
		ready := m.dataReady
		m.mu.Unlock()

		select {
		case <-ready:
		case <-ctx.Done():
			return nil, after, ctx.Err()
		}
	}
}
