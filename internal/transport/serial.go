package transport

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"

	"go.bug.st/serial"

	"github.com/banshee-data/robosim/internal/monitoring"
	"github.com/banshee-data/robosim/internal/position"
)

// SerialPorter is the minimal interface a SerialLink needs from a port.
type SerialPorter interface {
	io.ReadWriteCloser
}

// PortOptions describes the serial line.
type PortOptions struct {
	BaudRate int    `json:"baud_rate"`
	DataBits int    `json:"data_bits"`
	StopBits int    `json:"stop_bits"`
	Parity   string `json:"parity"`
}

// Normalize validates the options and applies defaults for unset values.
func (o PortOptions) Normalize() (PortOptions, error) {
	opts := o

	if opts.BaudRate <= 0 {
		opts.BaudRate = 9600
	}
	if opts.DataBits == 0 {
		opts.DataBits = 8
	}
	if opts.DataBits < 5 || opts.DataBits > 8 {
		return opts, fmt.Errorf("invalid data bits %d: must be between 5 and 8", opts.DataBits)
	}
	if opts.StopBits == 0 {
		opts.StopBits = 1
	}
	if opts.StopBits != 1 && opts.StopBits != 2 {
		return opts, fmt.Errorf("invalid stop bits %d: supported values are 1 or 2", opts.StopBits)
	}

	switch parity := strings.TrimSpace(strings.ToUpper(opts.Parity)); parity {
	case "", "N", "NONE":
		opts.Parity = "N"
	case "E", "EVEN":
		opts.Parity = "E"
	case "O", "ODD":
		opts.Parity = "O"
	default:
		return opts, fmt.Errorf("unsupported parity %q: expected N, E, or O", opts.Parity)
	}
	return opts, nil
}

// SerialMode converts the options into a go.bug.st/serial mode.
func (o PortOptions) SerialMode() (*serial.Mode, error) {
	opts, err := o.Normalize()
	if err != nil {
		return nil, err
	}

	mode := &serial.Mode{
		BaudRate: opts.BaudRate,
		DataBits: opts.DataBits,
		StopBits: serial.OneStopBit,
	}
	if opts.StopBits == 2 {
		mode.StopBits = serial.TwoStopBits
	}
	switch opts.Parity {
	case "E":
		mode.Parity = serial.EvenParity
	case "O":
		mode.Parity = serial.OddParity
	default:
		mode.Parity = serial.NoParity
	}
	return mode, nil
}

// OpenSerial opens the serial device at path.
func OpenSerial(path string, opts PortOptions) (serial.Port, error) {
	mode, err := opts.SerialMode()
	if err != nil {
		return nil, err
	}
	port, err := serial.Open(path, mode)
	if err != nil {
		return nil, fmt.Errorf("open serial port %s: %w", path, err)
	}
	return port, nil
}

// SerialLink serves one device over a serial line. The line is treated as a
// dedicated controller: the link is subscribed for as long as Run runs.
// Commands are read as back-to-back 4-byte records and every data record is
// written as it is published.
type SerialLink struct {
	port SerialPorter
	box  Mailbox

	stats linkCounters
}

// NewSerialLink serves box over port. Run closes port when it returns.
func NewSerialLink(port SerialPorter, box Mailbox) *SerialLink {
	return &SerialLink{port: port, box: box}
}

// Stats returns the link counters.
func (l *SerialLink) Stats() LinkStats { return l.stats.snapshot() }

// Run serves the line until ctx is cancelled or the port fails.
func (l *SerialLink) Run(ctx context.Context) error {
	l.box.Subscribe()
	defer func() { _ = l.box.Unsubscribe() }()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var closeOnce sync.Once
	closePort := func() { closeOnce.Do(func() { l.port.Close() }) }
	defer closePort()

	var wg sync.WaitGroup
	var sendErr error
	wg.Add(2)
	go func() {
		defer wg.Done()
		sendErr = forwardData(ctx, l.box, l.send)
		cancel()
	}()
	go func() {
		// the only way to interrupt a blocked read
		defer wg.Done()
		<-ctx.Done()
		closePort()
	}()

	err := l.readLoop(ctx)
	cancel()
	wg.Wait()
	if err == nil {
		err = sendErr
	}
	return err
}

func (l *SerialLink) readLoop(ctx context.Context) error {
	buf := make([]byte, position.CommandLen)
	for {
		if _, err := io.ReadFull(l.port, buf); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			if err == io.EOF {
				monitoring.Logf("[transport] serial line closed")
				return nil
			}
			return fmt.Errorf("serial read: %w", err)
		}
		l.box.Deposit(buf)
		l.stats.commands.Add(1)
	}
}

func (l *SerialLink) send(data []byte) error {
	if _, err := l.port.Write(data); err != nil {
		return fmt.Errorf("serial write: %w", err)
	}
	l.stats.records.Add(1)
	return nil
}
