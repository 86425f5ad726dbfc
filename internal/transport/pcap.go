package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"

	"github.com/banshee-data/robosim/internal/monitoring"
	"github.com/banshee-data/robosim/internal/position"
	"github.com/banshee-data/robosim/internal/timeutil"
)

// CapturedCommand is a command datagram read from a capture.
type CapturedCommand struct {
	// Offset is the capture time relative to the first command.
	Offset  time.Duration
	Src     *net.UDPAddr
	Payload []byte
}

// ReadCommands extracts the command datagrams sent to UDP port from a pcap
// stream. A port of zero accepts every UDP datagram. Datagrams that are not
// exactly one command record are skipped.
func ReadCommands(src io.Reader, port int) ([]CapturedCommand, error) {
	reader, err := pcapgo.NewReader(src)
	if err != nil {
		return nil, fmt.Errorf("failed to read pcap header: %w", err)
	}
	packetSource := gopacket.NewPacketSource(reader, reader.LinkType())

	var (
		cmds    []CapturedCommand
		first   time.Time
		skipped int
	)
	for {
		packet, err := packetSource.NextPacket()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return cmds, fmt.Errorf("pcap packet %d: %w", len(cmds)+skipped+1, err)
		}

		udp, ok := packet.Layer(layers.LayerTypeUDP).(*layers.UDP)
		if !ok {
			skipped++
			continue
		}
		if port != 0 && int(udp.DstPort) != port {
			skipped++
			continue
		}
		if len(udp.Payload) != position.CommandLen {
			skipped++
			continue
		}

		ts := packet.Metadata().Timestamp
		if first.IsZero() {
			first = ts
		}
		src := &net.UDPAddr{Port: int(udp.SrcPort)}
		if ip, ok := packet.NetworkLayer().(*layers.IPv4); ok {
			src.IP = ip.SrcIP
		}
		cmds = append(cmds, CapturedCommand{
			Offset:  ts.Sub(first),
			Src:     src,
			Payload: append([]byte(nil), udp.Payload...),
		})
	}

	monitoring.Logf("[transport] pcap: %d commands, %d other packets skipped", len(cmds), skipped)
	return cmds, nil
}

// Replay deposits cmds into box at their captured pace divided by speed.
// A speed of zero deposits them back to back. box is subscribed for the
// duration of the replay.
func Replay(ctx context.Context, cmds []CapturedCommand, box Mailbox, clock timeutil.Clock, speed float64) error {
	box.Subscribe()
	defer func() { _ = box.Unsubscribe() }()

	var last time.Duration
	for i, c := range cmds {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if speed > 0 && c.Offset > last {
			clock.Sleep(time.Duration(float64(c.Offset-last) / speed))
		}
		last = c.Offset
		box.Deposit(c.Payload)
		if (i+1)%1000 == 0 {
			monitoring.Logf("[transport] replayed %d/%d commands", i+1, len(cmds))
		}
	}
	return nil
}

// PCAPRecorder writes commands to a pcap stream as Ethernet/IPv4/UDP frames
// addressed to a fixed port, so they can be read back by ReadCommands or any
// capture tool.
type PCAPRecorder struct {
	mu   sync.Mutex
	w    *pcapgo.Writer
	dst  *net.UDPAddr
	opts gopacket.SerializeOptions
}

// NewPCAPRecorder writes a pcap file header to w and returns a recorder for
// datagrams sent to dst.
func NewPCAPRecorder(w io.Writer, dst *net.UDPAddr) (*PCAPRecorder, error) {
	pw := pcapgo.NewWriter(w)
	if err := pw.WriteFileHeader(65536, layers.LinkTypeEthernet); err != nil {
		return nil, fmt.Errorf("write pcap header: %w", err)
	}
	return &PCAPRecorder{
		w:    pw,
		dst:  dst,
		opts: gopacket.SerializeOptions{FixLengths: true, ComputeChecksums: true},
	}, nil
}

// Record appends one datagram from src.
func (r *PCAPRecorder) Record(ts time.Time, src *net.UDPAddr, payload []byte) error {
	eth := &layers.Ethernet{
		SrcMAC:       net.HardwareAddr{0x02, 0, 0, 0, 0, 1},
		DstMAC:       net.HardwareAddr{0x02, 0, 0, 0, 0, 2},
		EthernetType: layers.EthernetTypeIPv4,
	}
	ip := &layers.IPv4{
		Version:  4,
		TTL:      64,
		Protocol: layers.IPProtocolUDP,
		SrcIP:    ipv4OrLoopback(src.IP),
		DstIP:    ipv4OrLoopback(r.dst.IP),
	}
	udp := &layers.UDP{
		SrcPort: layers.UDPPort(src.Port),
		DstPort: layers.UDPPort(r.dst.Port),
	}
	if err := udp.SetNetworkLayerForChecksum(ip); err != nil {
		return err
	}

	buf := gopacket.NewSerializeBuffer()
	if err := gopacket.SerializeLayers(buf, r.opts, eth, ip, udp, gopacket.Payload(payload)); err != nil {
		return fmt.Errorf("serialize datagram: %w", err)
	}
	data := buf.Bytes()

	r.mu.Lock()
	defer r.mu.Unlock()
	return r.w.WritePacket(gopacket.CaptureInfo{
		Timestamp:     ts,
		CaptureLength: len(data),
		Length:        len(data),
	}, data)
}

func ipv4OrLoopback(ip net.IP) net.IP {
	if v4 := ip.To4(); v4 != nil && !v4.IsUnspecified() {
		return v4
	}
	return net.IPv4(127, 0, 0, 1).To4()
}
