// Package visualiser streams live device state to remote viewers over gRPC.
package visualiser

import (
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"google.golang.org/grpc"

	"github.com/banshee-data/robosim/internal/monitoring"
	"github.com/banshee-data/robosim/internal/position"
)

const (
	frameQueueSize  = 100
	clientQueueSize = 10
)

// Config holds configuration for the visualiser gRPC server.
type Config struct {
	// ListenAddr is the address to listen on (e.g., "localhost:50051")
	ListenAddr string

	// MaxClients is the maximum number of concurrent streaming clients
	MaxClients int

	// Every publishes one frame out of every Every world steps.
	Every int
}

// DefaultConfig returns a default configuration.
func DefaultConfig() Config {
	return Config{
		ListenAddr: "localhost:50051",
		MaxClients: 5,
		Every:      10,
	}
}

// Publisher manages the gRPC server and frame broadcasting.
type Publisher struct {
	config   Config
	server   *grpc.Server
	listener net.Listener

	frameChan chan *Frame
	clients   map[string]*clientStream
	clientsMu sync.RWMutex

	steps         atomic.Uint64
	frameCount    atomic.Uint64
	clientCount   atomic.Int32
	droppedFrames atomic.Uint64

	running atomic.Bool
	stopCh  chan struct{}
	wg      sync.WaitGroup
}

type clientStream struct {
	id      string
	devices map[string]bool
	frameCh chan *Frame
}

// NewPublisher creates a new Publisher with the given configuration.
func NewPublisher(cfg Config) *Publisher {
	if cfg.Every <= 0 {
		cfg.Every = 1
	}
	return &Publisher{
		config:    cfg,
		frameChan: make(chan *Frame, frameQueueSize),
		clients:   make(map[string]*clientStream),
		stopCh:    make(chan struct{}),
	}
}

// Start listens on the configured address and serves.
func (p *Publisher) Start() error {
	lis, err := net.Listen("tcp", p.config.ListenAddr)
	if err != nil {
		return fmt.Errorf("failed to listen: %w", err)
	}
	return p.Serve(lis)
}

// Serve starts the gRPC server on lis and the broadcast loop.
func (p *Publisher) Serve(lis net.Listener) error {
	if !p.running.CompareAndSwap(false, true) {
		return fmt.Errorf("publisher already running")
	}
	p.listener = lis
	p.server = grpc.NewServer()
	RegisterVisualiserServer(p.server, NewServer(p))

	p.wg.Add(2)
	go p.broadcastLoop()
	go func() {
		defer p.wg.Done()
		monitoring.Logf("[visualiser] gRPC server listening on %s", lis.Addr())
		if err := p.server.Serve(lis); err != nil && p.running.Load() {
			monitoring.Logf("[visualiser] gRPC server error: %v", err)
		}
	}()
	return nil
}

// Stop closes every stream and stops the server.
func (p *Publisher) Stop() {
	if !p.running.CompareAndSwap(true, false) {
		return
	}
	close(p.stopCh)
	if p.server != nil {
		p.server.Stop()
	}
	p.wg.Wait()
	monitoring.Logf("[visualiser] gRPC server stopped")
}

// Observe has the signature of a world observer.
func (p *Publisher) Observe(now time.Duration, states []position.State) {
	step := p.steps.Add(1)
	if (step-1)%uint64(p.config.Every) != 0 {
		return
	}
	p.Publish(&Frame{
		SimTime: now,
		Devices: append([]position.State(nil), states...),
	})
}

// Publish queues a frame for every connected client. It never blocks: a
// full queue drops the frame.
func (p *Publisher) Publish(frame *Frame) {
	if !p.running.Load() || frame == nil {
		return
	}
	frame.Seq = p.frameCount.Add(1)
	select {
	case p.frameChan <- frame:
	default:
		dropped := p.droppedFrames.Add(1)
		monitoring.Logf("[visualiser] dropped frame %d (total dropped: %d), channel full", frame.Seq, dropped)
	}
}

func (p *Publisher) broadcastLoop() {
	defer p.wg.Done()
	for {
		select {
		case <-p.stopCh:
			return
		case frame := <-p.frameChan:
			p.clientsMu.RLock()
			for _, client := range p.clients {
				select {
				case client.frameCh <- frame:
				default:
					// slow client
					p.droppedFrames.Add(1)
				}
			}
			p.clientsMu.RUnlock()
		}
	}
}

func (p *Publisher) addClient(id string, devices map[string]bool) (*clientStream, error) {
	p.clientsMu.Lock()
	defer p.clientsMu.Unlock()
	if p.config.MaxClients > 0 && len(p.clients) >= p.config.MaxClients {
		return nil, fmt.Errorf("too many clients (%d)", len(p.clients))
	}
	client := &clientStream{
		id:      id,
		devices: devices,
		frameCh: make(chan *Frame, clientQueueSize),
	}
	p.clients[id] = client
	p.clientCount.Add(1)
	monitoring.Logf("[visualiser] client connected: %s (total: %d)", id, len(p.clients))
	return client, nil
}

func (p *Publisher) removeClient(id string) {
	p.clientsMu.Lock()
	defer p.clientsMu.Unlock()
	if _, ok := p.clients[id]; !ok {
		return
	}
	delete(p.clients, id)
	p.clientCount.Add(-1)
	monitoring.Logf("[visualiser] client disconnected: %s (remaining: %d)", id, len(p.clients))
}

// PublisherStats contains publisher statistics.
type PublisherStats struct {
	FrameCount  uint64 `json:"frames"`
	Dropped     uint64 `json:"dropped"`
	ClientCount int32  `json:"clients"`
	Running     bool   `json:"running"`
}

// Stats returns current publisher statistics.
func (p *Publisher) Stats() PublisherStats {
	return PublisherStats{
		FrameCount:  p.frameCount.Load(),
		Dropped:     p.droppedFrames.Load(),
		ClientCount: p.clientCount.Load(),
		Running:     p.running.Load(),
	}
}
