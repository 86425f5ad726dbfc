package visualiser

import (
	"context"

	"github.com/google/uuid"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/banshee-data/robosim/internal/monitoring"
)

// Service and method names on the wire.
const (
	ServiceName      = "robosim.Visualiser"
	StreamFramesPath = "/" + ServiceName + "/StreamFrames"
)

// VisualiserServer is the server API of the visualiser service. Requests and
// frames are structpb.Struct messages.
type VisualiserServer interface {
	StreamFrames(req *structpb.Struct, stream grpc.ServerStream) error
}

// ServiceDesc describes the visualiser service for grpc.Server.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*VisualiserServer)(nil),
	Streams: []grpc.StreamDesc{{
		StreamName:    "StreamFrames",
		Handler:       streamFramesHandler,
		ServerStreams: true,
	}},
	Metadata: "robosim/visualiser",
}

// RegisterVisualiserServer registers srv on s.
func RegisterVisualiserServer(s grpc.ServiceRegistrar, srv VisualiserServer) {
	s.RegisterService(&ServiceDesc, srv)
}

func streamFramesHandler(srv any, stream grpc.ServerStream) error {
	req := new(structpb.Struct)
	if err := stream.RecvMsg(req); err != nil {
		return err
	}
	return srv.(VisualiserServer).StreamFrames(req, stream)
}

var _ VisualiserServer = (*Server)(nil)

// Server streams frames from a Publisher.
type Server struct {
	publisher *Publisher
}

// NewServer creates a new gRPC server.
func NewServer(publisher *Publisher) *Server {
	return &Server{publisher: publisher}
}

// StreamFrames sends every published frame until the client goes away or
// the publisher stops.
func (s *Server) StreamFrames(req *structpb.Struct, stream grpc.ServerStream) error {
	id := uuid.NewString()
	client, err := s.publisher.addClient(id, requestedDevices(req))
	if err != nil {
		return status.Error(codes.ResourceExhausted, err.Error())
	}
	defer s.publisher.removeClient(id)

	ctx := stream.Context()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-s.publisher.stopCh:
			return status.Error(codes.Unavailable, "visualiser stopped")
		case frame := <-client.frameCh:
			msg, err := frame.ToStruct(client.devices)
			if err != nil {
				monitoring.InternalErrorf("[visualiser] frame %d: %v", frame.Seq, err)
				continue
			}
			if err := stream.SendMsg(msg); err != nil {
				return err
			}
		}
	}
}

// FrameStream is the client side of StreamFrames.
type FrameStream struct {
	stream grpc.ClientStream
}

// Recv blocks for the next frame.
func (f *FrameStream) Recv() (*structpb.Struct, error) {
	msg := new(structpb.Struct)
	if err := f.stream.RecvMsg(msg); err != nil {
		return nil, err
	}
	return msg, nil
}

// StreamFrames opens a frame stream on conn. devices optionally restricts
// the frames to those device ids.
func StreamFrames(ctx context.Context, conn grpc.ClientConnInterface, devices ...string) (*FrameStream, error) {
	stream, err := conn.NewStream(ctx, &ServiceDesc.Streams[0], StreamFramesPath)
	if err != nil {
		return nil, err
	}
	ids := make([]any, len(devices))
	for i, d := range devices {
		ids[i] = d
	}
	req, err := structpb.NewStruct(map[string]any{"devices": ids})
	if err != nil {
		return nil, err
	}
	if err := stream.SendMsg(req); err != nil {
		return nil, err
	}
	if err := stream.CloseSend(); err != nil {
		return nil, err
	}
	return &FrameStream{stream: stream}, nil
}
