package walletrpc

import (
	"context"
	"net"
	"path"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
	"google.golang.org/protobuf/reflect/protoreflect"
	"google.golang.org/protobuf/types/dynamicpb"
)

type unaryHandler func(req, resp protoreflect.Message) error

type streamHandler func(req protoreflect.Message, send func(fill func(protoreflect.Message)) error) error

// fakeWallet serves the wallet schema from dynamic handlers so tests can
// exercise the real gRPC client path.
type fakeWallet struct {
	schema  *Schema
	unary   map[string]unaryHandler
	streams map[string]streamHandler

	mu       sync.Mutex
	requests map[string][]*dynamicpb.Message
}

func newFakeWallet(t *testing.T) *fakeWallet {
	t.Helper()
	schema, err := LoadSchema()
	require.NoError(t, err)
	return &fakeWallet{
		schema:   schema,
		unary:    make(map[string]unaryHandler),
		streams:  make(map[string]streamHandler),
		requests: make(map[string][]*dynamicpb.Message),
	}
}

func (f *fakeWallet) handle(_ any, ss grpc.ServerStream) error {
	full, ok := grpc.MethodFromServerStream(ss)
	if !ok {
		return status.Error(codes.Internal, "no method in stream")
	}
	method, err := f.schema.Method(path.Base(full))
	if err != nil {
		return status.Error(codes.Unimplemented, err.Error())
	}
	req := method.NewRequest()
	if err := ss.RecvMsg(req); err != nil {
		return err
	}
	f.mu.Lock()
	f.requests[method.Name()] = append(f.requests[method.Name()], req)
	f.mu.Unlock()

	if method.ServerStreaming() {
		handler, ok := f.streams[method.Name()]
		if !ok {
			return status.Errorf(codes.Unimplemented, "%s not stubbed", method.Name())
		}
		return handler(req, func(fill func(protoreflect.Message)) error {
			item := method.NewResponse()
			fill(item)
			return ss.SendMsg(item)
		})
	}
	handler, ok := f.unary[method.Name()]
	if !ok {
		return status.Errorf(codes.Unimplemented, "%s not stubbed", method.Name())
	}
	resp := method.NewResponse()
	if err := handler(req, resp); err != nil {
		return err
	}
	return ss.SendMsg(resp)
}

func (f *fakeWallet) received(name string) []*dynamicpb.Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*dynamicpb.Message(nil), f.requests[name]...)
}

// start serves the fake over an in-memory listener and returns a connected client.
func (f *fakeWallet) start(t *testing.T, opts ...grpc.DialOption) *Client {
	t.Helper()
	lis := bufconn.Listen(1 << 20)
	srv := grpc.NewServer(grpc.UnknownServiceHandler(f.handle))
	go func() { _ = srv.Serve(lis) }()
	t.Cleanup(srv.Stop)

	dialOpts := append([]grpc.DialOption{
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	}, opts...)
	conn, err := grpc.NewClient("passthrough:///bufnet", dialOpts...)
	require.NoError(t, err)
	client, err := NewClient(conn)
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func fillTransaction(m protoreflect.Message, id uint64) {
	set(m, "tx_id", protoreflect.ValueOfUint64(id))
	set(m, "amount", protoreflect.ValueOfUint64(id*1000))
	set(m, "status", protoreflect.ValueOfEnum(6))
	set(m, "direction", protoreflect.ValueOfEnum(2))
	set(m, "payment_id", protoreflect.ValueOfString("invoice"))
}
