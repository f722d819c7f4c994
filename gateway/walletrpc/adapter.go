package walletrpc

import (
	"context"
	"errors"
	"fmt"
	"io"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/dynamicpb"
)

// CallUnary issues a unary call and blocks until its single response or
// failure arrives. Failures are returned as *Error.
func CallUnary(ctx context.Context, conn grpc.ClientConnInterface, method Method, req proto.Message, opts ...grpc.CallOption) (*dynamicpb.Message, error) {
	if method.ServerStreaming() {
		return nil, fmt.Errorf("%s is a server-streaming method", method.Name())
	}
	resp := method.NewResponse()
	if err := conn.Invoke(ctx, method.FullName(), req, resp, opts...); err != nil {
		return nil, wrapError(method.Name(), err)
	}
	return resp, nil
}

// CollectStream opens a server stream and returns every item it emits, in
// order, once the stream ends cleanly. If the stream fails, the items
// received so far are discarded and only the failure is returned.
func CollectStream(ctx context.Context, conn grpc.ClientConnInterface, method Method, req proto.Message, opts ...grpc.CallOption) ([]*dynamicpb.Message, error) {
	if !method.ServerStreaming() {
		return nil, fmt.Errorf("%s is not a server-streaming method", method.Name())
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	desc := &grpc.StreamDesc{StreamName: method.Name(), ServerStreams: true}
	stream, err := conn.NewStream(ctx, desc, method.FullName(), opts...)
	if err != nil {
		return nil, wrapError(method.Name(), err)
	}
	// io.EOF from SendMsg means the stream already ended; RecvMsg below
	// carries the real status.
	if err := stream.SendMsg(req); err != nil && !errors.Is(err, io.EOF) {
		return nil, wrapError(method.Name(), err)
	}
	if err := stream.CloseSend(); err != nil {
		return nil, wrapError(method.Name(), err)
	}

	var items collector[*dynamicpb.Message]
	for !items.terminated() {
		msg := method.NewResponse()
		err := stream.RecvMsg(msg)
		switch {
		case err == nil:
			err = items.push(msg)
		case errors.Is(err, io.EOF):
			err = items.finish()
		default:
			err = items.fail(wrapError(method.Name(), err))
		}
		if err != nil {
			return nil, err
		}
	}
	return items.result()
}
