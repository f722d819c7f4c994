package walletrpc

import (
	"context"
	"errors"
	"io"
	"path"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// Metrics records per-method call outcomes for the wallet connection.
type Metrics struct {
	calls     *prometheus.CounterVec
	durations *prometheus.HistogramVec
}

func NewMetrics(reg prometheus.Registerer, namespace string) *Metrics {
	if namespace == "" {
		namespace = "gateway"
	}
	calls := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "wallet_rpc_calls_total",
		Help:      "Wallet RPC calls by method and final gRPC code.",
	}, []string{"method", "code"})
	durations := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "wallet_rpc_call_duration_seconds",
		Help:      "Wallet RPC call duration in seconds, streams measured to their last message.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method"})
	if reg != nil {
		reg.MustRegister(calls, durations)
	}
	return &Metrics{calls: calls, durations: durations}
}

func (m *Metrics) observe(fullMethod string, err error, elapsed time.Duration) {
	method := path.Base(fullMethod)
	code := codes.OK
	if err != nil {
		code = status.Code(err)
	}
	m.calls.WithLabelValues(method, code.String()).Inc()
	m.durations.WithLabelValues(method).Observe(elapsed.Seconds())
}

func (m *Metrics) UnaryClientInterceptor() grpc.UnaryClientInterceptor {
	return func(ctx context.Context, method string, req, reply any, cc *grpc.ClientConn, invoker grpc.UnaryInvoker, opts ...grpc.CallOption) error {
		start := time.Now()
		err := invoker(ctx, method, req, reply, cc, opts...)
		m.observe(method, err, time.Since(start))
		return err
	}
}

func (m *Metrics) StreamClientInterceptor() grpc.StreamClientInterceptor {
	return func(ctx context.Context, desc *grpc.StreamDesc, cc *grpc.ClientConn, method string, streamer grpc.Streamer, opts ...grpc.CallOption) (grpc.ClientStream, error) {
		start := time.Now()
		stream, err := streamer(ctx, desc, cc, method, opts...)
		if err != nil {
			m.observe(method, err, time.Since(start))
			return nil, err
		}
		return &observedStream{
			ClientStream: stream,
			finish: func(err error) {
				m.observe(method, err, time.Since(start))
			},
		}, nil
	}
}

type observedStream struct {
	grpc.ClientStream
	once   sync.Once
	finish func(error)
}

func (s *observedStream) RecvMsg(msg any) error {
	err := s.ClientStream.RecvMsg(msg)
	if err != nil {
		s.once.Do(func() {
			if errors.Is(err, io.EOF) {
				s.finish(nil)
				return
			}
			s.finish(err)
		})
	}
	return err
}
