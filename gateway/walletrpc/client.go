package walletrpc

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"io"
	"net"
	"net/url"
	"os"
	"strings"

	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/reflect/protoreflect"
)

// DefaultAddress is where a local wallet daemon listens for gRPC.
const DefaultAddress = "127.0.0.1:18143"

const defaultPort = "18143"

// DialConfig describes how to reach the wallet service.
type DialConfig struct {
	// Address is host:port, or a URL with scheme grpc/http (plaintext) or
	// grpcs/https (TLS).
	Address        string
	CAFile         string
	ServerName     string
	MaxRecvMsgSize int
	Metrics        *Metrics
	Tracing        bool
}

// Client issues typed calls against the wallet service over one shared
// connection. It is safe for concurrent use.
type Client struct {
	conn   grpc.ClientConnInterface
	closer io.Closer
	schema *Schema
}

// NewClient wraps an existing connection.
func NewClient(conn grpc.ClientConnInterface) (*Client, error) {
	if conn == nil {
		return nil, fmt.Errorf("nil wallet connection")
	}
	schema, err := LoadSchema()
	if err != nil {
		return nil, err
	}
	client := &Client{conn: conn, schema: schema}
	if closer, ok := conn.(io.Closer); ok {
		client.closer = closer
	}
	return client, nil
}

// Dial creates the shared wallet connection. The connection is established
// lazily by gRPC on the first call.
func Dial(cfg DialConfig, extra ...grpc.DialOption) (*Client, error) {
	target, creds, err := dialTarget(cfg)
	if err != nil {
		return nil, err
	}
	opts := []grpc.DialOption{grpc.WithTransportCredentials(creds)}
	if cfg.MaxRecvMsgSize > 0 {
		opts = append(opts, grpc.WithDefaultCallOptions(grpc.MaxCallRecvMsgSize(cfg.MaxRecvMsgSize)))
	}
	if cfg.Tracing {
		opts = append(opts, grpc.WithStatsHandler(otelgrpc.NewClientHandler()))
	}
	if cfg.Metrics != nil {
		opts = append(opts,
			grpc.WithChainUnaryInterceptor(cfg.Metrics.UnaryClientInterceptor()),
			grpc.WithChainStreamInterceptor(cfg.Metrics.StreamClientInterceptor()),
		)
	}
	opts = append(opts, extra...)
	conn, err := grpc.NewClient(target, opts...)
	if err != nil {
		return nil, fmt.Errorf("dial wallet %s: %w", target, err)
	}
	return NewClient(conn)
}

func dialTarget(cfg DialConfig) (string, credentials.TransportCredentials, error) {
	address := strings.TrimSpace(cfg.Address)
	if address == "" {
		address = DefaultAddress
	}
	if !strings.Contains(address, "://") {
		if cfg.CAFile != "" {
			creds, err := tlsCredentials(cfg, hostOf(address))
			return address, creds, err
		}
		return address, insecure.NewCredentials(), nil
	}
	target, err := url.Parse(address)
	if err != nil {
		return "", nil, fmt.Errorf("parse wallet address: %w", err)
	}
	host := target.Hostname()
	if host == "" {
		return "", nil, fmt.Errorf("wallet address host is empty")
	}
	port := target.Port()
	if port == "" {
		port = defaultPort
	}
	hostPort := net.JoinHostPort(host, port)
	switch strings.ToLower(target.Scheme) {
	case "grpcs", "https":
		creds, err := tlsCredentials(cfg, host)
		return hostPort, creds, err
	case "grpc", "http":
		return hostPort, insecure.NewCredentials(), nil
	default:
		return "", nil, fmt.Errorf("unsupported wallet address scheme %q", target.Scheme)
	}
}

func tlsCredentials(cfg DialConfig, host string) (credentials.TransportCredentials, error) {
	serverName := strings.TrimSpace(cfg.ServerName)
	if serverName == "" {
		serverName = host
	}
	tlsConfig := &tls.Config{ServerName: serverName, MinVersion: tls.VersionTLS12}
	if cfg.CAFile != "" {
		data, err := os.ReadFile(cfg.CAFile)
		if err != nil {
			return nil, fmt.Errorf("read wallet CA file: %w", err)
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(data) {
			return nil, fmt.Errorf("parse wallet CA file %s", cfg.CAFile)
		}
		tlsConfig.RootCAs = pool
	}
	return credentials.NewTLS(tlsConfig), nil
}

func hostOf(address string) string {
	host, _, err := net.SplitHostPort(address)
	if err != nil {
		return address
	}
	return host
}

// Close releases the underlying connection when the client owns one.
func (c *Client) Close() error {
	if c == nil || c.closer == nil {
		return nil
	}
	return c.closer.Close()
}

func (c *Client) unary(ctx context.Context, name string, build func(protoreflect.Message)) (protoreflect.Message, error) {
	method, err := c.schema.Method(name)
	if err != nil {
		return nil, err
	}
	req := method.NewRequest()
	if build != nil {
		build(req)
	}
	resp, err := CallUnary(ctx, c.conn, method, req)
	if err != nil {
		return nil, err
	}
	return resp, nil
}

func (c *Client) GetVersion(ctx context.Context) (string, error) {
	resp, err := c.unary(ctx, MethodGetVersion, nil)
	if err != nil {
		return "", err
	}
	return getString(resp, "version"), nil
}

func (c *Client) GetState(ctx context.Context) (State, error) {
	resp, err := c.unary(ctx, MethodGetState, nil)
	if err != nil {
		return State{}, err
	}
	return decodeState(resp), nil
}

func (c *Client) GetBalance(ctx context.Context) (Balance, error) {
	resp, err := c.unary(ctx, MethodGetBalance, nil)
	if err != nil {
		return Balance{}, err
	}
	return decodeBalance(resp), nil
}

func (c *Client) GetAddress(ctx context.Context) (string, error) {
	resp, err := c.unary(ctx, MethodGetAddress, nil)
	if err != nil {
		return "", err
	}
	return getString(resp, "address"), nil
}

func (c *Client) GetCompleteAddress(ctx context.Context) (CompleteAddress, error) {
	resp, err := c.unary(ctx, MethodGetCompleteAddress, nil)
	if err != nil {
		return CompleteAddress{}, err
	}
	return decodeCompleteAddress(resp), nil
}

// GetPaymentIdAddress returns the wallet addresses with paymentID embedded.
func (c *Client) GetPaymentIdAddress(ctx context.Context, paymentID []byte) (CompleteAddress, error) {
	resp, err := c.unary(ctx, MethodGetPaymentIdAddress, func(req protoreflect.Message) {
		set(req, "payment_id", protoreflect.ValueOfBytes(paymentID))
	})
	if err != nil {
		return CompleteAddress{}, err
	}
	return decodeCompleteAddress(resp), nil
}

func (c *Client) GetTransactionInfo(ctx context.Context, ids []uint64) ([]TransactionInfo, error) {
	resp, err := c.unary(ctx, MethodGetTransactionInfo, func(req protoreflect.Message) {
		list := req.Mutable(fieldOf(req, "transaction_ids")).List()
		for _, id := range ids {
			list.Append(protoreflect.ValueOfUint64(id))
		}
	})
	if err != nil {
		return nil, err
	}
	return decodeTransactions(getList(resp, "transactions")), nil
}

// GetCompletedTransactions drains the completed-transactions stream. Nothing
// is returned unless the stream ends cleanly.
func (c *Client) GetCompletedTransactions(ctx context.Context, filter CompletedTransactionsFilter) ([]TransactionInfo, error) {
	method, err := c.schema.Method(MethodGetCompletedTransactions)
	if err != nil {
		return nil, err
	}
	req := method.NewRequest()
	encodeCompletedTransactionsFilter(req, filter)
	items, err := CollectStream(ctx, c.conn, method, req)
	if err != nil {
		return nil, err
	}
	out := make([]TransactionInfo, 0, len(items))
	for _, item := range items {
		out = append(out, decodeTransaction(getMessage(item, "transaction")))
	}
	return out, nil
}

func (c *Client) Transfer(ctx context.Context, recipients []PaymentRecipient) ([]TransferResult, error) {
	resp, err := c.unary(ctx, MethodTransfer, func(req protoreflect.Message) {
		list := req.Mutable(fieldOf(req, "recipients")).List()
		for _, recipient := range recipients {
			elem := list.NewElement()
			encodeRecipient(elem.Message(), recipient)
			list.Append(elem)
		}
	})
	if err != nil {
		return nil, err
	}
	return decodeTransferResults(getList(resp, "results")), nil
}
