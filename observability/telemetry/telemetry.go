package telemetry

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
)

const (
	metricInterval = 15 * time.Second
	batchTimeout   = 2 * time.Second
)

// Config selects which gateway signals leave the process over OTLP/HTTP.
type Config struct {
	ServiceName string
	Environment string
	// WalletAddress is the gRPC wallet the gateway fronts. It is recorded on
	// the resource so every span and metric names its upstream.
	WalletAddress string
	// Endpoint is "host:port" or an http(s) URL. Empty disables export.
	Endpoint    string
	Insecure    bool
	Headers     map[string]string
	Metrics     bool
	Traces      bool
	SampleRatio float64
}

// Pipeline owns the providers Start installed.
type Pipeline struct {
	stops []func(context.Context) error
}

// Shutdown flushes pending spans and metrics, newest provider first.
func (p *Pipeline) Shutdown(ctx context.Context) error {
	if p == nil {
		return nil
	}
	var errs []error
	for i := len(p.stops) - 1; i >= 0; i-- {
		errs = append(errs, p.stops[i](ctx))
	}
	return errors.Join(errs...)
}

// Start installs W3C propagation and, when an endpoint is set, the global
// tracer and meter providers. Inbound trace context reaches the wallet call
// even when nothing is exported.
func Start(ctx context.Context, cfg Config) (*Pipeline, error) {
	if strings.TrimSpace(cfg.ServiceName) == "" {
		return nil, errors.New("telemetry: service name required")
	}
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))
	pipeline := &Pipeline{}
	if strings.TrimSpace(cfg.Endpoint) == "" || (!cfg.Traces && !cfg.Metrics) {
		return pipeline, nil
	}
	target, err := parseEndpoint(cfg.Endpoint, cfg.Insecure)
	if err != nil {
		return nil, err
	}
	res, err := gatewayResource(cfg)
	if err != nil {
		return nil, err
	}
	if cfg.Traces {
		tp, err := startTraces(ctx, target, cfg, res)
		if err != nil {
			return nil, err
		}
		otel.SetTracerProvider(tp)
		pipeline.stops = append(pipeline.stops, tp.Shutdown)
	}
	if cfg.Metrics {
		mp, err := startMetrics(ctx, target, cfg, res)
		if err != nil {
			_ = pipeline.Shutdown(ctx)
			return nil, err
		}
		otel.SetMeterProvider(mp)
		pipeline.stops = append(pipeline.stops, mp.Shutdown)
	}
	return pipeline, nil
}

type endpoint struct {
	hostPort string
	path     string
	insecure bool
}

// parseEndpoint accepts a bare host:port or a URL. An http scheme implies an
// insecure connection.
func parseEndpoint(raw string, insecure bool) (endpoint, error) {
	raw = strings.TrimSpace(raw)
	if !strings.Contains(raw, "://") {
		return endpoint{hostPort: raw, insecure: insecure}, nil
	}
	u, err := url.Parse(raw)
	if err != nil {
		return endpoint{}, fmt.Errorf("telemetry: parse endpoint: %w", err)
	}
	switch u.Scheme {
	case "http":
		insecure = true
	case "https":
	default:
		return endpoint{}, fmt.Errorf("telemetry: unsupported endpoint scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return endpoint{}, fmt.Errorf("telemetry: endpoint %q has no host", raw)
	}
	return endpoint{hostPort: u.Host, path: strings.TrimSuffix(u.Path, "/"), insecure: insecure}, nil
}

func gatewayResource(cfg Config) (*resource.Resource, error) {
	attrs := []attribute.KeyValue{semconv.ServiceNameKey.String(cfg.ServiceName)}
	if cfg.Environment != "" {
		attrs = append(attrs, semconv.DeploymentEnvironmentKey.String(cfg.Environment))
	}
	if cfg.WalletAddress != "" {
		attrs = append(attrs, semconv.PeerServiceKey.String("tari.rpc.Wallet"), attribute.String("wallet.address", cfg.WalletAddress))
	}
	res, err := resource.Merge(resource.Default(), resource.NewSchemaless(attrs...))
	if err != nil {
		return nil, fmt.Errorf("telemetry: build resource: %w", err)
	}
	return res, nil
}

func startTraces(ctx context.Context, target endpoint, cfg Config, res *resource.Resource) (*sdktrace.TracerProvider, error) {
	opts := []otlptracehttp.Option{otlptracehttp.WithEndpoint(target.hostPort)}
	if target.path != "" {
		opts = append(opts, otlptracehttp.WithURLPath(target.path+"/v1/traces"))
	}
	if target.insecure {
		opts = append(opts, otlptracehttp.WithInsecure())
	}
	if len(cfg.Headers) > 0 {
		opts = append(opts, otlptracehttp.WithHeaders(cfg.Headers))
	}
	exporter, err := otlptracehttp.New(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("telemetry: trace exporter: %w", err)
	}
	return sdktrace.NewTracerProvider(
		sdktrace.WithResource(res),
		sdktrace.WithSampler(Sampler(cfg.SampleRatio)),
		sdktrace.WithBatcher(exporter, sdktrace.WithBatchTimeout(batchTimeout)),
	), nil
}

func startMetrics(ctx context.Context, target endpoint, cfg Config, res *resource.Resource) (*sdkmetric.MeterProvider, error) {
	opts := []otlpmetrichttp.Option{otlpmetrichttp.WithEndpoint(target.hostPort)}
	if target.path != "" {
		opts = append(opts, otlpmetrichttp.WithURLPath(target.path+"/v1/metrics"))
	}
	if target.insecure {
		opts = append(opts, otlpmetrichttp.WithInsecure())
	}
	if len(cfg.Headers) > 0 {
		opts = append(opts, otlpmetrichttp.WithHeaders(cfg.Headers))
	}
	exporter, err := otlpmetrichttp.New(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("telemetry: metric exporter: %w", err)
	}
	return sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exporter, sdkmetric.WithInterval(metricInterval))),
	), nil
}

// Sampler samples ratio of new traces and follows the parent otherwise.
// Ratios outside (0, 1) clamp to never or always.
func Sampler(ratio float64) sdktrace.Sampler {
	switch {
	case ratio <= 0:
		return sdktrace.ParentBased(sdktrace.NeverSample())
	case ratio >= 1:
		return sdktrace.ParentBased(sdktrace.AlwaysSample())
	default:
		return sdktrace.ParentBased(sdktrace.TraceIDRatioBased(ratio))
	}
}

// ParseHeaders reads OTEL_EXPORTER_OTLP_HEADERS style "k=v,k2=v2" text.
// Malformed pairs are skipped.
func ParseHeaders(raw string) map[string]string {
	headers := map[string]string{}
	for _, pair := range strings.Split(raw, ",") {
		key, value, found := strings.Cut(pair, "=")
		key = strings.TrimSpace(key)
		if !found || key == "" {
			continue
		}
		headers[key] = strings.TrimSpace(value)
	}
	return headers
}
