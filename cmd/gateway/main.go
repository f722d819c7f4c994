package main

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"

	"walletgateway/gateway/compat"
	"walletgateway/gateway/config"
	"walletgateway/gateway/idempotency"
	"walletgateway/gateway/middleware"
	"walletgateway/gateway/routes"
	"walletgateway/gateway/translator"
	"walletgateway/gateway/walletrpc"
	"walletgateway/observability/logging"
	"walletgateway/observability/telemetry"
)

const shutdownTimeout = 10 * time.Second

type options struct {
	configPath    string
	compatMode    string
	allowInsecure bool
}

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	opts := &options{}
	root := &cobra.Command{
		Use:           "gateway",
		Short:         "HTTP gateway for the wallet gRPC service",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return serve(ctx, opts)
		},
	}
	flags := root.PersistentFlags()
	flags.StringVar(&opts.configPath, "config", "", "path to gateway configuration (.yaml or .toml)")
	root.Flags().StringVar(&opts.compatMode, "compat-mode", "", "override JSON-RPC compatibility mode (enabled|disabled|auto)")
	root.Flags().BoolVar(&opts.allowInsecure, "allow-insecure", false, "DEV ONLY: permit plaintext listeners on non-loopback interfaces")
	root.AddCommand(newPingCommand(opts))
	return root
}

func serve(ctx context.Context, opts *options) error {
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logger, err := logging.Setup(cfg.Observability.ServiceName, cfg.Environment, cfg.Logging)
	if err != nil {
		return fmt.Errorf("configure logging: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	pipeline, err := telemetry.Start(ctx, telemetry.Config{
		ServiceName:   cfg.Observability.ServiceName,
		Environment:   cfg.Environment,
		WalletAddress: cfg.Wallet.Address,
		Endpoint:      cfg.Observability.OTLPEndpoint,
		Insecure:      cfg.Observability.OTLPInsecure,
		Headers:       telemetry.ParseHeaders(cfg.Observability.OTLPHeaders),
		Metrics:       cfg.Observability.Metrics,
		Traces:        cfg.Observability.Tracing,
		SampleRatio:   cfg.Observability.SampleRatio,
	})
	if err != nil {
		return fmt.Errorf("initialise telemetry: %w", err)
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := pipeline.Shutdown(flushCtx); err != nil {
			logger.Warn("telemetry shutdown failed", zap.Error(err))
		}
	}()

	mode, err := resolveCompatMode(opts.compatMode, cfg.Compat.Mode)
	if err != nil {
		return err
	}

	configDir := ""
	if strings.TrimSpace(opts.configPath) != "" {
		configDir = filepath.Dir(opts.configPath)
	}
	tlsConfig, err := buildTLSConfig(configDir, cfg.Security)
	if err != nil {
		return fmt.Errorf("configure TLS: %w", err)
	}
	if tlsConfig == nil {
		if err := checkPlaintext(cfg.ListenAddress, cfg.Security.AllowInsecure || opts.allowInsecure); err != nil {
			return err
		}
	}

	obs := middleware.NewObservability(middleware.ObservabilityConfig{
		ServiceName:   cfg.Observability.ServiceName,
		MetricsPrefix: cfg.Observability.MetricsPrefix,
		LogRequests:   cfg.Observability.LogRequests,
		Enabled:       cfg.Observability.Metrics || cfg.Observability.Tracing,
	}, logger)

	var walletMetrics *walletrpc.Metrics
	if cfg.Observability.Metrics {
		walletMetrics = walletrpc.NewMetrics(obs.Registry(), cfg.Observability.MetricsPrefix)
	}
	wallet, err := walletrpc.Dial(walletDialConfig(cfg, walletMetrics))
	if err != nil {
		return err
	}
	defer func() { _ = wallet.Close() }()
	logger.Info("wallet client ready", zap.String("address", cfg.Wallet.Address))

	tr := translator.New(wallet, translator.Options{
		CallTimeout:       cfg.Wallet.CallTimeout,
		StreamTimeout:     cfg.Wallet.StreamTimeout,
		MaxPaymentIDBytes: cfg.Transfer.MaxPaymentIDBytes,
		Logger:            logger.Named("translator"),
	})

	var dispatcher *compat.Dispatcher
	if compat.ShouldEnable(mode) {
		dispatcher = compat.NewDispatcher(tr, compat.DefaultMappings, logger.Named("compat"))
	}
	logger.Info("compatibility mode", zap.String("mode", string(mode)), zap.Bool("enabled", dispatcher != nil))

	var guard *idempotency.Guard
	if path := strings.TrimSpace(cfg.Idempotency.Path); path != "" {
		store, err := idempotency.OpenLevelDB(path)
		if err != nil {
			return err
		}
		defer func() { _ = store.Close() }()
		guard = idempotency.NewGuard(store, idempotency.Options{
			TTL:       cfg.Idempotency.TTL,
			Logger:    logger.Named("idempotency"),
			RequestID: middleware.RequestIDFrom,
			Subject:   middleware.SubjectFrom,
		})
		go guard.Run(ctx, cfg.Idempotency.PruneInterval)
	}

	var auth *middleware.Authenticator
	if cfg.Auth.Enabled {
		auth = middleware.NewAuthenticator(middleware.AuthConfig{
			Enabled:    true,
			HMACSecret: cfg.Auth.HMACSecret,
			Issuer:     cfg.Auth.Issuer,
			Audience:   cfg.Auth.Audience,
			ScopeClaim: cfg.Auth.ScopeClaim,
			ClockSkew:  cfg.Auth.ClockSkew,
		}, logger.Named("auth"))
	}

	limiter := middleware.NewRateLimiter(rateLimits(cfg.RateLimits), logger.Named("ratelimit"))
	if cfg.Security.TrustProxyHeaders {
		limiter.TrustProxyHeaders()
	}

	router := routes.New(routes.Config{
		Translator:     tr,
		Logger:         logger.Named("http"),
		Compat:         dispatcher,
		Observability:  obs,
		RateLimiter:    limiter,
		Authenticator:  auth,
		TransferScope:  cfg.Transfer.RequiredScope,
		Idempotency:    guard,
		MapStatusCodes: cfg.Upstream.MapStatusCodes,
		MaxBodyBytes:   cfg.Transfer.MaxBodyBytes,
		CORS: middleware.CORSConfig{
			AllowedOrigins:   cfg.CORS.AllowedOrigins,
			AllowedHeaders:   cfg.CORS.AllowedHeaders,
			AllowCredentials: cfg.CORS.AllowCredentials,
		},
	})

	handler := router
	if cfg.Observability.Tracing {
		handler = otelhttp.NewHandler(router, cfg.Observability.ServiceName)
	}

	server := &http.Server{
		Addr:         cfg.ListenAddress,
		Handler:      handler,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
		TLSConfig:    tlsConfig,
		ErrorLog:     zap.NewStdLog(logger.Named("http")),
	}

	listener, err := net.Listen("tcp", cfg.ListenAddress)
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}
	serveErr := make(chan error, 1)
	go func() {
		scheme := "http"
		if tlsConfig != nil {
			scheme = "https"
			listener = tls.NewListener(listener, tlsConfig)
		}
		logger.Info("listening", zap.String("url", scheme+"://"+listener.Addr().String()))
		serveErr <- server.Serve(listener)
	}()

	select {
	case err := <-serveErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serve: %w", err)
		}
		return nil
	case <-ctx.Done():
	}
	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn("graceful shutdown failed", zap.Error(err))
	}
	return nil
}

func walletDialConfig(cfg config.Config, metrics *walletrpc.Metrics) walletrpc.DialConfig {
	return walletrpc.DialConfig{
		Address:        cfg.Wallet.Address,
		CAFile:         cfg.Wallet.CAFile,
		ServerName:     cfg.Wallet.ServerName,
		MaxRecvMsgSize: cfg.Wallet.MaxRecvBytes,
		Metrics:        metrics,
		Tracing:        cfg.Observability.Tracing,
	}
}

// resolveCompatMode prefers the flag over the configured value, which
// already carries GATEWAY_COMPAT_MODE.
func resolveCompatMode(flagValue, configured string) (compat.Mode, error) {
	if strings.TrimSpace(flagValue) != "" {
		mode, err := compat.ParseMode(flagValue)
		if err != nil {
			return compat.ModeAuto, fmt.Errorf("parse compat-mode flag: %w", err)
		}
		return mode, nil
	}
	mode, err := compat.ParseMode(configured)
	if err != nil {
		return compat.ModeAuto, fmt.Errorf("parse compat.mode: %w", err)
	}
	return mode, nil
}

func rateLimits(entries []config.RateLimitConfig) map[string]middleware.RateLimit {
	limits := make(map[string]middleware.RateLimit, len(entries))
	for _, entry := range entries {
		limits[strings.TrimSpace(entry.ID)] = middleware.RateLimit{
			RatePerSecond: entry.PerSecond(),
			Burst:         entry.Burst,
			DefaultTokens: entry.DefaultTokens,
			Tokens:        entry.Tokens,
		}
	}
	return limits
}
