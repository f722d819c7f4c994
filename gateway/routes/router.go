package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"walletgateway/gateway/compat"
	"walletgateway/gateway/idempotency"
	"walletgateway/gateway/middleware"
	"walletgateway/gateway/translator"
)

const (
	// DefaultMaxBodyBytes caps request bodies read by handlers.
	DefaultMaxBodyBytes = 1 << 20

	RateKeyRead     = "read"
	RateKeyTransfer = "transfer"
	RateKeyRPC      = "rpc"
)

type Config struct {
	Translator *translator.Translator
	Logger     *zap.Logger
	// Compat serves POST /rpc when set. MethodTransfer calls pass the same
	// auth and transfer bucket as POST /transfer.
	Compat        *compat.Dispatcher
	Observability *middleware.Observability
	RateLimiter   *middleware.RateLimiter
	Authenticator *middleware.Authenticator
	TransferScope string
	Idempotency   *idempotency.Guard
	CORS          middleware.CORSConfig
	// MapStatusCodes turns wallet gRPC codes into matching HTTP statuses
	// instead of a flat 500.
	MapStatusCodes bool
	MaxBodyBytes   int64
}

func New(cfg Config) http.Handler {
	h := &handlers{
		translator:     cfg.Translator,
		logger:         cfg.Logger,
		mapStatusCodes: cfg.MapStatusCodes,
		maxBodyBytes:   cfg.MaxBodyBytes,
	}
	if h.logger == nil {
		h.logger = zap.NewNop()
	}
	if h.maxBodyBytes <= 0 {
		h.maxBodyBytes = DefaultMaxBodyBytes
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.CORS(cfg.CORS))
	obs := cfg.Observability
	if obs != nil {
		r.Use(obs.Middleware)
	}
	r.Use(chimiddleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	if obs != nil {
		r.Handle("/metrics", obs.MetricsHandler())
	}

	r.Group(func(sr chi.Router) {
		limit(sr, cfg.RateLimiter, RateKeyRead)
		sr.Get("/", h.getVersion)
		sr.Get("/state", h.getState)
		sr.Get("/balance", h.getBalance)
		sr.Get("/address", h.getAddress)
		sr.Get("/address/complete", h.getCompleteAddress)
		sr.Get("/address/payment", h.getPaymentIdAddress)
		sr.Get("/transactions", h.getTransactionInfo)
		sr.Get("/completed-transactions", h.getCompletedTransactions)
	})

	var transferScopes []string
	if cfg.TransferScope != "" {
		transferScopes = append(transferScopes, cfg.TransferScope)
	}

	r.Group(func(sr chi.Router) {
		if cfg.Authenticator != nil {
			sr.Use(cfg.Authenticator.Middleware(transferScopes...))
		}
		limit(sr, cfg.RateLimiter, RateKeyTransfer)
		if cfg.Idempotency != nil {
			sr.Use(cfg.Idempotency.Middleware)
		}
		sr.Post("/transfer", h.transfer)
	})

	if cfg.Compat != nil {
		var guards []compat.Guard
		if cfg.Authenticator != nil {
			guards = append(guards, authorize(cfg.Authenticator, transferScopes))
		}
		if cfg.RateLimiter != nil {
			guards = append(guards, spend(cfg.RateLimiter, RateKeyTransfer, http.MethodPost+" /transfer"))
		}
		cfg.Compat.Protect(compat.MethodTransfer, guards...)

		r.Group(func(sr chi.Router) {
			if cfg.Authenticator != nil {
				sr.Use(cfg.Authenticator.Identify)
			}
			limit(sr, cfg.RateLimiter, RateKeyRPC)
			if cfg.Idempotency != nil {
				sr.Use(cfg.Idempotency.Middleware)
			}
			sr.Post("/rpc", cfg.Compat.Handler().ServeHTTP)
		})
	}

	return r
}

func authorize(auth *middleware.Authenticator, scopes []string) compat.Guard {
	return func(r *http.Request) (*http.Request, error) {
		p, err := auth.Authorize(r, scopes...)
		if err != nil {
			return nil, err
		}
		return r.WithContext(middleware.WithPrincipal(r.Context(), p)), nil
	}
}

// spend charges an RPC call to the bucket of the HTTP route it mirrors.
func spend(limiter *middleware.RateLimiter, key, route string) compat.Guard {
	return func(r *http.Request) (*http.Request, error) {
		if err := limiter.Allow(r, key, route); err != nil {
			return nil, err
		}
		return r, nil
	}
}

func limit(r chi.Router, limiter *middleware.RateLimiter, key string) {
	if limiter != nil {
		r.Use(limiter.Middleware(key))
	}
}
