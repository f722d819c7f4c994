package middleware

import (
	"context"
	"errors"
	"net/http"
	"slices"
	"strings"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
)

// AuthConfig gates money-moving calls behind HMAC-signed bearer tokens.
type AuthConfig struct {
	Enabled    bool
	HMACSecret string
	Issuer     string
	Audience   string
	ScopeClaim string
	ClockSkew  time.Duration
}

// Principal is the caller a bearer token proved.
type Principal struct {
	Subject string
	Scopes  []string
}

// Can reports whether p holds every scope.
func (p Principal) Can(scopes ...string) bool {
	for _, scope := range scopes {
		if !slices.Contains(p.Scopes, scope) {
			return false
		}
	}
	return true
}

// Rejection is a refusal that carries the HTTP status to answer with.
type Rejection struct {
	Status     int
	Message    string
	RetryAfter time.Duration
	cause      error
}

func (e *Rejection) Error() string {
	if e.cause != nil {
		return e.Message + ": " + e.cause.Error()
	}
	return e.Message
}

func (e *Rejection) Unwrap() error { return e.cause }

func unauthorized(cause error) *Rejection {
	return &Rejection{Status: http.StatusUnauthorized, Message: "invalid token", cause: cause}
}

var (
	errMissingToken = &Rejection{Status: http.StatusUnauthorized, Message: "missing bearer token"}
	errScope        = &Rejection{Status: http.StatusForbidden, Message: "insufficient scope"}
)

type principalKey struct{}

// WithPrincipal stores p on ctx.
func WithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

// PrincipalFrom returns the authenticated caller, if any.
func PrincipalFrom(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(principalKey{}).(Principal)
	return p, ok
}

// SubjectFrom returns the authenticated subject or "".
func SubjectFrom(ctx context.Context) string {
	p, _ := PrincipalFrom(ctx)
	return p.Subject
}

type Authenticator struct {
	enabled    bool
	scopeClaim string
	logger     *zap.Logger
	secret     []byte
	parser     *jwt.Parser
}

func NewAuthenticator(cfg AuthConfig, logger *zap.Logger) *Authenticator {
	if logger == nil {
		logger = zap.NewNop()
	}
	skew := cfg.ClockSkew
	if skew <= 0 {
		skew = 2 * time.Minute
	}
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{"HS256", "HS384", "HS512"}),
		jwt.WithLeeway(skew),
	}
	if cfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(cfg.Issuer))
	}
	if cfg.Audience != "" {
		opts = append(opts, jwt.WithAudience(cfg.Audience))
	}
	a := &Authenticator{
		enabled:    cfg.Enabled,
		scopeClaim: cfg.ScopeClaim,
		logger:     logger,
		secret:     []byte(strings.TrimSpace(cfg.HMACSecret)),
		parser:     jwt.NewParser(opts...),
	}
	if a.scopeClaim == "" {
		a.scopeClaim = "scope"
	}
	return a
}

// Authorize proves the caller of r holds every scope. The error is always a
// *Rejection. A disabled authenticator admits everyone as an empty Principal.
func (a *Authenticator) Authorize(r *http.Request, scopes ...string) (Principal, error) {
	if !a.enabled {
		return Principal{}, nil
	}
	p, err := a.identify(r)
	if err != nil {
		return Principal{}, err
	}
	if !p.Can(scopes...) {
		return p, errScope
	}
	return p, nil
}

func (a *Authenticator) identify(r *http.Request) (Principal, *Rejection) {
	raw := bearerToken(r.Header.Get("Authorization"))
	if raw == "" {
		return Principal{}, errMissingToken
	}
	if len(a.secret) == 0 {
		return Principal{}, unauthorized(errors.New("auth secret not configured"))
	}
	claims := jwt.MapClaims{}
	if _, err := a.parser.ParseWithClaims(raw, claims, func(*jwt.Token) (any, error) {
		return a.secret, nil
	}); err != nil {
		return Principal{}, unauthorized(err)
	}
	sub, _ := claims.GetSubject()
	return Principal{Subject: sub, Scopes: scopesOf(claims[a.scopeClaim])}, nil
}

// Middleware answers with the rejection's status unless the caller holds
// every scope, then stores the Principal on the request context.
func (a *Authenticator) Middleware(scopes ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p, err := a.Authorize(r, scopes...)
			if err != nil {
				a.reject(w, r, err)
				return
			}
			next.ServeHTTP(w, r.WithContext(WithPrincipal(r.Context(), p)))
		})
	}
}

// Identify attaches the Principal when a bearer token is present. Requests
// without one pass anonymously; a bad token is refused.
func (a *Authenticator) Identify(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !a.enabled || r.Header.Get("Authorization") == "" {
			next.ServeHTTP(w, r)
			return
		}
		p, err := a.identify(r)
		if err != nil {
			a.reject(w, r, err)
			return
		}
		next.ServeHTTP(w, r.WithContext(WithPrincipal(r.Context(), p)))
	})
}

func (a *Authenticator) reject(w http.ResponseWriter, r *http.Request, err error) {
	var rej *Rejection
	if !errors.As(err, &rej) {
		rej = unauthorized(err)
	}
	if rej.cause != nil {
		a.logger.Warn("token rejected",
			zap.Error(rej.cause),
			zap.String("request_id", RequestIDFrom(r.Context())),
		)
	}
	writeError(w, rej.Status, rej.Message)
}

// scopesOf accepts a space separated string or a JSON array of strings.
func scopesOf(raw any) []string {
	switch v := raw.(type) {
	case string:
		return strings.Fields(v)
	case []any:
		out := make([]string, 0, len(v))
		for _, entry := range v {
			if s, ok := entry.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}

func bearerToken(header string) string {
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}
