package middleware

import (
	"errors"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// RateLimit is a token bucket. Tokens maps "METHOD /path" to the number of
// tokens one request costs; other requests cost DefaultTokens.
type RateLimit struct {
	RatePerSecond float64
	Burst         int
	DefaultTokens int
	Tokens        map[string]int
}

type rateEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

type RateLimiter struct {
	logger   *zap.Logger
	limits   map[string]RateLimit
	mu       sync.Mutex
	visitors map[string]*rateEntry
	idleTTL  time.Duration
	clockNow func() time.Time
	// trustProxy lets X-Real-IP and X-Forwarded-For name the client.
	trustProxy bool
}

const defaultIdleTTL = 5 * time.Minute

func NewRateLimiter(limits map[string]RateLimit, logger *zap.Logger) *RateLimiter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RateLimiter{
		logger:   logger,
		limits:   limits,
		visitors: make(map[string]*rateEntry),
		idleTTL:  defaultIdleTTL,
		clockNow: time.Now,
	}
}

// TrustProxyHeaders makes client identity honour proxy headers. Only enable
// it behind a proxy that overwrites them.
func (r *RateLimiter) TrustProxyHeaders() *RateLimiter {
	r.trustProxy = true
	return r
}

// Allow spends the cost of route ("METHOD /path") from the caller's bucket
// under key. A refusal is a *Rejection carrying the retry delay.
func (r *RateLimiter) Allow(req *http.Request, key, route string) error {
	limit, ok := r.limits[key]
	if !ok {
		return nil
	}
	limiter := r.obtainLimiter(key+"|"+r.clientID(req), limit)
	cost := limit.cost(route)
	if cost <= limiter.Burst() && limiter.AllowN(r.clockNow(), cost) {
		return nil
	}
	r.logger.Debug("rate limited",
		zap.String("bucket", key),
		zap.String("route", route),
		zap.String("request_id", RequestIDFrom(req.Context())),
	)
	retry := time.Second
	if limit.RatePerSecond > 0 {
		retry = time.Duration(float64(cost) / limit.RatePerSecond * float64(time.Second))
	}
	return &Rejection{
		Status:     http.StatusTooManyRequests,
		Message:    http.StatusText(http.StatusTooManyRequests),
		RetryAfter: retry,
	}
}

// Middleware enforces the limit registered under key. Buckets are kept per
// key and client, so one caller exhausting a route leaves other routes open.
func (r *RateLimiter) Middleware(key string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			if err := r.Allow(req, key, req.Method+" "+req.URL.Path); err != nil {
				var rej *Rejection
				if errors.As(err, &rej) {
					w.Header().Set("Retry-After", strconv.Itoa(int(rej.RetryAfter.Round(time.Second)/time.Second)+1))
				}
				writeError(w, http.StatusTooManyRequests, http.StatusText(http.StatusTooManyRequests))
				return
			}
			next.ServeHTTP(w, req)
		})
	}
}

func (l RateLimit) cost(route string) int {
	if tokens, ok := l.Tokens[route]; ok && tokens > 0 {
		return tokens
	}
	if l.DefaultTokens > 0 {
		return l.DefaultTokens
	}
	return 1
}

func (r *RateLimiter) obtainLimiter(id string, cfg RateLimit) *rate.Limiter {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := r.clockNow()
	r.evictIdleLocked(now)
	entry, ok := r.visitors[id]
	if ok {
		entry.lastSeen = now
		return entry.limiter
	}
	perSecond := cfg.RatePerSecond
	if perSecond <= 0 {
		perSecond = 1
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}
	limiter := rate.NewLimiter(rate.Limit(perSecond), burst)
	r.visitors[id] = &rateEntry{limiter: limiter, lastSeen: now}
	return limiter
}

func (r *RateLimiter) evictIdleLocked(now time.Time) {
	for id, entry := range r.visitors {
		if now.Sub(entry.lastSeen) > r.idleTTL {
			delete(r.visitors, id)
		}
	}
}

// clientID names the caller's bucket: the authenticated subject, then
// trusted proxy headers, then the peer address. Unauthenticated headers such
// as X-API-Key never pick a bucket.
func (r *RateLimiter) clientID(req *http.Request) string {
	if sub := SubjectFrom(req.Context()); sub != "" {
		return "sub:" + sub
	}
	if r.trustProxy {
		if ip := strings.TrimSpace(req.Header.Get("X-Real-IP")); ip != "" {
			return ip
		}
		if forwarded := req.Header.Get("X-Forwarded-For"); forwarded != "" {
			first, _, _ := strings.Cut(forwarded, ",")
			first = strings.TrimSpace(first)
			if parsed := net.ParseIP(first); parsed != nil {
				return parsed.String()
			}
			if first != "" {
				return first
			}
		}
	}
	host, _, err := net.SplitHostPort(req.RemoteAddr)
	if err != nil {
		return req.RemoteAddr
	}
	return host
}
