package idempotency

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

const (
	HeaderKey    = "Idempotency-Key"
	HeaderReplay = "Idempotent-Replay"

	DefaultTTL   = 24 * time.Hour
	maxKeyLength = 255
	maxBodyBytes = 1 << 20
)

// Options tune a Guard.
type Options struct {
	TTL    time.Duration
	Logger *zap.Logger
	// RequestID extracts the caller's request id for the stored record.
	RequestID func(context.Context) string
	// Subject names the authenticated caller. Keys are scoped to it so two
	// callers never share a stored response.
	Subject func(context.Context) string
}

// Guard makes a handler safe to retry: the first completed response for an
// Idempotency-Key is stored and replayed to later requests with that key.
type Guard struct {
	store     Store
	ttl       time.Duration
	logger    *zap.Logger
	requestID func(context.Context) string
	subject   func(context.Context) string
	now       func() time.Time

	mu       sync.Mutex
	inflight map[string]struct{}
}

func NewGuard(store Store, opts Options) *Guard {
	g := &Guard{
		store:     store,
		ttl:       opts.TTL,
		logger:    opts.Logger,
		requestID: opts.RequestID,
		subject:   opts.Subject,
		now:       time.Now,
		inflight:  make(map[string]struct{}),
	}
	if g.ttl <= 0 {
		g.ttl = DefaultTTL
	}
	if g.logger == nil {
		g.logger = zap.NewNop()
	}
	if g.requestID == nil {
		g.requestID = func(context.Context) string { return "" }
	}
	if g.subject == nil {
		g.subject = func(context.Context) string { return "" }
	}
	return g
}

// Middleware replays stored responses and serializes duplicates. Requests
// without the header pass straight through. Responses with a 5xx status are
// not stored so the caller may retry them.
func (g *Guard) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := strings.TrimSpace(r.Header.Get(HeaderKey))
		if key == "" {
			next.ServeHTTP(w, r)
			return
		}
		if len(key) > maxKeyLength {
			writeError(w, http.StatusBadRequest, "Idempotency-Key is too long")
			return
		}
		body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
		if err != nil {
			writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
			return
		}
		r.Body = io.NopCloser(bytes.NewReader(body))
		fingerprint := fingerprintOf(r, body)
		key = g.scope(r.Context(), key)

		record, found, err := g.claim(r.Context(), key)
		switch {
		case errors.Is(err, errInFlight):
			writeError(w, http.StatusConflict, "a request with this Idempotency-Key is already in progress")
			return
		case err != nil:
			g.logger.Error("idempotency lookup failed", zap.Error(err), zap.String("request_id", g.requestID(r.Context())))
			writeError(w, http.StatusInternalServerError, "internal error")
			return
		case found:
			if record.Fingerprint != fingerprint {
				writeError(w, http.StatusUnprocessableEntity, "Idempotency-Key was already used with a different request")
				return
			}
			replay(w, record)
			return
		}
		defer g.release(key)

		capture := &captureWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(capture, r)
		if capture.status >= http.StatusInternalServerError {
			return
		}
		err = g.store.Put(r.Context(), Record{
			Key:         key,
			RequestID:   g.requestID(r.Context()),
			Fingerprint: fingerprint,
			Status:      capture.status,
			ContentType: capture.Header().Get("Content-Type"),
			Body:        capture.body.Bytes(),
			CreatedAt:   g.now(),
		})
		if err != nil {
			g.logger.Error("store idempotency record", zap.Error(err), zap.String("request_id", g.requestID(r.Context())))
		}
	})
}

// scope prefixes key with the caller's subject. Anonymous keys share one
// namespace.
func (g *Guard) scope(ctx context.Context, key string) string {
	if sub := g.subject(ctx); sub != "" {
		return "sub:" + sub + "|" + key
	}
	return "anon|" + key
}

var errInFlight = errors.New("idempotency key in flight")

// claim returns a live stored record, or marks key in flight for the caller.
func (g *Guard) claim(ctx context.Context, key string) (Record, bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, busy := g.inflight[key]; busy {
		return Record{}, false, errInFlight
	}
	record, ok, err := g.store.Get(ctx, key)
	if err != nil {
		return Record{}, false, err
	}
	if ok && g.now().Sub(record.CreatedAt) < g.ttl {
		return record, true, nil
	}
	g.inflight[key] = struct{}{}
	return Record{}, false, nil
}

func (g *Guard) release(key string) {
	g.mu.Lock()
	delete(g.inflight, key)
	g.mu.Unlock()
}

// Run prunes expired records until ctx is done.
func (g *Guard) Run(ctx context.Context, every time.Duration) {
	if every <= 0 {
		every = time.Hour
	}
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := g.Prune(ctx); err != nil && ctx.Err() == nil {
				g.logger.Warn("prune idempotency records", zap.Error(err))
			}
		}
	}
}

// Prune drops records older than the TTL.
func (g *Guard) Prune(ctx context.Context) (int, error) {
	removed, err := g.store.Prune(ctx, g.now().Add(-g.ttl))
	if err == nil && removed > 0 {
		g.logger.Debug("pruned idempotency records", zap.Int("removed", removed))
	}
	return removed, err
}

func fingerprintOf(r *http.Request, body []byte) string {
	h := sha256.New()
	h.Write([]byte(r.Method + " " + r.URL.Path + "\n"))
	h.Write(body)
	return hex.EncodeToString(h.Sum(nil))
}

func replay(w http.ResponseWriter, record Record) {
	if record.ContentType != "" {
		w.Header().Set("Content-Type", record.ContentType)
	}
	w.Header().Set(HeaderReplay, "true")
	w.WriteHeader(record.Status)
	_, _ = w.Write(record.Body)
}

func writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": message})
}

type captureWriter struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
	body        bytes.Buffer
}

func (c *captureWriter) WriteHeader(code int) {
	if !c.wroteHeader {
		c.status = code
		c.wroteHeader = true
	}
	c.ResponseWriter.WriteHeader(code)
}

func (c *captureWriter) Write(b []byte) (int, error) {
	c.wroteHeader = true
	c.body.Write(b)
	return c.ResponseWriter.Write(b)
}
