package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "wallet-gateway-test-secret"

func signToken(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(testSecret))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return signed
}

func authHandler(auth *Authenticator, scopes ...string) http.Handler {
	return auth.Middleware(scopes...)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if sub := SubjectFrom(r.Context()); sub != "" {
			w.Header().Set("X-Subject", sub)
		}
		w.WriteHeader(http.StatusOK)
	}))
}

func TestAuthenticatorDisabledPassesThrough(t *testing.T) {
	handler := authHandler(NewAuthenticator(AuthConfig{}, nil), "wallet:transfer")
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, httptest.NewRequest(http.MethodPost, "/transfer", nil))
	if res.Code != http.StatusOK {
		t.Fatalf("expected pass-through, got %d", res.Code)
	}
}

func TestAuthenticatorRejectsMissingAndInvalidTokens(t *testing.T) {
	auth := NewAuthenticator(AuthConfig{Enabled: true, HMACSecret: testSecret}, nil)
	handler := authHandler(auth, "wallet:transfer")

	res := httptest.NewRecorder()
	handler.ServeHTTP(res, httptest.NewRequest(http.MethodPost, "/transfer", nil))
	if res.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", res.Code)
	}

	req := httptest.NewRequest(http.MethodPost, "/transfer", nil)
	req.Header.Set("Authorization", "Bearer not-a-jwt")
	res = httptest.NewRecorder()
	handler.ServeHTTP(res, req)
	if res.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for garbage token, got %d", res.Code)
	}

	expired := signToken(t, jwt.MapClaims{"scope": "wallet:transfer", "exp": time.Now().Add(-time.Hour).Unix()})
	req = httptest.NewRequest(http.MethodPost, "/transfer", nil)
	req.Header.Set("Authorization", "Bearer "+expired)
	res = httptest.NewRecorder()
	handler.ServeHTTP(res, req)
	if res.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for expired token, got %d", res.Code)
	}
}

func TestAuthenticatorEnforcesScopesAndClaims(t *testing.T) {
	auth := NewAuthenticator(AuthConfig{
		Enabled:    true,
		HMACSecret: testSecret,
		Issuer:     "wallet-ops",
		Audience:   "wallet-gateway",
	}, nil)
	handler := authHandler(auth, "wallet:transfer")

	readOnly := signToken(t, jwt.MapClaims{
		"iss": "wallet-ops", "aud": "wallet-gateway", "scope": "wallet:read",
		"exp": time.Now().Add(time.Hour).Unix(),
	})
	req := httptest.NewRequest(http.MethodPost, "/transfer", nil)
	req.Header.Set("Authorization", "Bearer "+readOnly)
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)
	if res.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for missing scope, got %d", res.Code)
	}

	wrongIssuer := signToken(t, jwt.MapClaims{
		"iss": "someone-else", "aud": "wallet-gateway", "scope": "wallet:transfer",
	})
	req = httptest.NewRequest(http.MethodPost, "/transfer", nil)
	req.Header.Set("Authorization", "Bearer "+wrongIssuer)
	res = httptest.NewRecorder()
	handler.ServeHTTP(res, req)
	if res.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for issuer mismatch, got %d", res.Code)
	}

	good := signToken(t, jwt.MapClaims{
		"iss": "wallet-ops", "aud": []any{"other", "wallet-gateway"}, "sub": "treasury-bot",
		"scope": []any{"wallet:read", "wallet:transfer"}, "exp": time.Now().Add(time.Hour).Unix(),
	})
	req = httptest.NewRequest(http.MethodPost, "/transfer", nil)
	req.Header.Set("Authorization", "bearer "+good)
	res = httptest.NewRecorder()
	handler.ServeHTTP(res, req)
	if res.Code != http.StatusOK {
		t.Fatalf("expected 200 for valid token, got %d: %s", res.Code, res.Body.String())
	}
	if res.Header().Get("X-Subject") != "treasury-bot" {
		t.Fatalf("expected subject in context, got %q", res.Header().Get("X-Subject"))
	}
}

func TestAuthenticatorRejectsOtherSigningMethods(t *testing.T) {
	auth := NewAuthenticator(AuthConfig{Enabled: true, HMACSecret: testSecret}, nil)
	token := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.MapClaims{"scope": "wallet:transfer"})
	unsigned, err := token.SignedString(jwt.UnsafeAllowNoneSignatureType)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, "/transfer", nil)
	req.Header.Set("Authorization", "Bearer "+unsigned)
	res := httptest.NewRecorder()
	authHandler(auth, "wallet:transfer").ServeHTTP(res, req)
	if res.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for alg none, got %d", res.Code)
	}
}

func TestRequestIDPropagatesOrGenerates(t *testing.T) {
	var seen string
	handler := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = RequestIDFrom(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/state", nil)
	req.Header.Set(RequestIDHeader, "abc-123")
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)
	if seen != "abc-123" || res.Header().Get(RequestIDHeader) != "abc-123" {
		t.Fatalf("expected propagated id, got %q / %q", seen, res.Header().Get(RequestIDHeader))
	}

	res = httptest.NewRecorder()
	handler.ServeHTTP(res, httptest.NewRequest(http.MethodGet, "/state", nil))
	if len(seen) != 36 || res.Header().Get(RequestIDHeader) != seen {
		t.Fatalf("expected generated uuid, got %q", seen)
	}
}

func TestAuthorizeReturnsPrincipalAndRejections(t *testing.T) {
	auth := NewAuthenticator(AuthConfig{Enabled: true, HMACSecret: testSecret}, nil)

	req := httptest.NewRequest(http.MethodPost, "/rpc", nil)
	_, err := auth.Authorize(req, "wallet:transfer")
	var rej *Rejection
	require.ErrorAs(t, err, &rej)
	assert.Equal(t, http.StatusUnauthorized, rej.Status)
	assert.Equal(t, "missing bearer token", rej.Message)

	token := signToken(t, jwt.MapClaims{"sub": "ops", "scope": "wallet:read", "exp": time.Now().Add(time.Hour).Unix()})
	req.Header.Set("Authorization", "Bearer "+token)
	p, err := auth.Authorize(req, "wallet:read")
	require.NoError(t, err)
	assert.Equal(t, Principal{Subject: "ops", Scopes: []string{"wallet:read"}}, p)

	_, err = auth.Authorize(req, "wallet:transfer")
	require.ErrorAs(t, err, &rej)
	assert.Equal(t, http.StatusForbidden, rej.Status)
}

func TestIdentifyAttachesPrincipalWhenPresent(t *testing.T) {
	auth := NewAuthenticator(AuthConfig{Enabled: true, HMACSecret: testSecret}, nil)
	handler := auth.Identify(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Subject", SubjectFrom(r.Context()))
		w.WriteHeader(http.StatusOK)
	}))

	res := httptest.NewRecorder()
	handler.ServeHTTP(res, httptest.NewRequest(http.MethodPost, "/rpc", nil))
	assert.Equal(t, http.StatusOK, res.Code)
	assert.Empty(t, res.Header().Get("X-Subject"))

	req := httptest.NewRequest(http.MethodPost, "/rpc", nil)
	req.Header.Set("Authorization", "Bearer "+signToken(t, jwt.MapClaims{"sub": "treasury-bot"}))
	res = httptest.NewRecorder()
	handler.ServeHTTP(res, req)
	assert.Equal(t, http.StatusOK, res.Code)
	assert.Equal(t, "treasury-bot", res.Header().Get("X-Subject"))

	req.Header.Set("Authorization", "Bearer not-a-jwt")
	res = httptest.NewRecorder()
	handler.ServeHTTP(res, req)
	assert.Equal(t, http.StatusUnauthorized, res.Code)
}
