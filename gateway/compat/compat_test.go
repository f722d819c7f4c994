package compat

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/codes"

	"walletgateway/gateway/middleware"
	"walletgateway/gateway/translator"
	"walletgateway/gateway/walletrpc"
	"walletgateway/gateway/walletrpc/wallettest"
)

func newDispatcher(w *wallettest.Mock) *Dispatcher {
	return NewDispatcher(translator.New(w, translator.Options{}), DefaultMappings, nil)
}

func post(t *testing.T, d *Dispatcher, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/rpc", strings.NewReader(body))
	rec := httptest.NewRecorder()
	d.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	return rec
}

func decodeSingle(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var resp map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp
}

func errorCodeOf(t *testing.T, resp map[string]any) float64 {
	t.Helper()
	errObj, ok := resp["error"].(map[string]any)
	require.True(t, ok, "expected error object in %v", resp)
	return errObj["code"].(float64)
}

func TestDispatcherGetBalance(t *testing.T) {
	w := new(wallettest.Mock)
	w.On("GetBalance", mock.Anything).Return(walletrpc.Balance{Available: 7}, nil)

	rec := post(t, newDispatcher(w), `{"jsonrpc":"2.0","id":1,"method":"wallet_getBalance"}`)
	resp := decodeSingle(t, rec)
	assert.Equal(t, float64(1), resp["id"])
	result := resp["result"].(map[string]any)
	assert.Equal(t, "7", result["available_balance"])
	w.AssertExpectations(t)
}

func TestDispatcherFlattensQueryParams(t *testing.T) {
	w := new(wallettest.Mock)
	w.On("GetTransactionInfo", mock.Anything, []uint64{4, 5}).Return([]walletrpc.TransactionInfo{{TxID: 4}, {TxID: 5}}, nil)

	rec := post(t, newDispatcher(w), `{"jsonrpc":"2.0","id":"a","method":"wallet_getTransactionInfo","params":{"tx_ids":[4,5]}}`)
	resp := decodeSingle(t, rec)
	assert.Nil(t, resp["error"])
	w.AssertExpectations(t)
}

func TestDispatcherErrorCodes(t *testing.T) {
	w := new(wallettest.Mock)
	w.On("GetVersion", mock.Anything).Return("", &walletrpc.Error{Code: codes.Unavailable, Message: "connection refused"})
	d := newDispatcher(w)

	resp := decodeSingle(t, post(t, d, `{"jsonrpc":"2.0","id":1,"method":"wallet_unknown"}`))
	assert.Equal(t, float64(codeMethodNotFound), errorCodeOf(t, resp))

	resp = decodeSingle(t, post(t, d, `{"jsonrpc":"2.0","id":1,"method":"wallet_transfer","params":{"amount":1}}`))
	assert.Equal(t, float64(codeInvalidParams), errorCodeOf(t, resp))
	w.AssertNotCalled(t, "Transfer", mock.Anything, mock.Anything)

	resp = decodeSingle(t, post(t, d, `{"jsonrpc":"2.0","id":1,"method":"wallet_getVersion"}`))
	assert.Equal(t, float64(codeWalletError), errorCodeOf(t, resp))
	assert.Equal(t, "connection refused", resp["error"].(map[string]any)["message"])

	resp = decodeSingle(t, post(t, d, `{not json`))
	assert.Equal(t, float64(codeParseError), errorCodeOf(t, resp))

	resp = decodeSingle(t, post(t, d, ``))
	assert.Equal(t, float64(codeInvalidRequest), errorCodeOf(t, resp))

	resp = decodeSingle(t, post(t, d, `{"jsonrpc":"2.0","id":1,"method":"wallet_getPaymentIdAddress","params":{"payment_id":{"nested":true}}}`))
	assert.Equal(t, float64(codeInvalidParams), errorCodeOf(t, resp))
}

func TestDispatcherBatch(t *testing.T) {
	w := new(wallettest.Mock)
	w.On("GetAddress", mock.Anything).Return("f4addr", nil)
	w.On("GetVersion", mock.Anything).Return("1.0.0", nil)

	rec := post(t, newDispatcher(w), `[
		{"jsonrpc":"2.0","id":1,"method":"wallet_getAddress"},
		{"jsonrpc":"2.0","id":2,"method":"wallet_getVersion"},
		{"jsonrpc":"2.0","id":3,"method":"nope"}
	]`)
	var responses []map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &responses))
	require.Len(t, responses, 3)
	assert.Equal(t, "f4addr", responses[0]["result"].(map[string]any)["address"])
	assert.Equal(t, "1.0.0", responses[1]["result"].(map[string]any)["node_version"])
	assert.Equal(t, float64(codeMethodNotFound), errorCodeOf(t, responses[2]))

	rec = post(t, newDispatcher(w), `[]`)
	assert.Equal(t, float64(codeInvalidRequest), errorCodeOf(t, decodeSingle(t, rec)))
}

func TestDispatcherGuardsRefuseBeforeWallet(t *testing.T) {
	w := new(wallettest.Mock)
	d := newDispatcher(w)
	var seen []string
	d.Protect(MethodTransfer,
		func(r *http.Request) (*http.Request, error) {
			seen = append(seen, "first")
			return r, nil
		},
		func(r *http.Request) (*http.Request, error) {
			seen = append(seen, "second")
			return nil, &middleware.Rejection{Status: http.StatusTooManyRequests, Message: "Too Many Requests", RetryAfter: 2 * time.Second}
		},
	)

	rec := post(t, d, `{"jsonrpc":"2.0","id":3,"method":"wallet_transfer","params":{"destination":"f4dest","amount":1,"fee_per_gram":1}}`)
	resp := decodeSingle(t, rec)
	assert.Equal(t, float64(codeRateLimited), errorCodeOf(t, resp))
	data := resp["error"].(map[string]any)["data"].(map[string]any)
	assert.Equal(t, float64(3), data["retry_after"])
	assert.Equal(t, []string{"first", "second"}, seen)
	w.AssertNotCalled(t, "Transfer", mock.Anything, mock.Anything)

	d.Protect(MethodTransfer, func(*http.Request) (*http.Request, error) {
		return nil, &middleware.Rejection{Status: http.StatusUnauthorized, Message: "missing bearer token"}
	})
	resp = decodeSingle(t, post(t, d, `{"jsonrpc":"2.0","id":4,"method":"wallet_transfer","params":{}}`))
	assert.Equal(t, float64(codeUnauthorized), errorCodeOf(t, resp))
	assert.Equal(t, "missing bearer token", resp["error"].(map[string]any)["message"])
}

func TestParseMode(t *testing.T) {
	cases := map[string]Mode{"": ModeAuto, "AUTO": ModeAuto, " enabled ": ModeEnabled, "disabled": ModeDisabled}
	for raw, want := range cases {
		got, err := ParseMode(raw)
		require.NoError(t, err, raw)
		assert.Equal(t, want, got, raw)
	}
	_, err := ParseMode("sometimes")
	assert.Error(t, err)

	assert.True(t, ShouldEnable(ModeAuto))
	assert.True(t, ShouldEnable(ModeEnabled))
	assert.False(t, ShouldEnable(ModeDisabled))
}
