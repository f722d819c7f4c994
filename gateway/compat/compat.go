package compat

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"go.uber.org/zap"

	"walletgateway/gateway/middleware"
	"walletgateway/gateway/translator"
)

const (
	codeParseError     = -32700
	codeInvalidRequest = -32600
	codeMethodNotFound = -32601
	codeInvalidParams  = -32602
	codeInternalError  = -32603
	codeWalletError    = -32000
	codeUnauthorized   = -32001
	codeForbidden      = -32003
	codeRateLimited    = -32005

	maxBodyBytes = 1 << 20
	maxBatchSize = 50
)

type Dispatcher struct {
	translator *translator.Translator
	mappings   map[string]Operation
	guards     map[string][]Guard
	logger     *zap.Logger
}

// Guard admits one call before it reaches the wallet and may return the
// request with more context attached. A *middleware.Rejection picks the
// JSON-RPC error code.
type Guard func(r *http.Request) (*http.Request, error)

func NewDispatcher(t *translator.Translator, mappings map[string]Operation, logger *zap.Logger) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dispatcher{
		translator: t,
		mappings:   mappings,
		guards:     make(map[string][]Guard),
		logger:     logger,
	}
}

// Protect sets the guards every call to method must pass, in order. It
// replaces guards set earlier and must be called before serving.
func (d *Dispatcher) Protect(method string, guards ...Guard) {
	if len(guards) == 0 {
		delete(d.guards, method)
		return
	}
	d.guards[method] = guards
}

func (d *Dispatcher) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
		if err != nil {
			writeError(w, nil, codeParseError, fmt.Sprintf("read body: %v", err))
			return
		}
		payload := bytes.TrimSpace(body)
		if len(payload) == 0 {
			writeError(w, nil, codeInvalidRequest, "empty request body")
			return
		}
		if bytes.HasPrefix(payload, []byte("[")) {
			var requests []rpcRequest
			if err := json.Unmarshal(payload, &requests); err != nil {
				writeError(w, nil, codeParseError, fmt.Sprintf("decode batch: %v", err))
				return
			}
			if len(requests) == 0 {
				writeError(w, nil, codeInvalidRequest, "empty batch")
				return
			}
			if len(requests) > maxBatchSize {
				writeError(w, nil, codeInvalidRequest, fmt.Sprintf("batch exceeds %d requests", maxBatchSize))
				return
			}
			responses := make([]rpcResponse, 0, len(requests))
			for _, req := range requests {
				responses = append(responses, d.handleSingle(r, req))
			}
			writeJSON(w, responses)
			return
		}
		var request rpcRequest
		if err := json.Unmarshal(payload, &request); err != nil {
			writeError(w, nil, codeParseError, fmt.Sprintf("decode request: %v", err))
			return
		}
		writeJSON(w, d.handleSingle(r, request))
	})
}

type rpcRequest struct {
	JSONRPC string          `json:"jsonrpc"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params"`
	ID      any             `json:"id"`
}

type rpcResponse struct {
	JSONRPC string    `json:"jsonrpc"`
	Result  any       `json:"result,omitempty"`
	Error   *rpcError `json:"error,omitempty"`
	ID      any       `json:"id"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

func (d *Dispatcher) handleSingle(r *http.Request, req rpcRequest) rpcResponse {
	resp := rpcResponse{JSONRPC: "2.0", ID: req.ID}
	op, ok := d.mappings[req.Method]
	if !ok {
		resp.Error = &rpcError{Code: codeMethodNotFound, Message: "method not found"}
		return resp
	}
	for _, guard := range d.guards[req.Method] {
		admitted, err := guard(r)
		if err != nil {
			d.logger.Warn("compat call refused",
				zap.String("method", req.Method),
				zap.String("request_id", middleware.RequestIDFrom(r.Context())),
				zap.Error(err),
			)
			resp.Error = refusal(err)
			return resp
		}
		r = admitted
	}
	ctx := r.Context()
	params := bytes.TrimSpace(req.Params)
	if len(params) == 0 || bytes.Equal(params, []byte("null")) {
		params = []byte("{}")
	}
	result, err := op(ctx, d.translator, params)
	if err != nil {
		kind := translator.Classify(err)
		d.logger.Warn("compat call failed",
			zap.String("method", req.Method),
			zap.Stringer("kind", kind),
			zap.Error(err),
		)
		resp.Error = &rpcError{Code: errorCode(kind), Message: translator.PublicMessage(err)}
		return resp
	}
	resp.Result = result
	return resp
}

func refusal(err error) *rpcError {
	var rej *middleware.Rejection
	if !errors.As(err, &rej) {
		return &rpcError{Code: codeInternalError, Message: "internal error"}
	}
	switch rej.Status {
	case http.StatusUnauthorized:
		return &rpcError{Code: codeUnauthorized, Message: rej.Message}
	case http.StatusForbidden:
		return &rpcError{Code: codeForbidden, Message: rej.Message}
	case http.StatusTooManyRequests:
		seconds := int(rej.RetryAfter.Round(time.Second)/time.Second) + 1
		return &rpcError{Code: codeRateLimited, Message: rej.Message, Data: map[string]int{"retry_after": seconds}}
	default:
		return &rpcError{Code: codeInternalError, Message: rej.Message}
	}
}

func errorCode(kind translator.Kind) int {
	switch kind {
	case translator.KindValidation:
		return codeInvalidParams
	case translator.KindRPC:
		return codeWalletError
	default:
		return codeInternalError
	}
}

// queryParams flattens a params object into query values. Numbers and
// booleans keep their JSON text; arrays join with commas.
func queryParams(params json.RawMessage) (url.Values, error) {
	var members map[string]any
	dec := json.NewDecoder(bytes.NewReader(params))
	dec.UseNumber()
	if err := dec.Decode(&members); err != nil {
		return nil, &translator.ValidationError{Field: "params", Message: "params must be a JSON object"}
	}
	query := url.Values{}
	for key, value := range members {
		text, ok := scalarText(value)
		if !ok {
			return nil, &translator.ValidationError{Field: key, Message: fmt.Sprintf("param %s must be a scalar or array of scalars", key)}
		}
		query.Set(key, text)
	}
	return query, nil
}

func scalarText(value any) (string, bool) {
	switch v := value.(type) {
	case nil:
		return "", true
	case string:
		return v, true
	case json.Number:
		return v.String(), true
	case bool:
		return strconv.FormatBool(v), true
	case []any:
		var buf bytes.Buffer
		for i, item := range v {
			text, ok := scalarText(item)
			if !ok {
				return "", false
			}
			if i > 0 {
				buf.WriteByte(',')
			}
			buf.WriteString(text)
		}
		return buf.String(), true
	default:
		return "", false
	}
}

func writeError(w http.ResponseWriter, id any, code int, msg string) {
	writeJSON(w, rpcResponse{
		JSONRPC: "2.0",
		ID:      id,
		Error:   &rpcError{Code: code, Message: msg},
	})
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	enc := json.NewEncoder(w)
	_ = enc.Encode(v)
}
