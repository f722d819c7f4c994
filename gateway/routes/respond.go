package routes

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"
	"google.golang.org/grpc/codes"

	"walletgateway/gateway/middleware"
	"walletgateway/gateway/translator"
	"walletgateway/gateway/walletrpc"
)

// bodyError is a failure reading the request body.
type bodyError struct {
	err error
}

func (e *bodyError) Error() string { return "read request body: " + e.err.Error() }

func (e *bodyError) Unwrap() error { return e.err }

func (e *bodyError) status() (int, string) {
	var tooLarge *http.MaxBytesError
	if errors.As(e.err, &tooLarge) {
		return http.StatusRequestEntityTooLarge, "request body too large"
	}
	return http.StatusBadRequest, "unable to read request body"
}

// respond writes v as JSON, or err as {"error": ...} after logging it once.
func (h *handlers) respond(w http.ResponseWriter, r *http.Request, v any, err error) {
	if err != nil {
		status := statusFor(err, h.mapStatusCodes)
		message := translator.PublicMessage(err)
		var body *bodyError
		if errors.As(err, &body) {
			status, message = body.status()
		}
		fields := []zap.Field{
			zap.String("method", r.Method),
			zap.String("route", r.URL.Path),
			zap.String("request_id", middleware.RequestIDFrom(r.Context())),
			zap.Int("status", status),
			zap.Stringer("kind", translator.Classify(err)),
			zap.Error(err),
		}
		var rpcErr *walletrpc.Error
		if errors.As(err, &rpcErr) {
			fields = append(fields, zap.String("rpc_method", rpcErr.Method), zap.Stringer("rpc_code", rpcErr.Code))
		}
		if status >= http.StatusInternalServerError {
			h.logger.Error("request failed", fields...)
		} else {
			h.logger.Warn("request rejected", fields...)
		}
		writeJSONError(w, status, message)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

func statusFor(err error, mapCodes bool) int {
	switch translator.Classify(err) {
	case translator.KindValidation:
		return http.StatusBadRequest
	case translator.KindRPC:
		if mapCodes {
			var rpcErr *walletrpc.Error
			if errors.As(err, &rpcErr) {
				return mapGRPCCode(rpcErr.Code)
			}
		}
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	payload, err := json.Marshal(v)
	if err != nil {
		writeJSONError(w, http.StatusInternalServerError, translator.InternalErrorMessage)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(payload)
}

func writeJSONError(w http.ResponseWriter, status int, message string) {
	if message == "" {
		message = http.StatusText(status)
	}
	payload, _ := json.Marshal(map[string]string{"error": message})
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(payload)
}

func mapGRPCCode(code codes.Code) int {
	switch code {
	case codes.OK:
		return http.StatusOK
	case codes.InvalidArgument, codes.FailedPrecondition, codes.OutOfRange:
		return http.StatusBadRequest
	case codes.Unauthenticated:
		return http.StatusUnauthorized
	case codes.PermissionDenied:
		return http.StatusForbidden
	case codes.NotFound:
		return http.StatusNotFound
	case codes.AlreadyExists, codes.Aborted:
		return http.StatusConflict
	case codes.ResourceExhausted:
		return http.StatusTooManyRequests
	case codes.Unavailable:
		return http.StatusServiceUnavailable
	case codes.DeadlineExceeded:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}
