package walletrpc

import (
	"context"
	"errors"
	"fmt"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// Error is the single failure kind surfaced for any wallet call: transport
// failures, deadlines and remote-reported statuses all end up here.
type Error struct {
	Method  string
	Code    codes.Code
	Message string
}

func (e *Error) Error() string {
	return e.Message
}

// String includes the method and code, for logs.
func (e *Error) String() string {
	return fmt.Sprintf("%s: %s: %s", e.Method, e.Code, e.Message)
}

// IsError reports whether err is, or wraps, a wallet RPC failure.
func IsError(err error) bool {
	var rpcErr *Error
	return errors.As(err, &rpcErr)
}

func wrapError(method string, err error) error {
	if err == nil {
		return nil
	}
	var rpcErr *Error
	if errors.As(err, &rpcErr) {
		return rpcErr
	}
	code := codes.Unknown
	message := err.Error()
	if st, ok := status.FromError(err); ok {
		code = st.Code()
		message = st.Message()
	} else {
		switch {
		case errors.Is(err, context.DeadlineExceeded):
			code = codes.DeadlineExceeded
		case errors.Is(err, context.Canceled):
			code = codes.Canceled
		}
	}
	if message == "" {
		message = code.String()
	}
	return &Error{Method: method, Code: code, Message: message}
}
