package translator

import (
	"errors"
	"fmt"

	"walletgateway/gateway/walletrpc"
)

// ValidationError reports input rejected before any wallet call was made.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

func invalid(field, format string, args ...any) error {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

// Kind classifies an operation failure for the front ends.
type Kind int

const (
	KindUnknown Kind = iota
	KindValidation
	KindRPC
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindRPC:
		return "rpc"
	default:
		return "unknown"
	}
}

// InternalErrorMessage is all a caller learns about an unclassified failure.
const InternalErrorMessage = "internal error"

// Classify reports which of the three failure kinds err belongs to.
func Classify(err error) Kind {
	var validation *ValidationError
	if errors.As(err, &validation) {
		return KindValidation
	}
	if walletrpc.IsError(err) {
		return KindRPC
	}
	return KindUnknown
}

// PublicMessage is the text safe to return to a client for err.
func PublicMessage(err error) string {
	var validation *ValidationError
	if errors.As(err, &validation) {
		return validation.Message
	}
	var rpcErr *walletrpc.Error
	if errors.As(err, &rpcErr) {
		return rpcErr.Message
	}
	return InternalErrorMessage
}
