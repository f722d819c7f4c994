package compat

import (
	"context"
	"encoding/json"

	"walletgateway/gateway/translator"
)

// MethodTransfer is the only method that moves funds.
const MethodTransfer = "wallet_transfer"

// Operation runs one translator call with the request's params.
type Operation func(ctx context.Context, t *translator.Translator, params json.RawMessage) (any, error)

// DefaultMappings exposes the HTTP surface as JSON-RPC methods. Query-style
// operations take a params object whose members become query values;
// wallet_transfer takes the transfer body itself.
var DefaultMappings = map[string]Operation{
	"wallet_getVersion": func(ctx context.Context, t *translator.Translator, _ json.RawMessage) (any, error) {
		return t.GetVersion(ctx)
	},
	"wallet_getState": func(ctx context.Context, t *translator.Translator, _ json.RawMessage) (any, error) {
		return t.GetState(ctx)
	},
	"wallet_getBalance": func(ctx context.Context, t *translator.Translator, _ json.RawMessage) (any, error) {
		return t.GetBalance(ctx)
	},
	"wallet_getAddress": func(ctx context.Context, t *translator.Translator, _ json.RawMessage) (any, error) {
		return t.GetAddress(ctx)
	},
	"wallet_getCompleteAddress": func(ctx context.Context, t *translator.Translator, _ json.RawMessage) (any, error) {
		return t.GetCompleteAddress(ctx)
	},
	"wallet_getPaymentIdAddress": func(ctx context.Context, t *translator.Translator, params json.RawMessage) (any, error) {
		query, err := queryParams(params)
		if err != nil {
			return nil, err
		}
		return t.GetPaymentIdAddress(ctx, query)
	},
	"wallet_getTransactionInfo": func(ctx context.Context, t *translator.Translator, params json.RawMessage) (any, error) {
		query, err := queryParams(params)
		if err != nil {
			return nil, err
		}
		return t.GetTransactionInfo(ctx, query)
	},
	"wallet_getCompletedTransactions": func(ctx context.Context, t *translator.Translator, params json.RawMessage) (any, error) {
		query, err := queryParams(params)
		if err != nil {
			return nil, err
		}
		return t.GetCompletedTransactions(ctx, query)
	},
	MethodTransfer: func(ctx context.Context, t *translator.Translator, params json.RawMessage) (any, error) {
		return t.Transfer(ctx, params)
	},
}
