// Package translator validates raw HTTP input, invokes the wallet and
// reshapes its answers into the gateway's public JSON types.
package translator

import (
	"context"
	"encoding/hex"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"walletgateway/gateway/walletrpc"
)

// Wallet is the upstream surface the translator drives. *walletrpc.Client
// satisfies it.
type Wallet interface {
	GetVersion(ctx context.Context) (string, error)
	GetState(ctx context.Context) (walletrpc.State, error)
	GetBalance(ctx context.Context) (walletrpc.Balance, error)
	GetAddress(ctx context.Context) (string, error)
	GetCompleteAddress(ctx context.Context) (walletrpc.CompleteAddress, error)
	GetPaymentIdAddress(ctx context.Context, paymentID []byte) (walletrpc.CompleteAddress, error)
	GetTransactionInfo(ctx context.Context, ids []uint64) ([]walletrpc.TransactionInfo, error)
	GetCompletedTransactions(ctx context.Context, filter walletrpc.CompletedTransactionsFilter) ([]walletrpc.TransactionInfo, error)
	Transfer(ctx context.Context, recipients []walletrpc.PaymentRecipient) ([]walletrpc.TransferResult, error)
}

const (
	DefaultCallTimeout       = 30 * time.Second
	DefaultStreamTimeout     = 2 * time.Minute
	DefaultMaxPaymentIDBytes = 256
)

// Options tune a Translator. Zero values fall back to the defaults above.
type Options struct {
	CallTimeout       time.Duration
	StreamTimeout     time.Duration
	MaxPaymentIDBytes int
	Logger            *zap.Logger
}

// Translator maps public operations onto at most one wallet call each.
type Translator struct {
	wallet            Wallet
	callTimeout       time.Duration
	streamTimeout     time.Duration
	maxPaymentIDBytes int
	logger            *zap.Logger
}

func New(wallet Wallet, opts Options) *Translator {
	t := &Translator{
		wallet:            wallet,
		callTimeout:       opts.CallTimeout,
		streamTimeout:     opts.StreamTimeout,
		maxPaymentIDBytes: opts.MaxPaymentIDBytes,
		logger:            opts.Logger,
	}
	if t.callTimeout <= 0 {
		t.callTimeout = DefaultCallTimeout
	}
	if t.streamTimeout <= 0 {
		t.streamTimeout = DefaultStreamTimeout
	}
	if t.maxPaymentIDBytes <= 0 {
		t.maxPaymentIDBytes = DefaultMaxPaymentIDBytes
	}
	if t.logger == nil {
		t.logger = zap.NewNop()
	}
	return t
}

func (t *Translator) unaryContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, t.callTimeout)
}

func (t *Translator) streamContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, t.streamTimeout)
}

func (t *Translator) GetVersion(ctx context.Context) (VersionResponse, error) {
	ctx, cancel := t.unaryContext(ctx)
	defer cancel()
	version, err := t.wallet.GetVersion(ctx)
	if err != nil {
		return VersionResponse{}, err
	}
	return VersionResponse{Status: "ok", NodeVersion: version}, nil
}

func (t *Translator) GetState(ctx context.Context) (StateResponse, error) {
	ctx, cancel := t.unaryContext(ctx)
	defer cancel()
	state, err := t.wallet.GetState(ctx)
	if err != nil {
		return StateResponse{}, err
	}
	return StateResponse{
		ScannedHeight: state.ScannedHeight,
		Balance:       toBalance(state.Balance),
		Network: NetworkResponse{
			Status:             state.Network.Status,
			AvgLatencyMs:       state.Network.AvgLatencyMs,
			NumNodeConnections: state.Network.NumNodeConnections,
		},
	}, nil
}

func (t *Translator) GetBalance(ctx context.Context) (BalanceResponse, error) {
	ctx, cancel := t.unaryContext(ctx)
	defer cancel()
	balance, err := t.wallet.GetBalance(ctx)
	if err != nil {
		return BalanceResponse{}, err
	}
	return toBalance(balance), nil
}

func (t *Translator) GetAddress(ctx context.Context) (AddressResponse, error) {
	ctx, cancel := t.unaryContext(ctx)
	defer cancel()
	address, err := t.wallet.GetAddress(ctx)
	if err != nil {
		return AddressResponse{}, err
	}
	return AddressResponse{Address: address}, nil
}

func (t *Translator) GetCompleteAddress(ctx context.Context) (PaymentAddressResponse, error) {
	ctx, cancel := t.unaryContext(ctx)
	defer cancel()
	address, err := t.wallet.GetCompleteAddress(ctx)
	if err != nil {
		return PaymentAddressResponse{}, err
	}
	return toPaymentAddress(address), nil
}

// GetPaymentIdAddress requires a non-empty payment_id and sends its UTF-8
// bytes upstream.
func (t *Translator) GetPaymentIdAddress(ctx context.Context, query url.Values) (PaymentAddressResponse, error) {
	paymentID := query.Get("payment_id")
	if paymentID == "" {
		return PaymentAddressResponse{}, invalid("payment_id", "payment_id query parameter is required")
	}
	if len(paymentID) > t.maxPaymentIDBytes {
		return PaymentAddressResponse{}, invalid("payment_id", "payment_id exceeds %d bytes", t.maxPaymentIDBytes)
	}
	ctx, cancel := t.unaryContext(ctx)
	defer cancel()
	address, err := t.wallet.GetPaymentIdAddress(ctx, []byte(paymentID))
	if err != nil {
		return PaymentAddressResponse{}, err
	}
	return toPaymentAddress(address), nil
}

// GetTransactionInfo parses tx_ids as a comma-separated list of base-10
// uint64 values. The first bad token rejects the whole request.
func (t *Translator) GetTransactionInfo(ctx context.Context, query url.Values) (TransactionsResponse, error) {
	ids, err := ParseTransactionIDs(query.Get("tx_ids"))
	if err != nil {
		return TransactionsResponse{}, err
	}
	ctx, cancel := t.unaryContext(ctx)
	defer cancel()
	txs, err := t.wallet.GetTransactionInfo(ctx, ids)
	if err != nil {
		return TransactionsResponse{}, err
	}
	return TransactionsResponse{Transactions: toTransactions(txs)}, nil
}

func ParseTransactionIDs(raw string) ([]uint64, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, invalid("tx_ids", "tx_ids query parameter is required")
	}
	tokens := strings.Split(raw, ",")
	ids := make([]uint64, 0, len(tokens))
	for _, token := range tokens {
		token = strings.TrimSpace(token)
		id, err := strconv.ParseUint(token, 10, 64)
		if err != nil {
			return nil, invalid("tx_ids", "invalid transaction id %q", token)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// GetCompletedTransactions collects the wallet's completed-transaction
// stream. Only supplied, non-empty filter parameters reach the request.
func (t *Translator) GetCompletedTransactions(ctx context.Context, query url.Values) (CompletedTransactionsResponse, error) {
	filter, err := t.ParseCompletedFilter(query)
	if err != nil {
		return CompletedTransactionsResponse{}, err
	}
	ctx, cancel := t.streamContext(ctx)
	defer cancel()
	txs, err := t.wallet.GetCompletedTransactions(ctx, filter)
	if err != nil {
		return CompletedTransactionsResponse{}, err
	}
	out := toTransactions(txs)
	return CompletedTransactionsResponse{Transactions: out, TotalFound: len(out)}, nil
}

func (t *Translator) ParseCompletedFilter(query url.Values) (walletrpc.CompletedTransactionsFilter, error) {
	var filter walletrpc.CompletedTransactionsFilter

	if paymentID := query.Get("payment_id"); paymentID != "" {
		if len(paymentID) > t.maxPaymentIDBytes {
			return filter, invalid("payment_id", "payment_id exceeds %d bytes", t.maxPaymentIDBytes)
		}
		switch kind := strings.ToLower(strings.TrimSpace(query.Get("payment_id_type"))); kind {
		case "", "utf8":
			filter.PaymentID = walletrpc.UTF8PaymentID(paymentID)
		case "u256":
			value, err := coerceU256(paymentID)
			if err != nil {
				return filter, err
			}
			filter.PaymentID = walletrpc.U256PaymentID(value)
		case "hex":
			decoded, err := hex.DecodeString(strings.TrimPrefix(paymentID, "0x"))
			if err != nil {
				return filter, invalid("payment_id", "payment_id is not valid hex")
			}
			filter.PaymentID = walletrpc.BytesPaymentID(decoded)
		default:
			return filter, invalid("payment_id_type", "payment_id_type must be one of utf8, u256, hex")
		}
	}
	if hash := query.Get("block_hash"); hash != "" {
		filter.BlockHash = &hash
	}
	if raw := strings.TrimSpace(query.Get("block_height")); raw != "" {
		height, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			return filter, invalid("block_height", "block_height must be an unsigned integer")
		}
		filter.BlockHeight = &height
	}
	return filter, nil
}

// Transfer validates the JSON body, sends exactly one recipient and reports
// the wallet's per-recipient results.
func (t *Translator) Transfer(ctx context.Context, body []byte) (TransferResponse, error) {
	recipient, err := ParseTransfer(body, t.maxPaymentIDBytes)
	if err != nil {
		return TransferResponse{}, err
	}
	t.logger.Info("submitting transfer",
		maskedDestination(recipient.Address),
		zap.Uint64("amount", recipient.Amount),
		zap.Uint64("fee_per_gram", recipient.FeePerGram),
		zap.Stringer("payment_type", recipient.PaymentType),
	)
	ctx, cancel := t.unaryContext(ctx)
	defer cancel()
	results, err := t.wallet.Transfer(ctx, []walletrpc.PaymentRecipient{recipient})
	if err != nil {
		return TransferResponse{}, err
	}
	return TransferResponse{Success: true, TransactionResults: toTransferResults(results)}, nil
}
