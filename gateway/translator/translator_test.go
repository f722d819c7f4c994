package translator

import (
	"context"
	"encoding/json"
	"errors"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/codes"

	"walletgateway/gateway/walletrpc"
)

var anyCtx = mock.Anything

func newTranslator(w Wallet) *Translator {
	return New(w, Options{})
}

func TestGetVersionShapesResponse(t *testing.T) {
	w := new(mockWallet)
	w.On("GetVersion", anyCtx).Return("1.2.3", nil)

	resp, err := newTranslator(w).GetVersion(context.Background())
	require.NoError(t, err)
	assert.Equal(t, VersionResponse{Status: "ok", NodeVersion: "1.2.3"}, resp)
	w.AssertExpectations(t)
}

func TestUnaryCallsCarryDeadline(t *testing.T) {
	w := new(mockWallet)
	w.On("GetAddress", mock.MatchedBy(func(ctx context.Context) bool {
		deadline, ok := ctx.Deadline()
		return ok && time.Until(deadline) <= 5*time.Second
	})).Return("f4addr", nil)

	tr := New(w, Options{CallTimeout: 5 * time.Second})
	resp, err := tr.GetAddress(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "f4addr", resp.Address)
	w.AssertExpectations(t)
}

func TestGetStateRendersLongsAsStrings(t *testing.T) {
	w := new(mockWallet)
	w.On("GetState", anyCtx).Return(walletrpc.State{
		ScannedHeight: 1 << 60,
		Balance:       walletrpc.Balance{Available: 10, Timelocked: 2},
		Network:       walletrpc.NetworkStatus{Status: "Online", AvgLatencyMs: 12, NumNodeConnections: 3},
	}, nil)

	resp, err := newTranslator(w).GetState(context.Background())
	require.NoError(t, err)
	raw, err := json.Marshal(resp)
	require.NoError(t, err)
	assert.JSONEq(t, `{
		"scanned_height": "1152921504606846976",
		"balance": {"available_balance": "10", "pending_incoming_balance": "0", "pending_outgoing_balance": "0", "timelocked_balance": "2"},
		"network": {"status": "Online", "avg_latency_ms": 12, "num_node_connections": 3}
	}`, string(raw))
}

func TestGetPaymentIdAddressRequiresPaymentID(t *testing.T) {
	w := new(mockWallet)
	_, err := newTranslator(w).GetPaymentIdAddress(context.Background(), url.Values{})
	require.Error(t, err)
	assert.Equal(t, KindValidation, Classify(err))
	w.AssertNotCalled(t, "GetPaymentIdAddress", mock.Anything, mock.Anything)

	_, err = newTranslator(w).GetPaymentIdAddress(context.Background(), url.Values{"payment_id": {""}})
	assert.Equal(t, KindValidation, Classify(err))
}

func TestGetPaymentIdAddressRenamesFields(t *testing.T) {
	w := new(mockWallet)
	w.On("GetPaymentIdAddress", anyCtx, []byte("abc")).Return(walletrpc.CompleteAddress{
		InteractiveAddress:       []byte{1, 2},
		InteractiveAddressBase58: "int58",
		OneSidedAddressBase58:    "one58",
		InteractiveAddressEmoji:  "🦀",
		OneSidedAddressEmoji:     "🐢",
	}, nil)

	resp, err := newTranslator(w).GetPaymentIdAddress(context.Background(), url.Values{"payment_id": {"abc"}})
	require.NoError(t, err)
	assert.Equal(t, PaymentAddressResponse{
		InteractiveAddress:      "int58",
		OneSidedAddress:         "one58",
		InteractiveAddressEmoji: "🦀",
		OneSidedAddressEmoji:    "🐢",
	}, resp)
	w.AssertExpectations(t)
}

func TestParseTransactionIDs(t *testing.T) {
	ids, err := ParseTransactionIDs(" 1, 2 ,3")
	require.NoError(t, err)
	assert.Equal(t, []uint64{1, 2, 3}, ids)

	same, err := ParseTransactionIDs("1,2,3")
	require.NoError(t, err)
	assert.Equal(t, ids, same)

	for _, bad := range []string{"", "  ", "1,,2", "1,abc", "-1", "1.5", "18446744073709551616"} {
		_, err := ParseTransactionIDs(bad)
		assert.Error(t, err, bad)
		assert.Equal(t, KindValidation, Classify(err), bad)
	}
}

func TestGetTransactionInfoBadTokenMakesNoCall(t *testing.T) {
	w := new(mockWallet)
	_, err := newTranslator(w).GetTransactionInfo(context.Background(), url.Values{"tx_ids": {"1,x"}})
	assert.Equal(t, KindValidation, Classify(err))
	w.AssertNotCalled(t, "GetTransactionInfo", mock.Anything, mock.Anything)
}

func TestGetCompletedTransactionsWithoutFilter(t *testing.T) {
	w := new(mockWallet)
	w.On("GetCompletedTransactions", anyCtx, walletrpc.CompletedTransactionsFilter{}).Return([]walletrpc.TransactionInfo{
		{TxID: 1}, {TxID: 2},
	}, nil)

	resp, err := newTranslator(w).GetCompletedTransactions(context.Background(), url.Values{})
	require.NoError(t, err)
	assert.Len(t, resp.Transactions, 2)
	assert.Equal(t, len(resp.Transactions), resp.TotalFound)
	w.AssertExpectations(t)
}

func TestParseCompletedFilter(t *testing.T) {
	tr := newTranslator(new(mockWallet))

	filter, err := tr.ParseCompletedFilter(url.Values{"block_hash": {""}, "block_height": {""}, "payment_id": {""}})
	require.NoError(t, err)
	assert.Equal(t, walletrpc.CompletedTransactionsFilter{}, filter)

	filter, err = tr.ParseCompletedFilter(url.Values{"payment_id": {"0xbeef"}, "payment_id_type": {"hex"}, "block_height": {"0"}})
	require.NoError(t, err)
	require.NotNil(t, filter.PaymentID)
	assert.Equal(t, walletrpc.PaymentIDBytes, filter.PaymentID.Kind)
	assert.Equal(t, []byte{0xbe, 0xef}, filter.PaymentID.Value)
	require.NotNil(t, filter.BlockHeight)
	assert.Equal(t, uint64(0), *filter.BlockHeight)
	assert.Nil(t, filter.BlockHash)

	filter, err = tr.ParseCompletedFilter(url.Values{"payment_id": {"order-7"}})
	require.NoError(t, err)
	assert.Equal(t, walletrpc.UTF8PaymentID("order-7"), filter.PaymentID)

	for _, bad := range []url.Values{
		{"block_height": {"tall"}},
		{"payment_id": {"zz"}, "payment_id_type": {"hex"}},
		{"payment_id": {"x"}, "payment_id_type": {"base64"}},
	} {
		_, err := tr.ParseCompletedFilter(bad)
		assert.Equal(t, KindValidation, Classify(err), bad.Encode())
	}
}

func TestParseCompletedFilterU256(t *testing.T) {
	tr := newTranslator(new(mockWallet))

	for raw, want := range map[string]string{
		"42":       "42",
		"0x2a":     "42",
		"0X002A":   "42",
		"0x0":      "0",
		" 1000000": "1000000",
		"115792089237316195423570985008687907853269984665640564039457584007913129639935": "115792089237316195423570985008687907853269984665640564039457584007913129639935",
	} {
		filter, err := tr.ParseCompletedFilter(url.Values{"payment_id": {raw}, "payment_id_type": {"u256"}})
		require.NoError(t, err, raw)
		assert.Equal(t, walletrpc.U256PaymentID(want), filter.PaymentID, raw)
	}

	for _, bad := range []string{"order-7", "-1", "0x", "0xzz", "1.5",
		"115792089237316195423570985008687907853269984665640564039457584007913129639936"} {
		_, err := tr.ParseCompletedFilter(url.Values{"payment_id": {bad}, "payment_id_type": {"u256"}})
		require.Error(t, err, bad)
		assert.Equal(t, KindValidation, Classify(err), bad)
	}
}

func TestGetCompletedTransactionsBadU256MakesNoCall(t *testing.T) {
	w := new(mockWallet)
	_, err := newTranslator(w).GetCompletedTransactions(context.Background(), url.Values{"payment_id": {"garbage"}, "payment_id_type": {"u256"}})
	assert.Equal(t, KindValidation, Classify(err))
	w.AssertNotCalled(t, "GetCompletedTransactions", mock.Anything, mock.Anything)
}

func TestGetCompletedTransactionsStreamFailure(t *testing.T) {
	w := new(mockWallet)
	w.On("GetCompletedTransactions", anyCtx, mock.Anything).
		Return(nil, &walletrpc.Error{Method: walletrpc.MethodGetCompletedTransactions, Code: codes.Internal, Message: "database locked"})

	resp, err := newTranslator(w).GetCompletedTransactions(context.Background(), url.Values{})
	require.Error(t, err)
	assert.Nil(t, resp.Transactions)
	assert.Equal(t, KindRPC, Classify(err))
	assert.Equal(t, "database locked", PublicMessage(err))
}

func TestTransferSendsSingleRecipient(t *testing.T) {
	w := new(mockWallet)
	w.On("Transfer", anyCtx, []walletrpc.PaymentRecipient{{
		Address:     "f4dest",
		Amount:      1500,
		FeePerGram:  0,
		PaymentType: walletrpc.PaymentTypeOneSided,
	}}).Return([]walletrpc.TransferResult{{Address: "f4dest", TransactionID: 42, IsSuccess: true}}, nil)

	resp, err := newTranslator(w).Transfer(context.Background(), []byte(`{"destination":"f4dest","amount":1500,"fee_per_gram":0}`))
	require.NoError(t, err)
	assert.True(t, resp.Success)
	assert.Equal(t, []TransferResult{{Address: "f4dest", TransactionID: 42, IsSuccess: true}}, resp.TransactionResults)
	w.AssertExpectations(t)
}

func TestTransferValidationMakesNoCall(t *testing.T) {
	w := new(mockWallet)
	_, err := newTranslator(w).Transfer(context.Background(), []byte(`{"destination":"f4dest","amount":5}`))
	require.Error(t, err)
	assert.Equal(t, "missing required fields: fee_per_gram", err.Error())
	w.AssertNotCalled(t, "Transfer", mock.Anything, mock.Anything)
}

func TestClassifyAndPublicMessage(t *testing.T) {
	rpcErr := &walletrpc.Error{Code: codes.Unavailable, Message: "connection refused"}
	assert.Equal(t, KindRPC, Classify(rpcErr))
	assert.Equal(t, "connection refused", PublicMessage(rpcErr))

	validation := invalid("amount", "amount must be a number")
	assert.Equal(t, KindValidation, Classify(validation))
	assert.Equal(t, "amount must be a number", PublicMessage(validation))

	other := errors.New("boom")
	assert.Equal(t, KindUnknown, Classify(other))
	assert.Equal(t, InternalErrorMessage, PublicMessage(other))
}
