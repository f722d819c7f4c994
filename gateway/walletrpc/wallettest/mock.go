// Package wallettest provides a testify mock of the wallet surface driven by
// the translator.
package wallettest

import (
	"context"

	"github.com/stretchr/testify/mock"

	"walletgateway/gateway/walletrpc"
)

type Mock struct {
	mock.Mock
}

func (m *Mock) GetVersion(ctx context.Context) (string, error) {
	args := m.Called(ctx)
	return args.String(0), args.Error(1)
}

func (m *Mock) GetState(ctx context.Context) (walletrpc.State, error) {
	args := m.Called(ctx)
	return args.Get(0).(walletrpc.State), args.Error(1)
}

func (m *Mock) GetBalance(ctx context.Context) (walletrpc.Balance, error) {
	args := m.Called(ctx)
	return args.Get(0).(walletrpc.Balance), args.Error(1)
}

func (m *Mock) GetAddress(ctx context.Context) (string, error) {
	args := m.Called(ctx)
	return args.String(0), args.Error(1)
}

func (m *Mock) GetCompleteAddress(ctx context.Context) (walletrpc.CompleteAddress, error) {
	args := m.Called(ctx)
	return args.Get(0).(walletrpc.CompleteAddress), args.Error(1)
}

func (m *Mock) GetPaymentIdAddress(ctx context.Context, paymentID []byte) (walletrpc.CompleteAddress, error) {
	args := m.Called(ctx, paymentID)
	return args.Get(0).(walletrpc.CompleteAddress), args.Error(1)
}

func (m *Mock) GetTransactionInfo(ctx context.Context, ids []uint64) ([]walletrpc.TransactionInfo, error) {
	args := m.Called(ctx, ids)
	txs, _ := args.Get(0).([]walletrpc.TransactionInfo)
	return txs, args.Error(1)
}

func (m *Mock) GetCompletedTransactions(ctx context.Context, filter walletrpc.CompletedTransactionsFilter) ([]walletrpc.TransactionInfo, error) {
	args := m.Called(ctx, filter)
	txs, _ := args.Get(0).([]walletrpc.TransactionInfo)
	return txs, args.Error(1)
}

func (m *Mock) Transfer(ctx context.Context, recipients []walletrpc.PaymentRecipient) ([]walletrpc.TransferResult, error) {
	args := m.Called(ctx, recipients)
	results, _ := args.Get(0).([]walletrpc.TransferResult)
	return results, args.Error(1)
}
