package translator

import "walletgateway/gateway/walletrpc"

// Every uint64 is rendered as a decimal string so values above 2^53 survive
// JavaScript clients; 32-bit counters stay numbers.

type VersionResponse struct {
	Status      string `json:"status"`
	NodeVersion string `json:"node_version"`
}

type BalanceResponse struct {
	AvailableBalance       uint64 `json:"available_balance,string"`
	PendingIncomingBalance uint64 `json:"pending_incoming_balance,string"`
	PendingOutgoingBalance uint64 `json:"pending_outgoing_balance,string"`
	TimelockedBalance      uint64 `json:"timelocked_balance,string"`
}

type NetworkResponse struct {
	Status             string `json:"status"`
	AvgLatencyMs       uint32 `json:"avg_latency_ms"`
	NumNodeConnections uint32 `json:"num_node_connections"`
}

type StateResponse struct {
	ScannedHeight uint64          `json:"scanned_height,string"`
	Balance       BalanceResponse `json:"balance"`
	Network       NetworkResponse `json:"network"`
}

type AddressResponse struct {
	Address string `json:"address"`
}

// PaymentAddressResponse exposes the base58 forms under the plain names.
type PaymentAddressResponse struct {
	InteractiveAddress      string `json:"interactive_address"`
	OneSidedAddress         string `json:"one_sided_address"`
	InteractiveAddressEmoji string `json:"interactive_address_emoji"`
	OneSidedAddressEmoji    string `json:"one_sided_address_emoji"`
}

type Transaction struct {
	TxID               uint64 `json:"tx_id,string"`
	SourceAddress      string `json:"source_address"`
	DestAddress        string `json:"dest_address"`
	Status             string `json:"status"`
	Direction          string `json:"direction"`
	Amount             uint64 `json:"amount,string"`
	Fee                uint64 `json:"fee,string"`
	IsCancelled        bool   `json:"is_cancelled"`
	ExcessSig          string `json:"excess_sig"`
	Timestamp          uint64 `json:"timestamp,string"`
	PaymentID          string `json:"payment_id"`
	MinedInBlockHeight uint64 `json:"mined_in_block_height,string"`
}

type TransactionsResponse struct {
	Transactions []Transaction `json:"transactions"`
}

type CompletedTransactionsResponse struct {
	Transactions []Transaction `json:"transactions"`
	TotalFound   int           `json:"total_found"`
}

type TransferResult struct {
	Address        string `json:"address"`
	TransactionID  uint64 `json:"transaction_id,string"`
	IsSuccess      bool   `json:"is_success"`
	FailureMessage string `json:"failure_message"`
}

type TransferResponse struct {
	Success            bool             `json:"success"`
	TransactionResults []TransferResult `json:"transaction_results"`
}

func toBalance(b walletrpc.Balance) BalanceResponse {
	return BalanceResponse{
		AvailableBalance:       b.Available,
		PendingIncomingBalance: b.PendingIncoming,
		PendingOutgoingBalance: b.PendingOutgoing,
		TimelockedBalance:      b.Timelocked,
	}
}

func toPaymentAddress(a walletrpc.CompleteAddress) PaymentAddressResponse {
	return PaymentAddressResponse{
		InteractiveAddress:      a.InteractiveAddressBase58,
		OneSidedAddress:         a.OneSidedAddressBase58,
		InteractiveAddressEmoji: a.InteractiveAddressEmoji,
		OneSidedAddressEmoji:    a.OneSidedAddressEmoji,
	}
}

func toTransactions(txs []walletrpc.TransactionInfo) []Transaction {
	out := make([]Transaction, 0, len(txs))
	for _, tx := range txs {
		out = append(out, Transaction{
			TxID:               tx.TxID,
			SourceAddress:      tx.SourceAddress,
			DestAddress:        tx.DestAddress,
			Status:             tx.Status,
			Direction:          tx.Direction,
			Amount:             tx.Amount,
			Fee:                tx.Fee,
			IsCancelled:        tx.IsCancelled,
			ExcessSig:          tx.ExcessSig,
			Timestamp:          tx.Timestamp,
			PaymentID:          tx.PaymentID,
			MinedInBlockHeight: tx.MinedInBlockHeight,
		})
	}
	return out
}

func toTransferResults(results []walletrpc.TransferResult) []TransferResult {
	out := make([]TransferResult, 0, len(results))
	for _, r := range results {
		out = append(out, TransferResult{
			Address:        r.Address,
			TransactionID:  r.TransactionID,
			IsSuccess:      r.IsSuccess,
			FailureMessage: r.FailureMessage,
		})
	}
	return out
}
