package walletrpc

import (
	"bytes"
	"fmt"
	"strconv"

	"google.golang.org/protobuf/reflect/protoreflect"
)

func fieldOf(m protoreflect.Message, name string) protoreflect.FieldDescriptor {
	fd := m.Descriptor().Fields().ByName(protoreflect.Name(name))
	if fd == nil {
		panic(fmt.Sprintf("walletrpc: %s has no field %q", m.Descriptor().FullName(), name))
	}
	return fd
}

func getString(m protoreflect.Message, name string) string {
	return m.Get(fieldOf(m, name)).String()
}

func getUint64(m protoreflect.Message, name string) uint64 {
	return m.Get(fieldOf(m, name)).Uint()
}

func getUint32(m protoreflect.Message, name string) uint32 {
	return uint32(m.Get(fieldOf(m, name)).Uint())
}

func getBool(m protoreflect.Message, name string) bool {
	return m.Get(fieldOf(m, name)).Bool()
}

func getBytes(m protoreflect.Message, name string) []byte {
	return bytes.Clone(m.Get(fieldOf(m, name)).Bytes())
}

func getMessage(m protoreflect.Message, name string) protoreflect.Message {
	return m.Get(fieldOf(m, name)).Message()
}

func getList(m protoreflect.Message, name string) protoreflect.List {
	return m.Get(fieldOf(m, name)).List()
}

// getEnumName renders an enum by its schema name; numbers the schema does
// not know are rendered in decimal.
func getEnumName(m protoreflect.Message, name string) string {
	fd := fieldOf(m, name)
	number := m.Get(fd).Enum()
	if value := fd.Enum().Values().ByNumber(number); value != nil {
		return string(value.Name())
	}
	return strconv.Itoa(int(number))
}

func set(m protoreflect.Message, name string, value protoreflect.Value) {
	m.Set(fieldOf(m, name), value)
}

func encodeRecipient(m protoreflect.Message, r PaymentRecipient) {
	set(m, "address", protoreflect.ValueOfString(r.Address))
	set(m, "amount", protoreflect.ValueOfUint64(r.Amount))
	set(m, "fee_per_gram", protoreflect.ValueOfUint64(r.FeePerGram))
	set(m, "payment_type", protoreflect.ValueOfEnum(protoreflect.EnumNumber(r.PaymentType)))
	if len(r.PaymentID) > 0 {
		set(m, "payment_id", protoreflect.ValueOfBytes(r.PaymentID))
	}
}

func encodeCompletedTransactionsFilter(m protoreflect.Message, f CompletedTransactionsFilter) {
	if f.PaymentID != nil {
		pid := m.Mutable(fieldOf(m, "payment_id")).Message()
		switch f.PaymentID.Kind {
		case PaymentIDU256:
			set(pid, "u256", protoreflect.ValueOfString(string(f.PaymentID.Value)))
		case PaymentIDBytes:
			set(pid, "user_bytes", protoreflect.ValueOfBytes(f.PaymentID.Value))
		default:
			set(pid, "utf8_string", protoreflect.ValueOfString(string(f.PaymentID.Value)))
		}
	}
	if f.BlockHash != nil {
		set(m, "block_hash", protoreflect.ValueOfString(*f.BlockHash))
	}
	if f.BlockHeight != nil {
		set(m, "block_height", protoreflect.ValueOfUint64(*f.BlockHeight))
	}
}

func decodeBalance(m protoreflect.Message) Balance {
	return Balance{
		Available:       getUint64(m, "available_balance"),
		PendingIncoming: getUint64(m, "pending_incoming_balance"),
		PendingOutgoing: getUint64(m, "pending_outgoing_balance"),
		Timelocked:      getUint64(m, "timelocked_balance"),
	}
}

func decodeState(m protoreflect.Message) State {
	network := getMessage(m, "network")
	return State{
		ScannedHeight: getUint64(m, "scanned_height"),
		Balance:       decodeBalance(getMessage(m, "balance")),
		Network: NetworkStatus{
			Status:             getEnumName(network, "status"),
			AvgLatencyMs:       getUint32(network, "avg_latency_ms"),
			NumNodeConnections: getUint32(network, "num_node_connections"),
		},
	}
}

func decodeCompleteAddress(m protoreflect.Message) CompleteAddress {
	return CompleteAddress{
		InteractiveAddress:       getBytes(m, "interactive_address"),
		OneSidedAddress:          getBytes(m, "one_sided_address"),
		InteractiveAddressBase58: getString(m, "interactive_address_base58"),
		OneSidedAddressBase58:    getString(m, "one_sided_address_base58"),
		InteractiveAddressEmoji:  getString(m, "interactive_address_emoji"),
		OneSidedAddressEmoji:     getString(m, "one_sided_address_emoji"),
	}
}

func decodeTransaction(m protoreflect.Message) TransactionInfo {
	return TransactionInfo{
		TxID:               getUint64(m, "tx_id"),
		SourceAddress:      getString(m, "source_address"),
		DestAddress:        getString(m, "dest_address"),
		Status:             getEnumName(m, "status"),
		Direction:          getEnumName(m, "direction"),
		Amount:             getUint64(m, "amount"),
		Fee:                getUint64(m, "fee"),
		IsCancelled:        getBool(m, "is_cancelled"),
		ExcessSig:          getString(m, "excess_sig"),
		Timestamp:          getUint64(m, "timestamp"),
		PaymentID:          getString(m, "payment_id"),
		MinedInBlockHeight: getUint64(m, "mined_in_block_height"),
	}
}

func decodeTransactions(list protoreflect.List) []TransactionInfo {
	out := make([]TransactionInfo, 0, list.Len())
	for i := 0; i < list.Len(); i++ {
		out = append(out, decodeTransaction(list.Get(i).Message()))
	}
	return out
}

func decodeTransferResults(list protoreflect.List) []TransferResult {
	out := make([]TransferResult, 0, list.Len())
	for i := 0; i < list.Len(); i++ {
		m := list.Get(i).Message()
		out = append(out, TransferResult{
			Address:        getString(m, "address"),
			TransactionID:  getUint64(m, "transaction_id"),
			IsSuccess:      getBool(m, "is_success"),
			FailureMessage: getString(m, "failure_message"),
		})
	}
	return out
}
