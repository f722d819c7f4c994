package walletrpc

import (
	"fmt"
	"strings"
)

// PaymentType selects how a transfer is constructed by the wallet.
type PaymentType int32

const (
	PaymentTypeStandard          PaymentType = 0
	PaymentTypeOneSided          PaymentType = 1
	PaymentTypeOneSidedToStealth PaymentType = 2
)

// DefaultPaymentType applies when a transfer request does not name one.
const DefaultPaymentType = PaymentTypeOneSided

func (p PaymentType) String() string {
	switch p {
	case PaymentTypeStandard:
		return "STANDARD_MIMBLEWIMBLE"
	case PaymentTypeOneSided:
		return "ONE_SIDED"
	case PaymentTypeOneSidedToStealth:
		return "ONE_SIDED_TO_STEALTH_ADDRESS"
	default:
		return fmt.Sprintf("PaymentType(%d)", int32(p))
	}
}

func (p PaymentType) Valid() bool {
	return p >= PaymentTypeStandard && p <= PaymentTypeOneSidedToStealth
}

// ParsePaymentType accepts the schema names plus the short aliases STANDARD
// and ONE_SIDED_TO_STEALTH, case-insensitively.
func ParsePaymentType(raw string) (PaymentType, error) {
	switch strings.ToUpper(strings.TrimSpace(raw)) {
	case "STANDARD", "STANDARD_MIMBLEWIMBLE":
		return PaymentTypeStandard, nil
	case "ONE_SIDED":
		return PaymentTypeOneSided, nil
	case "ONE_SIDED_TO_STEALTH", "ONE_SIDED_TO_STEALTH_ADDRESS":
		return PaymentTypeOneSidedToStealth, nil
	default:
		return 0, fmt.Errorf("unknown payment type %q", raw)
	}
}

// PaymentRecipient is one destination of a Transfer call.
type PaymentRecipient struct {
	Address     string
	Amount      uint64
	FeePerGram  uint64
	PaymentType PaymentType
	PaymentID   []byte
}

type TransferResult struct {
	Address        string
	TransactionID  uint64
	IsSuccess      bool
	FailureMessage string
}

type Balance struct {
	Available       uint64
	PendingIncoming uint64
	PendingOutgoing uint64
	Timelocked      uint64
}

type NetworkStatus struct {
	Status             string
	AvgLatencyMs       uint32
	NumNodeConnections uint32
}

type State struct {
	ScannedHeight uint64
	Balance       Balance
	Network       NetworkStatus
}

type CompleteAddress struct {
	InteractiveAddress       []byte
	OneSidedAddress          []byte
	InteractiveAddressBase58 string
	OneSidedAddressBase58    string
	InteractiveAddressEmoji  string
	OneSidedAddressEmoji     string
}

type TransactionInfo struct {
	TxID               uint64
	SourceAddress      string
	DestAddress        string
	Status             string
	Direction          string
	Amount             uint64
	Fee                uint64
	IsCancelled        bool
	ExcessSig          string
	Timestamp          uint64
	PaymentID          string
	MinedInBlockHeight uint64
}

// PaymentIDKind is the variant of the UserPaymentId oneof.
type PaymentIDKind int

const (
	PaymentIDUTF8 PaymentIDKind = iota
	PaymentIDU256
	PaymentIDBytes
)

// UserPaymentID sets exactly one variant of the upstream oneof.
type UserPaymentID struct {
	Kind  PaymentIDKind
	Value []byte
}

func UTF8PaymentID(value string) *UserPaymentID {
	return &UserPaymentID{Kind: PaymentIDUTF8, Value: []byte(value)}
}

func U256PaymentID(value string) *UserPaymentID {
	return &UserPaymentID{Kind: PaymentIDU256, Value: []byte(value)}
}

func BytesPaymentID(value []byte) *UserPaymentID {
	return &UserPaymentID{Kind: PaymentIDBytes, Value: value}
}

// CompletedTransactionsFilter narrows GetCompletedTransactions. Nil fields
// are left unset on the wire.
type CompletedTransactionsFilter struct {
	PaymentID   *UserPaymentID
	BlockHash   *string
	BlockHeight *uint64
}
