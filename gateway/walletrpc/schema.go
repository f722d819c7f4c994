package walletrpc

import (
	"fmt"
	"sync"

	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/reflect/protodesc"
	"google.golang.org/protobuf/reflect/protoreflect"
	"google.golang.org/protobuf/reflect/protoregistry"
	"google.golang.org/protobuf/types/descriptorpb"
	"google.golang.org/protobuf/types/dynamicpb"
)

const (
	schemaPackage = "tari.rpc"
	schemaFile    = "wallet.proto"

	// ServiceName is the fully qualified name of the upstream wallet service.
	ServiceName = schemaPackage + ".Wallet"
)

// Wallet service methods the gateway forwards to.
const (
	MethodGetVersion               = "GetVersion"
	MethodGetState                 = "GetState"
	MethodGetBalance               = "GetBalance"
	MethodGetAddress               = "GetAddress"
	MethodGetCompleteAddress       = "GetCompleteAddress"
	MethodGetPaymentIdAddress      = "GetPaymentIdAddress"
	MethodGetTransactionInfo       = "GetTransactionInfo"
	MethodGetCompletedTransactions = "GetCompletedTransactions"
	MethodTransfer                 = "Transfer"
)

// Schema is the resolved descriptor set of the wallet service subset.
type Schema struct {
	file    protoreflect.FileDescriptor
	service protoreflect.ServiceDescriptor
}

// Method is a single RPC of the wallet service.
type Method struct {
	desc protoreflect.MethodDescriptor
}

var loadSchema = sync.OnceValues(func() (*Schema, error) {
	file, err := protodesc.NewFile(walletFileDescriptor(), new(protoregistry.Files))
	if err != nil {
		return nil, fmt.Errorf("build wallet schema: %w", err)
	}
	service := file.Services().ByName("Wallet")
	if service == nil {
		return nil, fmt.Errorf("wallet schema has no Wallet service")
	}
	return &Schema{file: file, service: service}, nil
})

// LoadSchema returns the process-wide wallet schema. The descriptor is built
// once and shared read-only.
func LoadSchema() (*Schema, error) {
	return loadSchema()
}

// Method looks up an RPC by its short name.
func (s *Schema) Method(name string) (Method, error) {
	desc := s.service.Methods().ByName(protoreflect.Name(name))
	if desc == nil {
		return Method{}, fmt.Errorf("%s has no method %q", ServiceName, name)
	}
	return Method{desc: desc}, nil
}

// Message returns the descriptor of a top-level message, or nil.
func (s *Schema) Message(name string) protoreflect.MessageDescriptor {
	return s.file.Messages().ByName(protoreflect.Name(name))
}

// Methods lists the service methods in declaration order.
func (s *Schema) Methods() []Method {
	methods := s.service.Methods()
	out := make([]Method, 0, methods.Len())
	for i := 0; i < methods.Len(); i++ {
		out = append(out, Method{desc: methods.Get(i)})
	}
	return out
}

func (m Method) Name() string {
	return string(m.desc.Name())
}

// FullName is the gRPC path, e.g. /tari.rpc.Wallet/GetVersion.
func (m Method) FullName() string {
	return fmt.Sprintf("/%s/%s", m.desc.Parent().FullName(), m.desc.Name())
}

func (m Method) ServerStreaming() bool {
	return m.desc.IsStreamingServer()
}

func (m Method) NewRequest() *dynamicpb.Message {
	return dynamicpb.NewMessage(m.desc.Input())
}

func (m Method) NewResponse() *dynamicpb.Message {
	return dynamicpb.NewMessage(m.desc.Output())
}

func walletFileDescriptor() *descriptorpb.FileDescriptorProto {
	return &descriptorpb.FileDescriptorProto{
		Name:    proto.String(schemaFile),
		Package: proto.String(schemaPackage),
		Syntax:  proto.String("proto3"),
		EnumType: []*descriptorpb.EnumDescriptorProto{
			enumType("TransactionStatus",
				"TRANSACTION_STATUS_COMPLETED",
				"TRANSACTION_STATUS_BROADCAST",
				"TRANSACTION_STATUS_MINED_UNCONFIRMED",
				"TRANSACTION_STATUS_IMPORTED",
				"TRANSACTION_STATUS_PENDING",
				"TRANSACTION_STATUS_COINBASE",
				"TRANSACTION_STATUS_MINED_CONFIRMED",
				"TRANSACTION_STATUS_REJECTED",
				"TRANSACTION_STATUS_FAUX_UNCONFIRMED",
				"TRANSACTION_STATUS_FAUX_CONFIRMED",
				"TRANSACTION_STATUS_QUEUED",
				"TRANSACTION_STATUS_NOT_FOUND",
				"TRANSACTION_STATUS_COINBASE_UNCONFIRMED",
				"TRANSACTION_STATUS_COINBASE_CONFIRMED",
				"TRANSACTION_STATUS_COINBASE_NOT_IN_BLOCK_CHAIN",
			),
			enumType("TransactionDirection",
				"TRANSACTION_DIRECTION_UNKNOWN",
				"TRANSACTION_DIRECTION_INBOUND",
				"TRANSACTION_DIRECTION_OUTBOUND",
			),
			enumType("ConnectivityStatus", "Initializing", "Online", "Degraded", "Offline"),
		},
		MessageType: []*descriptorpb.DescriptorProto{
			message("Empty"),
			message("GetVersionRequest"),
			message("GetVersionResponse",
				scalar("version", 1, descriptorpb.FieldDescriptorProto_TYPE_STRING),
			),
			message("GetBalanceRequest"),
			message("GetBalanceResponse",
				scalar("available_balance", 1, descriptorpb.FieldDescriptorProto_TYPE_UINT64),
				scalar("pending_incoming_balance", 2, descriptorpb.FieldDescriptorProto_TYPE_UINT64),
				scalar("pending_outgoing_balance", 3, descriptorpb.FieldDescriptorProto_TYPE_UINT64),
				scalar("timelocked_balance", 4, descriptorpb.FieldDescriptorProto_TYPE_UINT64),
			),
			message("NetworkStatusResponse",
				named("status", 1, descriptorpb.FieldDescriptorProto_TYPE_ENUM, "ConnectivityStatus"),
				scalar("avg_latency_ms", 2, descriptorpb.FieldDescriptorProto_TYPE_UINT32),
				scalar("num_node_connections", 3, descriptorpb.FieldDescriptorProto_TYPE_UINT32),
			),
			message("GetStateRequest"),
			message("GetStateResponse",
				scalar("scanned_height", 1, descriptorpb.FieldDescriptorProto_TYPE_UINT64),
				named("balance", 2, descriptorpb.FieldDescriptorProto_TYPE_MESSAGE, "GetBalanceResponse"),
				named("network", 3, descriptorpb.FieldDescriptorProto_TYPE_MESSAGE, "NetworkStatusResponse"),
			),
			message("GetAddressResponse",
				scalar("address", 1, descriptorpb.FieldDescriptorProto_TYPE_STRING),
			),
			message("GetCompleteAddressResponse",
				scalar("interactive_address", 1, descriptorpb.FieldDescriptorProto_TYPE_BYTES),
				scalar("one_sided_address", 2, descriptorpb.FieldDescriptorProto_TYPE_BYTES),
				scalar("interactive_address_base58", 3, descriptorpb.FieldDescriptorProto_TYPE_STRING),
				scalar("one_sided_address_base58", 4, descriptorpb.FieldDescriptorProto_TYPE_STRING),
				scalar("interactive_address_emoji", 5, descriptorpb.FieldDescriptorProto_TYPE_STRING),
				scalar("one_sided_address_emoji", 6, descriptorpb.FieldDescriptorProto_TYPE_STRING),
			),
			message("GetPaymentIdAddressRequest",
				scalar("payment_id", 1, descriptorpb.FieldDescriptorProto_TYPE_BYTES),
			),
			message("TransactionInfo",
				scalar("tx_id", 1, descriptorpb.FieldDescriptorProto_TYPE_UINT64),
				scalar("source_address", 2, descriptorpb.FieldDescriptorProto_TYPE_STRING),
				scalar("dest_address", 3, descriptorpb.FieldDescriptorProto_TYPE_STRING),
				named("status", 4, descriptorpb.FieldDescriptorProto_TYPE_ENUM, "TransactionStatus"),
				named("direction", 5, descriptorpb.FieldDescriptorProto_TYPE_ENUM, "TransactionDirection"),
				scalar("amount", 6, descriptorpb.FieldDescriptorProto_TYPE_UINT64),
				scalar("fee", 7, descriptorpb.FieldDescriptorProto_TYPE_UINT64),
				scalar("is_cancelled", 8, descriptorpb.FieldDescriptorProto_TYPE_BOOL),
				scalar("excess_sig", 9, descriptorpb.FieldDescriptorProto_TYPE_STRING),
				scalar("timestamp", 10, descriptorpb.FieldDescriptorProto_TYPE_UINT64),
				scalar("payment_id", 12, descriptorpb.FieldDescriptorProto_TYPE_STRING),
				scalar("mined_in_block_height", 13, descriptorpb.FieldDescriptorProto_TYPE_UINT64),
			),
			message("GetTransactionInfoRequest",
				repeated(scalar("transaction_ids", 1, descriptorpb.FieldDescriptorProto_TYPE_UINT64)),
			),
			message("GetTransactionInfoResponse",
				repeated(named("transactions", 1, descriptorpb.FieldDescriptorProto_TYPE_MESSAGE, "TransactionInfo")),
			),
			withOneofs(message("UserPaymentId",
				inOneof(scalar("u256", 1, descriptorpb.FieldDescriptorProto_TYPE_STRING), 0),
				inOneof(scalar("utf8_string", 2, descriptorpb.FieldDescriptorProto_TYPE_STRING), 0),
				inOneof(scalar("user_bytes", 3, descriptorpb.FieldDescriptorProto_TYPE_BYTES), 0),
			), "payment_id"),
			withOneofs(message("GetCompletedTransactionsRequest",
				named("payment_id", 1, descriptorpb.FieldDescriptorProto_TYPE_MESSAGE, "UserPaymentId"),
				optional(scalar("block_hash", 2, descriptorpb.FieldDescriptorProto_TYPE_STRING), 0),
				optional(scalar("block_height", 3, descriptorpb.FieldDescriptorProto_TYPE_UINT64), 1),
			), "_block_hash", "_block_height"),
			message("GetCompletedTransactionsResponse",
				named("transaction", 1, descriptorpb.FieldDescriptorProto_TYPE_MESSAGE, "TransactionInfo"),
			),
			withEnums(message("PaymentRecipient",
				scalar("address", 1, descriptorpb.FieldDescriptorProto_TYPE_STRING),
				scalar("amount", 2, descriptorpb.FieldDescriptorProto_TYPE_UINT64),
				scalar("fee_per_gram", 3, descriptorpb.FieldDescriptorProto_TYPE_UINT64),
				named("payment_type", 5, descriptorpb.FieldDescriptorProto_TYPE_ENUM, "PaymentRecipient.PaymentType"),
				scalar("payment_id", 6, descriptorpb.FieldDescriptorProto_TYPE_BYTES),
			), enumType("PaymentType", "STANDARD_MIMBLEWIMBLE", "ONE_SIDED", "ONE_SIDED_TO_STEALTH_ADDRESS")),
			message("TransferRequest",
				repeated(named("recipients", 1, descriptorpb.FieldDescriptorProto_TYPE_MESSAGE, "PaymentRecipient")),
			),
			message("TransferResult",
				scalar("address", 1, descriptorpb.FieldDescriptorProto_TYPE_STRING),
				scalar("transaction_id", 2, descriptorpb.FieldDescriptorProto_TYPE_UINT64),
				scalar("is_success", 3, descriptorpb.FieldDescriptorProto_TYPE_BOOL),
				scalar("failure_message", 4, descriptorpb.FieldDescriptorProto_TYPE_STRING),
			),
			message("TransferResponse",
				repeated(named("results", 1, descriptorpb.FieldDescriptorProto_TYPE_MESSAGE, "TransferResult")),
			),
		},
		Service: []*descriptorpb.ServiceDescriptorProto{{
			Name: proto.String("Wallet"),
			Method: []*descriptorpb.MethodDescriptorProto{
				rpc(MethodGetVersion, "GetVersionRequest", "GetVersionResponse", false),
				rpc(MethodGetState, "GetStateRequest", "GetStateResponse", false),
				rpc(MethodGetBalance, "GetBalanceRequest", "GetBalanceResponse", false),
				rpc(MethodGetAddress, "Empty", "GetAddressResponse", false),
				rpc(MethodGetCompleteAddress, "Empty", "GetCompleteAddressResponse", false),
				rpc(MethodGetPaymentIdAddress, "GetPaymentIdAddressRequest", "GetCompleteAddressResponse", false),
				rpc(MethodGetTransactionInfo, "GetTransactionInfoRequest", "GetTransactionInfoResponse", false),
				rpc(MethodGetCompletedTransactions, "GetCompletedTransactionsRequest", "GetCompletedTransactionsResponse", true),
				rpc(MethodTransfer, "TransferRequest", "TransferResponse", false),
			},
		}},
	}
}

func message(name string, fields ...*descriptorpb.FieldDescriptorProto) *descriptorpb.DescriptorProto {
	return &descriptorpb.DescriptorProto{Name: proto.String(name), Field: fields}
}

func withOneofs(msg *descriptorpb.DescriptorProto, names ...string) *descriptorpb.DescriptorProto {
	for _, name := range names {
		msg.OneofDecl = append(msg.OneofDecl, &descriptorpb.OneofDescriptorProto{Name: proto.String(name)})
	}
	return msg
}

func withEnums(msg *descriptorpb.DescriptorProto, enums ...*descriptorpb.EnumDescriptorProto) *descriptorpb.DescriptorProto {
	msg.EnumType = append(msg.EnumType, enums...)
	return msg
}

func scalar(name string, number int32, typ descriptorpb.FieldDescriptorProto_Type) *descriptorpb.FieldDescriptorProto {
	return &descriptorpb.FieldDescriptorProto{
		Name:   proto.String(name),
		Number: proto.Int32(number),
		Label:  descriptorpb.FieldDescriptorProto_LABEL_OPTIONAL.Enum(),
		Type:   typ.Enum(),
	}
}

// named is a message or enum typed field; typeName is relative to the package.
func named(name string, number int32, typ descriptorpb.FieldDescriptorProto_Type, typeName string) *descriptorpb.FieldDescriptorProto {
	field := scalar(name, number, typ)
	field.TypeName = proto.String("." + schemaPackage + "." + typeName)
	return field
}

func repeated(field *descriptorpb.FieldDescriptorProto) *descriptorpb.FieldDescriptorProto {
	field.Label = descriptorpb.FieldDescriptorProto_LABEL_REPEATED.Enum()
	return field
}

func inOneof(field *descriptorpb.FieldDescriptorProto, index int32) *descriptorpb.FieldDescriptorProto {
	field.OneofIndex = proto.Int32(index)
	return field
}

// optional marks a proto3 `optional` field backed by a synthetic oneof.
func optional(field *descriptorpb.FieldDescriptorProto, index int32) *descriptorpb.FieldDescriptorProto {
	field.Proto3Optional = proto.Bool(true)
	return inOneof(field, index)
}

func enumType(name string, values ...string) *descriptorpb.EnumDescriptorProto {
	enum := &descriptorpb.EnumDescriptorProto{Name: proto.String(name)}
	for i, value := range values {
		enum.Value = append(enum.Value, &descriptorpb.EnumValueDescriptorProto{
			Name:   proto.String(value),
			Number: proto.Int32(int32(i)),
		})
	}
	return enum
}

func rpc(name, input, output string, serverStreaming bool) *descriptorpb.MethodDescriptorProto {
	method := &descriptorpb.MethodDescriptorProto{
		Name:       proto.String(name),
		InputType:  proto.String("." + schemaPackage + "." + input),
		OutputType: proto.String("." + schemaPackage + "." + output),
	}
	if serverStreaming {
		method.ServerStreaming = proto.Bool(true)
	}
	return method
}
