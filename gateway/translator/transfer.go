package translator

import (
	"bytes"
	"encoding/json"
	"strings"

	"go.uber.org/zap"

	"walletgateway/gateway/walletrpc"
	"walletgateway/observability/logging"
)

// ParseTransfer builds the single recipient of a transfer body. Required
// members are checked for presence before any coercion:
//
//   - destination must be a non-empty string;
//   - amount must be present and non-zero;
//   - fee_per_gram must be present, zero allowed.
func ParseTransfer(body []byte, maxPaymentIDBytes int) (walletrpc.PaymentRecipient, error) {
	var recipient walletrpc.PaymentRecipient
	if len(bytes.TrimSpace(body)) == 0 {
		return recipient, invalid("body", "request body must be a JSON object")
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(body, &fields); err != nil || fields == nil {
		return recipient, invalid("body", "request body must be a JSON object")
	}

	destRaw, amountRaw, feeRaw := fields["destination"], fields["amount"], fields["fee_per_gram"]
	var missing []string
	if isNull(destRaw) || isEmptyString(destRaw) {
		missing = append(missing, "destination")
	}
	if isNull(amountRaw) || isEmptyString(amountRaw) {
		missing = append(missing, "amount")
	}
	if isNull(feeRaw) {
		missing = append(missing, "fee_per_gram")
	}
	if len(missing) > 0 {
		return recipient, missingFields(missing...)
	}

	destination, err := transferDestination(destRaw)
	if err != nil {
		return recipient, err
	}
	amount, err := coerceUint64("amount", amountRaw)
	if err != nil {
		return recipient, err
	}
	if amount == 0 {
		return recipient, missingFields("amount")
	}
	fee, err := coerceUint64("fee_per_gram", feeRaw)
	if err != nil {
		return recipient, err
	}

	paymentType, err := coercePaymentType(fields["payment_type"])
	if err != nil {
		return recipient, err
	}

	var paymentID []byte
	if raw := fields["payment_id"]; !isNull(raw) {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return recipient, invalid("payment_id", "payment_id must be a string")
		}
		if maxPaymentIDBytes > 0 && len(s) > maxPaymentIDBytes {
			return recipient, invalid("payment_id", "payment_id exceeds %d bytes", maxPaymentIDBytes)
		}
		if s != "" {
			paymentID = []byte(s)
		}
	}

	return walletrpc.PaymentRecipient{
		Address:     destination,
		Amount:      amount,
		FeePerGram:  fee,
		PaymentType: paymentType,
		PaymentID:   paymentID,
	}, nil
}

func missingFields(names ...string) error {
	return invalid(names[0], "missing required fields: %s", strings.Join(names, ", "))
}

func transferDestination(raw json.RawMessage) (string, error) {
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return "", invalid("destination", "destination must be a string")
	}
	return strings.TrimSpace(s), nil
}

func isEmptyString(raw json.RawMessage) bool {
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return false
	}
	return strings.TrimSpace(s) == ""
}

func maskedDestination(address string) zap.Field {
	return logging.MaskField("destination", address)
}
