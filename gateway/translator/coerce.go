package translator

import (
	"bytes"
	"encoding/json"
	"math"
	"strconv"
	"strings"

	"github.com/holiman/uint256"
	"github.com/shopspring/decimal"

	"walletgateway/gateway/walletrpc"
)

var (
	maxUint64 = decimal.RequireFromString(strconv.FormatUint(math.MaxUint64, 10))
	one       = decimal.NewFromInt(1)
)

// maxCoefficientDigits leaves room for a full uint64 plus a long fraction.
const maxCoefficientDigits = 256

// isNull reports whether a JSON member is absent or an explicit null.
func isNull(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null"))
}

// decodeScalar yields a string, a json.Number, a bool or a composite value.
func decodeScalar(raw json.RawMessage) (any, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	return v, nil
}

// coerceUint64 accepts a JSON number or numeric string, in plain, decimal or
// exponent form, and truncates it toward zero.
func coerceUint64(field string, raw json.RawMessage) (uint64, error) {
	v, err := decodeScalar(raw)
	if err != nil {
		return 0, invalid(field, "%s must be a number", field)
	}
	var text string
	switch typed := v.(type) {
	case json.Number:
		text = typed.String()
	case string:
		text = strings.TrimSpace(typed)
	default:
		return 0, invalid(field, "%s must be a number", field)
	}
	d, err := decimal.NewFromString(text)
	if err != nil {
		return 0, invalid(field, "%s must be a number", field)
	}
	if d.IsNegative() {
		return 0, invalid(field, "%s must not be negative", field)
	}
	if d.IsZero() {
		return 0, nil
	}
	// Bound the exponent and coefficient before any rescaling so inputs like
	// 1e999999999 stay cheap.
	if d.Exponent() > 19 {
		return 0, invalid(field, "%s is out of range", field)
	}
	if d.LessThan(one) {
		return 0, nil
	}
	if len(d.Coefficient().String()) > maxCoefficientDigits {
		return 0, invalid(field, "%s has too many digits", field)
	}
	d = d.Truncate(0)
	if d.GreaterThan(maxUint64) {
		return 0, invalid(field, "%s is out of range", field)
	}
	return d.BigInt().Uint64(), nil
}

// coercePaymentType accepts a schema name or alias, or one of the enum
// numbers.
func coercePaymentType(raw json.RawMessage) (walletrpc.PaymentType, error) {
	if isNull(raw) {
		return walletrpc.DefaultPaymentType, nil
	}
	v, err := decodeScalar(raw)
	if err != nil {
		return 0, invalid("payment_type", "payment_type is invalid")
	}
	switch typed := v.(type) {
	case string:
		pt, err := walletrpc.ParsePaymentType(typed)
		if err != nil {
			return 0, invalid("payment_type", "payment_type %q is not supported", typed)
		}
		return pt, nil
	case json.Number:
		n, err := typed.Int64()
		if err != nil || n < 0 || n > math.MaxInt32 || !walletrpc.PaymentType(n).Valid() {
			return 0, invalid("payment_type", "payment_type %s is not supported", typed.String())
		}
		return walletrpc.PaymentType(n), nil
	default:
		return 0, invalid("payment_type", "payment_type must be a string or number")
	}
}

// coerceU256 parses a decimal or 0x-prefixed hex payment id and returns its
// canonical decimal form.
func coerceU256(raw string) (string, error) {
	text := strings.TrimSpace(raw)
	var (
		value *uint256.Int
		err   error
	)
	if rest, ok := cutHexPrefix(text); ok {
		digits := strings.TrimLeft(rest, "0")
		if digits == "" && rest != "" {
			digits = "0"
		}
		value, err = uint256.FromHex("0x" + digits)
	} else {
		value, err = uint256.FromDecimal(text)
	}
	if err != nil {
		return "", invalid("payment_id", "payment_id is not a valid u256")
	}
	return value.Dec(), nil
}

func cutHexPrefix(s string) (string, bool) {
	if len(s) >= 2 && s[0] == '0' && (s[1] == 'x' || s[1] == 'X') {
		return s[2:], true
	}
	return s, false
}
