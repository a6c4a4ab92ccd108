package types

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math/big"
	"reflect"
)

// BigInt wraps *big.Int so on-chain quantities travel through JSON as decimal strings.
// Unmarshalling also accepts bare JSON integers, never floats.
type BigInt struct {
	*big.Int
}

func NewBigInt(i *big.Int) *BigInt {
	if i == nil {
		return nil
	}
	return &BigInt{Int: i}
}

func (b *BigInt) MarshalJSON() ([]byte, error) {
	if b == nil || b.Int == nil {
		return []byte("null"), nil
	}
	return json.Marshal(b.Int.String())
}

func (b *BigInt) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		b.Int = nil
		return nil
	}

	raw := string(bytes.Trim(data, `"`))
	if len(data) > 0 && data[0] != '"' {
		var num json.Number
		if err := json.Unmarshal(data, &num); err != nil {
			return &json.UnmarshalTypeError{Value: string(data), Type: reflect.TypeOf(""), Struct: "BigInt", Field: "Int"}
		}
		raw = num.String()
	}

	i, ok := new(big.Int).SetString(raw, 10)
	if !ok {
		return &json.UnmarshalTypeError{Value: raw, Type: reflect.TypeOf(big.Int{}), Struct: "BigInt", Field: "Int"}
	}
	b.Int = i
	return nil
}

// ToBigInt returns the wrapped value, nil-safe.
func (b *BigInt) ToBigInt() *big.Int {
	if b == nil {
		return nil
	}
	return b.Int
}

func (b *BigInt) String() string {
	if b == nil || b.Int == nil {
		return "<nil>"
	}
	return b.Int.String()
}

// IsPositive reports whether the value is set and greater than zero.
func (b *BigInt) IsPositive() bool {
	return b != nil && b.Int != nil && b.Sign() > 0
}

// ParseBigInt parses a base-10 integer string.
func ParseBigInt(s string) (*big.Int, error) {
	i, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return nil, fmt.Errorf("invalid integer %q", s)
	}
	return i, nil
}
