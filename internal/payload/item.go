// Package payload holds the demo record carried by the producer routes and its
// protobuf wire encoding.
package payload

import (
	"errors"
	"fmt"

	"google.golang.org/protobuf/encoding/protowire"
)

const (
	fieldNumber protowire.Number = 1
	fieldName   protowire.Number = 2
)

var ErrMalformed = errors.New("malformed item")

// Item is wire compatible with `message MyObj { int32 number = 1; string name = 2; }`.
type Item struct {
	Number int32  `json:"number"`
	Name   string `json:"name"`
}

// MarshalProto encodes the item in proto3 wire format, omitting zero values.
func (it Item) MarshalProto() []byte {
	var b []byte
	if it.Number != 0 {
		b = protowire.AppendTag(b, fieldNumber, protowire.VarintType)
		b = protowire.AppendVarint(b, uint64(int64(it.Number)))
	}
	if it.Name != "" {
		b = protowire.AppendTag(b, fieldName, protowire.BytesType)
		b = protowire.AppendString(b, it.Name)
	}
	return b
}

// UnmarshalProto decodes proto3 wire data. Unknown fields are skipped; a known
// field with the wrong wire type or a truncated record is an error.
func UnmarshalProto(b []byte) (Item, error) {
	var it Item
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return Item{}, fmt.Errorf("%w: %v", ErrMalformed, protowire.ParseError(n))
		}
		b = b[n:]

		switch {
		case num == fieldNumber && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return Item{}, fmt.Errorf("%w: number: %v", ErrMalformed, protowire.ParseError(n))
			}
			it.Number = int32(v)
			b = b[n:]

		case num == fieldName && typ == protowire.BytesType:
			v, n := protowire.ConsumeString(b)
			if n < 0 {
				return Item{}, fmt.Errorf("%w: name: %v", ErrMalformed, protowire.ParseError(n))
			}
			it.Name = v
			b = b[n:]

		case num == fieldNumber || num == fieldName:
			return Item{}, fmt.Errorf("%w: field %d has wire type %d", ErrMalformed, num, typ)

		default:
			n := protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return Item{}, fmt.Errorf("%w: field %d: %v", ErrMalformed, num, protowire.ParseError(n))
			}
			b = b[n:]
		}
	}
	return it, nil
}
