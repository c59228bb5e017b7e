// Package wire holds the protobuf wire-format helpers shared by the ledger,
// history and reference codecs.
//
// Messages are written by hand with protowire rather than generated, in a
// fixed field order, so the same value always encodes to the same bytes.
// Identifiers are always written as 16-byte tokens, including the nil one.
package wire

import (
	"errors"
	"fmt"
	"math"

	"google.golang.org/protobuf/encoding/protowire"

	"github.com/cadseer/naming/ident"
)

// ErrMalformed is returned when a buffer is not a valid encoding.
var ErrMalformed = errors.New("wire: malformed message")

// Field is one decoded field handed to a Walk callback.
type Field struct {
	Num   protowire.Number
	Type  protowire.Type
	Bytes []byte
	Int   uint64
}

// ID decodes the field as an identifier token.
func (f Field) ID() (ident.ID, error) {
	if f.Type != protowire.BytesType {
		return ident.Nil, fmt.Errorf("%w: field %d is not a token", ErrMalformed, f.Num)
	}
	return ident.FromToken(f.Bytes)
}

// Feature decodes the field as a feature token.
func (f Field) Feature() (ident.FeatureID, error) {
	if f.Type != protowire.BytesType {
		return ident.NoFeature, fmt.Errorf("%w: field %d is not a token", ErrMalformed, f.Num)
	}
	return ident.FeatureFromToken(f.Bytes)
}

// Float decodes a fixed64 field as a float64.
func (f Field) Float() float64 {
	return math.Float64frombits(f.Int)
}

// Walk calls fn for every field of the message in b. Varint and fixed-width
// values arrive in Int, length-delimited values in Bytes. Group fields are
// rejected.
func Walk(b []byte, fn func(Field) error) error {
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return fmt.Errorf("%w: %v", ErrMalformed, protowire.ParseError(n))
		}
		b = b[n:]

		f := Field{Num: num, Type: typ}
		switch typ {
		case protowire.VarintType:
			f.Int, n = protowire.ConsumeVarint(b)
		case protowire.Fixed64Type:
			f.Int, n = protowire.ConsumeFixed64(b)
		case protowire.Fixed32Type:
			var v uint32
			v, n = protowire.ConsumeFixed32(b)
			f.Int = uint64(v)
		case protowire.BytesType:
			f.Bytes, n = protowire.ConsumeBytes(b)
		default:
			return fmt.Errorf("%w: unsupported wire type %d", ErrMalformed, typ)
		}
		if n < 0 {
			return fmt.Errorf("%w: field %d: %v", ErrMalformed, num, protowire.ParseError(n))
		}
		b = b[n:]

		if err := fn(f); err != nil {
			return err
		}
	}
	return nil
}

// AppendID appends id as a length-delimited token field.
func AppendID(b []byte, num protowire.Number, id ident.ID) []byte {
	b = protowire.AppendTag(b, num, protowire.BytesType)
	b = protowire.AppendVarint(b, ident.TokenSize)
	return id.AppendToken(b)
}

// AppendFeature appends f as a length-delimited token field.
func AppendFeature(b []byte, num protowire.Number, f ident.FeatureID) []byte {
	b = protowire.AppendTag(b, num, protowire.BytesType)
	b = protowire.AppendVarint(b, ident.TokenSize)
	return f.AppendToken(b)
}

// AppendBytes appends a length-delimited field.
func AppendBytes(b []byte, num protowire.Number, v []byte) []byte {
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendBytes(b, v)
}

// AppendString appends a length-delimited string field.
func AppendString(b []byte, num protowire.Number, s string) []byte {
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendString(b, s)
}

// AppendVarint appends a varint field.
func AppendVarint(b []byte, num protowire.Number, v uint64) []byte {
	b = protowire.AppendTag(b, num, protowire.VarintType)
	return protowire.AppendVarint(b, v)
}

// AppendFloat appends a float64 as a fixed64 field.
func AppendFloat(b []byte, num protowire.Number, v float64) []byte {
	b = protowire.AppendTag(b, num, protowire.Fixed64Type)
	return protowire.AppendFixed64(b, math.Float64bits(v))
}
