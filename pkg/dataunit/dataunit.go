// Package dataunit gives a concrete shape to the dataunit IDL/codec that
// spec.md §1 treats as an out-of-scope collaborator ("assumed to provide
// deterministic wire-format serialization with tagged fields, repeated
// fields, and nested messages"). It is deliberately small: a Unit is an
// ordered set of tagged Fields, each carrying a field number and a
// Kind, encoded deterministically (ascending field number) with
// stdlib varint framing. Grounded on the field-tagging contract of
// original_source/dataunit/include/hatn/dataunit/fields/fieldtraits.h
// and the stream framing of original_source/dataunit/src/stream.cpp,
// re-expressed in idiomatic Go as tagged-variant fields instead of
// C++ template-generated field classes (spec.md §9's "Deep inheritance
// of Field/Unit" design note).
package dataunit

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"sort"
)

// Kind identifies a field's wire representation.
type Kind byte

const (
	KindBool Kind = iota + 1
	KindInt
	KindUint
	KindFloat
	KindString
	KindBytes
	KindMessage
	KindRepeated
)

// Field is one tagged value inside a Unit.
type Field struct {
	Number uint32
	Kind   Kind

	Bool    bool
	Int     int64
	Uint    uint64
	Float   float64
	String  string
	Bytes   []byte
	Message *Unit

	// Repeated holds the element Kind and values when Kind == KindRepeated.
	Repeated    Kind
	RepeatedSet []Field
}

// Unit is an ordered dataunit message: a tagged bag of Fields identified
// by field number, matching spec.md's Dataunit glossary entry.
type Unit struct {
	Name   string
	Fields []Field
}

// New creates an empty, named Unit.
func New(name string) *Unit {
	return &Unit{Name: name}
}

// Set replaces (or appends) the field with the given number.
func (u *Unit) Set(f Field) {
	for i := range u.Fields {
		if u.Fields[i].Number == f.Number {
			u.Fields[i] = f
			return
		}
	}
	u.Fields = append(u.Fields, f)
}

// Get returns the field with the given number, if present.
func (u *Unit) Get(number uint32) (Field, bool) {
	for _, f := range u.Fields {
		if f.Number == number {
			return f, true
		}
	}
	return Field{}, false
}

// SetBool, SetInt, ... are convenience setters used by pkg/db's object
// serialization and pkg/rpc's request/response framing.

func (u *Unit) SetBool(n uint32, v bool) { u.Set(Field{Number: n, Kind: KindBool, Bool: v}) }
func (u *Unit) SetInt(n uint32, v int64) { u.Set(Field{Number: n, Kind: KindInt, Int: v}) }
func (u *Unit) SetUint(n uint32, v uint64) {
	u.Set(Field{Number: n, Kind: KindUint, Uint: v})
}
func (u *Unit) SetFloat(n uint32, v float64) {
	u.Set(Field{Number: n, Kind: KindFloat, Float: v})
}
func (u *Unit) SetString(n uint32, v string) {
	u.Set(Field{Number: n, Kind: KindString, String: v})
}
func (u *Unit) SetBytes(n uint32, v []byte) {
	u.Set(Field{Number: n, Kind: KindBytes, Bytes: v})
}
func (u *Unit) SetMessage(n uint32, v *Unit) {
	u.Set(Field{Number: n, Kind: KindMessage, Message: v})
}

// Marshal serializes the Unit deterministically: fields are always
// written in ascending field-number order regardless of Set order, so
// deserialize(serialize(o)) == o holds byte-for-byte (spec.md §8).
func (u *Unit) Marshal() []byte {
	var buf bytes.Buffer
	sorted := append([]Field(nil), u.Fields...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Number < sorted[j].Number })
	for _, f := range sorted {
		marshalField(&buf, f)
	}
	return buf.Bytes()
}

func marshalField(buf *bytes.Buffer, f Field) {
	writeVarint(buf, uint64(f.Number))
	buf.WriteByte(byte(f.Kind))
	switch f.Kind {
	case KindBool:
		if f.Bool {
			buf.WriteByte(1)
		} else {
			buf.WriteByte(0)
		}
	case KindInt:
		writeVarint(buf, zigzagEncode(f.Int))
	case KindUint:
		writeVarint(buf, f.Uint)
	case KindFloat:
		var b [8]byte
		binary.BigEndian.PutUint64(b[:], float64Bits(f.Float))
		buf.Write(b[:])
	case KindString:
		writeVarint(buf, uint64(len(f.String)))
		buf.WriteString(f.String)
	case KindBytes:
		writeVarint(buf, uint64(len(f.Bytes)))
		buf.Write(f.Bytes)
	case KindMessage:
		inner := f.Message.Marshal()
		writeVarint(buf, uint64(len(inner)))
		buf.Write(inner)
	case KindRepeated:
		buf.WriteByte(byte(f.Repeated))
		writeVarint(buf, uint64(len(f.RepeatedSet)))
		for _, e := range f.RepeatedSet {
			e.Kind = f.Repeated
			marshalFieldValue(buf, e)
		}
	}
}

// marshalFieldValue writes only the value portion (no number/kind
// prefix), used for elements of a repeated field.
func marshalFieldValue(buf *bytes.Buffer, f Field) {
	switch f.Kind {
	case KindBool:
		if f.Bool {
			buf.WriteByte(1)
		} else {
			buf.WriteByte(0)
		}
	case KindInt:
		writeVarint(buf, zigzagEncode(f.Int))
	case KindUint:
		writeVarint(buf, f.Uint)
	case KindFloat:
		var b [8]byte
		binary.BigEndian.PutUint64(b[:], float64Bits(f.Float))
		buf.Write(b[:])
	case KindString:
		writeVarint(buf, uint64(len(f.String)))
		buf.WriteString(f.String)
	case KindBytes:
		writeVarint(buf, uint64(len(f.Bytes)))
		buf.Write(f.Bytes)
	case KindMessage:
		inner := f.Message.Marshal()
		writeVarint(buf, uint64(len(inner)))
		buf.Write(inner)
	}
}

// Unmarshal decodes data produced by Marshal into a new Unit named name.
func Unmarshal(name string, data []byte) (*Unit, error) {
	u := New(name)
	r := bytes.NewReader(data)
	for r.Len() > 0 {
		number, err := readVarint(r)
		if err != nil {
			return nil, fmt.Errorf("dataunit: read field number: %w", err)
		}
		kindByte, err := r.ReadByte()
		if err != nil {
			return nil, fmt.Errorf("dataunit: read field kind: %w", err)
		}
		f, err := unmarshalFieldBody(r, Kind(kindByte))
		if err != nil {
			return nil, fmt.Errorf("dataunit: field %d: %w", number, err)
		}
		f.Number = uint32(number)
		u.Fields = append(u.Fields, f)
	}
	return u, nil
}

func unmarshalFieldBody(r *bytes.Reader, kind Kind) (Field, error) {
	f := Field{Kind: kind}
	switch kind {
	case KindBool:
		b, err := r.ReadByte()
		if err != nil {
			return f, err
		}
		f.Bool = b != 0
	case KindInt:
		v, err := readVarint(r)
		if err != nil {
			return f, err
		}
		f.Int = zigzagDecode(v)
	case KindUint:
		v, err := readVarint(r)
		if err != nil {
			return f, err
		}
		f.Uint = v
	case KindFloat:
		var b [8]byte
		if _, err := io.ReadFull(r, b[:]); err != nil {
			return f, err
		}
		f.Float = float64FromBits(binary.BigEndian.Uint64(b[:]))
	case KindString:
		n, err := readVarint(r)
		if err != nil {
			return f, err
		}
		b := make([]byte, n)
		if _, err := io.ReadFull(r, b); err != nil {
			return f, err
		}
		f.String = string(b)
	case KindBytes:
		n, err := readVarint(r)
		if err != nil {
			return f, err
		}
		b := make([]byte, n)
		if _, err := io.ReadFull(r, b); err != nil {
			return f, err
		}
		f.Bytes = b
	case KindMessage:
		n, err := readVarint(r)
		if err != nil {
			return f, err
		}
		b := make([]byte, n)
		if _, err := io.ReadFull(r, b); err != nil {
			return f, err
		}
		inner, err := Unmarshal("", b)
		if err != nil {
			return f, err
		}
		f.Message = inner
	case KindRepeated:
		elemKindByte, err := r.ReadByte()
		if err != nil {
			return f, err
		}
		elemKind := Kind(elemKindByte)
		f.Repeated = elemKind
		count, err := readVarint(r)
		if err != nil {
			return f, err
		}
		for i := uint64(0); i < count; i++ {
			elem, err := unmarshalFieldBody(r, elemKind)
			if err != nil {
				return f, err
			}
			f.RepeatedSet = append(f.RepeatedSet, elem)
		}
	default:
		return f, fmt.Errorf("unknown kind %d", kind)
	}
	return f, nil
}

func writeVarint(buf *bytes.Buffer, v uint64) {
	var tmp [binary.MaxVarintLen64]byte
	n := binary.PutUvarint(tmp[:], v)
	buf.Write(tmp[:n])
}

func readVarint(r *bytes.Reader) (uint64, error) {
	return binary.ReadUvarint(r)
}

func zigzagEncode(v int64) uint64 {
	return uint64((v << 1) ^ (v >> 63))
}

func zigzagDecode(v uint64) int64 {
	return int64(v>>1) ^ -int64(v&1)
}

func float64Bits(f float64) uint64 {
	return math.Float64bits(f)
}

func float64FromBits(b uint64) float64 {
	return math.Float64frombits(b)
}
