// Package value implements the document model the query engine operates on.
//
// A Value is an immutable tagged union over the field types a document can
// hold. A Document is an ordered, string-keyed collection of Values. All
// operations return new values; nothing in this package mutates a Value or a
// Document after construction, so both may be shared freely between
// goroutines and pipeline stages.
package value

import (
	"math"
	"strconv"
	"strings"
	"time"
)

type Kind uint8

const (
	KindNull Kind = iota
	KindBool
	KindInt
	KindFloat
	KindString
	KindBinary
	KindTimestamp
	KindObjectID
	KindArray
	KindDocument
)

var kindNames = [...]string{
	KindNull:      "null",
	KindBool:      "bool",
	KindInt:       "int",
	KindFloat:     "double",
	KindString:    "string",
	KindBinary:    "binData",
	KindTimestamp: "date",
	KindObjectID:  "objectId",
	KindArray:     "array",
	KindDocument:  "object",
}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return "kind(" + strconv.Itoa(int(k)) + ")"
}

// BinaryUUID is the binary subtype used for RFC 4122 identifiers.
const BinaryUUID byte = 0x04

// Value is a single document field value. The zero Value is Null.
type Value struct {
	kind    Kind
	b       bool
	i       int64
	f       float64
	s       string
	subtype byte
	bin     []byte
	t       time.Time
	oid     ObjectID
	arr     []Value
	doc     Document
}

func Null() Value {
	return Value{}
}

func Bool(b bool) Value {
	return Value{kind: KindBool, b: b}
}

func Int(i int64) Value {
	return Value{kind: KindInt, i: i}
}

func Float(f float64) Value {
	return Value{kind: KindFloat, f: f}
}

func String(s string) Value {
	return Value{kind: KindString, s: s}
}

func Binary(subtype byte, data []byte) Value {
	cp := make([]byte, len(data))
	copy(cp, data)
	return Value{kind: KindBinary, subtype: subtype, bin: cp}
}

// Timestamp truncates to millisecond precision, the resolution of stored dates.
func Timestamp(t time.Time) Value {
	return Value{kind: KindTimestamp, t: t.UTC().Truncate(time.Millisecond)}
}

func OID(id ObjectID) Value {
	return Value{kind: KindObjectID, oid: id}
}

func Array(items ...Value) Value {
	cp := make([]Value, len(items))
	copy(cp, items)
	return Value{kind: KindArray, arr: cp}
}

func Doc(d Document) Value {
	return Value{kind: KindDocument, doc: d}
}

func (v Value) Kind() Kind {
	return v.kind
}

func (v Value) IsNull() bool {
	return v.kind == KindNull
}

func (v Value) IsNumber() bool {
	return v.kind == KindInt || v.kind == KindFloat
}

func (v Value) IsArray() bool {
	return v.kind == KindArray
}

func (v Value) IsDocument() bool {
	return v.kind == KindDocument
}

func (v Value) AsBool() (bool, bool) {
	return v.b, v.kind == KindBool
}

func (v Value) AsInt() (int64, bool) {
	return v.i, v.kind == KindInt
}

func (v Value) AsFloat() (float64, bool) {
	return v.f, v.kind == KindFloat
}

// AsNumber returns the numeric value of an Int or Float as float64.
func (v Value) AsNumber() (float64, bool) {
	switch v.kind {
	case KindInt:
		return float64(v.i), true
	case KindFloat:
		return v.f, true
	}
	return 0, false
}

// AsInteger returns the value of an Int, or of a Float with no fractional part.
func (v Value) AsInteger() (int64, bool) {
	switch v.kind {
	case KindInt:
		return v.i, true
	case KindFloat:
		if v.f == math.Trunc(v.f) && !math.IsInf(v.f, 0) && !math.IsNaN(v.f) {
			return int64(v.f), true
		}
	}
	return 0, false
}

func (v Value) AsString() (string, bool) {
	return v.s, v.kind == KindString
}

func (v Value) AsBinary() (byte, []byte, bool) {
	if v.kind != KindBinary {
		return 0, nil, false
	}
	cp := make([]byte, len(v.bin))
	copy(cp, v.bin)
	return v.subtype, cp, true
}

func (v Value) AsTime() (time.Time, bool) {
	return v.t, v.kind == KindTimestamp
}

func (v Value) AsObjectID() (ObjectID, bool) {
	return v.oid, v.kind == KindObjectID
}

// AsArray returns a copy of the elements of an Array.
func (v Value) AsArray() ([]Value, bool) {
	if v.kind != KindArray {
		return nil, false
	}
	cp := make([]Value, len(v.arr))
	copy(cp, v.arr)
	return cp, true
}

// Len returns the element count of an Array, or -1 for other kinds.
func (v Value) Len() int {
	if v.kind != KindArray {
		return -1
	}
	return len(v.arr)
}

// Index returns the i-th element of an Array.
func (v Value) Index(i int) Value {
	return v.arr[i]
}

func (v Value) AsDocument() (Document, bool) {
	return v.doc, v.kind == KindDocument
}

// Truthy reports the boolean interpretation of v: Null, false and numeric
// zero are false, everything else is true.
func Truthy(v Value) bool {
	switch v.kind {
	case KindNull:
		return false
	case KindBool:
		return v.b
	case KindInt:
		return v.i != 0
	case KindFloat:
		return v.f != 0
	}
	return true
}

func (v Value) String() string {
	var b strings.Builder
	v.write(&b)
	return b.String()
}

func (v Value) write(b *strings.Builder) {
	switch v.kind {
	case KindNull:
		b.WriteString("null")
	case KindBool:
		b.WriteString(strconv.FormatBool(v.b))
	case KindInt:
		b.WriteString(strconv.FormatInt(v.i, 10))
	case KindFloat:
		b.WriteString(strconv.FormatFloat(v.f, 'g', -1, 64))
	case KindString:
		b.WriteString(strconv.Quote(v.s))
	case KindBinary:
		b.WriteString("BinData(")
		b.WriteString(strconv.Itoa(int(v.subtype)))
		b.WriteString(", ")
		b.WriteString(strconv.Itoa(len(v.bin)))
		b.WriteString(" bytes)")
	case KindTimestamp:
		b.WriteString("ISODate(")
		b.WriteString(strconv.Quote(v.t.Format(time.RFC3339Nano)))
		b.WriteString(")")
	case KindObjectID:
		b.WriteString("ObjectId(")
		b.WriteString(strconv.Quote(v.oid.Hex()))
		b.WriteString(")")
	case KindArray:
		b.WriteByte('[')
		for i, item := range v.arr {
			if i > 0 {
				b.WriteString(", ")
			}
			item.write(b)
		}
		b.WriteByte(']')
	case KindDocument:
		v.doc.write(b)
	}
}
