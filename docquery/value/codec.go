package value

import (
	"bytes"

	"github.com/pkg/errors"
	"github.com/vmihailenco/msgpack/v5"
	"github.com/vmihailenco/msgpack/v5/msgpcode"
	"go.mongodb.org/mongo-driver/v2/bson"
)

// MarshalExtJSON encodes d as relaxed MongoDB Extended JSON. Numbers stay
// plain JSON numbers so the output is usable by JSON-aware stores.
func MarshalExtJSON(d Document) ([]byte, error) {
	out, err := bson.MarshalExtJSON(DocumentToBSON(d), false, false)
	if err != nil {
		return nil, errors.Wrap(err, "encode extended json")
	}
	return out, nil
}

// UnmarshalExtJSON decodes a single Extended JSON document, canonical or relaxed.
func UnmarshalExtJSON(data []byte) (Document, error) {
	var d bson.D
	if err := bson.UnmarshalExtJSON(data, false, &d); err != nil {
		return Document{}, errors.Wrap(err, "decode extended json")
	}
	return DocumentFromGo(d)
}

// UnmarshalExtJSONValue decodes any Extended JSON value (object, array or
// scalar) by wrapping it in a single-field document.
func UnmarshalExtJSONValue(data []byte) (Value, error) {
	var buf bytes.Buffer
	buf.WriteString(`{"v":`)
	buf.Write(data)
	buf.WriteString(`}`)
	d, err := UnmarshalExtJSON(buf.Bytes())
	if err != nil {
		return Value{}, err
	}
	v, _ := d.Get("v")
	return v, nil
}

const msgpackOIDKey = "$oid"

// MarshalMsgpack encodes d as a msgpack map, keeping field order.
// Identifiers are written as {"$oid": hex}.
func MarshalMsgpack(d Document) ([]byte, error) {
	var buf bytes.Buffer
	enc := msgpack.NewEncoder(&buf)
	if err := encodeMsgpackDocument(enc, d); err != nil {
		return nil, errors.Wrap(err, "encode msgpack")
	}
	return buf.Bytes(), nil
}

func UnmarshalMsgpack(data []byte) (Document, error) {
	dec := msgpack.NewDecoder(bytes.NewReader(data))
	return DecodeMsgpack(dec)
}

// EncodeMsgpack writes d to an existing encoder so documents can be streamed.
func EncodeMsgpack(enc *msgpack.Encoder, d Document) error {
	return encodeMsgpackDocument(enc, d)
}

// DecodeMsgpack reads one document from a stream.
func DecodeMsgpack(dec *msgpack.Decoder) (Document, error) {
	v, err := decodeMsgpackValue(dec)
	if err != nil {
		return Document{}, errors.Wrap(err, "decode msgpack")
	}
	d, ok := v.AsDocument()
	if !ok {
		return Document{}, errors.Errorf("decode msgpack: expected a map, got %s", v.Kind())
	}
	return d, nil
}

func encodeMsgpackDocument(enc *msgpack.Encoder, d Document) error {
	if err := enc.EncodeMapLen(d.Len()); err != nil {
		return err
	}
	for _, f := range d.fields {
		if err := enc.EncodeString(f.Key); err != nil {
			return err
		}
		if err := encodeMsgpackValue(enc, f.Value); err != nil {
			return err
		}
	}
	return nil
}

func encodeMsgpackValue(enc *msgpack.Encoder, v Value) error {
	switch v.kind {
	case KindNull:
		return enc.EncodeNil()
	case KindBool:
		return enc.EncodeBool(v.b)
	case KindInt:
		return enc.EncodeInt(v.i)
	case KindFloat:
		return enc.EncodeFloat64(v.f)
	case KindString:
		return enc.EncodeString(v.s)
	case KindBinary:
		return enc.EncodeBytes(v.bin)
	case KindTimestamp:
		return enc.EncodeTime(v.t)
	case KindObjectID:
		return encodeMsgpackDocument(enc, NewDocument(F(msgpackOIDKey, String(v.oid.Hex()))))
	case KindArray:
		if err := enc.EncodeArrayLen(len(v.arr)); err != nil {
			return err
		}
		for _, el := range v.arr {
			if err := encodeMsgpackValue(enc, el); err != nil {
				return err
			}
		}
		return nil
	case KindDocument:
		return encodeMsgpackDocument(enc, v.doc)
	}
	return errors.Errorf("cannot encode %s", v.kind)
}

func isMsgpackMap(c byte) bool {
	return msgpcode.IsFixedMap(c) || c == msgpcode.Map16 || c == msgpcode.Map32
}

func isMsgpackArray(c byte) bool {
	return msgpcode.IsFixedArray(c) || c == msgpcode.Array16 || c == msgpcode.Array32
}

func decodeMsgpackValue(dec *msgpack.Decoder) (Value, error) {
	c, err := dec.PeekCode()
	if err != nil {
		return Value{}, err
	}
	switch {
	case isMsgpackMap(c):
		n, err := dec.DecodeMapLen()
		if err != nil {
			return Value{}, err
		}
		fields := make([]Field, 0, n)
		for i := 0; i < n; i++ {
			key, err := dec.DecodeString()
			if err != nil {
				return Value{}, err
			}
			v, err := decodeMsgpackValue(dec)
			if err != nil {
				return Value{}, err
			}
			fields = append(fields, Field{Key: key, Value: v})
		}
		if len(fields) == 1 && fields[0].Key == msgpackOIDKey {
			if hex, ok := fields[0].Value.AsString(); ok {
				if id, err := ObjectIDFromHex(hex); err == nil {
					return OID(id), nil
				}
			}
		}
		return Doc(NewDocument(fields...)), nil
	case isMsgpackArray(c):
		n, err := dec.DecodeArrayLen()
		if err != nil {
			return Value{}, err
		}
		if n < 0 {
			return Null(), nil
		}
		items := make([]Value, n)
		for i := range items {
			if items[i], err = decodeMsgpackValue(dec); err != nil {
				return Value{}, err
			}
		}
		return Value{kind: KindArray, arr: items}, nil
	}
	x, err := dec.DecodeInterface()
	if err != nil {
		return Value{}, err
	}
	return FromGo(x)
}
