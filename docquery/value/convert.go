package value

import (
	"math"
	"reflect"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.mongodb.org/mongo-driver/v2/bson"
)

// FromGo converts a generic Go value into a Value. It understands the
// plain shapes produced by encoding/json (map[string]any, []any, float64),
// the MongoDB driver's bson types (D, M, A, ObjectID, Binary, DateTime),
// uuid.UUID, time.Time and any Identifier. Keys of unordered maps are
// sorted so the result is deterministic.
func FromGo(x any) (Value, error) {
	switch t := x.(type) {
	case nil:
		return Null(), nil
	case Value:
		return t, nil
	case Document:
		return Doc(t), nil
	case *Document:
		if t == nil {
			return Null(), nil
		}
		return Doc(*t), nil
	case bool:
		return Bool(t), nil
	case int:
		return Int(int64(t)), nil
	case int8:
		return Int(int64(t)), nil
	case int16:
		return Int(int64(t)), nil
	case int32:
		return Int(int64(t)), nil
	case int64:
		return Int(t), nil
	case uint:
		return fromUint(uint64(t))
	case uint8:
		return Int(int64(t)), nil
	case uint16:
		return Int(int64(t)), nil
	case uint32:
		return Int(int64(t)), nil
	case uint64:
		return fromUint(t)
	case float32:
		return Float(float64(t)), nil
	case float64:
		return Float(t), nil
	case string:
		return String(t), nil
	case []byte:
		return Binary(0, t), nil
	case time.Time:
		return Timestamp(t), nil
	case uuid.UUID:
		return Binary(BinaryUUID, t[:]), nil
	case ObjectID:
		return OID(t), nil
	case bson.ObjectID:
		return OID(ObjectID(t)), nil
	case Identifier:
		return OID(ObjectID(t.IdentifierBytes())), nil
	case bson.Binary:
		return Binary(t.Subtype, t.Data), nil
	case bson.DateTime:
		return Timestamp(t.Time()), nil
	case bson.Timestamp:
		return Timestamp(time.Unix(int64(t.T), 0)), nil
	case bson.D:
		return fromBsonD(t)
	case bson.M:
		return fromMap(t)
	case map[string]any:
		return fromMap(t)
	case bson.A:
		return fromSlice(t)
	case []any:
		return fromSlice(t)
	case []Value:
		return Array(t...), nil
	case []map[string]any:
		items := make([]Value, len(t))
		for i, m := range t {
			v, err := fromMap(m)
			if err != nil {
				return Value{}, err
			}
			items[i] = v
		}
		return Value{kind: KindArray, arr: items}, nil
	case []string:
		items := make([]Value, len(t))
		for i, s := range t {
			items[i] = String(s)
		}
		return Value{kind: KindArray, arr: items}, nil
	}
	return fromReflect(reflect.ValueOf(x))
}

// MustFromGo is FromGo for literals known to be convertible; it panics otherwise.
func MustFromGo(x any) Value {
	v, err := FromGo(x)
	if err != nil {
		panic(err)
	}
	return v
}

// DocumentFromGo converts x and requires the result to be a document.
func DocumentFromGo(x any) (Document, error) {
	v, err := FromGo(x)
	if err != nil {
		return Document{}, err
	}
	d, ok := v.AsDocument()
	if !ok {
		return Document{}, errors.Errorf("expected a document, got %s", v.Kind())
	}
	return d, nil
}

// MustDocument is DocumentFromGo for literals; it panics on failure.
func MustDocument(x any) Document {
	d, err := DocumentFromGo(x)
	if err != nil {
		panic(err)
	}
	return d
}

func fromUint(u uint64) (Value, error) {
	if u > math.MaxInt64 {
		return Float(float64(u)), nil
	}
	return Int(int64(u)), nil
}

func fromBsonD(d bson.D) (Value, error) {
	fields := make([]Field, 0, len(d))
	for _, e := range d {
		v, err := FromGo(e.Value)
		if err != nil {
			return Value{}, errors.Wrapf(err, "field %q", e.Key)
		}
		fields = append(fields, Field{Key: e.Key, Value: v})
	}
	return Doc(NewDocument(fields...)), nil
}

func fromMap[M ~map[string]any](m M) (Value, error) {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	fields := make([]Field, 0, len(m))
	for _, k := range keys {
		v, err := FromGo(m[k])
		if err != nil {
			return Value{}, errors.Wrapf(err, "field %q", k)
		}
		fields = append(fields, Field{Key: k, Value: v})
	}
	return Doc(Document{fields: fields}), nil
}

func fromSlice[S ~[]any](s S) (Value, error) {
	items := make([]Value, len(s))
	for i, x := range s {
		v, err := FromGo(x)
		if err != nil {
			return Value{}, errors.Wrapf(err, "element %d", i)
		}
		items[i] = v
	}
	return Value{kind: KindArray, arr: items}, nil
}

func fromReflect(rv reflect.Value) (Value, error) {
	switch rv.Kind() {
	case reflect.Pointer, reflect.Interface:
		if rv.IsNil() {
			return Null(), nil
		}
		return FromGo(rv.Elem().Interface())
	case reflect.Slice, reflect.Array:
		items := make([]Value, rv.Len())
		for i := range items {
			v, err := FromGo(rv.Index(i).Interface())
			if err != nil {
				return Value{}, errors.Wrapf(err, "element %d", i)
			}
			items[i] = v
		}
		return Value{kind: KindArray, arr: items}, nil
	case reflect.Map:
		if rv.Type().Key().Kind() != reflect.String {
			break
		}
		m := make(map[string]any, rv.Len())
		iter := rv.MapRange()
		for iter.Next() {
			m[iter.Key().String()] = iter.Value().Interface()
		}
		return fromMap(m)
	case reflect.String:
		return String(rv.String()), nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return Int(rv.Int()), nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return fromUint(rv.Uint())
	case reflect.Float32, reflect.Float64:
		return Float(rv.Float()), nil
	case reflect.Bool:
		return Bool(rv.Bool()), nil
	}
	if !rv.IsValid() {
		return Null(), nil
	}
	return Value{}, errors.Errorf("unsupported Go type %s", rv.Type())
}

// ToGo converts a Value back into driver-compatible Go values: documents
// become bson.D so key order survives, arrays bson.A, identifiers
// bson.ObjectID, timestamps time.Time.
func ToGo(v Value) any {
	switch v.kind {
	case KindNull:
		return nil
	case KindBool:
		return v.b
	case KindInt:
		return v.i
	case KindFloat:
		return v.f
	case KindString:
		return v.s
	case KindBinary:
		_, data, _ := v.AsBinary()
		return bson.Binary{Subtype: v.subtype, Data: data}
	case KindTimestamp:
		return v.t
	case KindObjectID:
		return v.oid.BSON()
	case KindArray:
		out := make(bson.A, len(v.arr))
		for i, el := range v.arr {
			out[i] = ToGo(el)
		}
		return out
	case KindDocument:
		return DocumentToBSON(v.doc)
	}
	return nil
}

func DocumentToBSON(d Document) bson.D {
	out := make(bson.D, len(d.fields))
	for i, f := range d.fields {
		out[i] = bson.E{Key: f.Key, Value: ToGo(f.Value)}
	}
	return out
}

// ToPlain converts a Value into the shapes encoding/json produces:
// map[string]any, []any, float64/int64, string, bool, nil. Identifiers
// become their hex string and timestamps RFC 3339 strings. Used where a
// consumer only understands plain JSON data.
func ToPlain(v Value) any {
	switch v.kind {
	case KindNull:
		return nil
	case KindBool:
		return v.b
	case KindInt:
		return v.i
	case KindFloat:
		return v.f
	case KindString:
		return v.s
	case KindBinary:
		_, data, _ := v.AsBinary()
		return data
	case KindTimestamp:
		return v.t.Format(time.RFC3339Nano)
	case KindObjectID:
		return v.oid.Hex()
	case KindArray:
		out := make([]any, len(v.arr))
		for i, el := range v.arr {
			out[i] = ToPlain(el)
		}
		return out
	case KindDocument:
		return DocumentToMap(v.doc)
	}
	return nil
}

func DocumentToMap(d Document) map[string]any {
	out := make(map[string]any, len(d.fields))
	for _, f := range d.fields {
		out[f.Key] = ToPlain(f.Value)
	}
	return out
}
