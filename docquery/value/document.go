package value

import (
	"strconv"
	"strings"
)

type Field struct {
	Key   string
	Value Value
}

// Document is an ordered map of unique string keys to Values.
// The zero Document is empty and ready to use.
type Document struct {
	fields []Field
}

// NewDocument builds a document from fields in order. A repeated key
// overwrites the earlier value in place.
func NewDocument(fields ...Field) Document {
	d := Document{fields: make([]Field, 0, len(fields))}
	for _, f := range fields {
		if i := d.index(f.Key); i >= 0 {
			d.fields[i].Value = f.Value
			continue
		}
		d.fields = append(d.fields, f)
	}
	return d
}

// F is a short constructor for a Field.
func F(key string, v Value) Field {
	return Field{Key: key, Value: v}
}

func (d Document) index(key string) int {
	for i := range d.fields {
		if d.fields[i].Key == key {
			return i
		}
	}
	return -1
}

func (d Document) Len() int {
	return len(d.fields)
}

func (d Document) Keys() []string {
	keys := make([]string, len(d.fields))
	for i, f := range d.fields {
		keys[i] = f.Key
	}
	return keys
}

// Fields returns a copy of the fields in insertion order.
func (d Document) Fields() []Field {
	cp := make([]Field, len(d.fields))
	copy(cp, d.fields)
	return cp
}

func (d Document) Get(key string) (Value, bool) {
	if i := d.index(key); i >= 0 {
		return d.fields[i].Value, true
	}
	return Value{}, false
}

func (d Document) Has(key string) bool {
	return d.index(key) >= 0
}

// Set returns a document with key bound to v. An existing key keeps its position.
func (d Document) Set(key string, v Value) Document {
	if i := d.index(key); i >= 0 {
		fields := d.Fields()
		fields[i].Value = v
		return Document{fields: fields}
	}
	fields := make([]Field, len(d.fields), len(d.fields)+1)
	copy(fields, d.fields)
	return Document{fields: append(fields, Field{Key: key, Value: v})}
}

func (d Document) Delete(key string) Document {
	i := d.index(key)
	if i < 0 {
		return d
	}
	fields := make([]Field, 0, len(d.fields)-1)
	fields = append(fields, d.fields[:i]...)
	fields = append(fields, d.fields[i+1:]...)
	return Document{fields: fields}
}

// Clone returns a document that shares no backing storage with d.
func (d Document) Clone() Document {
	return Document{fields: d.Fields()}
}

// Merge returns d with every field of other applied on top; fields of
// other win and new keys are appended in other's order.
func (d Document) Merge(other Document) Document {
	out := d
	for _, f := range other.fields {
		out = out.Set(f.Key, f.Value)
	}
	return out
}

// Lookup resolves a dotted path. See Lookup.
func (d Document) Lookup(path string) (Value, bool) {
	return Lookup(Doc(d), SplitPath(path))
}

func (d Document) SetPath(path string, v Value) Document {
	return setPath(d, SplitPath(path), v)
}

func (d Document) DeletePath(path string) Document {
	return deletePath(d, SplitPath(path))
}

func (d Document) Equal(other Document) bool {
	if len(d.fields) != len(other.fields) {
		return false
	}
	for i := range d.fields {
		if d.fields[i].Key != other.fields[i].Key {
			return false
		}
		if !Equal(d.fields[i].Value, other.fields[i].Value) {
			return false
		}
	}
	return true
}

func (d Document) String() string {
	var b strings.Builder
	d.write(&b)
	return b.String()
}

func (d Document) write(b *strings.Builder) {
	b.WriteByte('{')
	for i, f := range d.fields {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(strconv.Quote(f.Key))
		b.WriteString(": ")
		f.Value.write(b)
	}
	b.WriteByte('}')
}
