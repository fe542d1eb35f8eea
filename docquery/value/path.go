package value

import (
	"strconv"
	"strings"
)

func SplitPath(path string) []string {
	if path == "" {
		return nil
	}
	return strings.Split(path, ".")
}

func arrayIndex(seg string) (int, bool) {
	if seg == "" || (len(seg) > 1 && seg[0] == '0') {
		return 0, false
	}
	idx, err := strconv.Atoi(seg)
	if err != nil || idx < 0 {
		return 0, false
	}
	return idx, true
}

// Lookup resolves path segments against v the way field references are
// resolved inside expressions: documents are descended by key, numeric
// segments index arrays, and any other segment applied to an array is
// broadcast over its elements, yielding an array of the values found.
func Lookup(v Value, segs []string) (Value, bool) {
	if len(segs) == 0 {
		return v, true
	}
	seg := segs[0]
	switch v.kind {
	case KindDocument:
		child, ok := v.doc.Get(seg)
		if !ok {
			return Value{}, false
		}
		return Lookup(child, segs[1:])
	case KindArray:
		if idx, ok := arrayIndex(seg); ok {
			if idx >= len(v.arr) {
				return Value{}, false
			}
			return Lookup(v.arr[idx], segs[1:])
		}
		found := make([]Value, 0, len(v.arr))
		for _, el := range v.arr {
			if el.kind != KindDocument && el.kind != KindArray {
				continue
			}
			if r, ok := Lookup(el, segs); ok {
				found = append(found, r)
			}
		}
		return Value{kind: KindArray, arr: found}, true
	}
	return Value{}, false
}

// LookupAll collects every value reachable by path with array-broadcast
// semantics: a non-numeric segment applied to an array visits each element.
// Arrays reached at the end of the path are returned whole, not expanded.
// An empty result means the path does not exist in v.
func LookupAll(v Value, segs []string) []Value {
	return lookupAll(v, segs, nil)
}

func lookupAll(cur Value, segs []string, out []Value) []Value {
	if len(segs) == 0 {
		return append(out, cur)
	}
	seg := segs[0]
	switch cur.kind {
	case KindDocument:
		if child, ok := cur.doc.Get(seg); ok {
			return lookupAll(child, segs[1:], out)
		}
	case KindArray:
		if idx, ok := arrayIndex(seg); ok {
			if idx < len(cur.arr) {
				out = lookupAll(cur.arr[idx], segs[1:], out)
			}
			return out
		}
		for _, el := range cur.arr {
			if el.kind == KindDocument {
				out = lookupAll(el, segs, out)
			}
		}
	}
	return out
}

func setPath(d Document, segs []string, v Value) Document {
	if len(segs) == 0 {
		return d
	}
	if len(segs) == 1 {
		return d.Set(segs[0], v)
	}
	child, _ := d.Get(segs[0])
	inner, ok := child.AsDocument()
	if !ok {
		inner = Document{}
	}
	return d.Set(segs[0], Doc(setPath(inner, segs[1:], v)))
}

func deletePath(d Document, segs []string) Document {
	if len(segs) == 0 {
		return d
	}
	if len(segs) == 1 {
		return d.Delete(segs[0])
	}
	child, ok := d.Get(segs[0])
	if !ok {
		return d
	}
	switch child.kind {
	case KindDocument:
		return d.Set(segs[0], Doc(deletePath(child.doc, segs[1:])))
	case KindArray:
		items := make([]Value, len(child.arr))
		for i, el := range child.arr {
			if el.kind == KindDocument {
				items[i] = Doc(deletePath(el.doc, segs[1:]))
			} else {
				items[i] = el
			}
		}
		return d.Set(segs[0], Value{kind: KindArray, arr: items})
	}
	return d
}
