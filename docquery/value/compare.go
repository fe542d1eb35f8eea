package value

import (
	"bytes"
	"cmp"
	"math"
	"strings"

	"github.com/krew-solutions/ascetic-docquery-go/docquery/queryerr"
)

// Equal reports value equality. Int and Float compare by numeric value;
// documents compare field by field in order; Null equals only Null.
func Equal(a, b Value) bool {
	if a.IsNumber() && b.IsNumber() {
		if isNaN(a) || isNaN(b) {
			return isNaN(a) && isNaN(b)
		}
		return compareNumbers(a, b) == 0
	}
	if a.kind != b.kind {
		return false
	}
	switch a.kind {
	case KindNull:
		return true
	case KindBool:
		return a.b == b.b
	case KindString:
		return a.s == b.s
	case KindBinary:
		return a.subtype == b.subtype && bytes.Equal(a.bin, b.bin)
	case KindTimestamp:
		return a.t.Equal(b.t)
	case KindObjectID:
		return a.oid == b.oid
	case KindArray:
		if len(a.arr) != len(b.arr) {
			return false
		}
		for i := range a.arr {
			if !Equal(a.arr[i], b.arr[i]) {
				return false
			}
		}
		return true
	case KindDocument:
		return a.doc.Equal(b.doc)
	}
	return false
}

// Contains reports whether arr is an Array holding an element equal to v.
func Contains(arr Value, v Value) bool {
	if arr.kind != KindArray {
		return false
	}
	for _, el := range arr.arr {
		if Equal(el, v) {
			return true
		}
	}
	return false
}

func isNaN(v Value) bool {
	return v.kind == KindFloat && math.IsNaN(v.f)
}

func compareNumbers(a, b Value) int {
	if a.kind == KindInt && b.kind == KindInt {
		return cmp.Compare(a.i, b.i)
	}
	x, _ := a.AsNumber()
	y, _ := b.AsNumber()
	// cmp.Compare orders NaN before every other number.
	return cmp.Compare(x, y)
}

// class groups kinds that are mutually comparable and gives the canonical
// cross-type sort order.
func class(k Kind) int {
	switch k {
	case KindNull:
		return 1
	case KindInt, KindFloat:
		return 2
	case KindString:
		return 3
	case KindDocument:
		return 4
	case KindArray:
		return 5
	case KindBinary:
		return 6
	case KindObjectID:
		return 7
	case KindBool:
		return 8
	case KindTimestamp:
		return 9
	}
	return 0
}

// Comparable reports whether a and b belong to the same ordering class.
func Comparable(a, b Value) bool {
	return class(a.kind) == class(b.kind)
}

// Compare orders two values of the same class. Values of different
// classes are not comparable and yield a type mismatch error.
func Compare(a, b Value) (int, error) {
	if !Comparable(a, b) {
		return 0, queryerr.TypeMismatch("compare", "cannot compare %s with %s", a.kind, b.kind)
	}
	return SortCompare(a, b), nil
}

// SortCompare is a total order over all values: values of different kinds
// are ordered by class (null < numbers < string < object < array < binData
// < objectId < bool < date), values of the same class naturally.
func SortCompare(a, b Value) int {
	ca, cb := class(a.kind), class(b.kind)
	if ca != cb {
		return cmp.Compare(ca, cb)
	}
	switch a.kind {
	case KindNull:
		return 0
	case KindInt, KindFloat:
		return compareNumbers(a, b)
	case KindString:
		return strings.Compare(a.s, b.s)
	case KindBool:
		switch {
		case a.b == b.b:
			return 0
		case !a.b:
			return -1
		}
		return 1
	case KindTimestamp:
		return a.t.Compare(b.t)
	case KindObjectID:
		return a.oid.Compare(b.oid)
	case KindBinary:
		if c := cmp.Compare(len(a.bin), len(b.bin)); c != 0 {
			return c
		}
		if c := cmp.Compare(a.subtype, b.subtype); c != 0 {
			return c
		}
		return bytes.Compare(a.bin, b.bin)
	case KindArray:
		for i := 0; i < len(a.arr) && i < len(b.arr); i++ {
			if c := SortCompare(a.arr[i], b.arr[i]); c != 0 {
				return c
			}
		}
		return cmp.Compare(len(a.arr), len(b.arr))
	case KindDocument:
		af, bf := a.doc.fields, b.doc.fields
		for i := 0; i < len(af) && i < len(bf); i++ {
			if c := SortCompare(af[i].Value, bf[i].Value); c != 0 {
				return c
			}
			if c := strings.Compare(af[i].Key, bf[i].Key); c != 0 {
				return c
			}
		}
		return cmp.Compare(len(af), len(bf))
	}
	return 0
}
