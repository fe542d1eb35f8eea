package pipeline

import (
	"math"
	"strconv"

	"github.com/krew-solutions/ascetic-docquery-go/docquery/expr"
	"github.com/krew-solutions/ascetic-docquery-go/docquery/value"
)

type accState struct {
	sumInt   int64
	sumFloat float64
	isFloat  bool
	n        int64
	val      value.Value
	set      bool
	items    []value.Value
}

type bucket struct {
	key  value.Value
	accs []accState
}

// bucketKey narrows the search for an equal group key. Numbers share a key
// across int and float representations; documents and arrays share one key
// and are told apart with value.Equal.
func bucketKey(v value.Value) string {
	if f, ok := v.AsNumber(); ok {
		if math.IsNaN(f) {
			return "n:NaN"
		}
		return "n:" + strconv.FormatFloat(f, 'g', -1, 64)
	}
	switch v.Kind() {
	case value.KindDocument, value.KindArray:
		return "c"
	}
	return v.Kind().String() + ":" + v.String()
}

func (e *Executor) group(s Group, docs []value.Document, vars expr.Vars) ([]value.Document, error) {
	id := s.ID
	if ref, ok := id.(expr.FieldRef); ok {
		id = expr.FieldRef{Path: e.resolve(ref.Path)}
	}

	index := make(map[string][]int)
	var buckets []*bucket
	for _, d := range docs {
		key, err := e.evaluator.EvaluateWith(id, d, vars)
		if err != nil {
			return nil, err
		}
		b := findBucket(buckets, index, key)
		if b == nil {
			b = &bucket{key: key, accs: make([]accState, len(s.Accumulators))}
			k := bucketKey(key)
			index[k] = append(index[k], len(buckets))
			buckets = append(buckets, b)
		}
		for i, acc := range s.Accumulators {
			if err := e.fold(&b.accs[i], acc, d, vars); err != nil {
				return nil, err
			}
		}
	}

	out := make([]value.Document, 0, len(buckets))
	for _, b := range buckets {
		res := value.NewDocument(value.F("_id", b.key))
		for i, acc := range s.Accumulators {
			res = res.Set(acc.Field, b.accs[i].result(acc.Op))
		}
		out = append(out, res)
	}
	return out, nil
}

func findBucket(buckets []*bucket, index map[string][]int, key value.Value) *bucket {
	for _, i := range index[bucketKey(key)] {
		if value.Equal(buckets[i].key, key) {
			return buckets[i]
		}
	}
	return nil
}

func (e *Executor) fold(st *accState, acc Accumulator, d value.Document, vars expr.Vars) error {
	if acc.Op == AccCount {
		st.n++
		return nil
	}
	v, present, err := e.evalField(acc.Arg, d, vars)
	if err != nil {
		return err
	}

	switch acc.Op {
	case AccSum:
		st.add(v)
	case AccAvg:
		if _, ok := v.AsNumber(); ok {
			st.add(v)
			st.n++
		}
	case AccMin, AccMax:
		if !present || v.IsNull() {
			return nil
		}
		c := value.SortCompare(v, st.val)
		if !st.set || (acc.Op == AccMin && c < 0) || (acc.Op == AccMax && c > 0) {
			st.val, st.set = v, true
		}
	case AccFirst:
		if !st.set {
			st.val, st.set = v, true
		}
	case AccLast:
		st.val, st.set = v, true
	case AccPush:
		if present {
			st.items = append(st.items, v)
		}
	case AccAddToSet:
		if present && !containsValue(st.items, v) {
			st.items = append(st.items, v)
		}
	}
	return nil
}

// add sums numbers as integers until a float appears or the integer sum
// would overflow. Other values are ignored.
func (st *accState) add(v value.Value) {
	if i, ok := v.AsInt(); ok {
		s := st.sumInt + i
		if (i > 0 && s < st.sumInt) || (i < 0 && s > st.sumInt) {
			st.sumFloat += float64(i)
			st.isFloat = true
			return
		}
		st.sumInt = s
		return
	}
	if f, ok := v.AsNumber(); ok {
		st.sumFloat += f
		st.isFloat = true
	}
}

func (st *accState) sum() float64 {
	return st.sumFloat + float64(st.sumInt)
}

func (st *accState) result(op AccumulatorOp) value.Value {
	switch op {
	case AccSum:
		if st.isFloat {
			return value.Float(st.sum())
		}
		return value.Int(st.sumInt)
	case AccAvg:
		if st.n == 0 {
			return value.Null()
		}
		return value.Float(st.sum() / float64(st.n))
	case AccMin, AccMax, AccFirst, AccLast:
		if !st.set {
			return value.Null()
		}
		return st.val
	case AccPush, AccAddToSet:
		return value.Array(st.items...)
	case AccCount:
		return value.Int(st.n)
	}
	return value.Null()
}

func containsValue(items []value.Value, v value.Value) bool {
	for _, item := range items {
		if value.Equal(item, v) {
			return true
		}
	}
	return false
}
