package pipeline

import (
	"sort"

	"github.com/krew-solutions/ascetic-docquery-go/docquery/value"
)

// sortValue picks the value a document sorts by. Arrays sort by their
// smallest element ascending and their largest descending.
func sortValue(d value.Document, path string, desc bool) value.Value {
	v, ok := d.Lookup(path)
	if !ok {
		return value.Null()
	}
	items, ok := v.AsArray()
	if !ok {
		return v
	}
	if len(items) == 0 {
		return value.Null()
	}
	best := items[0]
	for _, item := range items[1:] {
		c := value.SortCompare(item, best)
		if (desc && c > 0) || (!desc && c < 0) {
			best = item
		}
	}
	return best
}

func (e *Executor) sort(s Sort, docs []value.Document) []value.Document {
	keys := make([]SortKey, len(s.Keys))
	for i, k := range s.Keys {
		keys[i] = SortKey{Path: e.resolve(k.Path), Desc: k.Desc}
	}

	type row struct {
		doc  value.Document
		vals []value.Value
	}
	rows := make([]row, len(docs))
	for i, d := range docs {
		vals := make([]value.Value, len(keys))
		for j, k := range keys {
			vals[j] = sortValue(d, k.Path, k.Desc)
		}
		rows[i] = row{d, vals}
	}

	sort.SliceStable(rows, func(a, b int) bool {
		for j, k := range keys {
			c := value.SortCompare(rows[a].vals[j], rows[b].vals[j])
			if k.Desc {
				c = -c
			}
			if c != 0 {
				return c < 0
			}
		}
		return false
	})

	out := make([]value.Document, len(rows))
	for i, r := range rows {
		out[i] = r.doc
	}
	return out
}

func skip(n int64, docs []value.Document) []value.Document {
	if n >= int64(len(docs)) {
		return []value.Document{}
	}
	return docs[n:]
}

func limit(n int64, docs []value.Document) []value.Document {
	if n >= int64(len(docs)) {
		return docs
	}
	return docs[:n]
}

func (e *Executor) sample(s Sample, docs []value.Document) []value.Document {
	e.randMu.Lock()
	perm := e.rand.Perm(len(docs))
	e.randMu.Unlock()

	n := len(docs)
	if s.Size < int64(n) {
		n = int(s.Size)
	}
	out := make([]value.Document, n)
	for i := range out {
		out[i] = docs[perm[i]]
	}
	return out
}

func count(s Count, docs []value.Document) []value.Document {
	if len(docs) == 0 {
		return []value.Document{}
	}
	return []value.Document{value.NewDocument(value.F(s.Field, value.Int(int64(len(docs)))))}
}

// unwind emits one document per array element. Missing, null and empty
// arrays are dropped unless PreserveNullAndEmptyArrays is set, as are
// non-array values.
func unwind(s Unwind, docs []value.Document) []value.Document {
	out := make([]value.Document, 0, len(docs))
	for _, d := range docs {
		v, _ := d.Lookup(s.Path)
		items, isArray := v.AsArray()
		if isArray && len(items) > 0 {
			for i, item := range items {
				res := d.SetPath(s.Path, item)
				if s.IncludeArrayIndex != "" {
					res = res.SetPath(s.IncludeArrayIndex, value.Int(int64(i)))
				}
				out = append(out, res)
			}
			continue
		}
		if !s.PreserveNullAndEmptyArrays {
			continue
		}
		res := d
		if isArray {
			res = res.DeletePath(s.Path)
		}
		if s.IncludeArrayIndex != "" {
			res = res.SetPath(s.IncludeArrayIndex, value.Null())
		}
		out = append(out, res)
	}
	return out
}
