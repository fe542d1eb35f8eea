package pipeline

import (
	"github.com/krew-solutions/ascetic-docquery-go/docquery/expr"
	"github.com/krew-solutions/ascetic-docquery-go/docquery/queryerr"
	"github.com/krew-solutions/ascetic-docquery-go/docquery/value"
)

// pathNode is a trie of dotted paths. A leaf selects the whole subtree.
type pathNode struct {
	leaf     bool
	children map[string]*pathNode
}

func (n *pathNode) add(path string) {
	cur := n
	for _, seg := range value.SplitPath(path) {
		if cur.children == nil {
			cur.children = make(map[string]*pathNode)
		}
		next, ok := cur.children[seg]
		if !ok {
			next = &pathNode{}
			cur.children[seg] = next
		}
		cur = next
	}
	cur.leaf = true
}

func (n *pathNode) has(key string) bool {
	_, ok := n.children[key]
	return ok
}

// include keeps the selected fields of d in their original order.
func include(d value.Document, n *pathNode) value.Document {
	out := value.NewDocument()
	for _, f := range d.Fields() {
		child, ok := n.children[f.Key]
		if !ok {
			continue
		}
		if child.leaf {
			out = out.Set(f.Key, f.Value)
			continue
		}
		if v, ok := includeValue(f.Value, child); ok {
			out = out.Set(f.Key, v)
		}
	}
	return out
}

func includeValue(v value.Value, n *pathNode) (value.Value, bool) {
	if d, ok := v.AsDocument(); ok {
		return value.Doc(include(d, n)), true
	}
	items, ok := v.AsArray()
	if !ok {
		return value.Value{}, false
	}
	out := make([]value.Value, 0, len(items))
	for _, item := range items {
		if projected, ok := includeValue(item, n); ok {
			out = append(out, projected)
		}
	}
	return value.Array(out...), true
}

func exclude(d value.Document, n *pathNode) value.Document {
	out := value.NewDocument()
	for _, f := range d.Fields() {
		child, ok := n.children[f.Key]
		switch {
		case !ok:
			out = out.Set(f.Key, f.Value)
		case child.leaf:
		default:
			out = out.Set(f.Key, excludeValue(f.Value, child))
		}
	}
	return out
}

func excludeValue(v value.Value, n *pathNode) value.Value {
	if d, ok := v.AsDocument(); ok {
		return value.Doc(exclude(d, n))
	}
	items, ok := v.AsArray()
	if !ok {
		return v
	}
	out := make([]value.Value, len(items))
	for i, item := range items {
		out[i] = excludeValue(item, n)
	}
	return value.Array(out...)
}

func (e *Executor) project(s Project, docs []value.Document, vars expr.Vars) ([]value.Document, error) {
	tree := &pathNode{}
	idExcluded, idComputed := false, false
	for _, pf := range s.Fields {
		switch pf.Mode {
		case Include, Exclude:
			if s.Exclusion && pf.Mode == Include {
				continue
			}
			tree.add(pf.Path)
			if pf.Path == "_id" {
				idExcluded = pf.Mode == Exclude
			}
		case Compute:
			idComputed = idComputed || pf.Path == "_id"
		}
	}

	out := make([]value.Document, 0, len(docs))
	if s.Exclusion {
		for _, d := range docs {
			out = append(out, exclude(d, tree))
		}
		return out, nil
	}

	if !idExcluded && !idComputed && !tree.has("_id") {
		tree.add("_id")
	}
	if idExcluded {
		delete(tree.children, "_id")
	}
	for _, d := range docs {
		res := include(d, tree)
		for _, pf := range s.Fields {
			if pf.Mode != Compute {
				continue
			}
			v, present, err := e.evalField(pf.Expr, d, vars)
			if err != nil {
				return nil, err
			}
			if present {
				res = res.SetPath(pf.Path, v)
			}
		}
		out = append(out, res)
	}
	return out, nil
}

func (e *Executor) addFields(s AddFields, docs []value.Document, vars expr.Vars) ([]value.Document, error) {
	out := make([]value.Document, 0, len(docs))
	for _, d := range docs {
		res := d
		for _, f := range s.Fields {
			v, present, err := e.evalField(f.Expr, d, vars)
			if err != nil {
				return nil, err
			}
			if present {
				res = res.SetPath(f.Path, v)
			}
		}
		out = append(out, res)
	}
	return out, nil
}

func (e *Executor) unset(s Unset, docs []value.Document) []value.Document {
	paths := make([]string, len(s.Paths))
	for i, p := range s.Paths {
		paths[i] = e.resolve(p)
	}
	out := make([]value.Document, 0, len(docs))
	for _, d := range docs {
		for _, p := range paths {
			d = d.DeletePath(p)
		}
		out = append(out, d)
	}
	return out
}

func (e *Executor) replaceRoot(s ReplaceRoot, docs []value.Document, vars expr.Vars) ([]value.Document, error) {
	out := make([]value.Document, 0, len(docs))
	for _, d := range docs {
		v, err := e.evaluator.EvaluateWith(s.NewRoot, d, vars)
		if err != nil {
			return nil, err
		}
		root, ok := v.AsDocument()
		if !ok {
			return nil, queryerr.TypeMismatch(s.Alias, "the new root must be a document, got %s", v.Kind())
		}
		out = append(out, root)
	}
	return out, nil
}
