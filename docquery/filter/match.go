package filter

import (
	"go.uber.org/zap"

	"github.com/krew-solutions/ascetic-docquery-go/docquery/expr"
	"github.com/krew-solutions/ascetic-docquery-go/docquery/queryerr"
	"github.com/krew-solutions/ascetic-docquery-go/docquery/value"
)

type MatcherOption func(*Matcher)

func WithLogger(logger *zap.Logger) MatcherOption {
	return func(m *Matcher) {
		m.logger = logger
	}
}

func WithEvaluator(ev *expr.Evaluator) MatcherOption {
	return func(m *Matcher) {
		m.evaluator = ev
	}
}

// Matcher decides whether documents satisfy parsed filters. It is
// stateless and safe for concurrent use.
type Matcher struct {
	logger    *zap.Logger
	evaluator *expr.Evaluator
}

func NewMatcher(opts ...MatcherOption) *Matcher {
	m := &Matcher{
		logger:    zap.NewNop(),
		evaluator: expr.NewEvaluator(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

var defaultMatcher = NewMatcher()

// Match reports whether doc satisfies node.
func Match(node Node, doc value.Document) (bool, error) {
	return defaultMatcher.Match(node, doc)
}

func (m *Matcher) Match(node Node, doc value.Document) (bool, error) {
	switch n := node.(type) {
	case Logical:
		return m.matchLogical(n, doc)

	case Not:
		ok, err := m.Match(n.Child, doc)
		if err != nil {
			return false, err
		}
		return !ok, nil

	case Field:
		cands := value.LookupAll(value.Doc(doc), value.SplitPath(n.Path))
		ok, err := m.matchCondition(n.Cond, cands)
		if err != nil {
			m.logger.Debug("field condition failed", zap.String("path", n.Path), zap.Error(err))
		}
		return ok, err

	case ExprNode:
		v, err := m.evaluator.Evaluate(n.Expr, doc)
		if err != nil {
			return false, err
		}
		return value.Truthy(v), nil

	case Text:
		return matchText(n, doc), nil

	case JSONSchema:
		return matchJSONSchema(n, doc)
	}
	return false, queryerr.Malformed(nil, "filter", "unexpected node %T", node)
}

func (m *Matcher) matchLogical(n Logical, doc value.Document) (bool, error) {
	switch n.Op {
	case And:
		for _, child := range n.Children {
			ok, err := m.Match(child, doc)
			if err != nil || !ok {
				return false, err
			}
		}
		return true, nil
	case Or, Nor:
		matched := false
		for _, child := range n.Children {
			ok, err := m.Match(child, doc)
			if err != nil {
				return false, err
			}
			if ok {
				matched = true
				break
			}
		}
		if n.Op == Nor {
			return !matched, nil
		}
		return matched, nil
	}
	return false, queryerr.Malformed(nil, n.Op.String(), "unknown logical operator")
}

// expand returns every candidate plus, for array candidates, their elements.
func expand(cands []value.Value) []value.Value {
	out := make([]value.Value, 0, len(cands))
	for _, c := range cands {
		out = append(out, c)
		if items, ok := c.AsArray(); ok {
			out = append(out, items...)
		}
	}
	return out
}

func equalsAny(cands []value.Value, want value.Value) bool {
	if want.IsNull() && len(cands) == 0 {
		return true
	}
	for _, c := range expand(cands) {
		if value.Equal(c, want) {
			return true
		}
	}
	return false
}

func (m *Matcher) matchCondition(cond Condition, cands []value.Value) (bool, error) {
	switch c := cond.(type) {
	case Equals:
		return equalsAny(cands, c.Value), nil

	case Compare:
		return compareAny(c, cands)

	case In:
		found := false
		for _, want := range c.Values {
			if equalsAny(cands, want) {
				found = true
				break
			}
		}
		return found != c.Negate, nil

	case Exists:
		return (len(cands) > 0) == c.Want, nil

	case Mod:
		for _, v := range expand(cands) {
			n, ok := v.AsNumber()
			if !ok {
				continue
			}
			if int64(n)%c.Divisor == c.Remainder {
				return true, nil
			}
		}
		return false, nil

	case Regex:
		for _, v := range expand(cands) {
			if s, ok := v.AsString(); ok && c.re.MatchString(s) {
				return true, nil
			}
		}
		return false, nil

	case TypeOf:
		for _, v := range expand(cands) {
			for _, k := range c.Kinds {
				if v.Kind() == k {
					return true, nil
				}
			}
		}
		return false, nil

	case Size:
		for _, v := range cands {
			if v.Len() == c.N {
				return true, nil
			}
		}
		return false, nil

	case All:
		if len(c.Values) == 0 {
			return false, nil
		}
		for _, want := range c.Values {
			if !equalsAny(cands, want) {
				return false, nil
			}
		}
		return true, nil

	case ElemMatch:
		return m.matchElem(c, cands)

	case Bits:
		for _, v := range expand(cands) {
			if matchBits(c, v) {
				return true, nil
			}
		}
		return false, nil

	case NotCond:
		ok, err := m.matchCondition(c.Cond, cands)
		if err != nil {
			return false, err
		}
		return !ok, nil

	case Geo:
		for _, v := range cands {
			if g, ok := toGeometry(v); ok && matchGeometry(c, g) {
				return true, nil
			}
			items, _ := v.AsArray()
			for _, item := range items {
				if g, ok := toGeometry(item); ok && matchGeometry(c, g) {
					return true, nil
				}
			}
		}
		return false, nil
	}
	return false, queryerr.Malformed(nil, "filter", "unexpected condition %T", cond)
}

// compareAny applies $eq, $ne or an ordering operator. Array elements of a
// different type class than the operand are skipped; a scalar of a
// different class is a type mismatch. Null only orders against null.
func compareAny(c Compare, cands []value.Value) (bool, error) {
	switch c.Op {
	case Eq:
		return equalsAny(cands, c.Value), nil
	case Ne:
		return !equalsAny(cands, c.Value), nil
	}

	test := func(cmp int) bool {
		switch c.Op {
		case Lt:
			return cmp < 0
		case Lte:
			return cmp <= 0
		case Gt:
			return cmp > 0
		case Gte:
			return cmp >= 0
		}
		return false
	}

	for _, cand := range cands {
		if cand.IsArray() && !c.Value.IsArray() {
			items, _ := cand.AsArray()
			for _, el := range items {
				if value.Comparable(el, c.Value) && !el.IsNull() && test(value.SortCompare(el, c.Value)) {
					return true, nil
				}
			}
			continue
		}
		if cand.IsNull() || c.Value.IsNull() {
			if cand.IsNull() && c.Value.IsNull() && (c.Op == Lte || c.Op == Gte) {
				return true, nil
			}
			continue
		}
		cmp, err := value.Compare(cand, c.Value)
		if err != nil {
			return false, queryerr.TypeMismatch(c.Op.String(), "cannot compare %s with %s", cand.Kind(), c.Value.Kind())
		}
		if test(cmp) {
			return true, nil
		}
	}
	return false, nil
}

func (m *Matcher) matchElem(c ElemMatch, cands []value.Value) (bool, error) {
	for _, cand := range cands {
		items, ok := cand.AsArray()
		if !ok {
			continue
		}
		for _, el := range items {
			if c.Filter != nil {
				d, ok := el.AsDocument()
				if !ok {
					continue
				}
				matched, err := m.Match(c.Filter, d)
				if err != nil {
					return false, err
				}
				if matched {
					return true, nil
				}
				continue
			}
			// The element itself is tested, not broadcast into.
			matched, err := m.matchCondition(c.Cond, []value.Value{el})
			if err != nil {
				return false, err
			}
			if matched {
				return true, nil
			}
		}
	}
	return false, nil
}

func matchBits(c Bits, v value.Value) bool {
	n, ok := v.AsInteger()
	if !ok {
		return false
	}
	bits := uint64(n)
	switch c.Op {
	case BitsAllSet:
		return bits&c.Mask == c.Mask
	case BitsAllClear:
		return bits&c.Mask == 0
	case BitsAnySet:
		return bits&c.Mask != 0
	case BitsAnyClear:
		return bits&c.Mask != c.Mask
	}
	return false
}
