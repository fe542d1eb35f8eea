package pgstore

import (
	"fmt"
	"math"
	"strings"

	"github.com/krew-solutions/ascetic-docquery-go/docquery/filter"
	"github.com/krew-solutions/ascetic-docquery-go/docquery/value"
)

var pathOps = map[filter.CompareOp]string{
	filter.Eq:  "==",
	filter.Gt:  ">",
	filter.Gte: ">=",
	filter.Lt:  "<",
	filter.Lte: "<=",
}

// Compiler translates the parts of a filter that Postgres can evaluate into
// a WHERE clause over a jsonb column. The clause selects a superset of the
// matching documents; callers still run the filter itself on every row.
//
// Equality on the top-level _id collapses into one containment test. Other
// conditions become a lax SQL/JSON path predicate, whose automatic array
// unwrapping gives the same any-element semantics as the matcher.
type Compiler struct {
	targetValueExpr string
	eqValues        value.Document
	preds           []string
	vars            value.Document
}

func NewCompiler(targetValueExpr string) *Compiler {
	if targetValueExpr == "" {
		targetValueExpr = "value"
	}
	return &Compiler{targetValueExpr: targetValueExpr}
}

// Compile returns the clause and its parameters. An empty clause means no
// part of node could be pushed down.
func (c *Compiler) Compile(node filter.Node) (string, []any, error) {
	c.eqValues = value.NewDocument()
	c.preds = nil
	c.vars = value.NewDocument()

	c.compileConjunct(node)

	var (
		parts  []string
		params []any
	)
	if c.eqValues.Len() > 0 {
		data, err := value.MarshalExtJSON(c.eqValues)
		if err != nil {
			return "", nil, err
		}
		parts = append(parts, fmt.Sprintf("%s @> ?::jsonb", c.targetValueExpr))
		params = append(params, string(data))
	}
	if len(c.preds) > 0 {
		vars, err := value.MarshalExtJSON(c.vars)
		if err != nil {
			return "", nil, err
		}
		parts = append(parts, fmt.Sprintf("jsonb_path_exists(%s, ?::jsonpath, ?::jsonb)", c.targetValueExpr))
		params = append(params, "$ ? ("+strings.Join(c.preds, " && ")+")", string(vars))
	}
	return replaceParamMarkers(strings.Join(parts, " AND ")), params, nil
}

// compileConjunct handles one member of the top-level conjunction.
func (c *Compiler) compileConjunct(node filter.Node) {
	if n, ok := node.(filter.Logical); ok && n.Op == filter.And {
		for _, child := range n.Children {
			c.compileConjunct(child)
		}
		return
	}
	if f, ok := node.(filter.Field); ok && f.Path == "_id" {
		if eq, ok := f.Cond.(filter.Equals); ok && isScalar(eq.Value) && !c.eqValues.Has("_id") {
			c.eqValues = c.eqValues.Set("_id", eq.Value)
			return
		}
	}
	if pred, ok := c.predicate(node); ok {
		c.preds = append(c.preds, pred)
	}
}

func (c *Compiler) predicate(node filter.Node) (string, bool) {
	switch n := node.(type) {
	case filter.Logical:
		switch n.Op {
		case filter.And:
			var parts []string
			for _, child := range n.Children {
				if p, ok := c.predicate(child); ok {
					parts = append(parts, p)
				}
			}
			if len(parts) == 0 {
				return "", false
			}
			return "(" + strings.Join(parts, " && ") + ")", true
		case filter.Or:
			if len(n.Children) == 0 {
				return "", false
			}
			parts := make([]string, 0, len(n.Children))
			for _, child := range n.Children {
				p, ok := c.predicate(child)
				if !ok {
					return "", false
				}
				parts = append(parts, p)
			}
			return "(" + strings.Join(parts, " || ") + ")", true
		}
	case filter.Field:
		acc, ok := accessor(n.Path)
		if !ok {
			return "", false
		}
		return c.condition(acc, n.Cond)
	}
	return "", false
}

func (c *Compiler) condition(acc string, cond filter.Condition) (string, bool) {
	switch t := cond.(type) {
	case filter.Equals:
		if !isScalar(t.Value) {
			return "", false
		}
		return fmt.Sprintf("%s == %s", acc, c.bind(t.Value)), true

	case filter.Compare:
		op, ok := pathOps[t.Op]
		if !ok {
			return "", false
		}
		if t.Op == filter.Eq && isScalar(t.Value) {
			return fmt.Sprintf("%s == %s", acc, c.bind(t.Value)), true
		}
		if !isFiniteNumber(t.Value) {
			return "", false
		}
		return fmt.Sprintf("%s %s %s", acc, op, c.bind(t.Value)), true

	case filter.In:
		if t.Negate || len(t.Values) == 0 {
			return "", false
		}
		parts := make([]string, 0, len(t.Values))
		for _, v := range t.Values {
			if !isScalar(v) {
				return "", false
			}
			parts = append(parts, fmt.Sprintf("%s == %s", acc, c.bind(v)))
		}
		return "(" + strings.Join(parts, " || ") + ")", true

	case filter.Exists:
		if t.Want {
			return fmt.Sprintf("exists(%s)", acc), true
		}
		return fmt.Sprintf("!(exists(%s))", acc), true
	}
	return "", false
}

// bind stores v as a path variable and returns its reference.
func (c *Compiler) bind(v value.Value) string {
	name := fmt.Sprintf("p%d", c.vars.Len()+1)
	c.vars = c.vars.Set(name, v)
	return "$" + name
}

// accessor renders a dotted path as a path accessor on @. Paths with
// numeric segments are not pushed down since they may address either a
// field or an array position.
func accessor(path string) (string, bool) {
	var b strings.Builder
	b.WriteString("@")
	for _, seg := range value.SplitPath(path) {
		if seg == "" || isDigits(seg) {
			return "", false
		}
		b.WriteString(`."`)
		b.WriteString(escapeKey(seg))
		b.WriteString(`"`)
	}
	return b.String(), true
}

func escapeKey(s string) string {
	var b strings.Builder
	for _, r := range s {
		switch {
		case r == '"' || r == '\\':
			b.WriteByte('\\')
			b.WriteRune(r)
		case r < 0x20:
			fmt.Fprintf(&b, `\u%04x`, r)
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}

func isDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

func isScalar(v value.Value) bool {
	switch v.Kind() {
	case value.KindBool, value.KindString, value.KindInt:
		return true
	case value.KindFloat:
		return isFiniteNumber(v)
	}
	return false
}

func isFiniteNumber(v value.Value) bool {
	n, ok := v.AsNumber()
	return ok && !math.IsNaN(n) && !math.IsInf(n, 0)
}

func replaceParamMarkers(sql string) string {
	var b strings.Builder
	idx := 1
	for i := 0; i < len(sql); i++ {
		if sql[i] == '?' {
			fmt.Fprintf(&b, "$%d", idx)
			idx++
		} else {
			b.WriteByte(sql[i])
		}
	}
	return b.String()
}
