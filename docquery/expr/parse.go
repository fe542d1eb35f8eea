package expr

import (
	"strconv"
	"strings"

	"github.com/krew-solutions/ascetic-docquery-go/docquery/queryerr"
	"github.com/krew-solutions/ascetic-docquery-go/docquery/value"
)

const (
	fieldPrefix     = "$"
	variablePrefix  = "$$"
	literalOperator = "$literal"
)

// Parse converts a generic value (map[string]any, bson.D, scalars, ...)
// into an expression tree.
func Parse(spec any) (Expr, error) {
	v, err := value.FromGo(spec)
	if err != nil {
		return nil, queryerr.Malformed(nil, "expression", "%v", err)
	}
	return ParseValue(v)
}

// ParseValue converts an already converted value into an expression tree.
func ParseValue(v value.Value) (Expr, error) {
	switch v.Kind() {
	case value.KindString:
		s, _ := v.AsString()
		return parseString(s)
	case value.KindArray:
		items, _ := v.AsArray()
		parsed := make([]Expr, len(items))
		for i, item := range items {
			e, err := ParseValue(item)
			if err != nil {
				return nil, err
			}
			parsed[i] = e
		}
		return ArrayExpr{Items: parsed}, nil
	case value.KindDocument:
		d, _ := v.AsDocument()
		return parseDocument(d)
	}
	return Literal{Value: v}, nil
}

func parseString(s string) (Expr, error) {
	switch {
	case strings.HasPrefix(s, variablePrefix):
		name, path, _ := strings.Cut(s[len(variablePrefix):], ".")
		if name == "" {
			return nil, queryerr.Malformed(nil, s, "empty variable name")
		}
		return Variable{Name: name, Path: path}, nil
	case strings.HasPrefix(s, fieldPrefix):
		path := s[len(fieldPrefix):]
		if path == "" {
			return nil, queryerr.Malformed(nil, s, "empty field path")
		}
		return FieldRef{Path: path}, nil
	}
	return Literal{Value: value.String(s)}, nil
}

func parseDocument(d value.Document) (Expr, error) {
	fields := d.Fields()
	if len(fields) == 0 {
		return Object{}, nil
	}
	if IsOperatorKey(fields[0].Key) {
		if len(fields) > 1 {
			return nil, queryerr.Malformed(
				queryerr.ErrMultiKeyOperator, fields[0].Key,
				"an operator expression must have exactly one key, got %v", d.Keys(),
			)
		}
		return parseOperator(fields[0].Key, fields[0].Value)
	}
	out := Object{Fields: make([]ObjectField, 0, len(fields))}
	for _, f := range fields {
		if IsOperatorKey(f.Key) {
			return nil, queryerr.Malformed(
				queryerr.ErrMultiKeyOperator, f.Key,
				"cannot mix operators and fields in an expression object",
			)
		}
		e, err := ParseValue(f.Value)
		if err != nil {
			return nil, err
		}
		out.Fields = append(out.Fields, ObjectField{Key: f.Key, Expr: e})
	}
	return out, nil
}

// IsOperatorKey reports whether a document key names an operator.
func IsOperatorKey(key string) bool {
	return strings.HasPrefix(key, fieldPrefix)
}

func parseOperator(name string, arg value.Value) (Expr, error) {
	if name == literalOperator {
		return Literal{Value: arg}, nil
	}
	code, ok := LookupOperator(name)
	if !ok {
		return nil, queryerr.UnknownOperator(name)
	}

	var rawArgs []value.Value
	switch {
	case code == OpCond && arg.IsDocument():
		d, _ := arg.AsDocument()
		branches := make([]value.Value, 3)
		for i, key := range []string{"if", "then", "else"} {
			v, ok := d.Get(key)
			if !ok {
				return nil, queryerr.Malformed(queryerr.ErrArity, name, "missing %q", key)
			}
			branches[i] = v
		}
		if d.Len() != 3 {
			return nil, queryerr.Malformed(queryerr.ErrArity, name, "unexpected keys %v", d.Keys())
		}
		rawArgs = branches
	case arg.IsArray():
		rawArgs, _ = arg.AsArray()
	default:
		rawArgs = []value.Value{arg}
	}

	info := opTable[code]
	if len(rawArgs) < info.minArgs || (info.maxArgs >= 0 && len(rawArgs) > info.maxArgs) {
		return nil, queryerr.Malformed(
			queryerr.ErrArity, name,
			"expected %s, got %d", arityText(info), len(rawArgs),
		)
	}

	args := make([]Expr, len(rawArgs))
	for i, raw := range rawArgs {
		e, err := ParseValue(raw)
		if err != nil {
			return nil, err
		}
		args[i] = e
	}
	return Op{Code: code, Args: args}, nil
}

func arityText(info opInfo) string {
	switch {
	case info.maxArgs < 0:
		return "at least " + strconv.Itoa(info.minArgs) + " arguments"
	case info.minArgs == info.maxArgs:
		return strconv.Itoa(info.minArgs) + " arguments"
	}
	return strconv.Itoa(info.minArgs) + " to " + strconv.Itoa(info.maxArgs) + " arguments"
}
