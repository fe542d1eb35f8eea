package pipeline

import (
	"sort"
	"strings"

	"github.com/pkg/errors"

	"github.com/krew-solutions/ascetic-docquery-go/docquery/expr"
	"github.com/krew-solutions/ascetic-docquery-go/docquery/filter"
	"github.com/krew-solutions/ascetic-docquery-go/docquery/queryerr"
	"github.com/krew-solutions/ascetic-docquery-go/docquery/value"
)

const stagePrefix = "$"

var stageNames = []string{
	"$addFields",
	"$count",
	"$group",
	"$limit",
	"$lookup",
	"$match",
	"$merge",
	"$project",
	"$replaceRoot",
	"$replaceWith",
	"$sample",
	"$set",
	"$skip",
	"$sort",
	"$sortByCount",
	"$unset",
	"$unwind",
}

// Stages recognised by the language that this package does not execute.
// Any other unknown stage name is treated the same way.
var unsupportedStages = []string{
	"$bucket",
	"$bucketAuto",
	"$changeStream",
	"$collStats",
	"$densify",
	"$documents",
	"$facet",
	"$fill",
	"$geoNear",
	"$graphLookup",
	"$indexStats",
	"$out",
	"$redact",
	"$search",
	"$setWindowFields",
	"$unionWith",
}

var unimplementedAccumulators = map[string]bool{
	"$accumulator":  true,
	"$mergeObjects": true,
	"$stdDevPop":    true,
	"$stdDevSamp":   true,
}

var accumulatorOps = map[string]AccumulatorOp{
	"$sum":      AccSum,
	"$avg":      AccAvg,
	"$min":      AccMin,
	"$max":      AccMax,
	"$first":    AccFirst,
	"$last":     AccLast,
	"$push":     AccPush,
	"$addToSet": AccAddToSet,
	"$count":    AccCount,
}

// Stages lists the stage names the executor runs.
func Stages() []string {
	return append([]string(nil), stageNames...)
}

// UnsupportedStages lists well-known stage names that parse into
// Unsupported.
func UnsupportedStages() []string {
	return append([]string(nil), unsupportedStages...)
}

// Accumulators lists the supported $group accumulators.
func Accumulators() []string {
	out := make([]string, 0, len(accumulatorOps))
	for name := range accumulatorOps {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

type ParserOption func(*Parser)

// WithFilterParser sets the parser used for $match stages.
func WithFilterParser(fp *filter.Parser) ParserOption {
	return func(p *Parser) {
		p.filters = fp
	}
}

type Parser struct {
	filters *filter.Parser
}

func NewParser(opts ...ParserOption) *Parser {
	p := &Parser{filters: filter.NewParser()}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

var defaultParser = NewParser()

// Parse converts a generic list of stage documents into a Pipeline.
func Parse(spec any) (Pipeline, error) {
	return defaultParser.Parse(spec)
}

func ParseValue(v value.Value) (Pipeline, error) {
	return defaultParser.ParseValue(v)
}

func (p *Parser) Parse(spec any) (Pipeline, error) {
	v, err := value.FromGo(spec)
	if err != nil {
		return nil, queryerr.Malformed(nil, "pipeline", "%v", err)
	}
	return p.ParseValue(v)
}

func (p *Parser) ParseValue(v value.Value) (Pipeline, error) {
	items, ok := v.AsArray()
	if !ok {
		return nil, queryerr.Malformed(nil, "pipeline", "expected an array of stages, got %s", v.Kind())
	}
	out := make(Pipeline, 0, len(items))
	for i, item := range items {
		st, err := p.parseStage(item)
		if err != nil {
			return nil, errors.Wrapf(err, "stage %d", i)
		}
		if _, ok := st.(Merge); ok && i != len(items)-1 {
			return nil, queryerr.Malformed(nil, "$merge", "must be the last stage")
		}
		out = append(out, st)
	}
	return out, nil
}

func (p *Parser) parseStage(item value.Value) (Stage, error) {
	d, ok := item.AsDocument()
	if !ok {
		return nil, queryerr.Malformed(nil, "pipeline", "a stage must be a document, got %s", item.Kind())
	}
	if d.Len() != 1 {
		return nil, queryerr.Malformed(queryerr.ErrMultiKeyOperator, "pipeline", "a stage must have exactly one key, got %v", d.Keys())
	}
	f := d.Fields()[0]
	name, arg := f.Key, f.Value
	if !strings.HasPrefix(name, stagePrefix) {
		return nil, queryerr.Malformed(nil, name, "stage name must start with %q", stagePrefix)
	}

	switch name {
	case "$match":
		spec, ok := arg.AsDocument()
		if !ok {
			return nil, queryerr.Malformed(nil, name, "expected a filter document")
		}
		node, err := p.filters.ParseDocument(spec)
		if err != nil {
			return nil, err
		}
		return Match{Filter: node}, nil
	case "$project":
		return parseProject(arg)
	case "$addFields", "$set":
		return parseAddFields(name, arg)
	case "$unset":
		return parseUnset(arg)
	case "$group":
		return parseGroup(arg)
	case "$sort":
		return parseSort(arg)
	case "$skip":
		n, err := integer(name, arg, 0)
		return Skip{N: n}, err
	case "$limit":
		n, err := integer(name, arg, 1)
		return Limit{N: n}, err
	case "$unwind":
		return parseUnwind(arg)
	case "$lookup":
		return parseLookup(arg)
	case "$sample":
		return parseSample(arg)
	case "$count":
		return parseCount(arg)
	case "$replaceRoot":
		spec, ok := arg.AsDocument()
		root, has := spec.Get("newRoot")
		if !ok || !has || spec.Len() != 1 {
			return nil, queryerr.Malformed(nil, name, "expected {newRoot: <expression>}")
		}
		e, err := expr.ParseValue(root)
		return ReplaceRoot{Alias: name, NewRoot: e}, err
	case "$replaceWith":
		e, err := expr.ParseValue(arg)
		return ReplaceRoot{Alias: name, NewRoot: e}, err
	case "$merge":
		return p.parseMerge(arg)
	case "$sortByCount":
		return parseSortByCount(arg)
	}
	return Unsupported{Stage: name, Spec: arg}, nil
}

func integer(name string, arg value.Value, least int64) (int64, error) {
	n, ok := arg.AsInteger()
	if !ok || n < least {
		return 0, queryerr.Malformed(nil, name, "expected an integer >= %d, got %s", least, arg)
	}
	return n, nil
}

func nonEmptyDocument(name string, arg value.Value) (value.Document, error) {
	d, ok := arg.AsDocument()
	if !ok || d.Len() == 0 {
		return value.Document{}, queryerr.Malformed(nil, name, "expected a non-empty document")
	}
	return d, nil
}

// fieldPath reads a "$path" string.
func fieldPath(name string, arg value.Value) (string, error) {
	s, ok := arg.AsString()
	if !ok || !strings.HasPrefix(s, "$") || strings.HasPrefix(s, "$$") || len(s) < 2 {
		return "", queryerr.Malformed(nil, name, "expected a field path such as \"$field\", got %s", arg)
	}
	return s[1:], nil
}

func outputName(name, field string) error {
	if field == "" || strings.HasPrefix(field, "$") {
		return queryerr.Malformed(nil, name, "invalid field name %q", field)
	}
	return nil
}

// isOperatorDocument reports whether any key of v names an operator.
func isOperatorDocument(v value.Value) bool {
	d, ok := v.AsDocument()
	if !ok {
		return false
	}
	for _, key := range d.Keys() {
		if expr.IsOperatorKey(key) {
			return true
		}
	}
	return false
}

// isNested reports whether v is a plain, non-empty sub-document spec such as
// {b: 1} in {a: {b: 1}}.
func isNested(v value.Value) bool {
	d, ok := v.AsDocument()
	return ok && d.Len() > 0 && !isOperatorDocument(v)
}

// flatten expands one level of nested sub-document specs into dotted
// paths. Deeper nesting must be written as an explicit expression.
func flatten(name string, d value.Document) ([]value.Field, error) {
	var out []value.Field
	for _, f := range d.Fields() {
		if err := outputName(name, f.Key); err != nil {
			return nil, err
		}
		if !isNested(f.Value) {
			out = append(out, f)
			continue
		}
		inner, _ := f.Value.AsDocument()
		for _, sub := range inner.Fields() {
			if err := outputName(name, sub.Key); err != nil {
				return nil, err
			}
			if isNested(sub.Value) {
				return nil, queryerr.Malformed(nil, name,
					"%s.%s: specifications nested deeper than one level need an explicit expression", f.Key, sub.Key)
			}
			out = append(out, value.F(f.Key+"."+sub.Key, sub.Value))
		}
	}
	return out, nil
}

func parseProject(arg value.Value) (Stage, error) {
	const name = "$project"
	d, err := nonEmptyDocument(name, arg)
	if err != nil {
		return nil, err
	}
	flat, err := flatten(name, d)
	if err != nil {
		return nil, err
	}

	var (
		st                 Project
		included, excluded int
	)
	for _, f := range flat {
		pf := ProjectField{Path: f.Key}
		switch f.Value.Kind() {
		case value.KindBool:
			b, _ := f.Value.AsBool()
			pf.Mode = Exclude
			if b {
				pf.Mode = Include
			}
		case value.KindInt, value.KindFloat:
			n, _ := f.Value.AsNumber()
			pf.Mode = Exclude
			if n != 0 {
				pf.Mode = Include
			}
		case value.KindString:
			s, _ := f.Value.AsString()
			if !strings.HasPrefix(s, "$") {
				return nil, queryerr.Malformed(nil, name,
					"%s: ambiguous string %q, use a field path or {$literal: ...}", f.Key, s)
			}
			fallthrough
		default:
			e, err := expr.ParseValue(f.Value)
			if err != nil {
				return nil, err
			}
			pf.Mode, pf.Expr = Compute, e
		}
		if f.Key != "_id" {
			if pf.Mode == Exclude {
				excluded++
			} else {
				included++
			}
		}
		st.Fields = append(st.Fields, pf)
	}
	if included > 0 && excluded > 0 {
		return nil, queryerr.Malformed(nil, name, "cannot mix inclusion and exclusion")
	}
	st.Exclusion = included == 0
	if st.Exclusion {
		for _, pf := range st.Fields {
			if pf.Mode == Compute {
				// only _id can get here
				return nil, queryerr.Malformed(nil, name, "_id: an exclusion projection cannot compute fields")
			}
		}
	}
	return st, nil
}

func parseAddFields(name string, arg value.Value) (Stage, error) {
	d, err := nonEmptyDocument(name, arg)
	if err != nil {
		return nil, err
	}
	flat, err := flatten(name, d)
	if err != nil {
		return nil, err
	}
	st := AddFields{Alias: name}
	for _, f := range flat {
		e, err := expr.ParseValue(f.Value)
		if err != nil {
			return nil, err
		}
		st.Fields = append(st.Fields, SetField{Path: f.Key, Expr: e})
	}
	return st, nil
}

func parseUnset(arg value.Value) (Stage, error) {
	const name = "$unset"
	var raw []value.Value
	if arg.IsArray() {
		raw, _ = arg.AsArray()
	} else {
		raw = []value.Value{arg}
	}
	if len(raw) == 0 {
		return nil, queryerr.Malformed(nil, name, "expected at least one field")
	}
	st := Unset{Paths: make([]string, 0, len(raw))}
	for _, v := range raw {
		s, ok := v.AsString()
		if !ok {
			return nil, queryerr.Malformed(nil, name, "expected a field name, got %s", v)
		}
		if err := outputName(name, s); err != nil {
			return nil, err
		}
		st.Paths = append(st.Paths, s)
	}
	return st, nil
}

func parseGroupID(name string, v value.Value) (expr.Expr, error) {
	switch v.Kind() {
	case value.KindDocument, value.KindArray:
		return nil, queryerr.Unsupported(queryerr.ErrNotImplemented, name,
			"combined or expression-computed group keys are not supported")
	case value.KindString:
		s, _ := v.AsString()
		if strings.HasPrefix(s, "$$") {
			return nil, queryerr.Unsupported(queryerr.ErrNotImplemented, name, "variable group keys are not supported")
		}
		if strings.HasPrefix(s, "$") {
			return expr.ParseValue(v)
		}
	}
	return expr.Literal{Value: v}, nil
}

func parseGroup(arg value.Value) (Stage, error) {
	const name = "$group"
	d, ok := arg.AsDocument()
	if !ok {
		return nil, queryerr.Malformed(nil, name, "expected a document")
	}
	idSpec, ok := d.Get("_id")
	if !ok {
		return nil, queryerr.Malformed(nil, name, "a group specification must include _id")
	}
	id, err := parseGroupID(name, idSpec)
	if err != nil {
		return nil, err
	}

	st := Group{ID: id}
	for _, f := range d.Fields() {
		if f.Key == "_id" {
			continue
		}
		if err := outputName(name, f.Key); err != nil {
			return nil, err
		}
		if strings.Contains(f.Key, ".") {
			return nil, queryerr.Malformed(nil, name, "field name %q cannot contain '.'", f.Key)
		}
		acc, err := parseAccumulator(f.Key, f.Value)
		if err != nil {
			return nil, err
		}
		st.Accumulators = append(st.Accumulators, acc)
	}
	return st, nil
}

func parseAccumulator(field string, spec value.Value) (Accumulator, error) {
	d, ok := spec.AsDocument()
	if !ok || d.Len() != 1 {
		return Accumulator{}, queryerr.Malformed(queryerr.ErrMultiKeyOperator, "$group",
			"%s: expected a single accumulator such as {$sum: ...}", field)
	}
	f := d.Fields()[0]
	if unimplementedAccumulators[f.Key] {
		return Accumulator{}, queryerr.Unsupported(queryerr.ErrNotImplemented, f.Key, "accumulator is not implemented")
	}
	op, ok := accumulatorOps[f.Key]
	if !ok {
		return Accumulator{}, queryerr.UnknownOperator(f.Key)
	}
	acc := Accumulator{Field: field, Op: op}
	if op == AccCount {
		if inner, ok := f.Value.AsDocument(); !ok || inner.Len() != 0 {
			return Accumulator{}, queryerr.Malformed(queryerr.ErrArity, f.Key, "expected {}")
		}
		return acc, nil
	}
	e, err := expr.ParseValue(f.Value)
	if err != nil {
		return Accumulator{}, err
	}
	acc.Arg = e
	return acc, nil
}

func parseSort(arg value.Value) (Stage, error) {
	const name = "$sort"
	d, err := nonEmptyDocument(name, arg)
	if err != nil {
		return nil, err
	}
	st := Sort{Keys: make([]SortKey, 0, d.Len())}
	for _, f := range d.Fields() {
		if f.Value.IsDocument() {
			return nil, queryerr.Unsupported(queryerr.ErrNotImplemented, name, "%s: $meta sort keys are not supported", f.Key)
		}
		dir, ok := f.Value.AsInteger()
		if !ok || (dir != 1 && dir != -1) {
			return nil, queryerr.Malformed(nil, name, "%s: sort direction must be 1 or -1, got %s", f.Key, f.Value)
		}
		st.Keys = append(st.Keys, SortKey{Path: f.Key, Desc: dir < 0})
	}
	return st, nil
}

func parseUnwind(arg value.Value) (Stage, error) {
	const name = "$unwind"
	if arg.Kind() == value.KindString {
		path, err := fieldPath(name, arg)
		return Unwind{Path: path}, err
	}
	d, ok := arg.AsDocument()
	if !ok {
		return nil, queryerr.Malformed(nil, name, "expected a field path or a document")
	}
	var st Unwind
	for _, f := range d.Fields() {
		switch f.Key {
		case "path":
			path, err := fieldPath(name, f.Value)
			if err != nil {
				return nil, err
			}
			st.Path = path
		case "includeArrayIndex":
			s, ok := f.Value.AsString()
			if !ok || outputName(name, s) != nil {
				return nil, queryerr.Malformed(nil, name, "includeArrayIndex must be a field name")
			}
			st.IncludeArrayIndex = s
		case "preserveNullAndEmptyArrays":
			b, ok := f.Value.AsBool()
			if !ok {
				return nil, queryerr.Malformed(nil, name, "preserveNullAndEmptyArrays must be a boolean")
			}
			st.PreserveNullAndEmptyArrays = b
		default:
			return nil, queryerr.Malformed(nil, name, "unknown option %q", f.Key)
		}
	}
	if st.Path == "" {
		return nil, queryerr.Malformed(nil, name, "path is required")
	}
	return st, nil
}

func parseLookup(arg value.Value) (Stage, error) {
	const name = "$lookup"
	d, ok := arg.AsDocument()
	if !ok {
		return nil, queryerr.Malformed(nil, name, "expected a document")
	}
	for _, key := range []string{"pipeline", "let"} {
		if d.Has(key) {
			return nil, queryerr.Unsupported(queryerr.ErrNotImplemented, name, "%s is not supported", key)
		}
	}
	var st Lookup
	targets := map[string]*string{
		"from":         &st.From,
		"localField":   &st.LocalField,
		"foreignField": &st.ForeignField,
		"as":           &st.As,
	}
	for _, f := range d.Fields() {
		target, ok := targets[f.Key]
		if !ok {
			return nil, queryerr.Malformed(nil, name, "unknown option %q", f.Key)
		}
		s, ok := f.Value.AsString()
		if !ok || s == "" {
			return nil, queryerr.Malformed(nil, name, "%s must be a non-empty string", f.Key)
		}
		*target = s
	}
	for _, key := range []string{"from", "localField", "foreignField", "as"} {
		if !d.Has(key) {
			return nil, queryerr.Malformed(queryerr.ErrArity, name, "%s is required", key)
		}
	}
	return st, nil
}

func parseSample(arg value.Value) (Stage, error) {
	const name = "$sample"
	d, ok := arg.AsDocument()
	size, has := d.Get("size")
	if !ok || !has || d.Len() != 1 {
		return nil, queryerr.Malformed(nil, name, "expected {size: <n>}")
	}
	n, err := integer(name, size, 1)
	return Sample{Size: n}, err
}

func parseCount(arg value.Value) (Stage, error) {
	const name = "$count"
	s, ok := arg.AsString()
	if !ok || strings.Contains(s, ".") || outputName(name, s) != nil {
		return nil, queryerr.Malformed(nil, name, "expected a field name without '.' or a leading '$'")
	}
	return Count{Field: s}, nil
}

func parseSortByCount(arg value.Value) (Stage, error) {
	const name = "$sortByCount"
	if isOperatorDocument(arg) {
		return nil, queryerr.Unsupported(queryerr.ErrNotImplemented, name, "expression-computed group keys are not supported")
	}
	path, err := fieldPath(name, arg)
	if err != nil {
		return nil, err
	}
	return SortByCount{
		Group: Group{
			ID:           expr.FieldRef{Path: path},
			Accumulators: []Accumulator{{Field: "count", Op: AccSum, Arg: expr.Literal{Value: value.Int(1)}}},
		},
		Sort: Sort{Keys: []SortKey{{Path: "count", Desc: true}}},
	}, nil
}

func (p *Parser) parseMerge(arg value.Value) (Stage, error) {
	const name = "$merge"
	st := Merge{
		On:             []string{"_id"},
		WhenMatched:    MatchedMerge,
		WhenNotMatched: NotMatchedInsert,
	}
	if s, ok := arg.AsString(); ok {
		if s == "" {
			return nil, queryerr.Malformed(nil, name, "into must be a non-empty collection name")
		}
		st.Into = s
		return st, nil
	}
	d, ok := arg.AsDocument()
	if !ok {
		return nil, queryerr.Malformed(nil, name, "expected a collection name or a document")
	}
	if d.Has("let") {
		return nil, queryerr.Unsupported(queryerr.ErrNotImplemented, name, "let is not supported")
	}
	for _, f := range d.Fields() {
		var err error
		switch f.Key {
		case "into":
			st.Into, err = mergeTarget(f.Value)
		case "on":
			st.On, err = mergeOn(f.Value)
		case "whenMatched":
			err = p.parseWhenMatched(&st, f.Value)
		case "whenNotMatched":
			st.WhenNotMatched, err = parseWhenNotMatched(f.Value)
		default:
			err = queryerr.Malformed(nil, name, "unknown option %q", f.Key)
		}
		if err != nil {
			return nil, err
		}
	}
	if st.Into == "" {
		return nil, queryerr.Malformed(queryerr.ErrArity, name, "into is required")
	}
	return st, nil
}

func mergeTarget(v value.Value) (string, error) {
	if s, ok := v.AsString(); ok && s != "" {
		return s, nil
	}
	if d, ok := v.AsDocument(); ok {
		if coll, ok := d.Get("coll"); ok {
			if s, ok := coll.AsString(); ok && s != "" {
				return s, nil
			}
		}
	}
	return "", queryerr.Malformed(nil, "$merge", "into must be a collection name or {db, coll}")
}

func mergeOn(v value.Value) ([]string, error) {
	var raw []value.Value
	if v.IsArray() {
		raw, _ = v.AsArray()
	} else {
		raw = []value.Value{v}
	}
	if len(raw) == 0 {
		return nil, queryerr.Malformed(nil, "$merge", "on must name at least one field")
	}
	on := make([]string, 0, len(raw))
	for _, item := range raw {
		s, ok := item.AsString()
		if !ok || outputName("$merge", s) != nil {
			return nil, queryerr.Malformed(nil, "$merge", "on must be a field name or a list of field names")
		}
		on = append(on, s)
	}
	return on, nil
}

func (p *Parser) parseWhenMatched(st *Merge, v value.Value) error {
	if v.IsArray() {
		sub, err := p.ParseValue(v)
		if err != nil {
			return err
		}
		for _, stage := range sub {
			switch stage.(type) {
			case AddFields, Unset, ReplaceRoot, Project:
			default:
				return queryerr.Malformed(nil, "$merge",
					"whenMatched pipeline cannot contain %s", stage.Name())
			}
		}
		st.WhenMatched, st.Pipeline = MatchedPipeline, sub
		return nil
	}
	s, _ := v.AsString()
	switch s {
	case "merge":
		st.WhenMatched = MatchedMerge
	case "replace":
		st.WhenMatched = MatchedReplace
	case "keepExisting":
		st.WhenMatched = MatchedKeepExisting
	case "fail":
		st.WhenMatched = MatchedFail
	default:
		return queryerr.Malformed(nil, "$merge", "unknown whenMatched mode %s", v)
	}
	return nil
}

func parseWhenNotMatched(v value.Value) (WhenNotMatched, error) {
	s, _ := v.AsString()
	switch s {
	case "insert":
		return NotMatchedInsert, nil
	case "discard":
		return NotMatchedDiscard, nil
	case "fail":
		return NotMatchedFail, nil
	}
	return 0, queryerr.Malformed(nil, "$merge", "unknown whenNotMatched mode %s", v)
}
