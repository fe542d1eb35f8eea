package filter

import (
	"regexp"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/krew-solutions/ascetic-docquery-go/docquery/expr"
	"github.com/krew-solutions/ascetic-docquery-go/docquery/queryerr"
	"github.com/krew-solutions/ascetic-docquery-go/docquery/value"
)

const operatorPrefix = "$"

type ParserOption func(*Parser)

func WithParserLogger(logger *zap.Logger) ParserOption {
	return func(p *Parser) {
		p.logger = logger
	}
}

// WithTextFields sets the paths covered by `$text`, the way a text index
// would. Without it every string in the document is searched.
func WithTextFields(paths ...string) ParserOption {
	return func(p *Parser) {
		p.textFields = append([]string(nil), paths...)
	}
}

// Parser turns generic filter documents into Node trees.
type Parser struct {
	logger     *zap.Logger
	textFields []string
}

func NewParser(opts ...ParserOption) *Parser {
	p := &Parser{logger: zap.NewNop()}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

var defaultParser = NewParser()

// Parse parses a filter given as map[string]any, bson.D, value.Document, ...
func Parse(spec any) (Node, error) {
	return defaultParser.Parse(spec)
}

func ParseDocument(d value.Document) (Node, error) {
	return defaultParser.ParseDocument(d)
}

func (p *Parser) Parse(spec any) (Node, error) {
	v, err := value.FromGo(spec)
	if err != nil {
		return nil, queryerr.Malformed(nil, "filter", "%v", err)
	}
	d, ok := v.AsDocument()
	if !ok {
		return nil, queryerr.Malformed(nil, "filter", "a filter must be a document, got %s", v.Kind())
	}
	return p.ParseDocument(d)
}

// ParseDocument parses a filter document. Top-level keys are ANDed.
// Every key is parsed; a malformed key wins over an unsupported one, so
// the error kind does not depend on key order.
func (p *Parser) ParseDocument(d value.Document) (Node, error) {
	var firstErr error
	children := make([]Node, 0, d.Len())
	for _, f := range d.Fields() {
		var (
			n   Node
			err error
		)
		if strings.HasPrefix(f.Key, operatorPrefix) {
			n, err = p.parseTopLevel(f.Key, f.Value)
		} else {
			n, err = p.parseField(f.Key, f.Value)
		}
		if err != nil {
			if firstErr == nil || (queryerr.IsMalformed(err) && !queryerr.IsMalformed(firstErr)) {
				firstErr = err
			}
			continue
		}
		if n != nil {
			children = append(children, n)
		}
	}
	if firstErr != nil {
		return nil, firstErr
	}
	if len(children) == 1 {
		return children[0], nil
	}
	return Logical{Op: And, Children: children}, nil
}

func (p *Parser) parseTopLevel(name string, arg value.Value) (Node, error) {
	switch name {
	case "$and":
		return p.parseLogical(And, name, arg)
	case "$or":
		return p.parseLogical(Or, name, arg)
	case "$nor":
		return p.parseLogical(Nor, name, arg)
	case "$not":
		d, ok := arg.AsDocument()
		if !ok {
			return nil, queryerr.Malformed(nil, name, "expected a filter document, got %s", arg.Kind())
		}
		child, err := p.ParseDocument(d)
		if err != nil {
			return nil, err
		}
		return Not{Child: child}, nil
	case "$expr":
		e, err := expr.ParseValue(arg)
		if err != nil {
			return nil, err
		}
		return ExprNode{Expr: e}, nil
	case "$text":
		return p.parseText(arg)
	case "$jsonSchema":
		return parseJSONSchema(arg)
	case "$where":
		return nil, queryerr.Unsupported(queryerr.ErrNotImplemented, name, "server-side scripting is not supported")
	case "$comment":
		return nil, nil
	}
	return nil, queryerr.UnknownOperator(name)
}

func (p *Parser) parseLogical(op LogicalOp, name string, arg value.Value) (Node, error) {
	items, ok := arg.AsArray()
	if !ok || len(items) == 0 {
		return nil, queryerr.Malformed(nil, name, "expected a non-empty array of filters")
	}
	children := make([]Node, len(items))
	for i, item := range items {
		d, ok := item.AsDocument()
		if !ok {
			return nil, queryerr.Malformed(nil, name, "element %d is %s, not a filter document", i, item.Kind())
		}
		child, err := p.ParseDocument(d)
		if err != nil {
			return nil, err
		}
		children[i] = child
	}
	return Logical{Op: op, Children: children}, nil
}

func (p *Parser) parseField(path string, arg value.Value) (Node, error) {
	cond, err := p.parseCondition(path, arg)
	if err != nil {
		return nil, err
	}
	return Field{Path: path, Cond: cond}, nil
}

// isOperatorDocument reports whether v is a document of operators, as
// opposed to a literal document compared by equality. Any $ key makes it
// one, so a mix of operators and fields is rejected whatever the key order.
func isOperatorDocument(v value.Value) (value.Document, bool) {
	d, ok := v.AsDocument()
	if !ok {
		return value.Document{}, false
	}
	for _, key := range d.Keys() {
		if strings.HasPrefix(key, operatorPrefix) {
			return d, true
		}
	}
	return d, false
}

func (p *Parser) parseCondition(path string, arg value.Value) (Condition, error) {
	d, ok := isOperatorDocument(arg)
	if !ok {
		return Equals{Value: arg}, nil
	}
	return p.parseOperators(path, d)
}

// parseOperators parses an operator document. It holds exactly one
// operator; $options and the distance bounds only qualify $regex and $near.
func (p *Parser) parseOperators(path string, d value.Document) (Condition, error) {
	for _, key := range d.Keys() {
		if !strings.HasPrefix(key, operatorPrefix) {
			return nil, queryerr.Malformed(
				queryerr.ErrMultiKeyOperator, path,
				"cannot mix operators and fields in %v", d.Keys(),
			)
		}
	}

	var primary []value.Field
	for _, f := range d.Fields() {
		switch f.Key {
		case "$options":
			if !d.Has("$regex") {
				return nil, queryerr.Malformed(nil, f.Key, "$options requires $regex")
			}
		case "$maxDistance", "$minDistance":
			if !d.Has("$near") && !d.Has("$nearSphere") {
				return nil, queryerr.Malformed(nil, f.Key, "requires $near or $nearSphere")
			}
		default:
			primary = append(primary, f)
		}
	}
	if len(primary) != 1 {
		return nil, queryerr.Malformed(
			queryerr.ErrMultiKeyOperator, path,
			"expected one operator, got %v; combine conditions with $and", d.Keys(),
		)
	}

	f := primary[0]
	switch f.Key {
	case "$regex":
		opts, _ := d.Get("$options")
		return parseRegex(f.Value, opts)
	case "$near", "$nearSphere", "$geoWithin", "$geoIntersects":
		return p.parseGeo(f.Key, f.Value, d)
	}
	return p.parseOperator(f.Key, f.Value)
}

func (p *Parser) parseOperator(name string, arg value.Value) (Condition, error) {
	switch name {
	case "$eq":
		return Compare{Op: Eq, Value: arg}, nil
	case "$ne":
		return Compare{Op: Ne, Value: arg}, nil
	case "$lt":
		return Compare{Op: Lt, Value: arg}, nil
	case "$lte":
		return Compare{Op: Lte, Value: arg}, nil
	case "$gt":
		return Compare{Op: Gt, Value: arg}, nil
	case "$gte":
		return Compare{Op: Gte, Value: arg}, nil

	case "$in", "$nin":
		items, ok := arg.AsArray()
		if !ok {
			return nil, queryerr.Malformed(nil, name, "expected an array, got %s", arg.Kind())
		}
		return In{Values: items, Negate: name == "$nin"}, nil

	case "$exists":
		return Exists{Want: value.Truthy(arg)}, nil

	case "$mod":
		return parseMod(arg)

	case "$type":
		return parseType(arg)

	case "$size":
		n, ok := arg.AsInteger()
		if !ok || n < 0 {
			return nil, queryerr.Malformed(nil, name, "expected a non-negative integer, got %s", arg)
		}
		return Size{N: int(n)}, nil

	case "$all":
		items, ok := arg.AsArray()
		if !ok {
			return nil, queryerr.Malformed(nil, name, "expected an array, got %s", arg.Kind())
		}
		return All{Values: items}, nil

	case "$elemMatch":
		return p.parseElemMatch(arg)

	case "$bitsAllSet":
		return parseBits(BitsAllSet, arg)
	case "$bitsAllClear":
		return parseBits(BitsAllClear, arg)
	case "$bitsAnySet":
		return parseBits(BitsAnySet, arg)
	case "$bitsAnyClear":
		return parseBits(BitsAnyClear, arg)

	case "$not":
		d, ok := isOperatorDocument(arg)
		if !ok {
			return nil, queryerr.Malformed(nil, name, "expected an operator document, got %s", arg)
		}
		inner, err := p.parseOperators(name, d)
		if err != nil {
			return nil, err
		}
		return NotCond{Cond: inner}, nil
	}
	return nil, queryerr.UnknownOperator(name)
}

func parseMod(arg value.Value) (Condition, error) {
	items, ok := arg.AsArray()
	if !ok || len(items) != 2 {
		return nil, queryerr.Malformed(queryerr.ErrArity, "$mod", "expected [divisor, remainder]")
	}
	divisor, ok1 := items[0].AsNumber()
	remainder, ok2 := items[1].AsNumber()
	if !ok1 || !ok2 {
		return nil, queryerr.Malformed(nil, "$mod", "divisor and remainder must be numbers")
	}
	if int64(divisor) == 0 {
		return nil, queryerr.Malformed(nil, "$mod", "divisor cannot be 0")
	}
	return Mod{Divisor: int64(divisor), Remainder: int64(remainder)}, nil
}

// typeAliases maps $type names and numeric BSON type codes onto kinds.
var typeAliases = map[string][]value.Kind{
	"double":    {value.KindFloat},
	"string":    {value.KindString},
	"object":    {value.KindDocument},
	"array":     {value.KindArray},
	"binData":   {value.KindBinary},
	"objectId":  {value.KindObjectID},
	"bool":      {value.KindBool},
	"date":      {value.KindTimestamp},
	"null":      {value.KindNull},
	"int":       {value.KindInt},
	"long":      {value.KindInt},
	"timestamp": {value.KindTimestamp},
	"number":    {value.KindInt, value.KindFloat},
}

var typeCodes = map[int64]string{
	1:  "double",
	2:  "string",
	3:  "object",
	4:  "array",
	5:  "binData",
	7:  "objectId",
	8:  "bool",
	9:  "date",
	10: "null",
	16: "int",
	17: "timestamp",
	18: "long",
}

func parseType(arg value.Value) (Condition, error) {
	specs := []value.Value{arg}
	if items, ok := arg.AsArray(); ok {
		specs = items
	}
	var kinds []value.Kind
	for _, spec := range specs {
		var name string
		if code, ok := spec.AsInteger(); ok {
			name = typeCodes[code]
		} else if s, ok := spec.AsString(); ok {
			name = s
		}
		ks, ok := typeAliases[name]
		if !ok {
			return nil, queryerr.Malformed(nil, "$type", "unknown type %s", spec)
		}
		kinds = append(kinds, ks...)
	}
	return TypeOf{Kinds: kinds}, nil
}

func parseRegex(pattern, options value.Value) (Condition, error) {
	src, ok := pattern.AsString()
	if !ok {
		return nil, queryerr.Malformed(nil, "$regex", "pattern must be a string, got %s", pattern.Kind())
	}
	var opts string
	if !options.IsNull() {
		if opts, ok = options.AsString(); !ok {
			return nil, queryerr.Malformed(nil, "$options", "options must be a string")
		}
	}
	re, err := compileRegex(src, opts)
	if err != nil {
		return nil, err
	}
	return Regex{Pattern: src, Options: opts, re: re}, nil
}

// compileRegex compiles pattern with the given option letters (i, m, s, x).
// Go's regexp searches anywhere in the input, so a pattern without a
// leading anchor matches as a substring.
func compileRegex(pattern, options string) (*regexp.Regexp, error) {
	key := regexKey{pattern: pattern, options: options}
	if re, ok := compiled.get(key); ok {
		return re, nil
	}

	var flags strings.Builder
	src := pattern
	for _, o := range options {
		switch o {
		case 'i', 'm', 's':
			flags.WriteRune(o)
		case 'x':
			src = stripExtended(src)
		default:
			return nil, queryerr.Malformed(nil, "$options", "unsupported regex option %q", o)
		}
	}
	if flags.Len() > 0 {
		src = "(?" + flags.String() + ")" + src
	}
	re, err := regexp.Compile(src)
	if err != nil {
		return nil, queryerr.Malformed(nil, "$regex", "%v", err)
	}
	compiled.add(key, re)
	return re, nil
}

// stripExtended implements the x option: unescaped whitespace and
// #-comments are dropped from the pattern.
func stripExtended(pattern string) string {
	var b strings.Builder
	escaped, comment := false, false
	for _, r := range pattern {
		switch {
		case comment:
			if r == '\n' {
				comment = false
			}
		case escaped:
			b.WriteRune(r)
			escaped = false
		case r == '\\':
			b.WriteRune(r)
			escaped = true
		case r == '#':
			comment = true
		case r == ' ' || r == '\t' || r == '\n' || r == '\r':
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}

// fieldOperators are the operators whose presence as the first key of an
// $elemMatch argument selects the condition form over the filter form.
var fieldOperators = map[string]bool{
	"$eq": true, "$ne": true, "$lt": true, "$lte": true, "$gt": true, "$gte": true,
	"$in": true, "$nin": true, "$exists": true, "$mod": true, "$regex": true,
	"$type": true, "$size": true, "$all": true, "$elemMatch": true, "$not": true,
	"$bitsAllSet": true, "$bitsAllClear": true, "$bitsAnySet": true, "$bitsAnyClear": true,
}

func (p *Parser) parseElemMatch(arg value.Value) (Condition, error) {
	d, ok := arg.AsDocument()
	if !ok {
		return nil, queryerr.Malformed(nil, "$elemMatch", "expected a document, got %s", arg.Kind())
	}
	condition := false
	for _, key := range d.Keys() {
		condition = condition || fieldOperators[key]
	}
	if condition {
		cond, err := p.parseOperators("$elemMatch", d)
		if err != nil {
			return nil, err
		}
		return ElemMatch{Cond: cond}, nil
	}
	node, err := p.ParseDocument(d)
	if err != nil {
		return nil, err
	}
	return ElemMatch{Filter: node}, nil
}

func parseBits(op BitsOp, arg value.Value) (Condition, error) {
	if n, ok := arg.AsInteger(); ok {
		if n < 0 {
			return nil, queryerr.Malformed(nil, op.String(), "bitmask must be non-negative")
		}
		return Bits{Op: op, Mask: uint64(n)}, nil
	}
	positions, ok := arg.AsArray()
	if !ok {
		return nil, queryerr.Malformed(nil, op.String(), "expected a bitmask or an array of bit positions")
	}
	var mask uint64
	for _, pos := range positions {
		n, ok := pos.AsInteger()
		if !ok || n < 0 || n > 63 {
			return nil, queryerr.Malformed(nil, op.String(), "invalid bit position %s", pos)
		}
		mask |= 1 << uint(n)
	}
	return Bits{Op: op, Mask: mask}, nil
}

var topLevelOperators = []string{
	"$and", "$or", "$nor", "$not", "$expr", "$text", "$jsonSchema", "$comment",
}

// Operators lists every operator the matcher accepts, top-level and field
// level, sorted.
func Operators() []string {
	set := make(map[string]struct{})
	for _, name := range topLevelOperators {
		set[name] = struct{}{}
	}
	for name := range fieldOperators {
		set[name] = struct{}{}
	}
	for _, name := range []string{"$options", "$maxDistance", "$minDistance"} {
		set[name] = struct{}{}
	}
	for _, name := range geoNames {
		set[name] = struct{}{}
	}
	names := make([]string, 0, len(set))
	for name := range set {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// UnsupportedOperators lists operators that are recognized but always
// rejected with an unsupported feature error.
func UnsupportedOperators() []string {
	return []string{"$where"}
}
