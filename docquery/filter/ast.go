// Package filter implements the predicate matcher: it parses a filter
// document such as `{"age": {"$gte": 18}, "$or": [...]}` into a tree of
// nodes and decides whether a document satisfies it.
//
// Field conditions follow array-broadcast semantics: a condition on a path
// holds if it holds for the value at that path or, when that value is an
// array, for any of its elements.
package filter

import (
	"regexp"

	"github.com/paulmach/orb"
	"github.com/xeipuuv/gojsonschema"

	"github.com/krew-solutions/ascetic-docquery-go/docquery/expr"
	"github.com/krew-solutions/ascetic-docquery-go/docquery/value"
)

// Node is one of Logical, Not, Field, ExprNode, Text or JSONSchema.
type Node interface {
	isNode()
}

type LogicalOp uint8

const (
	And LogicalOp = iota + 1
	Or
	Nor
)

func (op LogicalOp) String() string {
	switch op {
	case And:
		return "$and"
	case Or:
		return "$or"
	case Nor:
		return "$nor"
	}
	return "$unknown"
}

// Logical combines child filters. An And without children matches everything.
type Logical struct {
	Op       LogicalOp
	Children []Node
}

// Not negates a whole embedded filter.
type Not struct {
	Child Node
}

type Field struct {
	Path string
	Cond Condition
}

// ExprNode is a `$expr` predicate; it matches when the expression is truthy.
type ExprNode struct {
	Expr expr.Expr
}

// Text is a `$text` search over the string content of a document.
type Text struct {
	Search        string
	Language      string
	CaseSensitive bool
	// Fields restricts the search to these paths; empty means every string
	// in the document.
	Fields []string

	terms   []string
	phrases []string
	negated []string
}

type JSONSchema struct {
	Source value.Document
	schema *gojsonschema.Schema
}

func (Logical) isNode()    {}
func (Not) isNode()        {}
func (Field) isNode()      {}
func (ExprNode) isNode()   {}
func (Text) isNode()       {}
func (JSONSchema) isNode() {}

// Condition is the test applied to the value(s) found at a field path.
type Condition interface {
	isCondition()
}

// Equals is an implicit equality: `{"a": 5}`.
type Equals struct {
	Value value.Value
}

type CompareOp uint8

const (
	Eq CompareOp = iota + 1
	Ne
	Lt
	Lte
	Gt
	Gte
)

var compareNames = map[CompareOp]string{
	Eq:  "$eq",
	Ne:  "$ne",
	Lt:  "$lt",
	Lte: "$lte",
	Gt:  "$gt",
	Gte: "$gte",
}

func (op CompareOp) String() string {
	return compareNames[op]
}

type Compare struct {
	Op    CompareOp
	Value value.Value
}

// In is `$in`, or `$nin` when Negate is set.
type In struct {
	Values []value.Value
	Negate bool
}

type Exists struct {
	Want bool
}

type Mod struct {
	Divisor   int64
	Remainder int64
}

type Regex struct {
	Pattern string
	Options string
	re      *regexp.Regexp
}

// TypeOf matches values of any of Kinds. The "number" alias expands to
// both numeric kinds.
type TypeOf struct {
	Kinds []value.Kind
}

type Size struct {
	N int
}

type All struct {
	Values []value.Value
}

// ElemMatch matches arrays with at least one element satisfying either a
// filter over document elements or a condition on the element itself.
type ElemMatch struct {
	Filter Node
	Cond   Condition
}

type BitsOp uint8

const (
	BitsAllSet BitsOp = iota + 1
	BitsAllClear
	BitsAnySet
	BitsAnyClear
)

var bitsNames = map[BitsOp]string{
	BitsAllSet:   "$bitsAllSet",
	BitsAllClear: "$bitsAllClear",
	BitsAnySet:   "$bitsAnySet",
	BitsAnyClear: "$bitsAnyClear",
}

func (op BitsOp) String() string {
	return bitsNames[op]
}

type Bits struct {
	Op   BitsOp
	Mask uint64
}

// NotCond is the field-level `$not`.
type NotCond struct {
	Cond Condition
}

type GeoOp uint8

const (
	GeoWithin GeoOp = iota + 1
	GeoIntersects
	GeoNear
	GeoNearSphere
)

var geoNames = map[GeoOp]string{
	GeoWithin:     "$geoWithin",
	GeoIntersects: "$geoIntersects",
	GeoNear:       "$near",
	GeoNearSphere: "$nearSphere",
}

func (op GeoOp) String() string {
	return geoNames[op]
}

// Geo is a geospatial condition. Shape is the query geometry. For the
// near operators MinDistance and MaxDistance bound the distance (meters
// for GeoJSON points, radians for legacy $nearSphere, coordinate units
// otherwise); Radius plays the same role for $center and $centerSphere.
type Geo struct {
	Op          GeoOp
	Form        string
	Shape       orb.Geometry
	Radius      float64
	MinDistance float64
	MaxDistance float64
	Spherical   bool
	Approximate bool
	// radians is set for legacy $nearSphere and $centerSphere, whose
	// distances are angles rather than meters.
	radians bool
}

func (Equals) isCondition()    {}
func (Compare) isCondition()   {}
func (In) isCondition()        {}
func (Exists) isCondition()    {}
func (Mod) isCondition()       {}
func (Regex) isCondition()     {}
func (TypeOf) isCondition()    {}
func (Size) isCondition()      {}
func (All) isCondition()       {}
func (ElemMatch) isCondition() {}
func (Bits) isCondition()      {}
func (NotCond) isCondition()   {}
func (Geo) isCondition()       {}
