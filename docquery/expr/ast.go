// Package expr implements the aggregation expression language: a small tree
// of literals, field references, variables and operators that evaluates to
// a value.Value against a document.
//
// Expressions are parsed once from their generic representation
// (`{"$add": ["$price", "$tax"]}`) and can then be evaluated any number of
// times, concurrently. Evaluation is pure: it never mutates the document.
package expr

import (
	"sort"

	"github.com/krew-solutions/ascetic-docquery-go/docquery/value"
)

// Expr is one of Literal, FieldRef, Variable, Op, Object or ArrayExpr.
type Expr interface {
	isExpr()
}

type Literal struct {
	Value value.Value
}

// FieldRef is a dotted path relative to the current document ("$a.b").
type FieldRef struct {
	Path string
}

// Variable is a "$$name" reference, optionally followed by a dotted path.
type Variable struct {
	Name string
	Path string
}

type Op struct {
	Code OpCode
	Args []Expr
}

type ObjectField struct {
	Key  string
	Expr Expr
}

// Object is an expression document whose fields are themselves expressions.
type Object struct {
	Fields []ObjectField
}

type ArrayExpr struct {
	Items []Expr
}

func (Literal) isExpr()   {}
func (FieldRef) isExpr()  {}
func (Variable) isExpr()  {}
func (Op) isExpr()        {}
func (Object) isExpr()    {}
func (ArrayExpr) isExpr() {}

const (
	VarRoot    = "ROOT"
	VarCurrent = "CURRENT"
	VarNow     = "NOW"
)

type OpCode uint8

const (
	OpAdd OpCode = iota + 1
	OpSubtract
	OpMultiply
	OpDivide
	OpMod
	OpAbs
	OpEq
	OpNe
	OpGt
	OpGte
	OpLt
	OpLte
	OpCmp
	OpAnd
	OpOr
	OpNot
	OpToBool
	OpIfNull
	OpCond
	OpConcat
	OpToLower
	OpToUpper
	OpSubstr
	OpSize
	OpArrayElemAt
	OpIn
	OpToString
	OpType
	OpIsArray
	OpIsNull
)

type opInfo struct {
	name    string
	minArgs int
	maxArgs int // -1 means unbounded
}

var opTable = map[OpCode]opInfo{
	OpAdd:         {"$add", 1, -1},
	OpSubtract:    {"$subtract", 2, 2},
	OpMultiply:    {"$multiply", 1, -1},
	OpDivide:      {"$divide", 2, 2},
	OpMod:         {"$mod", 2, 2},
	OpAbs:         {"$abs", 1, 1},
	OpEq:          {"$eq", 2, 2},
	OpNe:          {"$ne", 2, 2},
	OpGt:          {"$gt", 2, 2},
	OpGte:         {"$gte", 2, 2},
	OpLt:          {"$lt", 2, 2},
	OpLte:         {"$lte", 2, 2},
	OpCmp:         {"$cmp", 2, 2},
	OpAnd:         {"$and", 0, -1},
	OpOr:          {"$or", 0, -1},
	OpNot:         {"$not", 1, 1},
	OpToBool:      {"$toBool", 1, 1},
	OpIfNull:      {"$ifNull", 2, -1},
	OpCond:        {"$cond", 3, 3},
	OpConcat:      {"$concat", 0, -1},
	OpToLower:     {"$toLower", 1, 1},
	OpToUpper:     {"$toUpper", 1, 1},
	OpSubstr:      {"$substr", 3, 3},
	OpSize:        {"$size", 1, 1},
	OpArrayElemAt: {"$arrayElemAt", 2, 2},
	OpIn:          {"$in", 2, 2},
	OpToString:    {"$toString", 1, 1},
	OpType:        {"$type", 1, 1},
	OpIsArray:     {"$isArray", 1, 1},
	OpIsNull:      {"$isNull", 1, 1},
}

// aliases maps accepted spellings onto operator codes.
var aliases = map[string]OpCode{
	"$bool":        OpToBool,
	"$substrBytes": OpSubstr,
}

var byName = func() map[string]OpCode {
	m := make(map[string]OpCode, len(opTable)+len(aliases))
	for code, info := range opTable {
		m[info.name] = code
	}
	for name, code := range aliases {
		m[name] = code
	}
	return m
}()

func (c OpCode) String() string {
	if info, ok := opTable[c]; ok {
		return info.name
	}
	return "$unknown"
}

// LookupOperator resolves an operator name such as "$add".
func LookupOperator(name string) (OpCode, bool) {
	code, ok := byName[name]
	return code, ok
}

// Operators lists every supported operator name, "$literal" included.
func Operators() []string {
	names := make([]string, 0, len(byName)+1)
	for name := range byName {
		names = append(names, name)
	}
	names = append(names, literalOperator)
	sort.Strings(names)
	return names
}
