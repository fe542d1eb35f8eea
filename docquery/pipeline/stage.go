// Package pipeline runs aggregation pipelines: ordered lists of stages such
// as $match, $group, $sort or $merge applied to an in-memory sequence of
// documents.
//
// A pipeline is parsed once into a list of Stage values and executed by an
// Executor. Stages run strictly in order, each consuming the complete output
// of the previous one. Documents are never mutated in place.
package pipeline

import (
	"github.com/krew-solutions/ascetic-docquery-go/docquery/expr"
	"github.com/krew-solutions/ascetic-docquery-go/docquery/filter"
	"github.com/krew-solutions/ascetic-docquery-go/docquery/value"
)

// Stage is one of Match, Project, AddFields, Unset, Group, Sort, Skip,
// Limit, Unwind, Lookup, Sample, Count, ReplaceRoot, Merge, SortByCount or
// Unsupported.
type Stage interface {
	Name() string
}

type Pipeline []Stage

type Match struct {
	Filter filter.Node
}

type ProjectMode uint8

const (
	Include ProjectMode = iota + 1
	Exclude
	Compute
)

type ProjectField struct {
	Path string
	Mode ProjectMode
	Expr expr.Expr
}

// Project reshapes documents. In exclusion mode only Exclude fields appear;
// otherwise Include and Compute fields may be mixed and _id is kept unless
// it is excluded explicitly.
type Project struct {
	Fields    []ProjectField
	Exclusion bool
}

type SetField struct {
	Path string
	Expr expr.Expr
}

// AddFields implements both $addFields and $set.
type AddFields struct {
	Alias  string
	Fields []SetField
}

type Unset struct {
	Paths []string
}

type AccumulatorOp uint8

const (
	AccSum AccumulatorOp = iota + 1
	AccAvg
	AccMin
	AccMax
	AccFirst
	AccLast
	AccPush
	AccAddToSet
	AccCount
)

var accumulatorNames = map[AccumulatorOp]string{
	AccSum:      "$sum",
	AccAvg:      "$avg",
	AccMin:      "$min",
	AccMax:      "$max",
	AccFirst:    "$first",
	AccLast:     "$last",
	AccPush:     "$push",
	AccAddToSet: "$addToSet",
	AccCount:    "$count",
}

func (op AccumulatorOp) String() string {
	if name, ok := accumulatorNames[op]; ok {
		return name
	}
	return "$unknown"
}

type Accumulator struct {
	Field string
	Op    AccumulatorOp
	Arg   expr.Expr
}

// Group collapses documents sharing the same key. ID is a FieldRef or a
// Literal.
type Group struct {
	ID           expr.Expr
	Accumulators []Accumulator
}

type SortKey struct {
	Path string
	Desc bool
}

type Sort struct {
	Keys []SortKey
}

type Skip struct {
	N int64
}

type Limit struct {
	N int64
}

type Unwind struct {
	Path                       string
	IncludeArrayIndex          string
	PreserveNullAndEmptyArrays bool
}

type Lookup struct {
	From         string
	LocalField   string
	ForeignField string
	As           string
}

type Sample struct {
	Size int64
}

type Count struct {
	Field string
}

// ReplaceRoot implements both $replaceRoot and $replaceWith.
type ReplaceRoot struct {
	Alias   string
	NewRoot expr.Expr
}

type WhenMatched uint8

const (
	MatchedMerge WhenMatched = iota + 1
	MatchedReplace
	MatchedKeepExisting
	MatchedFail
	MatchedPipeline
)

type WhenNotMatched uint8

const (
	NotMatchedInsert WhenNotMatched = iota + 1
	NotMatchedDiscard
	NotMatchedFail
)

// Merge writes its input into another collection and outputs nothing.
// Pipeline is set when WhenMatched is MatchedPipeline; inside it $$new is
// the incoming document.
type Merge struct {
	Into           string
	On             []string
	WhenMatched    WhenMatched
	Pipeline       Pipeline
	WhenNotMatched WhenNotMatched
}

// SortByCount groups by an expression and sorts groups by size, largest
// first.
type SortByCount struct {
	Group Group
	Sort  Sort
}

// Unsupported is a stage the executor recognises but does not run.
type Unsupported struct {
	Stage string
	Spec  value.Value
}

func (Match) Name() string         { return "$match" }
func (Project) Name() string       { return "$project" }
func (s AddFields) Name() string   { return s.Alias }
func (Unset) Name() string         { return "$unset" }
func (Group) Name() string         { return "$group" }
func (Sort) Name() string          { return "$sort" }
func (Skip) Name() string          { return "$skip" }
func (Limit) Name() string         { return "$limit" }
func (Unwind) Name() string        { return "$unwind" }
func (Lookup) Name() string        { return "$lookup" }
func (Sample) Name() string        { return "$sample" }
func (Count) Name() string         { return "$count" }
func (s ReplaceRoot) Name() string { return s.Alias }
func (Merge) Name() string         { return "$merge" }
func (SortByCount) Name() string   { return "$sortByCount" }
func (s Unsupported) Name() string { return s.Stage }
