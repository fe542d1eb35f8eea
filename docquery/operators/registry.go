package operators

import (
	"github.com/krew-solutions/ascetic-docquery-go/docquery/queryerr"
	"github.com/krew-solutions/ascetic-docquery-go/docquery/value"
)

type BinaryOp func(left, right value.Value) (value.Value, error)
type UnaryOp func(operand value.Value) (value.Value, error)

type binaryKey struct {
	left  value.Kind
	op    Operator
	right value.Kind
}

type unaryKey struct {
	op      Operator
	operand value.Kind
}

// OperatorRegistry dispatches operators on the kinds of their operands.
type OperatorRegistry struct {
	binary map[binaryKey]BinaryOp
	unary  map[unaryKey]UnaryOp
}

func NewOperatorRegistry() *OperatorRegistry {
	return &OperatorRegistry{
		binary: make(map[binaryKey]BinaryOp),
		unary:  make(map[unaryKey]UnaryOp),
	}
}

func (r *OperatorRegistry) RegisterBinary(left value.Kind, op Operator, right value.Kind, fn BinaryOp) {
	r.binary[binaryKey{left: left, op: op, right: right}] = fn
}

func (r *OperatorRegistry) RegisterUnary(op Operator, operand value.Kind, fn UnaryOp) {
	r.unary[unaryKey{op: op, operand: operand}] = fn
}

// ExecBinary executes a binary operator. A Null operand yields Null.
func (r *OperatorRegistry) ExecBinary(left value.Value, op Operator, right value.Value) (value.Value, error) {
	if left.IsNull() || right.IsNull() {
		return value.Null(), nil
	}
	fn, ok := r.binary[binaryKey{left: left.Kind(), op: op, right: right.Kind()}]
	if !ok {
		return value.Value{}, queryerr.TypeMismatch(
			string(op), "operator is not supported for %s and %s", left.Kind(), right.Kind(),
		)
	}
	return fn(left, right)
}

// ExecUnary executes a unary operator. A Null operand yields Null.
func (r *OperatorRegistry) ExecUnary(op Operator, operand value.Value) (value.Value, error) {
	if operand.IsNull() {
		return value.Null(), nil
	}
	fn, ok := r.unary[unaryKey{op: op, operand: operand.Kind()}]
	if !ok {
		return value.Value{}, queryerr.TypeMismatch(
			string(op), "operator is not supported for %s", operand.Kind(),
		)
	}
	return fn(operand)
}

// Fold applies op left to right over operands: ((a op b) op c) ...
func (r *OperatorRegistry) Fold(op Operator, operands []value.Value) (value.Value, error) {
	if len(operands) == 0 {
		return value.Null(), nil
	}
	acc := operands[0]
	if len(operands) == 1 && !acc.IsNull() && !acc.IsNumber() && acc.Kind() != value.KindTimestamp {
		return value.Value{}, queryerr.TypeMismatch(string(op), "operand must be numeric, got %s", acc.Kind())
	}
	for _, next := range operands[1:] {
		var err error
		acc, err = r.ExecBinary(acc, op, next)
		if err != nil {
			return value.Value{}, err
		}
	}
	return acc, nil
}
