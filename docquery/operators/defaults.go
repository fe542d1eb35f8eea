package operators

import (
	"math"
	"math/bits"
	"time"

	"github.com/krew-solutions/ascetic-docquery-go/docquery/queryerr"
	"github.com/krew-solutions/ascetic-docquery-go/docquery/value"
)

type (
	intFunc   func(a, b int64) (value.Value, error)
	floatFunc func(a, b float64) (value.Value, error)
)

// registerNumeric registers op for every Int/Float operand combination.
// Int op Int uses intFn; any combination involving a Float uses floatFn.
func registerNumeric(reg *OperatorRegistry, op Operator, intFn intFunc, floatFn floatFunc) {
	reg.RegisterBinary(value.KindInt, op, value.KindInt, func(l, r value.Value) (value.Value, error) {
		a, _ := l.AsInt()
		b, _ := r.AsInt()
		return intFn(a, b)
	})
	asFloat := func(l, r value.Value) (value.Value, error) {
		a, _ := l.AsNumber()
		b, _ := r.AsNumber()
		return floatFn(a, b)
	}
	reg.RegisterBinary(value.KindInt, op, value.KindFloat, asFloat)
	reg.RegisterBinary(value.KindFloat, op, value.KindInt, asFloat)
	reg.RegisterBinary(value.KindFloat, op, value.KindFloat, asFloat)
}

func addInt(a, b int64) (value.Value, error) {
	sum := a + b
	// Overflow promotes to double.
	if (a >= 0) == (b >= 0) && (sum >= 0) != (a >= 0) {
		return value.Float(float64(a) + float64(b)), nil
	}
	return value.Int(sum), nil
}

func subInt(a, b int64) (value.Value, error) {
	diff := a - b
	if (a >= 0) != (b >= 0) && (diff >= 0) != (a >= 0) {
		return value.Float(float64(a) - float64(b)), nil
	}
	return value.Int(diff), nil
}

func mulInt(a, b int64) (value.Value, error) {
	hi, lo := bits.Mul64(uint64(abs(a)), uint64(abs(b)))
	if hi != 0 || lo > math.MaxInt64 {
		return value.Float(float64(a) * float64(b)), nil
	}
	return value.Int(a * b), nil
}

func abs(a int64) int64 {
	if a < 0 {
		return -a
	}
	return a
}

func divide(a, b float64) (value.Value, error) {
	if b == 0 {
		return value.Value{}, queryerr.Evaluation(queryerr.ErrDivisionByZero, string(OperatorDiv), "cannot divide %v by zero", a)
	}
	return value.Float(a / b), nil
}

func modInt(a, b int64) (value.Value, error) {
	if b == 0 {
		return value.Value{}, queryerr.Evaluation(queryerr.ErrDivisionByZero, string(OperatorMod), "cannot take %d modulo zero", a)
	}
	return value.Int(a % b), nil
}

func modFloat(a, b float64) (value.Value, error) {
	if b == 0 {
		return value.Value{}, queryerr.Evaluation(queryerr.ErrDivisionByZero, string(OperatorMod), "cannot take %v modulo zero", a)
	}
	return value.Float(math.Mod(a, b)), nil
}

func millis(v value.Value) time.Duration {
	n, _ := v.AsNumber()
	return time.Duration(n * float64(time.Millisecond))
}

// NewDefaultRegistry creates a registry with the arithmetic of the
// aggregation expression language: numbers combine with numbers, dates
// shift by a number of milliseconds and subtract into milliseconds.
func NewDefaultRegistry() *OperatorRegistry {
	reg := NewOperatorRegistry()

	registerNumeric(reg, OperatorAdd, addInt, func(a, b float64) (value.Value, error) { return value.Float(a + b), nil })
	registerNumeric(reg, OperatorSub, subInt, func(a, b float64) (value.Value, error) { return value.Float(a - b), nil })
	registerNumeric(reg, OperatorMul, mulInt, func(a, b float64) (value.Value, error) { return value.Float(a * b), nil })
	registerNumeric(reg, OperatorDiv, func(a, b int64) (value.Value, error) { return divide(float64(a), float64(b)) }, divide)
	registerNumeric(reg, OperatorMod, modInt, modFloat)

	for _, k := range []value.Kind{value.KindInt, value.KindFloat} {
		// date +/- milliseconds
		reg.RegisterBinary(value.KindTimestamp, OperatorAdd, k, func(l, r value.Value) (value.Value, error) {
			t, _ := l.AsTime()
			return value.Timestamp(t.Add(millis(r))), nil
		})
		reg.RegisterBinary(k, OperatorAdd, value.KindTimestamp, func(l, r value.Value) (value.Value, error) {
			t, _ := r.AsTime()
			return value.Timestamp(t.Add(millis(l))), nil
		})
		reg.RegisterBinary(value.KindTimestamp, OperatorSub, k, func(l, r value.Value) (value.Value, error) {
			t, _ := l.AsTime()
			return value.Timestamp(t.Add(-millis(r))), nil
		})
	}

	// date - date = milliseconds
	reg.RegisterBinary(value.KindTimestamp, OperatorSub, value.KindTimestamp, func(l, r value.Value) (value.Value, error) {
		a, _ := l.AsTime()
		b, _ := r.AsTime()
		return value.Int(a.Sub(b).Milliseconds()), nil
	})

	reg.RegisterUnary(OperatorAbs, value.KindInt, func(v value.Value) (value.Value, error) {
		i, _ := v.AsInt()
		if i == math.MinInt64 {
			return value.Float(-float64(i)), nil
		}
		return value.Int(abs(i)), nil
	})
	reg.RegisterUnary(OperatorAbs, value.KindFloat, func(v value.Value) (value.Value, error) {
		f, _ := v.AsFloat()
		return value.Float(math.Abs(f)), nil
	})
	reg.RegisterUnary(OperatorNeg, value.KindInt, func(v value.Value) (value.Value, error) {
		i, _ := v.AsInt()
		return value.Int(-i), nil
	})
	reg.RegisterUnary(OperatorNeg, value.KindFloat, func(v value.Value) (value.Value, error) {
		f, _ := v.AsFloat()
		return value.Float(-f), nil
	})

	return reg
}
