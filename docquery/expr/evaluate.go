package expr

import (
	"strconv"
	"strings"
	"time"

	"github.com/krew-solutions/ascetic-docquery-go/docquery/operators"
	"github.com/krew-solutions/ascetic-docquery-go/docquery/queryerr"
	"github.com/krew-solutions/ascetic-docquery-go/docquery/value"
)

// Vars binds user variables ("$$name") for one evaluation.
type Vars map[string]value.Value

type Option func(*Evaluator)

func WithRegistry(reg *operators.OperatorRegistry) Option {
	return func(ev *Evaluator) {
		ev.registry = reg
	}
}

// WithClock replaces the source of $$NOW.
func WithClock(now func() time.Time) Option {
	return func(ev *Evaluator) {
		ev.now = now
	}
}

// Evaluator evaluates expression trees. It holds no per-call state and may
// be shared between goroutines.
type Evaluator struct {
	registry *operators.OperatorRegistry
	now      func() time.Time
}

func NewEvaluator(opts ...Option) *Evaluator {
	ev := &Evaluator{
		registry: operators.NewDefaultRegistry(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(ev)
	}
	return ev
}

var defaultEvaluator = NewEvaluator()

// Evaluate evaluates e against doc with the default evaluator.
func Evaluate(e Expr, doc value.Document) (value.Value, error) {
	return defaultEvaluator.Evaluate(e, doc)
}

// EvaluateWith evaluates e against doc with additional variables bound.
func EvaluateWith(e Expr, doc value.Document, vars Vars) (value.Value, error) {
	return defaultEvaluator.EvaluateWith(e, doc, vars)
}

func (ev *Evaluator) Evaluate(e Expr, doc value.Document) (value.Value, error) {
	return ev.EvaluateWith(e, doc, nil)
}

func (ev *Evaluator) EvaluateWith(e Expr, doc value.Document, vars Vars) (value.Value, error) {
	root := value.Doc(doc)
	return ev.eval(e, &env{root: root, current: root, vars: vars, now: ev.now})
}

type env struct {
	root    value.Value
	current value.Value
	vars    Vars
	now     func() time.Time
	nowVal  *value.Value
}

// timestamp returns $$NOW, fixed for the whole evaluation.
func (en *env) timestamp() value.Value {
	if en.nowVal == nil {
		v := value.Timestamp(en.now())
		en.nowVal = &v
	}
	return *en.nowVal
}

func (ev *Evaluator) eval(e Expr, en *env) (value.Value, error) {
	switch x := e.(type) {
	case Literal:
		return x.Value, nil

	case FieldRef:
		v, _ := value.Lookup(en.current, value.SplitPath(x.Path))
		return v, nil

	case Variable:
		return ev.variable(x, en)

	case Object:
		fields := make([]value.Field, 0, len(x.Fields))
		for _, f := range x.Fields {
			v, err := ev.eval(f.Expr, en)
			if err != nil {
				return value.Value{}, err
			}
			fields = append(fields, value.F(f.Key, v))
		}
		return value.Doc(value.NewDocument(fields...)), nil

	case ArrayExpr:
		items, err := ev.evalAll(x.Items, en)
		if err != nil {
			return value.Value{}, err
		}
		return value.Array(items...), nil

	case Op:
		return ev.evalOp(x, en)
	}
	return value.Value{}, queryerr.Malformed(nil, "expression", "unexpected node %T", e)
}

func (ev *Evaluator) variable(x Variable, en *env) (value.Value, error) {
	var base value.Value
	switch x.Name {
	case VarRoot:
		base = en.root
	case VarCurrent:
		base = en.current
	case VarNow:
		base = en.timestamp()
	default:
		v, ok := en.vars[x.Name]
		if !ok {
			return value.Value{}, queryerr.Evaluation(nil, "$$"+x.Name, "variable is not defined")
		}
		base = v
	}
	if x.Path == "" {
		return base, nil
	}
	v, _ := value.Lookup(base, value.SplitPath(x.Path))
	return v, nil
}

func (ev *Evaluator) evalAll(exprs []Expr, en *env) ([]value.Value, error) {
	out := make([]value.Value, len(exprs))
	for i, e := range exprs {
		v, err := ev.eval(e, en)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func (ev *Evaluator) evalOp(op Op, en *env) (value.Value, error) {
	// Operators that do not evaluate every argument up front.
	switch op.Code {
	case OpAnd:
		for _, arg := range op.Args {
			v, err := ev.eval(arg, en)
			if err != nil {
				return value.Value{}, err
			}
			if !value.Truthy(v) {
				return value.Bool(false), nil
			}
		}
		return value.Bool(true), nil

	case OpOr:
		for _, arg := range op.Args {
			v, err := ev.eval(arg, en)
			if err != nil {
				return value.Value{}, err
			}
			if value.Truthy(v) {
				return value.Bool(true), nil
			}
		}
		return value.Bool(false), nil

	case OpCond:
		cond, err := ev.eval(op.Args[0], en)
		if err != nil {
			return value.Value{}, err
		}
		if value.Truthy(cond) {
			return ev.eval(op.Args[1], en)
		}
		return ev.eval(op.Args[2], en)

	case OpIfNull:
		last := len(op.Args) - 1
		for _, arg := range op.Args[:last] {
			v, err := ev.eval(arg, en)
			if err != nil {
				return value.Value{}, err
			}
			if !v.IsNull() {
				return v, nil
			}
		}
		return ev.eval(op.Args[last], en)

	case OpType:
		if ref, ok := op.Args[0].(FieldRef); ok {
			if _, found := value.Lookup(en.current, value.SplitPath(ref.Path)); !found {
				return value.String("missing"), nil
			}
		}
	}

	args, err := ev.evalAll(op.Args, en)
	if err != nil {
		return value.Value{}, err
	}
	name := op.Code.String()

	switch op.Code {
	case OpAdd:
		return ev.registry.Fold(operators.OperatorAdd, args)
	case OpSubtract:
		return ev.registry.ExecBinary(args[0], operators.OperatorSub, args[1])
	case OpMultiply:
		return ev.registry.Fold(operators.OperatorMul, args)
	case OpDivide:
		return ev.registry.ExecBinary(args[0], operators.OperatorDiv, args[1])
	case OpMod:
		return ev.registry.ExecBinary(args[0], operators.OperatorMod, args[1])
	case OpAbs:
		return ev.registry.ExecUnary(operators.OperatorAbs, args[0])

	case OpEq:
		return value.Bool(value.Equal(args[0], args[1])), nil
	case OpNe:
		return value.Bool(!value.Equal(args[0], args[1])), nil
	case OpGt:
		return value.Bool(value.SortCompare(args[0], args[1]) > 0), nil
	case OpGte:
		return value.Bool(value.SortCompare(args[0], args[1]) >= 0), nil
	case OpLt:
		return value.Bool(value.SortCompare(args[0], args[1]) < 0), nil
	case OpLte:
		return value.Bool(value.SortCompare(args[0], args[1]) <= 0), nil
	case OpCmp:
		return value.Int(int64(value.SortCompare(args[0], args[1]))), nil

	case OpNot:
		return value.Bool(!value.Truthy(args[0])), nil
	case OpToBool:
		return value.Bool(value.Truthy(args[0])), nil
	case OpIsNull:
		return value.Bool(args[0].IsNull()), nil
	case OpIsArray:
		return value.Bool(args[0].IsArray()), nil

	case OpConcat:
		return concat(name, args)
	case OpToLower, OpToUpper:
		if args[0].IsNull() {
			return value.String(""), nil
		}
		s, err := stringify(name, args[0])
		if err != nil {
			return value.Value{}, err
		}
		if op.Code == OpToLower {
			return value.String(strings.ToLower(s)), nil
		}
		return value.String(strings.ToUpper(s)), nil
	case OpSubstr:
		return substr(name, args[0], args[1], args[2])
	case OpToString:
		if args[0].IsNull() {
			return value.Null(), nil
		}
		s, err := stringify(name, args[0])
		if err != nil {
			return value.Value{}, err
		}
		return value.String(s), nil
	case OpType:
		return value.String(args[0].Kind().String()), nil

	case OpSize:
		if !args[0].IsArray() {
			return value.Value{}, queryerr.TypeMismatch(name, "argument must be an array, got %s", args[0].Kind())
		}
		return value.Int(int64(args[0].Len())), nil
	case OpArrayElemAt:
		return arrayElemAt(name, args[0], args[1])
	case OpIn:
		if !args[1].IsArray() {
			return value.Value{}, queryerr.TypeMismatch(name, "second argument must be an array, got %s", args[1].Kind())
		}
		return value.Bool(value.Contains(args[1], args[0])), nil
	}
	return value.Value{}, queryerr.UnknownOperator(name)
}

func concat(name string, args []value.Value) (value.Value, error) {
	var b strings.Builder
	for _, a := range args {
		if a.IsNull() {
			return value.Null(), nil
		}
		s, ok := a.AsString()
		if !ok {
			return value.Value{}, queryerr.TypeMismatch(name, "only supports strings, got %s", a.Kind())
		}
		b.WriteString(s)
	}
	return value.String(b.String()), nil
}

const dateLayout = "2006-01-02T15:04:05.000Z"

// stringify renders scalars the way $toString does.
func stringify(name string, v value.Value) (string, error) {
	switch v.Kind() {
	case value.KindString:
		s, _ := v.AsString()
		return s, nil
	case value.KindInt:
		i, _ := v.AsInt()
		return strconv.FormatInt(i, 10), nil
	case value.KindFloat:
		f, _ := v.AsFloat()
		return strconv.FormatFloat(f, 'g', -1, 64), nil
	case value.KindBool:
		b, _ := v.AsBool()
		return strconv.FormatBool(b), nil
	case value.KindTimestamp:
		t, _ := v.AsTime()
		return t.UTC().Format(dateLayout), nil
	case value.KindObjectID:
		id, _ := v.AsObjectID()
		return id.Hex(), nil
	}
	return "", queryerr.TypeMismatch(name, "cannot convert %s to string", v.Kind())
}

func integerArg(name string, v value.Value) (int64, error) {
	n, ok := v.AsInteger()
	if !ok {
		return 0, queryerr.TypeMismatch(name, "expected an integer, got %s", v.Kind())
	}
	return n, nil
}

// substr works on bytes. A negative length means "to the end".
func substr(name string, sv, startv, lengthv value.Value) (value.Value, error) {
	var s string
	if !sv.IsNull() {
		var err error
		if s, err = stringify(name, sv); err != nil {
			return value.Value{}, err
		}
	}
	start, err := integerArg(name, startv)
	if err != nil {
		return value.Value{}, err
	}
	length, err := integerArg(name, lengthv)
	if err != nil {
		return value.Value{}, err
	}
	if start < 0 || start >= int64(len(s)) {
		return value.String(""), nil
	}
	end := int64(len(s))
	if length >= 0 && length < end-start {
		end = start + length
	}
	return value.String(s[start:end]), nil
}

func arrayElemAt(name string, arr, idxv value.Value) (value.Value, error) {
	if arr.IsNull() || idxv.IsNull() {
		return value.Null(), nil
	}
	if !arr.IsArray() {
		return value.Value{}, queryerr.TypeMismatch(name, "first argument must be an array, got %s", arr.Kind())
	}
	idx, err := integerArg(name, idxv)
	if err != nil {
		return value.Value{}, err
	}
	n := int64(arr.Len())
	if idx < 0 {
		idx += n
	}
	if idx < 0 || idx >= n {
		return value.Null(), nil
	}
	return arr.Index(int(idx)), nil
}
