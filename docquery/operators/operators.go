package operators

type Operator string

const (
	// Arithmetic

	OperatorAdd Operator = "$add"
	OperatorSub Operator = "$subtract"
	OperatorMul Operator = "$multiply"
	OperatorDiv Operator = "$divide"
	OperatorMod Operator = "$mod"

	// Unary

	OperatorAbs Operator = "$abs"
	OperatorNeg Operator = "-neg"
)
