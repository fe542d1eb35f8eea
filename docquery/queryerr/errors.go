// Package queryerr defines the error kinds raised by the query engine.
//
// Every error produced while parsing or evaluating a filter, expression or
// pipeline is a *Error carrying one of three kinds (malformed specification,
// unsupported feature, evaluation error) and optionally a more specific
// reason. Both are reachable with errors.Is.
package queryerr

import (
	"errors"
	"fmt"
)

// Kinds.
var (
	ErrMalformedSpecification = errors.New("malformed specification")
	ErrUnsupportedFeature     = errors.New("unsupported feature")
	ErrEvaluation             = errors.New("evaluation error")
)

// Reasons.
var (
	ErrUnknownOperator  = errors.New("unknown operator")
	ErrMultiKeyOperator = errors.New("multi-key operator document")
	ErrArity            = errors.New("wrong argument arity")
	ErrNotImplemented   = errors.New("not implemented")
	ErrTypeMismatch     = errors.New("type mismatch")
	ErrDivisionByZero   = errors.New("division by zero")
	ErrNonUniqueMerge   = errors.New("merge target is not unique")
	ErrMergeNoMatch     = errors.New("merge found no target document")
	ErrMergeMatched     = errors.New("merge found an existing target document")
)

type Error struct {
	Kind   error
	Reason error
	Op     string
	Msg    string
}

func (e *Error) Error() string {
	var prefix string
	if e.Op != "" {
		prefix = e.Op + ": "
	}
	if e.Reason != nil {
		if e.Msg == "" {
			return fmt.Sprintf("%s%s: %s", prefix, e.Kind, e.Reason)
		}
		return fmt.Sprintf("%s%s: %s: %s", prefix, e.Kind, e.Reason, e.Msg)
	}
	return fmt.Sprintf("%s%s: %s", prefix, e.Kind, e.Msg)
}

func (e *Error) Is(target error) bool {
	return target == e.Kind || (e.Reason != nil && target == e.Reason)
}

func newError(kind, reason error, op, format string, args ...any) *Error {
	return &Error{
		Kind:   kind,
		Reason: reason,
		Op:     op,
		Msg:    fmt.Sprintf(format, args...),
	}
}

// Malformed reports a specification rejected at parse time.
func Malformed(reason error, op, format string, args ...any) *Error {
	return newError(ErrMalformedSpecification, reason, op, format, args...)
}

// Unsupported reports a recognized feature the engine does not implement.
func Unsupported(reason error, op, format string, args ...any) *Error {
	return newError(ErrUnsupportedFeature, reason, op, format, args...)
}

// Evaluation reports a runtime failure while processing a document.
func Evaluation(reason error, op, format string, args ...any) *Error {
	return newError(ErrEvaluation, reason, op, format, args...)
}

// TypeMismatch is a shorthand for an evaluation error caused by operand types.
func TypeMismatch(op, format string, args ...any) *Error {
	return Evaluation(ErrTypeMismatch, op, format, args...)
}

// UnknownOperator is a shorthand for a malformed specification naming an
// operator outside the supported set.
func UnknownOperator(op string) *Error {
	return Malformed(ErrUnknownOperator, op, "operator is not recognized")
}

func IsMalformed(err error) bool {
	return errors.Is(err, ErrMalformedSpecification)
}

func IsUnsupported(err error) bool {
	return errors.Is(err, ErrUnsupportedFeature)
}

func IsEvaluation(err error) bool {
	return errors.Is(err, ErrEvaluation)
}
