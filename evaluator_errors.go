package override

import (
	"errors"
	"fmt"
	"strings"
)

// EvaluationError captures rule metadata alongside the originating error.
type EvaluationError struct {
	Engine  string
	Expr    string
	Feature string
	Err     error
}

func (e *EvaluationError) Error() string {
	if e == nil {
		return "<nil>"
	}
	return fmt.Sprintf("override: %s evaluator %s feature=%s: %v", e.Engine, describeExpression(e.Expr), e.Feature, e.Err)
}

func (e *EvaluationError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

func describeExpression(expr string) string {
	if expr == "" {
		return "expr=<empty>"
	}
	return fmt.Sprintf("expr=%q", expr)
}

func wrapEvaluatorError(engine string, err error) error {
	if err == nil {
		return nil
	}
	var evalErr *EvaluationError
	if errors.As(err, &evalErr) {
		return err
	}
	if strings.HasPrefix(err.Error(), "override:") {
		return err
	}
	return fmt.Errorf("override: %s evaluator: %w", engine, err)
}

// wrapEvaluationError fills missing metadata on an existing EvaluationError
// instead of nesting a second one.
func wrapEvaluationError(engine, expr, feature string, err error) error {
	if err == nil {
		return nil
	}
	var evalErr *EvaluationError
	if errors.As(err, &evalErr) {
		if evalErr.Engine == "" {
			evalErr.Engine = engine
		}
		if evalErr.Expr == "" {
			evalErr.Expr = expr
		}
		if evalErr.Feature == "" {
			evalErr.Feature = feature
		}
		return evalErr
	}
	return &EvaluationError{
		Engine:  engine,
		Expr:    expr,
		Feature: feature,
		Err:     err,
	}
}
