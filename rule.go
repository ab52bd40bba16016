package override

import (
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

var (
	defaultEvaluatorOnce sync.Once
	defaultEvaluator     Evaluator
)

// DefaultEvaluator returns the shared expr evaluator used by rules that were
// given no evaluator. Its programs are cached.
func DefaultEvaluator() Evaluator {
	defaultEvaluatorOnce.Do(func() {
		defaultEvaluator = NewExprEvaluator(ExprWithProgramCache(NewProgramCache(DefaultProgramCacheSize)))
	})
	return defaultEvaluator
}

// defaultRule computes a feature default from an expression. The program is
// compiled on first use and reused afterwards.
type defaultRule struct {
	evaluator  Evaluator
	expression string
	args       map[string]any

	once     sync.Once
	compiled CompiledRule
	err      error
	now      func() time.Time
}

func newDefaultRule(evaluator Evaluator, expression string, args map[string]any) *defaultRule {
	if evaluator == nil {
		evaluator = DefaultEvaluator()
	}
	return &defaultRule{
		evaluator:  evaluator,
		expression: expression,
		args:       cloneArgs(args),
		now:        time.Now,
	}
}

func (r *defaultRule) evaluate(key string, logger *zap.Logger) (bool, error) {
	r.once.Do(func() {
		r.compiled, r.err = r.evaluator.Compile(r.expression)
		if r.err != nil && logger != nil {
			logger.Error("feature default rule does not compile",
				zap.String("feature", key),
				zap.String("expr", r.expression),
				zap.Error(r.err),
			)
		}
	})
	if r.err != nil {
		return false, r.err
	}

	now := r.now()
	result, err := r.compiled.Evaluate(RuleContext{
		Feature:  key,
		Now:      &now,
		Args:     cloneArgs(r.args),
		Metadata: map[string]any{"expr": r.expression},
	})
	if err != nil {
		return false, err
	}
	enabled, ok := result.(bool)
	if !ok {
		return false, &EvaluationError{
			Engine:  "rule",
			Expr:    r.expression,
			Feature: key,
			Err:     fmt.Errorf("%w: got %T", ErrRuleResult, result),
		}
	}
	return enabled, nil
}

func cloneArgs(args map[string]any) map[string]any {
	if len(args) == 0 {
		return map[string]any{}
	}
	out := make(map[string]any, len(args))
	for k, v := range args {
		out[k] = v
	}
	return out
}
