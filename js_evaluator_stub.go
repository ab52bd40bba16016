//go:build !js_eval

package override

// NewJSEvaluator is unavailable without the js_eval build tag and returns nil.
// Default rules given a nil evaluator fall back to expr.
func NewJSEvaluator(opts ...JSEvaluatorOption) Evaluator {
	_ = applyJSEvaluatorOptions(opts)
	return nil
}

func jsEvaluatorAvailable() bool {
	return false
}
