package override

import (
	"fmt"
	"sync"

	"go.uber.org/zap"
)

// DefaultFunc computes a feature's default state on every read.
type DefaultFunc func(f *Feature) bool

// changeHandler is installed by the owning registry and runs after every
// override change. Its error is returned from SetOverride.
type changeHandler func(f *Feature, old OverrideState) error

// FeatureOption configures a Feature.
type FeatureOption func(*Feature)

// WithKey sets the feature key. Features discovered from a struct without a
// key take the field name.
func WithKey(key string) FeatureOption {
	return func(f *Feature) {
		f.key = key
	}
}

// WithRequiresRestart marks features whose new value is only picked up after
// a restart.
func WithRequiresRestart(requiresRestart bool) FeatureOption {
	return func(f *Feature) {
		f.requiresRestart = requiresRestart
	}
}

// WithDefaultState sets a static default.
func WithDefaultState(enabled bool) FeatureOption {
	return func(f *Feature) {
		f.defaultState = enabled
	}
}

// WithComputedDefault makes the default dynamic; fn runs on every read.
func WithComputedDefault(fn DefaultFunc) FeatureOption {
	return func(f *Feature) {
		f.computed = fn
		f.rule = nil
	}
}

// WithDefaultRule makes the default dynamic by evaluating expression. A nil
// evaluator uses expr. Failing or non-boolean results read as false.
func WithDefaultRule(evaluator Evaluator, expression string, args map[string]any) FeatureOption {
	return func(f *Feature) {
		f.rule = newDefaultRule(evaluator, expression, args)
		f.computed = nil
	}
}

// Feature is a named boolean with a default and a local override.
type Feature struct {
	// persist serialises override changes with their persistence so the
	// store sees them in the same order as memory.
	persist         sync.Mutex
	mu              sync.RWMutex
	key             string
	requiresRestart bool
	defaultState    bool
	computed        DefaultFunc
	rule            *defaultRule
	override        OverrideState
	onChange        changeHandler
	logger          *zap.Logger
}

// NewFeature builds a feature with Default override state.
func NewFeature(opts ...FeatureOption) *Feature {
	f := &Feature{logger: zap.NewNop()}
	for _, opt := range opts {
		if opt != nil {
			opt(f)
		}
	}
	return f
}

// Key returns the feature key, empty until set or discovered.
func (f *Feature) Key() string {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.key
}

// RequiresRestart reports whether changes need a restart to take effect.
func (f *Feature) RequiresRestart() bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.requiresRestart
}

// Dynamic reports whether the default is computed.
func (f *Feature) Dynamic() bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.computed != nil || f.rule != nil
}

// DefaultState returns the default, computing it for dynamic features.
func (f *Feature) DefaultState() bool {
	enabled, err := f.EvaluateDefault()
	if err != nil {
		f.mu.RLock()
		logger := f.logger
		f.mu.RUnlock()
		if logger == nil {
			return false
		}
		logger.Warn("feature default rule failed", zap.String("feature", f.Key()), zap.Error(err))
		return false
	}
	return enabled
}

// EvaluateDefault is DefaultState with rule failures reported.
func (f *Feature) EvaluateDefault() (bool, error) {
	f.mu.RLock()
	computed, rule, static, key, logger := f.computed, f.rule, f.defaultState, f.key, f.logger
	f.mu.RUnlock()

	switch {
	case computed != nil:
		return computed(f), nil
	case rule != nil:
		return rule.evaluate(key, logger)
	default:
		return static, nil
	}
}

// Enabled resolves the effective state: an override wins, otherwise the
// default applies.
func (f *Feature) Enabled() bool {
	switch f.Override() {
	case Enabled:
		return true
	case Disabled:
		return false
	default:
		return f.DefaultState()
	}
}

// Override returns the current override state.
func (f *Feature) Override() OverrideState {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.override
}

// SetOverride changes the override. When the state actually changes and the
// feature belongs to a registry, the change is persisted and any persistence
// error is returned; the in-memory state is updated either way. Concurrent
// calls persist in the order they update memory.
func (f *Feature) SetOverride(state OverrideState) error {
	if !state.Valid() {
		return fmt.Errorf("%w: %d", ErrInvalidOverrideState, int(state))
	}
	f.persist.Lock()
	defer f.persist.Unlock()
	f.mu.Lock()
	old := f.override
	f.override = state
	handler := f.onChange
	f.mu.Unlock()

	if handler == nil || old == state {
		return nil
	}
	return handler(f, old)
}

// String renders "key:[ON] - Override: Default, Default: true".
func (f *Feature) String() string {
	key := f.Key()
	if key == "" {
		key = "UNKNOWN"
	}
	enabled := "OFF"
	if f.Enabled() {
		enabled = "ON"
	}
	return fmt.Sprintf("%s:[%s] - Override: %s, Default: %t", key, enabled, f.Override(), f.DefaultState())
}

// bootstrap sets the override loaded from a store without firing the change
// handler.
func (f *Feature) bootstrap(state OverrideState) {
	f.mu.Lock()
	f.override = state
	f.mu.Unlock()
}

// restore sets state without the change handler, then runs save under the
// same lock SetOverride persists under.
func (f *Feature) restore(state OverrideState, save func(old OverrideState) error) error {
	f.persist.Lock()
	defer f.persist.Unlock()
	f.mu.Lock()
	old := f.override
	f.override = state
	f.mu.Unlock()
	if save == nil {
		return nil
	}
	return save(old)
}

func (f *Feature) bind(handler changeHandler, logger *zap.Logger) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.onChange = handler
	if logger != nil {
		f.logger = logger
	}
}

func (f *Feature) setKey(key string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.key = key
}
