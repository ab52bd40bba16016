package featurescope

import (
	"context"
	"errors"
	"strings"

	"github.com/goliatone/go-override/pkg/activity"
	"go.uber.org/zap"
)

// Handle is the token a Registry returns from Activate. It is only meaningful
// to the registry that issued it.
type Handle interface {
	Identifier() string
}

// Registry activates and deactivates named overrides. Implementations that
// share global state rely on callers deactivating in the exact reverse order
// of activation, which Scope guarantees.
type Registry interface {
	Activate(id string) (Handle, error)
	Deactivate(h Handle) error
}

// State tracks the scope lifecycle.
type State int

const (
	Pending State = iota
	Active
	Released
)

func (s State) String() string {
	switch s {
	case Pending:
		return "pending"
	case Active:
		return "active"
	case Released:
		return "released"
	default:
		return "unknown"
	}
}

// Option configures a Scope.
type Option func(*scopeConfig)

type scopeConfig struct {
	logger  *zap.Logger
	emitter *activity.Emitter
}

// WithLogger sets the logger used for activation and release diagnostics.
func WithLogger(logger *zap.Logger) Option {
	return func(cfg *scopeConfig) {
		if logger != nil {
			cfg.logger = logger
		}
	}
}

// WithActivityHooks emits featurescope.activated and featurescope.released
// events to hooks. Hook failures are logged and never returned.
func WithActivityHooks(hooks activity.Hooks) Option {
	return func(cfg *scopeConfig) {
		cfg.emitter = activity.NewEmitter(hooks, activity.Config{Enabled: true, Channel: "featurescope"})
	}
}

// Scope holds the activations for one test. It is owned by a single test and
// is not safe for concurrent use.
type Scope struct {
	registry  Registry
	requested []string
	handles   []Handle
	state     State
	logger    *zap.Logger
	emitter   *activity.Emitter
}

// New activates every id through registry, in order, and returns an Active
// scope. Activation is all-or-nothing: if any id fails, the handles already
// activated are deactivated in reverse order before the error is returned.
func New(registry Registry, ids []string, opts ...Option) (*Scope, error) {
	if registry == nil {
		return nil, ErrRegistryRequired
	}
	if len(ids) == 0 {
		return nil, ErrNoFeatures
	}

	cfg := scopeConfig{logger: zap.NewNop()}
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}

	s := &Scope{
		registry:  registry,
		requested: append([]string(nil), ids...),
		state:     Pending,
		logger:    cfg.logger,
		emitter:   cfg.emitter,
	}

	handles := make([]Handle, 0, len(ids))
	for _, id := range ids {
		h, err := registry.Activate(id)
		if err == nil && h == nil {
			err = ErrUnknownFeature
		}
		if err != nil {
			s.logger.Warn("feature activation failed, rolling back",
				zap.String("feature", id),
				zap.Int("rollback", len(handles)),
				zap.Error(err),
			)
			unknown := &UnknownFeatureError{Identifier: id, Err: err}
			var existing *UnknownFeatureError
			if errors.As(err, &existing) {
				unknown = existing
			}
			if rollback := s.deactivateAll(handles); len(rollback) > 0 {
				return nil, errors.Join(append([]error{unknown}, rollback...)...)
			}
			return nil, unknown
		}
		s.logger.Debug("feature activated", zap.String("feature", id))
		handles = append(handles, h)
	}

	s.handles = handles
	s.state = Active
	s.emit("featurescope.activated", map[string]any{"features": s.Requested()})
	return s, nil
}

// Release deactivates every handle in reverse activation order. A failing
// deactivation does not stop the remaining ones; all failures are returned
// together as a *ReleaseError. Calls after the first are no-ops.
func (s *Scope) Release() error {
	if s == nil || s.state != Active {
		return nil
	}
	handles := s.handles
	s.handles = nil
	s.state = Released

	failures := s.deactivateAll(handles)
	s.emit("featurescope.released", map[string]any{
		"features": s.Requested(),
		"failures": len(failures),
	})
	if len(failures) == 0 {
		return nil
	}
	return &ReleaseError{Errors: failures}
}

// State reports the lifecycle state.
func (s *Scope) State() State {
	if s == nil {
		return Pending
	}
	return s.state
}

// Requested returns a copy of the identifiers in the order they were given.
func (s *Scope) Requested() []string {
	if s == nil || len(s.requested) == 0 {
		return nil
	}
	return append([]string(nil), s.requested...)
}

// Handles returns a copy of the active handles in activation order.
func (s *Scope) Handles() []Handle {
	if s == nil || len(s.handles) == 0 {
		return nil
	}
	return append([]Handle(nil), s.handles...)
}

func (s *Scope) deactivateAll(handles []Handle) []error {
	var failures []error
	for i := len(handles) - 1; i >= 0; i-- {
		h := handles[i]
		if err := s.registry.Deactivate(h); err != nil {
			s.logger.Warn("feature deactivation failed",
				zap.String("feature", h.Identifier()),
				zap.Error(err),
			)
			failures = append(failures, &DeactivationError{Identifier: h.Identifier(), Err: err})
			continue
		}
		s.logger.Debug("feature deactivated", zap.String("feature", h.Identifier()))
	}
	return failures
}

func (s *Scope) emit(verb string, metadata map[string]any) {
	if !s.emitter.Enabled() {
		return
	}
	event := activity.Event{
		Verb:       verb,
		ObjectType: "featurescope",
		ObjectID:   strings.Join(s.requested, ","),
		Metadata:   metadata,
	}
	if err := s.emitter.Emit(context.Background(), event); err != nil {
		s.logger.Warn("featurescope activity hook failed", zap.String("verb", verb), zap.Error(err))
	}
}
