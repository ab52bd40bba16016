package override

import (
	"context"

	"github.com/goliatone/go-override/pkg/activity"
	"go.uber.org/zap"
)

// Option configures a Registry.
type Option func(*Registry)

// WithStore persists overrides to store. Registries default to a MemoryStore.
func WithStore(store Store) Option {
	return func(r *Registry) {
		if store != nil {
			r.store = store
		}
	}
}

// WithStoreName labels the store in activity events. It defaults to the
// store's Go type.
func WithStoreName(name string) Option {
	return func(r *Registry) {
		r.storeName = name
	}
}

// WithLogger sets the registry logger. Features registered afterwards log
// rule failures through it.
func WithLogger(logger *zap.Logger) Option {
	return func(r *Registry) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithActivityHooks emits feature.registered and feature.override.* events.
// Hook failures are logged and never returned.
func WithActivityHooks(hooks activity.Hooks, opts ...ActivityOption) Option {
	return func(r *Registry) {
		cfg := activityConfig{}
		for _, opt := range opts {
			if opt != nil {
				opt(&cfg)
			}
		}
		r.emitter = activity.NewEmitter(hooks, activity.Config{Enabled: true, Channel: cfg.channel})
		r.actorID = cfg.actorID
		r.tenantID = cfg.tenantID
	}
}

// WithContext sets the context used for store calls triggered by
// SetOverride, which has no context of its own.
func WithContext(ctx context.Context) Option {
	return func(r *Registry) {
		if ctx != nil {
			r.ctx = ctx
		}
	}
}

// ActivityOption configures the fields stamped on registry activity events.
type ActivityOption func(*activityConfig)

type activityConfig struct {
	channel  string
	actorID  string
	tenantID string
}

// ActivityChannel overrides activity.DefaultChannel.
func ActivityChannel(channel string) ActivityOption {
	return func(cfg *activityConfig) {
		cfg.channel = channel
	}
}

// ActivityActor stamps actor and tenant identifiers on every event.
func ActivityActor(actorID, tenantID string) ActivityOption {
	return func(cfg *activityConfig) {
		cfg.actorID = actorID
		cfg.tenantID = tenantID
	}
}
