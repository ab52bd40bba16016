package override

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/goliatone/go-override/pkg/activity"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// groupSeparator joins nested group labels and the feature label in
// descriptions.
const groupSeparator = " → "

type entry struct {
	feature *Feature
	label   string
	groups  []string
}

func (e entry) group() string {
	labels := make([]string, 0, len(e.groups))
	for _, g := range e.groups {
		labels = append(labels, unCamelCase(g))
	}
	return strings.Join(labels, groupSeparator)
}

// Registry owns a set of features and keeps their overrides in sync with a
// Store. Overrides are loaded when a feature is registered and every later
// change is saved back.
type Registry struct {
	mu        sync.RWMutex
	ctx       context.Context
	store     Store
	storeName string
	logger    *zap.Logger
	emitter   *activity.Emitter
	actorID   string
	tenantID  string
	entries   []entry
	byKey     map[string]int
	active    map[uuid.UUID]*overrideHandle
}

// NewRegistry builds an empty registry.
func NewRegistry(opts ...Option) *Registry {
	r := &Registry{
		ctx:    context.Background(),
		logger: zap.NewNop(),
		byKey:  make(map[string]int),
		active: make(map[uuid.UUID]*overrideHandle),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(r)
		}
	}
	if r.store == nil {
		r.store = NewMemoryStore(nil)
	}
	if r.storeName == "" {
		r.storeName = fmt.Sprintf("%T", r.store)
	}
	return r
}

// Store returns the backing store.
func (r *Registry) Store() Store {
	return r.store
}

// Register adds ungrouped features. Keys must be set and unique; nothing is
// registered when any feature is rejected.
func (r *Registry) Register(features ...*Feature) error {
	entries := make([]entry, 0, len(features))
	for _, f := range features {
		if f == nil {
			continue
		}
		entries = append(entries, entry{feature: f, label: f.Key()})
	}
	return r.register(entries)
}

// RegisterGroup adds features under a group label used by descriptions.
func (r *Registry) RegisterGroup(label string, features ...*Feature) error {
	var groups []string
	if label = strings.TrimSpace(label); label != "" {
		groups = []string{label}
	}
	entries := make([]entry, 0, len(features))
	for _, f := range features {
		if f == nil {
			continue
		}
		entries = append(entries, entry{feature: f, label: f.Key(), groups: groups})
	}
	return r.register(entries)
}

// Configure registers a feature added at runtime and returns the instance
// the registry tracks. When the key is already registered the existing
// feature is returned and f is ignored.
func (r *Registry) Configure(f *Feature) *Feature {
	if f == nil {
		return nil
	}
	if existing, ok := r.Lookup(f.Key()); ok {
		return existing
	}
	if err := r.register([]entry{{feature: f, label: f.Key()}}); err != nil {
		if errors.Is(err, ErrDuplicateFeature) {
			if existing, ok := r.Lookup(f.Key()); ok {
				return existing
			}
		}
		r.logger.Warn("feature not configured", zap.String("feature", f.Key()), zap.Error(err))
	}
	return f
}

func (r *Registry) register(entries []entry) error {
	if len(entries) == 0 {
		return nil
	}

	r.mu.Lock()
	seen := make(map[string]struct{}, len(entries))
	for _, e := range entries {
		key := e.feature.Key()
		if key == "" {
			r.mu.Unlock()
			return ErrFeatureKeyRequired
		}
		if _, ok := r.byKey[key]; ok {
			r.mu.Unlock()
			return fmt.Errorf("%w: %s", ErrDuplicateFeature, key)
		}
		if _, ok := seen[key]; ok {
			r.mu.Unlock()
			return fmt.Errorf("%w: %s", ErrDuplicateFeature, key)
		}
		seen[key] = struct{}{}
	}
	for _, e := range entries {
		r.byKey[e.feature.Key()] = len(r.entries)
		r.entries = append(r.entries, e)
	}
	r.mu.Unlock()

	for _, e := range entries {
		r.bootstrap(e)
	}
	return nil
}

// bootstrap loads the stored override before installing the change handler
// so the initial value is never written back.
func (r *Registry) bootstrap(e entry) {
	key := e.feature.Key()
	state, err := r.store.Load(r.ctx, key)
	if err != nil {
		r.logger.Warn("override load failed, using default", zap.String("feature", key), zap.Error(err))
		state = Default
	}
	e.feature.bootstrap(state)
	e.feature.bind(r.overrideChanged, r.logger)
	r.logger.Debug("feature registered", zap.String("feature", key), zap.Stringer("override", state))

	r.emit(activity.BuildFeatureRegisteredEvent(r.eventInput(e, "", state.String())))
}

func (r *Registry) overrideChanged(f *Feature, old OverrideState) error {
	key := f.Key()
	state := f.Override()
	r.logger.Debug("feature override changed",
		zap.String("feature", key),
		zap.Stringer("from", old),
		zap.Stringer("to", state),
	)
	if err := r.store.Save(r.ctx, key, state); err != nil {
		r.logger.Error("override save failed", zap.String("feature", key), zap.Error(err))
		return fmt.Errorf("override: save %q: %w", key, err)
	}

	if e, ok := r.entry(key); ok {
		r.emit(activity.BuildOverrideChangedEvent(r.eventInput(e, old.String(), state.String())))
	}
	return nil
}

// storedOverride returns what a Save for key would overwrite.
func (r *Registry) storedOverride(key string) (OverrideState, error) {
	if target, ok := r.store.(WriteTarget); ok {
		return target.StoredOverride(r.ctx, key)
	}
	return r.store.Load(r.ctx, key)
}

// restoreStored writes stored back for f after a scope restored its
// in-memory override from old to state.
func (r *Registry) restoreStored(f *Feature, old, state, stored OverrideState) error {
	key := f.Key()
	if err := r.store.Save(r.ctx, key, stored); err != nil {
		r.logger.Error("override restore failed", zap.String("feature", key), zap.Error(err))
		return fmt.Errorf("override: restore %q: %w", key, err)
	}
	if old == state {
		return nil
	}
	if e, ok := r.entry(key); ok {
		r.emit(activity.BuildOverrideChangedEvent(r.eventInput(e, old.String(), state.String())))
	}
	return nil
}

// Lookup returns the feature registered under key.
func (r *Registry) Lookup(key string) (*Feature, bool) {
	e, ok := r.entry(key)
	if !ok {
		return nil, false
	}
	return e.feature, true
}

func (r *Registry) entry(key string) (entry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	idx, ok := r.byKey[key]
	if !ok {
		return entry{}, false
	}
	return r.entries[idx], true
}

// Features returns the registered features in registration order.
func (r *Registry) Features() []*Feature {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Feature, 0, len(r.entries))
	for _, e := range r.entries {
		out = append(out, e.feature)
	}
	return out
}

func (r *Registry) snapshot() []entry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]entry(nil), r.entries...)
}

// Refresh reloads every override from the store without writing back. Load
// failures leave the feature untouched and are returned together.
func (r *Registry) Refresh(ctx context.Context) error {
	var errs []error
	for _, e := range r.snapshot() {
		key := e.feature.Key()
		state, err := r.store.Load(ctx, key)
		if err != nil {
			errs = append(errs, fmt.Errorf("override: load %q: %w", key, err))
			continue
		}
		if old := e.feature.Override(); old != state {
			e.feature.bootstrap(state)
			r.logger.Debug("feature override refreshed",
				zap.String("feature", key),
				zap.Stringer("from", old),
				zap.Stringer("to", state),
			)
		}
	}
	return errors.Join(errs...)
}

// Reset clears every override back to Default.
func (r *Registry) Reset() error {
	var errs []error
	for _, e := range r.snapshot() {
		if err := e.feature.SetOverride(Default); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (r *Registry) eventInput(e entry, oldState, newState string) activity.OverrideEventInput {
	return activity.OverrideEventInput{
		ActorID:  r.actorID,
		TenantID: r.tenantID,
		Feature: activity.FeatureContext{
			Key:             e.feature.Key(),
			Label:           unCamelCase(e.label),
			Group:           e.group(),
			RequiresRestart: e.feature.RequiresRestart(),
		},
		OldState: oldState,
		NewState: newState,
		Store:    r.storeName,
	}
}

func (r *Registry) emit(event activity.Event) {
	if !r.emitter.Enabled() {
		return
	}
	if err := r.emitter.Emit(r.ctx, event); err != nil {
		r.logger.Warn("override activity hook failed", zap.String("verb", event.Verb), zap.Error(err))
	}
}
