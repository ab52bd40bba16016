package override

import (
	"fmt"

	"github.com/goliatone/go-override/pkg/featurescope"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// overrideHandle records what an activation replaced so it can be restored.
// previous is the in-memory override; stored is what the store's save target
// held, which differs from previous when the override came from a weaker
// layer.
type overrideHandle struct {
	id       uuid.UUID
	key      string
	previous OverrideState
	stored   OverrideState
	state    OverrideState
}

func (h *overrideHandle) Identifier() string {
	return h.key
}

// ID is unique per activation, so two activations of the same key are told
// apart.
func (h *overrideHandle) ID() uuid.UUID {
	return h.id
}

func (h *overrideHandle) String() string {
	return fmt.Sprintf("%s:%s (was %s) #%s", h.key, h.state, h.previous, h.id)
}

// overrideActivator forces registered features into a fixed override state
// for the lifetime of a scope.
type overrideActivator struct {
	registry *Registry
	state    OverrideState
}

// Overrides returns a featurescope.Registry that sets state on activation
// and restores the previous override on deactivation. Changes go through
// SetOverride, so they are persisted and emitted like any other.
func (r *Registry) Overrides(state OverrideState) featurescope.Registry {
	return &overrideActivator{registry: r, state: state}
}

// Enabling forces features on for a scope.
func (r *Registry) Enabling() featurescope.Registry {
	return r.Overrides(Enabled)
}

// Disabling forces features off for a scope.
func (r *Registry) Disabling() featurescope.Registry {
	return r.Overrides(Disabled)
}

func (a *overrideActivator) Activate(id string) (featurescope.Handle, error) {
	f, ok := a.registry.Lookup(id)
	if !ok {
		return nil, &featurescope.UnknownFeatureError{Identifier: id}
	}
	stored, err := a.registry.storedOverride(id)
	if err != nil {
		return nil, fmt.Errorf("override: activate %q: %w", id, err)
	}
	previous := f.Override()
	if err := f.SetOverride(a.state); err != nil {
		_ = f.restore(previous, nil)
		return nil, fmt.Errorf("override: activate %q: %w", id, err)
	}

	h := &overrideHandle{
		id:       uuid.New(),
		key:      id,
		previous: previous,
		stored:   stored,
		state:    a.state,
	}
	a.registry.mu.Lock()
	a.registry.active[h.id] = h
	a.registry.mu.Unlock()

	a.registry.logger.Debug("feature override activated",
		zap.String("feature", id),
		zap.Stringer("state", a.state),
		zap.Stringer("previous", previous),
		zap.Stringer("stored", stored),
		zap.String("handle", h.id.String()),
	)
	return h, nil
}

// Deactivate restores the in-memory override the handle replaced and writes
// back what the store held before activation, so a value that came from a
// read-only or weaker layer is never copied into the writable one. The
// in-memory state is restored even when the write fails.
func (a *overrideActivator) Deactivate(handle featurescope.Handle) error {
	h, ok := handle.(*overrideHandle)
	if !ok || h == nil {
		return fmt.Errorf("%w: %T", ErrStaleHandle, handle)
	}
	a.registry.mu.Lock()
	current, ok := a.registry.active[h.id]
	if ok && current == h {
		delete(a.registry.active, h.id)
	}
	a.registry.mu.Unlock()
	if !ok || current != h {
		return fmt.Errorf("%w: %s", ErrStaleHandle, h.id)
	}

	f, found := a.registry.Lookup(h.key)
	if !found {
		return &featurescope.UnknownFeatureError{Identifier: h.key}
	}
	a.registry.logger.Debug("feature override restored",
		zap.String("feature", h.key),
		zap.Stringer("state", h.previous),
		zap.Stringer("stored", h.stored),
		zap.String("handle", h.id.String()),
	)
	return f.restore(h.previous, func(old OverrideState) error {
		return a.registry.restoreStored(f, old, h.previous, h.stored)
	})
}

// ActiveOverrides returns the number of scope activations not yet
// deactivated.
func (r *Registry) ActiveOverrides() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.active)
}
