// Package featuretest wires featurescope into Go tests.
package featuretest

import (
	"errors"
	"testing"

	override "github.com/goliatone/go-override"
	"github.com/goliatone/go-override/pkg/featurescope"
)

// With activates ids through registry for the rest of the test. Activation
// failures stop the test; the scope is released during cleanup and release
// failures mark the test as failed.
func With(tb testing.TB, registry featurescope.Registry, ids ...string) *featurescope.Scope {
	tb.Helper()
	scope, err := featurescope.New(registry, ids)
	if err != nil {
		tb.Fatalf("featuretest: activate %v: %v", ids, err)
		return nil
	}
	tb.Cleanup(func() {
		if err := scope.Release(); err != nil {
			tb.Errorf("featuretest: release %v: %v", ids, err)
		}
	})
	return scope
}

// Enable forces keys on for the rest of the test.
func Enable(tb testing.TB, registry *override.Registry, keys ...string) *featurescope.Scope {
	tb.Helper()
	return With(tb, registry.Enabling(), keys...)
}

// Disable forces keys off for the rest of the test.
func Disable(tb testing.TB, registry *override.Registry, keys ...string) *featurescope.Scope {
	tb.Helper()
	return With(tb, registry.Disabling(), keys...)
}

// Support runs a block with a set of features forced on or off.
type Support struct {
	registry *override.Registry
	keys     []string
}

// WithFeatures prepares block-scoped overrides for keys.
//
//	err := featuretest.WithFeatures(registry, "search").Enabled(func() {
//		// search is on here
//	})
func WithFeatures(registry *override.Registry, keys ...string) Support {
	return Support{registry: registry, keys: append([]string(nil), keys...)}
}

// Enabled runs fn with the features forced on.
func (s Support) Enabled(fn func()) error {
	return s.run(override.Enabled, fn)
}

// Disabled runs fn with the features forced off.
func (s Support) Disabled(fn func()) error {
	return s.run(override.Disabled, fn)
}

// run releases the scope even when fn panics; the panic is re-raised after
// the release.
func (s Support) run(state override.OverrideState, fn func()) (err error) {
	if s.registry == nil {
		return featurescope.ErrRegistryRequired
	}
	scope, err := featurescope.New(s.registry.Overrides(state), s.keys)
	if err != nil {
		return err
	}
	defer func() {
		err = errors.Join(err, scope.Release())
	}()
	if fn != nil {
		fn()
	}
	return nil
}
