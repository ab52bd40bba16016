// Package featurescope activates a set of feature overrides for the duration
// of one test and guarantees they are undone.
//
// A Scope is built eagerly: New activates every identifier, in order, through
// a Registry. If any identifier fails, the activations already made are
// reversed before New returns, so a failed construction leaves nothing
// behind. Release reverses every activation in the opposite order, keeps
// going past failures, and reports them all at once.
//
//	scope, err := featurescope.New(registry.Enabling(), []string{"search", "darkMode"})
//	if err != nil {
//		t.Fatal(err)
//	}
//	defer scope.Release()
package featurescope
