package override

import (
	"errors"

	"github.com/goliatone/go-override/pkg/featurescope"
)

var (
	// ErrUnknownFeature indicates no feature is registered under a key. It is
	// the same sentinel featurescope reports, so scope errors match it too.
	ErrUnknownFeature = featurescope.ErrUnknownFeature
	// ErrFeatureKeyRequired indicates a feature without a key was registered.
	ErrFeatureKeyRequired = errors.New("override: feature key must be provided")
	// ErrDuplicateFeature indicates two features share a key.
	ErrDuplicateFeature = errors.New("override: feature keys must be unique")
	// ErrInvalidOverrideState indicates a state outside Default/Disabled/Enabled.
	ErrInvalidOverrideState = errors.New("override: invalid override state")
	// ErrStaleHandle indicates a handle that this registry did not issue or
	// that was already deactivated.
	ErrStaleHandle = errors.New("override: handle is not active")
	// ErrContainerType indicates Discover was given something other than a
	// non-nil pointer to a struct.
	ErrContainerType = errors.New("override: container must be a non-nil pointer to a struct")
	// ErrRuleResult indicates a default rule evaluated to a non-boolean value.
	ErrRuleResult = errors.New("override: rule must evaluate to a boolean")
)
