package featurescope

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrUnknownFeature indicates the registry could not resolve an identifier.
	ErrUnknownFeature = errors.New("featurescope: unknown feature")
	// ErrNoFeatures indicates a scope was requested without identifiers.
	ErrNoFeatures = errors.New("featurescope: at least one feature is required")
	// ErrRegistryRequired indicates a scope was requested without a registry.
	ErrRegistryRequired = errors.New("featurescope: registry is required")
)

// UnknownFeatureError reports the identifier that failed to activate. Err
// carries the registry's own failure, when it returned one.
type UnknownFeatureError struct {
	Identifier string
	Err        error
}

func (e *UnknownFeatureError) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Err == nil || errors.Is(e.Err, ErrUnknownFeature) {
		return fmt.Sprintf("featurescope: unknown feature %q", e.Identifier)
	}
	return fmt.Sprintf("featurescope: unknown feature %q: %v", e.Identifier, e.Err)
}

func (e *UnknownFeatureError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// Is lets errors.Is(err, ErrUnknownFeature) match regardless of the wrapped cause.
func (e *UnknownFeatureError) Is(target error) bool {
	return target == ErrUnknownFeature
}

// DeactivationError reports a handle the registry failed to restore.
type DeactivationError struct {
	Identifier string
	Err        error
}

func (e *DeactivationError) Error() string {
	if e == nil {
		return "<nil>"
	}
	return fmt.Sprintf("featurescope: deactivate %q: %v", e.Identifier, e.Err)
}

func (e *DeactivationError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// ReleaseError aggregates every deactivation failure seen during a release, in
// the order the deactivations were attempted.
type ReleaseError struct {
	Errors []error
}

func (e *ReleaseError) Error() string {
	if e == nil || len(e.Errors) == 0 {
		return "featurescope: release failed"
	}
	parts := make([]string, 0, len(e.Errors))
	for _, err := range e.Errors {
		parts = append(parts, err.Error())
	}
	return fmt.Sprintf("featurescope: release failed for %d feature(s): %s", len(e.Errors), strings.Join(parts, "; "))
}

func (e *ReleaseError) Unwrap() []error {
	if e == nil {
		return nil
	}
	return e.Errors
}
