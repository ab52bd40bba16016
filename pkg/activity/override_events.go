package activity

import "strings"

const (
	VerbOverrideChanged = "feature.override.changed"
	VerbOverrideCleared = "feature.override.cleared"
	VerbFeatureAdded    = "feature.registered"

	objectTypeFeature = "feature"
)

// FeatureContext captures the feature an override event is about.
type FeatureContext struct {
	Key             string
	Label           string
	Group           string
	RequiresRestart bool
}

// OverrideEventInput describes the fields shared by override lifecycle events.
// States are passed in their display form ("ON", "OFF", "Default").
type OverrideEventInput struct {
	ActorID  string
	UserID   string
	TenantID string
	Channel  string
	Metadata map[string]any
	Feature  FeatureContext
	OldState string
	NewState string
	Store    string
}

// BuildOverrideChangedEvent reports a feature override moving to a new state.
// Moving to "Default" produces a feature.override.cleared event instead.
func BuildOverrideChangedEvent(input OverrideEventInput) Event {
	verb := VerbOverrideChanged
	if strings.EqualFold(strings.TrimSpace(input.NewState), "default") {
		verb = VerbOverrideCleared
	}
	return buildFeatureEvent(verb, input)
}

// BuildFeatureRegisteredEvent reports a feature joining a registry.
func BuildFeatureRegisteredEvent(input OverrideEventInput) Event {
	return buildFeatureEvent(VerbFeatureAdded, input)
}

func buildFeatureEvent(verb string, input OverrideEventInput) Event {
	metadata := cloneMap(input.Metadata)
	set := func(key string, value any) {
		if metadata == nil {
			metadata = map[string]any{}
		}
		metadata[key] = value
	}
	if input.Feature.Label != "" {
		set("label", input.Feature.Label)
	}
	if input.Feature.Group != "" {
		set("group", input.Feature.Group)
	}
	if input.Feature.RequiresRestart {
		set("requires_restart", true)
	}
	if input.OldState != "" {
		set("old_state", input.OldState)
	}
	if input.NewState != "" {
		set("new_state", input.NewState)
	}
	if input.Store != "" {
		set("store", input.Store)
	}

	objectID := strings.TrimSpace(input.Feature.Key)
	if objectID == "" {
		objectID = objectTypeFeature
	}

	return Event{
		Verb:       verb,
		ActorID:    strings.TrimSpace(input.ActorID),
		UserID:     strings.TrimSpace(input.UserID),
		TenantID:   strings.TrimSpace(input.TenantID),
		ObjectType: objectTypeFeature,
		ObjectID:   objectID,
		Channel:    strings.TrimSpace(input.Channel),
		Metadata:   metadata,
	}
}
