package override

import (
	"fmt"
	"strings"
)

// OverrideState is the local override applied on top of a feature's default.
type OverrideState int

const (
	// Default defers to the feature's default state.
	Default OverrideState = iota
	// Disabled forces the feature off.
	Disabled
	// Enabled forces the feature on.
	Enabled
)

// String returns the stored form: "Default", "OFF" or "ON".
func (s OverrideState) String() string {
	switch s {
	case Enabled:
		return "ON"
	case Disabled:
		return "OFF"
	case Default:
		return "Default"
	default:
		return fmt.Sprintf("OverrideState(%d)", int(s))
	}
}

// Valid reports whether s is one of the three known states.
func (s OverrideState) Valid() bool {
	return s == Default || s == Disabled || s == Enabled
}

// ParseOverrideState converts a stored value back into a state. Anything that
// is not recognisably on or off is Default, so stale or garbled values fall
// back to the feature default instead of failing.
func ParseOverrideState(value string) OverrideState {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "on", "enabled", "true", "1", "yes":
		return Enabled
	case "off", "disabled", "false", "0", "no":
		return Disabled
	default:
		return Default
	}
}

// MarshalText implements encoding.TextMarshaler.
func (s OverrideState) MarshalText() ([]byte, error) {
	if !s.Valid() {
		return nil, fmt.Errorf("%w: %d", ErrInvalidOverrideState, int(s))
	}
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *OverrideState) UnmarshalText(text []byte) error {
	*s = ParseOverrideState(string(text))
	return nil
}
