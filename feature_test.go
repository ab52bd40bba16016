package override

import (
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestOverrideStateStringAndParse(t *testing.T) {
	cases := map[OverrideState]string{
		Default:  "Default",
		Disabled: "OFF",
		Enabled:  "ON",
	}
	for state, want := range cases {
		if got := state.String(); got != want {
			t.Fatalf("expected %q, got %q", want, got)
		}
		if parsed := ParseOverrideState(want); parsed != state {
			t.Fatalf("expected %q to parse back to %v, got %v", want, state, parsed)
		}
	}

	for _, input := range []string{"on", " TRUE ", "1", "enabled", "yes"} {
		if got := ParseOverrideState(input); got != Enabled {
			t.Fatalf("expected %q to parse as ON, got %s", input, got)
		}
	}
	for _, input := range []string{"off", "False", "0", "disabled", "no"} {
		if got := ParseOverrideState(input); got != Disabled {
			t.Fatalf("expected %q to parse as OFF, got %s", input, got)
		}
	}
	if got := ParseOverrideState("garbled"); got != Default {
		t.Fatalf("expected unknown values to parse as Default, got %s", got)
	}
	if _, err := OverrideState(7).MarshalText(); !errors.Is(err, ErrInvalidOverrideState) {
		t.Fatalf("expected invalid state marshal to fail, got %v", err)
	}
}

func TestFeatureOverrideWinsOverDefault(t *testing.T) {
	f := NewFeature(WithKey("search"), WithDefaultState(true))

	if !f.Enabled() {
		t.Fatalf("expected default state to apply")
	}
	if err := f.SetOverride(Disabled); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if f.Enabled() {
		t.Fatalf("expected override OFF to win")
	}
	if err := f.SetOverride(Default); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !f.Enabled() {
		t.Fatalf("expected clearing the override to restore the default")
	}
	if err := f.SetOverride(OverrideState(9)); !errors.Is(err, ErrInvalidOverrideState) {
		t.Fatalf("expected invalid state to be rejected, got %v", err)
	}
}

func TestFeatureString(t *testing.T) {
	f := NewFeature(WithKey("search"))
	_ = f.SetOverride(Enabled)
	if got, want := f.String(), "search:[ON] - Override: ON, Default: false"; got != want {
		t.Fatalf("expected %q, got %q", want, got)
	}

	unnamed := NewFeature()
	if got, want := unnamed.String(), "UNKNOWN:[OFF] - Override: Default, Default: false"; got != want {
		t.Fatalf("expected %q, got %q", want, got)
	}
}

func TestFeatureComputedDefault(t *testing.T) {
	rollout := false
	f := NewFeature(WithKey("rollout"), WithComputedDefault(func(*Feature) bool { return rollout }))

	if !f.Dynamic() {
		t.Fatalf("expected computed feature to be dynamic")
	}
	if f.Enabled() {
		t.Fatalf("expected computed default to be false")
	}
	rollout = true
	if !f.Enabled() {
		t.Fatalf("expected computed default to be re-evaluated")
	}
}

func TestFeatureDefaultRule(t *testing.T) {
	f := NewFeature(
		WithKey("bigSale"),
		WithDefaultRule(nil, `args.percent >= 50 && key == "bigSale"`, map[string]any{"percent": 60}),
	)
	if !f.DefaultState() {
		t.Fatalf("expected rule to enable the feature")
	}

	cel := NewFeature(WithKey("nightly"), WithDefaultRule(NewCELEvaluator(), `now.getFullYear() > 2000`, nil))
	if !cel.Enabled() {
		t.Fatalf("expected CEL rule to enable the feature")
	}
}

func TestFeatureDefaultRuleUsesClock(t *testing.T) {
	f := NewFeature(WithKey("leapYearPromo"), WithDefaultRule(nil, `now.Year() == 2024`, nil))
	f.rule.now = func() time.Time { return time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC) }
	if !f.Enabled() {
		t.Fatalf("expected rule evaluated against the injected clock")
	}
}

func TestFeatureDefaultRuleFailuresReadAsFalse(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	logger := zap.New(core)

	nonBool := NewFeature(WithKey("nonBool"), WithDefaultRule(nil, `"yes"`, nil))
	nonBool.bind(nil, logger)
	if nonBool.Enabled() {
		t.Fatalf("expected non-boolean rule to read as false")
	}
	if _, err := nonBool.EvaluateDefault(); !errors.Is(err, ErrRuleResult) {
		t.Fatalf("expected ErrRuleResult, got %v", err)
	}

	broken := NewFeature(WithKey("broken"), WithDefaultRule(nil, `key ==`, nil))
	broken.bind(nil, logger)
	if broken.Enabled() {
		t.Fatalf("expected invalid rule to read as false")
	}
	if logs.FilterMessage("feature default rule failed").Len() < 2 {
		t.Fatalf("expected rule failures to be logged, got %d entries", logs.Len())
	}

	// an override still wins over a broken rule
	if err := broken.SetOverride(Enabled); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !broken.Enabled() {
		t.Fatalf("expected override to win over failing rule")
	}
}

func TestFeatureChangeHandlerOnlyOnChange(t *testing.T) {
	f := NewFeature(WithKey("alpha"))
	var calls []OverrideState
	saveErr := errors.New("disk full")
	f.bind(func(_ *Feature, old OverrideState) error {
		calls = append(calls, old)
		if f.Override() == Disabled {
			return saveErr
		}
		return nil
	}, nil)

	f.bootstrap(Enabled)
	if len(calls) != 0 {
		t.Fatalf("expected bootstrap to skip the change handler")
	}
	if err := f.SetOverride(Enabled); err != nil || len(calls) != 0 {
		t.Fatalf("expected unchanged state to skip the handler, got %v after %d calls", err, len(calls))
	}
	if err := f.SetOverride(Disabled); !errors.Is(err, saveErr) {
		t.Fatalf("expected handler error to surface, got %v", err)
	}
	if f.Override() != Disabled {
		t.Fatalf("expected in-memory state to change even when persisting fails")
	}
	if len(calls) != 1 || calls[0] != Enabled {
		t.Fatalf("expected handler to see the previous state, got %v", calls)
	}
}
