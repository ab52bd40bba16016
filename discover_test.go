package override

import (
	"errors"
	"testing"
)

type checkoutFeatures struct {
	ApplePay *Feature
	Coupons  *Feature `override:"checkout.coupons"`
}

type experimentFeatures struct {
	Enabled *Feature
	Ranking struct {
		NewRanker *Feature
	}
}

type baseFeatures struct {
	Analytics *Feature
}

type appFeatures struct {
	baseFeatures
	DarkMode    *Feature
	Search      Feature
	NamedByKey  *Feature
	Checkout    checkoutFeatures
	Experiments *experimentFeatures `override:"Labs"`
	Ignored     *Feature            `override:"-"`
	Settings    struct{ Timeout int }
	private     *Feature
}

func TestDiscoverRegistersFieldsAndGroups(t *testing.T) {
	features := &appFeatures{
		DarkMode:   NewFeature(WithDefaultState(true)),
		NamedByKey: NewFeature(WithKey("custom-key")),
	}
	registry := NewRegistry()
	if err := registry.Discover(features); err != nil {
		t.Fatalf("discover failed: %v", err)
	}

	wantKeys := []string{
		"analytics",
		"darkMode",
		"search",
		"custom-key",
		"applePay",
		"checkout.coupons",
		"enabled",
		"newRanker",
	}
	got := registry.Features()
	if len(got) != len(wantKeys) {
		keys := make([]string, 0, len(got))
		for _, f := range got {
			keys = append(keys, f.Key())
		}
		t.Fatalf("expected keys %v, got %v", wantKeys, keys)
	}
	for i, key := range wantKeys {
		if got[i].Key() != key {
			t.Fatalf("expected feature %d to be %q, got %q", i, key, got[i].Key())
		}
	}

	if features.Experiments == nil || features.Experiments.Ranking.NewRanker == nil {
		t.Fatalf("expected nil group and feature pointers to be allocated")
	}
	if features.Ignored != nil {
		t.Fatalf("expected skipped field to stay nil")
	}
	if f, ok := registry.Lookup("darkMode"); !ok || f != features.DarkMode || !f.Enabled() {
		t.Fatalf("expected discovered feature to keep its configuration")
	}
	if f, ok := registry.Lookup("search"); !ok || f != &features.Search {
		t.Fatalf("expected value fields to register by address")
	}
}

func TestDiscoverRejectsNonStructContainers(t *testing.T) {
	registry := NewRegistry()
	var nilPtr *appFeatures
	for _, container := range []any{nil, appFeatures{}, nilPtr, new(int)} {
		if err := registry.Discover(container); !errors.Is(err, ErrContainerType) {
			t.Fatalf("expected container type error for %T, got %v", container, err)
		}
	}
}

func TestDiscoverDuplicateKeysRegisterNothing(t *testing.T) {
	type duplicated struct {
		First  *Feature `override:"same"`
		Second *Feature `override:"same"`
	}
	registry := NewRegistry()
	if err := registry.Discover(&duplicated{}); !errors.Is(err, ErrDuplicateFeature) {
		t.Fatalf("expected duplicate feature error, got %v", err)
	}
	if len(registry.Features()) != 0 {
		t.Fatalf("expected nothing registered")
	}
}

func TestDiscoverStopsOnRecursivePointers(t *testing.T) {
	type node struct {
		Flag *Feature
		Next *node
	}
	root := &node{}
	registry := NewRegistry()
	if err := registry.Discover(root); err != nil {
		t.Fatalf("discover failed: %v", err)
	}
	if len(registry.Features()) != 1 || root.Next != nil {
		t.Fatalf("expected recursive pointer to be left alone, got %d features", len(registry.Features()))
	}
}
