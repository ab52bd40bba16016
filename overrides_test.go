package override

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/goliatone/go-override/pkg/featurescope"
)

func newScopeRegistry(t *testing.T, store Store) (*Registry, map[string]*Feature) {
	t.Helper()
	registry := NewRegistry(WithStore(store))
	features := map[string]*Feature{
		"A": NewFeature(WithKey("A")),
		"B": NewFeature(WithKey("B"), WithDefaultState(true)),
		"C": NewFeature(WithKey("C")),
	}
	if err := registry.Register(features["A"], features["B"], features["C"]); err != nil {
		t.Fatalf("register failed: %v", err)
	}
	return registry, features
}

func TestScopeEnablesAndRestoresOverrides(t *testing.T) {
	registry, features := newScopeRegistry(t, NewMemoryStore(map[string]OverrideState{"C": Disabled}))

	scope, err := featurescope.New(registry.Enabling(), []string{"A", "B", "C"})
	if err != nil {
		t.Fatalf("scope failed: %v", err)
	}
	for key, f := range features {
		if f.Override() != Enabled {
			t.Fatalf("expected %s to be forced ON, got %s", key, f.Override())
		}
	}
	if registry.ActiveOverrides() != 3 {
		t.Fatalf("expected 3 active overrides, got %d", registry.ActiveOverrides())
	}

	if err := scope.Release(); err != nil {
		t.Fatalf("release failed: %v", err)
	}
	if features["A"].Override() != Default || features["B"].Override() != Default {
		t.Fatalf("expected A and B restored to Default")
	}
	if features["C"].Override() != Disabled {
		t.Fatalf("expected C restored to its stored override, got %s", features["C"].Override())
	}
	if registry.ActiveOverrides() != 0 {
		t.Fatalf("expected no active overrides after release")
	}
}

func TestScopeUnknownFeatureRollsBack(t *testing.T) {
	registry, features := newScopeRegistry(t, NewMemoryStore(nil))

	scope, err := featurescope.New(registry.Disabling(), []string{"A", "X", "C"})
	if scope != nil {
		t.Fatalf("expected no scope on failure")
	}
	if !errors.Is(err, ErrUnknownFeature) {
		t.Fatalf("expected unknown feature error, got %v", err)
	}
	var unknown *featurescope.UnknownFeatureError
	if !errors.As(err, &unknown) || unknown.Identifier != "X" {
		t.Fatalf("expected identifier X, got %v", err)
	}
	if features["A"].Override() != Default || features["C"].Override() != Default {
		t.Fatalf("expected A rolled back and C never activated")
	}
	if registry.ActiveOverrides() != 0 {
		t.Fatalf("expected rollback to clear active overrides")
	}
}

func TestScopeNestedActivationsRestoreInReverse(t *testing.T) {
	registry, features := newScopeRegistry(t, NewMemoryStore(nil))

	outer, err := featurescope.New(registry.Disabling(), []string{"A"})
	if err != nil {
		t.Fatalf("outer scope failed: %v", err)
	}
	inner, err := featurescope.New(registry.Enabling(), []string{"A", "A"})
	if err != nil {
		t.Fatalf("inner scope failed: %v", err)
	}
	if features["A"].Override() != Enabled {
		t.Fatalf("expected inner scope to win")
	}
	if err := inner.Release(); err != nil {
		t.Fatalf("inner release failed: %v", err)
	}
	if features["A"].Override() != Disabled {
		t.Fatalf("expected outer override restored, got %s", features["A"].Override())
	}
	if err := outer.Release(); err != nil {
		t.Fatalf("outer release failed: %v", err)
	}
	if features["A"].Override() != Default {
		t.Fatalf("expected original override restored, got %s", features["A"].Override())
	}
}

func TestDeactivateRejectsStaleAndForeignHandles(t *testing.T) {
	registry, _ := newScopeRegistry(t, NewMemoryStore(nil))
	activator := registry.Enabling()

	h, err := activator.Activate("A")
	if err != nil {
		t.Fatalf("activate failed: %v", err)
	}
	if err := activator.Deactivate(h); err != nil {
		t.Fatalf("deactivate failed: %v", err)
	}
	if err := activator.Deactivate(h); !errors.Is(err, ErrStaleHandle) {
		t.Fatalf("expected stale handle error, got %v", err)
	}

	other, _ := newScopeRegistry(t, NewMemoryStore(nil))
	foreign, err := other.Enabling().Activate("A")
	if err != nil {
		t.Fatalf("activate failed: %v", err)
	}
	if err := activator.Deactivate(foreign); !errors.Is(err, ErrStaleHandle) {
		t.Fatalf("expected foreign handle to be rejected, got %v", err)
	}
}

func TestActivatePersistenceFailureRestoresState(t *testing.T) {
	saveErr := errors.New("store offline")
	registry, features := newScopeRegistry(t, brokenSaveStore{MemoryStore: NewMemoryStore(nil), err: saveErr})

	_, err := featurescope.New(registry.Enabling(), []string{"A"})
	if !errors.Is(err, saveErr) {
		t.Fatalf("expected save error in chain, got %v", err)
	}
	if !errors.Is(err, ErrUnknownFeature) {
		t.Fatalf("expected activation failure to report the identifier, got %v", err)
	}
	if features["A"].Override() != Default {
		t.Fatalf("expected failed activation to leave A untouched, got %s", features["A"].Override())
	}
}

func TestReleaseReportsRestoreFailures(t *testing.T) {
	store := &toggleStore{MemoryStore: NewMemoryStore(nil)}
	registry, features := newScopeRegistry(t, store)

	scope, err := featurescope.New(registry.Enabling(), []string{"A", "B"})
	if err != nil {
		t.Fatalf("scope failed: %v", err)
	}
	store.fail = errors.New("store offline")

	err = scope.Release()
	var release *featurescope.ReleaseError
	if !errors.As(err, &release) || len(release.Errors) != 2 {
		t.Fatalf("expected two restore failures, got %v", err)
	}
	if features["A"].Override() != Default || features["B"].Override() != Default {
		t.Fatalf("expected in-memory overrides restored despite store failures")
	}
	if scope.State() != featurescope.Released {
		t.Fatalf("expected released scope, got %s", scope.State())
	}
}

type toggleStore struct {
	*MemoryStore
	fail error
}

func (s *toggleStore) Save(ctx context.Context, key string, state OverrideState) error {
	if s.fail != nil {
		return s.fail
	}
	return s.MemoryStore.Save(ctx, key, state)
}

func newLayeredScopeRegistry(t *testing.T, top *MemoryStore, base map[string]OverrideState) (*Registry, *Feature, *LayeredStore) {
	t.Helper()
	layered, err := NewLayeredStore(
		NewStoreLayer("user", 100, top),
		NewStoreLayer("defaults", 10, readOnlyStore{NewMemoryStore(base)}),
	)
	if err != nil {
		t.Fatalf("layered store failed: %v", err)
	}
	registry := NewRegistry(WithStore(layered))
	search := NewFeature(WithKey("search"))
	if err := registry.Register(search); err != nil {
		t.Fatalf("register failed: %v", err)
	}
	return registry, search, layered
}

func TestScopeReleaseDoesNotCopyWeakerLayerIntoWritableLayer(t *testing.T) {
	ctx := context.Background()
	top := NewMemoryStore(nil)
	registry, search, layered := newLayeredScopeRegistry(t, top, map[string]OverrideState{"search": Enabled})
	if search.Override() != Enabled {
		t.Fatalf("expected search loaded from the read-only layer, got %s", search.Override())
	}

	scope, err := featurescope.New(registry.Disabling(), []string{"search"})
	if err != nil {
		t.Fatalf("scope failed: %v", err)
	}
	if state, _ := top.Load(ctx, "search"); state != Disabled {
		t.Fatalf("expected activation written to the writable layer, got %s", state)
	}

	if err := scope.Release(); err != nil {
		t.Fatalf("release failed: %v", err)
	}
	keys, err := top.Keys(ctx)
	if err != nil {
		t.Fatalf("keys failed: %v", err)
	}
	if len(keys) != 0 {
		t.Fatalf("expected writable layer left empty, got %v", keys)
	}
	if search.Override() != Enabled {
		t.Fatalf("expected in-memory override restored to ON, got %s", search.Override())
	}
	if state, _ := layered.Load(ctx, "search"); state != Enabled {
		t.Fatalf("expected layered value to come from the read-only layer again, got %s", state)
	}
}

func TestScopeReleaseRestoresWritableLayerValue(t *testing.T) {
	ctx := context.Background()
	top := NewMemoryStore(map[string]OverrideState{"search": Disabled})
	registry, search, _ := newLayeredScopeRegistry(t, top, map[string]OverrideState{"search": Enabled})

	outer, err := featurescope.New(registry.Enabling(), []string{"search"})
	if err != nil {
		t.Fatalf("outer scope failed: %v", err)
	}
	inner, err := featurescope.New(registry.Disabling(), []string{"search", "search"})
	if err != nil {
		t.Fatalf("inner scope failed: %v", err)
	}
	if err := inner.Release(); err != nil {
		t.Fatalf("inner release failed: %v", err)
	}
	if state, _ := top.Load(ctx, "search"); state != Enabled {
		t.Fatalf("expected outer value restored in the writable layer, got %s", state)
	}
	if err := outer.Release(); err != nil {
		t.Fatalf("outer release failed: %v", err)
	}
	if state, _ := top.Load(ctx, "search"); state != Disabled {
		t.Fatalf("expected original writable value restored, got %s", state)
	}
	if search.Override() != Disabled {
		t.Fatalf("expected in-memory override restored, got %s", search.Override())
	}
}

func TestActivateFailsWithoutWritableLayer(t *testing.T) {
	layered, err := NewLayeredStore(NewStoreLayer("env", 10, readOnlyStore{NewMemoryStore(nil)}))
	if err != nil {
		t.Fatalf("layered store failed: %v", err)
	}
	registry := NewRegistry(WithStore(layered))
	search := NewFeature(WithKey("search"))
	if err := registry.Register(search); err != nil {
		t.Fatalf("register failed: %v", err)
	}

	_, err = featurescope.New(registry.Enabling(), []string{"search"})
	if !errors.Is(err, ErrNoWritableLayer) {
		t.Fatalf("expected no writable layer error, got %v", err)
	}
	if search.Override() != Default {
		t.Fatalf("expected search untouched, got %s", search.Override())
	}
}

func TestConcurrentSetOverridePersistsLastWrite(t *testing.T) {
	store := NewMemoryStore(nil)
	registry := NewRegistry(WithStore(store))
	search := NewFeature(WithKey("search"))
	if err := registry.Register(search); err != nil {
		t.Fatalf("register failed: %v", err)
	}

	var wg sync.WaitGroup
	for i := 0; i < 64; i++ {
		state := Enabled
		if i%2 == 0 {
			state = Disabled
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = search.SetOverride(state)
		}()
	}
	wg.Wait()

	stored, err := store.Load(context.Background(), "search")
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if stored != search.Override() {
		t.Fatalf("expected store to match memory, got stored %s, memory %s", stored, search.Override())
	}
}
