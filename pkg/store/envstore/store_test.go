package envstore

import (
	"context"
	"testing"

	override "github.com/goliatone/go-override"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVariableName(t *testing.T) {
	store := New()
	assert.Equal(t, "OVERRIDE_DARKMODE", store.VariableName("darkMode"))
	assert.Equal(t, "OVERRIDE_CHECKOUT_COUPONS", store.VariableName("checkout.coupons"))
	assert.Equal(t, "FF_SEARCH_V2", New(WithPrefix("FF_")).VariableName("search-v2"))
	assert.Equal(t, Normalize("darkMode"), Normalize("DARKMODE"))
}

func TestLoadFromProcessEnvironment(t *testing.T) {
	t.Setenv("OVERRIDE_SEARCH", "on")
	t.Setenv("OVERRIDE_DARKMODE", "0")
	t.Setenv("OVERRIDE_BETA", "later")

	store := New()
	ctx := context.Background()

	state, err := store.Load(ctx, "search")
	require.NoError(t, err)
	assert.Equal(t, override.Enabled, state)

	state, err = store.Load(ctx, "darkMode")
	require.NoError(t, err)
	assert.Equal(t, override.Disabled, state)

	state, err = store.Load(ctx, "beta")
	require.NoError(t, err)
	assert.Equal(t, override.Default, state)

	state, err = store.Load(ctx, "missing")
	require.NoError(t, err)
	assert.Equal(t, override.Default, state)
}

func TestSaveIsRejected(t *testing.T) {
	store := New()
	assert.ErrorIs(t, store.Save(context.Background(), "search", override.Enabled), ErrReadOnly)
	assert.True(t, store.ReadOnly())
}

func TestKeysWithFixedEnviron(t *testing.T) {
	store := New(WithEnviron([]string{
		"OVERRIDE_SEARCH=ON",
		"OVERRIDE_BETA=maybe",
		"OVERRIDE_=ON",
		"PATH=/usr/bin",
		"OVERRIDE_DARKMODE=off",
	}))
	keys, err := store.Keys(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"DARKMODE", "SEARCH"}, keys)

	state, err := store.Load(context.Background(), "search")
	require.NoError(t, err)
	assert.Equal(t, override.Enabled, state)
}

func TestEnvironmentLayerWinsAndStaysReadOnly(t *testing.T) {
	ctx := context.Background()
	env := New(WithEnviron([]string{"OVERRIDE_SEARCH=OFF"}))
	persisted := override.NewMemoryStore(map[string]override.OverrideState{"search": override.Enabled})

	layered, err := override.NewLayeredStore(
		override.NewStoreLayer("env", 100, env),
		override.NewStoreLayer("memory", 10, persisted),
	)
	require.NoError(t, err)

	state, err := layered.Load(ctx, "search")
	require.NoError(t, err)
	assert.Equal(t, override.Disabled, state)

	require.NoError(t, layered.Save(ctx, "search", override.Default))
	state, err = persisted.Load(ctx, "search")
	require.NoError(t, err)
	assert.Equal(t, override.Default, state, "writes land in the persisted layer")

	trace := layered.Trace(ctx, "search")
	assert.Equal(t, "env", trace.Source)
	assert.True(t, trace.Layers[0].ReadOnly)
}
