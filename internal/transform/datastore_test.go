package transform

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"flowload/internal/core"
	"flowload/internal/store"
)

func storeContext(vars map[string]any) core.Context {
	ctx := core.NewContext(vars)
	ctx[core.DataStoreKey] = store.New()
	return ctx
}

func TestStoreData_IsAdditive(t *testing.T) {
	r := NewRegistry()
	ctx := storeContext(map[string]any{"token": "t", "qr": "q"})

	_, err := r.Execute("store_data", nil, map[string]any{"key": "2781", "values": []any{"token"}}, ctx)
	require.NoError(t, err)
	_, err = r.Execute("store_data", nil, map[string]any{"key": "2781", "values": []any{"qr"}}, ctx)
	require.NoError(t, err)

	out, err := r.Execute("lookup_all", nil, map[string]any{"store_key": "2781"}, ctx)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"token": "t", "qr": "q"}, out)
}

func TestStoreData_Refresh(t *testing.T) {
	r := NewRegistry()
	ctx := storeContext(map[string]any{"a": 1, "b": 2})

	out, err := r.Execute("store_data", "in", map[string]any{"key": "k", "values": []any{"a"}}, ctx)
	require.NoError(t, err)
	assert.Equal(t, "in", out)

	out, err = r.Execute("store_data", "in", map[string]any{"key": "k", "values": []string{"b", "missing"}, "refresh": true}, ctx)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"a": 1, "b": 2}, out)
}

func TestStoreData_NothingToStore(t *testing.T) {
	r := NewRegistry()
	ctx := storeContext(nil)

	out, err := r.Execute("store_data", "in", map[string]any{"key": "k", "values": []any{"missing"}, "refresh": true}, ctx)
	require.NoError(t, err)
	assert.Equal(t, "in", out)

	ds, _ := ctx.DataStore()
	assert.Equal(t, 0, ds.Count())
}

func TestStoreData_Errors(t *testing.T) {
	r := NewRegistry()

	_, err := r.Execute("store_data", nil, map[string]any{"key": "k"}, core.Context{})
	assert.ErrorIs(t, err, ErrStoreUnavailable)

	_, err = r.Execute("store_data", nil, map[string]any{}, storeContext(nil))
	assert.ErrorIs(t, err, ErrMissingConfig)
}

func TestLookup(t *testing.T) {
	r := NewRegistry()
	ctx := storeContext(nil)
	ds, _ := ctx.DataStore()
	ds.Store("user_1", map[string]any{"email": "a@x", "phone": "1"})

	out, err := r.Execute("lookup", nil, map[string]any{"store_key": "user_1", "field": "email"}, ctx)
	require.NoError(t, err)
	assert.Equal(t, "a@x", out)

	_, err = r.Execute("lookup", nil, map[string]any{"store_key": "user_2", "field": "email"}, ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "user_1")

	_, err = r.Execute("lookup", nil, map[string]any{"store_key": "user_1", "field": "age"}, ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "[email phone]")

	_, err = r.Execute("lookup", nil, map[string]any{"store_key": "user_1"}, ctx)
	assert.ErrorIs(t, err, ErrMissingConfig)
}

func TestLookupAll_Missing(t *testing.T) {
	r := NewRegistry()
	_, err := r.Execute("lookup_all", nil, map[string]any{"store_key": "x"}, storeContext(nil))
	assert.Error(t, err)

	_, err = r.Execute("lookup_all", nil, map[string]any{"store_key": "x"}, core.Context{})
	assert.ErrorIs(t, err, ErrStoreUnavailable)
}

func TestGetStoreKeys(t *testing.T) {
	r := NewRegistry()
	ctx := storeContext(nil)
	ds, _ := ctx.DataStore()
	ds.Store("b", map[string]any{"x": 1})
	ds.Store("a", map[string]any{"x": 1})

	out, err := r.Execute("get_store_keys", nil, nil, ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"b", "a"}, out)

	_, err = r.Execute("get_store_keys", nil, nil, core.Context{})
	assert.ErrorIs(t, err, ErrStoreUnavailable)
}
