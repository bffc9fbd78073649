package transform

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"flowload/internal/core"
)

func TestRegistry_BuiltinNames(t *testing.T) {
	r := NewRegistry()
	want := []string{
		"append_to_list", "base64_decode", "base64_encode", "get_store_keys",
		"hmac", "increment", "lookup", "lookup_all", "random_choice",
		"random_number", "random_string", "rsa_encrypt", "select_from_list",
		"select_msisdn", "sha256", "store_data", "timestamp", "uuid",
	}
	assert.Equal(t, want, r.Names())
}

func TestRegistry_UnknownTransform(t *testing.T) {
	r := NewRegistry()
	_, err := r.Execute("nope", nil, nil, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnknownTransform)

	var terr *Error
	require.True(t, errors.As(err, &terr))
	assert.Equal(t, "nope", terr.Transform)
}

func TestRegistry_Register(t *testing.T) {
	r := NewRegistry()
	r.Register("upper", HandlerFunc(func(input any, _ Config, _ core.Context) (any, error) {
		return input.(string) + "!", nil
	}))
	assert.True(t, r.Has("upper"))

	out, err := r.Execute("upper", "hi", nil, nil)
	require.NoError(t, err)
	assert.Equal(t, "hi!", out)
}

func TestRegistry_WrapsHandlerErrors(t *testing.T) {
	r := NewRegistry()
	_, err := r.Execute("lookup", nil, map[string]any{"store_key": "a", "field": "b"}, core.Context{})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrStoreUnavailable)
	assert.Contains(t, err.Error(), "transform lookup")
}

func TestConfig_Getters(t *testing.T) {
	cfg := Config{
		"n":      5,
		"f":      2.0,
		"s":      "7",
		"bad":    "x",
		"flag":   "true",
		"b":      false,
		"list":   []string{"a", "b"},
		"nilval": nil,
	}
	assert.Equal(t, 5, cfg.Int("n", 0))
	assert.Equal(t, 2, cfg.Int("f", 0))
	assert.Equal(t, 7, cfg.Int("s", 0))
	assert.Equal(t, 9, cfg.Int("bad", 9))
	assert.Equal(t, 1, cfg.Int("missing", 1))
	assert.True(t, cfg.Bool("flag", false))
	assert.False(t, cfg.Bool("b", true))
	assert.Equal(t, []any{"a", "b"}, cfg.List("list"))
	assert.Equal(t, "5", cfg.String("n", ""))
	assert.Equal(t, "def", cfg.String("nilval", "def"))

	_, err := cfg.Require("missing")
	assert.ErrorIs(t, err, ErrMissingConfig)
}
