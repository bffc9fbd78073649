package transform

import (
	"fmt"
	"reflect"
	"strconv"
	"strings"

	"flowload/internal/template"
)

// Config is a transform's resolved config block. Values that went through
// template resolution arrive as strings, so the numeric and boolean getters
// also accept their string forms.
type Config map[string]any

func (c Config) Value(key string) (any, bool) {
	v, ok := c[key]
	return v, ok && v != nil
}

func (c Config) String(key, def string) string {
	v, ok := c.Value(key)
	if !ok {
		return def
	}
	if s, ok := v.(string); ok {
		return s
	}
	return template.Stringify(v)
}

// Require returns a non-empty string value or an ErrMissingConfig error.
func (c Config) Require(key string) (string, error) {
	s := c.String(key, "")
	if s == "" {
		return "", fmt.Errorf("%w: %q", ErrMissingConfig, key)
	}
	return s, nil
}

func (c Config) Int(key string, def int) int {
	v, ok := c.Value(key)
	if !ok {
		return def
	}
	switch n := v.(type) {
	case int:
		return n
	case int64:
		return int(n)
	case float64:
		return int(n)
	case string:
		if i, err := strconv.Atoi(strings.TrimSpace(n)); err == nil {
			return i
		}
		if f, err := strconv.ParseFloat(strings.TrimSpace(n), 64); err == nil {
			return int(f)
		}
	}
	return def
}

func (c Config) Bool(key string, def bool) bool {
	v, ok := c.Value(key)
	if !ok {
		return def
	}
	switch b := v.(type) {
	case bool:
		return b
	case string:
		if parsed, err := strconv.ParseBool(strings.TrimSpace(b)); err == nil {
			return parsed
		}
	}
	return def
}

// List returns the value at key as a slice, or nil.
func (c Config) List(key string) []any {
	v, ok := c.Value(key)
	if !ok {
		return nil
	}
	list, _ := toList(v)
	return list
}

// toList converts any slice value to []any.
func toList(v any) ([]any, bool) {
	switch t := v.(type) {
	case []any:
		return t, true
	case []string:
		out := make([]any, len(t))
		for i, s := range t {
			out[i] = s
		}
		return out, true
	case nil:
		return nil, false
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return nil, false
	}
	out := make([]any, rv.Len())
	for i := range out {
		out[i] = rv.Index(i).Interface()
	}
	return out, true
}
