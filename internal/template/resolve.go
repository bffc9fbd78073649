// Package template resolves {{ path.expr }} placeholders against a variable
// context. Resolution never fails: a placeholder whose path cannot be walked
// is left in the output as {{path.expr}} so callers can spot it.
package template

import (
	"encoding/json"
	"fmt"
	"reflect"
	"regexp"
	"strconv"
	"strings"
)

var tokenPattern = regexp.MustCompile(`\{\{\s*([^}]+)\s*\}\}`)

// Resolve walks v and resolves every string it finds. Maps and slices are
// copied with their structure intact; other values are returned unchanged.
func Resolve(v any, ctx map[string]any) any {
	switch t := v.(type) {
	case string:
		return ResolveString(t, ctx)
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			out[k] = Resolve(val, ctx)
		}
		return out
	case map[string]string:
		out := make(map[string]string, len(t))
		for k, val := range t {
			out[k] = ResolveString(val, ctx)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, val := range t {
			out[i] = Resolve(val, ctx)
		}
		return out
	case []string:
		out := make([]string, len(t))
		for i, val := range t {
			out[i] = ResolveString(val, ctx)
		}
		return out
	default:
		return v
	}
}

// ResolveString substitutes each {{ expr }} token in s. A string without
// tokens is returned as is.
func ResolveString(s string, ctx map[string]any) string {
	if !strings.Contains(s, "{{") {
		return s
	}
	return tokenPattern.ReplaceAllStringFunc(s, func(match string) string {
		expr := strings.TrimSpace(tokenPattern.FindStringSubmatch(match)[1])
		if val, ok := Lookup(expr, ctx); ok {
			return Stringify(val)
		}
		return "{{" + expr + "}}"
	})
}

// ResolveMap resolves every value of a string map. It returns nil for a nil map.
func ResolveMap(m map[string]string, ctx map[string]any) map[string]string {
	if m == nil {
		return nil
	}
	return Resolve(m, ctx).(map[string]string)
}

// Unresolved reports whether s still contains a placeholder.
func Unresolved(s string) bool {
	return tokenPattern.MatchString(s)
}

// Lookup walks expr (a.b[0].c, items["key"]) through ctx.
func Lookup(expr string, ctx map[string]any) (any, bool) {
	segs, ok := parsePath(expr)
	if !ok || len(segs) == 0 || segs[0].isIndex {
		return nil, false
	}
	current, ok := ctx[segs[0].key]
	if !ok {
		return nil, false
	}
	for _, seg := range segs[1:] {
		current, ok = step(current, seg)
		if !ok {
			return nil, false
		}
	}
	return current, true
}

type segment struct {
	key     string
	index   int
	isIndex bool
}

func parsePath(expr string) ([]segment, bool) {
	var segs []segment
	var cur strings.Builder
	flush := func() {
		if cur.Len() > 0 {
			segs = append(segs, segment{key: cur.String()})
			cur.Reset()
		}
	}
	for i := 0; i < len(expr); i++ {
		switch c := expr[i]; c {
		case '.':
			flush()
		case '[':
			flush()
			end := strings.IndexByte(expr[i:], ']')
			if end < 0 {
				return nil, false
			}
			inner := strings.TrimSpace(expr[i+1 : i+end])
			if n, err := strconv.Atoi(inner); err == nil {
				segs = append(segs, segment{index: n, isIndex: true})
			} else {
				segs = append(segs, segment{key: strings.Trim(inner, `"'`)})
			}
			i += end
		default:
			cur.WriteByte(c)
		}
	}
	flush()
	return segs, true
}

func step(current any, seg segment) (any, bool) {
	switch t := current.(type) {
	case map[string]any:
		if seg.isIndex {
			return nil, false
		}
		v, ok := t[seg.key]
		return v, ok
	case map[string]string:
		if seg.isIndex {
			return nil, false
		}
		v, ok := t[seg.key]
		return v, ok
	case []any:
		if !seg.isIndex || seg.index < 0 || seg.index >= len(t) {
			return nil, false
		}
		return t[seg.index], true
	case nil:
		return nil, false
	}

	rv := reflect.ValueOf(current)
	switch rv.Kind() {
	case reflect.Map:
		if seg.isIndex || rv.Type().Key().Kind() != reflect.String {
			return nil, false
		}
		v := rv.MapIndex(reflect.ValueOf(seg.key).Convert(rv.Type().Key()))
		if !v.IsValid() {
			return nil, false
		}
		return v.Interface(), true
	case reflect.Slice, reflect.Array:
		if !seg.isIndex || seg.index < 0 || seg.index >= rv.Len() {
			return nil, false
		}
		return rv.Index(seg.index).Interface(), true
	}
	return nil, false
}

// Stringify renders a resolved value for substitution into text. Containers
// are rendered as JSON; whole floats drop their fractional part.
func Stringify(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case []byte:
		return string(t)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(t), 'f', -1, 32)
	case fmt.Stringer:
		return t.String()
	}

	switch reflect.ValueOf(v).Kind() {
	case reflect.Map, reflect.Slice, reflect.Array:
		if b, err := json.Marshal(v); err == nil {
			return string(b)
		}
	}
	return fmt.Sprintf("%v", v)
}
