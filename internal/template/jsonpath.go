package template

import (
	"strings"

	"github.com/tidwall/gjson"
)

// JSONPath looks up a dotted path in a JSON body. Mappings are walked by key
// and arrays by integer index; "$." prefixes and [n] brackets are accepted.
// An empty path yields the whole document.
func JSONPath(body []byte, path string) (any, bool) {
	if !gjson.ValidBytes(body) {
		return nil, false
	}
	gpath := GJSONPath(path)
	if gpath == "" {
		return gjson.ParseBytes(body).Value(), true
	}
	res := gjson.GetBytes(body, gpath)
	if !res.Exists() {
		return nil, false
	}
	return res.Value(), true
}

// GJSONPath converts a dotted path to gjson syntax.
//
//	$.foo.bar      -> foo.bar
//	items[0].id    -> items.0.id
//	data[*].name   -> data.#.name
//
// gjson wildcard and modifier characters inside a key are escaped so keys
// such as "user@domain" are matched literally.
func GJSONPath(path string) string {
	if strings.HasPrefix(path, "$.") {
		path = path[2:]
	} else if strings.HasPrefix(path, "$") {
		path = path[1:]
	}
	if path == "" {
		return ""
	}

	var parts []string
	var cur strings.Builder
	flush := func() {
		if cur.Len() > 0 {
			parts = append(parts, escapeKey(cur.String()))
			cur.Reset()
		}
	}
	for i := 0; i < len(path); i++ {
		c := path[i]
		switch {
		case c == '.':
			flush()
		case c == '[':
			end := strings.IndexByte(path[i:], ']')
			if end < 0 {
				cur.WriteByte(c)
				continue
			}
			flush()
			inner := strings.Trim(path[i+1:i+end], `"'`)
			if inner == "*" {
				parts = append(parts, "#")
			} else {
				parts = append(parts, escapeKey(inner))
			}
			i += end
		default:
			cur.WriteByte(c)
		}
	}
	flush()
	return strings.Join(parts, ".")
}

func escapeKey(key string) string {
	if !strings.ContainsAny(key, `*?|#@!\`) {
		return key
	}
	var b strings.Builder
	for i := 0; i < len(key); i++ {
		switch key[i] {
		case '*', '?', '|', '#', '@', '!', '\\':
			b.WriteByte('\\')
		}
		b.WriteByte(key[i])
	}
	return b.String()
}
