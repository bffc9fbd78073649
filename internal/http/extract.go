package http

import (
	"regexp"
	"strings"

	"go.uber.org/zap"

	"flowload/internal/config"
	"flowload/internal/core"
	"flowload/internal/log"
	"flowload/internal/template"
)

// extractVariables writes each rule's value into vars. A rule that finds
// nothing leaves its variable untouched.
func extractVariables(logger *zap.Logger, rules map[string]config.ExtractRule, resp *Response, vars core.Context) {
	for name, rule := range rules {
		value, ok, err := extractValue(rule, resp)
		switch {
		case err != nil:
			logger.Error("variable extraction failed", log.Variable(name), zap.Error(err))
		case !ok:
			logger.Debug("variable not extracted", log.Variable(name), zap.String("path", rule.Path))
		default:
			vars[name] = value
			logger.Debug("extracted variable", log.Variable(name),
				zap.String("value", log.Truncate(template.Stringify(value), 100)))
		}
	}
}

func extractValue(rule config.ExtractRule, resp *Response) (any, bool, error) {
	switch rule.Type {
	case "":
		v, ok := lookupResponse(rule.Path, resp)
		return v, ok, nil
	case "json":
		v, ok := resp.Path(rule.Path)
		return v, ok, nil
	case "header":
		v, ok := header(resp, rule.Path)
		return v, ok, nil
	case "regex":
		re, err := regexp.Compile(rule.Pattern)
		if err != nil {
			return nil, false, err
		}
		m := re.FindStringSubmatch(resp.Text())
		if len(m) < 2 {
			return nil, false, nil
		}
		return m[1], true, nil
	default:
		return nil, false, nil
	}
}

// lookupResponse resolves the prefix path forms shared by extraction and
// field validation: json.<path>, header.<name>, headers.<name>, status_code
// and text.
func lookupResponse(path string, resp *Response) (any, bool) {
	switch {
	case path == "status_code":
		return resp.StatusCode, true
	case path == "text" || path == "body":
		return resp.Text(), true
	case path == "json":
		return resp.JSON()
	case strings.HasPrefix(path, "json."):
		return resp.Path(path[len("json."):])
	case strings.HasPrefix(path, "header."):
		return header(resp, path[len("header."):])
	case strings.HasPrefix(path, "headers."):
		return header(resp, path[len("headers."):])
	}
	return nil, false
}

// header matches name case-insensitively and joins repeated values.
func header(resp *Response, name string) (any, bool) {
	vals := resp.Header.Values(name)
	if len(vals) == 0 {
		return nil, false
	}
	return strings.Join(vals, ", "), true
}
